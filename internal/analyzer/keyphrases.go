package analyzer

import (
	"regexp"
	"sort"
	"strings"
)

const maxKeyPhrases = 5

var nonWordRegex = regexp.MustCompile(`[^\w\s]`)

// ExtractKeyPhrases returns the five most frequent non-stopword tokens longer
// than three characters. Ties keep first-seen order.
func ExtractKeyPhrases(lexicon *Lexicon, text string) []string {
	if lexicon == nil {
		lexicon = DefaultLexicon()
	}

	cleaned := nonWordRegex.ReplaceAllString(strings.ToLower(text), "")

	counts := make(map[string]int)
	var order []string
	for _, word := range strings.Fields(cleaned) {
		if len(word) <= 3 || lexicon.StopWords[word] {
			continue
		}
		if counts[word] == 0 {
			order = append(order, word)
		}
		counts[word]++
	}

	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})

	if len(order) > maxKeyPhrases {
		order = order[:maxKeyPhrases]
	}
	if order == nil {
		return []string{}
	}
	return order
}
