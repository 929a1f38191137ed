package analyzer

import (
	"math"
	"sort"
	"strings"

	"github.com/zombar/feedbackpulse/internal/models"
)

const (
	// categoryThreshold is the relevance a category must exceed to be kept
	categoryThreshold = 0.3
	maxCategories     = 3
)

// Categorizer assigns keyword categories to text
type Categorizer struct {
	lexicon *Lexicon
}

// NewCategorizer creates a categorizer over the lexicon's category tables
func NewCategorizer(lexicon *Lexicon) *Categorizer {
	if lexicon == nil {
		lexicon = DefaultLexicon()
	}
	return &Categorizer{lexicon: lexicon}
}

// Categorize returns up to three categories sorted by score, highest first.
// relevance = min(1, matches/keywords*2); only relevance > 0.3 is kept.
// The result is never empty: General Feedback is returned when nothing qualifies.
func (c *Categorizer) Categorize(text string) []models.CategoryResult {
	lower := strings.ToLower(text)

	var results []models.CategoryResult
	for _, cat := range c.lexicon.Categories {
		if len(cat.Keywords) == 0 {
			continue
		}
		matches := 0
		for _, kw := range cat.Keywords {
			if strings.Contains(lower, kw) {
				matches++
			}
		}
		relevance := math.Min(1, float64(matches)/float64(len(cat.Keywords))*2)
		if relevance > categoryThreshold {
			results = append(results, models.CategoryResult{
				Name:      cat.Name,
				Score:     relevance,
				Relevance: relevance,
			})
		}
	}

	if len(results) == 0 {
		return []models.CategoryResult{models.GeneralFeedbackCategory()}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > maxCategories {
		results = results[:maxCategories]
	}
	return results
}
