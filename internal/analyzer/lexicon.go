package analyzer

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/zombar/feedbackpulse/internal/models"
)

// CategoryKeywords pairs a category name with the keywords that signal it
type CategoryKeywords struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
}

// Lexicon holds the read-only word tables used by the rule-based components.
// A Lexicon is built once at startup and shared; nothing mutates it afterwards.
type Lexicon struct {
	Positive   []string
	Negative   []string
	StopWords  map[string]bool
	Categories []CategoryKeywords
}

// DefaultLexicon returns the built-in tables
func DefaultLexicon() *Lexicon {
	return &Lexicon{
		Positive:   getPositiveWords(),
		Negative:   getNegativeWords(),
		StopWords:  toSet(getStopWords()),
		Categories: getCategoryKeywords(),
	}
}

// getStopWords returns the common English words ignored by key phrase extraction
func getStopWords() []string {
	return []string{
		"the", "and", "for", "are", "but", "not", "you", "all", "was", "with",
		"this", "that", "have", "from", "they", "been", "were", "will", "would", "could",
		"should", "there", "their", "what", "when", "which", "about", "very", "just", "also",
		"these", "those", "them", "into", "more",
	}
}

// getPositiveWords returns the positive sentiment fragments
func getPositiveWords() []string {
	return []string{
		"good", "great", "excellent", "amazing", "wonderful", "fantastic", "love", "awesome",
		"perfect", "outstanding", "happy", "satisfied", "helpful", "best", "brilliant",
		"pleased", "impressive", "recommend", "smooth", "easy",
	}
}

// getNegativeWords returns the negative sentiment fragments
func getNegativeWords() []string {
	return []string{
		"bad", "terrible", "awful", "horrible", "poor", "worst", "hate", "disappoint",
		"frustrat", "slow", "broken", "useless", "difficult", "confusing", "annoying",
		"angry", "problem", "issue", "fail", "unhappy",
	}
}

// getCategoryKeywords returns the keyword vocabulary per category.
// General Feedback has no keywords; it is only ever the fallback.
func getCategoryKeywords() []CategoryKeywords {
	return []CategoryKeywords{
		{Name: models.CategoryCommunication, Keywords: []string{"communication", "communicate", "respond", "update", "inform", "contact", "email", "meeting"}},
		{Name: models.CategoryQuality, Keywords: []string{"quality", "excellent", "poor", "standard", "defect", "bug", "professional", "reliable"}},
		{Name: models.CategoryTimeline, Keywords: []string{"deadline", "schedule", "timeline", "late", "delay", "on time", "timely", "overdue"}},
		{Name: models.CategorySupport, Keywords: []string{"support", "help", "team", "service", "assistance", "staff"}},
		{Name: models.CategoryValue, Keywords: []string{"price", "cost", "value", "expensive", "cheap", "worth", "budget", "affordable"}},
		{Name: models.CategoryUserExperience, Keywords: []string{"easy", "intuitive", "confusing", "interface", "design", "navigation", "usability", "experience"}},
		{Name: models.CategoryFeatures, Keywords: []string{"feature", "functionality", "option", "capability", "integration", "tool", "missing", "request"}},
		{Name: models.CategoryPerformance, Keywords: []string{"fast", "slow", "speed", "performance", "loading", "crash", "lag", "latency"}},
		{Name: models.CategoryDocumentation, Keywords: []string{"documentation", "docs", "guide", "manual", "tutorial", "instructions", "example", "readme"}},
	}
}

func toSet(words []string) map[string]bool {
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}

// lexiconFile is the on-disk shape of a lexicon override
type lexiconFile struct {
	Positive   []string           `yaml:"positive"`
	Negative   []string           `yaml:"negative"`
	StopWords  []string           `yaml:"stopwords"`
	Categories []CategoryKeywords `yaml:"categories"`
}

// LoadLexicon reads a YAML override file. Sections missing from the file
// keep their built-in tables.
func LoadLexicon(path string) (*Lexicon, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read lexicon file: %w", err)
	}
	return ParseLexicon(data)
}

// ParseLexicon builds a Lexicon from YAML bytes on top of the defaults
func ParseLexicon(data []byte) (*Lexicon, error) {
	var file lexiconFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse lexicon: %w", err)
	}

	lex := DefaultLexicon()
	if len(file.Positive) > 0 {
		lex.Positive = lowerAll(file.Positive)
	}
	if len(file.Negative) > 0 {
		lex.Negative = lowerAll(file.Negative)
	}
	if len(file.StopWords) > 0 {
		lex.StopWords = toSet(lowerAll(file.StopWords))
	}
	if len(file.Categories) > 0 {
		cats := make([]CategoryKeywords, 0, len(file.Categories))
		for _, c := range file.Categories {
			if c.Name == "" || len(c.Keywords) == 0 {
				return nil, fmt.Errorf("category %q needs a name and at least one keyword", c.Name)
			}
			cats = append(cats, CategoryKeywords{Name: c.Name, Keywords: lowerAll(c.Keywords)})
		}
		lex.Categories = cats
	}
	return lex, nil
}

func lowerAll(words []string) []string {
	out := make([]string, len(words))
	for i, w := range words {
		out[i] = strings.ToLower(strings.TrimSpace(w))
	}
	return out
}
