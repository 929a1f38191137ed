package analyzer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zombar/feedbackpulse/internal/models"
)

func TestRuleBasedSentiment(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		score float64
		label models.SentimentLabel
	}{
		{"empty", "", 0.5, models.LabelNeutral},
		{"single positive", "great", 0.6, models.LabelPositive},
		{"three positives", "Great, excellent and amazing", 0.8, models.LabelVeryPositive},
		{"three negatives", "terrible awful horrible", 0.2, models.LabelNegative},
		{"clamped low", "bad bad bad bad bad bad bad", 0, models.LabelVeryNegative},
		{"clamped high", "good good good good good good good", 1, models.LabelVeryPositive},
		{"fragment match", "Checkout was FRUSTRATING", 0.4, models.LabelNeutral},
		{"token hits both lists", "unhappy", 0.5, models.LabelNeutral},
		{"mixed cancels out", "great product but slow", 0.5, models.LabelNeutral},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := RuleBasedSentiment(nil, tt.text)
			assert.Equal(t, tt.score, result.Score)
			assert.Equal(t, tt.label, result.Label)
			assert.Equal(t, RuleBasedConfidence, result.Confidence)
			assert.Equal(t, RuleBasedReasoning, result.Reasoning)
		})
	}
}

func TestRuleBasedSentimentDeterministic(t *testing.T) {
	text := "The onboarding was easy but support was slow to respond"
	first := RuleBasedSentiment(nil, text)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, RuleBasedSentiment(nil, text))
	}
}

func TestCategorize(t *testing.T) {
	c := NewCategorizer(nil)

	t.Run("single category", func(t *testing.T) {
		got := c.Categorize("The price is too expensive for the value")
		require.Len(t, got, 1)
		assert.Equal(t, models.CategoryValue, got[0].Name)
		assert.Equal(t, 0.75, got[0].Relevance)
		assert.Equal(t, got[0].Relevance, got[0].Score)
	})

	t.Run("fallback", func(t *testing.T) {
		got := c.Categorize("hello there")
		require.Len(t, got, 1)
		assert.Equal(t, models.CategoryGeneralFeedback, got[0].Name)
		assert.Equal(t, 0.7, got[0].Score)
		assert.Equal(t, 0.7, got[0].Relevance)
	})

	t.Run("empty text", func(t *testing.T) {
		got := c.Categorize("")
		require.Len(t, got, 1)
		assert.Equal(t, models.CategoryGeneralFeedback, got[0].Name)
	})

	t.Run("capped at three and sorted", func(t *testing.T) {
		got := c.Categorize("support help team quality excellent poor price cost value deadline schedule late")
		require.Len(t, got, 3)
		assert.Equal(t, models.CategorySupport, got[0].Name)
		assert.Equal(t, 1.0, got[0].Score)
		// equal scores keep table order
		assert.Equal(t, models.CategoryQuality, got[1].Name)
		assert.Equal(t, models.CategoryTimeline, got[2].Name)
		for i := 1; i < len(got); i++ {
			assert.GreaterOrEqual(t, got[i-1].Score, got[i].Score)
		}
	})

	t.Run("single weak match dropped", func(t *testing.T) {
		// 1 of 8 documentation keywords gives 0.25, below the threshold
		got := c.Categorize("the readme")
		require.Len(t, got, 1)
		assert.Equal(t, models.CategoryGeneralFeedback, got[0].Name)
	})
}

func TestExtractKeyPhrases(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		expected []string
	}{
		{
			name:     "frequency then first seen",
			text:     "Delivery delivery was slow, slow, slow. Great support!",
			expected: []string{"slow", "delivery", "great", "support"},
		},
		{
			name:     "capped at five",
			text:     "alpha bravo charlie delta echoes foxtrot",
			expected: []string{"alpha", "bravo", "charlie", "delta", "echoes"},
		},
		{
			name:     "stopwords and short tokens removed",
			text:     "they were very nice and it was fine",
			expected: []string{"nice", "fine"},
		},
		{
			name:     "empty",
			text:     "",
			expected: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractKeyPhrases(nil, tt.text)
			require.NotNil(t, got)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestClassifyPriority(t *testing.T) {
	support := []models.CategoryResult{{Name: models.CategorySupport, Score: 1, Relevance: 1}}
	quality := []models.CategoryResult{{Name: models.CategoryQuality, Score: 0.75, Relevance: 0.75}}
	weakSupport := []models.CategoryResult{{Name: models.CategorySupport, Score: 0.7, Relevance: 0.7}}
	general := []models.CategoryResult{models.GeneralFeedbackCategory()}

	tests := []struct {
		name       string
		score      float64
		categories []models.CategoryResult
		expected   models.Priority
	}{
		{"critical wins over category rule", 0.15, support, models.PriorityCritical},
		{"high below 0.4", 0.2, general, models.PriorityHigh},
		{"boundary 0.4 is not high", 0.4, general, models.PriorityMedium},
		{"support escalates", 0.5, support, models.PriorityHigh},
		{"quality escalates", 0.45, quality, models.PriorityHigh},
		{"support at exactly 0.7 does not escalate", 0.5, weakSupport, models.PriorityMedium},
		{"category rule needs score below 0.6", 0.6, support, models.PriorityLow},
		{"low", 0.9, general, models.PriorityLow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sentiment := models.NewSentimentResult(tt.score, 0.8, "test")
			assert.Equal(t, tt.expected, ClassifyPriority(sentiment, tt.categories))
		})
	}
}

func TestParseLexicon(t *testing.T) {
	data := []byte(`
positive: [Stellar, "  superb "]
categories:
  - name: Billing
    keywords: [invoice, Refund]
`)
	lex, err := ParseLexicon(data)
	require.NoError(t, err)

	assert.Equal(t, []string{"stellar", "superb"}, lex.Positive)
	assert.Equal(t, DefaultLexicon().Negative, lex.Negative, "missing sections keep defaults")
	require.Len(t, lex.Categories, 1)
	assert.Equal(t, "Billing", lex.Categories[0].Name)
	assert.Equal(t, []string{"invoice", "refund"}, lex.Categories[0].Keywords)

	a := NewCategorizer(lex)
	got := a.Categorize("Where is my refund?")
	require.Len(t, got, 1)
	assert.Equal(t, "Billing", got[0].Name)

	score := RuleBasedSentiment(lex, "a stellar release")
	assert.Equal(t, 0.6, score.Score)
}

func TestParseLexiconErrors(t *testing.T) {
	_, err := ParseLexicon([]byte("positive: [unterminated"))
	assert.Error(t, err)

	_, err = ParseLexicon([]byte("categories:\n  - name: Empty\n"))
	assert.Error(t, err)
}

func TestLoadLexicon(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lexicon.yaml")
	require.NoError(t, os.WriteFile(path, []byte("negative: [meh]\n"), 0o644))

	lex, err := LoadLexicon(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"meh"}, lex.Negative)

	_, err = LoadLexicon(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
