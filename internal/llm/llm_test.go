package llm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSentimentScore(t *testing.T) {
	tests := []struct {
		name        string
		response    string
		expected    float64
		expectError bool
	}{
		{"plain object", `{"score": 0.25}`, 0.25, false},
		{"wrapped in prose", "Sure! Here you go:\n{\"score\": 0.9}\nThanks", 0.9, false},
		{"boundary zero", `{"score": 0}`, 0, false},
		{"boundary one", `{"score": 1}`, 1, false},
		{"missing score", `{"sentiment": "bad"}`, 0, true},
		{"out of range", `{"score": 1.5}`, 0, true},
		{"negative", `{"score": -0.2}`, 0, true},
		{"no json", "I think it is negative", 0, true},
		{"malformed", `{"score": }`, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, err := ParseSentimentScore(tt.response)
			if tt.expectError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, score)
		})
	}
}

func TestSentimentPromptIncludesText(t *testing.T) {
	prompt := SentimentPrompt("the onboarding call was great")
	assert.True(t, strings.Contains(prompt, "the onboarding call was great"))
	assert.True(t, strings.Contains(prompt, `{"score"`))
}

func TestNewLimiter(t *testing.T) {
	unlimited := NewLimiter(0)
	for i := 0; i < 100; i++ {
		require.True(t, unlimited.Allow())
	}

	limited := NewLimiter(2)
	assert.True(t, limited.Allow())
	assert.True(t, limited.Allow())
	assert.False(t, limited.Allow(), "third immediate request should exceed burst of 2")

	fractional := NewLimiter(0.5)
	assert.True(t, fractional.Allow())
	assert.False(t, fractional.Allow())
}
