package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/time/rate"
)

// ErrNotConfigured is returned by a provider that has no credentials.
var ErrNotConfigured = errors.New("provider not configured")

// ErrRateLimited is returned when a provider's local request budget is spent.
// The caller moves on to the next provider instead of waiting.
var ErrRateLimited = errors.New("provider rate limit exceeded")

// NewLimiter returns a limiter allowing rps requests per second with a burst
// of the same size. rps <= 0 means unlimited.
func NewLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// SentimentPrompt builds the instruction shared by the LLM providers
func SentimentPrompt(text string) string {
	return fmt.Sprintf(`Rate the sentiment of the following customer feedback.

Return ONLY a JSON object of the form {"score": <number>} where score is between 0.0 and 1.0:
- 0.0 = extremely negative
- 0.5 = neutral
- 1.0 = extremely positive

Feedback:
%s

JSON:`, text)
}

// ParseSentimentScore finds the JSON object in an LLM reply and validates the score
func ParseSentimentScore(response string) (float64, error) {
	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start < 0 || end <= start {
		return 0, fmt.Errorf("no JSON object found in response")
	}

	var result struct {
		Score *float64 `json:"score"`
	}
	if err := json.Unmarshal([]byte(response[start:end+1]), &result); err != nil {
		return 0, fmt.Errorf("failed to parse sentiment JSON: %w", err)
	}
	if result.Score == nil {
		return 0, fmt.Errorf("sentiment JSON has no score")
	}
	if *result.Score < 0 || *result.Score > 1 {
		return 0, fmt.Errorf("sentiment score %v outside [0,1]", *result.Score)
	}
	return *result.Score, nil
}
