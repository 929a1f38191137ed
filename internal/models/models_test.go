package models

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLabelForScore(t *testing.T) {
	tests := []struct {
		score    float64
		expected SentimentLabel
	}{
		{1, LabelVeryPositive},
		{0.8, LabelVeryPositive},
		{0.79999, LabelPositive},
		{0.6, LabelPositive},
		{0.59999, LabelNeutral},
		{0.4, LabelNeutral},
		{0.39999, LabelNegative},
		{0.2, LabelNegative},
		{0.19999, LabelVeryNegative},
		{0, LabelVeryNegative},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, LabelForScore(tt.score), "score %v", tt.score)
	}
}

func TestNewSentimentResultClamps(t *testing.T) {
	high := NewSentimentResult(1.7, 2, "x")
	assert.Equal(t, 1.0, high.Score)
	assert.Equal(t, 1.0, high.Confidence)
	assert.Equal(t, LabelVeryPositive, high.Label)

	low := NewSentimentResult(-0.3, -1, "x")
	assert.Equal(t, 0.0, low.Score)
	assert.Equal(t, LabelVeryNegative, low.Label)

	nan := NewSentimentResult(math.NaN(), 0.5, "x")
	assert.Equal(t, 0.5, nan.Score)
	assert.Equal(t, LabelNeutral, nan.Label)
}

func TestScopeMatches(t *testing.T) {
	survey := Survey{ID: "s1", ProjectID: "p1", ClientID: "c1", OrganizationID: "o1"}

	tests := []struct {
		name     string
		scope    Scope
		expected bool
	}{
		{"empty scope matches everything", Scope{}, true},
		{"project match", Scope{ProjectID: "p1"}, true},
		{"project mismatch", Scope{ProjectID: "p2"}, false},
		{"all fields", Scope{ProjectID: "p1", ClientID: "c1", OrganizationID: "o1"}, true},
		{"org mismatch", Scope{ProjectID: "p1", OrganizationID: "o2"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.scope.Matches(survey))
		})
	}
}
