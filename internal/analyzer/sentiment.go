package analyzer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/zombar/feedbackpulse/internal/models"
	"github.com/zombar/feedbackpulse/pkg/metrics"
)

const (
	// RuleBasedConfidence is the fixed confidence of the lexicon scorer
	RuleBasedConfidence = 0.65
	// RuleBasedReasoning tags results produced by the lexicon scorer
	RuleBasedReasoning = "rule-based"

	// DefaultProviderTimeout bounds a single provider attempt
	DefaultProviderTimeout = 10 * time.Second
)

// Provider is an external sentiment scorer. Implementations make exactly one
// attempt per call and return an error on any failure.
type Provider interface {
	Name() string
	ScoreSentiment(ctx context.Context, text string) (score, confidence float64, err error)
}

// SentimentAnalyzer tries providers in order and falls back to the lexicon scorer
type SentimentAnalyzer struct {
	providers []Provider
	lexicon   *Lexicon
	timeout   time.Duration
	logger    *slog.Logger
	metrics   *metrics.BusinessMetrics
}

// NewSentimentAnalyzer creates a sentiment analyzer. With no providers it is
// purely rule-based.
func NewSentimentAnalyzer(lexicon *Lexicon, providers ...Provider) *SentimentAnalyzer {
	if lexicon == nil {
		lexicon = DefaultLexicon()
	}
	return &SentimentAnalyzer{
		providers: providers,
		lexicon:   lexicon,
		timeout:   DefaultProviderTimeout,
		logger:    slog.Default(),
	}
}

// Analyze scores text. It never fails: every provider error is logged and the
// chain continues, ending with the rule-based scorer.
func (s *SentimentAnalyzer) Analyze(ctx context.Context, text string) models.SentimentResult {
	for _, p := range s.providers {
		if ctx.Err() != nil {
			break
		}
		score, confidence, err := s.attempt(ctx, p, text)
		if err != nil {
			s.logger.Warn("sentiment provider failed, trying next",
				"provider", p.Name(),
				"error", err,
			)
			s.metrics.RecordProviderFailure(p.Name())
			continue
		}
		s.metrics.RecordSentiment(p.Name())
		return models.NewSentimentResult(score, confidence, "provider:"+p.Name())
	}

	s.metrics.RecordSentiment(RuleBasedReasoning)
	return RuleBasedSentiment(s.lexicon, text)
}

// attempt runs one provider call under its own timeout and span
func (s *SentimentAnalyzer) attempt(ctx context.Context, p Provider, text string) (score, confidence float64, err error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	ctx, span := otel.Tracer("feedbackpulse").Start(ctx, "sentiment.provider")
	span.SetAttributes(attribute.String("provider", p.Name()))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("provider %s panicked: %v", p.Name(), r)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	score, confidence, err = p.ScoreSentiment(ctx, text)
	if err != nil {
		return 0, 0, err
	}
	if score != score || score < 0 || score > 1 {
		return 0, 0, errors.New("provider returned score outside [0,1]")
	}
	return score, confidence, nil
}

// RuleBasedSentiment scores text against the lexicon. Starting from 0.5, each
// whitespace token moves the score by 0.1 per list it touches: up if it
// contains a positive fragment, down if it contains a negative one. The
// total is clamped to [0,1].
func RuleBasedSentiment(lexicon *Lexicon, text string) models.SentimentResult {
	if lexicon == nil {
		lexicon = DefaultLexicon()
	}

	// Steps are counted as integers and divided once so boundary scores
	// (0.4, 0.8, ...) equal their float literals.
	steps := 0
	for _, token := range strings.Fields(strings.ToLower(text)) {
		if containsAny(token, lexicon.Positive) {
			steps++
		}
		if containsAny(token, lexicon.Negative) {
			steps--
		}
	}

	score := float64(5+steps) / 10
	return models.NewSentimentResult(score, RuleBasedConfidence, RuleBasedReasoning)
}

func containsAny(token string, fragments []string) bool {
	for _, f := range fragments {
		if f != "" && strings.Contains(token, f) {
			return true
		}
	}
	return false
}
