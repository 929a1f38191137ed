package analyzer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/zombar/feedbackpulse/internal/models"
	"github.com/zombar/feedbackpulse/pkg/metrics"
)

// Config wires an Analyzer. Zero values select the built-in lexicon, no
// providers, the default provider timeout and slog.Default().
type Config struct {
	Lexicon         *Lexicon
	Providers       []Provider
	ProviderTimeout time.Duration
	Logger          *slog.Logger
	Metrics         *metrics.BusinessMetrics
}

// Analyzer runs the full per-field pipeline: sentiment, categories, key
// phrases, priority and suggested actions.
type Analyzer struct {
	lexicon     *Lexicon
	sentiment   *SentimentAnalyzer
	categorizer *Categorizer
	logger      *slog.Logger
	metrics     *metrics.BusinessMetrics
}

// New creates a rule-based Analyzer with the built-in lexicon
func New() *Analyzer {
	return NewWithConfig(Config{})
}

// NewWithConfig creates an Analyzer with the given providers and tables
func NewWithConfig(cfg Config) *Analyzer {
	lexicon := cfg.Lexicon
	if lexicon == nil {
		lexicon = DefaultLexicon()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	sentiment := NewSentimentAnalyzer(lexicon, cfg.Providers...)
	sentiment.logger = logger
	sentiment.metrics = cfg.Metrics
	if cfg.ProviderTimeout > 0 {
		sentiment.timeout = cfg.ProviderTimeout
	}

	return &Analyzer{
		lexicon:     lexicon,
		sentiment:   sentiment,
		categorizer: NewCategorizer(lexicon),
		logger:      logger,
		metrics:     cfg.Metrics,
	}
}

// Providers returns the provider names in the order they are tried
func (a *Analyzer) Providers() []string {
	names := make([]string, 0, len(a.sentiment.providers))
	for _, p := range a.sentiment.providers {
		names = append(names, p.Name())
	}
	return names
}

// Analyze produces an AnalysisResult for one text. It never fails: if any
// stage panics the result falls back to neutral sentiment, General Feedback,
// no key phrases and MEDIUM priority.
func (a *Analyzer) Analyze(ctx context.Context, text string) (result models.AnalysisResult) {
	start := time.Now()

	ctx, span := otel.Tracer("feedbackpulse").Start(ctx, "analyzer.analyze")
	span.SetAttributes(attribute.Int("text.length", len(text)))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("analysis failed, returning safe defaults",
				"error", fmt.Sprint(r),
				"text_length", len(text),
			)
			result = SafeDefaultResult()
		}
		result.ProcessingTime = time.Since(start)
		a.metrics.ObserveAnalysis(result.ProcessingTime)
		span.SetAttributes(
			attribute.String("priority", string(result.Priority)),
			attribute.String("sentiment.source", result.Sentiment.Reasoning),
			attribute.Float64("sentiment.score", result.Sentiment.Score),
		)
	}()

	sentiment := a.sentiment.Analyze(ctx, text)
	categories := a.categorizer.Categorize(text)
	keyPhrases := ExtractKeyPhrases(a.lexicon, text)
	priority := ClassifyPriority(sentiment, categories)

	return models.AnalysisResult{
		Sentiment:        sentiment,
		Categories:       categories,
		KeyPhrases:       keyPhrases,
		Topics:           topicsFor(categories),
		Priority:         priority,
		SuggestedActions: SuggestActions(priority, categories),
	}
}

// SafeDefaultResult is the well-formed result used when analysis breaks
func SafeDefaultResult() models.AnalysisResult {
	categories := []models.CategoryResult{models.GeneralFeedbackCategory()}
	return models.AnalysisResult{
		Sentiment:        models.NeutralSentiment("fallback:error"),
		Categories:       categories,
		KeyPhrases:       []string{},
		Topics:           topicsFor(categories),
		Priority:         models.PriorityMedium,
		SuggestedActions: append([]string(nil), fallbackActions...),
	}
}

func topicsFor(categories []models.CategoryResult) models.Topics {
	var topics models.Topics
	if len(categories) > 0 {
		topics.Primary = categories[0].Name
	}
	if len(categories) > 1 {
		topics.Secondary = categories[1].Name
	}
	return topics
}
