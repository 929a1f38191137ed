package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/zombar/feedbackpulse/internal/models"
	"github.com/zombar/feedbackpulse/pkg/metrics"
)

const (
	// AnalysisWindow is how many of the newest responses get text analysis
	AnalysisWindow = 50
	// MinFieldLength is the rune count a string answer must exceed to be analyzed
	MinFieldLength = 10

	MaxCriticalIssues  = 10
	MaxRecentActivity  = 20
	recentResponses    = 15
	recentPublished    = 5
	maxIssueTextLength = 200

	// DefaultConcurrency bounds parallel field analyses per computation
	DefaultConcurrency = 4

	// Critical issue thresholds
	criticalScore      = 0.3
	criticalConfidence = 0.7

	// Distribution bucket edges. These differ from the label thresholds.
	positiveBucket = 0.6
	negativeBucket = 0.4

	completeThreshold = 0.8
	unknownSurvey     = "Unknown Survey"
)

// ErrEmptyScope is returned when a scope resolves to zero surveys
var ErrEmptyScope = errors.New("no surveys found for scope")

// Store is the read side of the survey/response store
type Store interface {
	FindSurveys(ctx context.Context, scope models.Scope) ([]models.Survey, error)
	// FindResponses returns responses for the surveys, newest first
	FindResponses(ctx context.Context, surveyIDs []string) ([]models.Response, error)
}

// ResponseAnalyzer analyzes a single text field. Implementations must not fail.
type ResponseAnalyzer interface {
	Analyze(ctx context.Context, text string) models.AnalysisResult
}

// Aggregator computes DashboardMetrics for a scope
type Aggregator struct {
	store       Store
	analyzer    ResponseAnalyzer
	concurrency int
	logger      *slog.Logger
	metrics     *metrics.BusinessMetrics
}

// Option configures an Aggregator
type Option func(*Aggregator)

// WithConcurrency sets how many fields are analyzed in parallel
func WithConcurrency(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.concurrency = n
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(a *Aggregator) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithMetrics enables Prometheus instrumentation
func WithMetrics(m *metrics.BusinessMetrics) Option {
	return func(a *Aggregator) {
		a.metrics = m
	}
}

// NewAggregator creates an aggregator over store using analyzer for each field
func NewAggregator(store Store, analyzer ResponseAnalyzer, opts ...Option) *Aggregator {
	a := &Aggregator{
		store:       store,
		analyzer:    analyzer,
		concurrency: DefaultConcurrency,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// fieldJob is one eligible text answer inside the analysis window
type fieldJob struct {
	response *models.Response
	key      string
	text     string
}

// ComputeMetrics recomputes the dashboard for scope from fresh store data.
// It returns either complete metrics or a single error: store failures,
// an empty scope (ErrEmptyScope) and cancellation are the only errors.
func (a *Aggregator) ComputeMetrics(ctx context.Context, scope models.Scope) (_ *models.DashboardMetrics, err error) {
	start := time.Now()

	ctx, span := otel.Tracer("feedbackpulse").Start(ctx, "dashboard.compute_metrics")
	span.SetAttributes(
		attribute.String("scope.project_id", scope.ProjectID),
		attribute.String("scope.client_id", scope.ClientID),
		attribute.String("scope.organization_id", scope.OrganizationID),
	)
	defer span.End()

	var criticalCount int
	defer func() {
		a.metrics.ObserveDashboard(time.Since(start), err, criticalCount)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	surveys, err := a.store.FindSurveys(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch surveys: %w", err)
	}
	if len(surveys) == 0 {
		return nil, ErrEmptyScope
	}

	surveyIDs := make([]string, len(surveys))
	titles := make(map[string]string, len(surveys))
	for i, s := range surveys {
		surveyIDs[i] = s.ID
		titles[s.ID] = s.Title
	}

	responses, err := a.store.FindResponses(ctx, surveyIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch responses: %w", err)
	}

	result := &models.DashboardMetrics{
		TotalSurveys:   len(surveys),
		TotalResponses: len(responses),
		AvgSentiment:   0.5,
		CriticalIssues: []models.CriticalIssue{},
		RecentActivity: []models.ActivityItem{},
	}

	complete := 0
	for _, r := range responses {
		if r.CompletionRate >= completeThreshold {
			complete++
		}
	}
	if len(responses) > 0 {
		result.CompletionRate = float64(complete) / float64(len(responses))
	}

	window := responses
	if len(window) > AnalysisWindow {
		window = window[:AnalysisWindow]
	}
	jobs := eligibleFields(window)
	span.SetAttributes(
		attribute.Int("responses.total", len(responses)),
		attribute.Int("fields.analyzed", len(jobs)),
	)

	analyses, err := a.analyzeAll(ctx, jobs)
	if err != nil {
		return nil, err
	}

	var sum float64
	var candidates []models.CriticalIssue
	for i, job := range jobs {
		sentiment := analyses[i].Sentiment
		sum += sentiment.Score

		switch {
		case sentiment.Score >= positiveBucket:
			result.SentimentDistribution.Positive++
		case sentiment.Score <= negativeBucket:
			result.SentimentDistribution.Negative++
		default:
			result.SentimentDistribution.Neutral++
		}

		if sentiment.Score <= criticalScore && sentiment.Confidence >= criticalConfidence {
			candidates = append(candidates, newCriticalIssue(job, sentiment.Score, titles))
		}
	}
	if len(jobs) > 0 {
		result.AvgSentiment = sum / float64(len(jobs))
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Sentiment < candidates[j].Sentiment
	})
	if len(candidates) > MaxCriticalIssues {
		candidates = candidates[:MaxCriticalIssues]
	}
	if candidates != nil {
		result.CriticalIssues = candidates
	}
	criticalCount = len(result.CriticalIssues)

	result.RecentActivity = recentActivity(surveys, responses, titles)

	a.logger.Debug("dashboard metrics computed",
		"total_surveys", result.TotalSurveys,
		"total_responses", result.TotalResponses,
		"fields_analyzed", len(jobs),
		"critical_issues", criticalCount,
		"duration", time.Since(start),
	)
	return result, nil
}

// analyzeAll runs the analyzer over jobs with bounded parallelism. Results are
// stored by job index so folding does not depend on completion order.
func (a *Aggregator) analyzeAll(ctx context.Context, jobs []fieldJob) ([]models.AnalysisResult, error) {
	results := make([]models.AnalysisResult, len(jobs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	for i := range jobs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = a.safeAnalyze(gctx, jobs[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("metrics computation aborted: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("metrics computation aborted: %w", err)
	}
	return results, nil
}

// safeAnalyze treats a panicking analysis as neutral with no category
func (a *Aggregator) safeAnalyze(ctx context.Context, job fieldJob) (result models.AnalysisResult) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("field analysis failed, treating as neutral",
				"response_id", job.response.ID,
				"field", job.key,
				"error", fmt.Sprint(r),
			)
			result = models.AnalysisResult{
				Sentiment: models.NeutralSentiment("fallback:error"),
				Priority:  models.PriorityMedium,
			}
		}
	}()
	return a.analyzer.Analyze(ctx, job.text)
}

// TextField is one analyzable answer of a response
type TextField struct {
	Key  string
	Text string
}

// TextFields returns string answers longer than MinFieldLength runes.
// Keys are visited in sorted order so the result is deterministic.
func TextFields(data map[string]any) []TextField {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var fields []TextField
	for _, k := range keys {
		text, ok := data[k].(string)
		if !ok || utf8.RuneCountInString(text) <= MinFieldLength {
			continue
		}
		fields = append(fields, TextField{Key: k, Text: text})
	}
	return fields
}

func eligibleFields(window []models.Response) []fieldJob {
	var jobs []fieldJob
	for i := range window {
		r := &window[i]
		for _, f := range TextFields(r.ResponseData) {
			jobs = append(jobs, fieldJob{response: r, key: f.Key, text: f.Text})
		}
	}
	return jobs
}

func newCriticalIssue(job fieldJob, score float64, titles map[string]string) models.CriticalIssue {
	return models.CriticalIssue{
		ID:        job.response.ID + "-" + job.key,
		Text:      truncate(job.text, maxIssueTextLength),
		Sentiment: score,
		Survey:    surveyTitle(titles, job.response.SurveyID),
		Timestamp: job.response.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func surveyTitle(titles map[string]string, surveyID string) string {
	if t := titles[surveyID]; t != "" {
		return t
	}
	return unknownSurvey
}

func truncate(text string, limit int) string {
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)
	return string(runes[:limit]) + "..."
}

type timedActivity struct {
	at   time.Time
	item models.ActivityItem
}

// recentActivity merges the newest responses and the most recently updated
// published surveys, newest first
func recentActivity(surveys []models.Survey, responses []models.Response, titles map[string]string) []models.ActivityItem {
	byCreated := append([]models.Response(nil), responses...)
	sort.SliceStable(byCreated, func(i, j int) bool {
		return byCreated[i].CreatedAt.After(byCreated[j].CreatedAt)
	})
	if len(byCreated) > recentResponses {
		byCreated = byCreated[:recentResponses]
	}

	var published []models.Survey
	for _, s := range surveys {
		if s.Status == models.SurveyStatusPublished {
			published = append(published, s)
		}
	}
	sort.SliceStable(published, func(i, j int) bool {
		return published[i].UpdatedAt.After(published[j].UpdatedAt)
	})
	if len(published) > recentPublished {
		published = published[:recentPublished]
	}

	merged := make([]timedActivity, 0, len(byCreated)+len(published))
	for _, r := range byCreated {
		merged = append(merged, timedActivity{at: r.CreatedAt, item: models.ActivityItem{
			ID:        "response-" + r.ID,
			Type:      models.ActivityResponse,
			Message:   "New response received for " + surveyTitle(titles, r.SurveyID),
			SurveyID:  r.SurveyID,
			Timestamp: r.CreatedAt.UTC().Format(time.RFC3339),
		}})
	}
	for _, s := range published {
		merged = append(merged, timedActivity{at: s.UpdatedAt, item: models.ActivityItem{
			ID:        "survey-" + s.ID,
			Type:      models.ActivitySurveyPublished,
			Message:   "Survey published: " + surveyTitle(titles, s.ID),
			SurveyID:  s.ID,
			Timestamp: s.UpdatedAt.UTC().Format(time.RFC3339),
		}})
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].at.After(merged[j].at)
	})
	if len(merged) > MaxRecentActivity {
		merged = merged[:MaxRecentActivity]
	}

	items := make([]models.ActivityItem, len(merged))
	for i, m := range merged {
		items[i] = m.item
	}
	return items
}
