package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/zombar/feedbackpulse/internal/models"
)

// Task type constants
const (
	TypeAnalyzeResponse = "feedback:analyze_response"
	TypeRefreshMetrics  = "feedback:refresh_metrics"
)

// Queue names
const (
	QueueAnalysis = "response-analysis"
	QueueMetrics  = "metrics-refresh"
)

// RefreshDebounce delays a metrics refresh so a burst of responses for the
// same scope collapses into one recomputation
const RefreshDebounce = 2 * time.Second

// TraceContext carries the enqueuing span across the queue
type TraceContext struct {
	TraceID    string `json:"trace_id,omitempty"`
	SpanID     string `json:"span_id,omitempty"`
	EnqueuedAt int64  `json:"enqueued_at"` // Unix timestamp in nanoseconds
}

// AnalyzeResponsePayload asks a worker to analyze one stored response
type AnalyzeResponsePayload struct {
	ResponseID string `json:"response_id"`
	SurveyID   string `json:"survey_id"`
	TraceContext
}

// RefreshMetricsPayload asks a worker to recompute and push dashboard metrics
type RefreshMetricsPayload struct {
	Scope models.Scope `json:"scope"`
	TraceContext
}

// Client wraps the Asynq client for enqueueing tasks
type Client struct {
	client *asynq.Client
}

// ClientConfig contains configuration for the queue client
type ClientConfig struct {
	RedisAddr string
}

// NewClient creates a new queue client
func NewClient(cfg ClientConfig) *Client {
	redisOpt := asynq.RedisClientOpt{
		Addr: cfg.RedisAddr,
	}

	return &Client{
		client: asynq.NewClient(redisOpt),
	}
}

// stampTrace records the enqueue time and, when ctx carries a span, its ids
func stampTrace(ctx context.Context, taskType, taskID string) TraceContext {
	tc := TraceContext{EnqueuedAt: time.Now().UnixNano()}

	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		spanCtx := span.SpanContext()
		tc.TraceID = spanCtx.TraceID().String()
		tc.SpanID = spanCtx.SpanID().String()

		span.AddEvent("task_enqueued", trace.WithAttributes(
			attribute.String("task.type", taskType),
			attribute.String("task.id", taskID),
			attribute.Int64("enqueued_at", tc.EnqueuedAt),
		))
	}
	return tc
}

// EnqueueAnalyzeResponse enqueues text analysis for a freshly stored response
func (c *Client) EnqueueAnalyzeResponse(ctx context.Context, surveyID, responseID string) (string, error) {
	task, err := newAnalyzeResponseTask(ctx, surveyID, responseID)
	if err != nil {
		return "", err
	}

	opts := []asynq.Option{
		asynq.MaxRetry(5),
		asynq.Timeout(5 * time.Minute),
		asynq.Queue(QueueAnalysis),
		asynq.Retention(24 * time.Hour),
	}

	info, err := c.client.EnqueueContext(ctx, task, opts...)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue analyze response task: %w", err)
	}

	return info.ID, nil
}

// EnqueueRefreshMetrics enqueues a debounced metrics refresh for scope.
// A refresh already pending for the same scope absorbs this one and the
// returned id is empty.
func (c *Client) EnqueueRefreshMetrics(ctx context.Context, scope models.Scope) (string, error) {
	task, err := newRefreshMetricsTask(ctx, scope)
	if err != nil {
		return "", err
	}

	opts := []asynq.Option{
		asynq.MaxRetry(3),
		asynq.Timeout(2 * time.Minute),
		asynq.Queue(QueueMetrics),
		asynq.ProcessIn(RefreshDebounce),
		// no retention, so the id frees up once the refresh has run
	}

	info, err := c.client.EnqueueContext(ctx, task, opts...)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
			return "", nil
		}
		return "", fmt.Errorf("failed to enqueue refresh metrics task: %w", err)
	}

	return info.ID, nil
}

func newAnalyzeResponseTask(ctx context.Context, surveyID, responseID string) (*asynq.Task, error) {
	taskID := "analyze-" + responseID
	payload := AnalyzeResponsePayload{
		ResponseID:   responseID,
		SurveyID:     surveyID,
		TraceContext: stampTrace(ctx, TypeAnalyzeResponse, taskID),
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal task payload: %w", err)
	}
	return asynq.NewTask(TypeAnalyzeResponse, payloadBytes, asynq.TaskID(taskID)), nil
}

func newRefreshMetricsTask(ctx context.Context, scope models.Scope) (*asynq.Task, error) {
	taskID := refreshTaskID(scope)
	payload := RefreshMetricsPayload{
		Scope:        scope,
		TraceContext: stampTrace(ctx, TypeRefreshMetrics, taskID),
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal task payload: %w", err)
	}
	return asynq.NewTask(TypeRefreshMetrics, payloadBytes, asynq.TaskID(taskID)), nil
}

// refreshTaskID is stable per scope so pending refreshes deduplicate
func refreshTaskID(scope models.Scope) string {
	parts := []string{"refresh", "org=" + scope.OrganizationID, "project=" + scope.ProjectID, "client=" + scope.ClientID}
	return strings.Join(parts, ":")
}

// Close closes the client connection
func (c *Client) Close() error {
	return c.client.Close()
}
