package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/zombar/feedbackpulse/internal/dashboard"
	"github.com/zombar/feedbackpulse/internal/database"
	"github.com/zombar/feedbackpulse/internal/models"
)

// startTaskSpan continues the enqueuing trace when the payload carries one,
// otherwise it annotates whatever span ctx already has
func startTaskSpan(ctx context.Context, taskType string, tc TraceContext, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	var queueWaitTime time.Duration
	if tc.EnqueuedAt > 0 {
		queueWaitTime = time.Since(time.Unix(0, tc.EnqueuedAt))
	}
	attrs = append(attrs,
		attribute.String("task.type", taskType),
		attribute.Float64("queue.wait_time_seconds", queueWaitTime.Seconds()),
	)

	if tc.TraceID != "" && tc.SpanID != "" {
		traceID, err := trace.TraceIDFromHex(tc.TraceID)
		if err == nil {
			spanID, err := trace.SpanIDFromHex(tc.SpanID)
			if err == nil {
				remoteSpanCtx := trace.NewSpanContext(trace.SpanContextConfig{
					TraceID:    traceID,
					SpanID:     spanID,
					TraceFlags: trace.FlagsSampled,
					Remote:     true,
				})
				ctx = trace.ContextWithRemoteSpanContext(ctx, remoteSpanCtx)

				var span trace.Span
				ctx, span = otel.Tracer("feedbackpulse").Start(ctx, "asynq.task.process",
					trace.WithSpanKind(trace.SpanKindConsumer),
					trace.WithAttributes(attrs...),
				)
				span.AddEvent("task_processing_started", trace.WithAttributes(
					attribute.Float64("wait_time_seconds", queueWaitTime.Seconds()),
				))
				return ctx, span
			}
		}
	}

	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		span.SetAttributes(attrs...)
	}
	// the caller ends only spans it started
	return ctx, nil
}

func endSpan(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// handleAnalyzeResponse analyzes each eligible answer of a stored response,
// persists the results and schedules a dashboard refresh
func (w *Worker) handleAnalyzeResponse(ctx context.Context, t *asynq.Task) (err error) {
	defer func() { w.metrics.RecordTask(TypeAnalyzeResponse, err) }()

	var payload AnalyzeResponsePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		w.logger.Error("failed to unmarshal task payload", "error", err)
		return fmt.Errorf("invalid task payload: %v: %w", err, asynq.SkipRetry)
	}

	retryCount, _ := asynq.GetRetryCount(ctx)

	ctx, span := startTaskSpan(ctx, TypeAnalyzeResponse, payload.TraceContext,
		attribute.String("response.id", payload.ResponseID),
		attribute.String("survey.id", payload.SurveyID),
		attribute.Int("retry_count", retryCount),
	)
	defer func() { endSpan(span, err) }()

	response, err := w.store.GetResponse(ctx, payload.ResponseID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return fmt.Errorf("response %s: %v: %w", payload.ResponseID, err, asynq.SkipRetry)
		}
		return fmt.Errorf("failed to load response: %w", err)
	}

	fields := dashboard.TextFields(response.ResponseData)
	w.logger.Info("analyzing response",
		"response_id", response.ID,
		"survey_id", response.SurveyID,
		"fields", len(fields),
		"retry_count", retryCount,
	)

	for _, f := range fields {
		result := w.analyzer.Analyze(ctx, f.Text)
		if _, err := w.store.SaveAnalysis(ctx, response.ID, f.Key, result); err != nil {
			if !isRetriableError(err) {
				w.logger.Error("permanent error saving analysis",
					"response_id", response.ID,
					"field", f.Key,
					"error", err,
				)
				return fmt.Errorf("failed to save analysis: %v: %w", err, asynq.SkipRetry)
			}
			return fmt.Errorf("failed to save analysis: %w", err)
		}
	}

	survey, err := w.store.GetSurvey(ctx, response.SurveyID)
	if err != nil {
		// analyses are stored, only the refresh is lost
		w.logger.Warn("skipping metrics refresh, survey not loadable",
			"survey_id", response.SurveyID,
			"error", err,
		)
		return nil
	}

	if w.queueClient != nil {
		if _, err := w.queueClient.EnqueueRefreshMetrics(ctx, RefreshScope(survey)); err != nil {
			w.logger.Error("failed to enqueue metrics refresh", "error", err, "survey_id", survey.ID)
		}
	}

	w.logger.Info("response analysis completed", "response_id", response.ID, "fields", len(fields))
	return nil
}

// handleRefreshMetrics recomputes dashboard metrics for a scope and pushes
// them to subscribed dashboards
func (w *Worker) handleRefreshMetrics(ctx context.Context, t *asynq.Task) (err error) {
	defer func() { w.metrics.RecordTask(TypeRefreshMetrics, err) }()

	var payload RefreshMetricsPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		w.logger.Error("failed to unmarshal task payload", "error", err)
		return fmt.Errorf("invalid task payload: %v: %w", err, asynq.SkipRetry)
	}

	ctx, span := startTaskSpan(ctx, TypeRefreshMetrics, payload.TraceContext,
		attribute.String("scope.organization_id", payload.Scope.OrganizationID),
		attribute.String("scope.project_id", payload.Scope.ProjectID),
		attribute.String("scope.client_id", payload.Scope.ClientID),
	)
	defer func() { endSpan(span, err) }()

	metrics, err := w.aggregator.ComputeMetrics(ctx, payload.Scope)
	if err != nil {
		if errors.Is(err, dashboard.ErrEmptyScope) {
			w.logger.Info("nothing to refresh, scope has no surveys", "scope", payload.Scope)
			return nil
		}
		return fmt.Errorf("failed to compute metrics: %w", err)
	}

	if err := w.emitter.EmitMetricsUpdate(ctx, payload.Scope, metrics); err != nil {
		return fmt.Errorf("failed to emit metrics update: %w", err)
	}

	w.logger.Info("dashboard metrics refreshed",
		"scope", payload.Scope,
		"total_responses", metrics.TotalResponses,
		"critical_issues", len(metrics.CriticalIssues),
	)
	return nil
}

// RefreshScope is the dashboard scope a new response for survey invalidates:
// its organization, or its project when the survey has no organization
func RefreshScope(survey *models.Survey) models.Scope {
	if survey.OrganizationID != "" {
		return models.Scope{OrganizationID: survey.OrganizationID}
	}
	return models.Scope{ProjectID: survey.ProjectID, ClientID: survey.ClientID}
}

// isRetriableError determines if an error is transient (connection/timeout)
// vs permanent (constraint violation, bad input)
func isRetriableError(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())

	retriablePatterns := []string{
		"connection refused",
		"connection reset",
		"timeout",
		"temporary failure",
		"service unavailable",
		"too many connections",
		"database is locked",
		"context deadline exceeded",
		"context canceled",
		"i/o timeout",
		"no such host",
		"network is unreachable",
		"server selection error",
	}

	for _, pattern := range retriablePatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}
