package main

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zombar/feedbackpulse/pkg/metrics"
)

func TestMetricsEndpoint(t *testing.T) {
	bm := metrics.NewBusinessMetrics(serviceName)
	bm.RecordSentiment("rule-based")
	bm.RecordProviderFailure("openai")
	bm.ObserveAnalysis(5 * time.Millisecond)
	bm.ObserveDashboard(20*time.Millisecond, nil, 2)
	bm.RecordTask("feedback:refresh_metrics", errors.New("boom"))

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	promhttp.Handler().ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.Contains(contentType, "text/plain") {
		t.Errorf("Expected content-type to contain 'text/plain', got '%s'", contentType)
	}

	body := w.Body.String()

	expectedMetrics := []string{
		"go_goroutines",
		`feedbackpulse_sentiment_analyses_total{source="rule-based"} 1`,
		`feedbackpulse_provider_failures_total{provider="openai"} 1`,
		"feedbackpulse_analysis_duration_seconds_count 1",
		"feedbackpulse_dashboard_compute_seconds",
		"feedbackpulse_critical_issues 2",
		"feedbackpulse_tasks_processed_total",
	}

	for _, metric := range expectedMetrics {
		if !strings.Contains(body, metric) {
			t.Errorf("Expected metrics to contain '%s'", metric)
		}
	}
}
