package metrics

import (
	"database/sql"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// BusinessMetrics holds the pipeline counters exported on /metrics.
// All methods are nil-safe so components can run without instrumentation.
type BusinessMetrics struct {
	sentimentAnalyses *prometheus.CounterVec
	providerFailures  *prometheus.CounterVec
	analysisDuration  prometheus.Histogram
	dashboardCompute  *prometheus.HistogramVec
	criticalIssues    prometheus.Gauge
	tasksProcessed    *prometheus.CounterVec
}

// NewBusinessMetrics creates and registers business metrics on the default registerer
func NewBusinessMetrics(namespace string) *BusinessMetrics {
	return NewBusinessMetricsWith(prometheus.DefaultRegisterer, namespace)
}

// NewBusinessMetricsWith registers business metrics on reg
func NewBusinessMetricsWith(reg prometheus.Registerer, namespace string) *BusinessMetrics {
	m := &BusinessMetrics{
		sentimentAnalyses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sentiment_analyses_total",
			Help:      "Sentiment analyses by the source that produced the score",
		}, []string{"source"}),
		providerFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_failures_total",
			Help:      "Sentiment provider attempts that failed and fell through",
		}, []string{"provider"}),
		analysisDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analysis_duration_seconds",
			Help:      "Wall-clock time to analyze one text field",
			Buckets:   prometheus.DefBuckets,
		}),
		dashboardCompute: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dashboard_compute_seconds",
			Help:      "Time to compute dashboard metrics for one scope",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"status"}),
		criticalIssues: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "critical_issues",
			Help:      "Critical issues in the most recent dashboard computation",
		}),
		tasksProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_processed_total",
			Help:      "Background tasks processed by type and status",
		}, []string{"type", "status"}),
	}

	reg.MustRegister(
		m.sentimentAnalyses,
		m.providerFailures,
		m.analysisDuration,
		m.dashboardCompute,
		m.criticalIssues,
		m.tasksProcessed,
	)
	return m
}

// RecordSentiment counts a sentiment result by source ("rule-based", "openai", ...)
func (m *BusinessMetrics) RecordSentiment(source string) {
	if m == nil {
		return
	}
	m.sentimentAnalyses.WithLabelValues(source).Inc()
}

// RecordProviderFailure counts a failed provider attempt
func (m *BusinessMetrics) RecordProviderFailure(provider string) {
	if m == nil {
		return
	}
	m.providerFailures.WithLabelValues(provider).Inc()
}

// ObserveAnalysis records one field analysis duration
func (m *BusinessMetrics) ObserveAnalysis(d time.Duration) {
	if m == nil {
		return
	}
	m.analysisDuration.Observe(d.Seconds())
}

// ObserveDashboard records a dashboard computation
func (m *BusinessMetrics) ObserveDashboard(d time.Duration, err error, criticalIssues int) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	} else {
		m.criticalIssues.Set(float64(criticalIssues))
	}
	m.dashboardCompute.WithLabelValues(status).Observe(d.Seconds())
}

// RecordTask counts a processed background task
func (m *BusinessMetrics) RecordTask(taskType string, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.tasksProcessed.WithLabelValues(taskType, status).Inc()
}

// DatabaseMetrics exposes database/sql pool statistics
type DatabaseMetrics struct {
	openConnections prometheus.Gauge
	inUse           prometheus.Gauge
	idle            prometheus.Gauge
	waitCount       prometheus.Gauge
}

// NewDatabaseMetrics creates and registers pool gauges on the default registerer
func NewDatabaseMetrics(namespace string) *DatabaseMetrics {
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Subsystem: "db", Name: name, Help: help})
	}
	m := &DatabaseMetrics{
		openConnections: gauge("open_connections", "Established connections, in use and idle"),
		inUse:           gauge("in_use_connections", "Connections currently in use"),
		idle:            gauge("idle_connections", "Idle connections"),
		waitCount:       gauge("wait_count", "Total number of connections waited for"),
	}
	prometheus.MustRegister(m.openConnections, m.inUse, m.idle, m.waitCount)
	return m
}

// UpdateDBStats copies the current pool statistics into the gauges
func (m *DatabaseMetrics) UpdateDBStats(db *sql.DB) {
	if m == nil || db == nil {
		return
	}
	stats := db.Stats()
	m.openConnections.Set(float64(stats.OpenConnections))
	m.inUse.Set(float64(stats.InUse))
	m.idle.Set(float64(stats.Idle))
	m.waitCount.Set(float64(stats.WaitCount))
}
