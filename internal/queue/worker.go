package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/zombar/feedbackpulse/internal/models"
	"github.com/zombar/feedbackpulse/internal/realtime"
	"github.com/zombar/feedbackpulse/pkg/metrics"
)

// Store is the persistence the worker reads responses from and writes analyses to
type Store interface {
	GetSurvey(ctx context.Context, id string) (*models.Survey, error)
	GetResponse(ctx context.Context, id string) (*models.Response, error)
	SaveAnalysis(ctx context.Context, responseID, fieldKey string, result models.AnalysisResult) (*models.StoredAnalysis, error)
}

// ResponseAnalyzer analyzes one text answer
type ResponseAnalyzer interface {
	Analyze(ctx context.Context, text string) models.AnalysisResult
}

// MetricsComputer recomputes dashboard metrics for a scope
type MetricsComputer interface {
	ComputeMetrics(ctx context.Context, scope models.Scope) (*models.DashboardMetrics, error)
}

// RefreshEnqueuer schedules a metrics refresh
type RefreshEnqueuer interface {
	EnqueueRefreshMetrics(ctx context.Context, scope models.Scope) (string, error)
}

// Worker wraps the Asynq server for processing tasks
type Worker struct {
	server      *asynq.Server
	mux         *asynq.ServeMux
	store       Store
	analyzer    ResponseAnalyzer
	aggregator  MetricsComputer
	emitter     realtime.Emitter
	queueClient RefreshEnqueuer
	concurrency int
	logger      *slog.Logger
	metrics     *metrics.BusinessMetrics
}

// WorkerConfig contains configuration for the queue worker
type WorkerConfig struct {
	RedisAddr   string
	Concurrency int
}

// WorkerDeps are the collaborators task handlers use
type WorkerDeps struct {
	Store       Store
	Analyzer    ResponseAnalyzer
	Aggregator  MetricsComputer
	Emitter     realtime.Emitter
	QueueClient RefreshEnqueuer
	Logger      *slog.Logger
	Metrics     *metrics.BusinessMetrics
}

var queuePriorities = map[string]int{
	QueueAnalysis: 6,
	QueueMetrics:  3,
}

// NewWorker creates a new queue worker
func NewWorker(cfg WorkerConfig, deps WorkerDeps) *Worker {
	redisOpt := asynq.RedisClientOpt{
		Addr: cfg.RedisAddr,
	}

	w := newWorker(deps)

	serverCfg := asynq.Config{
		Concurrency: cfg.Concurrency,

		// Queue priority: higher value = higher priority
		Queues:         queuePriorities,
		StrictPriority: false,

		RetryDelayFunc:  retryDelay,
		ShutdownTimeout: 30 * time.Second,

		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			maxRetry, _ := asynq.GetMaxRetry(ctx)

			w.logger.Error("task processing error",
				"task_type", task.Type(),
				"error", err,
				"retry_count", retried,
				"max_retries", maxRetry,
			)
		}),
	}

	w.server = asynq.NewServer(redisOpt, serverCfg)
	w.concurrency = cfg.Concurrency
	w.registerHandlers()

	return w
}

func newWorker(deps WorkerDeps) *Worker {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		mux:         asynq.NewServeMux(),
		store:       deps.Store,
		analyzer:    deps.Analyzer,
		aggregator:  deps.Aggregator,
		emitter:     deps.Emitter,
		queueClient: deps.QueueClient,
		logger:      logger,
		metrics:     deps.Metrics,
	}
}

// registerHandlers registers all task handlers with the worker
func (w *Worker) registerHandlers() {
	w.mux.HandleFunc(TypeAnalyzeResponse, w.handleAnalyzeResponse)
	w.mux.HandleFunc(TypeRefreshMetrics, w.handleRefreshMetrics)
}

// Start starts the worker to begin processing tasks
func (w *Worker) Start() error {
	w.logger.Info("starting asynq worker",
		"concurrency", w.concurrency,
		"queues", queuePriorities,
	)

	// Run is blocking
	if err := w.server.Run(w.mux); err != nil {
		return fmt.Errorf("asynq server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the worker
func (w *Worker) Shutdown() {
	w.logger.Info("shutting down asynq worker")
	w.server.Shutdown()
}

// retryDelay returns the backoff before retry n of task
func retryDelay(n int, err error, task *asynq.Task) time.Duration {
	delays := []time.Duration{
		10 * time.Second,
		30 * time.Second,
		1 * time.Minute,
		5 * time.Minute,
		15 * time.Minute,
	}
	if task.Type() == TypeRefreshMetrics {
		delays = []time.Duration{
			5 * time.Second,
			15 * time.Second,
			30 * time.Second,
		}
	}

	if n < len(delays) {
		return delays[n]
	}
	return delays[len(delays)-1]
}
