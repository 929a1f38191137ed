package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.opentelemetry.io/otel/attribute"

	"github.com/zombar/feedbackpulse/internal/auth"
	"github.com/zombar/feedbackpulse/internal/dashboard"
	"github.com/zombar/feedbackpulse/internal/database"
	"github.com/zombar/feedbackpulse/internal/models"
	"github.com/zombar/feedbackpulse/internal/realtime"
	"github.com/zombar/feedbackpulse/pkg/logging"
	"github.com/zombar/feedbackpulse/pkg/tracing"
)

const (
	requestTimeout = 30 * time.Second
	maxBodyBytes   = 1 << 20
)

// Store is the persistence the API reads and writes directly
type Store interface {
	GetSurvey(ctx context.Context, id string) (*models.Survey, error)
	CreateResponse(ctx context.Context, response *models.Response) error
	Ping(ctx context.Context) error
}

// TextAnalyzer analyzes one piece of feedback text
type TextAnalyzer interface {
	Analyze(ctx context.Context, text string) models.AnalysisResult
}

// MetricsService computes dashboard metrics
type MetricsService interface {
	ComputeMetrics(ctx context.Context, scope models.Scope) (*models.DashboardMetrics, error)
}

// ResponseEnqueuer schedules background analysis of a stored response
type ResponseEnqueuer interface {
	EnqueueAnalyzeResponse(ctx context.Context, surveyID, responseID string) (string, error)
}

// Config wires the handler's collaborators. Queue, Emitter and WebSocket are optional.
type Config struct {
	Store          Store
	Analyzer       TextAnalyzer
	Metrics        MetricsService
	Emitter        realtime.Emitter
	Queue          ResponseEnqueuer
	Verifier       *auth.Verifier
	WebSocket      http.Handler
	AllowedOrigins []string
	Logger         *slog.Logger
}

// Handler handles HTTP requests
type Handler struct {
	store     Store
	analyzer  TextAnalyzer
	metrics   MetricsService
	emitter   realtime.Emitter
	queue     ResponseEnqueuer
	verifier  *auth.Verifier
	websocket http.Handler
	logger    *slog.Logger
	mux       *http.ServeMux
}

// NewHandler creates a new API handler with CORS support and metrics
func NewHandler(cfg Config) http.Handler {
	h := newHandler(cfg)

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	})

	return c.Handler(h.mux)
}

func newHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	h := &Handler{
		store:     cfg.Store,
		analyzer:  cfg.Analyzer,
		metrics:   cfg.Metrics,
		emitter:   cfg.Emitter,
		queue:     cfg.Queue,
		verifier:  cfg.Verifier,
		websocket: cfg.WebSocket,
		logger:    logger,
		mux:       http.NewServeMux(),
	}
	h.setupRoutes()
	return h
}

// setupRoutes configures all API routes
func (h *Handler) setupRoutes() {
	h.mux.Handle("GET /metrics", promhttp.Handler())
	h.mux.HandleFunc("GET /health", h.handleHealth)

	h.mux.Handle("GET /api/metrics", h.verifier.Middleware(http.HandlerFunc(h.handleMetrics)))
	h.mux.Handle("POST /api/analyze", h.verifier.Middleware(http.HandlerFunc(h.handleAnalyze)))

	// public survey form submission
	h.mux.HandleFunc("POST /api/surveys/{id}/responses", h.handleSubmitResponse)

	if h.websocket != nil {
		h.mux.Handle("GET /ws/dashboard", h.websocket)
	}
}

// handleHealth handles health check requests
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status, code := "ok", http.StatusOK
	if err := h.store.Ping(ctx); err != nil {
		h.logger.Warn("health check failed", "error", err)
		status, code = "unavailable", http.StatusServiceUnavailable
	}

	respondJSON(w, map[string]string{
		"status": status,
		"time":   time.Now().Format(time.RFC3339),
	}, code)
}

// handleMetrics computes dashboard metrics for the requested scope
func (h *Handler) handleMetrics(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		respondError(w, auth.ErrUnauthorized.Error(), http.StatusUnauthorized)
		return
	}

	q := r.URL.Query()
	scope := models.Scope{
		ProjectID:      q.Get("projectId"),
		ClientID:       q.Get("clientId"),
		OrganizationID: q.Get("organizationId"),
	}

	if err := auth.AuthorizeScope(claims, scope); err != nil {
		respondError(w, err.Error(), http.StatusForbidden)
		return
	}
	scope = auth.RestrictScope(claims, scope)

	tracing.SetSpanAttributes(r.Context(),
		attribute.String("scope.project_id", scope.ProjectID),
		attribute.String("scope.client_id", scope.ClientID),
		attribute.String("scope.organization_id", scope.OrganizationID),
	)

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	metrics, err := h.metrics.ComputeMetrics(ctx, scope)
	switch {
	case err == nil:
	case errors.Is(err, dashboard.ErrEmptyScope):
		respondError(w, err.Error(), http.StatusNotFound)
		return
	case errors.Is(err, context.DeadlineExceeded):
		respondError(w, "Request timeout", http.StatusRequestTimeout)
		return
	default:
		h.serverError(w, r, err, "Failed to compute metrics")
		return
	}

	if r.URL.Query().Get("push") == "true" && h.emitter != nil {
		if err := h.emitter.EmitMetricsUpdate(r.Context(), scope, metrics); err != nil {
			h.logger.Warn("failed to push metrics update", "error", err)
		}
	}

	respondJSON(w, metrics, http.StatusOK)
}

// handleAnalyze runs the full analysis pipeline on one text
func (h *Handler) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.Text == "" {
		respondError(w, "Text field is required", http.StatusBadRequest)
		return
	}

	tracing.SetSpanAttributes(r.Context(), attribute.Int("text.length", len(req.Text)))

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	respondJSON(w, h.analyzer.Analyze(ctx, req.Text), http.StatusOK)
}

// handleSubmitResponse stores a survey response and queues its analysis
func (h *Handler) handleSubmitResponse(w http.ResponseWriter, r *http.Request) {
	surveyID := r.PathValue("id")

	var req struct {
		ResponseData   map[string]any `json:"responseData"`
		CompletionRate *float64       `json:"completionRate"`
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	// an empty answer map is a valid response; only a missing one is rejected
	if req.ResponseData == nil {
		respondError(w, "responseData is required", http.StatusBadRequest)
		return
	}

	completion := 1.0
	if req.CompletionRate != nil {
		completion = *req.CompletionRate
		if completion < 0 || completion > 1 {
			respondError(w, "completionRate must be between 0 and 1", http.StatusBadRequest)
			return
		}
	}

	ctx := r.Context()
	survey, err := h.store.GetSurvey(ctx, surveyID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondError(w, "Survey not found", http.StatusNotFound)
			return
		}
		h.serverError(w, r, err, "Failed to load survey")
		return
	}
	if survey.Status != models.SurveyStatusPublished {
		respondError(w, "Survey is not accepting responses", http.StatusConflict)
		return
	}

	response := &models.Response{
		SurveyID:       survey.ID,
		ResponseData:   req.ResponseData,
		CompletionRate: completion,
	}
	if err := h.store.CreateResponse(ctx, response); err != nil {
		h.serverError(w, r, err, "Failed to store response")
		return
	}

	status := "stored"
	var taskID string
	if h.queue != nil {
		taskID, err = h.queue.EnqueueAnalyzeResponse(ctx, survey.ID, response.ID)
		if err != nil {
			// the response is stored; the next metrics computation still sees it
			h.logger.Error("failed to enqueue response analysis", "error", err, "response_id", response.ID)
		} else {
			status = "queued"
		}
	}

	logging.LogRequest(h.logger, r, "response submitted",
		slog.String("survey_id", survey.ID),
		slog.String("response_id", response.ID),
		slog.String("status", status),
	)

	respondJSON(w, map[string]any{
		"id":       response.ID,
		"surveyId": survey.ID,
		"taskId":   taskID,
		"status":   status,
	}, http.StatusCreated)
}

// serverError logs err with request context and sends a 500 without internals
func (h *Handler) serverError(w http.ResponseWriter, r *http.Request, err error, message string) {
	logging.HTTPErrorLogger(h.logger, http.StatusInternalServerError, fmt.Errorf("%s: %w", message, err), r)
	respondError(w, message, http.StatusInternalServerError)
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error response
func respondError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}
