package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zombar/feedbackpulse/internal/analyzer"
	"github.com/zombar/feedbackpulse/internal/dashboard"
	"github.com/zombar/feedbackpulse/internal/database"
	"github.com/zombar/feedbackpulse/internal/models"
)

type savedAnalysis struct {
	responseID string
	fieldKey   string
	result     models.AnalysisResult
}

type fakeStore struct {
	mu        sync.Mutex
	surveys   map[string]*models.Survey
	responses map[string]*models.Response
	saved     []savedAnalysis
	saveErr   error
}

func (s *fakeStore) GetSurvey(ctx context.Context, id string) (*models.Survey, error) {
	if sv, ok := s.surveys[id]; ok {
		return sv, nil
	}
	return nil, database.ErrNotFound
}

func (s *fakeStore) GetResponse(ctx context.Context, id string) (*models.Response, error) {
	if r, ok := s.responses[id]; ok {
		return r, nil
	}
	return nil, database.ErrNotFound
}

func (s *fakeStore) SaveAnalysis(ctx context.Context, responseID, fieldKey string, result models.AnalysisResult) (*models.StoredAnalysis, error) {
	if s.saveErr != nil {
		return nil, s.saveErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, savedAnalysis{responseID, fieldKey, result})
	return &models.StoredAnalysis{ResponseID: responseID, FieldKey: fieldKey, Result: result}, nil
}

type fakeEnqueuer struct {
	scopes []models.Scope
	err    error
}

func (e *fakeEnqueuer) EnqueueRefreshMetrics(ctx context.Context, scope models.Scope) (string, error) {
	e.scopes = append(e.scopes, scope)
	return "id", e.err
}

type fakeComputer struct {
	metrics *models.DashboardMetrics
	err     error
	scopes  []models.Scope
}

func (c *fakeComputer) ComputeMetrics(ctx context.Context, scope models.Scope) (*models.DashboardMetrics, error) {
	c.scopes = append(c.scopes, scope)
	return c.metrics, c.err
}

type fakeEmitter struct {
	emitted []*models.DashboardMetrics
	scopes  []models.Scope
	err     error
}

func (e *fakeEmitter) EmitMetricsUpdate(ctx context.Context, scope models.Scope, metrics *models.DashboardMetrics) error {
	if e.err != nil {
		return e.err
	}
	e.scopes = append(e.scopes, scope)
	e.emitted = append(e.emitted, metrics)
	return nil
}

func testStore() *fakeStore {
	return &fakeStore{
		surveys: map[string]*models.Survey{
			"s1": {ID: "s1", Title: "Support", OrganizationID: "o1"},
		},
		responses: map[string]*models.Response{
			"r1": {
				ID:       "r1",
				SurveyID: "s1",
				ResponseData: map[string]any{
					"support": "The support team was absolutely terrible and unresponsive",
					"rating":  2,
					"short":   "ok",
					"other":   "Great product quality overall",
				},
			},
			"orphan": {
				ID:           "orphan",
				SurveyID:     "gone",
				ResponseData: map[string]any{"text": "A long enough answer here"},
			},
		},
	}
}

func analyzeTask(t *testing.T, responseID string) *asynq.Task {
	t.Helper()
	task, err := newAnalyzeResponseTask(context.Background(), "s1", responseID)
	require.NoError(t, err)
	return task
}

func TestHandleAnalyzeResponse(t *testing.T) {
	store := testStore()
	enq := &fakeEnqueuer{}
	w := newWorker(WorkerDeps{Store: store, Analyzer: analyzer.New(), QueueClient: enq})

	require.NoError(t, w.handleAnalyzeResponse(context.Background(), analyzeTask(t, "r1")))

	require.Len(t, store.saved, 2)
	// fields are analyzed in key order
	assert.Equal(t, "other", store.saved[0].fieldKey)
	assert.Equal(t, "support", store.saved[1].fieldKey)
	assert.Equal(t, "r1", store.saved[1].responseID)
	assert.Equal(t, 0.4, store.saved[1].result.Sentiment.Score)
	assert.Equal(t, models.PriorityMedium, store.saved[1].result.Priority)

	assert.Equal(t, []models.Scope{{OrganizationID: "o1"}}, enq.scopes)
}

func TestHandleAnalyzeResponseErrors(t *testing.T) {
	tests := []struct {
		name      string
		task      func(t *testing.T) *asynq.Task
		saveErr   error
		skipRetry bool
	}{
		{
			name:      "invalid payload",
			task:      func(t *testing.T) *asynq.Task { return asynq.NewTask(TypeAnalyzeResponse, []byte(`{`)) },
			skipRetry: true,
		},
		{
			name:      "unknown response",
			task:      func(t *testing.T) *asynq.Task { return analyzeTask(t, "missing") },
			skipRetry: true,
		},
		{
			name:      "permanent save error",
			task:      func(t *testing.T) *asynq.Task { return analyzeTask(t, "r1") },
			saveErr:   errors.New("UNIQUE constraint failed"),
			skipRetry: true,
		},
		{
			name:      "transient save error",
			task:      func(t *testing.T) *asynq.Task { return analyzeTask(t, "r1") },
			saveErr:   errors.New("database is locked"),
			skipRetry: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := testStore()
			store.saveErr = tt.saveErr
			enq := &fakeEnqueuer{}
			w := newWorker(WorkerDeps{Store: store, Analyzer: analyzer.New(), QueueClient: enq})

			err := w.handleAnalyzeResponse(context.Background(), tt.task(t))
			require.Error(t, err)
			assert.Equal(t, tt.skipRetry, errors.Is(err, asynq.SkipRetry))
			assert.Empty(t, enq.scopes)
		})
	}
}

func TestHandleAnalyzeResponseMissingSurvey(t *testing.T) {
	store := testStore()
	enq := &fakeEnqueuer{}
	w := newWorker(WorkerDeps{Store: store, Analyzer: analyzer.New(), QueueClient: enq})

	require.NoError(t, w.handleAnalyzeResponse(context.Background(), analyzeTask(t, "orphan")))
	assert.Len(t, store.saved, 1)
	assert.Empty(t, enq.scopes, "no refresh without a survey scope")
}

func TestHandleAnalyzeResponseEnqueueFailureIsNotFatal(t *testing.T) {
	store := testStore()
	enq := &fakeEnqueuer{err: errors.New("redis down")}
	w := newWorker(WorkerDeps{Store: store, Analyzer: analyzer.New(), QueueClient: enq})

	assert.NoError(t, w.handleAnalyzeResponse(context.Background(), analyzeTask(t, "r1")))
	assert.Len(t, store.saved, 2)
}

func refreshTask(t *testing.T, scope models.Scope) *asynq.Task {
	t.Helper()
	task, err := newRefreshMetricsTask(context.Background(), scope)
	require.NoError(t, err)
	return task
}

func TestHandleRefreshMetrics(t *testing.T) {
	scope := models.Scope{OrganizationID: "o1"}
	metrics := &models.DashboardMetrics{TotalSurveys: 1, TotalResponses: 3}
	computer := &fakeComputer{metrics: metrics}
	emitter := &fakeEmitter{}
	w := newWorker(WorkerDeps{Aggregator: computer, Emitter: emitter})

	require.NoError(t, w.handleRefreshMetrics(context.Background(), refreshTask(t, scope)))

	assert.Equal(t, []models.Scope{scope}, computer.scopes)
	require.Len(t, emitter.emitted, 1)
	assert.Same(t, metrics, emitter.emitted[0])
	assert.Equal(t, scope, emitter.scopes[0])
}

func TestHandleRefreshMetricsErrors(t *testing.T) {
	tests := []struct {
		name       string
		computeErr error
		emitErr    error
		wantErr    bool
	}{
		{"empty scope is not an error", dashboard.ErrEmptyScope, nil, false},
		{"store failure retries", errors.New("connection refused"), nil, true},
		{"emit failure retries", nil, errors.New("publish failed"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			computer := &fakeComputer{metrics: &models.DashboardMetrics{}, err: tt.computeErr}
			emitter := &fakeEmitter{err: tt.emitErr}
			w := newWorker(WorkerDeps{Aggregator: computer, Emitter: emitter})

			err := w.handleRefreshMetrics(context.Background(), refreshTask(t, models.Scope{OrganizationID: "o1"}))
			if tt.wantErr {
				assert.Error(t, err)
				assert.False(t, errors.Is(err, asynq.SkipRetry))
			} else {
				assert.NoError(t, err)
				assert.Empty(t, emitter.emitted)
			}
		})
	}
}

func TestHandleRefreshMetricsInvalidPayload(t *testing.T) {
	w := newWorker(WorkerDeps{Aggregator: &fakeComputer{}, Emitter: &fakeEmitter{}})

	err := w.handleRefreshMetrics(context.Background(), asynq.NewTask(TypeRefreshMetrics, []byte(`nope`)))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestRefreshPayloadShape(t *testing.T) {
	data, err := json.Marshal(RefreshMetricsPayload{Scope: models.Scope{ProjectID: "p1"}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"scope":{"projectId":"p1"},"enqueued_at":0}`, string(data))
}

// flakyStore fails the save after the first one with a retriable error, once
type flakyStore struct {
	*database.DB
	saves  int
	failed bool
}

func (s *flakyStore) SaveAnalysis(ctx context.Context, responseID, fieldKey string, result models.AnalysisResult) (*models.StoredAnalysis, error) {
	s.saves++
	if s.saves == 2 && !s.failed {
		s.failed = true
		return nil, errors.New("database is locked")
	}
	return s.DB.SaveAnalysis(ctx, responseID, fieldKey, result)
}

func TestHandleAnalyzeResponseRetryKeepsOneAnalysisPerField(t *testing.T) {
	db, err := database.New(database.DriverSQLite, ":memory:")
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	survey := &models.Survey{ID: "s1", Title: "Support", Status: models.SurveyStatusPublished, OrganizationID: "o1"}
	require.NoError(t, db.CreateSurvey(ctx, survey))
	response := &models.Response{
		SurveyID: "s1",
		ResponseData: map[string]any{
			"support": "The support team was absolutely terrible and unresponsive",
			"other":   "Great product quality overall",
		},
		CompletionRate: 1,
	}
	require.NoError(t, db.CreateResponse(ctx, response))

	store := &flakyStore{DB: db}
	w := newWorker(WorkerDeps{Store: store, Analyzer: analyzer.New(), QueueClient: &fakeEnqueuer{}})

	// first delivery saves "other" then fails on "support"
	err = w.handleAnalyzeResponse(ctx, analyzeTask(t, response.ID))
	require.Error(t, err)
	assert.False(t, errors.Is(err, asynq.SkipRetry))

	require.NoError(t, w.handleAnalyzeResponse(ctx, analyzeTask(t, response.ID)))
	// a redelivery after success must not add rows either
	require.NoError(t, w.handleAnalyzeResponse(ctx, analyzeTask(t, response.ID)))

	analyses, err := db.ListAnalyses(ctx, response.ID)
	require.NoError(t, err)
	require.Len(t, analyses, 2)
	assert.Equal(t, "other", analyses[0].FieldKey)
	assert.Equal(t, "support", analyses[1].FieldKey)
}
