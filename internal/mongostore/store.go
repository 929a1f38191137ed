package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/zombar/feedbackpulse/internal/database"
	"github.com/zombar/feedbackpulse/internal/models"
)

// Collection names
const (
	SurveysCollection   = "surveys"
	ResponsesCollection = "responses"
	AnalysesCollection  = "analyses"
)

// Store keeps surveys, responses and analyses in MongoDB.
// Lookups that find nothing return database.ErrNotFound so callers can treat
// both backends the same way.
type Store struct {
	client    *mongo.Client
	surveys   *mongo.Collection
	responses *mongo.Collection
	analyses  *mongo.Collection
}

// analysisDoc is the stored form of models.StoredAnalysis
type analysisDoc struct {
	ID         string                `bson:"_id"`
	ResponseID string                `bson:"responseId"`
	FieldKey   string                `bson:"fieldKey"`
	Priority   string                `bson:"priority"`
	Result     models.AnalysisResult `bson:"result"`
	CreatedAt  time.Time             `bson:"createdAt"`
}

// Connect dials MongoDB, pings it and returns a store over dbName
func Connect(ctx context.Context, uri, dbName string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	s := New(client.Database(dbName))
	s.client = client
	return s, nil
}

// New creates a store over an existing database handle
func New(db *mongo.Database) *Store {
	return &Store{
		surveys:   db.Collection(SurveysCollection),
		responses: db.Collection(ResponsesCollection),
		analyses:  db.Collection(AnalysesCollection),
	}
}

// EnsureIndexes creates the indexes the queries rely on
func (s *Store) EnsureIndexes(ctx context.Context) error {
	if _, err := s.surveys.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "projectId", Value: 1}}},
		{Keys: bson.D{{Key: "clientId", Value: 1}}},
		{Keys: bson.D{{Key: "organizationId", Value: 1}}},
	}); err != nil {
		return fmt.Errorf("failed to create survey indexes: %w", err)
	}
	if _, err := s.responses.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "surveyId", Value: 1}, {Key: "createdAt", Value: -1}},
	}); err != nil {
		return fmt.Errorf("failed to create response indexes: %w", err)
	}
	if _, err := s.analyses.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "responseId", Value: 1}, {Key: "fieldKey", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return fmt.Errorf("failed to create analysis indexes: %w", err)
	}
	return nil
}

// Ping checks the server is reachable
func (s *Store) Ping(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Ping(ctx, nil)
}

// Close disconnects the client if the store owns it
func (s *Store) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}

// CreateSurvey inserts a survey. A missing ID, status or timestamp is filled in.
func (s *Store) CreateSurvey(ctx context.Context, survey *models.Survey) error {
	if survey.ID == "" {
		survey.ID = uuid.New().String()
	}
	if survey.Status == "" {
		survey.Status = models.SurveyStatusDraft
	}
	if survey.CreatedAt.IsZero() {
		survey.CreatedAt = time.Now().UTC()
	}
	if survey.UpdatedAt.IsZero() {
		survey.UpdatedAt = survey.CreatedAt
	}

	if _, err := s.surveys.InsertOne(ctx, survey); err != nil {
		return fmt.Errorf("failed to insert survey: %w", err)
	}
	return nil
}

// UpdateSurveyStatus changes a survey's status and bumps updatedAt
func (s *Store) UpdateSurveyStatus(ctx context.Context, id, status string) error {
	result, err := s.surveys.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set": bson.M{"status": status, "updatedAt": time.Now().UTC()},
	})
	if err != nil {
		return fmt.Errorf("failed to update survey: %w", err)
	}
	if result.MatchedCount == 0 {
		return database.ErrNotFound
	}
	return nil
}

// GetSurvey retrieves a survey by ID
func (s *Store) GetSurvey(ctx context.Context, id string) (*models.Survey, error) {
	var survey models.Survey
	err := s.surveys.FindOne(ctx, bson.M{"_id": id}).Decode(&survey)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get survey: %w", err)
	}
	return &survey, nil
}

// FindSurveys returns the surveys in scope, newest first
func (s *Store) FindSurveys(ctx context.Context, scope models.Scope) ([]models.Survey, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: 1}})
	cursor, err := s.surveys.Find(ctx, surveyFilter(scope), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query surveys: %w", err)
	}
	defer cursor.Close(ctx)

	var surveys []models.Survey
	if err := cursor.All(ctx, &surveys); err != nil {
		return nil, fmt.Errorf("failed to decode surveys: %w", err)
	}
	return surveys, nil
}

// CreateResponse inserts a response
func (s *Store) CreateResponse(ctx context.Context, response *models.Response) error {
	if response.ID == "" {
		response.ID = uuid.New().String()
	}
	if response.CreatedAt.IsZero() {
		response.CreatedAt = time.Now().UTC()
	}
	if response.ResponseData == nil {
		response.ResponseData = map[string]any{}
	}

	if _, err := s.responses.InsertOne(ctx, response); err != nil {
		return fmt.Errorf("failed to insert response: %w", err)
	}
	return nil
}

// GetResponse retrieves a response by ID
func (s *Store) GetResponse(ctx context.Context, id string) (*models.Response, error) {
	var response models.Response
	err := s.responses.FindOne(ctx, bson.M{"_id": id}).Decode(&response)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get response: %w", err)
	}
	normalizeResponse(&response)
	return &response, nil
}

// FindResponses returns every response of the given surveys, newest first
func (s *Store) FindResponses(ctx context.Context, surveyIDs []string) ([]models.Response, error) {
	if len(surveyIDs) == 0 {
		return nil, nil
	}

	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: 1}})
	cursor, err := s.responses.Find(ctx, responseFilter(surveyIDs), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query responses: %w", err)
	}
	defer cursor.Close(ctx)

	var responses []models.Response
	if err := cursor.All(ctx, &responses); err != nil {
		return nil, fmt.Errorf("failed to decode responses: %w", err)
	}
	for i := range responses {
		normalizeResponse(&responses[i])
	}
	return responses, nil
}

// SaveAnalysis stores the analysis of one response field
func (s *Store) SaveAnalysis(ctx context.Context, responseID, fieldKey string, result models.AnalysisResult) (*models.StoredAnalysis, error) {
	// a rerun of the same field replaces the earlier document and keeps its id
	filter := bson.M{"responseId": responseID, "fieldKey": fieldKey}
	update := bson.M{
		"$set": bson.M{
			"priority":  string(result.Priority),
			"result":    result,
			"createdAt": time.Now().UTC(),
		},
		"$setOnInsert": bson.M{"_id": uuid.New().String()},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var doc analysisDoc
	if err := s.analyses.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to save analysis: %w", err)
	}
	return doc.stored(), nil
}

// ListAnalyses returns the stored analyses of a response ordered by field key
func (s *Store) ListAnalyses(ctx context.Context, responseID string) ([]models.StoredAnalysis, error) {
	opts := options.Find().SetSort(bson.D{{Key: "fieldKey", Value: 1}, {Key: "createdAt", Value: 1}})
	cursor, err := s.analyses.Find(ctx, bson.M{"responseId": responseID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query analyses: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []analysisDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode analyses: %w", err)
	}

	analyses := make([]models.StoredAnalysis, len(docs))
	for i := range docs {
		analyses[i] = *docs[i].stored()
	}
	return analyses, nil
}

func (d *analysisDoc) stored() *models.StoredAnalysis {
	return &models.StoredAnalysis{
		ID:         d.ID,
		ResponseID: d.ResponseID,
		FieldKey:   d.FieldKey,
		Result:     d.Result,
		CreatedAt:  d.CreatedAt,
	}
}

// surveyFilter builds the scope filter; empty scope fields do not filter
func surveyFilter(scope models.Scope) bson.M {
	filter := bson.M{}
	if scope.ProjectID != "" {
		filter["projectId"] = scope.ProjectID
	}
	if scope.ClientID != "" {
		filter["clientId"] = scope.ClientID
	}
	if scope.OrganizationID != "" {
		filter["organizationId"] = scope.OrganizationID
	}
	return filter
}

func responseFilter(surveyIDs []string) bson.M {
	return bson.M{"surveyId": bson.M{"$in": surveyIDs}}
}

// normalizeResponse converts nested BSON documents in the answer map to plain
// Go maps and slices so answers look the same as from the SQL store
func normalizeResponse(r *models.Response) {
	if r.ResponseData == nil {
		r.ResponseData = map[string]any{}
		return
	}
	for k, v := range r.ResponseData {
		r.ResponseData[k] = normalizeValue(v)
	}
}

func normalizeValue(v any) any {
	switch t := v.(type) {
	case bson.D:
		m := make(map[string]any, len(t))
		for _, e := range t {
			m[e.Key] = normalizeValue(e.Value)
		}
		return m
	case bson.M:
		m := make(map[string]any, len(t))
		for k, e := range t {
			m[k] = normalizeValue(e)
		}
		return m
	case bson.A:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalizeValue(e)
		}
		return out
	default:
		return v
	}
}

var _ database.Store = (*Store)(nil)
