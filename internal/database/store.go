package database

import (
	"context"

	"github.com/zombar/feedbackpulse/internal/models"
)

// Store is the persistence contract shared by the SQL and MongoDB backends
type Store interface {
	CreateSurvey(ctx context.Context, survey *models.Survey) error
	UpdateSurveyStatus(ctx context.Context, id, status string) error
	GetSurvey(ctx context.Context, id string) (*models.Survey, error)
	FindSurveys(ctx context.Context, scope models.Scope) ([]models.Survey, error)

	CreateResponse(ctx context.Context, response *models.Response) error
	GetResponse(ctx context.Context, id string) (*models.Response, error)
	FindResponses(ctx context.Context, surveyIDs []string) ([]models.Response, error)

	SaveAnalysis(ctx context.Context, responseID, fieldKey string, result models.AnalysisResult) (*models.StoredAnalysis, error)
	ListAnalyses(ctx context.Context, responseID string) ([]models.StoredAnalysis, error)

	Ping(ctx context.Context) error
}

var _ Store = (*DB)(nil)
