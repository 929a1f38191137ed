package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zombar/feedbackpulse/internal/models"
)

const surveyColumns = "id, title, status, project_id, client_id, organization_id, created_at, updated_at"

const responseColumns = "id, survey_id, response_data, completion_rate, created_at"

// CreateSurvey inserts a survey. A missing ID, status or timestamp is filled in.
func (db *DB) CreateSurvey(ctx context.Context, survey *models.Survey) error {
	if survey.ID == "" {
		survey.ID = uuid.New().String()
	}
	if survey.Status == "" {
		survey.Status = models.SurveyStatusDraft
	}
	now := time.Now().UTC()
	if survey.CreatedAt.IsZero() {
		survey.CreatedAt = now
	}
	if survey.UpdatedAt.IsZero() {
		survey.UpdatedAt = survey.CreatedAt
	}

	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO surveys (`+surveyColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, survey.ID, survey.Title, survey.Status, survey.ProjectID, survey.ClientID, survey.OrganizationID,
		survey.CreatedAt.UTC(), survey.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert survey: %w", err)
	}
	return nil
}

// UpdateSurveyStatus changes a survey's status and bumps updated_at
func (db *DB) UpdateSurveyStatus(ctx context.Context, id, status string) error {
	result, err := db.conn.ExecContext(ctx,
		"UPDATE surveys SET status = $1, updated_at = $2 WHERE id = $3",
		status, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update survey: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// GetSurvey retrieves a survey by ID
func (db *DB) GetSurvey(ctx context.Context, id string) (*models.Survey, error) {
	row := db.conn.QueryRowContext(ctx, "SELECT "+surveyColumns+" FROM surveys WHERE id = $1", id)
	survey, err := scanSurvey(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get survey: %w", err)
	}
	return survey, nil
}

// FindSurveys returns the surveys in scope, newest first. Empty scope fields do not filter.
func (db *DB) FindSurveys(ctx context.Context, scope models.Scope) ([]models.Survey, error) {
	var (
		conditions []string
		args       []any
	)
	add := func(column, value string) {
		if value == "" {
			return
		}
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	add("project_id", scope.ProjectID)
	add("client_id", scope.ClientID)
	add("organization_id", scope.OrganizationID)

	query := "SELECT " + surveyColumns + " FROM surveys"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC, id"

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query surveys: %w", err)
	}
	defer rows.Close()

	var surveys []models.Survey
	for rows.Next() {
		survey, err := scanSurvey(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan survey: %w", err)
		}
		surveys = append(surveys, *survey)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return surveys, nil
}

// CreateResponse inserts a response for an existing survey
func (db *DB) CreateResponse(ctx context.Context, response *models.Response) error {
	if response.ID == "" {
		response.ID = uuid.New().String()
	}
	if response.CreatedAt.IsZero() {
		response.CreatedAt = time.Now().UTC()
	}
	if response.ResponseData == nil {
		response.ResponseData = map[string]any{}
	}

	data, err := json.Marshal(response.ResponseData)
	if err != nil {
		return fmt.Errorf("failed to marshal response data: %w", err)
	}

	_, err = db.conn.ExecContext(ctx, `
		INSERT INTO responses (`+responseColumns+`)
		VALUES ($1, $2, $3, $4, $5)
	`, response.ID, response.SurveyID, string(data), response.CompletionRate, response.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert response: %w", err)
	}
	return nil
}

// GetResponse retrieves a response by ID
func (db *DB) GetResponse(ctx context.Context, id string) (*models.Response, error) {
	row := db.conn.QueryRowContext(ctx, "SELECT "+responseColumns+" FROM responses WHERE id = $1", id)
	response, err := scanResponse(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get response: %w", err)
	}
	return response, nil
}

// FindResponses returns every response of the given surveys, newest first
func (db *DB) FindResponses(ctx context.Context, surveyIDs []string) ([]models.Response, error) {
	if len(surveyIDs) == 0 {
		return nil, nil
	}

	args := make([]any, len(surveyIDs))
	for i, id := range surveyIDs {
		args[i] = id
	}

	rows, err := db.conn.QueryContext(ctx,
		"SELECT "+responseColumns+" FROM responses WHERE survey_id IN ("+placeholders(1, len(args))+
			") ORDER BY created_at DESC, id", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query responses: %w", err)
	}
	defer rows.Close()

	var responses []models.Response
	for rows.Next() {
		response, err := scanResponse(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan response: %w", err)
		}
		responses = append(responses, *response)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return responses, nil
}

// SaveAnalysis stores the analysis of one response field
func (db *DB) SaveAnalysis(ctx context.Context, responseID, fieldKey string, result models.AnalysisResult) (*models.StoredAnalysis, error) {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal analysis: %w", err)
	}

	stored := &models.StoredAnalysis{
		ID:         uuid.New().String(),
		ResponseID: responseID,
		FieldKey:   fieldKey,
		Result:     result,
		CreatedAt:  time.Now().UTC(),
	}

	// a rerun of the same field replaces the earlier row and keeps its id
	err = db.conn.QueryRowContext(ctx, `
		INSERT INTO analyses (id, response_id, field_key, sentiment_score, sentiment_label, priority, result, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (response_id, field_key) DO UPDATE SET
			sentiment_score = excluded.sentiment_score,
			sentiment_label = excluded.sentiment_label,
			priority = excluded.priority,
			result = excluded.result,
			created_at = excluded.created_at
		RETURNING id
	`, stored.ID, responseID, fieldKey, result.Sentiment.Score, string(result.Sentiment.Label),
		string(result.Priority), string(resultJSON), stored.CreatedAt).Scan(&stored.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to save analysis: %w", err)
	}
	return stored, nil
}

// ListAnalyses returns the stored analyses of a response ordered by field key
func (db *DB) ListAnalyses(ctx context.Context, responseID string) ([]models.StoredAnalysis, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, response_id, field_key, result, created_at
		FROM analyses
		WHERE response_id = $1
		ORDER BY field_key, created_at
	`, responseID)
	if err != nil {
		return nil, fmt.Errorf("failed to query analyses: %w", err)
	}
	defer rows.Close()

	var analyses []models.StoredAnalysis
	for rows.Next() {
		var (
			a          models.StoredAnalysis
			resultJSON string
		)
		if err := rows.Scan(&a.ID, &a.ResponseID, &a.FieldKey, &resultJSON, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan analysis: %w", err)
		}
		if err := json.Unmarshal([]byte(resultJSON), &a.Result); err != nil {
			return nil, fmt.Errorf("failed to unmarshal analysis: %w", err)
		}
		analyses = append(analyses, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return analyses, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSurvey(s scanner) (*models.Survey, error) {
	var survey models.Survey
	if err := s.Scan(&survey.ID, &survey.Title, &survey.Status, &survey.ProjectID, &survey.ClientID,
		&survey.OrganizationID, &survey.CreatedAt, &survey.UpdatedAt); err != nil {
		return nil, err
	}
	return &survey, nil
}

func scanResponse(s scanner) (*models.Response, error) {
	var (
		response models.Response
		data     string
	)
	if err := s.Scan(&response.ID, &response.SurveyID, &data, &response.CompletionRate, &response.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(data), &response.ResponseData); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response data: %w", err)
	}
	return &response, nil
}
