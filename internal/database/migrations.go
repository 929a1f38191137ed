package database

import (
	"fmt"
	"log/slog"
	"time"
)

// Migration represents a database migration
type Migration struct {
	Version int
	Name    string
	SQL     string
}

// Column types are chosen to work on both PostgreSQL and SQLite. JSON documents
// are kept as TEXT.
const schemaVersionSQL = `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at TIMESTAMP NOT NULL
	);
`

// migrations contains all database migrations in order
var migrations = []Migration{
	{
		Version: 1,
		Name:    "create_surveys_table",
		SQL: `
			CREATE TABLE IF NOT EXISTS surveys (
				id TEXT PRIMARY KEY,
				title TEXT NOT NULL,
				status TEXT NOT NULL,
				project_id TEXT NOT NULL DEFAULT '',
				client_id TEXT NOT NULL DEFAULT '',
				organization_id TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP NOT NULL,
				updated_at TIMESTAMP NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_surveys_project_id ON surveys(project_id);
			CREATE INDEX IF NOT EXISTS idx_surveys_client_id ON surveys(client_id);
			CREATE INDEX IF NOT EXISTS idx_surveys_organization_id ON surveys(organization_id);
		`,
	},
	{
		Version: 2,
		Name:    "create_responses_table",
		SQL: `
			CREATE TABLE IF NOT EXISTS responses (
				id TEXT PRIMARY KEY,
				survey_id TEXT NOT NULL,
				response_data TEXT NOT NULL,
				completion_rate DOUBLE PRECISION NOT NULL DEFAULT 0,
				created_at TIMESTAMP NOT NULL,
				FOREIGN KEY (survey_id) REFERENCES surveys(id) ON DELETE CASCADE
			);
			CREATE INDEX IF NOT EXISTS idx_responses_survey_id ON responses(survey_id);
			CREATE INDEX IF NOT EXISTS idx_responses_created_at ON responses(created_at);
		`,
	},
	{
		Version: 3,
		Name:    "create_analyses_table",
		SQL: `
			CREATE TABLE IF NOT EXISTS analyses (
				id TEXT PRIMARY KEY,
				response_id TEXT NOT NULL,
				field_key TEXT NOT NULL,
				sentiment_score DOUBLE PRECISION NOT NULL,
				sentiment_label TEXT NOT NULL,
				priority TEXT NOT NULL,
				result TEXT NOT NULL,
				created_at TIMESTAMP NOT NULL,
				FOREIGN KEY (response_id) REFERENCES responses(id) ON DELETE CASCADE
			);
			CREATE INDEX IF NOT EXISTS idx_analyses_response_id ON analyses(response_id);
			CREATE INDEX IF NOT EXISTS idx_analyses_priority ON analyses(priority);
		`,
	},
	{
		Version: 4,
		Name:    "unique_analysis_per_field",
		SQL: `
			DELETE FROM analyses WHERE id NOT IN (
				SELECT MAX(id) FROM analyses GROUP BY response_id, field_key
			);
			CREATE UNIQUE INDEX IF NOT EXISTS idx_analyses_response_field ON analyses(response_id, field_key);
		`,
	},
}

// Migrate runs all pending migrations
func (db *DB) Migrate() error {
	if _, err := db.conn.Exec(schemaVersionSQL); err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}

	var currentVersion int
	err := db.conn.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get current version: %w", err)
	}
	slog.Info("checking schema version", "driver", db.driver, "current_version", currentVersion)

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, err := db.conn.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin transaction for migration %d: %w", migration.Version, err)
		}

		if _, err := tx.Exec(migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to run migration %d (%s): %w", migration.Version, migration.Name, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version, applied_at) VALUES ($1, $2)",
			migration.Version, time.Now().UTC()); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}

		slog.Info("applied migration", "version", migration.Version, "name", migration.Name)
	}

	return nil
}
