package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // postgres driver
)

// DB wraps the sql connection pool
type DB struct {
	*sql.DB
}

// New connects to postgres and verifies the connection
func New(databaseURL string) (*DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			_ = closeErr
		}
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &DB{DB: db}, nil
}

// EnsureSchema creates the sync engine tables when missing. Production
// deployments run proper migrations; this keeps dev and test setups cheap.
func (db *DB) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS tasks (
			project_id TEXT NOT NULL,
			tag TEXT NOT NULL,
			task_id TEXT NOT NULL,
			payload JSONB NOT NULL,
			content_hash TEXT NOT NULL,
			version INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (project_id, tag, task_id)
		)`,
		`CREATE TABLE IF NOT EXISTS sync_sessions (
			id UUID PRIMARY KEY,
			project_id TEXT NOT NULL,
			branch TEXT NOT NULL,
			tag TEXT NOT NULL,
			options JSONB NOT NULL,
			status TEXT NOT NULL,
			tasks_added INTEGER NOT NULL DEFAULT 0,
			tasks_updated INTEGER NOT NULL DEFAULT 0,
			tasks_removed INTEGER NOT NULL DEFAULT 0,
			conflicts_resolved INTEGER NOT NULL DEFAULT 0,
			errors JSONB,
			started_at TIMESTAMPTZ NOT NULL,
			completed_at TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS conflicts_pending (
			id UUID PRIMARY KEY,
			project_id TEXT NOT NULL,
			task_id TEXT NOT NULL,
			conflict_type TEXT NOT NULL,
			payload JSONB NOT NULL,
			detected_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS conflicts_history (
			id UUID PRIMARY KEY,
			project_id TEXT NOT NULL,
			task_id TEXT NOT NULL,
			conflict_type TEXT NOT NULL,
			payload JSONB NOT NULL,
			detected_at TIMESTAMPTZ NOT NULL,
			resolved_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS sync_errors (
			id BIGSERIAL PRIMARY KEY,
			code TEXT NOT NULL,
			severity TEXT NOT NULL,
			retryable BOOLEAN NOT NULL,
			message TEXT NOT NULL,
			project_id TEXT,
			branch TEXT,
			operation TEXT,
			occurred_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS tag_configs (
			project_id TEXT PRIMARY KEY,
			config JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS branch_mappings (
			project_id TEXT NOT NULL,
			branch TEXT NOT NULL,
			tag TEXT NOT NULL,
			is_default BOOLEAN NOT NULL DEFAULT FALSE,
			last_sync TIMESTAMPTZ,
			metadata JSONB,
			PRIMARY KEY (project_id, branch)
		)`,
	}

	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure schema: %w", err)
		}
	}
	return nil
}
