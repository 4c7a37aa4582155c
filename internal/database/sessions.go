package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/benvon/tasksync/internal/models"
)

// SessionRepository handles sync session audit records
type SessionRepository struct {
	db *DB
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(db *DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create persists a newly started session
func (r *SessionRepository) Create(ctx context.Context, session *models.SyncSession) error {
	options, err := json.Marshal(session.Options)
	if err != nil {
		return fmt.Errorf("failed to marshal session options: %w", err)
	}

	query := `
		INSERT INTO sync_sessions (id, project_id, branch, tag, options, status, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = r.db.ExecContext(ctx, query,
		session.ID,
		session.ProjectID,
		session.Branch,
		session.Tag,
		options,
		session.Status,
		session.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// Finish writes a session's terminal state and counters. Sessions are
// immutable after this; a second call on the same id is a caller bug and
// surfaces as zero rows updated.
func (r *SessionRepository) Finish(ctx context.Context, session *models.SyncSession) error {
	errs, err := json.Marshal(session.Errors)
	if err != nil {
		return fmt.Errorf("failed to marshal session errors: %w", err)
	}

	query := `
		UPDATE sync_sessions
		SET status = $2, tasks_added = $3, tasks_updated = $4, tasks_removed = $5,
			conflicts_resolved = $6, errors = $7, completed_at = $8
		WHERE id = $1 AND status = 'running'
	`
	result, err := r.db.ExecContext(ctx, query,
		session.ID,
		session.Status,
		session.TasksAdded,
		session.TasksUpdated,
		session.TasksRemoved,
		session.ConflictsResolved,
		errs,
		session.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to finish session: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("session %s is not running", session.ID)
	}
	return nil
}

// GetByID retrieves a session, or nil when absent
func (r *SessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.SyncSession, error) {
	query := `
		SELECT id, project_id, branch, tag, options, status, tasks_added, tasks_updated,
			tasks_removed, conflicts_resolved, errors, started_at, completed_at
		FROM sync_sessions
		WHERE id = $1
	`
	session, err := scanSession(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return session, err
}

// ListRecent returns the most recent sessions for a project
func (r *SessionRepository) ListRecent(ctx context.Context, projectID string, limit int) ([]*models.SyncSession, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `
		SELECT id, project_id, branch, tag, options, status, tasks_added, tasks_updated,
			tasks_removed, conflicts_resolved, errors, started_at, completed_at
		FROM sync_sessions
		WHERE project_id = $1
		ORDER BY started_at DESC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, projectID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*models.SyncSession
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}
	return sessions, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*models.SyncSession, error) {
	session := &models.SyncSession{}
	var options, errs []byte
	var completedAt sql.NullTime

	err := row.Scan(
		&session.ID,
		&session.ProjectID,
		&session.Branch,
		&session.Tag,
		&options,
		&session.Status,
		&session.TasksAdded,
		&session.TasksUpdated,
		&session.TasksRemoved,
		&session.ConflictsResolved,
		&errs,
		&session.StartedAt,
		&completedAt,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan session: %w", err)
	}

	if err := json.Unmarshal(options, &session.Options); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session options: %w", err)
	}
	if len(errs) > 0 {
		if err := json.Unmarshal(errs, &session.Errors); err != nil {
			return nil, fmt.Errorf("failed to unmarshal session errors: %w", err)
		}
	}
	if completedAt.Valid {
		session.CompletedAt = &completedAt.Time
	}
	return session, nil
}
