package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/benvon/tasksync/internal/models"
)

// ConflictRepository backs the conflict pending queue and the append-only
// resolution history.
type ConflictRepository struct {
	db *DB
}

// NewConflictRepository creates a new conflict repository
func NewConflictRepository(db *DB) *ConflictRepository {
	return &ConflictRepository{db: db}
}

// SavePending puts a detected conflict on the pending queue. Re-detected
// conflicts arrive under their original id and replace the stored snapshot.
func (r *ConflictRepository) SavePending(ctx context.Context, item *models.ConflictItem) error {
	payload, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to marshal conflict %s: %w", item.ID, err)
	}

	query := `
		INSERT INTO conflicts_pending (id, project_id, task_id, conflict_type, payload, detected_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			conflict_type = EXCLUDED.conflict_type,
			payload = EXCLUDED.payload,
			detected_at = EXCLUDED.detected_at
	`
	_, err = r.db.ExecContext(ctx, query,
		item.ID, item.ProjectID, item.TaskID, item.Type, payload, item.DetectedAt)
	if err != nil {
		return fmt.Errorf("failed to save conflict %s: %w", item.ID, err)
	}
	return nil
}

// GetPending retrieves one pending conflict, or nil when absent
func (r *ConflictRepository) GetPending(ctx context.Context, id uuid.UUID) (*models.ConflictItem, error) {
	query := `SELECT payload FROM conflicts_pending WHERE id = $1`

	var payload []byte
	err := r.db.QueryRowContext(ctx, query, id).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conflict %s: %w", id, err)
	}

	item := &models.ConflictItem{}
	if err := json.Unmarshal(payload, item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal conflict %s: %w", id, err)
	}
	return item, nil
}

// ListPending returns every pending conflict for a project
func (r *ConflictRepository) ListPending(ctx context.Context, projectID string) ([]*models.ConflictItem, error) {
	query := `SELECT payload FROM conflicts_pending WHERE project_id = $1 ORDER BY detected_at`

	rows, err := r.db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending conflicts: %w", err)
	}
	defer rows.Close()

	var items []*models.ConflictItem
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan conflict: %w", err)
		}
		item := &models.ConflictItem{}
		if err := json.Unmarshal(payload, item); err != nil {
			return nil, fmt.Errorf("failed to unmarshal conflict: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating conflicts: %w", err)
	}
	return items, nil
}

// MoveToHistory removes the item from the pending queue and appends it to
// the resolution history in one transaction.
func (r *ConflictRepository) MoveToHistory(ctx context.Context, item *models.ConflictItem) error {
	if item.ResolvedAt == nil {
		return fmt.Errorf("conflict %s has no resolution timestamp", item.ID)
	}

	payload, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to marshal conflict %s: %w", item.ID, err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			_ = rbErr
		}
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM conflicts_pending WHERE id = $1`, item.ID); err != nil {
		return fmt.Errorf("failed to dequeue conflict %s: %w", item.ID, err)
	}

	query := `
		INSERT INTO conflicts_history (id, project_id, task_id, conflict_type, payload, detected_at, resolved_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = tx.ExecContext(ctx, query,
		item.ID, item.ProjectID, item.TaskID, item.Type, payload, item.DetectedAt, *item.ResolvedAt)
	if err != nil {
		return fmt.Errorf("failed to append conflict history %s: %w", item.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit conflict move: %w", err)
	}
	return nil
}

// PruneHistory deletes resolution history entries resolved before olderThan
func (r *ConflictRepository) PruneHistory(ctx context.Context, olderThan time.Time) (int, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM conflicts_history WHERE resolved_at < $1`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to prune conflict history: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(rows), nil
}

// ListHistory returns resolved conflicts for a project, newest first
func (r *ConflictRepository) ListHistory(ctx context.Context, projectID string, limit int) ([]*models.ConflictItem, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT payload FROM conflicts_history
		WHERE project_id = $1
		ORDER BY resolved_at DESC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, projectID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query conflict history: %w", err)
	}
	defer rows.Close()

	var items []*models.ConflictItem
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan conflict: %w", err)
		}
		item := &models.ConflictItem{}
		if err := json.Unmarshal(payload, item); err != nil {
			return nil, fmt.Errorf("failed to unmarshal conflict: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating conflict history: %w", err)
	}
	return items, nil
}
