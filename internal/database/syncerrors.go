package database

import (
	"context"
	"fmt"
	"time"

	"github.com/benvon/tasksync/internal/syncerr"
)

// SyncErrorRepository persists classified errors for audit
type SyncErrorRepository struct {
	db *DB
}

// NewSyncErrorRepository creates a new sync error repository
func NewSyncErrorRepository(db *DB) *SyncErrorRepository {
	return &SyncErrorRepository{db: db}
}

// SaveError appends one classified error to the audit log
func (r *SyncErrorRepository) SaveError(ctx context.Context, serr *syncerr.SyncError) error {
	query := `
		INSERT INTO sync_errors (code, severity, retryable, message, project_id, branch, operation, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.ExecContext(ctx, query,
		serr.Code,
		serr.Severity,
		serr.Retryable,
		serr.Error(),
		serr.Context.ProjectID,
		serr.Context.Branch,
		serr.Context.Operation,
		serr.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save sync error: %w", err)
	}
	return nil
}

// CountsByCode aggregates persisted errors by code since the cutoff
func (r *SyncErrorRepository) CountsByCode(ctx context.Context, since time.Time) (map[string]int, error) {
	query := `
		SELECT code, COUNT(*) FROM sync_errors
		WHERE occurred_at >= $1
		GROUP BY code
	`
	rows, err := r.db.QueryContext(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate sync errors: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var code string
		var count int
		if err := rows.Scan(&code, &count); err != nil {
			return nil, fmt.Errorf("failed to scan error count: %w", err)
		}
		counts[code] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating error counts: %w", err)
	}
	return counts, nil
}

// Prune deletes audit entries older than the cutoff
func (r *SyncErrorRepository) Prune(ctx context.Context, olderThan time.Time) (int, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM sync_errors WHERE occurred_at < $1`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to prune sync errors: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(rows), nil
}
