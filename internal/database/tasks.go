package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/benvon/tasksync/internal/models"
)

// TaskRepository handles canonical task store operations, keyed by
// (project, tag, task id).
type TaskRepository struct {
	db *DB
}

// NewTaskRepository creates a new task repository
func NewTaskRepository(db *DB) *TaskRepository {
	return &TaskRepository{db: db}
}

// Upsert inserts or updates a single task. The stored version never
// decreases: an incoming lower version keeps the stored one and bumps it.
func (r *TaskRepository) Upsert(ctx context.Context, projectID, tag string, task *models.Task) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task %s: %w", task.ID, err)
	}

	query := `
		INSERT INTO tasks (project_id, tag, task_id, payload, content_hash, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (project_id, tag, task_id) DO UPDATE SET
			payload = EXCLUDED.payload,
			content_hash = EXCLUDED.content_hash,
			version = GREATEST(tasks.version, EXCLUDED.version),
			updated_at = EXCLUDED.updated_at
	`

	now := time.Now().UTC()
	createdAt := task.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	_, err = r.db.ExecContext(ctx, query,
		projectID,
		tag,
		task.ID,
		payload,
		task.ContentHash(),
		task.Version,
		createdAt,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert task %s: %w", task.ID, err)
	}
	return nil
}

// BatchResult reports the outcome of a batched write. Item failures are
// isolated: one failed record does not lose progress on the rest.
type BatchResult struct {
	Applied int
	Errors  []error
}

// UpsertBatch writes a set of tasks, isolating per-item failures
func (r *TaskRepository) UpsertBatch(ctx context.Context, projectID, tag string, tasks []models.Task) BatchResult {
	var result BatchResult
	for i := range tasks {
		if err := r.Upsert(ctx, projectID, tag, &tasks[i]); err != nil {
			result.Errors = append(result.Errors, err)
			continue
		}
		result.Applied++
	}
	return result
}

// Delete removes a single task
func (r *TaskRepository) Delete(ctx context.Context, projectID, tag, taskID string) error {
	query := `DELETE FROM tasks WHERE project_id = $1 AND tag = $2 AND task_id = $3`
	if _, err := r.db.ExecContext(ctx, query, projectID, tag, taskID); err != nil {
		return fmt.Errorf("failed to delete task %s: %w", taskID, err)
	}
	return nil
}

// DeleteBatch removes a set of tasks, isolating per-item failures
func (r *TaskRepository) DeleteBatch(ctx context.Context, projectID, tag string, taskIDs []string) BatchResult {
	var result BatchResult
	for _, id := range taskIDs {
		if err := r.Delete(ctx, projectID, tag, id); err != nil {
			result.Errors = append(result.Errors, err)
			continue
		}
		result.Applied++
	}
	return result
}

// GetByID retrieves one task, or nil when absent
func (r *TaskRepository) GetByID(ctx context.Context, projectID, tag, taskID string) (*models.Task, error) {
	query := `SELECT payload FROM tasks WHERE project_id = $1 AND tag = $2 AND task_id = $3`

	var payload []byte
	err := r.db.QueryRowContext(ctx, query, projectID, tag, taskID).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task %s: %w", taskID, err)
	}

	task := &models.Task{}
	if err := json.Unmarshal(payload, task); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task %s: %w", taskID, err)
	}
	return task, nil
}

// ListByTag retrieves the stored task set for (project, tag)
func (r *TaskRepository) ListByTag(ctx context.Context, projectID, tag string) ([]models.Task, error) {
	query := `
		SELECT payload FROM tasks
		WHERE project_id = $1 AND tag = $2
		ORDER BY task_id
	`

	rows, err := r.db.QueryContext(ctx, query, projectID, tag)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []models.Task
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		var task models.Task
		if err := json.Unmarshal(payload, &task); err != nil {
			return nil, fmt.Errorf("failed to unmarshal task: %w", err)
		}
		tasks = append(tasks, task)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}
	return tasks, nil
}

// CountByTag returns the stored task count for (project, tag)
func (r *TaskRepository) CountByTag(ctx context.Context, projectID, tag string) (int, error) {
	query := `SELECT COUNT(*) FROM tasks WHERE project_id = $1 AND tag = $2`
	var count int
	if err := r.db.QueryRowContext(ctx, query, projectID, tag).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count tasks: %w", err)
	}
	return count, nil
}
