package database

import (
	"context"

	"github.com/benvon/tasksync/internal/conflict"
	"github.com/benvon/tasksync/internal/models"
	"github.com/benvon/tasksync/internal/syncerr"
	"github.com/benvon/tasksync/internal/tagmap"
)

// TaskStoreInterface defines the persistence surface the orchestrator
// needs for the canonical task store. The interface enables in-memory
// implementations in tests.
type TaskStoreInterface interface {
	Upsert(ctx context.Context, projectID, tag string, task *models.Task) error
	UpsertBatch(ctx context.Context, projectID, tag string, tasks []models.Task) BatchResult
	Delete(ctx context.Context, projectID, tag, taskID string) error
	DeleteBatch(ctx context.Context, projectID, tag string, taskIDs []string) BatchResult
	GetByID(ctx context.Context, projectID, tag, taskID string) (*models.Task, error)
	ListByTag(ctx context.Context, projectID, tag string) ([]models.Task, error)
}

// SessionStoreInterface defines session audit persistence
type SessionStoreInterface interface {
	Create(ctx context.Context, session *models.SyncSession) error
	Finish(ctx context.Context, session *models.SyncSession) error
}

// Ensure concrete types implement the interfaces, including the
// collaborator interfaces declared by the packages that consume them
var (
	_ TaskStoreInterface    = (*TaskRepository)(nil)
	_ SessionStoreInterface = (*SessionRepository)(nil)
	_ conflict.Store        = (*ConflictRepository)(nil)
	_ syncerr.Store         = (*SyncErrorRepository)(nil)
	_ tagmap.ConfigSource   = (*TagConfigRepository)(nil)
	_ tagmap.MappingStore   = (*TagConfigRepository)(nil)
)
