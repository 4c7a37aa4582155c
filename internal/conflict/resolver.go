package conflict

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/benvon/tasksync/internal/models"
)

var (
	// ErrConflictNotFound indicates no pending conflict exists for the id
	ErrConflictNotFound = errors.New("conflict not found")
	// ErrCustomMergeRequired indicates CUSTOM_MERGE was requested without a record
	ErrCustomMergeRequired = errors.New("custom merge requires a merged task")
	// ErrUnknownStrategy indicates an unrecognized resolution strategy
	ErrUnknownStrategy = errors.New("unknown resolution strategy")
)

// statusPriority ranks statuses for auto-merge. Higher wins, except that
// in-progress on either side always takes the merge.
var statusPriority = map[models.TaskStatus]int{
	models.TaskStatusDone:       5,
	models.TaskStatusInProgress: 4,
	models.TaskStatusReview:     3,
	models.TaskStatusPending:    2,
	models.TaskStatusBlocked:    1,
	models.TaskStatusCancelled:  0,
}

// Store is the persistence surface the resolver needs: a pending queue
// and an append-only, age-prunable resolution history.
type Store interface {
	GetPending(ctx context.Context, id uuid.UUID) (*models.ConflictItem, error)
	SavePending(ctx context.Context, item *models.ConflictItem) error
	ListPending(ctx context.Context, projectID string) ([]*models.ConflictItem, error)
	MoveToHistory(ctx context.Context, item *models.ConflictItem) error
	PruneHistory(ctx context.Context, olderThan time.Time) (int, error)
}

// Resolver applies resolution strategies to pending conflicts
type Resolver struct {
	store  Store
	logger *zap.Logger
}

// NewResolver creates a resolver over the given conflict store
func NewResolver(store Store, logger *zap.Logger) *Resolver {
	return &Resolver{store: store, logger: logger}
}

// Record places newly detected conflicts on the pending queue. A task
// already pending for the project keeps its original conflict id and has
// its snapshot refreshed in place, so repeated detections of the same
// divergence never pile up duplicate queue entries.
func (r *Resolver) Record(ctx context.Context, items []*models.ConflictItem) error {
	if len(items) == 0 {
		return nil
	}

	existing, err := r.store.ListPending(ctx, items[0].ProjectID)
	if err != nil {
		return fmt.Errorf("failed to list pending conflicts: %w", err)
	}
	pendingByTask := make(map[string]uuid.UUID, len(existing))
	for _, p := range existing {
		pendingByTask[p.TaskID] = p.ID
	}

	for _, item := range items {
		if id, ok := pendingByTask[item.TaskID]; ok {
			item.ID = id
		}
		if err := r.store.SavePending(ctx, item); err != nil {
			return fmt.Errorf("failed to save conflict %s: %w", item.ID, err)
		}
	}
	return nil
}

// Pending returns the unresolved conflicts for a project
func (r *Resolver) Pending(ctx context.Context, projectID string) ([]*models.ConflictItem, error) {
	return r.store.ListPending(ctx, projectID)
}

// Resolve settles a pending conflict with the given strategy. CUSTOM_MERGE
// requires a caller-supplied record; DEFER moves the item to history with
// a note and no resolved record. The resolved item is timestamped,
// attributed and moved into history.
func (r *Resolver) Resolve(ctx context.Context, id uuid.UUID, strategy models.ResolutionStrategy, custom *models.Task, resolvedBy string) (*models.ConflictItem, error) {
	item, err := r.store.GetPending(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load conflict %s: %w", id, err)
	}
	if item == nil {
		return nil, ErrConflictNotFound
	}

	resolution := &models.Resolution{Strategy: strategy, ResolvedBy: resolvedBy}

	switch strategy {
	case models.ResolveAcceptLocal:
		resolution.Merged = item.Local
	case models.ResolveAcceptRemote:
		resolution.Merged = item.Remote
	case models.ResolveMergeFields:
		resolution.Merged = AutoMerge(item.Local, item.Remote)
	case models.ResolveCustomMerge:
		if custom == nil {
			return nil, ErrCustomMergeRequired
		}
		resolution.Merged = custom
	case models.ResolveDefer:
		// Deferred conflicts produce no resolved record. The detector does
		// not consult history, so a still-diverged task is re-detected on
		// the next sync pass.
		resolution.Notes = "resolution deferred"
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownStrategy, strategy)
	}

	now := time.Now().UTC()
	item.Resolution = resolution
	item.ResolvedAt = &now

	if err := r.store.MoveToHistory(ctx, item); err != nil {
		return nil, fmt.Errorf("failed to move conflict %s to history: %w", id, err)
	}

	r.logger.Info("conflict resolved",
		zap.String("conflict_id", id.String()),
		zap.String("task_id", item.TaskID),
		zap.String("strategy", string(strategy)),
		zap.String("resolved_by", resolvedBy),
	)

	return item, nil
}

// PruneHistory removes resolution history entries older than the retention period
func (r *Resolver) PruneHistory(ctx context.Context, retention time.Duration) (int, error) {
	return r.store.PruneHistory(ctx, time.Now().UTC().Add(-retention))
}

// AutoMerge combines two versions of a task deterministically. No
// independent timestamp signal is available at this layer, so scalar
// fields prefer the remote value when the sides differ. Dependencies are
// unioned so no edge is dropped, and subtasks merge by id with remote
// precedence. The merged version is max(local, remote)+1.
func AutoMerge(local, remote *models.Task) *models.Task {
	if local == nil && remote == nil {
		return nil
	}
	if local == nil {
		return remote.Clone()
	}
	if remote == nil {
		return local.Clone()
	}

	merged := local.Clone()

	if remote.Title != local.Title {
		merged.Title = remote.Title
	}
	if remote.Description != local.Description {
		merged.Description = remote.Description
	}
	if remote.Priority != local.Priority {
		merged.Priority = remote.Priority
	}
	if remote.Details != local.Details {
		merged.Details = remote.Details
	}
	if remote.TestStrategy != local.TestStrategy {
		merged.TestStrategy = remote.TestStrategy
	}
	if remote.Complexity != nil {
		c := *remote.Complexity
		merged.Complexity = &c
	}

	merged.Status = mergeStatus(local.Status, remote.Status)
	merged.Dependencies = unionDependencies(local.Dependencies, remote.Dependencies)
	merged.Subtasks = mergeSubtasks(local.Subtasks, remote.Subtasks)

	merged.Version = local.Version
	if remote.Version > merged.Version {
		merged.Version = remote.Version
	}
	merged.Version++

	return merged
}

// mergeStatus picks the merged status from the priority table, with the
// in-progress override: active work on either side keeps the task active.
func mergeStatus(local, remote models.TaskStatus) models.TaskStatus {
	if local == models.TaskStatusInProgress || remote == models.TaskStatusInProgress {
		return models.TaskStatusInProgress
	}
	if statusPriority[remote] > statusPriority[local] {
		return remote
	}
	return local
}

// unionDependencies merges both dependency sets, preserving first-seen
// order. Union rather than intersection: dropping an edge is worse than
// keeping a stale one.
func unionDependencies(local, remote []string) []string {
	seen := make(map[string]struct{}, len(local)+len(remote))
	out := make([]string, 0, len(local)+len(remote))
	for _, list := range [][]string{local, remote} {
		for _, id := range list {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}

// mergeSubtasks merges by id with remote taking precedence; local-only
// subtasks are appended after the remote ordering.
func mergeSubtasks(local, remote []models.Task) []models.Task {
	remoteIDs := make(map[string]struct{}, len(remote))
	out := make([]models.Task, 0, len(local)+len(remote))
	for i := range remote {
		remoteIDs[remote[i].ID] = struct{}{}
		out = append(out, *remote[i].Clone())
	}
	for i := range local {
		if _, ok := remoteIDs[local[i].ID]; !ok {
			out = append(out, *local[i].Clone())
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
