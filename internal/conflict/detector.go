// Package conflict detects and resolves divergence between locally stored
// and remotely fetched versions of the same task.
package conflict

import (
	"time"

	"github.com/benvon/tasksync/internal/models"
)

// recentEditWindow protects recent local work from silent remote deletion:
// a local task modified within this window that is absent remotely raises
// a DELETE_EDIT conflict instead of being dropped.
const recentEditWindow = time.Hour

// conflictingTransitions are (local, remote) status pairs that indicate
// contradictory work rather than normal progress.
var conflictingTransitions = map[[2]models.TaskStatus]struct{}{
	{models.TaskStatusDone, models.TaskStatusInProgress}:       {},
	{models.TaskStatusInProgress, models.TaskStatusDone}:       {},
	{models.TaskStatusDone, models.TaskStatusPending}:          {},
	{models.TaskStatusPending, models.TaskStatusDone}:          {},
	{models.TaskStatusCancelled, models.TaskStatusInProgress}:  {},
	{models.TaskStatusInProgress, models.TaskStatusCancelled}:  {},
	{models.TaskStatusCancelled, models.TaskStatusDone}:        {},
	{models.TaskStatusDone, models.TaskStatusCancelled}:        {},
}

// Detect compares the local and remote task sets and returns the conflicts
// found. Local tasks absent remotely surface as DELETE_EDIT only when
// modified within the last hour; older ones are plain deletions handled by
// the diff, not conflicts.
func Detect(projectID string, local, remote []models.Task) []*models.ConflictItem {
	remoteByID := make(map[string]*models.Task, len(remote))
	for i := range remote {
		remoteByID[remote[i].ID] = &remote[i]
	}

	var conflicts []*models.ConflictItem
	now := time.Now().UTC()

	for i := range local {
		loc := &local[i]
		rem, exists := remoteByID[loc.ID]
		if !exists {
			if !loc.UpdatedAt.IsZero() && now.Sub(loc.UpdatedAt) < recentEditWindow {
				conflicts = append(conflicts, models.NewConflictItem(
					projectID, loc.ID, models.ConflictDeleteEdit, loc.Clone(), nil))
			}
			continue
		}

		if typ, found := classify(loc, rem); found {
			conflicts = append(conflicts, models.NewConflictItem(
				projectID, loc.ID, typ, loc.Clone(), rem.Clone()))
		}
	}

	return conflicts
}

// classify determines the conflict type for a task present on both sides,
// or reports none when the records agree.
func classify(local, remote *models.Task) (models.ConflictType, bool) {
	// Disagreeing version numbers only count when the records actually
	// diverge in content; equal content with skewed versions is bookkeeping.
	if local.Version > 0 && remote.Version > 0 && local.Version != remote.Version &&
		!contentEquivalent(local, remote) {
		return models.ConflictVersionMismatch, true
	}

	if local.ContentHash() == remote.ContentHash() {
		return "", false
	}

	if local.Status != remote.Status {
		if _, bad := conflictingTransitions[[2]models.TaskStatus{local.Status, remote.Status}]; bad {
			return models.ConflictStatus, true
		}
	}
	if !local.DependenciesEqual(remote) {
		return models.ConflictDependency, true
	}
	return models.ConflictConcurrentEdit, true
}

// contentEquivalent is the coarse comparison used for version-mismatch
// screening: title, description, status and dependency set.
func contentEquivalent(a, b *models.Task) bool {
	return a.Title == b.Title &&
		a.Description == b.Description &&
		a.Status == b.Status &&
		a.DependenciesEqual(b)
}
