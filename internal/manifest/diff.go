package manifest

import (
	"github.com/benvon/tasksync/internal/models"
)

// ConflictResolutionMode indicates how a diff's changes should be applied
type ConflictResolutionMode string

const (
	// ResolutionManual means the change set is large enough to need review
	ResolutionManual ConflictResolutionMode = "manual"
	// ResolutionAuto means a resolution strategy covers the changes
	ResolutionAuto ConflictResolutionMode = "auto"
	// ResolutionNone means no resolution pass is needed
	ResolutionNone ConflictResolutionMode = "none"
)

// manualReviewThreshold is the change count above which an unstrategized
// diff is flagged for manual resolution.
const manualReviewThreshold = 10

// DiffOptions controls diff computation
type DiffOptions struct {
	// ConflictStrategy is the caller's resolution strategy, if any
	// ("timestamp", "remote-wins", ...). Empty means none chosen.
	ConflictStrategy string
	// DeepCompare includes subtask content when deciding modification
	DeepCompare bool
}

// DiffMetadata summarizes a computed diff
type DiffMetadata struct {
	TotalChanges int `json:"total_changes"`
	// RequiresFullSync is set when the change volume exceeds half the
	// current set, which usually means a truncated or corrupt source
	// rather than a genuine near-total rewrite.
	RequiresFullSync   bool                   `json:"requires_full_sync"`
	ConflictResolution ConflictResolutionMode `json:"conflict_resolution"`
}

// DiffResult is the structural difference between two task sets, keyed by
// task id. Added and Deleted are disjoint; every Modified id exists on
// both sides.
type DiffResult struct {
	Added    []models.Task `json:"added"`
	Modified []models.Task `json:"modified"`
	Deleted  []models.Task `json:"deleted"`
	Metadata DiffMetadata  `json:"metadata"`
}

// Diff computes the changes needed to move the current task set to the
// incoming one. Modified entries carry the incoming version of the task.
func Diff(current, incoming []models.Task, opts DiffOptions) *DiffResult {
	currentByID := make(map[string]*models.Task, len(current))
	for i := range current {
		currentByID[current[i].ID] = &current[i]
	}
	incomingByID := make(map[string]*models.Task, len(incoming))
	for i := range incoming {
		incomingByID[incoming[i].ID] = &incoming[i]
	}

	result := &DiffResult{}

	for i := range incoming {
		cur, exists := currentByID[incoming[i].ID]
		if !exists {
			result.Added = append(result.Added, incoming[i])
			continue
		}
		if taskChanged(cur, &incoming[i], opts.DeepCompare) {
			result.Modified = append(result.Modified, incoming[i])
		}
	}

	for i := range current {
		if _, exists := incomingByID[current[i].ID]; !exists {
			result.Deleted = append(result.Deleted, current[i])
		}
	}

	total := len(result.Added) + len(result.Modified) + len(result.Deleted)
	result.Metadata.TotalChanges = total
	if len(current) > 0 && total*2 > len(current) {
		result.Metadata.RequiresFullSync = true
	}
	result.Metadata.ConflictResolution = resolutionMode(opts.ConflictStrategy, total)

	return result
}

func resolutionMode(strategy string, totalChanges int) ConflictResolutionMode {
	switch strategy {
	case "":
		if totalChanges > manualReviewThreshold {
			return ResolutionManual
		}
		return ResolutionNone
	case "timestamp", "remote-wins":
		return ResolutionAuto
	default:
		return ResolutionNone
	}
}

// taskChanged reports whether any tracked field differs between the two
// versions of a task. Dependency comparison is order-insensitive.
func taskChanged(current, incoming *models.Task, deepCompare bool) bool {
	if current.Title != incoming.Title ||
		current.Description != incoming.Description ||
		current.Status != incoming.Status ||
		current.Priority != incoming.Priority ||
		current.Details != incoming.Details ||
		current.TestStrategy != incoming.TestStrategy {
		return true
	}
	if !complexityEqual(current.Complexity, incoming.Complexity) {
		return true
	}
	if !current.DependenciesEqual(incoming) {
		return true
	}
	if deepCompare && !subtasksEqual(current.Subtasks, incoming.Subtasks) {
		return true
	}
	return false
}

func complexityEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func subtasksEqual(a, b []models.Task) bool {
	if len(a) != len(b) {
		return false
	}
	byID := make(map[string]*models.Task, len(a))
	for i := range a {
		byID[a[i].ID] = &a[i]
	}
	for i := range b {
		other, ok := byID[b[i].ID]
		if !ok {
			return false
		}
		if taskChanged(other, &b[i], true) {
			return false
		}
	}
	return true
}
