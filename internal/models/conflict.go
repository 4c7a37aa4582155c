package models

import (
	"time"

	"github.com/google/uuid"
)

// ConflictType classifies the kind of divergence detected between the
// locally stored and remotely fetched versions of a task.
type ConflictType string

const (
	// ConflictVersionMismatch means both sides carry disagreeing version
	// numbers and the records are not content-equivalent.
	ConflictVersionMismatch ConflictType = "VERSION_MISMATCH"
	// ConflictStatus means the status fields diverge through a known
	// conflicting transition (e.g. done vs in-progress).
	ConflictStatus ConflictType = "STATUS_CONFLICT"
	// ConflictDependency means the dependency sets differ in size or membership.
	ConflictDependency ConflictType = "DEPENDENCY_CONFLICT"
	// ConflictConcurrentEdit means content hashes differ without a more
	// specific classification.
	ConflictConcurrentEdit ConflictType = "CONCURRENT_EDIT"
	// ConflictDeleteEdit means a recently modified local task is absent
	// from the remote manifest.
	ConflictDeleteEdit ConflictType = "DELETE_EDIT"
)

// ResolutionStrategy selects how a conflict is resolved
type ResolutionStrategy string

const (
	ResolveAcceptLocal  ResolutionStrategy = "ACCEPT_LOCAL"
	ResolveAcceptRemote ResolutionStrategy = "ACCEPT_REMOTE"
	ResolveMergeFields  ResolutionStrategy = "MERGE_FIELDS"
	ResolveCustomMerge  ResolutionStrategy = "CUSTOM_MERGE"
	ResolveDefer        ResolutionStrategy = "DEFER"
)

// Resolution records how a conflict was settled
type Resolution struct {
	Strategy   ResolutionStrategy `json:"strategy"`
	Merged     *Task              `json:"merged,omitempty"`
	ResolvedBy string             `json:"resolved_by,omitempty"`
	Notes      string             `json:"notes,omitempty"`
}

// ConflictItem is a detected divergence between local and remote versions
// of the same task. Items start on the pending queue and move to an
// append-only history once resolved; history is prunable by age.
type ConflictItem struct {
	ID         uuid.UUID    `json:"id"`
	ProjectID  string       `json:"project_id"`
	TaskID     string       `json:"task_id"`
	Type       ConflictType `json:"type"`
	Local      *Task        `json:"local,omitempty"`
	Remote     *Task        `json:"remote,omitempty"`
	Base       *Task        `json:"base,omitempty"`
	DetectedAt time.Time    `json:"detected_at"`
	Resolution *Resolution  `json:"resolution,omitempty"`
	ResolvedAt *time.Time   `json:"resolved_at,omitempty"`
}

// Resolved reports whether the item has been moved out of the pending queue
func (c *ConflictItem) Resolved() bool {
	return c.ResolvedAt != nil
}

// NewConflictItem creates a pending conflict for the given task
func NewConflictItem(projectID, taskID string, typ ConflictType, local, remote *Task) *ConflictItem {
	return &ConflictItem{
		ID:         uuid.New(),
		ProjectID:  projectID,
		TaskID:     taskID,
		Type:       typ,
		Local:      local,
		Remote:     remote,
		DetectedAt: time.Now().UTC(),
	}
}
