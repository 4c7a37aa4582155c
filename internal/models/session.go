package models

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus represents the state of a sync session
type SessionStatus string

const (
	SessionStatusRunning   SessionStatus = "running"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusFailed    SessionStatus = "failed"
)

// SyncSession records one execution of the sync pipeline for a repository
// branch. A session transitions exactly once from running to a terminal
// state and is immutable afterwards.
type SyncSession struct {
	ID                uuid.UUID      `json:"id"`
	ProjectID         string         `json:"project_id"`
	Branch            string         `json:"branch"`
	Tag               string         `json:"tag"`
	Options           SessionOptions `json:"options"`
	Status            SessionStatus  `json:"status"`
	TasksAdded        int            `json:"tasks_added"`
	TasksUpdated      int            `json:"tasks_updated"`
	TasksRemoved      int            `json:"tasks_removed"`
	ConflictsResolved int            `json:"conflicts_resolved"`
	StartedAt         time.Time      `json:"started_at"`
	CompletedAt       *time.Time     `json:"completed_at,omitempty"`
	Errors            []string       `json:"errors,omitempty"`
}

// SessionOptions is the snapshot of sync options a session ran with
type SessionOptions struct {
	ConflictStrategy string `json:"conflict_strategy,omitempty"`
	DeepCompare      bool   `json:"deep_compare"`
	DryRun           bool   `json:"dry_run"`
	BatchSize        int    `json:"batch_size,omitempty"`
}

// Complete marks the session completed. No-op if already terminal.
func (s *SyncSession) Complete() {
	if s.Status != SessionStatusRunning {
		return
	}
	now := time.Now().UTC()
	s.Status = SessionStatusCompleted
	s.CompletedAt = &now
}

// Fail marks the session failed and records the terminal error.
// No-op if already terminal.
func (s *SyncSession) Fail(errMsg string) {
	if s.Status != SessionStatusRunning {
		return
	}
	now := time.Now().UTC()
	s.Status = SessionStatusFailed
	s.CompletedAt = &now
	if errMsg != "" {
		s.Errors = append(s.Errors, errMsg)
	}
}

// Duration returns the elapsed time of the session, zero while running
func (s *SyncSession) Duration() time.Duration {
	if s.CompletedAt == nil {
		return 0
	}
	return s.CompletedAt.Sub(s.StartedAt)
}

// NewSyncSession creates a running session for the given branch sync
func NewSyncSession(projectID, branch, tag string, opts SessionOptions) *SyncSession {
	return &SyncSession{
		ID:        uuid.New(),
		ProjectID: projectID,
		Branch:    branch,
		Tag:       tag,
		Options:   opts,
		Status:    SessionStatusRunning,
		StartedAt: time.Now().UTC(),
	}
}
