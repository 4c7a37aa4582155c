package models

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"
)

// TaskStatus represents the lifecycle state of a task
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in-progress"
	TaskStatusDone       TaskStatus = "done"
	TaskStatusBlocked    TaskStatus = "blocked"
	TaskStatusDeferred   TaskStatus = "deferred"
	TaskStatusCancelled  TaskStatus = "cancelled"
	TaskStatusReview     TaskStatus = "review"
)

// ValidTaskStatus reports whether s is a known task status
func ValidTaskStatus(s TaskStatus) bool {
	switch s {
	case TaskStatusPending, TaskStatusInProgress, TaskStatusDone,
		TaskStatusBlocked, TaskStatusDeferred, TaskStatusCancelled, TaskStatusReview:
		return true
	default:
		return false
	}
}

// TaskPriority represents the urgency of a task
type TaskPriority string

const (
	TaskPriorityLow      TaskPriority = "low"
	TaskPriorityMedium   TaskPriority = "medium"
	TaskPriorityHigh     TaskPriority = "high"
	TaskPriorityCritical TaskPriority = "critical"
)

// ValidTaskPriority reports whether p is a known task priority
func ValidTaskPriority(p TaskPriority) bool {
	switch p {
	case TaskPriorityLow, TaskPriorityMedium, TaskPriorityHigh, TaskPriorityCritical:
		return true
	default:
		return false
	}
}

// Task is a single task record parsed from a manifest or loaded from the store.
// IDs are unique within (project, tag) after parsing; Version never decreases
// on update.
type Task struct {
	ID           string       `json:"id"`
	Title        string       `json:"title"`
	Description  string       `json:"description,omitempty"`
	Status       TaskStatus   `json:"status"`
	Priority     TaskPriority `json:"priority"`
	Complexity   *float64     `json:"complexity,omitempty"`
	Dependencies []string     `json:"dependencies"`
	Subtasks     []Task       `json:"subtasks,omitempty"`
	Details      string       `json:"details,omitempty"`
	TestStrategy string       `json:"testStrategy,omitempty"`
	Version      int          `json:"version"`
	CreatedAt    time.Time    `json:"createdAt,omitempty"`
	UpdatedAt    time.Time    `json:"updatedAt,omitempty"`
}

// ContentHash returns a hex sha256 over the fields that define task content:
// title, description, status, sorted dependencies, priority and details.
// Subtasks, versions and timestamps are excluded so that bookkeeping changes
// do not register as content divergence.
func (t *Task) ContentHash() string {
	deps := make([]string, len(t.Dependencies))
	copy(deps, t.Dependencies)
	sort.Strings(deps)

	h := sha256.New()
	for _, part := range []string{
		t.Title,
		t.Description,
		string(t.Status),
		strings.Join(deps, ","),
		string(t.Priority),
		t.Details,
	} {
		h.Write([]byte(part))
		h.Write([]byte{0}) // field separator
	}
	return hex.EncodeToString(h.Sum(nil))
}

// DependenciesEqual compares dependency sets ignoring order and duplicates
func (t *Task) DependenciesEqual(other *Task) bool {
	return DependencySetsEqual(t.Dependencies, other.Dependencies)
}

// DependencySetsEqual reports whether two dependency lists contain the same
// set of ids, ignoring order and duplicates.
func DependencySetsEqual(a, b []string) bool {
	setA := make(map[string]struct{}, len(a))
	for _, id := range a {
		setA[id] = struct{}{}
	}
	setB := make(map[string]struct{}, len(b))
	for _, id := range b {
		setB[id] = struct{}{}
	}
	if len(setA) != len(setB) {
		return false
	}
	for id := range setA {
		if _, ok := setB[id]; !ok {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of the task, including subtasks
func (t *Task) Clone() *Task {
	out := *t
	if t.Complexity != nil {
		c := *t.Complexity
		out.Complexity = &c
	}
	out.Dependencies = append([]string(nil), t.Dependencies...)
	if t.Subtasks != nil {
		out.Subtasks = make([]Task, len(t.Subtasks))
		for i := range t.Subtasks {
			out.Subtasks[i] = *t.Subtasks[i].Clone()
		}
	}
	return &out
}
