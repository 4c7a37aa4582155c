// Package events publishes sync lifecycle events to the broadcast
// collaborator, fanned out per project.
package events

import (
	"context"
	"time"
)

// EventType identifies a sync lifecycle event
type EventType string

const (
	EventSyncStarted   EventType = "sync-started"
	EventSyncCompleted EventType = "sync-completed"
	EventSyncFailed    EventType = "sync-failed"
	EventErrorCritical EventType = "error-critical"
)

// Event is one lifecycle notification
type Event struct {
	Type      EventType      `json:"type"`
	ProjectID string         `json:"projectId"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// NewEvent creates a timestamped event for a project
func NewEvent(typ EventType, projectID string, data map[string]any) *Event {
	return &Event{
		Type:      typ,
		ProjectID: projectID,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
}

// Publisher delivers lifecycle events. Publishing is best-effort from the
// orchestrator's point of view; a failed notification never fails a sync.
type Publisher interface {
	Publish(ctx context.Context, event *Event) error
	Close() error
}
