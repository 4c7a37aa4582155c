package events

import (
	"context"
	"sync"
)

// MemoryPublisher records events in memory for tests
type MemoryPublisher struct {
	mu     sync.Mutex
	events []*Event
	closed bool
}

// NewMemoryPublisher creates an empty in-memory publisher
func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

// Publish records the event
func (p *MemoryPublisher) Publish(_ context.Context, event *Event) error {
	p.mu.Lock()
	p.events = append(p.events, event)
	p.mu.Unlock()
	return nil
}

// Events returns a snapshot of the recorded events
func (p *MemoryPublisher) Events() []*Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*Event(nil), p.events...)
}

// Close marks the publisher closed
func (p *MemoryPublisher) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}

var _ Publisher = (*MemoryPublisher)(nil)
