package conflict

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/benvon/tasksync/internal/models"
)

// memoryStore is an in-memory Store for resolver tests
type memoryStore struct {
	mu      sync.Mutex
	pending map[uuid.UUID]*models.ConflictItem
	history []*models.ConflictItem
}

func newMemoryStore() *memoryStore {
	return &memoryStore{pending: make(map[uuid.UUID]*models.ConflictItem)}
}

func (s *memoryStore) GetPending(ctx context.Context, id uuid.UUID) (*models.ConflictItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending[id], nil
}

func (s *memoryStore) SavePending(ctx context.Context, item *models.ConflictItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[item.ID] = item
	return nil
}

func (s *memoryStore) ListPending(ctx context.Context, projectID string) ([]*models.ConflictItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.ConflictItem
	for _, item := range s.pending {
		if item.ProjectID == projectID {
			out = append(out, item)
		}
	}
	return out, nil
}

func (s *memoryStore) MoveToHistory(ctx context.Context, item *models.ConflictItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, item.ID)
	s.history = append(s.history, item)
	return nil
}

func (s *memoryStore) PruneHistory(ctx context.Context, olderThan time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var kept []*models.ConflictItem
	pruned := 0
	for _, item := range s.history {
		if item.ResolvedAt != nil && item.ResolvedAt.Before(olderThan) {
			pruned++
			continue
		}
		kept = append(kept, item)
	}
	s.history = kept
	return pruned, nil
}

func pendingConflict(store *memoryStore, typ models.ConflictType) *models.ConflictItem {
	loc := task("1", models.TaskStatusDone, 2)
	rem := task("1", models.TaskStatusInProgress, 2)
	rem.Description = "remote side"
	item := models.NewConflictItem("proj", "1", typ, &loc, &rem)
	_ = store.SavePending(context.Background(), item)
	return item
}

func TestResolver_RecordDeduplicates(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	resolver := NewResolver(store, zap.NewNop())

	loc := task("1", models.TaskStatusDone, 2)
	rem := task("1", models.TaskStatusInProgress, 2)
	first := models.NewConflictItem("proj", "1", models.ConflictStatus, &loc, &rem)

	if err := resolver.Record(context.Background(), []*models.ConflictItem{first}); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	// A second sync pass re-detects the same divergence under a fresh id.
	rem2 := task("1", models.TaskStatusInProgress, 3)
	second := models.NewConflictItem("proj", "1", models.ConflictStatus, &loc, &rem2)

	if err := resolver.Record(context.Background(), []*models.ConflictItem{second}); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	pending, err := resolver.Pending(context.Background(), "proj")
	if err != nil {
		t.Fatalf("Pending() error = %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("Expected 1 pending conflict after re-detection, got %d", len(pending))
	}
	if pending[0].ID != first.ID {
		t.Errorf("Expected re-detected conflict to keep id %s, got %s", first.ID, pending[0].ID)
	}
	if pending[0].Remote == nil || pending[0].Remote.Version != 3 {
		t.Error("Expected pending snapshot refreshed with the latest remote side")
	}
}

func TestResolver_Resolve(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		strategy   models.ResolutionStrategy
		wantMerged func(t *testing.T, item *models.ConflictItem)
	}{
		{
			name:     "accept local",
			strategy: models.ResolveAcceptLocal,
			wantMerged: func(t *testing.T, item *models.ConflictItem) {
				if item.Resolution.Merged == nil || item.Resolution.Merged.Status != models.TaskStatusDone {
					t.Error("Expected merged record to be the local side")
				}
			},
		},
		{
			name:     "accept remote",
			strategy: models.ResolveAcceptRemote,
			wantMerged: func(t *testing.T, item *models.ConflictItem) {
				if item.Resolution.Merged == nil || item.Resolution.Merged.Description != "remote side" {
					t.Error("Expected merged record to be the remote side")
				}
			},
		},
		{
			name:     "merge fields",
			strategy: models.ResolveMergeFields,
			wantMerged: func(t *testing.T, item *models.ConflictItem) {
				if item.Resolution.Merged == nil {
					t.Fatal("Expected a merged record")
				}
				if item.Resolution.Merged.Version != 3 {
					t.Errorf("Expected merged version 3, got %d", item.Resolution.Merged.Version)
				}
			},
		},
		{
			name:     "defer",
			strategy: models.ResolveDefer,
			wantMerged: func(t *testing.T, item *models.ConflictItem) {
				if item.Resolution.Merged != nil {
					t.Error("Expected no merged record for a deferred conflict")
				}
				if item.Resolution.Notes == "" {
					t.Error("Expected a deferral note")
				}
			},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			store := newMemoryStore()
			resolver := NewResolver(store, zap.NewNop())
			item := pendingConflict(store, models.ConflictStatus)

			resolved, err := resolver.Resolve(context.Background(), item.ID, tt.strategy, nil, "tester")
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}

			if resolved.ResolvedAt == nil {
				t.Error("Expected ResolvedAt to be set")
			}
			if resolved.Resolution.ResolvedBy != "tester" {
				t.Errorf("Expected resolver identity recorded, got %q", resolved.Resolution.ResolvedBy)
			}
			tt.wantMerged(t, resolved)

			if len(store.pending) != 0 {
				t.Error("Expected conflict removed from pending queue")
			}
			if len(store.history) != 1 {
				t.Error("Expected conflict moved to history")
			}
		})
	}
}

func TestResolver_ResolveErrors(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	resolver := NewResolver(store, zap.NewNop())
	item := pendingConflict(store, models.ConflictConcurrentEdit)

	if _, err := resolver.Resolve(context.Background(), uuid.New(), models.ResolveAcceptLocal, nil, ""); !errors.Is(err, ErrConflictNotFound) {
		t.Errorf("Expected ErrConflictNotFound, got %v", err)
	}

	if _, err := resolver.Resolve(context.Background(), item.ID, models.ResolveCustomMerge, nil, ""); !errors.Is(err, ErrCustomMergeRequired) {
		t.Errorf("Expected ErrCustomMergeRequired, got %v", err)
	}

	if _, err := resolver.Resolve(context.Background(), item.ID, "SHRUG", nil, ""); !errors.Is(err, ErrUnknownStrategy) {
		t.Errorf("Expected ErrUnknownStrategy, got %v", err)
	}
}

func TestResolver_PruneHistory(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	resolver := NewResolver(store, zap.NewNop())

	old := time.Now().UTC().Add(-48 * time.Hour)
	recent := time.Now().UTC()
	store.history = []*models.ConflictItem{
		{ID: uuid.New(), ResolvedAt: &old},
		{ID: uuid.New(), ResolvedAt: &recent},
	}

	pruned, err := resolver.PruneHistory(context.Background(), 24*time.Hour)
	if err != nil {
		t.Fatalf("PruneHistory() error = %v", err)
	}
	if pruned != 1 {
		t.Errorf("Expected 1 pruned entry, got %d", pruned)
	}
	if len(store.history) != 1 {
		t.Errorf("Expected 1 remaining entry, got %d", len(store.history))
	}
}

func TestAutoMerge(t *testing.T) {
	t.Parallel()

	complexity := 7.5
	local := &models.Task{
		ID:           "1",
		Title:        "Local title",
		Description:  "shared",
		Status:       models.TaskStatusDone,
		Priority:     models.TaskPriorityMedium,
		Dependencies: []string{"2", "3"},
		Version:      2,
	}
	remote := &models.Task{
		ID:           "1",
		Title:        "Remote title",
		Description:  "shared",
		Status:       models.TaskStatusPending,
		Priority:     models.TaskPriorityHigh,
		Complexity:   &complexity,
		Dependencies: []string{"3", "4"},
		Version:      1,
	}

	merged := AutoMerge(local, remote)

	if merged.Title != "Remote title" {
		t.Errorf("Expected remote-preferred title, got %q", merged.Title)
	}
	if merged.Description != "shared" {
		t.Errorf("Expected unchanged shared field, got %q", merged.Description)
	}
	if merged.Priority != models.TaskPriorityHigh {
		t.Errorf("Expected remote priority, got %s", merged.Priority)
	}
	if merged.Complexity == nil || *merged.Complexity != complexity {
		t.Error("Expected remote complexity carried over")
	}

	// done outranks pending in the status table
	if merged.Status != models.TaskStatusDone {
		t.Errorf("Expected merged status done, got %s", merged.Status)
	}

	if !models.DependencySetsEqual(merged.Dependencies, []string{"2", "3", "4"}) {
		t.Errorf("Expected dependency union, got %v", merged.Dependencies)
	}

	if merged.Version != 3 {
		t.Errorf("Expected version max(2,1)+1 = 3, got %d", merged.Version)
	}
}

func TestAutoMerge_InProgressOverride(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		local  models.TaskStatus
		remote models.TaskStatus
		want   models.TaskStatus
	}{
		{name: "local in-progress wins over done", local: models.TaskStatusInProgress, remote: models.TaskStatusDone, want: models.TaskStatusInProgress},
		{name: "remote in-progress wins over done", local: models.TaskStatusDone, remote: models.TaskStatusInProgress, want: models.TaskStatusInProgress},
		{name: "review beats pending", local: models.TaskStatusPending, remote: models.TaskStatusReview, want: models.TaskStatusReview},
		{name: "blocked beats cancelled", local: models.TaskStatusCancelled, remote: models.TaskStatusBlocked, want: models.TaskStatusBlocked},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := mergeStatus(tt.local, tt.remote)
			if got != tt.want {
				t.Errorf("mergeStatus(%s, %s) = %s, want %s", tt.local, tt.remote, got, tt.want)
			}
		})
	}
}

func TestAutoMerge_Subtasks(t *testing.T) {
	t.Parallel()

	local := &models.Task{
		ID: "1", Title: "T", Status: models.TaskStatusPending, Priority: models.TaskPriorityMedium,
		Subtasks: []models.Task{
			{ID: "1.1", Title: "Local only"},
			{ID: "1.2", Title: "Local version"},
		},
	}
	remote := &models.Task{
		ID: "1", Title: "T", Status: models.TaskStatusPending, Priority: models.TaskPriorityMedium,
		Subtasks: []models.Task{
			{ID: "1.2", Title: "Remote version"},
			{ID: "1.3", Title: "Remote only"},
		},
	}

	merged := AutoMerge(local, remote)

	if len(merged.Subtasks) != 3 {
		t.Fatalf("Expected 3 merged subtasks, got %d", len(merged.Subtasks))
	}

	byID := make(map[string]string)
	for _, sub := range merged.Subtasks {
		byID[sub.ID] = sub.Title
	}
	if byID["1.2"] != "Remote version" {
		t.Errorf("Expected remote precedence for shared subtask, got %q", byID["1.2"])
	}
	if byID["1.1"] != "Local only" || byID["1.3"] != "Remote only" {
		t.Error("Expected one-sided subtasks retained")
	}
}

func TestAutoMerge_NilSides(t *testing.T) {
	t.Parallel()

	loc := task("1", models.TaskStatusPending, 1)

	if AutoMerge(nil, nil) != nil {
		t.Error("Expected nil for two nil sides")
	}
	if merged := AutoMerge(&loc, nil); merged == nil || merged.ID != "1" {
		t.Error("Expected local clone when remote is nil")
	}
	if merged := AutoMerge(nil, &loc); merged == nil || merged.ID != "1" {
		t.Error("Expected remote clone when local is nil")
	}
}
