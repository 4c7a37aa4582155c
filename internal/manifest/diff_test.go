package manifest

import (
	"fmt"
	"testing"

	"github.com/benvon/tasksync/internal/models"
)

func mkTask(id, title string, status models.TaskStatus) models.Task {
	return models.Task{
		ID:       id,
		Title:    title,
		Status:   status,
		Priority: models.TaskPriorityMedium,
	}
}

func TestDiff_Classification(t *testing.T) {
	t.Parallel()

	current := []models.Task{
		mkTask("1", "Keep", models.TaskStatusPending),
		mkTask("2", "Change me", models.TaskStatusPending),
		mkTask("3", "Remove me", models.TaskStatusDone),
	}
	incoming := []models.Task{
		mkTask("1", "Keep", models.TaskStatusPending),
		mkTask("2", "Changed", models.TaskStatusInProgress),
		mkTask("4", "New task", models.TaskStatusPending),
	}

	result := Diff(current, incoming, DiffOptions{})

	if len(result.Added) != 1 || result.Added[0].ID != "4" {
		t.Errorf("Expected added = [4], got %v", ids(result.Added))
	}
	if len(result.Modified) != 1 || result.Modified[0].ID != "2" {
		t.Errorf("Expected modified = [2], got %v", ids(result.Modified))
	}
	if result.Modified[0].Title != "Changed" {
		t.Errorf("Expected modified entry to carry the incoming version, got %q", result.Modified[0].Title)
	}
	if len(result.Deleted) != 1 || result.Deleted[0].ID != "3" {
		t.Errorf("Expected deleted = [3], got %v", ids(result.Deleted))
	}
	if result.Metadata.TotalChanges != 3 {
		t.Errorf("Expected 3 total changes, got %d", result.Metadata.TotalChanges)
	}
}

func TestDiff_Disjoint(t *testing.T) {
	t.Parallel()

	current := make([]models.Task, 0, 20)
	incoming := make([]models.Task, 0, 20)
	for i := 0; i < 20; i++ {
		id := fmt.Sprintf("t%d", i)
		if i < 15 {
			current = append(current, mkTask(id, "Task "+id, models.TaskStatusPending))
		}
		if i >= 5 {
			task := mkTask(id, "Task "+id, models.TaskStatusPending)
			if i%2 == 0 {
				task.Title = "Renamed " + id
			}
			incoming = append(incoming, task)
		}
	}

	result := Diff(current, incoming, DiffOptions{})

	seen := make(map[string]string)
	for _, task := range result.Added {
		seen[task.ID] = "added"
	}
	for _, task := range result.Modified {
		if prev, ok := seen[task.ID]; ok {
			t.Errorf("Task %s in both %s and modified", task.ID, prev)
		}
		seen[task.ID] = "modified"
	}
	for _, task := range result.Deleted {
		if prev, ok := seen[task.ID]; ok {
			t.Errorf("Task %s in both %s and deleted", task.ID, prev)
		}
	}
}

func TestDiff_OrderInsensitiveDependencies(t *testing.T) {
	t.Parallel()

	a := mkTask("1", "Task", models.TaskStatusPending)
	a.Dependencies = []string{"2", "3"}
	b := mkTask("1", "Task", models.TaskStatusPending)
	b.Dependencies = []string{"3", "2"}

	result := Diff([]models.Task{a}, []models.Task{b}, DiffOptions{})
	if result.Metadata.TotalChanges != 0 {
		t.Errorf("Expected reordered dependencies to not register as a change, got %d changes",
			result.Metadata.TotalChanges)
	}
}

func TestDiff_RequiresFullSync(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		currentSize int
		changed     int
		want        bool
	}{
		{name: "over half changed", currentSize: 100, changed: 60, want: true},
		{name: "under half changed", currentSize: 100, changed: 40, want: false},
		{name: "exactly half changed", currentSize: 100, changed: 50, want: false},
		{name: "empty current set", currentSize: 0, changed: 0, want: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			current := make([]models.Task, 0, tt.currentSize)
			incoming := make([]models.Task, 0, tt.currentSize)
			for i := 0; i < tt.currentSize; i++ {
				id := fmt.Sprintf("t%d", i)
				current = append(current, mkTask(id, "Task", models.TaskStatusPending))
				task := mkTask(id, "Task", models.TaskStatusPending)
				if i < tt.changed {
					task.Title = "Changed"
				}
				incoming = append(incoming, task)
			}

			result := Diff(current, incoming, DiffOptions{})
			if result.Metadata.RequiresFullSync != tt.want {
				t.Errorf("RequiresFullSync = %v, want %v (changes=%d current=%d)",
					result.Metadata.RequiresFullSync, tt.want, result.Metadata.TotalChanges, tt.currentSize)
			}
		})
	}
}

func TestDiff_ResolutionMode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		strategy string
		changes  int
		want     ConflictResolutionMode
	}{
		{name: "no strategy few changes", strategy: "", changes: 5, want: ResolutionNone},
		{name: "no strategy many changes", strategy: "", changes: 11, want: ResolutionManual},
		{name: "timestamp strategy", strategy: "timestamp", changes: 11, want: ResolutionAuto},
		{name: "remote-wins strategy", strategy: "remote-wins", changes: 2, want: ResolutionAuto},
		{name: "unknown strategy", strategy: "coin-flip", changes: 2, want: ResolutionNone},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			incoming := make([]models.Task, 0, tt.changes)
			for i := 0; i < tt.changes; i++ {
				incoming = append(incoming, mkTask(fmt.Sprintf("n%d", i), "New", models.TaskStatusPending))
			}

			result := Diff(nil, incoming, DiffOptions{ConflictStrategy: tt.strategy})
			if result.Metadata.ConflictResolution != tt.want {
				t.Errorf("ConflictResolution = %s, want %s", result.Metadata.ConflictResolution, tt.want)
			}
		})
	}
}

func TestDiff_DeepCompare(t *testing.T) {
	t.Parallel()

	cur := mkTask("1", "Parent", models.TaskStatusPending)
	cur.Subtasks = []models.Task{mkTask("1.1", "Child", models.TaskStatusPending)}
	inc := mkTask("1", "Parent", models.TaskStatusPending)
	inc.Subtasks = []models.Task{mkTask("1.1", "Child renamed", models.TaskStatusPending)}

	shallow := Diff([]models.Task{cur}, []models.Task{inc}, DiffOptions{})
	if len(shallow.Modified) != 0 {
		t.Errorf("Expected shallow diff to ignore subtask content, got %d modified", len(shallow.Modified))
	}

	deep := Diff([]models.Task{cur}, []models.Task{inc}, DiffOptions{DeepCompare: true})
	if len(deep.Modified) != 1 {
		t.Errorf("Expected deep diff to flag subtask change, got %d modified", len(deep.Modified))
	}
}

func ids(tasks []models.Task) []string {
	out := make([]string, len(tasks))
	for i := range tasks {
		out[i] = tasks[i].ID
	}
	return out
}
