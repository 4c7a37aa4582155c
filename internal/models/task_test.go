package models

import (
	"testing"
)

func TestTask_ContentHash(t *testing.T) {
	t.Parallel()

	base := Task{
		ID:           "1",
		Title:        "Title",
		Description:  "Desc",
		Status:       TaskStatusPending,
		Priority:     TaskPriorityMedium,
		Dependencies: []string{"2", "3"},
		Details:      "details",
	}

	tests := []struct {
		name     string
		mutate   func(task *Task)
		wantSame bool
	}{
		{name: "identical", mutate: func(task *Task) {}, wantSame: true},
		{name: "reordered dependencies", mutate: func(task *Task) {
			task.Dependencies = []string{"3", "2"}
		}, wantSame: true},
		{name: "version bump", mutate: func(task *Task) {
			task.Version = 9
		}, wantSame: true},
		{name: "subtask change", mutate: func(task *Task) {
			task.Subtasks = []Task{{ID: "1.1", Title: "Sub"}}
		}, wantSame: true},
		{name: "title change", mutate: func(task *Task) {
			task.Title = "Other"
		}, wantSame: false},
		{name: "status change", mutate: func(task *Task) {
			task.Status = TaskStatusDone
		}, wantSame: false},
		{name: "dependency change", mutate: func(task *Task) {
			task.Dependencies = []string{"2"}
		}, wantSame: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			other := *base.Clone()
			tt.mutate(&other)

			same := base.ContentHash() == other.ContentHash()
			if same != tt.wantSame {
				t.Errorf("ContentHash equality = %v, want %v", same, tt.wantSame)
			}
		})
	}
}

func TestTask_FieldSeparatorCollisions(t *testing.T) {
	t.Parallel()

	// Adjacent fields must not blur together
	a := Task{Title: "ab", Description: "c"}
	b := Task{Title: "a", Description: "bc"}
	if a.ContentHash() == b.ContentHash() {
		t.Error("Expected different hashes when content shifts between fields")
	}
}

func TestDependencySetsEqual(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		a    []string
		b    []string
		want bool
	}{
		{name: "equal ordered", a: []string{"1", "2"}, b: []string{"1", "2"}, want: true},
		{name: "equal reordered", a: []string{"1", "2"}, b: []string{"2", "1"}, want: true},
		{name: "duplicates collapse", a: []string{"1", "1", "2"}, b: []string{"2", "1"}, want: true},
		{name: "both empty", a: nil, b: []string{}, want: true},
		{name: "different members", a: []string{"1", "2"}, b: []string{"1", "3"}, want: false},
		{name: "subset", a: []string{"1"}, b: []string{"1", "2"}, want: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := DependencySetsEqual(tt.a, tt.b); got != tt.want {
				t.Errorf("DependencySetsEqual(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestTask_Clone(t *testing.T) {
	t.Parallel()

	complexity := 3.0
	orig := Task{
		ID:           "1",
		Title:        "Original",
		Complexity:   &complexity,
		Dependencies: []string{"2"},
		Subtasks:     []Task{{ID: "1.1", Title: "Sub"}},
	}

	clone := orig.Clone()
	clone.Title = "Changed"
	*clone.Complexity = 9.0
	clone.Dependencies[0] = "99"
	clone.Subtasks[0].Title = "Changed sub"

	if orig.Title != "Original" {
		t.Error("Clone shares the title")
	}
	if *orig.Complexity != 3.0 {
		t.Error("Clone shares the complexity pointer")
	}
	if orig.Dependencies[0] != "2" {
		t.Error("Clone shares the dependencies slice")
	}
	if orig.Subtasks[0].Title != "Sub" {
		t.Error("Clone shares the subtasks slice")
	}
}

func TestValidTaskStatus(t *testing.T) {
	t.Parallel()

	for _, status := range []TaskStatus{
		TaskStatusPending, TaskStatusInProgress, TaskStatusDone,
		TaskStatusBlocked, TaskStatusDeferred, TaskStatusCancelled, TaskStatusReview,
	} {
		if !ValidTaskStatus(status) {
			t.Errorf("Expected %s to be valid", status)
		}
	}
	if ValidTaskStatus("finished") {
		t.Error("Expected unknown status to be invalid")
	}
}
