package manifest

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/benvon/tasksync/internal/models"
)

func TestParse_Formats(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		raw        string
		tagHint    string
		wantFormat Format
		wantIDs    []string
	}{
		{
			name:       "legacy flat array",
			raw:        `[{"id":"1","title":"First"},{"id":"2","title":"Second"}]`,
			wantFormat: FormatLegacy,
			wantIDs:    []string{"1", "2"},
		},
		{
			name:       "modern tasks key",
			raw:        `{"tasks":[{"id":"a","title":"Alpha"}]}`,
			wantFormat: FormatModern,
			wantIDs:    []string{"a"},
		},
		{
			name:       "tagged nested object",
			raw:        `{"feat-login":{"tasks":[{"id":"t1","title":"Login"}]}}`,
			tagHint:    "feat-login",
			wantFormat: FormatTagged,
			wantIDs:    []string{"t1"},
		},
		{
			name:       "tagged bare array",
			raw:        `{"master":[{"id":"m1","title":"Main"}]}`,
			tagHint:    "master",
			wantFormat: FormatTagged,
			wantIDs:    []string{"m1"},
		},
		{
			name:       "mixed first array field",
			raw:        `{"meta":{"version":1},"items":[{"id":"x","title":"X"}]}`,
			wantFormat: FormatMixed,
			wantIDs:    []string{"x"},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			result, err := Parse([]byte(tt.raw), tt.tagHint)
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if result.Metadata.Format != tt.wantFormat {
				t.Errorf("Expected format %s, got %s", tt.wantFormat, result.Metadata.Format)
			}
			if len(result.Tasks) != len(tt.wantIDs) {
				t.Fatalf("Expected %d tasks, got %d", len(tt.wantIDs), len(result.Tasks))
			}
			for i, id := range tt.wantIDs {
				if result.Tasks[i].ID != id {
					t.Errorf("Task %d: expected id %q, got %q", i, id, result.Tasks[i].ID)
				}
			}
		})
	}
}

func TestParse_RoundTrip(t *testing.T) {
	t.Parallel()

	raw := `{"tasks":[
		{"id":"1","title":"Set up project","status":"done","priority":"high",
		 "description":"Scaffold the repo","details":"Use the standard layout",
		 "testStrategy":"smoke test","complexity":4.5,"version":3,
		 "dependencies":[],
		 "createdAt":"2026-08-01T10:00:00Z","updatedAt":"2026-08-02T09:30:00Z",
		 "subtasks":[{"id":"1.1","title":"Init module","status":"done","priority":"medium","dependencies":[],"version":1}]},
		{"id":"2","title":"Write parser","status":"in-progress","priority":"medium",
		 "dependencies":["1"],"version":2}
	]}`

	first, err := Parse([]byte(raw), "")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if first.HasWarnings() {
		t.Fatalf("Expected a clean parse, got %v", first.Metadata.Errors)
	}

	reserialized, err := json.Marshal(map[string]any{"tasks": first.Tasks})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	second, err := Parse(reserialized, "")
	if err != nil {
		t.Fatalf("Parse() of reserialized manifest error = %v", err)
	}
	if second.HasWarnings() {
		t.Fatalf("Expected a clean reparse, got %v", second.Metadata.Errors)
	}
	if !reflect.DeepEqual(first.Tasks, second.Tasks) {
		t.Errorf("Round trip changed the task set:\nfirst:  %+v\nsecond: %+v", first.Tasks, second.Tasks)
	}
	if second.Metadata.TotalTasks != first.Metadata.TotalTasks {
		t.Errorf("Expected %d tasks after round trip, got %d",
			first.Metadata.TotalTasks, second.Metadata.TotalTasks)
	}
}

func TestParse_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		raw     string
		wantErr error
	}{
		{
			name:    "invalid JSON",
			raw:     `{"tasks":[`,
			wantErr: ErrInvalidJSON,
		},
		{
			name:    "no task list",
			raw:     `{"meta":{"version":1}}`,
			wantErr: ErrNoTaskList,
		},
		{
			name:    "scalar root",
			raw:     `42`,
			wantErr: ErrNoTaskList,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := Parse([]byte(tt.raw), "")
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Parse() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestParse_Defaults(t *testing.T) {
	t.Parallel()

	raw := `[{"id":"1"},{"id":"2","status":"bogus","priority":"urgent"}]`
	result, err := Parse([]byte(raw), "")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if result.Tasks[0].Title != "Untitled Task" {
		t.Errorf("Expected default title, got %q", result.Tasks[0].Title)
	}
	if result.Tasks[0].Status != models.TaskStatusPending {
		t.Errorf("Expected default status pending, got %s", result.Tasks[0].Status)
	}
	if result.Tasks[0].Priority != models.TaskPriorityMedium {
		t.Errorf("Expected default priority medium, got %s", result.Tasks[0].Priority)
	}
	if result.Tasks[0].Dependencies == nil {
		t.Error("Expected dependencies to be initialized")
	}

	// Unknown enum values default and are recorded as warnings
	if result.Tasks[1].Status != models.TaskStatusPending {
		t.Errorf("Expected invalid status to default to pending, got %s", result.Tasks[1].Status)
	}
	if result.Tasks[1].Priority != models.TaskPriorityMedium {
		t.Errorf("Expected invalid priority to default to medium, got %s", result.Tasks[1].Priority)
	}
	if !result.HasWarnings() {
		t.Error("Expected warnings for invalid enum values")
	}
}

func TestParse_DuplicateIDs(t *testing.T) {
	t.Parallel()

	raw := `[{"id":"5","title":"One"},{"id":"5","title":"Two"},{"id":"5","title":"Three"}]`
	result, err := Parse([]byte(raw), "")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if len(result.Tasks) != 3 {
		t.Fatalf("Expected all 3 records retained, got %d", len(result.Tasks))
	}
	if result.Tasks[0].ID != "5" {
		t.Errorf("Expected first occurrence to keep its id, got %q", result.Tasks[0].ID)
	}

	seen := make(map[string]struct{})
	for _, task := range result.Tasks {
		if _, dup := seen[task.ID]; dup {
			t.Errorf("Duplicate id %q after rename", task.ID)
		}
		seen[task.ID] = struct{}{}
	}

	for _, task := range result.Tasks[1:] {
		if !strings.HasPrefix(task.ID, "5_duplicate_") {
			t.Errorf("Expected renamed id with duplicate marker, got %q", task.ID)
		}
	}

	if len(result.Metadata.Errors) != 2 {
		t.Errorf("Expected 2 rename warnings, got %d", len(result.Metadata.Errors))
	}
}

func TestParse_NumericIDs(t *testing.T) {
	t.Parallel()

	raw := `[{"id":7,"title":"Numeric"}]`
	result, err := Parse([]byte(raw), "")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if result.Tasks[0].ID != "7" {
		t.Errorf("Expected numeric id coerced to %q, got %q", "7", result.Tasks[0].ID)
	}
}

func TestParse_MissingIDSkipped(t *testing.T) {
	t.Parallel()

	raw := `[{"title":"No id"},{"id":"ok","title":"Fine"}]`
	result, err := Parse([]byte(raw), "")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(result.Tasks) != 1 {
		t.Fatalf("Expected 1 task, got %d", len(result.Tasks))
	}
	if result.Tasks[0].ID != "ok" {
		t.Errorf("Expected surviving task ok, got %q", result.Tasks[0].ID)
	}
	if len(result.Metadata.Errors) != 1 {
		t.Errorf("Expected 1 parse error for the missing id, got %d", len(result.Metadata.Errors))
	}
}

func TestParse_Subtasks(t *testing.T) {
	t.Parallel()

	raw := `[{"id":"p","title":"Parent","subtasks":[{"id":"c1","title":"Child"},{"id":"c2"}]}]`
	result, err := Parse([]byte(raw), "")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if !result.Metadata.HasSubtasks {
		t.Error("Expected HasSubtasks to be set")
	}
	if len(result.Tasks[0].Subtasks) != 2 {
		t.Fatalf("Expected 2 subtasks, got %d", len(result.Tasks[0].Subtasks))
	}
	if result.Tasks[0].Subtasks[1].Title != "Untitled Task" {
		t.Errorf("Expected subtask defaults applied, got title %q", result.Tasks[0].Subtasks[1].Title)
	}
}

func TestParse_SubtaskDepthBounded(t *testing.T) {
	t.Parallel()

	// Build nesting one level past the cap
	inner := `{"id":"leaf","title":"Leaf"}`
	for i := 0; i <= maxSubtaskDepth; i++ {
		inner = `{"id":"n","title":"N","subtasks":[` + inner + `]}`
	}
	raw := `[` + inner + `]`

	result, err := Parse([]byte(raw), "")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	found := false
	for _, perr := range result.Metadata.Errors {
		if perr.Field == "subtasks" && strings.Contains(perr.Message, "nested deeper") {
			found = true
		}
	}
	if !found {
		t.Error("Expected a depth-limit warning for over-nested subtasks")
	}
}

func TestParse_Metadata(t *testing.T) {
	t.Parallel()

	raw := `[
		{"id":"1","title":"A","status":"done","priority":"high"},
		{"id":"2","title":"B","status":"done"},
		{"id":"3","title":"C","status":"in-progress"}
	]`
	result, err := Parse([]byte(raw), "")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if result.Metadata.TotalTasks != 3 {
		t.Errorf("Expected 3 total tasks, got %d", result.Metadata.TotalTasks)
	}
	if result.Metadata.StatusCounts[models.TaskStatusDone] != 2 {
		t.Errorf("Expected 2 done tasks, got %d", result.Metadata.StatusCounts[models.TaskStatusDone])
	}
	if result.Metadata.PriorityCounts[models.TaskPriorityMedium] != 2 {
		t.Errorf("Expected 2 medium-priority tasks, got %d", result.Metadata.PriorityCounts[models.TaskPriorityMedium])
	}
}
