// Package manifest parses per-branch task manifest files and computes
// structural diffs between task sets.
package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/benvon/tasksync/internal/models"
	"github.com/benvon/tasksync/internal/validation"
)

// Format identifies which of the accepted manifest shapes was detected
type Format string

const (
	// FormatLegacy is a flat JSON array of task objects
	FormatLegacy Format = "legacy"
	// FormatModern is an object with a top-level "tasks" array
	FormatModern Format = "modern"
	// FormatTagged is an object keyed by tag name containing arrays
	FormatTagged Format = "tagged"
	// FormatMixed is an object whose first array-valued field is used
	FormatMixed Format = "mixed"
)

// maxSubtaskDepth bounds recursive subtask validation. Entries nested
// deeper are dropped and recorded as parse errors.
const maxSubtaskDepth = 5

var (
	// ErrInvalidJSON indicates the raw content is not parseable JSON
	ErrInvalidJSON = errors.New("manifest is not valid JSON")
	// ErrNoTaskList indicates no task array could be located in the content
	ErrNoTaskList = errors.New("no task list found in manifest")
)

// ParseError records a single entry that failed validation. Parsing is
// partial-success: errors accumulate and the remaining entries still parse.
type ParseError struct {
	Index   int    `json:"index"`
	TaskID  string `json:"task_id,omitempty"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func (e ParseError) String() string {
	if e.TaskID != "" {
		return fmt.Sprintf("task %s: %s", e.TaskID, e.Message)
	}
	return fmt.Sprintf("entry %d: %s", e.Index, e.Message)
}

// Metadata summarizes a parse pass
type Metadata struct {
	TotalTasks     int                         `json:"total_tasks"`
	StatusCounts   map[models.TaskStatus]int   `json:"status_counts"`
	PriorityCounts map[models.TaskPriority]int `json:"priority_counts"`
	HasSubtasks    bool                        `json:"has_subtasks"`
	Errors         []ParseError                `json:"errors,omitempty"`
	Format         Format                      `json:"format"`
}

// ParseResult is the outcome of parsing a manifest. A non-nil result with
// a populated Errors slice is a success-with-warnings; a nil result with a
// returned error is a failure.
type ParseResult struct {
	Tasks    []models.Task `json:"tasks"`
	Metadata Metadata      `json:"metadata"`
}

// HasWarnings reports whether any entries were rejected or renamed
func (r *ParseResult) HasWarnings() bool {
	return len(r.Metadata.Errors) > 0
}

// Parse extracts and validates the task list from raw manifest content.
// Three shapes are tried in order: a flat array ("legacy"), an object with
// a "tasks" array ("modern"), and an object keyed by tag ("tagged", using
// tagHint when present). If none match, the first array-valued field wins
// ("mixed"). Invalid entries are recorded and skipped rather than aborting
// the parse; duplicate ids are deterministically renamed with both records
// retained.
func Parse(raw []byte, tagHint string) (*ParseResult, error) {
	entries, format, err := locateTaskList(raw, tagHint)
	if err != nil {
		return nil, err
	}

	result := &ParseResult{
		Metadata: Metadata{
			StatusCounts:   make(map[models.TaskStatus]int),
			PriorityCounts: make(map[models.TaskPriority]int),
			Format:         format,
		},
	}

	seen := make(map[string]struct{})
	for i, entry := range entries {
		obj, ok := entry.(map[string]any)
		if !ok {
			result.Metadata.Errors = append(result.Metadata.Errors, ParseError{
				Index:   i,
				Message: fmt.Sprintf("entry is not an object (got %T)", entry),
			})
			continue
		}

		task, errs := normalizeTask(obj, i, 0)
		result.Metadata.Errors = append(result.Metadata.Errors, errs...)
		if task == nil {
			continue
		}

		if _, dup := seen[task.ID]; dup {
			renamed := dedupeID(task.ID, seen)
			result.Metadata.Errors = append(result.Metadata.Errors, ParseError{
				Index:   i,
				TaskID:  task.ID,
				Field:   "id",
				Message: fmt.Sprintf("duplicate id %q renamed to %q", task.ID, renamed),
			})
			task.ID = renamed
		}
		seen[task.ID] = struct{}{}

		result.Tasks = append(result.Tasks, *task)
		result.Metadata.StatusCounts[task.Status]++
		result.Metadata.PriorityCounts[task.Priority]++
		if len(task.Subtasks) > 0 {
			result.Metadata.HasSubtasks = true
		}
	}

	result.Metadata.TotalTasks = len(result.Tasks)
	return result, nil
}

// locateTaskList finds the task array inside the decoded manifest
func locateTaskList(raw []byte, tagHint string) ([]any, Format, error) {
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}

	switch v := decoded.(type) {
	case []any:
		return v, FormatLegacy, nil
	case map[string]any:
		if tasks, ok := v["tasks"].([]any); ok {
			return tasks, FormatModern, nil
		}
		if tagHint != "" {
			if tagged, ok := v[tagHint].(map[string]any); ok {
				if tasks, ok := tagged["tasks"].([]any); ok {
					return tasks, FormatTagged, nil
				}
			}
			if tasks, ok := v[tagHint].([]any); ok {
				return tasks, FormatTagged, nil
			}
		}
		// Fall back to the first array-valued field
		for _, value := range v {
			if tasks, ok := value.([]any); ok {
				return tasks, FormatMixed, nil
			}
		}
		return nil, "", ErrNoTaskList
	default:
		return nil, "", ErrNoTaskList
	}
}

// normalizeTask converts a raw manifest object into a validated Task,
// defaulting missing fields per field rather than by truthiness. Returns
// nil when the entry is unusable.
func normalizeTask(obj map[string]any, index, depth int) (*models.Task, []ParseError) {
	var errs []ParseError

	id := stringField(obj, "id")
	if id == "" {
		errs = append(errs, ParseError{Index: index, Field: "id", Message: "missing id"})
		return nil, errs
	}

	task := &models.Task{
		ID:           id,
		Title:        stringField(obj, "title"),
		Description:  stringField(obj, "description"),
		Status:       models.TaskStatus(stringField(obj, "status")),
		Priority:     models.TaskPriority(stringField(obj, "priority")),
		Details:      stringField(obj, "details"),
		TestStrategy: stringField(obj, "testStrategy"),
		Dependencies: stringListField(obj, "dependencies"),
	}

	if task.Title == "" {
		task.Title = "Untitled Task"
	}
	if task.Status == "" {
		task.Status = models.TaskStatusPending
	} else if !models.ValidTaskStatus(task.Status) {
		errs = append(errs, ParseError{
			Index: index, TaskID: id, Field: "status",
			Message: fmt.Sprintf("unknown status %q, defaulting to pending", task.Status),
		})
		task.Status = models.TaskStatusPending
	}
	if task.Priority == "" {
		task.Priority = models.TaskPriorityMedium
	} else if !models.ValidTaskPriority(task.Priority) {
		errs = append(errs, ParseError{
			Index: index, TaskID: id, Field: "priority",
			Message: fmt.Sprintf("unknown priority %q, defaulting to medium", task.Priority),
		})
		task.Priority = models.TaskPriorityMedium
	}
	if task.Dependencies == nil {
		task.Dependencies = []string{}
	}

	if c, ok := numberField(obj, "complexity"); ok {
		task.Complexity = &c
	}
	if v, ok := intField(obj, "version"); ok {
		task.Version = v
	}
	if t, ok := timeField(obj, "createdAt"); ok {
		task.CreatedAt = t
	}
	if t, ok := timeField(obj, "updatedAt"); ok {
		task.UpdatedAt = t
	}

	// Subtasks recurse with the same rules, bounded in depth
	if rawSubs, ok := obj["subtasks"].([]any); ok && len(rawSubs) > 0 {
		if depth >= maxSubtaskDepth {
			errs = append(errs, ParseError{
				Index: index, TaskID: id, Field: "subtasks",
				Message: fmt.Sprintf("subtasks nested deeper than %d levels dropped", maxSubtaskDepth),
			})
		} else {
			seen := make(map[string]struct{})
			for j, rawSub := range rawSubs {
				subObj, ok := rawSub.(map[string]any)
				if !ok {
					errs = append(errs, ParseError{
						Index: index, TaskID: id, Field: "subtasks",
						Message: fmt.Sprintf("subtask %d is not an object", j),
					})
					continue
				}
				sub, subErrs := normalizeTask(subObj, index, depth+1)
				errs = append(errs, subErrs...)
				if sub == nil {
					continue
				}
				if _, dup := seen[sub.ID]; dup {
					sub.ID = dedupeID(sub.ID, seen)
				}
				seen[sub.ID] = struct{}{}
				task.Subtasks = append(task.Subtasks, *sub)
			}
		}
	}

	if err := validation.ValidateTask(task); err != nil {
		errs = append(errs, ParseError{
			Index: index, TaskID: id,
			Message: fmt.Sprintf("schema validation failed: %v", err),
		})
		return nil, errs
	}

	return task, errs
}

// dedupeID produces a unique replacement id for a duplicate. The rename is
// timestamp-based with a counter for repeated collisions within the same
// parse pass.
func dedupeID(id string, seen map[string]struct{}) string {
	base := id + "_duplicate_" + strconv.FormatInt(time.Now().Unix(), 10)
	candidate := base
	for n := 1; ; n++ {
		if _, taken := seen[candidate]; !taken {
			return candidate
		}
		candidate = base + "_" + strconv.Itoa(n)
	}
}

func stringField(obj map[string]any, key string) string {
	switch v := obj[key].(type) {
	case string:
		return v
	case float64:
		// Manifest ids are sometimes bare numbers
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

func stringListField(obj map[string]any, key string) []string {
	raw, ok := obj[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		switch v := item.(type) {
		case string:
			out = append(out, v)
		case float64:
			out = append(out, strconv.FormatInt(int64(v), 10))
		}
	}
	return out
}

func numberField(obj map[string]any, key string) (float64, bool) {
	v, ok := obj[key].(float64)
	return v, ok
}

func intField(obj map[string]any, key string) (int, bool) {
	v, ok := obj[key].(float64)
	if !ok {
		return 0, false
	}
	return int(v), true
}

func timeField(obj map[string]any, key string) (time.Time, bool) {
	s, ok := obj[key].(string)
	if !ok {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
