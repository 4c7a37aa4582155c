package validation

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/benvon/tasksync/internal/models"
	"github.com/go-playground/validator/v10"
)

var (
	// Validate is a shared validator instance
	Validate *validator.Validate
)

func init() {
	Validate = validator.New()

	// Register custom validators for enums
	// These should never fail in normal operation, but panic loudly if they do
	if err := Validate.RegisterValidation("task_status", validateTaskStatus); err != nil {
		panic(fmt.Sprintf("failed to register task_status validator: %v", err))
	}
	if err := Validate.RegisterValidation("task_priority", validateTaskPriority); err != nil {
		panic(fmt.Sprintf("failed to register task_priority validator: %v", err))
	}
	if err := Validate.RegisterValidation("sync_strategy", validateSyncStrategy); err != nil {
		panic(fmt.Sprintf("failed to register sync_strategy validator: %v", err))
	}
}

// validateTaskStatus validates that a string is a valid TaskStatus enum value
func validateTaskStatus(fl validator.FieldLevel) bool {
	return models.ValidTaskStatus(models.TaskStatus(fl.Field().String()))
}

// validateTaskPriority validates that a string is a valid TaskPriority enum value
func validateTaskPriority(fl validator.FieldLevel) bool {
	return models.ValidTaskPriority(models.TaskPriority(fl.Field().String()))
}

// validateSyncStrategy validates that a string is a valid SyncStrategy enum value
func validateSyncStrategy(fl validator.FieldLevel) bool {
	switch models.SyncStrategy(fl.Field().String()) {
	case models.SyncStrategyBranchIsolated, models.SyncStrategyMerged, models.SyncStrategyFeatureBranchOnly:
		return true
	default:
		return false
	}
}

// taskSchema is the validation view of a task record
type taskSchema struct {
	ID       string `validate:"required,max=255"`
	Title    string `validate:"required,max=1024"`
	Status   string `validate:"task_status"`
	Priority string `validate:"task_priority"`
	Version  int    `validate:"min=0"`
}

// ValidateTask checks a normalized task against the schema rules.
// Defaulting happens before validation, so missing enum fields are a
// caller bug rather than a validation concern.
func ValidateTask(task *models.Task) error {
	return Validate.Struct(taskSchema{
		ID:       task.ID,
		Title:    task.Title,
		Status:   string(task.Status),
		Priority: string(task.Priority),
		Version:  task.Version,
	})
}

// SanitizeText sanitizes text input by trimming whitespace and removing control characters
func SanitizeText(text string) string {
	text = strings.TrimSpace(text)

	var sanitized strings.Builder
	for _, r := range text {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			continue
		}
		sanitized.WriteRune(r)
	}

	return sanitized.String()
}

// SanitizeTagName normalizes a candidate tag name: lowercase, invalid
// characters replaced with hyphens, runs collapsed, edges trimmed.
func SanitizeTagName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	out := b.String()
	for strings.Contains(out, "--") {
		out = strings.ReplaceAll(out, "--", "-")
	}
	return strings.Trim(out, "-")
}
