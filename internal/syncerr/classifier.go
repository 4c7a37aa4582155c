// Package syncerr maps arbitrary sync failures into a fixed taxonomy with
// severity, retryability and suggested remediation.
package syncerr

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/benvon/tasksync/internal/lock"
	"github.com/benvon/tasksync/internal/manifest"
)

// Code identifies an error class in the taxonomy
type Code string

const (
	CodeConnectionFailed         Code = "CONNECTION_FAILED"
	CodeTimeout                  Code = "TIMEOUT"
	CodeRateLimited              Code = "RATE_LIMITED"
	CodeAuthFailed               Code = "AUTH_FAILED"
	CodePermissionDenied         Code = "PERMISSION_DENIED"
	CodeTokenExpired             Code = "TOKEN_EXPIRED"
	CodeRepositoryNotFound       Code = "REPOSITORY_NOT_FOUND"
	CodeBranchNotFound           Code = "BRANCH_NOT_FOUND"
	CodeFileNotFound             Code = "FILE_NOT_FOUND"
	CodeInvalidJSON              Code = "INVALID_JSON"
	CodeSchemaValidationFailed   Code = "SCHEMA_VALIDATION_FAILED"
	CodeUnsupportedFormat        Code = "UNSUPPORTED_FORMAT"
	CodeSyncLockFailed           Code = "SYNC_LOCK_FAILED"
	CodeConflictResolutionFailed Code = "CONFLICT_RESOLUTION_FAILED"
	CodeStorageError             Code = "STORAGE_ERROR"
	CodeInternalError            Code = "INTERNAL_ERROR"
	CodeServiceUnavailable       Code = "SERVICE_UNAVAILABLE"
	CodeUnknown                  Code = "UNKNOWN_ERROR"
)

// Severity ranks how serious an error class is
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// codeInfo carries the per-code defaults, independent of call site
type codeInfo struct {
	severity    Severity
	retryable   bool
	autoRetry   bool
	remediation string
}

var taxonomy = map[Code]codeInfo{
	CodeConnectionFailed:         {severity: SeverityMedium, retryable: true},
	CodeTimeout:                  {severity: SeverityMedium, retryable: true},
	CodeRateLimited:              {severity: SeverityLow, retryable: true, autoRetry: true, remediation: "back off and retry after the rate limit window"},
	CodeAuthFailed:               {severity: SeverityHigh, retryable: false},
	CodePermissionDenied:         {severity: SeverityHigh, retryable: false},
	CodeTokenExpired:             {severity: SeverityMedium, retryable: false, remediation: "refresh the access token and retry the sync"},
	CodeRepositoryNotFound:       {severity: SeverityHigh, retryable: false},
	CodeBranchNotFound:           {severity: SeverityMedium, retryable: false, remediation: "verify the branch exists or remove it from the sync targets"},
	CodeFileNotFound:             {severity: SeverityLow, retryable: false},
	CodeInvalidJSON:              {severity: SeverityMedium, retryable: false},
	CodeSchemaValidationFailed:   {severity: SeverityMedium, retryable: false},
	CodeUnsupportedFormat:        {severity: SeverityMedium, retryable: false},
	CodeSyncLockFailed:           {severity: SeverityMedium, retryable: true, remediation: "another sync is in progress; retry after it completes or the lock TTL expires"},
	CodeConflictResolutionFailed: {severity: SeverityHigh, retryable: false},
	CodeStorageError:             {severity: SeverityCritical, retryable: false},
	CodeInternalError:            {severity: SeverityCritical, retryable: false},
	CodeServiceUnavailable:       {severity: SeverityHigh, retryable: true},
	CodeUnknown:                  {severity: SeverityMedium, retryable: false},
}

// Context carries the call-site information recorded with a classified error
type Context struct {
	ProjectID string `json:"project_id,omitempty"`
	Branch    string `json:"branch,omitempty"`
	Operation string `json:"operation,omitempty"`
}

// SyncError is a classified error. It wraps the original cause and is
// usable with errors.As so layers above can branch on the code.
type SyncError struct {
	Code        Code      `json:"code"`
	Severity    Severity  `json:"severity"`
	Retryable   bool      `json:"retryable"`
	AutoRetry   bool      `json:"auto_retry"`
	Remediation string    `json:"remediation,omitempty"`
	Context     Context   `json:"context"`
	OccurredAt  time.Time `json:"occurred_at"`

	cause error
}

func (e *SyncError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.cause)
	}
	return string(e.Code)
}

func (e *SyncError) Unwrap() error {
	return e.cause
}

// New creates a SyncError with the taxonomy defaults for code
func New(code Code, cause error, errCtx Context) *SyncError {
	info, ok := taxonomy[code]
	if !ok {
		code = CodeUnknown
		info = taxonomy[CodeUnknown]
	}
	return &SyncError{
		Code:        code,
		Severity:    info.severity,
		Retryable:   info.retryable,
		AutoRetry:   info.autoRetry,
		Remediation: info.remediation,
		Context:     errCtx,
		OccurredAt:  time.Now().UTC(),
		cause:       cause,
	}
}

// Classify maps an error into the taxonomy. Structured causes from our own
// packages match first; message-substring matching remains as a fallback
// for errors from opaque external calls. First match wins; the default is
// UNKNOWN_ERROR.
func Classify(err error, errCtx Context) *SyncError {
	if err == nil {
		return nil
	}

	var already *SyncError
	if errors.As(err, &already) {
		return already
	}

	if code, ok := structuredCode(err); ok {
		return New(code, err, errCtx)
	}
	return New(messageCode(err.Error()), err, errCtx)
}

// structuredCode matches sentinel errors exposed by collaborating packages
func structuredCode(err error) (Code, bool) {
	switch {
	case errors.Is(err, lock.ErrLockHeld):
		return CodeSyncLockFailed, true
	case errors.Is(err, manifest.ErrInvalidJSON):
		return CodeInvalidJSON, true
	case errors.Is(err, manifest.ErrNoTaskList):
		return CodeUnsupportedFormat, true
	case errors.Is(err, context.DeadlineExceeded):
		return CodeTimeout, true
	default:
		return "", false
	}
}

// messageCode pattern-matches an error message against the taxonomy
// categories, most specific first: network/timeout/rate-limit, auth,
// repository, parse/schema, lock/conflict/storage.
func messageCode(msg string) Code {
	m := strings.ToLower(msg)

	switch {
	case containsAny(m, "rate limit", "too many requests", "429"):
		return CodeRateLimited
	case containsAny(m, "timeout", "timed out", "deadline exceeded"):
		return CodeTimeout
	case containsAny(m, "connection refused", "connection reset", "no such host", "network", "dial tcp"):
		return CodeConnectionFailed
	case containsAny(m, "token expired", "expired token"):
		return CodeTokenExpired
	case containsAny(m, "unauthorized", "authentication", "bad credentials", "401"):
		return CodeAuthFailed
	case containsAny(m, "permission denied", "forbidden", "403"):
		return CodePermissionDenied
	case containsAny(m, "repository not found", "repo not found"):
		return CodeRepositoryNotFound
	case containsAny(m, "branch not found", "reference not found", "unknown branch"):
		return CodeBranchNotFound
	case containsAny(m, "file not found", "no such file", "file does not exist"):
		return CodeFileNotFound
	case containsAny(m, "invalid json", "invalid character", "unexpected end of json"):
		return CodeInvalidJSON
	case containsAny(m, "schema validation", "validation failed"):
		return CodeSchemaValidationFailed
	case containsAny(m, "unsupported format", "no task list"):
		return CodeUnsupportedFormat
	case containsAny(m, "lock already held", "sync in progress", "lock"):
		return CodeSyncLockFailed
	case containsAny(m, "conflict resolution"):
		return CodeConflictResolutionFailed
	case containsAny(m, "database", "sql", "storage", "pq:"):
		return CodeStorageError
	case containsAny(m, "service unavailable", "503", "bad gateway", "502"):
		return CodeServiceUnavailable
	default:
		return CodeUnknown
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
