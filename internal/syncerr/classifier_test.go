package syncerr

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/benvon/tasksync/internal/lock"
	"github.com/benvon/tasksync/internal/manifest"
)

func TestClassify_StructuredCauses(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want Code
	}{
		{name: "lock held", err: fmt.Errorf("sync: %w", lock.ErrLockHeld), want: CodeSyncLockFailed},
		{name: "invalid json", err: fmt.Errorf("parse: %w", manifest.ErrInvalidJSON), want: CodeInvalidJSON},
		{name: "no task list", err: fmt.Errorf("parse: %w", manifest.ErrNoTaskList), want: CodeUnsupportedFormat},
		{name: "deadline exceeded", err: fmt.Errorf("fetch: %w", context.DeadlineExceeded), want: CodeTimeout},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			serr := Classify(tt.err, Context{})
			if serr.Code != tt.want {
				t.Errorf("Classify() code = %s, want %s", serr.Code, tt.want)
			}
			if !errors.Is(serr, tt.err) && serr.Unwrap() == nil {
				t.Error("Expected classified error to wrap the cause")
			}
		})
	}
}

func TestClassify_MessageFallback(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		msg  string
		want Code
	}{
		{name: "rate limit", msg: "GitHub API rate limit exceeded", want: CodeRateLimited},
		{name: "429 status", msg: "unexpected status 429", want: CodeRateLimited},
		{name: "timeout", msg: "request timed out after 30s", want: CodeTimeout},
		{name: "connection refused", msg: "dial tcp 10.0.0.1:5432: connection refused", want: CodeConnectionFailed},
		{name: "token expired", msg: "token expired at 12:00", want: CodeTokenExpired},
		{name: "auth failed", msg: "401 Unauthorized", want: CodeAuthFailed},
		{name: "permission denied", msg: "permission denied for ref", want: CodePermissionDenied},
		{name: "repository not found", msg: "repository not found: acme/x", want: CodeRepositoryNotFound},
		{name: "branch not found", msg: "reference not found", want: CodeBranchNotFound},
		{name: "file not found", msg: "tasks.json: no such file", want: CodeFileNotFound},
		{name: "invalid json", msg: "invalid character '}' looking for beginning of value", want: CodeInvalidJSON},
		{name: "schema validation", msg: "schema validation failed on field title", want: CodeSchemaValidationFailed},
		{name: "lock contention", msg: "sync in progress for repo", want: CodeSyncLockFailed},
		{name: "conflict resolution", msg: "conflict resolution aborted", want: CodeConflictResolutionFailed},
		{name: "storage", msg: "pq: connection terminated", want: CodeStorageError},
		{name: "service unavailable", msg: "upstream returned 503", want: CodeServiceUnavailable},
		{name: "unknown", msg: "something odd happened", want: CodeUnknown},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			serr := Classify(errors.New(tt.msg), Context{})
			if serr.Code != tt.want {
				t.Errorf("Classify(%q) code = %s, want %s", tt.msg, serr.Code, tt.want)
			}
		})
	}
}

func TestClassify_RateLimitBeforeTimeout(t *testing.T) {
	t.Parallel()

	// A message matching both categories takes the first in category order
	serr := Classify(errors.New("rate limit hit, request timed out"), Context{})
	if serr.Code != CodeRateLimited {
		t.Errorf("Expected RATE_LIMITED to win, got %s", serr.Code)
	}
}

func TestClassify_TaxonomyDefaults(t *testing.T) {
	t.Parallel()

	rate := Classify(errors.New("too many requests"), Context{})
	if !rate.Retryable || !rate.AutoRetry {
		t.Error("Expected rate limiting to be retryable with auto-retry")
	}
	if rate.Remediation == "" {
		t.Error("Expected a remediation hint for rate limiting")
	}

	storage := Classify(errors.New("pq: out of disk"), Context{})
	if storage.Severity != SeverityCritical {
		t.Errorf("Expected storage errors to be critical, got %s", storage.Severity)
	}
	if storage.Retryable {
		t.Error("Expected storage errors to not be retryable")
	}

	lockErr := Classify(fmt.Errorf("acquire: %w", lock.ErrLockHeld), Context{})
	if !lockErr.Retryable {
		t.Error("Expected lock contention to be retryable")
	}
}

func TestClassify_PassthroughAndContext(t *testing.T) {
	t.Parallel()

	original := New(CodeBranchNotFound, errors.New("missing"), Context{ProjectID: "p", Branch: "b"})

	reclassified := Classify(fmt.Errorf("wrapped: %w", original), Context{ProjectID: "other"})
	if reclassified != original {
		t.Error("Expected an already-classified error to pass through unchanged")
	}
	if reclassified.Context.ProjectID != "p" {
		t.Errorf("Expected original context preserved, got %q", reclassified.Context.ProjectID)
	}

	if Classify(nil, Context{}) != nil {
		t.Error("Expected nil for a nil error")
	}
}

func TestSyncError_ErrorsAs(t *testing.T) {
	t.Parallel()

	serr := New(CodeTimeout, errors.New("slow"), Context{})
	wrapped := fmt.Errorf("outer: %w", serr)

	var target *SyncError
	if !errors.As(wrapped, &target) {
		t.Fatal("Expected errors.As to find the SyncError")
	}
	if target.Code != CodeTimeout {
		t.Errorf("Expected TIMEOUT, got %s", target.Code)
	}
}
