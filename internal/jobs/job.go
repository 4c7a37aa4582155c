package jobs

import (
	"time"

	"github.com/google/uuid"
)

// JobType represents the type of sync job
type JobType string

const (
	// JobTypeSyncBranch is a job for syncing a single branch of a repository
	JobTypeSyncBranch JobType = "sync_branch"
	// JobTypeSyncAll is a job for syncing every branch of a repository
	JobTypeSyncAll JobType = "sync_all"
)

// SyncJob represents a queued synchronization request
type SyncJob struct {
	ID               uuid.UUID      `json:"id"`
	Type             JobType        `json:"type"`
	ProjectID        string         `json:"project_id"`
	RepoPath         string         `json:"repo_path"`
	Branch           string         `json:"branch,omitempty"`
	TagHint          string         `json:"tag_hint,omitempty"`
	ConflictStrategy string         `json:"conflict_strategy,omitempty"`
	DryRun           bool           `json:"dry_run,omitempty"`
	ForceFullSync    bool           `json:"force_full_sync,omitempty"`
	IncludeBranches  []string       `json:"include_branches,omitempty"`
	ExcludeBranches  []string       `json:"exclude_branches,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	RetryCount       int            `json:"retry_count"`
	MaxRetries       int            `json:"max_retries"`
}

// NewSyncJob creates a sync job for one branch of a repository
func NewSyncJob(jobType JobType, projectID, repoPath, branch string) *SyncJob {
	return &SyncJob{
		ID:         uuid.New(),
		Type:       jobType,
		ProjectID:  projectID,
		RepoPath:   repoPath,
		Branch:     branch,
		Metadata:   make(map[string]any),
		CreatedAt:  time.Now(),
		RetryCount: 0,
		MaxRetries: 3,
	}
}

// CanRetry checks if the job can be retried
func (j *SyncJob) CanRetry() bool {
	return j.RetryCount < j.MaxRetries
}

// IncrementRetry increments the retry count
func (j *SyncJob) IncrementRetry() {
	j.RetryCount++
}
