package models

import "time"

// SyncStrategy selects how branches map onto task namespaces
type SyncStrategy string

const (
	// SyncStrategyBranchIsolated keeps one tag per branch
	SyncStrategyBranchIsolated SyncStrategy = "branch-isolated"
	// SyncStrategyMerged folds all branches into the default tag
	SyncStrategyMerged SyncStrategy = "merged"
	// SyncStrategyFeatureBranchOnly syncs only feature branches, isolated
	SyncStrategyFeatureBranchOnly SyncStrategy = "feature-branch-only"
)

// MappingMetadata carries bookkeeping captured at the last sync of a mapping
type MappingMetadata struct {
	CommitRef    string     `json:"commit_ref,omitempty"`
	LastModified *time.Time `json:"last_modified,omitempty"`
	TaskCount    int        `json:"task_count"`
}

// BranchTagMapping binds a repository branch to a logical tag
type BranchTagMapping struct {
	ProjectID string          `json:"project_id"`
	Branch    string          `json:"branch"`
	Tag       string          `json:"tag"`
	IsDefault bool            `json:"is_default"`
	LastSync  *time.Time      `json:"last_sync,omitempty"`
	Metadata  MappingMetadata `json:"metadata"`
}

// TagSystemConfig is the per-project configuration for branch-to-tag
// resolution. Changing it invalidates all derived mapping cache entries
// for the project.
type TagSystemConfig struct {
	ProjectID      string            `json:"project_id"`
	DefaultTag     string            `json:"default_tag"`
	BranchMappings map[string]string `json:"branch_mappings,omitempty"`
	AutoCreateTags bool              `json:"auto_create_tags"`
	SyncStrategy   SyncStrategy      `json:"sync_strategy,omitempty"`
}

// DefaultTagOrFallback returns the configured default tag, or "master"
// when the config leaves it empty.
func (c *TagSystemConfig) DefaultTagOrFallback() string {
	if c == nil || c.DefaultTag == "" {
		return "master"
	}
	return c.DefaultTag
}
