// Package tagmap resolves repository branch names to logical task tags.
package tagmap

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/benvon/tasksync/internal/cache"
	"github.com/benvon/tasksync/internal/models"
	"github.com/benvon/tasksync/internal/validation"
)

// DefaultCacheTTL bounds how long a resolved mapping is served without
// re-deriving it from config.
const DefaultCacheTTL = 5 * time.Minute

// patternRule maps a branch name pattern onto a tag template. {branch} is
// replaced with the sanitized remainder after the prefix.
type patternRule struct {
	prefix   string // matched with strings.HasPrefix; exact match when noSuffix
	exact    bool
	template string
}

// patternRules are tried in order when autoCreateTags is enabled; the
// first match wins. main and master resolve to the project default tag,
// marked with an empty template.
var patternRules = []patternRule{
	{prefix: "feature/", template: "feat-{branch}"},
	{prefix: "feat/", template: "feat-{branch}"},
	{prefix: "bugfix/", template: "fix-{branch}"},
	{prefix: "fix/", template: "fix-{branch}"},
	{prefix: "hotfix/", template: "hotfix-{branch}"},
	{prefix: "release/", template: "release-{branch}"},
	{prefix: "develop", exact: true, template: "develop"},
	{prefix: "staging", exact: true, template: "staging"},
	{prefix: "main", exact: true, template: ""},
	{prefix: "master", exact: true, template: ""},
}

// ConfigSource supplies per-project tag system configuration
type ConfigSource interface {
	// GetTagConfig returns the project's config, or nil when none exists
	GetTagConfig(ctx context.Context, projectID string) (*models.TagSystemConfig, error)
}

// MappingStore persists resolved branch-tag mappings
type MappingStore interface {
	UpsertMapping(ctx context.Context, mapping *models.BranchTagMapping) error
	ListMappings(ctx context.Context, projectID string) ([]*models.BranchTagMapping, error)
}

// Mapper resolves branches to tags with a TTL cache over derived results.
// Cache entries are invalidated whenever the owning config or an explicit
// mapping changes.
type Mapper struct {
	configs  ConfigSource
	mappings MappingStore
	cache    cache.Cache
	cacheTTL time.Duration
	logger   *zap.Logger
}

// NewMapper creates a mapper. A zero cacheTTL uses DefaultCacheTTL.
func NewMapper(configs ConfigSource, mappings MappingStore, c cache.Cache, cacheTTL time.Duration, logger *zap.Logger) *Mapper {
	if cacheTTL <= 0 {
		cacheTTL = DefaultCacheTTL
	}
	return &Mapper{
		configs:  configs,
		mappings: mappings,
		cache:    c,
		cacheTTL: cacheTTL,
		logger:   logger,
	}
}

func cacheKey(projectID, branch string) string {
	return "tagmap:" + projectID + ":" + branch
}

func projectPrefix(projectID string) string {
	return "tagmap:" + projectID + ":"
}

// TagForBranch resolves the logical tag for a branch. Resolution order:
// cached result, explicit config entry, pattern rules (when
// autoCreateTags), sanitized branch name, project default tag. Every
// resolution is cached and recorded as a mapping.
func (m *Mapper) TagForBranch(ctx context.Context, projectID, branch string) (string, error) {
	if cached, ok, err := m.cache.Get(ctx, cacheKey(projectID, branch)); err != nil {
		m.logger.Warn("tag cache read failed", zap.String("branch", branch), zap.Error(err))
	} else if ok {
		return cached, nil
	}

	cfg, err := m.configs.GetTagConfig(ctx, projectID)
	if err != nil {
		return "", fmt.Errorf("failed to load tag config for %s: %w", projectID, err)
	}

	tag, isDefault := resolveTag(cfg, branch)

	if err := m.cache.Set(ctx, cacheKey(projectID, branch), tag, m.cacheTTL); err != nil {
		m.logger.Warn("tag cache write failed", zap.String("branch", branch), zap.Error(err))
	}

	now := time.Now().UTC()
	mapping := &models.BranchTagMapping{
		ProjectID: projectID,
		Branch:    branch,
		Tag:       tag,
		IsDefault: isDefault,
		LastSync:  &now,
	}
	if err := m.mappings.UpsertMapping(ctx, mapping); err != nil {
		// Mapping persistence is bookkeeping; resolution still succeeded
		m.logger.Warn("failed to persist branch mapping",
			zap.String("project_id", projectID),
			zap.String("branch", branch),
			zap.Error(err),
		)
	}

	return tag, nil
}

// resolveTag derives a tag without touching cache or storage
func resolveTag(cfg *models.TagSystemConfig, branch string) (tag string, isDefault bool) {
	defaultTag := cfg.DefaultTagOrFallback()

	if cfg != nil {
		if explicit, ok := cfg.BranchMappings[branch]; ok && explicit != "" {
			return explicit, explicit == defaultTag
		}
		if cfg.AutoCreateTags {
			if tag, ok := matchPattern(branch, defaultTag); ok {
				return tag, tag == defaultTag
			}
		}
	}

	if sanitized := validation.SanitizeTagName(branch); sanitized != "" {
		return sanitized, sanitized == defaultTag
	}
	return defaultTag, true
}

// matchPattern applies the ordered pattern rules to a branch name
func matchPattern(branch, defaultTag string) (string, bool) {
	for _, rule := range patternRules {
		if rule.exact {
			if branch != rule.prefix {
				continue
			}
			if rule.template == "" {
				return defaultTag, true
			}
			return rule.template, true
		}
		if !strings.HasPrefix(branch, rule.prefix) {
			continue
		}
		remainder := validation.SanitizeTagName(strings.TrimPrefix(branch, rule.prefix))
		if remainder == "" {
			continue
		}
		return strings.ReplaceAll(rule.template, "{branch}", remainder), true
	}
	return "", false
}

// SetMapping records an explicit branch mapping and invalidates the cached
// resolution for that branch.
func (m *Mapper) SetMapping(ctx context.Context, mapping *models.BranchTagMapping) error {
	if err := m.mappings.UpsertMapping(ctx, mapping); err != nil {
		return fmt.Errorf("failed to save mapping %s->%s: %w", mapping.Branch, mapping.Tag, err)
	}
	if err := m.cache.Delete(ctx, cacheKey(mapping.ProjectID, mapping.Branch)); err != nil {
		return fmt.Errorf("failed to invalidate mapping cache: %w", err)
	}
	return nil
}

// InvalidateProject drops every cached mapping for a project. Call after
// any TagSystemConfig change.
func (m *Mapper) InvalidateProject(ctx context.Context, projectID string) error {
	if err := m.cache.DeletePrefix(ctx, projectPrefix(projectID)); err != nil {
		return fmt.Errorf("failed to invalidate mappings for %s: %w", projectID, err)
	}
	return nil
}

// Mappings lists the recorded branch mappings for a project
func (m *Mapper) Mappings(ctx context.Context, projectID string) ([]*models.BranchTagMapping, error) {
	return m.mappings.ListMappings(ctx, projectID)
}

// mergedBranchThreshold is the branch count at or below which a single
// merged tag is the simpler setup.
const mergedBranchThreshold = 3

// featureShareThreshold is the feature-branch ratio above which
// feature-branch-only syncing is recommended.
const featureShareThreshold = 0.7

// RecommendStrategy suggests a sync strategy from observed mappings
func RecommendStrategy(mappings []*models.BranchTagMapping) models.SyncStrategy {
	if len(mappings) <= mergedBranchThreshold {
		return models.SyncStrategyMerged
	}

	uniqueTags := make(map[string]struct{}, len(mappings))
	featureCount := 0
	for _, mapping := range mappings {
		uniqueTags[mapping.Tag] = struct{}{}
		if strings.HasPrefix(mapping.Branch, "feature/") || strings.HasPrefix(mapping.Branch, "feat/") {
			featureCount++
		}
	}

	if len(uniqueTags) == len(mappings) {
		return models.SyncStrategyBranchIsolated
	}
	if float64(featureCount)/float64(len(mappings)) > featureShareThreshold {
		return models.SyncStrategyFeatureBranchOnly
	}
	return models.SyncStrategyBranchIsolated
}
