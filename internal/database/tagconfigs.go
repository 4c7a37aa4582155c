package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/benvon/tasksync/internal/models"
)

// TagConfigRepository stores per-project tag system configuration and the
// branch mappings derived from it.
type TagConfigRepository struct {
	db *DB
}

// NewTagConfigRepository creates a new tag config repository
func NewTagConfigRepository(db *DB) *TagConfigRepository {
	return &TagConfigRepository{db: db}
}

// GetTagConfig returns the project's config, or nil when none exists
func (r *TagConfigRepository) GetTagConfig(ctx context.Context, projectID string) (*models.TagSystemConfig, error) {
	query := `SELECT config FROM tag_configs WHERE project_id = $1`

	var payload []byte
	err := r.db.QueryRowContext(ctx, query, projectID).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tag config for %s: %w", projectID, err)
	}

	cfg := &models.TagSystemConfig{}
	if err := json.Unmarshal(payload, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tag config for %s: %w", projectID, err)
	}
	return cfg, nil
}

// SaveTagConfig stores the project's config. Callers must invalidate the
// mapping cache afterwards.
func (r *TagConfigRepository) SaveTagConfig(ctx context.Context, cfg *models.TagSystemConfig) error {
	payload, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal tag config: %w", err)
	}

	query := `
		INSERT INTO tag_configs (project_id, config, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (project_id) DO UPDATE SET
			config = EXCLUDED.config,
			updated_at = EXCLUDED.updated_at
	`
	if _, err := r.db.ExecContext(ctx, query, cfg.ProjectID, payload, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to save tag config for %s: %w", cfg.ProjectID, err)
	}
	return nil
}

// UpsertMapping creates or updates a branch mapping record
func (r *TagConfigRepository) UpsertMapping(ctx context.Context, mapping *models.BranchTagMapping) error {
	metadata, err := json.Marshal(mapping.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal mapping metadata: %w", err)
	}

	var lastSync sql.NullTime
	if mapping.LastSync != nil {
		lastSync = sql.NullTime{Time: *mapping.LastSync, Valid: true}
	}

	query := `
		INSERT INTO branch_mappings (project_id, branch, tag, is_default, last_sync, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (project_id, branch) DO UPDATE SET
			tag = EXCLUDED.tag,
			is_default = EXCLUDED.is_default,
			last_sync = EXCLUDED.last_sync,
			metadata = EXCLUDED.metadata
	`
	_, err = r.db.ExecContext(ctx, query,
		mapping.ProjectID, mapping.Branch, mapping.Tag, mapping.IsDefault, lastSync, metadata)
	if err != nil {
		return fmt.Errorf("failed to upsert mapping %s->%s: %w", mapping.Branch, mapping.Tag, err)
	}
	return nil
}

// ListMappings returns every recorded mapping for a project
func (r *TagConfigRepository) ListMappings(ctx context.Context, projectID string) ([]*models.BranchTagMapping, error) {
	query := `
		SELECT project_id, branch, tag, is_default, last_sync, metadata
		FROM branch_mappings
		WHERE project_id = $1
		ORDER BY branch
	`
	rows, err := r.db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query mappings: %w", err)
	}
	defer rows.Close()

	var mappings []*models.BranchTagMapping
	for rows.Next() {
		mapping := &models.BranchTagMapping{}
		var lastSync sql.NullTime
		var metadata []byte

		err := rows.Scan(
			&mapping.ProjectID,
			&mapping.Branch,
			&mapping.Tag,
			&mapping.IsDefault,
			&lastSync,
			&metadata,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan mapping: %w", err)
		}

		if lastSync.Valid {
			mapping.LastSync = &lastSync.Time
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &mapping.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal mapping metadata: %w", err)
			}
		}
		mappings = append(mappings, mapping)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating mappings: %w", err)
	}
	return mappings, nil
}
