package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/benvon/tasksync/internal/cache"
	"github.com/benvon/tasksync/internal/database"
	"github.com/benvon/tasksync/internal/models"
	"github.com/benvon/tasksync/internal/tagmap"
)

// NewMappingsCmd creates the mappings command group
func NewMappingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mappings",
		Short: "Inspect and manage branch-to-tag mappings",
	}

	cmd.AddCommand(newMappingsListCmd())
	cmd.AddCommand(newMappingsSetCmd())

	return cmd
}

func newMappingsListCmd() *cobra.Command {
	var (
		profilePath string
		projectID   string
		unused      string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded branch-to-tag mappings for a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			profile, err := LoadProfile(profilePath)
			if err != nil {
				return err
			}
			profile.resolve(&projectID, &unused, &unused, &unused)

			if projectID == "" {
				return fmt.Errorf("required: --project (or profile value)")
			}

			_, db, err := openDatabase()
			if err != nil {
				return err
			}
			defer closeDatabase(db)

			tagConfigRepo := database.NewTagConfigRepository(db)
			mappings, err := tagConfigRepo.ListMappings(context.Background(), projectID)
			if err != nil {
				return fmt.Errorf("failed to list mappings: %w", err)
			}

			if len(mappings) == 0 {
				fmt.Println("No mappings recorded")
				return nil
			}

			fmt.Printf("%-40s %-30s %-10s %s\n", "BRANCH", "TAG", "DEFAULT", "LAST SYNC")
			for _, m := range mappings {
				lastSync := "-"
				if m.LastSync != nil {
					lastSync = m.LastSync.Format(time.RFC3339)
				}
				fmt.Printf("%-40s %-30s %-10v %s\n", m.Branch, m.Tag, m.IsDefault, lastSync)
			}

			fmt.Printf("\nRecommended strategy: %s\n", tagmap.RecommendStrategy(mappings))
			return nil
		},
	}

	cmd.Flags().StringVar(&profilePath, "config", "", "Profile file (default ~/.syncctl.yaml)")
	cmd.Flags().StringVar(&projectID, "project", "", "Project identifier")

	return cmd
}

func newMappingsSetCmd() *cobra.Command {
	var (
		profilePath string
		projectID   string
		isDefault   bool
		unused      string
	)

	cmd := &cobra.Command{
		Use:   "set <branch> <tag>",
		Short: "Pin a branch to an explicit tag",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			branch, tag := args[0], args[1]

			profile, err := LoadProfile(profilePath)
			if err != nil {
				return err
			}
			profile.resolve(&projectID, &unused, &unused, &unused)

			if projectID == "" {
				return fmt.Errorf("required: --project (or profile value)")
			}

			cfg, db, err := openDatabase()
			if err != nil {
				return err
			}
			defer closeDatabase(db)

			ctx := context.Background()

			// The daemon caches resolutions in redis, so the invalidation
			// must go through the shared cache, not a local one.
			redisClient, err := cache.NewRedisClient(ctx, cfg.RedisURL)
			if err != nil {
				return fmt.Errorf("failed to connect to Redis: %w", err)
			}
			defer func() {
				if err := redisClient.Close(); err != nil {
					fmt.Fprintf(os.Stderr, "Warning: failed to close Redis connection: %v\n", err)
				}
			}()

			tagConfigRepo := database.NewTagConfigRepository(db)
			mapper := tagmap.NewMapper(tagConfigRepo, tagConfigRepo, cache.NewRedisCache(redisClient), 0, zap.NewNop())

			mapping := &models.BranchTagMapping{
				ProjectID: projectID,
				Branch:    branch,
				Tag:       tag,
				IsDefault: isDefault,
			}
			if err := mapper.SetMapping(ctx, mapping); err != nil {
				return fmt.Errorf("failed to set mapping: %w", err)
			}

			fmt.Printf("Mapped %s -> %s for project %s\n", branch, tag, projectID)
			return nil
		},
	}

	cmd.Flags().StringVar(&profilePath, "config", "", "Profile file (default ~/.syncctl.yaml)")
	cmd.Flags().StringVar(&projectID, "project", "", "Project identifier")
	cmd.Flags().BoolVar(&isDefault, "default", false, "Mark this tag as the project default")

	return cmd
}
