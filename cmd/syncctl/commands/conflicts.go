package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/benvon/tasksync/internal/conflict"
	"github.com/benvon/tasksync/internal/database"
	"github.com/benvon/tasksync/internal/models"
)

// NewConflictsCmd creates the conflicts command group
func NewConflictsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "conflicts",
		Short: "Inspect and resolve pending sync conflicts",
	}

	cmd.AddCommand(newConflictsListCmd())
	cmd.AddCommand(newConflictsResolveCmd())
	cmd.AddCommand(newConflictsPruneCmd())

	return cmd
}

func newConflictsListCmd() *cobra.Command {
	var (
		profilePath string
		projectID   string
		history     bool
		limit       int
		unused      string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List pending conflicts for a project",
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

			ctx := context.Background()
			conflictRepo := database.NewConflictRepository(db)

			var items []*models.ConflictItem
			if history {
				items, err = conflictRepo.ListHistory(ctx, projectID, limit)
			} else {
				items, err = conflictRepo.ListPending(ctx, projectID)
			}
			if err != nil {
				return fmt.Errorf("failed to list conflicts: %w", err)
			}

			if len(items) == 0 {
				fmt.Println("No conflicts")
				return nil
			}

			fmt.Printf("%-38s %-24s %-24s %s\n", "ID", "TASK", "TYPE", "DETECTED")
			for _, item := range items {
				fmt.Printf("%-38s %-24s %-24s %s\n",
					item.ID, item.TaskID, item.Type, item.DetectedAt.Format(time.RFC3339))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&profilePath, "config", "", "Profile file (default ~/.syncctl.yaml)")
	cmd.Flags().StringVar(&projectID, "project", "", "Project identifier")
	cmd.Flags().BoolVar(&history, "history", false, "Show resolved conflicts instead of pending ones")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum history entries to show")

	return cmd
}

func newConflictsResolveCmd() *cobra.Command {
	var (
		strategy   string
		taskFile   string
		resolvedBy string
	)

	cmd := &cobra.Command{
		Use:   "resolve <conflict-id>",
		Short: "Resolve a pending conflict with the given strategy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid conflict id: %w", err)
			}

			if strategy == "" {
				return fmt.Errorf("required: --strategy")
			}

			var custom *models.Task
			if taskFile != "" {
				data, err := os.ReadFile(taskFile)
				if err != nil {
					return fmt.Errorf("failed to read task file: %w", err)
				}
				custom = &models.Task{}
				if err := json.Unmarshal(data, custom); err != nil {
					return fmt.Errorf("failed to parse task file: %w", err)
				}
			}

			_, db, err := openDatabase()
			if err != nil {
				return err
			}
			defer closeDatabase(db)

			resolver := conflict.NewResolver(database.NewConflictRepository(db), zap.NewNop())

			item, err := resolver.Resolve(context.Background(), id,
				models.ResolutionStrategy(strategy), custom, resolvedBy)
			if err != nil {
				return fmt.Errorf("failed to resolve conflict: %w", err)
			}

			fmt.Printf("Resolved conflict %s (task %s) with %s\n", item.ID, item.TaskID, strategy)
			return nil
		},
	}

	cmd.Flags().StringVar(&strategy, "strategy", "", "Resolution strategy (ACCEPT_LOCAL, ACCEPT_REMOTE, MERGE_FIELDS, CUSTOM_MERGE, DEFER)")
	cmd.Flags().StringVar(&taskFile, "task-file", "", "JSON task payload for CUSTOM_MERGE")
	cmd.Flags().StringVar(&resolvedBy, "by", "syncctl", "Resolver identity recorded on the conflict")

	return cmd
}

func newConflictsPruneCmd() *cobra.Command {
	var retention time.Duration

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete resolved conflicts older than the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, db, err := openDatabase()
			if err != nil {
				return err
			}
			defer closeDatabase(db)

			resolver := conflict.NewResolver(database.NewConflictRepository(db), zap.NewNop())

			pruned, err := resolver.PruneHistory(context.Background(), retention)
			if err != nil {
				return fmt.Errorf("failed to prune conflict history: %w", err)
			}

			fmt.Printf("Pruned %d resolved conflicts\n", pruned)
			return nil
		},
	}

	cmd.Flags().DurationVar(&retention, "retention", 30*24*time.Hour, "Keep resolved conflicts newer than this")

	return cmd
}
