package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/benvon/tasksync/internal/cache"
	"github.com/benvon/tasksync/internal/database"
	"github.com/benvon/tasksync/internal/gitrepo"
	"github.com/benvon/tasksync/internal/tagmap"
)

// NewBranchesCmd creates the branches command
func NewBranchesCmd() *cobra.Command {
	var (
		profilePath string
		projectID   string
		repoPath    string
		strategy    string
		tagHint     string
	)

	cmd := &cobra.Command{
		Use:   "branches",
		Short: "List repository branches and the tag each maps to",
		RunE: func(cmd *cobra.Command, args []string) error {
			profile, err := LoadProfile(profilePath)
			if err != nil {
				return err
			}
			profile.resolve(&projectID, &repoPath, &strategy, &tagHint)

			if projectID == "" || repoPath == "" {
				return fmt.Errorf("required: --project and --repo (or profile values)")
			}

			_, db, err := openDatabase()
			if err != nil {
				return err
			}
			defer closeDatabase(db)

			gitClient, err := gitrepo.Open(repoPath)
			if err != nil {
				return fmt.Errorf("failed to open repository: %w", err)
			}

			ctx := context.Background()
			branches, err := gitClient.ListBranches(ctx)
			if err != nil {
				return fmt.Errorf("failed to list branches: %w", err)
			}

			tagConfigRepo := database.NewTagConfigRepository(db)
			mapper := tagmap.NewMapper(tagConfigRepo, tagConfigRepo, cache.NewMemoryCache(), 0, zap.NewNop())

			current, err := gitClient.CurrentRef(ctx)
			if err != nil {
				current = ""
			}

			fmt.Printf("%-40s %-30s %s\n", "BRANCH", "TAG", "")
			for _, branch := range branches {
				tag, err := mapper.TagForBranch(ctx, projectID, branch.Name)
				if err != nil {
					tag = "(error: " + err.Error() + ")"
				}
				marker := ""
				if branch.Name == current {
					marker = "*"
				}
				fmt.Printf("%-40s %-30s %s\n", branch.Name, tag, marker)
			}

			mappings, err := mapper.Mappings(ctx, projectID)
			if err == nil && len(mappings) > 0 {
				fmt.Printf("\nRecommended strategy: %s\n", tagmap.RecommendStrategy(mappings))
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&profilePath, "config", "", "Profile file (default ~/.syncctl.yaml)")
	cmd.Flags().StringVar(&projectID, "project", "", "Project identifier")
	cmd.Flags().StringVar(&repoPath, "repo", "", "Path to the git repository")

	return cmd
}
