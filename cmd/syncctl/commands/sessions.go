package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/benvon/tasksync/internal/database"
)

// NewSessionsCmd creates the sessions command
func NewSessionsCmd() *cobra.Command {
	var (
		profilePath string
		projectID   string
		limit       int
		unused      string
	)

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List recent sync sessions for a project",
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

			sessions, err := database.NewSessionRepository(db).ListRecent(context.Background(), projectID, limit)
			if err != nil {
				return fmt.Errorf("failed to list sessions: %w", err)
			}

			if len(sessions) == 0 {
				fmt.Println("No sessions recorded")
				return nil
			}

			fmt.Printf("%-38s %-20s %-16s %-10s %-8s %s\n",
				"ID", "BRANCH", "TAG", "STATUS", "CHANGES", "STARTED")
			for _, s := range sessions {
				changes := fmt.Sprintf("+%d~%d-%d", s.TasksAdded, s.TasksUpdated, s.TasksRemoved)
				fmt.Printf("%-38s %-20s %-16s %-10s %-8s %s\n",
					s.ID, s.Branch, s.Tag, s.Status, changes, s.StartedAt.Format(time.RFC3339))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&profilePath, "config", "", "Profile file (default ~/.syncctl.yaml)")
	cmd.Flags().StringVar(&projectID, "project", "", "Project identifier")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum sessions to show")

	return cmd
}
