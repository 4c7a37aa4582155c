package commands

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/benvon/tasksync/internal/database"
)

// NewErrorsCmd creates the errors command
func NewErrorsCmd() *cobra.Command {
	var (
		since time.Duration
		prune time.Duration
	)

	cmd := &cobra.Command{
		Use:   "errors",
		Short: "Show sync error counts by classification code",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, db, err := openDatabase()
			if err != nil {
				return err
			}
			defer closeDatabase(db)

			ctx := context.Background()
			errRepo := database.NewSyncErrorRepository(db)

			if prune > 0 {
				pruned, err := errRepo.Prune(ctx, time.Now().Add(-prune))
				if err != nil {
					return fmt.Errorf("failed to prune errors: %w", err)
				}
				fmt.Printf("Pruned %d error records\n", pruned)
			}

			counts, err := errRepo.CountsByCode(ctx, time.Now().Add(-since))
			if err != nil {
				return fmt.Errorf("failed to fetch error counts: %w", err)
			}

			if len(counts) == 0 {
				fmt.Println("No errors in window")
				return nil
			}

			codes := make([]string, 0, len(counts))
			for code := range counts {
				codes = append(codes, code)
			}
			sort.Slice(codes, func(i, j int) bool {
				if counts[codes[i]] != counts[codes[j]] {
					return counts[codes[i]] > counts[codes[j]]
				}
				return codes[i] < codes[j]
			})

			fmt.Printf("%-30s %s\n", "CODE", "COUNT")
			for _, code := range codes {
				fmt.Printf("%-30s %d\n", code, counts[code])
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&since, "since", 24*time.Hour, "Window to count errors over")
	cmd.Flags().DurationVar(&prune, "prune", 0, "Also delete error records older than this duration")

	return cmd
}
