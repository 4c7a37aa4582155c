package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/benvon/tasksync/internal/config"
	"github.com/benvon/tasksync/internal/gitrepo"
	"github.com/benvon/tasksync/internal/jobs"
	"github.com/benvon/tasksync/internal/models"
	"github.com/benvon/tasksync/internal/orchestrator"
)

// NewSyncCmd creates the sync command. By default the request is enqueued
// for the daemon; --local runs the sync in-process instead.
func NewSyncCmd() *cobra.Command {
	var (
		profilePath     string
		projectID       string
		repoPath        string
		branch          string
		tagHint         string
		strategy        string
		allBranches     bool
		dryRun          bool
		forceFullSync   bool
		includeBranches []string
		excludeBranches []string
		local           bool
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Trigger a manifest sync for a repository",
		RunE: func(cmd *cobra.Command, args []string) error {
			profile, err := LoadProfile(profilePath)
			if err != nil {
				return err
			}
			profile.resolve(&projectID, &repoPath, &strategy, &tagHint)

			if projectID == "" || repoPath == "" {
				return fmt.Errorf("required: --project and --repo (or profile values)")
			}

			jobType := jobs.JobTypeSyncBranch
			if allBranches {
				jobType = jobs.JobTypeSyncAll
			}

			job := jobs.NewSyncJob(jobType, projectID, repoPath, branch)
			job.TagHint = tagHint
			job.ConflictStrategy = strategy
			job.DryRun = dryRun
			job.ForceFullSync = forceFullSync
			job.IncludeBranches = includeBranches
			job.ExcludeBranches = excludeBranches

			ctx := context.Background()

			if local {
				return runLocal(ctx, job)
			}

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			queue, err := jobs.NewRabbitMQJobQueue(cfg.RabbitMQURL)
			if err != nil {
				return fmt.Errorf("failed to connect to job queue: %w", err)
			}
			defer func() {
				if err := queue.Close(); err != nil {
					fmt.Fprintf(os.Stderr, "Warning: failed to close queue: %v\n", err)
				}
			}()

			if err := queue.Enqueue(ctx, job); err != nil {
				return fmt.Errorf("failed to enqueue sync job: %w", err)
			}

			fmt.Printf("Enqueued sync job %s for project %s\n", job.ID, projectID)
			return nil
		},
	}

	cmd.Flags().StringVar(&profilePath, "config", "", "Profile file (default ~/.syncctl.yaml)")
	cmd.Flags().StringVar(&projectID, "project", "", "Project identifier")
	cmd.Flags().StringVar(&repoPath, "repo", "", "Path to the git repository")
	cmd.Flags().StringVar(&branch, "branch", "", "Branch to sync (default: current branch)")
	cmd.Flags().StringVar(&tagHint, "tag", "", "Explicit tag context overriding branch mapping")
	cmd.Flags().StringVar(&strategy, "strategy", "", "Conflict resolution strategy (ACCEPT_LOCAL, ACCEPT_REMOTE, MERGE_FIELDS, DEFER)")
	cmd.Flags().BoolVar(&allBranches, "all-branches", false, "Sync every branch of the repository")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Compute the diff without applying changes")
	cmd.Flags().BoolVar(&forceFullSync, "force-full", false, "Apply deletions even when the diff looks like a full regeneration")
	cmd.Flags().StringSliceVar(&includeBranches, "include", nil, "Only sync these branches")
	cmd.Flags().StringSliceVar(&excludeBranches, "exclude", nil, "Skip these branches")
	cmd.Flags().BoolVar(&local, "local", false, "Run the sync in-process instead of enqueueing")

	return cmd
}

// runLocal executes a sync job in-process with full daemon wiring
func runLocal(ctx context.Context, job *jobs.SyncJob) error {
	cfg, db, err := openDatabase()
	if err != nil {
		return err
	}
	defer closeDatabase(db)

	orch, cleanup, err := buildOrchestrator(ctx, cfg, db)
	if err != nil {
		return err
	}
	defer cleanup()

	gitClient, err := gitrepo.Open(job.RepoPath)
	if err != nil {
		return fmt.Errorf("failed to open repository: %w", err)
	}

	target := &orchestrator.RepoTarget{
		ProjectID:    job.ProjectID,
		RepoID:       filepath.Base(job.RepoPath),
		Git:          gitClient,
		ManifestPath: cfg.ManifestPath,
	}

	result, err := orch.SyncBranches(ctx, target, orchestrator.Options{
		Branch:             job.Branch,
		TagHint:            job.TagHint,
		ConflictStrategy:   models.ResolutionStrategy(job.ConflictStrategy),
		DryRun:             job.DryRun,
		ForceFullSync:      job.ForceFullSync,
		AllBranches:        job.Type == jobs.JobTypeSyncAll,
		IncludeBranches:    job.IncludeBranches,
		ExcludeBranches:    job.ExcludeBranches,
		Parallelism:        cfg.SyncParallelism,
		MaxRetries:         cfg.MaxRetries,
		ErrorRateThreshold: cfg.ErrorRateThreshold,
	})
	if err != nil {
		return err
	}

	printResult(result)
	if result.Failed {
		return fmt.Errorf("sync batch failed")
	}
	return nil
}

func printResult(result *orchestrator.MultiResult) {
	m := result.Metrics
	fmt.Printf("Branches: %d synced, %d failed (of %d)\n",
		m.BranchesSynced, m.BranchesFailed, m.BranchesTotal)
	fmt.Printf("Tasks: +%d added, ~%d updated, -%d removed, %d conflicts resolved\n",
		m.TasksAdded, m.TasksUpdated, m.TasksRemoved, m.ConflictsResolved)

	for _, outcome := range result.Outcomes {
		if outcome.Err != nil {
			fmt.Printf("  %s: FAILED (%s)\n", outcome.Branch, outcome.Err.Code)
		} else if outcome.Session != nil {
			fmt.Printf("  %s: %s tag=%s +%d ~%d -%d\n",
				outcome.Branch, outcome.Session.Status, outcome.Session.Tag,
				outcome.Session.TasksAdded, outcome.Session.TasksUpdated, outcome.Session.TasksRemoved)
		}
	}

	for _, rec := range result.Recommendations {
		fmt.Printf("Recommendation: %s\n", rec)
	}
}
