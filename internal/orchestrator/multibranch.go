package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/benvon/tasksync/internal/models"
	"github.com/benvon/tasksync/internal/syncerr"
)

// BranchOutcome is the result of syncing one branch within a batch
type BranchOutcome struct {
	Branch  string              `json:"branch"`
	Session *models.SyncSession `json:"session,omitempty"`
	Err     *syncerr.SyncError  `json:"error,omitempty"`
}

// BatchMetrics aggregates per-branch outcomes into session-level numbers
type BatchMetrics struct {
	BranchesTotal     int           `json:"branches_total"`
	BranchesSynced    int           `json:"branches_synced"`
	BranchesFailed    int           `json:"branches_failed"`
	TasksAdded        int           `json:"tasks_added"`
	TasksUpdated      int           `json:"tasks_updated"`
	TasksRemoved      int           `json:"tasks_removed"`
	ConflictsResolved int           `json:"conflicts_resolved"`
	AvgBranchDuration time.Duration `json:"avg_branch_duration"`
	ErrorCount        int           `json:"error_count"`
}

// MultiResult is the aggregate outcome of a multi-branch sync
type MultiResult struct {
	Outcomes        []BranchOutcome `json:"outcomes"`
	Metrics         BatchMetrics    `json:"metrics"`
	Recommendations []string        `json:"recommendations,omitempty"`
	Failed          bool            `json:"failed"`
}

// observed thresholds feeding the batch recommendations
const (
	slowBranchDuration    = 30 * time.Second
	lowSuccessRate        = 0.9
	manyBranchesForFanout = 10
)

// SyncBranches expands the target set and syncs each branch, sequentially
// or in bounded-parallelism batches. The repository lease is taken once
// for the whole batch; sibling branches run inside it and never contend
// with each other. One branch's failure never aborts its siblings; the
// batch is marked failed only once the failed ratio reaches the
// configured error-rate threshold.
func (o *Orchestrator) SyncBranches(ctx context.Context, target *RepoTarget, opts Options) (*MultiResult, error) {
	branches, err := o.expandTargets(ctx, target, opts)
	if err != nil {
		return nil, o.errs.Report(ctx, err,
			syncerr.Context{ProjectID: target.ProjectID, Operation: "EXPAND_TARGETS"})
	}
	if len(branches) == 0 {
		return &MultiResult{}, nil
	}

	lease, err := o.acquireRepoLock(ctx, target)
	if err != nil {
		return nil, o.errs.Report(ctx, err,
			syncerr.Context{ProjectID: target.ProjectID, Operation: string(PhaseLockAcquire)})
	}
	defer o.releaseRepoLock(ctx, lease)

	outcomes := make([]BranchOutcome, len(branches))
	parallelism := opts.Parallelism
	if parallelism <= 0 {
		parallelism = 1
	}
	if parallelism > len(branches) {
		parallelism = len(branches)
	}

	if parallelism == 1 {
		for i, branch := range branches {
			outcomes[i] = o.syncBranchWithRetry(ctx, target, branch, opts)
		}
	} else {
		sem := make(chan struct{}, parallelism)
		var wg sync.WaitGroup
		for i, branch := range branches {
			wg.Add(1)
			sem <- struct{}{}
			go func(idx int, name string) {
				defer wg.Done()
				defer func() { <-sem }()
				outcomes[idx] = o.syncBranchWithRetry(ctx, target, name, opts)
			}(i, branch)
		}
		wg.Wait()
	}

	result := aggregate(outcomes, opts)
	o.logger.Info("multi-branch sync finished",
		zap.String("project_id", target.ProjectID),
		zap.Int("branches", result.Metrics.BranchesTotal),
		zap.Int("failed", result.Metrics.BranchesFailed),
		zap.Bool("batch_failed", result.Failed),
	)
	return result, nil
}

// syncBranchWithRetry runs one branch, retrying retryable-classified
// failures with exponential backoff.
func (o *Orchestrator) syncBranchWithRetry(ctx context.Context, target *RepoTarget, branch string, opts Options) BranchOutcome {
	branchOpts := opts
	branchOpts.Branch = branch

	var session *models.SyncSession

	operation := func() error {
		var err error
		session, err = o.syncBranchLocked(ctx, target, branchOpts)
		if err == nil {
			return nil
		}
		serr := syncerr.Classify(err, syncerr.Context{
			ProjectID: target.ProjectID, Branch: branch, Operation: "SYNC_BRANCH",
		})
		if !serr.Retryable {
			return backoff.Permanent(serr)
		}
		return serr
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(maxRetries(opts))), ctx)
	err := backoff.Retry(operation, policy)

	outcome := BranchOutcome{Branch: branch, Session: session}
	if err != nil {
		outcome.Err = syncerr.Classify(err, syncerr.Context{
			ProjectID: target.ProjectID, Branch: branch, Operation: "SYNC_BRANCH",
		})
	}
	return outcome
}

func maxRetries(opts Options) int {
	if opts.MaxRetries < 0 {
		return 0
	}
	return opts.MaxRetries
}

// expandTargets resolves the branch set for a multi-branch run. Default
// mode syncs only the current branch; AllBranches discovers every branch
// and applies the include/exclude filters.
func (o *Orchestrator) expandTargets(ctx context.Context, target *RepoTarget, opts Options) ([]string, error) {
	if !opts.AllBranches {
		branch := opts.Branch
		if branch == "" {
			current, err := target.Git.CurrentRef(ctx)
			if err != nil {
				return nil, fmt.Errorf("failed to resolve current branch: %w", err)
			}
			branch = current
		}
		return []string{branch}, nil
	}

	discovered, err := target.Git.ListBranches(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list branches: %w", err)
	}

	include := toSet(opts.IncludeBranches)
	exclude := toSet(opts.ExcludeBranches)

	var branches []string
	for _, b := range discovered {
		if len(include) > 0 {
			if _, ok := include[b.Name]; !ok {
				continue
			}
		}
		if _, ok := exclude[b.Name]; ok {
			continue
		}
		branches = append(branches, b.Name)
	}
	return branches, nil
}

func toSet(names []string) map[string]struct{} {
	if len(names) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(names))
	for _, name := range names {
		set[name] = struct{}{}
	}
	return set
}

// aggregate folds branch outcomes into batch metrics and derives
// recommendations from the observed thresholds.
func aggregate(outcomes []BranchOutcome, opts Options) *MultiResult {
	result := &MultiResult{Outcomes: outcomes}
	metrics := &result.Metrics
	metrics.BranchesTotal = len(outcomes)

	var totalDuration time.Duration
	for _, outcome := range outcomes {
		if outcome.Err != nil {
			metrics.BranchesFailed++
			metrics.ErrorCount++
			continue
		}
		metrics.BranchesSynced++
		if outcome.Session != nil {
			metrics.TasksAdded += outcome.Session.TasksAdded
			metrics.TasksUpdated += outcome.Session.TasksUpdated
			metrics.TasksRemoved += outcome.Session.TasksRemoved
			metrics.ConflictsResolved += outcome.Session.ConflictsResolved
			metrics.ErrorCount += len(outcome.Session.Errors)
			totalDuration += outcome.Session.Duration()
		}
	}
	if metrics.BranchesSynced > 0 {
		metrics.AvgBranchDuration = totalDuration / time.Duration(metrics.BranchesSynced)
	}

	threshold := opts.ErrorRateThreshold
	if threshold <= 0 {
		threshold = DefaultErrorRateThreshold
	}
	if metrics.BranchesTotal > 0 {
		failedRatio := float64(metrics.BranchesFailed) / float64(metrics.BranchesTotal)
		result.Failed = failedRatio >= threshold
	}

	result.Recommendations = recommend(metrics, opts)
	return result
}

func recommend(metrics *BatchMetrics, opts Options) []string {
	var recs []string
	if metrics.AvgBranchDuration > slowBranchDuration {
		recs = append(recs, "average branch sync is slow; enable batched persistence or reduce manifest size")
	}
	if metrics.BranchesTotal > 0 {
		successRate := float64(metrics.BranchesSynced) / float64(metrics.BranchesTotal)
		if successRate < lowSuccessRate && opts.MaxRetries == 0 {
			recs = append(recs, "success rate is low; enable per-branch retry")
		}
	}
	if metrics.BranchesTotal > manyBranchesForFanout && opts.Parallelism <= 1 {
		recs = append(recs, "many branches synced sequentially; increase parallelism")
	}
	return recs
}
