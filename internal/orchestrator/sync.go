package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/benvon/tasksync/internal/conflict"
	"github.com/benvon/tasksync/internal/events"
	"github.com/benvon/tasksync/internal/gitrepo"
	"github.com/benvon/tasksync/internal/lock"
	"github.com/benvon/tasksync/internal/manifest"
	"github.com/benvon/tasksync/internal/models"
	"github.com/benvon/tasksync/internal/syncerr"
)

// Phase names the steps of the per-session state machine
type Phase string

const (
	PhaseInit            Phase = "INIT"
	PhaseLockAcquire     Phase = "LOCK_ACQUIRE"
	PhaseFetch           Phase = "FETCH"
	PhaseParse           Phase = "PARSE"
	PhaseDiff            Phase = "DIFF"
	PhaseResolve         Phase = "RESOLVE"
	PhaseApply           Phase = "APPLY"
	PhaseCacheInvalidate Phase = "CACHE_INVALIDATE"
	PhaseNotify          Phase = "NOTIFY"
	PhaseCompleted       Phase = "COMPLETED"
	PhaseFailed          Phase = "FAILED"
)

// repoConfig is the optional per-repo config file shape. Only the active
// tag is consumed; models and settings belong to other collaborators.
type repoConfig struct {
	Tag      string         `json:"tag,omitempty"`
	Models   map[string]any `json:"models,omitempty"`
	Settings map[string]any `json:"settings,omitempty"`
}

// SyncOne runs the full pipeline for a single branch: lock, fetch, parse,
// diff, resolve, apply, cache invalidation, events, audit. The session
// always reaches a terminal state and the lock is released on every exit
// path. A held lock fails fast as a retryable condition.
func (o *Orchestrator) SyncOne(ctx context.Context, target *RepoTarget, opts Options) (*models.SyncSession, error) {
	session, branch, tag, err := o.beginSession(ctx, target, opts)
	if err != nil {
		return nil, err
	}

	lease, err := o.acquireRepoLock(ctx, target)
	if err != nil {
		return o.failSession(ctx, session, PhaseLockAcquire, err), err
	}
	defer o.releaseRepoLock(ctx, lease)

	return o.executeSession(ctx, target, session, branch, tag, opts)
}

// syncBranchLocked runs one branch under a repository lease the caller
// already holds. SyncBranches takes the lease once for the whole batch so
// sibling branches of the same repository do not contend with each other.
func (o *Orchestrator) syncBranchLocked(ctx context.Context, target *RepoTarget, opts Options) (*models.SyncSession, error) {
	session, branch, tag, err := o.beginSession(ctx, target, opts)
	if err != nil {
		return nil, err
	}
	return o.executeSession(ctx, target, session, branch, tag, opts)
}

// beginSession resolves the branch and tag and opens the session record
func (o *Orchestrator) beginSession(ctx context.Context, target *RepoTarget, opts Options) (*models.SyncSession, string, string, error) {
	phase := PhaseInit

	branch := opts.Branch
	if branch == "" {
		current, err := target.Git.CurrentRef(ctx)
		if err != nil {
			return nil, "", "", o.errs.Report(ctx, fmt.Errorf("failed to resolve current branch: %w", err),
				syncerr.Context{ProjectID: target.ProjectID, Operation: string(phase)})
		}
		branch = current
	}

	tag, err := o.mapper.TagForBranch(ctx, target.ProjectID, branch)
	if err != nil {
		return nil, "", "", o.errs.Report(ctx, err,
			syncerr.Context{ProjectID: target.ProjectID, Branch: branch, Operation: string(phase)})
	}

	session := models.NewSyncSession(target.ProjectID, branch, tag, opts.sessionOptions())
	if err := o.sessions.Create(ctx, session); err != nil {
		return nil, "", "", o.errs.Report(ctx, err,
			syncerr.Context{ProjectID: target.ProjectID, Branch: branch, Operation: string(phase)})
	}
	return session, branch, tag, nil
}

// acquireRepoLock takes the repository lease, wrapping contention in the
// retryable held-lock message.
func (o *Orchestrator) acquireRepoLock(ctx context.Context, target *RepoTarget) (*lock.Lease, error) {
	lease, err := o.locker.Acquire(ctx, lockKey(target), o.lockTTL)
	if err != nil {
		if errors.Is(err, lock.ErrLockHeld) {
			err = fmt.Errorf("sync in progress for %s: %w", lockKey(target), err)
		}
		return nil, err
	}
	return lease, nil
}

func (o *Orchestrator) releaseRepoLock(ctx context.Context, lease *lock.Lease) {
	if releaseErr := o.locker.Release(ctx, lease); releaseErr != nil &&
		!errors.Is(releaseErr, lock.ErrLeaseReleased) {
		o.logger.Warn("lock release failed",
			zap.String("key", lease.Key), zap.Error(releaseErr))
	}
}

// executeSession runs fetch through audit for an already-opened session
func (o *Orchestrator) executeSession(ctx context.Context, target *RepoTarget, session *models.SyncSession, branch, tag string, opts Options) (*models.SyncSession, error) {
	phase := PhaseFetch

	o.publish(ctx, events.NewEvent(events.EventSyncStarted, target.ProjectID, map[string]any{
		"sessionId": session.ID.String(),
		"branch":    branch,
		"tag":       tag,
	}))

	result, err := o.runPipeline(ctx, target, session, branch, tag, opts, &phase)
	if err != nil {
		failed := o.failSession(ctx, session, phase, err)
		o.publish(ctx, events.NewEvent(events.EventSyncFailed, target.ProjectID, map[string]any{
			"sessionId": session.ID.String(),
			"branch":    branch,
			"error":     err.Error(),
		}))
		return failed, err
	}

	phase = PhaseNotify
	o.publish(ctx, events.NewEvent(events.EventSyncCompleted, target.ProjectID, map[string]any{
		"sessionId":         session.ID.String(),
		"branch":            branch,
		"tag":               tag,
		"added":             result.added,
		"updated":           result.updated,
		"removed":           result.removed,
		"conflictsResolved": result.conflictsResolved,
	}))

	phase = PhaseCompleted
	session.TasksAdded = result.added
	session.TasksUpdated = result.updated
	session.TasksRemoved = result.removed
	session.ConflictsResolved = result.conflictsResolved
	session.Complete()
	if err := o.sessions.Finish(ctx, session); err != nil {
		o.errs.Report(ctx, err,
			syncerr.Context{ProjectID: target.ProjectID, Branch: branch, Operation: string(phase)})
	}

	o.logger.Info("sync completed",
		zap.String("session_id", session.ID.String()),
		zap.String("project_id", target.ProjectID),
		zap.String("branch", branch),
		zap.String("tag", tag),
		zap.Int("added", result.added),
		zap.Int("updated", result.updated),
		zap.Int("removed", result.removed),
		zap.Int("conflicts_resolved", result.conflictsResolved),
		zap.Duration("duration", session.Duration()),
	)

	return session, nil
}

type applyResult struct {
	added             int
	updated           int
	removed           int
	conflictsResolved int
}

// runPipeline executes fetch through cache invalidation. The caller owns
// lock handling, events and session finalization.
func (o *Orchestrator) runPipeline(ctx context.Context, target *RepoTarget, session *models.SyncSession, branch, tag string, opts Options, phase *Phase) (*applyResult, error) {
	*phase = PhaseFetch
	raw, err := target.Git.ReadFile(ctx, branch, target.manifestPath())
	if err != nil {
		return nil, err
	}

	tagHint := opts.TagHint
	if tagHint == "" {
		tagHint = o.discoverTag(ctx, target, branch)
	}

	*phase = PhaseParse
	parsed, err := manifest.Parse(raw, tagHint)
	if err != nil {
		return nil, err
	}
	for _, parseErr := range parsed.Metadata.Errors {
		session.Errors = append(session.Errors, parseErr.String())
	}

	*phase = PhaseDiff
	current, err := o.tasks.ListByTag(ctx, target.ProjectID, tag)
	if err != nil {
		return nil, err
	}
	diff := manifest.Diff(current, parsed.Tasks, manifest.DiffOptions{
		ConflictStrategy: opts.DiffStrategy,
		DeepCompare:      opts.DeepCompare,
	})

	*phase = PhaseResolve
	conflicts := conflict.Detect(target.ProjectID, current, parsed.Tasks)
	merged, protected, resolvedCount, err := o.resolveConflicts(ctx, conflicts, opts)
	if err != nil {
		return nil, err
	}

	*phase = PhaseApply
	result := &applyResult{conflictsResolved: resolvedCount}
	if !opts.DryRun {
		if err := o.apply(ctx, target, session, tag, diff, merged, protected, opts, result); err != nil {
			return nil, err
		}
	}

	*phase = PhaseCacheInvalidate
	now := time.Now().UTC()
	mapping := &models.BranchTagMapping{
		ProjectID: target.ProjectID,
		Branch:    branch,
		Tag:       tag,
		LastSync:  &now,
		Metadata:  models.MappingMetadata{TaskCount: parsed.Metadata.TotalTasks},
	}
	if err := o.mapper.SetMapping(ctx, mapping); err != nil {
		// Cache bookkeeping never fails a sync that already applied
		o.logger.Warn("mapping refresh failed", zap.String("branch", branch), zap.Error(err))
	}

	return result, nil
}

// resolveConflicts records detected conflicts and applies the configured
// strategy. Returns merged records to apply in place of the incoming
// ones, the set of task ids held back from writes, and the resolved count.
func (o *Orchestrator) resolveConflicts(ctx context.Context, conflicts []*models.ConflictItem, opts Options) (map[string]*models.Task, map[string]struct{}, int, error) {
	merged := make(map[string]*models.Task)
	protected := make(map[string]struct{})
	if len(conflicts) == 0 {
		return merged, protected, 0, nil
	}

	if err := o.resolver.Record(ctx, conflicts); err != nil {
		return nil, nil, 0, err
	}

	resolved := 0
	for _, item := range conflicts {
		if opts.ConflictStrategy == "" {
			// No strategy: leave pending and hold the record back so
			// neither side is clobbered before a human decides.
			protected[item.TaskID] = struct{}{}
			continue
		}

		outcome, err := o.resolver.Resolve(ctx, item.ID, opts.ConflictStrategy, nil, "orchestrator")
		if err != nil {
			return nil, nil, 0, fmt.Errorf("conflict resolution failed for task %s: %w", item.TaskID, err)
		}
		resolution := outcome.Resolution
		switch {
		case resolution.Strategy == models.ResolveDefer:
			protected[item.TaskID] = struct{}{}
		case resolution.Merged != nil:
			merged[item.TaskID] = resolution.Merged
			resolved++
		case item.Remote == nil:
			// ACCEPT_REMOTE on a delete-edit conflict: the remote side
			// removed the task and the resolution accepted that, so the
			// deletion in the diff stands.
			resolved++
		default:
			protected[item.TaskID] = struct{}{}
		}
	}

	return merged, protected, resolved, nil
}

// apply persists the diff in batches, isolating item failures so one bad
// record does not lose the rest of the batch.
func (o *Orchestrator) apply(ctx context.Context, target *RepoTarget, session *models.SyncSession, tag string, diff *manifest.DiffResult, merged map[string]*models.Task, protected map[string]struct{}, opts Options, result *applyResult) error {
	upserts := make([]models.Task, 0, len(diff.Added)+len(diff.Modified))
	addedCount := 0
	for _, task := range diff.Added {
		if _, held := protected[task.ID]; held {
			continue
		}
		upserts = append(upserts, task)
		addedCount++
	}
	for _, task := range diff.Modified {
		if _, held := protected[task.ID]; held {
			continue
		}
		if m, ok := merged[task.ID]; ok {
			upserts = append(upserts, *m)
			continue
		}
		upserts = append(upserts, task)
	}
	for _, task := range diff.Deleted {
		// A deleted-side conflict resolved in favor of a surviving record
		// (keep-local or field merge) is written back instead of removed.
		if m, ok := merged[task.ID]; ok {
			upserts = append(upserts, *m)
		}
	}

	batch := o.tasks.UpsertBatch(ctx, target.ProjectID, tag, upserts)
	for _, itemErr := range batch.Errors {
		session.Errors = append(session.Errors, itemErr.Error())
	}
	if batch.Applied == 0 && len(batch.Errors) > 0 {
		return fmt.Errorf("storage rejected entire batch: %w", batch.Errors[0])
	}
	if batch.Applied < addedCount {
		addedCount = batch.Applied
	}
	result.added = addedCount
	result.updated = batch.Applied - addedCount

	if diff.Metadata.RequiresFullSync && !opts.ForceFullSync {
		// Over half the stored set vanished from the manifest. More likely a
		// truncated fetch than a genuine rewrite, so deletions are held back.
		session.Errors = append(session.Errors,
			"full-sync threshold exceeded; deletions skipped (re-run with force to apply)")
		return nil
	}

	deleteIDs := make([]string, 0, len(diff.Deleted))
	for _, task := range diff.Deleted {
		if _, held := protected[task.ID]; held {
			continue
		}
		if _, kept := merged[task.ID]; kept {
			continue
		}
		deleteIDs = append(deleteIDs, task.ID)
	}
	deleteBatch := o.tasks.DeleteBatch(ctx, target.ProjectID, tag, deleteIDs)
	for _, itemErr := range deleteBatch.Errors {
		session.Errors = append(session.Errors, itemErr.Error())
	}
	result.removed = deleteBatch.Applied

	return nil
}

// discoverTag reads the optional repo config file to find the active tag
func (o *Orchestrator) discoverTag(ctx context.Context, target *RepoTarget, branch string) string {
	raw, err := target.Git.ReadFile(ctx, branch, target.configPath())
	if err != nil {
		if !errors.Is(err, gitrepo.ErrFileNotFound) {
			o.logger.Debug("repo config read failed",
				zap.String("branch", branch), zap.Error(err))
		}
		return ""
	}
	var cfg repoConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		o.logger.Debug("repo config unmarshal failed",
			zap.String("branch", branch), zap.Error(err))
		return ""
	}
	return cfg.Tag
}

// failSession records the terminal failure and classifies the error
func (o *Orchestrator) failSession(ctx context.Context, session *models.SyncSession, phase Phase, err error) *models.SyncSession {
	serr := o.errs.Report(ctx, err, syncerr.Context{
		ProjectID: session.ProjectID,
		Branch:    session.Branch,
		Operation: string(phase),
	})
	session.Fail(serr.Error())
	if finishErr := o.sessions.Finish(ctx, session); finishErr != nil {
		o.logger.Error("failed to record failed session",
			zap.String("session_id", session.ID.String()), zap.Error(finishErr))
	}
	return session
}

func (o *Orchestrator) publish(ctx context.Context, event *events.Event) {
	if o.publisher == nil {
		return
	}
	if err := o.publisher.Publish(ctx, event); err != nil {
		o.logger.Warn("event publish failed",
			zap.String("type", string(event.Type)), zap.Error(err))
	}
}
