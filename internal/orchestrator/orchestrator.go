// Package orchestrator drives the sync pipeline: lock, fetch, parse,
// diff, resolve, apply, notify. It coordinates single-branch sessions and
// multi-branch batches with bounded parallelism and retry.
package orchestrator

import (
	"time"

	"go.uber.org/zap"

	"github.com/benvon/tasksync/internal/conflict"
	"github.com/benvon/tasksync/internal/database"
	"github.com/benvon/tasksync/internal/events"
	"github.com/benvon/tasksync/internal/gitrepo"
	"github.com/benvon/tasksync/internal/lock"
	"github.com/benvon/tasksync/internal/models"
	"github.com/benvon/tasksync/internal/syncerr"
	"github.com/benvon/tasksync/internal/tagmap"
)

const (
	// DefaultManifestPath is where the task manifest lives in a repository
	DefaultManifestPath = "tasks.json"
	// DefaultConfigPath is the optional per-repo config file holding the
	// active tag.
	DefaultConfigPath = ".taskconfig.json"
	// DefaultLockTTL bounds how long an abandoned session blocks a repository
	DefaultLockTTL = 5 * time.Minute
	// DefaultErrorRateThreshold is the failed-branch ratio at which a
	// multi-branch session is marked failed.
	DefaultErrorRateThreshold = 0.5
	// DefaultParallelism is the multi-branch batch fan-out
	DefaultParallelism = 3
)

// RepoTarget identifies one repository to sync
type RepoTarget struct {
	ProjectID    string
	RepoID       string // lock key component; unique per repository
	Git          gitrepo.Client
	ManifestPath string // defaults to DefaultManifestPath
	ConfigPath   string // defaults to DefaultConfigPath
}

func (t *RepoTarget) manifestPath() string {
	if t.ManifestPath == "" {
		return DefaultManifestPath
	}
	return t.ManifestPath
}

func (t *RepoTarget) configPath() string {
	if t.ConfigPath == "" {
		return DefaultConfigPath
	}
	return t.ConfigPath
}

// Options controls a sync run
type Options struct {
	// Branch to sync; empty means the currently checked out branch
	Branch string
	// TagHint overrides tag discovery for tagged-format manifests
	TagHint string
	// ConflictStrategy auto-resolves detected conflicts when set. Empty
	// leaves conflicts pending and holds back the affected records.
	ConflictStrategy models.ResolutionStrategy
	// DiffStrategy feeds the diff metadata ("timestamp", "remote-wins", ...)
	DiffStrategy string
	// DeepCompare includes subtasks in change detection
	DeepCompare bool
	// DryRun computes everything but persists nothing
	DryRun bool
	// ForceFullSync applies deletions even when the diff looks like a
	// truncated source
	ForceFullSync bool

	// AllBranches expands the target set to every discovered branch
	AllBranches bool
	// IncludeBranches restricts multi-branch syncs to the listed names
	IncludeBranches []string
	// ExcludeBranches drops the listed names from multi-branch syncs
	ExcludeBranches []string
	// Parallelism bounds the multi-branch fan-out; <=1 means sequential
	Parallelism int
	// MaxRetries bounds per-branch retries of retryable failures
	MaxRetries int
	// ErrorRateThreshold is the failed ratio marking the batch failed
	ErrorRateThreshold float64
}

func (o *Options) sessionOptions() models.SessionOptions {
	return models.SessionOptions{
		ConflictStrategy: string(o.ConflictStrategy),
		DeepCompare:      o.DeepCompare,
		DryRun:           o.DryRun,
	}
}

// Orchestrator wires the sync pipeline's collaborators. Construct one per
// process and share it; all state lives on the instance.
type Orchestrator struct {
	tasks     database.TaskStoreInterface
	sessions  database.SessionStoreInterface
	mapper    *tagmap.Mapper
	resolver  *conflict.Resolver
	locker    lock.Locker
	publisher events.Publisher
	errs      *syncerr.Service
	logger    *zap.Logger
	lockTTL   time.Duration
}

// Config bundles the orchestrator's dependencies
type Config struct {
	Tasks     database.TaskStoreInterface
	Sessions  database.SessionStoreInterface
	Mapper    *tagmap.Mapper
	Resolver  *conflict.Resolver
	Locker    lock.Locker
	Publisher events.Publisher
	Errors    *syncerr.Service
	Logger    *zap.Logger
	LockTTL   time.Duration
}

// New creates an orchestrator. A zero LockTTL uses DefaultLockTTL.
func New(cfg Config) *Orchestrator {
	lockTTL := cfg.LockTTL
	if lockTTL <= 0 {
		lockTTL = DefaultLockTTL
	}
	return &Orchestrator{
		tasks:     cfg.Tasks,
		sessions:  cfg.Sessions,
		mapper:    cfg.Mapper,
		resolver:  cfg.Resolver,
		locker:    cfg.Locker,
		publisher: cfg.Publisher,
		errs:      cfg.Errors,
		logger:    cfg.Logger,
		lockTTL:   lockTTL,
	}
}

func lockKey(target *RepoTarget) string {
	return target.ProjectID + "/" + target.RepoID
}
