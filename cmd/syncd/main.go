package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/benvon/tasksync/internal/cache"
	"github.com/benvon/tasksync/internal/config"
	"github.com/benvon/tasksync/internal/conflict"
	"github.com/benvon/tasksync/internal/database"
	"github.com/benvon/tasksync/internal/events"
	"github.com/benvon/tasksync/internal/gitrepo"
	"github.com/benvon/tasksync/internal/handlers"
	"github.com/benvon/tasksync/internal/jobs"
	"github.com/benvon/tasksync/internal/lock"
	"github.com/benvon/tasksync/internal/logger"
	"github.com/benvon/tasksync/internal/middleware"
	"github.com/benvon/tasksync/internal/models"
	"github.com/benvon/tasksync/internal/orchestrator"
	"github.com/benvon/tasksync/internal/syncerr"
	"github.com/benvon/tasksync/internal/tagmap"
)

// eventMonitor escalates critical sync errors onto the event exchange so
// external monitoring can subscribe to them.
type eventMonitor struct {
	publisher events.Publisher
	logger    *zap.Logger
}

func (m *eventMonitor) EscalateCritical(ctx context.Context, serr *syncerr.SyncError) {
	event := events.NewEvent(events.EventErrorCritical, serr.Context.ProjectID, map[string]any{
		"code":      string(serr.Code),
		"severity":  string(serr.Severity),
		"branch":    serr.Context.Branch,
		"operation": serr.Context.Operation,
		"message":   serr.Error(),
	})
	if err := m.publisher.Publish(ctx, event); err != nil {
		m.logger.Warn("failed to escalate critical error", zap.Error(err))
	}
}

func main() {
	debugFlag := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	debugMode := cfg.DebugMode || *debugFlag

	zapLogger, err := logger.New(debugMode)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() {
		if syncErr := logger.Sync(zapLogger); syncErr != nil {
			_ = syncErr
		}
	}()

	zapLogger.Info("Starting sync daemon",
		zap.Bool("debug_mode", debugMode),
		zap.Int("parallelism", cfg.SyncParallelism),
		zap.Duration("lock_ttl", cfg.LockTTL),
	)

	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		zapLogger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			zapLogger.Warn("Failed to close database connection", zap.Error(err))
		}
	}()

	schemaCtx, schemaCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := db.EnsureSchema(schemaCtx); err != nil {
		schemaCancel()
		zapLogger.Fatal("Failed to ensure database schema", zap.Error(err))
	}
	schemaCancel()

	zapLogger.Info("Connected to database")

	taskRepo := database.NewTaskRepository(db)
	sessionRepo := database.NewSessionRepository(db)
	conflictRepo := database.NewConflictRepository(db)
	syncErrRepo := database.NewSyncErrorRepository(db)
	tagConfigRepo := database.NewTagConfigRepository(db)

	redisClient, err := cache.NewRedisClient(context.Background(), cfg.RedisURL)
	if err != nil {
		zapLogger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			zapLogger.Warn("Failed to close Redis connection", zap.Error(err))
		}
	}()

	zapLogger.Info("Connected to Redis")

	publisher, err := events.NewRabbitMQPublisher(cfg.RabbitMQURL)
	if err != nil {
		zapLogger.Fatal("Failed to connect to RabbitMQ", zap.Error(err))
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			zapLogger.Warn("Failed to close event publisher", zap.Error(err))
		}
	}()

	jobQueue, err := jobs.NewRabbitMQJobQueue(cfg.RabbitMQURL)
	if err != nil {
		zapLogger.Fatal("Failed to set up job queue", zap.Error(err))
	}
	defer func() {
		if err := jobQueue.Close(); err != nil {
			zapLogger.Warn("Failed to close job queue", zap.Error(err))
		}
	}()

	zapLogger.Info("Connected to RabbitMQ", zap.Int("prefetch", cfg.SyncPrefetch))

	mapper := tagmap.NewMapper(
		tagConfigRepo,
		tagConfigRepo,
		cache.NewRedisCache(redisClient),
		cfg.MappingCacheTTL,
		zapLogger,
	)
	resolver := conflict.NewResolver(conflictRepo, zapLogger)
	errService := syncerr.NewService(syncErrRepo, &eventMonitor{publisher: publisher, logger: zapLogger}, zapLogger)
	locker := lock.NewRedisLocker(redisClient, "")

	orch := orchestrator.New(orchestrator.Config{
		Tasks:     taskRepo,
		Sessions:  sessionRepo,
		Mapper:    mapper,
		Resolver:  resolver,
		Locker:    locker,
		Publisher: publisher,
		Errors:    errService,
		Logger:    zapLogger,
		LockTTL:   cfg.LockTTL,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	msgChan, errChan, err := jobQueue.Consume(ctx, cfg.SyncPrefetch)
	if err != nil {
		zapLogger.Fatal("Failed to start consuming sync jobs", zap.Error(err))
	}

	zapLogger.Info("Sync daemon started, consuming jobs from queue")

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgChan:
				if !ok {
					zapLogger.Info("Message channel closed")
					return
				}

				processJob(ctx, orch, cfg, msg, zapLogger)
			}
		}
	}()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case err, ok := <-errChan:
				if !ok {
					return
				}
				zapLogger.Error("Queue error", zap.Error(err))
			}
		}
	}()

	// Health endpoint for liveness and dependency probes
	router := mux.NewRouter()
	router.Use(middleware.Logging(zapLogger))
	healthChecker := handlers.NewHealthChecker(db, redisClient)
	router.HandleFunc("/healthz", healthChecker.HealthCheck).Methods("GET")

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		zapLogger.Info("Health server starting", zap.String("port", cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("Health server failed", zap.Error(err))
		}
	}()

	<-sigChan
	zapLogger.Info("Shutdown signal received, stopping sync daemon...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLogger.Warn("Health server forced to shut down", zap.Error(err))
	}

	zapLogger.Info("Sync daemon stopped")
}

// processJob runs one queued sync request and acknowledges the message.
// Failed jobs are not requeued; the orchestrator already retries transient
// errors per branch, so a failure here is terminal for the job.
func processJob(ctx context.Context, orch *orchestrator.Orchestrator, cfg *config.Config, msg *jobs.Message, zapLogger *zap.Logger) {
	job := msg.GetJob()

	repoPath := job.RepoPath
	if !filepath.IsAbs(repoPath) && cfg.GitWorkDir != "" {
		repoPath = filepath.Join(cfg.GitWorkDir, repoPath)
	}

	gitClient, err := gitrepo.Open(repoPath)
	if err != nil {
		zapLogger.Error("Failed to open repository for job",
			zap.Error(err),
			zap.String("job_id", job.ID.String()),
			zap.String("repo_path", logger.SanitizePath(repoPath)),
		)
		if nackErr := msg.Nack(false); nackErr != nil {
			zapLogger.Warn("Failed to nack message", zap.Error(nackErr))
		}
		return
	}

	target := &orchestrator.RepoTarget{
		ProjectID:    job.ProjectID,
		RepoID:       filepath.Base(repoPath),
		Git:          gitClient,
		ManifestPath: cfg.ManifestPath,
	}

	opts := orchestrator.Options{
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
	}

	result, err := orch.SyncBranches(ctx, target, opts)
	if err != nil {
		zapLogger.Error("Sync job failed",
			zap.Error(err),
			zap.String("job_id", job.ID.String()),
			zap.String("project_id", job.ProjectID),
			zap.String("branch", logger.SanitizeRef(job.Branch)),
		)
		if nackErr := msg.Nack(false); nackErr != nil {
			zapLogger.Warn("Failed to nack message", zap.Error(nackErr))
		}
		return
	}

	zapLogger.Info("Sync job completed",
		zap.String("job_id", job.ID.String()),
		zap.String("project_id", job.ProjectID),
		zap.String("branch", logger.SanitizeRef(job.Branch)),
		zap.Bool("batch_failed", result.Failed),
		zap.Int("branches", result.Metrics.BranchesTotal),
		zap.Int("branches_failed", result.Metrics.BranchesFailed),
	)

	if err := msg.Ack(); err != nil {
		zapLogger.Warn("Failed to ack message", zap.Error(err))
	}
}
