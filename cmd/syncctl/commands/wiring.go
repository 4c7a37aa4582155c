package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/benvon/tasksync/internal/cache"
	"github.com/benvon/tasksync/internal/config"
	"github.com/benvon/tasksync/internal/conflict"
	"github.com/benvon/tasksync/internal/database"
	"github.com/benvon/tasksync/internal/events"
	"github.com/benvon/tasksync/internal/lock"
	"github.com/benvon/tasksync/internal/logger"
	"github.com/benvon/tasksync/internal/orchestrator"
	"github.com/benvon/tasksync/internal/syncerr"
	"github.com/benvon/tasksync/internal/tagmap"
)

// openDatabase loads configuration and connects to Postgres
func openDatabase() (*config.Config, *database.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return cfg, db, nil
}

func closeDatabase(db *database.DB) {
	if err := db.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to close database: %v\n", err)
	}
}

// buildOrchestrator wires a full in-process sync engine for local runs.
// The returned cleanup function closes every connection it opened.
func buildOrchestrator(ctx context.Context, cfg *config.Config, db *database.DB) (*orchestrator.Orchestrator, func(), error) {
	zapLogger, err := logger.New(cfg.DebugMode)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	redisClient, err := cache.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	publisher, err := events.NewRabbitMQPublisher(cfg.RabbitMQURL)
	if err != nil {
		if closeErr := redisClient.Close(); closeErr != nil {
			_ = closeErr
		}
		return nil, nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	tagConfigRepo := database.NewTagConfigRepository(db)
	mapper := tagmap.NewMapper(
		tagConfigRepo,
		tagConfigRepo,
		cache.NewRedisCache(redisClient),
		cfg.MappingCacheTTL,
		zapLogger,
	)

	orch := orchestrator.New(orchestrator.Config{
		Tasks:     database.NewTaskRepository(db),
		Sessions:  database.NewSessionRepository(db),
		Mapper:    mapper,
		Resolver:  conflict.NewResolver(database.NewConflictRepository(db), zapLogger),
		Locker:    lock.NewRedisLocker(redisClient, ""),
		Publisher: publisher,
		Errors:    syncerr.NewService(database.NewSyncErrorRepository(db), nil, zapLogger),
		Logger:    zapLogger,
		LockTTL:   cfg.LockTTL,
	})

	cleanup := func() {
		if err := publisher.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close event publisher: %v\n", err)
		}
		if err := redisClient.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close Redis connection: %v\n", err)
		}
		if err := logger.Sync(zapLogger); err != nil {
			_ = err
		}
	}
	return orch, cleanup, nil
}
