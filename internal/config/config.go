package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds application configuration
type Config struct {
	DatabaseURL        string
	RedisURL           string
	RabbitMQURL        string
	ServerPort         string
	GitWorkDir         string
	ManifestPath       string
	SyncParallelism    int
	SyncPrefetch       int
	LockTTL            time.Duration
	MappingCacheTTL    time.Duration
	ErrorRateThreshold float64
	MaxRetries         int
	DebugMode          bool
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379/0"),
		RabbitMQURL:        getEnv("RABBITMQ_URL", ""),
		ServerPort:         getEnv("SERVER_PORT", "8080"),
		GitWorkDir:         getEnv("GIT_WORK_DIR", ""),
		ManifestPath:       getEnv("MANIFEST_PATH", "tasks.json"),
		SyncParallelism:    getEnvInt("SYNC_PARALLELISM", 3),
		SyncPrefetch:       getEnvInt("SYNC_PREFETCH", 1),
		LockTTL:            getEnvDuration("LOCK_TTL_SECONDS", 300),
		MappingCacheTTL:    getEnvDuration("MAPPING_CACHE_TTL_SECONDS", 300),
		ErrorRateThreshold: getEnvFloat("ERROR_RATE_THRESHOLD", 0.5),
		MaxRetries:         getEnvInt("SYNC_MAX_RETRIES", 3),
		DebugMode:          getEnvBool("DEBUG_MODE", false),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.RabbitMQURL == "" {
		return nil, fmt.Errorf("RABBITMQ_URL is required for sync event publishing")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultSeconds int) time.Duration {
	return time.Duration(getEnvInt(key, defaultSeconds)) * time.Second
}
