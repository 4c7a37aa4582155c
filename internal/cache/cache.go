// Package cache provides the TTL key-value cache used for branch-tag
// mappings and other derived state.
package cache

import (
	"context"
	"time"
)

// Cache is a TTL-bounded key-value store. Implementations must be safe
// for concurrent readers and writers.
type Cache interface {
	// Get returns the value for key and whether it was present
	Get(ctx context.Context, key string) (string, bool, error)

	// Set stores value under key for the given TTL. A zero TTL means no expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Delete removes the given keys. Missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error

	// DeletePrefix removes every key starting with prefix
	DeletePrefix(ctx context.Context, prefix string) error
}
