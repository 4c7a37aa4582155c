// Package lock provides the per-repository mutual exclusion used to keep
// concurrent sync sessions from interleaving writes. Leases are
// TTL-bounded so an abandoned session is reclaimed after a timeout.
package lock

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrLockHeld indicates another session currently holds the lease
	ErrLockHeld = errors.New("lock already held")
	// ErrLeaseReleased indicates Release was called twice on the same lease
	ErrLeaseReleased = errors.New("lease already released")
	// ErrLeaseExpired indicates the lease expired before release and may
	// have been taken by another session
	ErrLeaseExpired = errors.New("lease expired before release")
)

// Lease is a time-bounded mutual-exclusion token. The token value ties the
// lease to its acquirer so an expired-and-reacquired lock cannot be
// released by the original holder.
type Lease struct {
	Key       string
	Token     string
	ExpiresAt time.Time

	released bool
}

// Expired reports whether the lease TTL has elapsed
func (l *Lease) Expired() bool {
	return time.Now().After(l.ExpiresAt)
}

// Locker acquires and releases TTL-bounded leases
type Locker interface {
	// Acquire takes the lease for key, failing fast with ErrLockHeld when
	// another holder exists.
	Acquire(ctx context.Context, key string, ttl time.Duration) (*Lease, error)

	// Release frees the lease. Releasing twice returns ErrLeaseReleased;
	// releasing after expiry returns ErrLeaseExpired.
	Release(ctx context.Context, lease *Lease) error
}
