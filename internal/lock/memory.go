package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryLease struct {
	token     string
	expiresAt time.Time
}

// MemoryLocker is an in-process Locker for tests and single-node runs.
// A background sweep reclaims expired leases so contended keys do not
// accumulate.
type MemoryLocker struct {
	mu     sync.Mutex
	leases map[string]memoryLease
	stop   chan struct{}
	once   sync.Once
}

// NewMemoryLocker creates a locker and starts its expiry sweep
func NewMemoryLocker() *MemoryLocker {
	l := &MemoryLocker{
		leases: make(map[string]memoryLease),
		stop:   make(chan struct{}),
	}
	go l.sweep()
	return l
}

// Stop terminates the expiry sweep
func (l *MemoryLocker) Stop() {
	l.once.Do(func() { close(l.stop) })
}

func (l *MemoryLocker) sweep() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case now := <-ticker.C:
			l.mu.Lock()
			for key, lease := range l.leases {
				if now.After(lease.expiresAt) {
					delete(l.leases, key)
				}
			}
			l.mu.Unlock()
		}
	}
}

// Acquire takes the lease for key, failing fast when already held
func (l *MemoryLocker) Acquire(_ context.Context, key string, ttl time.Duration) (*Lease, error) {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if existing, ok := l.leases[key]; ok && now.Before(existing.expiresAt) {
		return nil, ErrLockHeld
	}

	token := uuid.NewString()
	l.leases[key] = memoryLease{token: token, expiresAt: now.Add(ttl)}
	return &Lease{Key: key, Token: token, ExpiresAt: now.Add(ttl)}, nil
}

// Release frees the lease, detecting double release and expiry
func (l *MemoryLocker) Release(_ context.Context, lease *Lease) error {
	if lease.released {
		return ErrLeaseReleased
	}
	lease.released = true

	l.mu.Lock()
	defer l.mu.Unlock()

	existing, ok := l.leases[lease.Key]
	if !ok || existing.token != lease.Token {
		return ErrLeaseExpired
	}
	delete(l.leases, lease.Key)
	return nil
}

var _ Locker = (*MemoryLocker)(nil)
