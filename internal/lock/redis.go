package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock key only when it still holds our token,
// so a lease that expired and was reacquired elsewhere is never clobbered.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisLocker implements Locker with SET NX PX leases. Redis expires the
// key itself, which bounds abandoned sessions without a sweeper.
type RedisLocker struct {
	client *redis.Client
	prefix string
}

// NewRedisLocker creates a locker over an existing Redis client. All lock
// keys are namespaced under prefix.
func NewRedisLocker(client *redis.Client, prefix string) *RedisLocker {
	if prefix == "" {
		prefix = "sync:lock:"
	}
	return &RedisLocker{client: client, prefix: prefix}
}

// Acquire takes the lease for key, failing fast when already held
func (r *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lease, error) {
	token := uuid.NewString()
	ok, err := r.client.SetNX(ctx, r.prefix+key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock %q: %w", key, err)
	}
	if !ok {
		return nil, ErrLockHeld
	}
	return &Lease{
		Key:       key,
		Token:     token,
		ExpiresAt: time.Now().Add(ttl),
	}, nil
}

// Release frees the lease, detecting double release and expiry
func (r *RedisLocker) Release(ctx context.Context, lease *Lease) error {
	if lease.released {
		return ErrLeaseReleased
	}
	lease.released = true

	deleted, err := releaseScript.Run(ctx, r.client, []string{r.prefix + lease.Key}, lease.Token).Int()
	if err != nil {
		return fmt.Errorf("failed to release lock %q: %w", lease.Key, err)
	}
	if deleted == 0 {
		return ErrLeaseExpired
	}
	return nil
}

var _ Locker = (*RedisLocker)(nil)
