package shared

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// LedgerLockKey builds the redis key guarding a ledger critical section.
func LedgerLockKey(region string) string {
	return fmt.Sprintf("ledger:%s:lock", region)
}

// ErrLockHeld indicates the critical section is occupied.
var ErrLockHeld = errors.New("shared: lock already held")

// Locker provides redis-backed mutual exclusion. The reconciliation
// read-then-write sequences run under a lock so concurrent callers on the
// same SKU cannot lose updates.
type Locker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewLocker constructs a Locker.
func NewLocker(client *redis.Client, ttl time.Duration) *Locker {
	return &Locker{client: client, ttl: ttl}
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Acquire takes the lock, retrying until the context is done. It returns an
// owner token that must be passed to Release.
func (l *Locker) Acquire(ctx context.Context, key string) (string, error) {
	if l == nil || l.client == nil {
		return "", nil
	}
	token := uuid.NewString()
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return "", err
		}
		if ok {
			return token, nil
		}
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("%w: %s", ErrLockHeld, key)
		case <-time.After(25 * time.Millisecond):
		}
	}
}

// Release frees the lock when still owned by token.
func (l *Locker) Release(ctx context.Context, key, token string) error {
	if l == nil || l.client == nil || token == "" {
		return nil
	}
	return releaseScript.Run(ctx, l.client, []string{key}, token).Err()
}
