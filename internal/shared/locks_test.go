package shared

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestLocker(t *testing.T) (*Locker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewLocker(client, time.Second), mr
}

func TestLockerAcquireRelease(t *testing.T) {
	locker, mr := newTestLocker(t)
	ctx := context.Background()
	key := LedgerLockKey("stock")

	token, err := locker.Acquire(ctx, key)
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.True(t, mr.Exists(key))

	require.NoError(t, locker.Release(ctx, key, token))
	require.False(t, mr.Exists(key))
}

func TestLockerContendedAcquireTimesOut(t *testing.T) {
	locker, _ := newTestLocker(t)
	ctx := context.Background()
	key := LedgerLockKey("stock")

	token, err := locker.Acquire(ctx, key)
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 80*time.Millisecond)
	defer cancel()
	_, err = locker.Acquire(waitCtx, key)
	require.ErrorIs(t, err, ErrLockHeld)

	require.NoError(t, locker.Release(ctx, key, token))
	token2, err := locker.Acquire(ctx, key)
	require.NoError(t, err)
	require.NotEqual(t, token, token2)
}

func TestLockerReleaseRequiresOwnership(t *testing.T) {
	locker, mr := newTestLocker(t)
	ctx := context.Background()
	key := LedgerLockKey("stock")

	_, err := locker.Acquire(ctx, key)
	require.NoError(t, err)

	// A stale token must not free somebody else's lock.
	require.NoError(t, locker.Release(ctx, key, "stale-token"))
	require.True(t, mr.Exists(key))
}

func TestNilLockerIsNoop(t *testing.T) {
	var locker *Locker
	ctx := context.Background()

	token, err := locker.Acquire(ctx, LedgerLockKey("stock"))
	require.NoError(t, err)
	require.Empty(t, token)
	require.NoError(t, locker.Release(ctx, LedgerLockKey("stock"), token))
}
