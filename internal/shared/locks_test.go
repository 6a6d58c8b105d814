package shared

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestLocker(t *testing.T) (*EntityLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewEntityLocker(client, time.Second), mr
}

func TestWithLockRunsFunction(t *testing.T) {
	locker, _ := newTestLocker(t)

	ran := false
	err := locker.WithLock(context.Background(), PurchaseOrderLockKey(7), func(context.Context) error {
		ran = true
		return nil
	})
	require.NoError(t, err)
	require.True(t, ran)
}

func TestWithLockReleasesAfterRun(t *testing.T) {
	locker, mr := newTestLocker(t)
	key := PurchaseOrderLockKey(7)

	err := locker.WithLock(context.Background(), key, func(context.Context) error { return nil })
	require.NoError(t, err)
	require.False(t, mr.Exists(key))
}

func TestWithLockHeldKeyTimesOut(t *testing.T) {
	locker, mr := newTestLocker(t)
	locker.wait = 100 * time.Millisecond
	key := ProductLockKey(1)

	// Simulate another holder.
	require.NoError(t, mr.Set(key, "someone-else"))

	err := locker.WithLock(context.Background(), key, func(context.Context) error {
		t.Fatal("must not run while the lock is held")
		return nil
	})
	require.ErrorIs(t, err, ErrLockNotAcquired)
}

func TestWithLockDoesNotReleaseForeignToken(t *testing.T) {
	locker, mr := newTestLocker(t)
	locker.wait = 150 * time.Millisecond
	key := ProductLockKey(1)

	err := locker.WithLock(context.Background(), key, func(context.Context) error {
		// Simulate TTL expiry plus takeover by another process mid-section.
		mr.Del(key)
		require.NoError(t, mr.Set(key, "other-token"))
		return nil
	})
	require.NoError(t, err)

	// The compare-and-delete script must leave the other holder's lock alone.
	value, getErr := mr.Get(key)
	require.NoError(t, getErr)
	require.Equal(t, "other-token", value)
}

func TestNilLockerRunsUnserialised(t *testing.T) {
	var locker *EntityLocker
	ran := false
	err := locker.WithLock(context.Background(), "any", func(context.Context) error {
		ran = true
		return nil
	})
	require.NoError(t, err)
	require.True(t, ran)
}
