package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func setupRedisLock(t *testing.T, lease time.Duration) (*miniredis.Miniredis, *Redis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	l, err := NewRedis(client, lease, WithPollInterval(5*time.Millisecond))
	require.NoError(t, err)
	return mr, l
}

func TestNewRedis_Validates(t *testing.T) {
	_, err := NewRedis(nil, time.Second)
	require.Error(t, err)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	_, err = NewRedis(client, 0)
	require.Error(t, err)
}

func TestRedis_AcquireRelease(t *testing.T) {
	mr, l := setupRedisLock(t, time.Minute)

	release, err := l.Acquire(context.Background(), "conv")
	require.NoError(t, err)
	require.True(t, mr.Exists("lock:conv"))

	release()
	require.False(t, mr.Exists("lock:conv"))
}

func TestRedis_SecondAcquirerWaits(t *testing.T) {
	_, l := setupRedisLock(t, time.Minute)

	release, err := l.Acquire(context.Background(), "conv")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(ctx, "conv")
	require.ErrorIs(t, err, ErrNotAcquired)

	acquired := make(chan struct{})
	go func() {
		r2, err := l.Acquire(context.Background(), "conv")
		if err == nil {
			r2()
		}
		close(acquired)
	}()

	release()
	select {
	case <-acquired:
	case <-time.After(2 * time.Second):
		t.Fatal("waiter did not acquire after release")
	}
}

func TestRedis_DistinctKeys(t *testing.T) {
	_, l := setupRedisLock(t, time.Minute)

	ra, err := l.Acquire(context.Background(), "a")
	require.NoError(t, err)
	defer ra()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	rb, err := l.Acquire(ctx, "b")
	require.NoError(t, err)
	rb()
}

func TestRedis_StaleHolderCannotReleaseNewLease(t *testing.T) {
	mr, l := setupRedisLock(t, time.Second)

	stale, err := l.Acquire(context.Background(), "conv")
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)

	fresh, err := l.Acquire(context.Background(), "conv")
	require.NoError(t, err)

	stale()
	require.True(t, mr.Exists("lock:conv"), "stale release must not drop the new lease")

	fresh()
	require.False(t, mr.Exists("lock:conv"))
}

func TestRedis_HolderRenewsLease(t *testing.T) {
	mr, l := setupRedisLock(t, 300*time.Millisecond)

	release, err := l.Acquire(context.Background(), "conv")
	require.NoError(t, err)

	// Most of the lease is spent; a renewal must push the expiry back out.
	mr.FastForward(250 * time.Millisecond)
	require.Eventually(t, func() bool {
		return mr.TTL("lock:conv") > 200*time.Millisecond
	}, 2*time.Second, 10*time.Millisecond)

	mr.FastForward(250 * time.Millisecond)
	require.True(t, mr.Exists("lock:conv"), "a renewed lease must outlive its first term")

	release()
	require.False(t, mr.Exists("lock:conv"))
}

func TestRedis_LostLeaseIsNotRenewed(t *testing.T) {
	mr, l := setupRedisLock(t, 300*time.Millisecond)

	release, err := l.Acquire(context.Background(), "conv")
	require.NoError(t, err)

	mr.FastForward(time.Second)
	require.False(t, mr.Exists("lock:conv"))
	require.NoError(t, mr.Set("lock:conv", "other-holder"))
	mr.SetTTL("lock:conv", 10*time.Second)

	time.Sleep(250 * time.Millisecond)
	require.Equal(t, 10*time.Second, mr.TTL("lock:conv"))

	release()
	got, err := mr.Get("lock:conv")
	require.NoError(t, err)
	require.Equal(t, "other-holder", got)
}
