package locker

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thanhpk/randstr"
	"go.uber.org/zap/zaptest"
)

func newTestRedisLocker(t *testing.T) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisLocker(client, zaptest.NewLogger(t)), mr
}

func TestRedisLocker(t *testing.T) {
	ctx := context.Background()
	l, mr := newTestRedisLocker(t)
	resource := randstr.Hex(8)

	release, err := l.Lock(ctx, resource)
	require.NoError(t, err)
	assert.True(t, mr.Exists(LockerPrefix+resource))
	assert.Equal(t, MaxLockerDuration, mr.TTL(LockerPrefix+resource))

	_, err = l.Lock(ctx, resource)
	assert.ErrorIs(t, err, ErrLocked)

	require.NoError(t, release(ctx))
	assert.False(t, mr.Exists(LockerPrefix+resource))

	again, err := l.Lock(ctx, resource)
	require.NoError(t, err)
	assert.NoError(t, again(ctx))
}

func TestRedisLockerExpired(t *testing.T) {
	ctx := context.Background()
	l, mr := newTestRedisLocker(t)

	release, err := l.LockWithtimeout(ctx, "short", 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, mr.TTL(LockerPrefix+"short"))

	mr.FastForward(6 * time.Second)
	assert.NoError(t, release(ctx), "an expired lock is not a release failure")

	next, err := l.Lock(ctx, "short")
	require.NoError(t, err)
	assert.NoError(t, next(ctx))
}

func TestRedisLockerWait(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestRedisLocker(t)

	release, err := l.Lock(ctx, "job")
	require.NoError(t, err)

	_, err = l.WaitForLocker(ctx, "job", 3*RetryInterval, time.Minute)
	assert.ErrorIs(t, err, ErrLocked)

	go func() {
		time.Sleep(2 * RetryInterval)
		_ = release(ctx)
	}()
	waited, err := l.WaitForLocker(ctx, "job", 5*time.Second, time.Minute)
	require.NoError(t, err)
	assert.NoError(t, waited(ctx))
}
