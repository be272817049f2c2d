package locker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLocker(t *testing.T) {
	ctx := context.Background()
	l := NewLocalLocker()

	release, err := l.Lock(ctx, "report")
	require.NoError(t, err)

	_, err = l.Lock(ctx, "report")
	assert.ErrorIs(t, err, ErrLocked)

	other, err := l.LockWithtimeout(ctx, "other", time.Minute)
	require.NoError(t, err)
	require.NoError(t, other(ctx))

	require.NoError(t, release(ctx))
	require.NoError(t, release(ctx), "release twice must not unlock someone else's lock")

	again, err := l.Lock(ctx, "report")
	require.NoError(t, err)
	assert.NoError(t, again(ctx))
}

func TestLocalLockerWait(t *testing.T) {
	ctx := context.Background()
	l := NewLocalLocker()

	release, err := l.Lock(ctx, "report")
	require.NoError(t, err)

	_, err = l.WaitForLocker(ctx, "report", 3*RetryInterval, 0)
	assert.ErrorIs(t, err, ErrLocked)

	go func() {
		time.Sleep(2 * RetryInterval)
		_ = release(ctx)
	}()
	waited, err := l.WaitForLocker(ctx, "report", 0, 0)
	require.NoError(t, err)
	assert.NoError(t, waited(ctx))
}
