//go:build integration

package pglock_test

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/techquest-tech/pglocks/pkg/pglock"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// go test -tags integration ./pkg/pglock/ with TEST_DATABASE_URL pointing at a scratch database.
func openPostgres(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	return db
}

func TestIntegrationExclusiveBlocksOthers(t *testing.T) {
	db := openPostgres(t)
	ctx := context.Background()
	key := pglock.Text("integration-exclusive")

	err := pglock.With(ctx, db, key, func(ctx context.Context, acquired bool) error {
		require.True(t, acquired)

		held, err := pglock.Held(ctx, db)
		require.NoError(t, err)
		assert.Len(t, pglock.Filter(held, key), 1)

		return pglock.With(ctx, db, key, func(ctx context.Context, acquired bool) error {
			assert.False(t, acquired, "a second session must not get the exclusive lock")
			return nil
		}, pglock.NoWait())
	})
	require.NoError(t, err)

	// released: a fresh try succeeds
	err = pglock.With(ctx, db, key, func(ctx context.Context, acquired bool) error {
		assert.True(t, acquired)
		return nil
	}, pglock.NoWait())
	require.NoError(t, err)
}

func TestIntegrationSharedHoldersCoexist(t *testing.T) {
	db := openPostgres(t)
	ctx := context.Background()
	key := pglock.Pair{4242, 7}

	err := pglock.With(ctx, db, key, func(ctx context.Context, acquired bool) error {
		require.True(t, acquired)
		return pglock.With(ctx, db, key, func(ctx context.Context, acquired bool) error {
			assert.True(t, acquired)
			return pglock.With(ctx, db, key, func(ctx context.Context, acquired bool) error {
				assert.False(t, acquired, "exclusive must wait for shared holders")
				return nil
			}, pglock.NoWait())
		}, pglock.Shared(), pglock.NoWait())
	}, pglock.Shared())
	require.NoError(t, err)
}

func TestIntegrationBlockingWaitsForRelease(t *testing.T) {
	db := openPostgres(t)
	ctx := context.Background()
	key := pglock.Int(987654321)

	first, err := pglock.Acquire(ctx, db, key)
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	gotAt := make(chan time.Time, 1)
	go func() {
		defer wg.Done()
		_ = pglock.With(ctx, db, key, func(ctx context.Context, acquired bool) error {
			gotAt <- time.Now()
			return nil
		})
	}()

	time.Sleep(200 * time.Millisecond)
	releasedAt := time.Now()
	require.NoError(t, first.Release(ctx))
	wg.Wait()
	assert.True(t, (<-gotAt).After(releasedAt))
}

func TestIntegrationCanceledWaitLeavesNoLock(t *testing.T) {
	db := openPostgres(t)
	key := pglock.Int(123123123)

	first, err := pglock.Acquire(context.Background(), db, key)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_, err = pglock.Acquire(ctx, db, key)
	require.Error(t, err)

	require.NoError(t, first.Release(context.Background()))

	held, err := pglock.Held(context.Background(), db)
	require.NoError(t, err)
	assert.Empty(t, pglock.Filter(held, key))
}
