package locker

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/techquest-tech/pglocks/pkg/core"
	"github.com/techquest-tech/pglocks/pkg/pglock"
	"go.uber.org/zap/zaptest"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestAdvisoryLocker(t *testing.T) (*AdvisoryLocker, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)
	return NewAdvisoryLocker(db, zaptest.NewLogger(t)), mock
}

func TestAdvisoryLockerLock(t *testing.T) {
	ctx := context.Background()
	al, mock := newTestAdvisoryLocker(t)

	try, unlock, err := pglock.Statements(pglock.Text("nightly-report"), pglock.NoWait(), pglock.TriggeredBy(core.AppName))
	require.NoError(t, err)
	assert.Equal(t, "SELECT pg_try_advisory_lock(-2077502800) -- nightly-report pglocks", try)

	events := make([]string, 0)
	onAcquired := func(resource string) { events = append(events, "acquired "+resource) }
	onReleased := func(resource string) { events = append(events, "released "+resource) }
	require.NoError(t, core.Bus.Subscribe(core.EventLockAcquired, onAcquired))
	require.NoError(t, core.Bus.Subscribe(core.EventLockReleased, onReleased))
	t.Cleanup(func() {
		_ = core.Bus.Unsubscribe(core.EventLockAcquired, onAcquired)
		_ = core.Bus.Unsubscribe(core.EventLockReleased, onReleased)
	})

	mock.ExpectQuery(try).WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(true))
	mock.ExpectQuery(unlock).WillReturnRows(sqlmock.NewRows([]string{"pg_advisory_unlock"}).AddRow(true))

	release, err := al.Lock(ctx, "nightly-report")
	require.NoError(t, err)
	require.NoError(t, release(ctx))

	assert.Equal(t, []string{"acquired nightly-report", "released nightly-report"}, events)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdvisoryLockerLocked(t *testing.T) {
	ctx := context.Background()
	al, mock := newTestAdvisoryLocker(t)

	try, _, err := pglock.Statements(pglock.Text("nightly-report"), pglock.NoWait(), pglock.TriggeredBy(core.AppName))
	require.NoError(t, err)
	mock.ExpectQuery(try).WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(false))

	_, err = al.LockWithtimeout(ctx, "nightly-report", 0)
	assert.ErrorIs(t, err, ErrLocked)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdvisoryLockerWaitTimeout(t *testing.T) {
	ctx := context.Background()
	al, mock := newTestAdvisoryLocker(t)

	wait, _, err := pglock.Statements(pglock.Text("nightly-report"), pglock.TriggeredBy(core.AppName))
	require.NoError(t, err)
	mock.ExpectExec(wait).WillReturnError(&pgconn.PgError{Code: "55P03", Message: "canceling statement due to lock timeout"})

	_, err = al.WaitForLocker(ctx, "nightly-report", 0, 0)
	assert.ErrorIs(t, err, ErrLocked)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdvisoryLockerWaitOtherError(t *testing.T) {
	ctx := context.Background()
	al, mock := newTestAdvisoryLocker(t)
	errDown := errors.New("server closed the connection unexpectedly")

	wait, _, err := pglock.Statements(pglock.Text("nightly-report"), pglock.TriggeredBy(core.AppName))
	require.NoError(t, err)
	mock.ExpectExec(wait).WillReturnError(errDown)

	_, err = al.WaitForLocker(ctx, "nightly-report", 0, 0)
	assert.ErrorIs(t, err, errDown)
	assert.NotErrorIs(t, err, ErrLocked)
}

func TestIsWaitTimeout(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{context.DeadlineExceeded, true},
		{fmt.Errorf("wrapped: %w", context.DeadlineExceeded), true},
		{&pgconn.PgError{Code: "55P03"}, true},
		{fmt.Errorf("pglock: %w", &pgconn.PgError{Code: "57014"}), true},
		{&pgconn.PgError{Code: "40P01"}, false},
		{context.Canceled, false},
		{errors.New("boom"), false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, isWaitTimeout(c.err), "%v", c.err)
	}
}
