package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/techquest-tech/pglocks/pkg/orm"
	"github.com/techquest-tech/pglocks/pkg/pglock"
	"go.uber.org/zap/zaptest"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newRunTest(t *testing.T) (*cobra.Command, *bytes.Buffer, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)
	orm.Register("run-test", db)
	t.Cleanup(func() { orm.Unregister("run-test") })

	using, nowait = "run-test", true
	t.Cleanup(func() { using, nowait = "", false })

	out := &bytes.Buffer{}
	c := &cobra.Command{}
	c.SetOut(out)
	c.SetErr(out)
	c.SetContext(context.Background())
	return c, out, mock
}

func TestRunNotAcquiredSkipsChild(t *testing.T) {
	c, _, mock := newRunTest(t)
	key := pglock.Text("nightly-report")
	try, _, err := pglock.Statements(key, lockOptions()...)
	require.NoError(t, err)
	assert.Equal(t, "SELECT pg_try_advisory_lock(-2077502800) -- nightly-report pglocks run", try)

	mock.ExpectQuery(try).WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(false))

	marker := filepath.Join(t.TempDir(), "started")
	err = runLocked(c, key, []string{"sh", "-c", "touch " + marker}, zaptest.NewLogger(t), lockOptions()...)
	assert.ErrorIs(t, err, ErrNotAcquired)
	assert.Equal(t, ExitNotAcquired, ExitCode(err))
	assert.NoFileExists(t, marker)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunPassesChildStatus(t *testing.T) {
	c, out, mock := newRunTest(t)
	key := pglock.Int(42)
	try, unlock, err := pglock.Statements(key, lockOptions()...)
	require.NoError(t, err)

	mock.ExpectQuery(try).WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(true))
	mock.ExpectQuery(unlock).WillReturnRows(sqlmock.NewRows([]string{"pg_advisory_unlock"}).AddRow(true))

	err = runLocked(c, key, []string{"sh", "-c", "echo held; exit 3"}, zaptest.NewLogger(t), lockOptions()...)
	require.Error(t, err)
	assert.Equal(t, 3, ExitCode(err))
	assert.Equal(t, "held\n", out.String())
	assert.NoError(t, mock.ExpectationsWereMet(), "the lock is released after the child exits")
}

func TestRunUnknownConnection(t *testing.T) {
	c, _, _ := newRunTest(t)
	using = "missing"

	marker := filepath.Join(t.TempDir(), "started")
	err := runLocked(c, pglock.Int(1), []string{"sh", "-c", "touch " + marker}, zaptest.NewLogger(t), lockOptions()...)
	assert.ErrorIs(t, err, pglock.ErrUnknownConnection)
	assert.Equal(t, 1, ExitCode(err))
	_, statErr := os.Stat(marker)
	assert.True(t, os.IsNotExist(statErr))
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, ExitCode(nil))
	assert.Equal(t, ExitNotAcquired, ExitCode(ErrNotAcquired))
	assert.Equal(t, ExitNotAcquired, ExitCode(fmt.Errorf("run: %w", ErrNotAcquired)))
	assert.Equal(t, 1, ExitCode(errors.New("connection refused")))
}
