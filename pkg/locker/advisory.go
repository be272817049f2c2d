package locker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/techquest-tech/pglocks/pkg/core"
	"github.com/techquest-tech/pglocks/pkg/pglock"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	sqlstateLockNotAvailable = "55P03"
	sqlstateQueryCanceled    = "57014"
)

// AdvisoryLocker maps resource names to exclusive session level advisory locks.
// The lock lives as long as the pinned session, so timeouts on hold time do not apply.
type AdvisoryLocker struct {
	DB     *gorm.DB
	Logger *zap.Logger
}

func NewAdvisoryLocker(db *gorm.DB, logger *zap.Logger) *AdvisoryLocker {
	return &AdvisoryLocker{DB: db, Logger: logger}
}

func (al *AdvisoryLocker) Lock(ctx context.Context, resource string) (Release, error) {
	l, err := pglock.Acquire(ctx, al.DB, pglock.Text(resource), pglock.NoWait(), pglock.TriggeredBy(core.AppName))
	if err != nil {
		return nil, err
	}
	if !l.Acquired() {
		if err := l.Release(ctx); err != nil {
			al.Logger.Warn("release connection failed", zap.Error(err))
		}
		al.Logger.Info("resource is locked.", zap.String("resource", resource))
		return nil, fmt.Errorf("%s: %w", resource, ErrLocked)
	}
	return al.release(l, resource), nil
}

func (al *AdvisoryLocker) LockWithtimeout(ctx context.Context, resource string, timeout time.Duration) (Release, error) {
	if timeout > 0 {
		al.Logger.Debug("hold timeout is not supported by advisory locks", zap.Duration("timeout", timeout))
	}
	return al.Lock(ctx, resource)
}

func (al *AdvisoryLocker) WaitForLocker(ctx context.Context, resource string, maxWait time.Duration, timeout time.Duration) (Release, error) {
	if timeout > 0 {
		al.Logger.Debug("hold timeout is not supported by advisory locks", zap.Duration("timeout", timeout))
	}
	waitCtx := ctx
	if maxWait > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, maxWait)
		defer cancel()
	}

	l, err := pglock.Acquire(waitCtx, al.DB, pglock.Text(resource), pglock.TriggeredBy(core.AppName))
	if err != nil {
		if ctx.Err() == nil && isWaitTimeout(err) {
			al.Logger.Info("wait for locker timeout", zap.String("resource", resource), zap.Duration("maxWait", maxWait))
			return nil, fmt.Errorf("%s: %w", resource, ErrLocked)
		}
		return nil, err
	}
	return al.release(l, resource), nil
}

func (al *AdvisoryLocker) release(l *pglock.Lock, resource string) Release {
	al.Logger.Debug("get locker done", zap.String("resource", resource), zap.Stringer("key", l.Key()))
	core.Bus.Publish(core.EventLockAcquired, resource)
	return func(ctx context.Context) error {
		err := l.Release(ctx)
		core.Bus.Publish(core.EventLockReleased, resource)
		al.Logger.Debug("release locker done", zap.String("resource", resource), zap.Error(err))
		return err
	}
}

// isWaitTimeout recognises a blocking acquire that was cut short: our own deadline, or a
// lock_timeout / statement_timeout configured on the session.
func isWaitTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == sqlstateLockNotAvailable || pgErr.Code == sqlstateQueryCanceled
	}
	return false
}
