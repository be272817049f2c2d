package pglock

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"sync"

	"github.com/techquest-tech/pglocks/pkg/orm"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrNilDB = errors.New("pglock: db is nil")

// Lock is the result of one acquisition. Release must be called exactly once on every
// path, whether or not the lock was acquired; With does that for you.
type Lock struct {
	req      *request
	tx       *gorm.DB
	conn     *sql.Conn // nil when the session is borrowed from the caller
	acquired bool

	once sync.Once
	err  error
}

// Acquire runs the acquire statement for key on a single database session.
//
// Session level advisory locks belong to the backend that took them, so the statement runs
// on a connection pinned out of db's pool and the same connection is used for the unlock.
// When db is already bound to one session (a gorm transaction or db.Connection) that
// session is borrowed instead, and left open on Release.
//
// In blocking mode Acquire returns once the lock is granted, with Acquired() == true.
// With NoWait, Acquired() reports whether pg_try_* obtained it.
func Acquire(ctx context.Context, db *gorm.DB, key Key, opts ...Option) (*Lock, error) {
	if key == nil {
		return nil, invalidKey(key, "nil key")
	}
	if db == nil {
		return nil, ErrNilDB
	}
	req := newRequest(key, opts)

	tx, conn, err := pin(ctx, db)
	if err != nil {
		return nil, err
	}
	l := &Lock{req: req, tx: tx, conn: conn}

	stmt := req.acquireSQL()
	if req.wait {
		err = tx.Exec(stmt).Error
		l.acquired = err == nil
	} else {
		err = tx.Raw(stmt).Scan(&l.acquired).Error
	}
	if err != nil {
		l.acquired = false
		if conn != nil {
			// the server may have granted the lock just before a cancel landed, so the
			// session must not go back to the pool.
			discard(conn)
		}
		if cerr := l.Release(ctx); cerr != nil {
			zap.L().Warn("close pinned connection failed", zap.Error(cerr))
		}
		return nil, fmt.Errorf("pglock: %s(%s): %w", req.acquireFunc(), key.args(), err)
	}
	if !l.acquired && conn != nil {
		// nothing to unlock, give the session back now
		if cerr := conn.Close(); cerr != nil {
			zap.L().Warn("close pinned connection failed", zap.Error(cerr))
		}
	}

	zap.L().Debug("advisory lock requested",
		zap.Stringer("key", key),
		zap.String("func", req.acquireFunc()),
		zap.Bool("acquired", l.acquired),
	)
	return l, nil
}

func pin(ctx context.Context, db *gorm.DB) (*gorm.DB, *sql.Conn, error) {
	tx := db.WithContext(ctx)
	switch tx.Statement.ConnPool.(type) {
	case gorm.TxCommitter, *sql.Conn:
		return tx, nil, nil
	}

	sqlDB, err := tx.DB()
	if err != nil {
		return nil, nil, fmt.Errorf("pglock: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("pglock: pin connection: %w", err)
	}
	tx.Statement.ConnPool = conn
	return tx, conn, nil
}

// discard closes the driver connection instead of returning it to the pool.
func discard(conn *sql.Conn) {
	_ = conn.Raw(func(any) error { return driver.ErrBadConn })
}

// Acquired reports whether the lock is held by this session.
func (l *Lock) Acquired() bool {
	return l.acquired
}

func (l *Lock) Key() Key {
	return l.req.key
}

// Release unlocks (only when the lock was acquired) and returns the pinned connection to
// the pool. It ignores cancellation of ctx so that an aborted caller still unlocks.
// Subsequent calls return the first result.
func (l *Lock) Release(ctx context.Context) error {
	l.once.Do(func() {
		l.err = l.release(context.WithoutCancel(ctx))
	})
	return l.err
}

func (l *Lock) release(ctx context.Context) error {
	var errs []error
	if l.acquired {
		var released bool
		stmt := l.req.releaseSQL()
		err := l.tx.WithContext(ctx).Raw(stmt).Scan(&released).Error
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("pglock: %s(%s): %w", l.req.releaseFunc(), l.req.key.args(), err))
		case !released:
			zap.L().Warn("advisory lock was not held at release", zap.Stringer("key", l.req.key))
		default:
			zap.L().Debug("advisory lock released", zap.Stringer("key", l.req.key))
		}
		l.acquired = false
	}
	if l.conn != nil {
		if err := l.conn.Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
			errs = append(errs, fmt.Errorf("pglock: close connection: %w", err))
		}
	}
	return errors.Join(errs...)
}

// With acquires key on db, runs fn and releases on every way out of fn, panics included.
// fn learns through acquired whether a NoWait attempt succeeded; blocking attempts always
// pass true. An error from fn is returned as is, joined with any release error.
func With(ctx context.Context, db *gorm.DB, key Key, fn func(ctx context.Context, acquired bool) error, opts ...Option) (err error) {
	l, err := Acquire(ctx, db, key, opts...)
	if err != nil {
		return err
	}
	defer func() {
		if rerr := l.Release(ctx); rerr != nil {
			err = errors.Join(err, rerr)
		}
	}()
	return fn(ctx, l.Acquired())
}

// WithConnection is With on the connection named by Using, or orm.DefaultConnection.
func WithConnection(ctx context.Context, key Key, fn func(ctx context.Context, acquired bool) error, opts ...Option) error {
	if key == nil {
		return invalidKey(key, "nil key")
	}
	req := newRequest(key, opts)
	db, ok := orm.Connection(req.using)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownConnection, req.using)
	}
	return With(ctx, db, key, fn, opts...)
}
