package locker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// LocalLocker only serialises goroutines of this process. Useful for a single replica and tests.
type LocalLocker struct {
	locker sync.Map
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{}
}

func (ml *LocalLocker) mutex(resource string) *sync.Mutex {
	raw, _ := ml.locker.LoadOrStore(resource, &sync.Mutex{})
	return raw.(*sync.Mutex)
}

func (ml *LocalLocker) Lock(ctx context.Context, resource string) (Release, error) {
	logger := zap.L().With(zap.String("resources", resource))
	locker := ml.mutex(resource)
	if locker.TryLock() {
		logger.Debug("get locker done")
		return unlockOnce(locker), nil
	}
	logger.Info("get locker failed")
	return nil, fmt.Errorf("%s: %w", resource, ErrLocked)
}

func (ml *LocalLocker) LockWithtimeout(ctx context.Context, resource string, timeout time.Duration) (Release, error) {
	if timeout > 0 {
		zap.L().Debug("timeout is not supported in ram locker")
	}
	return ml.Lock(ctx, resource)
}

func (ml *LocalLocker) WaitForLocker(ctx context.Context, resource string, maxWait time.Duration, timeout time.Duration) (Release, error) {
	locker := ml.mutex(resource)
	if locker.TryLock() {
		return unlockOnce(locker), nil
	}
	if maxWait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, maxWait)
		defer cancel()
	}

	ticker := time.NewTicker(RetryInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			zap.L().Info("wait for locker timeout", zap.String("resources", resource))
			return nil, fmt.Errorf("%s: %w", resource, ErrLocked)
		case <-ticker.C:
			if locker.TryLock() {
				return unlockOnce(locker), nil
			}
		}
	}
}

func unlockOnce(locker *sync.Mutex) Release {
	var once sync.Once
	return func(ctx context.Context) error {
		once.Do(locker.Unlock)
		return nil
	}
}
