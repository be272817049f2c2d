package locker

import (
	"context"
	"errors"
	"time"
)

// ErrLocked means another holder has the resource. Match it with errors.Is.
var ErrLocked = errors.New("resource is locked")

type Locker interface {
	// Lock tries once and fails with ErrLocked when the resource is held.
	Lock(ctx context.Context, resource string) (Release, error)
	// LockWithtimeout is Lock with a bound on how long the lock may be held, for backends
	// that expire locks. Session bound backends ignore timeout.
	LockWithtimeout(ctx context.Context, resource string, timeout time.Duration) (Release, error)
	// WaitForLocker waits up to maxWait (forever when 0) for the resource.
	WaitForLocker(ctx context.Context, resource string, maxWait time.Duration, timeout time.Duration) (Release, error)
}

type Release func(context.Context) error
