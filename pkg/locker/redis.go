package locker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var MaxLockerDuration time.Duration = 30 * time.Minute

// RetryInterval is the polling step of WaitForLocker.
var RetryInterval = 100 * time.Millisecond

const (
	LockerPrefix = "_locker_"
)

type RedisLocker struct {
	client *redislock.Client
	Logger *zap.Logger
}

func NewRedisClient(logger *zap.Logger) (*redis.Client, error) {
	opts := &redis.Options{}
	if subRedis := viper.Sub("redis"); subRedis != nil {
		if err := subRedis.Unmarshal(opts); err != nil {
			return nil, fmt.Errorf("redis settings: %w", err)
		}
	}
	client := redis.NewClient(opts)
	logger.Info("connected to redis", zap.String("redis", opts.Addr))
	return client, nil
}

func NewRedisLocker(client redislock.RedisClient, logger *zap.Logger) *RedisLocker {
	return &RedisLocker{
		client: redislock.New(client),
		Logger: logger,
	}
}

func (r *RedisLocker) obtain(ctx context.Context, resource string, timeout time.Duration, retry redislock.RetryStrategy) (Release, error) {
	if timeout <= 0 {
		timeout = MaxLockerDuration
	}
	lock, err := r.client.Obtain(ctx, LockerPrefix+resource, timeout, &redislock.Options{RetryStrategy: retry})
	if err != nil {
		if errors.Is(err, redislock.ErrNotObtained) {
			r.Logger.Info("resource is locked.", zap.String("resource", resource))
			return nil, fmt.Errorf("%s: %w", resource, ErrLocked)
		}
		return nil, fmt.Errorf("obtain redis lock %s: %w", resource, err)
	}
	return func(ctx context.Context) error {
		err := lock.Release(ctx)
		if errors.Is(err, redislock.ErrLockNotHeld) {
			r.Logger.Warn("redis lock expired before release", zap.String("resource", resource))
			return nil
		}
		return err
	}, nil
}

func (r *RedisLocker) LockWithtimeout(ctx context.Context, resource string, timeout time.Duration) (Release, error) {
	return r.obtain(ctx, resource, timeout, redislock.NoRetry())
}

func (r *RedisLocker) Lock(ctx context.Context, resource string) (Release, error) {
	return r.LockWithtimeout(ctx, resource, 0)
}

func (r *RedisLocker) WaitForLocker(ctx context.Context, resource string, maxWait time.Duration, timeout time.Duration) (Release, error) {
	if maxWait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, maxWait)
		defer cancel()
	}
	release, err := r.obtain(ctx, resource, timeout, redislock.LinearBackoff(RetryInterval))
	if err != nil && errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("%s: %w", resource, ErrLocked)
	}
	return release, err
}
