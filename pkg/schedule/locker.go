package schedule

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/techquest-tech/pglocks/pkg/core"
	"github.com/techquest-tech/pglocks/pkg/locker"
	"go.uber.org/zap"
)

func (s *Scheduler) wrapFuncJob(jobname string, fn func() error, opt ScheduleOptions) cron.FuncJob {
	return cron.FuncJob(
		func() {
			logger := s.Logger.With(zap.String("jobname", jobname))
			task := JobHistory{
				App:     core.AppName,
				Job:     jobname,
				Start:   time.Now(),
				Succeed: true,
			}
			ctx := context.Background()

			var release locker.Release
			if !opt.Nolocker && s.Locker != nil {
				var err error
				if opt.MaxWait > 0 {
					release, err = s.Locker.WaitForLocker(ctx, jobname, opt.MaxWait, 0)
				} else {
					release, err = s.Locker.Lock(ctx, jobname)
				}
				if err != nil {
					task.Succeed = false
					task.Skipped = errors.Is(err, locker.ErrLocked)
					task.Message = err.Error()
					if task.Skipped {
						logger.Info("job skipped, another replica is running it")
					} else {
						logger.Error("get locker failed", zap.Error(err))
					}
					s.finish(task, opt)
					return
				}
			}

			defer func() {
				if r := recover(); r != nil {
					task.Succeed = false
					task.Message = fmt.Sprintf("panic: %v", r)
					logger.Error("recover from panic", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
				}
				if release != nil {
					if err := release(ctx); err != nil {
						logger.Warn("release job locker failed", zap.Error(err))
					}
				}
				if task.Succeed {
					logger.Info("job done")
				}
				s.finish(task, opt)
			}()

			if err := fn(); err != nil {
				logger.Error("run job failed", zap.Error(err))
				task.Succeed = false
				task.Message = err.Error()
			}
		})
}

func (s *Scheduler) finish(task JobHistory, opt ScheduleOptions) {
	task.Finished = time.Now()
	task.Duration = task.Finished.Sub(task.Start)
	s.Logger.Debug("job end", zap.String("jobname", task.Job), zap.Duration("duration", task.Duration))
	s.record(task)
	if !opt.NoHistory {
		core.Bus.Publish(EventJobFinished, task)
	}
}
