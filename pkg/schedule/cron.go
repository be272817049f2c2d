package schedule

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/samber/lo"
	"github.com/techquest-tech/pglocks/pkg/core"
	"github.com/techquest-tech/pglocks/pkg/locker"
	"go.uber.org/zap"
)

type ScheduleOptions struct {
	Nolocker bool
	// MaxWait > 0 waits for the job lock instead of skipping the run.
	MaxWait   time.Duration
	NoHistory bool
}

// Scheduler runs cron jobs so that a job fires on one replica at a time: each run first
// takes the locker on the job name and is skipped when another replica holds it.
type Scheduler struct {
	Logger *zap.Logger
	Locker locker.Locker

	cr      *cron.Cron
	mu      sync.Mutex
	jobs    map[string]cron.FuncJob
	history map[string]JobHistory
}

func NewScheduler(logger *zap.Logger, l locker.Locker) *Scheduler {
	s := &Scheduler{
		Logger:  logger,
		Locker:  l,
		cr:      cron.New(cron.WithChain(cron.SkipIfStillRunning(&CronZaplog{logger: logger}))),
		jobs:    make(map[string]cron.FuncJob),
		history: make(map[string]JobHistory),
	}
	return s
}

func init() {
	core.Provide(func(logger *zap.Logger, l locker.Locker) *Scheduler {
		s := NewScheduler(logger, l)
		core.OnServiceStopping(func() {
			logger.Info("try to stop scheduled jobs.")
			<-s.Stop().Done()
			logger.Info("scheduled jobs stopped.")
		})
		return s
	})
}

// Add registers cmd under jobname. schedule uses the standard 5 field cron syntax;
// "-" registers the job for Run only.
func (s *Scheduler) Add(jobname, schedule string, cmd func() error, opts ...ScheduleOptions) error {
	opt := ScheduleOptions{}
	if len(opts) > 0 {
		opt = opts[0]
	}
	fn := s.wrapFuncJob(jobname, cmd, opt)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[jobname]; ok {
		return fmt.Errorf("job %s already exists", jobname)
	}
	if schedule != "-" {
		item, err := s.cr.AddJob(schedule, fn)
		if err != nil {
			s.Logger.Error("add job failed", zap.String("job", jobname), zap.Error(err))
			return err
		}
		s.Logger.Info("schedule job done", zap.String("job", jobname), zap.String("schedule", schedule), zap.Int("entry", int(item)))
	}
	s.jobs[jobname] = fn
	return nil
}

// Run fires jobname now, on the calling goroutine, through the same locking as a cron run.
func (s *Scheduler) Run(jobname string) (JobHistory, error) {
	s.mu.Lock()
	fn, ok := s.jobs[jobname]
	s.mu.Unlock()
	if !ok {
		return JobHistory{}, fmt.Errorf("job %s not found", jobname)
	}
	s.Logger.Info("run job", zap.String("job", jobname))
	fn()
	h, _ := s.LastRun(jobname)
	return h, nil
}

func (s *Scheduler) List() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := lo.Keys(s.jobs)
	sort.Strings(keys)
	return keys
}

func (s *Scheduler) LastRun(jobname string) (JobHistory, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.history[jobname]
	return h, ok
}

func (s *Scheduler) record(h JobHistory) {
	s.mu.Lock()
	s.history[h.Job] = h
	s.mu.Unlock()
}

func (s *Scheduler) Start() {
	s.cr.Start()
	for _, e := range s.cr.Entries() {
		s.Logger.Debug("next runtime", zap.Int("entry", int(e.ID)), zap.Time("next", e.Next))
	}
}

// Stop halts the cron loop; the returned context is done once running jobs finished.
func (s *Scheduler) Stop() context.Context {
	return s.cr.Stop()
}

// CreateScheduledJob adds a job to the container's Scheduler.
func CreateScheduledJob(jobname, schedule string, cmd func() error, opts ...ScheduleOptions) error {
	err := core.GetContainer().Invoke(func(s *Scheduler) error {
		return s.Add(jobname, schedule, cmd, opts...)
	})
	if err != nil {
		zap.L().Error("schedule job failed.", zap.String("job", jobname), zap.Error(err))
	}
	return err
}

type CronZaplog struct {
	logger *zap.Logger
}

func (c *CronZaplog) Info(msg string, keysAndValues ...interface{}) {
	c.logger.Sugar().Infow(msg, keysAndValues...)
}

func (c *CronZaplog) Error(err error, msg string, keysAndValues ...interface{}) {
	c.logger.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
