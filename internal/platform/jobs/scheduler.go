package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Job is a unit of periodic work.
type Job func(ctx context.Context) error

// Scheduler runs registered jobs on cron expressions. Overlapping runs of the same job are skipped.
type Scheduler struct {
	cron    *cron.Cron
	logger  *zap.Logger
	base    context.Context
	cancel  context.CancelFunc
	timeout time.Duration
}

// SchedulerOption customises the Scheduler.
type SchedulerOption func(*Scheduler)

// WithJobTimeout bounds each job run.
func WithJobTimeout(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// NewScheduler constructs a Scheduler. Jobs receive contexts derived from ctx.
func NewScheduler(ctx context.Context, logger *zap.Logger, opts ...SchedulerOption) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	base, cancel := context.WithCancel(ctx)
	cronLogger := cronLogAdapter{logger: logger.Named("cron")}
	s := &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.Recover(cronLogger),
			cron.SkipIfStillRunning(cronLogger),
		)),
		logger:  logger,
		base:    base,
		cancel:  cancel,
		timeout: time.Minute,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Register schedules job on the cron expression expr, e.g. "@every 1m" or "*/5 * * * *".
func (s *Scheduler) Register(name, expr string, job Job) error {
	if job == nil {
		return errors.New("jobs: job is nil")
	}
	_, err := s.cron.AddFunc(expr, func() {
		ctx, cancel := context.WithTimeout(s.base, s.timeout)
		defer cancel()
		started := time.Now()
		if err := job(ctx); err != nil {
			s.logger.Error("scheduled job failed", zap.String("job", name), zap.Error(err))
			return
		}
		s.logger.Debug("scheduled job finished", zap.String("job", name), zap.Duration("elapsed", time.Since(started)))
	})
	if err != nil {
		return fmt.Errorf("jobs: register %s with expression %q: %w", name, expr, err)
	}
	return nil
}

// Start begins dispatching jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts scheduling, cancels running jobs and waits for them until ctx expires.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	s.cancel()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type cronLogAdapter struct {
	logger *zap.Logger
}

func (a cronLogAdapter) Info(msg string, keysAndValues ...interface{}) {
	a.logger.Sugar().Debugw(msg, keysAndValues...)
}

func (a cronLogAdapter) Error(err error, msg string, keysAndValues ...interface{}) {
	a.logger.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
