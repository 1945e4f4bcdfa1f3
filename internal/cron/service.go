package cron

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/angelmondragon/cartsplit-backend/pkg/logger"
	"github.com/angelmondragon/cartsplit-backend/pkg/metrics"
)

const (
	defaultInterval   = 5 * time.Minute
	defaultJobTimeout = 2 * time.Minute
	defaultLockTTL    = 10 * time.Minute
)

// Job is one unit of scheduled work.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

type ServiceParams struct {
	Logger *logger.Logger
	// Jobs run sequentially in this order on every cycle.
	Jobs       []Job
	Locker     Locker
	LockKey    string
	LockTTL    time.Duration
	Metrics    *metrics.SchedulerMetrics
	Interval   time.Duration
	JobTimeout time.Duration
}

// Service runs the job list on a fixed cadence. Only the instance holding the
// redis lock runs a cycle; the others skip it.
type Service struct {
	logg       *logger.Logger
	jobs       []Job
	locker     Locker
	lockKey    string
	lockTTL    time.Duration
	metrics    *metrics.SchedulerMetrics
	interval   time.Duration
	jobTimeout time.Duration
	now        func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	if params.Locker == nil || params.LockKey == "" {
		return nil, errors.New("locker and lock key required")
	}
	jobs := make([]Job, 0, len(params.Jobs))
	for _, job := range params.Jobs {
		if job != nil {
			jobs = append(jobs, job)
		}
	}
	if len(jobs) == 0 {
		return nil, errors.New("at least one job required")
	}
	svc := &Service{
		logg:       params.Logger,
		jobs:       jobs,
		locker:     params.Locker,
		lockKey:    params.LockKey,
		lockTTL:    orDefault(params.LockTTL, defaultLockTTL),
		metrics:    params.Metrics,
		interval:   orDefault(params.Interval, defaultInterval),
		jobTimeout: orDefault(params.JobTimeout, defaultJobTimeout),
		now:        time.Now,
	}
	return svc, nil
}

func orDefault(v, fallback time.Duration) time.Duration {
	if v <= 0 {
		return fallback
	}
	return v
}

// Run executes a cycle immediately and then on every tick until ctx ends.
func (s *Service) Run(ctx context.Context) error {
	s.cycle(ctx)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.cycle(ctx)
		}
	}
}

func (s *Service) cycle(ctx context.Context) {
	held, err := acquire(ctx, s.locker, s.lockKey, s.lockTTL)
	if err != nil {
		s.logg.Error(ctx, "cron lock acquire failed", err)
		return
	}
	if held == nil {
		s.metrics.IncSkipped()
		s.logg.Debug(ctx, "cron lock held elsewhere, cycle skipped")
		return
	}
	defer func() {
		// ctx may already be cancelled on shutdown
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := held.release(releaseCtx); err != nil {
			s.logg.Error(ctx, "cron lock release failed", err)
		}
	}()

	for _, job := range s.jobs {
		if ctx.Err() != nil {
			return
		}
		s.runJob(ctx, job)
	}
}

func (s *Service) runJob(ctx context.Context, job Job) {
	jobCtx := s.logg.WithField(ctx, "job", job.Name())
	start := s.now()
	outcome, err := s.invoke(jobCtx, job)
	took := s.now().Sub(start)
	s.metrics.ObserveRun(job.Name(), outcome, took, s.now())

	jobCtx = s.logg.WithFields(jobCtx, map[string]any{"outcome": outcome, "duration_ms": took.Milliseconds()})
	if err != nil {
		s.logg.Error(jobCtx, "cron job failed", err)
		return
	}
	s.logg.Info(jobCtx, "cron job finished")
}

// invoke runs job under its own deadline and turns a panic into an error so
// one broken job cannot take the worker down.
func (s *Service) invoke(ctx context.Context, job Job) (outcome string, err error) {
	runCtx, cancel := context.WithTimeout(ctx, s.jobTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			outcome = metrics.JobPanicked
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()

	err = job.Run(runCtx)
	switch {
	case err == nil:
		return metrics.JobOK, nil
	case errors.Is(err, context.DeadlineExceeded) && runCtx.Err() != nil && ctx.Err() == nil:
		return metrics.JobTimedOut, err
	default:
		return metrics.JobFailed, err
	}
}
