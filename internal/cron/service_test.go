package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/cartsplit-backend/pkg/logger"
	"github.com/angelmondragon/cartsplit-backend/pkg/metrics"
)

type memLocker struct {
	holder      string
	acquireErr  error
	releases    int
	stealOnHold bool
}

func (m *memLocker) AcquireLock(_ context.Context, _ string, _ time.Duration) (string, bool, error) {
	if m.acquireErr != nil {
		return "", false, m.acquireErr
	}
	if m.holder != "" {
		return "", false, nil
	}
	m.holder = "token-1"
	if m.stealOnHold {
		m.holder = "other"
	}
	return "token-1", true, nil
}

func (m *memLocker) ReleaseLock(_ context.Context, _ string, token string) (bool, error) {
	m.releases++
	if m.holder != token {
		return false, nil
	}
	m.holder = ""
	return true, nil
}

type funcJob struct {
	name string
	fn   func(ctx context.Context) error
	runs int
}

func (j *funcJob) Name() string { return j.name }

func (j *funcJob) Run(ctx context.Context) error {
	j.runs++
	if j.fn == nil {
		return nil
	}
	return j.fn(ctx)
}

func newTestService(t *testing.T, locker Locker, jobs ...Job) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Logger:     logger.Nop(),
		Jobs:       jobs,
		Locker:     locker,
		LockKey:    "cs:lock:cron-worker:test",
		Metrics:    metrics.NewSchedulerMetrics(prometheus.NewRegistry()),
		JobTimeout: 50 * time.Millisecond,
	})
	require.NoError(t, err)
	return svc
}

func TestCycleRunsJobsInOrderAndSurvivesFailures(t *testing.T) {
	var order []string
	record := func(name string, err error) *funcJob {
		return &funcJob{name: name, fn: func(context.Context) error {
			order = append(order, name)
			return err
		}}
	}
	locker := &memLocker{}
	svc := newTestService(t, locker,
		record("payment-sync", nil),
		record("payment-deadline", errors.New("boom")),
		&funcJob{name: "explodes", fn: func(context.Context) error { panic("nil map") }},
		record("outbox-retention", nil),
	)

	svc.cycle(context.Background())

	assert.Equal(t, []string{"payment-sync", "payment-deadline", "outbox-retention"}, order)
	assert.Empty(t, locker.holder, "lock released after the cycle")
	assert.Equal(t, 1, locker.releases)
}

func TestCycleSkipsWhenLockHeld(t *testing.T) {
	job := &funcJob{name: "payment-deadline"}
	svc := newTestService(t, &memLocker{holder: "other-instance"}, job)

	svc.cycle(context.Background())
	assert.Zero(t, job.runs)
}

func TestCycleSkipsOnLockError(t *testing.T) {
	job := &funcJob{name: "payment-deadline"}
	svc := newTestService(t, &memLocker{acquireErr: errors.New("redis down")}, job)

	svc.cycle(context.Background())
	assert.Zero(t, job.runs)
}

func TestCycleToleratesLostLease(t *testing.T) {
	job := &funcJob{name: "payment-sync"}
	locker := &memLocker{stealOnHold: true}
	svc := newTestService(t, locker, job)

	svc.cycle(context.Background())
	assert.Equal(t, 1, job.runs)
	assert.Equal(t, "other", locker.holder, "foreign holder untouched")
}

func TestInvokeOutcomes(t *testing.T) {
	svc := newTestService(t, &memLocker{}, &funcJob{name: "noop"})
	ctx := context.Background()

	outcome, err := svc.invoke(ctx, &funcJob{name: "ok"})
	assert.NoError(t, err)
	assert.Equal(t, metrics.JobOK, outcome)

	outcome, err = svc.invoke(ctx, &funcJob{name: "slow", fn: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, metrics.JobTimedOut, outcome)

	outcome, err = svc.invoke(ctx, &funcJob{name: "panics", fn: func(context.Context) error { panic("bad") }})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic: bad")
	assert.Equal(t, metrics.JobPanicked, outcome)
}

func TestNewServiceValidates(t *testing.T) {
	_, err := NewService(ServiceParams{Logger: logger.Nop(), Locker: &memLocker{}, LockKey: "k"})
	assert.Error(t, err, "no jobs")
	_, err = NewService(ServiceParams{Logger: logger.Nop(), Jobs: []Job{&funcJob{name: "x"}}})
	assert.Error(t, err, "no locker")

	svc, err := NewService(ServiceParams{
		Logger:  logger.Nop(),
		Jobs:    []Job{nil, &funcJob{name: "x"}},
		Locker:  &memLocker{},
		LockKey: "k",
	})
	require.NoError(t, err)
	assert.Len(t, svc.jobs, 1)
	assert.Equal(t, defaultInterval, svc.interval)
	assert.Equal(t, defaultLockTTL, svc.lockTTL)
}

func TestRunStopsOnCancel(t *testing.T) {
	job := &funcJob{name: "payment-sync"}
	svc := newTestService(t, &memLocker{}, job)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, svc.Run(ctx), context.Canceled)
	assert.Zero(t, job.runs)
}
