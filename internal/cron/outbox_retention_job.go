package cron

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/cartsplit-backend/pkg/logger"
)

type outboxPruner interface {
	DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, minAttemptCount int) (int64, error)
}

type dlqPruner interface {
	DeleteBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

type OutboxRetentionJobParams struct {
	Logger *logger.Logger
	DB     txRunner
	Outbox outboxPruner
	DLQ    dlqPruner
	// Retention applies to delivered rows and to rows that used up
	// MaxAttempts; DLQRetention to parked entries.
	Retention    time.Duration
	DLQRetention time.Duration
	MaxAttempts  int
}

// OutboxRetentionJob keeps outbox_events and outbox_dlq bounded.
type OutboxRetentionJob struct {
	p   OutboxRetentionJobParams
	now func() time.Time
}

func NewOutboxRetentionJob(p OutboxRetentionJobParams) (*OutboxRetentionJob, error) {
	if p.Logger == nil || p.DB == nil || p.Outbox == nil || p.DLQ == nil {
		return nil, errors.New("outbox retention: logger, db, outbox and dlq are required")
	}
	if p.Retention <= 0 || p.DLQRetention <= 0 || p.MaxAttempts <= 0 {
		return nil, errors.New("outbox retention: retention windows and max attempts must be positive")
	}
	return &OutboxRetentionJob{p: p, now: time.Now}, nil
}

func (j *OutboxRetentionJob) Name() string { return "outbox-retention" }

func (j *OutboxRetentionJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	var rows, parked int64
	err := j.p.DB.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		if rows, err = j.p.Outbox.DeletePublishedBefore(ctx, tx, now.Add(-j.p.Retention), j.p.MaxAttempts); err != nil {
			return err
		}
		parked, err = j.p.DLQ.DeleteBefore(ctx, tx, now.Add(-j.p.DLQRetention))
		return err
	})
	if err != nil {
		return err
	}
	j.p.Logger.Info(j.p.Logger.WithFields(ctx, map[string]any{
		"outbox_deleted": rows,
		"dlq_deleted":    parked,
	}), "outbox retention swept")
	return nil
}
