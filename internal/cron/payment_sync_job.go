package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/cartsplit-backend/internal/payments"
	"github.com/angelmondragon/cartsplit-backend/pkg/logger"
)

type pendingSyncer interface {
	SyncPending(ctx context.Context) (*payments.SyncSummary, error)
}

type PaymentSyncJobParams struct {
	Logger   *logger.Logger
	Payments pendingSyncer
}

// NewPaymentSyncJob polls gateways for links whose webhook never arrived.
func NewPaymentSyncJob(params PaymentSyncJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Payments == nil {
		return nil, fmt.Errorf("payments service required")
	}
	return &paymentSyncJob{logg: params.Logger, payments: params.Payments}, nil
}

type paymentSyncJob struct {
	logg     *logger.Logger
	payments pendingSyncer
}

func (j *paymentSyncJob) Name() string { return "payment-sync" }

func (j *paymentSyncJob) Run(ctx context.Context) error {
	summary, err := j.payments.SyncPending(ctx)
	if summary != nil {
		logCtx := j.logg.WithFields(ctx, map[string]any{
			"checked": summary.Checked,
			"changed": summary.Changed,
			"failed":  summary.Failed,
			"skipped": summary.Skipped,
		})
		j.logg.Info(logCtx, "payment sync complete")
	}
	if err != nil {
		return fmt.Errorf("payment sync: %w", err)
	}
	return nil
}
