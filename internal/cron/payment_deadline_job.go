package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/cartsplit-backend/internal/orders"
	"github.com/angelmondragon/cartsplit-backend/pkg/db/models"
	"github.com/angelmondragon/cartsplit-backend/pkg/enums"
	"github.com/angelmondragon/cartsplit-backend/pkg/logger"
	"github.com/angelmondragon/cartsplit-backend/pkg/outbox"
	"github.com/angelmondragon/cartsplit-backend/pkg/outbox/payloads"
)

const defaultDeadlineBatch = 200

// PaymentDeadlineJobParams configure the unpaid order expiry job.
type PaymentDeadlineJobParams struct {
	Logger    *logger.Logger
	DB        txRunner
	Orders    orders.Repository
	Stock     func(tx *gorm.DB) StockRestorer
	Outbox    outboxEmitter
	BatchSize int
}

// NewPaymentDeadlineJob builds the job that cancels online-payment orders whose
// retry window lapsed and puts their units back on sale.
func NewPaymentDeadlineJob(params PaymentDeadlineJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Stock == nil {
		return nil, fmt.Errorf("stock restorer required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox service required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultDeadlineBatch
	}
	return &paymentDeadlineJob{
		logg:   params.Logger,
		db:     params.DB,
		orders: params.Orders,
		stock:  params.Stock,
		outbox: params.Outbox,
		batch:  batch,
		now:    time.Now,
	}, nil
}

type paymentDeadlineJob struct {
	logg   *logger.Logger
	db     txRunner
	orders orders.Repository
	stock  func(tx *gorm.DB) StockRestorer
	outbox outboxEmitter
	batch  int
	now    func() time.Time
}

func (j *paymentDeadlineJob) Name() string { return "payment-deadline" }

func (j *paymentDeadlineJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	candidates, err := j.orders.FindExpiredUnpaid(ctx, now, j.batch)
	if err != nil {
		return fmt.Errorf("query expired unpaid orders: %w", err)
	}

	var (
		errs    error
		expired int
		units   int64
	)
	for _, order := range candidates {
		restocked, done, err := j.expire(ctx, order, now)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("order %s: %w", order.ID, err))
			continue
		}
		if done {
			expired++
			units += restocked
		}
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"candidates":      len(candidates),
		"expired":         expired,
		"restocked_units": units,
		"failed":          len(multierr.Errors(errs)),
	})
	j.logg.Info(logCtx, "payment deadline sweep complete")
	return errs
}

func (j *paymentDeadlineJob) expire(ctx context.Context, candidate models.Order, now time.Time) (int64, bool, error) {
	var (
		restocked int64
		done      bool
	)
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := j.orders.WithTx(tx)
		current, err := repo.FindByID(ctx, candidate.ID)
		if err != nil {
			return err
		}
		// a webhook may have landed since the sweep query
		if current.PaymentExpired || current.PaymentBucket == enums.PaymentBucketSuccess || current.Status != enums.OrderStatusPending {
			return nil
		}
		if err := repo.UpdateVersioned(ctx, current.ID, current.Version, map[string]any{
			"payment_expired": true,
			"status":          enums.OrderStatusCancelled,
		}); err != nil {
			return err
		}

		stock := j.stock(tx)
		for _, item := range candidate.Items {
			if err := stock.IncrementStock(ctx, item.ProductID, item.Quantity); err != nil {
				return err
			}
			restocked += item.Quantity
		}

		var deadline time.Time
		if current.PaymentDeadline != nil {
			deadline = *current.PaymentDeadline
		}
		done = true
		return j.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderPaymentExpired,
			AggregateType: enums.AggregateOrder,
			AggregateID:   current.ID,
			OccurredAt:    now,
			Data: payloads.OrderPaymentExpiredEvent{
				OrderID:     current.ID,
				BuyerID:     current.UserID,
				SellerID:    current.SellerID,
				Deadline:    deadline,
				ExpiredAt:   now,
				Restocked:   restocked,
				TotalAmount: current.TotalAmount,
			},
		})
	})
	if err != nil {
		return 0, false, err
	}
	return restocked, done, nil
}
