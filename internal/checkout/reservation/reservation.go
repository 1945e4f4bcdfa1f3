// Package reservation takes conditional stock decrements for a checkout
// attempt and returns them if the attempt fails.
package reservation

import (
	"context"
	"errors"
	"sort"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/cartsplit-backend/pkg/db/models"
	"github.com/angelmondragon/cartsplit-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/cartsplit-backend/pkg/errors"
	"github.com/angelmondragon/cartsplit-backend/pkg/logger"
	"github.com/angelmondragon/cartsplit-backend/pkg/outbox"
	"github.com/angelmondragon/cartsplit-backend/pkg/outbox/payloads"
)

// ReasonStockConflict marks a lost conditional decrement.
const ReasonStockConflict = "stock_conflict"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// StockStore applies stock changes. Implementations must make Decrement a
// single conditional write.
type StockStore interface {
	DecrementStock(ctx context.Context, productID uuid.UUID, qty int64) (bool, error)
	IncrementStock(ctx context.Context, productID uuid.UUID, qty int64) error
}

// Request asks for qty units of one product.
type Request struct {
	ProductID uuid.UUID
	Quantity  int64
}

type ServiceParams struct {
	DB     txRunner
	Stock  func(tx *gorm.DB) StockStore
	Repo   *Repository
	Outbox outbox.Emitter
	Logger *logger.Logger
}

// Service reserves and compensates inventory for checkout attempts.
type Service struct {
	db     txRunner
	stock  func(tx *gorm.DB) StockStore
	repo   *Repository
	outbox outbox.Emitter
	logg   *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.DB == nil {
		return nil, errors.New("tx runner required")
	}
	if params.Stock == nil {
		return nil, errors.New("stock store factory required")
	}
	if params.Repo == nil {
		return nil, errors.New("reservation repository required")
	}
	if params.Outbox == nil {
		return nil, errors.New("outbox emitter required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{
		db:     params.DB,
		stock:  params.Stock,
		repo:   params.Repo,
		outbox: params.Outbox,
		logg:   logg,
	}, nil
}

// Reserve decrements stock for every distinct product, recording one
// reservation per successful decrement. Each decrement commits on its own so
// concurrent checkouts never wait on each other. On the first lost decrement
// it stops and returns a conflict naming the product; reservations already
// taken stay in the reserved state for Compensate.
func (s *Service) Reserve(ctx context.Context, checkoutID uuid.UUID, requests []Request) ([]models.InventoryReservation, error) {
	merged := Merge(requests)
	out := make([]models.InventoryReservation, 0, len(merged))
	for _, req := range merged {
		var row models.InventoryReservation
		err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
			ok, err := s.stock(tx).DecrementStock(ctx, req.ProductID, req.Quantity)
			if err != nil {
				return err
			}
			if !ok {
				return pkgerrors.New(pkgerrors.CodeConflict, "stock changed during checkout").
					WithDetails(map[string]any{
						"reason":     ReasonStockConflict,
						"product_id": req.ProductID,
						"requested":  req.Quantity,
					})
			}
			row = models.InventoryReservation{
				CheckoutID: checkoutID,
				ProductID:  req.ProductID,
				Quantity:   req.Quantity,
				Status:     enums.ReservationStatusReserved,
			}
			return s.repo.WithTx(tx).Create(ctx, &row)
		})
		if err != nil {
			return out, err
		}
		out = append(out, row)
	}
	return out, nil
}

// Commit marks the checkout's reservations as consumed by persisted orders.
// It runs inside the caller's transaction.
func (s *Service) Commit(ctx context.Context, tx *gorm.DB, checkoutID uuid.UUID) error {
	_, err := s.repo.WithTx(tx).Transition(ctx, checkoutID, enums.ReservationStatusReserved, enums.ReservationStatusCommitted, nil)
	return err
}

// Compensate returns the stock of every still-reserved row of the checkout,
// marks them released and queues an inventory_compensated event. It is a
// no-op when nothing is reserved.
func (s *Service) Compensate(ctx context.Context, checkoutID, buyerID uuid.UUID, reason string) ([]models.InventoryReservation, error) {
	var released []models.InventoryReservation
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		rows, err := repo.ListByCheckout(ctx, checkoutID, enums.ReservationStatusReserved)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		stock := s.stock(tx)
		compensated := make([]payloads.CompensatedReservation, 0, len(rows))
		for _, row := range rows {
			if err := stock.IncrementStock(ctx, row.ProductID, row.Quantity); err != nil {
				return err
			}
			compensated = append(compensated, payloads.CompensatedReservation{ProductID: row.ProductID, Quantity: row.Quantity})
		}
		if _, err := repo.Transition(ctx, checkoutID, enums.ReservationStatusReserved, enums.ReservationStatusReleased, &reason); err != nil {
			return err
		}
		released = rows
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventInventoryCompensated,
			AggregateType: enums.AggregateCheckout,
			AggregateID:   checkoutID,
			Actor:         &outbox.ActorRef{UserID: buyerID, Role: string(enums.RoleBuyer)},
			Data: payloads.InventoryCompensatedEvent{
				CheckoutID:   checkoutID,
				BuyerID:      buyerID,
				Reason:       reason,
				Reservations: compensated,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	if len(released) > 0 {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"checkout_id": checkoutID.String(),
			"released":    len(released),
			"reason":      reason,
		})
		s.logg.Warn(logCtx, "inventory compensated")
	}
	return released, nil
}

// Merge sums quantities per product and orders the result by product id so
// concurrent checkouts touch rows in the same order.
func Merge(requests []Request) []Request {
	totals := make(map[uuid.UUID]int64, len(requests))
	for _, req := range requests {
		totals[req.ProductID] += req.Quantity
	}
	out := make([]Request, 0, len(totals))
	for id, qty := range totals {
		out = append(out, Request{ProductID: id, Quantity: qty})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ProductID.String() < out[j].ProductID.String()
	})
	return out
}
