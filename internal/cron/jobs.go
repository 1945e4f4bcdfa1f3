package cron

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/cartsplit-backend/pkg/outbox"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// StockRestorer returns units to a product without any stock condition.
type StockRestorer interface {
	IncrementStock(ctx context.Context, productID uuid.UUID, qty int64) error
}
