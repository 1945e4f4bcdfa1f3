package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/cartsplit-backend/pkg/enums"
	"github.com/angelmondragon/cartsplit-backend/pkg/types"
)

// PaymentLink is one gateway checkout attempt for an order.
type PaymentLink struct {
	ID                uuid.UUID                  `gorm:"column:id;type:uuid;primaryKey"`
	OrderID           uuid.UUID                  `gorm:"column:order_id;type:uuid;not null;index"`
	Gateway           enums.PaymentGateway       `gorm:"column:gateway;type:text;not null"`
	Attempt           int                        `gorm:"column:attempt;not null"`
	ExternalOrderCode string                     `gorm:"column:external_order_code;not null;uniqueIndex"`
	LinkID            string                     `gorm:"column:link_id;not null"`
	CheckoutURL       string                     `gorm:"column:checkout_url;not null"`
	Status            string                     `gorm:"column:status;not null"`
	Bucket            enums.PaymentBucket        `gorm:"column:bucket;type:text;not null"`
	Amount            int64                      `gorm:"column:amount;not null"`
	ExpiresAt         *time.Time                 `gorm:"column:expires_at"`
	Transactions      []types.PaymentTransaction `gorm:"column:transactions;type:jsonb;serializer:json"`
	LastSyncedAt      *time.Time                 `gorm:"column:last_synced_at"`
	CreatedAt         time.Time                  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time                  `gorm:"column:updated_at;autoUpdateTime"`
}

// Reusable reports whether the link can be handed out again instead of
// creating a new one.
func (l PaymentLink) Reusable(now time.Time) bool {
	if l.Bucket != enums.PaymentBucketPending || l.CheckoutURL == "" {
		return false
	}
	return l.ExpiresAt == nil || now.Before(*l.ExpiresAt)
}
