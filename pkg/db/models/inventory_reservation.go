package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/cartsplit-backend/pkg/enums"
)

// InventoryReservation records one conditional stock decrement taken by a
// checkout attempt so it can be compensated if the attempt fails.
type InventoryReservation struct {
	ID             uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	CheckoutID     uuid.UUID               `gorm:"column:checkout_id;type:uuid;not null;index"`
	ProductID      uuid.UUID               `gorm:"column:product_id;type:uuid;not null"`
	Quantity       int64                   `gorm:"column:quantity;not null"`
	Status         enums.ReservationStatus `gorm:"column:status;type:text;not null;default:'reserved'"`
	ReleasedReason *string                 `gorm:"column:released_reason"`
	CreatedAt      time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}
