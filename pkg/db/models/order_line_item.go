package models

import (
	"time"

	"github.com/google/uuid"
)

// OrderLineItem snapshots a purchased product at checkout time.
type OrderLineItem struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	OrderID   uuid.UUID `gorm:"column:order_id;type:uuid;not null;index"`
	ProductID uuid.UUID `gorm:"column:product_id;type:uuid;not null"`
	Title     string    `gorm:"column:title;not null"`
	Quantity  int64     `gorm:"column:quantity;not null"`
	UnitPrice int64     `gorm:"column:unit_price;not null"`
	LineTotal int64     `gorm:"column:line_total;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}
