package models

import (
	"time"

	"github.com/google/uuid"
)

// TrackingSample is one point of an order's courier location trail.
type TrackingSample struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	OrderID    uuid.UUID `gorm:"column:order_id;type:uuid;not null;index"`
	CourierID  uuid.UUID `gorm:"column:courier_id;type:uuid;not null"`
	Lat        float64   `gorm:"column:lat;not null"`
	Lng        float64   `gorm:"column:lng;not null"`
	Accuracy   *float64  `gorm:"column:accuracy"`
	OccurredAt time.Time `gorm:"column:occurred_at;not null"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
}
