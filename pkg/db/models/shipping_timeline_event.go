package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/cartsplit-backend/pkg/enums"
	"github.com/angelmondragon/cartsplit-backend/pkg/types"
)

// ShippingTimelineEvent is an append-only entry in an order's delivery log.
type ShippingTimelineEvent struct {
	ID              uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	OrderID         uuid.UUID             `gorm:"column:order_id;type:uuid;not null;index;uniqueIndex:idx_timeline_client_request"`
	Kind            enums.TimelineKind    `gorm:"column:kind;type:text;not null"`
	Status          enums.ShippingStatus  `gorm:"column:status;type:text;not null"`
	Code            string                `gorm:"column:code;not null"`
	Label           string                `gorm:"column:label;not null"`
	Note            *string               `gorm:"column:note"`
	Source          enums.TimelineSource  `gorm:"column:source;type:text;not null"`
	ActorID         *uuid.UUID            `gorm:"column:actor_id;type:uuid"`
	ClientRequestID *string               `gorm:"column:client_request_id;uniqueIndex:idx_timeline_client_request"`
	Offline         bool                  `gorm:"column:offline;not null;default:false"`
	Location        *types.LocationSample `gorm:"column:location;type:jsonb;serializer:json"`
	OccurredAt      time.Time             `gorm:"column:occurred_at;not null"`
	CreatedAt       time.Time             `gorm:"column:created_at;autoCreateTime"`
}
