// Package realtime fans fulfillment events out to per-user rooms.
package realtime

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/cartsplit-backend/pkg/logger"
)

// Event types pushed to rooms.
const (
	EventShipmentStatus     = "shipment.status"
	EventShipmentCheckpoint = "shipment.checkpoint"
	EventPaymentConfirmed   = "payment.confirmed"
	EventPaymentFailed      = "payment.failed"
)

// Event is the JSON frame delivered to connected sessions.
type Event struct {
	Type    string    `json:"type"`
	OrderID uuid.UUID `json:"order_id"`
	Data    any       `json:"data,omitempty"`
	SentAt  time.Time `json:"sent_at"`
}

type roomPublisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	RoomChannel(userID string) string
}

// Publisher pushes events to user rooms. Delivery is best effort.
type Publisher struct {
	rooms roomPublisher
	logg  *logger.Logger
	now   func() time.Time
}

func NewPublisher(rooms roomPublisher, logg *logger.Logger) *Publisher {
	if logg == nil {
		logg = logger.Nop()
	}
	return &Publisher{rooms: rooms, logg: logg, now: time.Now}
}

// Notify publishes the event to every distinct, non-nil recipient. Failures
// are logged and never returned.
func (p *Publisher) Notify(ctx context.Context, event Event, recipients ...uuid.UUID) {
	if p == nil || p.rooms == nil {
		return
	}
	if event.SentAt.IsZero() {
		event.SentAt = p.now().UTC()
	}
	body, err := json.Marshal(event)
	if err != nil {
		p.logg.Error(ctx, "encode realtime event", err)
		return
	}
	seen := make(map[uuid.UUID]struct{}, len(recipients))
	for _, userID := range recipients {
		if userID == uuid.Nil {
			continue
		}
		if _, dup := seen[userID]; dup {
			continue
		}
		seen[userID] = struct{}{}
		if err := p.rooms.Publish(ctx, p.rooms.RoomChannel(userID.String()), body); err != nil {
			logCtx := p.logg.WithFields(ctx, map[string]any{
				"event_type": event.Type,
				"user_id":    userID.String(),
			})
			p.logg.Warn(logCtx, "realtime publish failed: "+err.Error())
		}
	}
}
