package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/cartsplit-backend/pkg/db/models"
)

// Pub/Sub attribute names carried next to the envelope. Consumers route on
// these without decoding the body.
const (
	AttrEventID       = "event_id"
	AttrEventType     = "event_type"
	AttrAggregateType = "aggregate_type"
	AttrAggregateID   = "aggregate_id"
	AttrCreatedAt     = "created_at"
)

// ActorRef identifies who caused the event.
type ActorRef struct {
	UserID uuid.UUID `json:"userId"`
	Role   string    `json:"role,omitempty"`
}

// PayloadEnvelope is the body stored in outbox_events.payload and published
// unchanged.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}

// MessageAttributes lists the routing attributes for a stored event.
func MessageAttributes(event models.OutboxEvent, eventID string) map[string]string {
	return map[string]string{
		AttrEventID:       eventID,
		AttrEventType:     string(event.EventType),
		AttrAggregateType: string(event.AggregateType),
		AttrAggregateID:   event.AggregateID.String(),
		AttrCreatedAt:     event.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}
