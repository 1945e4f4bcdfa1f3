package types

import (
	"encoding/json"
	"time"

	"github.com/angelmondragon/cartsplit-backend/pkg/enums"
)

// Envelope is an outbox event as the analytics worker receives it: routing
// attributes from the Pub/Sub message merged with the stored envelope body.
type Envelope struct {
	EventID       string
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   string
	Version       int
	OccurredAt    time.Time
	Payload       json.RawMessage
}
