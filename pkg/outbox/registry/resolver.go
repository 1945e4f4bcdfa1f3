package registry

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/cartsplit-backend/pkg/config"
	"github.com/angelmondragon/cartsplit-backend/pkg/db/models"
	"github.com/angelmondragon/cartsplit-backend/pkg/outbox"
)

// ErrPermanent marks rows that no retry can publish.
var ErrPermanent = errors.New("permanent outbox failure")

// Permanent wraps err so errors.Is(err, ErrPermanent) holds.
func Permanent(err error) error {
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}

// Resolved is an outbox row ready to publish.
type Resolved struct {
	Topic    string
	Envelope outbox.PayloadEnvelope
	Payload  any
}

// Resolver checks stored rows against the catalog and picks their topic.
type Resolver struct {
	catalog *Catalog
	topics  map[Channel]string
}

func NewResolver(catalog *Catalog, cfg config.PubSubConfig) (*Resolver, error) {
	if cfg.OrdersTopic == "" || cfg.NotificationTopic == "" {
		return nil, errors.New("orders and notification topics are required")
	}
	return &Resolver{
		catalog: catalog,
		topics: map[Channel]string{
			ChannelOrders:        cfg.OrdersTopic,
			ChannelNotifications: cfg.NotificationTopic,
		},
	}, nil
}

// Resolve decodes the row. Every error it returns is permanent.
func (r *Resolver) Resolve(row models.OutboxEvent) (*Resolved, error) {
	spec, ok := r.catalog.Lookup(row.EventType)
	if !ok {
		return nil, Permanent(fmt.Errorf("%w: %s", ErrUnknownEvent, row.EventType))
	}
	if spec.Aggregate != row.AggregateType {
		return nil, Permanent(fmt.Errorf("%s belongs to %s aggregates, row says %s", row.EventType, spec.Aggregate, row.AggregateType))
	}
	if row.AggregateID == uuid.Nil {
		return nil, Permanent(errors.New("aggregate id missing"))
	}
	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(row.Payload, &envelope); err != nil {
		return nil, Permanent(fmt.Errorf("envelope: %w", err))
	}
	payload, err := r.catalog.Decode(row.EventType, envelope.Version, envelope.Data)
	if err != nil {
		return nil, Permanent(err)
	}
	topic := r.topics[spec.Channel]
	if topic == "" {
		return nil, Permanent(fmt.Errorf("no topic for %s", row.EventType))
	}
	return &Resolved{Topic: topic, Envelope: envelope, Payload: payload}, nil
}
