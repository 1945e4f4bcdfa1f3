package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/cartsplit-backend/internal/analytics/router"
	"github.com/angelmondragon/cartsplit-backend/internal/analytics/types"
	"github.com/angelmondragon/cartsplit-backend/pkg/enums"
	"github.com/angelmondragon/cartsplit-backend/pkg/logger"
	"github.com/angelmondragon/cartsplit-backend/pkg/outbox"
	"github.com/angelmondragon/cartsplit-backend/pkg/outbox/idempotency"
)

// ConsumerName scopes this worker's idempotency keys.
const ConsumerName = "analytics"

// Handler processes one decoded analytics envelope.
type Handler interface {
	Handle(ctx context.Context, envelope types.Envelope) error
}

// Ledger is the idempotency surface the worker needs.
type Ledger interface {
	Claim(ctx context.Context, eventID uuid.UUID) (idempotency.State, error)
	Complete(ctx context.Context, eventID uuid.UUID) error
	Release(ctx context.Context, eventID uuid.UUID) error
}

// Service consumes outbox events from the analytics subscription. Delivery is
// at least once; the ledger turns redeliveries into acks.
type Service struct {
	subscription *gcppubsub.Subscriber
	handler      Handler
	ledger       Ledger
	logg         *logger.Logger
}

func NewService(subscription *gcppubsub.Subscriber, handler Handler, ledger Ledger, logg *logger.Logger) (*Service, error) {
	switch {
	case subscription == nil:
		return nil, errors.New("analytics worker: subscription is required")
	case handler == nil:
		return nil, errors.New("analytics worker: handler is required")
	case ledger == nil:
		return nil, errors.New("analytics worker: ledger is required")
	case logg == nil:
		return nil, errors.New("analytics worker: logger is required")
	}
	return &Service{subscription: subscription, handler: handler, ledger: ledger, logg: logg}, nil
}

type outcome int

const (
	ack outcome = iota
	nack
)

// Run blocks until ctx is cancelled or the subscription fails.
func (s *Service) Run(ctx context.Context) error {
	return s.subscription.Receive(ctx, func(msgCtx context.Context, msg *gcppubsub.Message) {
		if s.process(msgCtx, msg) == nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

func (s *Service) process(ctx context.Context, msg *gcppubsub.Message) outcome {
	ctx = s.logg.WithField(ctx, "message_id", msg.ID)

	env, err := decodeMessage(msg)
	if err != nil {
		// redelivery cannot fix a malformed message
		s.logg.Warn(s.logg.WithField(ctx, "decode_error", err.Error()), "analytics message dropped")
		return ack
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"event_id":     env.EventID,
		"event_type":   env.EventType,
		"aggregate_id": env.AggregateID,
	})
	eventID, err := uuid.Parse(env.EventID)
	if err != nil {
		s.logg.Warn(ctx, "analytics message dropped: event id is not a uuid")
		return ack
	}

	state, err := s.ledger.Claim(ctx, eventID)
	if err != nil {
		s.logg.Error(ctx, "idempotency claim failed", err)
		return nack
	}
	switch state {
	case idempotency.Processed:
		s.logg.Debug(ctx, "analytics event already handled")
		return ack
	case idempotency.InFlight:
		return nack
	}

	err = s.handler.Handle(ctx, env)
	switch {
	case errors.Is(err, router.ErrUnsupportedEventType):
		s.logg.Debug(ctx, "event type not tracked by analytics")
	case errors.Is(err, router.ErrBadPayload):
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "analytics payload dropped")
	case err != nil:
		s.logg.Error(ctx, "analytics handler failed", err)
		if relErr := s.ledger.Release(ctx, eventID); relErr != nil {
			s.logg.Error(ctx, "idempotency release failed", relErr)
		}
		return nack
	}

	if err := s.ledger.Complete(ctx, eventID); err != nil {
		// the row is written; a redelivery would only duplicate it
		s.logg.Error(ctx, "idempotency complete failed", err)
	}
	return ack
}

// decodeMessage combines the routing attributes with the stored envelope.
// The envelope's own event id and timestamp win over the attributes.
func decodeMessage(msg *gcppubsub.Message) (types.Envelope, error) {
	var stored outbox.PayloadEnvelope
	if err := json.Unmarshal(msg.Data, &stored); err != nil {
		return types.Envelope{}, fmt.Errorf("payload envelope: %w", err)
	}
	attr := func(name string) string { return strings.TrimSpace(msg.Attributes[name]) }

	eventType, err := enums.ParseOutboxEventType(attr(outbox.AttrEventType))
	if err != nil {
		return types.Envelope{}, err
	}
	aggregateType, err := enums.ParseOutboxAggregateType(attr(outbox.AttrAggregateType))
	if err != nil {
		return types.Envelope{}, err
	}
	aggregateID := attr(outbox.AttrAggregateID)
	if aggregateID == "" {
		return types.Envelope{}, errors.New("aggregate_id attribute missing")
	}

	eventID := strings.TrimSpace(stored.EventID)
	if eventID == "" {
		eventID = attr(outbox.AttrEventID)
	}
	if eventID == "" {
		return types.Envelope{}, errors.New("event id missing")
	}

	occurredAt := stored.OccurredAt
	if occurredAt.IsZero() {
		occurredAt, _ = time.Parse(time.RFC3339Nano, attr(outbox.AttrCreatedAt))
	}

	return types.Envelope{
		EventID:       eventID,
		EventType:     eventType,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		Version:       stored.Version,
		OccurredAt:    occurredAt.UTC(),
		Payload:       stored.Data,
	}, nil
}
