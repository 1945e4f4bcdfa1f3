package registry

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/cartsplit-backend/pkg/config"
	"github.com/angelmondragon/cartsplit-backend/pkg/db/models"
	"github.com/angelmondragon/cartsplit-backend/pkg/enums"
	"github.com/angelmondragon/cartsplit-backend/pkg/outbox"
	"github.com/angelmondragon/cartsplit-backend/pkg/outbox/payloads"
)

func TestDefaultCoversEveryEvent(t *testing.T) {
	catalog := Default()
	for _, eventType := range enums.OutboxEventTypes() {
		spec, ok := catalog.Lookup(eventType)
		require.True(t, ok, eventType)
		assert.NotNil(t, spec.decoders[1], eventType)
	}
}

func TestDecodeVersions(t *testing.T) {
	catalog := Default()
	catalog.specs[enums.EventPaymentFailed].Version(2, func(data json.RawMessage) (any, error) {
		var m map[string]string
		err := json.Unmarshal(data, &m)
		return m, err
	})

	v1, err := catalog.Decode(enums.EventPaymentFailed, 0, json.RawMessage(`{"reason":"declined"}`))
	require.NoError(t, err)
	assert.IsType(t, &payloads.PaymentFailedEvent{}, v1)

	v2, err := catalog.Decode(enums.EventPaymentFailed, 2, json.RawMessage(`{"reason":"declined"}`))
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"reason": "declined"}, v2)

	_, err = catalog.Decode(enums.EventPaymentFailed, 3, json.RawMessage(`{}`))
	assert.ErrorIs(t, err, ErrUnknownVersion)
	_, err = catalog.Decode("ad_created", 1, json.RawMessage(`{}`))
	assert.ErrorIs(t, err, ErrUnknownEvent)
	_, err = catalog.Decode(enums.EventOrderCreated, 1, json.RawMessage(` null `))
	assert.ErrorIs(t, err, ErrEmptyPayload)
	_, err = catalog.Decode(enums.EventOrderCreated, 1, json.RawMessage(`{"order_id":5}`))
	assert.Error(t, err)
}

func newTestResolver(t *testing.T) *Resolver {
	t.Helper()
	r, err := NewResolver(Default(), config.PubSubConfig{OrdersTopic: "orders-topic", NotificationTopic: "notification-topic"})
	require.NoError(t, err)
	return r
}

func envelopeBytes(t *testing.T, data string) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC),
		Data:       json.RawMessage(data),
	})
	require.NoError(t, err)
	return raw
}

func TestResolveRoutesByChannel(t *testing.T) {
	resolver := newTestResolver(t)
	orderID := uuid.New()
	data, err := json.Marshal(payloads.OrderCreatedEvent{OrderID: orderID, TotalAmount: 120000})
	require.NoError(t, err)

	resolved, err := resolver.Resolve(models.OutboxEvent{
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   orderID,
		Payload:       envelopeBytes(t, string(data)),
	})
	require.NoError(t, err)
	assert.Equal(t, "orders-topic", resolved.Topic)
	payload := resolved.Payload.(*payloads.OrderCreatedEvent)
	assert.Equal(t, orderID, payload.OrderID)
	assert.EqualValues(t, 120000, payload.TotalAmount)

	resolved, err = resolver.Resolve(models.OutboxEvent{
		EventType:     enums.EventPaymentConfirmed,
		AggregateType: enums.AggregateOrder,
		AggregateID:   orderID,
		Payload:       envelopeBytes(t, `{}`),
	})
	require.NoError(t, err)
	assert.Equal(t, "notification-topic", resolved.Topic)
}

func TestResolveRejectsBadRowsPermanently(t *testing.T) {
	resolver := newTestResolver(t)
	cases := map[string]models.OutboxEvent{
		"unknown event":        {EventType: "ad_created", AggregateType: enums.AggregateOrder, AggregateID: uuid.New(), Payload: envelopeBytes(t, `{}`)},
		"aggregate mismatch":   {EventType: enums.EventOrderCreated, AggregateType: enums.AggregateCheckout, AggregateID: uuid.New(), Payload: envelopeBytes(t, `{}`)},
		"missing aggregate id": {EventType: enums.EventOrderCreated, AggregateType: enums.AggregateOrder, Payload: envelopeBytes(t, `{}`)},
		"null payload":         {EventType: enums.EventInventoryCompensated, AggregateType: enums.AggregateCheckout, AggregateID: uuid.New(), Payload: envelopeBytes(t, `null`)},
		"broken envelope":      {EventType: enums.EventOrderCreated, AggregateType: enums.AggregateOrder, AggregateID: uuid.New(), Payload: json.RawMessage(`{"data":`)},
	}
	for name, row := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := resolver.Resolve(row)
			assert.True(t, errors.Is(err, ErrPermanent), "got %v", err)
		})
	}
}

func TestNewResolverRequiresTopics(t *testing.T) {
	_, err := NewResolver(Default(), config.PubSubConfig{OrdersTopic: "orders"})
	assert.Error(t, err)
}
