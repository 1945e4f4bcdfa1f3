// Package registry describes every outbox event: which aggregate owns it,
// which topic family carries it, and how each payload version decodes.
package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/angelmondragon/cartsplit-backend/pkg/enums"
	"github.com/angelmondragon/cartsplit-backend/pkg/outbox/payloads"
)

// Channel is the topic family an event is published on.
type Channel int

const (
	ChannelOrders Channel = iota + 1
	ChannelNotifications
)

var (
	ErrUnknownEvent   = errors.New("event type not in catalog")
	ErrUnknownVersion = errors.New("payload version not supported")
	ErrEmptyPayload   = errors.New("payload is empty")
)

// Decoder turns the envelope's data field into a typed payload pointer.
type Decoder func(data json.RawMessage) (any, error)

// Spec is one catalog entry.
type Spec struct {
	EventType enums.OutboxEventType
	Aggregate enums.OutboxAggregateType
	Channel   Channel
	decoders  map[int]Decoder
}

// Version adds or replaces the decoder for a payload version.
func (s *Spec) Version(v int, decode Decoder) *Spec {
	s.decoders[v] = decode
	return s
}

// Catalog is built once at startup and read concurrently afterwards.
type Catalog struct {
	specs map[enums.OutboxEventType]*Spec
}

func NewCatalog() *Catalog {
	return &Catalog{specs: make(map[enums.OutboxEventType]*Spec)}
}

// Default lists the events the services emit today, all at version 1.
func Default() *Catalog {
	c := NewCatalog()
	c.Add(enums.EventOrderCreated, enums.AggregateOrder, ChannelOrders).
		Version(1, Typed[payloads.OrderCreatedEvent])
	c.Add(enums.EventShipmentStatusChanged, enums.AggregateOrder, ChannelOrders).
		Version(1, Typed[payloads.ShipmentStatusChangedEvent])
	c.Add(enums.EventOrderPaymentExpired, enums.AggregateOrder, ChannelOrders).
		Version(1, Typed[payloads.OrderPaymentExpiredEvent])
	c.Add(enums.EventInventoryCompensated, enums.AggregateCheckout, ChannelOrders).
		Version(1, Typed[payloads.InventoryCompensatedEvent])
	c.Add(enums.EventPaymentConfirmed, enums.AggregateOrder, ChannelNotifications).
		Version(1, Typed[payloads.PaymentConfirmedEvent])
	c.Add(enums.EventPaymentFailed, enums.AggregateOrder, ChannelNotifications).
		Version(1, Typed[payloads.PaymentFailedEvent])
	return c
}

// Add registers an event with no decoders yet.
func (c *Catalog) Add(eventType enums.OutboxEventType, aggregate enums.OutboxAggregateType, channel Channel) *Spec {
	spec := &Spec{EventType: eventType, Aggregate: aggregate, Channel: channel, decoders: make(map[int]Decoder)}
	c.specs[eventType] = spec
	return spec
}

func (c *Catalog) Lookup(eventType enums.OutboxEventType) (*Spec, bool) {
	spec, ok := c.specs[eventType]
	return spec, ok
}

// Decode picks the decoder for (eventType, version). Version 0 is read as 1,
// matching envelopes written before the field existed.
func (c *Catalog) Decode(eventType enums.OutboxEventType, version int, data json.RawMessage) (any, error) {
	spec, ok := c.specs[eventType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, eventType)
	}
	if version == 0 {
		version = 1
	}
	decode, ok := spec.decoders[version]
	if !ok {
		return nil, fmt.Errorf("%w: %s@v%d", ErrUnknownVersion, eventType, version)
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, fmt.Errorf("%w: %s", ErrEmptyPayload, eventType)
	}
	payload, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s@v%d: %w", eventType, version, err)
	}
	return payload, nil
}

// Typed decodes data into a fresh *T.
func Typed[T any](data json.RawMessage) (any, error) {
	out := new(T)
	if err := json.Unmarshal(data, out); err != nil {
		return nil, err
	}
	return out, nil
}
