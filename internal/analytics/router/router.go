// Package router turns outbox envelopes into fulfillment_events rows.
package router

import (
	"context"
	"errors"
	"fmt"

	"github.com/angelmondragon/cartsplit-backend/internal/analytics/types"
	analyticswriter "github.com/angelmondragon/cartsplit-backend/internal/analytics/writer"
	"github.com/angelmondragon/cartsplit-backend/pkg/logger"
	"github.com/angelmondragon/cartsplit-backend/pkg/outbox/registry"
)

var ErrUnsupportedEventType = errors.New("unsupported analytics event type")

// ErrBadPayload marks envelopes that will never decode, whatever the retry.
var ErrBadPayload = errors.New("analytics payload rejected")

type Writer interface {
	InsertFulfillment(ctx context.Context, row types.FulfillmentEventRow) error
}

type Router struct {
	catalog *registry.Catalog
	writer  Writer
	logg    *logger.Logger
}

func NewRouter(catalog *registry.Catalog, writer Writer, logg *logger.Logger) (*Router, error) {
	if catalog == nil || writer == nil || logg == nil {
		return nil, errors.New("router: catalog, writer and logger are required")
	}
	return &Router{catalog: catalog, writer: writer, logg: logg}, nil
}

// Handle decodes env with the catalog, projects it onto a row and writes it.
func (r *Router) Handle(ctx context.Context, env types.Envelope) error {
	build, ok := rowBuilders[env.EventType]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedEventType, env.EventType)
	}
	payload, err := r.catalog.Decode(env.EventType, env.Version, env.Payload)
	switch {
	case errors.Is(err, registry.ErrUnknownEvent), errors.Is(err, registry.ErrUnknownVersion):
		return fmt.Errorf("%w: %w", ErrUnsupportedEventType, err)
	case err != nil:
		return fmt.Errorf("%w: %w", ErrBadPayload, err)
	}

	payloadJSON, err := analyticswriter.EncodeJSON(payload)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBadPayload, err)
	}
	row := types.FulfillmentEventRow{
		EventID:    env.EventID,
		EventType:  string(env.EventType),
		OccurredAt: env.OccurredAt,
		Payload:    payloadJSON,
	}
	if err := build(&row, payload); err != nil {
		return fmt.Errorf("%w: %w", ErrBadPayload, err)
	}

	logCtx := r.logg.WithField(ctx, "order_id", row.OrderID.StringVal)
	if err := r.writer.InsertFulfillment(logCtx, row); err != nil {
		return fmt.Errorf("insert fulfillment row: %w", err)
	}
	r.logg.Debug(logCtx, "fulfillment row written")
	return nil
}
