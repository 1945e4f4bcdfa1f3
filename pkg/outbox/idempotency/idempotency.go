package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/angelmondragon/cartsplit-backend/pkg/redis"
)

// State is what a claim attempt found.
type State int

const (
	// Claimed means the caller now owns the event and must Complete or Release it.
	Claimed State = iota
	// InFlight means another consumer holds an unexpired lease on the event.
	InFlight
	// Processed means the event was already handled.
	Processed
)

func (s State) String() string {
	switch s {
	case Claimed:
		return "claimed"
	case InFlight:
		return "in_flight"
	case Processed:
		return "processed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

const (
	markerLeased = "leased"
	markerDone   = "done"
)

// Ledger records which outbox events a consumer has handled. A claim is a
// short lease; only Complete writes the long lived marker, so a consumer that
// dies mid-event frees it once the lease lapses.
type Ledger struct {
	store    redis.IdempotencyStore
	consumer string
	lease    time.Duration
	retain   time.Duration
}

func NewLedger(store redis.IdempotencyStore, consumer string, lease, retain time.Duration) (*Ledger, error) {
	switch {
	case store == nil:
		return nil, errors.New("idempotency: store is required")
	case consumer == "":
		return nil, errors.New("idempotency: consumer is required")
	case lease <= 0 || retain <= 0:
		return nil, errors.New("idempotency: lease and retain must be positive")
	}
	return &Ledger{store: store, consumer: consumer, lease: lease, retain: retain}, nil
}

func (l *Ledger) key(eventID uuid.UUID) string {
	return l.store.IdempotencyKey("evt:"+l.consumer, eventID.String())
}

func (l *Ledger) Claim(ctx context.Context, eventID uuid.UUID) (State, error) {
	if eventID == uuid.Nil {
		return 0, errors.New("idempotency: event id is required")
	}
	key := l.key(eventID)
	ok, err := l.store.SetNX(ctx, key, markerLeased, l.lease)
	if err != nil {
		return 0, fmt.Errorf("idempotency: claim %s: %w", eventID, err)
	}
	if ok {
		return Claimed, nil
	}
	marker, err := l.store.Get(ctx, key)
	switch {
	case errors.Is(err, goredis.Nil):
		// lease lapsed between the two calls
		return InFlight, nil
	case err != nil:
		return 0, fmt.Errorf("idempotency: read %s: %w", eventID, err)
	case marker == markerDone:
		return Processed, nil
	}
	return InFlight, nil
}

func (l *Ledger) Complete(ctx context.Context, eventID uuid.UUID) error {
	if err := l.store.Set(ctx, l.key(eventID), markerDone, l.retain); err != nil {
		return fmt.Errorf("idempotency: complete %s: %w", eventID, err)
	}
	return nil
}

// Release drops a claim so the event can be redelivered immediately.
func (l *Ledger) Release(ctx context.Context, eventID uuid.UUID) error {
	if err := l.store.Del(ctx, l.key(eventID)); err != nil {
		return fmt.Errorf("idempotency: release %s: %w", eventID, err)
	}
	return nil
}
