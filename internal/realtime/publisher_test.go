package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
)

type recordingRooms struct {
	published map[string][]byte
	fail      map[string]bool
}

func (r *recordingRooms) RoomChannel(userID string) string { return "cs:room:" + userID }

func (r *recordingRooms) Publish(_ context.Context, channel string, payload []byte) error {
	if r.fail[channel] {
		return errors.New("connection reset")
	}
	if r.published == nil {
		r.published = map[string][]byte{}
	}
	r.published[channel] = payload
	return nil
}

func TestNotifyDeduplicatesRecipients(t *testing.T) {
	t.Parallel()
	rooms := &recordingRooms{}
	pub := NewPublisher(rooms, nil)
	buyer, seller := uuid.New(), uuid.New()
	orderID := uuid.New()

	pub.Notify(context.Background(), Event{Type: EventShipmentStatus, OrderID: orderID, Data: map[string]string{"to": "picked_up"}}, buyer, seller, buyer, uuid.Nil)

	if len(rooms.published) != 2 {
		t.Fatalf("expected 2 rooms, got %d", len(rooms.published))
	}
	var frame Event
	if err := json.Unmarshal(rooms.published["cs:room:"+buyer.String()], &frame); err != nil {
		t.Fatalf("decode frame: %v", err)
	}
	if frame.Type != EventShipmentStatus || frame.OrderID != orderID || frame.SentAt.IsZero() {
		t.Fatalf("unexpected frame: %+v", frame)
	}
}

func TestNotifySwallowsPublishErrors(t *testing.T) {
	t.Parallel()
	buyer, seller := uuid.New(), uuid.New()
	rooms := &recordingRooms{fail: map[string]bool{"cs:room:" + buyer.String(): true}}
	pub := NewPublisher(rooms, nil)

	pub.Notify(context.Background(), Event{Type: EventPaymentConfirmed}, buyer, seller)

	if _, ok := rooms.published["cs:room:"+seller.String()]; !ok {
		t.Fatal("expected seller room to receive the event after buyer failure")
	}
}

func TestNilPublisherIsNoop(t *testing.T) {
	t.Parallel()
	var pub *Publisher
	pub.Notify(context.Background(), Event{Type: EventPaymentFailed}, uuid.New())
}
