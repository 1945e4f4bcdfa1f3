package realtime

import (
	"context"
	"io"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type pubsubClient interface {
	Subscribe(ctx context.Context, channels ...string) (*redis.PubSub, error)
	RoomChannel(userID string) string
}

// RedisRooms joins user rooms over redis pub/sub.
type RedisRooms struct {
	client pubsubClient
}

func NewRedisRooms(client pubsubClient) *RedisRooms {
	return &RedisRooms{client: client}
}

// Join subscribes to the user's room. The returned channel closes once the
// closer is called or ctx ends.
func (r *RedisRooms) Join(ctx context.Context, userID uuid.UUID) (<-chan []byte, io.Closer, error) {
	sub, err := r.client.Subscribe(ctx, r.client.RoomChannel(userID.String()))
	if err != nil {
		return nil, nil, err
	}
	out := make(chan []byte, 16)
	go func() {
		defer close(out)
		for msg := range sub.Channel() {
			select {
			case out <- []byte(msg.Payload):
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, sub, nil
}
