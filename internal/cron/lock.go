package cron

import (
	"context"
	"errors"
	"time"
)

// Locker is the token lock primitive offered by the shared redis client.
type Locker interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	ReleaseLock(ctx context.Context, key, token string) (bool, error)
}

// lease is one held lock. The TTL bounds how long a crashed holder can block
// the other instances.
type lease struct {
	locker Locker
	key    string
	token  string
}

func acquire(ctx context.Context, locker Locker, key string, ttl time.Duration) (*lease, error) {
	token, ok, err := locker.AcquireLock(ctx, key, ttl)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return &lease{locker: locker, key: key, token: token}, nil
}

var errLeaseLost = errors.New("cron lock expired before release")

func (l *lease) release(ctx context.Context) error {
	released, err := l.locker.ReleaseLock(ctx, l.key, l.token)
	if err != nil {
		return err
	}
	if !released {
		return errLeaseLost
	}
	return nil
}
