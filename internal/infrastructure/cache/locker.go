package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"

	"coopsync/internal/core/lock"
)

const lockKeyPrefix = "coopsync:lock:"

var _ lock.Locker = (*Locker)(nil)

// Locker implements lock.Locker with redislock. A lease outlives the TTL
// only if released late; callers keep one-shot jobs well under it.
type Locker struct {
	client *redislock.Client
	ttl    time.Duration
}

func NewLocker(client *redis.Client, ttl time.Duration) *Locker {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Locker{client: redislock.New(client), ttl: ttl}
}

func (l *Locker) Obtain(ctx context.Context, key string) (lock.Lease, error) {
	held, err := l.client.Obtain(ctx, lockKeyPrefix+key, l.ttl, nil)
	if err != nil {
		if errors.Is(err, redislock.ErrNotObtained) {
			return nil, lock.ErrNotObtained
		}
		return nil, fmt.Errorf("obtain lock %s: %w", key, err)
	}
	return lease{held}, nil
}

type lease struct {
	l *redislock.Lock
}

func (l lease) Release(ctx context.Context) error {
	if err := l.l.Release(ctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
		return err
	}
	return nil
}
