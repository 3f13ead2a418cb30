// Package cache provides the Redis-backed summary cache and distributed lock.
// Both are optional: without a Redis URL the server runs with no cache and
// an in-process lock.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Connect parses url, opens a client and pings it.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// Health adapts a client to the readiness probe.
type Health struct{ Client *redis.Client }

func (h Health) Ping(ctx context.Context) error {
	return h.Client.Ping(ctx).Err()
}
