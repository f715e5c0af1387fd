package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient parses redisURL and checks the connection.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

type setNXer interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

// Throttle allows one action per key per window.
type Throttle struct {
	client setNXer
	prefix string
	window time.Duration
}

func NewThrottle(client setNXer, prefix string, window time.Duration) *Throttle {
	return &Throttle{client: client, prefix: prefix, window: window}
}

// Allow reports whether key may act now and, if so, starts its window.
func (t *Throttle) Allow(ctx context.Context, key string) (bool, error) {
	ok, err := t.client.SetNX(ctx, t.prefix+key, time.Now().Unix(), t.window).Result()
	if err != nil {
		return false, fmt.Errorf("throttle %s: %w", key, err)
	}
	return ok, nil
}
