package keypool

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/redis/go-redis/v9"
)

// AtomicCursor is a lock-free in-process cursor. The zero value starts at 0.
type AtomicCursor struct {
	n atomic.Uint64
}

// Load implements Cursor.
func (c *AtomicCursor) Load(context.Context) (uint64, error) { return c.n.Load(), nil }

// Next implements Cursor.
func (c *AtomicCursor) Next(context.Context) (uint64, error) { return c.n.Add(1), nil }

// RedisCursor stores the rotation counter under Key so that every replica
// sharing the Redis instance rotates through the same credential list.
type RedisCursor struct {
	Client redis.Cmdable
	Key    string
}

// NewRedisCursor returns a cursor backed by client under key.
func NewRedisCursor(client redis.Cmdable, key string) *RedisCursor {
	if key == "" {
		key = "genart:keypool:cursor"
	}
	return &RedisCursor{Client: client, Key: key}
}

// Load implements Cursor. A missing key reads as 0.
func (c *RedisCursor) Load(ctx context.Context) (uint64, error) {
	v, err := c.Client.Get(ctx, c.Key).Uint64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return v, nil
}

// Next implements Cursor using INCR, which is atomic across clients.
func (c *RedisCursor) Next(ctx context.Context) (uint64, error) {
	v, err := c.Client.Incr(ctx, c.Key).Result()
	if err != nil {
		return 0, err
	}
	return uint64(v), nil
}
