// Package cache holds the response caches used in front of the upstream APIs.
package cache

import (
	"context"
	"time"
)

// Cache stores raw upstream response bodies for a bounded time.
// A miss is reported as ok == false with a nil error.
type Cache interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Ping(ctx context.Context) error
	Close() error
}
