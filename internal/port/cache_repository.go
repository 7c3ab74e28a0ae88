package port

import (
	"context"
	"time"
)

// CacheRepository is the non-authoritative key-value cache. Every operation is
// best-effort: a failure degrades performance, never correctness.
type CacheRepository interface {
	// Get returns the cached value, or nil when the key is absent.
	Get(ctx context.Context, key string) ([]byte, error)

	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	Invalidate(ctx context.Context, key string) error

	// InvalidatePrefix removes every key starting with prefix.
	InvalidatePrefix(ctx context.Context, prefix string) error
}

// RateCounter backs the rate gate with an atomic windowed counter.
type RateCounter interface {
	// Incr atomically increments the counter and refreshes its expiry in one
	// round trip, returning the new count and whether the expiry step took
	// effect.
	Incr(ctx context.Context, key string, window time.Duration) (count int64, expireSet bool, err error)

	Expire(ctx context.Context, key string, window time.Duration) error

	Remove(ctx context.Context, key string) error
}
