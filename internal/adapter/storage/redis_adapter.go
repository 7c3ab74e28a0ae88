package storage

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisAdapter implements both port.CacheRepository and port.RateCounter on
// one client. Cached values are never authoritative; callers treat every
// error here as degraded service, not failure.
type RedisAdapter struct {
	client *redis.Client
}

func NewRedisAdapter(client *redis.Client) *RedisAdapter {
	return &RedisAdapter{client: client}
}

func (r *RedisAdapter) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return val, nil
}

func (r *RedisAdapter) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *RedisAdapter) Invalidate(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

// InvalidatePrefix deletes all keys under prefix using SCAN rather than KEYS
// so a large keyspace does not stall the server.
func (r *RedisAdapter) InvalidatePrefix(ctx context.Context, prefix string) error {
	iter := r.client.Scan(ctx, 0, prefix+"*", 100).Iterator()

	keys := make([]string, 0, 100)
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
		if len(keys) == cap(keys) {
			if err := r.client.Del(ctx, keys...).Err(); err != nil {
				return err
			}
			keys = keys[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) > 0 {
		return r.client.Del(ctx, keys...).Err()
	}
	return nil
}

// Incr bumps the window counter and refreshes its expiry in one pipeline.
// The expiry result is reported back so the caller can verify the counter
// cannot become permanent.
func (r *RedisAdapter) Incr(ctx context.Context, key string, window time.Duration) (int64, bool, error) {
	pipe := r.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	expire := pipe.Expire(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, false, err
	}
	return incr.Val(), expire.Val(), nil
}

func (r *RedisAdapter) Expire(ctx context.Context, key string, window time.Duration) error {
	return r.client.Expire(ctx, key, window).Err()
}

func (r *RedisAdapter) Remove(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}
