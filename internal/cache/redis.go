// Package cache wraps Redis for API response caching and request rate limiting.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/reviewlens/reviewlens/internal/monitoring"
)

// ErrMiss is returned by GetJSON when the key is absent
var ErrMiss = errors.New("cache miss")

// Redis holds the client shared by the cache and the rate limiter
type Redis struct {
	Client *redis.Client
	prefix string
}

// NewFromURL connects to redis://host:port/db and pings it
func NewFromURL(url string) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Redis{Client: client, prefix: "reviewlens:"}, nil
}

// WithPrefix returns a view whose keys are namespaced under prefix
func (r *Redis) WithPrefix(prefix string) *Redis {
	return &Redis{Client: r.Client, prefix: prefix}
}

// Close closes the client
func (r *Redis) Close() error {
	return r.Client.Close()
}

// Health pings the server
func (r *Redis) Health(ctx context.Context) error {
	return r.Client.Ping(ctx).Err()
}

// Key namespaces a cache key
func (r *Redis) Key(parts ...string) string {
	key := r.prefix
	for i, p := range parts {
		if i > 0 {
			key += ":"
		}
		key += p
	}
	return key
}

// GetJSON decodes the value stored at key into dst. cacheType labels the hit/miss metrics.
func (r *Redis) GetJSON(ctx context.Context, cacheType, key string, dst any) error {
	raw, err := r.Client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		monitoring.RecordCacheMiss(cacheType)
		return ErrMiss
	}
	if err != nil {
		return fmt.Errorf("get %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		monitoring.RecordCacheMiss(cacheType)
		return fmt.Errorf("decode %s: %w", key, err)
	}
	monitoring.RecordCacheHit(cacheType)
	return nil
}

// SetJSON stores value at key for ttl
func (r *Redis) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := r.Client.Set(ctx, key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// Invalidate deletes every key under this view's prefix and returns how many were removed
func (r *Redis) Invalidate(ctx context.Context) (int, error) {
	var (
		cursor  uint64
		deleted int
	)
	for {
		keys, next, err := r.Client.Scan(ctx, cursor, r.prefix+"*", 200).Result()
		if err != nil {
			return deleted, fmt.Errorf("scan %s*: %w", r.prefix, err)
		}
		if len(keys) > 0 {
			n, err := r.Client.Del(ctx, keys...).Result()
			if err != nil {
				return deleted, fmt.Errorf("delete keys: %w", err)
			}
			deleted += int(n)
		}
		cursor = next
		if cursor == 0 {
			return deleted, nil
		}
	}
}
