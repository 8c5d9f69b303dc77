package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/reviewlens/reviewlens/internal/monitoring"
	"github.com/rs/zerolog/log"
)

// RateLimiter implements a sliding window limiter on Redis sorted sets
type RateLimiter struct {
	redis  *Redis
	limit  int
	window time.Duration
}

// RateLimitResult contains the result of a rate limit check
type RateLimitResult struct {
	Allowed    bool
	Remaining  int64
	Limit      int
	RetryAfter time.Duration
	ResetAt    time.Time
}

// NewRateLimiter allows limit requests per window for each client
func NewRateLimiter(r *Redis, limit int, window time.Duration) *RateLimiter {
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{redis: r, limit: limit, window: window}
}

func (l *RateLimiter) key(clientID string) string {
	return l.redis.Key("ratelimit", clientID)
}

// Check records a request for clientID and reports whether it is allowed.
// Redis failures fail open.
func (l *RateLimiter) Check(ctx context.Context, clientID string) *RateLimitResult {
	now := time.Now()
	windowStart := now.Add(-l.window)
	key := l.key(clientID)

	pipe := l.redis.Client.Pipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", fmt.Sprintf("%d", windowStart.UnixNano()))
	countCmd := pipe.ZCard(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Error().Err(err).Str("client_id", clientID).Msg("Failed to check rate limit")
		return &RateLimitResult{Allowed: true, Remaining: int64(l.limit), Limit: l.limit}
	}

	current := countCmd.Val()
	result := &RateLimitResult{
		Limit:   l.limit,
		ResetAt: now.Add(l.window),
	}

	if current >= int64(l.limit) {
		monitoring.RecordRateLimitHit()
		result.RetryAfter = l.window
		oldest, err := l.redis.Client.ZRangeWithScores(ctx, key, 0, 0).Result()
		if err == nil && len(oldest) > 0 {
			result.RetryAfter = time.Unix(0, int64(oldest[0].Score)).Add(l.window).Sub(now)
			if result.RetryAfter < time.Second {
				result.RetryAfter = time.Second
			}
		}
		return result
	}

	member := fmt.Sprintf("%d-%s", now.UnixNano(), clientID)
	if err := l.redis.Client.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixNano()), Member: member}).Err(); err != nil {
		log.Warn().Err(err).Str("client_id", clientID).Msg("Failed to add rate limit entry")
	}
	l.redis.Client.Expire(ctx, key, l.window*2)

	result.Allowed = true
	result.Remaining = max(int64(l.limit)-current-1, 0)
	return result
}

// Reset clears the window of one client
func (l *RateLimiter) Reset(ctx context.Context, clientID string) error {
	return l.redis.Client.Del(ctx, l.key(clientID)).Err()
}
