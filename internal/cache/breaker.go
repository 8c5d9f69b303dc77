package cache

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
)

// ErrCircuitOpen is returned while the breaker rejects calls to Redis
var ErrCircuitOpen = errors.New("cache circuit breaker is open")

// Backend is the part of Redis guarded by a Breaker
type Backend interface {
	Key(parts ...string) string
	GetJSON(ctx context.Context, cacheType, key string, dst any) error
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
	Invalidate(ctx context.Context) (int, error)
}

// BreakerConfig holds configuration for the cache circuit breaker
type BreakerConfig struct {
	// MaxRequests is the number of trial requests allowed while half-open
	MaxRequests uint32
	// Interval clears the failure counts while closed
	Interval time.Duration
	// Timeout is how long the breaker stays open
	Timeout time.Duration
	// FailureThreshold is the number of consecutive failures that opens the breaker
	FailureThreshold uint32
}

// DefaultBreakerConfig returns default breaker configuration
func DefaultBreakerConfig() *BreakerConfig {
	return &BreakerConfig{
		MaxRequests:      1,
		Interval:         60 * time.Second,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
	}
}

// Breaker fails fast when Redis keeps erroring so requests fall through to the stores
type Breaker struct {
	next Backend
	cb   *gobreaker.CircuitBreaker
}

// NewBreaker wraps next with a circuit breaker
func NewBreaker(next Backend, config *BreakerConfig) *Breaker {
	if config == nil {
		config = DefaultBreakerConfig()
	}
	return &Breaker{
		next: next,
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "redis-cache",
			MaxRequests: config.MaxRequests,
			Interval:    config.Interval,
			Timeout:     config.Timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= config.FailureThreshold
			},
			OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
				log.Info().
					Str("circuit_breaker", name).
					Str("from", from.String()).
					Str("to", to.String()).
					Msg("Circuit breaker state changed")
			},
			IsSuccessful: func(err error) bool {
				// A miss or a cancelled request says nothing about Redis health
				return err == nil ||
					errors.Is(err, ErrMiss) ||
					errors.Is(err, context.Canceled)
			},
		}),
	}
}

// Key namespaces a cache key
func (b *Breaker) Key(parts ...string) string {
	return b.next.Key(parts...)
}

// GetJSON reads through the breaker
func (b *Breaker) GetJSON(ctx context.Context, cacheType, key string, dst any) error {
	_, err := b.execute(func() (any, error) {
		return nil, b.next.GetJSON(ctx, cacheType, key, dst)
	})
	return err
}

// SetJSON writes through the breaker
func (b *Breaker) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	_, err := b.execute(func() (any, error) {
		return nil, b.next.SetJSON(ctx, key, value, ttl)
	})
	return err
}

// Invalidate clears the namespace through the breaker
func (b *Breaker) Invalidate(ctx context.Context) (int, error) {
	n, err := b.execute(func() (any, error) {
		return b.next.Invalidate(ctx)
	})
	if err != nil {
		return 0, err
	}
	return n.(int), nil
}

// State reports closed, open or half-open
func (b *Breaker) State() string {
	return b.cb.State().String()
}

func (b *Breaker) execute(fn func() (any, error)) (any, error) {
	result, err := b.cb.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, ErrCircuitOpen
	}
	return result, err
}
