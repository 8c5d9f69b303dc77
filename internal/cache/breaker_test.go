package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

// flakyBackend fails every call with err
type flakyBackend struct {
	err   error
	calls int
}

func (f *flakyBackend) Key(parts ...string) string { return "flaky" }

func (f *flakyBackend) GetJSON(ctx context.Context, cacheType, key string, dst any) error {
	f.calls++
	return f.err
}

func (f *flakyBackend) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	f.calls++
	return f.err
}

func (f *flakyBackend) Invalidate(ctx context.Context) (int, error) {
	f.calls++
	return 7, f.err
}

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	backend := &flakyBackend{err: errors.New("dial tcp: connection refused")}
	b := NewBreaker(backend, &BreakerConfig{MaxRequests: 1, Interval: time.Minute, Timeout: time.Minute, FailureThreshold: 3})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := b.GetJSON(ctx, "test", "k", nil); errors.Is(err, ErrCircuitOpen) {
			t.Fatalf("Call %d rejected before threshold", i+1)
		}
	}

	if err := b.SetJSON(ctx, "k", 1, time.Minute); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Expected ErrCircuitOpen, got %v", err)
	}
	if backend.calls != 3 {
		t.Errorf("Backend called %d times, want 3", backend.calls)
	}
	if b.State() != "open" {
		t.Errorf("State = %s, want open", b.State())
	}
}

func TestBreaker_MissesDoNotTrip(t *testing.T) {
	backend := &flakyBackend{err: ErrMiss}
	b := NewBreaker(backend, &BreakerConfig{MaxRequests: 1, Interval: time.Minute, Timeout: time.Minute, FailureThreshold: 2})

	for i := 0; i < 10; i++ {
		if err := b.GetJSON(context.Background(), "test", "k", nil); !errors.Is(err, ErrMiss) {
			t.Fatalf("Call %d: expected ErrMiss, got %v", i+1, err)
		}
	}
	if b.State() != "closed" {
		t.Errorf("State = %s, want closed", b.State())
	}
}

func TestBreaker_Invalidate(t *testing.T) {
	b := NewBreaker(&flakyBackend{}, nil)

	n, err := b.Invalidate(context.Background())
	if err != nil || n != 7 {
		t.Errorf("Invalidate = %d, %v; want 7, nil", n, err)
	}
	if b.Key("a") != "flaky" {
		t.Error("Key should delegate to the backend")
	}
}
