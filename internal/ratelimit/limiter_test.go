package ratelimit

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// MockWindowStore is a WindowStore with a pluggable Increment
type MockWindowStore struct {
	IncrementFunc func(ctx context.Context, key string, window time.Duration) (int64, time.Time, error)
}

func (m *MockWindowStore) Increment(ctx context.Context, key string, window time.Duration) (int64, time.Time, error) {
	return m.IncrementFunc(ctx, key, window)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, nil))
}

func newTestLimiter(clock *fakeClock) (*Limiter, *MemoryStore) {
	store := NewMemoryStore().WithClock(clock.Now)
	l := New(store, Config{MaxAttempts: 5, Window: 60 * time.Second, Scope: "login"}, testLogger()).WithClock(clock.Now)
	return l, store
}

func TestLimiter_FifthAllowedSixthRejected(t *testing.T) {
	clock := newFakeClock()
	l, _ := newTestLimiter(clock)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		d := l.Allow(ctx, "203.0.113.7")
		require.True(t, d.Allowed, "attempt %d should be allowed", i)
		assert.Equal(t, 5-i, d.Remaining)
		clock.Advance(time.Second)
	}

	d := l.Allow(ctx, "203.0.113.7")
	assert.False(t, d.Allowed)
	assert.Equal(t, 55*time.Second, d.RetryAfter)
}

func TestLimiter_WindowLapses(t *testing.T) {
	clock := newFakeClock()
	l, _ := newTestLimiter(clock)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		l.Allow(ctx, "203.0.113.7")
	}
	assert.False(t, l.Allow(ctx, "203.0.113.7").Allowed)

	clock.Advance(60 * time.Second)
	d := l.Allow(ctx, "203.0.113.7")
	assert.True(t, d.Allowed)
	assert.Equal(t, int64(1), d.Count)
}

func TestLimiter_OriginsIndependent(t *testing.T) {
	clock := newFakeClock()
	l, _ := newTestLimiter(clock)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		l.Allow(ctx, "203.0.113.7")
	}
	assert.False(t, l.Allow(ctx, "203.0.113.7").Allowed)
	assert.True(t, l.Allow(ctx, "198.51.100.1").Allowed)
}

func TestLimiter_KeyedByScopeAndOrigin(t *testing.T) {
	var gotKey string
	store := &MockWindowStore{IncrementFunc: func(ctx context.Context, key string, window time.Duration) (int64, time.Time, error) {
		gotKey = key
		assert.Equal(t, time.Minute, window)
		return 1, time.Now().Add(window), nil
	}}
	l := New(store, Config{MaxAttempts: 5, Window: time.Minute}, testLogger())

	l.Allow(context.Background(), "203.0.113.7")
	assert.Equal(t, "login:203.0.113.7", gotKey)

	l.Allow(context.Background(), "")
	assert.Equal(t, "login:unknown", gotKey)
}

func TestLimiter_FailsOpenOnStoreError(t *testing.T) {
	store := &MockWindowStore{IncrementFunc: func(ctx context.Context, key string, window time.Duration) (int64, time.Time, error) {
		return 0, time.Time{}, errors.New("connection refused")
	}}
	l := New(store, Config{MaxAttempts: 5, Window: time.Minute}, testLogger())

	for i := 0; i < 10; i++ {
		assert.True(t, l.Allow(context.Background(), "203.0.113.7").Allowed)
	}
}

func TestLimiter_RetryAfterAtLeastOneSecond(t *testing.T) {
	clock := newFakeClock()
	store := &MockWindowStore{IncrementFunc: func(ctx context.Context, key string, window time.Duration) (int64, time.Time, error) {
		return 6, clock.Now().Add(100 * time.Millisecond), nil
	}}
	l := New(store, Config{MaxAttempts: 5, Window: time.Minute}, testLogger()).WithClock(clock.Now)

	d := l.Allow(context.Background(), "203.0.113.7")
	assert.False(t, d.Allowed)
	assert.Equal(t, time.Second, d.RetryAfter)
}
