package ratelimit

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/BradenHooton/cyberarcade/internal/metrics"
)

// ErrStoreUnavailable wraps failures from a WindowStore backend.
var ErrStoreUnavailable = errors.New("rate window store unavailable")

// WindowStore atomically increments a fixed-window counter. The window
// starts on the first hit for key and lasts for window.
type WindowStore interface {
	Increment(ctx context.Context, key string, window time.Duration) (count int64, resetAt time.Time, err error)
}

// Config holds limiter tuning parameters.
type Config struct {
	MaxAttempts int
	Window      time.Duration
	Scope       string // key prefix and metrics label, e.g. "login"
}

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed    bool
	Count      int64
	Remaining  int
	RetryAfter time.Duration
}

// Limiter bounds attempts per origin within a fixed window.
type Limiter struct {
	store  WindowStore
	config Config
	logger *slog.Logger
	now    func() time.Time
}

// New creates a Limiter over store.
func New(store WindowStore, cfg Config, logger *slog.Logger) *Limiter {
	if cfg.Scope == "" {
		cfg.Scope = "login"
	}
	return &Limiter{
		store:  store,
		config: cfg,
		logger: logger,
		now:    time.Now,
	}
}

// WithClock overrides the time source used to compute RetryAfter.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

// Allow records an attempt from origin and reports whether it is within budget.
// Store failures fail open: the attempt is allowed and the failure logged.
func (l *Limiter) Allow(ctx context.Context, origin string) Decision {
	if origin == "" {
		origin = "unknown"
	}

	count, resetAt, err := l.store.Increment(ctx, l.config.Scope+":"+origin, l.config.Window)
	if err != nil {
		metrics.RecordRateLimitStoreError()
		l.logger.Warn("rate window store failed, allowing attempt",
			slog.String("scope", l.config.Scope),
			slog.String("error", err.Error()),
		)
		return Decision{Allowed: true, Remaining: l.config.MaxAttempts}
	}

	max := int64(l.config.MaxAttempts)
	if count > max {
		retry := resetAt.Sub(l.now())
		if retry < time.Second {
			retry = time.Second
		}
		metrics.RecordRateLimitRejection(l.config.Scope)
		return Decision{Allowed: false, Count: count, RetryAfter: retry}
	}

	return Decision{Allowed: true, Count: count, Remaining: int(max - count)}
}
