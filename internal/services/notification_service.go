package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/BradenHooton/cyberarcade/internal/metrics"
	"github.com/BradenHooton/cyberarcade/internal/models"
	pkglogger "github.com/BradenHooton/cyberarcade/pkg/logger"
)

// DefaultNotificationTimeout bounds a single delivery attempt
const DefaultNotificationTimeout = 10 * time.Second

// Notifier delivers a notification to the account holder
type Notifier interface {
	Notify(ctx context.Context, recipient string, n models.Notification) error
}

// NotificationDispatcher sends notifications in the background. Delivery
// failures are logged and counted; callers never see them.
type NotificationDispatcher struct {
	notifier Notifier
	logger   *slog.Logger
	timeout  time.Duration
	wg       sync.WaitGroup
}

// NewNotificationDispatcher creates a dispatcher over notifier
func NewNotificationDispatcher(notifier Notifier, logger *slog.Logger, timeout time.Duration) *NotificationDispatcher {
	if timeout <= 0 {
		timeout = DefaultNotificationTimeout
	}
	return &NotificationDispatcher{
		notifier: notifier,
		logger:   logger,
		timeout:  timeout,
	}
}

// Dispatch validates n and queues its delivery. It returns false if the
// notification was rejected before being queued.
func (d *NotificationDispatcher) Dispatch(recipient string, n models.Notification) bool {
	if d == nil || d.notifier == nil {
		return false
	}
	if n == nil {
		d.logger.Warn("notification rejected", slog.String("reason", "nil notification"))
		return false
	}
	if err := n.Validate(); err != nil {
		metrics.RecordNotificationFailure(string(n.Kind()))
		d.logger.Warn("notification rejected",
			slog.String("kind", string(n.Kind())),
			slog.Any("error", err),
		)
		return false
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				metrics.RecordNotificationFailure(string(n.Kind()))
				d.logger.Error("notifier panicked",
					slog.String("kind", string(n.Kind())),
					slog.Any("panic", r),
				)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		if err := d.notifier.Notify(ctx, recipient, n); err != nil {
			metrics.RecordNotificationFailure(string(n.Kind()))
			d.logger.Warn("notification delivery failed",
				slog.String("kind", string(n.Kind())),
				slog.String("recipient", pkglogger.SanitizedEmail(recipient)),
				slog.Any("error", err),
			)
		}
	}()
	return true
}

// Wait blocks until all queued deliveries finish
func (d *NotificationDispatcher) Wait() {
	if d == nil {
		return
	}
	d.wg.Wait()
}

// LogNotifier writes notifications to the log instead of delivering them.
// Used when email delivery is disabled.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a LogNotifier
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify logs the notification kind and its token-free metadata
func (n *LogNotifier) Notify(ctx context.Context, recipient string, notification models.Notification) error {
	if notification == nil {
		return fmt.Errorf("%w: nil notification", models.ErrInvalidNotification)
	}
	attrs := []any{
		slog.String("kind", string(notification.Kind())),
		slog.String("recipient", pkglogger.SanitizedEmail(recipient)),
	}
	for k, v := range notification.Metadata() {
		attrs = append(attrs, slog.String(k, v))
	}
	n.logger.InfoContext(ctx, "notification", attrs...)
	return nil
}
