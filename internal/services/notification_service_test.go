package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/BradenHooton/cyberarcade/internal/metrics"
	"github.com/BradenHooton/cyberarcade/internal/models"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotificationDispatcher_Delivers(t *testing.T) {
	notifier := &MockNotifier{}
	d := NewNotificationDispatcher(notifier, testLogger(), time.Second)

	queued := d.Dispatch(testIdentifier, models.AccountUnlocked{By: "admin@example.com", At: time.Now()})
	d.Wait()

	assert.True(t, queued)
	require.Len(t, notifier.Notifications(), 1)
	assert.Equal(t, []string{testIdentifier}, notifier.Recipients)
}

func TestNotificationDispatcher_RejectsInvalid(t *testing.T) {
	notifier := &MockNotifier{}
	d := NewNotificationDispatcher(notifier, testLogger(), time.Second)
	counter := metrics.GetNotificationFailuresTotal().WithLabelValues(string(models.NotificationLockoutEngaged))
	before := testutil.ToFloat64(counter)

	queued := d.Dispatch(testIdentifier, models.LockoutEngaged{Stage: 1})
	d.Wait()

	assert.False(t, queued)
	assert.Empty(t, notifier.Notifications())
	assert.Equal(t, before+1, testutil.ToFloat64(counter))
}

func TestNotificationDispatcher_FailureCounted(t *testing.T) {
	notifier := &MockNotifier{
		NotifyFunc: func(ctx context.Context, recipient string, n models.Notification) error {
			return errors.New("delivery failed")
		},
	}
	d := NewNotificationDispatcher(notifier, testLogger(), time.Second)
	counter := metrics.GetNotificationFailuresTotal().WithLabelValues(string(models.NotificationAccountUnlocked))
	before := testutil.ToFloat64(counter)

	queued := d.Dispatch(testIdentifier, models.AccountUnlocked{By: "admin@example.com", At: time.Now()})
	d.Wait()

	assert.True(t, queued)
	assert.Equal(t, before+1, testutil.ToFloat64(counter))
}

func TestNotificationDispatcher_RecoversPanic(t *testing.T) {
	notifier := &MockNotifier{
		NotifyFunc: func(ctx context.Context, recipient string, n models.Notification) error {
			panic("notifier exploded")
		},
	}
	d := NewNotificationDispatcher(notifier, testLogger(), time.Second)

	assert.NotPanics(t, func() {
		d.Dispatch(testIdentifier, models.AccountUnlocked{By: "admin@example.com", At: time.Now()})
		d.Wait()
	})
}

func TestNotificationDispatcher_TimeoutApplied(t *testing.T) {
	notifier := &MockNotifier{
		NotifyFunc: func(ctx context.Context, recipient string, n models.Notification) error {
			<-ctx.Done()
			return ctx.Err()
		},
	}
	d := NewNotificationDispatcher(notifier, testLogger(), 20*time.Millisecond)

	start := time.Now()
	d.Dispatch(testIdentifier, models.AccountUnlocked{By: "admin@example.com", At: time.Now()})
	d.Wait()

	assert.Less(t, time.Since(start), time.Second)
}

func TestNotificationDispatcher_NilSafe(t *testing.T) {
	var d *NotificationDispatcher

	assert.False(t, d.Dispatch(testIdentifier, models.AccountUnlocked{By: "a", At: time.Now()}))
	assert.NotPanics(t, d.Wait)
}

func TestLogNotifier_OmitsToken(t *testing.T) {
	n := NewLogNotifier(testLogger())
	issued := models.PasswordResetIssued{Token: "secret-token", ExpiresAt: time.Now(), ApprovedBy: "admin"}

	assert.NoError(t, n.Notify(context.Background(), testIdentifier, issued))
	assert.NotContains(t, issued.Metadata(), "token")
}
