package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/BradenHooton/cyberarcade/internal/models"
	pkgauth "github.com/BradenHooton/cyberarcade/pkg/auth"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testAdmin = AdminActor{ID: "11111111-1111-1111-1111-111111111111", Identifier: "admin@example.com"}

type adminFixture struct {
	repo       *FakeAccountRepository
	audit      *MockAuditSink
	notifier   *MockNotifier
	dispatcher *NotificationDispatcher
	clock      *fakeClock
	service    *AdminService
}

func newAdminFixture(trail AuditTrail, accounts ...*models.Account) *adminFixture {
	clock := newFakeClock()
	repo := NewFakeAccountRepository(accounts...)
	audit := &MockAuditSink{}
	notifier := &MockNotifier{}
	dispatcher := NewNotificationDispatcher(notifier, testLogger(), time.Second)
	service := NewAdminService(repo, dispatcher, audit, trail, time.Hour, testLogger()).WithClock(clock.Now)
	return &adminFixture{
		repo:       repo,
		audit:      audit,
		notifier:   notifier,
		dispatcher: dispatcher,
		clock:      clock,
		service:    service,
	}
}

// ============================================================================
// Unlock
// ============================================================================

func TestAdminService_Unlock_ClearsTemporaryLock(t *testing.T) {
	f := newAdminFixture(nil, NewTestLockedAccount(testIdentifier, newFakeClock().Now().Add(20*time.Minute)))

	result, err := f.service.Unlock(context.Background(), testIdentifier, testAdmin)

	require.NoError(t, err)
	assert.Equal(t, testIdentifier, result.Identifier)
	assert.Equal(t, testAdmin.Identifier, result.UnlockedBy)
	assert.Equal(t, f.clock.Now(), result.UnlockedAt)
	assert.True(t, result.WasLocked)

	stored := f.repo.Get(testIdentifier)
	assert.Equal(t, 0, stored.ConsecutiveFailures)
	assert.Equal(t, 0, stored.LockoutStage)
	assert.Nil(t, stored.LockoutExpiresAt)
	assert.False(t, stored.IsPermanentlyLocked)
	assert.Equal(t, 3, stored.TotalFailures)

	f.dispatcher.Wait()
	sent := f.notifier.Notifications()
	require.Len(t, sent, 1)
	unlocked, ok := sent[0].(models.AccountUnlocked)
	require.True(t, ok)
	assert.Equal(t, testAdmin.Identifier, unlocked.By)

	require.Len(t, f.audit.Entries, 1)
	entry := f.audit.Entries[0]
	assert.Equal(t, models.AuditEventTypeAdminOverride, entry.EventType)
	assert.Equal(t, models.AuditActionUnlock, entry.Action)
	assert.Equal(t, testAdmin.ID, entry.ActorID)
}

func TestAdminService_Unlock_ClearsPermanentLock(t *testing.T) {
	f := newAdminFixture(nil, NewTestPermanentlyLockedAccount(testIdentifier))

	_, err := f.service.Unlock(context.Background(), testIdentifier, testAdmin)

	require.NoError(t, err)
	stored := f.repo.Get(testIdentifier)
	assert.False(t, stored.IsPermanentlyLocked)
	assert.Equal(t, 0, stored.LockoutStage)
}

func TestAdminService_Unlock_Idempotent(t *testing.T) {
	f := newAdminFixture(nil, NewTestPermanentlyLockedAccount(testIdentifier))
	ctx := context.Background()

	first, err := f.service.Unlock(ctx, testIdentifier, testAdmin)
	require.NoError(t, err)
	afterFirst := f.repo.Get(testIdentifier)

	second, err := f.service.Unlock(ctx, testIdentifier, testAdmin)
	require.NoError(t, err)
	afterSecond := f.repo.Get(testIdentifier)

	assert.True(t, first.WasLocked)
	assert.False(t, second.WasLocked)
	assert.Equal(t, 1, f.repo.Writes)
	assert.Equal(t, afterFirst.ConsecutiveFailures, afterSecond.ConsecutiveFailures)
	assert.Equal(t, afterFirst.LockoutStage, afterSecond.LockoutStage)

	f.dispatcher.Wait()
	assert.Len(t, f.notifier.Notifications(), 1)
}

func TestAdminService_Unlock_ClearsLingeringFailures(t *testing.T) {
	acct := NewTestAccount(testIdentifier)
	acct.ConsecutiveFailures = 2
	f := newAdminFixture(nil, acct)

	result, err := f.service.Unlock(context.Background(), testIdentifier, testAdmin)

	require.NoError(t, err)
	assert.False(t, result.WasLocked)
	assert.Equal(t, 0, f.repo.Get(testIdentifier).ConsecutiveFailures)
	f.dispatcher.Wait()
	assert.Empty(t, f.notifier.Notifications())
}

func TestAdminService_Unlock_NotFound(t *testing.T) {
	f := newAdminFixture(nil)

	_, err := f.service.Unlock(context.Background(), "ghost@example.com", testAdmin)

	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestAdminService_Unlock_RequiresAdmin(t *testing.T) {
	f := newAdminFixture(nil, NewTestPermanentlyLockedAccount(testIdentifier))

	_, err := f.service.Unlock(context.Background(), testIdentifier, AdminActor{})

	assert.ErrorIs(t, err, models.ErrUnauthorized)
	assert.True(t, f.repo.Get(testIdentifier).IsPermanentlyLocked)
}

func TestAdminService_Unlock_StoreFailure(t *testing.T) {
	f := newAdminFixture(nil, NewTestPermanentlyLockedAccount(testIdentifier))
	f.repo.Err = errors.New("connection reset")

	_, err := f.service.Unlock(context.Background(), testIdentifier, testAdmin)

	assert.ErrorIs(t, err, models.ErrStoreUnavailable)
}

func TestAdminService_Unlock_NotificationFailureSwallowed(t *testing.T) {
	f := newAdminFixture(nil, NewTestPermanentlyLockedAccount(testIdentifier))
	f.notifier.NotifyFunc = func(ctx context.Context, recipient string, n models.Notification) error {
		return errors.New("ses throttled")
	}

	_, err := f.service.Unlock(context.Background(), testIdentifier, testAdmin)
	f.dispatcher.Wait()

	assert.NoError(t, err)
}

// ============================================================================
// RequirePasswordReset
// ============================================================================

func TestAdminService_RequirePasswordReset_IssuesToken(t *testing.T) {
	f := newAdminFixture(nil, NewTestAccount(testIdentifier))

	result, err := f.service.RequirePasswordReset(context.Background(), testIdentifier, testAdmin, true)

	require.NoError(t, err)
	assert.Equal(t, testIdentifier, result.Identifier)
	assert.Equal(t, f.clock.Now().Add(time.Hour), result.TokenExpiresAt)
	assert.True(t, result.NotificationSent)

	f.dispatcher.Wait()
	sent := f.notifier.Notifications()
	require.Len(t, sent, 1)
	issued, ok := sent[0].(models.PasswordResetIssued)
	require.True(t, ok)
	assert.Len(t, issued.Token, 43)

	stored := f.repo.Get(testIdentifier)
	assert.True(t, stored.PasswordResetRequired)
	require.NotNil(t, stored.PasswordResetTokenHash)
	assert.Equal(t, pkgauth.HashToken(issued.Token), *stored.PasswordResetTokenHash)
	assert.NotEqual(t, issued.Token, *stored.PasswordResetTokenHash)
	require.NotNil(t, stored.PasswordResetApprovedBy)
	assert.Equal(t, testAdmin.ID, *stored.PasswordResetApprovedBy)
	assert.Equal(t, []string{models.AuditActionForceReset}, f.audit.Actions())
}

func TestAdminService_RequirePasswordReset_ReplacesPriorToken(t *testing.T) {
	f := newAdminFixture(nil, NewTestAccount(testIdentifier))
	ctx := context.Background()

	_, err := f.service.RequirePasswordReset(ctx, testIdentifier, testAdmin, false)
	require.NoError(t, err)
	firstHash := *f.repo.Get(testIdentifier).PasswordResetTokenHash

	_, err = f.service.RequirePasswordReset(ctx, testIdentifier, testAdmin, false)
	require.NoError(t, err)

	assert.NotEqual(t, firstHash, *f.repo.Get(testIdentifier).PasswordResetTokenHash)
}

func TestAdminService_RequirePasswordReset_WithoutNotification(t *testing.T) {
	f := newAdminFixture(nil, NewTestAccount(testIdentifier))

	result, err := f.service.RequirePasswordReset(context.Background(), testIdentifier, testAdmin, false)

	require.NoError(t, err)
	assert.False(t, result.NotificationSent)
	f.dispatcher.Wait()
	assert.Empty(t, f.notifier.Notifications())
}

func TestAdminService_RequirePasswordReset_ExternalAccount(t *testing.T) {
	f := newAdminFixture(nil, NewTestExternalAccount(testIdentifier))

	_, err := f.service.RequirePasswordReset(context.Background(), testIdentifier, testAdmin, true)

	assert.ErrorIs(t, err, models.ErrBadRequest)
	assert.Nil(t, f.repo.Get(testIdentifier).PasswordResetTokenHash)
}

func TestAdminService_RequirePasswordReset_NotFound(t *testing.T) {
	f := newAdminFixture(nil)

	_, err := f.service.RequirePasswordReset(context.Background(), "ghost@example.com", testAdmin, true)

	assert.ErrorIs(t, err, models.ErrNotFound)
}

// ============================================================================
// LockoutStatus
// ============================================================================

func TestAdminService_LockoutStatus(t *testing.T) {
	acct := NewTestLockedAccount(testIdentifier, newFakeClock().Now().Add(15*time.Minute))
	trail := &MockAuditTrail{
		RecentForAccountFunc: func(ctx context.Context, accountID string, limit int) ([]*models.AuditLog, error) {
			assert.Equal(t, acct.ID, accountID)
			return []*models.AuditLog{{ID: uuid.New(), Action: models.AuditActionLockoutEngaged}}, nil
		},
	}
	f := newAdminFixture(trail, acct)

	status, err := f.service.LockoutStatus(context.Background(), testIdentifier)

	require.NoError(t, err)
	assert.True(t, status.Status.Active)
	assert.Equal(t, int64(900), status.Status.RemainingSeconds)
	assert.Equal(t, 3, status.ConsecutiveFailures)
	require.Len(t, status.RecentEvents, 1)
	assert.Equal(t, 0, f.repo.Writes)
}

func TestAdminService_LockoutStatus_TrailFailureTolerated(t *testing.T) {
	trail := &MockAuditTrail{
		RecentForAccountFunc: func(ctx context.Context, accountID string, limit int) ([]*models.AuditLog, error) {
			return nil, errors.New("boom")
		},
	}
	f := newAdminFixture(trail, NewTestAccount(testIdentifier))

	status, err := f.service.LockoutStatus(context.Background(), testIdentifier)

	require.NoError(t, err)
	assert.False(t, status.Status.Active)
	assert.Empty(t, status.RecentEvents)
}
