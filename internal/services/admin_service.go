package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/cyberarcade/internal/lockout"
	"github.com/BradenHooton/cyberarcade/internal/metrics"
	"github.com/BradenHooton/cyberarcade/internal/models"
	pkgauth "github.com/BradenHooton/cyberarcade/pkg/auth"
)

// DefaultResetTokenExpiry is how long an admin-issued reset token stays valid
const DefaultResetTokenExpiry = time.Hour

// AuditTrail reads recent audit entries for an account
type AuditTrail interface {
	RecentForAccount(ctx context.Context, accountID string, limit int) ([]*models.AuditLog, error)
}

// AdminActor identifies the administrator performing an override.
// It always comes from a validated session.
type AdminActor struct {
	ID         string
	Identifier string
}

// UnlockResult is returned by Unlock
type UnlockResult struct {
	Identifier string
	UnlockedBy string
	UnlockedAt time.Time
	WasLocked  bool
}

// PasswordResetResult is returned by RequirePasswordReset.
// The plaintext token only leaves through the notification.
type PasswordResetResult struct {
	Identifier       string
	TokenExpiresAt   time.Time
	NotificationSent bool
}

// LockoutStatusResult is a read-only snapshot of an account's lock
type LockoutStatusResult struct {
	Identifier            string
	Role                  string
	ConsecutiveFailures   int
	TotalFailures         int
	Status                lockout.Status
	LastFailedAt          *time.Time
	LastSuccessAt         *time.Time
	PasswordResetRequired bool
	RecentEvents          []*models.AuditLog
}

// AdminService implements administrator overrides on account lockout
type AdminService struct {
	accounts         AccountRepository
	dispatcher       *NotificationDispatcher
	audit            AuditSink
	trail            AuditTrail
	logger           *slog.Logger
	resetTokenExpiry time.Duration
	now              func() time.Time
}

// NewAdminService creates a new AdminService
func NewAdminService(
	accounts AccountRepository,
	dispatcher *NotificationDispatcher,
	audit AuditSink,
	trail AuditTrail,
	resetTokenExpiry time.Duration,
	logger *slog.Logger,
) *AdminService {
	if resetTokenExpiry <= 0 {
		resetTokenExpiry = DefaultResetTokenExpiry
	}
	return &AdminService{
		accounts:         accounts,
		dispatcher:       dispatcher,
		audit:            audit,
		trail:            trail,
		logger:           logger,
		resetTokenExpiry: resetTokenExpiry,
		now:              time.Now,
	}
}

// WithClock overrides the time source
func (s *AdminService) WithClock(now func() time.Time) *AdminService {
	s.now = now
	return s
}

// Unlock clears every lockout field on the account. Unlocking an account
// that is not locked succeeds without writing.
func (s *AdminService) Unlock(ctx context.Context, identifier string, admin AdminActor) (*UnlockResult, error) {
	identifier = NormalizeIdentifier(identifier)
	if identifier == "" {
		return nil, fmt.Errorf("%w: identifier is required", models.ErrBadRequest)
	}
	if admin.ID == "" {
		return nil, models.ErrUnauthorized
	}

	now := s.now().UTC()
	var wasLocked bool
	updated, err := s.accounts.UpdateByIdentifier(ctx, identifier, func(acct *models.Account) (bool, error) {
		wasLocked = lockout.IsActive(acct, now)
		if acct.ConsecutiveFailures == 0 && acct.LockoutStage == 0 &&
			acct.LockoutExpiresAt == nil && !acct.IsPermanentlyLocked {
			return false, nil
		}
		acct.ClearLockout()
		return true, nil
	})
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, err
		}
		s.logger.ErrorContext(ctx, "failed to unlock account", slog.Any("error", err))
		return nil, storeError(err)
	}

	metrics.RecordAdminOverride(models.AuditActionUnlock)
	s.logger.InfoContext(ctx, "account unlocked",
		slog.String("account_id", updated.ID),
		slog.String("admin_id", admin.ID),
		slog.Bool("was_locked", wasLocked))
	s.audit.Record(ctx, AuditEntry{
		EventType:  models.AuditEventTypeAdminOverride,
		Action:     models.AuditActionUnlock,
		ActorID:    admin.ID,
		TargetID:   updated.ID,
		Identifier: identifier,
		Success:    true,
		Metadata: map[string]string{
			"was_locked": boolString(wasLocked),
		},
	})

	if wasLocked {
		s.dispatcher.Dispatch(updated.Identifier, models.AccountUnlocked{
			By: admin.Identifier,
			At: now,
		})
	}

	return &UnlockResult{
		Identifier: updated.Identifier,
		UnlockedBy: admin.Identifier,
		UnlockedAt: now,
		WasLocked:  wasLocked,
	}, nil
}

// RequirePasswordReset issues a single-use reset token, replacing any prior one,
// and flags the account so the next login prompts for a new password.
func (s *AdminService) RequirePasswordReset(ctx context.Context, identifier string, admin AdminActor, sendNotification bool) (*PasswordResetResult, error) {
	identifier = NormalizeIdentifier(identifier)
	if identifier == "" {
		return nil, fmt.Errorf("%w: identifier is required", models.ErrBadRequest)
	}
	if admin.ID == "" {
		return nil, models.ErrUnauthorized
	}

	token, tokenHash, err := pkgauth.GenerateResetToken()
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to generate reset token", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	now := s.now().UTC()
	expiresAt := now.Add(s.resetTokenExpiry)
	updated, err := s.accounts.UpdateByIdentifier(ctx, identifier, func(acct *models.Account) (bool, error) {
		if acct.IsExternal() {
			return false, fmt.Errorf("%w: account has no local credential", models.ErrBadRequest)
		}
		approvedBy := admin.ID
		approvedAt := now
		acct.PasswordResetRequired = true
		acct.PasswordResetTokenHash = &tokenHash
		acct.PasswordResetTokenExpiresAt = &expiresAt
		acct.PasswordResetApprovedBy = &approvedBy
		acct.PasswordResetApprovedAt = &approvedAt
		return true, nil
	})
	if err != nil {
		if errors.Is(err, models.ErrNotFound) || errors.Is(err, models.ErrBadRequest) {
			return nil, err
		}
		s.logger.ErrorContext(ctx, "failed to require password reset", slog.Any("error", err))
		return nil, storeError(err)
	}

	sent := false
	if sendNotification {
		sent = s.dispatcher.Dispatch(updated.Identifier, models.PasswordResetIssued{
			Token:      token,
			ExpiresAt:  expiresAt,
			ApprovedBy: admin.Identifier,
		})
	}

	metrics.RecordAdminOverride(models.AuditActionForceReset)
	s.logger.InfoContext(ctx, "password reset required",
		slog.String("account_id", updated.ID),
		slog.String("admin_id", admin.ID),
		slog.Bool("notification_sent", sent))
	s.audit.Record(ctx, AuditEntry{
		EventType:  models.AuditEventTypeAdminOverride,
		Action:     models.AuditActionForceReset,
		ActorID:    admin.ID,
		TargetID:   updated.ID,
		Identifier: identifier,
		Success:    true,
		Metadata: map[string]string{
			"token_expires_at":  expiresAt.Format(time.RFC3339),
			"notification_sent": boolString(sent),
		},
	})

	return &PasswordResetResult{
		Identifier:       updated.Identifier,
		TokenExpiresAt:   expiresAt,
		NotificationSent: sent,
	}, nil
}

// LockoutStatus reports the account's current lock without changing it
func (s *AdminService) LockoutStatus(ctx context.Context, identifier string) (*LockoutStatusResult, error) {
	identifier = NormalizeIdentifier(identifier)
	if identifier == "" {
		return nil, fmt.Errorf("%w: identifier is required", models.ErrBadRequest)
	}

	acct, err := s.accounts.GetByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, err
		}
		return nil, storeError(err)
	}

	result := &LockoutStatusResult{
		Identifier:            acct.Identifier,
		Role:                  acct.Role,
		ConsecutiveFailures:   acct.ConsecutiveFailures,
		TotalFailures:         acct.TotalFailures,
		Status:                lockout.StatusOf(acct, s.now()),
		LastFailedAt:          acct.LastFailedAt,
		LastSuccessAt:         acct.LastSuccessAt,
		PasswordResetRequired: acct.PasswordResetRequired,
	}

	if s.trail != nil {
		events, err := s.trail.RecentForAccount(ctx, acct.ID, 20)
		if err != nil {
			s.logger.WarnContext(ctx, "failed to load audit trail",
				slog.String("account_id", acct.ID),
				slog.Any("error", err))
		} else {
			result.RecentEvents = events
		}
	}

	return result, nil
}
