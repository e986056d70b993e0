package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/cyberarcade/internal/models"
	pkgauth "github.com/BradenHooton/cyberarcade/pkg/auth"
)

// PasswordResetService consumes admin-issued reset tokens
type PasswordResetService struct {
	accounts AccountRepository
	hasher   PasswordHasher
	audit    AuditSink
	logger   *slog.Logger
	now      func() time.Time
}

// NewPasswordResetService creates a new PasswordResetService
func NewPasswordResetService(accounts AccountRepository, hasher PasswordHasher, audit AuditSink, logger *slog.Logger) *PasswordResetService {
	return &PasswordResetService{
		accounts: accounts,
		hasher:   hasher,
		audit:    audit,
		logger:   logger,
		now:      time.Now,
	}
}

// WithClock overrides the time source
func (s *PasswordResetService) WithClock(now func() time.Time) *PasswordResetService {
	s.now = now
	return s
}

// Consume sets newPassword on the account holding token. The token is
// single use; expired tokens are cleared and rejected.
func (s *PasswordResetService) Consume(ctx context.Context, token, newPassword string) error {
	if token == "" {
		return models.ErrInvalidResetToken
	}
	if err := pkgauth.ValidatePassword(newPassword); err != nil {
		return fmt.Errorf("%w: %v", models.ErrBadRequest, err)
	}

	// Hash before taking the row lock; bcrypt is slow.
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to hash password", slog.Any("error", err))
		return models.ErrInternalServer
	}

	tokenHash := pkgauth.HashToken(token)
	var expired bool
	updated, err := s.accounts.UpdateByResetTokenHash(ctx, tokenHash, func(acct *models.Account) (bool, error) {
		now := s.now().UTC()
		if acct.PasswordResetTokenExpiresAt == nil || !acct.PasswordResetTokenExpiresAt.After(now) {
			expired = true
			acct.ClearResetToken()
			return true, nil
		}

		acct.CredentialHash = &hash
		acct.PasswordResetRequired = false
		acct.ClearResetToken()
		acct.PasswordChangedAt = &now
		return true, nil
	})
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrInvalidResetToken
		}
		s.logger.ErrorContext(ctx, "failed to consume reset token", slog.Any("error", err))
		return storeError(err)
	}

	if expired {
		s.logger.InfoContext(ctx, "expired reset token rejected", slog.String("account_id", updated.ID))
		s.audit.Record(ctx, AuditEntry{
			EventType:     models.AuditEventTypePasswordReset,
			Action:        models.AuditActionConsumeReset,
			TargetID:      updated.ID,
			Identifier:    updated.Identifier,
			Success:       false,
			FailureReason: "token_expired",
		})
		return models.ErrInvalidResetToken
	}

	s.logger.InfoContext(ctx, "password reset completed", slog.String("account_id", updated.ID))
	s.audit.Record(ctx, AuditEntry{
		EventType:  models.AuditEventTypePasswordReset,
		Action:     models.AuditActionConsumeReset,
		TargetID:   updated.ID,
		Identifier: updated.Identifier,
		Success:    true,
	})
	return nil
}
