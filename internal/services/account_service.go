package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BradenHooton/cyberarcade/internal/models"
	"github.com/BradenHooton/cyberarcade/internal/repositories"
	pkgauth "github.com/BradenHooton/cyberarcade/pkg/auth"
	pkglogger "github.com/BradenHooton/cyberarcade/pkg/logger"
)

// AccountRepository is the account store. Update* methods run the mutator
// under the account's row lock and persist only when it reports a change.
type AccountRepository interface {
	GetByID(ctx context.Context, id string) (*models.Account, error)
	GetByIdentifier(ctx context.Context, identifier string) (*models.Account, error)
	Create(ctx context.Context, acct *models.Account) (*models.Account, error)
	UpdateByID(ctx context.Context, id string, mutate repositories.AccountMutator) (*models.Account, error)
	UpdateByIdentifier(ctx context.Context, identifier string, mutate repositories.AccountMutator) (*models.Account, error)
	UpdateByResetTokenHash(ctx context.Context, tokenHash string, mutate repositories.AccountMutator) (*models.Account, error)
}

// PasswordHasher derives credential hashes
type PasswordHasher interface {
	Hash(password string) (string, error)
}

// NormalizeIdentifier trims and lowercases an email identifier
func NormalizeIdentifier(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}

func validIdentifier(identifier string) bool {
	at := strings.Index(identifier, "@")
	return at > 0 && at < len(identifier)-1 && strings.Count(identifier, "@") == 1
}

// AccountService creates accounts
type AccountService struct {
	repo   AccountRepository
	hasher PasswordHasher
	audit  AuditSink
	logger *slog.Logger
	now    func() time.Time
}

// NewAccountService creates a new AccountService
func NewAccountService(repo AccountRepository, hasher PasswordHasher, audit AuditSink, logger *slog.Logger) *AccountService {
	return &AccountService{
		repo:   repo,
		hasher: hasher,
		audit:  audit,
		logger: logger,
		now:    time.Now,
	}
}

// RegisterInput carries a registration request
type RegisterInput struct {
	Identifier string
	Password   string
	Origin     string
	UserAgent  string
}

// Register creates a player account with zeroed lockout state. An identifier
// that is already taken is not reported, so responses cannot be used to
// enumerate accounts.
func (s *AccountService) Register(ctx context.Context, in RegisterInput) error {
	identifier := NormalizeIdentifier(in.Identifier)
	if !validIdentifier(identifier) {
		return fmt.Errorf("%w: invalid identifier", models.ErrBadRequest)
	}
	if err := pkgauth.ValidatePassword(in.Password); err != nil {
		return fmt.Errorf("%w: %v", models.ErrBadRequest, err)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return models.ErrInternalServer
	}

	changedAt := s.now().UTC()
	created, err := s.repo.Create(ctx, &models.Account{
		Identifier:        identifier,
		Role:              models.RolePlayer,
		CredentialHash:    &hash,
		PasswordChangedAt: &changedAt,
	})
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			s.logger.Info("registration for existing identifier ignored")
			s.audit.Record(ctx, AuditEntry{
				EventType:     models.AuditEventTypeRegister,
				Action:        models.AuditActionAccountCreated,
				Identifier:    identifier,
				Success:       false,
				FailureReason: "identifier_taken",
				IPAddress:     in.Origin,
				UserAgent:     in.UserAgent,
			})
			return nil
		}
		s.logger.Error("failed to create account", slog.Any("error", err))
		return storeError(err)
	}

	s.logger.Info("account registered", slog.String("account_id", created.ID))
	s.audit.Record(ctx, AuditEntry{
		EventType:  models.AuditEventTypeRegister,
		Action:     models.AuditActionAccountCreated,
		TargetID:   created.ID,
		Identifier: identifier,
		Success:    true,
		IPAddress:  in.Origin,
		UserAgent:  in.UserAgent,
	})
	return nil
}

// BootstrapAdmin ensures an administrator account exists for identifier.
// An existing account is promoted; its password is left alone.
func (s *AccountService) BootstrapAdmin(ctx context.Context, identifier, password string) (bool, error) {
	identifier = NormalizeIdentifier(identifier)
	if !validIdentifier(identifier) {
		return false, fmt.Errorf("%w: invalid admin identifier", models.ErrBadRequest)
	}

	existing, err := s.repo.GetByIdentifier(ctx, identifier)
	switch {
	case err == nil:
		if existing.Role == models.RoleAdmin {
			return false, nil
		}
		_, err := s.repo.UpdateByIdentifier(ctx, identifier, func(acct *models.Account) (bool, error) {
			if acct.Role == models.RoleAdmin {
				return false, nil
			}
			acct.Role = models.RoleAdmin
			return true, nil
		})
		if err != nil {
			return false, fmt.Errorf("failed to promote admin: %w", err)
		}
		s.logger.Warn("existing account promoted to admin", slog.String("account_id", existing.ID))
		return false, nil
	case !errors.Is(err, models.ErrNotFound):
		return false, fmt.Errorf("failed to look up admin: %w", err)
	}

	if err := pkgauth.ValidatePassword(password); err != nil {
		return false, fmt.Errorf("%w: admin password: %v", models.ErrBadRequest, err)
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return false, fmt.Errorf("failed to hash admin password: %w", err)
	}

	changedAt := s.now().UTC()
	created, err := s.repo.Create(ctx, &models.Account{
		Identifier:        identifier,
		Role:              models.RoleAdmin,
		CredentialHash:    &hash,
		PasswordChangedAt: &changedAt,
	})
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			return false, nil
		}
		return false, fmt.Errorf("failed to create admin: %w", err)
	}

	s.logger.Info("admin account created",
		slog.String("account_id", created.ID),
		slog.String("identifier", pkglogger.SanitizedEmail(identifier)))
	return true, nil
}

// storeError reports any non-sentinel repository failure as the store being unavailable
func storeError(err error) error {
	if errors.Is(err, models.ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
}
