package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/cyberarcade/internal/database"
	"github.com/BradenHooton/cyberarcade/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// AccountMutator edits an account under its row lock. Returning false skips the write.
type AccountMutator func(acct *models.Account) (bool, error)

type AccountRepository struct {
	db *database.DB
}

func NewAccountRepository(db *database.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

const accountColumns = `
	id, identifier, role, credential_hash,
	consecutive_failures, total_failures, lockout_stage, lockout_expires_at, is_permanently_locked,
	last_failed_at, last_success_at,
	password_reset_required, password_reset_token_hash, password_reset_token_expires_at,
	password_reset_approved_by, password_reset_approved_at, password_changed_at,
	created_at, updated_at`

// rowScanner interface for scanning account rows (pgx.Row and pgx.Rows)
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAccountRow(scanner rowScanner) (*models.Account, error) {
	var a models.Account
	err := scanner.Scan(
		&a.ID, &a.Identifier, &a.Role, &a.CredentialHash,
		&a.ConsecutiveFailures, &a.TotalFailures, &a.LockoutStage, &a.LockoutExpiresAt, &a.IsPermanentlyLocked,
		&a.LastFailedAt, &a.LastSuccessAt,
		&a.PasswordResetRequired, &a.PasswordResetTokenHash, &a.PasswordResetTokenExpiresAt,
		&a.PasswordResetApprovedBy, &a.PasswordResetApprovedAt, &a.PasswordChangedAt,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &a, nil
}

func (r *AccountRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	query := `SELECT` + accountColumns + ` FROM accounts WHERE id = $1`
	return scanAccountRow(r.db.Pool.QueryRow(ctx, query, id))
}

func (r *AccountRepository) GetByIdentifier(ctx context.Context, identifier string) (*models.Account, error) {
	query := `SELECT` + accountColumns + ` FROM accounts WHERE identifier = $1`
	return scanAccountRow(r.db.Pool.QueryRow(ctx, query, identifier))
}

// Create inserts an account with zeroed lockout state.
func (r *AccountRepository) Create(ctx context.Context, acct *models.Account) (*models.Account, error) {
	if acct.ID == "" {
		acct.ID = uuid.New().String()
	}
	if acct.Role == "" {
		acct.Role = models.RolePlayer
	}
	now := time.Now().UTC()

	query := `
		INSERT INTO accounts (id, identifier, role, credential_hash, password_changed_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		RETURNING` + accountColumns

	return scanAccountRow(r.db.Pool.QueryRow(ctx, query,
		acct.ID, acct.Identifier, acct.Role, acct.CredentialHash, acct.PasswordChangedAt, now,
	))
}

// UpdateByID applies mutate to the account while holding its row lock.
func (r *AccountRepository) UpdateByID(ctx context.Context, id string, mutate AccountMutator) (*models.Account, error) {
	return r.updateWhere(ctx, "id", id, mutate)
}

// UpdateByIdentifier is UpdateByID keyed by identifier.
func (r *AccountRepository) UpdateByIdentifier(ctx context.Context, identifier string, mutate AccountMutator) (*models.Account, error) {
	return r.updateWhere(ctx, "identifier", identifier, mutate)
}

// UpdateByResetTokenHash locks the account holding the given reset token hash.
func (r *AccountRepository) UpdateByResetTokenHash(ctx context.Context, tokenHash string, mutate AccountMutator) (*models.Account, error) {
	return r.updateWhere(ctx, "password_reset_token_hash", tokenHash, mutate)
}

// updateWhere serializes read-modify-write on one account with SELECT ... FOR UPDATE.
// column is always one of the fixed names above, never caller input.
func (r *AccountRepository) updateWhere(ctx context.Context, column, value string, mutate AccountMutator) (*models.Account, error) {
	var result *models.Account

	err := r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		selectQuery := `SELECT` + accountColumns + ` FROM accounts WHERE ` + column + ` = $1 FOR UPDATE`
		acct, err := scanAccountRow(tx.QueryRow(ctx, selectQuery, value))
		if err != nil {
			return err
		}

		changed, err := mutate(acct)
		if err != nil {
			return err
		}
		if !changed {
			result = acct
			return nil
		}

		updated, err := writeAccount(ctx, tx, acct)
		if err != nil {
			return err
		}
		result = updated
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func writeAccount(ctx context.Context, tx pgx.Tx, a *models.Account) (*models.Account, error) {
	query := `
		UPDATE accounts SET
			role = $2,
			credential_hash = $3,
			consecutive_failures = $4,
			total_failures = $5,
			lockout_stage = $6,
			lockout_expires_at = $7,
			is_permanently_locked = $8,
			last_failed_at = $9,
			last_success_at = $10,
			password_reset_required = $11,
			password_reset_token_hash = $12,
			password_reset_token_expires_at = $13,
			password_reset_approved_by = $14,
			password_reset_approved_at = $15,
			password_changed_at = $16,
			updated_at = NOW()
		WHERE id = $1
		RETURNING` + accountColumns

	updated, err := scanAccountRow(tx.QueryRow(ctx, query,
		a.ID, a.Role, a.CredentialHash,
		a.ConsecutiveFailures, a.TotalFailures, a.LockoutStage, a.LockoutExpiresAt, a.IsPermanentlyLocked,
		a.LastFailedAt, a.LastSuccessAt,
		a.PasswordResetRequired, a.PasswordResetTokenHash, a.PasswordResetTokenExpiresAt,
		a.PasswordResetApprovedBy, a.PasswordResetApprovedAt, a.PasswordChangedAt,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to write account: %w", err)
	}
	return updated, nil
}

// ClearExpiredResetTokens removes reset tokens whose expiry has passed.
// The reset-required flag is kept so the account still has to reset.
func (r *AccountRepository) ClearExpiredResetTokens(ctx context.Context, now time.Time) (int64, error) {
	query := `
		UPDATE accounts
		SET password_reset_token_hash = NULL, password_reset_token_expires_at = NULL, updated_at = NOW()
		WHERE password_reset_token_expires_at IS NOT NULL AND password_reset_token_expires_at <= $1
	`

	result, err := r.db.Pool.Exec(ctx, query, now)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return result.RowsAffected(), nil
}
