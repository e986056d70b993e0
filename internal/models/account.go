package models

import (
	"time"
)

// Account roles
const (
	RolePlayer = "player"
	RoleAdmin  = "admin"
)

// Account is an identity record with authentication and lockout state.
type Account struct {
	ID                  string
	Identifier          string  // normalized email address
	Role                string  // "player" or "admin"
	CredentialHash      *string // nil for externally authenticated identities
	ConsecutiveFailures int
	TotalFailures       int // never reset
	LockoutStage        int // 0 = not locked, 1..3
	LockoutExpiresAt    *time.Time
	IsPermanentlyLocked bool
	LastFailedAt        *time.Time
	LastSuccessAt       *time.Time

	PasswordResetRequired       bool
	PasswordResetTokenHash      *string
	PasswordResetTokenExpiresAt *time.Time
	PasswordResetApprovedBy     *string
	PasswordResetApprovedAt     *time.Time
	PasswordChangedAt           *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsExternal reports whether the account authenticates through an external identity provider.
func (a *Account) IsExternal() bool {
	return a.CredentialHash == nil
}

// ClearLockout zeroes every lockout field. TotalFailures is left untouched.
func (a *Account) ClearLockout() {
	a.ConsecutiveFailures = 0
	a.LockoutStage = 0
	a.LockoutExpiresAt = nil
	a.IsPermanentlyLocked = false
}

// ClearResetToken removes any pending password reset token.
func (a *Account) ClearResetToken() {
	a.PasswordResetTokenHash = nil
	a.PasswordResetTokenExpiresAt = nil
}

// Clone returns a deep copy so callers can mutate without aliasing pointer fields.
func (a *Account) Clone() *Account {
	c := *a
	c.CredentialHash = cloneString(a.CredentialHash)
	c.LockoutExpiresAt = cloneTime(a.LockoutExpiresAt)
	c.LastFailedAt = cloneTime(a.LastFailedAt)
	c.LastSuccessAt = cloneTime(a.LastSuccessAt)
	c.PasswordResetTokenHash = cloneString(a.PasswordResetTokenHash)
	c.PasswordResetTokenExpiresAt = cloneTime(a.PasswordResetTokenExpiresAt)
	c.PasswordResetApprovedBy = cloneString(a.PasswordResetApprovedBy)
	c.PasswordResetApprovedAt = cloneTime(a.PasswordResetApprovedAt)
	c.PasswordChangedAt = cloneTime(a.PasswordChangedAt)
	return &c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
