package models

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Login outcomes
	ErrRateLimited         = errors.New("too many login attempts from origin")
	ErrInvalidCredential   = errors.New("invalid identifier or password")
	ErrAccountLocked       = errors.New("account is locked")
	ErrStoreUnavailable    = errors.New("account store unavailable")
	ErrInvalidResetToken   = errors.New("invalid or expired password reset token")
	ErrInvalidNotification = errors.New("invalid notification payload")
)

// LockoutError reports an active lock. It matches ErrAccountLocked with errors.Is.
type LockoutError struct {
	Permanent        bool
	Stage            int
	ExpiresAt        *time.Time
	RemainingSeconds int64
}

func (e *LockoutError) Error() string {
	if e.Permanent {
		return "account is permanently locked"
	}
	return fmt.Sprintf("account is locked for %d more seconds", e.RemainingSeconds)
}

func (e *LockoutError) Is(target error) bool {
	return target == ErrAccountLocked
}

// RateLimitError carries the retry hint for a rejected origin. It matches ErrRateLimited.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return ErrRateLimited.Error()
}

func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}
