package models

import (
	"fmt"
	"time"
)

// NotificationKind identifies a notification variant
type NotificationKind string

const (
	NotificationLockoutEngaged      NotificationKind = "lockout_engaged"
	NotificationAccountUnlocked     NotificationKind = "account_unlocked"
	NotificationPasswordResetIssued NotificationKind = "password_reset_issued"
)

// Notification is the closed set of events delivered to the notification sink.
// Only the variants in this file implement it.
type Notification interface {
	Kind() NotificationKind
	Validate() error
	Metadata() map[string]string
	notification()
}

// LockoutEngaged is sent when a failed attempt escalates the lockout stage.
type LockoutEngaged struct {
	Stage               int
	Permanent           bool
	ExpiresAt           *time.Time
	ConsecutiveFailures int
}

func (LockoutEngaged) Kind() NotificationKind { return NotificationLockoutEngaged }
func (LockoutEngaged) notification()          {}

func (n LockoutEngaged) Validate() error {
	if n.Stage < 1 || n.Stage > 3 {
		return fmt.Errorf("%w: stage %d out of range", ErrInvalidNotification, n.Stage)
	}
	if n.Permanent && n.ExpiresAt != nil {
		return fmt.Errorf("%w: permanent lock cannot expire", ErrInvalidNotification)
	}
	if !n.Permanent && n.ExpiresAt == nil {
		return fmt.Errorf("%w: temporary lock requires expiry", ErrInvalidNotification)
	}
	return nil
}

func (n LockoutEngaged) Metadata() map[string]string {
	m := map[string]string{
		"stage":                fmt.Sprintf("%d", n.Stage),
		"permanent":            fmt.Sprintf("%t", n.Permanent),
		"consecutive_failures": fmt.Sprintf("%d", n.ConsecutiveFailures),
	}
	if n.ExpiresAt != nil {
		m["expires_at"] = n.ExpiresAt.UTC().Format(time.RFC3339)
	}
	return m
}

// AccountUnlocked is sent after an administrator clears a lock.
type AccountUnlocked struct {
	By string
	At time.Time
}

func (AccountUnlocked) Kind() NotificationKind { return NotificationAccountUnlocked }
func (AccountUnlocked) notification()          {}

func (n AccountUnlocked) Validate() error {
	if n.By == "" {
		return fmt.Errorf("%w: missing administrator", ErrInvalidNotification)
	}
	if n.At.IsZero() {
		return fmt.Errorf("%w: missing unlock time", ErrInvalidNotification)
	}
	return nil
}

func (n AccountUnlocked) Metadata() map[string]string {
	return map[string]string{
		"unlocked_by": n.By,
		"unlocked_at": n.At.UTC().Format(time.RFC3339),
	}
}

// PasswordResetIssued carries the plaintext reset token out-of-band.
// Metadata deliberately omits the token so it never reaches logs.
type PasswordResetIssued struct {
	Token      string
	ExpiresAt  time.Time
	ApprovedBy string
}

func (PasswordResetIssued) Kind() NotificationKind { return NotificationPasswordResetIssued }
func (PasswordResetIssued) notification()          {}

func (n PasswordResetIssued) Validate() error {
	if n.Token == "" {
		return fmt.Errorf("%w: missing token", ErrInvalidNotification)
	}
	if n.ExpiresAt.IsZero() {
		return fmt.Errorf("%w: missing token expiry", ErrInvalidNotification)
	}
	return nil
}

func (n PasswordResetIssued) Metadata() map[string]string {
	return map[string]string{
		"expires_at":  n.ExpiresAt.UTC().Format(time.RFC3339),
		"approved_by": n.ApprovedBy,
	}
}
