package lockout

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/BradenHooton/cyberarcade/internal/models"
)

// Stage is the ordinal lockout severity. 0 means not locked.
type Stage int

const (
	StageNone Stage = iota
	StageOne
	StageTwo
	StageThree
)

// Step is one row of the escalation table.
type Step struct {
	Threshold int
	Stage     Stage
	Duration  time.Duration // zero when Permanent
	Permanent bool
}

// Policy maps consecutive failure counts to lockout steps.
// Steps must be ordered by strictly increasing Threshold.
type Policy struct {
	Steps []Step
}

var ErrInvalidPolicy = errors.New("invalid lockout policy")

// DefaultPolicy returns the 3/6/9/12 escalation table.
func DefaultPolicy() Policy {
	return Policy{Steps: []Step{
		{Threshold: 3, Stage: StageOne, Duration: 30 * time.Minute},
		{Threshold: 6, Stage: StageTwo, Duration: 3 * time.Hour},
		{Threshold: 9, Stage: StageThree, Duration: 24 * time.Hour},
		{Threshold: 12, Stage: StageThree, Permanent: true},
	}}
}

// Validate checks the table is usable: thresholds strictly increasing,
// stages non-decreasing within 1..3, only the final step permanent.
func (p Policy) Validate() error {
	if len(p.Steps) == 0 {
		return fmt.Errorf("%w: no steps", ErrInvalidPolicy)
	}

	prevThreshold := 0
	prevStage := StageNone
	for i, s := range p.Steps {
		if s.Threshold <= prevThreshold {
			return fmt.Errorf("%w: threshold %d at step %d is not above %d", ErrInvalidPolicy, s.Threshold, i, prevThreshold)
		}
		if s.Stage < StageOne || s.Stage > StageThree {
			return fmt.Errorf("%w: stage %d out of range", ErrInvalidPolicy, s.Stage)
		}
		if s.Stage < prevStage {
			return fmt.Errorf("%w: stage decreases at step %d", ErrInvalidPolicy, i)
		}
		if s.Permanent && i != len(p.Steps)-1 {
			return fmt.Errorf("%w: only the last step may be permanent", ErrInvalidPolicy)
		}
		if !s.Permanent && s.Duration <= 0 {
			return fmt.Errorf("%w: temporary step %d needs a positive duration", ErrInvalidPolicy, i)
		}
		prevThreshold = s.Threshold
		prevStage = s.Stage
	}
	return nil
}

// StageFor returns the stage for the highest threshold met or exceeded.
func (p Policy) StageFor(consecutiveFailures int) Stage {
	stage := StageNone
	for _, s := range p.Steps {
		if consecutiveFailures >= s.Threshold {
			stage = s.Stage
		}
	}
	return stage
}

// PermanentAt reports whether the count is at or beyond the permanent threshold.
func (p Policy) PermanentAt(consecutiveFailures int) bool {
	for _, s := range p.Steps {
		if s.Permanent && consecutiveFailures >= s.Threshold {
			return true
		}
	}
	return false
}

// Escalation returns the step engaged by a failure that brings the count
// exactly onto a threshold. Counts between thresholds engage nothing.
func (p Policy) Escalation(consecutiveFailures int) (Step, bool) {
	for _, s := range p.Steps {
		if s.Threshold == consecutiveFailures {
			return s, true
		}
	}
	return Step{}, false
}

// Apply writes the step onto the account's lockout fields.
func (s Step) Apply(acct *models.Account, now time.Time) {
	acct.LockoutStage = int(s.Stage)
	if s.Permanent {
		acct.IsPermanentlyLocked = true
		acct.LockoutExpiresAt = nil
		return
	}
	expires := now.Add(s.Duration)
	acct.LockoutExpiresAt = &expires
}

// RemainingSeconds rounds up so a lock never reports 0 while still active.
func RemainingSeconds(expiresAt *time.Time, now time.Time) int64 {
	if expiresAt == nil {
		return 0
	}
	d := expiresAt.Sub(now)
	if d <= 0 {
		return 0
	}
	return int64(math.Ceil(d.Seconds()))
}

// IsActive reports whether the account is locked at now.
func IsActive(acct *models.Account, now time.Time) bool {
	if acct.IsPermanentlyLocked {
		return true
	}
	return acct.LockoutExpiresAt != nil && acct.LockoutExpiresAt.After(now)
}

// IsStale reports a temporary lock whose expiry has passed but whose fields were never cleared.
func IsStale(acct *models.Account, now time.Time) bool {
	if acct.IsPermanentlyLocked {
		return false
	}
	if acct.LockoutStage == 0 && acct.LockoutExpiresAt == nil {
		return false
	}
	return !IsActive(acct, now)
}

// ClearExpired resets stale lock fields. ConsecutiveFailures is kept so
// later thresholds still escalate. Returns true if anything changed.
func ClearExpired(acct *models.Account, now time.Time) bool {
	if !IsStale(acct, now) {
		return false
	}
	acct.LockoutStage = 0
	acct.LockoutExpiresAt = nil
	return true
}

// Status is a point-in-time view of an account's lock.
type Status struct {
	Active           bool
	Permanent        bool
	Stage            Stage
	ExpiresAt        *time.Time
	RemainingSeconds int64
}

// StatusOf evaluates the account's lock at now without mutating it.
func StatusOf(acct *models.Account, now time.Time) Status {
	if !IsActive(acct, now) {
		return Status{}
	}
	if acct.IsPermanentlyLocked {
		return Status{Active: true, Permanent: true, Stage: Stage(acct.LockoutStage)}
	}
	return Status{
		Active:           true,
		Stage:            Stage(acct.LockoutStage),
		ExpiresAt:        acct.LockoutExpiresAt,
		RemainingSeconds: RemainingSeconds(acct.LockoutExpiresAt, now),
	}
}

// Err converts an active status into the error returned to callers.
func (s Status) Err() error {
	if !s.Active {
		return nil
	}
	return &models.LockoutError{
		Permanent:        s.Permanent,
		Stage:            int(s.Stage),
		ExpiresAt:        s.ExpiresAt,
		RemainingSeconds: s.RemainingSeconds,
	}
}
