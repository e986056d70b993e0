package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/BradenHooton/cyberarcade/internal/auth"
	"github.com/BradenHooton/cyberarcade/internal/lockout"
	"github.com/BradenHooton/cyberarcade/internal/metrics"
	"github.com/BradenHooton/cyberarcade/internal/models"
	"github.com/BradenHooton/cyberarcade/internal/ratelimit"
)

// LoginState names the stages a login attempt moves through
type LoginState string

const (
	StateAccepting       LoginState = "ACCEPTING"
	StateCheckLock       LoginState = "CHECK_LOCK"
	StateLockedTemp      LoginState = "LOCKED_TEMP"
	StateLockedPermanent LoginState = "LOCKED_PERMANENT"
	StateVerify          LoginState = "VERIFY"
	StateSuccess         LoginState = "SUCCESS"
	StateFail            LoginState = "FAIL"
)

// Failure reasons written to the audit trail
const (
	reasonUnknownIdentifier = "unknown_identifier"
	reasonInvalidPassword   = "invalid_credentials"
	reasonExternalIdentity  = "external_identity"
	reasonAccountLocked     = "account_locked"
)

// AttemptLimiter bounds login attempts per origin
type AttemptLimiter interface {
	Allow(ctx context.Context, origin string) ratelimit.Decision
}

// CredentialChecker verifies supplied passwords
type CredentialChecker interface {
	Verify(acct *models.Account, supplied string) auth.Verification
	EqualizeTiming(supplied string)
}

// SessionIssuer signs session tokens
type SessionIssuer interface {
	GenerateSessionToken(acct *models.Account, now time.Time) (string, time.Time, error)
}

// LoginInput is one login attempt
type LoginInput struct {
	Identifier string
	Password   string
	Origin     string
	UserAgent  string
}

// LoginResult is returned for a successful login only
type LoginResult struct {
	State                 LoginState
	Account               *models.Account
	SessionToken          string
	SessionExpiresAt      time.Time
	PasswordResetRequired bool
}

// LoginDependencies groups the collaborators of LoginService
type LoginDependencies struct {
	Accounts   AccountRepository
	Limiter    AttemptLimiter
	Verifier   CredentialChecker
	Policy     lockout.Policy
	Sessions   SessionIssuer
	Timing     *auth.TimingDelay
	Dispatcher *NotificationDispatcher
	Audit      AuditSink
	Logger     *slog.Logger
}

// LoginService runs the login state machine
type LoginService struct {
	accounts   AccountRepository
	limiter    AttemptLimiter
	verifier   CredentialChecker
	policy     lockout.Policy
	sessions   SessionIssuer
	timing     *auth.TimingDelay
	dispatcher *NotificationDispatcher
	audit      AuditSink
	logger     *slog.Logger
	now        func() time.Time
}

// NewLoginService creates a new LoginService
func NewLoginService(deps LoginDependencies) *LoginService {
	return &LoginService{
		accounts:   deps.Accounts,
		limiter:    deps.Limiter,
		verifier:   deps.Verifier,
		policy:     deps.Policy,
		sessions:   deps.Sessions,
		timing:     deps.Timing,
		dispatcher: deps.Dispatcher,
		audit:      deps.Audit,
		logger:     deps.Logger,
		now:        time.Now,
	}
}

// WithClock overrides the time source used for lock evaluation
func (s *LoginService) WithClock(now func() time.Time) *LoginService {
	s.now = now
	return s
}

// attempt carries the state of one login through the machine
type attempt struct {
	in         LoginInput
	identifier string
	started    time.Time
	state      LoginState
}

func (a *attempt) transition(s *LoginService, ctx context.Context, next LoginState) {
	s.logger.DebugContext(ctx, "login transition",
		slog.String("from", string(a.state)),
		slog.String("to", string(next)))
	a.state = next
}

// Login authenticates in against the account store. Lock outcomes are
// returned as *models.LockoutError, origin throttling as
// *models.RateLimitError, and wrong or unknown credentials as
// models.ErrInvalidCredential.
func (s *LoginService) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	a := &attempt{
		in:         in,
		identifier: NormalizeIdentifier(in.Identifier),
		started:    time.Now(),
		state:      StateAccepting,
	}

	decision := s.limiter.Allow(ctx, in.Origin)
	if !decision.Allowed {
		metrics.RecordLoginOutcome(metrics.OutcomeRateLimited)
		s.logger.WarnContext(ctx, "login rate limited",
			slog.String("origin", in.Origin),
			slog.Duration("retry_after", decision.RetryAfter))
		return nil, &models.RateLimitError{RetryAfter: decision.RetryAfter}
	}

	a.transition(s, ctx, StateCheckLock)
	snapshot, err := s.accounts.GetByIdentifier(ctx, a.identifier)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.verifier.EqualizeTiming(in.Password)
			s.recordFailure(ctx, a, "", reasonUnknownIdentifier)
			return nil, s.reject(ctx, a, models.ErrInvalidCredential)
		}
		return nil, s.storeFailure(ctx, a, err)
	}

	if status := lockout.StatusOf(snapshot, s.now()); status.Active {
		return nil, s.locked(ctx, a, snapshot, status)
	}

	a.transition(s, ctx, StateVerify)
	verification := s.verifier.Verify(snapshot, in.Password)
	if verification.External {
		// No local hash to compare; burn the same bcrypt time as a miss.
		s.verifier.EqualizeTiming(in.Password)
		s.recordFailure(ctx, a, snapshot.ID, reasonExternalIdentity)
		return nil, s.reject(ctx, a, models.ErrInvalidCredential)
	}

	var (
		lockedBy  *lockout.Status
		engaged   *lockout.Step
		external  bool
		succeeded bool
	)
	updated, err := s.accounts.UpdateByID(ctx, snapshot.ID, func(acct *models.Account) (bool, error) {
		lockedBy, engaged, external, succeeded = nil, nil, false, false
		now := s.now()

		// A concurrent failure may have engaged a lock since the snapshot.
		if status := lockout.StatusOf(acct, now); status.Active {
			lockedBy = &status
			return false, nil
		}
		changed := lockout.ClearExpired(acct, now)

		ok := verification.OK
		if !sameHash(acct.CredentialHash, snapshot.CredentialHash) {
			v := s.verifier.Verify(acct, in.Password)
			if v.External {
				external = true
				return changed, nil
			}
			ok = v.OK
		}

		ts := now.UTC()
		if ok {
			acct.ClearLockout()
			acct.LastSuccessAt = &ts
			succeeded = true
			return true, nil
		}

		acct.ConsecutiveFailures++
		acct.TotalFailures++
		acct.LastFailedAt = &ts
		if step, ok := s.policy.Escalation(acct.ConsecutiveFailures); ok && int(step.Stage) >= acct.LockoutStage {
			step.Apply(acct, ts)
			engaged = &step
		}
		return true, nil
	})
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.recordFailure(ctx, a, "", reasonUnknownIdentifier)
			return nil, s.reject(ctx, a, models.ErrInvalidCredential)
		}
		return nil, s.storeFailure(ctx, a, err)
	}

	switch {
	case lockedBy != nil:
		return nil, s.locked(ctx, a, updated, *lockedBy)
	case external:
		s.verifier.EqualizeTiming(in.Password)
		s.recordFailure(ctx, a, updated.ID, reasonExternalIdentity)
		return nil, s.reject(ctx, a, models.ErrInvalidCredential)
	case succeeded:
		return s.succeed(ctx, a, updated)
	case engaged != nil:
		return nil, s.engage(ctx, a, updated, *engaged)
	default:
		s.recordFailure(ctx, a, updated.ID, reasonInvalidPassword)
		return nil, s.reject(ctx, a, models.ErrInvalidCredential)
	}
}

func (s *LoginService) succeed(ctx context.Context, a *attempt, acct *models.Account) (*LoginResult, error) {
	token, expiresAt, err := s.sessions.GenerateSessionToken(acct, s.now())
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to issue session token",
			slog.String("account_id", acct.ID),
			slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	a.transition(s, ctx, StateSuccess)
	metrics.RecordLoginOutcome(metrics.OutcomeSuccess)
	s.logger.InfoContext(ctx, "login succeeded", slog.String("account_id", acct.ID))
	s.audit.Record(ctx, AuditEntry{
		EventType:  models.AuditEventTypeLogin,
		Action:     models.AuditActionLoginSucceeded,
		TargetID:   acct.ID,
		Identifier: a.identifier,
		Success:    true,
		IPAddress:  a.in.Origin,
		UserAgent:  a.in.UserAgent,
	})
	s.timing.WaitFrom(ctx, a.started, true)

	return &LoginResult{
		State:                 StateSuccess,
		Account:               acct,
		SessionToken:          token,
		SessionExpiresAt:      expiresAt,
		PasswordResetRequired: acct.PasswordResetRequired,
	}, nil
}

func (s *LoginService) engage(ctx context.Context, a *attempt, acct *models.Account, step lockout.Step) error {
	metrics.RecordLockoutEngaged(int(step.Stage), step.Permanent)
	s.logger.WarnContext(ctx, "lockout engaged",
		slog.String("account_id", acct.ID),
		slog.Int("stage", int(step.Stage)),
		slog.Bool("permanent", step.Permanent),
		slog.Int("consecutive_failures", acct.ConsecutiveFailures))

	s.audit.Record(ctx, AuditEntry{
		EventType:     models.AuditEventTypeLockout,
		Action:        models.AuditActionLockoutEngaged,
		TargetID:      acct.ID,
		Identifier:    a.identifier,
		Success:       false,
		FailureReason: reasonInvalidPassword,
		IPAddress:     a.in.Origin,
		UserAgent:     a.in.UserAgent,
		Metadata: map[string]string{
			"stage":                itoa(int(step.Stage)),
			"permanent":            boolString(step.Permanent),
			"consecutive_failures": itoa(acct.ConsecutiveFailures),
		},
	})

	s.dispatcher.Dispatch(acct.Identifier, models.LockoutEngaged{
		Stage:               int(step.Stage),
		Permanent:           step.Permanent,
		ExpiresAt:           acct.LockoutExpiresAt,
		ConsecutiveFailures: acct.ConsecutiveFailures,
	})

	status := lockout.StatusOf(acct, s.now())
	if !status.Active {
		// Zero-length durations expire immediately; report a plain failure.
		return s.reject(ctx, a, models.ErrInvalidCredential)
	}
	return s.lockedResult(ctx, a, status)
}

func (s *LoginService) locked(ctx context.Context, a *attempt, acct *models.Account, status lockout.Status) error {
	s.logger.InfoContext(ctx, "login blocked by lockout",
		slog.String("account_id", acct.ID),
		slog.Int("stage", int(status.Stage)),
		slog.Bool("permanent", status.Permanent))
	s.recordFailure(ctx, a, acct.ID, reasonAccountLocked)
	return s.lockedResult(ctx, a, status)
}

func (s *LoginService) lockedResult(ctx context.Context, a *attempt, status lockout.Status) error {
	if status.Permanent {
		a.transition(s, ctx, StateLockedPermanent)
		metrics.RecordLoginOutcome(metrics.OutcomePermanentLock)
	} else {
		a.transition(s, ctx, StateLockedTemp)
		metrics.RecordLoginOutcome(metrics.OutcomeTemporaryLock)
	}
	s.timing.WaitFrom(ctx, a.started, false)
	return status.Err()
}

func (s *LoginService) reject(ctx context.Context, a *attempt, err error) error {
	a.transition(s, ctx, StateFail)
	metrics.RecordLoginOutcome(metrics.OutcomeInvalid)
	s.timing.WaitFrom(ctx, a.started, false)
	return err
}

func (s *LoginService) storeFailure(ctx context.Context, a *attempt, err error) error {
	a.transition(s, ctx, StateFail)
	metrics.RecordLoginOutcome(metrics.OutcomeStoreUnavailable)
	s.logger.ErrorContext(ctx, "account store unavailable during login", slog.Any("error", err))
	return storeError(err)
}

func (s *LoginService) recordFailure(ctx context.Context, a *attempt, accountID, reason string) {
	s.logger.InfoContext(ctx, "login failed", slog.String("reason", reason))
	s.audit.Record(ctx, AuditEntry{
		EventType:     models.AuditEventTypeLogin,
		Action:        models.AuditActionLoginFailed,
		TargetID:      accountID,
		Identifier:    a.identifier,
		Success:       false,
		FailureReason: reason,
		IPAddress:     a.in.Origin,
		UserAgent:     a.in.UserAgent,
	})
}

func sameHash(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
