package services

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/BradenHooton/cyberarcade/internal/auth"
	"github.com/BradenHooton/cyberarcade/internal/lockout"
	"github.com/BradenHooton/cyberarcade/internal/models"
	"github.com/BradenHooton/cyberarcade/internal/ratelimit"
	"github.com/BradenHooton/cyberarcade/internal/repositories"
	pkgauth "github.com/BradenHooton/cyberarcade/pkg/auth"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	testIdentifier = "user@example.com"
	testPassword   = "Arcade-Pass1"
	testSecret     = "test-secret-key-that-is-at-least-32-bytes-long"
)

// FakeAccountRepository is an in-memory AccountRepository. Updates are
// serialized by a mutex, standing in for the row lock.
type FakeAccountRepository struct {
	mu       sync.Mutex
	accounts map[string]*models.Account

	// Err, when set, is returned by every call
	Err error
	// BeforeUpdate runs under the lock before the mutator sees the account
	BeforeUpdate func(acct *models.Account)

	GetByIdentifierFunc func(ctx context.Context, identifier string) (*models.Account, error)
	UpdateByIDFunc      func(ctx context.Context, id string, mutate repositories.AccountMutator) (*models.Account, error)

	Writes int
}

func NewFakeAccountRepository(accounts ...*models.Account) *FakeAccountRepository {
	r := &FakeAccountRepository{accounts: make(map[string]*models.Account)}
	for _, a := range accounts {
		r.accounts[a.ID] = a.Clone()
	}
	return r
}

func (r *FakeAccountRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	a, ok := r.accounts[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return a.Clone(), nil
}

func (r *FakeAccountRepository) GetByIdentifier(ctx context.Context, identifier string) (*models.Account, error) {
	if r.GetByIdentifierFunc != nil {
		return r.GetByIdentifierFunc(ctx, identifier)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	a := r.findLocked(func(a *models.Account) bool { return a.Identifier == identifier })
	if a == nil {
		return nil, models.ErrNotFound
	}
	return a.Clone(), nil
}

func (r *FakeAccountRepository) Create(ctx context.Context, acct *models.Account) (*models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	if r.findLocked(func(a *models.Account) bool { return a.Identifier == acct.Identifier }) != nil {
		return nil, models.ErrConflict
	}
	c := acct.Clone()
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.Role == "" {
		c.Role = models.RolePlayer
	}
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt
	r.accounts[c.ID] = c
	return c.Clone(), nil
}

func (r *FakeAccountRepository) UpdateByID(ctx context.Context, id string, mutate repositories.AccountMutator) (*models.Account, error) {
	if r.UpdateByIDFunc != nil {
		return r.UpdateByIDFunc(ctx, id, mutate)
	}
	return r.update(func(a *models.Account) bool { return a.ID == id }, mutate)
}

func (r *FakeAccountRepository) UpdateByIdentifier(ctx context.Context, identifier string, mutate repositories.AccountMutator) (*models.Account, error) {
	return r.update(func(a *models.Account) bool { return a.Identifier == identifier }, mutate)
}

func (r *FakeAccountRepository) UpdateByResetTokenHash(ctx context.Context, tokenHash string, mutate repositories.AccountMutator) (*models.Account, error) {
	return r.update(func(a *models.Account) bool {
		return a.PasswordResetTokenHash != nil && *a.PasswordResetTokenHash == tokenHash
	}, mutate)
}

func (r *FakeAccountRepository) update(match func(*models.Account) bool, mutate repositories.AccountMutator) (*models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	stored := r.findLocked(match)
	if stored == nil {
		return nil, models.ErrNotFound
	}
	if r.BeforeUpdate != nil {
		r.BeforeUpdate(stored)
	}

	working := stored.Clone()
	changed, err := mutate(working)
	if err != nil {
		return nil, err
	}
	if !changed {
		return working, nil
	}
	working.UpdatedAt = time.Now()
	r.accounts[working.ID] = working.Clone()
	r.Writes++
	return working, nil
}

// Get returns the stored copy of the account with identifier
func (r *FakeAccountRepository) Get(identifier string) *models.Account {
	r.mu.Lock()
	defer r.mu.Unlock()
	a := r.findLocked(func(a *models.Account) bool { return a.Identifier == identifier })
	if a == nil {
		return nil
	}
	return a.Clone()
}

func (r *FakeAccountRepository) findLocked(match func(*models.Account) bool) *models.Account {
	for _, a := range r.accounts {
		if match(a) {
			return a
		}
	}
	return nil
}

// MockAuditSink records audit entries
type MockAuditSink struct {
	mu      sync.Mutex
	Entries []AuditEntry
}

func (m *MockAuditSink) Record(ctx context.Context, entry AuditEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Entries = append(m.Entries, entry)
}

// Actions returns the recorded actions in order
func (m *MockAuditSink) Actions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.Entries))
	for _, e := range m.Entries {
		out = append(out, e.Action)
	}
	return out
}

// MockNotifier implements Notifier for testing
type MockNotifier struct {
	mu         sync.Mutex
	NotifyFunc func(ctx context.Context, recipient string, n models.Notification) error
	Sent       []models.Notification
	Recipients []string
}

func (m *MockNotifier) Notify(ctx context.Context, recipient string, n models.Notification) error {
	m.mu.Lock()
	m.Sent = append(m.Sent, n)
	m.Recipients = append(m.Recipients, recipient)
	m.mu.Unlock()
	if m.NotifyFunc != nil {
		return m.NotifyFunc(ctx, recipient, n)
	}
	return nil
}

func (m *MockNotifier) Notifications() []models.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Notification(nil), m.Sent...)
}

// MockCredentialChecker wraps a CredentialChecker and counts how often each
// method runs
type MockCredentialChecker struct {
	mu            sync.Mutex
	Inner         CredentialChecker
	VerifyCalls   int
	EqualizeCalls int
}

func (m *MockCredentialChecker) Verify(acct *models.Account, supplied string) auth.Verification {
	m.mu.Lock()
	m.VerifyCalls++
	m.mu.Unlock()
	return m.Inner.Verify(acct, supplied)
}

func (m *MockCredentialChecker) EqualizeTiming(supplied string) {
	m.mu.Lock()
	m.EqualizeCalls++
	m.mu.Unlock()
	m.Inner.EqualizeTiming(supplied)
}

// countVerifier swaps the fixture's verifier for a counting wrapper
func (f *loginFixture) countVerifier() *MockCredentialChecker {
	checker := &MockCredentialChecker{Inner: f.service.verifier}
	f.service.verifier = checker
	return checker
}

// MockAuditTrail implements AuditTrail for testing
type MockAuditTrail struct {
	RecentForAccountFunc func(ctx context.Context, accountID string, limit int) ([]*models.AuditLog, error)
}

func (m *MockAuditTrail) RecentForAccount(ctx context.Context, accountID string, limit int) ([]*models.AuditLog, error) {
	if m.RecentForAccountFunc != nil {
		return m.RecentForAccountFunc(ctx, accountID, limit)
	}
	return nil, nil
}

// MockAuditLogRepository implements AuditLogRepository for testing
type MockAuditLogRepository struct {
	CreateFunc        func(ctx context.Context, log *models.AuditLog) (*models.AuditLog, error)
	GetByTargetIDFunc func(ctx context.Context, targetID uuid.UUID, limit int) ([]*models.AuditLog, error)
}

func (m *MockAuditLogRepository) Create(ctx context.Context, log *models.AuditLog) (*models.AuditLog, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, log)
	}
	return log, nil
}

func (m *MockAuditLogRepository) GetByTargetID(ctx context.Context, targetID uuid.UUID, limit int) ([]*models.AuditLog, error) {
	if m.GetByTargetIDFunc != nil {
		return m.GetByTargetIDFunc(ctx, targetID, limit)
	}
	return nil, nil
}

// MockAttemptLimiter implements AttemptLimiter for testing
type MockAttemptLimiter struct {
	AllowFunc func(ctx context.Context, origin string) ratelimit.Decision
}

func (m *MockAttemptLimiter) Allow(ctx context.Context, origin string) ratelimit.Decision {
	if m.AllowFunc != nil {
		return m.AllowFunc(ctx, origin)
	}
	return ratelimit.Decision{Allowed: true, Count: 1, Remaining: 4}
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// NewTestAccount creates a player account whose password is testPassword
func NewTestAccount(identifier string) *models.Account {
	hash, err := pkgauth.HashPasswordWithCost(testPassword, bcrypt.MinCost)
	if err != nil {
		panic(err)
	}
	now := time.Now()
	return &models.Account{
		ID:             uuid.New().String(),
		Identifier:     identifier,
		Role:           models.RolePlayer,
		CredentialHash: &hash,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// NewTestExternalAccount creates an account with no local credential
func NewTestExternalAccount(identifier string) *models.Account {
	a := NewTestAccount(identifier)
	a.CredentialHash = nil
	return a
}

// NewTestLockedAccount creates an account inside a temporary stage-one lock
func NewTestLockedAccount(identifier string, expiresAt time.Time) *models.Account {
	a := NewTestAccount(identifier)
	a.ConsecutiveFailures = 3
	a.TotalFailures = 3
	a.LockoutStage = 1
	a.LockoutExpiresAt = &expiresAt
	return a
}

// NewTestPermanentlyLockedAccount creates an account that reached the permanent lock
func NewTestPermanentlyLockedAccount(identifier string) *models.Account {
	a := NewTestAccount(identifier)
	a.ConsecutiveFailures = 12
	a.TotalFailures = 12
	a.LockoutStage = 3
	a.IsPermanentlyLocked = true
	return a
}

type loginFixture struct {
	repo       *FakeAccountRepository
	audit      *MockAuditSink
	notifier   *MockNotifier
	dispatcher *NotificationDispatcher
	limiter    *ratelimit.Limiter
	clock      *fakeClock
	tm         *auth.TokenManager
	service    *LoginService
}

func newLoginFixture(accounts ...*models.Account) *loginFixture {
	clock := newFakeClock()
	logger := testLogger()
	repo := NewFakeAccountRepository(accounts...)
	audit := &MockAuditSink{}
	notifier := &MockNotifier{}
	dispatcher := NewNotificationDispatcher(notifier, logger, time.Second)
	limiter := ratelimit.New(
		ratelimit.NewMemoryStore().WithClock(clock.Now),
		ratelimit.Config{MaxAttempts: 5, Window: time.Minute, Scope: "login"},
		logger,
	).WithClock(clock.Now)
	verifier, err := auth.NewCredentialVerifier(bcrypt.MinCost)
	if err != nil {
		panic(err)
	}
	tm := auth.NewTokenManager(testSecret, time.Hour)

	service := NewLoginService(LoginDependencies{
		Accounts:   repo,
		Limiter:    limiter,
		Verifier:   verifier,
		Policy:     lockout.DefaultPolicy(),
		Sessions:   tm,
		Dispatcher: dispatcher,
		Audit:      audit,
		Logger:     logger,
	}).WithClock(clock.Now)

	return &loginFixture{
		repo:       repo,
		audit:      audit,
		notifier:   notifier,
		dispatcher: dispatcher,
		limiter:    limiter,
		clock:      clock,
		tm:         tm,
		service:    service,
	}
}

// login attempts with a fresh origin each time so the origin limiter stays out of the way
func (f *loginFixture) login(identifier, password string) (*LoginResult, error) {
	return f.service.Login(context.Background(), LoginInput{
		Identifier: identifier,
		Password:   password,
		Origin:     uuid.New().String(),
		UserAgent:  "test-agent",
	})
}
