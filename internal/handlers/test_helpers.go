package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BradenHooton/cyberarcade/internal/auth"
	"github.com/BradenHooton/cyberarcade/internal/models"
	"github.com/BradenHooton/cyberarcade/internal/services"
	pkghttp "github.com/BradenHooton/cyberarcade/pkg/http"
	"github.com/stretchr/testify/assert"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithAdminContext adds admin session claims to the request context
func WithAdminContext(req *http.Request, accountID, identifier string) *http.Request {
	claims := &models.TokenClaims{
		Type:       models.TokenTypeSession,
		AccountID:  accountID,
		Identifier: identifier,
		Role:       models.RoleAdmin,
	}
	ctx := context.WithValue(req.Context(), auth.AccountContextKey, claims)
	return req.WithContext(ctx)
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"), "Content-Type should be application/json")

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err, "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
}

// MockLoginService implements LoginServiceInterface for testing
type MockLoginService struct {
	LoginFunc func(ctx context.Context, in services.LoginInput) (*services.LoginResult, error)
	LastInput services.LoginInput
}

func (m *MockLoginService) Login(ctx context.Context, in services.LoginInput) (*services.LoginResult, error) {
	m.LastInput = in
	if m.LoginFunc != nil {
		return m.LoginFunc(ctx, in)
	}
	return nil, models.ErrInvalidCredential
}

// MockAccountService implements AccountServiceInterface for testing
type MockAccountService struct {
	RegisterFunc func(ctx context.Context, in services.RegisterInput) error
}

func (m *MockAccountService) Register(ctx context.Context, in services.RegisterInput) error {
	if m.RegisterFunc != nil {
		return m.RegisterFunc(ctx, in)
	}
	return nil
}

// MockPasswordResetService implements PasswordResetServiceInterface for testing
type MockPasswordResetService struct {
	ConsumeFunc func(ctx context.Context, token, newPassword string) error
}

func (m *MockPasswordResetService) Consume(ctx context.Context, token, newPassword string) error {
	if m.ConsumeFunc != nil {
		return m.ConsumeFunc(ctx, token, newPassword)
	}
	return nil
}

// MockAdminService implements AdminServiceInterface for testing
type MockAdminService struct {
	UnlockFunc               func(ctx context.Context, identifier string, admin services.AdminActor) (*services.UnlockResult, error)
	RequirePasswordResetFunc func(ctx context.Context, identifier string, admin services.AdminActor, sendNotification bool) (*services.PasswordResetResult, error)
	LockoutStatusFunc        func(ctx context.Context, identifier string) (*services.LockoutStatusResult, error)
}

func (m *MockAdminService) Unlock(ctx context.Context, identifier string, admin services.AdminActor) (*services.UnlockResult, error) {
	if m.UnlockFunc != nil {
		return m.UnlockFunc(ctx, identifier, admin)
	}
	return nil, models.ErrNotFound
}

func (m *MockAdminService) RequirePasswordReset(ctx context.Context, identifier string, admin services.AdminActor, sendNotification bool) (*services.PasswordResetResult, error) {
	if m.RequirePasswordResetFunc != nil {
		return m.RequirePasswordResetFunc(ctx, identifier, admin, sendNotification)
	}
	return nil, models.ErrNotFound
}

func (m *MockAdminService) LockoutStatus(ctx context.Context, identifier string) (*services.LockoutStatusResult, error) {
	if m.LockoutStatusFunc != nil {
		return m.LockoutStatusFunc(ctx, identifier)
	}
	return nil, models.ErrNotFound
}

// MockPinger implements Pinger for testing
type MockPinger struct {
	HealthCheckFunc func(ctx context.Context) error
}

func (m *MockPinger) HealthCheck(ctx context.Context) error {
	if m.HealthCheckFunc != nil {
		return m.HealthCheckFunc(ctx)
	}
	return nil
}

// MockAuditTrailService implements AuditTrailService for testing
type MockAuditTrailService struct {
	RecentForAccountFunc func(ctx context.Context, accountID string, limit int) ([]*models.AuditLog, error)
}

func (m *MockAuditTrailService) RecentForAccount(ctx context.Context, accountID string, limit int) ([]*models.AuditLog, error) {
	if m.RecentForAccountFunc != nil {
		return m.RecentForAccountFunc(ctx, accountID, limit)
	}
	return []*models.AuditLog{}, nil
}
