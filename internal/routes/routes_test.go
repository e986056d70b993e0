package routes_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/BradenHooton/cyberarcade/internal/auth"
	"github.com/BradenHooton/cyberarcade/internal/handlers"
	"github.com/BradenHooton/cyberarcade/internal/models"
	"github.com/BradenHooton/cyberarcade/internal/routes"
	"github.com/BradenHooton/cyberarcade/internal/services"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type accountsByID map[string]*models.Account

func (a accountsByID) GetByID(ctx context.Context, id string) (*models.Account, error) {
	if acct, ok := a[id]; ok {
		return acct, nil
	}
	return nil, models.ErrNotFound
}

func newRouter(t *testing.T) (http.Handler, *auth.TokenManager, accountsByID) {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	tm := auth.NewTokenManager("routes-test-secret-0123456789", time.Hour)
	accounts := accountsByID{
		"admin-1":  {ID: "admin-1", Identifier: "admin@example.com", Role: models.RoleAdmin},
		"player-1": {ID: "player-1", Identifier: "player@example.com", Role: models.RolePlayer},
	}

	admin := &handlers.MockAdminService{
		UnlockFunc: func(ctx context.Context, identifier string, actor services.AdminActor) (*services.UnlockResult, error) {
			return &services.UnlockResult{Identifier: identifier, UnlockedBy: actor.Identifier, UnlockedAt: time.Now()}, nil
		},
	}

	router := chi.NewRouter()
	routes.RegisterRoutes(router, routes.Dependencies{
		AuthHandler:  handlers.NewAuthHandler(&handlers.MockLoginService{}, &handlers.MockAccountService{}, &handlers.MockPasswordResetService{}, auth.CookieConfig{}, nil, logger),
		AdminHandler: handlers.NewAdminHandler(admin, logger),
		AuditHandler: handlers.NewAuditHandler(&handlers.MockAuditTrailService{}, logger),
		TokenManager: tm,
		Accounts:     accounts,
		Health:       handlers.Health(&handlers.MockPinger{}),
	})
	return router, tm, accounts
}

func bearer(t *testing.T, tm *auth.TokenManager, acct *models.Account) string {
	t.Helper()
	token, _, err := tm.GenerateSessionToken(acct, time.Now())
	require.NoError(t, err)
	return "Bearer " + token
}

func unlockRequest() *http.Request {
	req := httptest.NewRequest("POST", "/admin/accounts/unlock", strings.NewReader(`{"identifier":"user@example.com"}`))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestAdminRoutes_RequireSession(t *testing.T) {
	router, _, _ := newRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, unlockRequest())

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdminRoutes_RejectPlayers(t *testing.T) {
	router, tm, accounts := newRouter(t)

	req := unlockRequest()
	req.Header.Set("Authorization", bearer(t, tm, accounts["player-1"]))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAdminRoutes_RoleReadFromStore(t *testing.T) {
	router, tm, accounts := newRouter(t)

	// Token minted while admin, role revoked afterwards
	token := bearer(t, tm, accounts["admin-1"])
	accounts["admin-1"] = &models.Account{ID: "admin-1", Identifier: "admin@example.com", Role: models.RolePlayer}

	req := unlockRequest()
	req.Header.Set("Authorization", token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAdminRoutes_AdminUnlock(t *testing.T) {
	router, tm, accounts := newRouter(t)

	req := unlockRequest()
	req.Header.Set("Authorization", bearer(t, tm, accounts["admin-1"]))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"unlocked_by":"admin@example.com"`)
}

func TestPublicRoutes(t *testing.T) {
	router, _, _ := newRouter(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"health", "GET", "/health", "", http.StatusOK},
		{"metrics", "GET", "/metrics", "", http.StatusOK},
		{"login rejected by service", "POST", "/auth/login", `{"identifier":"user@example.com","password":"nope"}`, http.StatusUnauthorized},
		{"logout", "POST", "/auth/logout", "", http.StatusOK},
		{"register", "POST", "/auth/register", `{"identifier":"new@example.com","password":"Arcade-Pass1"}`, http.StatusAccepted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}
