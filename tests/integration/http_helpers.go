package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"os"
	"sync"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/BradenHooton/cyberarcade/internal/auth"
	"github.com/BradenHooton/cyberarcade/internal/config"
	"github.com/BradenHooton/cyberarcade/internal/database"
	"github.com/BradenHooton/cyberarcade/internal/handlers"
	middlewareCustom "github.com/BradenHooton/cyberarcade/internal/middleware"
	"github.com/BradenHooton/cyberarcade/internal/models"
	"github.com/BradenHooton/cyberarcade/internal/ratelimit"
	"github.com/BradenHooton/cyberarcade/internal/repositories"
	"github.com/BradenHooton/cyberarcade/internal/routes"
	"github.com/BradenHooton/cyberarcade/internal/services"
	pkglogger "github.com/BradenHooton/cyberarcade/pkg/logger"
)

// SentNotification is a captured notification
type SentNotification struct {
	Recipient    string
	Notification models.Notification
}

// MockNotifier captures notifications for test assertions
type MockNotifier struct {
	mu   sync.Mutex
	sent []SentNotification
}

// Notify records the notification
func (m *MockNotifier) Notify(ctx context.Context, recipient string, n models.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, SentNotification{Recipient: recipient, Notification: n})
	return nil
}

// Sent returns a snapshot of captured notifications
func (m *MockNotifier) Sent() []SentNotification {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SentNotification, len(m.sent))
	copy(out, m.sent)
	return out
}

// TestServer wraps httptest.Server with database and all dependencies
type TestServer struct {
	Server     *httptest.Server
	DB         *database.DB
	Redis      *miniredis.Miniredis
	Notifier   *MockNotifier
	Dispatcher *services.NotificationDispatcher
	Config     *config.Config
}

// NewTestServer initializes a complete HTTP server with real database,
// a miniredis-backed login limiter and a capturing notifier
func NewTestServer(db *database.DB) (*TestServer, error) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))

	cfg := &config.Config{
		Auth: config.AuthConfig{
			JWTSecret:        "test-secret-32-characters-long-for-testing",
			SessionExpiry:    time.Hour,
			BcryptCost:       bcrypt.MinCost,
			ResetTokenExpiry: time.Hour,
		},
		Lockout: config.LockoutConfig{
			Stage1Threshold:    3,
			Stage1Duration:     30 * time.Minute,
			Stage2Threshold:    6,
			Stage2Duration:     3 * time.Hour,
			Stage3Threshold:    9,
			Stage3Duration:     24 * time.Hour,
			PermanentThreshold: 12,
		},
		RateLimit: config.RateLimitConfig{
			Backend:                "redis",
			LoginMaxAttempts:       5,
			LoginWindow:            time.Minute,
			AuthRequestsPerMinute:  100,
			AdminRequestsPerMinute: 100,
		},
		Server: config.ServerConfig{Env: "test"},
	}

	mr, err := miniredis.Run()
	if err != nil {
		return nil, err
	}
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	accountRepo := repositories.NewAccountRepository(db)
	auditRepo := repositories.NewAuditLogRepository(db)
	auditService := services.NewAuditService(auditRepo, pkglogger.NewAuditLogger(logger), logger)

	limiter := ratelimit.New(ratelimit.NewRedisStore(redisClient, "test:"), ratelimit.Config{
		MaxAttempts: cfg.RateLimit.LoginMaxAttempts,
		Window:      cfg.RateLimit.LoginWindow,
		Scope:       "login",
	}, logger)

	verifier, err := auth.NewCredentialVerifier(cfg.Auth.BcryptCost)
	if err != nil {
		mr.Close()
		return nil, err
	}
	tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.SessionExpiry)

	notifier := &MockNotifier{}
	dispatcher := services.NewNotificationDispatcher(notifier, logger, time.Second)

	loginService := services.NewLoginService(services.LoginDependencies{
		Accounts:   accountRepo,
		Limiter:    limiter,
		Verifier:   verifier,
		Policy:     cfg.Lockout.Policy(),
		Sessions:   tokenManager,
		Dispatcher: dispatcher,
		Audit:      auditService,
		Logger:     logger,
	})
	accountService := services.NewAccountService(accountRepo, verifier, auditService, logger)
	adminService := services.NewAdminService(accountRepo, dispatcher, auditService, auditService, cfg.Auth.ResetTokenExpiry, logger)
	resetService := services.NewPasswordResetService(accountRepo, verifier, auditService, logger)

	router := chi.NewRouter()
	router.Use(chiMiddleware.RequestID)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(chiMiddleware.Recoverer)

	routes.RegisterRoutes(router, routes.Dependencies{
		AuthHandler:            handlers.NewAuthHandler(loginService, accountService, resetService, auth.CookieConfig{SameSite: "strict"}, nil, logger),
		AdminHandler:           handlers.NewAdminHandler(adminService, logger),
		AuditHandler:           handlers.NewAuditHandler(auditService, logger),
		TokenManager:           tokenManager,
		Accounts:               accountRepo,
		Health:                 handlers.Health(db),
		AuthRequestsPerMinute:  cfg.RateLimit.AuthRequestsPerMinute,
		AdminRequestsPerMinute: cfg.RateLimit.AdminRequestsPerMinute,
	})

	return &TestServer{
		Server:     httptest.NewServer(router),
		DB:         db,
		Redis:      mr,
		Notifier:   notifier,
		Dispatcher: dispatcher,
		Config:     cfg,
	}, nil
}

// Close shuts down the test server
func (ts *TestServer) Close() {
	if ts.Server != nil {
		ts.Server.Close()
	}
	if ts.Dispatcher != nil {
		ts.Dispatcher.Wait()
	}
	if ts.Redis != nil {
		ts.Redis.Close()
	}
}

// Client returns an HTTP client with its own cookie jar
func (ts *TestServer) Client() *http.Client {
	jar, _ := cookiejar.New(nil)
	return &http.Client{Jar: jar}
}

// Request makes an HTTP request to the test server
func (ts *TestServer) Request(client *http.Client, method, path string, body interface{}, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequest(method, ts.Server.URL+path, bodyReader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	if client == nil {
		client = http.DefaultClient
	}
	return client.Do(req)
}

// Login posts credentials with the given client
func (ts *TestServer) Login(client *http.Client, identifier, password string) (*http.Response, error) {
	return ts.Request(client, "POST", "/auth/login", map[string]string{
		"identifier": identifier,
		"password":   password,
	}, nil)
}

// ParseJSONResponse parses JSON response body into target struct
func ParseJSONResponse(resp *http.Response, target interface{}) error {
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(target)
}

// ResetLoginLimiter clears every login window so a test can keep attempting
// from the same loopback origin
func (ts *TestServer) ResetLoginLimiter() {
	ts.Redis.FlushAll()
}
