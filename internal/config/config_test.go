package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BradenHooton/cyberarcade/internal/lockout"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("JWT_SECRET", "test-secret-32-characters-long!")
	t.Setenv("DB_PASSWORD", "test")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 15*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, 60*time.Second, cfg.Server.IdleTimeout)
	assert.Equal(t, "memory", cfg.RateLimit.Backend)
	assert.Equal(t, 5, cfg.RateLimit.LoginMaxAttempts)
	assert.Equal(t, 60*time.Second, cfg.RateLimit.LoginWindow)
	assert.Equal(t, time.Hour, cfg.Auth.ResetTokenExpiry)
	assert.Equal(t, "strict", cfg.Auth.CookieSameSite)
	assert.False(t, cfg.Auth.CookieSecure)
	assert.Equal(t, lockout.DefaultPolicy(), cfg.Lockout.Policy())
}

func TestLoad_CustomValues(t *testing.T) {
	setRequired(t)
	t.Setenv("SERVER_READ_TIMEOUT", "30s")
	t.Setenv("RATE_LIMIT_BACKEND", "Redis")
	t.Setenv("LOGIN_RATE_LIMIT_ATTEMPTS", "10")
	t.Setenv("LOCKOUT_STAGE1_DURATION", "10m")
	t.Setenv("TRUSTED_PROXIES", "10.0.0.0/8, 192.168.0.0/16,")
	t.Setenv("COOKIE_SECURE", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "redis", cfg.RateLimit.Backend)
	assert.Equal(t, 10, cfg.RateLimit.LoginMaxAttempts)
	assert.Equal(t, 10*time.Minute, cfg.Lockout.Stage1Duration)
	assert.Equal(t, []string{"10.0.0.0/8", "192.168.0.0/16"}, cfg.Server.TrustedProxies)
	assert.True(t, cfg.Auth.CookieSecure)
}

func TestLoad_InvalidDurationFallsBack(t *testing.T) {
	setRequired(t)
	t.Setenv("SERVER_READ_TIMEOUT", "not-a-duration")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing jwt secret", map[string]string{"JWT_SECRET": "", "DB_PASSWORD": "x"}},
		{"missing db password", map[string]string{"JWT_SECRET": "test-secret-32-characters-long!", "DB_PASSWORD": ""}},
		{"short secret in production", map[string]string{"JWT_SECRET": "short-but-16-chars", "DB_PASSWORD": "x", "ENV": "production"}},
		{"unknown backend", map[string]string{"JWT_SECRET": "test-secret-32-characters-long!", "DB_PASSWORD": "x", "RATE_LIMIT_BACKEND": "memcached"}},
		{"thresholds out of order", map[string]string{"JWT_SECRET": "test-secret-32-characters-long!", "DB_PASSWORD": "x", "LOCKOUT_STAGE2_THRESHOLD": "2"}},
		{"admin half configured", map[string]string{"JWT_SECRET": "test-secret-32-characters-long!", "DB_PASSWORD": "x", "ADMIN_EMAIL": "root@example.com"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestValidateJWTSecret(t *testing.T) {
	assert.NoError(t, validateJWTSecret("dev-secret-16chr", "development"))
	assert.Error(t, validateJWTSecret("dev-secret-16chr", "production"))
	assert.Error(t, validateJWTSecret("short", "development"))
}
