package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/BradenHooton/cyberarcade/internal/lockout"
)

type Config struct {
	Database  DatabaseConfig
	Server    ServerConfig
	Auth      AuthConfig
	Lockout   LockoutConfig
	RateLimit RateLimitConfig
	Redis     RedisConfig
	Email     EmailConfig
	Admin     AdminConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
	StatementTimeout  time.Duration
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	AllowedOrigins []string
	TrustedProxies []string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	RequestTimeout time.Duration
}

type AuthConfig struct {
	JWTSecret           string
	SessionExpiry       time.Duration
	BcryptCost          int
	CookieDomain        string
	CookieSecure        bool
	CookieSameSite      string
	TimingBaseDelayMs   int
	TimingRandomDelayMs int
	ResetTokenExpiry    time.Duration
	CleanupInterval     time.Duration
	AuditRetentionDays  int
}

// LockoutConfig holds the escalation table. Defaults are 3/6/9/12.
type LockoutConfig struct {
	Stage1Threshold    int
	Stage1Duration     time.Duration
	Stage2Threshold    int
	Stage2Duration     time.Duration
	Stage3Threshold    int
	Stage3Duration     time.Duration
	PermanentThreshold int
}

type RateLimitConfig struct {
	Backend                string // "memory" or "redis"
	LoginMaxAttempts       int
	LoginWindow            time.Duration
	AdminRequestsPerMinute int
	AuthRequestsPerMinute  int
}

type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

type EmailConfig struct {
	Enabled      bool
	AWSRegion    string
	FromAddress  string
	ResetURLBase string
}

// AdminConfig seeds an administrator at startup when both fields are set.
type AdminConfig struct {
	Email    string
	Password string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	jwtSecret := getEnv("JWT_SECRET", "")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	env := getEnv("ENV", "development")

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "cyberarcade"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
			StatementTimeout:  getEnvAsDuration("DB_STATEMENT_TIMEOUT", 5*time.Second),
		},
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            env,
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			AllowedOrigins: parseAllowedOrigins(env),
			TrustedProxies: parseList(getEnv("TRUSTED_PROXIES", "")),
			ReadTimeout:    getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:   getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:    getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			RequestTimeout: getEnvAsDuration("SERVER_REQUEST_TIMEOUT", 30*time.Second),
		},
		Auth: AuthConfig{
			JWTSecret:           jwtSecret,
			SessionExpiry:       getEnvAsDuration("SESSION_EXPIRY", 12*time.Hour),
			BcryptCost:          getEnvAsInt("BCRYPT_COST", 14),
			CookieDomain:        getEnv("COOKIE_DOMAIN", ""),
			CookieSecure:        getEnvAsBool("COOKIE_SECURE", env == "production"),
			CookieSameSite:      getEnv("COOKIE_SAMESITE", "strict"),
			TimingBaseDelayMs:   getEnvAsInt("AUTH_TIMING_BASE_DELAY_MS", 250),
			TimingRandomDelayMs: getEnvAsInt("AUTH_TIMING_RANDOM_DELAY_MS", 100),
			ResetTokenExpiry:    getEnvAsDuration("PASSWORD_RESET_TOKEN_EXPIRY", time.Hour),
			CleanupInterval:     getEnvAsDuration("CLEANUP_INTERVAL", 15*time.Minute),
			AuditRetentionDays:  getEnvAsInt("AUDIT_RETENTION_DAYS", 90),
		},
		Lockout: LockoutConfig{
			Stage1Threshold:    getEnvAsInt("LOCKOUT_STAGE1_THRESHOLD", 3),
			Stage1Duration:     getEnvAsDuration("LOCKOUT_STAGE1_DURATION", 30*time.Minute),
			Stage2Threshold:    getEnvAsInt("LOCKOUT_STAGE2_THRESHOLD", 6),
			Stage2Duration:     getEnvAsDuration("LOCKOUT_STAGE2_DURATION", 3*time.Hour),
			Stage3Threshold:    getEnvAsInt("LOCKOUT_STAGE3_THRESHOLD", 9),
			Stage3Duration:     getEnvAsDuration("LOCKOUT_STAGE3_DURATION", 24*time.Hour),
			PermanentThreshold: getEnvAsInt("LOCKOUT_PERMANENT_THRESHOLD", 12),
		},
		RateLimit: RateLimitConfig{
			Backend:                strings.ToLower(getEnv("RATE_LIMIT_BACKEND", "memory")),
			LoginMaxAttempts:       getEnvAsInt("LOGIN_RATE_LIMIT_ATTEMPTS", 5),
			LoginWindow:            getEnvAsDuration("LOGIN_RATE_LIMIT_WINDOW", 60*time.Second),
			AdminRequestsPerMinute: getEnvAsInt("ADMIN_RATE_LIMIT_PER_MINUTE", 30),
			AuthRequestsPerMinute:  getEnvAsInt("AUTH_RATE_LIMIT_PER_MINUTE", 10),
		},
		Redis: RedisConfig{
			Addr:      getEnv("REDIS_ADDR", "localhost:6379"),
			Password:  getEnv("REDIS_PASSWORD", ""),
			DB:        getEnvAsInt("REDIS_DB", 0),
			KeyPrefix: getEnv("REDIS_KEY_PREFIX", "cyberarcade:"),
		},
		Email: EmailConfig{
			Enabled:      getEnvAsBool("EMAIL_ENABLED", false),
			AWSRegion:    getEnv("AWS_REGION", "us-east-1"),
			FromAddress:  getEnv("EMAIL_FROM_ADDRESS", "no-reply@cyberarcade.local"),
			ResetURLBase: getEnv("PASSWORD_RESET_URL_BASE", "http://localhost:5173"),
		},
		Admin: AdminConfig{
			Email:    getEnv("ADMIN_EMAIL", ""),
			Password: getEnv("ADMIN_PASSWORD", ""),
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}

	if err := validateJWTSecret(jwtSecret, env); err != nil {
		return nil, err
	}

	if cfg.RateLimit.Backend != "memory" && cfg.RateLimit.Backend != "redis" {
		return nil, fmt.Errorf("RATE_LIMIT_BACKEND must be memory or redis (got %q)", cfg.RateLimit.Backend)
	}

	if cfg.RateLimit.LoginMaxAttempts < 1 || cfg.RateLimit.LoginWindow <= 0 {
		return nil, fmt.Errorf("login rate limit must allow at least one attempt per positive window")
	}

	if err := cfg.Lockout.Policy().Validate(); err != nil {
		return nil, err
	}

	if (cfg.Admin.Email == "") != (cfg.Admin.Password == "") {
		return nil, fmt.Errorf("ADMIN_EMAIL and ADMIN_PASSWORD must be set together")
	}

	return cfg, nil
}

// Policy builds the lockout escalation table from configuration.
func (c LockoutConfig) Policy() lockout.Policy {
	return lockout.Policy{Steps: []lockout.Step{
		{Threshold: c.Stage1Threshold, Stage: lockout.StageOne, Duration: c.Stage1Duration},
		{Threshold: c.Stage2Threshold, Stage: lockout.StageTwo, Duration: c.Stage2Duration},
		{Threshold: c.Stage3Threshold, Stage: lockout.StageThree, Duration: c.Stage3Duration},
		{Threshold: c.PermanentThreshold, Stage: lockout.StageThree, Permanent: true},
	}}
}

// validateJWTSecret enforces minimum security standards for JWT secret
func validateJWTSecret(secret, env string) error {
	minLength := 16
	if env == "production" {
		minLength = 32 // 256 bits
	}

	if len(secret) < minLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters in %s environment (got %d)",
			minLength, env, len(secret))
	}

	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("JWT_SECRET cannot be a common weak value")
		}
	}

	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

func parseList(s string) []string {
	if s == "" {
		return []string{}
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseAllowedOrigins(env string) []string {
	if env == "production" {
		return parseList(getEnv("ALLOWED_ORIGINS", ""))
	}

	// Development: allow localhost variants
	return []string{
		"http://localhost:3000",
		"http://localhost:5173", // Vite default
		"http://127.0.0.1:3000",
		"http://127.0.0.1:5173",
	}
}
