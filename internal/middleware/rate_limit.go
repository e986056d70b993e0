package middleware

import (
	"net/http"
	"time"

	"github.com/BradenHooton/cyberarcade/internal/auth"
	"github.com/BradenHooton/cyberarcade/internal/metrics"
	pkghttp "github.com/BradenHooton/cyberarcade/pkg/http"
	"github.com/go-chi/httprate"
)

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int
	// Scope labels rejections in metrics, e.g. "register" or "admin"
	Scope string
	// IPConfig decides which forwarding headers are trusted. Nil trusts none.
	IPConfig *pkghttp.IPConfig
}

// DefaultAuthRateLimit returns default rate limit config for public auth endpoints (10 requests per minute)
func DefaultAuthRateLimit() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: 10,
		Scope:             "auth",
	}
}

// RateLimitByIP creates a middleware that rate limits requests by client IP.
// Login has its own per-origin limiter in the service layer; this guards
// the cheaper public endpoints.
func RateLimitByIP(config RateLimitConfig) func(next http.Handler) http.Handler {
	return httprate.Limit(
		config.RequestsPerMinute,
		1*time.Minute,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			return pkghttp.ExtractClientIP(r, config.IPConfig), nil
		}),
		httprate.WithLimitHandler(limitHandler(config.Scope)),
	)
}

// RateLimitByAccount rate limits authenticated requests by account ID,
// falling back to client IP when no session claims are present.
func RateLimitByAccount(config RateLimitConfig) func(next http.Handler) http.Handler {
	return httprate.Limit(
		config.RequestsPerMinute,
		1*time.Minute,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			if claims := auth.GetAccountFromContext(r); claims != nil && claims.AccountID != "" {
				return "account:" + claims.AccountID, nil
			}
			return "ip:" + pkghttp.ExtractClientIP(r, config.IPConfig), nil
		}),
		httprate.WithLimitHandler(limitHandler(config.Scope)),
	)
}

func limitHandler(scope string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		metrics.RecordRateLimitRejection(scope)
		pkghttp.WriteRateLimited(w, time.Minute)
	}
}
