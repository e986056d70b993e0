package routes

import (
	"net/http"

	"github.com/BradenHooton/cyberarcade/internal/auth"
	"github.com/BradenHooton/cyberarcade/internal/handlers"
	"github.com/BradenHooton/cyberarcade/internal/middleware"
	pkghttp "github.com/BradenHooton/cyberarcade/pkg/http"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Dependencies bundles everything the router needs
type Dependencies struct {
	AuthHandler  *handlers.AuthHandler
	AdminHandler *handlers.AdminHandler
	AuditHandler *handlers.AuditHandler
	TokenManager *auth.TokenManager
	Accounts     auth.AccountFetcher
	Health       http.HandlerFunc
	IPConfig     *pkghttp.IPConfig

	AuthRequestsPerMinute  int
	AdminRequestsPerMinute int
}

// RegisterRoutes registers all application routes
func RegisterRoutes(router chi.Router, deps Dependencies) {
	router.Get("/health", deps.Health)
	router.Handle("/metrics", promhttp.Handler())

	// Login is bounded per origin inside the login service so the limit
	// can be reported with the remaining window in the 429 body
	router.Post("/auth/login", deps.AuthHandler.Login)
	router.Post("/auth/logout", deps.AuthHandler.Logout)

	publicLimit := middleware.DefaultAuthRateLimit()
	publicLimit.IPConfig = deps.IPConfig
	if deps.AuthRequestsPerMinute > 0 {
		publicLimit.RequestsPerMinute = deps.AuthRequestsPerMinute
	}

	router.Group(func(r chi.Router) {
		r.Use(middleware.RateLimitByIP(publicLimit))
		r.Post("/auth/register", deps.AuthHandler.Register)
		r.Post("/auth/password-reset", deps.AuthHandler.ResetPassword)
	})

	adminLimit := middleware.RateLimitConfig{
		RequestsPerMinute: deps.AdminRequestsPerMinute,
		Scope:             "admin",
		IPConfig:          deps.IPConfig,
	}
	if adminLimit.RequestsPerMinute <= 0 {
		adminLimit.RequestsPerMinute = 30
	}

	router.Route("/admin", func(r chi.Router) {
		r.Use(auth.AuthMiddleware(deps.TokenManager))
		r.Use(auth.RequireRole(deps.Accounts, "admin"))
		r.Use(middleware.RateLimitByAccount(adminLimit))

		r.Post("/accounts/unlock", deps.AdminHandler.Unlock)
		r.Post("/accounts/password-reset", deps.AdminHandler.RequirePasswordReset)
		r.Get("/accounts/{identifier}/lockout", deps.AdminHandler.LockoutStatus)
		r.Get("/accounts/id/{id}/audit", deps.AuditHandler.GetAccountAuditTrail)
	})
}
