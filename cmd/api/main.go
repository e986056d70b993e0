package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/BradenHooton/cyberarcade/internal/auth"
	"github.com/BradenHooton/cyberarcade/internal/background"
	"github.com/BradenHooton/cyberarcade/internal/config"
	"github.com/BradenHooton/cyberarcade/internal/database"
	"github.com/BradenHooton/cyberarcade/internal/handlers"
	middlewareCustom "github.com/BradenHooton/cyberarcade/internal/middleware"
	"github.com/BradenHooton/cyberarcade/internal/ratelimit"
	"github.com/BradenHooton/cyberarcade/internal/repositories"
	"github.com/BradenHooton/cyberarcade/internal/routes"
	"github.com/BradenHooton/cyberarcade/internal/services"
	pkghttp "github.com/BradenHooton/cyberarcade/pkg/http"
	pkglogger "github.com/BradenHooton/cyberarcade/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.Server.LogLevel)}))
	slog.SetDefault(logger)
	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Initialize database
	db, err := database.NewConnection(ctx, &cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	if err := database.Migrate(ctx, db.Pool, logger); err != nil {
		logger.Error("failed to migrate database", slog.Any("error", err))
		os.Exit(1)
	}
	cancel()

	// Initialize repositories
	accountRepo := repositories.NewAccountRepository(db)
	auditRepo := repositories.NewAuditLogRepository(db)

	auditService := services.NewAuditService(auditRepo, pkglogger.NewAuditLogger(logger), logger)

	// Per-origin login limiter
	var windowStore ratelimit.WindowStore
	var memoryStore *ratelimit.MemoryStore
	switch cfg.RateLimit.Backend {
	case "redis":
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		windowStore = ratelimit.NewRedisStore(redisClient, cfg.Redis.KeyPrefix)
		logger.Info("using redis rate limit store", slog.String("addr", cfg.Redis.Addr))
	default:
		memoryStore = ratelimit.NewMemoryStore()
		windowStore = memoryStore
	}
	limiter := ratelimit.New(windowStore, ratelimit.Config{
		MaxAttempts: cfg.RateLimit.LoginMaxAttempts,
		Window:      cfg.RateLimit.LoginWindow,
		Scope:       "login",
	}, logger)

	verifier, err := auth.NewCredentialVerifier(cfg.Auth.BcryptCost)
	if err != nil {
		logger.Error("failed to initialize credential verifier", slog.Any("error", err))
		os.Exit(1)
	}

	tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.SessionExpiry)

	timingDelay := auth.NewTimingDelay(auth.TimingConfig{
		BaseDelayMs:    cfg.Auth.TimingBaseDelayMs,
		RandomDelayMs:  cfg.Auth.TimingRandomDelayMs,
		DelayOnSuccess: true,
	})

	// Notifications go out through SES when enabled, otherwise to the log
	var notifier services.Notifier = services.NewLogNotifier(logger)
	if cfg.Email.Enabled {
		sesNotifier, err := services.NewSESNotifier(context.Background(), cfg.Email.AWSRegion, cfg.Email.FromAddress, cfg.Email.ResetURLBase, logger)
		if err != nil {
			logger.Error("failed to initialize email notifier", slog.Any("error", err))
			os.Exit(1)
		}
		notifier = sesNotifier
	}
	dispatcher := services.NewNotificationDispatcher(notifier, logger, services.DefaultNotificationTimeout)

	// Initialize services
	loginService := services.NewLoginService(services.LoginDependencies{
		Accounts:   accountRepo,
		Limiter:    limiter,
		Verifier:   verifier,
		Policy:     cfg.Lockout.Policy(),
		Sessions:   tokenManager,
		Timing:     timingDelay,
		Dispatcher: dispatcher,
		Audit:      auditService,
		Logger:     logger,
	})
	accountService := services.NewAccountService(accountRepo, verifier, auditService, logger)
	adminService := services.NewAdminService(accountRepo, dispatcher, auditService, auditService, cfg.Auth.ResetTokenExpiry, logger)
	resetService := services.NewPasswordResetService(accountRepo, verifier, auditService, logger)

	// Bootstrap first admin if configured
	if cfg.Admin.Email != "" {
		bootCtx, bootCancel := context.WithTimeout(context.Background(), 10*time.Second)
		created, err := accountService.BootstrapAdmin(bootCtx, cfg.Admin.Email, cfg.Admin.Password)
		bootCancel()
		if err != nil {
			logger.Error("failed to ensure admin account", slog.Any("error", err))
		} else if created {
			logger.Info("admin account created", slog.String("identifier", pkglogger.SanitizedEmail(cfg.Admin.Email)))
		}
	}

	ipConfig, err := pkghttp.NewIPConfig(cfg.Server.TrustedProxies)
	if err != nil {
		logger.Error("invalid TRUSTED_PROXIES", slog.Any("error", err))
		os.Exit(1)
	}

	cookieCfg := auth.CookieConfig{
		Domain:   cfg.Auth.CookieDomain,
		Secure:   cfg.Auth.CookieSecure,
		SameSite: cfg.Auth.CookieSameSite,
	}

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(loginService, accountService, resetService, cookieCfg, ipConfig, logger)
	adminHandler := handlers.NewAdminHandler(adminService, logger)
	auditHandler := handlers.NewAuditHandler(auditService, logger)

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.CORS(middlewareCustom.DefaultCORSConfig(cfg.Server.AllowedOrigins)))
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(cfg.Server.RequestTimeout))

	routes.RegisterRoutes(router, routes.Dependencies{
		AuthHandler:            authHandler,
		AdminHandler:           adminHandler,
		AuditHandler:           auditHandler,
		TokenManager:           tokenManager,
		Accounts:               accountRepo,
		Health:                 handlers.Health(db),
		IPConfig:               ipConfig,
		AuthRequestsPerMinute:  cfg.RateLimit.AuthRequestsPerMinute,
		AdminRequestsPerMinute: cfg.RateLimit.AdminRequestsPerMinute,
	})

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start cleanup task
	var windowPruner background.WindowPruner
	if memoryStore != nil {
		windowPruner = memoryStore
	}
	cleanupManager := background.NewCleanupManager(accountRepo, auditRepo, windowPruner, background.CleanupConfig{
		Interval:           cfg.Auth.CleanupInterval,
		AuditRetentionDays: cfg.Auth.AuditRetentionDays,
	}, logger)

	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()

	go cleanupManager.Start(cleanupCtx)

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	cleanupCancel()
	cleanupManager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
	}

	// Let in-flight lockout and reset notifications finish
	dispatcher.Wait()

	logger.Info("server stopped gracefully")
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
