package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/BradenHooton/cyberarcade/internal/auth"
	"github.com/BradenHooton/cyberarcade/internal/models"
	"github.com/BradenHooton/cyberarcade/internal/services"
	pkghttp "github.com/BradenHooton/cyberarcade/pkg/http"
)

// LoginServiceInterface runs login attempts
type LoginServiceInterface interface {
	Login(ctx context.Context, in services.LoginInput) (*services.LoginResult, error)
}

// AccountServiceInterface creates accounts
type AccountServiceInterface interface {
	Register(ctx context.Context, in services.RegisterInput) error
}

// PasswordResetServiceInterface consumes reset tokens
type PasswordResetServiceInterface interface {
	Consume(ctx context.Context, token, newPassword string) error
}

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	login     LoginServiceInterface
	accounts  AccountServiceInterface
	resets    PasswordResetServiceInterface
	cookieCfg auth.CookieConfig
	ipConfig  *pkghttp.IPConfig
	logger    *slog.Logger
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(
	login LoginServiceInterface,
	accounts AccountServiceInterface,
	resets PasswordResetServiceInterface,
	cookieCfg auth.CookieConfig,
	ipConfig *pkghttp.IPConfig,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		login:     login,
		accounts:  accounts,
		resets:    resets,
		cookieCfg: cookieCfg,
		ipConfig:  ipConfig,
		logger:    logger,
	}
}

// Request DTOs

// LoginRequest represents the request body for login
type LoginRequest struct {
	Identifier string `json:"identifier" validate:"identifier"`
	Password   string `json:"password" validate:"required,max=1024"`
}

// RegisterRequest represents the request body for registration
type RegisterRequest struct {
	Identifier string `json:"identifier" validate:"identifier"`
	Password   string `json:"password" validate:"required,max=1024"`
}

// PasswordResetRequest represents the request body for consuming a reset token
type PasswordResetRequest struct {
	Token       string `json:"token" validate:"required,max=128"`
	NewPassword string `json:"new_password" validate:"required,max=1024"`
}

// Response DTOs

// AccountSummary is the public view of an account
type AccountSummary struct {
	ID         string `json:"id"`
	Identifier string `json:"identifier"`
	Role       string `json:"role"`
}

// LoginResponse is returned on successful login; the token itself travels in the session cookie
type LoginResponse struct {
	Message               string         `json:"message"`
	Account               AccountSummary `json:"account"`
	PasswordResetRequired bool           `json:"password_reset_required"`
	SessionExpiresAt      time.Time      `json:"session_expires_at"`
}

// MessageResponse carries a plain message
type MessageResponse struct {
	Message string `json:"message"`
}

// Login handles POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := pkghttp.DecodeJSON(w, r, &req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	result, err := h.login.Login(r.Context(), services.LoginInput{
		Identifier: req.Identifier,
		Password:   req.Password,
		Origin:     pkghttp.ExtractClientIP(r, h.ipConfig),
		UserAgent:  r.UserAgent(),
	})
	if err != nil {
		h.writeLoginError(w, err)
		return
	}

	auth.SetSessionCookie(w, result.SessionToken, result.SessionExpiresAt, h.cookieCfg)
	pkghttp.WriteJSON(w, http.StatusOK, LoginResponse{
		Message: "Login successful",
		Account: AccountSummary{
			ID:         result.Account.ID,
			Identifier: result.Account.Identifier,
			Role:       result.Account.Role,
		},
		PasswordResetRequired: result.PasswordResetRequired,
		SessionExpiresAt:      result.SessionExpiresAt.UTC(),
	})
}

func (h *AuthHandler) writeLoginError(w http.ResponseWriter, err error) {
	var lockErr *models.LockoutError
	var rateErr *models.RateLimitError

	switch {
	case errors.As(err, &rateErr):
		pkghttp.WriteRateLimited(w, rateErr.RetryAfter)
	case errors.As(err, &lockErr):
		if lockErr.Permanent {
			pkghttp.WriteLocked(w, nil, 0)
			return
		}
		pkghttp.WriteLocked(w, lockErr.ExpiresAt, lockErr.RemainingSeconds)
	case errors.Is(err, models.ErrInvalidCredential):
		pkghttp.WriteInvalidCredentials(w)
	case errors.Is(err, models.ErrStoreUnavailable):
		pkghttp.WriteServiceUnavailable(w, "Service temporarily unavailable")
	default:
		h.logger.Error("unexpected login error", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Internal server error")
	}
}

// Logout handles POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	auth.ClearSessionCookie(w, h.cookieCfg)
	pkghttp.WriteJSON(w, http.StatusOK, MessageResponse{Message: "Logged out"})
}

// Register handles POST /auth/register. The response never reveals
// whether the identifier was already taken.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := pkghttp.DecodeJSON(w, r, &req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	err := h.accounts.Register(r.Context(), services.RegisterInput{
		Identifier: req.Identifier,
		Password:   req.Password,
		Origin:     pkghttp.ExtractClientIP(r, h.ipConfig),
		UserAgent:  r.UserAgent(),
	})
	if err != nil {
		switch {
		case errors.Is(err, models.ErrBadRequest):
			pkghttp.WriteBadRequest(w, "Password does not meet requirements")
		case errors.Is(err, models.ErrStoreUnavailable):
			pkghttp.WriteServiceUnavailable(w, "Service temporarily unavailable")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusAccepted, MessageResponse{
		Message: "If the identifier is available, the account has been created",
	})
}

// ResetPassword handles POST /auth/password-reset
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req PasswordResetRequest
	if err := pkghttp.DecodeJSON(w, r, &req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.resets.Consume(r.Context(), req.Token, req.NewPassword); err != nil {
		switch {
		case errors.Is(err, models.ErrInvalidResetToken):
			pkghttp.WriteError(w, http.StatusBadRequest, "invalid_reset_token", "Reset token is invalid or expired")
		case errors.Is(err, models.ErrBadRequest):
			pkghttp.WriteBadRequest(w, "Password does not meet requirements")
		case errors.Is(err, models.ErrStoreUnavailable):
			pkghttp.WriteServiceUnavailable(w, "Service temporarily unavailable")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	auth.ClearSessionCookie(w, h.cookieCfg)
	pkghttp.WriteJSON(w, http.StatusOK, MessageResponse{Message: "Password updated"})
}
