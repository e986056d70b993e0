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
	"github.com/go-chi/chi/v5"
)

// AdminServiceInterface defines the admin override contract
type AdminServiceInterface interface {
	Unlock(ctx context.Context, identifier string, admin services.AdminActor) (*services.UnlockResult, error)
	RequirePasswordReset(ctx context.Context, identifier string, admin services.AdminActor, sendNotification bool) (*services.PasswordResetResult, error)
	LockoutStatus(ctx context.Context, identifier string) (*services.LockoutStatusResult, error)
}

// AdminHandler handles admin override HTTP requests
type AdminHandler struct {
	service AdminServiceInterface
	logger  *slog.Logger
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(service AdminServiceInterface, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{service: service, logger: logger}
}

// UnlockRequest is the body of POST /admin/accounts/unlock
type UnlockRequest struct {
	Identifier string `json:"identifier" validate:"identifier"`
}

// AdminPasswordResetRequest is the body of POST /admin/accounts/password-reset
type AdminPasswordResetRequest struct {
	Identifier       string `json:"identifier" validate:"identifier"`
	SendNotification *bool  `json:"send_notification"`
}

// UnlockResponse is returned after an unlock
type UnlockResponse struct {
	Identifier string    `json:"identifier"`
	UnlockedBy string    `json:"unlocked_by"`
	UnlockedAt time.Time `json:"unlocked_at"`
}

// AdminPasswordResetResponse is returned after a reset is required
type AdminPasswordResetResponse struct {
	Identifier       string    `json:"identifier"`
	TokenExpiresAt   time.Time `json:"token_expires_at"`
	NotificationSent bool      `json:"notification_sent"`
}

// AuditEventResponse is one recent audit event
type AuditEventResponse struct {
	EventType     string    `json:"event_type"`
	Action        string    `json:"action"`
	Success       bool      `json:"success"`
	FailureReason *string   `json:"failure_reason,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// LockoutStatusResponse is the read-only lock snapshot
type LockoutStatusResponse struct {
	Identifier            string               `json:"identifier"`
	Role                  string               `json:"role"`
	Locked                bool                 `json:"locked"`
	Permanent             bool                 `json:"permanent"`
	Stage                 int                  `json:"stage"`
	LockedUntil           *time.Time           `json:"locked_until,omitempty"`
	RemainingSeconds      int64                `json:"remaining_seconds"`
	ConsecutiveFailures   int                  `json:"consecutive_failures"`
	TotalFailures         int                  `json:"total_failures"`
	LastFailedAt          *time.Time           `json:"last_failed_at,omitempty"`
	LastSuccessAt         *time.Time           `json:"last_success_at,omitempty"`
	PasswordResetRequired bool                 `json:"password_reset_required"`
	RecentEvents          []AuditEventResponse `json:"recent_events"`
}

func actorFromRequest(r *http.Request) (services.AdminActor, bool) {
	claims := auth.GetAccountFromContext(r)
	if claims == nil || claims.AccountID == "" {
		return services.AdminActor{}, false
	}
	return services.AdminActor{ID: claims.AccountID, Identifier: claims.Identifier}, true
}

// Unlock handles POST /admin/accounts/unlock
func (h *AdminHandler) Unlock(w http.ResponseWriter, r *http.Request) {
	admin, ok := actorFromRequest(r)
	if !ok {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	var req UnlockRequest
	if err := pkghttp.DecodeJSON(w, r, &req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	result, err := h.service.Unlock(r.Context(), req.Identifier, admin)
	if err != nil {
		h.writeError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, UnlockResponse{
		Identifier: result.Identifier,
		UnlockedBy: result.UnlockedBy,
		UnlockedAt: result.UnlockedAt,
	})
}

// RequirePasswordReset handles POST /admin/accounts/password-reset
func (h *AdminHandler) RequirePasswordReset(w http.ResponseWriter, r *http.Request) {
	admin, ok := actorFromRequest(r)
	if !ok {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	var req AdminPasswordResetRequest
	if err := pkghttp.DecodeJSON(w, r, &req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	send := true
	if req.SendNotification != nil {
		send = *req.SendNotification
	}

	result, err := h.service.RequirePasswordReset(r.Context(), req.Identifier, admin, send)
	if err != nil {
		h.writeError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, AdminPasswordResetResponse{
		Identifier:       result.Identifier,
		TokenExpiresAt:   result.TokenExpiresAt,
		NotificationSent: result.NotificationSent,
	})
}

// LockoutStatus handles GET /admin/accounts/{identifier}/lockout
func (h *AdminHandler) LockoutStatus(w http.ResponseWriter, r *http.Request) {
	identifier := chi.URLParam(r, "identifier")
	if err := validate.Var(identifier, "identifier"); err != nil {
		pkghttp.WriteBadRequest(w, "validation failed: identifier: must be a valid email address")
		return
	}

	result, err := h.service.LockoutStatus(r.Context(), identifier)
	if err != nil {
		h.writeError(w, err)
		return
	}

	resp := LockoutStatusResponse{
		Identifier:            result.Identifier,
		Role:                  result.Role,
		Locked:                result.Status.Active,
		Permanent:             result.Status.Permanent,
		Stage:                 int(result.Status.Stage),
		LockedUntil:           result.Status.ExpiresAt,
		RemainingSeconds:      result.Status.RemainingSeconds,
		ConsecutiveFailures:   result.ConsecutiveFailures,
		TotalFailures:         result.TotalFailures,
		LastFailedAt:          result.LastFailedAt,
		LastSuccessAt:         result.LastSuccessAt,
		PasswordResetRequired: result.PasswordResetRequired,
		RecentEvents:          make([]AuditEventResponse, 0, len(result.RecentEvents)),
	}
	for _, e := range result.RecentEvents {
		resp.RecentEvents = append(resp.RecentEvents, AuditEventResponse{
			EventType:     e.EventType,
			Action:        e.Action,
			Success:       e.Success,
			FailureReason: e.FailureReason,
			CreatedAt:     e.CreatedAt,
		})
	}

	pkghttp.WriteJSON(w, http.StatusOK, resp)
}

func (h *AdminHandler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		pkghttp.WriteNotFound(w, "Account not found")
	case errors.Is(err, models.ErrBadRequest):
		pkghttp.WriteBadRequest(w, "Request cannot be applied to this account")
	case errors.Is(err, models.ErrUnauthorized):
		pkghttp.WriteUnauthorized(w, "Authentication required")
	case errors.Is(err, models.ErrStoreUnavailable):
		pkghttp.WriteServiceUnavailable(w, "Service temporarily unavailable")
	default:
		h.logger.Error("admin override failed", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Internal server error")
	}
}
