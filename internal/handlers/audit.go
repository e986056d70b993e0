package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/BradenHooton/cyberarcade/internal/models"
	pkghttp "github.com/BradenHooton/cyberarcade/pkg/http"
	"github.com/go-chi/chi/v5"
)

// AuditTrailService defines the interface for reading the audit trail
type AuditTrailService interface {
	RecentForAccount(ctx context.Context, accountID string, limit int) ([]*models.AuditLog, error)
}

// AuditHandler handles audit log HTTP requests
type AuditHandler struct {
	trail  AuditTrailService
	logger *slog.Logger
}

// NewAuditHandler creates a new AuditHandler
func NewAuditHandler(trail AuditTrailService, logger *slog.Logger) *AuditHandler {
	return &AuditHandler{trail: trail, logger: logger}
}

// AuditLogResponse represents an audit log entry in HTTP response
type AuditLogResponse struct {
	ID            string                 `json:"id"`
	EventType     string                 `json:"event_type"`
	ActorID       *string                `json:"actor_id,omitempty"`
	TargetID      *string                `json:"target_id,omitempty"`
	Action        string                 `json:"action"`
	Success       bool                   `json:"success"`
	FailureReason *string                `json:"failure_reason,omitempty"`
	IPAddress     *string                `json:"ip_address,omitempty"`
	UserAgent     *string                `json:"user_agent,omitempty"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt     string                 `json:"created_at"`
}

// AuditTrailResponse is the body of GET /admin/accounts/id/{id}/audit
type AuditTrailResponse struct {
	Logs  []*AuditLogResponse `json:"logs"`
	Limit int                 `json:"limit"`
}

// GetAccountAuditTrail retrieves the newest audit entries targeting an account
func (h *AuditHandler) GetAccountAuditTrail(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "id")

	limit := 20
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 100 {
			limit = l
		}
	}

	logs, err := h.trail.RecentForAccount(r.Context(), accountID, limit)
	if err != nil {
		if errors.Is(err, models.ErrBadRequest) {
			pkghttp.WriteBadRequest(w, "invalid account id")
			return
		}
		h.logger.Error("failed to read audit trail", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	response := make([]*AuditLogResponse, len(logs))
	for i, log := range logs {
		response[i] = auditLogToResponse(log)
	}

	w.Header().Set("X-Total-Count", strconv.Itoa(len(response)))
	pkghttp.WriteJSON(w, http.StatusOK, AuditTrailResponse{Logs: response, Limit: limit})
}

// auditLogToResponse converts an audit log model to a response DTO
func auditLogToResponse(log *models.AuditLog) *AuditLogResponse {
	resp := &AuditLogResponse{
		ID:            log.ID.String(),
		EventType:     log.EventType,
		Action:        log.Action,
		Success:       log.Success,
		FailureReason: log.FailureReason,
		IPAddress:     log.IPAddress,
		UserAgent:     log.UserAgent,
		Metadata:      log.Metadata,
		CreatedAt:     log.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}

	if log.ActorID != nil {
		actorStr := log.ActorID.String()
		resp.ActorID = &actorStr
	}
	if log.TargetID != nil {
		targetStr := log.TargetID.String()
		resp.TargetID = &targetStr
	}

	return resp
}
