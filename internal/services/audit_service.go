package services

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/BradenHooton/cyberarcade/internal/metrics"
	"github.com/BradenHooton/cyberarcade/internal/models"
	pkglogger "github.com/BradenHooton/cyberarcade/pkg/logger"
	"github.com/google/uuid"
)

// AuditLogRepository persists audit trail entries
type AuditLogRepository interface {
	Create(ctx context.Context, log *models.AuditLog) (*models.AuditLog, error)
	GetByTargetID(ctx context.Context, targetID uuid.UUID, limit int) ([]*models.AuditLog, error)
}

// AuditEntry is one audit trail record. IDs are account UUID strings.
type AuditEntry struct {
	EventType     string
	Action        string
	ActorID       string
	TargetID      string
	Identifier    string
	Success       bool
	FailureReason string
	IPAddress     string
	UserAgent     string
	Metadata      map[string]string
}

// AuditSink accepts audit entries. Implementations must not fail the caller.
type AuditSink interface {
	Record(ctx context.Context, entry AuditEntry)
}

// AuditService handles audit logging with dual-write pattern (slog + database)
type AuditService struct {
	repo        AuditLogRepository
	auditLogger *pkglogger.AuditLogger
	logger      *slog.Logger
}

// NewAuditService creates a new AuditService
func NewAuditService(repo AuditLogRepository, auditLogger *pkglogger.AuditLogger, logger *slog.Logger) *AuditService {
	return &AuditService{
		repo:        repo,
		auditLogger: auditLogger,
		logger:      logger,
	}
}

// Record writes the entry to the structured log and then to the database.
// Persistence failures are logged and counted, never returned.
func (s *AuditService) Record(ctx context.Context, entry AuditEntry) {
	event := pkglogger.AuditEvent{
		EventType:     entry.EventType,
		Action:        entry.Action,
		AccountID:     entry.TargetID,
		ActorID:       entry.ActorID,
		Identifier:    entry.Identifier,
		IPAddress:     entry.IPAddress,
		UserAgent:     entry.UserAgent,
		Success:       entry.Success,
		FailureReason: entry.FailureReason,
		Metadata:      entry.Metadata,
	}
	if entry.EventType == models.AuditEventTypeAdminOverride {
		s.auditLogger.LogAdminAction(ctx, event)
	} else {
		s.auditLogger.LogAuthAttempt(ctx, event)
	}

	if _, err := s.repo.Create(ctx, toAuditLog(entry)); err != nil {
		metrics.RecordAuditFailure()
		s.logger.ErrorContext(ctx, "failed to persist audit log",
			slog.String("event_type", entry.EventType),
			slog.String("action", entry.Action),
			slog.Any("error", err),
		)
	}
}

// RecentForAccount returns the latest audit entries targeting an account
func (s *AuditService) RecentForAccount(ctx context.Context, accountID string, limit int) ([]*models.AuditLog, error) {
	id, err := uuid.Parse(accountID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid account id", models.ErrBadRequest)
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	logs, err := s.repo.GetByTargetID(ctx, id, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get audit trail: %w", err)
	}
	return logs, nil
}

func toAuditLog(e AuditEntry) *models.AuditLog {
	resourceType := models.AuditResourceTypeAccount
	log := &models.AuditLog{
		EventType:    e.EventType,
		ActorID:      parseOptionalUUID(e.ActorID),
		TargetID:     parseOptionalUUID(e.TargetID),
		ResourceType: &resourceType,
		Action:       e.Action,
		Success:      e.Success,
		Metadata:     models.AuditMetadata{},
	}
	if e.TargetID != "" {
		log.ResourceID = stringPtr(e.TargetID)
	}
	if e.FailureReason != "" {
		log.FailureReason = stringPtr(e.FailureReason)
	}
	if e.IPAddress != "" {
		log.IPAddress = stringPtr(e.IPAddress)
	}
	if e.UserAgent != "" {
		log.UserAgent = stringPtr(e.UserAgent)
	}
	if e.Identifier != "" {
		log.Metadata["identifier"] = pkglogger.SanitizedEmail(e.Identifier)
	}
	for k, v := range e.Metadata {
		log.Metadata[k] = v
	}
	return log
}

func parseOptionalUUID(s string) *uuid.UUID {
	if s == "" {
		return nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return nil
	}
	return &id
}

func stringPtr(s string) *string {
	return &s
}

func itoa(n int) string {
	return strconv.Itoa(n)
}

func boolString(b bool) string {
	return strconv.FormatBool(b)
}
