package background

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// ResetTokenSweeper clears password reset tokens past their expiry
type ResetTokenSweeper interface {
	ClearExpiredResetTokens(ctx context.Context, now time.Time) (int64, error)
}

// AuditPruner deletes audit rows older than a retention window
type AuditPruner interface {
	Cleanup(ctx context.Context, olderThanDays int) (int64, error)
}

// WindowPruner drops expired in-process rate limit windows
type WindowPruner interface {
	Prune(now time.Time) int
}

// CleanupConfig controls what each cleanup pass removes
type CleanupConfig struct {
	Interval           time.Duration
	AuditRetentionDays int // 0 keeps audit logs forever
}

// CleanupManager periodically removes expired reset tokens, stale rate
// limit windows and audit rows past retention. Lockouts themselves expire
// lazily on the next login and need no sweep.
type CleanupManager struct {
	resetTokens ResetTokenSweeper
	audit       AuditPruner
	windows     WindowPruner
	config      CleanupConfig
	logger      *slog.Logger
	now         func() time.Time
	stopCh      chan struct{}
	stopOnce    sync.Once
}

// NewCleanupManager creates a new cleanup manager. audit and windows may be
// nil when the deployment has nothing of that kind to prune.
func NewCleanupManager(
	resetTokens ResetTokenSweeper,
	audit AuditPruner,
	windows WindowPruner,
	config CleanupConfig,
	logger *slog.Logger,
) *CleanupManager {
	return &CleanupManager{
		resetTokens: resetTokens,
		audit:       audit,
		windows:     windows,
		config:      config,
		logger:      logger,
		now:         time.Now,
		stopCh:      make(chan struct{}),
	}
}

// Start begins the periodic cleanup task
func (cm *CleanupManager) Start(ctx context.Context) {
	ticker := time.NewTicker(cm.config.Interval)
	defer ticker.Stop()

	// Run immediately on startup
	cm.RunOnce(ctx)

	for {
		select {
		case <-ticker.C:
			cm.RunOnce(ctx)
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

// RunOnce performs a single cleanup pass. Failures are logged and the
// remaining jobs still run.
func (cm *CleanupManager) RunOnce(ctx context.Context) {
	cleanupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	now := cm.now().UTC()

	if cm.resetTokens != nil {
		rows, err := cm.resetTokens.ClearExpiredResetTokens(cleanupCtx, now)
		if err != nil {
			cm.logger.Error("failed to clear expired reset tokens", slog.Any("error", err))
		} else if rows > 0 {
			cm.logger.Info("expired reset tokens cleared", slog.Int64("rows", rows))
		}
	}

	if cm.audit != nil && cm.config.AuditRetentionDays > 0 {
		rows, err := cm.audit.Cleanup(cleanupCtx, cm.config.AuditRetentionDays)
		if err != nil {
			cm.logger.Error("failed to prune audit logs", slog.Any("error", err))
		} else if rows > 0 {
			cm.logger.Info("audit logs pruned", slog.Int64("rows", rows), slog.Int("retention_days", cm.config.AuditRetentionDays))
		}
	}

	if cm.windows != nil {
		if n := cm.windows.Prune(now); n > 0 {
			cm.logger.Debug("rate limit windows pruned", slog.Int("windows", n))
		}
	}
}

// Stop signals the cleanup manager to stop. Safe to call more than once.
func (cm *CleanupManager) Stop() {
	cm.stopOnce.Do(func() { close(cm.stopCh) })
}
