package background

import (
	"context"
	"log/slog"
	"time"
)

// Retention for daily spend counters. Yesterday's counter is dead weight the
// moment the day rolls over; a week covers any support questions.
const spendRetention = 7 * 24 * time.Hour

// ExpiredChallengeStore removes one-time passcode challenges past their expiry
type ExpiredChallengeStore interface {
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// SpendPruner removes per-day spend counters older than a cutoff day
type SpendPruner interface {
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// RateLimitPurger evicts rate-limit entries whose window and block have elapsed
type RateLimitPurger interface {
	PurgeExpired(now time.Time, window time.Duration) int
}

// CleanupManager periodically removes expired passcode challenges, stale
// rate-limit entries, and old spend counters.
type CleanupManager struct {
	challenges    ExpiredChallengeStore
	spend         SpendPruner
	limiterStore  RateLimitPurger
	limiterWindow time.Duration
	logger        *slog.Logger
	interval      time.Duration
	stopCh        chan struct{}
}

// NewCleanupManager creates a new cleanup manager
func NewCleanupManager(
	challenges ExpiredChallengeStore,
	spend SpendPruner,
	limiterStore RateLimitPurger,
	limiterWindow time.Duration,
	logger *slog.Logger,
	interval time.Duration,
) *CleanupManager {
	return &CleanupManager{
		challenges:    challenges,
		spend:         spend,
		limiterStore:  limiterStore,
		limiterWindow: limiterWindow,
		logger:        logger,
		interval:      interval,
		stopCh:        make(chan struct{}),
	}
}

// Start begins the periodic cleanup task
func (cm *CleanupManager) Start(ctx context.Context) {
	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	// Run immediately on startup
	cm.runCleanup(ctx)

	for {
		select {
		case <-ticker.C:
			cm.runCleanup(ctx)
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

func (cm *CleanupManager) runCleanup(ctx context.Context) {
	cleanupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	now := time.Now()

	deleted, err := cm.challenges.DeleteExpired(cleanupCtx, now)
	if err != nil {
		cm.logger.Error("failed to cleanup expired challenges", slog.Any("error", err))
	} else if deleted > 0 {
		cm.logger.Info("expired challenge cleanup completed", slog.Int64("rows_deleted", deleted))
	}

	pruned, err := cm.spend.DeleteBefore(cleanupCtx, now.Add(-spendRetention))
	if err != nil {
		cm.logger.Error("failed to prune old spend counters", slog.Any("error", err))
	} else if pruned > 0 {
		cm.logger.Info("spend counter pruning completed", slog.Int64("rows_deleted", pruned))
	}

	if cm.limiterStore != nil {
		if evicted := cm.limiterStore.PurgeExpired(now, cm.limiterWindow); evicted > 0 {
			cm.logger.Info("rate limit entries evicted", slog.Int("entries", evicted))
		}
	}
}

// Stop signals the cleanup manager to stop
func (cm *CleanupManager) Stop() {
	close(cm.stopCh)
}
