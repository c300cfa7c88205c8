package store

import (
	"context"
	"log/slog"
	"time"
)

const cleanupWorkerInterval = 1 * time.Hour

// StartCleanupWorker runs a background goroutine that periodically
// sweeps for sessions idle longer than ttl and deletes them along with
// their messages. The worker stops when ctx is cancelled.
func StartCleanupWorker(ctx context.Context, repo Repository, ttl time.Duration) {
	ticker := time.NewTicker(cleanupWorkerInterval)
	go func() {
		defer ticker.Stop()
		slog.Info("Session cleanup worker started", "interval", cleanupWorkerInterval, "ttl", ttl)

		for {
			select {
			case <-ticker.C:
				sweepExpiredSessions(ctx, repo, ttl)
			case <-ctx.Done():
				slog.Info("Session cleanup worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

func sweepExpiredSessions(ctx context.Context, repo Repository, ttl time.Duration) {
	deleted, err := repo.CleanupExpiredSessions(ctx, ttl)
	if err != nil {
		slog.Error("Cleanup worker failed to delete expired sessions", "error", err)
		return
	}
	if deleted > 0 {
		slog.Info("Cleanup worker removed expired sessions", "count", deleted)
	}
}
