package studio

import (
	"context"
	"log/slog"
	"time"
)

const ttlWorkerInterval = 5 * time.Minute

// StartTTLWorker runs a background goroutine that periodically removes
// sessions idle for longer than ttl.
func StartTTLWorker(ctx context.Context, svc *Service, ttl time.Duration) {
	ticker := time.NewTicker(ttlWorkerInterval)
	go func() {
		defer ticker.Stop()
		slog.Info("TTL worker started", "interval", ttlWorkerInterval, "ttl", ttl)

		for {
			select {
			case <-ticker.C:
				sweepIdleSessions(ctx, svc, ttl)
			case <-ctx.Done():
				slog.Info("TTL worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

func sweepIdleSessions(ctx context.Context, svc *Service, ttl time.Duration) {
	removed, err := svc.SweepIdle(ctx, svc.now().Add(-ttl))
	if err != nil {
		slog.Error("TTL worker failed to sweep idle sessions", "error", err)
		return
	}
	if removed > 0 {
		slog.Info("TTL worker cleanup completed", "removed", removed)
	}
}
