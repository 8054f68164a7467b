package orchestrators

import (
	"context"
	"log/slog"
	"time"
)

// ViewSweeper deletes views idle for longer than ttl.
type ViewSweeper interface {
	DeleteExpired(ctx context.Context, now time.Time, ttl time.Duration) (int, error)
}

// SweepViewsDeps holds dependencies for SweepViews.
type SweepViewsDeps struct {
	Views ViewSweeper
	TTL   time.Duration
	Now   func() time.Time
}

// ExecuteSweepViews removes expired views once.
// POST: no view idle longer than TTL remains in the store
func ExecuteSweepViews(ctx context.Context, deps SweepViewsDeps) (int, error) {
	now := time.Now
	if deps.Now != nil {
		now = deps.Now
	}
	n, err := deps.Views.DeleteExpired(ctx, now(), deps.TTL)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		slog.Info("views_swept", "deleted", n)
	}
	return n, nil
}

// StartViewSweeper runs ExecuteSweepViews every interval until stopCh is closed.
func StartViewSweeper(deps SweepViewsDeps, interval time.Duration, stopCh <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
				if _, err := ExecuteSweepViews(ctx, deps); err != nil {
					slog.Error("view_sweep_failed", "error", err.Error())
				}
				cancel()
			case <-stopCh:
				slog.Info("view_sweeper_stopped")
				return
			}
		}
	}()
}
