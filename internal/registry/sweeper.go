package registry

import (
	"context"
	"log/slog"
	"time"
)

// sweepInterval is the liveness sweeper's tick period and also the node
// staleness deadline: a node not heard from in this long is marked down.
const sweepInterval = 30 * time.Second

// RunSweeper periodically marks nodes whose last heartbeat is older than
// sweepInterval as down. It blocks until ctx is cancelled.
func RunSweeper(ctx context.Context, store *Store) {
	log := slog.With("component", "sweeper")
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			threshold := time.Now().Add(-sweepInterval).Unix()
			n, err := store.MarkStale(threshold)
			if err != nil {
				log.Error("sweep failed", "err", err)
				continue
			}
			if n > 0 {
				log.Info("marked stale nodes down", "count", n)
			}
		}
	}
}
