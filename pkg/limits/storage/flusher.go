package storage

import (
	"context"
	"log/slog"
	"time"

	"github.com/moonrox420/chimera-gateway/pkg/limits/ratelimit"
)

// Flusher periodically snapshots a tracker's quota windows into a backend.
type Flusher struct {
	tracker  *ratelimit.Tracker
	backend  Backend
	interval time.Duration
	logger   *slog.Logger
}

// NewFlusher creates a flusher for the given tracker and backend.
func NewFlusher(tracker *ratelimit.Tracker, backend Backend, interval time.Duration, logger *slog.Logger) *Flusher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Flusher{
		tracker:  tracker,
		backend:  backend,
		interval: interval,
		logger:   logger.With("component", "limits.flusher"),
	}
}

// Run flushes snapshots on the configured interval until the context is
// cancelled, then performs one final flush so the latest state survives
// shutdown.
func (f *Flusher) Run(ctx context.Context) {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			f.flush(context.Background())
			return
		case <-ticker.C:
			f.flush(ctx)
		}
	}
}

func (f *Flusher) flush(ctx context.Context) {
	states := f.tracker.Snapshot()
	if err := f.backend.Save(ctx, states); err != nil {
		// Quota persistence is best-effort: a failed flush only costs
		// durability, never availability.
		f.logger.Warn("failed to flush quota snapshot", "error", err)
		return
	}
	f.logger.Debug("quota snapshot flushed", "windows", len(states))
}
