package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
)

// RetentionScheduler runs the store's age-based pruning on a cron schedule,
// in addition to the prune pass the gateway runs at startup.
type RetentionScheduler struct {
	store         *SQLiteStore
	retentionDays int
	schedule      string
	cron          *cron.Cron
	logger        *slog.Logger

	mu      sync.Mutex
	running bool
}

// NewRetentionScheduler creates a scheduler for the given store.
// An empty schedule yields a scheduler whose Start is a no-op.
func NewRetentionScheduler(store *SQLiteStore, retentionDays int, schedule string, logger *slog.Logger) *RetentionScheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RetentionScheduler{
		store:         store,
		retentionDays: retentionDays,
		schedule:      schedule,
		cron:          cron.New(),
		logger:        logger.With("component", "store.retention"),
	}
}

// Start begins scheduled pruning. Common expressions:
//
//   - "0 3 * * *"   - daily at 3 AM
//   - "0 */6 * * *" - every 6 hours
//
// The scheduler stops when the context is cancelled.
func (s *RetentionScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.schedule == "" {
		s.logger.Info("prune schedule not configured, skipping scheduler")
		return nil
	}
	if s.running {
		return fmt.Errorf("retention scheduler already running")
	}

	if _, err := cron.ParseStandard(s.schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", s.schedule, err)
	}

	_, err := s.cron.AddFunc(s.schedule, func() {
		s.runPruning(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule pruning: %w", err)
	}

	s.cron.Start()
	s.running = true

	s.logger.Info("retention scheduler started",
		"schedule", s.schedule,
		"retention_days", s.retentionDays,
	)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

// Stop halts scheduled pruning. Safe to call multiple times.
func (s *RetentionScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.running = false

	stopCtx := s.cron.Stop()
	<-stopCtx.Done()

	s.logger.Info("retention scheduler stopped")
}

func (s *RetentionScheduler) runPruning(ctx context.Context) {
	deleted, err := s.store.Prune(ctx, s.retentionDays)
	if err != nil {
		s.logger.Error("scheduled pruning failed", "error", err)
		return
	}
	s.logger.Info("scheduled pruning completed", "deleted_count", deleted)
}
