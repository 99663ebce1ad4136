package storage

import (
	"context"
	"time"

	"github.com/moonrox420/chimera-gateway/pkg/limits/ratelimit"
)

// Backend defines the interface for quota window persistence.
// Implementations must be safe for concurrent use.
type Backend interface {
	// Save replaces the persisted snapshot with the given window states.
	Save(ctx context.Context, states []ratelimit.WindowState) error

	// Load returns the most recently persisted window states.
	// Returns an empty slice if nothing has been persisted.
	Load(ctx context.Context) ([]ratelimit.WindowState, error)

	// Cleanup removes persisted windows that started before the cutoff.
	// Returns the number of entries deleted.
	Cleanup(ctx context.Context, olderThan time.Time) (int, error)

	// Close releases any resources held by the backend.
	Close() error
}
