package storage

import (
	"context"
	"sync"
	"time"

	"github.com/moonrox420/chimera-gateway/pkg/limits/ratelimit"
)

// MemoryBackend implements Backend with an in-process snapshot.
// It provides no durability across restarts and exists for tests and for
// deployments that want the flush machinery without a database file.
type MemoryBackend struct {
	mu     sync.RWMutex
	states []ratelimit.WindowState
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{}
}

// Save replaces the held snapshot.
func (b *MemoryBackend) Save(_ context.Context, states []ratelimit.WindowState) error {
	copied := make([]ratelimit.WindowState, len(states))
	copy(copied, states)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.states = copied
	return nil
}

// Load returns the held snapshot.
func (b *MemoryBackend) Load(_ context.Context) ([]ratelimit.WindowState, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	copied := make([]ratelimit.WindowState, len(b.states))
	copy(copied, b.states)
	return copied, nil
}

// Cleanup removes held windows that started before the cutoff.
func (b *MemoryBackend) Cleanup(_ context.Context, olderThan time.Time) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	kept := b.states[:0]
	deleted := 0
	for _, s := range b.states {
		if s.WindowStart.Before(olderThan) {
			deleted++
			continue
		}
		kept = append(kept, s)
	}
	b.states = kept
	return deleted, nil
}

// Close is a no-op for the memory backend.
func (b *MemoryBackend) Close() error {
	return nil
}
