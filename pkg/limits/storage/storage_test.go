package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/moonrox420/chimera-gateway/pkg/limits/ratelimit"
)

func testStates() []ratelimit.WindowState {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	return []ratelimit.WindowState{
		{Address: "10.0.0.1", Count: 3, WindowStart: base},
		{Address: "10.0.0.2", Count: 1, WindowStart: base.Add(-30 * time.Second)},
	}
}

// backendTest exercises the Backend contract against any implementation.
func backendTest(t *testing.T, backend Backend) {
	t.Helper()
	ctx := context.Background()

	// Empty load.
	states, err := backend.Load(ctx)
	if err != nil {
		t.Fatalf("initial load failed: %v", err)
	}
	if len(states) != 0 {
		t.Fatalf("expected empty snapshot, got %d entries", len(states))
	}

	// Save and load back.
	want := testStates()
	if err := backend.Save(ctx, want); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	states, err = backend.Load(ctx)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(states) != 2 {
		t.Fatalf("loaded %d entries, want 2", len(states))
	}

	byAddr := make(map[string]ratelimit.WindowState, len(states))
	for _, s := range states {
		byAddr[s.Address] = s
	}
	got, ok := byAddr["10.0.0.1"]
	if !ok || got.Count != 3 {
		t.Errorf("unexpected state for 10.0.0.1: %+v", got)
	}
	if !got.WindowStart.Equal(want[0].WindowStart) {
		t.Errorf("window start = %v, want %v", got.WindowStart, want[0].WindowStart)
	}

	// Save replaces, not appends.
	if err := backend.Save(ctx, want[:1]); err != nil {
		t.Fatalf("second save failed: %v", err)
	}
	states, err = backend.Load(ctx)
	if err != nil {
		t.Fatalf("load after replace failed: %v", err)
	}
	if len(states) != 1 {
		t.Fatalf("loaded %d entries after replace, want 1", len(states))
	}

	// Cleanup removes old windows.
	if err := backend.Save(ctx, want); err != nil {
		t.Fatalf("save before cleanup failed: %v", err)
	}
	cutoff := want[0].WindowStart // strictly-before semantics keep entry 0
	deleted, err := backend.Cleanup(ctx, cutoff)
	if err != nil {
		t.Fatalf("cleanup failed: %v", err)
	}
	if deleted != 1 {
		t.Errorf("cleanup deleted %d, want 1", deleted)
	}

	if err := backend.Close(); err != nil {
		t.Errorf("close failed: %v", err)
	}
}

func TestMemoryBackend(t *testing.T) {
	backendTest(t, NewMemoryBackend())
}

func TestSQLiteBackend(t *testing.T) {
	backend, err := NewSQLiteBackend(filepath.Join(t.TempDir(), "quota.db"))
	if err != nil {
		t.Fatalf("failed to create backend: %v", err)
	}
	backendTest(t, backend)
}

func TestSQLiteBackend_EmptyPath(t *testing.T) {
	if _, err := NewSQLiteBackend(""); err == nil {
		t.Error("expected error for empty path")
	}
}

func TestSQLiteBackend_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "quota.db")

	backend, err := NewSQLiteBackend(path)
	if err != nil {
		t.Fatalf("failed to create backend: %v", err)
	}
	if err := backend.Save(ctx, testStates()); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if err := backend.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	reopened, err := NewSQLiteBackend(path)
	if err != nil {
		t.Fatalf("failed to reopen backend: %v", err)
	}
	defer reopened.Close()

	states, err := reopened.Load(ctx)
	if err != nil {
		t.Fatalf("load after reopen failed: %v", err)
	}
	if len(states) != 2 {
		t.Errorf("loaded %d entries after reopen, want 2", len(states))
	}
}
