package ratelimit

import (
	"sync"
	"time"
)

// Tracker enforces a fixed-window request quota per client address.
type Tracker struct {
	config Config

	mu      sync.RWMutex
	entries map[string]*entry

	stopJanitor chan struct{}
	janitorDone chan struct{}
	stopOnce    sync.Once

	// now is replaceable for tests.
	now func() time.Time
}

// entry is the quota window for a single address.
// count and windowStart are only touched with mu held, so rollover and
// increment are atomic as a unit per address.
type entry struct {
	mu          sync.Mutex
	count       int
	windowStart time.Time
	lastSeen    time.Time
}

// NewTracker creates a tracker with the given configuration and starts its
// eviction janitor. Call Close to stop the janitor.
func NewTracker(config Config) *Tracker {
	if config.IdleEviction <= 0 {
		config.IdleEviction = 3 * config.Window
	}

	t := &Tracker{
		config:      config,
		entries:     make(map[string]*entry),
		stopJanitor: make(chan struct{}),
		janitorDone: make(chan struct{}),
		now:         time.Now,
	}

	go t.janitor()

	return t
}

// Check records one request for the given address and reports whether it is
// within quota. The window rolls over first if it has expired; then the
// counter is incremented; if the incremented count exceeds the limit the
// request is rejected and the counter stays saturated until the window rolls.
func (t *Tracker) Check(address string) Result {
	e := t.entry(address)

	e.mu.Lock()
	defer e.mu.Unlock()

	now := t.now()
	e.lastSeen = now

	if now.Sub(e.windowStart) > t.config.Window {
		e.count = 0
		e.windowStart = now
	}

	reset := e.windowStart.Add(t.config.Window)

	if e.count >= t.config.MaxRequests {
		return Result{
			Allowed: false,
			Count:   e.count,
			Limit:   t.config.MaxRequests,
			Reset:   reset,
		}
	}

	e.count++
	return Result{
		Allowed: true,
		Count:   e.count,
		Limit:   t.config.MaxRequests,
		Reset:   reset,
	}
}

// entry returns the window entry for an address, creating it if needed.
func (t *Tracker) entry(address string) *entry {
	t.mu.RLock()
	e, ok := t.entries[address]
	t.mu.RUnlock()
	if ok {
		return e
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	// Re-check under the write lock: another handler may have raced us here.
	if e, ok = t.entries[address]; ok {
		return e
	}

	e = &entry{windowStart: t.now()}
	t.entries[address] = e
	return e
}

// Snapshot returns the current window state of every tracked address.
func (t *Tracker) Snapshot() []WindowState {
	t.mu.RLock()
	defer t.mu.RUnlock()

	states := make([]WindowState, 0, len(t.entries))
	for address, e := range t.entries {
		e.mu.Lock()
		states = append(states, WindowState{
			Address:     address,
			Count:       e.count,
			WindowStart: e.windowStart,
		})
		e.mu.Unlock()
	}
	return states
}

// Restore loads previously persisted window state. Windows that have already
// expired are skipped. Restore is intended for startup, before the tracker is
// shared with connection handlers.
func (t *Tracker) Restore(states []WindowState) {
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	for _, s := range states {
		if now.Sub(s.WindowStart) > t.config.Window {
			continue
		}
		t.entries[s.Address] = &entry{
			count:       s.Count,
			windowStart: s.WindowStart,
			lastSeen:    now,
		}
	}
}

// Len returns the number of tracked addresses.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Close stops the eviction janitor. The tracker remains usable; only the
// background eviction stops.
func (t *Tracker) Close() {
	t.stopOnce.Do(func() {
		close(t.stopJanitor)
		<-t.janitorDone
	})
}

// janitor periodically evicts entries idle longer than IdleEviction.
func (t *Tracker) janitor() {
	defer close(t.janitorDone)

	interval := t.config.IdleEviction
	if interval > time.Minute {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.stopJanitor:
			return
		case <-ticker.C:
			t.evictStale()
		}
	}
}

func (t *Tracker) evictStale() {
	cutoff := t.now().Add(-t.config.IdleEviction)

	t.mu.Lock()
	defer t.mu.Unlock()

	for address, e := range t.entries {
		e.mu.Lock()
		stale := e.lastSeen.Before(cutoff)
		e.mu.Unlock()
		if stale {
			delete(t.entries, address)
		}
	}
}
