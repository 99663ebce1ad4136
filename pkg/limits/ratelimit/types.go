package ratelimit

import "time"

// Config contains configuration for the per-address tracker.
type Config struct {
	// MaxRequests is the number of requests allowed per address per window.
	MaxRequests int

	// Window is the quota window duration.
	Window time.Duration

	// IdleEviction is how long an address entry may sit untouched before the
	// janitor removes it. Zero selects a default of three windows.
	IdleEviction time.Duration
}

// Result contains the outcome of a quota check.
type Result struct {
	// Allowed indicates whether the request is permitted.
	Allowed bool

	// Count is the number of requests recorded in the current window,
	// including this one if it was allowed.
	Count int

	// Limit is the configured per-window limit.
	Limit int

	// Reset is when the current window rolls over.
	Reset time.Time
}

// WindowState is the serializable state of one address's quota window,
// used by the snapshot persistence backend.
type WindowState struct {
	// Address is the client address this window belongs to.
	Address string `json:"address"`

	// Count is the number of requests seen in the current window.
	Count int `json:"count"`

	// WindowStart is when the current window began.
	WindowStart time.Time `json:"window_start"`
}
