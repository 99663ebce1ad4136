// Package storage persists rate-limit window state across restarts.
//
// Without persistence, restarting the gateway resets every client's quota
// window, letting a limited client start over by waiting for a restart. The
// SQLite backend snapshots the tracker's windows periodically and restores
// them at startup; windows that expired while the process was down are
// discarded on restore.
//
// Persistence is optional. When no snapshot path is configured the gateway
// runs with the in-memory tracker alone.
package storage
