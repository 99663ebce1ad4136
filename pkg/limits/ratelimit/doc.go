// Package ratelimit implements per-address request quotas for the gateway.
//
// Each client address gets a fixed window counter: the first request in a
// window records the window start, subsequent requests increment the counter,
// and once the counter would exceed the configured limit the request is
// rejected. When the window duration has elapsed the counter rolls over and
// counting starts fresh.
//
// # Thread Safety
//
// The tracker is safe for concurrent use by every connection handler in the
// process. Each address entry carries its own mutex so that rollover and
// increment happen atomically per address without serializing unrelated
// clients behind a single global lock.
//
// # Memory
//
// Entries for addresses that have been idle for several windows are evicted
// by a background janitor to bound memory. Eviction is equivalent to a
// rollover: an evicted address starts a new window on its next request.
package ratelimit
