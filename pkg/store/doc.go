// Package store is the durable conversation log.
//
// Every user prompt and every streamed assistant fragment becomes one turn in
// an append-only SQLite table. Turns are never updated or deleted
// individually; the only mutation besides append is bulk pruning by age,
// which runs at startup and optionally on a cron schedule.
//
// Appends are best-effort relative to the live stream: a failed write is
// logged and counted, but the client still sees its response. Within one
// connection the handler writes turns synchronously in production order, so
// per-connection ordering in the table follows insertion order.
package store
