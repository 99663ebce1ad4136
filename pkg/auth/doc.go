// Package auth validates client tokens against a static allow-list.
//
// The gateway authenticates each WebSocket connection exactly once: the first
// message must be a handshake carrying a token, and the token must appear in
// the configured allow-list. This package owns the allow-list itself; the
// handshake framing lives in the gateway package.
//
// The allow-list can optionally be sourced from a token file (one token per
// line) that is watched for changes, allowing token rotation without a
// restart. Everything else about the process configuration stays immutable.
package auth
