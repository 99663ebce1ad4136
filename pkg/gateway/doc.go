// Package gateway is the WebSocket chat gateway core.
//
// The Server accepts client connections and runs one Handler per connection.
// A handler owns its connection end to end: it authenticates the handshake,
// checks the per-address quota on every prompt, forwards the prompt to the
// model server, relays the streamed fragments back to the client, and logs
// both sides of the conversation.
//
// # Connection lifecycle
//
// A connection moves through a fixed sequence of states:
//
//	CONNECTED -> AUTHENTICATING -> AUTHENTICATED -> CLOSED
//
// while authenticated it alternates between awaiting a message and streaming
// a response. Only two failures are fatal to a connection: an invalid
// handshake (closed with 1008) and an exhausted quota (closed with 1013).
// Malformed input and upstream failures produce error replies and leave the
// connection usable; persistence failures are logged and never surfaced.
//
// Each connection runs in its own goroutine with panic isolation, so a
// misbehaving handler can never take down the listener or delay another
// connection.
package gateway
