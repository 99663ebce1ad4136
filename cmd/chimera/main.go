// Chimera is a WebSocket gateway in front of a local generative model server.
//
// It accepts WebSocket connections, authenticates each one with a shared
// token, enforces a per-address request quota, forwards prompts to the model
// server, and streams the generated response back to the client fragment by
// fragment. Every prompt and every streamed fragment is appended to a local
// conversation log with age-based retention.
//
// Usage:
//
//	# Start the gateway with default configuration
//	chimera run
//
//	# Start with a custom configuration file
//	chimera run --config /etc/chimera/config.yaml
//
//	# Override the listen address
//	chimera run --listen 0.0.0.0:8765
//
//	# Run a one-off retention pass over the conversation log
//	chimera prune
//
//	# Show version information
//	chimera version
package main

func main() {
	Execute()
}
