package model

// GenerationRequest is the JSON body of a generation request.
type GenerationRequest struct {
	// Model is the model identifier.
	Model string `json:"model"`

	// Prompt is the user's prompt text.
	Prompt string `json:"prompt"`

	// Stream requests incremental output. Always true for this gateway.
	Stream bool `json:"stream"`
}

// generateChunk is one line of the newline-delimited JSON response.
type generateChunk struct {
	// Response is the incremental text, possibly empty.
	Response string `json:"response"`

	// Done marks the end of the generation.
	Done bool `json:"done"`
}

// Fragment is one incremental piece of generated output.
type Fragment struct {
	// Content is the incremental text chunk. Never empty: lines with empty
	// increments are skipped, not forwarded.
	Content string

	// Done indicates the generation is complete. A terminal fragment may
	// also carry content.
	Done bool
}
