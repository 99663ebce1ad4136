package gateway

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gorilla/websocket"
)

// Close codes distinguish why the gateway terminated a connection.
// Policy violations (bad token) and resource exhaustion (rate limit) are the
// only fatal protocol errors and must never be conflated with transport
// failures.
const (
	// CloseInvalidToken closes a connection whose handshake failed.
	CloseInvalidToken = websocket.ClosePolicyViolation // 1008

	// CloseRateLimited closes a connection that exceeded its quota.
	CloseRateLimited = websocket.CloseTryAgainLater // 1013
)

// Outbound message type tags.
const (
	TypeWelcome = "welcome"
	TypeChunk   = "chunk"
	TypeDone    = "done"
	TypeError   = "error"
)

// Inbound message type tags.
const (
	TypeAsk = "ask"
)

// Handshake is the first message a client must send on a new connection.
type Handshake struct {
	Token string `json:"token"`
}

// Ask is a prompt request from an authenticated client.
type Ask struct {
	Type   string `json:"type"`
	Prompt string `json:"prompt"`
}

// Welcome acknowledges a successful handshake.
type Welcome struct {
	Type   string `json:"type"`
	Status string `json:"status"`
}

// Chunk relays one streamed fragment of the model's response.
type Chunk struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// Done marks the end of a streamed response.
type Done struct {
	Type string `json:"type"`
}

// ErrorMessage reports a failure to the client. Unless it precedes a close
// frame, the connection stays open.
type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// NewWelcome returns the handshake acknowledgment.
func NewWelcome() Welcome {
	return Welcome{Type: TypeWelcome, Status: "authorized"}
}

// NewChunk returns a chunk message for one fragment.
func NewChunk(content string) Chunk {
	return Chunk{Type: TypeChunk, Content: content}
}

// NewDone returns the end-of-response marker.
func NewDone() Done {
	return Done{Type: TypeDone}
}

// NewError returns an error message with the given text.
func NewError(message string) ErrorMessage {
	return ErrorMessage{Type: TypeError, Message: message}
}

// ParseHandshake parses the handshake message. A missing or blank token is
// an error; the caller treats any parse failure as an invalid token.
func ParseHandshake(data []byte) (string, error) {
	var hs Handshake
	if err := json.Unmarshal(data, &hs); err != nil {
		return "", fmt.Errorf("malformed handshake: %w", err)
	}
	token := strings.TrimSpace(hs.Token)
	if token == "" {
		return "", fmt.Errorf("handshake missing token")
	}
	return token, nil
}

// ParseAsk parses an inbound message from an authenticated client.
//
// The inbound protocol is a closed set: only "ask" is known. Malformed JSON,
// an unknown type tag, and an empty prompt are all reported as errors the
// handler converts into non-fatal error replies.
func ParseAsk(data []byte) (*Ask, error) {
	// Decode the tag first so an unknown type is reported as such rather
	// than as a missing prompt.
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("malformed message: %w", err)
	}
	if probe.Type != TypeAsk {
		return nil, fmt.Errorf("unknown message type %q", probe.Type)
	}

	var ask Ask
	if err := json.Unmarshal(data, &ask); err != nil {
		return nil, fmt.Errorf("malformed ask message: %w", err)
	}
	if strings.TrimSpace(ask.Prompt) == "" {
		return nil, fmt.Errorf("empty prompt")
	}

	return &ask, nil
}
