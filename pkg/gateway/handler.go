package gateway

import (
	"context"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/moonrox420/chimera-gateway/pkg/auth"
	"github.com/moonrox420/chimera-gateway/pkg/limits/ratelimit"
	"github.com/moonrox420/chimera-gateway/pkg/model"
	"github.com/moonrox420/chimera-gateway/pkg/store"
	"github.com/moonrox420/chimera-gateway/pkg/telemetry/metrics"
)

// Connection close outcomes, recorded in metrics.
const (
	outcomeNormal          = "normal"
	outcomePolicyViolation = "policy_violation"
	outcomeRateLimited     = "rate_limited"
	outcomeTransportError  = "transport_error"
)

// maxMessageBytes bounds inbound message size. Prompts are text; anything
// near this limit is abuse, not conversation.
const maxMessageBytes = 1 << 20

// Deps carries the process-wide collaborators shared by all handlers.
// All fields are required except Logger.
type Deps struct {
	Validator *auth.TokenValidator
	Limiter   *ratelimit.Tracker
	Upstream  *model.Client
	Store     *store.SQLiteStore
	Metrics   *metrics.Collector
	Logger    *slog.Logger

	// HandshakeTimeout bounds how long a connection may take to present its
	// handshake.
	HandshakeTimeout time.Duration

	// WriteTimeout bounds individual writes to the client.
	WriteTimeout time.Duration
}

// Handler owns one client connection end to end.
type Handler struct {
	conn *websocket.Conn
	deps Deps

	// sessionID identifies this connection in logs.
	sessionID string

	// remoteAddr is the peer's full network address, stored with turns.
	remoteAddr string

	// quotaKey is the peer's host without port: connections from the same
	// address share one quota window.
	quotaKey string

	// token is set exactly once, by a successful handshake.
	token  string
	logger *slog.Logger
}

// NewHandler creates a handler for an accepted connection.
func NewHandler(conn *websocket.Conn, deps Deps) *Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	remoteAddr := conn.RemoteAddr().String()
	quotaKey := remoteAddr
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		quotaKey = host
	}

	sessionID := uuid.NewString()

	return &Handler{
		conn:       conn,
		deps:       deps,
		sessionID:  sessionID,
		remoteAddr: remoteAddr,
		quotaKey:   quotaKey,
		logger: logger.With(
			"component", "gateway.handler",
			"session_id", sessionID,
			"remote_addr", remoteAddr,
		),
	}
}

// Run drives the connection to completion. It returns when the connection is
// closed, by either side, for any reason. Run never panics outward; the
// caller's recover only guards against bugs.
func (h *Handler) Run(ctx context.Context) {
	h.deps.Metrics.ConnectionOpened()
	outcome := outcomeNormal
	defer func() {
		h.conn.Close()
		h.deps.Metrics.ConnectionClosed(outcome)
		h.logger.Info("connection closed", "outcome", outcome)
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Closing the conn is the only way to unblock a pending read, so a
	// cancelled context (client gone, server shutting down) closes it.
	go func() {
		<-ctx.Done()
		h.conn.Close()
	}()

	h.conn.SetReadLimit(maxMessageBytes)

	h.logger.Info("connection accepted")

	if !h.authenticate() {
		outcome = outcomePolicyViolation
		return
	}

	outcome = h.receiveLoop(ctx, cancel)
}

// authenticate performs the one-shot handshake. The first message must carry
// a valid token within the handshake timeout. A timeout, a malformed message,
// and an unknown token are all rejected identically and the connection is
// closed as a policy violation.
func (h *Handler) authenticate() bool {
	h.conn.SetReadDeadline(time.Now().Add(h.deps.HandshakeTimeout))

	_, data, err := h.conn.ReadMessage()
	if err != nil {
		h.deps.Metrics.HandshakeFailed("timeout")
		h.rejectHandshake()
		return false
	}

	token, err := ParseHandshake(data)
	if err != nil {
		h.deps.Metrics.HandshakeFailed("malformed")
		h.logger.Warn("malformed handshake", "error", err)
		h.rejectHandshake()
		return false
	}

	if !h.deps.Validator.Validate(token) {
		h.deps.Metrics.HandshakeFailed("invalid_token")
		h.logger.Warn("handshake with unknown token")
		h.rejectHandshake()
		return false
	}

	// Authenticated: the token is immutable from here on and the read
	// deadline no longer applies.
	h.token = token
	h.conn.SetReadDeadline(time.Time{})

	if err := h.writeJSON(NewWelcome()); err != nil {
		return false
	}
	h.deps.Metrics.MessageSent(TypeWelcome)
	h.logger.Info("handshake authorized")
	return true
}

// rejectHandshake sends the rejection reply and closes with the policy
// violation code. Both writes are best-effort; the peer may already be gone.
func (h *Handler) rejectHandshake() {
	h.writeJSON(NewError("Invalid token"))
	h.closeWith(CloseInvalidToken, "invalid token")
}

// receiveLoop alternates between awaiting a message and streaming a
// response until the connection ends. It returns the close outcome.
//
// A pump goroutine is the connection's only reader from here on, so a client
// disconnect is observed even while a response is streaming: the pump's read
// fails and cancels the connection context, which aborts the pending
// upstream read.
func (h *Handler) receiveLoop(ctx context.Context, cancel context.CancelFunc) string {
	msgCh := make(chan []byte, 1)
	readErr := make(chan error, 1)

	go func() {
		for {
			_, data, err := h.conn.ReadMessage()
			if err != nil {
				readErr <- err
				close(msgCh)
				cancel()
				return
			}
			select {
			case msgCh <- data:
			case <-ctx.Done():
				readErr <- ctx.Err()
				close(msgCh)
				return
			}
		}
	}()

	for data := range msgCh {
		ask, err := ParseAsk(data)
		if err != nil {
			// Malformed input is never fatal: report and keep listening.
			h.deps.Metrics.MessageReceived("malformed")
			h.logger.Debug("malformed inbound message", "error", err)
			if werr := h.sendError("Invalid request: " + err.Error()); werr != nil {
				return outcomeTransportError
			}
			continue
		}
		h.deps.Metrics.MessageReceived(TypeAsk)

		// Quota is charged per prompt, not per connection.
		if res := h.deps.Limiter.Check(h.quotaKey); !res.Allowed {
			h.deps.Metrics.RateLimitRejected()
			h.logger.Warn("rate limit exceeded",
				"count", res.Count,
				"limit", res.Limit,
				"reset", res.Reset,
			)
			h.sendError("Rate limit exceeded")
			h.closeWith(CloseRateLimited, "rate limit exceeded")
			return outcomeRateLimited
		}

		h.appendTurn(ctx, store.RoleUser, ask.Prompt)

		if err := h.streamResponse(ctx, ask.Prompt); err != nil {
			if ctx.Err() == nil {
				return outcomeTransportError
			}
			// The pump cancelled us mid-stream; classify by its read error.
			break
		}
	}

	err := <-readErr
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
		return outcomeNormal
	}
	h.logger.Debug("receive failed", "error", err)
	return outcomeTransportError
}

// streamResponse forwards one prompt to the model server and relays the
// streamed fragments. Upstream failures are reported to the client and leave
// the connection open; only a failure to write to the client is returned as
// an error, which ends the connection.
func (h *Handler) streamResponse(ctx context.Context, prompt string) error {
	start := time.Now()

	genCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	stream, err := h.deps.Upstream.Generate(genCtx, prompt)
	if err != nil {
		// Failed before any output.
		h.deps.Metrics.UpstreamRequest("error", time.Since(start))
		h.logger.Error("generation request failed", "error", err)
		return h.sendError("Model backend unavailable")
	}
	defer stream.Close()

	relayed := 0
	for {
		frag, err := stream.Read(genCtx)
		if err == io.EOF {
			// Completed normally.
			h.deps.Metrics.UpstreamRequest("ok", time.Since(start))
			return h.sendDone()
		}
		if err != nil {
			if ctx.Err() != nil {
				// Client gone or shutting down; no one left to report to.
				h.deps.Metrics.UpstreamRequest("cancelled", time.Since(start))
				return ctx.Err()
			}
			// Completed with partial output, then errored. The connection
			// survives; the client may retry with a fresh prompt.
			outcome := "error"
			if relayed > 0 {
				outcome = "partial"
			}
			h.deps.Metrics.UpstreamRequest(outcome, time.Since(start))
			h.logger.Error("generation stream failed",
				"fragments_relayed", relayed,
				"error", err,
			)
			return h.sendError("Model stream interrupted")
		}

		if frag.Content != "" {
			if err := h.writeJSON(NewChunk(frag.Content)); err != nil {
				// Client is gone: cancel the upstream read and bail.
				return err
			}
			h.deps.Metrics.MessageSent(TypeChunk)
			h.deps.Metrics.FragmentRelayed()
			relayed++

			h.appendTurn(ctx, store.RoleAssistant, frag.Content)
		}

		if frag.Done {
			h.deps.Metrics.UpstreamRequest("ok", time.Since(start))
			return h.sendDone()
		}
	}
}

// appendTurn persists one turn, best-effort. A failed write is logged and
// counted but never interrupts the client-facing stream.
func (h *Handler) appendTurn(ctx context.Context, role, content string) {
	turn := &store.Turn{
		ClientAddress: h.remoteAddr,
		Token:         h.token,
		Role:          role,
		Content:       content,
	}
	if err := h.deps.Store.Append(ctx, turn); err != nil {
		h.deps.Metrics.StoreAppendFailed()
		h.logger.Error("failed to append conversation turn", "role", role, "error", err)
	}
}

func (h *Handler) sendDone() error {
	if err := h.writeJSON(NewDone()); err != nil {
		return err
	}
	h.deps.Metrics.MessageSent(TypeDone)
	return nil
}

func (h *Handler) sendError(message string) error {
	if err := h.writeJSON(NewError(message)); err != nil {
		return err
	}
	h.deps.Metrics.MessageSent(TypeError)
	return nil
}

// writeJSON writes one message under the write deadline.
func (h *Handler) writeJSON(v any) error {
	if h.deps.WriteTimeout > 0 {
		h.conn.SetWriteDeadline(time.Now().Add(h.deps.WriteTimeout))
	}
	return h.conn.WriteJSON(v)
}

// closeWith sends a close control frame with the given code, best-effort.
func (h *Handler) closeWith(code int, reason string) {
	deadline := time.Now().Add(time.Second)
	if h.deps.WriteTimeout > 0 {
		deadline = time.Now().Add(h.deps.WriteTimeout)
	}
	h.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), deadline)
}
