package gateway

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/moonrox420/chimera-gateway/pkg/auth"
	"github.com/moonrox420/chimera-gateway/pkg/config"
	"github.com/moonrox420/chimera-gateway/pkg/limits/ratelimit"
	"github.com/moonrox420/chimera-gateway/pkg/model"
	"github.com/moonrox420/chimera-gateway/pkg/store"
	"github.com/moonrox420/chimera-gateway/pkg/telemetry/metrics"
)

const testToken = "dev-token-9001"

type testGateway struct {
	wsURL   string
	httpURL string
	store   *store.SQLiteStore
	server  *Server
}

// ndjsonUpstream serves the given NDJSON lines for every generation request,
// flushing after each line so fragments arrive incrementally.
func ndjsonUpstream(lines ...string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/x-ndjson")
		flusher, _ := w.(http.Flusher)
		for _, line := range lines {
			io.WriteString(w, line+"\n")
			if flusher != nil {
				flusher.Flush()
			}
		}
	})
}

// newTestGateway wires a full gateway onto an httptest listener. A nil
// upstream points the model client at an unroutable address so requests fail
// before any output.
func newTestGateway(t *testing.T, upstream http.Handler, mutate func(*config.Config)) *testGateway {
	t.Helper()

	upstreamURL := "http://127.0.0.1:1"
	if upstream != nil {
		us := httptest.NewServer(upstream)
		t.Cleanup(us.Close)
		upstreamURL = us.URL
	}

	cfg := config.NewDefaultConfig()
	cfg.Auth.Tokens = []string{testToken}
	cfg.Auth.HandshakeTimeout = time.Second
	cfg.Limits.MaxRequests = 100
	cfg.Limits.Window = time.Minute
	cfg.Upstream.BaseURL = upstreamURL
	cfg.Upstream.Timeout = 5 * time.Second
	cfg.Upstream.ConnectTimeout = time.Second
	cfg.Store.Path = filepath.Join(t.TempDir(), "conversations.db")
	if mutate != nil {
		mutate(cfg)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	st, err := store.NewSQLiteStore(store.Options{Path: cfg.Store.Path, Logger: logger})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	limiter := ratelimit.NewTracker(ratelimit.Config{
		MaxRequests: cfg.Limits.MaxRequests,
		Window:      cfg.Limits.Window,
	})
	t.Cleanup(limiter.Close)

	srv := NewServer(cfg, Deps{
		Validator:        auth.NewTokenValidator(cfg.Auth.Tokens),
		Limiter:          limiter,
		Upstream:         model.NewClient(cfg.Upstream, logger),
		Store:            st,
		Metrics:          metrics.NewCollector(&cfg.Telemetry.Metrics, nil),
		Logger:           logger,
		HandshakeTimeout: cfg.Auth.HandshakeTimeout,
		WriteTimeout:     cfg.Server.WriteTimeout,
	})

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &testGateway{
		wsURL:   "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws",
		httpURL: ts.URL,
		store:   st,
		server:  srv,
	}
}

func dial(t *testing.T, gw *testGateway) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(gw.wsURL, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	if err := conn.WriteJSON(v); err != nil {
		t.Fatalf("write failed: %v", err)
	}
}

func readEnvelope(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var m map[string]any
	if err := conn.ReadJSON(&m); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	return m
}

func handshake(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	sendJSON(t, conn, Handshake{Token: testToken})
	m := readEnvelope(t, conn)
	if m["type"] != TypeWelcome || m["status"] != "authorized" {
		t.Fatalf("unexpected handshake reply: %v", m)
	}
}

// expectClose drains the connection until the peer's close frame arrives and
// asserts its code.
func expectClose(t *testing.T, conn *websocket.Conn, code int) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		_, _, err := conn.ReadMessage()
		if err == nil {
			continue
		}
		var ce *websocket.CloseError
		if !errors.As(err, &ce) {
			t.Fatalf("expected close frame, got: %v", err)
		}
		if ce.Code != code {
			t.Errorf("close code = %d, want %d", ce.Code, code)
		}
		return
	}
}

func TestHandshake_ValidToken(t *testing.T) {
	gw := newTestGateway(t, ndjsonUpstream(), nil)
	conn := dial(t, gw)
	handshake(t, conn)
}

func TestHandshake_InvalidTokenCloses1008(t *testing.T) {
	gw := newTestGateway(t, ndjsonUpstream(), nil)
	conn := dial(t, gw)

	sendJSON(t, conn, Handshake{Token: "not-a-real-token"})

	m := readEnvelope(t, conn)
	if m["type"] != TypeError || m["message"] != "Invalid token" {
		t.Errorf("unexpected rejection reply: %v", m)
	}
	expectClose(t, conn, CloseInvalidToken)
}

func TestHandshake_MalformedCloses1008(t *testing.T) {
	gw := newTestGateway(t, ndjsonUpstream(), nil)
	conn := dial(t, gw)

	if err := conn.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	m := readEnvelope(t, conn)
	if m["type"] != TypeError {
		t.Errorf("unexpected rejection reply: %v", m)
	}
	expectClose(t, conn, CloseInvalidToken)
}

func TestHandshake_TimeoutCloses1008(t *testing.T) {
	gw := newTestGateway(t, ndjsonUpstream(), func(cfg *config.Config) {
		cfg.Auth.HandshakeTimeout = 100 * time.Millisecond
	})
	conn := dial(t, gw)

	// Send nothing; the gateway must give up on its own.
	expectClose(t, conn, CloseInvalidToken)
}

func TestAsk_RelaysChunksAndDone(t *testing.T) {
	gw := newTestGateway(t, ndjsonUpstream(
		`{"response":"Hi","done":false}`,
		`{"response":" there","done":false}`,
		`{"response":"","done":true}`,
	), nil)
	conn := dial(t, gw)
	handshake(t, conn)

	sendJSON(t, conn, Ask{Type: TypeAsk, Prompt: "hello"})

	for _, want := range []string{"Hi", " there"} {
		m := readEnvelope(t, conn)
		if m["type"] != TypeChunk || m["content"] != want {
			t.Fatalf("expected chunk %q, got: %v", want, m)
		}
	}
	if m := readEnvelope(t, conn); m["type"] != TypeDone {
		t.Fatalf("expected done, got: %v", m)
	}

	// Both sides of the exchange are logged, in order.
	turns, err := gw.store.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("recent failed: %v", err)
	}
	if len(turns) != 3 {
		t.Fatalf("got %d turns, want 3", len(turns))
	}
	wantTurns := []struct{ role, content string }{
		{store.RoleAssistant, " there"},
		{store.RoleAssistant, "Hi"},
		{store.RoleUser, "hello"},
	}
	for i, want := range wantTurns {
		if turns[i].Role != want.role || turns[i].Content != want.content {
			t.Errorf("turn %d = %s %q, want %s %q",
				i, turns[i].Role, turns[i].Content, want.role, want.content)
		}
		if turns[i].Token != testToken {
			t.Errorf("turn %d token = %q, want %q", i, turns[i].Token, testToken)
		}
	}
}

func TestAsk_SkipsEmptyIncrements(t *testing.T) {
	gw := newTestGateway(t, ndjsonUpstream(
		`{"response":"","done":false}`,
		`{"response":"a","done":false}`,
		`{"response":"","done":false}`,
		`{"response":"b","done":false}`,
		`{"response":"","done":true}`,
	), nil)
	conn := dial(t, gw)
	handshake(t, conn)

	sendJSON(t, conn, Ask{Type: TypeAsk, Prompt: "hello"})

	for _, want := range []string{"a", "b"} {
		m := readEnvelope(t, conn)
		if m["type"] != TypeChunk || m["content"] != want {
			t.Fatalf("expected chunk %q, got: %v", want, m)
		}
	}
	if m := readEnvelope(t, conn); m["type"] != TypeDone {
		t.Fatalf("expected done, got: %v", m)
	}
}

func TestAsk_MalformedMessagesNonFatal(t *testing.T) {
	gw := newTestGateway(t, ndjsonUpstream(
		`{"response":"ok","done":true}`,
	), nil)
	conn := dial(t, gw)
	handshake(t, conn)

	for _, raw := range []string{
		"not json at all",
		`{"type":"bogus","prompt":"x"}`,
		`{"type":"ask","prompt":""}`,
	} {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(raw)); err != nil {
			t.Fatalf("write failed: %v", err)
		}
		m := readEnvelope(t, conn)
		if m["type"] != TypeError {
			t.Fatalf("expected error reply for %q, got: %v", raw, m)
		}
	}

	// The connection must still work.
	sendJSON(t, conn, Ask{Type: TypeAsk, Prompt: "hello"})
	if m := readEnvelope(t, conn); m["type"] != TypeChunk || m["content"] != "ok" {
		t.Fatalf("expected chunk after recovery, got: %v", m)
	}
	if m := readEnvelope(t, conn); m["type"] != TypeDone {
		t.Fatalf("expected done, got: %v", m)
	}
}

func TestAsk_RateLimitCloses1013(t *testing.T) {
	gw := newTestGateway(t, ndjsonUpstream(
		`{"response":"ok","done":true}`,
	), func(cfg *config.Config) {
		cfg.Limits.MaxRequests = 2
	})
	conn := dial(t, gw)
	handshake(t, conn)

	for i := 0; i < 2; i++ {
		sendJSON(t, conn, Ask{Type: TypeAsk, Prompt: "hello"})
		if m := readEnvelope(t, conn); m["type"] != TypeChunk {
			t.Fatalf("ask %d: expected chunk, got: %v", i, m)
		}
		if m := readEnvelope(t, conn); m["type"] != TypeDone {
			t.Fatalf("ask %d: expected done, got: %v", i, m)
		}
	}

	sendJSON(t, conn, Ask{Type: TypeAsk, Prompt: "one too many"})
	m := readEnvelope(t, conn)
	if m["type"] != TypeError || m["message"] != "Rate limit exceeded" {
		t.Fatalf("expected rate limit error, got: %v", m)
	}
	expectClose(t, conn, CloseRateLimited)
}

func TestAsk_UpstreamUnreachableNonFatal(t *testing.T) {
	gw := newTestGateway(t, nil, nil)
	conn := dial(t, gw)
	handshake(t, conn)

	sendJSON(t, conn, Ask{Type: TypeAsk, Prompt: "hello"})
	m := readEnvelope(t, conn)
	if m["type"] != TypeError || m["message"] != "Model backend unavailable" {
		t.Fatalf("expected upstream error, got: %v", m)
	}

	// Still open: a second prompt gets a reply, not a close.
	sendJSON(t, conn, Ask{Type: TypeAsk, Prompt: "again"})
	if m := readEnvelope(t, conn); m["type"] != TypeError {
		t.Fatalf("expected error reply, got: %v", m)
	}
}

func TestAsk_UpstreamErrorStatusNonFatal(t *testing.T) {
	gw := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model exploded", http.StatusInternalServerError)
	}), nil)
	conn := dial(t, gw)
	handshake(t, conn)

	sendJSON(t, conn, Ask{Type: TypeAsk, Prompt: "hello"})
	m := readEnvelope(t, conn)
	if m["type"] != TypeError || m["message"] != "Model backend unavailable" {
		t.Fatalf("expected upstream error, got: %v", m)
	}
}

func TestAsk_MidStreamErrorKeepsConnection(t *testing.T) {
	gw := newTestGateway(t, ndjsonUpstream(
		`{"response":"Hi","done":false}`,
		`this is not json`,
	), nil)
	conn := dial(t, gw)
	handshake(t, conn)

	sendJSON(t, conn, Ask{Type: TypeAsk, Prompt: "hello"})

	if m := readEnvelope(t, conn); m["type"] != TypeChunk || m["content"] != "Hi" {
		t.Fatalf("expected chunk, got: %v", m)
	}
	m := readEnvelope(t, conn)
	if m["type"] != TypeError || m["message"] != "Model stream interrupted" {
		t.Fatalf("expected stream error, got: %v", m)
	}

	// The partial output was still logged.
	turns, err := gw.store.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("recent failed: %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("got %d turns, want 2", len(turns))
	}
	if turns[0].Role != store.RoleAssistant || turns[0].Content != "Hi" {
		t.Errorf("unexpected assistant turn: %s %q", turns[0].Role, turns[0].Content)
	}

	// Connection survives the upstream failure.
	sendJSON(t, conn, Ask{Type: TypeAsk, Prompt: "still here"})
	if m := readEnvelope(t, conn); m["type"] == "" {
		t.Fatalf("expected a reply, got: %v", m)
	}
}

func TestAsk_ClientDisconnectCancelsUpstream(t *testing.T) {
	released := make(chan struct{})
	upstream := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-ndjson")
		io.WriteString(w, `{"response":"Hi","done":false}`+"\n")
		if flusher, ok := w.(http.Flusher); ok {
			flusher.Flush()
		}
		// Generation stalls until the gateway abandons the request.
		<-r.Context().Done()
		close(released)
	})

	gw := newTestGateway(t, upstream, nil)
	conn := dial(t, gw)
	handshake(t, conn)

	sendJSON(t, conn, Ask{Type: TypeAsk, Prompt: "hello"})
	if m := readEnvelope(t, conn); m["type"] != TypeChunk {
		t.Fatalf("expected chunk, got: %v", m)
	}

	// Hard close with no close frame, as a crashed client would.
	conn.Close()

	select {
	case <-released:
	case <-time.After(3 * time.Second):
		t.Fatal("upstream request still pending after client disconnect")
	}
}

func TestAsk_CleanTransportCloseCompletesResponse(t *testing.T) {
	// Upstream closes the body without a terminal marker; the response is
	// treated as complete, not failed.
	gw := newTestGateway(t, ndjsonUpstream(
		`{"response":"partial","done":false}`,
	), nil)
	conn := dial(t, gw)
	handshake(t, conn)

	sendJSON(t, conn, Ask{Type: TypeAsk, Prompt: "hello"})

	if m := readEnvelope(t, conn); m["type"] != TypeChunk || m["content"] != "partial" {
		t.Fatalf("expected chunk, got: %v", m)
	}
	if m := readEnvelope(t, conn); m["type"] != TypeDone {
		t.Fatalf("expected done, got: %v", m)
	}
}
