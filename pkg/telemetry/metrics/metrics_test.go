package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/moonrox420/chimera-gateway/pkg/config"
)

func newTestCollector(t *testing.T) *Collector {
	t.Helper()
	return NewCollector(&config.MetricsConfig{Enabled: true, Namespace: "chimera"}, prometheus.NewRegistry())
}

func TestCollector_ConnectionLifecycle(t *testing.T) {
	c := newTestCollector(t)

	c.ConnectionOpened()
	c.ConnectionOpened()
	if got := testutil.ToFloat64(c.connectionsActive); got != 2 {
		t.Errorf("expected 2 active connections, got %v", got)
	}

	c.ConnectionClosed("normal")
	if got := testutil.ToFloat64(c.connectionsActive); got != 1 {
		t.Errorf("expected 1 active connection, got %v", got)
	}
	if got := testutil.ToFloat64(c.connectionsTotal.WithLabelValues("normal")); got != 1 {
		t.Errorf("expected 1 normal close, got %v", got)
	}
}

func TestCollector_Counters(t *testing.T) {
	c := newTestCollector(t)

	c.HandshakeFailed("invalid_token")
	c.RateLimitRejected()
	c.MessageReceived("ask")
	c.MessageSent("chunk")
	c.FragmentRelayed()
	c.StoreAppendFailed()
	c.UpstreamRequest("ok", 250*time.Millisecond)

	if got := testutil.ToFloat64(c.handshakeFailures.WithLabelValues("invalid_token")); got != 1 {
		t.Errorf("handshake failures = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.rateLimitRejections); got != 1 {
		t.Errorf("rate limit rejections = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.messagesTotal.WithLabelValues("in", "ask")); got != 1 {
		t.Errorf("inbound ask messages = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.upstreamRequestsTotal.WithLabelValues("ok")); got != 1 {
		t.Errorf("upstream ok requests = %v, want 1", got)
	}
}

func TestCollector_Handler(t *testing.T) {
	c := newTestCollector(t)
	c.ConnectionOpened()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	c.Handler().ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "chimera_connections_active") {
		t.Error("expected chimera_connections_active in metrics output")
	}
}
