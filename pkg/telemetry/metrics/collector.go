package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/moonrox420/chimera-gateway/pkg/config"
)

// Collector owns all Prometheus metrics for the gateway and the registry
// they are registered against.
//
// Metrics:
//   - chimera_connections_active: currently open WebSocket connections
//   - chimera_connections_total: accepted connections by outcome
//   - chimera_handshake_failures_total: rejected handshakes by reason
//   - chimera_messages_total: inbound/outbound messages by type
//   - chimera_rate_limit_rejections_total: connections closed for quota
//   - chimera_upstream_requests_total: generation requests by outcome
//   - chimera_upstream_duration_seconds: generation exchange duration
//   - chimera_fragments_relayed_total: streamed fragments relayed to clients
//   - chimera_store_append_failures_total: dropped conversation log writes
type Collector struct {
	registry *prometheus.Registry

	connectionsActive     prometheus.Gauge
	connectionsTotal      *prometheus.CounterVec
	handshakeFailures     *prometheus.CounterVec
	messagesTotal         *prometheus.CounterVec
	rateLimitRejections   prometheus.Counter
	upstreamRequestsTotal *prometheus.CounterVec
	upstreamDuration      prometheus.Histogram
	fragmentsRelayed      prometheus.Counter
	storeAppendFailures   prometheus.Counter
}

// NewCollector creates a metrics collector with the specified configuration
// and Prometheus registry. If registry is nil, a new private registry is
// created.
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	namespace := cfg.Namespace
	if namespace == "" {
		namespace = "chimera"
	}

	c := &Collector{
		registry: registry,

		connectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_active",
			Help:      "Number of currently open WebSocket connections",
		}),

		connectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "connections_total",
				Help:      "Total number of accepted WebSocket connections by close outcome",
			},
			[]string{"outcome"},
		),

		handshakeFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "handshake_failures_total",
				Help:      "Total number of rejected handshakes by reason",
			},
			[]string{"reason"},
		),

		messagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "messages_total",
				Help:      "Total number of protocol messages by direction and type",
			},
			[]string{"direction", "type"},
		),

		rateLimitRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_rejections_total",
			Help:      "Total number of connections closed for exceeding the request quota",
		}),

		upstreamRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upstream_requests_total",
				Help:      "Total number of generation requests by outcome",
			},
			[]string{"outcome"},
		),

		upstreamDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_duration_seconds",
			Help:      "Duration of complete generation exchanges in seconds",
			// Generation latencies run from sub-second to minutes.
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}),

		fragmentsRelayed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fragments_relayed_total",
			Help:      "Total number of streamed fragments relayed to clients",
		}),

		storeAppendFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_append_failures_total",
			Help:      "Total number of conversation log writes that failed",
		}),
	}

	registry.MustRegister(
		c.connectionsActive,
		c.connectionsTotal,
		c.handshakeFailures,
		c.messagesTotal,
		c.rateLimitRejections,
		c.upstreamRequestsTotal,
		c.upstreamDuration,
		c.fragmentsRelayed,
		c.storeAppendFailures,
	)

	return c
}

// ConnectionOpened records a newly accepted connection.
func (c *Collector) ConnectionOpened() {
	c.connectionsActive.Inc()
}

// ConnectionClosed records a connection ending with the given outcome
// ("normal", "policy_violation", "rate_limited", "transport_error").
func (c *Collector) ConnectionClosed(outcome string) {
	c.connectionsActive.Dec()
	c.connectionsTotal.WithLabelValues(outcome).Inc()
}

// HandshakeFailed records a rejected handshake ("invalid_token", "timeout",
// "malformed").
func (c *Collector) HandshakeFailed(reason string) {
	c.handshakeFailures.WithLabelValues(reason).Inc()
}

// MessageReceived records an inbound protocol message by type.
func (c *Collector) MessageReceived(msgType string) {
	c.messagesTotal.WithLabelValues("in", msgType).Inc()
}

// MessageSent records an outbound protocol message by type.
func (c *Collector) MessageSent(msgType string) {
	c.messagesTotal.WithLabelValues("out", msgType).Inc()
}

// RateLimitRejected records a connection closed for exceeding its quota.
func (c *Collector) RateLimitRejected() {
	c.rateLimitRejections.Inc()
}

// UpstreamRequest records a completed generation exchange with the given
// outcome ("ok", "error", "partial", "cancelled") and its duration.
func (c *Collector) UpstreamRequest(outcome string, duration time.Duration) {
	c.upstreamRequestsTotal.WithLabelValues(outcome).Inc()
	c.upstreamDuration.Observe(duration.Seconds())
}

// FragmentRelayed records one streamed fragment forwarded to a client.
func (c *Collector) FragmentRelayed() {
	c.fragmentsRelayed.Inc()
}

// StoreAppendFailed records a conversation log write that was dropped.
func (c *Collector) StoreAppendFailed() {
	c.storeAppendFailures.Inc()
}

// Registry returns the underlying Prometheus registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
