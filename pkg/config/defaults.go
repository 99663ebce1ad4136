package config

import "time"

// Default values for configuration fields.
const (
	// Server defaults
	DefaultListenAddress   = "127.0.0.1:8765"
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 30 * time.Second

	// Auth defaults
	DefaultHandshakeTimeout = 10 * time.Second

	// Limits defaults
	DefaultMaxRequests      = 30
	DefaultWindow           = 60 * time.Second
	DefaultSnapshotInterval = 30 * time.Second

	// Upstream defaults
	DefaultUpstreamBaseURL = "http://127.0.0.1:11434"
	DefaultUpstreamModel   = "chimera"
	DefaultUpstreamTimeout = 300 * time.Second
	DefaultConnectTimeout  = 10 * time.Second

	// Store defaults
	DefaultStorePath     = "data/conversations.db"
	DefaultRetentionDays = 30

	// Telemetry defaults
	DefaultLoggingLevel     = "info"
	DefaultLoggingFormat    = "json"
	DefaultMetricsEnabled   = true
	DefaultMetricsNamespace = "chimera"
)

// ApplyDefaults applies default values to a Config struct.
// It sets defaults for any fields that have zero values.
// This function is idempotent and safe to call multiple times.
func ApplyDefaults(cfg *Config) {
	// Server defaults
	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = DefaultListenAddress
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}

	// Auth defaults
	if cfg.Auth.HandshakeTimeout == 0 {
		cfg.Auth.HandshakeTimeout = DefaultHandshakeTimeout
	}

	// Limits defaults
	if cfg.Limits.MaxRequests == 0 {
		cfg.Limits.MaxRequests = DefaultMaxRequests
	}
	if cfg.Limits.Window == 0 {
		cfg.Limits.Window = DefaultWindow
	}
	if cfg.Limits.SnapshotInterval == 0 {
		cfg.Limits.SnapshotInterval = DefaultSnapshotInterval
	}

	// Upstream defaults
	if cfg.Upstream.BaseURL == "" {
		cfg.Upstream.BaseURL = DefaultUpstreamBaseURL
	}
	if cfg.Upstream.Model == "" {
		cfg.Upstream.Model = DefaultUpstreamModel
	}
	if cfg.Upstream.Timeout == 0 {
		cfg.Upstream.Timeout = DefaultUpstreamTimeout
	}
	if cfg.Upstream.ConnectTimeout == 0 {
		cfg.Upstream.ConnectTimeout = DefaultConnectTimeout
	}

	// Store defaults
	if cfg.Store.Path == "" {
		cfg.Store.Path = DefaultStorePath
	}
	if cfg.Store.RetentionDays == 0 {
		cfg.Store.RetentionDays = DefaultRetentionDays
	}

	// Telemetry defaults
	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLoggingFormat
	}
	if cfg.Telemetry.Metrics.Namespace == "" {
		cfg.Telemetry.Metrics.Namespace = DefaultMetricsNamespace
	}
}

// NewDefaultConfig returns a Config populated entirely with default values.
// The returned config has metrics enabled and an empty token allow-list; it
// will not pass validation until at least one token is configured.
func NewDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	cfg.Telemetry.Metrics.Enabled = DefaultMetricsEnabled
	return cfg
}
