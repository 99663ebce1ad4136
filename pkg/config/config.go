package config

import "time"

// Config is the root configuration structure for the Chimera gateway.
// It contains all configuration sections for the WebSocket listener, client
// authentication, rate limiting, the upstream model server, conversation
// storage, and telemetry.
type Config struct {
	// Server contains the WebSocket listener configuration including listen
	// address, timeouts, and shutdown behavior.
	Server ServerConfig `yaml:"server"`

	// Auth contains the token allow-list configuration used to authenticate
	// client handshakes.
	Auth AuthConfig `yaml:"auth"`

	// Limits contains the per-address rate limiting configuration.
	Limits LimitsConfig `yaml:"limits"`

	// Upstream contains the generative-model server configuration.
	Upstream UpstreamConfig `yaml:"upstream"`

	// Store contains conversation log storage and retention configuration.
	Store StoreConfig `yaml:"store"`

	// Telemetry contains observability configuration (logging and metrics).
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig contains configuration for the WebSocket listener.
type ServerConfig struct {
	// ListenAddress is the address and port to listen on.
	// Format: "host:port" (e.g., "127.0.0.1:8765", "0.0.0.0:8765").
	// Default: "127.0.0.1:8765"
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout is the maximum duration for reading the HTTP request that
	// initiates the WebSocket upgrade. Default: 30s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout bounds individual WebSocket write operations.
	// Default: 30s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the keep-alive idle timeout for the underlying HTTP
	// server. Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout is the maximum duration to wait for in-flight
	// connections during graceful shutdown. Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// AuthConfig contains the token allow-list configuration.
type AuthConfig struct {
	// Tokens is the static set of accepted client tokens.
	Tokens []string `yaml:"tokens"`

	// TokenFile is an optional path to a file containing one token per line.
	// Tokens from the file are merged with the static set. When set, the
	// file is watched and the allow-list is reloaded on change.
	TokenFile string `yaml:"token_file"`

	// HandshakeTimeout bounds how long a new connection may take to present
	// its handshake message. Timing out is treated as an invalid token.
	// Default: 10s
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
}

// LimitsConfig contains the per-address rate limiting configuration.
type LimitsConfig struct {
	// MaxRequests is the number of prompt requests allowed per address per
	// window. Default: 30
	MaxRequests int `yaml:"max_requests"`

	// Window is the quota window duration. Default: 60s
	Window time.Duration `yaml:"window"`

	// SnapshotPath is an optional SQLite database path used to persist quota
	// windows across restarts. Empty disables persistence.
	SnapshotPath string `yaml:"snapshot_path"`

	// SnapshotInterval is how often persisted quota state is flushed.
	// Default: 30s
	SnapshotInterval time.Duration `yaml:"snapshot_interval"`
}

// UpstreamConfig contains configuration for the generative-model server.
type UpstreamConfig struct {
	// BaseURL is the base URL of the model server.
	// Default: "http://127.0.0.1:11434"
	BaseURL string `yaml:"base_url"`

	// Model is the model identifier sent with every generation request.
	// Default: "chimera"
	Model string `yaml:"model"`

	// Timeout bounds a complete generation exchange. Generation is slow, so
	// the ceiling is generous. Exceeding it fails the request; there is no
	// automatic retry. Default: 300s
	Timeout time.Duration `yaml:"timeout"`

	// ConnectTimeout bounds establishing the TCP connection to the model
	// server. Default: 10s
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// StoreConfig contains conversation log storage configuration.
type StoreConfig struct {
	// Path is the SQLite database file path.
	// Default: "data/conversations.db"
	Path string `yaml:"path"`

	// RetentionDays is the number of days to retain conversation turns.
	// 0 keeps turns forever (no pruning). Default: 30
	RetentionDays int `yaml:"retention_days"`

	// PruneSchedule is an optional cron expression for scheduled pruning in
	// addition to the prune pass at startup. Example: "0 3 * * *".
	PruneSchedule string `yaml:"prune_schedule"`
}

// TelemetryConfig contains observability configuration.
type TelemetryConfig struct {
	// Logging contains structured logging configuration.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics contains Prometheus metrics configuration.
	Metrics MetricsConfig `yaml:"metrics"`
}

// LoggingConfig contains structured logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", or "error".
	// Default: "info"
	Level string `yaml:"level"`

	// Format is the log output format: "json" or "text".
	// Default: "json"
	Format string `yaml:"format"`
}

// MetricsConfig contains Prometheus metrics configuration.
type MetricsConfig struct {
	// Enabled controls whether the /metrics endpoint is exposed.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Namespace is the Prometheus metric namespace. Default: "chimera"
	Namespace string `yaml:"namespace"`
}
