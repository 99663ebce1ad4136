package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// LoadConfig loads configuration from a YAML file at the specified path.
// It applies default values, validates the configuration, and returns any
// errors. Environment variables are not consulted; use
// LoadConfigWithEnvOverrides for that behavior.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. Environment variables follow the naming
// convention CHIMERA_SECTION_FIELD (e.g., CHIMERA_SERVER_LISTEN_ADDRESS) and
// always take precedence over file-based configuration.
//
// The loading sequence is:
//  1. Load YAML from file
//  2. Apply default values
//  3. Apply environment variable overrides
//  4. Validate final configuration
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	ApplyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

// ApplyEnvOverrides applies environment variable overrides to the
// configuration. Environment variables use the format CHIMERA_SECTION_FIELD.
// Callers running without a configuration file use this directly on top of
// the built-in defaults; the result must still pass Validate.
func ApplyEnvOverrides(cfg *Config) {
	// Server overrides
	if val := os.Getenv("CHIMERA_SERVER_LISTEN_ADDRESS"); val != "" {
		cfg.Server.ListenAddress = val
	}
	setDurationEnv("CHIMERA_SERVER_READ_TIMEOUT", &cfg.Server.ReadTimeout)
	setDurationEnv("CHIMERA_SERVER_WRITE_TIMEOUT", &cfg.Server.WriteTimeout)
	setDurationEnv("CHIMERA_SERVER_IDLE_TIMEOUT", &cfg.Server.IdleTimeout)
	setDurationEnv("CHIMERA_SERVER_SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)

	// Auth overrides
	if val := os.Getenv("CHIMERA_AUTH_TOKENS"); val != "" {
		tokens := strings.Split(val, ",")
		cfg.Auth.Tokens = cfg.Auth.Tokens[:0]
		for _, t := range tokens {
			if t = strings.TrimSpace(t); t != "" {
				cfg.Auth.Tokens = append(cfg.Auth.Tokens, t)
			}
		}
	}
	if val := os.Getenv("CHIMERA_AUTH_TOKEN_FILE"); val != "" {
		cfg.Auth.TokenFile = val
	}
	setDurationEnv("CHIMERA_AUTH_HANDSHAKE_TIMEOUT", &cfg.Auth.HandshakeTimeout)

	// Limits overrides
	setIntEnv("CHIMERA_LIMITS_MAX_REQUESTS", &cfg.Limits.MaxRequests)
	setDurationEnv("CHIMERA_LIMITS_WINDOW", &cfg.Limits.Window)
	if val := os.Getenv("CHIMERA_LIMITS_SNAPSHOT_PATH"); val != "" {
		cfg.Limits.SnapshotPath = val
	}

	// Upstream overrides
	if val := os.Getenv("CHIMERA_UPSTREAM_BASE_URL"); val != "" {
		cfg.Upstream.BaseURL = val
	}
	if val := os.Getenv("CHIMERA_UPSTREAM_MODEL"); val != "" {
		cfg.Upstream.Model = val
	}
	setDurationEnv("CHIMERA_UPSTREAM_TIMEOUT", &cfg.Upstream.Timeout)

	// Store overrides
	if val := os.Getenv("CHIMERA_STORE_PATH"); val != "" {
		cfg.Store.Path = val
	}
	setIntEnv("CHIMERA_STORE_RETENTION_DAYS", &cfg.Store.RetentionDays)
	if val := os.Getenv("CHIMERA_STORE_PRUNE_SCHEDULE"); val != "" {
		cfg.Store.PruneSchedule = val
	}

	// Telemetry overrides
	if val := os.Getenv("CHIMERA_LOGGING_LEVEL"); val != "" {
		cfg.Telemetry.Logging.Level = val
	}
	if val := os.Getenv("CHIMERA_LOGGING_FORMAT"); val != "" {
		cfg.Telemetry.Logging.Format = val
	}
	if val := os.Getenv("CHIMERA_METRICS_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Telemetry.Metrics.Enabled = b
		}
	}
}

func setDurationEnv(name string, target *time.Duration) {
	if val := os.Getenv(name); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			*target = d
		}
	}
}

func setIntEnv(name string, target *int) {
	if val := os.Getenv(name); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			*target = i
		}
	}
}
