package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return configPath
}

func TestLoadConfig_ValidFile(t *testing.T) {
	configPath := writeConfigFile(t, `
server:
  listen_address: "0.0.0.0:9000"
  read_timeout: "60s"

auth:
  tokens:
    - "dev-token-9001"
  handshake_timeout: "5s"

limits:
  max_requests: 10
  window: "30s"

upstream:
  base_url: "http://localhost:11434"
  model: "test-model"
  timeout: "120s"

store:
  path: "./test-conversations.db"
  retention_days: 7

telemetry:
  logging:
    level: "debug"
    format: "text"
`)

	cfg, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Server.ListenAddress != "0.0.0.0:9000" {
		t.Errorf("expected listen address %q, got %q", "0.0.0.0:9000", cfg.Server.ListenAddress)
	}
	if cfg.Server.ReadTimeout != 60*time.Second {
		t.Errorf("expected read timeout 60s, got %v", cfg.Server.ReadTimeout)
	}
	if len(cfg.Auth.Tokens) != 1 || cfg.Auth.Tokens[0] != "dev-token-9001" {
		t.Errorf("unexpected tokens: %v", cfg.Auth.Tokens)
	}
	if cfg.Auth.HandshakeTimeout != 5*time.Second {
		t.Errorf("expected handshake timeout 5s, got %v", cfg.Auth.HandshakeTimeout)
	}
	if cfg.Limits.MaxRequests != 10 {
		t.Errorf("expected max requests 10, got %d", cfg.Limits.MaxRequests)
	}
	if cfg.Upstream.Model != "test-model" {
		t.Errorf("expected model %q, got %q", "test-model", cfg.Upstream.Model)
	}
	if cfg.Store.RetentionDays != 7 {
		t.Errorf("expected retention days 7, got %d", cfg.Store.RetentionDays)
	}
	if cfg.Telemetry.Logging.Level != "debug" {
		t.Errorf("expected log level debug, got %q", cfg.Telemetry.Logging.Level)
	}
}

func TestLoadConfig_AppliesDefaults(t *testing.T) {
	configPath := writeConfigFile(t, `
auth:
  tokens:
    - "dev-token-9001"
`)

	cfg, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Server.ListenAddress != DefaultListenAddress {
		t.Errorf("expected default listen address %q, got %q", DefaultListenAddress, cfg.Server.ListenAddress)
	}
	if cfg.Limits.MaxRequests != DefaultMaxRequests {
		t.Errorf("expected default max requests %d, got %d", DefaultMaxRequests, cfg.Limits.MaxRequests)
	}
	if cfg.Limits.Window != DefaultWindow {
		t.Errorf("expected default window %v, got %v", DefaultWindow, cfg.Limits.Window)
	}
	if cfg.Upstream.Timeout != DefaultUpstreamTimeout {
		t.Errorf("expected default upstream timeout %v, got %v", DefaultUpstreamTimeout, cfg.Upstream.Timeout)
	}
	if cfg.Auth.HandshakeTimeout != DefaultHandshakeTimeout {
		t.Errorf("expected default handshake timeout %v, got %v", DefaultHandshakeTimeout, cfg.Auth.HandshakeTimeout)
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	configPath := writeConfigFile(t, "server: [not a mapping")
	if _, err := LoadConfig(configPath); err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestLoadConfig_ValidationFailure(t *testing.T) {
	// No tokens configured at all.
	configPath := writeConfigFile(t, `
server:
  listen_address: "127.0.0.1:8765"
`)

	_, err := LoadConfig(configPath)
	if err == nil {
		t.Fatal("expected validation error")
	}

	var verr ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %T: %v", err, err)
	}
	if !strings.Contains(verr.Error(), "auth.tokens") {
		t.Errorf("expected auth.tokens in error, got: %v", verr)
	}
}

func TestLoadConfigWithEnvOverrides(t *testing.T) {
	configPath := writeConfigFile(t, `
auth:
  tokens:
    - "file-token"
`)

	t.Setenv("CHIMERA_SERVER_LISTEN_ADDRESS", "0.0.0.0:7777")
	t.Setenv("CHIMERA_AUTH_TOKENS", "env-token-1, env-token-2")
	t.Setenv("CHIMERA_LIMITS_MAX_REQUESTS", "5")
	t.Setenv("CHIMERA_LIMITS_WINDOW", "10s")
	t.Setenv("CHIMERA_UPSTREAM_MODEL", "env-model")

	cfg, err := LoadConfigWithEnvOverrides(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Server.ListenAddress != "0.0.0.0:7777" {
		t.Errorf("expected env listen address, got %q", cfg.Server.ListenAddress)
	}
	if len(cfg.Auth.Tokens) != 2 || cfg.Auth.Tokens[0] != "env-token-1" || cfg.Auth.Tokens[1] != "env-token-2" {
		t.Errorf("expected env tokens, got %v", cfg.Auth.Tokens)
	}
	if cfg.Limits.MaxRequests != 5 {
		t.Errorf("expected env max requests 5, got %d", cfg.Limits.MaxRequests)
	}
	if cfg.Limits.Window != 10*time.Second {
		t.Errorf("expected env window 10s, got %v", cfg.Limits.Window)
	}
	if cfg.Upstream.Model != "env-model" {
		t.Errorf("expected env model, got %q", cfg.Upstream.Model)
	}
}
