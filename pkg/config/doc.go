// Package config provides configuration management for the Chimera gateway.
//
// This package handles loading, validating, and managing configuration from
// YAML files with environment variable overrides. It provides a type-safe
// configuration system with validation and sensible defaults.
//
// # Configuration Loading
//
// Configuration can be loaded in two ways:
//
//  1. From a YAML file only:
//     cfg, err := config.LoadConfig("config.yaml")
//
//  2. From a YAML file with environment variable overrides:
//     cfg, err := config.LoadConfigWithEnvOverrides("config.yaml")
//
// # Environment Variable Overrides
//
// Environment variables follow the naming convention CHIMERA_SECTION_FIELD.
// For example:
//
//   - CHIMERA_SERVER_LISTEN_ADDRESS overrides server.listen_address
//   - CHIMERA_AUTH_TOKENS overrides auth.tokens (comma-separated)
//   - CHIMERA_LOGGING_LEVEL overrides telemetry.logging.level
//
// Environment variables always take precedence over file-based configuration.
//
// # Configuration Precedence
//
// Configuration values are applied in the following order (later overrides
// earlier):
//
//  1. Default values (defined in defaults.go)
//  2. Values from YAML file
//  3. Environment variable overrides
//  4. Validation (fails fast if invalid)
//
// # Example Configuration
//
// Here is a minimal configuration file:
//
//	server:
//	  listen_address: "127.0.0.1:8765"
//
//	auth:
//	  tokens:
//	    - "dev-token-9001"
//
//	limits:
//	  max_requests: 30
//	  window: "60s"
//
//	upstream:
//	  base_url: "http://127.0.0.1:11434"
//	  model: "chimera"
//
//	store:
//	  path: "data/conversations.db"
//	  retention_days: 30
//
// The loaded Config is treated as immutable for the lifetime of the process;
// components receive it (or a section of it) at construction time and never
// mutate it.
package config
