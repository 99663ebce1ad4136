package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/moonrox420/chimera-gateway/pkg/auth"
	"github.com/moonrox420/chimera-gateway/pkg/config"
	"github.com/moonrox420/chimera-gateway/pkg/gateway"
	"github.com/moonrox420/chimera-gateway/pkg/limits/ratelimit"
	"github.com/moonrox420/chimera-gateway/pkg/limits/storage"
	"github.com/moonrox420/chimera-gateway/pkg/model"
	"github.com/moonrox420/chimera-gateway/pkg/store"
	"github.com/moonrox420/chimera-gateway/pkg/telemetry/logging"
	"github.com/moonrox420/chimera-gateway/pkg/telemetry/metrics"
)

var runFlags struct {
	listenAddress string
	logLevel      string
	dryRun        bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the Chimera gateway",
	Long: `Start the Chimera gateway with the specified configuration.

The gateway listens for WebSocket connections on the configured address and
relays authenticated prompts to the model server.

Examples:
  # Start with default config
  chimera run

  # Start with custom config
  chimera run --config /etc/chimera/config.yaml

  # Override listen address
  chimera run --listen 0.0.0.0:8765

  # Validate config without starting the gateway
  chimera run --dry-run`,
	RunE: runGateway,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting the gateway")
}

// loadConfig loads the configuration file. A missing file is only an error
// when the path was given explicitly; the default path falls back to the
// built-in defaults plus CHIMERA_* environment overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if _, err := os.Stat(cfgFile); os.IsNotExist(err) {
		if cmd.Root().PersistentFlags().Changed("config") {
			return nil, fmt.Errorf("config file %q not found", cfgFile)
		}
		cfg := config.NewDefaultConfig()
		config.ApplyEnvOverrides(cfg)
		if err := config.Validate(cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	return config.LoadConfigWithEnvOverrides(cfgFile)
}

func runGateway(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Apply flag overrides
	if runFlags.listenAddress != "" {
		cfg.Server.ListenAddress = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}

	logger, err := logging.Setup(logging.Config{
		Level:  cfg.Telemetry.Logging.Level,
		Format: cfg.Telemetry.Logging.Format,
	})
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}

	if runFlags.dryRun {
		fmt.Println("configuration valid")
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Token allow-list: static tokens plus the optional token file, which is
	// watched for changes while the gateway runs.
	tokens := make([]string, 0, len(cfg.Auth.Tokens))
	tokens = append(tokens, cfg.Auth.Tokens...)
	if cfg.Auth.TokenFile != "" {
		fileTokens, err := auth.LoadTokenFile(cfg.Auth.TokenFile)
		if err != nil {
			logger.Warn("failed to load token file", "path", cfg.Auth.TokenFile, "error", err)
		} else {
			tokens = append(tokens, fileTokens...)
		}
	}
	validator := auth.NewTokenValidator(tokens)
	if validator.Len() == 0 {
		logger.Warn("token allow-list is empty, every handshake will be rejected")
	}

	if cfg.Auth.TokenFile != "" {
		watcher, err := auth.NewFileWatcher(cfg.Auth.TokenFile, cfg.Auth.Tokens, validator, logger)
		if err != nil {
			logger.Warn("token file watching disabled", "error", err)
		} else if err := watcher.Start(); err != nil {
			logger.Warn("token file watching disabled", "error", err)
		} else {
			defer watcher.Stop()
		}
	}

	limiter := ratelimit.NewTracker(ratelimit.Config{
		MaxRequests: cfg.Limits.MaxRequests,
		Window:      cfg.Limits.Window,
	})
	defer limiter.Close()

	// Quota persistence is opt-in; without it, windows reset on restart.
	if cfg.Limits.SnapshotPath != "" {
		backend, err := storage.NewSQLiteBackend(cfg.Limits.SnapshotPath)
		if err != nil {
			logger.Warn("quota persistence disabled", "error", err)
		} else {
			defer backend.Close()
			if states, err := backend.Load(ctx); err != nil {
				logger.Warn("failed to restore quota snapshot", "error", err)
			} else {
				limiter.Restore(states)
				logger.Info("quota snapshot restored", "windows", len(states))
			}
			flusher := storage.NewFlusher(limiter, backend, cfg.Limits.SnapshotInterval, logger)
			flusherDone := make(chan struct{})
			go func() {
				flusher.Run(ctx)
				close(flusherDone)
			}()
			// The final flush must land before the backend closes.
			defer func() {
				cancel()
				<-flusherDone
			}()
		}
	}

	st, err := store.NewSQLiteStore(store.Options{
		Path:   cfg.Store.Path,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("failed to open conversation store: %w", err)
	}
	defer st.Close()

	// Retention pass at startup, before any connection is accepted.
	if _, err := st.Prune(ctx, cfg.Store.RetentionDays); err != nil {
		logger.Warn("startup pruning failed", "error", err)
	}

	if cfg.Store.PruneSchedule != "" {
		scheduler := store.NewRetentionScheduler(st, cfg.Store.RetentionDays, cfg.Store.PruneSchedule, logger)
		if err := scheduler.Start(ctx); err != nil {
			logger.Warn("scheduled pruning disabled", "error", err)
		} else {
			defer scheduler.Stop()
		}
	}

	upstream := model.NewClient(cfg.Upstream, logger)

	// A dead model server is not fatal at startup: requests will fail with
	// error replies until it comes back.
	healthCtx, healthCancel := context.WithTimeout(ctx, 3*time.Second)
	if err := upstream.HealthCheck(healthCtx); err != nil {
		logger.Warn("model server not reachable",
			"base_url", cfg.Upstream.BaseURL,
			"error", err,
		)
	}
	healthCancel()

	srv := gateway.NewServer(cfg, gateway.Deps{
		Validator:        validator,
		Limiter:          limiter,
		Upstream:         upstream,
		Store:            st,
		Metrics:          metrics.NewCollector(&cfg.Telemetry.Metrics, nil),
		Logger:           logger,
		HandshakeTimeout: cfg.Auth.HandshakeTimeout,
		WriteTimeout:     cfg.Server.WriteTimeout,
	})

	fmt.Printf("Chimera %s (%s) listening on %s\n", Version, GitCommit, cfg.Server.ListenAddress)
	fmt.Printf("  websocket: ws://%s/ws\n", cfg.Server.ListenAddress)
	fmt.Printf("  health:    http://%s/healthz\n", cfg.Server.ListenAddress)
	if cfg.Telemetry.Metrics.Enabled {
		fmt.Printf("  metrics:   http://%s/metrics\n", cfg.Server.ListenAddress)
	}

	return srv.Start(ctx)
}
