package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/moonrox420/chimera-gateway/pkg/store"
	"github.com/moonrox420/chimera-gateway/pkg/telemetry/logging"
)

var pruneFlags struct {
	retentionDays int
}

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Run a one-off retention pass over the conversation log",
	Long: `Delete conversation turns older than the retention period and exit.

The same pass runs automatically at gateway startup and, when a prune
schedule is configured, on that schedule while the gateway runs.

Examples:
  # Prune with the configured retention period
  chimera prune

  # Prune everything older than 7 days
  chimera prune --retention-days 7`,
	RunE: runPrune,
}

func init() {
	rootCmd.AddCommand(pruneCmd)

	pruneCmd.Flags().IntVar(&pruneFlags.retentionDays, "retention-days", 0, "override retention period in days")
}

func runPrune(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := logging.Setup(logging.Config{
		Level:  cfg.Telemetry.Logging.Level,
		Format: cfg.Telemetry.Logging.Format,
	})
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}

	retentionDays := cfg.Store.RetentionDays
	if pruneFlags.retentionDays > 0 {
		retentionDays = pruneFlags.retentionDays
	}
	if retentionDays <= 0 {
		fmt.Println("retention is disabled (retention_days is 0), nothing to prune")
		return nil
	}

	st, err := store.NewSQLiteStore(store.Options{
		Path:   cfg.Store.Path,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("failed to open conversation store: %w", err)
	}
	defer st.Close()

	ctx := context.Background()
	deleted, err := st.Prune(ctx, retentionDays)
	if err != nil {
		return fmt.Errorf("pruning failed: %w", err)
	}

	remaining, err := st.Count(ctx)
	if err != nil {
		return fmt.Errorf("failed to count remaining turns: %w", err)
	}

	fmt.Printf("deleted %d turns older than %d days, %d remaining\n", deleted, retentionDays, remaining)
	return nil
}
