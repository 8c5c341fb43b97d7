// ABOUTME: Root Cobra command for vitals CLI.
// ABOUTME: Loads config and wires the App via PersistentPre/PostRunE.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/harperreed/vitals/internal/app"
	"github.com/harperreed/vitals/internal/config"
	"github.com/spf13/cobra"
)

// skipApp marks commands that run without opening storage.
const skipApp = "skip-app"

var (
	flagConfig   string
	flagBackend  string
	flagDataDir  string
	flagUser     string
	flagLogLevel string

	cfg       *config.Config
	vitalsApp *app.App
)

var rootCmd = &cobra.Command{
	Use:   "vitals",
	Short: "Personal health data ingestion and daily summaries",
	Long: `Vitals imports exports from wearables and nutrition trackers into one
store and keeps a per-day summary across nutrition, sleep, activity, vitals,
and readiness scores.

SUPPORTED EXPORTS:

  fitbit         Google Takeout Fitbit export (JSON and CSV)
  apple_health   Apple Health export.xml
  cronometer     Cronometer dailysummary.csv / biometrics.csv

QUICK START:

  $ vitals ingest ~/Downloads/takeout.zip       # Detect and import
  $ vitals ingest ./export --source fitbit      # Force an adapter
  $ vitals ingest ./export --dry-run            # Parse only, save nothing
  $ vitals summary show 2024-03-10              # One day at a glance
  $ vitals summary list --from 2024-03-01       # Daily table
  $ vitals records --type resting_heart_rate    # Raw metric records

SERVERS:

  $ vitals serve    # HTTP API under /api/v1
  $ vitals mcp      # MCP server over stdio

DATA STORAGE:

  SQLite by default at ~/.local/share/vitals/vitals.db. Postgres and badger
  are available through the backend setting in ~/.config/vitals/config.yaml
  or VITALS_BACKEND.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// A failed RunE skips PersistentPostRunE.
		_ = closeApp()
		if cmd.Name() == "help" || cmd.Annotations[skipApp] == "true" {
			return loadConfig()
		}
		if err := loadConfig(); err != nil {
			return err
		}

		var err error
		vitalsApp, err = app.New(commandContext(cmd), cfg, os.Stderr)
		if err != nil {
			return fmt.Errorf("failed to initialize vitals: %w", err)
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return closeApp()
	},
}

func closeApp() error {
	if vitalsApp == nil {
		return nil
	}
	err := vitalsApp.Close()
	vitalsApp = nil
	return err
}

func loadConfig() error {
	path := flagConfig
	if path == "" {
		path = config.GetConfigPath()
	}
	loaded, err := config.LoadFrom(config.ExpandPath(path))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if flagBackend != "" {
		loaded.Backend = flagBackend
	}
	if flagDataDir != "" {
		loaded.DataDir = flagDataDir
	}
	if flagUser != "" {
		loaded.User = flagUser
	}
	if flagLogLevel != "" {
		loaded.Log.Level = flagLogLevel
	}
	if err := loaded.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	cfg = loaded
	return nil
}

// commandContext returns the command's context, or Background when run
// without one.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file (default: $XDG_CONFIG_HOME/vitals/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&flagBackend, "backend", "", "storage backend: sqlite, postgres, or badger")
	rootCmd.PersistentFlags().StringVar(&flagDataDir, "data-dir", "", "data directory for sqlite and badger")
	rootCmd.PersistentFlags().StringVar(&flagUser, "user", "", "user id records are stored under")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level: debug, info, warn, error")
}
