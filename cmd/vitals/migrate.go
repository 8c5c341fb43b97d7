// ABOUTME: CLI command for copying data between storage backends.
// ABOUTME: Reads everything from the configured backend and writes it to another.
package main

import (
	"fmt"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/harperreed/vitals/internal/storage"
	"github.com/spf13/cobra"
)

var (
	migrateTo     string
	migrateToDSN  string
	migrateToDir  string
	migrateDryRun bool
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Copy data to another storage backend",
	Long: `Copy every import batch, record, and daily summary from the configured
backend into another one.

Records already present in the destination are skipped, so an interrupted
migration can be rerun. Run with --dry-run first to see what would be copied.

USAGE:

  vitals migrate --to postgres --to-dsn postgres://localhost/vitals --dry-run
  vitals migrate --to postgres --to-dsn postgres://localhost/vitals
  vitals migrate --to badger --to-dir ~/.local/share/vitals-badger

AFTER MIGRATION:

  Point the config at the new backend:
    vitals config show   # check current settings
    backend: postgres    # in ~/.config/vitals/config.yaml`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := commandContext(cmd)
		if migrateTo == "" {
			return fmt.Errorf("--to is required (one of %v)", storage.Backends)
		}

		dst := *cfg
		dst.Backend = migrateTo
		if migrateToDSN != "" {
			dst.PostgresDSN = migrateToDSN
		}
		if migrateToDir != "" {
			dst.DataDir = migrateToDir
		}
		if err := dst.Validate(); err != nil {
			return fmt.Errorf("invalid destination: %w", err)
		}
		if dst.GetBackend() == cfg.GetBackend() && dst.GetDataDir() == cfg.GetDataDir() && dst.PostgresDSN == cfg.PostgresDSN {
			return fmt.Errorf("destination is the configured %s store; choose another backend or location", cfg.GetBackend())
		}

		if migrateDryRun {
			color.Yellow("Dry run mode - no changes will be made")
			data, err := storage.GetAllData(ctx, vitalsApp.Store, storage.Filter{})
			if err != nil {
				return fmt.Errorf("failed to read source: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Would copy from %s to %s:\n", cfg.GetBackend(), dst.GetBackend())
			fmt.Fprintf(cmd.OutOrStdout(), "  %d import batches\n  %d metrics\n  %d sleep sessions\n  %d nutrition days\n  %d daily summaries\n",
				len(data.Batches), len(data.Metrics), len(data.Sleep), len(data.Nutrition), len(data.Summaries))
			return nil
		}

		if dst.GetBackend() == storage.BackendBadger {
			if used, err := storage.IsDirNonEmpty(filepath.Join(dst.GetDataDir(), "badger")); err == nil && used {
				color.Yellow("Destination already holds data; records present there will be skipped")
			}
		}

		target, err := dst.OpenStorage(ctx, vitalsApp.Logger)
		if err != nil {
			return fmt.Errorf("failed to open destination: %w", err)
		}
		defer target.Close()

		summary, err := storage.MigrateData(ctx, vitalsApp.Store, target)
		if err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}

		color.Green("✓ Migrated %s to %s", cfg.GetBackend(), dst.GetBackend())
		fmt.Fprintf(cmd.OutOrStdout(), "  %d batches, %d metrics, %d sleep sessions, %d nutrition days, %d summaries (%d skipped)\n",
			summary.Batches, summary.Metrics, summary.Sleep, summary.Nutrition, summary.Summaries, summary.Skipped)
		return nil
	},
}

func init() {
	migrateCmd.Flags().StringVar(&migrateTo, "to", "", "destination backend: sqlite, postgres, or badger")
	migrateCmd.Flags().StringVar(&migrateToDSN, "to-dsn", "", "postgres DSN for the destination")
	migrateCmd.Flags().StringVar(&migrateToDir, "to-dir", "", "data directory for a sqlite or badger destination")
	migrateCmd.Flags().BoolVar(&migrateDryRun, "dry-run", false, "preview migration without making changes")
	rootCmd.AddCommand(migrateCmd)
}
