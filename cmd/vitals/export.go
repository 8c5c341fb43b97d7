// ABOUTME: CLI commands for exporting and importing vitals data.
// ABOUTME: Supports JSON, YAML, and Markdown export formats.
package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/harperreed/vitals/internal/models"
	"github.com/harperreed/vitals/internal/storage"
	"github.com/spf13/cobra"
)

var (
	exportOutput string
	exportType   string
	exportSince  string
	exportUntil  string
)

var exportCmd = &cobra.Command{
	Use:   "export <format>",
	Short: "Export vitals data",
	Long: `Export vitals data in various formats.

FORMATS:

  json       Full JSON export (suitable for backup/restore)
  yaml       YAML export (human-readable, metrics grouped by type)
  markdown   Markdown table of daily summaries

OPTIONS:

  --output, -o   Write to file instead of stdout
  --type, -t     Only this metric type
  --since        Only include data from this date (YYYY-MM-DD)
  --until        Only include data up to this date (YYYY-MM-DD)

EXAMPLES:

  vitals export json                        # Export all data as JSON
  vitals export json -o backup.json         # Save to file
  vitals export yaml --type steps           # Steps as YAML
  vitals export markdown --since 2024-01-01 # Summaries from 2024 onward`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"json", "yaml", "markdown"},
	RunE: func(cmd *cobra.Command, args []string) error {
		format := args[0]
		ctx := commandContext(cmd)

		f := storage.Filter{UserID: cfg.GetUser()}
		if exportType != "" {
			if !models.IsValidMetricType(exportType) {
				return fmt.Errorf("unknown metric type: %s", exportType)
			}
			f.MetricType = models.MetricType(exportType)
		}
		var err error
		if f.From, err = parseDateFlag("since", exportSince); err != nil {
			return err
		}
		if f.To, err = parseDateFlag("until", exportUntil); err != nil {
			return err
		}

		var data []byte
		switch format {
		case "json":
			data, err = storage.ExportJSON(ctx, vitalsApp.Store, f)
		case "yaml":
			data, err = storage.ExportYAML(ctx, vitalsApp.Store, f)
		case "markdown":
			var md string
			md, err = storage.ExportMarkdown(ctx, vitalsApp.Store, f)
			data = []byte(md)
		default:
			return fmt.Errorf("unknown format: %s (use json, yaml, or markdown)", format)
		}
		if err != nil {
			return fmt.Errorf("export failed: %w", err)
		}

		if exportOutput != "" {
			if err := os.WriteFile(exportOutput, data, 0600); err != nil {
				return fmt.Errorf("failed to write file: %w", err)
			}
			color.Green("✓ Exported to %s", exportOutput)
		} else {
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
		}

		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import vitals data from a JSON backup",
	Long: `Import vitals data from a JSON file written by 'vitals export json'.

Records already present are skipped, so importing the same backup twice is
harmless. Daily summaries in the backup overwrite stored ones for the same
date.

EXAMPLES:

  vitals import backup.json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		filename := args[0]

		data, err := os.ReadFile(filename)
		if err != nil {
			return fmt.Errorf("failed to read file: %w", err)
		}

		summary, err := storage.ImportJSON(commandContext(cmd), vitalsApp.Store, data)
		if err != nil {
			return fmt.Errorf("import failed: %w", err)
		}

		color.Green("✓ Imported from %s", filename)
		fmt.Fprintf(cmd.OutOrStdout(), "  %d batches, %d metrics, %d sleep sessions, %d nutrition days, %d summaries (%d skipped)\n",
			summary.Batches, summary.Metrics, summary.Sleep, summary.Nutrition, summary.Summaries, summary.Skipped)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "output file (default: stdout)")
	exportCmd.Flags().StringVarP(&exportType, "type", "t", "", "filter by metric type")
	exportCmd.Flags().StringVar(&exportSince, "since", "", "only include data since date (YYYY-MM-DD)")
	exportCmd.Flags().StringVar(&exportUntil, "until", "", "only include data until date (YYYY-MM-DD)")

	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
}
