// ABOUTME: CLI command for importing vendor exports.
// ABOUTME: Accepts files, directories, zips, and s3:// URIs, with a dry-run mode.
package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/harperreed/vitals/internal/ingest"
	"github.com/harperreed/vitals/internal/models"
	"github.com/harperreed/vitals/internal/objectstore"
	"github.com/spf13/cobra"
)

var (
	ingestSource    string
	ingestDryRun    bool
	ingestShowError int
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <path>",
	Short: "Import a health data export",
	Long: `Import a vendor health export into the store.

The path may be a file, a directory, a .zip archive, or an s3://bucket/prefix
URI (configure s3.endpoint and credentials first). The adapter is detected
from the files unless --source is given. Re-importing the same export is safe:
records already stored are skipped.

After saving, the daily summary is rebuilt for every date that gained records.

EXAMPLES:

  vitals ingest ~/Downloads/takeout-20240310.zip
  vitals ingest ./Takeout/Fitbit --source fitbit
  vitals ingest ./export --dry-run
  vitals ingest s3://health-exports/2024/cronometer/`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		location := args[0]
		if ingestSource != "" && !models.IsValidSource(ingestSource) {
			return fmt.Errorf("unknown source: %s", ingestSource)
		}
		if !objectstore.IsURI(location) {
			if _, err := os.Stat(location); err != nil {
				return fmt.Errorf("path does not exist: %s", location)
			}
		}

		ctx := commandContext(cmd)
		out := cmd.OutOrStdout()
		source := ingestSource
		if source == "" {
			source = "auto-detect"
		}
		fmt.Fprintf(out, "Processing: %s\n", location)
		fmt.Fprintf(out, "Source: %s\n", source)
		fmt.Fprintf(out, "Dry run: %t\n", ingestDryRun)
		fmt.Fprintln(out, strings.Repeat("-", 50))

		path, cleanup, err := vitalsApp.Stage(ctx, location)
		if err != nil {
			return fmt.Errorf("failed to stage %s: %w", location, err)
		}
		defer cleanup()

		if ingestDryRun {
			report, err := vitalsApp.Ingest.DryRun(path, ingestSource)
			if err != nil {
				return err
			}
			printDryRun(out, report, ingestShowError)
			return nil
		}

		batch, err := vitalsApp.Ingest.Ingest(ctx, path, ingestSource)
		if err != nil {
			return fmt.Errorf("ingest failed: %w", err)
		}
		printBatch(out, batch, ingestShowError)
		if batch.Status != models.BatchCompleted {
			return fmt.Errorf("import %s %s", shortID(batch.BatchID.String()), batch.Status)
		}
		return nil
	},
}

func printDryRun(out io.Writer, r *ingest.DryRunReport, maxErrors int) {
	fmt.Fprintf(out, "Using adapter: %s\n", r.Source)
	fmt.Fprintln(out, color.GreenString("\nParsed %d records", r.RecordsParsed))

	fmt.Fprintln(out, "\nBy record type:")
	kinds := make([]string, 0, len(r.ByKind))
	for k := range r.ByKind {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		fmt.Fprintf(out, "  %s: %d\n", k, r.ByKind[models.RecordKind(k)])
	}

	fmt.Fprintln(out, "\nBy metric type:")
	metrics := make([]string, 0, len(r.ByMetric))
	for m := range r.ByMetric {
		metrics = append(metrics, string(m))
	}
	sort.Strings(metrics)
	for _, m := range metrics {
		fmt.Fprintf(out, "  %s: %d\n", m, r.ByMetric[models.MetricType(m)])
	}

	printErrors(out, r.Errors, maxErrors)
}

func printBatch(out io.Writer, b *models.ImportBatch, maxErrors int) {
	if b.Status == models.BatchCompleted {
		fmt.Fprintln(out, color.GreenString("\n✓ Import completed"))
	} else {
		fmt.Fprintln(out, color.RedString("\n✗ Import %s", b.Status))
	}
	fmt.Fprintf(out, "Batch ID: %s\n", b.BatchID)
	fmt.Fprintf(out, "Source: %s\n", b.Source)
	fmt.Fprintf(out, "Records processed: %d\n", b.RecordsProcessed)
	fmt.Fprintf(out, "Records created: %d\n", b.RecordsCreated)
	fmt.Fprintf(out, "Records skipped: %d\n", b.RecordsSkipped)
	printErrors(out, b.Errors, maxErrors)
}

func printErrors(out io.Writer, errs []string, maxErrors int) {
	if len(errs) == 0 {
		return
	}
	fmt.Fprintln(out, color.YellowString("\nErrors (%d):", len(errs)))
	shown := errs
	if maxErrors >= 0 && len(shown) > maxErrors {
		shown = shown[:maxErrors]
	}
	for _, e := range shown {
		fmt.Fprintf(out, "  - %s\n", e)
	}
	if len(errs) > len(shown) {
		fmt.Fprintf(out, "  ... and %d more\n", len(errs)-len(shown))
	}
}

func init() {
	ingestCmd.Flags().StringVarP(&ingestSource, "source", "s", "", "adapter name (fitbit, apple_health, cronometer); detected when empty")
	ingestCmd.Flags().BoolVar(&ingestDryRun, "dry-run", false, "parse and report without saving")
	ingestCmd.Flags().IntVar(&ingestShowError, "errors", 10, "max errors to print")
	rootCmd.AddCommand(ingestCmd)
}
