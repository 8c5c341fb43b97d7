// ABOUTME: CLI commands for import history and the adapter catalogue.
// ABOUTME: 'imports' lists batches, 'imports show' prints one with its errors.
package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/harperreed/vitals/internal/models"
	"github.com/harperreed/vitals/internal/storage"
	"github.com/spf13/cobra"
)

var importsLimit int

var importsCmd = &cobra.Command{
	Use:   "imports",
	Short: "Show import history",
	Long: `List import batches, newest first.

Each line shows: ID  STARTED  SOURCE  STATUS  CREATED/SKIPPED  FILE

The ID is an 8-character prefix accepted by 'imports show'.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return listImports(cmd)
	},
}

var importsListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List import batches",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return listImports(cmd)
	},
}

var importsShowCmd = &cobra.Command{
	Use:   "show <batch-id>",
	Short: "Show one import batch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		batch, err := findBatch(cmd, args[0])
		if err != nil {
			return err
		}
		printBatch(cmd.OutOrStdout(), batch, -1)
		fmt.Fprintf(cmd.OutOrStdout(), "File: %s (%s)\n", batch.FileName, batch.FileType)
		fmt.Fprintf(cmd.OutOrStdout(), "Started: %s\n", batch.StartedAt.Format("2006-01-02 15:04:05"))
		if batch.CompletedAt != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "Completed: %s\n", batch.CompletedAt.Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List supported export formats",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		for _, s := range vitalsApp.Registry.Sources() {
			fmt.Fprintf(out, "%s %s\n", padRight(string(s.Name), 14), s.Description)
		}
		return nil
	},
}

func listImports(cmd *cobra.Command) error {
	batches, err := vitalsApp.Store.ListBatches(commandContext(cmd), cfg.GetUser(), importsLimit)
	if err != nil {
		return fmt.Errorf("failed to list imports: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(batches) == 0 {
		fmt.Fprintln(out, "No imports found.")
		return nil
	}

	faint := color.New(color.Faint)
	for _, b := range batches {
		status := string(b.Status)
		switch b.Status {
		case models.BatchCompleted:
			status = color.GreenString(padRight(status, 10))
		case models.BatchFailed:
			status = color.RedString(padRight(status, 10))
		default:
			status = padRight(status, 10)
		}
		fmt.Fprintf(out, "%s %s %s %s %s %s\n",
			faint.Sprint(shortID(b.BatchID.String())),
			faint.Sprint(b.StartedAt.Format("2006-01-02 15:04")),
			padRight(b.Source, 12),
			status,
			padRight(fmt.Sprintf("%d/%d", b.RecordsCreated, b.RecordsSkipped), 12),
			truncate(b.FileName, 40))
	}
	return nil
}

// findBatch resolves a full batch id or a unique prefix among recent batches.
func findBatch(cmd *cobra.Command, id string) (*models.ImportBatch, error) {
	batches, err := vitalsApp.Store.ListBatches(commandContext(cmd), cfg.GetUser(), 0)
	if err != nil {
		return nil, fmt.Errorf("failed to list imports: %w", err)
	}

	var match *models.ImportBatch
	for _, b := range batches {
		if !strings.HasPrefix(b.BatchID.String(), strings.ToLower(id)) {
			continue
		}
		if match != nil {
			return nil, fmt.Errorf("batch id prefix %q is ambiguous", id)
		}
		match = b
	}
	if match == nil {
		return nil, fmt.Errorf("import batch %s: %w", id, storage.ErrNotFound)
	}
	return match, nil
}

func init() {
	importsCmd.PersistentFlags().IntVarP(&importsLimit, "limit", "n", 20, "max number of batches")
	importsCmd.AddCommand(importsListCmd, importsShowCmd)
	rootCmd.AddCommand(importsCmd, sourcesCmd)
}
