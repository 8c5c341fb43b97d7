// ABOUTME: CLI command for starting MCP server.
// ABOUTME: Runs stdio-based MCP server for AI assistant integration.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP server",
	Long: `Start the Model Context Protocol (MCP) server for AI assistant integration.

MCP lets AI assistants import exports and read your summaries through a
standardized protocol. The server communicates via stdin/stdout, so logs go
to stderr.

CLIENT CONFIGURATION:

  {
    "mcpServers": {
      "vitals": {
        "command": "vitals",
        "args": ["mcp"]
      }
    }
  }

AVAILABLE TOOLS:

  ingest_path           Import a file, directory, zip, or s3:// URI
  dry_run               Parse an export without saving
  rebuild_summary       Recompute daily summaries
  get_daily_summary     One day's summary
  list_daily_summaries  Summaries in a date range
  weekly_report         Averages, totals, and bests for a week
  list_imports          Recent import batches
  list_metrics          Stored metric records
  list_sources          Supported export formats

AVAILABLE RESOURCES:

  vitals://summaries/recent   Last 7 days of summaries
  vitals://imports/recent     Last 10 imports
  vitals://week               This week's report`,
	RunE: func(cmd *cobra.Command, args []string) error {
		server, err := vitalsApp.MCPServer()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithCancel(commandContext(cmd))
		defer cancel()

		// Handle shutdown signals
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			<-sigChan
			cancel()
		}()

		return server.Serve(ctx)
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
