// ABOUTME: CLI command for running the HTTP API.
// ABOUTME: Serves /api/v1 until interrupted, then shuts down gracefully.
package main

import (
	"os/signal"
	"syscall"

	"github.com/harperreed/vitals/internal/app"
	"github.com/spf13/cobra"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Start the HTTP API.

ENDPOINTS:

  POST /api/v1/ingest/upload            multipart "file" (+ optional "source")
  GET  /api/v1/ingest/sources           supported export formats
  GET  /api/v1/imports[/:batch_id]      import history
  GET  /api/v1/health-records           metric records (metric_type, source, date,
                                        start_date, end_date, limit)
  GET  /api/v1/health-records/summary   per metric type counts and ranges
  GET  /api/v1/sleep-logs               sleep sessions
  GET  /api/v1/nutrition-logs           daily nutrition
  GET  /api/v1/daily-summaries[/:date]  daily summaries
  POST /api/v1/daily-summaries/rebuild  {"date"} | {"start_date","end_date"} | {"all"}
  GET  /api/v1/reports/averages         start_date, end_date
  GET  /api/v1/reports/weekly           week_start

The listen address comes from http.addr in the config, VITALS_HTTP_ADDR, or
--addr.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if serveAddr != "" {
			cfg.HTTP.Addr = serveAddr
		}

		ctx, stop := signal.NotifyContext(commandContext(cmd), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		return app.ListenAndServe(ctx, vitalsApp.HTTPServer(), vitalsApp.Logger)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
	rootCmd.AddCommand(serveCmd)
}
