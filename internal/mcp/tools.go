// ABOUTME: MCP tool implementations for vitals.
// ABOUTME: Ingest exports, rebuild summaries, and query records and import history.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/harperreed/vitals/internal/models"
	"github.com/harperreed/vitals/internal/storage"
	"github.com/harperreed/vitals/internal/summary"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func (s *Server) registerTools() {
	// ingest_path
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "ingest_path",
		Description: "Import a vendor health export (file, directory, zip, or s3:// URI) and rebuild affected daily summaries",
	}, s.handleIngestPath)

	// dry_run
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "dry_run",
		Description: "Parse a vendor export without saving anything and report what would be imported",
	}, s.handleDryRun)

	// rebuild_summary
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "rebuild_summary",
		Description: "Recompute daily summaries for one date, a date range, or every date with data",
	}, s.handleRebuildSummary)

	// get_daily_summary
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "get_daily_summary",
		Description: "Get the daily summary (nutrition, sleep, activity, vitals, scores) for one date",
	}, s.handleGetDailySummary)

	// list_daily_summaries
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "list_daily_summaries",
		Description: "List daily summaries in a date range, newest first",
	}, s.handleListDailySummaries)

	// weekly_report
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "weekly_report",
		Description: "Averages, totals, and best days for the week containing a date",
	}, s.handleWeeklyReport)

	// list_imports
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "list_imports",
		Description: "List recent import batches with their status and counts",
	}, s.handleListImports)

	// list_metrics
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "list_metrics",
		Description: "List stored metric records, optionally filtered by type, source, and date",
	}, s.handleListMetrics)

	// list_sources
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "list_sources",
		Description: "List the export formats vitals can import",
	}, s.handleListSources)
}

// Tool input/output types

type ingestInput struct {
	Path   string `json:"path" jsonschema:"Local file or directory, zip archive, or s3://bucket/prefix URI"`
	Source string `json:"source,omitempty" jsonschema:"Adapter name such as fitbit or cronometer; detected when empty"`
}

type batchOutput struct {
	BatchID          string   `json:"batch_id"`
	Source           string   `json:"source"`
	Status           string   `json:"status"`
	FileName         string   `json:"file_name"`
	FileType         string   `json:"file_type"`
	RecordsProcessed int      `json:"records_processed"`
	RecordsCreated   int      `json:"records_created"`
	RecordsSkipped   int      `json:"records_skipped"`
	Errors           []string `json:"errors"`
	Message          string   `json:"message"`
}

type rebuildInput struct {
	Date      string `json:"date,omitempty" jsonschema:"Single date (YYYY-MM-DD, today, or yesterday)"`
	StartDate string `json:"start_date,omitempty" jsonschema:"First date of a range (YYYY-MM-DD)"`
	EndDate   string `json:"end_date,omitempty" jsonschema:"Last date of a range (YYYY-MM-DD)"`
	All       bool   `json:"all,omitempty" jsonschema:"Rebuild every date that has stored records"`
}

type rebuildOutput struct {
	Rebuilt int      `json:"rebuilt"`
	Dates   []string `json:"dates,omitempty"`
	Message string   `json:"message"`
}

type dateInput struct {
	Date string `json:"date" jsonschema:"Date (YYYY-MM-DD, today, or yesterday)"`
}

type rangeInput struct {
	StartDate string `json:"start_date,omitempty" jsonschema:"First date (YYYY-MM-DD)"`
	EndDate   string `json:"end_date,omitempty" jsonschema:"Last date (YYYY-MM-DD)"`
	Limit     int    `json:"limit,omitempty" jsonschema:"Max results (default 30)"`
}

type weekInput struct {
	WeekStart string `json:"week_start,omitempty" jsonschema:"Any date in the week; defaults to the current week"`
}

type limitInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"Max results (default 20)"`
}

type listMetricsInput struct {
	MetricType string `json:"metric_type,omitempty" jsonschema:"Filter by metric type such as steps or resting_heart_rate"`
	Source     string `json:"source,omitempty" jsonschema:"Filter by source"`
	Date       string `json:"date,omitempty" jsonschema:"Only records on this date"`
	StartDate  string `json:"start_date,omitempty" jsonschema:"First date (YYYY-MM-DD)"`
	EndDate    string `json:"end_date,omitempty" jsonschema:"Last date (YYYY-MM-DD)"`
	Limit      int    `json:"limit,omitempty" jsonschema:"Max results (default 20)"`
}

type emptyInput struct{}

func toBatchOutput(b *models.ImportBatch) batchOutput {
	out := batchOutput{
		BatchID:          b.BatchID.String(),
		Source:           b.Source,
		Status:           string(b.Status),
		FileName:         b.FileName,
		FileType:         b.FileType,
		RecordsProcessed: b.RecordsProcessed,
		RecordsCreated:   b.RecordsCreated,
		RecordsSkipped:   b.RecordsSkipped,
		Errors:           b.Errors,
	}
	out.Message = fmt.Sprintf("Import %s %s: %d created, %d skipped, %d errors",
		out.BatchID[:8], out.Status, out.RecordsCreated, out.RecordsSkipped, len(out.Errors))
	return out
}

// parseDay accepts YYYY-MM-DD plus the words today and yesterday.
func parseDay(raw string) (civil.Date, error) {
	today := civil.DateOf(time.Now())
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "today":
		return today, nil
	case "yesterday":
		return today.AddDays(-1), nil
	}
	d, err := civil.ParseDate(strings.TrimSpace(raw))
	if err != nil {
		return civil.Date{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD", raw)
	}
	return d, nil
}

func optionalDay(raw string) (civil.Date, error) {
	if strings.TrimSpace(raw) == "" {
		return civil.Date{}, nil
	}
	return parseDay(raw)
}

// Tool handlers

func (s *Server) handleIngestPath(ctx context.Context, req *mcp.CallToolRequest, input ingestInput) (*mcp.CallToolResult, batchOutput, error) {
	if input.Path == "" {
		return nil, batchOutput{}, errors.New("path is required")
	}
	if input.Source != "" && !models.IsValidSource(input.Source) {
		return nil, batchOutput{}, fmt.Errorf("unknown source: %s", input.Source)
	}

	path, cleanup, err := s.stage(ctx, input.Path)
	if err != nil {
		return nil, batchOutput{}, fmt.Errorf("failed to stage %s: %w", input.Path, err)
	}
	defer cleanup()

	batch, err := s.ingest.Ingest(ctx, path, input.Source)
	if err != nil {
		return nil, batchOutput{}, fmt.Errorf("failed to ingest: %w", err)
	}
	return nil, toBatchOutput(batch), nil
}

func (s *Server) handleDryRun(ctx context.Context, req *mcp.CallToolRequest, input ingestInput) (*mcp.CallToolResult, any, error) {
	if input.Path == "" {
		return nil, nil, errors.New("path is required")
	}
	path, cleanup, err := s.stage(ctx, input.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to stage %s: %w", input.Path, err)
	}
	defer cleanup()

	report, err := s.ingest.DryRun(path, input.Source)
	if err != nil {
		return nil, nil, err
	}
	return nil, report, nil
}

func (s *Server) handleRebuildSummary(ctx context.Context, req *mcp.CallToolRequest, input rebuildInput) (*mcp.CallToolResult, rebuildOutput, error) {
	switch {
	case input.All:
		n, err := s.builder.RebuildAll(ctx, s.user)
		if err != nil {
			return nil, rebuildOutput{}, fmt.Errorf("failed to rebuild summaries: %w", err)
		}
		return nil, rebuildOutput{Rebuilt: n, Message: fmt.Sprintf("Rebuilt %d daily summaries", n)}, nil

	case input.StartDate != "" || input.EndDate != "":
		from, err := parseDay(input.StartDate)
		if err != nil {
			return nil, rebuildOutput{}, err
		}
		to, err := parseDay(input.EndDate)
		if err != nil {
			return nil, rebuildOutput{}, err
		}
		summaries, err := s.builder.RebuildRange(ctx, from, to, s.user)
		if err != nil {
			return nil, rebuildOutput{}, fmt.Errorf("failed to rebuild summaries: %w", err)
		}
		out := rebuildOutput{Rebuilt: len(summaries)}
		for _, sm := range summaries {
			out.Dates = append(out.Dates, sm.Date.String())
		}
		out.Message = fmt.Sprintf("Rebuilt %d daily summaries from %s to %s", out.Rebuilt, from, to)
		return nil, out, nil

	default:
		d, err := parseDay(input.Date)
		if err != nil {
			return nil, rebuildOutput{}, err
		}
		if _, err := s.builder.Rebuild(ctx, d, s.user); err != nil {
			return nil, rebuildOutput{}, fmt.Errorf("failed to rebuild summary: %w", err)
		}
		return nil, rebuildOutput{
			Rebuilt: 1,
			Dates:   []string{d.String()},
			Message: fmt.Sprintf("Rebuilt daily summary for %s", d),
		}, nil
	}
}

func (s *Server) handleGetDailySummary(ctx context.Context, req *mcp.CallToolRequest, input dateInput) (*mcp.CallToolResult, any, error) {
	d, err := parseDay(input.Date)
	if err != nil {
		return nil, nil, err
	}
	sm, err := s.store.GetSummary(ctx, s.user, d)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, map[string]interface{}{"message": fmt.Sprintf("No summary for %s.", d)}, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get summary: %w", err)
	}
	return nil, sm, nil
}

func (s *Server) handleListDailySummaries(ctx context.Context, req *mcp.CallToolRequest, input rangeInput) (*mcp.CallToolResult, any, error) {
	if input.Limit <= 0 {
		input.Limit = 30
	}
	from, err := optionalDay(input.StartDate)
	if err != nil {
		return nil, nil, err
	}
	to, err := optionalDay(input.EndDate)
	if err != nil {
		return nil, nil, err
	}

	summaries, err := s.store.ListSummaries(ctx, storage.Filter{UserID: s.user, From: from, To: to, Limit: input.Limit})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list summaries: %w", err)
	}
	if len(summaries) == 0 {
		return nil, map[string]interface{}{"message": "No daily summaries found."}, nil
	}
	return nil, summaries, nil
}

func (s *Server) handleWeeklyReport(ctx context.Context, req *mcp.CallToolRequest, input weekInput) (*mcp.CallToolResult, any, error) {
	d, err := parseDay(input.WeekStart)
	if err != nil {
		return nil, nil, err
	}
	report, err := s.builder.WeeklyReport(ctx, s.user, summary.MondayOf(d))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build weekly report: %w", err)
	}
	return nil, report, nil
}

func (s *Server) handleListImports(ctx context.Context, req *mcp.CallToolRequest, input limitInput) (*mcp.CallToolResult, any, error) {
	if input.Limit <= 0 {
		input.Limit = 20
	}
	batches, err := s.store.ListBatches(ctx, s.user, input.Limit)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list imports: %w", err)
	}
	if len(batches) == 0 {
		return nil, map[string]interface{}{"message": "No imports found."}, nil
	}
	out := make([]batchOutput, 0, len(batches))
	for _, b := range batches {
		out = append(out, toBatchOutput(b))
	}
	return nil, out, nil
}

func (s *Server) handleListMetrics(ctx context.Context, req *mcp.CallToolRequest, input listMetricsInput) (*mcp.CallToolResult, any, error) {
	if input.Limit <= 0 {
		input.Limit = 20
	}
	f := storage.Filter{UserID: s.user, Limit: input.Limit}
	if input.MetricType != "" {
		if !models.IsValidMetricType(input.MetricType) {
			return nil, nil, fmt.Errorf("unknown metric type: %s", input.MetricType)
		}
		f.MetricType = models.MetricType(input.MetricType)
	}
	if input.Source != "" {
		if !models.IsValidSource(input.Source) {
			return nil, nil, fmt.Errorf("unknown source: %s", input.Source)
		}
		f.Source = models.Source(input.Source)
	}

	var err error
	if input.Date != "" {
		d, err := parseDay(input.Date)
		if err != nil {
			return nil, nil, err
		}
		f = f.OnDate(d)
	} else {
		if f.From, err = optionalDay(input.StartDate); err != nil {
			return nil, nil, err
		}
		if f.To, err = optionalDay(input.EndDate); err != nil {
			return nil, nil, err
		}
	}

	metrics, err := s.store.ListMetrics(ctx, f)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list metrics: %w", err)
	}
	if len(metrics) == 0 {
		return nil, map[string]interface{}{"message": "No metrics found."}, nil
	}
	return nil, metrics, nil
}

func (s *Server) handleListSources(ctx context.Context, req *mcp.CallToolRequest, input emptyInput) (*mcp.CallToolResult, any, error) {
	return nil, s.ingest.Registry().Sources(), nil
}
