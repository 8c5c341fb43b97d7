// ABOUTME: Tests for MCP server, tools, and resources.
// ABOUTME: Covers NewServer, tool handlers, and resource handlers against a temp SQLite store.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/harperreed/vitals/internal/adapter"
	"github.com/harperreed/vitals/internal/ingest"
	"github.com/harperreed/vitals/internal/models"
	"github.com/harperreed/vitals/internal/storage"
	"github.com/harperreed/vitals/internal/summary"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const testUser = "tester"

// setupTestDB creates a test database in a temp directory.
func setupTestDB(t *testing.T) storage.Store {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "vitals-mcp-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(tmpDir) })

	db, err := storage.Open(filepath.Join(tmpDir, "vitals.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	return db
}

func setupServer(t *testing.T, stage StageFunc) (*Server, storage.Store) {
	t.Helper()
	db := setupTestDB(t)
	quiet := log.New(io.Discard)
	builder := summary.NewBuilder(db, quiet)
	registry := adapter.DefaultRegistry(adapter.Options{Logger: quiet})
	svc := ingest.NewService(db, registry, builder, ingest.Options{UserID: testUser, Logger: quiet})

	server, err := NewServer(Deps{Ingest: svc, Store: db, Builder: builder, Stage: stage, Logger: quiet})
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	return server, db
}

func writeCronometer(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	content := "Date,Energy (kcal),Protein (g),Carbs (g),Fat (g)\n" +
		"2024-03-10,2000,150,200,60\n" +
		"2024-03-11,1800,120,180,55\n"
	if err := os.WriteFile(filepath.Join(dir, "dailysummary.csv"), []byte(content), 0600); err != nil {
		t.Fatalf("Failed to write export: %v", err)
	}
	return dir
}

func seedSteps(t *testing.T, db storage.Store, values map[string]float64) {
	t.Helper()
	err := db.WithTx(context.Background(), testUser, func(tx storage.Tx) error {
		for day, v := range values {
			ts, err := time.Parse("2006-01-02", day)
			if err != nil {
				return err
			}
			p := models.NewMetricPoint(models.SourceFitbit, models.MetricSteps, v, ts.Add(12*time.Hour))
			if _, err := tx.GetOrCreateMetric(context.Background(), models.NewMetricRecord(testUser, uuid.New(), p)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Failed to seed steps: %v", err)
	}
}

func contains(s, substr string) bool {
	return strings.Contains(s, substr)
}

func TestNewServer(t *testing.T) {
	server, _ := setupServer(t, nil)

	if server == nil {
		t.Fatal("Expected non-nil server")
	}
	if server.mcpServer == nil {
		t.Error("Expected non-nil mcpServer")
	}
	if server.user != testUser {
		t.Errorf("Expected user %q, got %q", testUser, server.user)
	}
	if server.stage == nil {
		t.Error("Expected default stage func")
	}
}

func TestNewServerRequiresDeps(t *testing.T) {
	if _, err := NewServer(Deps{}); err == nil {
		t.Error("Expected error for missing dependencies")
	}
}

func TestHandleIngestPath(t *testing.T) {
	server, _ := setupServer(t, nil)
	ctx := context.Background()
	dir := writeCronometer(t)

	tests := []struct {
		name        string
		input       ingestInput
		wantErr     bool
		errSubstr   string
		wantStatus  string
		wantCreated int
	}{
		{
			name:        "detected cronometer export",
			input:       ingestInput{Path: dir},
			wantStatus:  "completed",
			wantCreated: 2,
		},
		{
			name:        "re-ingest skips duplicates",
			input:       ingestInput{Path: dir, Source: "cronometer"},
			wantStatus:  "completed",
			wantCreated: 0,
		},
		{
			name:       "unrecognized directory fails the batch",
			input:      ingestInput{Path: t.TempDir()},
			wantStatus: "failed",
		},
		{
			name:      "missing path",
			input:     ingestInput{},
			wantErr:   true,
			errSubstr: "path is required",
		},
		{
			name:      "unknown source",
			input:     ingestInput{Path: dir, Source: "polar"},
			wantErr:   true,
			errSubstr: "unknown source",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, output, err := server.handleIngestPath(ctx, &mcp.CallToolRequest{}, tt.input)

			if tt.wantErr {
				if err == nil {
					t.Fatal("Expected error, got nil")
				}
				if !contains(err.Error(), tt.errSubstr) {
					t.Errorf("Expected error containing %q, got %q", tt.errSubstr, err.Error())
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if output.Status != tt.wantStatus {
				t.Errorf("Expected status %q, got %q (errors %v)", tt.wantStatus, output.Status, output.Errors)
			}
			if output.RecordsCreated != tt.wantCreated {
				t.Errorf("Expected %d created, got %d", tt.wantCreated, output.RecordsCreated)
			}
			if output.Message == "" {
				t.Error("Expected non-empty message")
			}
		})
	}
}

func TestHandleIngestPathUsesStage(t *testing.T) {
	dir := writeCronometer(t)
	cleaned := false
	stage := func(_ context.Context, location string) (string, func(), error) {
		if location != "s3://exports/cronometer" {
			return "", nil, errors.New("unexpected location " + location)
		}
		return dir, func() { cleaned = true }, nil
	}
	server, _ := setupServer(t, stage)

	_, output, err := server.handleIngestPath(context.Background(), &mcp.CallToolRequest{}, ingestInput{Path: "s3://exports/cronometer"})
	if err != nil {
		t.Fatalf("handleIngestPath failed: %v", err)
	}
	if output.RecordsCreated != 2 {
		t.Errorf("Expected 2 created, got %d", output.RecordsCreated)
	}
	if !cleaned {
		t.Error("Expected stage cleanup to run")
	}

	_, _, err = server.handleIngestPath(context.Background(), &mcp.CallToolRequest{}, ingestInput{Path: "s3://other"})
	if err == nil || !contains(err.Error(), "failed to stage") {
		t.Errorf("Expected stage error, got %v", err)
	}
}

func TestHandleDryRun(t *testing.T) {
	server, db := setupServer(t, nil)
	ctx := context.Background()
	dir := writeCronometer(t)

	_, output, err := server.handleDryRun(ctx, &mcp.CallToolRequest{}, ingestInput{Path: dir})
	if err != nil {
		t.Fatalf("handleDryRun failed: %v", err)
	}
	report, ok := output.(*ingest.DryRunReport)
	if !ok {
		t.Fatalf("Expected *ingest.DryRunReport, got %T", output)
	}
	if report.RecordsParsed != 2 {
		t.Errorf("Expected 2 parsed records, got %d", report.RecordsParsed)
	}

	batches, err := db.ListBatches(ctx, testUser, 10)
	if err != nil {
		t.Fatalf("ListBatches failed: %v", err)
	}
	if len(batches) != 0 {
		t.Errorf("Dry run should not create batches, found %d", len(batches))
	}

	if _, _, err := server.handleDryRun(ctx, &mcp.CallToolRequest{}, ingestInput{}); err == nil {
		t.Error("Expected error for missing path")
	}
}

func TestHandleRebuildSummary(t *testing.T) {
	server, db := setupServer(t, nil)
	ctx := context.Background()
	seedSteps(t, db, map[string]float64{"2024-03-10": 8000, "2024-03-11": 9000})

	tests := []struct {
		name        string
		input       rebuildInput
		wantErr     bool
		wantRebuilt int
	}{
		{name: "single date", input: rebuildInput{Date: "2024-03-10"}, wantRebuilt: 1},
		{name: "range", input: rebuildInput{StartDate: "2024-03-10", EndDate: "2024-03-12"}, wantRebuilt: 3},
		{name: "all", input: rebuildInput{All: true}, wantRebuilt: 2},
		{name: "bad date", input: rebuildInput{Date: "03/10/2024"}, wantErr: true},
		{name: "inverted range", input: rebuildInput{StartDate: "2024-03-12", EndDate: "2024-03-10"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, output, err := server.handleRebuildSummary(ctx, &mcp.CallToolRequest{}, tt.input)
			if tt.wantErr {
				if err == nil {
					t.Error("Expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if output.Rebuilt != tt.wantRebuilt {
				t.Errorf("Expected %d rebuilt, got %d", tt.wantRebuilt, output.Rebuilt)
			}
		})
	}

	sm, err := db.GetSummary(ctx, testUser, civil.Date{Year: 2024, Month: time.March, Day: 11})
	if err != nil {
		t.Fatalf("GetSummary failed: %v", err)
	}
	if sm.Steps == nil || *sm.Steps != 9000 {
		t.Errorf("Expected 9000 steps, got %v", sm.Steps)
	}
}

func TestHandleGetDailySummary(t *testing.T) {
	server, _ := setupServer(t, nil)
	ctx := context.Background()
	dir := writeCronometer(t)

	if _, _, err := server.handleIngestPath(ctx, &mcp.CallToolRequest{}, ingestInput{Path: dir}); err != nil {
		t.Fatalf("ingest failed: %v", err)
	}

	_, output, err := server.handleGetDailySummary(ctx, &mcp.CallToolRequest{}, dateInput{Date: "2024-03-10"})
	if err != nil {
		t.Fatalf("handleGetDailySummary failed: %v", err)
	}
	sm, ok := output.(*models.DailySummary)
	if !ok {
		t.Fatalf("Expected *models.DailySummary, got %T", output)
	}
	if sm.Calories == nil || *sm.Calories != 2000 {
		t.Errorf("Expected 2000 calories, got %v", sm.Calories)
	}

	_, output, err = server.handleGetDailySummary(ctx, &mcp.CallToolRequest{}, dateInput{Date: "2030-01-01"})
	if err != nil {
		t.Fatalf("Missing summary should not error: %v", err)
	}
	if msg, ok := output.(map[string]interface{}); !ok || !contains(msg["message"].(string), "No summary") {
		t.Errorf("Expected no-summary message, got %v", output)
	}

	if _, _, err := server.handleGetDailySummary(ctx, &mcp.CallToolRequest{}, dateInput{Date: "tomorrow-ish"}); err == nil {
		t.Error("Expected error for bad date")
	}
}

func TestHandleListDailySummaries(t *testing.T) {
	server, _ := setupServer(t, nil)
	ctx := context.Background()

	_, output, err := server.handleListDailySummaries(ctx, &mcp.CallToolRequest{}, rangeInput{})
	if err != nil {
		t.Fatalf("handleListDailySummaries failed: %v", err)
	}
	if _, ok := output.(map[string]interface{}); !ok {
		t.Errorf("Expected empty message, got %T", output)
	}

	if _, _, err := server.handleIngestPath(ctx, &mcp.CallToolRequest{}, ingestInput{Path: writeCronometer(t)}); err != nil {
		t.Fatalf("ingest failed: %v", err)
	}

	_, output, err = server.handleListDailySummaries(ctx, &mcp.CallToolRequest{}, rangeInput{StartDate: "2024-03-11", EndDate: "2024-03-31"})
	if err != nil {
		t.Fatalf("handleListDailySummaries failed: %v", err)
	}
	summaries, ok := output.([]*models.DailySummary)
	if !ok {
		t.Fatalf("Expected []*models.DailySummary, got %T", output)
	}
	if len(summaries) != 1 {
		t.Errorf("Expected 1 summary, got %d", len(summaries))
	}
}

func TestHandleWeeklyReport(t *testing.T) {
	server, db := setupServer(t, nil)
	ctx := context.Background()
	seedSteps(t, db, map[string]float64{"2024-03-04": 1000, "2024-03-05": 3000})
	if _, _, err := server.handleRebuildSummary(ctx, &mcp.CallToolRequest{}, rebuildInput{All: true}); err != nil {
		t.Fatalf("rebuild failed: %v", err)
	}

	_, output, err := server.handleWeeklyReport(ctx, &mcp.CallToolRequest{}, weekInput{WeekStart: "2024-03-07"})
	if err != nil {
		t.Fatalf("handleWeeklyReport failed: %v", err)
	}
	report, ok := output.(*summary.WeeklyReport)
	if !ok {
		t.Fatalf("Expected *summary.WeeklyReport, got %T", output)
	}
	if report.Start.String() != "2024-03-04" {
		t.Errorf("Expected week start 2024-03-04, got %s", report.Start)
	}
	if report.Totals.Steps != 4000 {
		t.Errorf("Expected 4000 total steps, got %d", report.Totals.Steps)
	}
}

func TestHandleListImports(t *testing.T) {
	server, _ := setupServer(t, nil)
	ctx := context.Background()

	_, output, err := server.handleListImports(ctx, &mcp.CallToolRequest{}, limitInput{})
	if err != nil {
		t.Fatalf("handleListImports failed: %v", err)
	}
	if _, ok := output.(map[string]interface{}); !ok {
		t.Errorf("Expected empty message, got %T", output)
	}

	if _, _, err := server.handleIngestPath(ctx, &mcp.CallToolRequest{}, ingestInput{Path: writeCronometer(t)}); err != nil {
		t.Fatalf("ingest failed: %v", err)
	}

	_, output, err = server.handleListImports(ctx, &mcp.CallToolRequest{}, limitInput{Limit: 5})
	if err != nil {
		t.Fatalf("handleListImports failed: %v", err)
	}
	batches, ok := output.([]batchOutput)
	if !ok {
		t.Fatalf("Expected []batchOutput, got %T", output)
	}
	if len(batches) != 1 || batches[0].Source != "cronometer" {
		t.Errorf("Unexpected batches: %+v", batches)
	}
}

func TestHandleListMetrics(t *testing.T) {
	server, db := setupServer(t, nil)
	ctx := context.Background()
	seedSteps(t, db, map[string]float64{"2024-03-10": 8000, "2024-03-11": 9000})

	tests := []struct {
		name      string
		input     listMetricsInput
		wantCount int
		wantErr   bool
	}{
		{name: "all", input: listMetricsInput{}, wantCount: 2},
		{name: "by type", input: listMetricsInput{MetricType: "steps"}, wantCount: 2},
		{name: "by date", input: listMetricsInput{Date: "2024-03-11"}, wantCount: 1},
		{name: "by range", input: listMetricsInput{StartDate: "2024-03-11", EndDate: "2024-03-12"}, wantCount: 1},
		{name: "limit", input: listMetricsInput{Limit: 1}, wantCount: 1},
		{name: "no match", input: listMetricsInput{Source: "oura"}, wantCount: 0},
		{name: "unknown type", input: listMetricsInput{MetricType: "mood"}, wantErr: true},
		{name: "unknown source", input: listMetricsInput{Source: "polar"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, output, err := server.handleListMetrics(ctx, &mcp.CallToolRequest{}, tt.input)
			if tt.wantErr {
				if err == nil {
					t.Error("Expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if tt.wantCount == 0 {
				if _, ok := output.(map[string]interface{}); !ok {
					t.Errorf("Expected empty message, got %T", output)
				}
				return
			}
			metrics, ok := output.([]*models.MetricRecord)
			if !ok {
				t.Fatalf("Expected []*models.MetricRecord, got %T", output)
			}
			if len(metrics) != tt.wantCount {
				t.Errorf("Expected %d metrics, got %d", tt.wantCount, len(metrics))
			}
		})
	}
}

func TestHandleListSources(t *testing.T) {
	server, _ := setupServer(t, nil)

	_, output, err := server.handleListSources(context.Background(), &mcp.CallToolRequest{}, emptyInput{})
	if err != nil {
		t.Fatalf("handleListSources failed: %v", err)
	}
	sources, ok := output.([]adapter.SourceInfo)
	if !ok {
		t.Fatalf("Expected []adapter.SourceInfo, got %T", output)
	}
	found := false
	for _, s := range sources {
		if s.Name == models.SourceCronometer {
			found = true
		}
	}
	if !found {
		t.Error("Expected cronometer in sources")
	}
}

func TestParseDay(t *testing.T) {
	today := civil.DateOf(time.Now())

	tests := []struct {
		raw     string
		want    civil.Date
		wantErr bool
	}{
		{raw: "2024-03-10", want: civil.Date{Year: 2024, Month: time.March, Day: 10}},
		{raw: "today", want: today},
		{raw: "", want: today},
		{raw: "Yesterday", want: today.AddDays(-1)},
		{raw: "10/03/2024", wantErr: true},
	}
	for _, tt := range tests {
		got, err := parseDay(tt.raw)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parseDay(%q): expected error", tt.raw)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseDay(%q): %v", tt.raw, err)
			continue
		}
		if got != tt.want {
			t.Errorf("parseDay(%q) = %s, want %s", tt.raw, got, tt.want)
		}
	}
}

func TestRecentImportsResource(t *testing.T) {
	server, _ := setupServer(t, nil)
	ctx := context.Background()
	if _, _, err := server.handleIngestPath(ctx, &mcp.CallToolRequest{}, ingestInput{Path: writeCronometer(t)}); err != nil {
		t.Fatalf("ingest failed: %v", err)
	}

	result, err := server.handleRecentImports(ctx, &mcp.ReadResourceRequest{})
	if err != nil {
		t.Fatalf("handleRecentImports failed: %v", err)
	}
	if len(result.Contents) != 1 {
		t.Fatalf("Expected 1 content, got %d", len(result.Contents))
	}
	if result.Contents[0].URI != recentImportsURI {
		t.Errorf("Expected URI %s, got %s", recentImportsURI, result.Contents[0].URI)
	}

	var body struct {
		Count   int           `json:"count"`
		Imports []batchOutput `json:"imports"`
	}
	if err := json.Unmarshal([]byte(result.Contents[0].Text), &body); err != nil {
		t.Fatalf("Failed to decode resource: %v", err)
	}
	if body.Count != 1 || body.Imports[0].RecordsCreated != 2 {
		t.Errorf("Unexpected resource body: %+v", body)
	}
}

func TestRecentSummariesResource(t *testing.T) {
	server, db := setupServer(t, nil)
	ctx := context.Background()
	today := civil.DateOf(time.Now())
	seedSteps(t, db, map[string]float64{today.String(): 5000})
	if _, _, err := server.handleRebuildSummary(ctx, &mcp.CallToolRequest{}, rebuildInput{All: true}); err != nil {
		t.Fatalf("rebuild failed: %v", err)
	}

	result, err := server.handleRecentSummaries(ctx, &mcp.ReadResourceRequest{})
	if err != nil {
		t.Fatalf("handleRecentSummaries failed: %v", err)
	}
	var body struct {
		Count int    `json:"count"`
		To    string `json:"to"`
	}
	if err := json.Unmarshal([]byte(result.Contents[0].Text), &body); err != nil {
		t.Fatalf("Failed to decode resource: %v", err)
	}
	if body.Count != 1 {
		t.Errorf("Expected 1 summary, got %d", body.Count)
	}
	if body.To != today.String() {
		t.Errorf("Expected to=%s, got %s", today, body.To)
	}
}

func TestWeekResource(t *testing.T) {
	server, _ := setupServer(t, nil)

	result, err := server.handleWeekResource(context.Background(), &mcp.ReadResourceRequest{})
	if err != nil {
		t.Fatalf("handleWeekResource failed: %v", err)
	}
	if result.Contents[0].MIMEType != "application/json" {
		t.Errorf("Expected application/json, got %s", result.Contents[0].MIMEType)
	}
	if !contains(result.Contents[0].Text, "week_start") {
		t.Error("Expected week_start in weekly report")
	}
}
