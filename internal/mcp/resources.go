// ABOUTME: MCP resource implementations for vitals.
// ABOUTME: Provides vitals://summaries/recent, vitals://imports/recent, and vitals://week.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/harperreed/vitals/internal/storage"
	"github.com/harperreed/vitals/internal/summary"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	recentSummariesURI = "vitals://summaries/recent"
	recentImportsURI   = "vitals://imports/recent"
	weekURI            = "vitals://week"
)

func (s *Server) registerResources() {
	// Last 7 days of daily summaries
	s.mcpServer.AddResource(&mcp.Resource{
		URI:         recentSummariesURI,
		Name:        "Recent Daily Summaries",
		Description: "Daily summaries for the last 7 days",
		MIMEType:    "application/json",
	}, s.handleRecentSummaries)

	s.mcpServer.AddResource(&mcp.Resource{
		URI:         recentImportsURI,
		Name:        "Recent Imports",
		Description: "The 10 most recent import batches",
		MIMEType:    "application/json",
	}, s.handleRecentImports)

	s.mcpServer.AddResource(&mcp.Resource{
		URI:         weekURI,
		Name:        "This Week",
		Description: "Weekly report for the current Monday to Sunday week",
		MIMEType:    "application/json",
	}, s.handleWeekResource)
}

// Resource handlers

func (s *Server) handleRecentSummaries(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	today := civil.DateOf(time.Now())
	from := today.AddDays(-6)

	summaries, err := s.store.ListSummaries(ctx, storage.Filter{UserID: s.user, From: from, To: today})
	if err != nil {
		return nil, fmt.Errorf("failed to list summaries: %w", err)
	}

	return jsonResource(recentSummariesURI, map[string]interface{}{
		"from":      from.String(),
		"to":        today.String(),
		"count":     len(summaries),
		"summaries": summaries,
	})
}

func (s *Server) handleRecentImports(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	batches, err := s.store.ListBatches(ctx, s.user, 10)
	if err != nil {
		return nil, fmt.Errorf("failed to list imports: %w", err)
	}

	out := make([]batchOutput, 0, len(batches))
	for _, b := range batches {
		out = append(out, toBatchOutput(b))
	}
	return jsonResource(recentImportsURI, map[string]interface{}{
		"count":   len(out),
		"imports": out,
	})
}

func (s *Server) handleWeekResource(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	report, err := s.builder.WeeklyReport(ctx, s.user, summary.MondayOf(civil.DateOf(time.Now())))
	if err != nil {
		return nil, fmt.Errorf("failed to build weekly report: %w", err)
	}
	return jsonResource(weekURI, report)
}

func jsonResource(uri string, v any) (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}
