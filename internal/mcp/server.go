// ABOUTME: MCP server setup for the vitals store.
// ABOUTME: Exposes ingestion, summaries, and records to MCP clients over stdio.
package mcp

import (
	"context"
	"errors"

	"github.com/charmbracelet/log"
	"github.com/harperreed/vitals/internal/ingest"
	"github.com/harperreed/vitals/internal/storage"
	"github.com/harperreed/vitals/internal/summary"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// StageFunc turns a user supplied location (local path, zip, or s3 URI) into
// a local path an adapter can read. cleanup removes anything it created.
type StageFunc func(ctx context.Context, location string) (path string, cleanup func(), err error)

// Deps groups what the server needs.
type Deps struct {
	Ingest  *ingest.Service
	Store   storage.Store
	Builder *summary.Builder
	Stage   StageFunc
	Logger  *log.Logger
}

// Server wraps the MCP server with storage access.
type Server struct {
	mcpServer *mcp.Server
	ingest    *ingest.Service
	store     storage.Store
	builder   *summary.Builder
	stage     StageFunc
	user      string
	log       *log.Logger
}

// NewServer creates a new MCP server over the given services.
func NewServer(deps Deps) (*Server, error) {
	if deps.Ingest == nil || deps.Store == nil || deps.Builder == nil {
		return nil, errors.New("mcp server needs ingest service, store, and summary builder")
	}
	if deps.Stage == nil {
		deps.Stage = func(_ context.Context, location string) (string, func(), error) {
			return location, func() {}, nil
		}
	}
	if deps.Logger == nil {
		deps.Logger = log.Default()
	}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    "vitals",
			Version: "1.0.0",
		},
		nil,
	)

	s := &Server{
		mcpServer: mcpServer,
		ingest:    deps.Ingest,
		store:     deps.Store,
		builder:   deps.Builder,
		stage:     deps.Stage,
		user:      deps.Ingest.UserID(),
		log:       deps.Logger,
	}

	s.registerTools()
	s.registerResources()

	return s, nil
}

// Serve starts the MCP server using stdio transport.
func (s *Server) Serve(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcp.StdioTransport{})
}
