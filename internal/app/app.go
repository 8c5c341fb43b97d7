// ABOUTME: Wires configuration into the logger, store, locker, and services.
// ABOUTME: Shared by the CLI commands, the HTTP server, and the MCP server.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/harperreed/vitals/internal/adapter"
	"github.com/harperreed/vitals/internal/archive"
	"github.com/harperreed/vitals/internal/config"
	"github.com/harperreed/vitals/internal/httpapi"
	"github.com/harperreed/vitals/internal/ingest"
	"github.com/harperreed/vitals/internal/lock"
	"github.com/harperreed/vitals/internal/logging"
	"github.com/harperreed/vitals/internal/mcp"
	"github.com/harperreed/vitals/internal/objectstore"
	"github.com/harperreed/vitals/internal/storage"
	"github.com/harperreed/vitals/internal/summary"
)

const lockPrefix = "vitals:lock:"

// App holds the wired services for one process.
type App struct {
	Config   *config.Config
	Logger   *log.Logger
	Store    storage.Store
	Registry *adapter.Registry
	Builder  *summary.Builder
	Ingest   *ingest.Service

	closers []func() error
}

// New builds an App from cfg. Logs go to logOut.
func New(ctx context.Context, cfg *config.Config, logOut io.Writer) (*App, error) {
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, logOut)
	if err != nil {
		return nil, err
	}

	store, err := cfg.OpenStorage(ctx, logger)
	if err != nil {
		return nil, err
	}
	a := &App{Config: cfg, Logger: logger, Store: store}
	a.closers = append(a.closers, store.Close)

	locker, err := a.locker(ctx)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	a.Registry = adapter.DefaultRegistry(adapter.Options{
		Logger:                 logger,
		IncludeMinuteHeartRate: cfg.Ingest.IncludeMinuteHeartRate,
		IncludeCaloriesBurned:  cfg.Ingest.IncludeCaloriesBurned,
		RemoveOutliers:         cfg.Ingest.RemoveOutliers,
		OutlierThreshold:       cfg.Ingest.OutlierThreshold,
	})
	a.Builder = summary.NewBuilder(store, logger)
	a.Ingest = ingest.NewService(store, a.Registry, a.Builder, ingest.Options{
		UserID:          cfg.GetUser(),
		MaxStoredErrors: cfg.Ingest.MaxStoredErrors,
		Locker:          locker,
		LockTimeout:     cfg.Lock.Wait,
		Logger:          logger,
	})
	return a, nil
}

func (a *App) locker(ctx context.Context) (lock.Locker, error) {
	if a.Config.Lock.Kind != config.LockValkey {
		return lock.NewLocal(), nil
	}
	client, err := lock.Dial(ctx, a.Config.Lock.Addr)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() error {
		client.Close()
		return nil
	})
	a.Logger.Debug("using valkey lock", "addr", a.Config.Lock.Addr)
	return lock.NewValkey(client, lockPrefix, a.Config.Lock.TTL), nil
}

// Close releases everything New opened, newest first.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// Stage resolves location into a local path an adapter can read. s3 URIs
// are downloaded and zips extracted into a temp dir that cleanup removes.
func (a *App) Stage(ctx context.Context, location string) (string, func(), error) {
	if !objectstore.IsURI(location) && !archive.IsZip(location) {
		return location, func() {}, nil
	}

	work, err := os.MkdirTemp("", "vitals-stage-*")
	if err != nil {
		return "", nil, fmt.Errorf("create staging dir: %w", err)
	}
	cleanup := func() { _ = os.RemoveAll(work) }

	path := location
	if objectstore.IsURI(location) {
		fetcher, err := a.fetcher()
		if err != nil {
			cleanup()
			return "", nil, err
		}
		path, err = fetcher.Download(ctx, location, filepath.Join(work, "download"))
		if err != nil {
			cleanup()
			return "", nil, err
		}
	}

	path, err = archive.Prepare(path, work)
	if err != nil {
		cleanup()
		return "", nil, err
	}
	return path, cleanup, nil
}

func (a *App) fetcher() (*objectstore.Fetcher, error) {
	s3 := a.Config.S3
	if s3.Endpoint == "" {
		return nil, errors.New("s3 endpoint not configured (set s3.endpoint or VITALS_S3_ENDPOINT)")
	}
	return objectstore.New(objectstore.Config{
		Endpoint:  s3.Endpoint,
		AccessKey: s3.AccessKey,
		SecretKey: s3.SecretKey,
		Region:    s3.Region,
		Secure:    s3.Secure,
	}, a.Logger)
}

// HTTPServer returns the API server configured from the http section.
func (a *App) HTTPServer() *http.Server {
	h := httpapi.NewHandler(a.Ingest, a.Store, a.Builder, a.Config.HTTP.MaxUploadMB<<20, a.Logger)
	return httpapi.NewServer(a.Config.HTTP, h)
}

// MCPServer returns the MCP server over this App's services.
func (a *App) MCPServer() (*mcp.Server, error) {
	return mcp.NewServer(mcp.Deps{
		Ingest:  a.Ingest,
		Store:   a.Store,
		Builder: a.Builder,
		Stage:   a.Stage,
		Logger:  a.Logger,
	})
}

// ListenAndServe runs srv until ctx is cancelled, then shuts it down.
func ListenAndServe(ctx context.Context, srv *http.Server, logger *log.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Info("http server shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}
