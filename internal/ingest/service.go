// ABOUTME: Ingestion orchestrator: resolve an adapter, parse, save, rebuild summaries.
// ABOUTME: Every call produces exactly one ImportBatch that ends completed or failed.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"cloud.google.com/go/civil"
	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/harperreed/vitals/internal/adapter"
	"github.com/harperreed/vitals/internal/lock"
	"github.com/harperreed/vitals/internal/models"
	"github.com/harperreed/vitals/internal/storage"
	"github.com/harperreed/vitals/internal/summary"
)

// DefaultMaxStoredErrors caps the error list kept on a batch.
const DefaultMaxStoredErrors = 100

// Options configures a Service.
type Options struct {
	// UserID owns every record written by the service.
	UserID string
	// MaxStoredErrors caps ImportBatch.Errors. Zero uses DefaultMaxStoredErrors.
	MaxStoredErrors int
	// Locker serializes save phases per user. Nil uses an in-process locker.
	Locker lock.Locker
	// LockTimeout bounds the wait for the user lock. Zero waits as long as ctx.
	LockTimeout time.Duration
	Logger      *log.Logger
}

// Service runs ingestion calls against one store.
type Service struct {
	store       storage.Store
	registry    *adapter.Registry
	builder     *summary.Builder
	locker      lock.Locker
	user        string
	maxErrors   int
	lockTimeout time.Duration
	log         *log.Logger
}

// NewService wires a Service. The registry is shared; each call resolves a
// fresh adapter from it.
func NewService(store storage.Store, registry *adapter.Registry, builder *summary.Builder, opts Options) *Service {
	if opts.MaxStoredErrors <= 0 {
		opts.MaxStoredErrors = DefaultMaxStoredErrors
	}
	if opts.Locker == nil {
		opts.Locker = lock.NewLocal()
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.UserID == "" {
		opts.UserID = "local"
	}
	return &Service{
		store:       store,
		registry:    registry,
		builder:     builder,
		locker:      opts.Locker,
		user:        opts.UserID,
		maxErrors:   opts.MaxStoredErrors,
		lockTimeout: opts.LockTimeout,
		log:         opts.Logger.With("component", "ingest"),
	}
}

// UserID returns the user the service writes for.
func (s *Service) UserID() string { return s.user }

// Registry returns the adapter registry used for resolution.
func (s *Service) Registry() *adapter.Registry { return s.registry }

// Ingest parses path and stores its records. An explicit source name wins
// over auto-detection. The returned batch is always non-nil; the error is
// set only when the batch itself could not be stored.
func (s *Service) Ingest(ctx context.Context, path, source string) (*models.ImportBatch, error) {
	label := source
	if label == "" {
		label = "unknown"
	}
	batch := models.NewImportBatch(s.user, label, filepath.Base(path), adapter.FileType(path))
	if err := s.start(ctx, batch); err != nil {
		return batch, err
	}

	a, err := s.resolve(path, source, batch.BatchID)
	if err != nil {
		return s.fail(ctx, batch, err)
	}
	batch.Source = string(a.Name())
	return s.process(ctx, batch, a, path)
}

// IngestWithAdapter runs a specific adapter over path. The batch reuses the
// adapter's own batch id when it carries one.
func (s *Service) IngestWithAdapter(ctx context.Context, a adapter.Adapter, path string) (*models.ImportBatch, error) {
	batch := models.NewImportBatch(s.user, string(a.Name()), filepath.Base(path), adapter.FileType(path))
	if b, ok := a.(interface{ BatchID() uuid.UUID }); ok && b.BatchID() != uuid.Nil {
		batch.BatchID = b.BatchID()
	}
	if err := s.start(ctx, batch); err != nil {
		return batch, err
	}
	return s.process(ctx, batch, a, path)
}

func (s *Service) resolve(path, source string, batchID uuid.UUID) (adapter.Adapter, error) {
	if source != "" {
		return s.registry.ResolveByName(source, batchID)
	}
	return s.registry.ResolveFor(path, batchID)
}

// start persists the batch as pending and moves it to processing.
func (s *Service) start(ctx context.Context, batch *models.ImportBatch) error {
	if err := s.store.CreateBatch(ctx, batch); err != nil {
		return fmt.Errorf("create batch: %w", err)
	}
	if err := batch.Transition(models.BatchProcessing); err != nil {
		return err
	}
	if err := s.store.UpdateBatch(ctx, batch); err != nil {
		return fmt.Errorf("update batch: %w", err)
	}
	s.log.Info("import started", "batch", batch.BatchID, "source", batch.Source, "file", batch.FileName)
	return nil
}

func (s *Service) process(ctx context.Context, batch *models.ImportBatch, a adapter.Adapter, path string) (*models.ImportBatch, error) {
	res := a.Parse(path)
	s.log.Debug("parsed", "batch", batch.BatchID, "records", res.RecordsParsed, "errors", len(res.Errors))

	tally, err := s.save(ctx, batch.BatchID, res.Records)
	if err != nil {
		return s.fail(ctx, batch, err)
	}

	dates := tally.Dates()
	s.rebuild(ctx, dates)

	errs := append(append([]string{}, res.Errors...), tally.Errors...)
	batch.RecordsProcessed = res.RecordsParsed
	batch.RecordsCreated = tally.Created
	batch.RecordsSkipped = tally.Skipped
	if err := batch.Finish(models.BatchCompleted, errs, s.maxErrors); err != nil {
		return batch, err
	}
	if err := s.store.UpdateBatch(ctx, batch); err != nil {
		return batch, fmt.Errorf("finalize batch: %w", err)
	}

	s.log.Info("import complete",
		"batch", batch.BatchID,
		"created", tally.Created,
		"skipped", tally.Skipped,
		"errors", len(errs),
		"summaries", len(dates))
	return batch, nil
}

// save runs the save phase under the user lock in one store transaction.
func (s *Service) save(ctx context.Context, batchID uuid.UUID, records []models.Record) (*Tally, error) {
	lctx := ctx
	if s.lockTimeout > 0 {
		var cancel context.CancelFunc
		lctx, cancel = context.WithTimeout(ctx, s.lockTimeout)
		defer cancel()
	}
	unlock, err := s.locker.Lock(lctx, s.user)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var tally *Tally
	err = s.store.WithTx(ctx, s.user, func(tx storage.Tx) error {
		tally = NewTally()
		sv := &saver{ctx: ctx, tx: tx, user: s.user, batchID: batchID}
		for _, rec := range records {
			o := sv.save(rec)
			if o.err != nil {
				s.log.Warn("failed to save record", "batch", batchID, "kind", rec.Kind(), "err", o.err)
			}
			tally.Add(o)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("save records: %w", err)
	}
	return tally, nil
}

func (s *Service) rebuild(ctx context.Context, dates []civil.Date) {
	for _, d := range dates {
		if _, err := s.builder.Rebuild(ctx, d, s.user); err != nil {
			s.log.Warn("failed to build summary", "date", d, "err", err)
		}
	}
}

// fail finalizes the batch as failed with err as the only recorded reason.
func (s *Service) fail(ctx context.Context, batch *models.ImportBatch, cause error) (*models.ImportBatch, error) {
	s.log.Error("import failed", "batch", batch.BatchID, "err", cause)
	if err := batch.Finish(models.BatchFailed, []string{cause.Error()}, s.maxErrors); err != nil {
		return batch, errors.Join(cause, err)
	}
	if err := s.store.UpdateBatch(ctx, batch); err != nil {
		return batch, fmt.Errorf("finalize batch: %w", err)
	}
	return batch, nil
}
