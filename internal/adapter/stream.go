// ABOUTME: Per-entry and per-row stream builders shared by all adapters.
// ABOUTME: File-level failures become one error; entry-level failures are isolated.
package adapter

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/harperreed/vitals/internal/models"
)

// fileError logs and wraps a failure that drops a whole file.
func fileError(l *log.Logger, path, kind string, err error) error {
	l.Error("parse failed", "kind", kind, "file", filepath.Base(path), "err", err)
	return fmt.Errorf("error parsing %s file %s: %w", kind, filepath.Base(path), err)
}

// entryStream decodes a JSON array file and runs parse on each element.
func entryStream(l *log.Logger, path, kind string, parse func(json.RawMessage) (models.Record, error)) recordSeq {
	return func(yield func(models.Record, error) bool) {
		entries, err := readJSONArray(path)
		if err != nil {
			yield(nil, fileError(l, path, kind, err))
			return
		}
		for i, raw := range entries {
			rec, err := parse(raw)
			if err != nil {
				l.Debug("entry skipped", "file", filepath.Base(path), "index", i, "err", err)
				err = fmt.Errorf("%s entry %d: %w", filepath.Base(path), i, err)
			}
			if !emit(yield, rec, err) {
				return
			}
		}
	}
}

// rowStream reads a header CSV and runs parse on each row.
func rowStream(l *log.Logger, path, kind string, parse func(csvRow) (models.Record, error)) recordSeq {
	return func(yield func(models.Record, error) bool) {
		rows, rowErrs, err := readCSV(path)
		if err != nil {
			yield(nil, fileError(l, path, kind, err))
			return
		}
		for _, e := range rowErrs {
			if !yield(nil, e) {
				return
			}
		}
		for i, row := range rows {
			rec, err := parse(row)
			if err != nil {
				l.Debug("row skipped", "file", filepath.Base(path), "row", i+1, "err", err)
				err = fmt.Errorf("%s row %d: %w", filepath.Base(path), i+1, err)
			}
			if !emit(yield, rec, err) {
				return
			}
		}
	}
}

// batchStream runs a whole-file parser that returns every record at once,
// for formats that need grouping across entries before emitting.
func batchStream(l *log.Logger, path, kind string, parse func(string) ([]models.Record, []error, error)) recordSeq {
	return func(yield func(models.Record, error) bool) {
		recs, errs, err := parse(path)
		if err != nil {
			yield(nil, fileError(l, path, kind, err))
			return
		}
		for _, e := range errs {
			l.Debug("entry skipped", "file", filepath.Base(path), "err", e)
			if !yield(nil, e) {
				return
			}
		}
		for _, r := range recs {
			if !yield(r, nil) {
				return
			}
		}
	}
}

// parseNumber parses a numeric cell.
func parseNumber(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", s)
	}
	return v, nil
}

// optNumber returns a float for metadata, or nil when the cell is empty or
// not numeric.
func optNumber(s string) any {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return nil
	}
	return v
}
