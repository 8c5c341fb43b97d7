// ABOUTME: Shared file helpers for adapters: JSON arrays, header CSVs, sorted walks.
// ABOUTME: Also the small iterator combinators used to stitch per-file streams together.
package adapter

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/harperreed/vitals/internal/models"
)

// recordSeq is the stream type every per-file parser returns.
type recordSeq = iter.Seq2[models.Record, error]

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// glob returns matches in lexical order, skipping directories. A missing
// folder yields nothing.
func glob(dir, pattern string) []string {
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil
	}
	out := matches[:0]
	for _, m := range matches {
		if isFile(m) {
			out = append(out, m)
		}
	}
	return out
}

// concat chains streams in order.
func concat(seqs ...recordSeq) recordSeq {
	return func(yield func(models.Record, error) bool) {
		for _, seq := range seqs {
			for rec, err := range seq {
				if !yield(rec, err) {
					return
				}
			}
		}
	}
}

// failed is a stream holding a single error.
func failed(err error) recordSeq {
	return func(yield func(models.Record, error) bool) {
		yield(nil, err)
	}
}

// emit forwards one per-item outcome. A nil record with a nil error is a
// deliberate skip and is not forwarded.
func emit(yield func(models.Record, error) bool, rec models.Record, err error) bool {
	if err == nil && rec == nil {
		return true
	}
	return yield(rec, err)
}

// readJSONArray loads a top-level JSON array, leaving each element raw so a
// malformed entry can fail on its own.
func readJSONArray(path string) ([]json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	var entries []json.RawMessage
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return entries, nil
}

// rawMap decodes an entry for audit storage.
func rawMap(raw json.RawMessage) map[string]any {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return m
}

// csvRow is one data row keyed by lowercased, trimmed header.
type csvRow map[string]string

// get returns the first non-empty value among the given columns.
func (r csvRow) get(cols ...string) string {
	for _, c := range cols {
		if v := strings.TrimSpace(r[c]); v != "" {
			return v
		}
	}
	return ""
}

func (r csvRow) has(col string) bool {
	_, ok := r[col]
	return ok
}

func (r csvRow) raw() map[string]any {
	m := make(map[string]any, len(r))
	for k, v := range r {
		m[k] = v
	}
	return m
}

// readCSV reads a header-row CSV. The second return value holds per-row
// read errors; the row count still advances past them.
func readCSV(path string) ([]csvRow, []error, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("read header of %s: %w", filepath.Base(path), err)
	}
	for i, h := range header {
		header[i] = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
	}

	var rows []csvRow
	var rowErrs []error
	line := 1
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			rowErrs = append(rowErrs, fmt.Errorf("%s line %d: %w", filepath.Base(path), line, err))
			continue
		}
		row := make(csvRow, len(header))
		for i, h := range header {
			if i < len(rec) {
				row[h] = rec[i]
			}
		}
		rows = append(rows, row)
	}
	return rows, rowErrs, nil
}

// midnight returns 00:00 UTC on d.
func midnight(d civil.Date) time.Time {
	return d.In(time.UTC)
}

// FileType describes a path for batch bookkeeping.
func FileType(path string) string {
	if isDir(path) {
		return "directory"
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if ext == "" {
		return "file"
	}
	return ext
}
