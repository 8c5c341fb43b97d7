// ABOUTME: Adapter contract for vendor export parsers and the partial-success fold.
// ABOUTME: Adapters stream records and errors; Collect folds them into a ParseResult.
package adapter

import (
	"errors"
	"iter"

	"github.com/charmbracelet/log"
	"github.com/harperreed/vitals/internal/aggregate"
	"github.com/harperreed/vitals/internal/models"
)

// ErrNoAdapter is returned when no registered adapter can handle a path.
var ErrNoAdapter = errors.New("no adapter found")

// Adapter converts one vendor's export files into normalized records.
type Adapter interface {
	// Name is the source this adapter produces records for.
	Name() models.Source
	// Detect reports whether path looks like this vendor's export. It never
	// writes and returns false for missing or unreadable paths.
	Detect(path string) bool
	// Parse reads everything under path. Malformed files and rows become
	// error strings; whatever parsed cleanly is still returned.
	Parse(path string) *ParseResult
}

// Streamer is implemented by adapters that can yield records one at a time.
// Each pair carries either a record or an error, never both.
type Streamer interface {
	Adapter
	Stream(path string) iter.Seq2[models.Record, error]
}

// ParseResult is the outcome of a parse.
type ParseResult struct {
	Success       bool            `json:"success"`
	Records       []models.Record `json:"records"`
	Errors        []string        `json:"errors"`
	RecordsParsed int             `json:"records_parsed"`
	FilePath      string          `json:"file_path"`
}

// Collect folds a record stream into a ParseResult in one pass. Errors are
// accumulated alongside records; nothing stops the fold early.
func Collect(path string, seq iter.Seq2[models.Record, error]) *ParseResult {
	res := &ParseResult{
		Records:  []models.Record{},
		Errors:   []string{},
		FilePath: path,
	}
	for rec, err := range seq {
		switch {
		case err != nil:
			res.Errors = append(res.Errors, err.Error())
		case rec != nil:
			res.Records = append(res.Records, rec)
		}
	}
	res.RecordsParsed = len(res.Records)
	res.Success = len(res.Errors) == 0
	return res
}

// Options configures adapter construction.
type Options struct {
	Logger *log.Logger

	// IncludeMinuteHeartRate turns minute-level heart rate into daily
	// aggregates instead of skipping it.
	IncludeMinuteHeartRate bool
	// IncludeCaloriesBurned keeps wearable calorie-burn estimates as daily
	// totals instead of skipping them.
	IncludeCaloriesBurned bool

	// RemoveOutliers drops daily rollups whose value is more than
	// OutlierThreshold sample standard deviations from the file's mean.
	RemoveOutliers   bool
	OutlierThreshold float64
}

// dropOutliers applies z-score removal to daily rows when enabled.
func dropOutliers[T any](o Options, l *log.Logger, kind string, days []T, value func(T) float64) []T {
	if !o.RemoveOutliers {
		return days
	}
	kept := aggregate.RemoveOutliers(days, value, o.OutlierThreshold)
	if n := len(days) - len(kept); n > 0 {
		l.Info("outlier days removed", "kind", kind, "count", n)
	}
	return kept
}

func (o Options) logger(component string) *log.Logger {
	l := o.Logger
	if l == nil {
		l = log.Default()
	}
	return l.With("adapter", component)
}
