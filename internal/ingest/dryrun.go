// ABOUTME: Dry-run parsing that reports what an ingestion would store.
// ABOUTME: Resolves and parses like Ingest but never touches the store.
package ingest

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/harperreed/vitals/internal/models"
)

// DryRunReport summarizes a parse without persisting anything.
type DryRunReport struct {
	Source        models.Source             `json:"source"`
	Path          string                    `json:"path"`
	RecordsParsed int                       `json:"records_parsed"`
	ByKind        map[models.RecordKind]int `json:"by_record_kind"`
	ByMetric      map[models.MetricType]int `json:"by_metric_type"`
	Errors        []string                  `json:"errors"`
}

// DryRun resolves an adapter for path and parses it.
func (s *Service) DryRun(path, source string) (*DryRunReport, error) {
	a, err := s.resolve(path, source, uuid.New())
	if err != nil {
		return nil, fmt.Errorf("resolve adapter: %w", err)
	}
	res := a.Parse(path)

	r := &DryRunReport{
		Source:        a.Name(),
		Path:          path,
		RecordsParsed: res.RecordsParsed,
		ByKind:        make(map[models.RecordKind]int),
		ByMetric:      make(map[models.MetricType]int),
		Errors:        res.Errors,
	}
	for _, rec := range res.Records {
		r.ByKind[rec.Kind()]++
		if p, ok := rec.(*models.MetricPoint); ok {
			r.ByMetric[p.MetricType]++
		}
	}
	return r, nil
}
