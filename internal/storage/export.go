// ABOUTME: Export and import of vitals data across any Store backend.
// ABOUTME: Supports JSON (full fidelity), YAML (grouped), and Markdown summary tables.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/harperreed/vitals/internal/models"
	"gopkg.in/yaml.v3"
)

// ExportData represents the full export format for vitals data.
type ExportData struct {
	Version    string                 `json:"version" yaml:"version"`
	ExportedAt time.Time              `json:"exported_at" yaml:"exported_at"`
	Tool       string                 `json:"tool" yaml:"tool"`
	Batches    []*models.ImportBatch  `json:"import_batches" yaml:"import_batches"`
	Metrics    []*models.MetricRecord `json:"metrics" yaml:"metrics"`
	Sleep      []*models.SleepSession `json:"sleep_sessions" yaml:"sleep_sessions"`
	Nutrition  []*models.NutritionDay `json:"nutrition_days" yaml:"nutrition_days"`
	Summaries  []*models.DailySummary `json:"daily_summaries" yaml:"daily_summaries"`
}

// GetAllData retrieves everything matching f for export. An empty UserID
// exports every user.
func GetAllData(ctx context.Context, s Store, f Filter) (*ExportData, error) {
	f.Limit = 0

	batches, err := s.ListBatches(ctx, f.UserID, 0)
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	metrics, err := s.ListMetrics(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list metrics: %w", err)
	}
	sleep, err := s.ListSleep(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list sleep sessions: %w", err)
	}
	nutrition, err := s.ListNutrition(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list nutrition days: %w", err)
	}
	summaries, err := s.ListSummaries(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list summaries: %w", err)
	}

	return &ExportData{
		Version:    "1.0",
		ExportedAt: time.Now().UTC(),
		Tool:       "vitals",
		Batches:    batches,
		Metrics:    metrics,
		Sleep:      sleep,
		Nutrition:  nutrition,
		Summaries:  summaries,
	}, nil
}

// ImportSummary holds counts of imported entities. Records that already
// exist in the destination are counted as skipped.
type ImportSummary struct {
	Batches   int
	Metrics   int
	Sleep     int
	Nutrition int
	Summaries int
	Skipped   int
}

// ImportData writes an export into s. Records go through the same
// get-or-create path as ingestion, so importing twice is harmless.
func ImportData(ctx context.Context, s Store, data *ExportData) (*ImportSummary, error) {
	summary := &ImportSummary{}

	for _, b := range data.Batches {
		if _, err := s.GetBatch(ctx, b.BatchID); err == nil {
			summary.Skipped++
			continue
		}
		if err := s.CreateBatch(ctx, b); err != nil {
			return nil, fmt.Errorf("import batch %s: %w", b.BatchID, err)
		}
		summary.Batches++
	}

	err := s.WithTx(ctx, "", func(tx Tx) error {
		for _, m := range data.Metrics {
			created, err := tx.GetOrCreateMetric(ctx, m)
			if err != nil {
				return fmt.Errorf("import metric %s: %w", m.ID, err)
			}
			summary.count(created, &summary.Metrics)
		}
		for _, sl := range data.Sleep {
			created, err := tx.GetOrCreateSleep(ctx, sl)
			if err != nil {
				return fmt.Errorf("import sleep session %s: %w", sl.ID, err)
			}
			summary.count(created, &summary.Sleep)
		}
		for _, n := range data.Nutrition {
			created, err := tx.GetOrCreateNutrition(ctx, n)
			if err != nil {
				return fmt.Errorf("import nutrition day %s: %w", n.ID, err)
			}
			summary.count(created, &summary.Nutrition)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, ds := range data.Summaries {
		if err := s.SaveSummary(ctx, ds); err != nil {
			return nil, fmt.Errorf("import summary %s: %w", ds.Date, err)
		}
		summary.Summaries++
	}

	return summary, nil
}

func (s *ImportSummary) count(created bool, n *int) {
	if created {
		*n++
	} else {
		s.Skipped++
	}
}

// ExportJSON exports all data as JSON.
func ExportJSON(ctx context.Context, s Store, f Filter) ([]byte, error) {
	data, err := GetAllData(ctx, s, f)
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(data, "", "  ")
}

// ImportJSON imports data from JSON bytes.
func ImportJSON(ctx context.Context, s Store, raw []byte) (*ImportSummary, error) {
	var data ExportData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("unmarshal JSON: %w", err)
	}
	return ImportData(ctx, s, &data)
}

// ExportYAML exports summaries and metrics grouped by type as YAML.
func ExportYAML(ctx context.Context, s Store, f Filter) ([]byte, error) {
	data, err := GetAllData(ctx, s, f)
	if err != nil {
		return nil, err
	}

	yamlData := struct {
		Version    string                  `yaml:"version"`
		ExportedAt string                  `yaml:"exported_at"`
		Tool       string                  `yaml:"tool"`
		Summaries  []*models.DailySummary  `yaml:"daily_summaries"`
		Metrics    map[string][]yamlMetric `yaml:"metrics"`
		Sleep      []yamlSleep             `yaml:"sleep"`
	}{
		Version:    data.Version,
		ExportedAt: data.ExportedAt.Format(time.RFC3339),
		Tool:       data.Tool,
		Summaries:  data.Summaries,
		Metrics:    make(map[string][]yamlMetric),
		Sleep:      make([]yamlSleep, 0, len(data.Sleep)),
	}

	// Group metrics by type
	for _, m := range data.Metrics {
		mt := string(m.MetricType)
		yamlData.Metrics[mt] = append(yamlData.Metrics[mt], yamlMetric{
			Date:      m.Date.String(),
			Value:     m.Value,
			Unit:      m.Unit,
			Source:    string(m.Source),
			Timestamp: m.Timestamp.Format(time.RFC3339),
		})
	}

	for _, sl := range data.Sleep {
		yamlData.Sleep = append(yamlData.Sleep, yamlSleep{
			Date:            sl.DateOfSleep.String(),
			Source:          string(sl.Source),
			Start:           sl.StartTime.Format(time.RFC3339),
			End:             sl.EndTime.Format(time.RFC3339),
			DurationMinutes: sl.DurationMinutes,
		})
	}

	return yaml.Marshal(yamlData)
}

type yamlMetric struct {
	Date      string  `yaml:"date"`
	Value     float64 `yaml:"value"`
	Unit      string  `yaml:"unit"`
	Source    string  `yaml:"source"`
	Timestamp string  `yaml:"timestamp"`
}

type yamlSleep struct {
	Date            string `yaml:"date"`
	Source          string `yaml:"source"`
	Start           string `yaml:"start"`
	End             string `yaml:"end"`
	DurationMinutes int    `yaml:"duration_minutes"`
}

// ExportMarkdown renders daily summaries as a Markdown table, oldest first,
// followed by per-metric statistics.
func ExportMarkdown(ctx context.Context, s Store, f Filter) (string, error) {
	f.Limit = 0
	summaries, err := s.ListSummaries(ctx, f)
	if err != nil {
		return "", fmt.Errorf("list summaries: %w", err)
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].Date.Before(summaries[j].Date)
	})

	var sb strings.Builder
	now := time.Now()

	sb.WriteString(fmt.Sprintf("# Vitals Export - %s\n\n", now.Format("2006-01-02")))
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", now.Format(time.RFC3339)))

	sb.WriteString("## Daily summaries\n\n")
	sb.WriteString("| Date | Calories | Steps | Sleep | Sleep score | Resting HR | HRV | Readiness | Complete |\n")
	sb.WriteString("|------|----------|-------|-------|-------------|------------|-----|-----------|----------|\n")
	for _, ds := range summaries {
		sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %s | %s | %s | %s | %d%% |\n",
			ds.Date,
			cell(ds.Calories, "%.0f"),
			cell(ds.Steps, "%d"),
			sleepCell(ds.SleepDurationMin),
			cell(ds.SleepScore, "%d"),
			cell(ds.RestingHR, "%d"),
			cell(ds.HRVRMSSD, "%.1f"),
			cell(ds.ReadinessScore, "%d"),
			ds.DataCompleteness))
	}

	if f.UserID != "" {
		stats, err := s.MetricStats(ctx, f.UserID)
		if err == nil && len(stats) > 0 {
			sb.WriteString("\n## Metrics\n\n")
			sb.WriteString("| Metric | Count | Min | Avg | Max | First | Last |\n")
			sb.WriteString("|--------|-------|-----|-----|-----|-------|------|\n")
			for _, st := range stats {
				sb.WriteString(fmt.Sprintf("| %s | %d | %.2f | %.2f | %.2f | %s | %s |\n",
					st.MetricType, st.Count, st.Min, st.Avg, st.Max, st.FirstDate, st.LastDate))
			}
		}
	}

	return sb.String(), nil
}

func cell[T int | float64](v *T, format string) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf(format, *v)
}

func sleepCell(minutes *int) string {
	if minutes == nil {
		return "-"
	}
	return fmt.Sprintf("%dh%02dm", *minutes/60, *minutes%60)
}
