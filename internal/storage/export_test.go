// ABOUTME: Tests for export and import functionality.
// ABOUTME: Verifies JSON, YAML, and Markdown export formats and JSON re-import.
package storage

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/harperreed/vitals/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func seedExport(t *testing.T, s Store, user string) {
	t.Helper()
	save(t, s, user,
		newMetric(user, models.SourceFitbit, models.MetricSteps, 9000, at(day1, 0)),
		newMetric(user, models.SourceFitbit, models.MetricRestingHeartRate, 55, at(day1, 0)),
		newSleep(user, "1", day1, at(day1.AddDays(-1), 23), 425),
		newNutrition(user, models.SourceCronometer, day1, 2000),
	)
	ds := models.NewDailySummary(user, day1)
	ds.Steps = models.Int(9000)
	ds.RestingHR = models.Int(55)
	ds.SleepDurationMin = models.Int(425)
	ds.Calories = models.Float(2000)
	ds.ComputeDerived()
	require.NoError(t, s.SaveSummary(context.Background(), ds))
	require.NoError(t, s.CreateBatch(context.Background(), models.NewImportBatch(user, "fitbit", "x.zip", "zip")))
}

func TestExportJSON(t *testing.T) {
	db := setupTestDB(t)
	seedExport(t, db, "local")

	data, err := ExportJSON(context.Background(), db, Filter{UserID: "local"})
	require.NoError(t, err)

	var export ExportData
	require.NoError(t, json.Unmarshal(data, &export))
	assert.Equal(t, "1.0", export.Version)
	assert.Equal(t, "vitals", export.Tool)
	assert.Len(t, export.Metrics, 2)
	assert.Len(t, export.Sleep, 1)
	assert.Len(t, export.Nutrition, 1)
	assert.Len(t, export.Summaries, 1)
	assert.Len(t, export.Batches, 1)
}

func TestExportJSONRoundTrip(t *testing.T) {
	src := setupTestDB(t)
	seedExport(t, src, "local")
	data, err := ExportJSON(context.Background(), src, Filter{})
	require.NoError(t, err)

	dst := setupTestBadger(t)
	summary, err := ImportJSON(context.Background(), dst, data)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Metrics)
	assert.Equal(t, 1, summary.Sleep)
	assert.Equal(t, 1, summary.Nutrition)
	assert.Equal(t, 1, summary.Summaries)
	assert.Equal(t, 1, summary.Batches)
	assert.Zero(t, summary.Skipped)

	again, err := ImportJSON(context.Background(), dst, data)
	require.NoError(t, err)
	assert.Equal(t, 5, again.Skipped, "records and batches already present")

	_, err = ImportJSON(context.Background(), dst, []byte("{not json"))
	assert.Error(t, err)
}

func TestExportYAML(t *testing.T) {
	db := setupTestDB(t)
	seedExport(t, db, "local")

	data, err := ExportYAML(context.Background(), db, Filter{UserID: "local"})
	require.NoError(t, err)

	var out struct {
		Tool    string                      `yaml:"tool"`
		Metrics map[string][]map[string]any `yaml:"metrics"`
		Sleep   []map[string]any            `yaml:"sleep"`
	}
	require.NoError(t, yaml.Unmarshal(data, &out))
	assert.Equal(t, "vitals", out.Tool)
	assert.Len(t, out.Metrics["steps"], 1)
	assert.Len(t, out.Metrics["resting_heart_rate"], 1)
	require.Len(t, out.Sleep, 1)
	assert.Equal(t, 425, out.Sleep[0]["duration_minutes"])
}

func TestExportMarkdown(t *testing.T) {
	db := setupTestDB(t)
	seedExport(t, db, "local")

	md, err := ExportMarkdown(context.Background(), db, Filter{UserID: "local"})
	require.NoError(t, err)
	assert.Contains(t, md, "# Vitals Export")
	assert.Contains(t, md, "| 2024-03-10 | 2000 | 9000 | 7h05m | - | 55 | - | - | 66% |")
	assert.Contains(t, md, "## Metrics")
	assert.Contains(t, md, "| steps | 1 |")
}
