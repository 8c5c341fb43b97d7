// ABOUTME: Shared fixtures for adapter tests.
// ABOUTME: Builds export trees under t.TempDir and quiets adapter logging.

package adapter

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/harperreed/vitals/internal/models"
	"github.com/stretchr/testify/require"
)

func quietOptions() Options {
	return Options{Logger: log.New(io.Discard)}
}

func writeFile(t *testing.T, path, content string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0750))
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func newFitbit(opts Options) *Fitbit {
	return NewFitbit(uuid.New(), opts)
}

func metricsOf(recs []models.Record, mt models.MetricType) []*models.MetricPoint {
	var out []*models.MetricPoint
	for _, r := range recs {
		if p, ok := r.(*models.MetricPoint); ok && p.MetricType == mt {
			out = append(out, p)
		}
	}
	return out
}

func sleepOf(recs []models.Record) []*models.SleepRecord {
	var out []*models.SleepRecord
	for _, r := range recs {
		if s, ok := r.(*models.SleepRecord); ok {
			out = append(out, s)
		}
	}
	return out
}

func nutritionOf(recs []models.Record) []*models.NutritionRecord {
	var out []*models.NutritionRecord
	for _, r := range recs {
		if n, ok := r.(*models.NutritionRecord); ok {
			out = append(out, n)
		}
	}
	return out
}
