// ABOUTME: Cronometer adapter for dailysummary.csv and biometrics.csv exports.
// ABOUTME: Macro columns map to nutrition fields; other numeric columns become micronutrients.
package adapter

import (
	"fmt"
	"iter"
	"path/filepath"
	"regexp"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/harperreed/vitals/internal/aggregate"
	"github.com/harperreed/vitals/internal/models"
)

const (
	cronometerSummary    = "dailysummary.csv"
	cronometerBiometrics = "biometrics.csv"
)

// unitSuffix strips " (g)", " (mg)" and similar from a column name.
var unitSuffix = regexp.MustCompile(`\s*\(([^()]*)\)\s*$`)

// Columns consumed by named nutrition fields or bookkeeping.
var cronometerReserved = map[string]bool{
	"date": true, "completed": true,
	"energy (kcal)": true, "protein (g)": true, "carbs (g)": true, "net carbs (g)": true,
	"fat (g)": true, "fiber (g)": true, "sugars (g)": true, "sodium (mg)": true, "water (g)": true,
}

// Cronometer parses Cronometer CSV exports.
type Cronometer struct {
	batchID uuid.UUID
	opts    Options
	log     *log.Logger
}

// NewCronometer creates a Cronometer adapter bound to a batch.
func NewCronometer(batchID uuid.UUID, opts Options) *Cronometer {
	return &Cronometer{batchID: batchID, opts: opts, log: opts.logger("cronometer")}
}

// Name implements Adapter.
func (c *Cronometer) Name() models.Source { return models.SourceCronometer }

// BatchID returns the batch this instance was resolved for.
func (c *Cronometer) BatchID() uuid.UUID { return c.batchID }

func cronometerFile(path string) bool {
	name := strings.ToLower(filepath.Base(path))
	return name == cronometerSummary || name == cronometerBiometrics
}

// Detect accepts either export file or a directory holding one.
func (c *Cronometer) Detect(path string) bool {
	switch {
	case isFile(path):
		return cronometerFile(path)
	case isDir(path):
		return len(c.files(path)) > 0
	}
	return false
}

func (c *Cronometer) files(dir string) []string {
	var out []string
	for _, p := range glob(dir, "*.csv") {
		if cronometerFile(p) {
			out = append(out, p)
		}
	}
	return out
}

// Parse implements Adapter.
func (c *Cronometer) Parse(path string) *ParseResult {
	return Collect(path, c.Stream(path))
}

// Stream implements Streamer.
func (c *Cronometer) Stream(path string) iter.Seq2[models.Record, error] {
	var paths []string
	switch {
	case isFile(path):
		paths = []string{path}
	case isDir(path):
		paths = c.files(path)
	default:
		return failed(fmt.Errorf("cronometer: %s is not a readable file or directory", path))
	}

	seqs := make([]recordSeq, 0, len(paths))
	for _, p := range paths {
		if strings.EqualFold(filepath.Base(p), cronometerBiometrics) {
			seqs = append(seqs, c.biometrics(p))
		} else {
			seqs = append(seqs, c.dailySummary(p))
		}
	}
	return concat(seqs...)
}

// optCell parses a nutrition cell; empty cells are absent.
func optCell(row csvRow, col string) (*float64, error) {
	raw := row.get(col)
	if raw == "" {
		return nil, nil
	}
	v, err := parseNumber(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", col, err)
	}
	return models.Float(v), nil
}

// micronutrientKey turns "Vitamin C (mg)" into "vitamin_c_mg".
func micronutrientKey(col string) string {
	unit := ""
	if m := unitSuffix.FindStringSubmatch(col); m != nil {
		unit = m[1]
		col = unitSuffix.ReplaceAllString(col, "")
	}
	key := strings.Join(strings.FieldsFunc(col+" "+unit, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	}), "_")
	return strings.ToLower(key)
}

func (c *Cronometer) dailySummary(path string) recordSeq {
	return rowStream(c.log, path, "cronometer summary", func(row csvRow) (models.Record, error) {
		d, err := civil.ParseDate(row.get("date"))
		if err != nil {
			return nil, fmt.Errorf("invalid date %q", row.get("date"))
		}

		var detail models.NutritionDetail
		for _, f := range []struct {
			col string
			dst **float64
		}{
			{"energy (kcal)", &detail.Calories},
			{"protein (g)", &detail.ProteinG},
			{"carbs (g)", &detail.CarbsG},
			{"fat (g)", &detail.FatG},
			{"fiber (g)", &detail.FiberG},
			{"sugars (g)", &detail.SugarG},
			{"sodium (mg)", &detail.SodiumMG},
			{"water (g)", &detail.WaterML},
		} {
			v, err := optCell(row, f.col)
			if err != nil {
				return nil, err
			}
			*f.dst = v
		}
		if detail.Calories == nil || *detail.Calories <= 0 {
			return nil, nil
		}

		detail.Micronutrients = map[string]float64{}
		for col, raw := range row {
			if cronometerReserved[col] || strings.TrimSpace(raw) == "" {
				continue
			}
			if v, err := parseNumber(raw); err == nil {
				detail.Micronutrients[micronutrientKey(col)] = v
			}
		}

		md := map[string]any{"data_source": "dailysummary"}
		if v := row.get("completed"); v != "" {
			md["completed"] = strings.EqualFold(v, "true")
		}
		return &models.NutritionRecord{
			RecordBase: models.RecordBase{
				Source:     models.SourceCronometer,
				Timestamp:  midnight(d),
				Date:       d,
				Metadata:   md,
				RawPayload: row.raw(),
			},
			Detail: detail,
		}, nil
	})
}

func (c *Cronometer) biometrics(path string) recordSeq {
	return rowStream(c.log, path, "cronometer biometrics", func(row csvRow) (models.Record, error) {
		metric := strings.ToLower(row.get("metric"))
		var mt models.MetricType
		switch metric {
		case "weight":
			mt = models.MetricWeight
		case "body fat":
			mt = models.MetricBodyFat
		default:
			return nil, nil
		}

		d, err := civil.ParseDate(row.get("day", "date"))
		if err != nil {
			return nil, fmt.Errorf("invalid day %q", row.get("day", "date"))
		}
		v, err := parseNumber(row.get("amount"))
		if err != nil {
			return nil, err
		}
		unit := strings.ToLower(row.get("unit"))
		if mt == models.MetricWeight && (unit == "lbs" || unit == "lb") {
			v = aggregate.Round(v*kgPerPound, 2)
		}
		return models.NewMetricPoint(models.SourceCronometer, mt, v, midnight(d)).
			WithDate(d).
			WithMetadata(map[string]any{"source_unit": unit}).
			WithRaw(row.raw()), nil
	})
}
