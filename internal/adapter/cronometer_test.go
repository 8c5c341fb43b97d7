// ABOUTME: Tests for the Cronometer adapter.
// ABOUTME: Verifies nutrition rows, micronutrient capture, and biometrics conversion.

package adapter

import (
	"path/filepath"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/harperreed/vitals/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCronometerDailySummary(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "dailysummary.csv"),
		"Date,Energy (kcal),Protein (g),Carbs (g),Fat (g),Fiber (g),Sodium (mg),Vitamin C (mg),B1 (Thiamine) (mg),Completed\n"+
			"2024-03-10,2000,150,200,70,30,2300,90,1.2,true\n"+
			"oops,1800,100,100,50,20,2000,80,1.0,false\n"+
			"2024-03-11,,,,,,,,,false\n")

	c := NewCronometer(uuid.New(), quietOptions())
	require.True(t, c.Detect(dir))
	res := c.Parse(dir)

	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "row 2")

	days := nutritionOf(res.Records)
	require.Len(t, days, 1, "empty days are skipped")
	d := days[0]
	assert.Equal(t, civil.Date{Year: 2024, Month: 3, Day: 10}, d.CalendarDate())
	assert.Equal(t, 2000.0, *d.Detail.Calories)
	assert.Equal(t, 150.0, *d.Detail.ProteinG)
	assert.Equal(t, 2300.0, *d.Detail.SodiumMG)
	assert.Equal(t, 90.0, d.Detail.Micronutrients["vitamin_c_mg"])
	assert.Equal(t, 1.2, d.Detail.Micronutrients["b1_thiamine_mg"])
	assert.NotContains(t, d.Detail.Micronutrients, "protein_g")
	assert.Equal(t, true, d.Metadata["completed"])
}

func TestCronometerBiometrics(t *testing.T) {
	path := writeFile(t, filepath.Join(t.TempDir(), "biometrics.csv"),
		"Day,Group,Metric,Unit,Amount\n"+
			"2024-03-10,Weight,Weight,lbs,180\n"+
			"2024-03-10,Body,Body Fat,%,18.5\n"+
			"2024-03-10,Vitals,Blood Pressure,mmHg,120\n")

	res := NewCronometer(uuid.New(), quietOptions()).Parse(path)
	require.True(t, res.Success, res.Errors)

	weight := metricsOf(res.Records, models.MetricWeight)
	require.Len(t, weight, 1)
	assert.Equal(t, 81.65, weight[0].Value)
	assert.Equal(t, "kg", weight[0].Unit)

	fat := metricsOf(res.Records, models.MetricBodyFat)
	require.Len(t, fat, 1)
	assert.Equal(t, 18.5, fat[0].Value)
	assert.Len(t, res.Records, 2)
}

func TestMicronutrientKey(t *testing.T) {
	assert.Equal(t, "vitamin_c_mg", micronutrientKey("vitamin c (mg)"))
	assert.Equal(t, "omega_3_g", micronutrientKey("omega-3 (g)"))
	assert.Equal(t, "caffeine", micronutrientKey("caffeine"))
}
