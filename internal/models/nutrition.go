// ABOUTME: Persisted nutrition day entity.
// ABOUTME: One row per user, source, and calendar date.
package models

import (
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
)

// NutritionDay is one persisted day of nutrition from one source.
// Unique on (UserID, Source, Date).
type NutritionDay struct {
	ID             string             `json:"id" yaml:"id"`
	UserID         string             `json:"user_id" yaml:"user_id"`
	Source         Source             `json:"source" yaml:"source"`
	Date           civil.Date         `json:"date" yaml:"date"`
	Calories       *float64           `json:"calories,omitempty" yaml:"calories,omitempty"`
	ProteinG       *float64           `json:"protein_g,omitempty" yaml:"protein_g,omitempty"`
	CarbsG         *float64           `json:"carbs_g,omitempty" yaml:"carbs_g,omitempty"`
	FatG           *float64           `json:"fat_g,omitempty" yaml:"fat_g,omitempty"`
	FiberG         *float64           `json:"fiber_g,omitempty" yaml:"fiber_g,omitempty"`
	SugarG         *float64           `json:"sugar_g,omitempty" yaml:"sugar_g,omitempty"`
	SodiumMG       *float64           `json:"sodium_mg,omitempty" yaml:"sodium_mg,omitempty"`
	WaterML        *float64           `json:"water_ml,omitempty" yaml:"water_ml,omitempty"`
	Micronutrients map[string]float64 `json:"micronutrients,omitempty" yaml:"micronutrients,omitempty"`
	Metadata       map[string]any     `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	RawPayload     map[string]any     `json:"raw_payload,omitempty" yaml:"raw_payload,omitempty"`
	BatchID        uuid.UUID          `json:"import_batch_id" yaml:"import_batch_id"`
	CreatedAt      time.Time          `json:"created_at" yaml:"created_at"`
}

// NewNutritionDay builds a persisted row from a parsed nutrition record.
func NewNutritionDay(userID string, batchID uuid.UUID, r *NutritionRecord) *NutritionDay {
	return &NutritionDay{
		ID:             NewID(),
		UserID:         userID,
		Source:         r.Source,
		Date:           r.CalendarDate(),
		Calories:       r.Detail.Calories,
		ProteinG:       r.Detail.ProteinG,
		CarbsG:         r.Detail.CarbsG,
		FatG:           r.Detail.FatG,
		FiberG:         r.Detail.FiberG,
		SugarG:         r.Detail.SugarG,
		SodiumMG:       r.Detail.SodiumMG,
		WaterML:        r.Detail.WaterML,
		Micronutrients: r.Detail.Micronutrients,
		Metadata:       r.Metadata,
		RawPayload:     r.RawPayload,
		BatchID:        batchID,
		CreatedAt:      time.Now().UTC(),
	}
}
