// ABOUTME: Source enum naming the vendor a record was exported from.
// ABOUTME: The set is closed; adapters declare one of these as their name.
package models

// Source identifies the vendor or app that produced a record.
type Source string

const (
	SourceFitbit       Source = "fitbit"
	SourceGarmin       Source = "garmin"
	SourceOura         Source = "oura"
	SourceAppleHealth  Source = "apple_health"
	SourceCronometer   Source = "cronometer"
	SourceMyFitnessPal Source = "myfitnesspal"
	SourceManual       Source = "manual"
)

// AllSources lists every known source.
var AllSources = []Source{
	SourceFitbit, SourceGarmin, SourceOura, SourceAppleHealth,
	SourceCronometer, SourceMyFitnessPal, SourceManual,
}

// IsValidSource checks if a string names a known source.
func IsValidSource(s string) bool {
	for _, src := range AllSources {
		if string(src) == s {
			return true
		}
	}
	return false
}
