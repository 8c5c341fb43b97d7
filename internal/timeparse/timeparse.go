// ABOUTME: Ordered-layout datetime parsing with a lenient fallback.
// ABOUTME: Callers list layouts most specific first; the first match wins.
package timeparse

import (
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// FitbitLayouts covers the formats seen across Fitbit and Google Takeout
// exports. Layouts with time of day come before date-only ones.
var FitbitLayouts = []string{
	"01/02/06 15:04:05",
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ZonedLayouts covers exports that carry a numeric UTC offset.
var ZonedLayouts = []string{
	"2006-01-02 15:04:05-0700",
	"2006-01-02 15:04:05 -0700",
	time.RFC3339Nano,
	time.RFC3339,
}

// DateLayout is the plain calendar date format.
const DateLayout = "2006-01-02"

// Parse tries each layout in order and returns the first successful parse.
// Naive values are read as UTC. When no layout matches, a lenient parser
// gets a final attempt. ok is false when the value could not be parsed.
func Parse(raw string, layouts []string) (t time.Time, ok bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			return t, true
		}
	}
	t, err := dateparse.ParseIn(raw, time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// ParseFitbit parses with FitbitLayouts.
func ParseFitbit(raw string) (time.Time, bool) {
	return Parse(raw, FitbitLayouts)
}
