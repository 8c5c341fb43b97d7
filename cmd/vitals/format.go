// ABOUTME: Output and flag helpers shared by the CLI commands.
// ABOUTME: Formats optional values and parses date flags.
package main

import (
	"fmt"
	"strings"

	"cloud.google.com/go/civil"
)

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func padRight(s string, length int) string {
	if len(s) >= length {
		return s
	}
	return s + strings.Repeat(" ", length-len(s))
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

// fmtFloat renders an optional value, "-" when unknown.
func fmtFloat(v *float64, decimals int) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.*f", decimals, *v)
}

func fmtInt(v *int) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *v)
}

// fmtMinutes renders minutes as "7h 30m".
func fmtMinutes(v *int) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%dh %02dm", *v/60, *v%60)
}

// parseDateFlag parses an optional YYYY-MM-DD flag value.
func parseDateFlag(name, raw string) (civil.Date, error) {
	if raw == "" {
		return civil.Date{}, nil
	}
	d, err := civil.ParseDate(raw)
	if err != nil {
		return civil.Date{}, fmt.Errorf("invalid --%s %q (use YYYY-MM-DD)", name, raw)
	}
	return d, nil
}
