package utils

import (
	"fmt"
	"strings"
	"time"
)

// Reporting periods arrive from analysts in several spellings ("March 2024",
// "Mar 2024", "2024-03", "03/2024"). NormalizePeriod canonicalizes them to
// "January 2006" form so snapshot keys and rule changelog entries line up.
func NormalizePeriod(period string) (string, error) {
	trimmed := strings.TrimSpace(period)
	if trimmed == "" {
		return "", fmt.Errorf("reporting period is empty")
	}

	layouts := []string{
		"January 2006",
		"Jan 2006",
		"2006-01",
		"01/2006",
		"2006-01-02",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return t.Format("January 2006"), nil
		}
	}
	return "", fmt.Errorf("unrecognized reporting period %q", period)
}

// TimestampNow returns the current UTC time in RFC3339, the format used for
// correction records and changelog entries.
func TimestampNow() string {
	return time.Now().UTC().Format(time.RFC3339)
}
