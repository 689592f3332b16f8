package zugferd

import (
	"regexp"
	"time"
)

// Textual date layouts seen in the wild, most common first. Format code 102
// (compact numeric) dominates, ISO and the German forms cover the rest.
var dateLayouts = []string{
	"20060102",   // 20231215
	"2006-01-02", // 2023-12-15
	"02.01.2006", // 15.12.2023
	"02/01/2006", // 15/12/2023
}

var eightDigitRun = regexp.MustCompile(`\d{8}`)

// parseDateString parses an invoice date in any supported layout. As a last
// resort any 8-digit run inside a longer string is read as YYYYMMDD. The
// result is normalized to midnight UTC so only the calendar date carries
// meaning.
func parseDateString(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return normalize(t), true
		}
	}
	if run := eightDigitRun.FindString(s); run != "" {
		if t, err := time.Parse("20060102", run); err == nil {
			return normalize(t), true
		}
	}
	return time.Time{}, false
}

func normalize(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
