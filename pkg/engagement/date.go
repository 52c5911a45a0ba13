package engagement

import (
	"fmt"
	"time"
)

// DateLayout is the format of snapshot dates.
const DateLayout = "2006-01-02"

// SnapshotDate returns the UTC snapshot date containing t.
func SnapshotDate(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// ParseDate validates a snapshot date and returns it in canonical form.
func ParseDate(s string) (string, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return "", fmt.Errorf("invalid snapshot date %q: %w", s, err)
	}
	return t.Format(DateLayout), nil
}

// referenceTime is the instant recency is measured from when a stored
// snapshot is rescored: the end of the snapshot day.
func referenceTime(date string) (time.Time, error) {
	t, err := time.Parse(DateLayout, date)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid snapshot date %q: %w", date, err)
	}
	return t.Add(24 * time.Hour), nil
}
