package schema

import (
	"fmt"
	"time"
)

// TimeLayout is the fixed-width ISO-8601 layout used for every persisted
// timestamp.
const TimeLayout = "2006-01-02T15:04:05.000Z"

// Stamp normalizes t to UTC millisecond precision.
func Stamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

// Now returns the current time normalized with Stamp.
func Now() time.Time {
	return Stamp(time.Now())
}

// FormatTime renders t in TimeLayout.
func FormatTime(t time.Time) string {
	return Stamp(t).Format(TimeLayout)
}

// ParseTime parses a timestamp written by FormatTime or any RFC 3339 value.
func ParseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return Stamp(t), nil
}
