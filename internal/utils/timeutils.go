package utils

import (
	"fmt"
	"time"
)

// ParseRFC3339 returns a time from the provided string or an error.
func ParseRFC3339(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("empty time value")
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time: %w", err)
	}
	return t, nil
}

// FormatHours renders a duration given in hours for humans: minutes below
// one hour, days above 48 hours.
func FormatHours(hours float64) string {
	switch {
	case hours < 0:
		return "0m"
	case hours < 1:
		return fmt.Sprintf("%.0fm", hours*60)
	case hours < 48:
		return fmt.Sprintf("%.1fh", hours)
	default:
		return fmt.Sprintf("%.1fd", hours/24)
	}
}

// FormatSince renders how long ago t was relative to now.
func FormatSince(t, now time.Time) string {
	if t.IsZero() || t.After(now) {
		return "just now"
	}
	return FormatHours(now.Sub(t).Hours()) + " ago"
}
