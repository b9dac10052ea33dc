package util

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// yesValues are the case-insensitive strings ParseYesNo accepts as true.
var yesValues = []string{"yes", "on", "true", "1", "y", "ok"}

// ParseYesNo interprets a yes/no setting such as DRY_RUN=YES.
//
// Parameters:
//   - value: Raw setting or prompt answer.
//
// Returns:
//   - bool: True for yes, on, true, 1, y or ok in any case; false for everything else.
func ParseYesNo(value string) bool {
	return slices.Contains(yesValues, strings.ToLower(strings.TrimSpace(value)))
}

// FormatYesNo renders a boolean the way ParseYesNo reads it back.
func FormatYesNo(value bool) string {
	if value {
		return "YES"
	}

	return "NO"
}

// FormatDuration renders a duration as "1 hour, 2 minutes, 3 seconds".
// Zero units are left out; a duration under one second renders as "0 seconds".
func FormatDuration(duration time.Duration) string {
	const (
		secondsPerMinute = 60
		minutesPerHour   = 60
	)

	total := int64(duration.Seconds())

	units := []struct {
		value          int64
		singular, plur string
	}{
		{total / (secondsPerMinute * minutesPerHour), "hour", "hours"},
		{(total / secondsPerMinute) % minutesPerHour, "minute", "minutes"},
		{total % secondsPerMinute, "second", "seconds"},
	}

	parts := make([]string, 0, len(units))

	for _, unit := range units {
		switch {
		case unit.value == 1:
			parts = append(parts, "1 "+unit.singular)
		case unit.value > 1:
			parts = append(parts, fmt.Sprintf("%d %s", unit.value, unit.plur))
		}
	}

	if len(parts) == 0 {
		return "0 seconds"
	}

	return strings.Join(parts, ", ")
}
