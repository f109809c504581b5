// ABOUTME: Central European time rule computed without tzdata
// ABOUTME: Summer time runs from 01:00 UTC on the last Sunday of March to 01:00 UTC on the last Sunday of October
package clock

import (
	"fmt"
	"time"
)

// IsSummerTime reports whether t falls in the EU daylight period
func IsSummerTime(t time.Time) bool {
	t = t.UTC()
	month := t.Month()

	switch {
	case month > time.March && month < time.October:
		return true
	case month == time.March:
		return pastLastSunday(t)
	case month == time.October:
		return !pastLastSunday(t)
	default:
		return false
	}
}

// pastLastSunday reports whether t is at or after 01:00 UTC on the last
// Sunday of its month. Only valid for 31-day months.
func pastLastSunday(t time.Time) bool {
	day, weekday, hour := t.Day(), int(t.Weekday()), t.Hour()
	if day <= 24 {
		return false
	}
	if weekday == 0 {
		return hour >= 1
	}
	// The most recent Sunday was day-weekday; past day 24 it is the last one
	return day-weekday > 24
}

// UTCOffsetHours returns 2 during summer time and 1 otherwise
func UTCOffsetHours(t time.Time) int {
	if IsSummerTime(t) {
		return 2
	}
	return 1
}

// TimezoneLabel renders the zone name and offset, e.g. "CET (UTC+01:00)"
func TimezoneLabel(offsetHours int) string {
	name := "CET"
	if offsetHours == 2 {
		name = "CEST"
	}
	return fmt.Sprintf("%s (UTC+%02d:00)", name, offsetHours)
}
