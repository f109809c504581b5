// ABOUTME: Human readable offset between the system clock and corrected time
// ABOUTME: Buckets the difference into days, hours, minutes, seconds and milliseconds
package clock

import (
	"strconv"
	"strings"
	"time"
)

var offsetUnits = []struct {
	size time.Duration
	name string
}{
	{24 * time.Hour, "d"},
	{time.Hour, "h"},
	{time.Minute, "min"},
	{time.Second, "s"},
	{time.Millisecond, "ms"},
}

// OffsetText describes how far system is from corrected, for example
// "1 min 250 ms ahead", "3 s behind" or "exact"
func OffsetText(system, corrected time.Time) string {
	d := system.Sub(corrected).Truncate(time.Millisecond)
	behind := d < 0
	if behind {
		d = -d
	}

	var parts []string
	for _, u := range offsetUnits {
		n := d / u.size
		d -= n * u.size
		if n != 0 {
			parts = append(parts, strconv.FormatInt(int64(n), 10)+" "+u.name)
		}
	}

	switch {
	case len(parts) == 0:
		parts = append(parts, "exact")
	case behind:
		parts = append(parts, "behind")
	default:
		parts = append(parts, "ahead")
	}

	return strings.Join(parts, " ")
}
