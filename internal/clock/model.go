// ABOUTME: Clock model turning a reference UTC instant into display time
// ABOUTME: Applies the central European time rule and scheduled leap second corrections
package clock

import (
	"fmt"
	"math"
	"time"
)

// LeapState is the leap second condition announced by the time server
type LeapState int

const (
	LeapNone LeapState = iota
	LeapPendingInsert
	LeapPendingDelete
	LeapUnspecifiedFault
)

func (s LeapState) String() string {
	switch s {
	case LeapNone:
		return "none"
	case LeapPendingInsert:
		return "pending insert"
	case LeapPendingDelete:
		return "pending delete"
	case LeapUnspecifiedFault:
		return "fault"
	default:
		return fmt.Sprintf("LeapState(%d)", int(s))
	}
}

// Pending reports whether a leap second is scheduled
func (s LeapState) Pending() bool {
	return s == LeapPendingInsert || s == LeapPendingDelete
}

// leapMonthLastDay lists the months a leap second may be scheduled in,
// keyed to the day the leap second ends
var leapMonthLastDay = map[time.Month]int{
	time.March:     31,
	time.June:      30,
	time.September: 30,
	time.December:  31,
}

// LeapInstant returns the UTC instant of the last regular second before a
// leap second at the end of month, and false for months that never carry one
func LeapInstant(year int, month time.Month) (time.Time, bool) {
	day, ok := leapMonthLastDay[month]
	if !ok {
		return time.Time{}, false
	}
	return time.Date(year, month, day, 23, 59, 59, 0, time.UTC), true
}

// Reading is the corrected display time for one instant
type Reading struct {
	UTC            time.Time // Reference instant including any leap correction
	Local          time.Time // UTC shifted into the display zone
	Hour           int
	Minute         int
	Second         int
	Day            int
	Month          int
	Year           int
	UTCOffsetHours int
	TZLabel        string
	LeapDeltaMs    int64      // Leap correction applied to this reading
	LeapAnnounce   *time.Time // Set once when a pending leap is first seen
}

// Model holds the leap second state between readings.
// It is not safe for concurrent use.
type Model struct {
	leap       LeapState
	correction int64 // ms, applied leap correction in effect until the next sync
	announced  bool
}

// NewModel creates a model with no leap pending
func NewModel() *Model {
	return &Model{}
}

// Leap returns the current leap state
func (m *Model) Leap() LeapState {
	return m.leap
}

// SetLeap records the leap state announced with a completed sync round
func (m *Model) SetLeap(s LeapState) {
	if s != m.leap {
		m.announced = false
	}
	m.leap = s
}

// Correction returns the applied leap correction in milliseconds
func (m *Model) Correction() int64 {
	return m.correction
}

// ClearCorrection drops an applied leap correction; fresh server time
// already accounts for it
func (m *Model) ClearCorrection() {
	m.correction = 0
}

// Correct converts a reference UTC instant into display time. A pending
// leap second is applied when utc reaches 23:59:59 on the last day of an
// eligible month: an inserted second takes effect from the next reading so
// that 23:59:59 is shown twice, a deleted second takes effect at once.
func (m *Model) Correct(utc time.Time) Reading {
	utc = utc.UTC()
	hours := UTCOffsetHours(utc)

	r := Reading{
		UTCOffsetHours: hours,
		TZLabel:        TimezoneLabel(hours),
	}

	deferred := false
	if m.leap.Pending() {
		if at, ok := LeapInstant(utc.Year(), utc.Month()); ok {
			if sameSecond(utc, at) {
				if m.leap == LeapPendingInsert {
					m.correction = -1000
					deferred = true
				} else {
					m.correction = 1000
				}
				m.SetLeap(LeapNone)
			} else if !m.announced {
				r.LeapAnnounce = &at
				m.announced = true
			}
		}
	}

	if !deferred {
		r.LeapDeltaMs = m.correction
	}

	r.UTC = utc.Add(time.Duration(r.LeapDeltaMs) * time.Millisecond)
	r.Local = r.UTC.Add(time.Duration(hours) * time.Hour)
	r.Hour, r.Minute, r.Second = r.Local.Clock()
	r.Year = r.Local.Year()
	r.Month = int(r.Local.Month())
	r.Day = r.Local.Day()

	return r
}

func sameSecond(a, b time.Time) bool {
	return a.Truncate(time.Second).Equal(b)
}

// ReferenceTime converts a local monotonic reading into reference UTC using
// the session's time delta, both in milliseconds
func ReferenceTime(monotonicMs, timeDeltaMs float64) time.Time {
	ms := monotonicMs - timeDeltaMs
	whole := math.Floor(ms)
	frac := math.Round((ms - whole) * float64(time.Millisecond))
	return time.UnixMilli(int64(whole)).Add(time.Duration(frac)).UTC()
}

// CorrectedTime is ReferenceTime followed by Correct
func CorrectedTime(monotonicMs, timeDeltaMs float64, m *Model) Reading {
	return m.Correct(ReferenceTime(monotonicMs, timeDeltaMs))
}
