// ABOUTME: Display sink interface consumed by the tick scheduler and session
// ABOUTME: Includes a log-based sink for running without a terminal UI
package engine

import (
	"fmt"
	"log"
	"time"

	"github.com/sidnlabs/klok/internal/clock"
)

// Hand identifies a clock hand
type Hand int

const (
	HourHand Hand = iota
	MinuteHand
	SecondHand
)

func (h Hand) String() string {
	switch h {
	case HourHand:
		return "hour"
	case MinuteHand:
		return "minute"
	default:
		return "second"
	}
}

// Display receives everything the engine shows. Calls are made from the
// scheduler's goroutine.
type Display interface {
	SetHandAngle(hand Hand, degrees float64)
	SetDigitalTime(h, m, s int)
	SetDigitalDate(d, m, y int)
	SetTimezoneLabel(text string)
	SetAccuracy(ms int64)
	SetOffsetText(text string)
	SetConnected(connected bool)
	SetLeapInfo(state clock.LeapState, at *time.Time)
	// Blank replaces time, date and timezone with placeholders and zeroes the hands
	Blank()
}

// LogDisplay writes display updates to the standard logger, one line per tick
type LogDisplay struct {
	time     string
	date     string
	zone     string
	accuracy int64
}

// NewLogDisplay creates a display that logs
func NewLogDisplay() *LogDisplay {
	return &LogDisplay{time: "--:--:--", date: "--.--.----", zone: "--"}
}

func (d *LogDisplay) SetHandAngle(Hand, float64) {}

func (d *LogDisplay) SetDigitalTime(h, m, s int) {
	d.time = fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

func (d *LogDisplay) SetDigitalDate(day, month, year int) {
	d.date = fmt.Sprintf("%02d.%02d.%d", day, month, year)
}

func (d *LogDisplay) SetTimezoneLabel(text string) {
	d.zone = text
}

func (d *LogDisplay) SetAccuracy(ms int64) {
	d.accuracy = ms
	log.Printf("Accuracy: ± %d ms", ms)
}

// SetOffsetText is the last update of a tick, so it emits the line
func (d *LogDisplay) SetOffsetText(text string) {
	log.Printf("%s %s %s (± %d ms, system clock %s)", d.date, d.time, d.zone, d.accuracy, text)
}

func (d *LogDisplay) SetConnected(connected bool) {
	if connected {
		log.Printf("Display: connected")
	} else {
		log.Printf("Display: not connected")
	}
}

func (d *LogDisplay) SetLeapInfo(state clock.LeapState, at *time.Time) {
	if at != nil {
		log.Printf("Leap second (%s) scheduled after %s", state, at.Format(time.RFC3339))
		return
	}
	log.Printf("Leap state: %s", state)
}

func (d *LogDisplay) Blank() {
	d.time, d.date, d.zone = "--:--:--", "--.--.----", "--"
	log.Printf("Display: blanked")
}
