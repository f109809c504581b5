// ABOUTME: Tick scheduler publishing corrected time once per second
// ABOUTME: Re-arms on the corrected second boundary and detects clock stalls
package engine

import (
	"log"
	"time"

	"github.com/sidnlabs/klok/internal/clock"
	"github.com/sidnlabs/klok/internal/loop"
)

// StallThreshold is the largest tick interval not treated as a stall
const StallThreshold = 3200 * time.Millisecond

// DeltaSource provides the time delta the ticker renders with
type DeltaSource interface {
	TimeDelta() (float64, bool)
}

// TickerConfig holds the collaborators of a ticker
type TickerConfig struct {
	Scheduler loop.Scheduler
	Origin    time.Time
	Model     *clock.Model
	Display   Display
	Source    DeltaSource
	// OnStall is called when a tick arrives late. Returning false stops the
	// ticker and blanks the display.
	OnStall func() bool
	// Wall reads the system clock. Defaults to the scheduler clock stripped
	// of its monotonic reading, which keeps running while the host sleeps.
	Wall func() time.Time
}

// Ticker drives the display from the corrected clock
type Ticker struct {
	sched   loop.Scheduler
	mono    monotonic
	model   *clock.Model
	display Display
	source  DeltaSource
	onStall func() bool
	wall    func() time.Time

	timer    loop.Timer
	prev     time.Time
	prevWall time.Time
	hasPrev  bool
}

// NewTicker creates a stopped ticker
func NewTicker(config TickerConfig) *Ticker {
	wall := config.Wall
	if wall == nil {
		wall = func() time.Time { return config.Scheduler.Now().Round(0) }
	}

	return &Ticker{
		sched:   config.Scheduler,
		mono:    monotonic{sched: config.Scheduler, origin: config.Origin},
		model:   config.Model,
		display: config.Display,
		source:  config.Source,
		onStall: config.OnStall,
		wall:    wall,
	}
}

// Running reports whether a tick is scheduled
func (t *Ticker) Running() bool {
	return t.timer != nil
}

// Start renders immediately and schedules the following ticks
func (t *Ticker) Start() {
	if t.Running() {
		return
	}
	t.hasPrev = false
	t.tick()
}

// Stop cancels the next tick
func (t *Ticker) Stop() {
	stopTimer(&t.timer)
}

func (t *Ticker) tick() {
	t.timer = nil
	now, wall := t.sched.Now(), t.wall()

	if t.hasPrev {
		// The monotonic clock stops during suspend, the wall clock does not
		gap := max(now.Sub(t.prev), wall.Sub(t.prevWall))
		if gap > StallThreshold {
			log.Printf("%v: %v between ticks", ErrStallDetected, gap.Round(time.Millisecond))
			if t.onStall == nil || !t.onStall() {
				t.display.Blank()
				t.hasPrev = false
				return
			}

			// The delta predates the stall; wait for the resync before rendering
			t.prev, t.prevWall = now, wall
			t.timer = t.sched.AfterFunc(time.Second, t.tick)
			return
		}
	}
	t.prev, t.prevWall, t.hasPrev = now, wall, true

	delta, ok := t.source.TimeDelta()
	if !ok {
		t.display.Blank()
		t.hasPrev = false
		return
	}

	leap := t.model.Leap()
	r := clock.CorrectedTime(t.mono.Millis(), delta, t.model)
	t.render(r, leap)

	next := time.Second - time.Duration(r.UTC.Nanosecond())
	t.timer = t.sched.AfterFunc(next, t.tick)
}

// render publishes r; leap is the model's state before r was computed
func (t *Ticker) render(r clock.Reading, leap clock.LeapState) {
	t.display.SetHandAngle(HourHand, float64(r.Hour%12)*30+float64(r.Minute)*0.5)
	t.display.SetHandAngle(MinuteHand, float64(r.Minute)*6)
	t.display.SetHandAngle(SecondHand, float64(r.Second)*6)
	t.display.SetDigitalTime(r.Hour, r.Minute, r.Second)
	t.display.SetTimezoneLabel(r.TZLabel)
	t.display.SetDigitalDate(r.Day, r.Month, r.Year)

	switch now := t.model.Leap(); {
	case r.LeapAnnounce != nil:
		t.display.SetLeapInfo(now, r.LeapAnnounce)
	case now != leap:
		t.display.SetLeapInfo(now, nil)
	}

	t.display.SetOffsetText(clock.OffsetText(t.wall(), r.UTC))
}
