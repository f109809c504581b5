// ABOUTME: Single-threaded callback executor with cancellable timers
// ABOUTME: Serialises socket events and timer firings onto one goroutine
package loop

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
)

// Timer is a handle to a scheduled callback
type Timer interface {
	// Stop cancels the callback. It reports whether the callback was
	// still pending; a stopped callback never runs.
	Stop() bool
}

// Scheduler runs callbacks on one logical thread. Every callback passed to
// AfterFunc or Post runs on that thread, never concurrently with another.
type Scheduler interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
	Post(f func())
}

// Loop is the production Scheduler: a goroutine draining an event queue
type Loop struct {
	clock  clockwork.Clock
	events chan func()
	done   chan struct{}
}

// New creates a loop driven by clock. A nil clock means the real clock.
func New(clock clockwork.Clock) *Loop {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return &Loop{
		clock:  clock,
		events: make(chan func(), 64),
		done:   make(chan struct{}),
	}
}

// Now returns the current time of the loop's clock
func (l *Loop) Now() time.Time {
	return l.clock.Now()
}

// Post queues f to run on the loop goroutine. It is safe to call from any
// goroutine; after Run has returned, f is dropped.
func (l *Loop) Post(f func()) {
	select {
	case l.events <- f:
	case <-l.done:
	}
}

// AfterFunc runs f on the loop goroutine after d. Stop must be called from
// the loop goroutine.
func (l *Loop) AfterFunc(d time.Duration, f func()) Timer {
	t := &loopTimer{}
	t.timer = l.clock.AfterFunc(d, func() {
		l.Post(func() {
			if t.stopped {
				return
			}
			t.stopped = true
			f()
		})
	})
	return t
}

// Run processes events until ctx is cancelled
func (l *Loop) Run(ctx context.Context) error {
	defer close(l.done)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f := <-l.events:
			f()
		}
	}
}

// loopTimer is only touched on the loop goroutine, except for the
// underlying clock timer which is safe for concurrent use.
type loopTimer struct {
	timer   clockwork.Timer
	stopped bool
}

func (t *loopTimer) Stop() bool {
	if t.stopped {
		return false
	}
	t.stopped = true
	if t.timer != nil {
		t.timer.Stop()
	}
	return true
}
