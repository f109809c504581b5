// ABOUTME: Deterministic Scheduler driven by a fake clock
// ABOUTME: Fires timers in due order on the caller's goroutine for tests and simulations
package loop

import (
	"container/heap"
	"time"

	"github.com/jonboulle/clockwork"
)

// Manual is a Scheduler that only moves when Advance or Drain is called.
// It is not safe for concurrent use.
type Manual struct {
	clock  *clockwork.FakeClock
	timers timerQueue
	posted []func()
	seq    uint64
}

// NewManual creates a manual scheduler starting at start
func NewManual(start time.Time) *Manual {
	m := &Manual{clock: clockwork.NewFakeClockAt(start)}
	heap.Init(&m.timers)
	return m
}

// Clock exposes the underlying fake clock
func (m *Manual) Clock() *clockwork.FakeClock {
	return m.clock
}

// Now returns the fake clock's time
func (m *Manual) Now() time.Time {
	return m.clock.Now()
}

// Post queues f; it runs on the next Drain or Advance
func (m *Manual) Post(f func()) {
	m.posted = append(m.posted, f)
}

// AfterFunc schedules f at Now()+d
func (m *Manual) AfterFunc(d time.Duration, f func()) Timer {
	m.seq++
	t := &manualTimer{due: m.Now().Add(d), seq: m.seq, f: f}
	heap.Push(&m.timers, t)
	return t
}

// Drain runs every posted callback, including ones posted while draining
func (m *Manual) Drain() {
	for len(m.posted) > 0 {
		f := m.posted[0]
		m.posted = m.posted[1:]
		f()
	}
}

// Advance moves the clock forward by d, firing due timers in order and
// draining posted callbacks after each one.
func (m *Manual) Advance(d time.Duration) {
	end := m.Now().Add(d)
	m.Drain()

	for m.timers.Len() > 0 {
		next := m.timers.Peek()
		if next.stopped {
			heap.Pop(&m.timers)
			continue
		}
		if next.due.After(end) {
			break
		}

		heap.Pop(&m.timers)
		if wait := next.due.Sub(m.Now()); wait > 0 {
			m.clock.Advance(wait)
		}
		next.stopped = true
		next.f()
		m.Drain()
	}

	if rest := end.Sub(m.Now()); rest > 0 {
		m.clock.Advance(rest)
	}
}

// Pending returns the number of live timers
func (m *Manual) Pending() int {
	n := 0
	for _, t := range m.timers.items {
		if !t.stopped {
			n++
		}
	}
	return n
}

type manualTimer struct {
	due     time.Time
	seq     uint64
	f       func()
	stopped bool
}

func (t *manualTimer) Stop() bool {
	if t.stopped {
		return false
	}
	t.stopped = true
	return true
}

// timerQueue is a priority queue of timers ordered by due time, then by
// scheduling order
type timerQueue struct {
	items []*manualTimer
}

func (q *timerQueue) Len() int { return len(q.items) }

func (q *timerQueue) Less(i, j int) bool {
	if q.items[i].due.Equal(q.items[j].due) {
		return q.items[i].seq < q.items[j].seq
	}
	return q.items[i].due.Before(q.items[j].due)
}

func (q *timerQueue) Swap(i, j int) {
	q.items[i], q.items[j] = q.items[j], q.items[i]
}

func (q *timerQueue) Push(x interface{}) {
	q.items = append(q.items, x.(*manualTimer))
}

func (q *timerQueue) Pop() interface{} {
	n := len(q.items)
	item := q.items[n-1]
	q.items = q.items[:n-1]
	return item
}

func (q *timerQueue) Peek() *manualTimer {
	return q.items[0]
}
