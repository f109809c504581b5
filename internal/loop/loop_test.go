// ABOUTME: Tests for the event loop and the manual scheduler
// ABOUTME: Tests callback ordering, timer firing and cancellation
package loop

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runLoop(t *testing.T, l *Loop) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = l.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestLoopPostOrder(t *testing.T) {
	l := New(nil)
	runLoop(t, l)

	got := make(chan int, 3)
	for i := 0; i < 3; i++ {
		i := i
		l.Post(func() { got <- i })
	}

	for want := 0; want < 3; want++ {
		select {
		case v := <-got:
			assert.Equal(t, want, v)
		case <-time.After(time.Second):
			t.Fatal("posted callback did not run")
		}
	}
}

func TestLoopTimerFires(t *testing.T) {
	fake := clockwork.NewFakeClock()
	l := New(fake)
	runLoop(t, l)

	scheduled := make(chan struct{})
	fired := make(chan time.Time, 1)
	l.Post(func() {
		l.AfterFunc(time.Second, func() { fired <- l.Now() })
		close(scheduled)
	})
	<-scheduled

	fake.Advance(time.Second)

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}
}

func TestLoopStoppedTimerNeverRuns(t *testing.T) {
	fake := clockwork.NewFakeClock()
	l := New(fake)
	runLoop(t, l)

	fired := make(chan struct{}, 1)
	stopped := make(chan bool)
	l.Post(func() {
		timer := l.AfterFunc(time.Second, func() { fired <- struct{}{} })
		stopped <- timer.Stop()
	})
	require.True(t, <-stopped)

	fake.Advance(2 * time.Second)

	// A marker posted after the advance runs after any stale firing would have
	marker := make(chan struct{})
	l.Post(func() { close(marker) })
	<-marker

	select {
	case <-fired:
		t.Fatal("stopped timer fired")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestManualFiresInOrder(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewManual(start)

	var order []string
	var at []time.Duration
	record := func(name string) func() {
		return func() {
			order = append(order, name)
			at = append(at, m.Now().Sub(start))
		}
	}

	m.AfterFunc(3*time.Second, record("c"))
	m.AfterFunc(time.Second, record("a"))
	m.AfterFunc(2*time.Second, record("b"))
	m.AfterFunc(2*time.Second, record("b2"))

	m.Advance(5 * time.Second)

	assert.Equal(t, []string{"a", "b", "b2", "c"}, order)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 2 * time.Second, 3 * time.Second}, at)
	assert.Equal(t, start.Add(5*time.Second), m.Now())
}

func TestManualStopAndReschedule(t *testing.T) {
	m := NewManual(time.Unix(0, 0))

	fired := 0
	timer := m.AfterFunc(time.Second, func() { fired++ })
	assert.Equal(t, 1, m.Pending())
	assert.True(t, timer.Stop())
	assert.False(t, timer.Stop())
	assert.Equal(t, 0, m.Pending())

	// A timer scheduled from a firing callback runs within the same Advance
	m.AfterFunc(time.Second, func() {
		fired++
		m.AfterFunc(time.Second, func() { fired += 10 })
	})
	m.Advance(2 * time.Second)

	assert.Equal(t, 11, fired)
}

func TestManualDrain(t *testing.T) {
	m := NewManual(time.Unix(0, 0))

	var got []int
	m.Post(func() {
		got = append(got, 1)
		m.Post(func() { got = append(got, 2) })
	})
	assert.Empty(t, got)

	m.Drain()
	assert.Equal(t, []int{1, 2}, got)
}
