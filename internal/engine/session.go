// ABOUTME: Sync session driving sampling rounds against the time server
// ABOUTME: Feeds replies into the sample window and publishes time delta, accuracy and leap state
package engine

import (
	"fmt"
	"log"
	"time"

	"github.com/sidnlabs/klok/internal/clock"
	"github.com/sidnlabs/klok/internal/loop"
	"github.com/sidnlabs/klok/internal/protocol"
	"github.com/sidnlabs/klok/internal/sync"
)

const (
	// ResyncInterval is the idle time between sampling rounds
	ResyncInterval = 60 * time.Second

	// DefaultRequestTimeout bounds the wait for a single reply
	DefaultRequestTimeout = 10 * time.Second
)

// monotonic reads the scheduler clock as milliseconds since an origin
type monotonic struct {
	sched  loop.Scheduler
	origin time.Time
}

func (m monotonic) Millis() float64 {
	return float64(m.sched.Now().Sub(m.origin)) / float64(time.Millisecond)
}

// SessionConfig holds the collaborators of a session
type SessionConfig struct {
	Scheduler      loop.Scheduler
	Origin         time.Time // Zero point of the monotonic clock
	Model          *clock.Model
	Display        Display
	Metrics        *Metrics
	WindowSize     int
	RequestTimeout time.Duration // Zero means DefaultRequestTimeout, negative disables
	ResyncInterval time.Duration // Zero means ResyncInterval
}

// Session runs the request/response exchange over one connection at a time.
// All methods must be called on the scheduler's goroutine.
type Session struct {
	sched          loop.Scheduler
	mono           monotonic
	model          *clock.Model
	display        Display
	metrics        *Metrics
	window         *sync.Window
	requestTimeout time.Duration
	resyncInterval time.Duration

	conn           Conn
	phase          ConnectionState
	pending        float64 // Send time of the outstanding request
	hasPending     bool
	timeDelta      float64
	hasDelta       bool
	unsynchronized bool
	resyncTimer    loop.Timer
	requestTimer   loop.Timer

	ticker *Ticker
	onLost func(error)
}

// NewSession creates a session with no connection
func NewSession(config SessionConfig) *Session {
	timeout := config.RequestTimeout
	if timeout == 0 {
		timeout = DefaultRequestTimeout
	}
	resync := config.ResyncInterval
	if resync <= 0 {
		resync = ResyncInterval
	}
	model := config.Model
	if model == nil {
		model = clock.NewModel()
	}

	return &Session{
		sched:          config.Scheduler,
		mono:           monotonic{sched: config.Scheduler, origin: config.Origin},
		model:          model,
		display:        config.Display,
		metrics:        config.Metrics,
		window:         sync.NewWindow(config.WindowSize),
		requestTimeout: timeout,
		resyncInterval: resync,
		phase:          Disconnected,
	}
}

// SetTicker sets the ticker started when the first round completes
func (s *Session) SetTicker(t *Ticker) {
	s.ticker = t
}

// OnLost sets the callback invoked when the session itself gives up a
// connection (send failure or request timeout)
func (s *Session) OnLost(f func(error)) {
	s.onLost = f
}

// State returns AwaitingSamples or Idle while connected, Disconnected otherwise
func (s *Session) State() ConnectionState {
	return s.phase
}

// Active reports whether the session owns an open connection
func (s *Session) Active() bool {
	return s.conn != nil
}

// TimeDelta returns the local monotonic clock minus reference time in
// milliseconds, and false before the first completed round
func (s *Session) TimeDelta() (float64, bool) {
	return s.timeDelta, s.hasDelta
}

// Unsynchronized reports whether the server last said its clock is not synchronized
func (s *Session) Unsynchronized() bool {
	return s.unsynchronized
}

// Open takes ownership of a fresh connection and starts the first round.
// The previous connection's delta is discarded.
func (s *Session) Open(conn Conn) {
	s.stopTimers()
	if s.ticker != nil {
		s.ticker.Stop()
	}

	s.conn = conn
	s.hasDelta = false
	s.unsynchronized = false
	s.display.SetConnected(true)
	s.metrics.setConnected(true)
	s.startRound("connection opened")
}

// HandleMessage processes one server reply
func (s *Session) HandleMessage(msg protocol.ServerTime) {
	if s.phase != AwaitingSamples || !s.hasPending {
		log.Printf("Dropping unsolicited time reply in state %s", s.phase)
		return
	}
	sent := s.pending
	if msg.C != nil && *msg.C != sent {
		log.Printf("Dropping stale time reply (c=%.3f, outstanding %.3f)", *msg.C, sent)
		return
	}

	s.hasPending = false
	stopTimer(&s.requestTimer)

	sample := sync.NewSample(sent, s.mono.Millis(), msg.S, msg.E)
	if full := s.window.Push(sample); !full {
		s.request()
		return
	}

	s.completeRound(msg.L)
}

// Resync starts a new sampling round if the session is idle
func (s *Session) Resync() {
	s.resyncTimer = nil
	if s.phase != Idle {
		return
	}
	s.startRound(fmt.Sprintf("redo after %v", s.resyncInterval))
}

// Stall discards the current round and starts a fresh one. It reports false
// when there is no connection to resync over.
func (s *Session) Stall() bool {
	if s.conn == nil {
		return false
	}

	s.metrics.stall()
	s.stopTimers()
	s.startRound("connected but clock runs unsteadily")
	return true
}

// Close ends the session after the transport reported the connection gone
func (s *Session) Close(err error) {
	s.teardown(err)
}

// Shutdown closes the connection without notifying the supervisor
func (s *Session) Shutdown() {
	conn := s.conn
	s.teardown(nil)
	if conn != nil {
		_ = conn.Close()
	}
	if s.ticker != nil {
		s.ticker.Stop()
	}
}

func (s *Session) startRound(reason string) {
	s.window.Reset()
	s.phase = AwaitingSamples
	log.Printf("Time request start. reason: %s", reason)
	s.request()
}

func (s *Session) request() {
	c := s.mono.Millis()
	s.pending, s.hasPending = c, true

	if err := s.conn.Send(protocol.ClientTime{C: c}); err != nil {
		s.lose(fmt.Errorf("%w: send failed: %v", ErrConnectionLost, err))
		return
	}

	stopTimer(&s.requestTimer)
	if s.requestTimeout > 0 {
		s.requestTimer = s.sched.AfterFunc(s.requestTimeout, func() {
			s.requestTimer = nil
			s.lose(fmt.Errorf("%w after %v", ErrRequestTimeout, s.requestTimeout))
		})
	}
}

func (s *Session) completeRound(leap protocol.LeapIndicator) {
	best, err := s.window.Best()
	if err != nil {
		log.Printf("Sampling round aborted: %v", err)
		s.display.SetConnected(false)
		return
	}
	accuracy, _ := s.window.AccuracyMs()

	s.timeDelta = best.Offset
	s.hasDelta = true
	s.model.ClearCorrection()
	s.display.SetAccuracy(accuracy)
	s.metrics.observeRound(best.Offset, accuracy)
	s.applyLeap(leap)

	if s.ticker != nil && !s.ticker.Running() {
		s.ticker.Start()
	}

	s.phase = Idle
	s.resyncTimer = s.sched.AfterFunc(s.resyncInterval, s.Resync)

	log.Printf("Sampling complete: delta=%.1fms rtt=%.1fms accuracy=±%dms leap=%s",
		best.Offset, best.RoundTrip, accuracy, leap)
}

func (s *Session) applyLeap(leap protocol.LeapIndicator) {
	prev := s.model.Leap()

	var state clock.LeapState
	switch leap {
	case protocol.LeapAddSecond:
		state = clock.LeapPendingInsert
	case protocol.LeapDelSecond:
		state = clock.LeapPendingDelete
	case protocol.LeapNotInSync:
		state = clock.LeapUnspecifiedFault
	default:
		state = clock.LeapNone
	}

	s.model.SetLeap(state)
	if state != prev {
		s.display.SetLeapInfo(state, nil)
	}

	if state == clock.LeapUnspecifiedFault {
		if !s.unsynchronized {
			log.Printf("Leap=3: %v", ErrServerUnsynchronized)
		}
		s.unsynchronized = true
		s.display.SetConnected(false)
		return
	}

	if s.unsynchronized {
		s.unsynchronized = false
		s.display.SetConnected(true)
	}
}

// lose gives up the connection on the session's own initiative
func (s *Session) lose(err error) {
	conn := s.conn
	s.teardown(err)
	if conn != nil {
		_ = conn.Close()
	}
	if s.onLost != nil {
		s.onLost(err)
	}
}

func (s *Session) teardown(err error) {
	if s.conn == nil {
		return
	}

	s.stopTimers()
	s.conn = nil
	s.hasPending = false
	s.unsynchronized = false
	s.window.Reset()
	s.phase = Disconnected
	s.display.SetConnected(false)
	s.metrics.setConnected(false)

	if err != nil {
		log.Printf("Session ended: %v", err)
	}
}

func (s *Session) stopTimers() {
	stopTimer(&s.resyncTimer)
	stopTimer(&s.requestTimer)
}

func stopTimer(t *loop.Timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}
