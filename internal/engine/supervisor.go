// ABOUTME: Reconnect supervisor owning the connection lifecycle
// ABOUTME: Retries with multiplicative backoff and accepts external wake signals
package engine

import (
	"context"
	"fmt"
	"log"
	"math"
	"math/rand/v2"
	"time"

	"github.com/sidnlabs/klok/internal/loop"
	"github.com/sidnlabs/klok/internal/protocol"
)

const (
	// BackoffBase and BackoffSpread bound a fresh wait to [1000, 2000) ms
	BackoffBase   = 1000.0
	BackoffSpread = 1000.0
	// BackoffFactor grows the wait on each automatic retry
	BackoffFactor = 1.3
	// BackoffCap is the longest wait between retries in milliseconds
	BackoffCap = 120000.0
)

// Backoff is the wait before the next automatic reconnect attempt
type Backoff struct {
	WaitMs float64
}

// Reset sets a fresh wait from r in [0, 1)
func (b *Backoff) Reset(r float64) {
	b.WaitMs = BackoffBase + r*BackoffSpread
}

// Grow multiplies the wait by BackoffFactor up to BackoffCap
func (b *Backoff) Grow() {
	b.WaitMs = math.Min(b.WaitMs*BackoffFactor, BackoffCap)
}

// Wait returns the wait as a duration
func (b Backoff) Wait() time.Duration {
	return time.Duration(b.WaitMs * float64(time.Millisecond))
}

// SupervisorConfig holds the collaborators of a supervisor
type SupervisorConfig struct {
	Scheduler loop.Scheduler
	Transport Transport
	Session   *Session
	Metrics   *Metrics
	Rand      func() float64 // Uniform in [0, 1); defaults to math/rand/v2
}

// Supervisor connects the session and reconnects it when the connection is
// lost. All methods must be called on the scheduler's goroutine.
type Supervisor struct {
	sched     loop.Scheduler
	transport Transport
	session   *Session
	metrics   *Metrics
	rand      func() float64

	ctx    context.Context
	cancel context.CancelFunc

	backoff    Backoff
	state      ConnectionState
	generation uint64
	retryTimer loop.Timer
	stopped    bool
}

// NewSupervisor creates a disconnected supervisor
func NewSupervisor(config SupervisorConfig) *Supervisor {
	r := config.Rand
	if r == nil {
		r = rand.Float64
	}
	ctx, cancel := context.WithCancel(context.Background())

	s := &Supervisor{
		sched:     config.Scheduler,
		transport: config.Transport,
		session:   config.Session,
		metrics:   config.Metrics,
		rand:      r,
		ctx:       ctx,
		cancel:    cancel,
		state:     Disconnected,
	}
	s.backoff.Reset(s.rand())
	s.metrics.setBackoff(s.backoff.WaitMs)
	s.session.OnLost(s.lost)

	return s
}

// Backoff returns the current backoff
func (s *Supervisor) Backoff() Backoff {
	return s.backoff
}

// State returns the combined connection state
func (s *Supervisor) State() ConnectionState {
	if s.session.Active() {
		return s.session.State()
	}
	return s.state
}

// Start makes the first connection attempt
func (s *Supervisor) Start() {
	if s.stopped || s.state != Disconnected || s.session.Active() {
		return
	}
	s.connect()
}

// Wake attempts to connect at once, skipping any pending backoff wait. It
// is a no-op while an attempt is in flight or a connection is open.
func (s *Supervisor) Wake() {
	if s.stopped || s.state == Connecting || s.session.Active() {
		return
	}
	stopTimer(&s.retryTimer)
	log.Printf("Wake: reconnecting now")
	s.connect()
}

// Stop closes the connection and cancels every pending attempt
func (s *Supervisor) Stop() {
	if s.stopped {
		return
	}
	s.stopped = true
	s.generation++
	stopTimer(&s.retryTimer)
	s.session.Shutdown()
	s.cancel()
	s.state = Disconnected
}

func (s *Supervisor) connect() {
	s.state = Connecting
	s.generation++
	gen := s.generation

	// Events of superseded attempts are dropped
	current := func() bool {
		return gen == s.generation && !s.stopped
	}

	s.transport.Connect(s.ctx, Handlers{
		OnOpen: func(c Conn) {
			s.sched.Post(func() {
				if !current() {
					_ = c.Close()
					return
				}
				s.opened(c)
			})
		},
		OnError: func(err error) {
			s.sched.Post(func() {
				if current() {
					s.failed(err)
				}
			})
		},
		OnMessage: func(msg protocol.ServerTime) {
			s.sched.Post(func() {
				if current() && s.session.Active() {
					s.session.HandleMessage(msg)
				}
			})
		},
		OnClose: func(err error) {
			s.sched.Post(func() {
				if current() {
					s.closed(err)
				}
			})
		},
	})
}

func (s *Supervisor) opened(c Conn) {
	s.backoff.Reset(s.rand())
	s.metrics.setBackoff(s.backoff.WaitMs)
	s.state = AwaitingSamples
	s.session.Open(c)
}

func (s *Supervisor) failed(err error) {
	log.Printf("Connection attempt failed: %v", err)
	s.scheduleRetry()
}

func (s *Supervisor) closed(err error) {
	s.generation++
	s.session.Close(fmt.Errorf("%w: %v", ErrConnectionLost, err))
	s.scheduleRetry()
}

// lost is called by the session after it closed the connection itself
func (s *Supervisor) lost(error) {
	if s.stopped {
		return
	}
	s.generation++
	s.scheduleRetry()
}

func (s *Supervisor) scheduleRetry() {
	s.state = Reconnecting
	stopTimer(&s.retryTimer)
	log.Printf("Reconnecting in %v", s.backoff.Wait().Round(time.Millisecond))
	s.retryTimer = s.sched.AfterFunc(s.backoff.Wait(), s.retry)
}

func (s *Supervisor) retry() {
	s.retryTimer = nil
	s.backoff.Grow()
	s.metrics.setBackoff(s.backoff.WaitMs)
	s.metrics.reconnect()
	s.connect()
}
