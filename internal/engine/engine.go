// ABOUTME: Synchronization engine wiring session, ticker and supervisor together
// ABOUTME: Public entry points post onto the scheduler and are safe from any goroutine
package engine

import (
	"time"

	"github.com/sidnlabs/klok/internal/clock"
	"github.com/sidnlabs/klok/internal/loop"
	"github.com/sidnlabs/klok/internal/sync"
)

// Config holds engine configuration
type Config struct {
	Transport      Transport
	Display        Display
	Scheduler      loop.Scheduler
	RequestTimeout time.Duration    // Zero means DefaultRequestTimeout, negative disables
	ResyncInterval time.Duration    // Zero means ResyncInterval
	Rand           func() float64   // Backoff jitter source
	Metrics        *Metrics         // Optional
	Wall           func() time.Time // System clock for stall detection; optional
}

// Engine keeps one display in sync with the reference time server
type Engine struct {
	sched      loop.Scheduler
	session    *Session
	ticker     *Ticker
	supervisor *Supervisor
}

// New creates a stopped engine
func New(config Config) *Engine {
	origin := config.Scheduler.Now()
	model := clock.NewModel()

	session := NewSession(SessionConfig{
		Scheduler:      config.Scheduler,
		Origin:         origin,
		Model:          model,
		Display:        config.Display,
		Metrics:        config.Metrics,
		WindowSize:     sync.DefaultCapacity,
		RequestTimeout: config.RequestTimeout,
		ResyncInterval: config.ResyncInterval,
	})

	ticker := NewTicker(TickerConfig{
		Scheduler: config.Scheduler,
		Origin:    origin,
		Model:     model,
		Display:   config.Display,
		Source:    session,
		OnStall:   session.Stall,
		Wall:      config.Wall,
	})
	session.SetTicker(ticker)

	supervisor := NewSupervisor(SupervisorConfig{
		Scheduler: config.Scheduler,
		Transport: config.Transport,
		Session:   session,
		Metrics:   config.Metrics,
		Rand:      config.Rand,
	})

	return &Engine{
		sched:      config.Scheduler,
		session:    session,
		ticker:     ticker,
		supervisor: supervisor,
	}
}

// Start connects to the server
func (e *Engine) Start() {
	e.sched.Post(e.supervisor.Start)
}

// Wake reconnects at once if the connection is down
func (e *Engine) Wake() {
	e.sched.Post(e.supervisor.Wake)
}

// Stop disconnects and stops ticking
func (e *Engine) Stop() {
	e.sched.Post(e.supervisor.Stop)
}

// State returns the connection state. Call it on the scheduler's goroutine.
func (e *Engine) State() ConnectionState {
	return e.supervisor.State()
}

// Session returns the sync session
func (e *Engine) Session() *Session {
	return e.session
}

// Supervisor returns the reconnect supervisor
func (e *Engine) Supervisor() *Supervisor {
	return e.supervisor
}

// Ticker returns the tick scheduler
func (e *Engine) Ticker() *Ticker {
	return e.ticker
}
