// ABOUTME: Clock application orchestration
// ABOUTME: Coordinates discovery, the sync engine, the display and metrics
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sidnlabs/klok/internal/client"
	"github.com/sidnlabs/klok/internal/discovery"
	"github.com/sidnlabs/klok/internal/engine"
	"github.com/sidnlabs/klok/internal/loop"
	"github.com/sidnlabs/klok/internal/ui"
)

// DefaultDiscoveryTimeout bounds the wait for an mDNS answer
const DefaultDiscoveryTimeout = 10 * time.Second

// ErrNoServer is returned when discovery finds no time server
var ErrNoServer = errors.New("no time server found")

// Config holds clock configuration
type Config struct {
	ServerAddr       string // Empty means discover via mDNS
	Path             string
	Secure           bool
	RequestTimeout   time.Duration
	DiscoveryTimeout time.Duration
	MetricsAddr      string // Empty disables the metrics endpoint
	UseTUI           bool
}

// Clock represents the clock application
type Clock struct {
	config   Config
	registry *prometheus.Registry
	loop     *loop.Loop
	control  *ui.Control
	ready    chan struct{}
	finished chan struct{}
	engine   *engine.Engine
	tuiProg  *tea.Program
	metrics  *http.Server
	ctx      context.Context
	cancel   context.CancelFunc
}

// New creates a new clock
func New(config Config) *Clock {
	if config.DiscoveryTimeout <= 0 {
		config.DiscoveryTimeout = DefaultDiscoveryTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Clock{
		config:   config,
		registry: prometheus.NewRegistry(),
		loop:     loop.New(nil),
		control:  ui.NewControl(),
		ready:    make(chan struct{}),
		finished: make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Control returns the channels used to wake or quit the clock
func (c *Clock) Control() *ui.Control {
	return c.control
}

// Run resolves the server, keeps the display in sync and blocks until Stop
// is called or the user quits
func (c *Clock) Run() error {
	target, err := c.resolve()
	if err != nil {
		return err
	}

	var display engine.Display
	if c.config.UseTUI {
		tuiProg, err := ui.Run(c.control, target.ServerAddr)
		if err != nil {
			return fmt.Errorf("failed to start TUI: %w", err)
		}
		c.tuiProg = tuiProg
		display = ui.NewDisplay(tuiProg.Send)

		go func() {
			if _, err := tuiProg.Run(); err != nil {
				log.Printf("TUI error: %v", err)
			}
			select {
			case c.control.Quit <- struct{}{}:
			default:
			}
		}()
	} else {
		display = engine.NewLogDisplay()
	}

	if c.config.MetricsAddr != "" {
		c.serveMetrics()
	}

	c.engine = engine.New(engine.Config{
		Transport:      engine.NewWebsocketTransport(client.NewClient(target)),
		Display:        display,
		Scheduler:      c.loop,
		RequestTimeout: c.config.RequestTimeout,
		Metrics:        engine.NewMetrics(c.registry),
	})
	close(c.ready)
	defer close(c.finished)

	loopCtx, stopLoop := context.WithCancel(context.Background())
	loopDone := make(chan struct{})
	go func() {
		_ = c.loop.Run(loopCtx)
		close(loopDone)
	}()

	c.engine.Start()

	for running := true; running; {
		select {
		case <-c.control.Wake:
			log.Printf("Wake requested")
			c.engine.Wake()
		case <-c.control.Quit:
			log.Printf("Received quit signal")
			running = false
		case <-c.ctx.Done():
			running = false
		}
	}

	// Posted in order, so the engine is stopped before the loop exits
	c.engine.Stop()
	c.loop.Post(stopLoop)
	<-loopDone

	c.shutdown()
	return nil
}

// State returns the connection state, or Disconnected while the engine is
// not running
func (c *Clock) State() engine.ConnectionState {
	select {
	case <-c.ready:
	default:
		return engine.Disconnected
	}

	state := make(chan engine.ConnectionState, 1)
	c.loop.Post(func() { state <- c.engine.State() })
	select {
	case s := <-state:
		return s
	case <-c.finished:
		return engine.Disconnected
	case <-c.ctx.Done():
		return engine.Disconnected
	}
}

// Registry returns the registry holding the clock's metrics
func (c *Clock) Registry() *prometheus.Registry {
	return c.registry
}

// Stop stops the clock
func (c *Clock) Stop() {
	c.cancel()
}

// resolve returns the client configuration of the configured or discovered server
func (c *Clock) resolve() (client.Config, error) {
	target := client.Config{
		ServerAddr: c.config.ServerAddr,
		Path:       c.config.Path,
		Secure:     c.config.Secure,
	}
	if target.ServerAddr != "" {
		return target, nil
	}

	log.Printf("Starting server discovery...")
	disc := discovery.NewManager(discovery.Config{})
	defer disc.Stop()

	if err := disc.Browse(); err != nil {
		return target, fmt.Errorf("discovery failed: %w", err)
	}

	select {
	case server := <-disc.Servers():
		log.Printf("Discovered server %s at %s", server.Name, server.Addr())
		return fromDiscovery(target, server), nil
	case <-time.After(c.config.DiscoveryTimeout):
		return target, fmt.Errorf("%w after %s", ErrNoServer, c.config.DiscoveryTimeout)
	case <-c.ctx.Done():
		return target, c.ctx.Err()
	}
}

// fromDiscovery fills the connection target from an advertisement. An
// explicitly configured path wins over the advertised one.
func fromDiscovery(target client.Config, server *discovery.ServerInfo) client.Config {
	target.ServerAddr = server.Addr()
	if target.Path == "" {
		target.Path = server.Path
	}
	target.Secure = target.Secure || server.Secure
	return target
}

// serveMetrics exposes the registry over HTTP
func (c *Clock) serveMetrics() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{}))
	c.metrics = &http.Server{Addr: c.config.MetricsAddr, Handler: mux}

	go func() {
		log.Printf("Serving metrics on %s/metrics", c.config.MetricsAddr)
		if err := c.metrics.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("Metrics server error: %v", err)
		}
	}()
}

func (c *Clock) shutdown() {
	if c.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.metrics.Shutdown(ctx); err != nil {
			log.Printf("Metrics shutdown error: %v", err)
		}
	}

	if c.tuiProg != nil {
		c.tuiProg.Quit()
	}

	log.Printf("Clock stopped")
}
