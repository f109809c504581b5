// ABOUTME: Reference time server for klok clocks
// ABOUTME: Answers websocket echo requests with upstream time, leap indicator and uncertainty
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sidnlabs/klok/internal/discovery"
	"github.com/sidnlabs/klok/internal/metrics"
	"github.com/sidnlabs/klok/internal/protocol"
)

const (
	// DefaultPort is the listening port when none is configured
	DefaultPort = 8123

	// DefaultPath is the websocket endpoint
	DefaultPath = "/time"

	// DefaultMetricsPath serves Prometheus metrics
	DefaultMetricsPath = "/metrics"

	writeDeadline = 10 * time.Second
)

// Config holds server configuration
type Config struct {
	Host        string
	Port        int
	Name        string
	Path        string
	MetricsPath string
	StaticDir   string // Served at / when set
	CertFile    string // TLS is enabled when both CertFile and KeyFile are set
	KeyFile     string
	EnableMDNS  bool
	Debug       bool
	UseTUI      bool
}

// TLS reports whether the server listens with TLS
func (c Config) TLS() bool {
	return c.CertFile != "" && c.KeyFile != ""
}

// Server is the klok time server
type Server struct {
	config   Config
	serverID string
	source   TimeSource

	// WebSocket upgrader
	upgrader websocket.Upgrader

	// HTTP server
	httpServer *http.Server
	mux        *http.ServeMux

	registry *prometheus.Registry
	metrics  *serverMetrics

	// Client management
	clients   map[string]*Client
	clientsMu sync.RWMutex

	served   atomic.Uint64
	lastLeap atomic.Uint32

	mdnsManager *discovery.Manager
	tui         *ServerTUI
	startTime   time.Time

	// Control
	stopChan   chan struct{}
	stopOnce   sync.Once
	shutdownMu sync.RWMutex
	isShutdown bool
	wg         sync.WaitGroup
}

// Client is one connected clock
type Client struct {
	ID          string
	RemoteAddr  string
	ConnectedAt time.Time
	served      atomic.Uint64
}

// Served returns the number of requests answered on this connection
func (c *Client) Served() uint64 {
	return c.served.Load()
}

type serverMetrics struct {
	reqsServed  prometheus.Counter
	reqsInvalid prometheus.Counter
	ntpErrors   prometheus.Counter
	connections prometheus.Gauge
	leap        prometheus.Gauge
}

func newServerMetrics(reg prometheus.Registerer) *serverMetrics {
	f := promauto.With(reg)
	return &serverMetrics{
		reqsServed: f.NewCounter(prometheus.CounterOpts{
			Name: metrics.ServerReqsServedN,
			Help: metrics.ServerReqsServedH,
		}),
		reqsInvalid: f.NewCounter(prometheus.CounterOpts{
			Name: metrics.ServerReqsInvalidN,
			Help: metrics.ServerReqsInvalidH,
		}),
		ntpErrors: f.NewCounter(prometheus.CounterOpts{
			Name: metrics.ServerNTPErrorsN,
			Help: metrics.ServerNTPErrorsH,
		}),
		connections: f.NewGauge(prometheus.GaugeOpts{
			Name: metrics.ServerConnsN,
			Help: metrics.ServerConnsH,
		}),
		leap: f.NewGauge(prometheus.GaugeOpts{
			Name: metrics.ServerLeapN,
			Help: metrics.ServerLeapH,
		}),
	}
}

// New creates a server answering with time from source
func New(config Config, source TimeSource) *Server {
	if config.Port == 0 {
		config.Port = DefaultPort
	}
	if config.Path == "" {
		config.Path = DefaultPath
	}
	if config.MetricsPath == "" {
		config.MetricsPath = DefaultMetricsPath
	}
	if config.Name == "" {
		config.Name = "klok"
	}
	if source == nil {
		source = LocalSource{}
	}

	registry := prometheus.NewRegistry()

	s := &Server{
		config:   config,
		serverID: uuid.New().String(),
		source:   source,
		mux:      http.NewServeMux(),
		upgrader: websocket.Upgrader{
			// Clocks are served from any origin
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		registry:  registry,
		metrics:   newServerMetrics(registry),
		clients:   make(map[string]*Client),
		startTime: time.Now(),
		stopChan:  make(chan struct{}),
	}

	s.mux.HandleFunc(config.Path, s.ServeTime)
	s.mux.Handle(config.MetricsPath, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	if config.StaticDir != "" {
		s.mux.Handle("/", http.FileServer(http.Dir(config.StaticDir)))
	}

	return s
}

// Handler returns the server's HTTP handler
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start runs the server until Stop is called, the TUI quits or listening fails
func (s *Server) Start() error {
	if s.config.UseTUI {
		s.tui = NewServerTUI(s.Status)

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.tui.Start(); err != nil {
				log.Printf("TUI error: %v", err)
			}
		}()
	}

	log.Printf("Server starting: %s (ID: %s)", s.config.Name, s.serverID)

	if s.config.EnableMDNS {
		s.mdnsManager = discovery.NewManager(discovery.Config{
			ServiceName: s.config.Name,
			Port:        s.config.Port,
			Path:        s.config.Path,
			Secure:      s.config.TLS(),
		})

		if err := s.mdnsManager.Advertise(); err != nil {
			log.Printf("Failed to start mDNS advertisement: %v", err)
		} else {
			log.Printf("mDNS advertisement started")
		}
	}

	addr := net.JoinHostPort(s.config.Host, fmt.Sprintf("%d", s.config.Port))
	scheme := "ws"
	if s.config.TLS() {
		scheme = "wss"
	}
	log.Printf("Time server listening on %s. Use %s://%s%s for connection.", addr, scheme, addr, s.config.Path)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		var err error
		if s.config.TLS() {
			err = s.httpServer.ListenAndServeTLS(s.config.CertFile, s.config.KeyFile)
		} else {
			err = s.httpServer.ListenAndServe()
		}
		if err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	var serverErr error
	var tuiQuitChan <-chan struct{}
	if s.tui != nil {
		tuiQuitChan = s.tui.QuitChan()
	}

	select {
	case <-s.stopChan:
		log.Printf("Server shutting down...")
	case <-tuiQuitChan:
		log.Printf("TUI quit requested, shutting down...")
	case err := <-errChan:
		log.Printf("HTTP server error: %v", err)
		serverErr = err
	}

	s.shutdownMu.Lock()
	s.isShutdown = true
	s.shutdownMu.Unlock()

	if s.tui != nil {
		s.tui.Stop()
	}

	if s.mdnsManager != nil {
		s.mdnsManager.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	s.wg.Wait()
	log.Printf("Server stopped cleanly")

	if serverErr != nil {
		return fmt.Errorf("HTTP server failed: %w", serverErr)
	}
	return nil
}

// Stop stops the server
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
}

// ServeTime handles one clock connection: every parseable request is
// answered with fresh upstream time, garbage is skipped
func (s *Server) ServeTime(w http.ResponseWriter, r *http.Request) {
	s.shutdownMu.RLock()
	shutdown := s.isShutdown
	s.shutdownMu.RUnlock()
	if shutdown {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	client := &Client{
		ID:          uuid.New().String(),
		RemoteAddr:  r.RemoteAddr,
		ConnectedAt: time.Now(),
	}
	s.addClient(client)
	defer s.removeClient(client)

	log.Printf("New time client %s from %s", client.ID, client.RemoteAddr)

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("WebSocket read error from %s: %v", client.RemoteAddr, err)
			}
			return
		}

		req, err := protocol.DecodeClientTime(data)
		if err != nil {
			s.metrics.reqsInvalid.Inc()
			log.Printf("Skipping garbage message from %s: %v", client.RemoteAddr, err)
			continue
		}

		resp := s.readTime()
		resp.C = &req.C

		out, err := json.Marshal(resp)
		if err != nil {
			log.Printf("Error marshaling server time: %v", err)
			return
		}

		client.served.Add(1)
		s.served.Add(1)
		s.metrics.reqsServed.Inc()

		_ = conn.SetWriteDeadline(time.Now().Add(writeDeadline))
		if err := conn.WriteMessage(mt, out); err != nil {
			log.Printf("WebSocket write error to %s: %v", client.RemoteAddr, err)
			return
		}

		if s.config.Debug {
			log.Printf("[DEBUG] %s: c=%.3f s=%.3f e=%.3f l=%d", client.ID, req.C, resp.S, resp.E, resp.L)
		}
	}
}

// readTime reads the time source, falling back to the local clock with no
// leap warning when the source fails
func (s *Server) readTime() protocol.ServerTime {
	reading, err := s.source.Read()
	if err != nil {
		s.metrics.ntpErrors.Inc()
		log.Printf("Failed to read upstream time: %v. Using local clock and no leap warning.", err)
		reading = TimeReading{Time: time.Now()}
	}

	if !reading.Leap.Valid() {
		log.Printf("Unexpected leap indicator %d received, using %s", uint8(reading.Leap), protocol.LeapNoWarning)
		reading.Leap = protocol.LeapNoWarning
	}

	// Announcements are logged on change only
	if prev := protocol.LeapIndicator(s.lastLeap.Swap(uint32(reading.Leap))); prev != reading.Leap {
		switch reading.Leap {
		case protocol.LeapAddSecond, protocol.LeapDelSecond:
			log.Printf("Leap second announcement detected: %s", reading.Leap)
		case protocol.LeapNotInSync:
			log.Printf("Upstream reports it is not synchronized")
		default:
			log.Printf("Leap indicator back to %s", reading.Leap)
		}
	}
	s.metrics.leap.Set(float64(reading.Leap))

	return protocol.ServerTime{
		S: unixMillis(reading.Time),
		E: reading.Uncertainty,
		L: reading.Leap,
	}
}

// unixMillis keeps whole milliseconds exact; a float64 of UnixNano is not
func unixMillis(t time.Time) float64 {
	return float64(t.UnixMilli()) + float64(t.Nanosecond()%int(time.Millisecond))/float64(time.Millisecond)
}

func (s *Server) addClient(c *Client) {
	s.clientsMu.Lock()
	s.clients[c.ID] = c
	s.clientsMu.Unlock()
	s.metrics.connections.Inc()
}

func (s *Server) removeClient(c *Client) {
	s.clientsMu.Lock()
	delete(s.clients, c.ID)
	s.clientsMu.Unlock()
	s.metrics.connections.Dec()
	log.Printf("Time client %s disconnected after %d requests", c.ID, c.Served())
}

// Status returns a snapshot for display
func (s *Server) Status() ServerStatus {
	s.clientsMu.RLock()
	clients := make([]ClientInfo, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, ClientInfo{
			ID:          c.ID,
			RemoteAddr:  c.RemoteAddr,
			ConnectedAt: c.ConnectedAt,
			Served:      c.Served(),
		})
	}
	s.clientsMu.RUnlock()

	sort.Slice(clients, func(i, j int) bool {
		return clients[i].ConnectedAt.Before(clients[j].ConnectedAt)
	})

	return ServerStatus{
		Name:    s.config.Name,
		Port:    s.config.Port,
		Uptime:  time.Since(s.startTime),
		Leap:    protocol.LeapIndicator(s.lastLeap.Load()),
		Served:  s.served.Load(),
		Clients: clients,
	}
}
