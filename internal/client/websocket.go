// ABOUTME: WebSocket transport to the reference time server
// ABOUTME: Handles dialing, echo requests and routing of server time replies
package client

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sidnlabs/klok/internal/protocol"
)

// DefaultPath is the time endpoint path on the server
const DefaultPath = "/time"

// ErrClosed is returned when sending on a closed connection
var ErrClosed = errors.New("connection closed")

// Config holds client configuration
type Config struct {
	ServerAddr       string
	Path             string
	Secure           bool // Use wss:// instead of ws://
	HandshakeTimeout time.Duration
}

// URL returns the websocket URL for the configuration
func (c Config) URL() string {
	scheme := "ws"
	if c.Secure {
		scheme = "wss"
	}
	path := c.Path
	if path == "" {
		path = DefaultPath
	}
	u := url.URL{Scheme: scheme, Host: c.ServerAddr, Path: path}
	return u.String()
}

// Handlers receive connection events. They are called from the connection's
// read goroutine.
type Handlers struct {
	OnMessage func(protocol.ServerTime)
	OnClose   func(error)
}

// Client dials connections to one time server
type Client struct {
	config Config
	dialer *websocket.Dialer
}

// NewClient creates a new WebSocket client
func NewClient(config Config) *Client {
	timeout := config.HandshakeTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		config: config,
		dialer: &websocket.Dialer{
			Proxy:            websocket.DefaultDialer.Proxy,
			HandshakeTimeout: timeout,
		},
	}
}

// Dial opens a connection. Reading starts only once Listen is called.
func (c *Client) Dial(ctx context.Context) (*Conn, error) {
	target := c.config.URL()
	log.Printf("Connecting to %s", target)

	ws, _, err := c.dialer.DialContext(ctx, target, nil)
	if err != nil {
		return nil, fmt.Errorf("dial failed: %w", err)
	}

	conn := &Conn{
		id:   uuid.New().String(),
		conn: ws,
	}
	log.Printf("Connection %s established to %s", conn.id, target)

	return conn, nil
}

// Conn is one websocket connection to the time server
type Conn struct {
	id     string
	conn   *websocket.Conn
	mu     sync.Mutex
	closed bool
}

// ID identifies the connection in logs
func (c *Conn) ID() string {
	return c.id
}

// Listen starts the read goroutine delivering replies to h
func (c *Conn) Listen(h Handlers) {
	go c.readMessages(h)
}

// Send writes an echo request
func (c *Conn) Send(msg protocol.ClientTime) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}

	return c.conn.WriteJSON(msg)
}

// Close closes the connection. Handlers are not notified of a local close.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	log.Printf("Connection %s closed", c.id)

	return c.conn.Close()
}

func (c *Conn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// readMessages reads and routes incoming messages
func (c *Conn) readMessages(h Handlers) {
	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if c.isClosed() {
				return
			}
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("Read error on %s: %v", c.id, err)
			}
			_ = c.Close()
			if h.OnClose != nil {
				h.OnClose(err)
			}
			return
		}

		if messageType != websocket.TextMessage {
			log.Printf("Unexpected WebSocket message type: %d", messageType)
			continue
		}

		msg, err := protocol.DecodeServerTime(data)
		if err != nil {
			log.Printf("Dropping message on %s: %v", c.id, err)
			continue
		}

		if h.OnMessage != nil {
			h.OnMessage(msg)
		}
	}
}
