// ABOUTME: Transport abstraction between the engine and the websocket client
// ABOUTME: Turns blocking dials into open, error, message and close callbacks
package engine

import (
	"context"

	"github.com/sidnlabs/klok/internal/client"
	"github.com/sidnlabs/klok/internal/protocol"
)

// Conn is an open connection owned by the session
type Conn interface {
	Send(msg protocol.ClientTime) error
	Close() error
}

// Handlers receive the outcome of a connection attempt and the events of the
// connection. They may be called from any goroutine.
type Handlers struct {
	OnOpen    func(Conn)
	OnError   func(error)
	OnMessage func(protocol.ServerTime)
	OnClose   func(error)
}

// Transport starts connection attempts without blocking the caller
type Transport interface {
	Connect(ctx context.Context, h Handlers)
}

// WebsocketTransport connects through a websocket client
type WebsocketTransport struct {
	client *client.Client
}

// NewWebsocketTransport creates a transport dialing with c
func NewWebsocketTransport(c *client.Client) *WebsocketTransport {
	return &WebsocketTransport{client: c}
}

// Connect dials in the background. OnOpen is delivered before any message
// or close event of the new connection.
func (t *WebsocketTransport) Connect(ctx context.Context, h Handlers) {
	go func() {
		conn, err := t.client.Dial(ctx)
		if err != nil {
			h.OnError(err)
			return
		}
		h.OnOpen(conn)
		conn.Listen(client.Handlers{
			OnMessage: h.OnMessage,
			OnClose:   h.OnClose,
		})
	}()
}
