// ABOUTME: Tests for WebSocket client implementation
// ABOUTME: Tests URL building, echo exchange and close notification
package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sidnlabs/klok/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigURL(t *testing.T) {
	assert.Equal(t, "ws://localhost:8123/time", Config{ServerAddr: "localhost:8123"}.URL())
	assert.Equal(t, "wss://klok.example:443/tijd", Config{ServerAddr: "klok.example:443", Path: "/tijd", Secure: true}.URL())
}

// newTimeServer answers each request with the echoed c and a fixed server time.
// Sending "close" makes it close the connection.
func newTimeServer(t *testing.T) *httptest.Server {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()

		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			if string(data) == "close" {
				_ = ws.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
				return
			}
			req, err := protocol.DecodeClientTime(data)
			if err != nil {
				continue
			}
			c := req.C
			_ = ws.WriteJSON(protocol.ServerTime{C: &c, S: 1700000000000, E: 1, L: protocol.LeapDelSecond})
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dialTest(t *testing.T, srv *httptest.Server) *Conn {
	c := NewClient(Config{ServerAddr: strings.TrimPrefix(srv.URL, "http://")})
	conn, err := c.Dial(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, conn.ID())
	return conn
}

func TestEchoExchange(t *testing.T) {
	conn := dialTest(t, newTimeServer(t))
	defer conn.Close()

	replies := make(chan protocol.ServerTime, 1)
	conn.Listen(Handlers{OnMessage: func(m protocol.ServerTime) { replies <- m }})

	require.NoError(t, conn.Send(protocol.ClientTime{C: 123.5}))

	select {
	case m := <-replies:
		require.NotNil(t, m.C)
		assert.Equal(t, 123.5, *m.C)
		assert.Equal(t, 1700000000000.0, m.S)
		assert.Equal(t, protocol.LeapDelSecond, m.L)
	case <-time.After(2 * time.Second):
		t.Fatal("no reply")
	}
}

func TestRemoteCloseNotifies(t *testing.T) {
	conn := dialTest(t, newTimeServer(t))

	closed := make(chan error, 1)
	conn.Listen(Handlers{OnClose: func(err error) { closed <- err }})

	conn.mu.Lock()
	require.NoError(t, conn.conn.WriteMessage(websocket.TextMessage, []byte("close")))
	conn.mu.Unlock()

	select {
	case err := <-closed:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("close not reported")
	}

	assert.ErrorIs(t, conn.Send(protocol.ClientTime{C: 1}), ErrClosed)
}

func TestLocalCloseDoesNotNotify(t *testing.T) {
	conn := dialTest(t, newTimeServer(t))

	closed := make(chan error, 1)
	conn.Listen(Handlers{OnClose: func(err error) { closed <- err }})

	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())

	select {
	case <-closed:
		t.Fatal("local close was reported")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestDialFailure(t *testing.T) {
	c := NewClient(Config{ServerAddr: "127.0.0.1:1", HandshakeTimeout: time.Second})
	_, err := c.Dial(context.Background())
	assert.Error(t, err)
}
