// ABOUTME: Tests for the time server
// ABOUTME: Exercises the websocket endpoint, time source fallback, metrics and static files
package server

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/beevik/ntp"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sidnlabs/klok/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	mu      sync.Mutex
	reading TimeReading
	err     error
}

func (f *fakeSource) Read() (TimeReading, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reading, f.err
}

func (f *fakeSource) set(r TimeReading, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reading, f.err = r, err
}

var fixedTime = time.Date(2024, 6, 30, 12, 0, 0, 500_000_000, time.UTC)

func startTestServer(t *testing.T, config Config, source TimeSource) (*Server, *httptest.Server) {
	s := New(config, source)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + DefaultPath
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return ws
}

func exchange(t *testing.T, ws *websocket.Conn, c float64) protocol.ServerTime {
	require.NoError(t, ws.WriteJSON(protocol.ClientTime{C: c}))
	return readReply(t, ws)
}

func readReply(t *testing.T, ws *websocket.Conn) protocol.ServerTime {
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)
	msg, err := protocol.DecodeServerTime(data)
	require.NoError(t, err)
	return msg
}

func TestServeTimeEchoes(t *testing.T) {
	source := &fakeSource{reading: TimeReading{Time: fixedTime, Leap: protocol.LeapAddSecond, Uncertainty: 2.5}}
	s, ts := startTestServer(t, Config{}, source)
	ws := dial(t, ts)

	reply := exchange(t, ws, 1234.5)
	require.NotNil(t, reply.C)
	assert.Equal(t, 1234.5, *reply.C)
	assert.Equal(t, float64(fixedTime.UnixMilli()), reply.S)
	assert.Equal(t, 2.5, reply.E)
	assert.Equal(t, protocol.LeapAddSecond, reply.L)

	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.reqsServed))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.leap))
}

func TestServeTimeSkipsGarbage(t *testing.T) {
	source := &fakeSource{reading: TimeReading{Time: fixedTime}}
	s, ts := startTestServer(t, Config{}, source)
	ws := dial(t, ts)

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte("not json")))
	reply := exchange(t, ws, 7)
	require.NotNil(t, reply.C)
	assert.Equal(t, 7.0, *reply.C)

	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.reqsInvalid))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.reqsServed))
}

func TestServeTimeFallsBackToLocalClock(t *testing.T) {
	source := &fakeSource{err: errors.New("i/o timeout")}
	s, ts := startTestServer(t, Config{}, source)
	ws := dial(t, ts)

	before := time.Now()
	reply := exchange(t, ws, 1)
	after := time.Now()

	assert.Equal(t, protocol.LeapNoWarning, reply.L)
	assert.Zero(t, reply.E)
	assert.GreaterOrEqual(t, reply.S, float64(before.UnixMilli()))
	assert.LessOrEqual(t, reply.S, float64(after.UnixMilli()+1))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.ntpErrors))
}

func TestServeTimeLeapIndicators(t *testing.T) {
	source := &fakeSource{}
	_, ts := startTestServer(t, Config{}, source)
	ws := dial(t, ts)

	tests := []struct {
		upstream protocol.LeapIndicator
		want     protocol.LeapIndicator
	}{
		{protocol.LeapNotInSync, protocol.LeapNotInSync},
		{protocol.LeapDelSecond, protocol.LeapDelSecond},
		{protocol.LeapIndicator(7), protocol.LeapNoWarning},
		{protocol.LeapNoWarning, protocol.LeapNoWarning},
	}

	for _, tt := range tests {
		source.set(TimeReading{Time: fixedTime, Leap: tt.upstream}, nil)
		assert.Equal(t, tt.want, exchange(t, ws, 1).L, "upstream %d", uint8(tt.upstream))
	}
}

func TestStatusListsClients(t *testing.T) {
	source := &fakeSource{reading: TimeReading{Time: fixedTime}}
	s, ts := startTestServer(t, Config{Name: "test"}, source)
	ws := dial(t, ts)
	exchange(t, ws, 1)
	exchange(t, ws, 2)

	status := s.Status()
	assert.Equal(t, "test", status.Name)
	assert.Equal(t, DefaultPort, status.Port)
	assert.Equal(t, uint64(2), status.Served)
	require.Len(t, status.Clients, 1)
	assert.Equal(t, uint64(2), status.Clients[0].Served)
	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.connections))

	ws.Close()
	assert.Eventually(t, func() bool { return len(s.Status().Clients) == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestMetricsEndpoint(t *testing.T) {
	source := &fakeSource{reading: TimeReading{Time: fixedTime}}
	_, ts := startTestServer(t, Config{}, source)
	exchange(t, dial(t, ts), 1)

	resp, err := http.Get(ts.URL + DefaultMetricsPath)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), "klok_server_reqs_served 1")
}

func TestStaticFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>klok</h1>"), 0o644))
	_, ts := startTestServer(t, Config{StaticDir: dir}, nil)

	resp, err := http.Get(ts.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "<h1>klok</h1>", string(body))
}

func TestNoStaticFilesByDefault(t *testing.T) {
	_, ts := startTestServer(t, Config{}, nil)

	resp, err := http.Get(ts.URL + "/index.html")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStartStop(t *testing.T) {
	s := New(Config{Host: "127.0.0.1", Port: 38123}, nil)

	done := make(chan error, 1)
	go func() { done <- s.Start() }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://127.0.0.1:38123" + DefaultMetricsPath)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return true
	}, 2*time.Second, 20*time.Millisecond)

	s.Stop()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestNTPSourceRead(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	src := NewNTPSource("", 0, true)
	assert.Equal(t, DefaultNTPHost, src.Host)
	assert.Equal(t, DefaultNTPTimeout, src.Timeout)

	var gotHost string
	var gotTimeout time.Duration
	src.now = func() time.Time { return now }
	src.query = func(host string, opt ntp.QueryOptions) (*ntp.Response, error) {
		gotHost, gotTimeout = host, opt.Timeout
		return &ntp.Response{
			ClockOffset:  -250 * time.Millisecond,
			Leap:         ntp.LeapAddSecond,
			RootDistance: 1500 * time.Microsecond,
		}, nil
	}

	r, err := src.Read()
	require.NoError(t, err)
	assert.Equal(t, DefaultNTPHost, gotHost)
	assert.Equal(t, DefaultNTPTimeout, gotTimeout)
	assert.Equal(t, now.Add(-250*time.Millisecond), r.Time)
	assert.Equal(t, protocol.LeapAddSecond, r.Leap)
	assert.Equal(t, 1.5, r.Uncertainty)

	src.ReportUncertainty = false
	r, err = src.Read()
	require.NoError(t, err)
	assert.Zero(t, r.Uncertainty)
}

func TestNTPSourceError(t *testing.T) {
	queryErr := errors.New("no route to host")
	src := NewNTPSource("ntp.example", time.Second, false)
	src.query = func(string, ntp.QueryOptions) (*ntp.Response, error) {
		return nil, queryErr
	}

	_, err := src.Read()
	assert.ErrorIs(t, err, queryErr)
	assert.Contains(t, err.Error(), "ntp.example")
}

func TestTUIModel(t *testing.T) {
	polls := 0
	m := tuiModel{
		poll: func() ServerStatus {
			polls++
			return ServerStatus{Name: "klok", Port: 8123, Served: 42, Leap: protocol.LeapDelSecond,
				Clients: []ClientInfo{{RemoteAddr: "10.0.0.2:5000", Served: 42}}}
		},
		quitChan: make(chan struct{}, 1),
	}

	next, cmd := m.Update(tickMsg(time.Now()))
	assert.NotNil(t, cmd)
	assert.Equal(t, 1, polls)

	view := next.View()
	assert.Contains(t, view, "klok")
	assert.Contains(t, view, "42")
	assert.Contains(t, view, "delete")
	assert.Contains(t, view, "10.0.0.2:5000")

	quit, _ := next.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	assert.True(t, quit.(tuiModel).quitting)
	select {
	case <-m.quitChan:
	default:
		t.Fatal("quit not signalled")
	}
}
