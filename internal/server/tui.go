// ABOUTME: Server TUI for displaying connected clocks and request stats
// ABOUTME: Real-time server status display using bubbletea
package server

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/sidnlabs/klok/internal/protocol"
)

// ServerTUI manages the server TUI
type ServerTUI struct {
	program  *tea.Program
	status   func() ServerStatus
	quitChan chan struct{} // Signal to stop the server
}

// ServerStatus holds server state for TUI
type ServerStatus struct {
	Name    string
	Port    int
	Uptime  time.Duration
	Leap    protocol.LeapIndicator
	Served  uint64
	Clients []ClientInfo
}

// ClientInfo holds client information for display
type ClientInfo struct {
	ID          string
	RemoteAddr  string
	ConnectedAt time.Time
	Served      uint64
}

// tuiModel is the bubbletea model for server TUI
type tuiModel struct {
	status   ServerStatus
	poll     func() ServerStatus
	quitting bool
	quitChan chan struct{} // Channel to signal server stop
}

type tickMsg time.Time

func (m tuiModel) Init() tea.Cmd {
	return tickEvery()
}

func tickEvery() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			m.quitting = true
			select {
			case m.quitChan <- struct{}{}:
			default:
			}
			return m, tea.Quit
		}

	case tickMsg:
		m.status = m.poll()
		return m, tickEvery()
	}

	return m, nil
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205")).MarginBottom(1)
	labelStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86")).Width(10)
	valueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("250"))
	alertStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	clocksStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("220"))
)

func (m tuiModel) View() string {
	if m.quitting {
		return "Shutting down server...\n"
	}

	st := m.status
	leap := valueStyle.Render(st.Leap.String())
	if st.Leap != protocol.LeapNoWarning {
		leap = alertStyle.Render(st.Leap.String())
	}

	rows := [][2]string{
		{"Server", valueStyle.Render(st.Name)},
		{"Port", valueStyle.Render(fmt.Sprint(st.Port))},
		{"Uptime", valueStyle.Render(st.Uptime.Round(time.Second).String())},
		{"Leap", leap},
		{"Requests", valueStyle.Render(fmt.Sprint(st.Served))},
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", titleStyle.Render("klok Time Server"))
	for _, row := range rows {
		fmt.Fprintf(&b, "%s%s\n", labelStyle.Render(row[0]+":"), row[1])
	}

	fmt.Fprintf(&b, "\n%s\n\n", clocksStyle.Render(fmt.Sprintf("Connected Clocks (%d)", len(st.Clients))))
	if len(st.Clients) == 0 {
		fmt.Fprintf(&b, "  %s\n", valueStyle.Render("No clocks connected"))
	}
	for _, c := range st.Clients {
		fmt.Fprintf(&b, "  • %s %s\n", c.RemoteAddr,
			valueStyle.Render(fmt.Sprintf("(%d requests, since %s)", c.Served, c.ConnectedAt.Format("15:04:05"))))
	}

	b.WriteString("\n")
	b.WriteString(lipgloss.NewStyle().Faint(true).Render("Press 'q' or Ctrl+C to quit"))

	return b.String()
}

// NewServerTUI creates a TUI polling status once per second
func NewServerTUI(status func() ServerStatus) *ServerTUI {
	return &ServerTUI{
		status:   status,
		quitChan: make(chan struct{}, 1),
	}
}

// Start runs the TUI until it quits
func (t *ServerTUI) Start() error {
	m := tuiModel{
		status:   t.status(),
		poll:     t.status,
		quitChan: t.quitChan,
	}

	t.program = tea.NewProgram(m, tea.WithAltScreen())

	_, err := t.program.Run()
	return err
}

// Stop stops the TUI
func (t *ServerTUI) Stop() {
	if t.program != nil {
		t.program.Quit()
	}
}

// QuitChan returns the channel that signals when user wants to quit
func (t *ServerTUI) QuitChan() <-chan struct{} {
	return t.quitChan
}
