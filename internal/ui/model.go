// ABOUTME: Bubbletea model for the clock TUI
// ABOUTME: Defines display state, key handling and rendering
package ui

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/sidnlabs/klok/internal/clock"
	"github.com/sidnlabs/klok/internal/version"
)

const (
	blankTime = "--:--:--"
	blankDate = "--.--.----"
	blankZone = "--"
)

// Model represents the TUI state
type Model struct {
	// Connection
	connected  bool
	serverName string

	// Clock
	time   string
	date   string
	zone   string
	angles [3]float64 // hour, minute, second in degrees

	// Sync
	accuracy    int64
	hasAccuracy bool
	offset      string

	// Leap second
	leap   clock.LeapState
	leapAt *time.Time

	control *Control

	// Dimensions
	width  int
	height int
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.FocusMsg:
		m.control.wake()
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case StatusMsg:
		m.applyStatus(msg)
	}

	return m, nil
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return nil
}

var (
	disconnectedStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("231")).
				Background(lipgloss.Color("160"))

	connectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("86"))

	leapStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("220"))
)

// View renders the TUI
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	s := ""
	s += m.renderHeader()
	s += m.renderClock()
	s += m.renderSync()
	s += m.renderLeap()
	s += m.renderHelp()

	return s
}

// renderHeader renders product and connection state
func (m Model) renderHeader() string {
	status := connectedStyle.Render(fmt.Sprintf("%-45s", "Connected to "+m.serverName))
	if !m.connected {
		status = disconnectedStyle.Render(fmt.Sprintf("%-45s", "NOT CONNECTED"))
	}

	return fmt.Sprintf(`┌─ %-51s┐
│ Status: %s │
├──────────────────────────────────────────────────────┤
`, version.String()+" ", status)
}

// renderClock renders the digital readout and hand angles
func (m Model) renderClock() string {
	return fmt.Sprintf(`│ Time:   %-45s│
│ Date:   %-45s│
│ Zone:   %-45s│
│ Hands:  %-45s│
`, m.time, m.date, m.zone,
		fmt.Sprintf("h %5.1f°  m %5.1f°  s %5.1f°", m.angles[0], m.angles[1], m.angles[2]))
}

// renderSync renders accuracy and the system clock deviation
func (m Model) renderSync() string {
	accuracy := "--"
	if m.hasAccuracy {
		accuracy = fmt.Sprintf("± %d ms", m.accuracy)
	}
	offset := m.offset
	if offset == "" {
		offset = "--"
	}

	return fmt.Sprintf(`├──────────────────────────────────────────────────────┤
│ Accuracy:     %-39s│
│ System clock: %-39s│
`, accuracy, truncate(offset, 39))
}

// renderLeap renders a scheduled leap second, if any
func (m Model) renderLeap() string {
	var text string
	switch {
	case m.leapAt != nil && m.leap.Pending():
		text = fmt.Sprintf("Leap (%s) after %s UTC", m.leap, m.leapAt.UTC().Format("2006-01-02 15:04:05"))
	case m.leap.Pending():
		text = fmt.Sprintf("Leap second (%s) announced", m.leap)
	default:
		return ""
	}

	return fmt.Sprintf("│ %s │\n", leapStyle.Render(fmt.Sprintf("%-52s", truncate(text, 52))))
}

// renderHelp renders keyboard shortcuts
func (m Model) renderHelp() string {
	return `├──────────────────────────────────────────────────────┤
│ r:Reconnect  q:Quit                                  │
└──────────────────────────────────────────────────────┘
`
}

// handleKey handles keyboard input
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.control.quit()
		return m, tea.Quit
	case "r":
		m.control.wake()
	}

	return m, nil
}

// applyStatus updates model from status message
func (m *Model) applyStatus(msg StatusMsg) {
	if msg.Blank {
		m.time, m.date, m.zone = blankTime, blankDate, blankZone
		m.angles = [3]float64{}
		m.offset = ""
	}
	if msg.Connected != nil {
		m.connected = *msg.Connected
	}
	if msg.Time != nil {
		m.time = fmt.Sprintf("%02d:%02d:%02d", msg.Time[0], msg.Time[1], msg.Time[2])
	}
	if msg.Date != nil {
		m.date = fmt.Sprintf("%02d.%02d.%04d", msg.Date[0], msg.Date[1], msg.Date[2])
	}
	if msg.Zone != "" {
		m.zone = msg.Zone
	}
	if msg.Angles != nil {
		m.angles = *msg.Angles
	}
	if msg.Accuracy != nil {
		m.accuracy = *msg.Accuracy
		m.hasAccuracy = true
	}
	if msg.Offset != "" {
		m.offset = msg.Offset
	}
	if msg.Leap != nil {
		m.leap = msg.Leap.State
		if msg.Leap.At != nil || !msg.Leap.State.Pending() {
			m.leapAt = msg.Leap.At
		}
	}
}

// StatusMsg updates TUI state. Nil and empty fields leave state unchanged.
type StatusMsg struct {
	Blank     bool // Applied before the other fields
	Connected *bool
	Time      *[3]int // hour, minute, second
	Date      *[3]int // day, month, year
	Zone      string
	Angles    *[3]float64
	Accuracy  *int64
	Offset    string
	Leap      *LeapInfo
}

// LeapInfo is the leap second shown to the user
type LeapInfo struct {
	State clock.LeapState
	At    *time.Time
}

func truncate(s string, length int) string {
	if len([]rune(s)) <= length {
		return s
	}
	return string([]rune(s)[:length-3]) + "..."
}
