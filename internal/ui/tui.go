// ABOUTME: TUI initialization and control
// ABOUTME: Wraps the bubbletea program and adapts it to the engine's display sink
package ui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sidnlabs/klok/internal/clock"
	"github.com/sidnlabs/klok/internal/engine"
)

// Control carries user requests from the TUI to the application
type Control struct {
	Wake chan struct{}
	Quit chan struct{}
}

// NewControl creates a new control handler
func NewControl() *Control {
	return &Control{
		Wake: make(chan struct{}, 1),
		Quit: make(chan struct{}, 1),
	}
}

func (c *Control) wake() {
	if c == nil {
		return
	}
	select {
	case c.Wake <- struct{}{}:
	default:
	}
}

func (c *Control) quit() {
	if c == nil {
		return
	}
	select {
	case c.Quit <- struct{}{}:
	default:
	}
}

// NewModel creates a new TUI model showing blank values
func NewModel(ctrl *Control, serverName string) Model {
	return Model{
		serverName: serverName,
		time:       blankTime,
		date:       blankDate,
		zone:       blankZone,
		control:    ctrl,
	}
}

// Run creates the TUI program. Focus reporting is enabled so that regaining
// focus wakes the reconnect supervisor.
func Run(ctrl *Control, serverName string) (*tea.Program, error) {
	p := tea.NewProgram(NewModel(ctrl, serverName), tea.WithAltScreen(), tea.WithReportFocus())
	return p, nil
}

// Display is an engine display sink feeding a TUI program. Per-tick values
// are collected and sent as one frame when the offset text arrives.
type Display struct {
	send  func(tea.Msg)
	frame StatusMsg
}

var _ engine.Display = (*Display)(nil)

// NewDisplay creates a display sending status messages with send,
// usually (*tea.Program).Send
func NewDisplay(send func(tea.Msg)) *Display {
	return &Display{send: send}
}

func (d *Display) SetHandAngle(hand engine.Hand, degrees float64) {
	if d.frame.Angles == nil {
		d.frame.Angles = &[3]float64{}
	}
	d.frame.Angles[hand] = degrees
}

func (d *Display) SetDigitalTime(h, m, s int) {
	d.frame.Time = &[3]int{h, m, s}
}

func (d *Display) SetDigitalDate(day, month, year int) {
	d.frame.Date = &[3]int{day, month, year}
}

func (d *Display) SetTimezoneLabel(text string) {
	d.frame.Zone = text
}

// SetOffsetText completes a tick and sends the frame
func (d *Display) SetOffsetText(text string) {
	d.frame.Offset = text
	d.flush()
}

func (d *Display) SetAccuracy(ms int64) {
	d.send(StatusMsg{Accuracy: &ms})
}

func (d *Display) SetConnected(connected bool) {
	d.send(StatusMsg{Connected: &connected})
}

func (d *Display) SetLeapInfo(state clock.LeapState, at *time.Time) {
	d.send(StatusMsg{Leap: &LeapInfo{State: state, At: at}})
}

func (d *Display) Blank() {
	d.frame = StatusMsg{}
	d.send(StatusMsg{Blank: true})
}

func (d *Display) flush() {
	frame := d.frame
	d.frame = StatusMsg{}
	d.send(frame)
}
