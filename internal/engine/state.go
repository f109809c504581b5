// ABOUTME: Connection lifecycle states shared by session and supervisor
// ABOUTME: Defines the ConnectionState enum and its names
package engine

import "fmt"

// ConnectionState is the lifecycle state of the connection to the time server
type ConnectionState int

const (
	Disconnected ConnectionState = iota
	Connecting
	AwaitingSamples
	Idle
	Reconnecting
)

func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case AwaitingSamples:
		return "awaiting samples"
	case Idle:
		return "idle"
	case Reconnecting:
		return "reconnecting"
	default:
		return fmt.Sprintf("ConnectionState(%d)", int(s))
	}
}

// Connected reports whether a socket is open in this state
func (s ConnectionState) Connected() bool {
	return s == AwaitingSamples || s == Idle
}
