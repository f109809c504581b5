// ABOUTME: Time protocol message type definitions
// ABOUTME: Defines the echo request and server time reply exchanged over the websocket
package protocol

import (
	"encoding/json"
	"fmt"
)

// LeapIndicator is the NTP leap indicator relayed by the time server
type LeapIndicator uint8

const (
	// LeapNoWarning indicates no impending leap second
	LeapNoWarning LeapIndicator = 0
	// LeapAddSecond indicates the last minute of the month has 61 seconds
	LeapAddSecond LeapIndicator = 1
	// LeapDelSecond indicates the last minute of the month has 59 seconds
	LeapDelSecond LeapIndicator = 2
	// LeapNotInSync indicates the server clock itself is unsynchronized
	LeapNotInSync LeapIndicator = 3
)

func (l LeapIndicator) String() string {
	switch l {
	case LeapNoWarning:
		return "none"
	case LeapAddSecond:
		return "insert"
	case LeapDelSecond:
		return "delete"
	case LeapNotInSync:
		return "unsynchronized"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(l))
	}
}

// Valid reports whether l is one of the four defined indicator values
func (l LeapIndicator) Valid() bool {
	return l <= LeapNotInSync
}

// ClientTime is the echo request carrying the client's monotonic send time
type ClientTime struct {
	C float64 `json:"c"` // Client monotonic milliseconds at send time
}

// ServerTime is the reply to a ClientTime request
type ServerTime struct {
	C *float64      `json:"c,omitempty"` // Echoed client send time, if the server echoes it
	S float64       `json:"s"`           // Server UTC milliseconds since the Unix epoch
	E float64       `json:"e"`           // Server uncertainty in milliseconds
	L LeapIndicator `json:"l"`           // Leap indicator
}

// DecodeClientTime parses a client request
func DecodeClientTime(data []byte) (ClientTime, error) {
	var msg ClientTime
	if err := json.Unmarshal(data, &msg); err != nil {
		return ClientTime{}, fmt.Errorf("failed to parse client time: %w", err)
	}
	return msg, nil
}

// DecodeServerTime parses a server reply
func DecodeServerTime(data []byte) (ServerTime, error) {
	var msg ServerTime
	if err := json.Unmarshal(data, &msg); err != nil {
		return ServerTime{}, fmt.Errorf("failed to parse server time: %w", err)
	}
	return msg, nil
}
