// ABOUTME: Error conditions handled by the synchronization engine
// ABOUTME: All of them are recovered locally and surface only as display state
package engine

import "errors"

var (
	// ErrConnectionLost is reported when the socket closes or errors
	ErrConnectionLost = errors.New("connection lost")
	// ErrRequestTimeout is reported when a sample request gets no reply in time
	ErrRequestTimeout = errors.New("sample request timed out")
	// ErrServerUnsynchronized is reported when the server's leap indicator says its clock is not synchronized
	ErrServerUnsynchronized = errors.New("server clock unsynchronized")
	// ErrStallDetected is reported when ticks arrive far later than expected
	ErrStallDetected = errors.New("clock stall detected")
)
