// ABOUTME: Upstream time sources for the time server
// ABOUTME: Queries an NTP server on every request, with the local clock as fallback
package server

import (
	"fmt"
	"time"

	"github.com/beevik/ntp"
	"github.com/sidnlabs/klok/internal/protocol"
)

const (
	// DefaultNTPHost is queried on every client request
	DefaultNTPHost = "ntp.time.nl"

	// DefaultNTPTimeout bounds a single upstream query
	DefaultNTPTimeout = 5 * time.Second
)

// TimeReading is one answer of a time source
type TimeReading struct {
	Time        time.Time
	Leap        protocol.LeapIndicator
	Uncertainty float64 // ms
}

// TimeSource provides the time served to clients
type TimeSource interface {
	Read() (TimeReading, error)
}

// NTPSource reads time from an NTP server
type NTPSource struct {
	Host              string
	Timeout           time.Duration
	ReportUncertainty bool // Report root distance as uncertainty instead of 0

	query func(host string, opt ntp.QueryOptions) (*ntp.Response, error)
	now   func() time.Time
}

// NewNTPSource creates a source querying host
func NewNTPSource(host string, timeout time.Duration, reportUncertainty bool) *NTPSource {
	if host == "" {
		host = DefaultNTPHost
	}
	if timeout <= 0 {
		timeout = DefaultNTPTimeout
	}

	return &NTPSource{
		Host:              host,
		Timeout:           timeout,
		ReportUncertainty: reportUncertainty,
		query:             ntp.QueryWithOptions,
		now:               time.Now,
	}
}

// Read queries the NTP server. The response is not validated so that an
// unsynchronized upstream is relayed to clients as such.
func (s *NTPSource) Read() (TimeReading, error) {
	r, err := s.query(s.Host, ntp.QueryOptions{Timeout: s.Timeout})
	if err != nil {
		return TimeReading{}, fmt.Errorf("failed to query %s: %w", s.Host, err)
	}

	reading := TimeReading{
		Time: s.now().Add(r.ClockOffset),
		Leap: protocol.LeapIndicator(r.Leap),
	}
	if s.ReportUncertainty {
		reading.Uncertainty = float64(r.RootDistance) / float64(time.Millisecond)
	}

	return reading, nil
}

// LocalSource serves the local system clock with no leap warning
type LocalSource struct{}

// Read returns the current local time
func (LocalSource) Read() (TimeReading, error) {
	return TimeReading{Time: time.Now()}, nil
}
