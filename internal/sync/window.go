// ABOUTME: Fixed-capacity window of round-trip time samples
// ABOUTME: Selects the minimum round-trip sample as the offset estimate
package sync

import (
	"errors"
	"math"
	"time"
)

// DefaultCapacity is the number of samples in one sampling round
const DefaultCapacity = 5

// ErrEmptyWindow is returned when a selection is requested before any
// sample was pushed
var ErrEmptyWindow = errors.New("sync window is empty")

// Sample is one request/response exchange with the time server. All values
// are milliseconds.
type Sample struct {
	Offset            float64       // Local monotonic clock minus server time
	RoundTrip         float64       // Local time between send and receive
	ServerUncertainty float64       // Uncertainty reported by the server
	ReceivedAt        time.Duration // Local monotonic time of receipt
}

// NewSample computes a sample from the client send time, the client receive
// time and the server's reply, assuming a symmetric path.
func NewSample(sentMs, receivedMs, serverMs, uncertaintyMs float64) Sample {
	roundTrip := receivedMs - sentMs
	if roundTrip < 0 {
		roundTrip = 0
	}

	return Sample{
		Offset:            receivedMs - serverMs - roundTrip/2,
		RoundTrip:         roundTrip,
		ServerUncertainty: uncertaintyMs,
		ReceivedAt:        time.Duration(receivedMs * float64(time.Millisecond)),
	}
}

// Window holds the most recent samples, at most its capacity.
// It is owned by a single session and is not safe for concurrent use.
type Window struct {
	samples  []Sample
	capacity int
}

// NewWindow creates a window; a capacity below one means DefaultCapacity
func NewWindow(capacity int) *Window {
	if capacity < 1 {
		capacity = DefaultCapacity
	}

	return &Window{
		samples:  make([]Sample, 0, capacity),
		capacity: capacity,
	}
}

// Reset discards all samples
func (w *Window) Reset() {
	w.samples = w.samples[:0]
}

// Push appends a sample, evicting the oldest beyond capacity, and reports
// whether the window is full
func (w *Window) Push(s Sample) bool {
	if len(w.samples) == w.capacity {
		copy(w.samples, w.samples[1:])
		w.samples = w.samples[:len(w.samples)-1]
	}
	w.samples = append(w.samples, s)

	return len(w.samples) == w.capacity
}

// Len returns the number of samples held
func (w *Window) Len() int {
	return len(w.samples)
}

// Capacity returns the maximum number of samples held
func (w *Window) Capacity() int {
	return w.capacity
}

// Best returns the sample with the smallest round trip; on ties the most
// recent one wins
func (w *Window) Best() (Sample, error) {
	if len(w.samples) == 0 {
		return Sample{}, ErrEmptyWindow
	}

	best := 0
	for i := 1; i < len(w.samples); i++ {
		if w.samples[i].RoundTrip <= w.samples[best].RoundTrip {
			best = i
		}
	}

	return w.samples[best], nil
}

// AccuracyMs returns half the best round trip plus the server uncertainty,
// rounded to whole milliseconds
func (w *Window) AccuracyMs() (int64, error) {
	best, err := w.Best()
	if err != nil {
		return 0, err
	}

	return int64(math.Round(best.RoundTrip/2 + best.ServerUncertainty)), nil
}
