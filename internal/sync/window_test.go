// ABOUTME: Tests for the round-trip sample window
// ABOUTME: Tests offset computation, min round-trip selection, eviction and accuracy
package sync

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSample(t *testing.T) {
	// Sent at 100ms, received at 140ms, server stamped 1000ms
	s := NewSample(100, 140, 1000, 2)

	assert.Equal(t, 40.0, s.RoundTrip)
	assert.Equal(t, 140.0-1000.0-20.0, s.Offset)
	assert.Equal(t, 2.0, s.ServerUncertainty)
}

func TestNewSampleZeroOffset(t *testing.T) {
	for _, now := range []float64{0, 1, 12345.678, 1e12} {
		s := NewSample(now, now, now, 0)
		assert.Zero(t, s.Offset, "now=%v", now)
		assert.Zero(t, s.RoundTrip, "now=%v", now)
	}
}

func TestPushReportsFull(t *testing.T) {
	w := NewWindow(DefaultCapacity)

	for i := 1; i < DefaultCapacity; i++ {
		assert.False(t, w.Push(Sample{RoundTrip: float64(i)}), "push %d", i)
	}
	assert.True(t, w.Push(Sample{RoundTrip: 9}))
	assert.Equal(t, DefaultCapacity, w.Len())

	// Stays full and bounded on overflow
	assert.True(t, w.Push(Sample{RoundTrip: 10}))
	assert.Equal(t, DefaultCapacity, w.Len())
}

func TestBestEmptyWindow(t *testing.T) {
	w := NewWindow(0)
	assert.Equal(t, DefaultCapacity, w.Capacity())

	_, err := w.Best()
	assert.ErrorIs(t, err, ErrEmptyWindow)

	_, err = w.AccuracyMs()
	assert.ErrorIs(t, err, ErrEmptyWindow)
}

func TestBestTieBreaksToMostRecent(t *testing.T) {
	w := NewWindow(DefaultCapacity)
	w.Push(Sample{RoundTrip: 10, Offset: 1})
	w.Push(Sample{RoundTrip: 5, Offset: 2})
	w.Push(Sample{RoundTrip: 5, Offset: 3})
	w.Push(Sample{RoundTrip: 7, Offset: 4})

	best, err := w.Best()
	require.NoError(t, err)
	assert.Equal(t, 3.0, best.Offset)
}

func TestBestEvictsOldest(t *testing.T) {
	w := NewWindow(DefaultCapacity)
	w.Push(Sample{RoundTrip: 1, Offset: 100}) // best, but evicted below
	for i := 0; i < DefaultCapacity; i++ {
		w.Push(Sample{RoundTrip: float64(20 + i), Offset: float64(i)})
	}

	best, err := w.Best()
	require.NoError(t, err)
	assert.Equal(t, 20.0, best.RoundTrip)
	assert.Equal(t, 0.0, best.Offset)
}

func TestBestOverRandomSequences(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	for run := 0; run < 200; run++ {
		w := NewWindow(DefaultCapacity)
		var pushed []Sample

		for i := 0; i < 1+rng.Intn(20); i++ {
			s := Sample{RoundTrip: float64(rng.Intn(50)), Offset: float64(i)}
			pushed = append(pushed, s)
			w.Push(s)

			recent := pushed
			if len(recent) > DefaultCapacity {
				recent = recent[len(recent)-DefaultCapacity:]
			}
			want := recent[0]
			for _, r := range recent[1:] {
				if r.RoundTrip <= want.RoundTrip {
					want = r
				}
			}

			got, err := w.Best()
			require.NoError(t, err)
			require.Equal(t, want, got, "run %d push %d", run, i)
		}
	}
}

func TestAccuracyMs(t *testing.T) {
	tests := []struct {
		name        string
		roundTrip   float64
		uncertainty float64
		want        int64
	}{
		{"zero", 0, 0, 0},
		{"half round trip", 40, 0, 20},
		{"with uncertainty", 40, 3, 23},
		{"rounds half up", 5, 0, 3},
		{"rounds down", 4.6, 0.1, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := NewWindow(DefaultCapacity)
			w.Push(Sample{RoundTrip: tt.roundTrip + 100})
			w.Push(Sample{RoundTrip: tt.roundTrip, ServerUncertainty: tt.uncertainty})

			got, err := w.AccuracyMs()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReset(t *testing.T) {
	w := NewWindow(DefaultCapacity)
	w.Push(Sample{RoundTrip: 1})
	w.Reset()

	assert.Equal(t, 0, w.Len())
	_, err := w.Best()
	assert.ErrorIs(t, err, ErrEmptyWindow)
}
