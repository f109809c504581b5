// ABOUTME: Prometheus instrumentation of the synchronization engine
// ABOUTME: All methods are no-ops on a nil *Metrics
package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sidnlabs/klok/internal/metrics"
)

// Metrics exports sync state. Each engine needs its own registerer.
type Metrics struct {
	timeDelta  prometheus.Gauge
	accuracy   prometheus.Gauge
	connected  prometheus.Gauge
	backoff    prometheus.Gauge
	rounds     prometheus.Counter
	reconnects prometheus.Counter
	stalls     prometheus.Counter
}

// NewMetrics registers the engine metrics with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		timeDelta: f.NewGauge(prometheus.GaugeOpts{
			Name: metrics.ClientTimeDeltaN,
			Help: metrics.ClientTimeDeltaH,
		}),
		accuracy: f.NewGauge(prometheus.GaugeOpts{
			Name: metrics.ClientAccuracyN,
			Help: metrics.ClientAccuracyH,
		}),
		connected: f.NewGauge(prometheus.GaugeOpts{
			Name: metrics.ClientConnectedN,
			Help: metrics.ClientConnectedH,
		}),
		backoff: f.NewGauge(prometheus.GaugeOpts{
			Name: metrics.ClientBackoffN,
			Help: metrics.ClientBackoffH,
		}),
		rounds: f.NewCounter(prometheus.CounterOpts{
			Name: metrics.ClientRoundsN,
			Help: metrics.ClientRoundsH,
		}),
		reconnects: f.NewCounter(prometheus.CounterOpts{
			Name: metrics.ClientReconnectsN,
			Help: metrics.ClientReconnectsH,
		}),
		stalls: f.NewCounter(prometheus.CounterOpts{
			Name: metrics.ClientStallsN,
			Help: metrics.ClientStallsH,
		}),
	}
}

func (m *Metrics) observeRound(timeDelta float64, accuracy int64) {
	if m == nil {
		return
	}
	m.rounds.Inc()
	m.timeDelta.Set(timeDelta)
	m.accuracy.Set(float64(accuracy))
}

func (m *Metrics) setConnected(connected bool) {
	if m == nil {
		return
	}
	if connected {
		m.connected.Set(1)
	} else {
		m.connected.Set(0)
	}
}

func (m *Metrics) setBackoff(waitMs float64) {
	if m == nil {
		return
	}
	m.backoff.Set(waitMs)
}

func (m *Metrics) reconnect() {
	if m == nil {
		return
	}
	m.reconnects.Inc()
}

func (m *Metrics) stall() {
	if m == nil {
		return
	}
	m.stalls.Inc()
}
