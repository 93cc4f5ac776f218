// Package metrics exposes frame loop counters to Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the collectors updated by the frame loop. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	Frames         prometheus.Counter
	FrameSeconds   prometheus.Histogram
	ActiveDeposits prometheus.Gauge
	Rejections     prometheus.Counter
	Resizes        prometheus.Counter
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Frames: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trail_frames_total",
			Help: "Frames rendered by the feedback loop",
		}),
		FrameSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "trail_frame_duration_seconds",
			Help:    "Time spent dispatching one frame",
			Buckets: []float64{0.001, 0.002, 0.004, 0.008, 0.016, 0.033, 0.066, 0.1, 0.25},
		}),
		ActiveDeposits: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trail_active_deposits",
			Help: "Autonomous particles alive after the last update",
		}),
		Rejections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trail_config_rejections_total",
			Help: "Parameter changes rejected by the configuration surface",
		}),
		Resizes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trail_resizes_total",
			Help: "Accumulation buffer reallocations",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Frames, m.FrameSeconds, m.ActiveDeposits, m.Rejections, m.Resizes)
	}
	return m
}

// ObserveFrame records one finished frame.
func (m *Metrics) ObserveFrame(d time.Duration, deposits int) {
	if m == nil {
		return
	}
	m.Frames.Inc()
	m.FrameSeconds.Observe(d.Seconds())
	m.ActiveDeposits.Set(float64(deposits))
}

// Rejected records n rejected parameter changes.
func (m *Metrics) Rejected(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.Rejections.Add(float64(n))
}

// Resized records a buffer reallocation.
func (m *Metrics) Resized() {
	if m == nil {
		return
	}
	m.Resizes.Inc()
}
