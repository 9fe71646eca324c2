package app

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks control loop performance. A nil *Metrics records nothing.
type Metrics struct {
	Frames       prometheus.Histogram
	SlowFrames   prometheus.Counter
	Keys         prometheus.Counter
	DroppedInput prometheus.Counter
	Documents    prometheus.Gauge
	Collected    prometheus.Counter
}

// NewMetrics creates the loop metrics and registers them with reg. A nil
// reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Frames: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "tessera",
			Subsystem: "loop",
			Name:      "frame_seconds",
			Help:      "Time spent processing one frame.",
			Buckets:   []float64{.0005, .001, .002, .004, .008, .016, .032, .064},
		}),
		SlowFrames: f.NewCounter(prometheus.CounterOpts{
			Namespace: "tessera",
			Subsystem: "loop",
			Name:      "slow_frames_total",
			Help:      "Frames that overran the frame interval.",
		}),
		Keys: f.NewCounter(prometheus.CounterOpts{
			Namespace: "tessera",
			Subsystem: "loop",
			Name:      "keys_total",
			Help:      "Key events handled.",
		}),
		DroppedInput: f.NewCounter(prometheus.CounterOpts{
			Namespace: "tessera",
			Subsystem: "loop",
			Name:      "dropped_input_total",
			Help:      "Terminal events dropped because the input queue was full.",
		}),
		Documents: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "tessera",
			Subsystem: "loop",
			Name:      "documents",
			Help:      "Open documents.",
		}),
		Collected: f.NewCounter(prometheus.CounterOpts{
			Namespace: "tessera",
			Subsystem: "engine",
			Name:      "gc_events_total",
			Help:      "Edit log events released by garbage collection.",
		}),
	}
}

func (m *Metrics) frame(d, budget time.Duration) {
	if m == nil {
		return
	}
	m.Frames.Observe(d.Seconds())
	if d > budget {
		m.SlowFrames.Inc()
	}
}

func (m *Metrics) key() {
	if m != nil {
		m.Keys.Inc()
	}
}

func (m *Metrics) droppedInput() {
	if m != nil {
		m.DroppedInput.Inc()
	}
}

func (m *Metrics) documents(n int) {
	if m != nil {
		m.Documents.Set(float64(n))
	}
}

func (m *Metrics) collected(n int) {
	if m != nil && n > 0 {
		m.Collected.Add(float64(n))
	}
}
