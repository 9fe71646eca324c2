package bridge

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics records bridge activity. A nil *Metrics records nothing.
type Metrics struct {
	Drained  *prometheus.CounterVec
	Dropped  *prometheus.CounterVec
	Rejected *prometheus.CounterVec
	Pending  prometheus.Gauge
	Degraded *prometheus.GaugeVec
}

// NewMetrics creates the bridge metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Drained: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tessera",
			Subsystem: "bridge",
			Name:      "messages_drained_total",
			Help:      "Messages taken off a result channel by the loop.",
		}, []string{"category"}),
		Dropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tessera",
			Subsystem: "bridge",
			Name:      "messages_dropped_total",
			Help:      "Stale results discarded on arrival.",
		}, []string{"category", "reason"}),
		Rejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tessera",
			Subsystem: "bridge",
			Name:      "jobs_rejected_total",
			Help:      "Jobs refused because the worker queue was full.",
		}, []string{"category"}),
		Pending: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "tessera",
			Subsystem: "bridge",
			Name:      "requests_pending",
			Help:      "Requests issued and not yet answered.",
		}),
		Degraded: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "tessera",
			Subsystem: "bridge",
			Name:      "category_degraded",
			Help:      "1 while a category's worker has exited.",
		}, []string{"category"}),
	}
}

func (m *Metrics) drained(c Category) {
	if m != nil {
		m.Drained.WithLabelValues(c.String()).Inc()
	}
}

func (m *Metrics) dropped(c Category, reason DropReason) {
	if m != nil {
		m.Dropped.WithLabelValues(c.String(), string(reason)).Inc()
	}
}

func (m *Metrics) rejectedJob(c Category) {
	if m != nil {
		m.Rejected.WithLabelValues(c.String()).Inc()
	}
}

func (m *Metrics) setPending(n int) {
	if m != nil {
		m.Pending.Set(float64(n))
	}
}

func (m *Metrics) setDegraded(c Category, degraded bool) {
	if m == nil {
		return
	}
	v := 0.0
	if degraded {
		v = 1
	}
	m.Degraded.WithLabelValues(c.String()).Set(v)
}
