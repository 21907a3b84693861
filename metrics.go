package gatekit

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Sentinel-Gate/gatekit/event"
)

// Metrics records decision and mutation counters for an enforcer. Install
// with Enforcer.SetMetrics; recording is skipped entirely when no recorder
// is installed.
type Metrics struct {
	decisions *prometheus.CounterVec
	latency   prometheus.Histogram
	mutations *prometheus.CounterVec
}

// NewMetrics builds and registers the collectors. Pass
// prometheus.DefaultRegisterer or a private registry.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gatekit",
			Name:      "decisions_total",
			Help:      "Enforcement decisions by verdict.",
		}, []string{"verdict"}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "gatekit",
			Name:      "decision_duration_seconds",
			Help:      "Enforcement decision latency.",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 10),
		}),
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gatekit",
			Name:      "policy_mutations_total",
			Help:      "Successful policy mutations by operation.",
		}, []string{"op"}),
	}

	for _, c := range []prometheus.Collector{m.decisions, m.latency, m.mutations} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) recordDecision(allowed bool, d time.Duration) {
	verdict := "deny"
	if allowed {
		verdict = "allow"
	}
	m.decisions.WithLabelValues(verdict).Inc()
	m.latency.Observe(d.Seconds())
}

func (m *Metrics) recordMutation(op event.Op) {
	m.mutations.WithLabelValues(op.String()).Inc()
}
