package share

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts gate outcomes. A nil *Metrics is valid and records nothing.
type Metrics struct {
	outcomes     *prometheus.CounterVec
	logFailures  prometheus.Counter
	storeLatency *prometheus.HistogramVec
}

// NewMetrics registers the gate collectors on reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "decisionlogr",
			Subsystem: "share",
			Name:      "gate_outcomes_total",
			Help:      "Share gate decisions by operation and outcome.",
		}, []string{"op", "outcome"}),
		logFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "decisionlogr",
			Subsystem: "share",
			Name:      "access_log_append_failures_total",
			Help:      "Access-log appends that failed and were dropped.",
		}),
		storeLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "decisionlogr",
			Subsystem: "share",
			Name:      "store_call_duration_seconds",
			Help:      "Token store round-trip latency by operation.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
	}
	if reg != nil {
		for _, c := range []prometheus.Collector{m.outcomes, m.logFailures, m.storeLatency} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

func (m *Metrics) outcome(op, outcome string) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(op, outcome).Inc()
}

func (m *Metrics) logAppendFailed() {
	if m == nil {
		return
	}
	m.logFailures.Inc()
}

func (m *Metrics) observeStore(op string, seconds float64) {
	if m == nil {
		return
	}
	m.storeLatency.WithLabelValues(op).Observe(seconds)
}
