package backend

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/3leaps/lakemap/pkg/provider"
)

// Metrics counts backend calls. A nil *Metrics records nothing.
type Metrics struct {
	calls    *prometheus.CounterVec
	duration *prometheus.HistogramVec
	entries  prometheus.Counter
}

// NewMetrics creates backend metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		calls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lakemap_backend_calls_total",
				Help: "Total backend listing calls by operation and outcome",
			},
			[]string{"op", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "lakemap_backend_call_duration_seconds",
				Help:    "Backend listing call duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"op"},
		),
		entries: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "lakemap_backend_entries_total",
				Help: "Total path entries returned by backend listings",
			},
		),
	}
	if reg != nil {
		reg.MustRegister(m.calls, m.duration, m.entries)
	}
	return m
}

func (m *Metrics) observe(op string, started time.Time, entries int, err error) {
	if m == nil {
		return
	}
	m.calls.WithLabelValues(op, outcome(err)).Inc()
	m.duration.WithLabelValues(op).Observe(time.Since(started).Seconds())
	m.entries.Add(float64(entries))
}

// outcome labels a call. Throttling and provider outages are split out of
// the transient bucket so rate limit tuning can see them.
func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	kind := Classify(err)
	if kind == KindTransient && provider.IsRetryable(err) {
		return "throttled"
	}
	return string(kind)
}
