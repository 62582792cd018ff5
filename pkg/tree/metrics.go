package tree

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records build outcomes. A nil *Metrics records nothing.
type Metrics struct {
	builds   *prometheus.CounterVec
	duration prometheus.Histogram
	nodes    *prometheus.CounterVec
}

// NewMetrics creates tree metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		builds: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lakemap_tree_builds_total",
				Help: "Total tree builds by outcome",
			},
			[]string{"outcome"},
		),
		duration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "lakemap_tree_build_duration_seconds",
				Help:    "Tree build duration in seconds",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
		),
		nodes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lakemap_tree_nodes_total",
				Help: "Total nodes produced by tree builds by kind",
			},
			[]string{"kind"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.builds, m.duration, m.nodes)
	}
	return m
}

func (m *Metrics) observeBuild(started time.Time, n *Node, err error) {
	if m == nil {
		return
	}
	m.duration.Observe(time.Since(started).Seconds())

	switch {
	case err != nil:
		m.builds.WithLabelValues("error").Inc()
		return
	case n.Complete():
		m.builds.WithLabelValues("complete").Inc()
	default:
		m.builds.WithLabelValues("incomplete").Inc()
	}
	for kind, count := range n.Count() {
		m.nodes.WithLabelValues(string(kind)).Add(float64(count))
	}
}
