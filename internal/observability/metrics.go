package observability

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/3leaps/lakemap/pkg/backend"
	"github.com/3leaps/lakemap/pkg/tree"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the collectors shared by the CLI and the server.
type Metrics struct {
	Registry *prometheus.Registry
	Backend  *backend.Metrics
	Tree     *tree.Metrics
	HTTP     *HTTPMetrics
}

var (
	metricsMu sync.RWMutex
	current   *Metrics
)

// InitMetrics creates a fresh registry with process and Go collectors plus
// every lakemap collector, and makes it current.
func InitMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		Registry: reg,
		Backend:  backend.NewMetrics(reg),
		Tree:     tree.NewMetrics(reg),
		HTTP:     NewHTTPMetrics(reg),
	}

	metricsMu.Lock()
	current = m
	metricsMu.Unlock()
	return m
}

// CurrentMetrics returns the metrics set by InitMetrics, or nil.
func CurrentMetrics() *Metrics {
	metricsMu.RLock()
	defer metricsMu.RUnlock()
	return current
}

// ResetMetrics clears the current metrics. Intended for tests.
func ResetMetrics() {
	metricsMu.Lock()
	current = nil
	metricsMu.Unlock()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// HTTPMetrics records request counts and latencies. A nil *HTTPMetrics
// records nothing.
type HTTPMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewHTTPMetrics creates HTTP metrics and registers them with reg.
func NewHTTPMetrics(reg prometheus.Registerer) *HTTPMetrics {
	m := &HTTPMetrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lakemap_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "lakemap_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.requests, m.duration)
	}
	return m
}

// Middleware records one observation per request. Requests are labeled by
// chi route pattern so ids in paths do not explode cardinality.
func (m *HTTPMetrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		m.requests.WithLabelValues(r.Method, route, strconv.Itoa(rw.status)).Inc()
		m.duration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// statusWriter captures the status code written by a handler.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
