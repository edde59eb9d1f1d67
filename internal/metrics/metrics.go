// Package metrics exposes Prometheus metrics for the import gateway. It
// observes workflow events through core.Observer and instruments HTTP
// handlers by route pattern.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/JonMunkholm/banko/internal/core"
)

const namespace = "banko"

// Metrics holds the collectors and the registry they are registered with.
type Metrics struct {
	registry *prometheus.Registry

	transitions  *prometheus.CounterVec
	importedRows prometheus.Counter
	imports      prometheus.Counter
	discarded    *prometheus.CounterVec
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

var _ core.Observer = (*Metrics)(nil)

// New creates a Metrics with its own registry, including the Go runtime
// and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "import",
			Name:      "transitions_total",
			Help:      "Import session status transitions.",
		}, []string{"from", "to"}),
		importedRows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "import",
			Name:      "rows_total",
			Help:      "Transactions imported by the finance API.",
		}),
		imports: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "import",
			Name:      "completed_total",
			Help:      "Imports that completed successfully.",
		}),
		discarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "import",
			Name:      "stale_responses_total",
			Help:      "Remote responses dropped because the session had moved on.",
		}, []string{"phase"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"method", "route", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.transitions,
		m.importedRows,
		m.imports,
		m.discarded,
		m.httpRequests,
		m.httpDuration,
	)
	return m
}

// Transition implements core.Observer.
func (m *Metrics) Transition(from, to core.Status) {
	m.transitions.WithLabelValues(string(from), string(to)).Inc()
}

// Imported implements core.Observer.
func (m *Metrics) Imported(rows int) {
	m.imports.Inc()
	m.importedRows.Add(float64(rows))
}

// Discarded implements core.Observer.
func (m *Metrics) Discarded(phase core.Phase) {
	m.discarded.WithLabelValues(string(phase)).Inc()
}

// TrackSessions exports the number of live import sessions.
func (m *Metrics) TrackSessions(count func() int) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "import",
		Name:      "sessions",
		Help:      "Live import sessions.",
	}, func() float64 { return float64(count()) }))
}

// TrackLimiter exports the occupancy of the import limiter.
func (m *Metrics) TrackLimiter(l *core.ImportLimiter) {
	m.registry.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "import",
			Name:      "in_flight",
			Help:      "Imports currently running against the finance API.",
		}, func() float64 { return float64(l.ActiveCount()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "import",
			Name:      "slots",
			Help:      "Maximum concurrent imports.",
		}, func() float64 { return float64(l.MaxConcurrent()) }),
	)
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Middleware records request counts and latency. Routes are labelled by
// their chi pattern so path parameters do not explode cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		m.httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
