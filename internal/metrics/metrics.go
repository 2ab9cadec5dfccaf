// Package metrics exposes Prometheus collectors for session operations and
// the HTTP API.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Kerhoff/ChoreBoT/internal/familycode"
	"github.com/Kerhoff/ChoreBoT/internal/session"
)

const namespace = "chorebot"

// Outcome labels of the operations counter
const (
	OutcomeOK               = "ok"
	OutcomeNotFound         = "not_found"
	OutcomeServiceError     = "service_error"
	OutcomeStorageError     = "storage_error"
	OutcomeNotAuthenticated = "not_authenticated"
	OutcomeNoFamily         = "no_family"
	OutcomeError            = "error"
)

// Metrics holds the application collectors on a private registry
type Metrics struct {
	registry *prometheus.Registry

	operations   *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	codeAttempts prometheus.Histogram
	purged       prometheus.Counter
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	httpInFlight prometheus.Gauge
}

// New creates and registers every collector
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "session",
				Name:      "operations_total",
				Help:      "Total number of session operations by outcome.",
			},
			[]string{"operation", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "session",
				Name:      "operation_duration_seconds",
				Help:      "Duration of session operations, including remote round trips.",
				Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
			},
			[]string{"operation"},
		),
		codeAttempts: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "family_code",
				Name:      "attempts",
				Help:      "Existence checks needed to find an unused family code.",
				Buckets:   prometheus.LinearBuckets(1, 1, 10),
			},
		),
		purged: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "auth",
				Name:      "sessions_purged_total",
				Help:      "Total number of expired credential sessions removed.",
			},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests handled.",
			},
			[]string{"method", "path", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Duration of HTTP requests.",
				Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
			},
			[]string{"method", "path"},
		),
		httpInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "inflight_requests",
				Help:      "Current number of in-flight HTTP requests.",
			},
		),
	}

	m.registry.MustRegister(
		m.operations,
		m.duration,
		m.codeAttempts,
		m.purged,
		m.httpRequests,
		m.httpDuration,
		m.httpInFlight,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
	return m
}

// ObserveOperation records the outcome and duration of a session operation
func (m *Metrics) ObserveOperation(op string, err error, d time.Duration) {
	m.operations.WithLabelValues(op, Outcome(err)).Inc()
	m.duration.WithLabelValues(op).Observe(d.Seconds())
}

// ObserveCodeAttempts records how many candidates a family code needed
func (m *Metrics) ObserveCodeAttempts(n int) {
	m.codeAttempts.Observe(float64(n))
}

// ObservePurged counts credential sessions removed by the janitor
func (m *Metrics) ObservePurged(n int64) {
	m.purged.Add(float64(n))
}

// TrackSessions exports the number of live sessions as reported by count
func (m *Metrics) TrackSessions(count func() int) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "active",
			Help:      "Number of sessions held in memory.",
		},
		func() float64 { return float64(count()) },
	))
}

// Outcome maps an operation error to its label
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, session.ErrNotFound):
		return OutcomeNotFound
	case errors.Is(err, session.ErrService):
		return OutcomeServiceError
	case errors.Is(err, session.ErrStorage):
		return OutcomeStorageError
	case errors.Is(err, session.ErrNotAuthenticated):
		return OutcomeNotAuthenticated
	case errors.Is(err, session.ErrNoFamily):
		return OutcomeNoFamily
	}
	return OutcomeError
}

// Registry returns the registry holding the collectors
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler exposing the registered metrics
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps next with HTTP metrics collection
func (m *Metrics) InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		m.httpInFlight.Inc()
		defer m.httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)
		m.httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		m.httpDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// canonicalPath replaces id segments so label cardinality stays bounded
func canonicalPath(raw string) string {
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	for i, p := range parts {
		if _, err := uuid.Parse(p); err == nil {
			parts[i] = ":id"
		} else if familycode.Valid(familycode.Normalize(p)) {
			parts[i] = ":code"
		}
	}
	return "/" + strings.Join(parts, "/")
}
