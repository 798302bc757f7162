package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	httpInFlight        prometheus.Gauge
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	guardRejections    *prometheus.CounterVec
	riskAssessments    *prometheus.CounterVec
	classifierCalls    *prometheus.CounterVec
	classifierDuration prometheus.Histogram
	dispatchTotal      *prometheus.CounterVec
}

// New registers every collector on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_in_flight_requests",
			Help: "In-flight HTTP requests.",
		}),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "route", "status"}),
		httpRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		guardRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "guard_rejections_total",
			Help: "Requests short-circuited by the access guard.",
		}, []string{"reason"}),
		riskAssessments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "risk_assessments_total",
			Help: "Command risk assessments by final level and action.",
		}, []string{"level", "action"}),
		classifierCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "risk_classifier_calls_total",
			Help: "External classifier invocations by outcome.",
		}, []string{"outcome"}),
		classifierDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "risk_classifier_duration_seconds",
			Help:    "External classifier latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
		dispatchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_executions_total",
			Help: "Capability executions by status.",
		}, []string{"capability", "status"}),
	}
	m.registry.MustRegister(
		m.httpInFlight, m.httpRequestsTotal, m.httpRequestDuration,
		m.guardRejections, m.riskAssessments, m.classifierCalls,
		m.classifierDuration, m.dispatchTotal,
		prometheus.NewGoCollector(),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) GuardRejected(reason string) {
	m.guardRejections.WithLabelValues(reason).Inc()
}

func (m *Metrics) RiskAssessed(level, action string) {
	m.riskAssessments.WithLabelValues(level, action).Inc()
}

func (m *Metrics) ClassifierCalled(outcome string, d time.Duration) {
	m.classifierCalls.WithLabelValues(outcome).Inc()
	m.classifierDuration.Observe(d.Seconds())
}

func (m *Metrics) DispatchExecuted(capability, status string) {
	m.dispatchTotal.WithLabelValues(capability, status).Inc()
}

// Instrument records RPS, latency and in-flight requests, labelled by the
// chi route pattern so path parameters do not explode cardinality.
func (m *Metrics) Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.httpInFlight.Inc()
		defer m.httpInFlight.Dec()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := strconv.Itoa(sw.code)
		m.httpRequestDuration.WithLabelValues(r.Method, route, status).Observe(time.Since(start).Seconds())
		m.httpRequestsTotal.WithLabelValues(r.Method, route, status).Inc()
	})
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
