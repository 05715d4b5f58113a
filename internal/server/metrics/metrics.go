// Package metrics exposes the server's Prometheus collectors: HTTP request
// counters and latencies plus the generation and billing counters fed by
// the services.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the collectors registered on one registry.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	generations   *prometheus.CounterVec
	quotaExceeded prometheus.Counter
	billingEvents *prometheus.CounterVec
}

// New registers the collectors, together with the Go and process
// collectors, on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		httpRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total HTTP requests received.",
			},
			[]string{"method", "path", "code"},
		),
		httpDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "code"},
		),
		generations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "palette_generations_total",
				Help: "Generations recorded, by entitlement source.",
			},
			[]string{"source"},
		),
		quotaExceeded: factory.NewCounter(prometheus.CounterOpts{
			Name: "palette_quota_exceeded_total",
			Help: "Generation requests refused for lack of quota.",
		}),
		billingEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "palette_billing_events_total",
				Help: "Billing webhook deliveries, by outcome.",
			},
			[]string{"outcome"},
		),
	}
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) GenerationRecorded(source string) {
	m.generations.WithLabelValues(source).Inc()
}

func (m *Metrics) QuotaExceeded() {
	m.quotaExceeded.Inc()
}

func (m *Metrics) BillingEvent(outcome string) {
	m.billingEvents.WithLabelValues(outcome).Inc()
}

// Middleware records count and latency per route pattern, so path
// parameters do not multiply series.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		code := strconv.Itoa(status)

		m.httpRequests.WithLabelValues(r.Method, route, code).Inc()
		m.httpDuration.WithLabelValues(r.Method, route, code).Observe(time.Since(start).Seconds())
	})
}
