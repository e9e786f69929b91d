// Package metrics exposes consistency run counters to Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cfsck/internal/consistency"
)

// Metrics owns a registry and the collectors registered on it.
type Metrics struct {
	registry *prometheus.Registry

	divergences    *prometheus.CounterVec
	repairs        *prometheus.CounterVec
	tenantFailures *prometheus.CounterVec
	httpRequests   *prometheus.CounterVec
	httpDurations  *prometheus.HistogramVec
}

// New registers all collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		divergences: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cfsck_divergences_total",
			Help: "Divergences found, by kind",
		}, []string{"kind"}),
		repairs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cfsck_repairs_total",
			Help: "Per-id repair attempts, by kind, action and outcome",
		}, []string{"kind", "action", "outcome"}),
		tenantFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cfsck_context_failures_total",
			Help: "Contexts that could not be checked or recounted, by stage",
		}, []string{"stage"}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cfsck_http_requests_total",
			Help: "HTTP requests served, by method, route and status",
		}, []string{"method", "route", "status"}),
		httpDurations: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cfsck_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
		}, []string{"method", "route"}),
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveDivergences(kind consistency.Kind, count int) {
	m.divergences.WithLabelValues(string(kind)).Add(float64(count))
}

func (m *Metrics) ObserveRepair(kind consistency.Kind, action consistency.Action, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.repairs.WithLabelValues(string(kind), string(action), outcome).Inc()
}

func (m *Metrics) ObserveTenantFailure(stage string) {
	m.tenantFailures.WithLabelValues(stage).Inc()
}

// ObserveRequest records one served HTTP request.
func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDurations.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

var _ consistency.Observer = (*Metrics)(nil)
