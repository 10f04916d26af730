package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the runtime
type Metrics struct {
	registry *prometheus.Registry

	// Invocation metrics
	InvocationsTotal   *prometheus.CounterVec
	InvocationDuration *prometheus.HistogramVec
	InvocationErrors   *prometheus.CounterVec

	// Cache metrics
	CacheLookupsTotal   *prometheus.CounterVec
	CacheEvictionsTotal prometheus.Counter

	// Plugin metrics
	PluginHandlerErrorsTotal *prometheus.CounterVec

	// Alert metrics
	AlertsTotal *prometheus.CounterVec
}

// New creates and registers all metrics
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		InvocationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tool_invocations_total",
				Help: "Total number of tool invocations",
			},
			[]string{"tool", "status"},
		),
		InvocationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tool_invocation_duration_seconds",
				Help:    "Duration of tool invocations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"tool"},
		),
		InvocationErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tool_invocation_errors_total",
				Help: "Total number of classified invocation failures",
			},
			[]string{"tool", "kind"},
		),

		CacheLookupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_lookups_total",
				Help: "Total number of cache lookups by result",
			},
			[]string{"result"},
		),
		CacheEvictionsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_evictions_total",
				Help: "Total number of cache evictions",
			},
		),

		PluginHandlerErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plugin_handler_errors_total",
				Help: "Total number of absorbed plugin handler failures",
			},
			[]string{"plugin"},
		),

		AlertsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "monitor_alerts_total",
				Help: "Total number of threshold alerts raised",
			},
			[]string{"kind"},
		),
	}

	m.registerMetrics()

	return m
}

// registerMetrics registers all metrics with the registry
func (m *Metrics) registerMetrics() {
	m.registry.MustRegister(m.InvocationsTotal)
	m.registry.MustRegister(m.InvocationDuration)
	m.registry.MustRegister(m.InvocationErrors)

	m.registry.MustRegister(m.CacheLookupsTotal)
	m.registry.MustRegister(m.CacheEvictionsTotal)

	m.registry.MustRegister(m.PluginHandlerErrorsTotal)

	m.registry.MustRegister(m.AlertsTotal)
}

// Handler returns an HTTP handler for the metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
