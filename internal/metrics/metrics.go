package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/harun/toolkit/pkg/toolexecutor"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	registry *prometheus.Registry

	// Tool metrics
	ToolExecutionsTotal      *prometheus.CounterVec
	ToolExecutionDuration    *prometheus.HistogramVec
	ToolExecutionErrorsTotal *prometheus.CounterVec
	ToolCacheHitsTotal       *prometheus.CounterVec
	ToolRetriesTotal         *prometheus.CounterVec

	// HTTP adapter metrics
	HTTPRequestsTotal     *prometheus.CounterVec
	HTTPRequestDuration   *prometheus.HistogramVec
	HTTPRateLimitedTotal  prometheus.Counter
	ToolCachePurgesTotal  prometheus.Counter
	RegisteredToolsActive prometheus.Gauge
}

// NewMetrics creates and registers all metrics
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		// Tool metrics
		ToolExecutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tool_executions_total",
				Help: "Total number of tool executions",
			},
			[]string{"tool_name", "status"},
		),
		ToolExecutionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tool_execution_duration_seconds",
				Help:    "Duration of tool executions in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"tool_name"},
		),
		ToolExecutionErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tool_execution_errors_total",
				Help: "Total number of tool execution errors",
			},
			[]string{"tool_name", "error_type"},
		),
		ToolCacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tool_cache_hits_total",
				Help: "Total number of tool executions served from cache",
			},
			[]string{"tool_name"},
		),
		ToolRetriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tool_retries_total",
				Help: "Total number of retried tool attempts",
			},
			[]string{"tool_name"},
		),

		// HTTP adapter metrics
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"route", "method", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		HTTPRateLimitedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "http_rate_limited_total",
				Help: "Total number of HTTP requests rejected by the rate limiter",
			},
		),
		ToolCachePurgesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tool_cache_purges_total",
				Help: "Total number of scheduled tool cache purges",
			},
		),
		RegisteredToolsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "registered_tools",
				Help: "Number of tools in the registry",
			},
		),
	}

	// Register all metrics
	m.registerMetrics()

	return m
}

// registerMetrics registers all metrics with the registry
func (m *Metrics) registerMetrics() {
	// Tool metrics
	m.registry.MustRegister(m.ToolExecutionsTotal)
	m.registry.MustRegister(m.ToolExecutionDuration)
	m.registry.MustRegister(m.ToolExecutionErrorsTotal)
	m.registry.MustRegister(m.ToolCacheHitsTotal)
	m.registry.MustRegister(m.ToolRetriesTotal)

	// HTTP adapter metrics
	m.registry.MustRegister(m.HTTPRequestsTotal)
	m.registry.MustRegister(m.HTTPRequestDuration)
	m.registry.MustRegister(m.HTTPRateLimitedTotal)
	m.registry.MustRegister(m.ToolCachePurgesTotal)
	m.registry.MustRegister(m.RegisteredToolsActive)
}

// UnknownTool labels executions whose tool name did not resolve.
const UnknownTool = "unknown"

// Observe records a terminal executor event. It is a toolexecutor.Observer.
func (m *Metrics) Observe(ev toolexecutor.Event) {
	if !ev.State.Terminal() {
		return
	}

	// Unresolved names come from callers; one label keeps cardinality bounded.
	tool := ev.Tool
	if ev.State == toolexecutor.StateFailedResolution {
		tool = UnknownTool
	}

	status := "success"
	if ev.Err != nil {
		status = "error"
		m.ToolExecutionErrorsTotal.WithLabelValues(tool, toolexecutor.NewErrorInfo(ev.Err).Code).Inc()
	}
	m.ToolExecutionsTotal.WithLabelValues(tool, status).Inc()

	// Unknown tools never ran; keep them out of the latency histogram.
	if ev.State == toolexecutor.StateFailedResolution {
		return
	}
	m.ToolExecutionDuration.WithLabelValues(ev.Tool).Observe(ev.Duration.Seconds())

	if ev.Cached {
		m.ToolCacheHitsTotal.WithLabelValues(ev.Tool).Inc()
	}
	if ev.Attempt > 1 {
		m.ToolRetriesTotal.WithLabelValues(ev.Tool).Add(float64(ev.Attempt - 1))
	}
}

// ObserveHTTP records one HTTP request.
func (m *Metrics) ObserveHTTP(route, method, status string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(route, method, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(route).Observe(duration.Seconds())
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
