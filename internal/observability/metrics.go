package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// MetricsCollector holds all Prometheus metrics for Zana.
// Uses a custom registry — no global state.
type MetricsCollector struct {
	Registry *prometheus.Registry

	// Tool execution metrics.
	ToolExecutionsTotal   *prometheus.CounterVec
	ToolExecutionDuration *prometheus.HistogramVec

	// Browser engine metrics.
	EngineRequestsTotal   *prometheus.CounterVec
	EngineRequestDuration prometheus.Histogram

	// Credential resolution metrics. Labels carry kind and outcome,
	// never a credential value.
	ResolutionsTotal *prometheus.CounterVec

	// Vault metrics.
	VaultOperationsTotal *prometheus.CounterVec

	// Security validation metrics.
	SecurityChecksTotal *prometheus.CounterVec

	// Admin HTTP metrics.
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// System metrics.
	ActiveToolRuns prometheus.Gauge
}

// NewMetricsCollector creates a MetricsCollector with all metrics registered
// on a custom prometheus.Registry.
func NewMetricsCollector() *MetricsCollector {
	reg := prometheus.NewRegistry()

	m := &MetricsCollector{
		Registry: reg,

		ToolExecutionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "zana",
			Subsystem: "tool",
			Name:      "executions_total",
			Help:      "Total tool executions.",
		}, []string{"tool", "status"}),

		ToolExecutionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "zana",
			Subsystem: "tool",
			Name:      "execution_duration_seconds",
			Help:      "Tool execution duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 5, 15, 60, 180, 300},
		}, []string{"tool"}),

		EngineRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "zana",
			Subsystem: "engine",
			Name:      "requests_total",
			Help:      "Total browser engine round trips.",
		}, []string{"status"}),

		EngineRequestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "zana",
			Subsystem: "engine",
			Name:      "request_duration_seconds",
			Help:      "Browser engine round trip duration in seconds.",
			Buckets:   []float64{0.5, 1, 5, 15, 30, 60, 120, 300},
		}),

		ResolutionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "zana",
			Subsystem: "credentials",
			Name:      "resolutions_total",
			Help:      "Total credential resolutions by kind and outcome.",
		}, []string{"kind", "outcome"}),

		VaultOperationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "zana",
			Subsystem: "vault",
			Name:      "operations_total",
			Help:      "Total vault operations.",
		}, []string{"operation", "status"}),

		SecurityChecksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "zana",
			Subsystem: "security",
			Name:      "checks_total",
			Help:      "Total security validations performed.",
		}, []string{"check_type", "result"}),

		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "zana",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		}, []string{"method", "path", "status_code"}),

		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "zana",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),

		ActiveToolRuns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "zana",
			Name:      "active_tool_runs",
			Help:      "Number of currently executing tool calls.",
		}),
	}

	// Register all collectors.
	reg.MustRegister(
		m.ToolExecutionsTotal,
		m.ToolExecutionDuration,
		m.EngineRequestsTotal,
		m.EngineRequestDuration,
		m.ResolutionsTotal,
		m.VaultOperationsTotal,
		m.SecurityChecksTotal,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.ActiveToolRuns,
	)

	return m
}
