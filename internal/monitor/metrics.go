package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the interpreter service.
type Metrics struct {
	Registry *prometheus.Registry

	ExecutionsTotal     *prometheus.CounterVec
	ExecutionDuration   *prometheus.HistogramVec
	ExecutionAttempts   *prometheus.CounterVec
	ActiveExecutions    prometheus.Gauge
	InstallsTotal       *prometheus.CounterVec
	InstallDuration     prometheus.Histogram
	ChartRendersTotal   *prometheus.CounterVec
	AdmissionRejections prometheus.Counter
	AdmissionClients    prometheus.Gauge
	ThrottleRejections  prometheus.Counter
	RequestsInFlight    prometheus.Gauge
	CodeSizeBytes       prometheus.Histogram
	OutputSizeBytes     prometheus.Histogram
	InvalidRequests     *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics using a dedicated registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,

		ExecutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "interpreter",
				Name:      "executions_total",
				Help:      "Total number of snippet executions by language and status.",
			},
			[]string{"language", "status"},
		),

		ExecutionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "interpreter",
				Name:      "execution_duration_seconds",
				Help:      "Duration of snippet executions in seconds, including any install and retry.",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 300},
			},
			[]string{"language"},
		),

		ExecutionAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "interpreter",
				Name:      "execution_attempts_total",
				Help:      "Snippet runs by executor state.",
			},
			[]string{"state"},
		),

		ActiveExecutions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "interpreter",
				Name:      "active_executions",
				Help:      "Number of snippets currently running.",
			},
		),

		InstallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "interpreter",
				Name:      "dependency_installs_total",
				Help:      "Dependency install attempts by result.",
			},
			[]string{"result"},
		),

		InstallDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "interpreter",
				Name:      "dependency_install_duration_seconds",
				Help:      "Duration of package manager invocations.",
				Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
		),

		ChartRendersTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "interpreter",
				Name:      "chart_renders_total",
				Help:      "Chart render requests by status.",
			},
			[]string{"status"},
		),

		AdmissionRejections: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "interpreter",
				Subsystem: "admission",
				Name:      "rejections_total",
				Help:      "Requests rejected because the client exceeded its request budget.",
			},
		),

		AdmissionClients: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "interpreter",
				Subsystem: "admission",
				Name:      "tracked_clients",
				Help:      "Distinct client addresses held by the admission counter. Never decreases.",
			},
		),

		ThrottleRejections: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "interpreter",
				Subsystem: "throttle",
				Name:      "rejections_total",
				Help:      "Requests rejected by the optional per-client token bucket.",
			},
		),

		RequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "interpreter",
				Subsystem: "api",
				Name:      "requests_in_flight",
				Help:      "Number of HTTP requests currently being processed.",
			},
		),

		CodeSizeBytes: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "interpreter",
				Name:      "code_size_bytes",
				Help:      "Size of submitted code in bytes.",
				Buckets:   prometheus.ExponentialBuckets(100, 4, 8),
			},
		),

		OutputSizeBytes: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "interpreter",
				Name:      "output_size_bytes",
				Help:      "Size of returned result text in bytes.",
				Buckets:   prometheus.ExponentialBuckets(10, 4, 8),
			},
		),

		InvalidRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "interpreter",
				Name:      "invalid_requests_total",
				Help:      "Requests rejected by validation, by error code.",
			},
			[]string{"code"},
		),
	}

	reg.MustRegister(
		m.ExecutionsTotal,
		m.ExecutionDuration,
		m.ExecutionAttempts,
		m.ActiveExecutions,
		m.InstallsTotal,
		m.InstallDuration,
		m.ChartRendersTotal,
		m.AdmissionRejections,
		m.AdmissionClients,
		m.ThrottleRejections,
		m.RequestsInFlight,
		m.CodeSizeBytes,
		m.OutputSizeBytes,
		m.InvalidRequests,
	)

	return m
}

// RecordExecution records metrics for a completed execution.
func (m *Metrics) RecordExecution(language, status string, durationSec float64) {
	m.ExecutionsTotal.WithLabelValues(language, status).Inc()
	m.ExecutionDuration.WithLabelValues(language).Observe(durationSec)
}

// RecordAttempt counts one run of a snippet in the given executor state.
func (m *Metrics) RecordAttempt(state string) {
	m.ExecutionAttempts.WithLabelValues(state).Inc()
}

// RecordInstall records one package manager invocation.
func (m *Metrics) RecordInstall(ok bool, durationSec float64) {
	result := "failure"
	if ok {
		result = "success"
	}
	m.InstallsTotal.WithLabelValues(result).Inc()
	m.InstallDuration.Observe(durationSec)
}

// RecordChart records a chart render outcome.
func (m *Metrics) RecordChart(status string) {
	m.ChartRendersTotal.WithLabelValues(status).Inc()
}
