// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// RunsTotal tracks completed agent runs by mode and outcome.
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_runs_total",
			Help: "Agent runs by mode and outcome",
		},
		[]string{"mode", "outcome"},
	)

	// RunDuration tracks agent run duration from submission to terminal
	// outcome.
	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agent_run_duration_seconds",
			Help:    "Agent run duration in seconds",
			Buckets: []float64{1, 2, 5, 10, 20, 30, 45, 60, 90, 120},
		},
		[]string{"mode"},
	)

	// RunPollsTotal tracks status polls issued while awaiting runs.
	RunPollsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "agent_run_polls_total",
			Help: "Run status polls issued",
		},
	)

	// DeltaEventsTotal tracks incremental output fragments consumed from
	// run event streams.
	DeltaEventsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "agent_delta_events_total",
			Help: "Delta events consumed from run streams",
		},
	)

	// SSEConnectionsActive tracks active SSE connections.
	SSEConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sse_connections_active",
			Help: "Number of active SSE connections",
		},
	)

	// SessionsActive tracks live conversation sessions held by the
	// registry.
	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_sessions_active",
			Help: "Conversation sessions currently registered",
		},
	)

	// ThreadRehydrationsTotal tracks attempts to resume a remembered
	// thread after session teardown.
	ThreadRehydrationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thread_rehydrations_total",
			Help: "Thread rehydration attempts by result",
		},
		[]string{"result"},
	)

	// WakeRunsTotal tracks warm-up runs by outcome.
	WakeRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_wake_runs_total",
			Help: "Warm-up runs by outcome",
		},
		[]string{"outcome"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordRun records metrics for a finished agent run.
func RecordRun(mode, outcome string, duration float64) {
	RunsTotal.WithLabelValues(mode, outcome).Inc()
	RunDuration.WithLabelValues(mode).Observe(duration)
}

// IncrementSSEConnections increments the active SSE connection count.
func IncrementSSEConnections() {
	SSEConnectionsActive.Inc()
}

// DecrementSSEConnections decrements the active SSE connection count.
func DecrementSSEConnections() {
	SSEConnectionsActive.Dec()
}
