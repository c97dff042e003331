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

	// RelayConnectionsActive tracks live voice relay connections.
	RelayConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_connections_active",
			Help: "Number of active voice relay connections",
		},
	)

	// RelaySessionDuration tracks how long relay sessions last.
	RelaySessionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relay_session_duration_seconds",
			Help:    "Voice relay session duration",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1200, 1800},
		},
		[]string{"status"},
	)

	// UpstreamEventsTotal tracks events received from the realtime service.
	UpstreamEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstream_events_total",
			Help: "Total events received from the realtime service",
		},
		[]string{"type"},
	)

	// ToolCallsTotal tracks tool invocations dispatched mid-turn.
	ToolCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tool_calls_total",
			Help: "Total tool calls dispatched",
		},
		[]string{"name", "outcome"},
	)

	// CalendarEventsTotal tracks calendar events created.
	CalendarEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "calendar_events_total",
			Help: "Total calendar events created",
		},
		[]string{"outcome"},
	)

	// TimeParseFallbacksTotal tracks degraded timestamp normalizations.
	TimeParseFallbacksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "time_parse_fallbacks_total",
			Help: "Timestamp strings that fell back to a default instant",
		},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// IncrementRelayConnections increments the active relay connection count.
func IncrementRelayConnections() {
	RelayConnectionsActive.Inc()
}

// DecrementRelayConnections decrements the active relay connection count.
func DecrementRelayConnections() {
	RelayConnectionsActive.Dec()
}

// RecordToolCall records a dispatched tool call.
func RecordToolCall(name, outcome string) {
	ToolCallsTotal.WithLabelValues(name, outcome).Inc()
}
