// Package metric provides Prometheus metrics for the connector protocol
// engine. Core engine metrics live in Metrics; components register their
// own collectors through the MetricsRegistry.
package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains all engine-level metrics (not connector-specific)
type Metrics struct {
	// Connection metrics
	ConnectionState   *prometheus.GaugeVec
	ConnectionsTotal  prometheus.Counter
	ReconnectAttempts *prometheus.CounterVec
	StateTransitions  *prometheus.CounterVec

	// Command metrics
	CommandsInFlight prometheus.Gauge
	CommandsTotal    *prometheus.CounterVec
	CommandRetries   *prometheus.CounterVec
	CommandDuration  *prometheus.HistogramVec

	// Heartbeat metrics
	HeartbeatRTT    *prometheus.GaugeVec
	HeartbeatMisses *prometheus.CounterVec

	// Envelope metrics
	EnvelopesSent     *prometheus.CounterVec
	EnvelopesReceived *prometheus.CounterVec
	OrphanedResponses prometheus.Counter

	// Stream buffer metrics
	ReadingsIngested *prometheus.CounterVec
	ReadingsDropped  *prometheus.CounterVec

	// Event fan-out metrics
	EventsPublished *prometheus.CounterVec
	EventsDropped   *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all engine metrics
func NewMetrics() *Metrics {
	return &Metrics{
		ConnectionState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "synapse",
				Subsystem: "connection",
				Name:      "state",
				Help:      "Connection state (0=disconnected, 1=connecting, 2=authenticating, 3=connected, 4=degraded, 5=closing, 6=error)",
			},
			[]string{"connector"},
		),

		ConnectionsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "synapse",
				Subsystem: "connection",
				Name:      "established_total",
				Help:      "Total number of connections successfully established",
			},
		),

		ReconnectAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "synapse",
				Subsystem: "connection",
				Name:      "reconnect_attempts_total",
				Help:      "Total reconnect attempts by connector",
			},
			[]string{"connector"},
		),

		StateTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "synapse",
				Subsystem: "connection",
				Name:      "state_transitions_total",
				Help:      "Total connection state transitions",
			},
			[]string{"connector", "from", "to"},
		),

		CommandsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "synapse",
				Subsystem: "command",
				Name:      "in_flight",
				Help:      "Number of commands currently awaiting responses",
			},
		),

		CommandsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "synapse",
				Subsystem: "command",
				Name:      "total",
				Help:      "Total commands dispatched by outcome (ok, timeout, connection_lost, rejected)",
			},
			[]string{"connector", "outcome"},
		),

		CommandRetries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "synapse",
				Subsystem: "command",
				Name:      "retries_total",
				Help:      "Total command retry envelopes sent",
			},
			[]string{"connector"},
		),

		CommandDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "synapse",
				Subsystem: "command",
				Name:      "duration_seconds",
				Help:      "Command round-trip duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"connector"},
		),

		HeartbeatRTT: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "synapse",
				Subsystem: "heartbeat",
				Name:      "rtt_seconds",
				Help:      "Rolling heartbeat round-trip estimate in seconds",
			},
			[]string{"connector"},
		),

		HeartbeatMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "synapse",
				Subsystem: "heartbeat",
				Name:      "misses_total",
				Help:      "Total missed heartbeat pongs",
			},
			[]string{"connector"},
		),

		EnvelopesSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "synapse",
				Subsystem: "wire",
				Name:      "envelopes_sent_total",
				Help:      "Total envelopes written to the transport",
			},
			[]string{"connector", "kind"},
		),

		EnvelopesReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "synapse",
				Subsystem: "wire",
				Name:      "envelopes_received_total",
				Help:      "Total envelopes decoded from the transport",
			},
			[]string{"connector", "kind"},
		),

		OrphanedResponses: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "synapse",
				Subsystem: "wire",
				Name:      "orphaned_responses_total",
				Help:      "Responses whose correlation ID matched no pending request",
			},
		),

		ReadingsIngested: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "synapse",
				Subsystem: "stream",
				Name:      "readings_ingested_total",
				Help:      "Total telemetry readings accepted into stream buffers",
			},
			[]string{"connector", "stream"},
		),

		ReadingsDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "synapse",
				Subsystem: "stream",
				Name:      "readings_dropped_total",
				Help:      "Total telemetry readings dropped by overflow policy",
			},
			[]string{"connector", "stream", "reason"},
		),

		EventsPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "synapse",
				Subsystem: "events",
				Name:      "published_total",
				Help:      "Total events delivered to subscribers",
			},
			[]string{"family"},
		),

		EventsDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "synapse",
				Subsystem: "events",
				Name:      "dropped_total",
				Help:      "Total events dropped due to slow subscribers",
			},
			[]string{"family"},
		),
	}
}

// collectors returns every core collector for bulk registration
func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.ConnectionState,
		m.ConnectionsTotal,
		m.ReconnectAttempts,
		m.StateTransitions,
		m.CommandsInFlight,
		m.CommandsTotal,
		m.CommandRetries,
		m.CommandDuration,
		m.HeartbeatRTT,
		m.HeartbeatMisses,
		m.EnvelopesSent,
		m.EnvelopesReceived,
		m.OrphanedResponses,
		m.ReadingsIngested,
		m.ReadingsDropped,
		m.EventsPublished,
		m.EventsDropped,
	}
}
