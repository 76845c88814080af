// Package synapse is the hub-side engine for the Synapse connector
// protocol: a JSON envelope protocol spoken between a central hub and
// fleets of edge devices (PLCs, sensor gateways, robots).
//
// # Architecture
//
// The engine owns one connection per registered connector and drives it
// through an explicit lifecycle:
//
//	┌─────────────────────────────────────┐
//	│             Engine                  │  connect, disconnect,
//	│   (registry, event bus, surfaces)   │  command, subscribe
//	└─────────────────────────────────────┘
//	           ↓ one per device
//	┌─────────────────────────────────────┐
//	│            Connector                │  state machine, heartbeat,
//	│  (actor goroutine per connection)   │  command retry, stream buffers
//	└─────────────────────────────────────┘
//	           ↓ speaks
//	┌─────────────────────────────────────┐
//	│         Wire / Transport            │  JSON envelopes over
//	│    (envelope codec, WebSocket)      │  WebSocket or in-memory pipe
//	└─────────────────────────────────────┘
//
// Telemetry flowing in from devices lands in per-stream bounded buffers
// with configurable eviction, and is fanned out to subscribers through
// the event bus. Status changes and device faults travel the same bus
// and can be mirrored to NATS subjects for other services.
//
// # Packages
//
// Core:
//   - engine: top-level facade and lifecycle
//   - connector: per-device state machine, heartbeat, command dispatch
//   - registry: connector registration and lookup
//   - wire: envelope format, message kinds, payloads
//   - transport: WebSocket and in-memory transports
//   - event: typed event fan-out and the NATS bridge
//
// Infrastructure:
//   - config: configuration loading and validation
//   - errors: structured error handling
//   - health: health check system
//   - metric: Prometheus metrics
//   - pkg/buffer: bounded generic buffers for streaming
//   - pkg/retry: retry policies
//   - pkg/worker: worker pools
//   - pkg/cache: TTL caching
//   - pkg/tlsutil: TLS and mTLS configuration
//
// # Binary
//
// cmd/synapse-hub runs the hub daemon: it loads the config, dials the
// declared connectors, serves Prometheus metrics, and bridges events to
// NATS when enabled.
package synapse
