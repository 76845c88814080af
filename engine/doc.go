// Package engine is the top-level facade over the connector protocol
// stack. It owns the connection registry, the event bus, and the
// optional NATS bridge and metrics endpoint, and exposes the hub-side
// operations: connect, disconnect, command dispatch, telemetry
// subscription, and status queries.
package engine
