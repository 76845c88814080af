// Package connector implements the per-device connection state machine,
// heartbeat monitor, command dispatcher, and stream buffers. All mutable
// state for one connector is owned by a single goroutine; inbound
// messages, heartbeat timers, command timeouts, and API calls all land
// on that goroutine's queue.
package connector

// State is the lifecycle state of one device connection.
type State int

// Connection states
const (
	StateDisconnected State = iota
	StateConnecting
	StateAuthenticating
	StateConnected
	StateDegraded
	StateClosing
	StateError
)

// String returns the lowercase wire representation of the state.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateConnected:
		return "connected"
	case StateDegraded:
		return "degraded"
	case StateClosing:
		return "closing"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Live reports whether the transport is expected to be usable; commands
// are still attempted in Degraded because the link may only be slow.
func (s State) Live() bool {
	return s == StateConnected || s == StateDegraded
}
