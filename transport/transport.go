// Package transport carries wire envelopes between hub and connector.
// The engine is transport-agnostic: a WebSocket implementation serves
// real devices and an in-process pipe serves tests.
package transport

import (
	"context"

	"github.com/funkyflowstudios/synapse-hub-sub000/wire"
)

// Transport is a bidirectional, ordered envelope channel to a single
// peer. Send and Receive are safe for concurrent use. After Close, both
// return a wrapped ErrConnectionLost.
type Transport interface {
	// Send encodes and writes one envelope.
	Send(ctx context.Context, env *wire.Envelope) error

	// Receive blocks until the next envelope arrives, ctx is done, or
	// the transport closes.
	Receive(ctx context.Context) (*wire.Envelope, error)

	// Close tears the connection down. Safe to call more than once.
	Close() error
}

// Dialer establishes a Transport to an endpoint. Implemented by the
// WebSocket dialer and by pipe listeners in tests.
type Dialer interface {
	Dial(ctx context.Context, endpoint string) (Transport, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, endpoint string) (Transport, error)

// Dial implements Dialer.
func (f DialerFunc) Dial(ctx context.Context, endpoint string) (Transport, error) {
	return f(ctx, endpoint)
}
