package transport

import (
	"context"
	"sync"

	"github.com/funkyflowstudios/synapse-hub-sub000/errors"
	"github.com/funkyflowstudios/synapse-hub-sub000/wire"
)

// pipeTransport is one end of an in-process envelope pipe. Used by
// tests and by embedded simulated devices.
type pipeTransport struct {
	send chan *wire.Envelope
	recv chan *wire.Envelope

	closeOnce sync.Once
	closed    chan struct{}
	peer      *pipeTransport
}

// Pipe returns two connected transports: envelopes sent on one are
// received on the other. Each direction buffers up to depth envelopes.
func Pipe(depth int) (Transport, Transport) {
	if depth < 1 {
		depth = 16
	}
	ab := make(chan *wire.Envelope, depth)
	ba := make(chan *wire.Envelope, depth)

	a := &pipeTransport{send: ab, recv: ba, closed: make(chan struct{})}
	b := &pipeTransport{send: ba, recv: ab, closed: make(chan struct{})}
	a.peer, b.peer = b, a
	return a, b
}

func (p *pipeTransport) Send(ctx context.Context, env *wire.Envelope) error {
	select {
	case <-p.closed:
		return errors.WrapTransient(errors.ErrConnectionLost, "pipe", "Send", "check closed")
	case <-p.peer.closed:
		return errors.WrapTransient(errors.ErrConnectionLost, "pipe", "Send", "peer closed")
	default:
	}
	select {
	case p.send <- env:
		return nil
	case <-p.closed:
		return errors.WrapTransient(errors.ErrConnectionLost, "pipe", "Send", "check closed")
	case <-p.peer.closed:
		return errors.WrapTransient(errors.ErrConnectionLost, "pipe", "Send", "peer closed")
	case <-ctx.Done():
		return errors.WrapTransient(ctx.Err(), "pipe", "Send", "check context")
	}
}

func (p *pipeTransport) Receive(ctx context.Context) (*wire.Envelope, error) {
	// Drain buffered envelopes even after the peer closes.
	select {
	case env := <-p.recv:
		return env, nil
	default:
	}
	select {
	case env := <-p.recv:
		return env, nil
	case <-p.closed:
		return nil, errors.WrapTransient(errors.ErrConnectionLost, "pipe", "Receive", "check closed")
	case <-p.peer.closed:
		return nil, errors.WrapTransient(errors.ErrConnectionLost, "pipe", "Receive", "peer closed")
	case <-ctx.Done():
		return nil, errors.WrapTransient(ctx.Err(), "pipe", "Receive", "check context")
	}
}

func (p *pipeTransport) Close() error {
	p.closeOnce.Do(func() { close(p.closed) })
	return nil
}
