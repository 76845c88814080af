package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/funkyflowstudios/synapse-hub-sub000/errors"
	"github.com/funkyflowstudios/synapse-hub-sub000/wire"
)

// WebSocketTransport carries envelopes over a single WebSocket
// connection. Writes are serialized with a mutex; reads run on the
// caller's goroutine and are rate limited when a limiter is configured.
type WebSocketTransport struct {
	conn    *websocket.Conn
	codec   wire.Codec
	limiter *rate.Limiter

	writeMu      sync.Mutex
	writeTimeout time.Duration

	closeOnce sync.Once
	closed    chan struct{}
}

// WebSocketOption configures a WebSocketTransport.
type WebSocketOption func(*WebSocketTransport)

// WithRateLimit bounds inbound envelopes to perSecond with the given
// burst. Excess reads wait rather than drop.
func WithRateLimit(perSecond float64, burst int) WebSocketOption {
	return func(t *WebSocketTransport) {
		if perSecond > 0 {
			t.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		}
	}
}

// WithWriteTimeout bounds each Send. Zero disables the deadline.
func WithWriteTimeout(d time.Duration) WebSocketOption {
	return func(t *WebSocketTransport) { t.writeTimeout = d }
}

// NewWebSocketTransport wraps an established WebSocket connection.
func NewWebSocketTransport(conn *websocket.Conn, opts ...WebSocketOption) *WebSocketTransport {
	t := &WebSocketTransport{
		conn:         conn,
		codec:        wire.NewJSONCodec(),
		writeTimeout: 10 * time.Second,
		closed:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Send implements Transport.
func (t *WebSocketTransport) Send(ctx context.Context, env *wire.Envelope) error {
	select {
	case <-t.closed:
		return errors.WrapTransient(errors.ErrConnectionLost, "transport", "Send", "check closed")
	case <-ctx.Done():
		return errors.WrapTransient(ctx.Err(), "transport", "Send", "check context")
	default:
	}

	data, err := t.codec.Encode(env)
	if err != nil {
		return err
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if t.writeTimeout > 0 {
		_ = t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout))
	}
	if err := t.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return errors.WrapTransient(
			fmt.Errorf("%w: %v", errors.ErrConnectionLost, err),
			"transport", "Send", "write message",
		)
	}
	return nil
}

// Receive implements Transport. A short read deadline keeps the loop
// responsive to ctx and Close.
func (t *WebSocketTransport) Receive(ctx context.Context) (*wire.Envelope, error) {
	for {
		select {
		case <-t.closed:
			return nil, errors.WrapTransient(errors.ErrConnectionLost, "transport", "Receive", "check closed")
		case <-ctx.Done():
			return nil, errors.WrapTransient(ctx.Err(), "transport", "Receive", "check context")
		default:
		}

		_ = t.conn.SetReadDeadline(time.Now().Add(time.Second))
		_, data, err := t.conn.ReadMessage()
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			return nil, errors.WrapTransient(
				fmt.Errorf("%w: %v", errors.ErrConnectionLost, err),
				"transport", "Receive", "read message",
			)
		}

		if t.limiter != nil {
			if err := t.limiter.Wait(ctx); err != nil {
				return nil, errors.WrapTransient(err, "transport", "Receive", "rate limit wait")
			}
		}

		env, err := t.codec.Decode(data)
		if err != nil {
			// Malformed frames are dropped, not fatal to the connection.
			continue
		}
		return env, nil
	}
}

// Close implements Transport.
func (t *WebSocketTransport) Close() error {
	t.closeOnce.Do(func() {
		close(t.closed)
		deadline := time.Now().Add(time.Second)
		_ = t.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		_ = t.conn.Close()
	})
	return nil
}

// WebSocketDialer dials connector endpoints over WebSocket. A non-nil
// TLSConfig is used for wss endpoints, including mutual TLS when the
// config carries a client certificate.
type WebSocketDialer struct {
	HandshakeTimeout time.Duration
	RatePerSecond    float64
	RateBurst        int
	WriteTimeout     time.Duration
	TLSConfig        *tls.Config
}

// Dial implements Dialer.
func (d *WebSocketDialer) Dial(ctx context.Context, endpoint string) (Transport, error) {
	dialer := &websocket.Dialer{
		HandshakeTimeout: d.HandshakeTimeout,
		TLSClientConfig:  d.TLSConfig,
	}
	if dialer.HandshakeTimeout == 0 {
		dialer.HandshakeTimeout = 10 * time.Second
	}

	conn, resp, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		if resp != nil {
			_ = resp.Body.Close()
		}
		return nil, errors.WrapTransient(
			fmt.Errorf("%w: %v", errors.ErrConnectionFailed, err),
			"transport", "Dial", "dial "+endpoint,
		)
	}
	if resp != nil {
		_ = resp.Body.Close()
	}

	opts := []WebSocketOption{WithRateLimit(d.RatePerSecond, d.RateBurst)}
	if d.WriteTimeout > 0 {
		opts = append(opts, WithWriteTimeout(d.WriteTimeout))
	}
	return NewWebSocketTransport(conn, opts...), nil
}
