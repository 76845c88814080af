package connector

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/funkyflowstudios/synapse-hub-sub000/config"
	"github.com/funkyflowstudios/synapse-hub-sub000/errors"
	"github.com/funkyflowstudios/synapse-hub-sub000/event"
	"github.com/funkyflowstudios/synapse-hub-sub000/health"
	"github.com/funkyflowstudios/synapse-hub-sub000/metric"
	"github.com/funkyflowstudios/synapse-hub-sub000/pkg/retry"
	"github.com/funkyflowstudios/synapse-hub-sub000/transport"
	"github.com/funkyflowstudios/synapse-hub-sub000/wire"
)

// protocolVersion is the version the hub offers during the handshake.
const protocolVersion = "1.0"

// handshakeTimeout bounds the wait for an auth_ok / auth_fail reply.
const handshakeTimeout = 10 * time.Second

// Connector owns one device connection: its state machine, heartbeat,
// pending command table, and stream buffers. All of that state is
// mutated only on the connector's own goroutine; public methods post
// operations onto its queue and wait for results.
type Connector struct {
	id       string
	endpoint string
	creds    wire.Credentials
	cfg      *config.Config

	dialer    transport.Dialer
	bus       *event.Bus
	metrics   *metric.Metrics
	logger    *slog.Logger
	healthMon *health.Monitor

	ops      chan func()
	stop     chan struct{}
	stopOnce sync.Once

	// readable without the actor, written only by it
	stateMirror atomic.Int32

	// actor-owned state
	state        State
	tr           transport.Transport
	session      uint64
	negotiated   *wire.AuthOK
	connectedAt  time.Time
	lastActivity time.Time

	hb      heartbeat
	pending map[string]*pendingRequest

	streamMu sync.RWMutex
	streams  map[string]*stream
}

// Option configures a Connector.
type Option func(*Connector)

// WithMetrics wires engine metrics into the connector.
func WithMetrics(m *metric.Metrics) Option {
	return func(c *Connector) { c.metrics = m }
}

// WithLogger sets the connector's logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Connector) { c.logger = l }
}

// WithHealthMonitor publishes health snapshots to the given monitor.
func WithHealthMonitor(m *health.Monitor) Option {
	return func(c *Connector) { c.healthMon = m }
}

// New creates a connector and starts its processing goroutine. The
// connector begins Disconnected; call Connect to open the link.
func New(id, endpoint string, creds wire.Credentials, cfg *config.Config,
	dialer transport.Dialer, bus *event.Bus, opts ...Option) *Connector {

	c := &Connector{
		id:       id,
		endpoint: endpoint,
		creds:    creds,
		cfg:      cfg,
		dialer:   dialer,
		bus:      bus,
		logger:   slog.Default(),
		ops:      make(chan func(), 128),
		stop:     make(chan struct{}),
		state:    StateDisconnected,
		pending:  make(map[string]*pendingRequest),
		streams:  make(map[string]*stream),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("connector", id)
	go c.run()
	return c
}

// ID returns the connector identifier.
func (c *Connector) ID() string { return c.id }

// State returns the current connection state. Safe from any goroutine.
func (c *Connector) State() State {
	return State(c.stateMirror.Load())
}

func (c *Connector) run() {
	for {
		select {
		case op := <-c.ops:
			op()
		case <-c.stop:
			return
		}
	}
}

// do posts an operation onto the connector's queue. Returns false if
// the connector has been stopped.
func (c *Connector) do(op func()) bool {
	select {
	case c.ops <- op:
		return true
	case <-c.stop:
		return false
	}
}

type connectResult struct {
	state State
	err   error
}

// Connect opens the connection, performing the dial and auth handshake
// with bounded reconnect backoff. Calling Connect on a connector that
// is not Disconnected is an idempotent no-op returning the current
// state. Blocks until Connected or terminal failure.
func (c *Connector) Connect(ctx context.Context) (State, error) {
	ch := make(chan connectResult, 1)
	ok := c.do(func() {
		if c.state != StateDisconnected {
			ch <- connectResult{state: c.state}
			return
		}
		c.session++
		sess := c.session
		c.transition(StateConnecting, "connect requested")
		go c.establish(ctx, sess, ch)
	})
	if !ok {
		return StateDisconnected,
			errors.Wrap(errors.ErrConnectorRemoved, "connector", "Connect", "post connect")
	}

	select {
	case r := <-ch:
		return r.state, r.err
	case <-ctx.Done():
		return c.State(), errors.WrapTransient(ctx.Err(), "connector", "Connect", "wait for handshake")
	case <-c.stop:
		return StateDisconnected,
			errors.Wrap(errors.ErrConnectorRemoved, "connector", "Connect", "wait for handshake")
	}
}

// establish runs on its own goroutine; it posts every state mutation
// back onto the actor queue.
func (c *Connector) establish(ctx context.Context, sess uint64, ch chan<- connectResult) {
	rc := c.cfg.Reconnect
	bo := retry.NewBackoff(retry.Config{
		MaxAttempts:  rc.MaxAttempts,
		InitialDelay: rc.MinDelay.Std(),
		MaxDelay:     rc.MaxDelay.Std(),
		Multiplier:   rc.Multiplier,
		AddJitter:    true,
	})
	attempts := rc.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			if c.metrics != nil {
				c.metrics.ReconnectAttempts.WithLabelValues(c.id).Inc()
			}
			c.do(func() { c.transition(StateConnecting, "reconnecting") })
		}

		tr, neg, err := c.dialAndAuthenticate(ctx, sess)
		if err == nil {
			done := make(chan connectResult, 1)
			posted := c.do(func() { c.completeConnect(sess, tr, neg, done) })
			if !posted {
				_ = tr.Close()
				ch <- connectResult{state: StateDisconnected, err: errors.ErrConnectorRemoved}
				return
			}
			ch <- <-done
			return
		}
		lastErr = err

		c.do(func() { c.transition(StateError, err.Error()) })
		if errors.Is(err, errors.ErrProtocolMismatch) {
			// Version disagreement will not fix itself on retry.
			break
		}
		select {
		case <-time.After(bo.Next()):
		case <-ctx.Done():
			lastErr = ctx.Err()
			attempt = attempts
		case <-c.stop:
			ch <- connectResult{state: StateDisconnected, err: errors.ErrConnectorRemoved}
			return
		}
	}

	c.do(func() { c.transition(StateDisconnected, "connect attempts exhausted") })
	ch <- connectResult{
		state: StateDisconnected,
		err:   errors.WrapTransient(lastErr, "connector", "Connect", "establish connection"),
	}
}

// dialAndAuthenticate performs one dial plus handshake attempt.
func (c *Connector) dialAndAuthenticate(ctx context.Context, sess uint64) (transport.Transport, *wire.AuthOK, error) {
	tr, err := c.dialer.Dial(ctx, c.endpoint)
	if err != nil {
		return nil, nil, err
	}

	c.do(func() {
		if c.session == sess {
			c.transition(StateAuthenticating, "transport open")
		}
	})

	neg, err := c.handshake(ctx, tr)
	if err != nil {
		_ = tr.Close()
		return nil, nil, err
	}
	return tr, neg, nil
}

func (c *Connector) handshake(ctx context.Context, tr transport.Transport) (*wire.AuthOK, error) {
	req, err := wire.NewEnvelope(wire.KindAuth, wire.AuthRequest{
		ConnectorID:     c.id,
		Credentials:     c.creds,
		ProtocolVersion: protocolVersion,
	})
	if err != nil {
		return nil, err
	}

	hctx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()

	if err := tr.Send(hctx, req); err != nil {
		return nil, err
	}

	for {
		env, err := tr.Receive(hctx)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return nil, errors.Wrap(errors.ErrConnectionTimeout, "connector", "handshake", "await auth reply")
			}
			return nil, err
		}

		switch env.Kind {
		case wire.KindAuthOK:
			if env.CorrelationID != req.ID {
				continue
			}
			neg, err := wire.DecodePayload[wire.AuthOK](env)
			if err != nil {
				return nil, err
			}
			return &neg, nil

		case wire.KindAuthFail:
			fail, _ := wire.DecodePayload[wire.AuthFail](env)
			if fail.Code == "protocol_mismatch" {
				return nil, errors.WrapFatal(errors.ErrProtocolMismatch,
					"connector", "handshake", "negotiate version")
			}
			return nil, errors.WrapTransient(errors.ErrAuthenticationFailed,
				"connector", "handshake", "authenticate "+fail.Code)

		default:
			// Devices may emit hello or early telemetry before auth
			// settles; anything else is ignored until the reply arrives.
			continue
		}
	}
}

// completeConnect installs the transport and moves to Connected. Runs
// on the actor goroutine.
func (c *Connector) completeConnect(sess uint64, tr transport.Transport, neg *wire.AuthOK, done chan<- connectResult) {
	if c.session != sess || c.state == StateDisconnected {
		// Stopped or torn down while the handshake was in flight.
		_ = tr.Close()
		done <- connectResult{state: c.state, err: errors.ErrConnectionLost}
		return
	}

	c.tr = tr
	c.negotiated = neg
	c.connectedAt = time.Now()
	c.lastActivity = c.connectedAt
	if c.metrics != nil {
		c.metrics.ConnectionsTotal.Inc()
	}
	c.transition(StateConnected, "authenticated")
	c.startHeartbeat(sess)
	go c.readLoop(sess, tr)
	done <- connectResult{state: StateConnected}
}

// readLoop pumps inbound envelopes onto the actor queue.
func (c *Connector) readLoop(sess uint64, tr transport.Transport) {
	for {
		env, err := tr.Receive(context.Background())
		if err != nil {
			c.do(func() { c.handleTransportLost(sess) })
			return
		}
		if !c.do(func() { c.handleInbound(sess, env) }) {
			return
		}
	}
}

func (c *Connector) handleTransportLost(sess uint64) {
	if c.session != sess || c.state == StateDisconnected {
		return
	}
	c.teardown("transport lost")
}

// handleInbound routes one received envelope. Runs on the actor.
func (c *Connector) handleInbound(sess uint64, env *wire.Envelope) {
	if c.session != sess {
		return
	}
	c.lastActivity = time.Now()
	if c.metrics != nil {
		c.metrics.EnvelopesReceived.WithLabelValues(c.id, env.Kind.String()).Inc()
	}

	switch env.Kind {
	case wire.KindPong:
		c.handlePong(env)

	case wire.KindPing:
		ping, _ := wire.DecodePayload[wire.Ping](env)
		if pong, err := wire.NewResponse(env, wire.KindPong, wire.Pong{Seq: ping.Seq}); err == nil {
			_ = c.sendEnvelope(pong)
		}

	case wire.KindReading:
		r, err := wire.DecodePayload[wire.Reading](env)
		if err != nil {
			c.logger.Warn("malformed reading dropped", "error", err)
			return
		}
		_ = c.Ingest(r.StreamID, r)

	case wire.KindReadingBatch:
		batch, err := wire.DecodePayload[wire.ReadingBatch](env)
		if err != nil {
			c.logger.Warn("malformed reading batch dropped", "error", err)
			return
		}
		for _, r := range batch.Readings {
			_ = c.Ingest(r.StreamID, r)
		}

	case wire.KindDeviceFault:
		fault, err := wire.DecodePayload[wire.DeviceFault](env)
		if err != nil {
			return
		}
		c.bus.Publish(event.AlertRaised{
			ConnectorID: c.id,
			Code:        fault.Code,
			Severity:    fault.Severity,
			Message:     fault.Message,
			Recovery:    fault.Recovery,
			Timestamp:   time.Now(),
		})

	case wire.KindDeviceStatus:
		status, err := wire.DecodePayload[wire.DeviceStatus](env)
		if err != nil {
			return
		}
		if !status.Healthy {
			c.bus.Publish(event.AlertRaised{
				ConnectorID: c.id,
				Code:        "device.unhealthy",
				Severity:    wire.SeverityWarning,
				Message:     status.Detail,
				Timestamp:   time.Now(),
			})
		}

	case wire.KindStreamOverflow:
		ov, err := wire.DecodePayload[wire.StreamOverflow](env)
		if err != nil {
			return
		}
		c.bus.Publish(event.AlertRaised{
			ConnectorID: c.id,
			Code:        "stream.device_overflow",
			Severity:    wire.SeverityWarning,
			Message:     "device dropped readings on stream " + ov.StreamID,
			Timestamp:   time.Now(),
		})

	case wire.KindDisconnect, wire.KindGoodbye:
		c.teardown("device requested disconnect")

	default:
		if env.Kind.IsResponse() && env.CorrelationID != "" {
			c.resolvePending(env)
			return
		}
		c.logger.Debug("unhandled envelope", "kind", env.Kind)
	}
}

// sendEnvelope writes best-effort on the actor goroutine; transport
// failures surface through the read loop.
func (c *Connector) sendEnvelope(env *wire.Envelope) error {
	if c.tr == nil {
		return errors.Wrap(errors.ErrNotConnected, "connector", "sendEnvelope", "no transport")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.tr.Send(ctx, env); err != nil {
		return err
	}
	if c.metrics != nil {
		c.metrics.EnvelopesSent.WithLabelValues(c.id, env.Kind.String()).Inc()
	}
	return nil
}

// Disconnect closes the connection in an orderly fashion. Pending
// commands fail with ConnectionLost. No-op when already Disconnected.
func (c *Connector) Disconnect(ctx context.Context) error {
	done := make(chan struct{})
	ok := c.do(func() {
		defer close(done)
		if c.state == StateDisconnected {
			return
		}
		c.transition(StateClosing, "disconnect requested")
		if env, err := wire.NewEnvelope(wire.KindDisconnect, wire.Disconnect{Reason: "hub disconnect"}); err == nil {
			_ = c.sendEnvelope(env)
		}
		c.teardown("disconnected")
	})
	if !ok {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.WrapTransient(ctx.Err(), "connector", "Disconnect", "wait for close")
	}
}

// teardown tears the connection down to Disconnected: heartbeat timers
// stop, pending commands fail with ConnectionLost, and the transport
// closes. Stream buffers survive for later draining. Runs on the actor.
func (c *Connector) teardown(reason string) {
	c.stopHeartbeat()
	c.failAllPending(errors.ErrConnectionLost, "connection_lost")
	if c.tr != nil {
		_ = c.tr.Close()
		c.tr = nil
	}
	c.session++
	c.negotiated = nil
	c.transition(StateDisconnected, reason)
}

// Stop permanently shuts the connector down for deregistration. Pending
// commands fail with ConnectorRemoved and stream buffers are dropped.
func (c *Connector) Stop() {
	done := make(chan struct{})
	ok := c.do(func() {
		defer close(done)
		c.stopHeartbeat()
		c.failAllPending(errors.ErrConnectorRemoved, "removed")
		if c.tr != nil {
			_ = c.tr.Close()
			c.tr = nil
		}
		c.session++
		c.transition(StateDisconnected, "deregistered")
		c.closeStreams()
	})
	if ok {
		<-done
	}
	c.stopOnce.Do(func() { close(c.stop) })
}

// Status is a point-in-time snapshot of the connector.
type Status struct {
	ConnectorID string
	State       State
	Negotiated  *wire.AuthOK
	Health      health.Status
}

// GetStatus returns the connection state plus a health snapshot.
func (c *Connector) GetStatus() Status {
	ch := make(chan Status, 1)
	ok := c.do(func() { ch <- c.snapshot() })
	if !ok {
		st := health.NewUnhealthy(c.id, "connector removed").WithState(StateDisconnected.String())
		return Status{ConnectorID: c.id, State: StateDisconnected, Health: st}
	}
	select {
	case s := <-ch:
		return s
	case <-c.stop:
		st := health.NewUnhealthy(c.id, "connector removed").WithState(StateDisconnected.String())
		return Status{ConnectorID: c.id, State: StateDisconnected, Health: st}
	}
}

// snapshot runs on the actor goroutine.
func (c *Connector) snapshot() Status {
	var hs health.Status
	switch c.state {
	case StateConnected:
		hs = health.NewHealthy(c.id, "connected")
	case StateDegraded:
		hs = health.NewDegraded(c.id, "missed heartbeats")
	default:
		hs = health.NewUnhealthy(c.id, c.state.String())
	}
	hs = hs.WithState(c.state.String())

	var uptime time.Duration
	if c.state.Live() && !c.connectedAt.IsZero() {
		uptime = time.Since(c.connectedAt)
	}
	hs = hs.WithMetrics(&health.Metrics{
		Uptime:           uptime,
		RTT:              c.hb.ema,
		MissedBeats:      c.hb.misses,
		CommandsInFlight: len(c.pending),
		LastActivity:     c.lastActivity,
	})

	return Status{
		ConnectorID: c.id,
		State:       c.state,
		Negotiated:  c.negotiated,
		Health:      hs,
	}
}

// transition moves the state machine and emits the status change. Runs
// on the actor goroutine.
func (c *Connector) transition(to State, reason string) {
	if c.state == to {
		return
	}
	from := c.state
	c.state = to
	c.stateMirror.Store(int32(to))

	if c.metrics != nil {
		c.metrics.ConnectionState.WithLabelValues(c.id).Set(float64(to))
		c.metrics.StateTransitions.WithLabelValues(c.id, from.String(), to.String()).Inc()
	}
	if c.healthMon != nil {
		c.healthMon.Update(c.id, c.snapshot().Health)
	}
	c.logger.Info("connection state changed",
		"from", from.String(), "to", to.String(), "reason", reason)

	c.bus.Publish(event.StatusChanged{
		ConnectorID: c.id,
		From:        from.String(),
		To:          to.String(),
		Reason:      reason,
		Timestamp:   time.Now(),
	})
}
