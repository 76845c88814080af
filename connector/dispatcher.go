package connector

import (
	"context"
	"time"

	"github.com/funkyflowstudios/synapse-hub-sub000/errors"
	"github.com/funkyflowstudios/synapse-hub-sub000/wire"
)

// pendingRequest tracks one in-flight request envelope awaiting a
// correlated response. Retries reuse the same envelope ID so the device
// can deduplicate.
type pendingRequest struct {
	env        *wire.Envelope
	sends      int
	maxRetries int
	timeout    time.Duration
	maxBackoff time.Duration
	issuedAt   time.Time
	timer      *time.Timer
	sess       uint64
	ch         chan requestOutcome
}

type requestOutcome struct {
	env *wire.Envelope
	err error
}

// window returns the response deadline for send number n. The first
// retry waits the base timeout again; each retry after that doubles,
// bounded by maxBackoff.
func (p *pendingRequest) window(n int) time.Duration {
	d := p.timeout
	for i := 2; i < n; i++ {
		d *= 2
		if p.maxBackoff > 0 && d >= p.maxBackoff {
			return p.maxBackoff
		}
	}
	if p.maxBackoff > 0 && d > p.maxBackoff {
		d = p.maxBackoff
	}
	return d
}

// SendCommand dispatches a command to the device and waits for its
// correlated response. On timeout the same envelope is retried up to
// the configured maxRetries with doubling backoff; exhaustion fails
// with CommandTimeout. Requires Connected or Degraded.
func (c *Connector) SendCommand(ctx context.Context, cmd wire.CommandRequest, timeout time.Duration) (*wire.CommandResponse, error) {
	env, err := c.Request(ctx, wire.KindCommandRequest, cmd, timeout)
	if err != nil {
		return nil, err
	}

	resp, err := wire.DecodePayload[wire.CommandResponse](env)
	if err != nil {
		return nil, errors.WrapInvalid(err, "connector", "SendCommand", "decode response")
	}

	switch resp.Status {
	case wire.CommandUnsupported:
		return &resp, errors.WrapInvalid(errors.ErrUnsupportedOperation,
			"connector", "SendCommand", "execute "+cmd.Name)
	case wire.CommandRejected:
		return &resp, errors.WrapInvalid(errors.ErrInvalidCommand,
			"connector", "SendCommand", "execute "+cmd.Name)
	default:
		return &resp, nil
	}
}

// Request sends an arbitrary request-kind envelope and waits for its
// correlated response. Used by SendCommand and by the config and file
// operations; all share the same pending table and retry policy.
func (c *Connector) Request(ctx context.Context, kind wire.Kind, payload any, timeout time.Duration) (*wire.Envelope, error) {
	if timeout <= 0 {
		timeout = c.cfg.Command.DefaultTimeout.Std()
	}

	env, err := wire.NewEnvelope(kind, payload)
	if err != nil {
		return nil, err
	}

	outcome := make(chan requestOutcome, 1)
	ok := c.do(func() { c.dispatch(env, timeout, outcome) })
	if !ok {
		return nil, errors.Wrap(errors.ErrConnectorRemoved, "connector", "Request", "post dispatch")
	}

	select {
	case r := <-outcome:
		return r.env, r.err
	case <-ctx.Done():
		c.do(func() { c.abandonPending(env.ID) })
		return nil, errors.WrapTransient(ctx.Err(), "connector", "Request", "await response")
	}
}

// dispatch registers the pending entry and writes the first envelope.
// Runs on the actor goroutine.
func (c *Connector) dispatch(env *wire.Envelope, timeout time.Duration, outcome chan requestOutcome) {
	if !c.state.Live() {
		outcome <- requestOutcome{err: errors.Wrap(errors.ErrNotConnected,
			"connector", "dispatch", "check state "+c.state.String())}
		return
	}

	p := &pendingRequest{
		env:        env,
		sends:      1,
		maxRetries: c.cfg.Command.MaxRetries,
		timeout:    timeout,
		maxBackoff: c.cfg.Command.MaxBackoff.Std(),
		issuedAt:   time.Now(),
		sess:       c.session,
		ch:         outcome,
	}
	c.pending[env.ID] = p
	if c.metrics != nil {
		c.metrics.CommandsInFlight.Inc()
	}

	if err := c.sendEnvelope(env); err != nil {
		c.removePending(env.ID)
		outcome <- requestOutcome{err: errors.WrapTransient(errors.ErrConnectionLost,
			"connector", "dispatch", "write envelope")}
		return
	}
	c.armTimeout(p)
}

func (c *Connector) armTimeout(p *pendingRequest) {
	id := p.env.ID
	sess := p.sess
	p.timer = time.AfterFunc(p.window(p.sends), func() {
		c.do(func() { c.requestTimeout(sess, id) })
	})
}

// requestTimeout retries or fails an unanswered request. Runs on the
// actor goroutine.
func (c *Connector) requestTimeout(sess uint64, id string) {
	p, ok := c.pending[id]
	if !ok || p.sess != sess || c.session != sess {
		return
	}

	if p.sends <= p.maxRetries && c.state.Live() {
		p.sends++
		if c.metrics != nil {
			c.metrics.CommandRetries.WithLabelValues(c.id).Inc()
		}
		c.logger.Debug("retrying command", "commandId", id, "send", p.sends)
		if err := c.sendEnvelope(p.env); err == nil {
			c.armTimeout(p)
			return
		}
		// Write failure: fall through and fail the command now.
	}

	c.removePending(id)
	c.countOutcome("timeout", p)
	err := errors.WrapTransient(errors.ErrCommandTimeout,
		"connector", "dispatch", "await response to "+string(p.env.Kind))
	p.ch <- requestOutcome{err: errors.WithRecovery(err, errors.RecoveryRetry)}
}

// resolvePending completes the request matching a response's
// correlation ID. Unmatched responses are counted as orphans and
// discarded. Runs on the actor goroutine.
func (c *Connector) resolvePending(env *wire.Envelope) {
	p, ok := c.pending[env.CorrelationID]
	if !ok {
		if c.metrics != nil {
			c.metrics.OrphanedResponses.Inc()
		}
		c.logger.Debug("orphaned response discarded",
			"kind", env.Kind, "correlationId", env.CorrelationID)
		return
	}

	c.removePending(env.CorrelationID)
	c.countOutcome("ok", p)
	if c.metrics != nil {
		c.metrics.CommandDuration.WithLabelValues(c.id).Observe(time.Since(p.issuedAt).Seconds())
	}
	p.ch <- requestOutcome{env: env}
}

// failAllPending resolves every pending request with err immediately so
// callers never block past connection loss. Runs on the actor goroutine.
func (c *Connector) failAllPending(sentinel error, outcome string) {
	for id, p := range c.pending {
		if p.timer != nil {
			p.timer.Stop()
		}
		delete(c.pending, id)
		if c.metrics != nil {
			c.metrics.CommandsInFlight.Dec()
			c.metrics.CommandsTotal.WithLabelValues(c.id, outcome).Inc()
		}
		p.ch <- requestOutcome{err: errors.WrapTransient(sentinel,
			"connector", "dispatch", "resolve pending "+string(p.env.Kind))}
	}
}

// abandonPending drops a pending entry whose caller gave up waiting.
func (c *Connector) abandonPending(id string) {
	if _, ok := c.pending[id]; ok {
		c.removePending(id)
	}
}

func (c *Connector) removePending(id string) {
	p, ok := c.pending[id]
	if !ok {
		return
	}
	if p.timer != nil {
		p.timer.Stop()
	}
	delete(c.pending, id)
	if c.metrics != nil {
		c.metrics.CommandsInFlight.Dec()
	}
}

func (c *Connector) countOutcome(outcome string, _ *pendingRequest) {
	if c.metrics != nil {
		c.metrics.CommandsTotal.WithLabelValues(c.id, outcome).Inc()
	}
}
