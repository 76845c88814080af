package connector

import (
	"time"

	"github.com/funkyflowstudios/synapse-hub-sub000/wire"
)

// emaAlpha weights the newest RTT sample in the rolling estimate.
const emaAlpha = 0.3

// heartbeat holds the liveness state for the current session. Mutated
// only on the connector's goroutine; timer callbacks post back onto it.
type heartbeat struct {
	base     time.Duration // configured interval
	interval time.Duration // current, adaptive
	ema      time.Duration
	misses   int
	seq      uint64
	inFlight map[uint64]time.Time
	tick     *time.Timer
	grace    *time.Timer
	running  bool
}

func (c *Connector) startHeartbeat(sess uint64) {
	hc := c.cfg.Heartbeat
	c.hb = heartbeat{
		base:     hc.Interval.Std(),
		interval: hc.Interval.Std(),
		inFlight: make(map[uint64]time.Time),
		running:  true,
	}
	c.scheduleTick(sess, c.hb.interval)
}

func (c *Connector) stopHeartbeat() {
	c.hb.running = false
	if c.hb.tick != nil {
		c.hb.tick.Stop()
		c.hb.tick = nil
	}
	c.stopGrace()
	c.hb.inFlight = nil
}

func (c *Connector) scheduleTick(sess uint64, d time.Duration) {
	c.hb.tick = time.AfterFunc(d, func() {
		c.do(func() { c.heartbeatTick(sess) })
	})
}

// heartbeatTick sends one ping and arms its miss deadline. Runs on the
// actor goroutine.
func (c *Connector) heartbeatTick(sess uint64) {
	if c.session != sess || !c.hb.running || !c.state.Live() {
		return
	}

	c.hb.seq++
	seq := c.hb.seq
	c.hb.inFlight[seq] = time.Now()

	if env, err := wire.NewEnvelope(wire.KindPing, wire.Ping{Seq: seq}); err == nil {
		_ = c.sendEnvelope(env)
	}

	timeout := c.cfg.Heartbeat.Timeout.Std()
	time.AfterFunc(timeout, func() {
		c.do(func() { c.heartbeatMiss(sess, seq) })
	})

	c.scheduleTick(sess, c.hb.interval)
}

// heartbeatMiss fires when a ping's timeout elapses. If the pong for
// that sequence never arrived, the miss counter advances; crossing the
// threshold degrades the connection. Runs on the actor goroutine.
func (c *Connector) heartbeatMiss(sess uint64, seq uint64) {
	if c.session != sess || !c.hb.running {
		return
	}
	if _, unanswered := c.hb.inFlight[seq]; !unanswered {
		return
	}
	delete(c.hb.inFlight, seq)

	c.hb.misses++
	if c.metrics != nil {
		c.metrics.HeartbeatMisses.WithLabelValues(c.id).Inc()
	}
	c.logger.Debug("heartbeat missed", "seq", seq, "consecutive", c.hb.misses)

	if c.hb.misses >= c.cfg.Heartbeat.MissThreshold && c.state == StateConnected {
		c.transition(StateDegraded, "missed heartbeats")
		c.startGrace(sess)
	}
}

// handlePong resets the miss counter, updates the latency estimate, and
// adapts the send interval. Runs on the actor goroutine.
func (c *Connector) handlePong(env *wire.Envelope) {
	if !c.hb.running {
		return
	}
	pong, err := wire.DecodePayload[wire.Pong](env)
	if err != nil {
		return
	}
	sentAt, ok := c.hb.inFlight[pong.Seq]
	if !ok {
		// Pong for a ping already counted as missed; liveness is still
		// proven, so recover, but the RTT sample is unusable.
		c.recoverFromMisses()
		return
	}
	delete(c.hb.inFlight, pong.Seq)

	rtt := time.Since(sentAt)
	prev := c.hb.ema
	if prev == 0 {
		c.hb.ema = rtt
	} else {
		c.hb.ema = time.Duration(emaAlpha*float64(rtt) + (1-emaAlpha)*float64(prev))
	}
	if c.metrics != nil {
		c.metrics.HeartbeatRTT.WithLabelValues(c.id).Set(c.hb.ema.Seconds())
	}

	c.adaptInterval(rtt, prev)
	c.recoverFromMisses()
}

// adaptInterval halves the send rate when latency runs hot (RTT above
// twice the rolling estimate) and eases back toward the configured base
// when it settles, clamped to the configured floor and ceiling.
func (c *Connector) adaptInterval(rtt, prevEMA time.Duration) {
	hc := c.cfg.Heartbeat
	switch {
	case prevEMA > 0 && rtt > 2*prevEMA:
		c.hb.interval *= 2
		if max := hc.MaxInterval.Std(); max > 0 && c.hb.interval > max {
			c.hb.interval = max
		}
	case c.hb.interval > c.hb.base:
		c.hb.interval /= 2
		if c.hb.interval < c.hb.base {
			c.hb.interval = c.hb.base
		}
	}
	if min := hc.MinInterval.Std(); min > 0 && c.hb.interval < min {
		c.hb.interval = min
	}
}

func (c *Connector) recoverFromMisses() {
	c.hb.misses = 0
	if c.state == StateDegraded {
		c.stopGrace()
		c.transition(StateConnected, "heartbeat recovered")
	}
}

// startGrace arms the degraded-state deadline: if no pong arrives
// before it fires, the connection is torn down.
func (c *Connector) startGrace(sess uint64) {
	grace := c.cfg.Heartbeat.DegradedGrace.Std()
	if grace <= 0 {
		return
	}
	c.stopGrace()
	c.hb.grace = time.AfterFunc(grace, func() {
		c.do(func() {
			if c.session != sess || c.state != StateDegraded {
				return
			}
			c.teardown("degraded grace expired")
		})
	})
}

func (c *Connector) stopGrace() {
	if c.hb.grace != nil {
		c.hb.grace.Stop()
		c.hb.grace = nil
	}
}
