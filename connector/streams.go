package connector

import (
	"context"
	"time"

	"github.com/funkyflowstudios/synapse-hub-sub000/errors"
	"github.com/funkyflowstudios/synapse-hub-sub000/event"
	"github.com/funkyflowstudios/synapse-hub-sub000/pkg/buffer"
	"github.com/funkyflowstudios/synapse-hub-sub000/wire"
)

// stream is one telemetry stream's bounded buffer plus its resolved
// configuration. Buffers synchronize internally, so the ingest path
// does not go through the actor queue.
type stream struct {
	id     string
	buf    buffer.Buffer[wire.Reading]
	policy buffer.OverflowPolicy
	block  time.Duration
}

// Ingest appends one reading to the stream's buffer under its
// configured strategy and overflow policy. Safe for concurrent
// writers. Under the block policy, waiting is bounded by the stream's
// maxBlock; on expiry the reading is dropped and a warning alert is
// raised instead of an error.
func (c *Connector) Ingest(streamID string, r wire.Reading) error {
	st, err := c.streamFor(streamID)
	if err != nil {
		return err
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now()
	}

	if st.policy == buffer.Block {
		ctx, cancel := context.WithTimeout(context.Background(), st.block)
		werr := st.buf.WriteContext(ctx, r)
		cancel()
		if werr != nil {
			if errors.Is(werr, errors.ErrBufferClosed) {
				return werr
			}
			// Bounded backpressure expired: degrade to drop-newest.
			if c.metrics != nil {
				c.metrics.ReadingsDropped.WithLabelValues(c.id, streamID, "backpressure").Inc()
			}
			c.logger.Warn("stream backpressure timeout, reading dropped", "stream", streamID)
			c.bus.Publish(event.AlertRaised{
				ConnectorID: c.id,
				Code:        "stream.backpressure",
				Severity:    wire.SeverityWarning,
				Message:     "ingest blocked past limit on stream " + streamID + ", reading dropped",
				Timestamp:   time.Now(),
			})
			return nil
		}
	} else {
		if werr := st.buf.Write(r); werr != nil {
			if errors.Is(werr, errors.ErrBufferFull) {
				if c.metrics != nil {
					c.metrics.ReadingsDropped.WithLabelValues(c.id, streamID, "rejected").Inc()
				}
			}
			return werr
		}
	}

	if c.metrics != nil {
		c.metrics.ReadingsIngested.WithLabelValues(c.id, streamID).Inc()
	}
	c.bus.Publish(event.TelemetryReceived{
		ConnectorID: c.id,
		StreamID:    streamID,
		Reading:     r,
		Timestamp:   time.Now(),
	})
	return nil
}

// DrainStream removes and returns up to max readings in the stream's
// strategy order. Returns nil for an unknown stream.
func (c *Connector) DrainStream(streamID string, max int) []wire.Reading {
	c.streamMu.RLock()
	st, ok := c.streams[streamID]
	c.streamMu.RUnlock()
	if !ok {
		return nil
	}
	return st.buf.ReadBatch(max)
}

// StreamStats returns buffer statistics for one stream.
func (c *Connector) StreamStats(streamID string) (*buffer.Statistics, bool) {
	c.streamMu.RLock()
	st, ok := c.streams[streamID]
	c.streamMu.RUnlock()
	if !ok {
		return nil, false
	}
	return st.buf.Stats(), true
}

// StreamIDs lists the streams that have buffered at least one reading.
func (c *Connector) StreamIDs() []string {
	c.streamMu.RLock()
	defer c.streamMu.RUnlock()
	ids := make([]string, 0, len(c.streams))
	for id := range c.streams {
		ids = append(ids, id)
	}
	return ids
}

// streamFor returns the stream's buffer, creating it on first use from
// the per-stream configuration.
func (c *Connector) streamFor(streamID string) (*stream, error) {
	c.streamMu.RLock()
	st, ok := c.streams[streamID]
	c.streamMu.RUnlock()
	if ok {
		return st, nil
	}

	c.streamMu.Lock()
	defer c.streamMu.Unlock()
	if st, ok = c.streams[streamID]; ok {
		return st, nil
	}

	sc := c.cfg.StreamFor(streamID)
	strategy, ok := buffer.ParseStrategy(sc.Strategy)
	if !ok {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig,
			"connector", "streamFor", "parse strategy "+sc.Strategy)
	}
	policy, ok := buffer.ParseOverflowPolicy(sc.OverflowPolicy)
	if !ok {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig,
			"connector", "streamFor", "parse overflow policy "+sc.OverflowPolicy)
	}

	opts := []buffer.Option[wire.Reading]{
		buffer.WithOverflowPolicy[wire.Reading](policy),
		buffer.WithDropCallback[wire.Reading](func(wire.Reading) {
			if c.metrics != nil {
				c.metrics.ReadingsDropped.WithLabelValues(c.id, streamID, "overflow").Inc()
			}
		}),
	}
	if strategy == buffer.Priority {
		opts = append(opts, buffer.WithPriorityFn[wire.Reading](func(r wire.Reading) int {
			return r.Priority
		}))
	}
	if strategy == buffer.TimeWindow {
		opts = append(opts, buffer.WithWindow[wire.Reading](sc.Window.Std()))
	}

	buf, err := buffer.New[wire.Reading](sc.Capacity, strategy, opts...)
	if err != nil {
		return nil, err
	}

	st = &stream{
		id:     streamID,
		buf:    buf,
		policy: policy,
		block:  sc.MaxBlock.Std(),
	}
	c.streams[streamID] = st
	return st, nil
}

// closeStreams drops all buffers; used on deregistration.
func (c *Connector) closeStreams() {
	c.streamMu.Lock()
	defer c.streamMu.Unlock()
	for id, st := range c.streams {
		_ = st.buf.Close()
		delete(c.streams, id)
	}
}
