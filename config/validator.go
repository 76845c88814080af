package config

import (
	"fmt"

	"github.com/funkyflowstudios/synapse-hub-sub000/errors"
	"github.com/funkyflowstudios/synapse-hub-sub000/pkg/buffer"
)

// Validate checks the configuration for internally inconsistent or
// out-of-range values. It is called by Load and by SafeConfig.Update, so
// running code never observes an invalid configuration.
func (c *Config) Validate() error {
	if c.Heartbeat.Interval <= 0 {
		return invalid("heartbeat.interval must be positive")
	}
	if c.Heartbeat.Timeout <= 0 {
		return invalid("heartbeat.timeout must be positive")
	}
	if c.Heartbeat.MissThreshold < 1 {
		return invalid("heartbeat.missThreshold must be at least 1")
	}
	if c.Heartbeat.MinInterval > c.Heartbeat.Interval {
		return invalid("heartbeat.minInterval exceeds heartbeat.interval")
	}
	if c.Heartbeat.MaxInterval < c.Heartbeat.Interval {
		return invalid("heartbeat.maxInterval is below heartbeat.interval")
	}
	if c.Heartbeat.DegradedGrace <= 0 {
		return invalid("heartbeat.degradedGrace must be positive")
	}

	if c.Command.DefaultTimeout <= 0 {
		return invalid("command.defaultTimeout must be positive")
	}
	if c.Command.MaxRetries < 0 {
		return invalid("command.maxRetries cannot be negative")
	}
	if c.Command.MaxBackoff <= 0 {
		return invalid("command.maxBackoff must be positive")
	}

	if err := validateStream("streamDefault", c.StreamDefault); err != nil {
		return err
	}
	for id := range c.Streams {
		if err := validateStream("streams."+id, c.StreamFor(id)); err != nil {
			return err
		}
	}

	if c.Reconnect.MinDelay <= 0 {
		return invalid("reconnect.minDelay must be positive")
	}
	if c.Reconnect.MaxDelay < c.Reconnect.MinDelay {
		return invalid("reconnect.maxDelay is below reconnect.minDelay")
	}
	if c.Reconnect.Multiplier < 1.0 {
		return invalid("reconnect.multiplier must be at least 1.0")
	}
	if c.Reconnect.MaxAttempts < 1 {
		return invalid("reconnect.maxAttempts must be at least 1")
	}

	if c.Transport.RatePerSecond < 0 {
		return invalid("transport.ratePerSecond cannot be negative")
	}
	if c.Transport.RateBurst < 0 {
		return invalid("transport.rateBurst cannot be negative")
	}

	if c.NATS.Enabled && c.NATS.URL == "" {
		return invalid("nats.url required when nats.enabled")
	}
	if c.NATS.Enabled && c.NATS.SubjectPrefix == "" {
		return invalid("nats.subjectPrefix required when nats.enabled")
	}

	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return invalid("metrics.addr required when metrics.enabled")
	}

	if c.EventQueue < 1 {
		return invalid("eventQueue must be at least 1")
	}

	if c.Security.Server.Enabled && (c.Security.Server.CertFile == "" || c.Security.Server.KeyFile == "") {
		return invalid("security.server.certFile and keyFile required when security.server.enabled")
	}
	if c.Security.Client.MTLS.Enabled && (c.Security.Client.MTLS.CertFile == "" || c.Security.Client.MTLS.KeyFile == "") {
		return invalid("security.client.mtls.certFile and keyFile required when security.client.mtls.enabled")
	}

	seen := make(map[string]bool, len(c.Connectors))
	for i, spec := range c.Connectors {
		if spec.ID == "" {
			return invalid(fmt.Sprintf("connectors[%d].id is required", i))
		}
		if spec.Endpoint == "" {
			return invalid(fmt.Sprintf("connectors[%d].endpoint is required", i))
		}
		if seen[spec.ID] {
			return invalid(fmt.Sprintf("connectors[%d].id %q is declared twice", i, spec.ID))
		}
		seen[spec.ID] = true
	}

	return nil
}

func validateStream(name string, sc StreamConfig) error {
	if sc.Capacity < 1 {
		return invalid(name + ".capacity must be at least 1")
	}
	if _, ok := buffer.ParseStrategy(sc.Strategy); !ok {
		return invalid(fmt.Sprintf("%s.strategy %q is not one of fifo, lifo, priority, time-window", name, sc.Strategy))
	}
	policy, ok := buffer.ParseOverflowPolicy(sc.OverflowPolicy)
	if !ok {
		return invalid(fmt.Sprintf("%s.overflowPolicy %q is not one of drop-oldest, drop-newest, block, error", name, sc.OverflowPolicy))
	}
	if policy == buffer.Block && sc.MaxBlock <= 0 {
		return invalid(name + ".maxBlock must be positive for the block policy")
	}
	if strategy, _ := buffer.ParseStrategy(sc.Strategy); strategy == buffer.TimeWindow && sc.Window <= 0 {
		return invalid(name + ".window must be positive for the time-window strategy")
	}
	return nil
}

func invalid(msg string) error {
	return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", msg)
}
