package event

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/funkyflowstudios/synapse-hub-sub000/errors"
)

// NATSBridge republishes bus events onto NATS subjects so external
// systems can observe connector activity without linking the engine:
//
//	<prefix>.status.<connectorId>
//	<prefix>.telemetry.<connectorId>.<streamId>
//	<prefix>.alert.<connectorId>
type NATSBridge struct {
	conn   *nats.Conn
	prefix string
	subID  SubscriptionID
	logger *slog.Logger
}

// NewNATSBridge connects to the NATS server at url and attaches a
// subscription to bus publishing every event.
func NewNATSBridge(bus *Bus, url, prefix string, logger *slog.Logger) (*NATSBridge, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := nats.Connect(url,
		nats.Name("synapse-hub-events"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, errors.WrapTransient(err, "natsbridge", "NewNATSBridge", "connect to "+url)
	}

	b := &NATSBridge{
		conn:   conn,
		prefix: prefix,
		logger: logger,
	}
	b.subID = bus.Subscribe(Filter{}, b.publish)
	return b, nil
}

func (b *NATSBridge) publish(e Event) {
	subject := b.subjectFor(e)
	data, err := json.Marshal(e)
	if err != nil {
		b.logger.Error("marshal event failed", "subject", subject, "error", err)
		return
	}
	if err := b.conn.Publish(subject, data); err != nil {
		b.logger.Warn("publish event failed", "subject", subject, "error", err)
	}
}

func (b *NATSBridge) subjectFor(e Event) string {
	switch ev := e.(type) {
	case TelemetryReceived:
		return fmt.Sprintf("%s.telemetry.%s.%s", b.prefix, ev.ConnectorID, ev.StreamID)
	case AlertRaised:
		return fmt.Sprintf("%s.alert.%s", b.prefix, ev.ConnectorID)
	default:
		return fmt.Sprintf("%s.status.%s", b.prefix, e.Connector())
	}
}

// Close detaches the bridge from bus and drains the NATS connection.
func (b *NATSBridge) Close(bus *Bus) {
	bus.Unsubscribe(b.subID)
	if err := b.conn.Drain(); err != nil {
		b.logger.Warn("nats drain failed", "error", err)
	}
}
