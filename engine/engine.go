package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/funkyflowstudios/synapse-hub-sub000/config"
	"github.com/funkyflowstudios/synapse-hub-sub000/connector"
	"github.com/funkyflowstudios/synapse-hub-sub000/errors"
	"github.com/funkyflowstudios/synapse-hub-sub000/event"
	"github.com/funkyflowstudios/synapse-hub-sub000/health"
	"github.com/funkyflowstudios/synapse-hub-sub000/metric"
	"github.com/funkyflowstudios/synapse-hub-sub000/pkg/cache"
	"github.com/funkyflowstudios/synapse-hub-sub000/pkg/tlsutil"
	"github.com/funkyflowstudios/synapse-hub-sub000/pkg/worker"
	"github.com/funkyflowstudios/synapse-hub-sub000/registry"
	"github.com/funkyflowstudios/synapse-hub-sub000/transport"
	"github.com/funkyflowstudios/synapse-hub-sub000/wire"
)

// readChunkSize bounds a single file.read request.
const readChunkSize = 64 * 1024

// Engine coordinates connectors, the event bus, and the optional
// external surfaces (NATS bridge, metrics endpoint, inbound listener).
// All methods are safe for concurrent use.
type Engine struct {
	cfg    *config.SafeConfig
	dialer transport.Dialer
	logger *slog.Logger

	metricsReg *metric.MetricsRegistry
	metrics    *metric.Metrics
	health     *health.Monitor
	bus        *event.Bus
	reg        *registry.Registry

	acceptHandler transport.AcceptHandler

	sink         Sink
	sinkWorkers  int
	sinkInterval time.Duration
	sinkPool     *worker.Pool[TelemetryBatch]

	configCache *cache.TTL[wire.ConfigValue]

	bridge     *event.NATSBridge
	metricsSrv *metric.Server
	listener   *transport.Server
	group      *errgroup.Group
	cancel     context.CancelFunc

	started atomic.Bool
	stopped atomic.Bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine's logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithMetricsRegistry wires Prometheus metrics into the engine and
// enables the metrics endpoint when the config asks for it.
func WithMetricsRegistry(r *metric.MetricsRegistry) Option {
	return func(e *Engine) { e.metricsReg = r }
}

// WithAcceptHandler installs a handler for inbound device connections.
// The listener only runs when the config sets a transport listen
// address.
func WithAcceptHandler(h transport.AcceptHandler) Option {
	return func(e *Engine) { e.acceptHandler = h }
}

// TelemetryBatch groups readings drained from one connector stream.
type TelemetryBatch struct {
	ConnectorID string
	StreamID    string
	Readings    []wire.Reading
}

// Sink delivers telemetry batches to an external system, for example a
// time-series database or object store.
type Sink func(context.Context, TelemetryBatch) error

// WithTelemetrySink drains every connector's stream buffers on the
// given interval and hands the batches to sink on a worker pool, so a
// slow sink never stalls the connectors.
func WithTelemetrySink(sink Sink, workers int, interval time.Duration) Option {
	return func(e *Engine) {
		e.sink = sink
		e.sinkWorkers = workers
		e.sinkInterval = interval
	}
}

// New builds an engine around the given dialer. The engine is usable
// immediately for connector operations; Start only brings up the
// optional external surfaces.
func New(cfg *config.Config, dialer transport.Dialer, opts ...Option) *Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	e := &Engine{
		cfg:    config.NewSafeConfig(cfg),
		dialer: dialer,
		logger: slog.Default(),
		health: health.NewMonitor(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.metricsReg != nil {
		e.metrics = e.metricsReg.CoreMetrics()
	}

	busOpts := []event.BusOption{event.WithBusLogger(e.logger)}
	if e.metrics != nil {
		busOpts = append(busOpts, event.WithBusMetrics(e.metrics))
	}
	e.bus = event.NewBus(cfg.EventQueue, busOpts...)

	if ttl := cfg.ConfigCacheTTL.Std(); ttl > 0 {
		e.configCache = cache.NewTTL[wire.ConfigValue](ttl, ttl)
	}

	e.reg = registry.New(func(id, endpoint string, creds wire.Credentials) *connector.Connector {
		copts := []connector.Option{
			connector.WithLogger(e.logger),
			connector.WithHealthMonitor(e.health),
		}
		if e.metrics != nil {
			copts = append(copts, connector.WithMetrics(e.metrics))
		}
		return connector.New(id, endpoint, creds, e.cfg.Get(), e.dialer, e.bus, copts...)
	}, e.logger)

	return e
}

// Start brings up the external surfaces enabled by the config: the
// NATS event bridge, the Prometheus endpoint, and the inbound
// connection listener. It returns once they are running.
func (e *Engine) Start(ctx context.Context) error {
	if !e.started.CompareAndSwap(false, true) {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "engine", "Start", "engine start")
	}

	gctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	g, gctx := errgroup.WithContext(gctx)
	e.group = g

	cfg := e.cfg.Get()

	if cfg.NATS.Enabled {
		bridge, err := event.NewNATSBridge(e.bus, cfg.NATS.URL, cfg.NATS.SubjectPrefix, e.logger)
		if err != nil {
			return errors.WrapTransient(err, "engine", "Start", "start NATS bridge")
		}
		e.bridge = bridge
	}

	if cfg.Metrics.Enabled && e.metricsReg != nil {
		e.metricsSrv = metric.NewServer(cfg.Metrics.Addr, cfg.Metrics.Path, e.metricsReg)
		srv := e.metricsSrv
		g.Go(srv.Start)
	}

	if cfg.Transport.ListenAddr != "" && e.acceptHandler != nil {
		tlsCfg, err := tlsutil.ServerConfig(cfg.Security.Server)
		if err != nil {
			return errors.Wrap(err, "engine", "Start", "build listener TLS config")
		}
		e.listener = transport.NewServer(cfg.Transport.ListenAddr, "/ws", e.acceptHandler,
			transport.WithServerLogger(e.logger),
			transport.WithServerRateLimit(cfg.Transport.RatePerSecond, cfg.Transport.RateBurst),
			transport.WithServerTLS(tlsCfg),
		)
		if err := e.listener.Start(gctx); err != nil {
			return errors.WrapTransient(err, "engine", "Start", "start transport listener")
		}
	}

	if e.sink != nil {
		var poolOpts []worker.Option[TelemetryBatch]
		if e.metricsReg != nil {
			poolOpts = append(poolOpts, worker.WithPoolMetrics[TelemetryBatch](e.metricsReg, "synapse_telemetry_sink"))
		}
		e.sinkPool = worker.NewPool(e.sinkWorkers, 256, func(ctx context.Context, b TelemetryBatch) error {
			return e.sink(ctx, b)
		}, poolOpts...)
		if err := e.sinkPool.Start(gctx); err != nil {
			return errors.Wrap(err, "engine", "Start", "start sink pool")
		}
		g.Go(func() error {
			e.pumpTelemetry(gctx)
			return nil
		})
	}

	e.logger.Info("engine started",
		"nats", e.bridge != nil,
		"metrics", e.metricsSrv != nil,
		"listener", e.listener != nil,
		"sink", e.sink != nil)
	return nil
}

// pumpTelemetry periodically drains stream buffers into the sink pool.
func (e *Engine) pumpTelemetry(ctx context.Context) {
	interval := e.sinkInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.drainOnce()
		}
	}
}

func (e *Engine) drainOnce() {
	for _, id := range e.reg.IDs() {
		c, ok := e.reg.Lookup(id)
		if !ok {
			continue
		}
		for _, streamID := range c.StreamIDs() {
			readings := c.DrainStream(streamID, 512)
			if len(readings) == 0 {
				continue
			}
			batch := TelemetryBatch{ConnectorID: id, StreamID: streamID, Readings: readings}
			if err := e.sinkPool.Submit(batch); err != nil {
				e.logger.Warn("telemetry batch dropped",
					"connector", id, "stream", streamID,
					"readings", len(readings), "error", err)
			}
		}
	}
}

// Stop shuts the engine down: every connector is stopped, pending
// commands fail, and the external surfaces are torn down. Safe to call
// without a prior Start.
func (e *Engine) Stop(ctx context.Context) error {
	if !e.stopped.CompareAndSwap(false, true) {
		return nil
	}

	e.reg.Close()

	var firstErr error
	if e.listener != nil {
		if err := e.listener.Stop(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if e.metricsSrv != nil {
		if err := e.metricsSrv.Stop(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if e.bridge != nil {
		e.bridge.Close(e.bus)
	}
	// Stop the pool before cancelling so queued batches still drain.
	if e.sinkPool != nil {
		if err := e.sinkPool.Stop(5 * time.Second); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if e.cancel != nil {
		e.cancel()
	}
	if e.group != nil {
		if err := e.group.Wait(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	e.bus.Close()
	if e.configCache != nil {
		e.configCache.Close()
	}

	e.logger.Info("engine stopped")
	if firstErr != nil {
		return errors.Wrap(firstErr, "engine", "Stop", "shutdown")
	}
	return nil
}

// Config returns the engine's current configuration.
func (e *Engine) Config() *config.Config {
	return e.cfg.Get()
}

// UpdateConfig validates cfg and swaps it in atomically. Connectors
// registered afterwards pick up the new settings; live connectors and
// the surfaces brought up by Start keep the configuration they were
// built with.
func (e *Engine) UpdateConfig(cfg *config.Config) error {
	return e.cfg.Update(cfg)
}

// Connect registers the connector if needed and opens its link. Calling
// Connect on an already live connector returns its current state
// without a second handshake.
func (e *Engine) Connect(ctx context.Context, id, endpoint string, creds wire.Credentials) (connector.State, error) {
	c, err := e.reg.GetOrRegister(id, endpoint, creds)
	if err != nil {
		return connector.StateDisconnected, err
	}
	return c.Connect(ctx)
}

// Disconnect closes the connector's link gracefully. The connector
// stays registered and can reconnect.
func (e *Engine) Disconnect(ctx context.Context, id string) error {
	c, err := e.lookup(id, "Disconnect")
	if err != nil {
		return err
	}
	return c.Disconnect(ctx)
}

// Deregister removes the connector entirely: pending commands fail,
// stream buffers are dropped, and its health entry is cleared.
func (e *Engine) Deregister(id string) error {
	if err := e.reg.Deregister(id); err != nil {
		return err
	}
	e.health.Remove(id)
	return nil
}

// SendCommand dispatches a command to the connector and waits for its
// response. A zero timeout uses the configured default.
func (e *Engine) SendCommand(ctx context.Context, id string, cmd wire.CommandRequest, timeout time.Duration) (*wire.CommandResponse, error) {
	c, err := e.lookup(id, "SendCommand")
	if err != nil {
		return nil, err
	}
	return c.SendCommand(ctx, cmd, timeout)
}

// GetConfig reads a configuration value from the device. Fresh reads
// are served from cache for the configured TTL; SetConfig invalidates
// the key.
func (e *Engine) GetConfig(ctx context.Context, id, key string) (*wire.ConfigValue, error) {
	c, err := e.lookup(id, "GetConfig")
	if err != nil {
		return nil, err
	}
	cacheKey := id + "\x00" + key
	if e.configCache != nil {
		if val, ok := e.configCache.Get(cacheKey); ok {
			return &val, nil
		}
	}
	env, err := c.Request(ctx, wire.KindConfigGet, wire.ConfigGet{Key: key}, 0)
	if err != nil {
		return nil, err
	}
	if env.Kind != wire.KindConfigValue {
		return nil, errors.WrapInvalid(errors.ErrInvalidCommand, "engine", "GetConfig",
			fmt.Sprintf("read config %q: got %s", key, env.Kind))
	}
	val, err := wire.DecodePayload[wire.ConfigValue](env)
	if err != nil {
		return nil, errors.WrapInvalid(err, "engine", "GetConfig", "decode config value")
	}
	if e.configCache != nil {
		e.configCache.Set(cacheKey, val)
	}
	return &val, nil
}

// SetConfig writes a configuration value on the device.
func (e *Engine) SetConfig(ctx context.Context, id, key string, value any) error {
	c, err := e.lookup(id, "SetConfig")
	if err != nil {
		return err
	}
	env, err := c.Request(ctx, wire.KindConfigSet, wire.ConfigSet{Key: key, Value: value}, 0)
	if err != nil {
		return err
	}
	if e.configCache != nil {
		e.configCache.Delete(id + "\x00" + key)
	}
	switch env.Kind {
	case wire.KindConfigSetOK:
		return nil
	case wire.KindConfigSetFail:
		fail, derr := wire.DecodePayload[wire.ConfigSetFail](env)
		if derr != nil {
			return errors.WrapInvalid(derr, "engine", "SetConfig", "decode rejection")
		}
		return errors.WrapInvalid(errors.ErrInvalidCommand, "engine", "SetConfig",
			fmt.Sprintf("set config %q: %s", key, fail.Message))
	default:
		return errors.WrapInvalid(errors.ErrInvalidCommand, "engine", "SetConfig",
			fmt.Sprintf("set config %q: got %s", key, env.Kind))
	}
}

// ListFiles asks the device for a directory listing.
func (e *Engine) ListFiles(ctx context.Context, id, path string) (*wire.FileListing, error) {
	c, err := e.lookup(id, "ListFiles")
	if err != nil {
		return nil, err
	}
	env, err := c.Request(ctx, wire.KindFileList, wire.FileList{Path: path}, 0)
	if err != nil {
		return nil, err
	}
	if env.Kind != wire.KindFileListResp {
		return nil, errors.WrapInvalid(errors.ErrInvalidCommand, "engine", "ListFiles",
			fmt.Sprintf("list %q: got %s", path, env.Kind))
	}
	listing, err := wire.DecodePayload[wire.FileListing](env)
	if err != nil {
		return nil, errors.WrapInvalid(err, "engine", "ListFiles", "decode listing")
	}
	return &listing, nil
}

// ReadFile pulls a file from the device in bounded chunks. Each chunk
// is a separate correlated request, so a lost response only retries
// that slice.
func (e *Engine) ReadFile(ctx context.Context, id, path string) ([]byte, error) {
	c, err := e.lookup(id, "ReadFile")
	if err != nil {
		return nil, err
	}

	var out []byte
	var offset int64
	for {
		env, err := c.Request(ctx, wire.KindFileRead, wire.FileRead{
			Path:     path,
			Offset:   offset,
			MaxBytes: readChunkSize,
		}, 0)
		if err != nil {
			return nil, err
		}
		if env.Kind != wire.KindFileChunk {
			return nil, errors.WrapInvalid(errors.ErrInvalidCommand, "engine", "ReadFile",
				fmt.Sprintf("read %q: got %s", path, env.Kind))
		}
		chunk, err := wire.DecodePayload[wire.FileChunk](env)
		if err != nil {
			return nil, errors.WrapInvalid(err, "engine", "ReadFile", "decode chunk")
		}
		out = append(out, chunk.Data...)
		offset += int64(len(chunk.Data))
		if chunk.Last {
			return out, nil
		}
		if len(chunk.Data) == 0 {
			return nil, errors.WrapInvalid(errors.ErrInvalidCommand, "engine", "ReadFile",
				fmt.Sprintf("read %q: empty chunk before EOF", path))
		}
	}
}

// Subscribe delivers the connector's telemetry for one stream to the
// handler. An empty streamID matches every stream.
func (e *Engine) Subscribe(id, streamID string, handler func(event.TelemetryReceived)) event.SubscriptionID {
	return e.bus.Subscribe(event.Filter{
		Family:      event.FamilyTelemetry,
		ConnectorID: id,
		StreamID:    streamID,
	}, func(ev event.Event) {
		if t, ok := ev.(event.TelemetryReceived); ok {
			handler(t)
		}
	})
}

// SubscribeStatus delivers connection state changes. An empty id
// matches every connector.
func (e *Engine) SubscribeStatus(id string, handler func(event.StatusChanged)) event.SubscriptionID {
	return e.bus.Subscribe(event.Filter{
		Family:      event.FamilyStatus,
		ConnectorID: id,
	}, func(ev event.Event) {
		if s, ok := ev.(event.StatusChanged); ok {
			handler(s)
		}
	})
}

// SubscribeAlerts delivers device faults and overflow warnings. An
// empty id matches every connector.
func (e *Engine) SubscribeAlerts(id string, handler func(event.AlertRaised)) event.SubscriptionID {
	return e.bus.Subscribe(event.Filter{
		Family:      event.FamilyAlert,
		ConnectorID: id,
	}, func(ev event.Event) {
		if a, ok := ev.(event.AlertRaised); ok {
			handler(a)
		}
	})
}

// Unsubscribe removes a subscription. Unknown ids are a no-op.
func (e *Engine) Unsubscribe(sub event.SubscriptionID) {
	e.bus.Unsubscribe(sub)
}

// Events exposes the bus for callers that need raw filters.
func (e *Engine) Events() *event.Bus { return e.bus }

// GetStatus returns the connector's current status snapshot.
func (e *Engine) GetStatus(id string) (connector.Status, error) {
	c, err := e.lookup(id, "GetStatus")
	if err != nil {
		return connector.Status{}, err
	}
	return c.GetStatus(), nil
}

// Ingest pushes a reading into the connector's stream buffer. Inbound
// telemetry normally arrives over the wire; this entry point exists
// for local producers and tests.
func (e *Engine) Ingest(id, streamID string, r wire.Reading) error {
	c, err := e.lookup(id, "Ingest")
	if err != nil {
		return err
	}
	return c.Ingest(streamID, r)
}

// DrainStream removes and returns up to max buffered readings.
func (e *Engine) DrainStream(id, streamID string, max int) ([]wire.Reading, error) {
	c, err := e.lookup(id, "DrainStream")
	if err != nil {
		return nil, err
	}
	return c.DrainStream(streamID, max), nil
}

// Snapshot returns the state of every registered connector.
func (e *Engine) Snapshot() map[string]connector.State {
	return e.reg.Snapshot()
}

// ConnectorIDs returns the registered connector ids.
func (e *Engine) ConnectorIDs() []string { return e.reg.IDs() }

// Health aggregates connector health into a single engine status.
func (e *Engine) Health() health.Status {
	return e.health.AggregateHealth("engine")
}

func (e *Engine) lookup(id, method string) (*connector.Connector, error) {
	c, ok := e.reg.Lookup(id)
	if !ok {
		return nil, errors.WrapInvalid(errors.ErrUnknownConnector, "engine", method,
			fmt.Sprintf("lookup connector %q", id))
	}
	return c, nil
}
