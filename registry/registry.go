// Package registry is the process-wide table of known connectors. It is
// the single synchronization point between connectors: registration,
// deregistration, and lookup all pass through one mutex, and no lock is
// held across any connector operation.
package registry

import (
	"log/slog"
	"sync"

	"github.com/funkyflowstudios/synapse-hub-sub000/connector"
	"github.com/funkyflowstudios/synapse-hub-sub000/errors"
	"github.com/funkyflowstudios/synapse-hub-sub000/wire"
)

// Factory builds a connector for an id when it is first registered.
type Factory func(id, endpoint string, creds wire.Credentials) *connector.Connector

// Registry maps connectorId to its state machine. All mutation goes
// through the registry's mutex; connector internals synchronize
// themselves.
type Registry struct {
	mu         sync.Mutex
	connectors map[string]*connector.Connector
	factory    Factory
	logger     *slog.Logger
	closed     bool
}

// New creates an empty registry using factory for new connectors.
func New(factory Factory, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		connectors: make(map[string]*connector.Connector),
		factory:    factory,
		logger:     logger,
	}
}

// Register creates and records a connector. Fails with
// ErrConnectorExists when the id is already present.
func (r *Registry) Register(id, endpoint string, creds wire.Credentials) (*connector.Connector, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, errors.Wrap(errors.ErrShuttingDown, "registry", "Register", "check closed")
	}
	if _, exists := r.connectors[id]; exists {
		return nil, errors.WrapInvalid(errors.ErrConnectorExists, "registry", "Register", "register "+id)
	}

	c := r.factory(id, endpoint, creds)
	r.connectors[id] = c
	r.logger.Info("connector registered", "connector", id, "endpoint", endpoint)
	return c, nil
}

// GetOrRegister returns the existing connector for id or registers a
// new one. Used by the engine's connect path so repeated connect calls
// share one state machine.
func (r *Registry) GetOrRegister(id, endpoint string, creds wire.Credentials) (*connector.Connector, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, errors.Wrap(errors.ErrShuttingDown, "registry", "GetOrRegister", "check closed")
	}
	if c, exists := r.connectors[id]; exists {
		return c, nil
	}
	c := r.factory(id, endpoint, creds)
	r.connectors[id] = c
	r.logger.Info("connector registered", "connector", id, "endpoint", endpoint)
	return c, nil
}

// Lookup returns the connector for id.
func (r *Registry) Lookup(id string) (*connector.Connector, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.connectors[id]
	return c, ok
}

// Deregister removes a connector and shuts it down: its heartbeat
// stops, its pending commands fail with ConnectorRemoved, and its
// stream buffers are dropped.
func (r *Registry) Deregister(id string) error {
	r.mu.Lock()
	c, ok := r.connectors[id]
	if ok {
		delete(r.connectors, id)
	}
	r.mu.Unlock()

	if !ok {
		return errors.WrapInvalid(errors.ErrUnknownConnector, "registry", "Deregister", "deregister "+id)
	}
	// Stop outside the lock: it waits on the connector's goroutine.
	c.Stop()
	r.logger.Info("connector deregistered", "connector", id)
	return nil
}

// IDs returns the registered connector ids.
func (r *Registry) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.connectors))
	for id := range r.connectors {
		ids = append(ids, id)
	}
	return ids
}

// Snapshot returns a point-in-time view of every connector's state,
// taken without holding the lock across status calls.
func (r *Registry) Snapshot() map[string]connector.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap := make(map[string]connector.State, len(r.connectors))
	for id, c := range r.connectors {
		snap[id] = c.State()
	}
	return snap
}

// Count returns the number of registered connectors.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.connectors)
}

// Close deregisters every connector and rejects further registration.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	remaining := r.connectors
	r.connectors = make(map[string]*connector.Connector)
	r.mu.Unlock()

	for id, c := range remaining {
		c.Stop()
		r.logger.Debug("connector stopped on close", "connector", id)
	}
}
