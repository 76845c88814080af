package health

import (
	"sync"
	"time"
)

// Monitor tracks health of multiple connectors in a thread-safe manner
type Monitor struct {
	mu       sync.RWMutex
	statuses map[string]Status
}

// NewMonitor creates a new health monitor
func NewMonitor() *Monitor {
	return &Monitor{
		statuses: make(map[string]Status),
	}
}

// Update updates the health status for a connector
func (m *Monitor) Update(connectorID string, status Status) {
	m.mu.Lock()
	defer m.mu.Unlock()

	status.Connector = connectorID
	if status.Timestamp.IsZero() {
		status.Timestamp = time.Now()
	}

	m.statuses[connectorID] = status
}

// Get retrieves the health status for a connector
func (m *Monitor) Get(connectorID string) (Status, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	status, exists := m.statuses[connectorID]
	return status, exists
}

// GetAll returns a copy of all current health statuses
func (m *Monitor) GetAll() map[string]Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[string]Status, len(m.statuses))
	for id, status := range m.statuses {
		result[id] = status
	}
	return result
}

// Remove removes a connector from monitoring
func (m *Monitor) Remove(connectorID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.statuses, connectorID)
}

// AggregateHealth returns an aggregated health status for the engine
func (m *Monitor) AggregateHealth(name string) Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	subStatuses := make([]Status, 0, len(m.statuses))
	for _, status := range m.statuses {
		subStatuses = append(subStatuses, status)
	}

	return Aggregate(name, subStatuses)
}

// Count returns the number of connectors being monitored
func (m *Monitor) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.statuses)
}
