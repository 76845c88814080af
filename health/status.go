// Package health provides health snapshots for connectors and the engine.
package health

import (
	"time"
)

// Health status strings
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// Status represents the health of one connector or of the engine itself.
type Status struct {
	Connector   string    `json:"connector"`
	Healthy     bool      `json:"healthy"`
	Status      string    `json:"status"` // "healthy", "degraded", "unhealthy"
	State       string    `json:"state,omitempty"`
	Message     string    `json:"message,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	SubStatuses []Status  `json:"sub_statuses,omitempty"`
	Metrics     *Metrics  `json:"metrics,omitempty"`
}

// Metrics contains liveness metrics for one connector.
type Metrics struct {
	Uptime           time.Duration `json:"uptime"`
	RTT              time.Duration `json:"rtt,omitempty"`
	MissedBeats      int           `json:"missed_beats"`
	CommandsInFlight int           `json:"commands_in_flight"`
	LastActivity     time.Time     `json:"last_activity,omitempty"`
}

// NewHealthy creates a healthy status
func NewHealthy(connector, message string) Status {
	return Status{
		Connector: connector,
		Healthy:   true,
		Status:    StatusHealthy,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// NewDegraded creates a degraded status
func NewDegraded(connector, message string) Status {
	return Status{
		Connector: connector,
		Healthy:   false,
		Status:    StatusDegraded,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// NewUnhealthy creates an unhealthy status
func NewUnhealthy(connector, message string) Status {
	return Status{
		Connector: connector,
		Healthy:   false,
		Status:    StatusUnhealthy,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// IsHealthy returns true if the status is healthy
func (s Status) IsHealthy() bool {
	return s.Status == StatusHealthy
}

// IsDegraded returns true if the status is degraded
func (s Status) IsDegraded() bool {
	return s.Status == StatusDegraded
}

// IsUnhealthy returns true if the status is unhealthy
func (s Status) IsUnhealthy() bool {
	return s.Status == StatusUnhealthy
}

// WithState returns a copy of the status with the connection state attached
func (s Status) WithState(state string) Status {
	s.State = state
	return s
}

// WithMetrics returns a copy of the status with metrics attached
func (s Status) WithMetrics(metrics *Metrics) Status {
	s.Metrics = metrics
	return s
}

// Aggregate combines connector statuses into one engine-level status.
// The aggregate is unhealthy if any connector is unhealthy, degraded if
// any is degraded, healthy otherwise.
func Aggregate(name string, statuses []Status) Status {
	agg := Status{
		Connector:   name,
		Healthy:     true,
		Status:      StatusHealthy,
		Timestamp:   time.Now(),
		SubStatuses: statuses,
	}

	for _, s := range statuses {
		switch {
		case s.IsUnhealthy():
			agg.Healthy = false
			agg.Status = StatusUnhealthy
			return agg
		case s.IsDegraded():
			agg.Healthy = false
			agg.Status = StatusDegraded
		}
	}

	return agg
}
