// Package event implements the engine's fan-out bus. Status changes,
// telemetry, and alerts are published to zero or more subscribers, each
// served from an independent bounded queue so a slow consumer can never
// stall protocol processing.
package event

import (
	"time"

	"github.com/funkyflowstudios/synapse-hub-sub000/wire"
)

// Family identifies one of the three event families the engine emits.
type Family string

// Event families
const (
	FamilyStatus    Family = "status"
	FamilyTelemetry Family = "telemetry"
	FamilyAlert     Family = "alert"
)

// Event is implemented by all engine events.
type Event interface {
	Family() Family
	Connector() string
	At() time.Time
}

// StatusChanged reports a connection state transition.
type StatusChanged struct {
	ConnectorID string    `json:"connectorId"`
	From        string    `json:"from"`
	To          string    `json:"to"`
	Reason      string    `json:"reason"`
	Timestamp   time.Time `json:"timestamp"`
}

// Family implements Event.
func (e StatusChanged) Family() Family { return FamilyStatus }

// Connector implements Event.
func (e StatusChanged) Connector() string { return e.ConnectorID }

// At implements Event.
func (e StatusChanged) At() time.Time { return e.Timestamp }

// TelemetryReceived reports a reading accepted into a stream buffer.
type TelemetryReceived struct {
	ConnectorID string       `json:"connectorId"`
	StreamID    string       `json:"streamId"`
	Reading     wire.Reading `json:"reading"`
	Timestamp   time.Time    `json:"timestamp"`
}

// Family implements Event.
func (e TelemetryReceived) Family() Family { return FamilyTelemetry }

// Connector implements Event.
func (e TelemetryReceived) Connector() string { return e.ConnectorID }

// At implements Event.
func (e TelemetryReceived) At() time.Time { return e.Timestamp }

// AlertRaised reports a device fault or an engine warning.
type AlertRaised struct {
	ConnectorID string             `json:"connectorId"`
	Code        string             `json:"code"`
	Severity    wire.FaultSeverity `json:"severity"`
	Message     string             `json:"message"`
	Recovery    string             `json:"recovery,omitempty"`
	Timestamp   time.Time          `json:"timestamp"`
}

// Family implements Event.
func (e AlertRaised) Family() Family { return FamilyAlert }

// Connector implements Event.
func (e AlertRaised) Connector() string { return e.ConnectorID }

// At implements Event.
func (e AlertRaised) At() time.Time { return e.Timestamp }
