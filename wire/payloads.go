package wire

import "time"

// CapabilityClass distinguishes what a declared capability can do.
type CapabilityClass string

// Capability classes
const (
	CapabilitySensor   CapabilityClass = "sensor"
	CapabilityActuator CapabilityClass = "actuator"
	CapabilityCommand  CapabilityClass = "command"
)

// Capability describes one named sensor, actuator, or command interface a
// connector exposes.
type Capability struct {
	Name         string          `json:"name"`
	Class        CapabilityClass `json:"class"`
	DataType     string          `json:"dataType,omitempty"`
	Unit         string          `json:"unit,omitempty"`
	SampleRateHz float64         `json:"sampleRateHz,omitempty"`
}

// Credentials carries pre-issued authentication material. The engine does
// not implement credential issuance; it only presents what it was given.
type Credentials struct {
	Token  string `json:"token,omitempty"`
	Secret string `json:"secret,omitempty"`
}

// AuthRequest opens the handshake for a connector.
type AuthRequest struct {
	ConnectorID     string       `json:"connectorId"`
	Credentials     Credentials  `json:"credentials"`
	ProtocolVersion string       `json:"protocolVersion"`
	Capabilities    []Capability `json:"capabilities,omitempty"`
}

// AuthOK confirms a successful handshake with the negotiated version.
type AuthOK struct {
	ConnectorID     string       `json:"connectorId"`
	ProtocolVersion string       `json:"protocolVersion"`
	Capabilities    []Capability `json:"capabilities,omitempty"`
}

// AuthFail reports a failed handshake.
type AuthFail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Ping is a liveness probe; Seq increments per probe.
type Ping struct {
	Seq uint64 `json:"seq"`
}

// Pong answers a Ping, echoing its sequence number.
type Pong struct {
	Seq uint64 `json:"seq"`
}

// Disconnect announces an orderly shutdown of the connection.
type Disconnect struct {
	Reason string `json:"reason,omitempty"`
}

// CommandRequest asks a connector to execute a named command.
type CommandRequest struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// CommandStatus is the outcome reported in a CommandResponse.
type CommandStatus string

// Command statuses
const (
	CommandOK          CommandStatus = "ok"
	CommandFailed      CommandStatus = "failed"
	CommandRejected    CommandStatus = "rejected"
	CommandUnsupported CommandStatus = "unsupported"
)

// CommandResponse reports the result of a command.
type CommandResponse struct {
	Status  CommandStatus  `json:"status"`
	Result  map[string]any `json:"result,omitempty"`
	Code    string         `json:"code,omitempty"`
	Message string         `json:"message,omitempty"`
}

// Reading is a single telemetry sample from a connector stream.
type Reading struct {
	StreamID  string    `json:"streamId"`
	Value     float64   `json:"value"`
	Unit      string    `json:"unit,omitempty"`
	Priority  int       `json:"priority,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ReadingBatch carries multiple readings in one envelope.
type ReadingBatch struct {
	Readings []Reading `json:"readings"`
}

// FaultSeverity grades device-reported faults.
type FaultSeverity string

// Fault severities
const (
	SeverityInfo     FaultSeverity = "info"
	SeverityWarning  FaultSeverity = "warning"
	SeverityError    FaultSeverity = "error"
	SeverityCritical FaultSeverity = "critical"
)

// DeviceFault is a hardware or software fault reported by the connector
// itself. Faults surface as alert events, never as engine errors.
type DeviceFault struct {
	Code     string        `json:"code"`
	Severity FaultSeverity `json:"severity"`
	Message  string        `json:"message"`
	Recovery string        `json:"recovery,omitempty"`
}

// DeviceStatus is a connector's self-reported health summary.
type DeviceStatus struct {
	Uptime  time.Duration `json:"uptime"`
	Healthy bool          `json:"healthy"`
	Detail  string        `json:"detail,omitempty"`
}

// StreamOpen requests that a connector start producing a stream.
type StreamOpen struct {
	StreamID     string  `json:"streamId"`
	SampleRateHz float64 `json:"sampleRateHz,omitempty"`
}

// StreamClose stops a stream.
type StreamClose struct {
	StreamID string `json:"streamId"`
}

// StreamOverflow warns that readings were discarded under pressure.
type StreamOverflow struct {
	StreamID string `json:"streamId"`
	Dropped  int64  `json:"dropped"`
	Policy   string `json:"policy"`
}

// ConfigGet requests a configuration value from the connector.
type ConfigGet struct {
	Key string `json:"key"`
}

// ConfigValue answers a ConfigGet.
type ConfigValue struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// ConfigSet updates a configuration value on the connector.
type ConfigSet struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// ConfigSetFail reports a rejected configuration update.
type ConfigSetFail struct {
	Key     string `json:"key"`
	Message string `json:"message"`
}

// FileList requests a directory listing from the connector.
type FileList struct {
	Path string `json:"path"`
}

// FileEntry is one row of a directory listing.
type FileEntry struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
	Dir  bool   `json:"dir,omitempty"`
}

// FileListing answers a FileList.
type FileListing struct {
	Path    string      `json:"path"`
	Entries []FileEntry `json:"entries"`
}

// FileRead requests a bounded slice of a file starting at Offset.
type FileRead struct {
	Path     string `json:"path"`
	Offset   int64  `json:"offset"`
	MaxBytes int    `json:"maxBytes,omitempty"`
}

// FileChunk carries one piece of a file transfer.
type FileChunk struct {
	Path   string `json:"path"`
	Offset int64  `json:"offset"`
	Data   []byte `json:"data"`
	Last   bool   `json:"last"`
}
