package wire

// Kind identifies the type of an envelope and determines the shape of its
// payload. Kinds use dotted notation "category.name" so subscription and
// routing code can match on category prefixes.
type Kind string

// Category groups related message kinds.
type Category string

// Message categories
const (
	CategoryConnection Category = "connection"
	CategoryDevice     Category = "device"
	CategoryTelemetry  Category = "telemetry"
	CategoryCommand    Category = "command"
	CategoryStream     Category = "stream"
	CategoryConfig     Category = "config"
	CategoryFile       Category = "file"
)

// Connection management kinds
const (
	KindHello      Kind = "connection.hello"
	KindAuth       Kind = "connection.auth"
	KindAuthOK     Kind = "connection.auth_ok"
	KindAuthFail   Kind = "connection.auth_fail"
	KindPing       Kind = "connection.ping"
	KindPong       Kind = "connection.pong"
	KindDisconnect Kind = "connection.disconnect"
	KindGoodbye    Kind = "connection.goodbye"
)

// Device management kinds
const (
	KindDeviceRegister     Kind = "device.register"
	KindDeviceRegisterOK   Kind = "device.register_ok"
	KindDeviceDeregister   Kind = "device.deregister"
	KindDeviceCapabilities Kind = "device.capabilities"
	KindDeviceStatus       Kind = "device.status"
	KindDeviceFault        Kind = "device.fault"
	KindDeviceReset        Kind = "device.reset"
)

// Telemetry kinds
const (
	KindReading        Kind = "telemetry.reading"
	KindReadingBatch   Kind = "telemetry.batch"
	KindStateSnapshot  Kind = "telemetry.snapshot"
	KindTelemetryError Kind = "telemetry.error"
)

// Command kinds
const (
	KindCommandRequest  Kind = "command.request"
	KindCommandResponse Kind = "command.response"
	KindCommandAck      Kind = "command.ack"
	KindCommandCancel   Kind = "command.cancel"
	KindCommandProgress Kind = "command.progress"
)

// Stream control kinds
const (
	KindStreamOpen     Kind = "stream.open"
	KindStreamOpenOK   Kind = "stream.open_ok"
	KindStreamClose    Kind = "stream.close"
	KindStreamPause    Kind = "stream.pause"
	KindStreamResume   Kind = "stream.resume"
	KindStreamOverflow Kind = "stream.overflow"
)

// Configuration kinds
const (
	KindConfigGet     Kind = "config.get"
	KindConfigValue   Kind = "config.value"
	KindConfigSet     Kind = "config.set"
	KindConfigSetOK   Kind = "config.set_ok"
	KindConfigSetFail Kind = "config.set_fail"
)

// File transfer kinds
const (
	KindFileList         Kind = "file.list"
	KindFileListResp     Kind = "file.list_resp"
	KindFileRead         Kind = "file.read"
	KindFileChunk        Kind = "file.chunk"
	KindFileWrite        Kind = "file.write"
	KindFileWriteOK      Kind = "file.write_ok"
	KindFileTransferFail Kind = "file.transfer_fail"
)

// knownKinds enumerates every kind the codec accepts. Decoding an envelope
// with any other kind fails rather than passing unknown bytes downstream.
var knownKinds = map[Kind]Category{
	KindHello:      CategoryConnection,
	KindAuth:       CategoryConnection,
	KindAuthOK:     CategoryConnection,
	KindAuthFail:   CategoryConnection,
	KindPing:       CategoryConnection,
	KindPong:       CategoryConnection,
	KindDisconnect: CategoryConnection,
	KindGoodbye:    CategoryConnection,

	KindDeviceRegister:     CategoryDevice,
	KindDeviceRegisterOK:   CategoryDevice,
	KindDeviceDeregister:   CategoryDevice,
	KindDeviceCapabilities: CategoryDevice,
	KindDeviceStatus:       CategoryDevice,
	KindDeviceFault:        CategoryDevice,
	KindDeviceReset:        CategoryDevice,

	KindReading:        CategoryTelemetry,
	KindReadingBatch:   CategoryTelemetry,
	KindStateSnapshot:  CategoryTelemetry,
	KindTelemetryError: CategoryTelemetry,

	KindCommandRequest:  CategoryCommand,
	KindCommandResponse: CategoryCommand,
	KindCommandAck:      CategoryCommand,
	KindCommandCancel:   CategoryCommand,
	KindCommandProgress: CategoryCommand,

	KindStreamOpen:     CategoryStream,
	KindStreamOpenOK:   CategoryStream,
	KindStreamClose:    CategoryStream,
	KindStreamPause:    CategoryStream,
	KindStreamResume:   CategoryStream,
	KindStreamOverflow: CategoryStream,

	KindConfigGet:     CategoryConfig,
	KindConfigValue:   CategoryConfig,
	KindConfigSet:     CategoryConfig,
	KindConfigSetOK:   CategoryConfig,
	KindConfigSetFail: CategoryConfig,

	KindFileList:         CategoryFile,
	KindFileListResp:     CategoryFile,
	KindFileRead:         CategoryFile,
	KindFileChunk:        CategoryFile,
	KindFileWrite:        CategoryFile,
	KindFileWriteOK:      CategoryFile,
	KindFileTransferFail: CategoryFile,
}

// responseKinds are the kinds that carry a correlation ID referring back to
// an originating request.
var responseKinds = map[Kind]bool{
	KindAuthOK:           true,
	KindAuthFail:         true,
	KindPong:             true,
	KindDeviceRegisterOK: true,
	KindCommandResponse:  true,
	KindCommandAck:       true,
	KindCommandProgress:  true,
	KindStreamOpenOK:     true,
	KindConfigValue:      true,
	KindConfigSetOK:      true,
	KindConfigSetFail:    true,
	KindFileListResp:     true,
	KindFileChunk:        true,
	KindFileWriteOK:      true,
	KindFileTransferFail: true,
}

// IsKnown reports whether the kind is part of the protocol catalog.
func (k Kind) IsKnown() bool {
	_, ok := knownKinds[k]
	return ok
}

// Category returns the category the kind belongs to, or "" for unknown kinds.
func (k Kind) Category() Category {
	return knownKinds[k]
}

// IsResponse reports whether envelopes of this kind correlate back to a
// request via CorrelationID.
func (k Kind) IsResponse() bool {
	return responseKinds[k]
}

// String returns the wire representation of the kind.
func (k Kind) String() string {
	return string(k)
}
