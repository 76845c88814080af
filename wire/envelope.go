// Package wire defines the typed message envelope exchanged between the
// hub and connectors, the protocol kind catalog, and the codec that moves
// envelopes to and from transport bytes. The codec is transport-agnostic:
// the same envelopes travel over websocket frames or test pipes unchanged.
package wire

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/funkyflowstudios/synapse-hub-sub000/errors"
)

// Envelope is the immutable unit of protocol exchange. Responses link back
// to their originating request through CorrelationID; a response whose
// correlation matches no pending request is discarded as orphaned.
type Envelope struct {
	ID            string          `json:"id"`
	Kind          Kind            `json:"type"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlationId,omitempty"`
	Data          json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope creates an envelope of the given kind with a fresh unique ID
// and the payload marshaled into Data.
func NewEnvelope(kind Kind, payload any) (*Envelope, error) {
	env := &Envelope{
		ID:        uuid.NewString(),
		Kind:      kind,
		Timestamp: time.Now().UTC(),
	}

	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, errors.WrapInvalid(err, "Envelope", "NewEnvelope", "payload marshal")
		}
		env.Data = data
	}

	return env, nil
}

// NewResponse creates a response envelope correlated to the request.
func NewResponse(request *Envelope, kind Kind, payload any) (*Envelope, error) {
	env, err := NewEnvelope(kind, payload)
	if err != nil {
		return nil, err
	}
	env.CorrelationID = request.ID
	return env, nil
}

// Validate checks structural invariants of the envelope.
func (e *Envelope) Validate() error {
	if e.ID == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Envelope", "Validate", "missing id")
	}
	if !e.Kind.IsKnown() {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Envelope", "Validate",
			"unknown kind "+e.Kind.String())
	}
	if e.Timestamp.IsZero() {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Envelope", "Validate", "missing timestamp")
	}
	if e.Kind.IsResponse() && e.CorrelationID == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Envelope", "Validate",
			"response kind without correlation id")
	}
	return nil
}

// DecodePayload unmarshals the envelope data into T.
func DecodePayload[T any](e *Envelope) (T, error) {
	var payload T
	if len(e.Data) == 0 {
		return payload, errors.WrapInvalid(errors.ErrInvalidConfig,
			"Envelope", "DecodePayload", "empty payload for "+e.Kind.String())
	}
	if err := json.Unmarshal(e.Data, &payload); err != nil {
		return payload, errors.WrapInvalid(err, "Envelope", "DecodePayload",
			"payload unmarshal for "+e.Kind.String())
	}
	return payload, nil
}
