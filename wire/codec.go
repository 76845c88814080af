package wire

import (
	"encoding/json"

	"github.com/funkyflowstudios/synapse-hub-sub000/errors"
)

// Codec serializes envelopes to transport bytes and back. Implementations
// must reject envelopes that fail structural validation so malformed or
// unknown-kind messages never reach routing code.
type Codec interface {
	Encode(env *Envelope) ([]byte, error)
	Decode(data []byte) (*Envelope, error)
}

// JSONCodec is the default wire format. Envelopes are single JSON objects:
//
//	{"id": "...", "type": "telemetry.reading", "timestamp": "...",
//	 "correlationId": "...", "data": {...}}
type JSONCodec struct{}

// NewJSONCodec returns the JSON wire codec.
func NewJSONCodec() *JSONCodec {
	return &JSONCodec{}
}

// Encode validates the envelope and marshals it to JSON.
func (c *JSONCodec) Encode(env *Envelope) ([]byte, error) {
	if env == nil {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "JSONCodec", "Encode", "nil envelope")
	}
	if err := env.Validate(); err != nil {
		return nil, errors.WrapInvalid(err, "JSONCodec", "Encode", "envelope validation")
	}

	data, err := json.Marshal(env)
	if err != nil {
		return nil, errors.WrapInvalid(err, "JSONCodec", "Encode", "envelope marshal")
	}
	return data, nil
}

// Decode unmarshals transport bytes and validates the result.
func (c *JSONCodec) Decode(data []byte) (*Envelope, error) {
	if len(data) == 0 {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "JSONCodec", "Decode", "empty frame")
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, errors.WrapInvalid(err, "JSONCodec", "Decode", "envelope unmarshal")
	}
	if err := env.Validate(); err != nil {
		return nil, errors.WrapInvalid(err, "JSONCodec", "Decode", "envelope validation")
	}

	return &env, nil
}
