package wire

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEnvelope(t *testing.T) {
	env, err := NewEnvelope(KindCommandRequest, CommandRequest{Name: "set_value", Args: map[string]any{"level": 5}})
	require.NoError(t, err)

	assert.NotEmpty(t, env.ID)
	assert.Equal(t, KindCommandRequest, env.Kind)
	assert.False(t, env.Timestamp.IsZero())
	assert.Empty(t, env.CorrelationID)
	require.NoError(t, env.Validate())
}

func TestNewResponseCarriesCorrelation(t *testing.T) {
	req, err := NewEnvelope(KindCommandRequest, CommandRequest{Name: "reboot"})
	require.NoError(t, err)

	resp, err := NewResponse(req, KindCommandResponse, CommandResponse{Status: CommandOK})
	require.NoError(t, err)

	assert.Equal(t, req.ID, resp.CorrelationID)
	assert.NotEqual(t, req.ID, resp.ID)
	require.NoError(t, resp.Validate())
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	codec := NewJSONCodec()

	env, err := NewEnvelope(KindReading, Reading{
		StreamID:  "gps",
		Value:     48.2,
		Unit:      "deg",
		Priority:  3,
		Timestamp: time.Now().UTC(),
	})
	require.NoError(t, err)

	data, err := codec.Encode(env)
	require.NoError(t, err)

	decoded, err := codec.Decode(data)
	require.NoError(t, err)

	assert.Equal(t, env.ID, decoded.ID)
	assert.Equal(t, env.Kind, decoded.Kind)

	reading, err := DecodePayload[Reading](decoded)
	require.NoError(t, err)
	assert.Equal(t, "gps", reading.StreamID)
	assert.Equal(t, 48.2, reading.Value)
}

func TestDecodeRejectsUnknownKind(t *testing.T) {
	codec := NewJSONCodec()

	frame, err := json.Marshal(map[string]any{
		"id":        "abc",
		"type":      "quantum.entangle",
		"timestamp": time.Now().UTC(),
	})
	require.NoError(t, err)

	_, err = codec.Decode(frame)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown kind")
}

func TestDecodeRejectsResponseWithoutCorrelation(t *testing.T) {
	codec := NewJSONCodec()

	frame, err := json.Marshal(map[string]any{
		"id":        "abc",
		"type":      string(KindCommandResponse),
		"timestamp": time.Now().UTC(),
	})
	require.NoError(t, err)

	_, err = codec.Decode(frame)
	require.Error(t, err)
}

func TestDecodeRejectsMalformedFrames(t *testing.T) {
	codec := NewJSONCodec()

	_, err := codec.Decode(nil)
	require.Error(t, err)

	_, err = codec.Decode([]byte("{not json"))
	require.Error(t, err)

	_, err = codec.Decode([]byte(`{"type":"connection.ping"}`))
	require.Error(t, err, "missing id and timestamp must fail validation")
}

func TestKindCatalog(t *testing.T) {
	assert.True(t, KindPing.IsKnown())
	assert.Equal(t, CategoryConnection, KindPing.Category())
	assert.False(t, Kind("bogus.kind").IsKnown())

	assert.True(t, KindCommandResponse.IsResponse())
	assert.True(t, KindPong.IsResponse())
	assert.False(t, KindCommandRequest.IsResponse())
	assert.False(t, KindReading.IsResponse())
}

func TestKindCategoriesCovered(t *testing.T) {
	seen := map[Category]int{}
	for _, cat := range knownKinds {
		seen[cat]++
	}

	for _, cat := range []Category{
		CategoryConnection, CategoryDevice, CategoryTelemetry,
		CategoryCommand, CategoryStream, CategoryConfig, CategoryFile,
	} {
		assert.Greater(t, seen[cat], 0, "category %s has no kinds", cat)
	}
}

func TestDecodePayloadEmptyData(t *testing.T) {
	env, err := NewEnvelope(KindPing, nil)
	require.NoError(t, err)

	_, err = DecodePayload[Ping](env)
	require.Error(t, err)
}
