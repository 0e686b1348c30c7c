package queue

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type warmPayload struct {
	Symbol   string `json:"symbol"`
	Interval string `json:"interval"`
}

func TestParsePayloadPassesThroughTypedValues(t *testing.T) {
	p := warmPayload{Symbol: "AAPL", Interval: "1d"}

	got, err := ParsePayload[warmPayload](p)
	require.NoError(t, err)
	assert.Equal(t, "AAPL", got.Symbol)

	got, err = ParsePayload[warmPayload](&p)
	require.NoError(t, err)
	assert.Same(t, &p, got)
}

func TestParsePayloadDecodesRawJSON(t *testing.T) {
	raw := json.RawMessage(`{"symbol":"MSFT","interval":"1h"}`)

	got, err := ParsePayload[warmPayload](raw)
	require.NoError(t, err)
	assert.Equal(t, warmPayload{Symbol: "MSFT", Interval: "1h"}, *got)
}

func TestParsePayloadRecoversGenericMaps(t *testing.T) {
	// What a payload looks like after a generic JSON decode.
	m := map[string]interface{}{"symbol": "TSLA", "interval": "5m"}

	got, err := ParsePayload[warmPayload](m)
	require.NoError(t, err)
	assert.Equal(t, "TSLA", got.Symbol)
	assert.Equal(t, "5m", got.Interval)
}

func TestParsePayloadRejectsForeignTypes(t *testing.T) {
	_, err := ParsePayload[warmPayload](42)
	require.Error(t, err)
}

func TestRawPayloadEncodesGenericContainers(t *testing.T) {
	out := rawPayload(map[string]interface{}{"symbol": "AAPL"})
	raw, ok := out.(json.RawMessage)
	require.True(t, ok)
	assert.JSONEq(t, `{"symbol":"AAPL"}`, string(raw))

	// Typed payloads pass through untouched.
	p := warmPayload{Symbol: "AAPL"}
	assert.Equal(t, p, rawPayload(p))
}

func TestQueueKeysShareThePrefix(t *testing.T) {
	keys := keysFor("fincast:warmup")
	assert.Equal(t, "fincast:warmup:messages", keys.ready)
	assert.Equal(t, "fincast:warmup:retry", keys.retry)
	assert.Equal(t, "fincast:warmup:dlq", keys.dead)
}

func TestQueueModeString(t *testing.T) {
	assert.Equal(t, "producer-only", ModeProducerOnly.String())
	assert.Equal(t, "consumer-only", ModeConsumerOnly.String())
	assert.Equal(t, "producer-consumer", ModeProducerConsumer.String())
}
