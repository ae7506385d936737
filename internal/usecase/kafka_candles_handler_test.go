package usecase

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"TrendCascade/internal/domain/models"
	"TrendCascade/pkg/codec"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKafkaCandlesHandler(t *testing.T) {
	env := newTestEnv(t)
	h := NewKafkaCandlesHandler("candles.m1", codec.JSON{}, env.ingest(), nil)
	assert.Equal(t, "candles.m1", h.Topic())

	payload, err := json.Marshal(map[string]any{
		"symbol":    "ethusdt",
		"open":      "2500.5",
		"high":      2510,
		"low":       2498,
		"close":     2505,
		"volume":    42,
		"closeTime": base.Add(time.Minute).UnixMilli(),
	})
	require.NoError(t, err)
	require.NoError(t, h.Handle(context.Background(), payload))

	rec, err := env.tiers.Get(context.Background(), "ETHUSDT", models.TierM1, base)
	require.NoError(t, err)
	assert.Equal(t, 2500.5, rec.Base().Open)
}

func TestKafkaCandlesHandlerPermanentErrors(t *testing.T) {
	env := newTestEnv(t)
	h := NewKafkaCandlesHandler("candles.m1", nil, env.ingest(), nil)

	err := h.Handle(context.Background(), []byte("{not json"))
	assert.ErrorIs(t, err, models.ErrMalformedInput)

	err = h.Handle(context.Background(), []byte(`{"symbol":"BTCUSDT"}`))
	assert.ErrorIs(t, err, models.ErrMalformedInput)
}
