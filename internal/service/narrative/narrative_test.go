package narrative

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"TrendCascade/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func m30() *models.M30Result {
	return &models.M30Result{
		TierRecord: models.TierRecord{
			Symbol:    "BTCUSDT",
			Tier:      models.TierM30,
			Timestamp: time.Date(2024, 10, 10, 10, 0, 0, 0, time.UTC),
			Open:      100,
			High:      104.5,
			Low:       99,
			Close:     103,
			Direction: models.Bullish,
		},
		M30Fields: models.M30Fields{
			InstitutionalFlow: models.FlowAccumulation,
			Structure:         models.StructureBullishTrend,
			MarketPhase:       models.PhaseMarkup,
		},
	}
}

func TestRenderIsDeterministic(t *testing.T) {
	rec := m30()
	want := "BTCUSDT M30 2024-10-10 10:00: bullish, 100 -> 103 (range 99-104.5); " +
		"structure bullish_trend, flow accumulation, phase markup."
	assert.Equal(t, want, Render(rec))
	assert.Equal(t, Render(rec), Render(rec))

	text, err := NewTemplateNarrator().Describe(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, want, text)
}

func TestRenderM1(t *testing.T) {
	rsi := 61.25
	rec := &models.M1Result{
		TierRecord: models.TierRecord{Symbol: "ETH", Tier: models.TierM1, Open: 1, High: 2, Low: 1, Close: 2, Direction: models.Bullish},
		M1Fields:   models.M1Fields{RSI14: &rsi, CandlePattern: "hammer", VolumeSpike: true, ContinuationProbability: 80},
	}
	assert.Contains(t, Render(rec), "pattern hammer, RSI 61.25, volume spike, continuation 80%.")
}

type failingNarrator struct{}

func (failingNarrator) Describe(context.Context, models.TierResult) (string, error) {
	return "", errors.New("boom")
}

func TestFallbackUsesTemplateOnError(t *testing.T) {
	rec := m30()
	text, err := NewFallbackNarrator(failingNarrator{}, nil).Describe(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, Render(rec), text)
}

func TestOpenAINarrator(t *testing.T) {
	var (
		mu       sync.Mutex
		lastPath string
		lastBody []byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		lastPath = r.URL.Path
		lastBody, _ = io.ReadAll(r.Body)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id":"chatcmpl-1",
			"object":"chat.completion",
			"created":1730366400,
			"model":"gpt-4o-mini",
			"choices":[
				{
					"index":0,
					"finish_reason":"stop",
					"logprobs":null,
					"message":{"role":"assistant","content":"  Buyers held control through the window.  "}
				}
			],
			"usage":{"prompt_tokens":10,"completion_tokens":8,"total_tokens":18}
		}`))
	}))
	defer srv.Close()

	n := NewOpenAINarrator(OpenAIConfig{APIKey: "test-key", BaseURL: srv.URL, Timeout: time.Second}, srv.Client())
	text, err := n.Describe(context.Background(), m30())
	require.NoError(t, err)
	assert.Equal(t, "Buyers held control through the window.", text)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "/chat/completions", lastPath)
	var payload map[string]any
	require.NoError(t, json.Unmarshal(lastBody, &payload))
	assert.Equal(t, "gpt-4o-mini", payload["model"])
}

func TestOpenAINarratorErrorFallsBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	primary := NewOpenAINarrator(OpenAIConfig{APIKey: "k", BaseURL: srv.URL, Timeout: time.Second}, srv.Client())
	_, err := primary.Describe(context.Background(), m30())
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrUpstreamUnavailable)

	text, err := NewFallbackNarrator(primary, nil).Describe(context.Background(), m30())
	require.NoError(t, err)
	assert.Equal(t, Render(m30()), text)
}
