package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTierLadder(t *testing.T) {
	tests := []struct {
		tier   Tier
		fanIn  int
		parent Tier
		tf     string
	}{
		{TierM1, 0, TierM5, "1m"},
		{TierM5, 5, TierM15, "5m"},
		{TierM15, 3, TierM30, "15m"},
		{TierM30, 2, "", "30m"},
	}
	for _, tt := range tests {
		t.Run(string(tt.tier), func(t *testing.T) {
			assert.Equal(t, tt.fanIn, tt.tier.FanIn())
			assert.Equal(t, tt.tf, tt.tier.Timeframe())
			parent, ok := tt.tier.Parent()
			assert.Equal(t, tt.parent, parent)
			assert.Equal(t, tt.parent != "", ok)
			if ok {
				child, _ := parent.Child()
				assert.Equal(t, tt.tier, child)
				assert.Equal(t, parent.Duration(), time.Duration(parent.FanIn())*tt.tier.Duration())
			}
		})
	}
}

func TestParseTier(t *testing.T) {
	for in, want := range map[string]Tier{"M5": TierM5, "m15": TierM15, "30m": TierM30, " 1m ": TierM1} {
		got, err := ParseTier(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ParseTier("H1")
	assert.ErrorIs(t, err, ErrMalformedInput)
}

func TestWindowStart(t *testing.T) {
	ts := time.Date(2024, 5, 1, 10, 7, 59, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 5, 0, 0, time.UTC), TierM5.WindowStart(ts))
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), TierM30.WindowStart(ts))
}

func TestCandleDirection(t *testing.T) {
	assert.Equal(t, Bullish, CandleDirection(100, 101))
	assert.Equal(t, Bearish, CandleDirection(101, 100))
	assert.Equal(t, Neutral, CandleDirection(100, 100))
}

func TestConfidence(t *testing.T) {
	assert.Equal(t, 2, Confidence(50, 2))
	assert.Equal(t, 0, Confidence(0, 10))
	assert.Equal(t, 67, Confidence(66.6, 50))
	assert.Equal(t, 67, Confidence(66.6, 500))
	assert.Equal(t, 100, Confidence(140, 60))
	assert.Equal(t, 0, Confidence(-5, 60))
}

func TestConfidenceNeverExceedsRate(t *testing.T) {
	for total := 1; total <= 120; total++ {
		for successes := 0; successes <= total; successes++ {
			rate := float64(successes) / float64(total) * 100
			c := Confidence(rate, total)
			assert.LessOrEqual(t, float64(c), rate+0.5, "total=%d successes=%d", total, successes)
			if total >= ConfidenceSaturation {
				assert.Equal(t, int(rate+0.5), c)
			}
		}
	}
}

func TestPatternOutcomeSequence(t *testing.T) {
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	p := SeedPattern("SpringX_1m", "SpringX", "1m", true, now)
	assert.Equal(t, 100.0, p.SuccessRate)
	assert.Equal(t, 1, p.TotalOccurrences)
	assert.Equal(t, SeedConfidence, p.ConfidenceLevel)

	p.ApplyOutcome(false, now.Add(time.Minute))
	assert.Equal(t, 50.0, p.SuccessRate)
	assert.Equal(t, 2, p.TotalOccurrences)
	assert.Equal(t, 2, p.ConfidenceLevel)
	assert.Equal(t, now.Add(time.Minute), p.LastUpdated)
}

func TestSplitSignature(t *testing.T) {
	pattern, tf := SplitSignature("Double_Bottom_15m")
	assert.Equal(t, "Double_Bottom", pattern)
	assert.Equal(t, "15m", tf)

	pattern, tf = SplitSignature("plain")
	assert.Equal(t, "plain", pattern)
	assert.Equal(t, "", tf)
}

func TestDecodeTierResultSelectsVariant(t *testing.T) {
	base := TierRecord{Symbol: "BTCUSDT", Tier: TierM30, Open: 1, Close: 2}
	derived, err := EncodeDerived(&M30Result{M30Fields: M30Fields{Structure: StructureBullishTrend, MarketPhase: PhaseMarkup}})
	require.NoError(t, err)

	res, err := DecodeTierResult(base, derived)
	require.NoError(t, err)
	m30, ok := res.(*M30Result)
	require.True(t, ok)
	assert.Equal(t, PhaseMarkup, m30.MarketPhase)
	assert.Equal(t, "BTCUSDT", m30.Base().Symbol)

	_, err = DecodeTierResult(TierRecord{Tier: "H4"}, nil)
	assert.ErrorIs(t, err, ErrMalformedInput)
}

func TestTierResultJSONIsFlat(t *testing.T) {
	rec := &M5Result{
		TierRecord: TierRecord{Symbol: "ETH", Tier: TierM5, Direction: Bullish},
		M5Fields:   M5Fields{TrendStrength: 80},
	}
	b, err := json.Marshal(rec)
	require.NoError(t, err)

	var flat map[string]interface{}
	require.NoError(t, json.Unmarshal(b, &flat))
	assert.Equal(t, "ETH", flat["symbol"])
	assert.Equal(t, 80.0, flat["trendStrength"])
}

func TestParseSignalResult(t *testing.T) {
	r, ok := ParseSignalResult("win")
	assert.True(t, ok)
	assert.Equal(t, ResultWin, r)
	_, ok = ParseSignalResult("maybe")
	assert.False(t, ok)
}
