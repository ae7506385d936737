package usecase

import (
	"context"
	"fmt"
	"testing"
	"time"

	"TrendCascade/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testProfiles = []ValidatorProfile{
	{Name: "standard", Dwell: 15 * time.Minute, DeadbandPct: 0.15},
	{Name: "fast", Dwell: 5 * time.Minute, DeadbandPct: 0.10},
}

func newValidator(t *testing.T, env *testEnv, prices mapPrices, at time.Time) *SignalValidator {
	t.Helper()
	v, err := NewSignalValidator(env.signals, prices, env.updater(), ValidatorConfig{Profiles: testProfiles}, nil, nil)
	require.NoError(t, err)
	v.now = func() time.Time { return at }
	return v
}

func seedSignal(t *testing.T, env *testEnv, id, symbol string, typ models.SignalType, entry float64, created time.Time) {
	t.Helper()
	require.NoError(t, env.signals.Create(context.Background(), &models.Signal{
		ID:              id,
		Symbol:          symbol,
		Timeframe:       "1m",
		Pattern:         "SpringX",
		Type:            typ,
		EntryPrice:      entry,
		Probability:     70,
		MarketCondition: "trending",
		CreatedAt:       created,
	}))
}

func TestValidatorResolvesBuyWin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	seedSignal(t, env, "s1", "BTCUSDT", models.SignalBuy, 100, base)

	v := newValidator(t, env, mapPrices{"BTCUSDT": 100.2}, base.Add(20*time.Minute))
	stats, err := v.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, "standard", stats.Profile)
	assert.Equal(t, 1, stats.Processed)
	assert.Equal(t, 1, stats.Wins)
	assert.Equal(t, 100.0, stats.WinRate)

	sig, err := env.signals.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, models.ResultWin, sig.Result)
	require.NotNil(t, sig.ExitPrice)
	assert.Equal(t, 100.2, *sig.ExitPrice)
	require.NotNil(t, sig.PriceChangePct)
	assert.InDelta(t, 0.2, *sig.PriceChangePct, 1e-9)
	require.NotNil(t, sig.ElapsedSeconds)
	assert.Equal(t, int64(1200), *sig.ElapsedSeconds)

	fb, err := env.signals.FeedbackFor(ctx, []string{"s1"})
	require.NoError(t, err)
	require.Len(t, fb, 1)
	assert.True(t, fb[0].WasAccurate)
	assert.Equal(t, 5, fb[0].Rating)
	assert.Equal(t, models.SourceValidator, fb[0].Source)

	p, err := env.patterns.Get(ctx, "SpringX_1m")
	require.NoError(t, err)
	assert.Equal(t, 1, p.TotalOccurrences)
	assert.Equal(t, 100.0, p.SuccessRate)
}

func TestValidatorSecondRunIsNoop(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	seedSignal(t, env, "s1", "BTCUSDT", models.SignalSell, 100, base)
	seedSignal(t, env, "s2", "BTCUSDT", models.SignalBuy, 100, base.Add(time.Second))

	v := newValidator(t, env, mapPrices{"BTCUSDT": 99.5}, base.Add(30*time.Minute))
	stats, err := v.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Processed)
	assert.Equal(t, 1, stats.Wins)
	assert.Equal(t, 1, stats.Losses)
	assert.Equal(t, 50.0, stats.WinRate)

	stats, err = v.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Processed)

	fb, err := env.signals.FeedbackFor(ctx, []string{"s1", "s2"})
	require.NoError(t, err)
	assert.Len(t, fb, 2, "one feedback row per signal")
}

func TestValidatorRespectsDwell(t *testing.T) {
	env := newTestEnv(t)
	seedSignal(t, env, "s1", "BTCUSDT", models.SignalBuy, 100, base)

	at := base.Add(10 * time.Minute)
	v := newValidator(t, env, mapPrices{"BTCUSDT": 101}, at)

	stats, err := v.RunProfile(context.Background(), "standard")
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Processed, "younger than the standard dwell")

	stats, err = v.RunProfile(context.Background(), "fast")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Processed)
	assert.Equal(t, "fast", stats.Profile)
}

func TestValidatorSkipsWhenPriceUnavailable(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	seedSignal(t, env, "s1", "ETHUSDT", models.SignalBuy, 100, base)
	seedSignal(t, env, "s2", "ETHUSDT", models.SignalBuy, 100, base.Add(time.Second))
	seedSignal(t, env, "s3", "BTCUSDT", models.SignalBuy, 100, base.Add(2*time.Second))

	v := newValidator(t, env, mapPrices{"BTCUSDT": 100.01}, base.Add(20*time.Minute))
	stats, err := v.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Skipped)
	assert.Equal(t, 1, stats.Processed)
	assert.Equal(t, 1, stats.Neutrals)

	sig, err := env.signals.Get(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, sig.Open())
}

func TestValidatorUnknownProfile(t *testing.T) {
	env := newTestEnv(t)
	v := newValidator(t, env, mapPrices{}, base)
	_, err := v.RunProfile(context.Background(), "slow")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestNewSignalValidatorRejectsBadConfig(t *testing.T) {
	env := newTestEnv(t)
	_, err := NewSignalValidator(env.signals, mapPrices{}, env.updater(), ValidatorConfig{}, nil, nil)
	assert.Error(t, err)

	_, err = NewSignalValidator(env.signals, mapPrices{}, env.updater(), ValidatorConfig{
		Profiles: []ValidatorProfile{{Name: "zero", Dwell: time.Minute}},
	}, nil, nil)
	assert.Error(t, err)
}

func TestClassify(t *testing.T) {
	for _, band := range []float64{0.10, 0.15} {
		tests := []struct {
			typ     models.SignalType
			delta   float64
			result  models.SignalResult
			outcome models.Outcome
		}{
			{models.SignalBuy, band + 0.01, models.ResultWin, models.OutcomeAccurate},
			{models.SignalBuy, -band - 0.01, models.ResultLoss, models.OutcomeInaccurate},
			{models.SignalBuy, band, models.ResultNeutral, models.OutcomeNeutral},
			{models.SignalBuy, -band, models.ResultNeutral, models.OutcomeNeutral},
			{models.SignalSell, -band - 0.01, models.ResultWin, models.OutcomeAccurate},
			{models.SignalSell, band + 0.01, models.ResultLoss, models.OutcomeInaccurate},
			{models.SignalSell, 0, models.ResultNeutral, models.OutcomeNeutral},
			{models.SignalNeutral, band / 2, models.ResultWin, models.OutcomeAccurate},
			{models.SignalWait, -band * 2, models.ResultLoss, models.OutcomeInaccurate},
		}
		for _, tt := range tests {
			t.Run(fmt.Sprintf("%s/%.2f/%+.3f", tt.typ, band, tt.delta), func(t *testing.T) {
				result, outcome := Classify(tt.typ, tt.delta, band)
				assert.Equal(t, tt.result, result)
				assert.Equal(t, tt.outcome, outcome)
			})
		}
	}
}
