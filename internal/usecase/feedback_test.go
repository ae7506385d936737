package usecase

import (
	"context"
	"testing"

	"TrendCascade/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeedbackSubmit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	seedSignal(t, env, "s1", "BTCUSDT", models.SignalBuy, 100, base)
	svc := NewFeedbackService(env.signals, env.updater(), nil)

	first, err := svc.Submit(ctx, FeedbackInput{SignalID: "s1", ActualResult: "win", Rating: 4})
	require.NoError(t, err)
	assert.Equal(t, "SpringX_1m", first.Signature)
	assert.Nil(t, first.OldSuccessRate)
	assert.Nil(t, first.OldConfidence)
	assert.Equal(t, 100.0, first.NewSuccessRate)
	assert.Equal(t, models.SeedConfidence, first.NewConfidence)

	no := false
	second, err := svc.Submit(ctx, FeedbackInput{SignalID: "s1", WasAccurate: &no})
	require.NoError(t, err)
	require.NotNil(t, second.OldSuccessRate)
	assert.Equal(t, 100.0, *second.OldSuccessRate)
	require.NotNil(t, second.OldConfidence)
	assert.Equal(t, models.SeedConfidence, *second.OldConfidence)
	assert.Equal(t, 50.0, second.NewSuccessRate)
	assert.Equal(t, 2, second.Record.TotalOccurrences)

	fb, err := env.signals.FeedbackFor(ctx, []string{"s1"})
	require.NoError(t, err)
	require.Len(t, fb, 2)
	for _, f := range fb {
		assert.Equal(t, models.SourceManual, f.Source)
	}

	sig, err := env.signals.Get(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, sig.Open(), "manual feedback leaves the signal open")
}

func TestFeedbackNeutralResultDependsOnSignalType(t *testing.T) {
	tests := []struct {
		sigType  models.SignalType
		accurate bool
		outcome  models.Outcome
		rate     float64
	}{
		{models.SignalBuy, false, models.OutcomeNeutral, 0},
		{models.SignalSell, false, models.OutcomeNeutral, 0},
		{models.SignalNeutral, true, models.OutcomeAccurate, 100},
		{models.SignalWait, true, models.OutcomeAccurate, 100},
	}
	for _, tt := range tests {
		t.Run(string(tt.sigType), func(t *testing.T) {
			env := newTestEnv(t)
			ctx := context.Background()
			seedSignal(t, env, "s1", "BTCUSDT", tt.sigType, 100, base)
			svc := NewFeedbackService(env.signals, env.updater(), nil)

			res, err := svc.Submit(ctx, FeedbackInput{SignalID: "s1", ActualResult: "NEUTRAL"})
			require.NoError(t, err)
			assert.Equal(t, tt.rate, res.NewSuccessRate)

			fb, err := env.signals.FeedbackFor(ctx, []string{"s1"})
			require.NoError(t, err)
			require.Len(t, fb, 1)
			assert.Equal(t, tt.outcome, fb[0].Outcome)
			assert.Equal(t, tt.accurate, fb[0].WasAccurate)
		})
	}
}

func TestFeedbackValidation(t *testing.T) {
	env := newTestEnv(t)
	svc := NewFeedbackService(env.signals, env.updater(), nil)
	yes := true

	tests := []struct {
		name string
		in   FeedbackInput
		want error
	}{
		{"missing signal id", FeedbackInput{ActualResult: "WIN"}, models.ErrMalformedInput},
		{"unknown result", FeedbackInput{SignalID: "s1", ActualResult: "MAYBE"}, models.ErrMalformedInput},
		{"no verdict", FeedbackInput{SignalID: "s1"}, models.ErrMalformedInput},
		{"rating out of range", FeedbackInput{SignalID: "s1", WasAccurate: &yes, Rating: 6}, models.ErrMalformedInput},
		{"unknown signal", FeedbackInput{SignalID: "nope", WasAccurate: &yes}, models.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Submit(context.Background(), tt.in)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
