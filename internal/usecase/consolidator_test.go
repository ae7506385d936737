package usecase

import (
	"context"
	"testing"
	"time"

	"TrendCascade/internal/domain/models"
	domrepo "TrendCascade/internal/domain/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type resolvedSpec struct {
	id, pattern, timeframe, condition string
	prob                              float64
	accurate                          bool
	resolvedAt                        time.Time
}

func seedResolved(t *testing.T, env *testEnv, specs ...resolvedSpec) {
	t.Helper()
	ctx := context.Background()
	for _, s := range specs {
		require.NoError(t, env.signals.Create(ctx, &models.Signal{
			ID:              s.id,
			Symbol:          "BTCUSDT",
			Timeframe:       s.timeframe,
			Pattern:         s.pattern,
			Type:            models.SignalBuy,
			EntryPrice:      100,
			Probability:     s.prob,
			MarketCondition: s.condition,
			CreatedAt:       s.resolvedAt.Add(-20 * time.Minute),
		}))
		result, outcome := models.ResultLoss, models.OutcomeInaccurate
		if s.accurate {
			result, outcome = models.ResultWin, models.OutcomeAccurate
		}
		applied, err := env.signals.Resolve(ctx, models.Resolution{
			SignalID:   s.id,
			Result:     result,
			ExitPrice:  100,
			ResolvedAt: s.resolvedAt,
			Feedback:   models.Feedback{WasAccurate: s.accurate, Outcome: outcome, Source: models.SourceValidator},
		})
		require.NoError(t, err)
		require.True(t, applied)
	}
}

// cancelAfterLoad cancels the run right after the resolved signals are loaded.
type cancelAfterLoad struct {
	domrepo.SignalStore
	cancel context.CancelFunc
}

func (c cancelAfterLoad) ResolvedBetween(ctx context.Context, from, to time.Time) ([]models.Signal, error) {
	out, err := c.SignalStore.ResolvedBetween(ctx, from, to)
	c.cancel()
	return out, err
}

func newConsolidator(env *testEnv, at time.Time) *Consolidator {
	c := NewConsolidator(env.signals, env.patterns, env.tiers, env.locker, ConsolidatorConfig{}, nil, nil)
	c.now = func() time.Time { return at }
	return c
}

func TestConsolidateRebuildsPatternMemory(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.patterns.Upsert(ctx, &models.PatternMemory{
		Signature:        "SpringX_1m",
		Pattern:          "SpringX",
		Timeframe:        "1m",
		SuccessRate:      90,
		TotalOccurrences: 10,
		Timeframes:       []string{"5m"},
		MarketConditions: []string{"ranging"},
		ConfidenceLevel:  18,
		LastUpdated:      base.Add(-48 * time.Hour),
	}))
	seedResolved(t, env,
		resolvedSpec{"s1", "SpringX", "1m", "trending", 70, true, base.Add(1 * time.Hour)},
		resolvedSpec{"s2", "SpringX", "1m", "volatile", 80, false, base.Add(2 * time.Hour)},
		resolvedSpec{"s3", "SpringX", "1m", "trending", 90, true, base.Add(3 * time.Hour)},
		resolvedSpec{"w1", "Wedge", "5m", "ranging", 60, true, base.Add(4 * time.Hour)},
	)

	c := newConsolidator(env, base.Add(24*time.Hour))
	sum, err := c.Consolidate(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 7, sum.WindowDays)
	assert.Equal(t, 2, sum.MemoriesUpdated)
	assert.Equal(t, 0, sum.SkippedGroups)
	assert.InDelta(t, 7.5, sum.AvgConfidence, 1e-9)
	require.Len(t, sum.TopPatterns, 2)
	assert.Equal(t, "SpringX_1m", sum.TopPatterns[0].Signature)
	assert.Equal(t, 13, sum.TopPatterns[0].Confidence)
	assert.Equal(t, "Wedge_5m", sum.TopPatterns[1].Signature)

	p, err := env.patterns.Get(ctx, "SpringX_1m")
	require.NoError(t, err)
	assert.InDelta(t, 200.0/3, p.SuccessRate, 1e-9)
	assert.Equal(t, 10, p.TotalOccurrences)
	assert.Equal(t, 13, p.ConfidenceLevel)
	assert.InDelta(t, 80.0, p.AvgProbability, 1e-9)
	assert.Equal(t, []string{"5m", "1m"}, p.Timeframes)
	assert.Equal(t, []string{"trending", "volatile", "ranging"}, p.MarketConditions)
	assert.WithinDuration(t, base.Add(3*time.Hour), p.LastUpdated, 0)
	assert.Contains(t, p.SemanticSummary, "MEDIUM quality, moderadamente testado")

	w, err := env.patterns.Get(ctx, "Wedge_5m")
	require.NoError(t, err)
	assert.Equal(t, "Wedge", w.Pattern)
	assert.Equal(t, 1, w.TotalOccurrences)
	assert.Equal(t, 2, w.ConfidenceLevel)
	assert.Contains(t, w.SemanticSummary, "HIGH quality, em validação")
}

func TestConsolidateIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	seedResolved(t, env,
		resolvedSpec{"s1", "SpringX", "1m", "trending", 70, true, base.Add(1 * time.Hour)},
		resolvedSpec{"s2", "SpringX", "1m", "volatile", 80, false, base.Add(2 * time.Hour)},
	)

	c := newConsolidator(env, base.Add(24*time.Hour))
	_, err := c.Consolidate(ctx, 0)
	require.NoError(t, err)
	first, err := env.patterns.Get(ctx, "SpringX_1m")
	require.NoError(t, err)

	sum, err := c.Consolidate(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultWindowDays, sum.WindowDays)
	second, err := env.patterns.Get(ctx, "SpringX_1m")
	require.NoError(t, err)

	assert.Equal(t, first.SuccessRate, second.SuccessRate)
	assert.Equal(t, first.TotalOccurrences, second.TotalOccurrences)
	assert.Equal(t, first.ConfidenceLevel, second.ConfidenceLevel)
	assert.Equal(t, first.MarketConditions, second.MarketConditions)
	assert.Equal(t, first.Timeframes, second.Timeframes)
	assert.Equal(t, first.SemanticSummary, second.SemanticSummary)
}

func TestConsolidateIgnoresSignalsOutsideWindow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	seedResolved(t, env, resolvedSpec{"old", "SpringX", "1m", "trending", 70, true, base.Add(-10 * 24 * time.Hour)})

	sum, err := newConsolidator(env, base).Consolidate(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 0, sum.MemoriesUpdated)
	assert.Empty(t, sum.TopPatterns)

	_, err = env.patterns.Get(ctx, "SpringX_1m")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestConsolidatePrunesOnlyOldM1(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	old := -40 * 24 * 60
	oldM1 := m1At(old, 100, 101, 1, models.Bullish, 50)
	oldM5 := &models.M5Result{TierRecord: models.TierRecord{
		Symbol: "BTCUSDT", Tier: models.TierM5, Timestamp: oldM1.Timestamp, Open: 1, High: 1, Low: 1, Close: 1,
	}}
	recent := m1At(0, 100, 101, 1, models.Bullish, 50)
	for _, r := range []models.TierResult{oldM1, oldM5, recent} {
		_, err := env.tiers.Insert(ctx, r)
		require.NoError(t, err)
	}

	sum, err := newConsolidator(env, base.Add(time.Hour)).Consolidate(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(1), sum.PrunedRecords)

	_, err = env.tiers.Get(ctx, "BTCUSDT", models.TierM1, oldM1.Timestamp)
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, err = env.tiers.Get(ctx, "BTCUSDT", models.TierM5, oldM1.Timestamp)
	assert.NoError(t, err)
	_, err = env.tiers.Get(ctx, "BTCUSDT", models.TierM1, base)
	assert.NoError(t, err)
}

func TestConsolidateStopsOnCancel(t *testing.T) {
	env := newTestEnv(t)
	seedResolved(t, env, resolvedSpec{"s1", "SpringX", "1m", "trending", 70, true, base.Add(time.Hour)})

	ctx, cancel := context.WithCancel(context.Background())
	c := newConsolidator(env, base.Add(24*time.Hour))
	c.signals = cancelAfterLoad{SignalStore: env.signals, cancel: cancel}

	sum, err := c.Consolidate(ctx, 7)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, sum)
	assert.Equal(t, 0, sum.MemoriesUpdated)
}

func TestSemanticSummary(t *testing.T) {
	p := &models.PatternMemory{Pattern: "SpringX", SuccessRate: 72.5, AvgProbability: 68, TotalOccurrences: 25, Timeframes: []string{"1m", "5m"}}
	assert.Equal(t,
		"HIGH quality, confiável: SpringX success 72.5%, avg probability 68.0%, 25 occurrences, timeframes 1m, 5m",
		SemanticSummary(p))

	p = &models.PatternMemory{Pattern: "Wedge", SuccessRate: 40, TotalOccurrences: 3}
	assert.Equal(t,
		"LOW quality, em validação: Wedge success 40.0%, avg probability 0.0%, 3 occurrences, timeframes -",
		SemanticSummary(p))
}
