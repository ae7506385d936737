package repository

import (
	"context"
	"testing"
	"time"

	"TrendCascade/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// setupTestDB prepares an in-memory SQLite database with every table migrated.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err, "failed to initialize test database")

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, AutoMigrate(context.Background(), db), "failed to migrate tables")
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

var base = time.Date(2024, 10, 10, 10, 0, 0, 0, time.UTC)

func m1(symbol string, minute int, open, close float64) *models.M1Result {
	rsi := 55.0
	return &models.M1Result{
		TierRecord: models.TierRecord{
			Symbol:      symbol,
			Tier:        models.TierM1,
			Timestamp:   base.Add(time.Duration(minute) * time.Minute),
			Open:        open,
			High:        max(open, close) + 1,
			Low:         min(open, close) - 1,
			Close:       close,
			TotalVolume: 10,
			Direction:   models.CandleDirection(open, close),
			Metadata:    map[string]string{"source": "test"},
		},
		M1Fields: models.M1Fields{RSI14: &rsi, CandlePattern: "doji", ContinuationProbability: 70},
	}
}

func TestGormTierStoreInsertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewGormTierStore(setupTestDB(t))

	first := m1("BTCUSDT", 0, 100, 101)
	inserted, err := store.Insert(ctx, first)
	require.NoError(t, err)
	assert.True(t, inserted)
	require.NotEmpty(t, first.ID)

	again := m1("BTCUSDT", 0, 100, 999)
	inserted, err = store.Insert(ctx, again)
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Equal(t, first.ID, again.ID)

	got, err := store.Get(ctx, "BTCUSDT", models.TierM1, base)
	require.NoError(t, err)
	r, ok := got.(*models.M1Result)
	require.True(t, ok)
	assert.Equal(t, 101.0, r.Close)
	assert.Equal(t, "doji", r.CandlePattern)
	require.NotNil(t, r.RSI14)
	assert.Equal(t, 55.0, *r.RSI14)
	assert.Equal(t, "test", r.Metadata["source"])
}

func TestGormTierStoreGetMissing(t *testing.T) {
	store := NewGormTierStore(setupTestDB(t))
	_, err := store.Get(context.Background(), "BTCUSDT", models.TierM5, base)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestGormTierStoreRangeAndLatest(t *testing.T) {
	ctx := context.Background()
	store := NewGormTierStore(setupTestDB(t))
	for i := 0; i < 6; i++ {
		_, err := store.Insert(ctx, m1("ETHUSDT", i, 100+float64(i), 101+float64(i)))
		require.NoError(t, err)
	}
	_, err := store.Insert(ctx, m1("BTCUSDT", 2, 1, 2))
	require.NoError(t, err)

	got, err := store.Range(ctx, "ETHUSDT", models.TierM1, base, base.Add(5*time.Minute))
	require.NoError(t, err)
	require.Len(t, got, 5)
	assert.True(t, got[0].Base().Timestamp.Equal(base))
	assert.True(t, got[4].Base().Timestamp.Equal(base.Add(4*time.Minute)))

	latest, err := store.Latest(ctx, "ETHUSDT", models.TierM1, 2)
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.Equal(t, 106.0, latest[0].Base().Close)
	assert.Equal(t, 105.0, latest[1].Base().Close)
}

func TestGormTierStoreDeleteOlderThanTouchesOnlyTier(t *testing.T) {
	ctx := context.Background()
	store := NewGormTierStore(setupTestDB(t))

	for i := 0; i < 3; i++ {
		_, err := store.Insert(ctx, m1("BTCUSDT", i, 1, 2))
		require.NoError(t, err)
	}
	m5 := &models.M5Result{
		TierRecord: models.TierRecord{Symbol: "BTCUSDT", Tier: models.TierM5, Timestamp: base, Direction: models.Bullish},
		M5Fields:   models.M5Fields{TrendStrength: 80, Support: 1, Resistance: 3},
	}
	_, err := store.Insert(ctx, m5)
	require.NoError(t, err)

	n, err := store.DeleteOlderThan(ctx, models.TierM1, base.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	left, err := store.Latest(ctx, "BTCUSDT", models.TierM1, 0)
	require.NoError(t, err)
	assert.Len(t, left, 1)

	got, err := store.Get(ctx, "BTCUSDT", models.TierM5, base)
	require.NoError(t, err)
	assert.Equal(t, 80.0, got.(*models.M5Result).TrendStrength)
}

func TestGormPatternStoreUpsert(t *testing.T) {
	ctx := context.Background()
	store := NewGormPatternStore(setupTestDB(t))

	_, err := store.Get(ctx, "SpringX_1m")
	assert.ErrorIs(t, err, models.ErrNotFound)

	p := models.SeedPattern("SpringX_1m", "SpringX", "1m", true, base)
	require.NoError(t, store.Upsert(ctx, p))

	p.ApplyOutcome(false, base.Add(time.Minute))
	p.MarketConditions = []string{"trending"}
	require.NoError(t, store.Upsert(ctx, p))

	got, err := store.Get(ctx, "SpringX_1m")
	require.NoError(t, err)
	assert.Equal(t, 50.0, got.SuccessRate)
	assert.Equal(t, 2, got.TotalOccurrences)
	assert.Equal(t, 2, got.ConfidenceLevel)
	assert.Equal(t, []string{"1m"}, got.Timeframes)
	assert.Equal(t, []string{"trending"}, got.MarketConditions)

	var count int64
	require.NoError(t, store.db.Model(&PatternMemoryModel{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestGormPatternStoreTop(t *testing.T) {
	ctx := context.Background()
	store := NewGormPatternStore(setupTestDB(t))

	for _, p := range []models.PatternMemory{
		{Signature: "a_1m", Pattern: "a", ConfidenceLevel: 40, SuccessRate: 60},
		{Signature: "b_1m", Pattern: "b", ConfidenceLevel: 70, SuccessRate: 70},
		{Signature: "c_1m", Pattern: "c", ConfidenceLevel: 40, SuccessRate: 80},
	} {
		p := p
		require.NoError(t, store.Upsert(ctx, &p))
	}

	top, err := store.Top(ctx, 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "b_1m", top[0].Signature)
	assert.Equal(t, "c_1m", top[1].Signature)
}

func newSignal(id string, created time.Time) *models.Signal {
	return &models.Signal{
		ID:         id,
		Symbol:     "BTCUSDT",
		Timeframe:  "1m",
		Pattern:    "SpringX",
		Type:       models.SignalBuy,
		EntryPrice: 100,
		CreatedAt:  created,
	}
}

func TestGormSignalStoreListOpen(t *testing.T) {
	ctx := context.Background()
	store := NewGormSignalStore(setupTestDB(t))

	require.NoError(t, store.Create(ctx, newSignal("s2", base.Add(2*time.Minute))))
	require.NoError(t, store.Create(ctx, newSignal("s1", base.Add(time.Minute))))
	require.NoError(t, store.Create(ctx, newSignal("s3", base.Add(20*time.Minute))))

	open, err := store.ListOpen(ctx, base.Add(10*time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, open, 2)
	assert.Equal(t, "s1", open[0].ID)
	assert.Equal(t, "s2", open[1].ID)

	limited, err := store.ListOpen(ctx, base.Add(time.Hour), 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "s1", limited[0].ID)
}

func TestGormSignalStoreResolveOnce(t *testing.T) {
	ctx := context.Background()
	store := NewGormSignalStore(setupTestDB(t))
	require.NoError(t, store.Create(ctx, newSignal("s1", base)))

	res := models.Resolution{
		SignalID:       "s1",
		Result:         models.ResultWin,
		ExitPrice:      100.2,
		PriceChangePct: 0.2,
		ElapsedSeconds: 900,
		ResolvedAt:     base.Add(15 * time.Minute),
		Feedback:       models.Feedback{WasAccurate: true, Outcome: models.OutcomeAccurate, Source: models.SourceValidator},
	}
	applied, err := store.Resolve(ctx, res)
	require.NoError(t, err)
	assert.True(t, applied)

	res.Result = models.ResultLoss
	applied, err = store.Resolve(ctx, res)
	require.NoError(t, err)
	assert.False(t, applied)

	got, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, models.ResultWin, got.Result)
	require.NotNil(t, got.ExitPrice)
	assert.Equal(t, 100.2, *got.ExitPrice)
	require.NotNil(t, got.ElapsedSeconds)
	assert.Equal(t, int64(900), *got.ElapsedSeconds)

	fbs, err := store.FeedbackFor(ctx, []string{"s1"})
	require.NoError(t, err)
	require.Len(t, fbs, 1)
	assert.True(t, fbs[0].WasAccurate)
	assert.Equal(t, models.SourceValidator, fbs[0].Source)

	open, err := store.ListOpen(ctx, base.Add(time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestGormSignalStoreResolvedBetween(t *testing.T) {
	ctx := context.Background()
	store := NewGormSignalStore(setupTestDB(t))
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, store.Create(ctx, newSignal(id, base)))
		_, err := store.Resolve(ctx, models.Resolution{
			SignalID:   id,
			Result:     models.ResultWin,
			ResolvedAt: base.Add(time.Duration(i) * time.Hour),
		})
		require.NoError(t, err)
	}
	require.NoError(t, store.Create(ctx, newSignal("open", base)))

	got, err := store.ResolvedBetween(ctx, base, base.Add(2*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "b", got[1].ID)

	fbs, err := store.FeedbackFor(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, fbs)
}

func TestGormSignalStoreAppendFeedback(t *testing.T) {
	ctx := context.Background()
	store := NewGormSignalStore(setupTestDB(t))
	require.NoError(t, store.Create(ctx, newSignal("s1", base)))

	require.NoError(t, store.AppendFeedback(ctx, models.Feedback{SignalID: "s1", Rating: 4, Source: models.SourceManual}))
	require.NoError(t, store.AppendFeedback(ctx, models.Feedback{SignalID: "s1", WasAccurate: true, Source: models.SourceManual}))

	fbs, err := store.FeedbackFor(ctx, []string{"s1", "other"})
	require.NoError(t, err)
	assert.Len(t, fbs, 2)
}

func TestStorePriceSource(t *testing.T) {
	ctx := context.Background()
	tiers := NewGormTierStore(setupTestDB(t))
	src := NewStorePriceSource(tiers)

	_, err := src.CurrentPrice(ctx, "BTCUSDT")
	assert.ErrorIs(t, err, models.ErrUpstreamUnavailable)

	_, err = tiers.Insert(ctx, m1("BTCUSDT", 0, 100, 101))
	require.NoError(t, err)
	_, err = tiers.Insert(ctx, m1("BTCUSDT", 1, 101, 100.5))
	require.NoError(t, err)

	price, err := src.CurrentPrice(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 100.5, price)
}
