package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"TrendCascade/internal/domain/models"
	domrepo "TrendCascade/internal/domain/repository"
	"TrendCascade/internal/repository"
	"TrendCascade/internal/service/lock"
	"TrendCascade/pkg/cache"
	"TrendCascade/pkg/indicators"
	"TrendCascade/pkg/util"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var base = time.Date(2024, 10, 10, 10, 0, 0, 0, time.UTC)

type testEnv struct {
	db        *gorm.DB
	cache     *cache.MemoryCache
	tiers     *repository.GormTierStore
	patterns  domrepo.PatternMemoryStore
	signals   *repository.GormSignalStore
	locker    *lock.Locker
	publisher *recordingPublisher
}

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

	require.NoError(t, repository.AutoMigrate(context.Background(), db), "failed to migrate tables")
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := setupTestDB(t)
	mc := cache.NewMemoryCache()
	t.Cleanup(func() { _ = mc.Close() })
	return &testEnv{
		db:        db,
		cache:     mc,
		tiers:     repository.NewGormTierStore(db),
		patterns:  repository.NewCachingPatternStore(repository.NewGormPatternStore(db), mc, time.Minute, nil),
		signals:   repository.NewGormSignalStore(db),
		locker:    lock.New(mc, lock.WithMaxWait(5*time.Second)),
		publisher: &recordingPublisher{},
	}
}

func (e *testEnv) aggregator() *TierAggregator {
	return NewTierAggregator(e.tiers, e.locker, nil, e.publisher, nil, nil)
}

func (e *testEnv) ingest() *CandleIngest {
	return NewCandleIngest(e.tiers, e.aggregator(), indicators.NewCalculator(20, 1.5), 50, nil, nil)
}

func (e *testEnv) updater() *ConfidenceUpdater {
	return NewConfidenceUpdater(e.patterns, e.locker, nil, nil)
}

type recordingPublisher struct {
	mu   sync.Mutex
	recs []models.TierResult
	err  error
}

func (p *recordingPublisher) PublishTier(_ context.Context, rec models.TierResult) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.recs = append(p.recs, rec)
	return nil
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.recs)
}

func m1At(minute int, open, close, volume float64, dir models.Direction, prob float64) *models.M1Result {
	return &models.M1Result{
		TierRecord: models.TierRecord{
			Symbol:      "BTCUSDT",
			Tier:        models.TierM1,
			Timestamp:   base.Add(time.Duration(minute) * time.Minute),
			Open:        open,
			High:        max(open, close) + 0.5,
			Low:         min(open, close) - 0.5,
			Close:       close,
			TotalVolume: volume,
			Direction:   dir,
		},
		M1Fields: models.M1Fields{ContinuationProbability: prob},
	}
}

// mapPrices is a PriceSource backed by a map; symbols absent from it fail.
type mapPrices map[string]float64

func (m mapPrices) CurrentPrice(_ context.Context, symbol string) (float64, error) {
	if p, ok := m[symbol]; ok {
		return p, nil
	}
	return 0, models.ErrUpstreamUnavailable
}

func flex(v float64) util.FlexFloat { return util.Float(v) }

func flexTime(t time.Time) util.FlexTime { return util.FlexTime{Time: t} }
