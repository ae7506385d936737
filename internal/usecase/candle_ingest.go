package usecase

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"TrendCascade/internal/domain/models"
	domrepo "TrendCascade/internal/domain/repository"
	"TrendCascade/internal/service/narrative"
	"TrendCascade/pkg/indicators"
	"TrendCascade/pkg/logger"
	"TrendCascade/pkg/util"

	"github.com/google/uuid"
)

// CandleIngest turns a closed-candle event into an M1 record and drives the cascade upward.
type CandleIngest struct {
	tiers      domrepo.TierStore
	aggregator *TierAggregator
	calc       *indicators.Calculator
	history    int
	metrics    domrepo.Metrics
	log        *logger.Logger
	now        func() time.Time
}

func NewCandleIngest(tiers domrepo.TierStore, aggregator *TierAggregator, calc *indicators.Calculator, history int, metrics domrepo.Metrics, lgr *logger.Logger) *CandleIngest {
	if calc == nil {
		calc = indicators.NewCalculator(0, 0)
	}
	if history <= 0 {
		history = 50
	}
	if metrics == nil {
		metrics = domrepo.NopMetrics{}
	}
	if lgr == nil {
		lgr = logger.NewNop()
	}
	return &CandleIngest{
		tiers:      tiers,
		aggregator: aggregator,
		calc:       calc,
		history:    history,
		metrics:    metrics,
		log:        lgr,
		now:        time.Now,
	}
}

// Ingest persists the M1 record (idempotent per minute) and cascades. A re-delivered candle keeps
// the stored record and climbs through parents that already exist, so any tier a failed earlier
// run missed gets closed. Only tiers closed by this call are reported.
func (uc *CandleIngest) Ingest(ctx context.Context, ev models.CandleEvent) (*models.IngestResult, error) {
	candle, defaulted, err := NormalizeCandle(ev)
	if err != nil {
		uc.metrics.RecordError("ingest_malformed")
		return nil, err
	}

	rec, err := uc.buildM1(ctx, candle, ev.Indicators, defaulted)
	if err != nil {
		return nil, err
	}

	inserted, err := uc.aggregator.Persist(ctx, rec)
	if err != nil {
		uc.metrics.RecordError("ingest_persist")
		return nil, fmt.Errorf("persist M1: %w", err)
	}
	uc.metrics.CandleIngested(len(defaulted) > 0)

	result := &models.IngestResult{
		M1ID:        rec.ID,
		Inserted:    inserted,
		Defaulted:   defaulted,
		ClosedTiers: []models.TierResult{},
	}
	if len(defaulted) > 0 {
		uc.log.Warn("candle fields defaulted",
			logger.String("symbol", candle.Symbol),
			logger.Time("open_time", candle.OpenTime),
			logger.Strings("fields", defaulted))
	}

	var child models.TierResult = rec
	tier := models.TierM1
	for {
		parent, closed, err := uc.aggregator.OnChildTierClosed(ctx, tier, candle.Symbol, child)
		if err != nil {
			return result, fmt.Errorf("cascade from %s: %w", tier, err)
		}
		if parent == nil {
			break
		}
		if closed {
			result.ClosedTiers = append(result.ClosedTiers, parent)
		}
		child, tier = parent, parent.Base().Tier
	}
	return result, nil
}

// NormalizeCandle validates an event. A missing close rejects it; other bad numbers are defaulted
// and their names returned.
func NormalizeCandle(ev models.CandleEvent) (models.Candle, []string, error) {
	symbol := strings.ToUpper(strings.TrimSpace(ev.Symbol))
	if symbol == "" {
		return models.Candle{}, nil, fmt.Errorf("%w: symbol is required", models.ErrMalformedInput)
	}
	if !ev.Close.Valid() || ev.Close.Value <= 0 {
		return models.Candle{}, nil, fmt.Errorf("%w: close is missing or invalid", models.ErrMalformedInput)
	}

	var openTime time.Time
	switch {
	case !ev.OpenTime.IsZero():
		openTime = ev.OpenTime.UTC().Truncate(time.Minute)
	case !ev.CloseTime.IsZero():
		openTime = ev.CloseTime.UTC().Add(-time.Millisecond).Truncate(time.Minute)
	default:
		return models.Candle{}, nil, fmt.Errorf("%w: closeTime is required", models.ErrMalformedInput)
	}

	c := models.Candle{Symbol: symbol, OpenTime: openTime, Close: ev.Close.Value}
	var defaulted []string
	pick := func(name string, f util.FlexFloat, def float64) float64 {
		if f.Valid() && f.Value >= 0 {
			return f.Value
		}
		defaulted = append(defaulted, name)
		return def
	}
	c.Open = pick("open", ev.Open, c.Close)
	c.High = pick("high", ev.High, math.Max(c.Open, c.Close))
	c.Low = pick("low", ev.Low, math.Min(c.Open, c.Close))
	c.Volume = pick("volume", ev.Volume, 0)
	return c, defaulted, nil
}

func (uc *CandleIngest) buildM1(ctx context.Context, c models.Candle, bundle *models.IndicatorBundle, defaulted []string) (*models.M1Result, error) {
	recent, err := uc.tiers.Latest(ctx, c.Symbol, models.TierM1, uc.history)
	if err != nil {
		return nil, fmt.Errorf("load M1 history: %w", err)
	}

	// recent is newest first; the series must be oldest first and end with this candle.
	closes := make([]float64, 0, len(recent)+1)
	volumes := make([]float64, 0, len(recent)+1)
	var prev *indicators.OHLC
	for i := len(recent) - 1; i >= 0; i-- {
		b := recent[i].Base()
		if !b.Timestamp.Before(c.OpenTime) {
			continue
		}
		closes = append(closes, b.Close)
		volumes = append(volumes, b.TotalVolume)
		prev = &indicators.OHLC{Open: b.Open, High: b.High, Low: b.Low, Close: b.Close}
	}
	closes = append(closes, c.Close)
	volumes = append(volumes, c.Volume)
	snap := uc.calc.Compute(closes, volumes)

	if bundle != nil {
		override := func(dst **float64, f util.FlexFloat) {
			if f.Valid() {
				v := f.Value
				*dst = &v
			}
		}
		override(&snap.RSI14, bundle.RSI14)
		override(&snap.EMA9, bundle.EMA9)
		override(&snap.EMA20, bundle.EMA20)
		override(&snap.MACD, bundle.MACD)
		override(&snap.MACDSignal, bundle.MACDSignal)
		if bundle.VolumeSpike != nil {
			snap.VolumeSpike = *bundle.VolumeSpike
		}
	}

	dir := models.CandleDirection(c.Open, c.Close)
	rec := &models.M1Result{
		TierRecord: models.TierRecord{
			ID:          uuid.NewString(),
			Symbol:      c.Symbol,
			Tier:        models.TierM1,
			Timestamp:   c.OpenTime,
			Open:        c.Open,
			High:        c.High,
			Low:         c.Low,
			Close:       c.Close,
			TotalVolume: c.Volume,
			Direction:   dir,
			Metadata:    map[string]string{},
			CreatedAt:   uc.now().UTC(),
		},
		M1Fields: models.M1Fields{
			RSI14:                   snap.RSI14,
			EMA9:                    snap.EMA9,
			EMA20:                   snap.EMA20,
			MACD:                    snap.MACD,
			MACDSignal:              snap.MACDSignal,
			BollingerUpper:          snap.BollingerUpper,
			BollingerLower:          snap.BollingerLower,
			CandlePattern:           indicators.DetectPattern(prev, indicators.OHLC{Open: c.Open, High: c.High, Low: c.Low, Close: c.Close}),
			VolumeSpike:             snap.VolumeSpike,
			ContinuationProbability: continuationProbability(dir, snap.RSI14, snap.VolumeSpike),
		},
	}
	if len(defaulted) > 0 {
		rec.Metadata["defaulted"] = strings.Join(defaulted, ",")
	}
	// M1 always uses the template; only parent tiers go through the configured narrator.
	rec.NarrativeInsight = narrative.Render(rec)
	return rec, nil
}
