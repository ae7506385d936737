package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"TrendCascade/internal/domain/models"
	domrepo "TrendCascade/internal/domain/repository"
	"TrendCascade/internal/service/narrative"
	"TrendCascade/pkg/logger"

	"github.com/google/uuid"
)

// TierAggregator closes a parent tier record once its window holds every child record.
// The child buffer is read back from the tier store on each call, so a restart loses nothing.
type TierAggregator struct {
	tiers     domrepo.TierStore
	locker    domrepo.KeyLocker
	narrator  domrepo.Narrator
	publisher domrepo.TierPublisher
	metrics   domrepo.Metrics
	log       *logger.Logger
	now       func() time.Time
}

func NewTierAggregator(
	tiers domrepo.TierStore,
	locker domrepo.KeyLocker,
	narrator domrepo.Narrator,
	publisher domrepo.TierPublisher,
	metrics domrepo.Metrics,
	lgr *logger.Logger,
) *TierAggregator {
	if narrator == nil {
		narrator = narrative.NewTemplateNarrator()
	}
	if metrics == nil {
		metrics = domrepo.NopMetrics{}
	}
	if lgr == nil {
		lgr = logger.NewNop()
	}
	return &TierAggregator{
		tiers:     tiers,
		locker:    locker,
		narrator:  narrator,
		publisher: publisher,
		metrics:   metrics,
		log:       lgr,
		now:       time.Now,
	}
}

func cascadeLockKey(symbol string) string { return "cascade:" + symbol }

// Persist stores a finest-tier record under the symbol's cascade lock, so two deliveries of the
// same candle cannot both pass the store's existence check.
func (a *TierAggregator) Persist(ctx context.Context, rec models.TierResult) (bool, error) {
	release, err := a.locker.Lock(ctx, cascadeLockKey(rec.Base().Symbol))
	if err != nil {
		return false, err
	}
	defer release()
	return a.tiers.Insert(ctx, rec)
}

// OnChildTierClosed is called after a record of tier has been persisted for symbol. It returns
// the parent record of the child's window once that window is complete. closed is true only when
// this call built and stored the parent; an already stored parent is returned with closed false
// so callers can keep climbing and repair tiers above it. The parent is nil while the window is
// still incomplete or has a gap.
func (a *TierAggregator) OnChildTierClosed(ctx context.Context, tier models.Tier, symbol string, child models.TierResult) (parentRec models.TierResult, closed bool, err error) {
	if child == nil || child.Base() == nil {
		return nil, false, fmt.Errorf("%w: nil child record", models.ErrMalformedInput)
	}
	cb := child.Base()
	if cb.Tier != tier || cb.Symbol != symbol {
		return nil, false, fmt.Errorf("%w: child %s/%s does not match %s/%s", models.ErrMalformedInput, cb.Symbol, cb.Tier, symbol, tier)
	}
	parent, ok := tier.Parent()
	if !ok {
		return nil, false, nil
	}

	release, err := a.locker.Lock(ctx, cascadeLockKey(symbol))
	if err != nil {
		return nil, false, err
	}
	defer release()

	start := time.Now()
	defer func() { a.metrics.RecordLatency("cascade."+string(parent), time.Since(start)) }()

	windowStart := parent.WindowStart(cb.Timestamp)
	existing, err := a.tiers.Get(ctx, symbol, parent, windowStart)
	switch {
	case err == nil:
		return existing, false, nil
	case !errors.Is(err, models.ErrNotFound):
		return nil, false, fmt.Errorf("check %s window: %w", parent, err)
	}

	stored, err := a.tiers.Range(ctx, symbol, tier, windowStart, windowStart.Add(parent.Duration()))
	if err != nil {
		return nil, false, fmt.Errorf("load %s children: %w", tier, err)
	}
	children, complete := windowChildren(stored, child, tier, windowStart, parent.FanIn())
	if !complete {
		return nil, false, nil
	}

	rec, err := a.build(ctx, symbol, parent, windowStart, children)
	if err != nil {
		return nil, false, err
	}

	inserted, err := a.tiers.Insert(ctx, rec)
	if err != nil {
		a.metrics.RecordError("cascade_persist")
		return nil, false, fmt.Errorf("persist %s: %w", parent, err)
	}
	if !inserted {
		existing, err := a.tiers.Get(ctx, symbol, parent, windowStart)
		if err != nil {
			return nil, false, fmt.Errorf("reload %s window: %w", parent, err)
		}
		return existing, false, nil
	}

	a.metrics.TierClosed(string(parent))
	a.log.Debug("tier closed",
		logger.String("symbol", symbol),
		logger.String("tier", string(parent)),
		logger.Time("window", windowStart))

	if a.publisher != nil {
		if err := a.publisher.PublishTier(ctx, rec); err != nil {
			a.metrics.RecordError("cascade_publish")
			a.log.Warn("publish closed tier",
				logger.String("symbol", symbol),
				logger.String("tier", string(parent)),
				logger.Error(err))
		}
	}
	return rec, true, nil
}

func (a *TierAggregator) build(ctx context.Context, symbol string, parent models.Tier, windowStart time.Time, children []models.TierResult) (models.TierResult, error) {
	base := aggregateBase(symbol, parent, windowStart, children)
	base.ID = uuid.NewString()
	base.CreatedAt = a.now().UTC()

	var rec models.TierResult
	switch parent {
	case models.TierM5:
		rec = deriveM5(base, children)
	case models.TierM15:
		prevStart := windowStart.Add(-parent.Duration())
		prev, err := a.tiers.Get(ctx, symbol, parent, prevStart)
		if err != nil && !errors.Is(err, models.ErrNotFound) {
			return nil, fmt.Errorf("load previous %s: %w", parent, err)
		}
		rec = deriveM15(base, children, prev)
	case models.TierM30:
		rec = deriveM30(base, children)
	default:
		return nil, fmt.Errorf("%w: no derivation for %s", models.ErrMalformedInput, parent)
	}

	text, err := a.narrator.Describe(ctx, rec)
	if err != nil || text == "" {
		if err != nil {
			a.log.Warn("narrative failed, using template",
				logger.String("symbol", symbol),
				logger.String("tier", string(parent)),
				logger.Error(err))
		}
		text = narrative.Render(rec)
	}
	rec.Base().NarrativeInsight = text
	return rec, nil
}

// windowChildren merges the incoming child into the stored ones, dedupes by timestamp and
// reports whether the result is exactly k contiguous records starting at windowStart.
func windowChildren(stored []models.TierResult, child models.TierResult, tier models.Tier, windowStart time.Time, k int) ([]models.TierResult, bool) {
	byTS := make(map[int64]models.TierResult, len(stored)+1)
	for _, r := range stored {
		byTS[r.Base().Timestamp.UnixMilli()] = r
	}
	if _, ok := byTS[child.Base().Timestamp.UnixMilli()]; !ok {
		byTS[child.Base().Timestamp.UnixMilli()] = child
	}
	if len(byTS) != k {
		return nil, false
	}

	out := make([]models.TierResult, 0, k)
	for _, r := range byTS {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Base().Timestamp.Before(out[j].Base().Timestamp)
	})
	step := tier.Duration()
	for i, r := range out {
		if !r.Base().Timestamp.Equal(windowStart.Add(time.Duration(i) * step)) {
			return nil, false
		}
	}
	return out, true
}
