package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"TrendCascade/internal/domain/models"
	domrepo "TrendCascade/internal/domain/repository"
	"TrendCascade/pkg/logger"
)

// OutcomeResult carries the record before and after one outcome. Previous is nil for a new signature.
type OutcomeResult struct {
	Signature string                `json:"signature"`
	Previous  *models.PatternMemory `json:"previous,omitempty"`
	Current   *models.PatternMemory `json:"current"`
}

// ConfidenceUpdater folds single outcomes into pattern memory, one signature at a time.
type ConfidenceUpdater struct {
	patterns domrepo.PatternMemoryStore
	locker   domrepo.KeyLocker
	metrics  domrepo.Metrics
	log      *logger.Logger
	now      func() time.Time
}

func NewConfidenceUpdater(patterns domrepo.PatternMemoryStore, locker domrepo.KeyLocker, metrics domrepo.Metrics, lgr *logger.Logger) *ConfidenceUpdater {
	if metrics == nil {
		metrics = domrepo.NopMetrics{}
	}
	if lgr == nil {
		lgr = logger.NewNop()
	}
	return &ConfidenceUpdater{patterns: patterns, locker: locker, metrics: metrics, log: lgr, now: time.Now}
}

func patternLockKey(signature string) string { return "pattern:" + signature }

func (u *ConfidenceUpdater) RecordOutcome(ctx context.Context, signature string, wasAccurate bool) (*OutcomeResult, error) {
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return nil, fmt.Errorf("%w: signature is required", models.ErrMalformedInput)
	}

	release, err := u.locker.Lock(ctx, patternLockKey(signature))
	if err != nil {
		return nil, err
	}
	defer release()

	now := u.now().UTC()
	res := &OutcomeResult{Signature: signature}

	existing, err := u.patterns.GetFresh(ctx, signature)
	switch {
	case errors.Is(err, models.ErrNotFound):
		pattern, timeframe := models.SplitSignature(signature)
		res.Current = models.SeedPattern(signature, pattern, timeframe, wasAccurate, now)
	case err != nil:
		return nil, fmt.Errorf("load pattern %s: %w", signature, err)
	default:
		prev := *existing
		res.Previous = &prev
		cur := *existing
		cur.ApplyOutcome(wasAccurate, now)
		res.Current = &cur
	}

	if err := u.patterns.Upsert(ctx, res.Current); err != nil {
		u.metrics.RecordError("pattern_upsert")
		return nil, fmt.Errorf("upsert pattern %s: %w", signature, err)
	}
	u.metrics.OutcomeRecorded(wasAccurate)
	u.log.Debug("pattern outcome recorded",
		logger.String("signature", signature),
		logger.Bool("accurate", wasAccurate),
		logger.Float64("success_rate", res.Current.SuccessRate),
		logger.Int("confidence", res.Current.ConfidenceLevel))
	return res, nil
}
