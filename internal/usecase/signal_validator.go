package usecase

import (
	"context"
	"fmt"
	"math"
	"time"

	"TrendCascade/internal/domain/models"
	domrepo "TrendCascade/internal/domain/repository"
	"TrendCascade/pkg/logger"

	"github.com/google/uuid"
)

// ValidatorProfile is one validator instance: how long a signal must age and how large a move
// counts as directional.
type ValidatorProfile struct {
	Name        string
	Dwell       time.Duration
	DeadbandPct float64
}

type ValidationStats struct {
	Profile   string  `json:"profile"`
	Processed int     `json:"processed"`
	Wins      int     `json:"wins"`
	Losses    int     `json:"losses"`
	Neutrals  int     `json:"neutrals"`
	WinRate   float64 `json:"winRate"`
	Skipped   int     `json:"skipped"`
	Failed    int     `json:"failed"`
}

type ValidatorConfig struct {
	BatchSize    int
	PriceTimeout time.Duration
	Profiles     []ValidatorProfile
}

// SignalValidator resolves open signals against the current price once they have aged past the
// profile's dwell time.
type SignalValidator struct {
	signals  domrepo.SignalStore
	prices   domrepo.PriceSource
	updater  *ConfidenceUpdater
	cfg      ValidatorConfig
	profiles map[string]ValidatorProfile
	metrics  domrepo.Metrics
	log      *logger.Logger
	now      func() time.Time
}

func NewSignalValidator(
	signals domrepo.SignalStore,
	prices domrepo.PriceSource,
	updater *ConfidenceUpdater,
	cfg ValidatorConfig,
	metrics domrepo.Metrics,
	lgr *logger.Logger,
) (*SignalValidator, error) {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.PriceTimeout <= 0 {
		cfg.PriceTimeout = 3 * time.Second
	}
	if len(cfg.Profiles) == 0 {
		return nil, fmt.Errorf("at least one validator profile is required")
	}
	profiles := make(map[string]ValidatorProfile, len(cfg.Profiles))
	for _, p := range cfg.Profiles {
		if p.DeadbandPct <= 0 {
			return nil, fmt.Errorf("profile %q: deadband must be positive", p.Name)
		}
		profiles[p.Name] = p
	}
	if metrics == nil {
		metrics = domrepo.NopMetrics{}
	}
	if lgr == nil {
		lgr = logger.NewNop()
	}
	return &SignalValidator{
		signals:  signals,
		prices:   prices,
		updater:  updater,
		cfg:      cfg,
		profiles: profiles,
		metrics:  metrics,
		log:      lgr,
		now:      time.Now,
	}, nil
}

// Run validates one batch with the first configured profile.
func (v *SignalValidator) Run(ctx context.Context) (*ValidationStats, error) {
	return v.RunProfile(ctx, "")
}

// RunProfile validates one batch with the named profile; "" selects the first one.
func (v *SignalValidator) RunProfile(ctx context.Context, name string) (*ValidationStats, error) {
	profile := v.cfg.Profiles[0]
	if name != "" {
		p, ok := v.profiles[name]
		if !ok {
			return nil, fmt.Errorf("%w: unknown validator profile %q", models.ErrNotFound, name)
		}
		profile = p
	}

	start := time.Now()
	now := v.now().UTC()
	stats := &ValidationStats{Profile: profile.Name}

	open, err := v.signals.ListOpen(ctx, now.Add(-profile.Dwell), v.cfg.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("list open signals: %w", err)
	}

	prices := make(map[string]float64)
	priceErrs := make(map[string]error)
	for i := range open {
		if err := ctx.Err(); err != nil {
			stats.finish()
			return stats, err
		}
		sig := &open[i]

		price, err := v.price(ctx, sig.Symbol, prices, priceErrs)
		if err != nil {
			stats.Skipped++
			v.log.Warn("price unavailable, signal skipped",
				logger.String("signal_id", sig.ID),
				logger.String("symbol", sig.Symbol),
				logger.Error(err))
			continue
		}

		result, applied, err := v.resolve(ctx, profile, sig, price, now)
		if err != nil {
			stats.Failed++
			v.metrics.RecordError("validator_resolve")
			v.log.Error("resolve signal", logger.String("signal_id", sig.ID), logger.Error(err))
			continue
		}
		if !applied {
			stats.Skipped++
			continue
		}

		stats.Processed++
		switch result {
		case models.ResultWin:
			stats.Wins++
		case models.ResultLoss:
			stats.Losses++
		default:
			stats.Neutrals++
		}
		v.metrics.SignalResolved(profile.Name, string(result))
	}

	stats.finish()
	v.metrics.RecordLatency("validator."+profile.Name, time.Since(start))
	v.log.Info("validator run done",
		logger.String("profile", profile.Name),
		logger.Int("processed", stats.Processed),
		logger.Int("wins", stats.Wins),
		logger.Int("losses", stats.Losses),
		logger.Int("neutrals", stats.Neutrals),
		logger.Int("skipped", stats.Skipped),
		logger.Int("failed", stats.Failed))
	return stats, nil
}

func (s *ValidationStats) finish() {
	if s.Processed > 0 {
		s.WinRate = float64(s.Wins) / float64(s.Processed) * 100
	}
}

// price looks each symbol up once per run, including failures.
func (v *SignalValidator) price(ctx context.Context, symbol string, cache map[string]float64, failed map[string]error) (float64, error) {
	if p, ok := cache[symbol]; ok {
		return p, nil
	}
	if err, ok := failed[symbol]; ok {
		return 0, err
	}
	pctx, cancel := context.WithTimeout(ctx, v.cfg.PriceTimeout)
	defer cancel()
	p, err := v.prices.CurrentPrice(pctx, symbol)
	if err == nil && (p <= 0 || math.IsNaN(p) || math.IsInf(p, 0)) {
		err = fmt.Errorf("%w: unusable price %v", models.ErrUpstreamUnavailable, p)
	}
	if err != nil {
		failed[symbol] = err
		return 0, err
	}
	cache[symbol] = p
	return p, nil
}

// resolve writes the resolution and feedback, then updates pattern confidence. applied is false
// when the signal was already resolved by someone else.
func (v *SignalValidator) resolve(ctx context.Context, profile ValidatorProfile, sig *models.Signal, price float64, now time.Time) (models.SignalResult, bool, error) {
	if sig.EntryPrice <= 0 {
		return "", false, fmt.Errorf("%w: entry price %v", models.ErrMalformedInput, sig.EntryPrice)
	}
	delta := (price - sig.EntryPrice) / sig.EntryPrice * 100
	result, outcome := Classify(sig.Type, delta, profile.DeadbandPct)
	accurate := outcome == models.OutcomeAccurate

	applied, err := v.signals.Resolve(ctx, models.Resolution{
		SignalID:       sig.ID,
		Result:         result,
		ExitPrice:      price,
		PriceChangePct: delta,
		ElapsedSeconds: int64(now.Sub(sig.CreatedAt).Seconds()),
		ResolvedAt:     now,
		Feedback: models.Feedback{
			ID:          uuid.NewString(),
			SignalID:    sig.ID,
			WasAccurate: accurate,
			Outcome:     outcome,
			Rating:      rating(outcome),
			Notes:       fmt.Sprintf("%s validator: %+.4f%% against deadband %.2f%%", profile.Name, delta, profile.DeadbandPct),
			Source:      models.SourceValidator,
			CreatedAt:   now,
		},
	})
	if err != nil || !applied {
		return result, applied, err
	}

	if _, err := v.updater.RecordOutcome(ctx, sig.Signature(), accurate); err != nil {
		// The feedback row is already stored; the next consolidation rebuilds the record from it.
		v.metrics.RecordError("validator_outcome")
		v.log.Error("record outcome",
			logger.String("signal_id", sig.ID),
			logger.String("signature", sig.Signature()),
			logger.Error(err))
	}
	return result, true, nil
}

// Classify maps a percent move to a result and outcome for the given signal type.
// A NEUTRAL result on a BUY or SELL signal is an inaccurate, neutral outcome.
func Classify(t models.SignalType, deltaPct, deadband float64) (models.SignalResult, models.Outcome) {
	switch t {
	case models.SignalBuy:
		switch {
		case deltaPct > deadband:
			return models.ResultWin, models.OutcomeAccurate
		case deltaPct < -deadband:
			return models.ResultLoss, models.OutcomeInaccurate
		}
		return models.ResultNeutral, models.OutcomeNeutral
	case models.SignalSell:
		switch {
		case deltaPct < -deadband:
			return models.ResultWin, models.OutcomeAccurate
		case deltaPct > deadband:
			return models.ResultLoss, models.OutcomeInaccurate
		}
		return models.ResultNeutral, models.OutcomeNeutral
	default:
		if math.Abs(deltaPct) < deadband {
			return models.ResultWin, models.OutcomeAccurate
		}
		return models.ResultLoss, models.OutcomeInaccurate
	}
}

func rating(o models.Outcome) int {
	switch o {
	case models.OutcomeAccurate:
		return 5
	case models.OutcomeNeutral:
		return 3
	}
	return 1
}
