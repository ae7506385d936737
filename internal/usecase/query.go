package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"TrendCascade/internal/domain/models"
	domrepo "TrendCascade/internal/domain/repository"
)

// QueryUseCase serves the read side and the admin signal creation.
type QueryUseCase struct {
	tiers    domrepo.TierStore
	patterns domrepo.PatternMemoryStore
	signals  domrepo.SignalStore
	now      func() time.Time
}

func NewQueryUseCase(tiers domrepo.TierStore, patterns domrepo.PatternMemoryStore, signals domrepo.SignalStore) *QueryUseCase {
	return &QueryUseCase{tiers: tiers, patterns: patterns, signals: signals, now: time.Now}
}

type GetTiersParams struct {
	Symbol string
	Tier   string
	Limit  int
}

type GetTiersResult struct {
	Symbol  string              `json:"symbol"`
	Tier    models.Tier         `json:"tier"`
	Count   int                 `json:"count"`
	Records []models.TierResult `json:"records"`
}

func (uc *QueryUseCase) LatestTiers(ctx context.Context, p GetTiersParams) (*GetTiersResult, error) {
	symbol := strings.ToUpper(strings.TrimSpace(p.Symbol))
	if symbol == "" {
		return nil, fmt.Errorf("%w: symbol required", models.ErrMalformedInput)
	}
	tier := models.TierM1
	if p.Tier != "" {
		t, err := models.ParseTier(p.Tier)
		if err != nil {
			return nil, err
		}
		tier = t
	}
	if p.Limit <= 0 {
		p.Limit = 50
	}
	if p.Limit > 1000 {
		p.Limit = 1000
	}

	recs, err := uc.tiers.Latest(ctx, symbol, tier, p.Limit)
	if err != nil {
		return nil, fmt.Errorf("get tiers: %w", err)
	}
	if recs == nil {
		recs = []models.TierResult{}
	}
	return &GetTiersResult{Symbol: symbol, Tier: tier, Count: len(recs), Records: recs}, nil
}

func (uc *QueryUseCase) TopPatterns(ctx context.Context, limit int) ([]models.PatternMemory, error) {
	if limit <= 0 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}
	out, err := uc.patterns.Top(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("top patterns: %w", err)
	}
	if out == nil {
		out = []models.PatternMemory{}
	}
	return out, nil
}

func (uc *QueryUseCase) Pattern(ctx context.Context, signature string) (*models.PatternMemory, error) {
	return uc.patterns.Get(ctx, signature)
}

// CreateSignal stores a new open signal. Result fields on the input are ignored.
func (uc *QueryUseCase) CreateSignal(ctx context.Context, s models.Signal) (*models.Signal, error) {
	s.Symbol = strings.ToUpper(strings.TrimSpace(s.Symbol))
	switch {
	case s.Symbol == "":
		return nil, fmt.Errorf("%w: symbol required", models.ErrMalformedInput)
	case s.Pattern == "" || s.Timeframe == "":
		return nil, fmt.Errorf("%w: pattern and timeframe required", models.ErrMalformedInput)
	case s.EntryPrice <= 0:
		return nil, fmt.Errorf("%w: entryPrice must be positive", models.ErrMalformedInput)
	}
	switch s.Type {
	case models.SignalBuy, models.SignalSell, models.SignalNeutral, models.SignalWait:
	default:
		return nil, fmt.Errorf("%w: unknown signalType %q", models.ErrMalformedInput, s.Type)
	}

	s.Result = models.ResultOpen
	s.ResolvedAt, s.ExitPrice, s.PriceChangePct, s.ElapsedSeconds = nil, nil, nil, nil
	if s.CreatedAt.IsZero() {
		s.CreatedAt = uc.now().UTC()
	}
	if err := uc.signals.Create(ctx, &s); err != nil {
		return nil, fmt.Errorf("create signal: %w", err)
	}
	return &s, nil
}

func (uc *QueryUseCase) Ping(ctx context.Context) error {
	return uc.tiers.Ping(ctx)
}
