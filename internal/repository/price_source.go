package repository

import (
	"context"
	"errors"
	"fmt"

	"TrendCascade/internal/domain/models"
	domrepo "TrendCascade/internal/domain/repository"
)

// StorePriceSource quotes the close of the newest stored M1 record.
type StorePriceSource struct {
	tiers domrepo.TierStore
}

var _ domrepo.PriceSource = (*StorePriceSource)(nil)

func NewStorePriceSource(tiers domrepo.TierStore) *StorePriceSource {
	return &StorePriceSource{tiers: tiers}
}

func (p *StorePriceSource) CurrentPrice(ctx context.Context, symbol string) (float64, error) {
	recs, err := p.tiers.Latest(ctx, symbol, models.TierM1, 1)
	if err != nil {
		if errors.Is(err, models.ErrFatal) {
			return 0, err
		}
		return 0, fmt.Errorf("%w: latest %s candle: %w", models.ErrUpstreamUnavailable, symbol, err)
	}
	if len(recs) == 0 {
		return 0, fmt.Errorf("%w: no candles for %s", models.ErrUpstreamUnavailable, symbol)
	}
	return recs[0].Base().Close, nil
}
