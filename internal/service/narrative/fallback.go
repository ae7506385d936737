package narrative

import (
	"context"

	"TrendCascade/internal/domain/models"
	"TrendCascade/internal/domain/repository"
	"TrendCascade/pkg/logger"
)

// FallbackNarrator uses primary and answers with the template text whenever it fails.
type FallbackNarrator struct {
	primary repository.Narrator
	log     *logger.Logger
}

func NewFallbackNarrator(primary repository.Narrator, lgr *logger.Logger) *FallbackNarrator {
	if lgr == nil {
		lgr = logger.NewNop()
	}
	return &FallbackNarrator{primary: primary, log: lgr}
}

func (f *FallbackNarrator) Describe(ctx context.Context, rec models.TierResult) (string, error) {
	if f.primary != nil {
		text, err := f.primary.Describe(ctx, rec)
		if err == nil && text != "" {
			return text, nil
		}
		if err != nil {
			b := rec.Base()
			f.log.Warn("narrative fallback to template",
				logger.String("symbol", b.Symbol),
				logger.String("tier", string(b.Tier)),
				logger.Error(err))
		}
	}
	return Render(rec), nil
}
