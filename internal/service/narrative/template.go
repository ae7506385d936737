package narrative

import (
	"context"
	"fmt"
	"strings"

	"TrendCascade/internal/domain/models"
)

// TemplateNarrator renders a fixed sentence per tier. It never fails and never blocks.
type TemplateNarrator struct{}

func NewTemplateNarrator() *TemplateNarrator { return &TemplateNarrator{} }

func (TemplateNarrator) Describe(_ context.Context, rec models.TierResult) (string, error) {
	return Render(rec), nil
}

// Render is the deterministic text for rec.
func Render(rec models.TierResult) string {
	b := rec.Base()
	head := fmt.Sprintf("%s %s %s: %s, %s -> %s (range %s-%s)",
		b.Symbol, b.Tier, b.Timestamp.UTC().Format("2006-01-02 15:04"),
		b.Direction, num(b.Open), num(b.Close), num(b.Low), num(b.High))

	var tail []string
	switch r := rec.(type) {
	case *models.M1Result:
		if r.CandlePattern != "" {
			tail = append(tail, "pattern "+r.CandlePattern)
		}
		if r.RSI14 != nil {
			tail = append(tail, "RSI "+num(*r.RSI14))
		}
		if r.VolumeSpike {
			tail = append(tail, "volume spike")
		}
		tail = append(tail, fmt.Sprintf("continuation %.0f%%", r.ContinuationProbability))
	case *models.M5Result:
		tail = append(tail,
			fmt.Sprintf("trend strength %.0f%%", r.TrendStrength),
			fmt.Sprintf("avg continuation %.0f%%", r.AvgContinuation))
		if r.HeuristicFalseSignals > 0 {
			tail = append(tail, fmt.Sprintf("%d counter-trend M1 signals", r.HeuristicFalseSignals))
		}
	case *models.M15Result:
		tail = append(tail,
			fmt.Sprintf("trend strength %.0f%%", r.TrendStrength),
			"flow "+string(r.InstitutionalFlow))
		if r.VolumeChangePct != nil {
			tail = append(tail, fmt.Sprintf("volume %+.1f%%", *r.VolumeChangePct))
		}
	case *models.M30Result:
		tail = append(tail,
			"structure "+string(r.Structure),
			"flow "+string(r.InstitutionalFlow),
			"phase "+string(r.MarketPhase))
	}
	if len(tail) == 0 {
		return head + "."
	}
	return head + "; " + strings.Join(tail, ", ") + "."
}

func num(v float64) string {
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.4f", v), "0"), ".")
}
