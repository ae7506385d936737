package usecase

import (
	"math"
	"strconv"
	"time"

	"TrendCascade/internal/domain/models"
)

// continuationProbability scores how likely an M1 move is to continue. It is additive and
// unclamped: 50 base, +20 when RSI agrees with the direction, +10 on a volume spike.
func continuationProbability(dir models.Direction, rsi *float64, volumeSpike bool) float64 {
	p := 50.0
	if rsi != nil {
		switch {
		case dir == models.Bullish && *rsi > 50:
			p += 20
		case dir == models.Bearish && *rsi < 50:
			p += 20
		}
	}
	if volumeSpike {
		p += 10
	}
	return p
}

// majority votes the children's directions; a tie is neutral.
func majority(children []models.TierResult) (models.Direction, int, int) {
	var bull, bear int
	for _, c := range children {
		switch c.Base().Direction {
		case models.Bullish:
			bull++
		case models.Bearish:
			bear++
		}
	}
	switch {
	case bull > bear:
		return models.Bullish, bull, bear
	case bear > bull:
		return models.Bearish, bull, bear
	}
	return models.Neutral, bull, bear
}

func trendStrength(bull, bear, k int) float64 {
	if k == 0 {
		return 0
	}
	return float64(max(bull, bear)) / float64(k) * 100
}

// aggregateBase folds children (oldest first) into the shared parent fields.
func aggregateBase(symbol string, parent models.Tier, windowStart time.Time, children []models.TierResult) models.TierRecord {
	oldest := children[0].Base()
	newest := children[len(children)-1].Base()
	rec := models.TierRecord{
		Symbol:    symbol,
		Tier:      parent,
		Timestamp: windowStart,
		Open:      oldest.Open,
		Close:     newest.Close,
		High:      math.Inf(-1),
		Low:       math.Inf(1),
		Children:  make([]models.ChildSummary, 0, len(children)),
		Metadata: map[string]string{
			"childTier":  string(oldest.Tier),
			"childCount": strconv.Itoa(len(children)),
		},
	}
	for i := len(children) - 1; i >= 0; i-- {
		b := children[i].Base()
		rec.High = math.Max(rec.High, b.High)
		rec.Low = math.Min(rec.Low, b.Low)
		rec.TotalVolume += b.TotalVolume
		rec.Children = append(rec.Children, b.Summary())
	}
	rec.Direction, _, _ = majority(children)
	return rec
}

func deriveM5(rec models.TierRecord, children []models.TierResult) *models.M5Result {
	_, bull, bear := majority(children)
	out := &models.M5Result{
		TierRecord: rec,
		M5Fields: models.M5Fields{
			TrendStrength: trendStrength(bull, bear, len(children)),
			Support:       rec.Low,
			Resistance:    rec.High,
		},
	}

	var sum float64
	var n int
	for _, c := range children {
		m1, ok := c.(*models.M1Result)
		if !ok {
			continue
		}
		sum += m1.ContinuationProbability
		n++
		// Heuristic: a strong continuation read that the window then went against.
		if m1.ContinuationProbability >= 70 && m1.Direction != rec.Direction {
			out.HeuristicFalseSignals++
		}
	}
	if n > 0 {
		out.AvgContinuation = sum / float64(n)
	}
	return out
}

// deriveM15 compares the window's volume with the previous M15 window, if one exists.
func deriveM15(rec models.TierRecord, children []models.TierResult, prev models.TierResult) *models.M15Result {
	_, bull, bear := majority(children)
	out := &models.M15Result{
		TierRecord: rec,
		M15Fields: models.M15Fields{
			TrendStrength:     trendStrength(bull, bear, len(children)),
			Support:           rec.Low,
			Resistance:        rec.High,
			InstitutionalFlow: models.FlowNeutral,
		},
	}

	increased := false
	if prev != nil {
		pv := prev.Base().TotalVolume
		increased = rec.TotalVolume > pv
		if pv > 0 {
			chg := (rec.TotalVolume - pv) / pv * 100
			out.VolumeChangePct = &chg
		}
	}
	switch {
	case increased && rec.Direction == models.Bullish:
		out.InstitutionalFlow = models.FlowAccumulation
	case increased && rec.Direction == models.Bearish:
		out.InstitutionalFlow = models.FlowDistribution
	}
	return out
}

func deriveM30(rec models.TierRecord, children []models.TierResult) *models.M30Result {
	_, bull, bear := majority(children)
	a := children[0].Base()
	b := children[len(children)-1].Base()

	structure := classifyStructure(a, b, rec.Direction)
	flow := models.FlowNeutral
	if m, ok := children[len(children)-1].(*models.M15Result); ok && m.InstitutionalFlow != models.FlowNeutral && m.InstitutionalFlow != "" {
		flow = m.InstitutionalFlow
	} else if m, ok := children[0].(*models.M15Result); ok && m.InstitutionalFlow != "" {
		flow = m.InstitutionalFlow
	}

	return &models.M30Result{
		TierRecord: rec,
		M30Fields: models.M30Fields{
			TrendStrength:     trendStrength(bull, bear, len(children)),
			Support:           rec.Low,
			Resistance:        rec.High,
			InstitutionalFlow: flow,
			Structure:         structure,
			MarketPhase:       marketPhase(flow, structure),
		},
	}
}

// classifyStructure compares the newer child b against the older child a.
func classifyStructure(a, b *models.TierRecord, dir models.Direction) models.Structure {
	switch {
	case b.High > a.High && b.Low > a.Low && dir == models.Bullish:
		return models.StructureBullishTrend
	case b.High < a.High && b.Low < a.Low && dir == models.Bearish:
		return models.StructureBearishTrend
	case b.Low >= a.Low && dir != models.Bearish:
		return models.StructureBullishStructure
	case b.High <= a.High && dir != models.Bullish:
		return models.StructureBearishStructure
	}
	return models.StructureNeutral
}

func marketPhase(flow models.InstitutionalFlow, s models.Structure) models.MarketPhase {
	switch {
	case flow == models.FlowAccumulation && s == models.StructureBullishStructure:
		return models.PhaseAccumulation
	case flow == models.FlowAccumulation && s == models.StructureBullishTrend:
		return models.PhaseMarkup
	case flow == models.FlowDistribution && s == models.StructureBearishStructure:
		return models.PhaseDistribution
	case flow == models.FlowDistribution && s == models.StructureBearishTrend:
		return models.PhaseMarkdown
	}
	return models.PhaseAccumulation
}
