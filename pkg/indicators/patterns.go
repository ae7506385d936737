package indicators

import "math"

// OHLC is the minimal candle shape used for pattern detection.
type OHLC struct {
	Open, High, Low, Close float64
}

const (
	PatternDoji             = "doji"
	PatternHammer           = "hammer"
	PatternShootingStar     = "shooting_star"
	PatternBullishEngulfing = "bullish_engulfing"
	PatternBearishEngulfing = "bearish_engulfing"
	PatternBullishMarubozu  = "bullish_marubozu"
	PatternBearishMarubozu  = "bearish_marubozu"
)

// DetectPattern classifies cur, using prev (may be nil) for two-candle patterns.
// Returns "" when nothing matches. Two-candle patterns win over single-candle ones.
func DetectPattern(prev *OHLC, cur OHLC) string {
	rng := cur.High - cur.Low
	if rng <= 0 {
		return ""
	}
	body := math.Abs(cur.Close - cur.Open)
	upper := cur.High - math.Max(cur.Open, cur.Close)
	lower := math.Min(cur.Open, cur.Close) - cur.Low

	if prev != nil {
		prevBull := prev.Close > prev.Open
		prevBear := prev.Close < prev.Open
		curBull := cur.Close > cur.Open
		curBear := cur.Close < cur.Open
		if prevBear && curBull && cur.Open <= prev.Close && cur.Close >= prev.Open {
			return PatternBullishEngulfing
		}
		if prevBull && curBear && cur.Open >= prev.Close && cur.Close <= prev.Open {
			return PatternBearishEngulfing
		}
	}

	switch {
	case body <= 0.1*rng:
		return PatternDoji
	case body >= 0.95*rng:
		if cur.Close > cur.Open {
			return PatternBullishMarubozu
		}
		return PatternBearishMarubozu
	case lower >= 2*body && upper <= body:
		return PatternHammer
	case upper >= 2*body && lower <= body:
		return PatternShootingStar
	}
	return ""
}
