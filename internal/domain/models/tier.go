package models

import (
	"fmt"
	"strings"
	"time"
)

// Tier is one resolution level of the cascade.
type Tier string

const (
	TierM1  Tier = "M1"
	TierM5  Tier = "M5"
	TierM15 Tier = "M15"
	TierM30 Tier = "M30"
)

// Tiers lists every tier from finest to coarsest.
var Tiers = []Tier{TierM1, TierM5, TierM15, TierM30}

func (t Tier) Duration() time.Duration {
	switch t {
	case TierM1:
		return time.Minute
	case TierM5:
		return 5 * time.Minute
	case TierM15:
		return 15 * time.Minute
	case TierM30:
		return 30 * time.Minute
	}
	return 0
}

// FanIn is the number of child records one record of this tier consolidates. M1 has none.
func (t Tier) FanIn() int {
	switch t {
	case TierM5:
		return 5
	case TierM15:
		return 3
	case TierM30:
		return 2
	}
	return 0
}

func (t Tier) Parent() (Tier, bool) {
	switch t {
	case TierM1:
		return TierM5, true
	case TierM5:
		return TierM15, true
	case TierM15:
		return TierM30, true
	}
	return "", false
}

func (t Tier) Child() (Tier, bool) {
	switch t {
	case TierM5:
		return TierM1, true
	case TierM15:
		return TierM5, true
	case TierM30:
		return TierM15, true
	}
	return "", false
}

// Timeframe is the short label used in pattern signatures ("1m", "5m", ...).
func (t Tier) Timeframe() string {
	return fmt.Sprintf("%dm", int(t.Duration().Minutes()))
}

func (t Tier) Valid() bool {
	return t.Duration() > 0
}

// WindowStart aligns ts to the start of the tier window containing it.
func (t Tier) WindowStart(ts time.Time) time.Time {
	return ts.UTC().Truncate(t.Duration())
}

// ParseTier accepts "M5", "m5" or "5m".
func ParseTier(s string) (Tier, error) {
	s = strings.TrimSpace(s)
	for _, t := range Tiers {
		if strings.EqualFold(s, string(t)) || strings.EqualFold(s, t.Timeframe()) {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: unknown tier %q", ErrMalformedInput, s)
}

// Direction is the trend label of a single record.
type Direction string

const (
	Bullish Direction = "bullish"
	Bearish Direction = "bearish"
	Neutral Direction = "neutral"
)

// CandleDirection labels a candle by its body.
func CandleDirection(open, close float64) Direction {
	switch {
	case close > open:
		return Bullish
	case close < open:
		return Bearish
	default:
		return Neutral
	}
}
