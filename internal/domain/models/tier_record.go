package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// ChildSummary is the compact copy of a child record kept inside its parent.
type ChildSummary struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
	Direction Direction `json:"direction"`
}

// TierRecord is the shared base of every tier result. Records are append-only.
type TierRecord struct {
	ID               string            `json:"id"`
	Symbol           string            `json:"symbol"`
	Tier             Tier              `json:"tier"`
	Timestamp        time.Time         `json:"timestamp"`
	Open             float64           `json:"open"`
	High             float64           `json:"high"`
	Low              float64           `json:"low"`
	Close            float64           `json:"close"`
	TotalVolume      float64           `json:"totalVolume"`
	Direction        Direction         `json:"direction"`
	Children         []ChildSummary    `json:"children,omitempty"` // newest first
	NarrativeInsight string            `json:"narrativeInsight,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`
	CreatedAt        time.Time         `json:"createdAt"`
}

// Summary returns the view a parent keeps of this record.
func (r *TierRecord) Summary() ChildSummary {
	return ChildSummary{
		Timestamp: r.Timestamp,
		Open:      r.Open,
		High:      r.High,
		Low:       r.Low,
		Close:     r.Close,
		Volume:    r.TotalVolume,
		Direction: r.Direction,
	}
}

// TierResult is implemented by exactly one variant per tier.
type TierResult interface {
	Base() *TierRecord
	// Derived returns the tier-specific fields, stored alongside the base as JSON.
	Derived() interface{}
}

type M1Fields struct {
	RSI14                   *float64 `json:"rsi14,omitempty"`
	EMA9                    *float64 `json:"ema9,omitempty"`
	EMA20                   *float64 `json:"ema20,omitempty"`
	MACD                    *float64 `json:"macd,omitempty"`
	MACDSignal              *float64 `json:"macdSignal,omitempty"`
	BollingerUpper          *float64 `json:"bollingerUpper,omitempty"`
	BollingerLower          *float64 `json:"bollingerLower,omitempty"`
	CandlePattern           string   `json:"candlePattern,omitempty"`
	VolumeSpike             bool     `json:"volumeSpike"`
	ContinuationProbability float64  `json:"continuationProbability"`
}

type M5Fields struct {
	TrendStrength   float64 `json:"trendStrength"`
	Support         float64 `json:"support"`
	Resistance      float64 `json:"resistance"`
	AvgContinuation float64 `json:"avgContinuation"`
	// HeuristicFalseSignals counts M1 children that looked like strong continuations against
	// the window's direction. It is derived from same-window probabilities, not from outcomes.
	HeuristicFalseSignals int `json:"heuristicFalseSignals"`
}

type InstitutionalFlow string

const (
	FlowAccumulation InstitutionalFlow = "accumulation"
	FlowDistribution InstitutionalFlow = "distribution"
	FlowNeutral      InstitutionalFlow = "neutral"
)

type M15Fields struct {
	TrendStrength     float64           `json:"trendStrength"`
	Support           float64           `json:"support"`
	Resistance        float64           `json:"resistance"`
	InstitutionalFlow InstitutionalFlow `json:"institutionalFlow"`
	VolumeChangePct   *float64          `json:"volumeChangePct,omitempty"`
}

type Structure string

const (
	StructureBullishTrend     Structure = "bullish_trend"
	StructureBearishTrend     Structure = "bearish_trend"
	StructureBullishStructure Structure = "bullish_structure"
	StructureBearishStructure Structure = "bearish_structure"
	StructureNeutral          Structure = "neutral"
)

type MarketPhase string

const (
	PhaseAccumulation MarketPhase = "accumulation"
	PhaseMarkup       MarketPhase = "markup"
	PhaseDistribution MarketPhase = "distribution"
	PhaseMarkdown     MarketPhase = "markdown"
)

type M30Fields struct {
	TrendStrength     float64           `json:"trendStrength"`
	Support           float64           `json:"support"`
	Resistance        float64           `json:"resistance"`
	InstitutionalFlow InstitutionalFlow `json:"institutionalFlow"`
	Structure         Structure         `json:"structure"`
	MarketPhase       MarketPhase       `json:"marketPhase"`
}

type M1Result struct {
	TierRecord
	M1Fields
}

type M5Result struct {
	TierRecord
	M5Fields
}

type M15Result struct {
	TierRecord
	M15Fields
}

type M30Result struct {
	TierRecord
	M30Fields
}

func (r *M1Result) Base() *TierRecord     { return &r.TierRecord }
func (r *M1Result) Derived() interface{}  { return r.M1Fields }
func (r *M5Result) Base() *TierRecord     { return &r.TierRecord }
func (r *M5Result) Derived() interface{}  { return r.M5Fields }
func (r *M15Result) Base() *TierRecord    { return &r.TierRecord }
func (r *M15Result) Derived() interface{} { return r.M15Fields }
func (r *M30Result) Base() *TierRecord    { return &r.TierRecord }
func (r *M30Result) Derived() interface{} { return r.M30Fields }

// DecodeTierResult rebuilds the variant selected by base.Tier from its stored derived JSON.
func DecodeTierResult(base TierRecord, derived []byte) (TierResult, error) {
	if len(derived) == 0 {
		derived = []byte("{}")
	}
	var (
		res    TierResult
		target interface{}
	)
	switch base.Tier {
	case TierM1:
		r := &M1Result{TierRecord: base}
		res, target = r, &r.M1Fields
	case TierM5:
		r := &M5Result{TierRecord: base}
		res, target = r, &r.M5Fields
	case TierM15:
		r := &M15Result{TierRecord: base}
		res, target = r, &r.M15Fields
	case TierM30:
		r := &M30Result{TierRecord: base}
		res, target = r, &r.M30Fields
	default:
		return nil, fmt.Errorf("%w: unknown tier %q", ErrMalformedInput, base.Tier)
	}
	if err := json.Unmarshal(derived, target); err != nil {
		return nil, fmt.Errorf("decode %s fields: %w", base.Tier, err)
	}
	return res, nil
}

// EncodeDerived marshals the tier-specific fields of r.
func EncodeDerived(r TierResult) ([]byte, error) {
	return json.Marshal(r.Derived())
}
