package models

import (
	"math"
	"time"
)

// ConfidenceSaturation is the sample count at which confidence equals the success rate.
const ConfidenceSaturation = 50

// SeedConfidence is assigned to a signature on its first outcome regardless of the formula.
const SeedConfidence = 20

// MaxMarketConditions bounds PatternMemory.MarketConditions.
const MaxMarketConditions = 5

// PatternMemory is the long-lived record of how one pattern performed on one timeframe.
type PatternMemory struct {
	Signature        string    `json:"signature"`
	Pattern          string    `json:"pattern"`
	Timeframe        string    `json:"timeframe"`
	SuccessRate      float64   `json:"successRate"`
	TotalOccurrences int       `json:"totalOccurrences"`
	AvgProbability   float64   `json:"avgProbability"`
	Timeframes       []string  `json:"timeframes"`
	MarketConditions []string  `json:"marketConditions"` // most recent first
	SemanticSummary  string    `json:"semanticSummary"`
	ConfidenceLevel  int       `json:"confidenceLevel"`
	LastUpdated      time.Time `json:"lastUpdated"`
}

// Signature builds the pattern memory key, e.g. "SpringX_1m".
func Signature(pattern, timeframe string) string {
	return pattern + "_" + timeframe
}

// Confidence discounts rate for small samples: round(clamp(rate*min(1,total/50), 0, 100)).
func Confidence(rate float64, total int) int {
	weight := math.Min(1, float64(total)/ConfidenceSaturation)
	v := rate * weight
	if v < 0 {
		v = 0
	}
	if v > 100 {
		v = 100
	}
	return int(math.Round(v))
}

// Successes recovers the integer count of accurate outcomes behind a rate.
func (p *PatternMemory) Successes() int {
	return int(math.Round(p.SuccessRate / 100 * float64(p.TotalOccurrences)))
}

// SeedPattern creates the record for a signature seen for the first time.
func SeedPattern(signature, pattern, timeframe string, accurate bool, now time.Time) *PatternMemory {
	rate := 0.0
	if accurate {
		rate = 100
	}
	var tfs []string
	if timeframe != "" {
		tfs = []string{timeframe}
	}
	return &PatternMemory{
		Signature:        signature,
		Pattern:          pattern,
		Timeframe:        timeframe,
		SuccessRate:      rate,
		TotalOccurrences: 1,
		Timeframes:       tfs,
		ConfidenceLevel:  SeedConfidence,
		LastUpdated:      now,
	}
}

// ApplyOutcome folds one more outcome into the record.
func (p *PatternMemory) ApplyOutcome(accurate bool, now time.Time) {
	successes := p.Successes()
	if accurate {
		successes++
	}
	p.TotalOccurrences++
	p.SuccessRate = float64(successes) / float64(p.TotalOccurrences) * 100
	p.ConfidenceLevel = Confidence(p.SuccessRate, p.TotalOccurrences)
	p.LastUpdated = now
}

// SplitSignature is the inverse of Signature; the timeframe is whatever follows the last '_'.
func SplitSignature(signature string) (pattern, timeframe string) {
	for i := len(signature) - 1; i >= 0; i-- {
		if signature[i] == '_' {
			return signature[:i], signature[i+1:]
		}
	}
	return signature, ""
}
