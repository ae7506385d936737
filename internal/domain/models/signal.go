package models

import (
	"strings"
	"time"
)

type SignalType string

const (
	SignalBuy     SignalType = "BUY"
	SignalSell    SignalType = "SELL"
	SignalNeutral SignalType = "NEUTRAL"
	SignalWait    SignalType = "WAIT"
)

func (t SignalType) Directional() bool {
	return t == SignalBuy || t == SignalSell
}

type SignalResult string

const (
	ResultOpen    SignalResult = ""
	ResultWin     SignalResult = "WIN"
	ResultLoss    SignalResult = "LOSS"
	ResultNeutral SignalResult = "NEUTRAL"
)

func ParseSignalResult(s string) (SignalResult, bool) {
	switch r := SignalResult(strings.ToUpper(strings.TrimSpace(s))); r {
	case ResultWin, ResultLoss, ResultNeutral:
		return r, true
	}
	return ResultOpen, false
}

// Signal is a trading call created upstream. Result is written exactly once.
type Signal struct {
	ID              string       `json:"id"`
	Symbol          string       `json:"symbol"`
	Timeframe       string       `json:"timeframe"`
	Pattern         string       `json:"pattern"`
	Type            SignalType   `json:"signalType"`
	EntryPrice      float64      `json:"entryPrice"`
	Probability     float64      `json:"probability"`
	MarketCondition string       `json:"marketCondition,omitempty"`
	CreatedAt       time.Time    `json:"createdAt"`
	Result          SignalResult `json:"result,omitempty"`
	ResolvedAt      *time.Time   `json:"resolvedAt,omitempty"`
	ExitPrice       *float64     `json:"exitPrice,omitempty"`
	PriceChangePct  *float64     `json:"priceChangePct,omitempty"`
	ElapsedSeconds  *int64       `json:"elapsedSeconds,omitempty"`
}

func (s *Signal) Signature() string {
	return Signature(s.Pattern, s.Timeframe)
}

func (s *Signal) Open() bool {
	return s.Result == ResultOpen
}

type Outcome string

const (
	OutcomeAccurate   Outcome = "accurate"
	OutcomeInaccurate Outcome = "inaccurate"
	OutcomeNeutral    Outcome = "neutral"
)

type FeedbackSource string

const (
	SourceValidator FeedbackSource = "validator"
	SourceManual    FeedbackSource = "manual"
)

// Feedback is an append-only judgement about one signal.
type Feedback struct {
	ID          string         `json:"id"`
	SignalID    string         `json:"signalId"`
	WasAccurate bool           `json:"wasAccurate"`
	Outcome     Outcome        `json:"outcome"`
	Rating      int            `json:"rating"`
	Notes       string         `json:"notes,omitempty"`
	Source      FeedbackSource `json:"source"`
	CreatedAt   time.Time      `json:"createdAt"`
}

// Resolution is the single terminal write for a signal together with its feedback row.
type Resolution struct {
	SignalID       string
	Result         SignalResult
	ExitPrice      float64
	PriceChangePct float64
	ElapsedSeconds int64
	ResolvedAt     time.Time
	Feedback       Feedback
}
