package models

import (
	"time"

	"TrendCascade/pkg/util"
)

// IndicatorBundle carries indicators precomputed by the candle source. Any missing value is
// computed from stored M1 history instead.
type IndicatorBundle struct {
	RSI14       util.FlexFloat `json:"rsi14"`
	EMA9        util.FlexFloat `json:"ema9"`
	EMA20       util.FlexFloat `json:"ema20"`
	MACD        util.FlexFloat `json:"macd"`
	MACDSignal  util.FlexFloat `json:"macdSignal"`
	VolumeSpike *bool          `json:"volumeSpike"`
}

// CandleEvent is a closed one-minute candle as delivered over HTTP or Kafka.
type CandleEvent struct {
	Symbol     string           `json:"symbol" validate:"required,max=32"`
	Open       util.FlexFloat   `json:"open"`
	High       util.FlexFloat   `json:"high"`
	Low        util.FlexFloat   `json:"low"`
	Close      util.FlexFloat   `json:"close"`
	Volume     util.FlexFloat   `json:"volume"`
	CloseTime  util.FlexTime    `json:"closeTime"`
	OpenTime   util.FlexTime    `json:"openTime"`
	Indicators *IndicatorBundle `json:"indicators,omitempty"`
}

// Candle is a normalized closed candle.
type Candle struct {
	Symbol   string
	OpenTime time.Time
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
}

// IngestResult acknowledges one candle and lists the parents it closed.
type IngestResult struct {
	M1ID        string       `json:"m1Id"`
	Inserted    bool         `json:"inserted"`
	Defaulted   []string     `json:"defaulted,omitempty"`
	ClosedTiers []TierResult `json:"closedTiers"`
}

// TierClosedEvent is published for every persisted parent record.
type TierClosedEvent struct {
	Symbol string     `json:"symbol"`
	Tier   Tier       `json:"tier"`
	Record TierResult `json:"record"`
}
