package indicators

// Snapshot holds the latest value of each indicator; nil means not enough history.
type Snapshot struct {
	RSI14          *float64
	EMA9           *float64
	EMA20          *float64
	MACD           *float64
	MACDSignal     *float64
	BollingerUpper *float64
	BollingerLower *float64
	VolumeSpike    bool
}

// Calculator derives a Snapshot from a window of closes and volumes, oldest first.
type Calculator struct {
	SpikeLookback  int
	SpikeThreshold float64
}

func NewCalculator(spikeLookback int, spikeThreshold float64) *Calculator {
	if spikeLookback <= 0 {
		spikeLookback = 20
	}
	if spikeThreshold <= 0 {
		spikeThreshold = 1.5
	}
	return &Calculator{SpikeLookback: spikeLookback, SpikeThreshold: spikeThreshold}
}

func (c *Calculator) Compute(closes, volumes []float64) Snapshot {
	macd, signal := MACD(closes, 12, 26, 9)
	upper, lower := Bollinger(closes, 20, 2)
	return Snapshot{
		RSI14:          Last(RSI(closes, 14)),
		EMA9:           Last(EMA(closes, 9)),
		EMA20:          Last(EMA(closes, 20)),
		MACD:           Last(macd),
		MACDSignal:     Last(signal),
		BollingerUpper: Last(upper),
		BollingerLower: Last(lower),
		VolumeSpike:    VolumeSpike(volumes, c.SpikeLookback, c.SpikeThreshold),
	}
}
