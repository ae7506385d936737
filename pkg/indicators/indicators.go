// Package indicators computes technical indicators over a close series.
// Every series function returns a slice aligned with its input; positions without enough
// history hold NaN.
package indicators

import "math"

func nanSeries(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// SMA is the simple moving average.
func SMA(values []float64, period int) []float64 {
	out := nanSeries(len(values))
	if period <= 0 || len(values) < period {
		return out
	}
	sum := 0.0
	for i, v := range values {
		sum += v
		if i >= period {
			sum -= values[i-period]
		}
		if i >= period-1 {
			out[i] = sum / float64(period)
		}
	}
	return out
}

// EMA is the exponential moving average seeded with the SMA of the first complete window.
// Leading NaNs in the input are skipped, which lets EMA run over another indicator's output.
func EMA(values []float64, period int) []float64 {
	out := nanSeries(len(values))
	if period <= 0 {
		return out
	}
	start := 0
	for start < len(values) && math.IsNaN(values[start]) {
		start++
	}
	if len(values)-start < period {
		return out
	}

	seedAt := start + period - 1
	sum := 0.0
	for _, v := range values[start : seedAt+1] {
		sum += v
	}
	out[seedAt] = sum / float64(period)

	alpha := 2.0 / float64(period+1)
	for i := seedAt + 1; i < len(values); i++ {
		out[i] = alpha*values[i] + (1-alpha)*out[i-1]
	}
	return out
}

// RSI is Wilder's relative strength index.
func RSI(closes []float64, period int) []float64 {
	out := nanSeries(len(closes))
	if period <= 0 || len(closes) <= period {
		return out
	}

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		d := closes[i] - closes[i-1]
		avgGain += math.Max(d, 0)
		avgLoss += math.Max(-d, 0)
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)
	out[period] = rsiValue(avgGain, avgLoss)

	n := float64(period)
	for i := period + 1; i < len(closes); i++ {
		d := closes[i] - closes[i-1]
		avgGain = (avgGain*(n-1) + math.Max(d, 0)) / n
		avgLoss = (avgLoss*(n-1) + math.Max(-d, 0)) / n
		out[i] = rsiValue(avgGain, avgLoss)
	}
	return out
}

func rsiValue(avgGain, avgLoss float64) float64 {
	switch {
	case avgGain == 0 && avgLoss == 0:
		return 50
	case avgLoss == 0:
		return 100
	default:
		return 100 - 100/(1+avgGain/avgLoss)
	}
}

// MACD returns the MACD line (fast EMA - slow EMA) and its signal EMA.
func MACD(closes []float64, fast, slow, signal int) (line, sig []float64) {
	f := EMA(closes, fast)
	s := EMA(closes, slow)
	line = nanSeries(len(closes))
	for i := range closes {
		if !math.IsNaN(f[i]) && !math.IsNaN(s[i]) {
			line[i] = f[i] - s[i]
		}
	}
	return line, EMA(line, signal)
}

// Bollinger returns the upper and lower bands at k population standard deviations.
func Bollinger(closes []float64, period int, k float64) (upper, lower []float64) {
	mid := SMA(closes, period)
	upper = nanSeries(len(closes))
	lower = nanSeries(len(closes))
	for i := range closes {
		if math.IsNaN(mid[i]) {
			continue
		}
		variance := 0.0
		for _, v := range closes[i-period+1 : i+1] {
			variance += (v - mid[i]) * (v - mid[i])
		}
		sd := math.Sqrt(variance / float64(period))
		upper[i] = mid[i] + k*sd
		lower[i] = mid[i] - k*sd
	}
	return upper, lower
}

// Last returns the final value of a series, or nil when it is missing or NaN.
func Last(series []float64) *float64 {
	if len(series) == 0 {
		return nil
	}
	v := series[len(series)-1]
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// VolumeSpike reports whether the last volume exceeds threshold times the mean of up to
// lookback preceding volumes. No history means no spike.
func VolumeSpike(volumes []float64, lookback int, threshold float64) bool {
	if len(volumes) < 2 || lookback <= 0 {
		return false
	}
	current := volumes[len(volumes)-1]
	prior := volumes[:len(volumes)-1]
	if len(prior) > lookback {
		prior = prior[len(prior)-lookback:]
	}
	sum := 0.0
	for _, v := range prior {
		sum += v
	}
	mean := sum / float64(len(prior))
	return mean > 0 && current > threshold*mean
}
