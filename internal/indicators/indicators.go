// Package indicators implements the pure OHLCV indicator library: SMA,
// EMA, rolling standard deviation, RSI, MACD, Bollinger bands, ATR, ROC,
// and rolling z-score. Every function takes a plain []float64 (or OHLCV
// columns) and returns a same-length []float64 aligned to the input, with
// leading not-yet-defined positions set to math.NaN(). There is no data
// frame abstraction: everything is an online pass over native slices.
package indicators

import "math"

// undefined marks a position that does not yet have enough history.
var undefined = math.NaN()

// IsDefined reports whether a value is an actionable (non-NaN) indicator
// reading.
func IsDefined(v float64) bool { return !math.IsNaN(v) }

// SMA computes the simple moving average over a trailing window of the
// given period. The first period-1 positions are undefined.
func SMA(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	if period <= 0 {
		for i := range out {
			out[i] = undefined
		}
		return out
	}

	var sum float64
	for i, v := range values {
		sum += v
		if i >= period {
			sum -= values[i-period]
		}
		if i < period-1 {
			out[i] = undefined
		} else {
			out[i] = sum / float64(period)
		}
	}
	return out
}

// EMA computes the exponential moving average with smoothing factor
// alpha = 2/(period+1). The seed value is the SMA of the first `period`
// values; positions before that are undefined, matching SMA's warm-up.
func EMA(values []float64, period int) []float64 {
	return emaWithAlpha(values, period, 2.0/(float64(period)+1))
}

// WilderEMA computes an exponential moving average using Wilder's
// smoothing constant alpha = 1/period (used by RSI and ATR).
func WilderEMA(values []float64, period int) []float64 {
	return emaWithAlpha(values, period, 1.0/float64(period))
}

func emaWithAlpha(values []float64, period int, alpha float64) []float64 {
	out := make([]float64, len(values))
	if period <= 0 || period > len(values) {
		for i := range out {
			out[i] = undefined
		}
		return out
	}

	var seedSum float64
	for i := 0; i < period; i++ {
		seedSum += values[i]
		out[i] = undefined
	}
	prev := seedSum / float64(period)
	out[period-1] = prev

	for i := period; i < len(values); i++ {
		prev = alpha*values[i] + (1-alpha)*prev
		out[i] = prev
	}
	return out
}

// RollingStd computes the population standard deviation over a trailing
// window of `period` values (dividing by period, matching the common
// Bollinger-band convention).
func RollingStd(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	if period <= 0 {
		for i := range out {
			out[i] = undefined
		}
		return out
	}

	for i := range values {
		if i < period-1 {
			out[i] = undefined
			continue
		}
		window := values[i-period+1 : i+1]
		mean := 0.0
		for _, v := range window {
			mean += v
		}
		mean /= float64(period)
		var variance float64
		for _, v := range window {
			variance += (v - mean) * (v - mean)
		}
		variance /= float64(period)
		out[i] = math.Sqrt(variance)
	}
	return out
}

// RollingZScore returns (value - rollingMean) / rollingStd over a
// trailing window of `period` values.
func RollingZScore(values []float64, period int) []float64 {
	means := SMA(values, period)
	stds := RollingStd(values, period)
	out := make([]float64, len(values))
	for i := range values {
		if !IsDefined(means[i]) || !IsDefined(stds[i]) || stds[i] == 0 {
			out[i] = undefined
			continue
		}
		out[i] = (values[i] - means[i]) / stds[i]
	}
	return out
}

// ROC computes the rate of change over `period` bars: (c - c[n])/c[n]*100.
func ROC(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	for i := range values {
		if i < period || values[i-period] == 0 {
			out[i] = undefined
			continue
		}
		out[i] = (values[i] - values[i-period]) / values[i-period] * 100
	}
	return out
}
