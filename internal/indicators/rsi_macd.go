package indicators

// RSI computes the Relative Strength Index using Wilder smoothing of
// average gains and losses over `period` bars.
func RSI(closes []float64, period int) []float64 {
	out := make([]float64, len(closes))
	if period <= 0 || period >= len(closes) {
		for i := range out {
			out[i] = undefined
		}
		return out
	}

	gains := make([]float64, len(closes))
	losses := make([]float64, len(closes))
	for i := 1; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			gains[i] = delta
		} else {
			losses[i] = -delta
		}
	}

	avgGain := WilderEMA(gains[1:], period)
	avgLoss := WilderEMA(losses[1:], period)

	for i := range out {
		out[i] = undefined
	}
	for i := period; i < len(closes); i++ {
		ag := avgGain[i-1]
		al := avgLoss[i-1]
		if !IsDefined(ag) || !IsDefined(al) {
			continue
		}
		if al == 0 {
			out[i] = 100
			continue
		}
		rs := ag / al
		out[i] = 100 - 100/(1+rs)
	}
	return out
}

// MACDResult holds the MACD line, its signal line, and the histogram
// (macd - signal), all aligned to the input series.
type MACDResult struct {
	MACD      []float64
	Signal    []float64
	Histogram []float64
}

// MACD computes MACD = EMA(fast) - EMA(slow), a signal line as the EMA of
// MACD over `signalPeriod`, and the histogram of their difference.
func MACD(closes []float64, fast, slow, signalPeriod int) MACDResult {
	emaFast := EMA(closes, fast)
	emaSlow := EMA(closes, slow)

	macdLine := make([]float64, len(closes))
	for i := range closes {
		if !IsDefined(emaFast[i]) || !IsDefined(emaSlow[i]) {
			macdLine[i] = undefined
			continue
		}
		macdLine[i] = emaFast[i] - emaSlow[i]
	}

	// EMA of the MACD line, computed over the portion where it is defined.
	firstDefined := -1
	for i, v := range macdLine {
		if IsDefined(v) {
			firstDefined = i
			break
		}
	}
	signal := make([]float64, len(closes))
	for i := range signal {
		signal[i] = undefined
	}
	if firstDefined >= 0 && len(macdLine)-firstDefined >= signalPeriod {
		sub := EMA(macdLine[firstDefined:], signalPeriod)
		copy(signal[firstDefined:], sub)
	}

	hist := make([]float64, len(closes))
	for i := range closes {
		if !IsDefined(macdLine[i]) || !IsDefined(signal[i]) {
			hist[i] = undefined
			continue
		}
		hist[i] = macdLine[i] - signal[i]
	}

	return MACDResult{MACD: macdLine, Signal: signal, Histogram: hist}
}

// BollingerResult holds the mid band (SMA), and the upper/lower bands at
// k standard deviations.
type BollingerResult struct {
	Mid   []float64
	Upper []float64
	Lower []float64
}

// Bollinger computes Bollinger Bands: mid = SMA(period), bands = mid +-
// k*rollingStd(period).
func Bollinger(closes []float64, period int, k float64) BollingerResult {
	mid := SMA(closes, period)
	std := RollingStd(closes, period)

	upper := make([]float64, len(closes))
	lower := make([]float64, len(closes))
	for i := range closes {
		if !IsDefined(mid[i]) || !IsDefined(std[i]) {
			upper[i], lower[i] = undefined, undefined
			continue
		}
		upper[i] = mid[i] + k*std[i]
		lower[i] = mid[i] - k*std[i]
	}
	return BollingerResult{Mid: mid, Upper: upper, Lower: lower}
}

// ATR computes the Average True Range: a Wilder-smoothed rolling mean of
// the true range (max of high-low, |high-prevClose|, |low-prevClose|).
func ATR(highs, lows, closes []float64, period int) []float64 {
	n := len(closes)
	tr := make([]float64, n)
	for i := 0; i < n; i++ {
		if i == 0 {
			tr[i] = highs[i] - lows[i]
			continue
		}
		hl := highs[i] - lows[i]
		hc := abs(highs[i] - closes[i-1])
		lc := abs(lows[i] - closes[i-1])
		tr[i] = max3(hl, hc, lc)
	}
	return WilderEMA(tr, period)
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

func max3(a, b, c float64) float64 {
	m := a
	if b > m {
		m = b
	}
	if c > m {
		m = c
	}
	return m
}
