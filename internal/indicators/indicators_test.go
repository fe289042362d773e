package indicators

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSMA_WarmupAndValue(t *testing.T) {
	vals := []float64{1, 2, 3, 4, 5}
	sma := SMA(vals, 3)
	assert.False(t, IsDefined(sma[0]))
	assert.False(t, IsDefined(sma[1]))
	assert.InDelta(t, 2.0, sma[2], 1e-9)
	assert.InDelta(t, 3.0, sma[3], 1e-9)
	assert.InDelta(t, 4.0, sma[4], 1e-9)
}

func TestEMA_SeededBySMA(t *testing.T) {
	vals := []float64{1, 2, 3, 4, 5, 6}
	ema := EMA(vals, 3)
	assert.False(t, IsDefined(ema[0]))
	assert.False(t, IsDefined(ema[1]))
	assert.InDelta(t, 2.0, ema[2], 1e-9) // seed = SMA(1,2,3)
	assert.True(t, IsDefined(ema[3]))
}

func TestRSI_BoundedZeroHundred(t *testing.T) {
	vals := make([]float64, 30)
	price := 100.0
	for i := range vals {
		if i%2 == 0 {
			price += 1
		} else {
			price -= 0.5
		}
		vals[i] = price
	}
	rsi := RSI(vals, 14)
	for i, v := range rsi {
		if IsDefined(v) {
			assert.GreaterOrEqual(t, v, 0.0, "index %d", i)
			assert.LessOrEqual(t, v, 100.0, "index %d", i)
		}
	}
}

func TestMACD_HistogramIsDifference(t *testing.T) {
	vals := make([]float64, 50)
	for i := range vals {
		vals[i] = 100 + float64(i)*0.3
	}
	r := MACD(vals, 12, 26, 9)
	for i := range vals {
		if IsDefined(r.MACD[i]) && IsDefined(r.Signal[i]) {
			assert.InDelta(t, r.MACD[i]-r.Signal[i], r.Histogram[i], 1e-9)
		}
	}
}

func TestBollinger_UpperAboveLower(t *testing.T) {
	vals := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	b := Bollinger(vals, 5, 2)
	for i := range vals {
		if IsDefined(b.Upper[i]) {
			assert.GreaterOrEqual(t, b.Upper[i], b.Mid[i])
			assert.LessOrEqual(t, b.Lower[i], b.Mid[i])
		}
	}
}

func TestATR_NonNegative(t *testing.T) {
	highs := []float64{10, 11, 12, 11, 13, 14}
	lows := []float64{9, 9.5, 10, 9.8, 11, 12}
	closes := []float64{9.5, 10.5, 11, 10, 12, 13}
	atr := ATR(highs, lows, closes, 3)
	for _, v := range atr {
		if IsDefined(v) {
			assert.GreaterOrEqual(t, v, 0.0)
		}
	}
}

func TestROC_Basic(t *testing.T) {
	vals := []float64{100, 105, 110, 99}
	roc := ROC(vals, 2)
	assert.False(t, IsDefined(roc[0]))
	assert.False(t, IsDefined(roc[1]))
	assert.InDelta(t, 10.0, roc[2], 1e-9)
	assert.InDelta(t, -5.714285714285714, roc[3], 1e-9) // (99-105)/105*100
}

func TestRollingZScore_PositiveAboveMean(t *testing.T) {
	vals := []float64{5, 5, 5, 5, 10}
	z := RollingZScore(vals, 4)
	assert.True(t, IsDefined(z[4]))
	assert.Greater(t, z[4], 0.0)
}
