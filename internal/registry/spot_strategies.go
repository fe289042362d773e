package registry

import (
	"fmt"

	"github.com/stratyard/tradecore/internal/indicators"
	"github.com/stratyard/tradecore/internal/models"
)

// builtinSpotStrategies returns the spec §4.3 table of required spot
// strategies, each edge-triggered: a signal is populated only at the bar
// where its crossover condition fires, never as a sustained level.
func builtinSpotStrategies() []SpotStrategyEntry {
	return []SpotStrategyEntry{
		{
			Name:          "sma_crossover",
			Description:   "fast SMA crosses above/below slow SMA",
			DefaultParams: map[string]float64{"fast": 10, "slow": 30},
			Evaluate:      smaCrossover,
		},
		{
			Name:          "ema_crossover",
			Description:   "fast EMA crosses above/below slow EMA",
			DefaultParams: map[string]float64{"fast": 12, "slow": 26},
			Evaluate:      emaCrossover,
		},
		{
			Name:          "rsi",
			Description:   "RSI crosses up through oversold / down through overbought",
			DefaultParams: map[string]float64{"period": 14, "oversold": 30, "overbought": 70},
			Evaluate:      rsiStrategy,
		},
		{
			Name:          "bollinger_bands",
			Description:   "close crosses back through the lower/upper band",
			DefaultParams: map[string]float64{"period": 20, "k": 2},
			Evaluate:      bollingerBands,
		},
		{
			Name:          "macd",
			Description:   "MACD line crosses above/below its signal line",
			DefaultParams: map[string]float64{"fast": 12, "slow": 26, "signal": 9},
			Evaluate:      macdStrategy,
		},
		{
			Name:          "mean_reversion",
			Description:   "z-score crosses up/down through +-entry_std",
			DefaultParams: map[string]float64{"period": 20, "entry_std": 2},
			Evaluate:      meanReversion,
		},
		{
			Name:          "momentum",
			Description:   "rate of change crosses above/below +-threshold",
			DefaultParams: map[string]float64{"period": 10, "threshold": 5},
			Evaluate:      momentum,
		},
		{
			Name:          "volume_weighted",
			Description:   "close crosses SMA while volume exceeds a multiple of its own SMA",
			DefaultParams: map[string]float64{"period": 20, "vol_period": 20, "vol_multiplier": 1.5},
			Evaluate:      volumeWeighted,
		},
		{
			Name:          "triple_ema",
			Description:   "short/mid/long EMA alignment becomes true",
			DefaultParams: map[string]float64{"short": 5, "mid": 10, "long": 20},
			Evaluate:      tripleEMA,
		},
		{
			Name:          "rsi_macd_combo",
			Description:   "MACD bullish/bearish cross while RSI is on the matching side of 50",
			DefaultParams: map[string]float64{"rsi_period": 14, "fast": 12, "slow": 26, "signal": 9},
			Evaluate:      rsiMACDCombo,
		},
		{
			Name:          "pairs_spread",
			Description:   "z-score of close/close_b crosses +-entry_z; degrades to self mean-reversion without a second series",
			DefaultParams: map[string]float64{"period": 20, "entry_z": 2},
			Evaluate:      pairsSpread,
		},
	}
}

func smaCrossover(bars, _ []models.OHLCVBar, params map[string]float64) ([]models.SignalBar, string) {
	closes := models.Closes(bars)
	fastP, slowP := paramIntOr(params, "fast", 10), paramIntOr(params, "slow", 30)
	fast, slow := indicators.SMA(closes, fastP), indicators.SMA(closes, slowP)

	out := holdSeries(bars)
	for i := 1; i < len(bars); i++ {
		out[i].Indicators["sma_fast"] = fast[i]
		out[i].Indicators["sma_slow"] = slow[i]
		switch {
		case crossUp(fast[i-1], slow[i-1], fast[i], slow[i]):
			out[i].Signal = models.SignalBuy
		case crossDown(fast[i-1], slow[i-1], fast[i], slow[i]):
			out[i].Signal = models.SignalSell
		}
	}
	return out, ""
}

func emaCrossover(bars, _ []models.OHLCVBar, params map[string]float64) ([]models.SignalBar, string) {
	closes := models.Closes(bars)
	fastP, slowP := paramIntOr(params, "fast", 12), paramIntOr(params, "slow", 26)
	fast, slow := indicators.EMA(closes, fastP), indicators.EMA(closes, slowP)

	out := holdSeries(bars)
	for i := 1; i < len(bars); i++ {
		out[i].Indicators["ema_fast"] = fast[i]
		out[i].Indicators["ema_slow"] = slow[i]
		switch {
		case crossUp(fast[i-1], slow[i-1], fast[i], slow[i]):
			out[i].Signal = models.SignalBuy
		case crossDown(fast[i-1], slow[i-1], fast[i], slow[i]):
			out[i].Signal = models.SignalSell
		}
	}
	return out, ""
}

func rsiStrategy(bars, _ []models.OHLCVBar, params map[string]float64) ([]models.SignalBar, string) {
	closes := models.Closes(bars)
	period := paramIntOr(params, "period", 14)
	oversold, overbought := paramOr(params, "oversold", 30), paramOr(params, "overbought", 70)
	rsi := indicators.RSI(closes, period)

	out := holdSeries(bars)
	for i := 1; i < len(bars); i++ {
		out[i].Indicators["rsi"] = rsi[i]
		switch {
		case crossUpThreshold(rsi[i-1], rsi[i], oversold):
			out[i].Signal = models.SignalBuy
		case crossDownThreshold(rsi[i-1], rsi[i], overbought):
			out[i].Signal = models.SignalSell
		}
	}
	return out, ""
}

func bollingerBands(bars, _ []models.OHLCVBar, params map[string]float64) ([]models.SignalBar, string) {
	closes := models.Closes(bars)
	period := paramIntOr(params, "period", 20)
	k := paramOr(params, "k", 2)
	mid := indicators.SMA(closes, period)
	std := indicators.RollingStd(closes, period)

	out := holdSeries(bars)
	for i := 1; i < len(bars); i++ {
		lowerPrev, upperPrev := mid[i-1]-k*std[i-1], mid[i-1]+k*std[i-1]
		lower, upper := mid[i]-k*std[i], mid[i]+k*std[i]
		out[i].Indicators["bb_mid"] = mid[i]
		out[i].Indicators["bb_lower"] = lower
		out[i].Indicators["bb_upper"] = upper
		switch {
		case crossUp(closes[i-1], lowerPrev, closes[i], lower):
			out[i].Signal = models.SignalBuy
		case crossDown(closes[i-1], upperPrev, closes[i], upper):
			out[i].Signal = models.SignalSell
		}
	}
	return out, ""
}

func macdStrategy(bars, _ []models.OHLCVBar, params map[string]float64) ([]models.SignalBar, string) {
	closes := models.Closes(bars)
	fastP, slowP, sigP := paramIntOr(params, "fast", 12), paramIntOr(params, "slow", 26), paramIntOr(params, "signal", 9)
	m := indicators.MACD(closes, fastP, slowP, sigP)

	out := holdSeries(bars)
	for i := 1; i < len(bars); i++ {
		out[i].Indicators["macd"] = m.MACD[i]
		out[i].Indicators["macd_signal"] = m.Signal[i]
		out[i].Indicators["macd_hist"] = m.Histogram[i]
		switch {
		case crossUp(m.MACD[i-1], m.Signal[i-1], m.MACD[i], m.Signal[i]):
			out[i].Signal = models.SignalBuy
		case crossDown(m.MACD[i-1], m.Signal[i-1], m.MACD[i], m.Signal[i]):
			out[i].Signal = models.SignalSell
		}
	}
	return out, ""
}

func meanReversion(bars, _ []models.OHLCVBar, params map[string]float64) ([]models.SignalBar, string) {
	closes := models.Closes(bars)
	period := paramIntOr(params, "period", 20)
	entryStd := paramOr(params, "entry_std", 2)
	z := indicators.RollingZScore(closes, period)

	out := holdSeries(bars)
	for i := 1; i < len(bars); i++ {
		out[i].Indicators["zscore"] = z[i]
		switch {
		case crossUpThreshold(z[i-1], z[i], -entryStd):
			out[i].Signal = models.SignalBuy
		case crossDownThreshold(z[i-1], z[i], entryStd):
			out[i].Signal = models.SignalSell
		}
	}
	return out, ""
}

func momentum(bars, _ []models.OHLCVBar, params map[string]float64) ([]models.SignalBar, string) {
	closes := models.Closes(bars)
	period := paramIntOr(params, "period", 10)
	threshold := paramOr(params, "threshold", 5)
	roc := indicators.ROC(closes, period)

	out := holdSeries(bars)
	for i := 1; i < len(bars); i++ {
		out[i].Indicators["roc"] = roc[i]
		switch {
		case crossUpThreshold(roc[i-1], roc[i], threshold):
			out[i].Signal = models.SignalBuy
		case crossDownThreshold(roc[i-1], roc[i], -threshold):
			out[i].Signal = models.SignalSell
		}
	}
	return out, ""
}

func volumeWeighted(bars, _ []models.OHLCVBar, params map[string]float64) ([]models.SignalBar, string) {
	closes := models.Closes(bars)
	volumes := models.Volumes(bars)
	period := paramIntOr(params, "period", 20)
	volPeriod := paramIntOr(params, "vol_period", 20)
	multiplier := paramOr(params, "vol_multiplier", 1.5)

	sma := indicators.SMA(closes, period)
	volSMA := indicators.SMA(volumes, volPeriod)

	out := holdSeries(bars)
	for i := 1; i < len(bars); i++ {
		out[i].Indicators["sma"] = sma[i]
		out[i].Indicators["vol_sma"] = volSMA[i]
		highVolume := indicators.IsDefined(volSMA[i]) && volumes[i] > multiplier*volSMA[i]
		switch {
		case crossUp(closes[i-1], sma[i-1], closes[i], sma[i]) && highVolume:
			out[i].Signal = models.SignalBuy
		case crossDown(closes[i-1], sma[i-1], closes[i], sma[i]) && highVolume:
			out[i].Signal = models.SignalSell
		}
	}
	return out, ""
}

func tripleEMA(bars, _ []models.OHLCVBar, params map[string]float64) ([]models.SignalBar, string) {
	closes := models.Closes(bars)
	shortP, midP, longP := paramIntOr(params, "short", 5), paramIntOr(params, "mid", 10), paramIntOr(params, "long", 20)
	short, mid, long := indicators.EMA(closes, shortP), indicators.EMA(closes, midP), indicators.EMA(closes, longP)

	out := holdSeries(bars)
	bullishAt := func(i int) bool {
		return indicators.IsDefined(short[i]) && indicators.IsDefined(mid[i]) && indicators.IsDefined(long[i]) &&
			short[i] > mid[i] && mid[i] > long[i]
	}
	bearishAt := func(i int) bool {
		return indicators.IsDefined(short[i]) && indicators.IsDefined(mid[i]) && indicators.IsDefined(long[i]) &&
			short[i] < mid[i] && mid[i] < long[i]
	}
	for i := 1; i < len(bars); i++ {
		out[i].Indicators["ema_short"] = short[i]
		out[i].Indicators["ema_mid"] = mid[i]
		out[i].Indicators["ema_long"] = long[i]
		switch {
		case bullishAt(i) && !bullishAt(i-1):
			out[i].Signal = models.SignalBuy
		case bearishAt(i) && !bearishAt(i-1):
			out[i].Signal = models.SignalSell
		}
	}
	return out, ""
}

func rsiMACDCombo(bars, _ []models.OHLCVBar, params map[string]float64) ([]models.SignalBar, string) {
	closes := models.Closes(bars)
	rsiPeriod := paramIntOr(params, "rsi_period", 14)
	fastP, slowP, sigP := paramIntOr(params, "fast", 12), paramIntOr(params, "slow", 26), paramIntOr(params, "signal", 9)
	rsi := indicators.RSI(closes, rsiPeriod)
	m := indicators.MACD(closes, fastP, slowP, sigP)

	out := holdSeries(bars)
	for i := 1; i < len(bars); i++ {
		out[i].Indicators["rsi"] = rsi[i]
		out[i].Indicators["macd"] = m.MACD[i]
		out[i].Indicators["macd_signal"] = m.Signal[i]
		bullishCross := crossUp(m.MACD[i-1], m.Signal[i-1], m.MACD[i], m.Signal[i])
		bearishCross := crossDown(m.MACD[i-1], m.Signal[i-1], m.MACD[i], m.Signal[i])
		switch {
		case bullishCross && indicators.IsDefined(rsi[i]) && rsi[i] < 50:
			out[i].Signal = models.SignalBuy
		case bearishCross && indicators.IsDefined(rsi[i]) && rsi[i] > 50:
			out[i].Signal = models.SignalSell
		}
	}
	return out, ""
}

// pairsSpread computes the z-score of close/close_b and edge-triggers on
// +-entry_z. With no secondary series it degrades to self mean-reversion
// (z-score of the raw close series) and returns a warning, per spec §4.3.
func pairsSpread(bars, secondary []models.OHLCVBar, params map[string]float64) ([]models.SignalBar, string) {
	period := paramIntOr(params, "period", 20)
	entryZ := paramOr(params, "entry_z", 2)

	var series []float64
	warning := ""
	if len(secondary) == 0 {
		series = models.Closes(bars)
		warning = "pairs_spread: no secondary series supplied, degraded to self mean-reversion"
	} else {
		n := len(bars)
		if len(secondary) < n {
			n = len(secondary)
		}
		series = make([]float64, n)
		for i := 0; i < n; i++ {
			if secondary[i].Close == 0 {
				series[i] = 0
				continue
			}
			series[i] = bars[i].Close / secondary[i].Close
		}
		bars = bars[:n]
	}

	z := indicators.RollingZScore(series, period)
	out := holdSeries(bars)
	for i := 1; i < len(bars); i++ {
		out[i].Indicators["zscore"] = z[i]
		switch {
		case crossUpThreshold(z[i-1], z[i], -entryZ):
			out[i].Signal = models.SignalBuy
		case crossDownThreshold(z[i-1], z[i], entryZ):
			out[i].Signal = models.SignalSell
		}
	}
	return out, warning
}

// ApplyStrategy is the spec §4.3 apply_strategy entrypoint: look up name
// in the registry, merge params over the entry's defaults, and evaluate.
func (r *Registry) ApplyStrategy(name string, bars, secondary []models.OHLCVBar, params map[string]float64) ([]models.SignalBar, string, error) {
	entry, ok := r.Spot(name)
	if !ok {
		return nil, "", fmt.Errorf("unknown spot strategy %q", name)
	}
	merged := make(map[string]float64, len(entry.DefaultParams)+len(params))
	for k, v := range entry.DefaultParams {
		merged[k] = v
	}
	for k, v := range params {
		merged[k] = v
	}
	series, warning := entry.Evaluate(bars, secondary, merged)
	return series, warning, nil
}
