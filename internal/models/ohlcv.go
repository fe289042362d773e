// Package models provides the shared data structures for market data,
// option contracts and positions, orders, and risk state used across the
// strategy, venue, options, risk, and scheduler packages.
package models

import "fmt"

// OHLCVBar is one open/high/low/close/volume candle for a fixed timeframe.
// Bars are immutable once emitted by a data fetcher.
type OHLCVBar struct {
	TimestampMs int64   `json:"timestamp_ms"`
	Open        float64 `json:"open"`
	High        float64 `json:"high"`
	Low         float64 `json:"low"`
	Close       float64 `json:"close"`
	Volume      float64 `json:"volume"`
}

// Validate checks the bar's internal invariants: low <= open,close <= high
// and volume >= 0. It does not check ordering against neighboring bars.
func (b OHLCVBar) Validate() error {
	if b.Volume < 0 {
		return fmt.Errorf("bar %d: negative volume %.8f", b.TimestampMs, b.Volume)
	}
	if b.Low > b.Open || b.Open > b.High {
		return fmt.Errorf("bar %d: open %.8f out of [low %.8f, high %.8f]", b.TimestampMs, b.Open, b.Low, b.High)
	}
	if b.Low > b.Close || b.Close > b.High {
		return fmt.Errorf("bar %d: close %.8f out of [low %.8f, high %.8f]", b.TimestampMs, b.Close, b.Low, b.High)
	}
	return nil
}

// Series is an ordered slice of bars for one (exchange, symbol, timeframe).
// ValidateSeries additionally requires strictly increasing timestamps.
func ValidateSeries(bars []OHLCVBar) error {
	for i, b := range bars {
		if err := b.Validate(); err != nil {
			return err
		}
		if i > 0 && bars[i-1].TimestampMs >= b.TimestampMs {
			return fmt.Errorf("bar %d: timestamp %d not strictly after previous %d",
				i, b.TimestampMs, bars[i-1].TimestampMs)
		}
	}
	return nil
}

// Closes extracts the close column, a common input to indicator functions.
func Closes(bars []OHLCVBar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

// Volumes extracts the volume column.
func Volumes(bars []OHLCVBar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Volume
	}
	return out
}
