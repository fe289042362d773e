// Package registry implements the spec §4.3 strategy registry and signal
// engine: a name-keyed table of spot strategies (edge-triggered signal
// series over OHLCV bars) and options strategies (stateful objects bound
// to an adapter and risk manager). Per spec §9's "dynamic registry ->
// static dispatch" design note, each strategy is a concrete Go function
// or constructor; the registry itself is just a string-keyed lookup table
// kept for CLI/alert purposes, not a source of dynamic behavior.
package registry

import (
	"math"

	"github.com/stratyard/tradecore/internal/models"
)

// SpotStrategyFunc evaluates one spot strategy over bars (and, for
// pairs_spread, an optional secondary series). It returns a same-length
// signal series plus an optional warning (used by pairs_spread when it
// degrades to self-mean-reversion for lack of a second series). Evaluators
// never return a Go error for market-data conditions; insufficient
// history simply yields an all-hold series.
type SpotStrategyFunc func(bars, secondary []models.OHLCVBar, params map[string]float64) ([]models.SignalBar, string)

// SpotStrategyEntry is one registry row: the evaluator, a human
// description, and default parameters (spec's "default_params").
type SpotStrategyEntry struct {
	Name          string
	Description   string
	DefaultParams map[string]float64
	Evaluate      SpotStrategyFunc
}

func paramOr(params map[string]float64, key string, def float64) float64 {
	if v, ok := params[key]; ok {
		return v
	}
	return def
}

func paramIntOr(params map[string]float64, key string, def int) int {
	if v, ok := params[key]; ok {
		return int(v)
	}
	return def
}

// crossUpThreshold reports whether a series crossed up through threshold
// between the previous and current bar: edge-triggered, never a level.
func crossUpThreshold(prev, cur, threshold float64) bool {
	if math.IsNaN(prev) || math.IsNaN(cur) {
		return false
	}
	return prev <= threshold && cur > threshold
}

func crossDownThreshold(prev, cur, threshold float64) bool {
	if math.IsNaN(prev) || math.IsNaN(cur) {
		return false
	}
	return prev >= threshold && cur < threshold
}

// crossUp reports whether series A crossed above series B between the
// previous and current bar.
func crossUp(prevA, prevB, curA, curB float64) bool {
	if math.IsNaN(prevA) || math.IsNaN(prevB) || math.IsNaN(curA) || math.IsNaN(curB) {
		return false
	}
	return prevA <= prevB && curA > curB
}

func crossDown(prevA, prevB, curA, curB float64) bool {
	if math.IsNaN(prevA) || math.IsNaN(prevB) || math.IsNaN(curA) || math.IsNaN(curB) {
		return false
	}
	return prevA >= prevB && curA < curB
}

// holdSeries builds the SignalBar slice common to every spot strategy:
// hold everywhere, timestamps aligned to bars, indicators attached per
// bar by the caller.
func holdSeries(bars []models.OHLCVBar) []models.SignalBar {
	out := make([]models.SignalBar, len(bars))
	for i, b := range bars {
		out[i] = models.SignalBar{TimestampMs: b.TimestampMs, Signal: models.SignalHold, Indicators: map[string]float64{}}
	}
	return out
}

// Registry is the process-wide (per-instance) name-keyed strategy table.
type Registry struct {
	spot    map[string]SpotStrategyEntry
	options map[string]OptionsStrategyEntry
}

// NewRegistry constructs a registry pre-populated with every spec §4.3
// spot and options strategy.
func NewRegistry() *Registry {
	r := &Registry{spot: make(map[string]SpotStrategyEntry), options: make(map[string]OptionsStrategyEntry)}
	for _, e := range builtinSpotStrategies() {
		r.spot[e.Name] = e
	}
	for _, e := range builtinOptionsStrategies() {
		r.options[e.Name] = e
	}
	return r
}

// RegisterSpot adds or replaces a spot strategy entry.
func (r *Registry) RegisterSpot(e SpotStrategyEntry) { r.spot[e.Name] = e }

// RegisterOptions adds or replaces an options strategy entry.
func (r *Registry) RegisterOptions(e OptionsStrategyEntry) { r.options[e.Name] = e }

// Spot returns the named spot strategy entry, or false if unknown.
func (r *Registry) Spot(name string) (SpotStrategyEntry, bool) {
	e, ok := r.spot[name]
	return e, ok
}

// Options returns the named options strategy entry, or false if unknown.
func (r *Registry) Options(name string) (OptionsStrategyEntry, bool) {
	e, ok := r.options[name]
	return e, ok
}

// ListSpot returns every registered spot strategy name.
func (r *Registry) ListSpot() []string {
	out := make([]string, 0, len(r.spot))
	for name := range r.spot {
		out = append(out, name)
	}
	return out
}

// ListOptions returns every registered options strategy name.
func (r *Registry) ListOptions() []string {
	out := make([]string, 0, len(r.options))
	for name := range r.options {
		out = append(out, name)
	}
	return out
}
