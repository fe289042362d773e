// Package checkrunner implements the spec §4.8 stateless check runner: a
// one-shot evaluator that constructs a transient adapter and risk
// manager, runs a single named strategy, scores the resulting actions,
// and returns one record — no state survives past the call. It shares
// its scoring rule with the long-running scheduler (internal/scoring)
// so both apply the exact same gate to a proposed action.
package checkrunner

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/stratyard/tradecore/internal/models"
	"github.com/stratyard/tradecore/internal/options"
	"github.com/stratyard/tradecore/internal/registry"
	"github.com/stratyard/tradecore/internal/risk"
	"github.com/stratyard/tradecore/internal/scoring"
)

// Record is the spec §4.8 single JSON line emitted on stdout, shared by
// both the spot (check_strategy) and options (check_options) modes.
type Record struct {
	Strategy   string          `json:"strategy"`
	Subject    string          `json:"subject"`
	Signal     int             `json:"signal"`
	SpotPrice  float64         `json:"spot_price,omitempty"`
	Actions    []models.Action `json:"actions,omitempty"`
	IVRank     float64         `json:"iv_rank,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
	Error      string          `json:"error,omitempty"`
	SkipReason string          `json:"skip_reason,omitempty"`
}

// Failed reports whether the run should exit 1 (spec §4.8: "exit 0 on
// success, 1 on hard failure; the JSON still carries the error").
func (r Record) Failed() bool { return r.Error != "" }

// Config carries the transient adapter/risk-manager defaults and the
// per-underlying hard cap; the scoring threshold is the scoring
// package's own constant.
type Config struct {
	StartingCash              float64
	OptionsConfig             options.Config
	RiskConfig                models.OptionsRiskConfig
	MaxPositionsPerUnderlying int
}

// DefaultConfig returns sensible transient defaults: a large notional
// paper balance (the check runner evaluates signal quality, not sizing)
// and the spec's 4-position-per-underlying hard cap.
func DefaultConfig() Config {
	return Config{
		StartingCash:  1_000_000,
		OptionsConfig: options.DefaultConfig(),
		RiskConfig: models.OptionsRiskConfig{
			RiskConfig: models.RiskConfig{
				MaxPositionSizePct:   100,
				MaxPositionSizeUSD:   1_000_000,
				MaxNumPositions:      100,
				MaxTotalExposurePct:  100,
				MaxConsecutiveLosses: 1_000_000,
				DailyLossLimitPct:    100,
				MaxDrawdownPct:       100,
				CooldownMinutes:      1,
			},
			MaxPositions:              100,
			MaxPositionsPerUnderlying: 4,
			MaxPremiumAtRiskPct:       100,
			MinDelta:                  -1_000_000,
			MaxDelta:                  1_000_000,
			MaxAbsGamma:               1_000_000,
			MaxAbsVega:                1_000_000,
		},
		MaxPositionsPerUnderlying: 4,
	}
}

// rawPositionTag is decoded first from each positions-JSON array element
// to tell a spot holding (ignored by the options runner) from an option
// position (decoded into models.OptionPosition, whose own JSON shape is
// reused verbatim).
type rawPositionTag struct {
	PositionType string `json:"position_type,omitempty"`
}

// parsePositions splits a positions-JSON array into option positions and
// a count of spot entries skipped. An empty or nil payload is valid and
// yields zero of both.
func parsePositions(raw []byte) ([]models.OptionPosition, int, error) {
	if len(raw) == 0 {
		return nil, 0, nil
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, 0, fmt.Errorf("decode positions array: %w", err)
	}

	var optionPositions []models.OptionPosition
	spotCount := 0
	for i, entry := range entries {
		var tag rawPositionTag
		if err := json.Unmarshal(entry, &tag); err != nil {
			return nil, 0, fmt.Errorf("decode position %d: %w", i, err)
		}
		if tag.PositionType == "spot" {
			spotCount++
			continue
		}
		var pos models.OptionPosition
		if err := json.Unmarshal(entry, &pos); err != nil {
			return nil, 0, fmt.Errorf("decode option position %d: %w", i, err)
		}
		optionPositions = append(optionPositions, pos)
	}
	return optionPositions, spotCount, nil
}

// CheckOptions runs one options strategy once against a transient
// adapter seeded from positionsJSON (may be nil/empty), scores the
// resulting actions, and returns a filtered Record. source supplies the
// transient adapter's market data.
func CheckOptions(ctx context.Context, reg *registry.Registry, source options.ChainSource, strategyName, underlying string, positionsJSON []byte, cfg Config) Record {
	rec := Record{Strategy: strategyName, Subject: underlying, Timestamp: time.Now().UTC()}

	entry, ok := reg.Options(strategyName)
	if !ok {
		rec.Error = fmt.Sprintf("unknown options strategy %q", strategyName)
		return rec
	}

	existing, _, err := parsePositions(positionsJSON)
	if err != nil {
		rec.Error = fmt.Sprintf("parse positions: %v", err)
		return rec
	}

	adapter := options.NewAdapter(source, cfg.OptionsConfig, cfg.StartingCash)
	adapter.SeedPositions(existing)
	riskMgr := risk.NewOptionsManager(cfg.RiskConfig)

	ownPositions := positionsForUnderlying(adapter, underlying)
	if len(ownPositions) >= cfg.MaxPositionsPerUnderlying {
		rec.SkipReason = fmt.Sprintf("max %d option positions per underlying reached", cfg.MaxPositionsPerUnderlying)
		return rec
	}

	if spot, err := adapter.GetSpotPrice(ctx, underlying); err == nil {
		rec.SpotPrice = spot
	}
	if ivRank, err := adapter.GetIVRank(ctx, underlying, 60); err == nil {
		rec.IVRank = ivRank
	}

	strat := entry.New(adapter, riskMgr, entry.DefaultParams)
	actions, err := strat.Evaluate(ctx, underlying)
	if err != nil {
		rec.Error = err.Error()
		return rec
	}

	rec.Actions = scoreAndFilter(actions, ownPositions)
	rec.Signal = signalFromActions(rec.Actions)
	return rec
}

// CheckPrice returns just the spot price for symbols, each looked up
// through source. Errors are reported per-symbol in that symbol's
// Record.Error field rather than aborting the whole batch.
func CheckPrice(ctx context.Context, source options.ChainSource, symbols []string) []Record {
	out := make([]Record, 0, len(symbols))
	now := time.Now().UTC()
	for _, sym := range symbols {
		rec := Record{Strategy: "check_price", Subject: sym, Timestamp: now}
		price, err := source.GetSpotPrice(ctx, sym)
		if err != nil {
			rec.Error = err.Error()
		} else {
			rec.SpotPrice = price
		}
		out = append(out, rec)
	}
	return out
}

// CheckStrategy runs one spot strategy once over bars (plus an optional
// secondary series for pairs_spread) and returns the last bar's signal
// as a Record. A strategy-returned warning (e.g. pairs_spread degrading
// to self mean-reversion for lack of a second series) surfaces as
// SkipReason rather than Error, since the evaluation still produced a
// usable signal.
func CheckStrategy(reg *registry.Registry, strategyName, symbol string, bars, secondary []models.OHLCVBar, params map[string]float64) Record {
	rec := Record{Strategy: strategyName, Subject: symbol, Timestamp: time.Now().UTC()}

	series, warning, err := reg.ApplyStrategy(strategyName, bars, secondary, params)
	if err != nil {
		rec.Error = err.Error()
		return rec
	}
	if warning != "" {
		rec.SkipReason = warning
	}
	if len(series) == 0 {
		rec.Error = "strategy produced no signal bars"
		return rec
	}
	if len(bars) > 0 {
		rec.SpotPrice = bars[len(bars)-1].Close
	}

	last := series[len(series)-1]
	switch last.Signal {
	case models.SignalBuy:
		rec.Signal = 1
	case models.SignalSell:
		rec.Signal = -1
	default:
		rec.Signal = 0
	}
	return rec
}

func scoreAndFilter(actions []models.Action, existing []models.OptionPosition) []models.Action {
	filtered := make([]models.Action, 0, len(actions))
	for _, a := range actions {
		if a.Type == models.ActionNone {
			continue
		}
		score := scoring.Score(scoreInput(a, existing))
		a.Score = score
		if !scoring.Accept(score) {
			continue
		}
		filtered = append(filtered, a)
	}
	return filtered
}

func signalFromActions(actions []models.Action) int {
	for _, a := range actions {
		switch a.Type {
		case models.ActionBuyCall, models.ActionBuyPut, models.ActionBuyStraddle:
			return 1
		case models.ActionSellCall, models.ActionSellPut, models.ActionSellStrangle:
			return -1
		}
	}
	return 0
}

func positionsForUnderlying(adapter *options.Adapter, underlying string) []models.OptionPosition {
	all := adapter.Positions()
	out := make([]models.OptionPosition, 0, len(all))
	for _, p := range all {
		if p.Contract.Underlying == underlying {
			out = append(out, p)
		}
	}
	return out
}

// scoreInput mirrors internal/scheduler's estimation: delta-before/after
// and premium efficiency are approximated from the existing book rather
// than from a freshly enriched quote, the same trade-off made for the
// scheduler's optional entry gate.
func scoreInput(action models.Action, positions []models.OptionPosition) scoring.Input {
	var deltaBefore float64
	for _, p := range positions {
		sign := 1.0
		if p.Side == models.SideSell {
			sign = -1.0
		}
		deltaBefore += sign * float64(p.Quantity) * p.CurrentGreeks.Delta
	}

	qty := float64(action.Quantity)
	if qty <= 0 {
		qty = 1
	}
	var legDelta float64
	switch action.Type {
	case models.ActionBuyCall:
		legDelta = 0.5 * qty
	case models.ActionSellCall:
		legDelta = -0.5 * qty
	case models.ActionBuyPut:
		legDelta = -0.5 * qty
	case models.ActionSellPut:
		legDelta = 0.5 * qty
	}

	typ := models.Call
	if action.Type == models.ActionBuyPut || action.Type == models.ActionSellPut {
		typ = models.Put
	}
	var priorShorts []float64
	for _, p := range positions {
		if p.Side == models.SideSell && p.Contract.Type == typ {
			priorShorts = append(priorShorts, p.EntryPrice)
		}
	}

	return scoring.Input{
		Action:             action,
		ExistingPositions:  positions,
		DeltaBefore:        deltaBefore,
		DeltaAfter:         deltaBefore + legDelta,
		PriorShortPremiums: priorShorts,
	}
}
