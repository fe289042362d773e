package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/stratyard/tradecore/internal/metrics"
	"github.com/stratyard/tradecore/internal/models"
	"github.com/stratyard/tradecore/internal/risk"
	"github.com/stratyard/tradecore/internal/scoring"
)

// dispatch enforces the per-underlying hard cap and, for entries, the
// spec §4.6 trade-scoring gate, then routes the action through
// executeAction's dispatch table.
func (s *Scheduler) dispatch(ctx context.Context, subj Subject, action models.Action) {
	label := fmt.Sprintf("%s/%s", subj.Name, subj.Underlying)

	if action.Type == models.ActionNone {
		reason := action.SkipReason
		if reason == "" {
			reason = action.Reason
		}
		s.alerts.Info(label, reason)
		return
	}

	if isEntry(action.Type) {
		positions := positionsForUnderlying(s.adapter, subj.Underlying)
		if len(positions) >= s.cfg.MaxPositionsPerUnderlying {
			s.alerts.Warning(label, fmt.Sprintf("skipped %s: %d positions already open, max %d per underlying", action.Type, len(positions), s.cfg.MaxPositionsPerUnderlying))
			return
		}

		if allowed, reason := s.checkRisk(ctx, subj.Underlying, action, positions); !allowed {
			metrics.TradeDecisionsTotal.WithLabelValues(subj.Name, "denied").Inc()
			s.alerts.Warning(label, fmt.Sprintf("risk denied %s: %s", action.Type, reason))
			return
		}

		if s.cfg.ScoreEntries {
			score := scoring.Score(scoreInput(action, positions))
			if !scoring.Accept(score) {
				metrics.TradeDecisionsTotal.WithLabelValues(subj.Name, "scored_out").Inc()
				s.alerts.Warning(label, fmt.Sprintf("skipped %s: score %.2f below threshold %.2f", action.Type, score, scoring.RejectThreshold))
				return
			}
		}

		metrics.TradeDecisionsTotal.WithLabelValues(subj.Name, "accepted").Inc()
	}

	s.executeAction(ctx, subj.Underlying, action)
}

// isEntry reports whether action type opens new risk (as opposed to
// closing, rolling, or being a no-op).
func isEntry(t models.ActionType) bool {
	switch t {
	case models.ActionBuyCall, models.ActionBuyPut, models.ActionSellCall, models.ActionSellPut,
		models.ActionBuyStraddle, models.ActionSellStrangle:
		return true
	default:
		return false
	}
}

// scoreInput builds the scoring package's Input from an action and the
// underlying's current book. Delta-after is estimated with a flat ±0.5
// delta per contract rather than measured: measuring it would require
// enriching the candidate contract before we know whether it will even
// be dispatched, duplicating the strategy's own selection logic. For the
// same reason ProposedPremium is left at zero, so the premium-efficiency
// adjustment does not apply at this gate.
func scoreInput(action models.Action, positions []models.OptionPosition) scoring.Input {
	deltaBefore := underlyingDelta(positions)
	in := scoring.Input{
		Action:             action,
		ExistingPositions:  positions,
		DeltaBefore:        deltaBefore,
		DeltaAfter:         deltaBefore + estimatedLegDelta(action),
		PriorShortPremiums: shortEntryPrices(positions, legTypeOf(action.Type)),
	}
	return in
}

func underlyingDelta(positions []models.OptionPosition) float64 {
	var total float64
	for _, p := range positions {
		sign := 1.0
		if p.Side == models.SideSell {
			sign = -1.0
		}
		total += sign * float64(p.Quantity) * p.CurrentGreeks.Delta
	}
	return total
}

func estimatedLegDelta(action models.Action) float64 {
	qty := float64(action.Quantity)
	if qty <= 0 {
		qty = 1
	}
	switch action.Type {
	case models.ActionBuyCall:
		return 0.5 * qty
	case models.ActionSellCall:
		return -0.5 * qty
	case models.ActionBuyPut:
		return -0.5 * qty
	case models.ActionSellPut:
		return 0.5 * qty
	case models.ActionBuyStraddle:
		return 0
	case models.ActionSellStrangle:
		return 0
	default:
		return 0
	}
}

func legTypeOf(t models.ActionType) models.OptionType {
	switch t {
	case models.ActionBuyPut, models.ActionSellPut:
		return models.Put
	default:
		return models.Call
	}
}

func shortEntryPrices(positions []models.OptionPosition, typ models.OptionType) []float64 {
	var out []float64
	for _, p := range positions {
		if p.Side == models.SideSell && p.Contract.Type == typ {
			out = append(out, p.EntryPrice)
		}
	}
	return out
}

// checkRisk runs the spec §4.7 risk manager's ordered rule chain before an
// entry is dispatched. Notional and premium are left at zero: a precise
// figure would require enriching the candidate contract before knowing
// whether it clears scoring/the hard cap first, so this gate enforces
// the rules that don't depend on it (circuit breaker, consecutive
// losses, daily loss limit, drawdown kill switch, position counts,
// Greeks bounds) and leaves the notional cap to the adapter's own
// insufficient-cash check at fill time.
func (s *Scheduler) checkRisk(ctx context.Context, underlying string, action models.Action, positionsForThisUnderlying []models.OptionPosition) (bool, string) {
	portfolioValue, err := s.adapter.GetPortfolioValue(ctx)
	if err != nil {
		return false, fmt.Sprintf("portfolio value unavailable: %v", err)
	}

	greeksAfter := s.adapter.GetPortfolioGreeks()
	greeksAfter.Delta += estimatedLegDelta(action)

	proposal := risk.OptionsTradeProposal{
		Underlying:                  underlying,
		OpenPositions:               len(s.adapter.Positions()),
		OpenPositionsThisUnderlying: len(positionsForThisUnderlying),
		PortfolioGreeksAfter:        greeksAfter,
		IsHedge:                     action.IsHedge,
	}

	result := s.risk.CheckCanTrade(portfolioValue, proposal, s.risk.State())
	return result.Allowed, result.Reason
}

// executeAction implements spec §4.6's dispatch table: type -> adapter
// call -> risk hook.
func (s *Scheduler) executeAction(ctx context.Context, underlying string, action models.Action) {
	switch action.Type {
	case models.ActionBuyCall, models.ActionBuyPut:
		s.executeSingleLeg(ctx, underlying, action, models.SideBuy)
	case models.ActionSellCall, models.ActionSellPut:
		s.executeSingleLeg(ctx, underlying, action, models.SideSell)
	case models.ActionBuyStraddle:
		s.executeStraddle(ctx, underlying, action)
	case models.ActionSellStrangle:
		s.executeStrangle(ctx, underlying, action)
	case models.ActionClose:
		s.executeClose(ctx, underlying, action)
	case models.ActionCloseGroup:
		s.executeCloseGroup(ctx, underlying, action)
	case models.ActionRoll:
		s.executeRoll(ctx, underlying, action)
	default:
		s.alerts.Warning(underlying, fmt.Sprintf("unrecognized action type %q", action.Type))
	}
}

func (s *Scheduler) executeSingleLeg(ctx context.Context, underlying string, action models.Action, side models.PositionSide) {
	typ := models.Call
	if action.Type == models.ActionBuyPut || action.Type == models.ActionSellPut {
		typ = models.Put
	}
	expiry, err := time.Parse("2006-01-02", action.Expiry)
	if err != nil {
		s.alerts.Error(underlying, fmt.Sprintf("%s: invalid expiry %q: %v", action.Type, action.Expiry, err))
		return
	}
	qty := action.Quantity
	if qty <= 0 {
		qty = 1
	}
	contract := models.OptionContract{Underlying: underlying, Strike: action.Strike, Expiry: expiry, Type: typ}

	open := s.adapter.BuyOption
	if side == models.SideSell {
		open = s.adapter.SellOption
	}

	pos, err := open(ctx, contract, qty, action.LegGroup)
	if err != nil {
		s.alerts.Warning(underlying, fmt.Sprintf("%s order failed: %v", action.Type, err))
		return
	}
	if pos == nil {
		s.alerts.Warning(underlying, fmt.Sprintf("%s not filled: non-tradable quote or insufficient cash", action.Type))
		return
	}

	s.incrTradeCount(1)
	s.alerts.Trade(underlying, fmt.Sprintf("%s strike=%.2f expiry=%s qty=%d reason=%s", action.Type, action.Strike, action.Expiry, qty, action.Reason))

	if side == models.SideBuy && action.IsHedge {
		s.risk.RecordHedgeSpend(pos.EntryPriceUSD)
	}
}

func (s *Scheduler) executeStraddle(ctx context.Context, underlying string, action models.Action) {
	qty := action.Quantity
	if qty <= 0 {
		qty = 1
	}
	legs, err := s.adapter.OpenStraddle(ctx, underlying, s.cfg.StraddleTargetDTE, models.SideBuy, qty)
	if err != nil {
		s.alerts.Warning(underlying, fmt.Sprintf("buy_straddle failed: %v", err))
		return
	}
	s.incrTradeCount(len(legs))
	s.alerts.Trade(underlying, fmt.Sprintf("buy_straddle qty=%d reason=%s", qty, action.Reason))
}

func (s *Scheduler) executeStrangle(ctx context.Context, underlying string, action models.Action) {
	qty := action.Quantity
	if qty <= 0 {
		qty = 1
	}
	legs, err := s.adapter.OpenStrangle(ctx, underlying, s.cfg.StrangleTargetDTE, s.cfg.StrangleOTMPct, models.SideSell, qty)
	if err != nil {
		s.alerts.Warning(underlying, fmt.Sprintf("sell_strangle failed: %v", err))
		return
	}
	s.incrTradeCount(len(legs))
	s.alerts.Trade(underlying, fmt.Sprintf("sell_strangle qty=%d reason=%s", qty, action.Reason))
}

func (s *Scheduler) executeClose(ctx context.Context, underlying string, action models.Action) {
	rec, err := s.adapter.ClosePosition(ctx, action.PositionID)
	if err != nil {
		s.alerts.Warning(underlying, fmt.Sprintf("close %s failed: %v", action.PositionID, err))
		return
	}
	s.incrTradeCount(1)
	s.risk.RecordTradeResult(rec.PnLUSD)
	s.alerts.Trade(underlying, fmt.Sprintf("close %s pnl=%.2f reason=%s", rec.PositionID, rec.PnLUSD, action.Reason))
}

func (s *Scheduler) executeCloseGroup(ctx context.Context, underlying string, action models.Action) {
	recs, err := s.adapter.CloseLegGroup(ctx, action.LegGroup)
	if err != nil {
		s.alerts.Warning(underlying, fmt.Sprintf("close_group %s failed: %v", action.LegGroup, err))
	}
	if len(recs) == 0 {
		return
	}
	var sum float64
	for _, r := range recs {
		sum += r.PnLUSD
	}
	s.incrTradeCount(len(recs))
	s.risk.RecordTradeResult(sum)
	s.alerts.Trade(underlying, fmt.Sprintf("close_group %s legs=%d pnl=%.2f reason=%s", action.LegGroup, len(recs), sum, action.Reason))
}

// executeRoll closes the named position now; the strategy is expected to
// open the replacement leg on its next Evaluate call (spec §4.6: "close
// position (new leg opened next tick)").
func (s *Scheduler) executeRoll(ctx context.Context, underlying string, action models.Action) {
	rec, err := s.adapter.ClosePosition(ctx, action.PositionID)
	if err != nil {
		s.alerts.Warning(underlying, fmt.Sprintf("roll close %s failed: %v", action.PositionID, err))
		return
	}
	s.incrTradeCount(1)
	s.risk.RecordTradeResult(rec.PnLUSD)
	s.alerts.Trade(underlying, fmt.Sprintf("roll closed %s pnl=%.2f, new leg opens next tick, reason=%s", rec.PositionID, rec.PnLUSD, action.Reason))
}
