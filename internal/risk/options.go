package risk

import (
	"fmt"
	"math"
	"time"

	"github.com/stratyard/tradecore/internal/models"
)

// OptionsManager is the spec §4.7 options risk manager: the common spine
// plus the options-specific rules (per-underlying position cap,
// premium-at-risk cap, portfolio-Greeks bounds, monthly hedge budget) and
// the informative (non-gating) stress-scenario calculator.
type OptionsManager struct {
	*Manager
	cfg models.OptionsRiskConfig
}

// NewOptionsManager constructs an options risk manager from its static
// bounds, which embed the common RiskConfig.
func NewOptionsManager(cfg models.OptionsRiskConfig) *OptionsManager {
	return &OptionsManager{Manager: newManager(cfg.RiskConfig), cfg: cfg}
}

// OptionsTradeProposal carries everything CheckCanTrade needs to evaluate
// the options-specific rules for one proposed action.
type OptionsTradeProposal struct {
	Notional              float64
	Underlying            string
	OpenPositions         int // across all underlyings
	OpenPositionsThisUnderlying int
	ExistingLongPremium   float64
	NewLongPremium        float64
	PortfolioGreeksAfter  models.Greeks
	IsHedge               bool
	HedgeCostUSD          float64
}

// CheckCanTrade evaluates spec §4.7's ordered rule chain: common rules 1-5,
// then options-specific position/underlying/premium/Greeks/hedge-budget
// gates.
func (m *OptionsManager) CheckCanTrade(portfolioValue float64, p OptionsTradeProposal, state models.RiskState) models.RiskCheckResult {
	if r := m.checkCommonRules(portfolioValue); !r.Allowed {
		return r
	}
	if r := m.checkNotionalCap(portfolioValue, p.Notional); !r.Allowed {
		return r
	}
	if m.cfg.MaxPositions > 0 && p.OpenPositions >= m.cfg.MaxPositions {
		return models.Deny(fmt.Sprintf("open option positions %d >= max %d", p.OpenPositions, m.cfg.MaxPositions))
	}
	if m.cfg.MaxTotalExposurePct > 0 && portfolioValue > 0 {
		exposurePct := p.Notional / portfolioValue * 100
		if exposurePct > m.cfg.MaxTotalExposurePct {
			return models.Deny(fmt.Sprintf("total exposure %.2f%% would exceed max %.2f%%", exposurePct, m.cfg.MaxTotalExposurePct))
		}
	}
	if m.cfg.MaxPositionsPerUnderlying > 0 && p.OpenPositionsThisUnderlying >= m.cfg.MaxPositionsPerUnderlying {
		return models.Deny(fmt.Sprintf("%s positions %d >= per-underlying max %d", p.Underlying, p.OpenPositionsThisUnderlying, m.cfg.MaxPositionsPerUnderlying))
	}
	if m.cfg.MaxPremiumAtRiskPct > 0 && portfolioValue > 0 {
		premiumPct := (p.ExistingLongPremium + p.NewLongPremium) / portfolioValue * 100
		if premiumPct > m.cfg.MaxPremiumAtRiskPct {
			return models.Deny(fmt.Sprintf("premium at risk %.2f%% would exceed max %.2f%%", premiumPct, m.cfg.MaxPremiumAtRiskPct))
		}
	}
	if r := m.checkGreeksBounds(p.PortfolioGreeksAfter); !r.Allowed {
		return r
	}
	if p.IsHedge {
		if r := m.checkHedgeBudget(portfolioValue, p.HedgeCostUSD, state); !r.Allowed {
			return r
		}
	}
	return models.Allow("")
}

func (m *OptionsManager) checkGreeksBounds(g models.Greeks) models.RiskCheckResult {
	if m.cfg.MinDelta != 0 || m.cfg.MaxDelta != 0 {
		if g.Delta < m.cfg.MinDelta || g.Delta > m.cfg.MaxDelta {
			return models.Deny(fmt.Sprintf("portfolio delta %.4f outside bounds [%.4f, %.4f]", g.Delta, m.cfg.MinDelta, m.cfg.MaxDelta))
		}
	}
	if m.cfg.MaxAbsGamma > 0 && math.Abs(g.Gamma) > m.cfg.MaxAbsGamma {
		return models.Deny(fmt.Sprintf("portfolio |gamma| %.4f exceeds max %.4f", math.Abs(g.Gamma), m.cfg.MaxAbsGamma))
	}
	if m.cfg.MaxAbsVega > 0 && math.Abs(g.VegaPer1PctVol) > m.cfg.MaxAbsVega {
		return models.Deny(fmt.Sprintf("portfolio |vega| %.4f exceeds max %.4f", math.Abs(g.VegaPer1PctVol), m.cfg.MaxAbsVega))
	}
	return models.Allow("")
}

// checkHedgeBudget enforces spec invariant #10: rolling-month hedge spend
// must never exceed MaxMonthlyHedgeCostPct of portfolio value.
func (m *OptionsManager) checkHedgeBudget(portfolioValue, hedgeCostUSD float64, state models.RiskState) models.RiskCheckResult {
	if m.cfg.MaxMonthlyHedgeCostPct <= 0 {
		return models.Allow("")
	}
	cap := portfolioValue * m.cfg.MaxMonthlyHedgeCostPct / 100
	if state.MonthlyHedgeSpend+hedgeCostUSD > cap {
		return models.Deny(fmt.Sprintf("monthly hedge spend $%.2f would exceed cap $%.2f", state.MonthlyHedgeSpend+hedgeCostUSD, cap))
	}
	return models.Allow("")
}

// RecordHedgeSpend rolls the monthly hedge-spend accumulator over when the
// UTC calendar month has changed, then adds cost.
func (m *OptionsManager) RecordHedgeSpend(cost float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	month := m.now().Format("2006-01")
	if m.state.MonthlyHedgeReset != month {
		m.state.MonthlyHedgeReset = month
		m.state.MonthlyHedgeSpend = 0
	}
	m.state.MonthlyHedgeSpend += cost
}

// MaxLossScenario computes the hypothetical portfolio P&L if spot moved by
// movePct (e.g. -0.20 for a 20% drop) and every option position revalued
// to its intrinsic value at the moved spot. It is informative only and
// never gates a trade (spec §4.7).
func MaxLossScenario(positions []models.OptionPosition, movePct float64) float64 {
	var pnl float64
	for _, p := range positions {
		movedSpot := p.CurrentSpot * (1 + movePct)
		intrinsic := p.Contract.Intrinsic(movedSpot)
		sign := 1.0
		if p.Side == models.SideSell {
			sign = -1.0
		}
		pnl += sign * (intrinsic - p.CurrentPrice) * float64(p.Quantity) * 100
	}
	return pnl
}

// monthKeyFor is exposed for tests that need to assert the rolling-month
// boundary without depending on wall-clock time.
func monthKeyFor(t time.Time) string { return t.Format("2006-01") }
