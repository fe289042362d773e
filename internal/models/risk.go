package models

import "time"

// RiskConfig holds the static bounds for the spot risk manager. It is
// created at scheduler boot and treated as immutable for the run.
type RiskConfig struct {
	MaxPositionSizePct   float64 `yaml:"max_position_size_pct"`  // percent of portfolio per trade
	MaxPositionSizeUSD   float64 `yaml:"max_position_size_usd"`  // absolute cap per trade
	PerTradeStopLossPct  float64 `yaml:"per_trade_stop_loss_pct"`
	MaxNumPositions      int     `yaml:"max_num_positions"`
	MaxTotalExposurePct  float64 `yaml:"max_total_exposure_pct"`
	MaxConsecutiveLosses int     `yaml:"max_consecutive_losses"`
	DailyLossLimitPct    float64 `yaml:"daily_loss_limit_pct"`
	MaxDrawdownPct       float64 `yaml:"max_drawdown_pct"`
	CooldownMinutes      int     `yaml:"cooldown_minutes"`
}

// OptionsRiskConfig extends RiskConfig with the options-specific bounds
// from spec §4.7.
type OptionsRiskConfig struct {
	RiskConfig `yaml:",inline"`

	MaxPositions              int     `yaml:"max_positions"`
	MaxPositionsPerUnderlying int     `yaml:"max_positions_per_underlying"`
	MaxPremiumAtRiskPct       float64 `yaml:"max_premium_at_risk_pct"`
	MinDelta                  float64 `yaml:"min_delta"`
	MaxDelta                  float64 `yaml:"max_delta"`
	MaxAbsGamma               float64 `yaml:"max_abs_gamma"`
	MaxAbsVega                float64 `yaml:"max_abs_vega"`
	MaxMonthlyHedgeCostPct    float64 `yaml:"max_monthly_hedge_cost_pct"`
}

// TradeLogEntry is one append-only record of a completed trade's P&L,
// used by the risk manager to track consecutive losses.
type TradeLogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	PnL       float64   `json:"pnl"`
}

// RiskState is the mutable bookkeeping owned by exactly one risk-manager
// instance; it is mutated only through that manager's methods
// (RecordTradeResult, UpdatePeak with its daily roll-over,
// RecordHedgeSpend) and its circuit-breaker transitions.
type RiskState struct {
	PeakPortfolioValue float64 `json:"peak_portfolio_value"`
	DailyStartValue    float64 `json:"daily_start_value"`
	DailyPnL           float64 `json:"daily_pnl"`
	DailyResetDate     string  `json:"daily_reset_date"` // YYYY-MM-DD UTC

	ConsecutiveLosses int `json:"consecutive_losses"`

	CircuitBreakActive bool      `json:"circuit_break_active"`
	CircuitBreakUntil  time.Time `json:"circuit_break_until"`

	MonthlyHedgeSpend float64 `json:"monthly_hedge_spend"`
	MonthlyHedgeReset string  `json:"monthly_hedge_reset"` // YYYY-MM UTC

	TradeLog []TradeLogEntry `json:"trade_log"`
}

// RiskCheckResult is the output of a risk-manager gating check.
type RiskCheckResult struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
}

// Allow returns an allowed result, optionally carrying an informative
// reason (e.g. for stress-scenario annotations that do not gate).
func Allow(reason string) RiskCheckResult { return RiskCheckResult{Allowed: true, Reason: reason} }

// Deny returns a denied result with the given human-readable reason.
func Deny(reason string) RiskCheckResult { return RiskCheckResult{Allowed: false, Reason: reason} }
