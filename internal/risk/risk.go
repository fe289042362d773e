// Package risk implements the spot and options risk managers: a shared
// state machine (daily bookkeeping, peak tracking, consecutive-loss
// counting, circuit breaker) plus ordered gating rules per spec §4.7.
//
// The circuit breaker is backed by github.com/sony/gobreaker: every
// CheckCanTrade call routes rules 2-4 (consecutive losses, daily loss
// limit, drawdown kill switch) through one Execute call. A violation is
// reported as a breaker failure, which — configured with
// ReadyToTrip: ConsecutiveFailures >= 1 — trips the breaker open
// immediately. gobreaker's own Timeout field holds the cooldown window,
// and its Closed/Open/HalfOpen state machine gives us "deny everything
// until cooldown elapses, then clear on first check" for free.
package risk

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/stratyard/tradecore/internal/models"
)

// Manager is the common spine shared by SpotManager and OptionsManager.
// All mutable state lives behind mu, since a scheduler fans multiple
// subjects out onto their own goroutines while sharing one risk manager.
type Manager struct {
	mu sync.Mutex

	cfg     models.RiskConfig
	state   models.RiskState
	breaker *gobreaker.CircuitBreaker
	now     func() time.Time
}

// newManager constructs the common risk spine. cooldown comes from
// cfg.CooldownMinutes.
func newManager(cfg models.RiskConfig) *Manager {
	m := &Manager{cfg: cfg, now: func() time.Time { return time.Now().UTC() }}

	settings := gobreaker.Settings{
		Name:        "risk-circuit-breaker",
		MaxRequests: 1,
		Interval:    0, // never auto-reset counts while closed
		Timeout:     time.Duration(cfg.CooldownMinutes) * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 1
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			m.onStateChange(from, to)
		},
	}
	m.breaker = gobreaker.NewCircuitBreaker(settings)
	return m
}

func (m *Manager) onStateChange(from, to gobreaker.State) {
	switch to {
	case gobreaker.StateOpen:
		m.state.CircuitBreakActive = true
		m.state.CircuitBreakUntil = m.now().Add(time.Duration(m.cfg.CooldownMinutes) * time.Minute)
	case gobreaker.StateHalfOpen:
		// First check after the cooldown elapses: clear the flag and the
		// consecutive-loss streak before the probe below re-evaluates
		// them, otherwise a breaker tripped by consecutive losses can
		// never close again (the stale counter re-trips it every time).
		m.state.CircuitBreakActive = false
		m.state.ConsecutiveLosses = 0
	case gobreaker.StateClosed:
		m.state.CircuitBreakActive = false
		m.state.ConsecutiveLosses = 0
	}
}

// State returns a copy of the manager's mutable bookkeeping.
func (m *Manager) State() models.RiskState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// resetDailyIfNeeded rolls daily_start_value/daily_pnl over when the UTC
// calendar day has changed since the last reset. Caller must hold mu.
func (m *Manager) resetDailyIfNeeded(portfolioValue float64) {
	today := m.now().Format("2006-01-02")
	if m.state.DailyResetDate == today {
		return
	}
	m.state.DailyResetDate = today
	m.state.DailyStartValue = portfolioValue
	m.state.DailyPnL = 0
}

// UpdatePeak advances the monotonic peak-portfolio-value watermark and
// rolls the daily bookkeeping if the UTC day changed.
func (m *Manager) UpdatePeak(portfolioValue float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetDailyIfNeeded(portfolioValue)
	if portfolioValue > m.state.PeakPortfolioValue {
		m.state.PeakPortfolioValue = portfolioValue
	}
}

// RecordTradeResult appends pnl to the trade log, updates daily PnL, and
// tracks the consecutive-loss streak (reset on any non-negative trade).
func (m *Manager) RecordTradeResult(pnl float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	m.state.TradeLog = append(m.state.TradeLog, models.TradeLogEntry{Timestamp: now, PnL: pnl})
	m.state.DailyPnL += pnl

	if pnl < 0 {
		m.state.ConsecutiveLosses++
	} else {
		m.state.ConsecutiveLosses = 0
	}
}

// checkCommonRules evaluates rules 1-4 (circuit breaker, consecutive
// losses, daily loss limit, drawdown kill switch) in order, short
// circuiting on the first violation. Rules 2-4 are evaluated through the
// gobreaker-backed Execute call described in the package doc.
func (m *Manager) checkCommonRules(portfolioValue float64) models.RiskCheckResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.breaker.State() == gobreaker.StateOpen {
		remaining := time.Until(m.state.CircuitBreakUntil)
		if remaining < 0 {
			remaining = 0
		}
		return models.Deny(fmt.Sprintf("circuit breaker active, %.1f minutes remaining", remaining.Minutes()))
	}

	var violation string
	_, _ = m.breaker.Execute(func() (interface{}, error) {
		if m.cfg.MaxConsecutiveLosses > 0 && m.state.ConsecutiveLosses >= m.cfg.MaxConsecutiveLosses {
			violation = fmt.Sprintf("consecutive losses %d >= max %d", m.state.ConsecutiveLosses, m.cfg.MaxConsecutiveLosses)
			return nil, errors.New(violation)
		}
		if m.state.DailyStartValue > 0 {
			dailyPctLoss := m.state.DailyPnL / m.state.DailyStartValue * 100
			if dailyPctLoss <= -m.cfg.DailyLossLimitPct {
				violation = fmt.Sprintf("daily loss %.2f%% exceeds limit %.2f%%", -dailyPctLoss, m.cfg.DailyLossLimitPct)
				return nil, errors.New(violation)
			}
		}
		if m.state.PeakPortfolioValue > 0 {
			drawdownPct := (portfolioValue - m.state.PeakPortfolioValue) / m.state.PeakPortfolioValue * 100
			if drawdownPct <= -m.cfg.MaxDrawdownPct {
				violation = fmt.Sprintf("drawdown %.2f%% exceeds max %.2f%%", -drawdownPct, m.cfg.MaxDrawdownPct)
				return nil, errors.New(violation)
			}
		}
		return nil, nil
	})

	if violation != "" {
		return models.Deny(violation)
	}
	return models.Allow("")
}

// checkNotionalCap is rule 5: proposed notional must not exceed the
// smaller of the percent-of-portfolio cap and the absolute-USD cap.
func (m *Manager) checkNotionalCap(portfolioValue, proposedNotional float64) models.RiskCheckResult {
	cap := portfolioValue * m.cfg.MaxPositionSizePct / 100
	if m.cfg.MaxPositionSizeUSD > 0 {
		cap = math.Min(cap, m.cfg.MaxPositionSizeUSD)
	}
	if proposedNotional > cap {
		return models.Deny(fmt.Sprintf("position too large: $%.2f > limit $%.2f", proposedNotional, cap))
	}
	return models.Allow("")
}

// PositionSize computes the stop-based risk sizing when a stop loss is
// given, capped so it never exceeds the percent-of-portfolio/absolute-USD
// cap (a); with no stop, returns cap (a) directly.
func (m *Manager) PositionSize(portfolioValue, entryPrice, stopLoss float64) float64 {
	capA := portfolioValue * m.cfg.MaxPositionSizePct / 100
	if m.cfg.MaxPositionSizeUSD > 0 {
		capA = math.Min(capA, m.cfg.MaxPositionSizeUSD)
	}
	if stopLoss == 0 || stopLoss == entryPrice || entryPrice <= 0 {
		return capA
	}

	riskPerTrade := portfolioValue * m.cfg.PerTradeStopLossPct / 100
	sizeB := riskPerTrade / math.Abs(entryPrice-stopLoss) * entryPrice

	return math.Min(sizeB, capA)
}
