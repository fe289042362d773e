// Package metrics holds the scheduler's Prometheus collectors: tick
// counts, risk-gate outcomes, and the portfolio-value gauge, exposed on
// the status server's /metrics route.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// TicksTotal counts completed scheduler tick iterations.
var TicksTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "tradecore_scheduler_ticks_total",
	Help: "Total number of scheduler tick iterations completed.",
})

// TradeDecisionsTotal counts proposed entries by outcome (denied by the
// risk manager, scored_out by the scoring gate, or accepted), labeled by
// the deciding subject's strategy name.
var TradeDecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "tradecore_trade_decisions_total",
	Help: "Proposed entries by strategy and outcome (accepted, denied, scored_out).",
}, []string{"strategy", "outcome"})

// PortfolioValue is the total portfolio value, updated whenever the
// status server's /api/status handler runs.
var PortfolioValue = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "tradecore_portfolio_value",
	Help: "Portfolio value as of the last /api/status request.",
})

// OpenPositions is the count of open positions, updated whenever the
// status server's /api/status handler runs.
var OpenPositions = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "tradecore_open_positions",
	Help: "Number of open positions as of the last /api/status request.",
})
