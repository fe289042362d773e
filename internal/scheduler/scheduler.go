// Package scheduler implements the spec §4.6 long-running controller: the
// central state machine that owns strategy instances, the options
// adapter, the risk manager, and an alert sink, and drives them through a
// repeating tick loop. It is grounded on the teacher's TradingCycle
// (cmd/bot/trading_cycle.go), generalized from one bound SPY strangle to
// an arbitrary list of (strategy, underlying) subjects.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/stratyard/tradecore/internal/alert"
	"github.com/stratyard/tradecore/internal/metrics"
	"github.com/stratyard/tradecore/internal/models"
	"github.com/stratyard/tradecore/internal/options"
	"github.com/stratyard/tradecore/internal/registry"
	"github.com/stratyard/tradecore/internal/risk"
)

// Subject is one (strategy, underlying) pair the scheduler ticks every
// iteration. Name is the registry strategy name, kept for alert labels
// and metric labels; Strategy is the bound instance itself.
type Subject struct {
	Name       string
	Underlying string
	Strategy   registry.OptionsStrategy
}

// Config tunes the tick loop and the defaults used when dispatching
// actions that don't carry their own selection parameters (buy_straddle,
// sell_strangle).
type Config struct {
	SleepInterval time.Duration
	MaxIterations int // 0 means run until shutdown

	// ScoreEntries applies the spec §4.6 trade-scoring rule to proposed
	// entries before dispatch, same as the stateless check runner.
	// Scoring is mandatory in the stateless runner and optional here.
	ScoreEntries bool

	MaxPositionsPerUnderlying int

	StraddleTargetDTE int
	StrangleTargetDTE int
	StrangleOTMPct    float64
}

// DefaultConfig returns the spec's stated defaults: a 60s tick interval,
// unbounded iterations, entry scoring on, the 4-position hard cap, and
// 30-DTE/10%-OTM straddle and strangle selection.
func DefaultConfig() Config {
	return Config{
		SleepInterval:             60 * time.Second,
		MaxIterations:             0,
		ScoreEntries:              true,
		MaxPositionsPerUnderlying: 4,
		StraddleTargetDTE:         30,
		StrangleTargetDTE:         30,
		StrangleOTMPct:            0.10,
	}
}

// Scheduler is the long-running controller. One Scheduler owns exactly
// one options adapter and one risk manager; subjects may span many
// underlyings but all share that adapter/risk pair, matching spec §5's
// "one worker per adapter/strategy group".
type Scheduler struct {
	adapter  *options.Adapter
	risk     *risk.OptionsManager
	alerts   *alert.Sink
	subjects []Subject
	cfg      Config
	logger   *log.Logger

	mu         sync.Mutex
	running    bool
	iteration  int
	tradeCount int

	shutdownOnce sync.Once
	shutdownCh   chan struct{}
}

// New constructs a Scheduler. logger may be nil (defaults to log.Default).
func New(adapter *options.Adapter, riskMgr *risk.OptionsManager, alerts *alert.Sink, subjects []Subject, cfg Config, logger *log.Logger) *Scheduler {
	if logger == nil {
		logger = log.Default()
	}
	if cfg.SleepInterval <= 0 {
		cfg.SleepInterval = 60 * time.Second
	}
	if cfg.MaxPositionsPerUnderlying <= 0 {
		cfg.MaxPositionsPerUnderlying = 4
	}
	return &Scheduler{
		adapter:    adapter,
		risk:       riskMgr,
		alerts:     alerts,
		subjects:   subjects,
		cfg:        cfg,
		logger:     logger,
		shutdownCh: make(chan struct{}),
	}
}

// Shutdown sets the cooperative running flag to false. Safe to call more
// than once and from any goroutine (e.g. a signal handler).
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	s.shutdownOnce.Do(func() { close(s.shutdownCh) })
}

func (s *Scheduler) isRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// incrTradeCount bumps the completed-trade counter by n. Subjects run on
// their own goroutine (errgroup fan-out in tick), so this needs the same
// lock as the running flag.
func (s *Scheduler) incrTradeCount(n int) {
	s.mu.Lock()
	s.tradeCount += n
	s.mu.Unlock()
}

func (s *Scheduler) getTradeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tradeCount
}

// Run drives the tick loop until MaxIterations is reached, Shutdown is
// called, or ctx is canceled. It always finishes with a final status
// dump, matching spec §4.6's failure model.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	s.running = true
	s.mu.Unlock()

	var fatal error
	for s.isRunning() {
		select {
		case <-ctx.Done():
			s.Shutdown()
			continue
		default:
		}

		s.iteration++
		if err := s.tick(ctx); err != nil {
			s.alerts.Critical("fatal error", err.Error())
			fatal = err
			s.Shutdown()
			break
		}

		if s.cfg.MaxIterations > 0 && s.iteration >= s.cfg.MaxIterations {
			s.Shutdown()
			break
		}

		if !s.sleepOrShutdown(ctx) {
			break
		}
	}

	s.finalReport()
	return fatal
}

// sleepOrShutdown waits out the inter-tick interval, returning early (and
// false) on context cancellation or an explicit Shutdown.
func (s *Scheduler) sleepOrShutdown(ctx context.Context) bool {
	timer := time.NewTimer(s.cfg.SleepInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		s.Shutdown()
		return false
	case <-s.shutdownCh:
		return false
	case <-timer.C:
		return s.isRunning()
	}
}

// tick runs one iteration's fixed ordering: handle_expiries ->
// update_positions -> update risk peak/daily -> per-subject
// manage/evaluate/execute -> status line (spec §5).
func (s *Scheduler) tick(ctx context.Context) error {
	if _, err := s.adapter.HandleExpiries(ctx); err != nil {
		return fmt.Errorf("handle expiries: %w", err)
	}
	if err := s.adapter.UpdatePositions(ctx); err != nil {
		return fmt.Errorf("update positions: %w", err)
	}

	portfolioValue, err := s.adapter.GetPortfolioValue(ctx)
	if err != nil {
		return fmt.Errorf("portfolio value: %w", err)
	}
	s.risk.UpdatePeak(portfolioValue)

	// Each subject gets its own worker goroutine (spec §5's "one worker per
	// adapter/strategy group", generalized to the multi-subject case); the
	// per-subject bulkhead in processSubject means a worker never returns
	// an error, so g.Wait() is purely a join point.
	var g errgroup.Group
	for _, subj := range s.subjects {
		subj := subj
		g.Go(func() error {
			s.processSubject(ctx, subj)
			return nil
		})
	}
	_ = g.Wait()

	metrics.TicksTotal.Inc()
	s.logStatus(portfolioValue)
	return nil
}

// processSubject is the per-subject bulkhead: a panic or returned error
// from one subject's strategy is logged to the alert sink at error level
// and the loop moves on to the next subject (spec §4.6 failure model,
// spec §7 "one bad subject never kills another").
func (s *Scheduler) processSubject(ctx context.Context, subj Subject) {
	label := fmt.Sprintf("%s/%s", subj.Name, subj.Underlying)
	defer func() {
		if r := recover(); r != nil {
			s.alerts.Error(label, fmt.Sprintf("panic: %v", r))
		}
	}()

	manageActions, err := subj.Strategy.ManagePositions(ctx, subj.Underlying)
	if err != nil {
		s.alerts.Error(label, fmt.Sprintf("manage_positions failed: %v", err))
	} else {
		for _, a := range manageActions {
			s.dispatch(ctx, subj, a)
		}
	}

	evalActions, err := subj.Strategy.Evaluate(ctx, subj.Underlying)
	if err != nil {
		s.alerts.Error(label, fmt.Sprintf("evaluate failed: %v", err))
		return
	}
	for _, a := range evalActions {
		s.dispatch(ctx, subj, a)
	}
}

// logStatus emits the spec §4.6 per-iteration status line.
func (s *Scheduler) logStatus(portfolioValue float64) {
	state := s.risk.State()
	pnlPct := 0.0
	if state.DailyStartValue > 0 {
		pnlPct = state.DailyPnL / state.DailyStartValue * 100
	}
	greeks := s.adapter.GetPortfolioGreeks()
	s.logger.Printf("[iter=%d portfolio=$%.2f pnl=%.2f%% cash=$%.2f positions=%d delta=%.4f theta_per_day=%.2f]",
		s.iteration, portfolioValue, pnlPct, s.adapter.Cash(), len(s.adapter.Positions()), greeks.Delta, greeks.ThetaPerDay)
}

// finalReport prints the spec §4.6 shutdown report: iterations,
// portfolio, PnL, cash, open positions, total trades, and the risk
// manager's status block.
func (s *Scheduler) finalReport() {
	portfolioValue, err := s.adapter.GetPortfolioValue(context.Background())
	if err != nil {
		s.alerts.Error("final report", fmt.Sprintf("portfolio value unavailable: %v", err))
	}
	state := s.risk.State()
	pnlPct := 0.0
	if state.DailyStartValue > 0 {
		pnlPct = state.DailyPnL / state.DailyStartValue * 100
	}
	s.alerts.Critical("final report", fmt.Sprintf(
		"iterations=%d portfolio=$%.2f pnl=%.2f%% cash=$%.2f open_positions=%d total_trades=%d circuit_breaker_active=%v consecutive_losses=%d",
		s.iteration, portfolioValue, pnlPct, s.adapter.Cash(), len(s.adapter.Positions()), s.getTradeCount(),
		state.CircuitBreakActive, state.ConsecutiveLosses))
}

// positionsForUnderlying filters the adapter's open positions down to one
// underlying.
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
