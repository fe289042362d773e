package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratyard/tradecore/internal/alert"
	"github.com/stratyard/tradecore/internal/models"
	"github.com/stratyard/tradecore/internal/options"
	"github.com/stratyard/tradecore/internal/risk"
)

// fakeChainSource is a deterministic options.ChainSource: flat IV-implying
// quotes around intrinsic so every contract is tradable.
type fakeChainSource struct {
	spot  float64
	chain []models.OptionContract
}

func (f *fakeChainSource) GetSpotPrice(ctx context.Context, underlying string) (float64, error) {
	return f.spot, nil
}

func (f *fakeChainSource) LoadMarkets(ctx context.Context, underlying string) ([]models.OptionContract, error) {
	return f.chain, nil
}

func (f *fakeChainSource) GetContractTicker(ctx context.Context, c models.OptionContract) (bid, ask, last float64, oi int64, err error) {
	intrinsic := c.Intrinsic(f.spot)
	mid := intrinsic + 2.0
	return mid - 0.1, mid + 0.1, mid, 500, nil
}

func testChain(underlying string, spot float64, now time.Time) []models.OptionContract {
	var out []models.OptionContract
	strikes := []float64{spot * 0.85, spot * 0.95, spot, spot * 1.05, spot * 1.15}
	dtes := []int{20, 30, 45}
	for _, dte := range dtes {
		expiry := now.Add(time.Duration(dte) * 24 * time.Hour)
		for _, strike := range strikes {
			out = append(out,
				models.OptionContract{Underlying: underlying, Strike: strike, Expiry: expiry, Type: models.Call},
				models.OptionContract{Underlying: underlying, Strike: strike, Expiry: expiry, Type: models.Put},
			)
		}
	}
	return out
}

func testOptionsRiskConfig() models.OptionsRiskConfig {
	return models.OptionsRiskConfig{
		RiskConfig: models.RiskConfig{
			MaxPositionSizePct:   50,
			MaxPositionSizeUSD:   1_000_000,
			MaxNumPositions:      50,
			MaxTotalExposurePct:  90,
			MaxConsecutiveLosses: 10,
			DailyLossLimitPct:    50,
			MaxDrawdownPct:       90,
			CooldownMinutes:      1,
		},
		MaxPositions:              50,
		MaxPositionsPerUnderlying: 10,
		MaxPremiumAtRiskPct:       90,
		MinDelta:                  -1000,
		MaxDelta:                  1000,
		MaxAbsGamma:               1000,
		MaxAbsVega:                1000,
	}
}

// fakeStrategy returns a fixed action sequence from Evaluate/ManagePositions,
// one slice per call (subsequent calls repeat the last entry).
type fakeStrategy struct {
	evaluateCalls int
	manageCalls   int
	evaluate      [][]models.Action
	manage        [][]models.Action
	evalErr       error
	manageErr     error
}

func (f *fakeStrategy) Evaluate(ctx context.Context, underlying string) ([]models.Action, error) {
	defer func() { f.evaluateCalls++ }()
	if f.evalErr != nil {
		return nil, f.evalErr
	}
	if len(f.evaluate) == 0 {
		return nil, nil
	}
	idx := f.evaluateCalls
	if idx >= len(f.evaluate) {
		idx = len(f.evaluate) - 1
	}
	return f.evaluate[idx], nil
}

func (f *fakeStrategy) ManagePositions(ctx context.Context, underlying string) ([]models.Action, error) {
	defer func() { f.manageCalls++ }()
	if f.manageErr != nil {
		return nil, f.manageErr
	}
	if len(f.manage) == 0 {
		return nil, nil
	}
	idx := f.manageCalls
	if idx >= len(f.manage) {
		idx = len(f.manage) - 1
	}
	return f.manage[idx], nil
}

func newTestScheduler(t *testing.T, spot, cash float64, subjects []Subject, cfg Config) *Scheduler {
	t.Helper()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	src := &fakeChainSource{spot: spot, chain: testChain("BTC", spot, now)}
	adapter := options.NewAdapter(src, options.DefaultConfig(), cash)
	riskMgr := risk.NewOptionsManager(testOptionsRiskConfig())
	alerts := alert.NewSink(100)
	return New(adapter, riskMgr, alerts, subjects, cfg, nil)
}

func TestRunDispatchesBuyCallEntry(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	expiry := now.Add(30 * 24 * time.Hour).Format("2006-01-02")

	strat := &fakeStrategy{evaluate: [][]models.Action{
		{{Type: models.ActionBuyCall, Underlying: "BTC", Strike: 50000, Expiry: expiry, Quantity: 1, Reason: "test entry"}},
	}}
	cfg := DefaultConfig()
	cfg.MaxIterations = 1
	cfg.ScoreEntries = false // no existing book to compare against; entries score 1.0 regardless
	s := newTestScheduler(t, 50000, 1_000_000, []Subject{{Name: "momentum_options", Underlying: "BTC", Strategy: strat}}, cfg)

	err := s.Run(context.Background())
	require.NoError(t, err)

	positions := s.adapter.Positions()
	require.Len(t, positions, 1)
	for _, p := range positions {
		assert.Equal(t, models.SideBuy, p.Side)
		assert.Equal(t, models.Call, p.Contract.Type)
	}
	assert.Equal(t, 1, s.tradeCount)
}

func TestRunRejectsEntryBeyondHardCap(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	expiry := now.Add(30 * 24 * time.Hour).Format("2006-01-02")

	var actions []models.Action
	for i := 0; i < 6; i++ {
		actions = append(actions, models.Action{Type: models.ActionBuyCall, Underlying: "BTC", Strike: 50000 + float64(i)*1000, Expiry: expiry, Quantity: 1})
	}
	strat := &fakeStrategy{evaluate: [][]models.Action{actions}}
	cfg := DefaultConfig()
	cfg.MaxIterations = 1
	cfg.ScoreEntries = false
	cfg.MaxPositionsPerUnderlying = 4
	s := newTestScheduler(t, 50000, 1_000_000, []Subject{{Name: "momentum_options", Underlying: "BTC", Strategy: strat}}, cfg)

	require.NoError(t, s.Run(context.Background()))

	positions := s.adapter.Positions()
	assert.Len(t, positions, 4, "hard cap must reject entries beyond 4 per underlying")
}

func TestRunDispatchesCloseAndRecordsTradeResult(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	expiry := now.Add(30 * 24 * time.Hour).Format("2006-01-02")

	entryStrat := &fakeStrategy{evaluate: [][]models.Action{
		{{Type: models.ActionBuyCall, Underlying: "BTC", Strike: 50000, Expiry: expiry, Quantity: 1}},
	}}
	cfg := DefaultConfig()
	cfg.MaxIterations = 1
	cfg.ScoreEntries = false
	s := newTestScheduler(t, 50000, 1_000_000, []Subject{{Name: "m", Underlying: "BTC", Strategy: entryStrat}}, cfg)
	require.NoError(t, s.Run(context.Background()))

	positions := s.adapter.Positions()
	require.Len(t, positions, 1)
	var positionID string
	for id := range positions {
		positionID = id
	}

	closeStrat := &fakeStrategy{manage: [][]models.Action{
		{{Type: models.ActionClose, PositionID: positionID, Reason: "profit target"}},
	}}
	s.subjects = []Subject{{Name: "m", Underlying: "BTC", Strategy: closeStrat}}
	s.iteration = 0
	require.NoError(t, s.Run(context.Background()))

	assert.Empty(t, s.adapter.Positions())
	assert.Equal(t, 2, s.tradeCount)
}

func TestProcessSubjectContinuesAfterOneSubjectErrors(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	expiry := now.Add(30 * 24 * time.Hour).Format("2006-01-02")

	broken := &fakeStrategy{evalErr: assertError("boom")}
	healthy := &fakeStrategy{evaluate: [][]models.Action{
		{{Type: models.ActionBuyCall, Underlying: "BTC", Strike: 50000, Expiry: expiry, Quantity: 1}},
	}}
	cfg := DefaultConfig()
	cfg.MaxIterations = 1
	cfg.ScoreEntries = false
	s := newTestScheduler(t, 50000, 1_000_000, []Subject{
		{Name: "broken", Underlying: "BTC", Strategy: broken},
		{Name: "healthy", Underlying: "BTC", Strategy: healthy},
	}, cfg)

	require.NoError(t, s.Run(context.Background()))
	assert.Len(t, s.adapter.Positions(), 1, "healthy subject must still trade despite the broken one")

	events := s.alerts.History()
	var sawError bool
	for _, e := range events {
		if e.Level == alert.Error {
			sawError = true
		}
	}
	assert.True(t, sawError, "broken subject's error must be logged to the alert sink")
}

func TestRunMaxIterationsStopsLoop(t *testing.T) {
	strat := &fakeStrategy{}
	cfg := DefaultConfig()
	cfg.MaxIterations = 3
	cfg.SleepInterval = time.Millisecond
	s := newTestScheduler(t, 50000, 1_000_000, []Subject{{Name: "m", Underlying: "BTC", Strategy: strat}}, cfg)

	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, 3, s.iteration)
}

func TestShutdownStopsLoopBeforeMaxIterations(t *testing.T) {
	strat := &fakeStrategy{}
	cfg := DefaultConfig()
	cfg.MaxIterations = 0
	cfg.SleepInterval = 50 * time.Millisecond
	s := newTestScheduler(t, 50000, 1_000_000, []Subject{{Name: "m", Underlying: "BTC", Strategy: strat}}, cfg)

	go func() {
		time.Sleep(10 * time.Millisecond)
		s.Shutdown()
	}()

	require.NoError(t, s.Run(context.Background()))
	assert.True(t, s.iteration >= 1)
}

type assertError string

func (e assertError) Error() string { return string(e) }
