package registry

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/stratyard/tradecore/internal/indicators"
	"github.com/stratyard/tradecore/internal/models"
	"github.com/stratyard/tradecore/internal/options"
	"github.com/stratyard/tradecore/internal/risk"
)

func builtinOptionsStrategies() []OptionsStrategyEntry {
	return []OptionsStrategyEntry{
		{
			Name:          "momentum_options",
			Description:   "spot momentum drives 30-45 DTE ATM call/put entries",
			DefaultParams: map[string]float64{"lookback": 10, "threshold": 3, "min_dte": 30, "max_dte": 45, "profit_target": 0.5, "loss_limit": 0.3, "roll_dte": 5, "quantity": 1},
			New:           newMomentumOptions,
		},
		{
			Name:          "vol_mean_reversion",
			Description:   "sell strangles when IV rank is high, buy straddles when IV rank is low",
			DefaultParams: map[string]float64{"iv_rank_high": 75, "iv_rank_low": 25, "min_dte": 23, "max_dte": 37, "target_dte": 30, "otm_pct": 0.10, "profit_target": 0.5, "loss_limit": 0.3, "roll_dte": 7, "quantity": 1},
			New:           newVolMeanReversion,
		},
		{
			Name:          "protective_puts",
			Description:   "buy ~12% OTM puts targeting ~45 DTE, rolling before expiry",
			DefaultParams: map[string]float64{"otm_pct": 0.12, "target_dte": 45, "roll_dte": 14, "quantity": 1},
			New:           newProtectivePuts,
		},
		{
			Name:          "covered_calls",
			Description:   "sell ~12% OTM calls targeting ~21 DTE, rolling near the money or near expiry",
			DefaultParams: map[string]float64{"otm_pct": 0.12, "target_dte": 21, "roll_dte": 7, "itm_roll_threshold_pct": 0.02, "quantity": 1},
			New:           newCoveredCalls,
		},
		{
			Name:          "wheel",
			Description:   "cash-secured puts absent an assignment, covered calls once assigned",
			DefaultParams: map[string]float64{"put_otm_pct": 0.06, "put_target_dte": 37, "call_otm_pct": 0.10, "call_target_dte": 21, "quantity": 1},
			New:           newWheel,
		},
		{
			Name:          "butterfly",
			Description:   "30 DTE call butterfly (-5%/ATM/+5%) when IV rank is neither extreme",
			DefaultParams: map[string]float64{"iv_rank_min": 30, "iv_rank_max": 70, "target_dte": 30, "wing_pct": 0.05, "quantity": 1},
			New:           newButterfly,
		},
	}
}

// positionsForUnderlying filters the adapter's open positions to one
// underlying.
func positionsForUnderlying(adapter *options.Adapter, underlying string) []models.OptionPosition {
	var out []models.OptionPosition
	for _, p := range adapter.Positions() {
		if p.Contract.Underlying == underlying {
			out = append(out, p)
		}
	}
	return out
}

func pnlPct(p models.OptionPosition) float64 {
	if p.EntryPriceUSD == 0 {
		return 0
	}
	return p.PnLUSD() / p.EntryPriceUSD
}

func dteOf(p models.OptionPosition, now time.Time) float64 { return p.Contract.DTE(now) }

// --- momentum_options ---------------------------------------------------

type momentumOptionsStrategy struct {
	adapter *options.Adapter
	risk    *risk.OptionsManager
	params  map[string]float64

	mu      sync.Mutex
	history []float64
}

func newMomentumOptions(adapter *options.Adapter, riskMgr *risk.OptionsManager, params map[string]float64) OptionsStrategy {
	return &momentumOptionsStrategy{adapter: adapter, risk: riskMgr, params: params}
}

func (s *momentumOptionsStrategy) recordSpot(spot float64) []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, spot)
	maxLen := paramIntOr(s.params, "lookback", 10) + 1
	if len(s.history) > maxLen {
		s.history = s.history[len(s.history)-maxLen:]
	}
	out := make([]float64, len(s.history))
	copy(out, s.history)
	return out
}

func (s *momentumOptionsStrategy) Evaluate(ctx context.Context, underlying string) ([]models.Action, error) {
	spot, err := s.adapter.GetSpotPrice(ctx, underlying)
	if err != nil {
		return []models.Action{{Type: models.ActionNone, Reason: fmt.Sprintf("spot price unavailable: %v", err)}}, nil
	}
	hist := s.recordSpot(spot)
	lookback := paramIntOr(s.params, "lookback", 10)
	threshold := paramOr(s.params, "threshold", 3)

	if len(hist) <= lookback {
		return []models.Action{{Type: models.ActionNone, Reason: "insufficient spot history for momentum"}}, nil
	}

	roc := indicators.ROC(hist, lookback)
	cur := roc[len(roc)-1]
	if !indicators.IsDefined(cur) {
		return []models.Action{{Type: models.ActionNone, Reason: "momentum not yet defined"}}, nil
	}

	if len(positionsForUnderlying(s.adapter, underlying)) >= 4 {
		return []models.Action{{Type: models.ActionNone, SkipReason: "max 4 option positions per underlying reached"}}, nil
	}

	minDTE, maxDTE := paramIntOr(s.params, "min_dte", 30), paramIntOr(s.params, "max_dte", 45)
	qty := paramIntOr(s.params, "quantity", 1)

	switch {
	case cur > threshold:
		contracts, err := s.adapter.FindOptions(ctx, underlying, models.Call, minDTE, maxDTE, models.ATM, 1)
		if err != nil || len(contracts) == 0 {
			return []models.Action{{Type: models.ActionNone, Reason: "no ATM call found for momentum entry"}}, nil
		}
		c := contracts[0]
		return []models.Action{{Type: models.ActionBuyCall, Underlying: underlying, Strike: c.Strike, Expiry: c.Expiry.Format("2006-01-02"), Quantity: qty, Reason: fmt.Sprintf("momentum %.2f > %.2f", cur, threshold)}}, nil
	case cur < -threshold:
		contracts, err := s.adapter.FindOptions(ctx, underlying, models.Put, minDTE, maxDTE, models.ATM, 1)
		if err != nil || len(contracts) == 0 {
			return []models.Action{{Type: models.ActionNone, Reason: "no ATM put found for momentum entry"}}, nil
		}
		c := contracts[0]
		return []models.Action{{Type: models.ActionBuyPut, Underlying: underlying, Strike: c.Strike, Expiry: c.Expiry.Format("2006-01-02"), Quantity: qty, Reason: fmt.Sprintf("momentum %.2f < -%.2f", cur, threshold)}}, nil
	}
	return []models.Action{{Type: models.ActionNone, Reason: "momentum within neutral band"}}, nil
}

func (s *momentumOptionsStrategy) ManagePositions(ctx context.Context, underlying string) ([]models.Action, error) {
	profitTarget := paramOr(s.params, "profit_target", 0.5)
	lossLimit := paramOr(s.params, "loss_limit", 0.3)
	rollDTE := paramOr(s.params, "roll_dte", 5)
	now := time.Now().UTC()

	var actions []models.Action
	for _, p := range positionsForUnderlying(s.adapter, underlying) {
		pct := pnlPct(p)
		switch {
		case pct >= profitTarget:
			actions = append(actions, models.Action{Type: models.ActionClose, PositionID: p.PositionID, Reason: fmt.Sprintf("profit target %.0f%% reached", profitTarget*100)})
		case pct <= -lossLimit:
			actions = append(actions, models.Action{Type: models.ActionClose, PositionID: p.PositionID, Reason: fmt.Sprintf("loss limit %.0f%% reached", lossLimit*100)})
		case dteOf(p, now) < rollDTE:
			actions = append(actions, models.Action{Type: models.ActionClose, PositionID: p.PositionID, Reason: "dte below exit threshold"})
		}
	}
	return actions, nil
}

// --- vol_mean_reversion --------------------------------------------------

type volMeanReversionStrategy struct {
	adapter *options.Adapter
	risk    *risk.OptionsManager
	params  map[string]float64
}

func newVolMeanReversion(adapter *options.Adapter, riskMgr *risk.OptionsManager, params map[string]float64) OptionsStrategy {
	return &volMeanReversionStrategy{adapter: adapter, risk: riskMgr, params: params}
}

func (s *volMeanReversionStrategy) Evaluate(ctx context.Context, underlying string) ([]models.Action, error) {
	if len(positionsForUnderlying(s.adapter, underlying)) >= 4 {
		return []models.Action{{Type: models.ActionNone, SkipReason: "max 4 option positions per underlying reached"}}, nil
	}

	ivRank, err := s.adapter.GetIVRank(ctx, underlying, 60)
	if err != nil {
		return []models.Action{{Type: models.ActionNone, Reason: fmt.Sprintf("iv rank unavailable: %v", err)}}, nil
	}

	high, low := paramOr(s.params, "iv_rank_high", 75), paramOr(s.params, "iv_rank_low", 25)
	targetDTE := paramIntOr(s.params, "target_dte", 30)
	otmPct := paramOr(s.params, "otm_pct", 0.10)
	qty := paramIntOr(s.params, "quantity", 1)

	switch {
	case ivRank > high:
		return []models.Action{{Type: models.ActionSellStrangle, Underlying: underlying, Quantity: qty, Reason: fmt.Sprintf("iv rank %.1f > %.1f", ivRank, high)}}, nil
	case ivRank < low:
		return []models.Action{{Type: models.ActionBuyStraddle, Underlying: underlying, Quantity: qty, Reason: fmt.Sprintf("iv rank %.1f < %.1f", ivRank, low)}}, nil
	}
	_ = targetDTE
	_ = otmPct
	return []models.Action{{Type: models.ActionNone, Reason: fmt.Sprintf("iv rank %.1f in neutral band", ivRank)}}, nil
}

func (s *volMeanReversionStrategy) ManagePositions(ctx context.Context, underlying string) ([]models.Action, error) {
	profitTarget := paramOr(s.params, "profit_target", 0.5)
	lossLimit := paramOr(s.params, "loss_limit", 0.3)
	rollDTE := paramOr(s.params, "roll_dte", 7)
	now := time.Now().UTC()

	groups := map[string][]models.OptionPosition{}
	for _, p := range positionsForUnderlying(s.adapter, underlying) {
		if p.LegGroup == "" || !strings.HasPrefix(p.LegGroup, "strangle_") && !strings.HasPrefix(p.LegGroup, "straddle_") {
			continue
		}
		groups[p.LegGroup] = append(groups[p.LegGroup], p)
	}

	var actions []models.Action
	for tag, legs := range groups {
		var pnl, minDTE float64
		minDTE = 1e9
		for _, p := range legs {
			pnl += p.PnLUSD()
			if d := dteOf(p, now); d < minDTE {
				minDTE = d
			}
		}
		credit := 0.0
		for _, p := range legs {
			credit += p.EntryPriceUSD
		}
		pct := 0.0
		if credit != 0 {
			pct = pnl / credit
		}
		switch {
		case pct >= profitTarget:
			actions = append(actions, models.Action{Type: models.ActionCloseGroup, LegGroup: tag, Reason: "profit target reached"})
		case pct <= -lossLimit:
			actions = append(actions, models.Action{Type: models.ActionCloseGroup, LegGroup: tag, Reason: "loss limit reached"})
		case minDTE < rollDTE:
			actions = append(actions, models.Action{Type: models.ActionCloseGroup, LegGroup: tag, Reason: "dte below exit threshold"})
		}
	}
	return actions, nil
}

// --- protective_puts -----------------------------------------------------

type protectivePutsStrategy struct {
	adapter *options.Adapter
	risk    *risk.OptionsManager
	params  map[string]float64
}

func newProtectivePuts(adapter *options.Adapter, riskMgr *risk.OptionsManager, params map[string]float64) OptionsStrategy {
	return &protectivePutsStrategy{adapter: adapter, risk: riskMgr, params: params}
}

func heldPuts(adapter *options.Adapter, underlying string) []models.OptionPosition {
	var out []models.OptionPosition
	for _, p := range positionsForUnderlying(adapter, underlying) {
		if p.Contract.Type == models.Put && p.Side == models.SideBuy {
			out = append(out, p)
		}
	}
	return out
}

func (s *protectivePutsStrategy) Evaluate(ctx context.Context, underlying string) ([]models.Action, error) {
	if len(heldPuts(s.adapter, underlying)) > 0 {
		return []models.Action{{Type: models.ActionNone, Reason: "protective put already held"}}, nil
	}

	spot, err := s.adapter.GetSpotPrice(ctx, underlying)
	if err != nil {
		return []models.Action{{Type: models.ActionNone, Reason: fmt.Sprintf("spot price unavailable: %v", err)}}, nil
	}
	targetDTE := paramIntOr(s.params, "target_dte", 45)
	otmPct := paramOr(s.params, "otm_pct", 0.12)
	qty := paramIntOr(s.params, "quantity", 1)

	contracts, err := s.adapter.FindOptions(ctx, underlying, models.Put, targetDTE-7, targetDTE+7, models.OTM, 5)
	if err != nil || len(contracts) == 0 {
		return []models.Action{{Type: models.ActionNone, Reason: "no suitable OTM put found"}}, nil
	}
	targetStrike := spot * (1 - otmPct)
	best := nearestStrike(contracts, targetStrike)

	return []models.Action{{Type: models.ActionBuyPut, Underlying: underlying, Strike: best.Strike, Expiry: best.Expiry.Format("2006-01-02"),
		Quantity: qty, Reason: "protective hedge", IsHedge: true}}, nil
}

func (s *protectivePutsStrategy) ManagePositions(ctx context.Context, underlying string) ([]models.Action, error) {
	rollDTE := paramOr(s.params, "roll_dte", 14)
	now := time.Now().UTC()
	var actions []models.Action
	for _, p := range heldPuts(s.adapter, underlying) {
		if dteOf(p, now) < rollDTE {
			actions = append(actions, models.Action{Type: models.ActionRoll, PositionID: p.PositionID, Reason: "rolling protective put before expiry", IsHedge: true})
		}
	}
	return actions, nil
}

// --- covered_calls ---------------------------------------------------

type coveredCallsStrategy struct {
	adapter *options.Adapter
	risk    *risk.OptionsManager
	params  map[string]float64
}

func newCoveredCalls(adapter *options.Adapter, riskMgr *risk.OptionsManager, params map[string]float64) OptionsStrategy {
	return &coveredCallsStrategy{adapter: adapter, risk: riskMgr, params: params}
}

func heldShortCalls(adapter *options.Adapter, underlying string) []models.OptionPosition {
	var out []models.OptionPosition
	for _, p := range positionsForUnderlying(adapter, underlying) {
		if p.Contract.Type == models.Call && p.Side == models.SideSell {
			out = append(out, p)
		}
	}
	return out
}

func (s *coveredCallsStrategy) Evaluate(ctx context.Context, underlying string) ([]models.Action, error) {
	if len(heldShortCalls(s.adapter, underlying)) > 0 {
		return []models.Action{{Type: models.ActionNone, Reason: "covered call already held"}}, nil
	}

	spot, err := s.adapter.GetSpotPrice(ctx, underlying)
	if err != nil {
		return []models.Action{{Type: models.ActionNone, Reason: fmt.Sprintf("spot price unavailable: %v", err)}}, nil
	}
	targetDTE := paramIntOr(s.params, "target_dte", 21)
	otmPct := paramOr(s.params, "otm_pct", 0.12)
	qty := paramIntOr(s.params, "quantity", 1)

	contracts, err := s.adapter.FindOptions(ctx, underlying, models.Call, targetDTE-5, targetDTE+5, models.OTM, 5)
	if err != nil || len(contracts) == 0 {
		return []models.Action{{Type: models.ActionNone, Reason: "no suitable OTM call found"}}, nil
	}
	targetStrike := spot * (1 + otmPct)
	best := nearestStrike(contracts, targetStrike)

	return []models.Action{{Type: models.ActionSellCall, Underlying: underlying, Strike: best.Strike, Expiry: best.Expiry.Format("2006-01-02"), Quantity: qty, Reason: "covered call income"}}, nil
}

func (s *coveredCallsStrategy) ManagePositions(ctx context.Context, underlying string) ([]models.Action, error) {
	rollDTE := paramOr(s.params, "roll_dte", 7)
	itmThreshold := paramOr(s.params, "itm_roll_threshold_pct", 0.02)
	now := time.Now().UTC()

	spot, err := s.adapter.GetSpotPrice(ctx, underlying)
	if err != nil {
		return nil, nil
	}

	var actions []models.Action
	for _, p := range heldShortCalls(s.adapter, underlying) {
		nearMoney := p.Contract.Strike > 0 && (p.Contract.Strike-spot)/p.Contract.Strike <= itmThreshold
		if dteOf(p, now) < rollDTE || nearMoney {
			actions = append(actions, models.Action{Type: models.ActionRoll, PositionID: p.PositionID, Reason: "rolling covered call"})
		}
	}
	return actions, nil
}

func nearestStrike(contracts []models.OptionContract, target float64) models.OptionContract {
	best := contracts[0]
	bestDist := absf(best.Strike - target)
	for _, c := range contracts[1:] {
		if d := absf(c.Strike - target); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// --- wheel ---------------------------------------------------------------

// SpotPositionChecker lets the wheel strategy tell whether the underlying
// spot shares from an assignment are currently held, deciding which of
// the wheel's two phases applies. When unset, the wheel always runs
// phase 1 (cash-secured put).
type SpotPositionChecker interface {
	HasShares(ctx context.Context, underlying string) (bool, error)
}

type wheelStrategy struct {
	adapter  *options.Adapter
	risk     *risk.OptionsManager
	params   map[string]float64
	checker  SpotPositionChecker
}

func newWheel(adapter *options.Adapter, riskMgr *risk.OptionsManager, params map[string]float64) OptionsStrategy {
	return &wheelStrategy{adapter: adapter, risk: riskMgr, params: params}
}

// WithSpotPositionChecker binds a spot-position lookup to a wheel
// strategy instance constructed via the registry; other strategies are
// left unchanged. The scheduler and the check runner do not call it, so
// the wheels they build run phase 1 only.
func WithSpotPositionChecker(s OptionsStrategy, checker SpotPositionChecker) {
	if w, ok := s.(*wheelStrategy); ok {
		w.checker = checker
	}
}

func (s *wheelStrategy) Evaluate(ctx context.Context, underlying string) ([]models.Action, error) {
	hasShares := false
	if s.checker != nil {
		var err error
		hasShares, err = s.checker.HasShares(ctx, underlying)
		if err != nil {
			return []models.Action{{Type: models.ActionNone, Reason: fmt.Sprintf("spot position lookup failed: %v", err)}}, nil
		}
	}

	spot, err := s.adapter.GetSpotPrice(ctx, underlying)
	if err != nil {
		return []models.Action{{Type: models.ActionNone, Reason: fmt.Sprintf("spot price unavailable: %v", err)}}, nil
	}
	qty := paramIntOr(s.params, "quantity", 1)

	if !hasShares {
		targetDTE := paramIntOr(s.params, "put_target_dte", 37)
		otmPct := paramOr(s.params, "put_otm_pct", 0.06)
		contracts, err := s.adapter.FindOptions(ctx, underlying, models.Put, targetDTE-5, targetDTE+5, models.OTM, 5)
		if err != nil || len(contracts) == 0 {
			return []models.Action{{Type: models.ActionNone, Reason: "no suitable put found for wheel phase 1"}}, nil
		}
		best := nearestStrike(contracts, spot*(1-otmPct))
		return []models.Action{{Type: models.ActionSellPut, Underlying: underlying, Strike: best.Strike, Expiry: best.Expiry.Format("2006-01-02"), Quantity: qty, WheelPhase: 1, Reason: "cash-secured put, no assignment"}}, nil
	}

	targetDTE := paramIntOr(s.params, "call_target_dte", 21)
	otmPct := paramOr(s.params, "call_otm_pct", 0.10)
	contracts, err := s.adapter.FindOptions(ctx, underlying, models.Call, targetDTE-5, targetDTE+5, models.OTM, 5)
	if err != nil || len(contracts) == 0 {
		return []models.Action{{Type: models.ActionNone, Reason: "no suitable call found for wheel phase 2"}}, nil
	}
	best := nearestStrike(contracts, spot*(1+otmPct))
	return []models.Action{{Type: models.ActionSellCall, Underlying: underlying, Strike: best.Strike, Expiry: best.Expiry.Format("2006-01-02"), Quantity: qty, WheelPhase: 2, Reason: "covered call against assigned shares"}}, nil
}

func (s *wheelStrategy) ManagePositions(ctx context.Context, underlying string) ([]models.Action, error) {
	return nil, nil
}

// --- butterfly -------------------------------------------------------------

type butterflyStrategy struct {
	adapter *options.Adapter
	risk    *risk.OptionsManager
	params  map[string]float64
}

func newButterfly(adapter *options.Adapter, riskMgr *risk.OptionsManager, params map[string]float64) OptionsStrategy {
	return &butterflyStrategy{adapter: adapter, risk: riskMgr, params: params}
}

func (s *butterflyStrategy) Evaluate(ctx context.Context, underlying string) ([]models.Action, error) {
	ivRank, err := s.adapter.GetIVRank(ctx, underlying, 60)
	if err != nil {
		return []models.Action{{Type: models.ActionNone, Reason: fmt.Sprintf("iv rank unavailable: %v", err)}}, nil
	}
	ivMin, ivMax := paramOr(s.params, "iv_rank_min", 30), paramOr(s.params, "iv_rank_max", 70)
	if ivRank < ivMin || ivRank > ivMax {
		return []models.Action{{Type: models.ActionNone, Reason: fmt.Sprintf("iv rank %.1f outside butterfly band [%.0f,%.0f]", ivRank, ivMin, ivMax)}}, nil
	}

	spot, err := s.adapter.GetSpotPrice(ctx, underlying)
	if err != nil {
		return []models.Action{{Type: models.ActionNone, Reason: fmt.Sprintf("spot price unavailable: %v", err)}}, nil
	}
	targetDTE := paramIntOr(s.params, "target_dte", 30)
	wingPct := paramOr(s.params, "wing_pct", 0.05)
	qty := paramIntOr(s.params, "quantity", 1)

	chain, err := s.adapter.GetOptionChain(ctx, underlying, targetDTE-5, targetDTE+5, 0)
	if err != nil {
		return []models.Action{{Type: models.ActionNone, Reason: fmt.Sprintf("chain unavailable: %v", err)}}, nil
	}
	var calls []models.OptionContract
	for _, c := range chain {
		if c.Type == models.Call {
			calls = append(calls, c)
		}
	}
	if len(calls) < 3 {
		return []models.Action{{Type: models.ActionNone, Reason: "not enough call strikes for butterfly"}}, nil
	}

	lower := nearestStrike(calls, spot*(1-wingPct))
	middle := nearestStrike(calls, spot)
	upper := nearestStrike(calls, spot*(1+wingPct))
	if lower.Strike == middle.Strike || middle.Strike == upper.Strike {
		return []models.Action{{Type: models.ActionNone, Reason: "degenerate butterfly strikes, chain too sparse"}}, nil
	}

	tag := fmt.Sprintf("butterfly_%d", time.Now().UnixNano())
	expiry := middle.Expiry.Format("2006-01-02")
	return []models.Action{
		{Type: models.ActionBuyCall, Underlying: underlying, Strike: lower.Strike, Expiry: expiry, Quantity: qty, LegGroup: tag, Reason: "butterfly lower wing"},
		{Type: models.ActionSellCall, Underlying: underlying, Strike: middle.Strike, Expiry: expiry, Quantity: qty * 2, LegGroup: tag, Reason: "butterfly body"},
		{Type: models.ActionBuyCall, Underlying: underlying, Strike: upper.Strike, Expiry: expiry, Quantity: qty, LegGroup: tag, Reason: "butterfly upper wing"},
	}, nil
}

func (s *butterflyStrategy) ManagePositions(ctx context.Context, underlying string) ([]models.Action, error) {
	now := time.Now().UTC()
	groups := map[string][]models.OptionPosition{}
	for _, p := range positionsForUnderlying(s.adapter, underlying) {
		if strings.HasPrefix(p.LegGroup, "butterfly_") {
			groups[p.LegGroup] = append(groups[p.LegGroup], p)
		}
	}
	var actions []models.Action
	for tag, legs := range groups {
		minDTE := 1e9
		for _, p := range legs {
			if d := dteOf(p, now); d < minDTE {
				minDTE = d
			}
		}
		if minDTE < 3 {
			actions = append(actions, models.Action{Type: models.ActionCloseGroup, LegGroup: tag, Reason: "butterfly near expiry"})
		}
	}
	return actions, nil
}
