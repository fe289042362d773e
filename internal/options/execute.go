package options

import (
	"context"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stratyard/tradecore/internal/models"
	"github.com/stratyard/tradecore/internal/util"
)

// BuyOption enriches contract, fills at ask (falling back to mid),
// deducts fill*qty*100 + commission from cash if sufficient (the premium
// is a USD amount per share; no spot conversion is applied), opens
// an OptionPosition, and appends a trade record. Returns nil with no
// side effects on insufficient cash or a non-tradable quote.
func (a *Adapter) BuyOption(ctx context.Context, contract models.OptionContract, qty int, legGroup string) (*models.OptionPosition, error) {
	return a.openLeg(ctx, contract, qty, models.SideBuy, legGroup)
}

// SellOption is BuyOption's symmetric counterpart: it receives premium
// (credited to cash minus commission) instead of paying it.
func (a *Adapter) SellOption(ctx context.Context, contract models.OptionContract, qty int, legGroup string) (*models.OptionPosition, error) {
	return a.openLeg(ctx, contract, qty, models.SideSell, legGroup)
}

func (a *Adapter) openLeg(ctx context.Context, contract models.OptionContract, qty int, side models.PositionSide, legGroup string) (*models.OptionPosition, error) {
	if qty <= 0 {
		return nil, fmt.Errorf("quantity must be positive, got %d", qty)
	}

	enriched, err := a.EnrichContract(ctx, contract)
	if err != nil {
		return nil, err
	}

	fillPrice := enriched.Ask
	if fillPrice <= 0 {
		fillPrice = enriched.Mid()
	}
	if fillPrice <= 0 {
		return nil, nil // non-tradable quote
	}
	fillPrice = util.RoundToTick(fillPrice, 0.01) // options premiums quote to the penny

	a.mu.Lock()
	defer a.mu.Unlock()

	// fillPrice is a USD premium per share; one contract is 100 shares.
	notional := decimal.NewFromFloat(fillPrice).Mul(decimal.NewFromInt(int64(qty))).Mul(decimal.NewFromInt(100))
	commission := notional.Mul(decimal.NewFromInt(a.cfg.CommissionBps)).Div(decimal.NewFromInt(10000))

	now := a.now()

	if side == models.SideBuy {
		totalCost := notional.Add(commission)
		if totalCost.GreaterThan(a.cash) {
			return nil, nil
		}
		a.cash = a.cash.Sub(totalCost)
	} else {
		proceeds := notional.Sub(commission)
		a.cash = a.cash.Add(proceeds)
	}

	pos := &models.OptionPosition{
		PositionID:    newPositionID(),
		Contract:      enriched,
		Side:          side,
		Quantity:      qty,
		EntryPrice:    fillPrice,
		EntryPriceUSD: fillPrice * float64(qty) * 100,
		EntrySpot:     enriched.SpotPrice,
		EntryTime:     now,
		CurrentPrice:  fillPrice,
		CurrentSpot:   enriched.SpotPrice,
		CurrentGreeks: enriched.Greeks,
		LegGroup:      legGroup,
	}
	a.positions[pos.PositionID] = pos
	if legGroup != "" {
		if a.groups[legGroup] == nil {
			a.groups[legGroup] = make(map[string]struct{})
		}
		a.groups[legGroup][pos.PositionID] = struct{}{}
	}

	tradeType := TradeBuy
	if side == models.SideSell {
		tradeType = TradeSell
	}
	a.history = append(a.history, TradeRecord{
		Type: tradeType, PositionID: pos.PositionID, Underlying: enriched.Underlying,
		Quantity: qty, Price: fillPrice, LegGroup: legGroup, Timestamp: now,
	})

	return pos, nil
}

// OpenSpread opens a long leg and a short leg under one leg_group tag. If
// either leg fails, cash and any already-opened leg are rolled back and
// the whole structure fails.
func (a *Adapter) OpenSpread(ctx context.Context, long, short models.OptionContract, qty int, name string) ([]*models.OptionPosition, error) {
	legGroup := groupTag(name)

	longPos, err := a.BuyOption(ctx, long, qty, legGroup)
	if err != nil {
		return nil, err
	}
	if longPos == nil {
		return nil, fmt.Errorf("open_spread %s: long leg non-tradable or insufficient cash", name)
	}

	shortPos, err := a.SellOption(ctx, short, qty, legGroup)
	if err != nil || shortPos == nil {
		a.rollbackLeg(longPos)
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("open_spread %s: short leg non-tradable or insufficient cash, long leg rolled back", name)
	}

	return []*models.OptionPosition{longPos, shortPos}, nil
}

// OpenStraddle buys (side=buy) or sells (side=sell) one ATM call and one
// ATM put around targetDTE, sharing a leg_group.
func (a *Adapter) OpenStraddle(ctx context.Context, underlying string, targetDTE int, side models.PositionSide, qty int) ([]*models.OptionPosition, error) {
	window := 5
	calls, err := a.FindOptions(ctx, underlying, models.Call, targetDTE-window, targetDTE+window, models.ATM, 1)
	if err != nil {
		return nil, err
	}
	puts, err := a.FindOptions(ctx, underlying, models.Put, targetDTE-window, targetDTE+window, models.ATM, 1)
	if err != nil {
		return nil, err
	}
	if len(calls) == 0 || len(puts) == 0 {
		return nil, fmt.Errorf("open_straddle %s: no ATM contracts found near %dDTE", underlying, targetDTE)
	}

	legGroup := groupTag("straddle")
	return a.openPair(ctx, calls[0], puts[0], side, qty, legGroup, "open_straddle")
}

// OpenStrangle buys or sells the legs closest to spot*(1+otmPct) (call)
// and spot*(1-otmPct) (put), sharing a leg_group.
func (a *Adapter) OpenStrangle(ctx context.Context, underlying string, targetDTE int, otmPct float64, side models.PositionSide, qty int) ([]*models.OptionPosition, error) {
	window := 7
	chain, err := a.GetOptionChain(ctx, underlying, targetDTE-window, targetDTE+window, 0)
	if err != nil {
		return nil, err
	}
	spot, err := a.GetSpotPrice(ctx, underlying)
	if err != nil {
		return nil, err
	}

	call, okCall := closestToTarget(chain, models.Call, spot*(1+otmPct))
	put, okPut := closestToTarget(chain, models.Put, spot*(1-otmPct))
	if !okCall || !okPut {
		return nil, fmt.Errorf("open_strangle %s: no contracts found near %dDTE", underlying, targetDTE)
	}

	legGroup := groupTag("strangle")
	return a.openPair(ctx, call, put, side, qty, legGroup, "open_strangle")
}

// closestToTarget returns the contract of type typ whose strike is
// nearest to targetStrike.
func closestToTarget(chain []models.OptionContract, typ models.OptionType, targetStrike float64) (models.OptionContract, bool) {
	var best models.OptionContract
	bestDist := math.Inf(1)
	found := false
	for _, c := range chain {
		if c.Type != typ {
			continue
		}
		dist := math.Abs(c.Strike - targetStrike)
		if dist < bestDist {
			bestDist = dist
			best = c
			found = true
		}
	}
	return best, found
}

func (a *Adapter) openPair(ctx context.Context, call, put models.OptionContract, side models.PositionSide, qty int, legGroup, op string) ([]*models.OptionPosition, error) {
	open := a.BuyOption
	if side == models.SideSell {
		open = a.SellOption
	}

	callPos, err := open(ctx, call, qty, legGroup)
	if err != nil {
		return nil, err
	}
	if callPos == nil {
		return nil, fmt.Errorf("%s: call leg non-tradable or insufficient cash", op)
	}

	putPos, err := open(ctx, put, qty, legGroup)
	if err != nil || putPos == nil {
		a.rollbackLeg(callPos)
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%s: put leg non-tradable or insufficient cash, call leg rolled back", op)
	}

	return []*models.OptionPosition{callPos, putPos}, nil
}

// rollbackLeg reverses a single already-opened leg: restores cash to its
// pre-trade amount (notional and the commission openLeg deducted),
// removes the position, and drops its trade record, used when a
// sibling leg in a multi-leg structure fails.
func (a *Adapter) rollbackLeg(pos *models.OptionPosition) {
	a.mu.Lock()
	defer a.mu.Unlock()

	notional := decimal.NewFromFloat(pos.EntryPrice).Mul(decimal.NewFromInt(int64(pos.Quantity))).Mul(decimal.NewFromInt(100))
	commission := notional.Mul(decimal.NewFromInt(a.cfg.CommissionBps)).Div(decimal.NewFromInt(10000))
	if pos.Side == models.SideBuy {
		a.cash = a.cash.Add(notional).Add(commission)
	} else {
		a.cash = a.cash.Sub(notional).Sub(commission)
	}

	delete(a.positions, pos.PositionID)
	if pos.LegGroup != "" {
		delete(a.groups[pos.LegGroup], pos.PositionID)
		if len(a.groups[pos.LegGroup]) == 0 {
			delete(a.groups, pos.LegGroup)
		}
	}

	for i, rec := range a.history {
		if rec.PositionID == pos.PositionID {
			a.history = append(a.history[:i], a.history[i+1:]...)
			break
		}
	}
}

// groupTag produces a leg_group tag of the form "<name>_<uuid>" (spec's
// S6 scenario expects vol_mean_reversion's strangles to carry a tag
// starting with "strangle_").
func groupTag(name string) string {
	return fmt.Sprintf("%s_%s", name, uuid.NewString())
}
