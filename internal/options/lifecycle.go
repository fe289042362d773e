package options

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/stratyard/tradecore/internal/models"
)

// ClosePosition closes the position at its current bid (long) or ask
// (short), credits/debits cash minus commission, logs PnL, and deletes
// the position.
func (a *Adapter) ClosePosition(ctx context.Context, positionID string) (*TradeRecord, error) {
	a.mu.Lock()
	pos, ok := a.positions[positionID]
	a.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("close_position: position %s not found", positionID)
	}

	enriched, err := a.EnrichContract(ctx, pos.Contract)
	if err != nil {
		return nil, err
	}

	closePrice := enriched.Bid
	if pos.Side == models.SideSell {
		closePrice = enriched.Ask
	}
	if closePrice <= 0 {
		closePrice = enriched.Mid()
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	notional := decimal.NewFromFloat(closePrice).Mul(decimal.NewFromInt(int64(pos.Quantity))).Mul(decimal.NewFromInt(100))
	commission := notional.Mul(decimal.NewFromInt(a.cfg.CommissionBps)).Div(decimal.NewFromInt(10000))

	var pnl float64
	if pos.Side == models.SideBuy {
		a.cash = a.cash.Add(notional.Sub(commission))
		pnl = (closePrice - pos.EntryPrice) * float64(pos.Quantity) * 100
	} else {
		a.cash = a.cash.Sub(notional.Add(commission))
		pnl = (pos.EntryPrice - closePrice) * float64(pos.Quantity) * 100
	}

	now := a.now()
	rec := TradeRecord{
		Type: TradeClose, PositionID: pos.PositionID, Underlying: pos.Contract.Underlying,
		Quantity: pos.Quantity, Price: closePrice, PnLUSD: pnl, LegGroup: pos.LegGroup, Timestamp: now,
	}
	a.history = append(a.history, rec)
	a.deletePositionLocked(pos)

	return &rec, nil
}

// CloseLegGroup closes every position tagged with legGroup.
func (a *Adapter) CloseLegGroup(ctx context.Context, legGroup string) ([]TradeRecord, error) {
	a.mu.Lock()
	ids := make([]string, 0, len(a.groups[legGroup]))
	for id := range a.groups[legGroup] {
		ids = append(ids, id)
	}
	a.mu.Unlock()

	var out []TradeRecord
	for _, id := range ids {
		rec, err := a.ClosePosition(ctx, id)
		if err != nil {
			return out, fmt.Errorf("close_leg_group %s: %w", legGroup, err)
		}
		out = append(out, *rec)
	}
	return out, nil
}

// HandleExpiries runs at the top of each scheduler tick: every expired
// position is cash-settled at intrinsic value against current spot and
// removed, emitting an EXERCISED (non-zero intrinsic) or EXPIRED (zero
// intrinsic) trade record.
func (a *Adapter) HandleExpiries(ctx context.Context) ([]TradeRecord, error) {
	now := a.now()

	a.mu.Lock()
	var expired []*models.OptionPosition
	for _, pos := range a.positions {
		if pos.IsExpired(now) {
			expired = append(expired, pos)
		}
	}
	a.mu.Unlock()

	var out []TradeRecord
	for _, pos := range expired {
		spot, err := a.GetSpotPrice(ctx, pos.Contract.Underlying)
		if err != nil {
			return out, err
		}
		intrinsic := pos.Contract.Intrinsic(spot)

		a.mu.Lock()
		settlement := decimal.NewFromFloat(intrinsic).Mul(decimal.NewFromInt(int64(pos.Quantity))).Mul(decimal.NewFromInt(100))
		var pnl float64
		if pos.Side == models.SideBuy {
			a.cash = a.cash.Add(settlement)
			pnl = (intrinsic - pos.EntryPrice) * float64(pos.Quantity) * 100
		} else {
			a.cash = a.cash.Sub(settlement)
			pnl = (pos.EntryPrice - intrinsic) * float64(pos.Quantity) * 100
		}

		recType := TradeExpire
		if intrinsic > 0 {
			recType = TradeExercise
		}
		rec := TradeRecord{
			Type: recType, PositionID: pos.PositionID, Underlying: pos.Contract.Underlying,
			Quantity: pos.Quantity, Price: intrinsic, PnLUSD: pnl, LegGroup: pos.LegGroup, Timestamp: now,
		}
		a.history = append(a.history, rec)
		a.deletePositionLocked(pos)
		a.mu.Unlock()

		out = append(out, rec)
	}
	return out, nil
}

// UpdatePositions re-marks every open position against its current
// ticker, spot price, IV, and Greeks.
func (a *Adapter) UpdatePositions(ctx context.Context) error {
	a.mu.Lock()
	ids := make([]string, 0, len(a.positions))
	for id := range a.positions {
		ids = append(ids, id)
	}
	a.mu.Unlock()

	for _, id := range ids {
		a.mu.Lock()
		pos, ok := a.positions[id]
		a.mu.Unlock()
		if !ok {
			continue
		}

		enriched, err := a.EnrichContract(ctx, pos.Contract)
		if err != nil {
			continue
		}

		a.mu.Lock()
		if cur, ok := a.positions[id]; ok {
			cur.CurrentPrice = enriched.Mid()
			cur.CurrentSpot = enriched.SpotPrice
			cur.CurrentGreeks = enriched.Greeks
			cur.Contract = enriched
		}
		a.mu.Unlock()
	}
	return nil
}

// deletePositionLocked removes pos from the position map and its group
// index. Callers must hold a.mu.
func (a *Adapter) deletePositionLocked(pos *models.OptionPosition) {
	delete(a.positions, pos.PositionID)
	if pos.LegGroup != "" {
		delete(a.groups[pos.LegGroup], pos.PositionID)
		if len(a.groups[pos.LegGroup]) == 0 {
			delete(a.groups, pos.LegGroup)
		}
	}
}
