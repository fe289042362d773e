package options

import (
	"context"

	"github.com/stratyard/tradecore/internal/models"
)

// GetPortfolioValue returns cash + long mark - short mark across every
// open position.
func (a *Adapter) GetPortfolioValue(ctx context.Context) (float64, error) {
	a.mu.Lock()
	cash := a.cash.InexactFloat64()
	positions := make([]models.OptionPosition, 0, len(a.positions))
	for _, p := range a.positions {
		positions = append(positions, *p)
	}
	a.mu.Unlock()

	total := cash
	for _, p := range positions {
		mark := p.CurrentPrice * float64(p.Quantity) * 100
		if p.Side == models.SideBuy {
			total += mark
		} else {
			total -= mark
		}
	}
	return total, nil
}

// GetPortfolioGreeks sums every open position's Greeks weighted by
// sign*quantity (long positive, short negative).
func (a *Adapter) GetPortfolioGreeks() models.Greeks {
	a.mu.Lock()
	defer a.mu.Unlock()

	var total models.Greeks
	for _, p := range a.positions {
		sign := 1.0
		if p.Side == models.SideSell {
			sign = -1.0
		}
		total = total.Add(p.CurrentGreeks.Scale(sign * float64(p.Quantity)))
	}
	return total
}

// GetPremiumAtRisk sums EntryPriceUSD (premium*quantity*100, already the
// whole position's entry cost) over long positions only (short premium is not "at risk" in the same sense — its loss is
// theoretically unbounded and tracked separately by the risk manager's
// Greeks/exposure checks).
func (a *Adapter) GetPremiumAtRisk() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	var total float64
	for _, p := range a.positions {
		if p.Side == models.SideBuy {
			total += p.EntryPriceUSD
		}
	}
	return total
}
