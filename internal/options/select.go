package options

import (
	"context"
	"math"
	"sort"

	"github.com/stratyard/tradecore/internal/models"
)

// FindOptions returns up to maxResults contracts of type within
// [minDTE, maxDTE], sorted by relevance to moneyness: for ATM, ascending
// by |strike-spot|; for OTM, only strikes on the out-of-the-money side
// of spot, nearest to spot first (descending below spot for puts,
// ascending above spot for calls); ITM is the mirror of OTM.
func (a *Adapter) FindOptions(ctx context.Context, underlying string, typ models.OptionType, minDTE, maxDTE int, moneyness models.Moneyness, maxResults int) ([]models.OptionContract, error) {
	chain, err := a.GetOptionChain(ctx, underlying, minDTE, maxDTE, 0)
	if err != nil {
		return nil, err
	}
	spot, err := a.GetSpotPrice(ctx, underlying)
	if err != nil {
		return nil, err
	}

	var candidates []models.OptionContract
	for _, c := range chain {
		if c.Type != typ {
			continue
		}
		if moneyness != models.ATM && relevanceKey(c, typ, moneyness, spot) < 0 {
			continue // strike on the other side of spot from the requested bucket
		}
		candidates = append(candidates, c)
	}

	sort.Slice(candidates, func(i, j int) bool {
		return relevanceKey(candidates[i], typ, moneyness, spot) < relevanceKey(candidates[j], typ, moneyness, spot)
	})

	if maxResults > 0 && len(candidates) > maxResults {
		candidates = candidates[:maxResults]
	}
	return candidates, nil
}

// relevanceKey returns an ascending sort key implementing spec §4.5's
// selection rule for the requested moneyness bucket: nearest-to-spot
// (least OTM/ITM) sorts first, i.e. strikes below spot sort descending
// and strikes above spot sort ascending.
func relevanceKey(c models.OptionContract, typ models.OptionType, moneyness models.Moneyness, spot float64) float64 {
	switch moneyness {
	case models.ATM:
		return math.Abs(c.Strike - spot)
	case models.OTM:
		if typ == models.Put {
			// puts OTM when strike < spot; nearest to spot (highest
			// strike below spot) is most relevant and sorts first.
			return spot - c.Strike
		}
		return c.Strike - spot // calls OTM above spot; nearest above spot sorts first
	case models.ITM:
		if typ == models.Put {
			// puts ITM when strike > spot; nearest to spot sorts first.
			return c.Strike - spot
		}
		return spot - c.Strike
	default:
		return math.Abs(c.Strike - spot)
	}
}

// GetATMIV enriches up to 3 ATM calls around dteTarget and returns the
// first non-zero IV found.
func (a *Adapter) GetATMIV(ctx context.Context, underlying string, dteTarget int) (float64, error) {
	window := 5
	candidates, err := a.FindOptions(ctx, underlying, models.Call, dteTarget-window, dteTarget+window, models.ATM, 3)
	if err != nil {
		return 0, err
	}
	for _, c := range candidates {
		enriched, err := a.EnrichContract(ctx, c)
		if err != nil {
			continue
		}
		if enriched.IV > 0 {
			return enriched.IV, nil
		}
	}
	return 0, nil
}

// GetIVRank returns the percentile rank of the underlying's current ATM
// IV within its recorded IV history over lookbackDays (default 60). With
// fewer than 5 samples it returns the neutral value 50.
func (a *Adapter) GetIVRank(ctx context.Context, underlying string, lookbackDays int) (float64, error) {
	if lookbackDays <= 0 {
		lookbackDays = 60
	}
	current, err := a.GetATMIV(ctx, underlying, 30)
	if err != nil {
		return 0, err
	}

	now := a.now()
	cutoff := now.AddDate(0, 0, -lookbackDays)

	a.mu.Lock()
	var historic []float64
	for _, s := range a.ivHist[underlying] {
		if s.at.After(cutoff) {
			historic = append(historic, s.iv)
		}
	}
	a.mu.Unlock()

	if len(historic) < 5 {
		return 50, nil
	}
	return percentile(current, historic), nil
}

// percentile returns the fraction (0-100) of historic values at or below
// current.
func percentile(current float64, historic []float64) float64 {
	if len(historic) == 0 {
		return 50
	}
	count := 0
	for _, v := range historic {
		if v <= current {
			count++
		}
	}
	rank := 100 * float64(count) / float64(len(historic))
	if rank < 0 {
		rank = 0
	}
	if rank > 100 {
		rank = 100
	}
	return rank
}
