package options

import (
	"context"
	"fmt"
	"time"

	"github.com/stratyard/tradecore/internal/models"
	"github.com/stratyard/tradecore/internal/pricing"
)

// SpotPriceSource supplies a synthetic chain with the underlying's current
// price. Any venue.Adapter satisfies it through GetPrice. The check
// runner wires a RESTSpotSource; the scheduler CLI wires a RESTSpotSource
// in paper mode and a venue.LiveAdapter with --live.
type SpotPriceSource interface {
	GetPrice(ctx context.Context, symbol string) (float64, error)
}

// SyntheticChainConfig tunes the strike/expiry grid and the flat implied
// volatility a SyntheticChainSource assumes in the absence of a live
// options venue. Per spec's stated non-goal of reproducing third-party
// wire formats, this stands in for a real venue's options REST API: it
// derives a theoretically consistent chain from spot plus one constant,
// rather than fabricating quotes that pretend to be a specific venue's.
type SyntheticChainConfig struct {
	StrikeStepPct float64 // spacing between adjacent strikes, as a fraction of spot
	StrikeCount   int     // strikes on each side of spot
	ExpiriesDTE   []int   // days to expiry offered
	FlatIV        float64 // annualized, used to both price and quote every contract
	RiskFreeRate  float64
}

// DefaultSyntheticChainConfig returns a representative weekly/monthly
// crypto-options ladder: 9 strikes per side spaced 5% apart, 7/14/30/60-day
// expiries, 60% flat IV (typical of BTC/ETH options).
func DefaultSyntheticChainConfig() SyntheticChainConfig {
	return SyntheticChainConfig{
		StrikeStepPct: 0.05,
		StrikeCount:   9,
		ExpiriesDTE:   []int{7, 14, 30, 60},
		FlatIV:        0.60,
		RiskFreeRate:  0.04,
	}
}

// SyntheticChainSource is a ChainSource implementation that builds a
// theoretical options universe around a live spot feed: evenly spaced
// strikes at each of a fixed set of expiries, priced and quoted off
// Black-Scholes at a flat IV. It lets the scheduler and check runner CLIs
// run against any spot price feed without depending on a specific venue's
// options API, which the spec explicitly places out of scope.
type SyntheticChainSource struct {
	prices SpotPriceSource
	cfg    SyntheticChainConfig
	now    func() time.Time
}

// NewSyntheticChainSource builds a SyntheticChainSource reading spot
// prices from prices.
func NewSyntheticChainSource(prices SpotPriceSource, cfg SyntheticChainConfig) *SyntheticChainSource {
	if cfg.StrikeCount <= 0 {
		cfg.StrikeCount = 9
	}
	if cfg.StrikeStepPct <= 0 {
		cfg.StrikeStepPct = 0.05
	}
	if len(cfg.ExpiriesDTE) == 0 {
		cfg.ExpiriesDTE = []int{7, 14, 30, 60}
	}
	if cfg.FlatIV <= 0 {
		cfg.FlatIV = 0.60
	}
	return &SyntheticChainSource{prices: prices, cfg: cfg, now: func() time.Time { return time.Now().UTC() }}
}

var _ ChainSource = (*SyntheticChainSource)(nil)

func (s *SyntheticChainSource) GetSpotPrice(ctx context.Context, underlying string) (float64, error) {
	price, err := s.prices.GetPrice(ctx, underlying)
	if err != nil {
		return 0, fmt.Errorf("synthetic chain spot price %s: %w", underlying, err)
	}
	return price, nil
}

// LoadMarkets builds the full strike/expiry grid around the current spot
// price, each contract already priced (Last) and quoted (Bid/Ask) at the
// configured flat IV.
func (s *SyntheticChainSource) LoadMarkets(ctx context.Context, underlying string) ([]models.OptionContract, error) {
	spot, err := s.GetSpotPrice(ctx, underlying)
	if err != nil {
		return nil, err
	}
	now := s.now()

	var out []models.OptionContract
	for _, dte := range s.cfg.ExpiriesDTE {
		expiry := now.Add(time.Duration(dte) * 24 * time.Hour)
		t := float64(dte) / 365.0
		for i := -s.cfg.StrikeCount; i <= s.cfg.StrikeCount; i++ {
			strike := spot * (1 + float64(i)*s.cfg.StrikeStepPct)
			if strike <= 0 {
				continue
			}
			for _, typ := range []models.OptionType{models.Call, models.Put} {
				pt := pricing.Call
				if typ == models.Put {
					pt = pricing.Put
				}
				theo := pricing.BSPrice(spot, strike, t, s.cfg.RiskFreeRate, s.cfg.FlatIV, pt)
				out = append(out, s.quote(underlying, strike, expiry, typ, theo, spot))
			}
		}
	}
	return out, nil
}

// GetContractTicker recomputes a fresh theoretical quote for c against the
// current spot price and the configured flat IV.
func (s *SyntheticChainSource) GetContractTicker(ctx context.Context, c models.OptionContract) (bid, ask, last float64, openInterest int64, err error) {
	spot, err := s.GetSpotPrice(ctx, c.Underlying)
	if err != nil {
		return 0, 0, 0, 0, err
	}
	t := c.DTE(s.now()) / 365.0
	pt := pricing.Call
	if c.Type == models.Put {
		pt = pricing.Put
	}
	theo := pricing.BSPrice(spot, c.Strike, t, s.cfg.RiskFreeRate, s.cfg.FlatIV, pt)
	q := s.quote(c.Underlying, c.Strike, c.Expiry, c.Type, theo, spot)
	return q.Bid, q.Ask, q.Last, q.OpenInterest, nil
}

// quote applies a 2% half-spread around the theoretical price and a flat
// open-interest placeholder; there is no real order book to read depth
// from.
func (s *SyntheticChainSource) quote(underlying string, strike float64, expiry time.Time, typ models.OptionType, theo, spot float64) models.OptionContract {
	half := theo * 0.02
	if half < 0.01 {
		half = 0.01
	}
	bid := theo - half
	if bid < 0 {
		bid = 0
	}
	return models.OptionContract{
		Underlying:   underlying,
		Strike:       strike,
		Expiry:       expiry,
		Type:         typ,
		Bid:          bid,
		Ask:          theo + half,
		Last:         theo,
		OpenInterest: 1000,
		SpotPrice:    spot,
	}
}
