// Package options implements the options-trading adapter: market data
// (spot price, chain, enrichment), contract selection, IV rank, paper
// execution, multi-leg structures, position lifecycle, and portfolio
// aggregation. It is the module's single largest responsibility.
//
// All mutating operations are serialized behind one mutex; multi-leg
// builders fill their legs sequentially but appear atomic to callers —
// any leg failure rolls back cash and any legs already opened.
package options

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/stratyard/tradecore/internal/models"
	"github.com/stratyard/tradecore/internal/pricing"
)

// ChainSource is the venue-side market-data provider the adapter enriches
// on top of: spot prices, the raw option universe, and per-contract
// ticker quotes. A real deployment backs this with a venue's options REST
// API; tests back it with a fixture.
type ChainSource interface {
	GetSpotPrice(ctx context.Context, underlying string) (float64, error)
	// LoadMarkets returns every active contract for underlying, ignoring
	// the DTE window — the adapter itself applies min/max DTE filtering.
	LoadMarkets(ctx context.Context, underlying string) ([]models.OptionContract, error)
	// GetContractTicker returns the live bid/ask/last/open-interest for
	// one contract.
	GetContractTicker(ctx context.Context, c models.OptionContract) (bid, ask, last float64, openInterest int64, err error)
}

// Config tunes commission and risk-free rate assumptions. 3bps commission
// matches spec §4.5's paper-execution fee.
type Config struct {
	CommissionBps   int64
	RiskFreeRate    float64 // annualized, used by the IV solver and Greeks
	SpotCacheTTL    time.Duration
	IVHistoryMaxAge time.Duration // 90 days per spec §4.5
}

// DefaultConfig returns the spec's stated defaults.
func DefaultConfig() Config {
	return Config{
		CommissionBps:   3,
		RiskFreeRate:    0.04,
		SpotCacheTTL:    30 * time.Second,
		IVHistoryMaxAge: 90 * 24 * time.Hour,
	}
}

// TradeRecordType enumerates the kinds of ledger entries the adapter
// appends to its trade history.
type TradeRecordType string

const (
	TradeBuy      TradeRecordType = "buy"
	TradeSell     TradeRecordType = "sell"
	TradeClose    TradeRecordType = "close"
	TradeExercise TradeRecordType = "exercised"
	TradeExpire   TradeRecordType = "expired"
)

// TradeRecord is an append-only ledger entry for one options fill, close,
// or expiry settlement.
type TradeRecord struct {
	Type       TradeRecordType
	PositionID string
	Underlying string
	Quantity   int
	Price      float64
	PnLUSD     float64
	LegGroup   string
	Timestamp  time.Time
}

type ivSample struct {
	at time.Time
	iv float64
}

type spotCacheEntry struct {
	price  float64
	expiry time.Time
}

// Adapter is the options trading adapter: market data, selection, IV
// rank, paper execution, multi-leg structures, and lifecycle, all
// serialized behind one mutex.
type Adapter struct {
	mu sync.Mutex

	source ChainSource
	cfg    Config

	cash decimal.Decimal

	positions map[string]*models.OptionPosition
	groups    map[string]map[string]struct{} // leg_group -> set of position ids
	history   []TradeRecord

	marketsLoaded bool
	marketsForce  map[string][]models.OptionContract // underlying -> cached universe

	spotCache map[string]spotCacheEntry
	ivHist    map[string][]ivSample // underlying -> recorded (timestamp, iv) samples

	spotGroup singleflight.Group // collapses concurrent cache-miss refreshes for the same underlying

	now func() time.Time
}

// NewAdapter constructs an options adapter seeded with startingCash.
func NewAdapter(source ChainSource, cfg Config, startingCash float64) *Adapter {
	if cfg.SpotCacheTTL == 0 {
		cfg.SpotCacheTTL = 30 * time.Second
	}
	if cfg.IVHistoryMaxAge == 0 {
		cfg.IVHistoryMaxAge = 90 * 24 * time.Hour
	}
	return &Adapter{
		source:       source,
		cfg:          cfg,
		cash:         decimal.NewFromFloat(startingCash),
		positions:    make(map[string]*models.OptionPosition),
		groups:       make(map[string]map[string]struct{}),
		marketsForce: make(map[string][]models.OptionContract),
		spotCache:    make(map[string]spotCacheEntry),
		ivHist:       make(map[string][]ivSample),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// LoadMarkets caches the universe of active option instruments for
// underlying. A cached entry is reused unless force is true.
func (a *Adapter) LoadMarkets(ctx context.Context, underlying string, force bool) ([]models.OptionContract, error) {
	a.mu.Lock()
	cached, ok := a.marketsForce[underlying]
	a.mu.Unlock()
	if ok && !force {
		return cached, nil
	}

	contracts, err := a.source.LoadMarkets(ctx, underlying)
	if err != nil {
		return nil, fmt.Errorf("load markets %s: %w", underlying, err)
	}

	a.mu.Lock()
	a.marketsForce[underlying] = contracts
	a.marketsLoaded = true
	a.mu.Unlock()
	return contracts, nil
}

// GetSpotPrice returns the underlying's spot price, cached for
// cfg.SpotCacheTTL. Concurrent misses for the same underlying (several
// scheduler subjects ticking the same symbol at once) collapse into a
// single upstream call via spotGroup.
func (a *Adapter) GetSpotPrice(ctx context.Context, underlying string) (float64, error) {
	a.mu.Lock()
	entry, ok := a.spotCache[underlying]
	now := a.now()
	a.mu.Unlock()
	if ok && now.Before(entry.expiry) {
		return entry.price, nil
	}

	v, err, _ := a.spotGroup.Do(underlying, func() (interface{}, error) {
		price, err := a.source.GetSpotPrice(ctx, underlying)
		if err != nil {
			return nil, err
		}
		a.mu.Lock()
		a.spotCache[underlying] = spotCacheEntry{price: price, expiry: a.now().Add(a.cfg.SpotCacheTTL)}
		a.mu.Unlock()
		return price, nil
	})
	if err != nil {
		return 0, fmt.Errorf("get spot price %s: %w", underlying, err)
	}
	return v.(float64), nil
}

// GetOptionChain returns contracts for underlying within [minDTE, maxDTE],
// truncated to limit (0 = unbounded). Contracts are not yet enriched.
func (a *Adapter) GetOptionChain(ctx context.Context, underlying string, minDTE, maxDTE int, limit int) ([]models.OptionContract, error) {
	universe, err := a.LoadMarkets(ctx, underlying, false)
	if err != nil {
		return nil, err
	}
	now := a.now()
	out := make([]models.OptionContract, 0, len(universe))
	for _, c := range universe {
		dte := c.DTE(now)
		if dte < float64(minDTE) || dte > float64(maxDTE) {
			continue
		}
		out = append(out, c)
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// EnrichContract fetches a live ticker for c, computes implied volatility
// and Greeks, and records (timestamp, iv) into the underlying's rolling
// IV history. It mutates and returns a copy of c.
func (a *Adapter) EnrichContract(ctx context.Context, c models.OptionContract) (models.OptionContract, error) {
	bid, ask, last, oi, err := a.source.GetContractTicker(ctx, c)
	if err != nil {
		return c, fmt.Errorf("enrich contract %s %v %s: %w", c.Underlying, c.Strike, c.Type, err)
	}
	spot, err := a.GetSpotPrice(ctx, c.Underlying)
	if err != nil {
		return c, err
	}

	c.Bid, c.Ask, c.Last, c.OpenInterest, c.SpotPrice = bid, ask, last, oi, spot

	now := a.now()
	t := c.DTE(now) / 365.0
	typ := pricing.Call
	if c.Type == models.Put {
		typ = pricing.Put
	}

	mid := c.Mid()
	if mid > 0 && t > 0 {
		iv := pricing.ImpliedVol(mid, spot, c.Strike, t, a.cfg.RiskFreeRate, typ)
		c.IV = iv
		g := pricing.BSGreeks(spot, c.Strike, t, a.cfg.RiskFreeRate, iv, typ)
		c.Greeks = models.Greeks{Delta: g.Delta, Gamma: g.Gamma, ThetaPerDay: g.ThetaPerDay, VegaPer1PctVol: g.VegaPer1PctVol}
	}

	a.mu.Lock()
	a.recordIVLocked(c.Underlying, c.IV, now)
	a.mu.Unlock()

	return c, nil
}

func (a *Adapter) recordIVLocked(underlying string, iv float64, at time.Time) {
	if iv <= 0 {
		return
	}
	cutoff := at.Add(-a.cfg.IVHistoryMaxAge)
	hist := a.ivHist[underlying]
	hist = append(hist, ivSample{at: at, iv: iv})
	pruned := hist[:0]
	for _, s := range hist {
		if s.at.After(cutoff) {
			pruned = append(pruned, s)
		}
	}
	a.ivHist[underlying] = pruned
}

// Cash returns the adapter's current cash balance.
func (a *Adapter) Cash() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cash.InexactFloat64()
}

// TradeHistory returns a copy of the append-only trade ledger.
func (a *Adapter) TradeHistory() []TradeRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]TradeRecord, len(a.history))
	copy(out, a.history)
	return out
}

// Positions returns a copy of every open position, keyed by position id.
func (a *Adapter) Positions() map[string]models.OptionPosition {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]models.OptionPosition, len(a.positions))
	for id, p := range a.positions {
		out[id] = *p
	}
	return out
}

// SeedPositions installs already-open positions into a freshly
// constructed adapter without recording them as fills or touching cash.
// It exists for the stateless check runner (spec §4.8): the caller's
// existing-positions JSON describes a book the adapter never itself
// traded, so there is no fill to ledger, only state to load.
func (a *Adapter) SeedPositions(positions []models.OptionPosition) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, p := range positions {
		cp := p
		if cp.PositionID == "" {
			cp.PositionID = newPositionID()
		}
		a.positions[cp.PositionID] = &cp
		if cp.LegGroup != "" {
			if a.groups[cp.LegGroup] == nil {
				a.groups[cp.LegGroup] = make(map[string]struct{})
			}
			a.groups[cp.LegGroup][cp.PositionID] = struct{}{}
		}
	}
}

func newPositionID() string { return uuid.NewString() }
