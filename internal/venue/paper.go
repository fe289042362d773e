package venue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stratyard/tradecore/internal/models"
	"github.com/stratyard/tradecore/internal/util"
)

// PriceSource supplies the paper adapter with the venue's current last
// price for a symbol; in a real deployment this is backed by the data
// fetcher / a live ticker feed.
type PriceSource interface {
	GetTicker(ctx context.Context, symbol string) (Ticker, error)
}

// PaperConfig tunes the paper-fill model (spec open question: per-venue
// slippage/commission rather than one global constant).
type PaperConfig struct {
	SlippageBps   int64 // default 5
	CommissionBps int64 // default 10
	QuoteAsset    string
	TickSize      float64 // price increment fills are snapped to; 0 disables snapping
}

// DefaultPaperConfig returns the spec §4.4 defaults: 5bps slippage, 10bps
// commission, USD quote asset, penny tick size.
func DefaultPaperConfig() PaperConfig {
	return PaperConfig{SlippageBps: 5, CommissionBps: 10, QuoteAsset: "USD", TickSize: 0.01}
}

// PaperAdapter simulates order fills against a PriceSource, keeping cash,
// positions, and order/trade history entirely in-process. All mutating
// operations are serialized behind mu; getters return copies.
type PaperAdapter struct {
	mu sync.Mutex

	cfg    PaperConfig
	prices PriceSource

	cash      decimal.Decimal
	positions map[string]models.SpotPosition // asset -> position
	orders    map[string]*models.Order
	history   []models.Order
}

// NewPaperAdapter creates a paper adapter seeded with startingCash in the
// quote asset.
func NewPaperAdapter(prices PriceSource, cfg PaperConfig, startingCash float64) *PaperAdapter {
	if cfg.QuoteAsset == "" {
		cfg.QuoteAsset = "USD"
	}
	return &PaperAdapter{
		cfg:       cfg,
		prices:    prices,
		cash:      decimal.NewFromFloat(startingCash),
		positions: make(map[string]models.SpotPosition),
		orders:    make(map[string]*models.Order),
	}
}

var _ Adapter = (*PaperAdapter)(nil)

func (p *PaperAdapter) GetTicker(ctx context.Context, symbol string) (Ticker, error) {
	return p.prices.GetTicker(ctx, symbol)
}

func (p *PaperAdapter) GetPrice(ctx context.Context, symbol string) (float64, error) {
	t, err := p.prices.GetTicker(ctx, symbol)
	if err != nil {
		return 0, err
	}
	return t.Last, nil
}

func (p *PaperAdapter) GetBalance(ctx context.Context) (map[string]float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := map[string]float64{p.cfg.QuoteAsset: p.cash.InexactFloat64()}
	for asset, pos := range p.positions {
		out[asset] = pos.Quantity
	}
	return out, nil
}

func (p *PaperAdapter) GetPositions(ctx context.Context) (map[string]models.SpotPosition, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]models.SpotPosition, len(p.positions))
	for k, v := range p.positions {
		out[k] = v
	}
	return out, nil
}

func (p *PaperAdapter) GetOpenOrders(ctx context.Context) ([]models.Order, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []models.Order
	for _, o := range p.orders {
		if o.Status == models.OrderStatusOpen || o.Status == models.OrderStatusPending {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (p *PaperAdapter) GetTradeHistory(ctx context.Context) ([]models.Order, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.Order, len(p.history))
	copy(out, p.history)
	return out, nil
}

func (p *PaperAdapter) GetPortfolioValue(ctx context.Context, quote string) (float64, error) {
	p.mu.Lock()
	assets := make(map[string]float64, len(p.positions))
	for k, v := range p.positions {
		assets[k] = v.Quantity
	}
	cash := p.cash.InexactFloat64()
	p.mu.Unlock()

	total := cash
	for asset, qty := range assets {
		if qty == 0 {
			continue
		}
		t, err := p.prices.GetTicker(ctx, asset)
		if err != nil {
			return 0, fmt.Errorf("portfolio value: pricing %s: %w", asset, err)
		}
		total += qty * t.Last
	}
	return total, nil
}

// PlaceOrder fills market orders immediately against the price source;
// limit orders fill instantly when the price is already favorable, else
// stay open; stop/stop-limit orders stay open until CheckPendingStops
// converts them. Any venue exception or insufficient funds/quantity
// yields a failed order with no balance side effects.
func (p *PaperAdapter) PlaceOrder(ctx context.Context, req OrderRequest) (*models.Order, error) {
	ticker, err := p.prices.GetTicker(ctx, req.Symbol)
	if err != nil {
		return p.newFailedOrder(req), nil
	}

	switch req.Type {
	case models.OrderTypeMarket:
		return p.fillMarket(req, ticker.Last)
	case models.OrderTypeLimit:
		if limitIsFavorable(req, ticker.Last) {
			return p.fillMarket(req, req.Price)
		}
		return p.openOrder(req), nil
	case models.OrderTypeStopLoss, models.OrderTypeStopLimit:
		return p.openOrder(req), nil
	default:
		return p.newFailedOrder(req), nil
	}
}

func limitIsFavorable(req OrderRequest, last float64) bool {
	if req.Side == models.OrderSideBuy {
		return last <= req.Price
	}
	return last >= req.Price
}

func (p *PaperAdapter) newFailedOrder(req OrderRequest) *models.Order {
	return &models.Order{
		ID:        uuid.NewString(),
		Symbol:    req.Symbol,
		Side:      req.Side,
		Type:      req.Type,
		Quantity:  req.Quantity,
		Price:     req.Price,
		StopPrice: req.StopPrice,
		Status:    models.OrderStatusFailed,
		CreatedAt: time.Now().UTC(),
	}
}

func (p *PaperAdapter) openOrder(req OrderRequest) *models.Order {
	o := &models.Order{
		ID:        uuid.NewString(),
		Symbol:    req.Symbol,
		Side:      req.Side,
		Type:      req.Type,
		Quantity:  req.Quantity,
		Price:     req.Price,
		StopPrice: req.StopPrice,
		Status:    models.OrderStatusOpen,
		CreatedAt: time.Now().UTC(),
	}
	p.mu.Lock()
	p.orders[o.ID] = o
	p.mu.Unlock()
	return o
}

// fillMarket applies slippage against fillBasePrice, computes commission
// on the filled notional, and mutates cash/positions atomically. It fails
// the order (no side effects) if cash or base quantity is insufficient.
func (p *PaperAdapter) fillMarket(req OrderRequest, fillBasePrice float64) (*models.Order, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	slip := decimal.NewFromInt(p.cfg.SlippageBps).Div(decimal.NewFromInt(10000))
	comm := decimal.NewFromInt(p.cfg.CommissionBps).Div(decimal.NewFromInt(10000))
	one := decimal.NewFromInt(1)
	price := decimal.NewFromFloat(fillBasePrice)
	qty := decimal.NewFromFloat(req.Quantity)

	var fillPrice decimal.Decimal
	if req.Side == models.OrderSideBuy {
		fillPrice = price.Mul(one.Add(slip))
	} else {
		fillPrice = price.Mul(one.Sub(slip))
	}
	if p.cfg.TickSize != 0 {
		snapped := fillPrice.InexactFloat64()
		if req.Side == models.OrderSideBuy {
			snapped = util.CeilToTick(snapped, p.cfg.TickSize)
		} else {
			snapped = util.FloorToTick(snapped, p.cfg.TickSize)
		}
		fillPrice = decimal.NewFromFloat(snapped)
	}
	notional := fillPrice.Mul(qty)
	commission := notional.Mul(comm)

	if req.Side == models.OrderSideBuy {
		totalCost := notional.Add(commission)
		if totalCost.GreaterThan(p.cash) {
			o := p.newFailedOrder(req)
			o.Status = models.OrderStatusFailed
			return o, nil
		}
		p.cash = p.cash.Sub(totalCost)
		pos := p.positions[req.Symbol]
		pos.Symbol = req.Symbol
		pos.Side = models.SideBuy
		newQty := pos.Quantity + req.Quantity
		if newQty != 0 {
			pos.AvgEntryPrice = (pos.AvgEntryPrice*pos.Quantity + fillPrice.InexactFloat64()*req.Quantity) / newQty
		}
		pos.Quantity = newQty
		p.positions[req.Symbol] = pos
	} else {
		pos := p.positions[req.Symbol]
		if pos.Quantity < req.Quantity {
			o := p.newFailedOrder(req)
			o.Status = models.OrderStatusFailed
			return o, nil
		}
		proceeds := notional.Sub(commission)
		p.cash = p.cash.Add(proceeds)
		pos.Quantity -= req.Quantity
		p.positions[req.Symbol] = pos
	}

	o := &models.Order{
		ID:          uuid.NewString(),
		Symbol:      req.Symbol,
		Side:        req.Side,
		Type:        req.Type,
		Quantity:    req.Quantity,
		Price:       req.Price,
		StopPrice:   req.StopPrice,
		Status:      models.OrderStatusFilled,
		FilledPrice: fillPrice.InexactFloat64(),
		FilledQty:   req.Quantity,
		Commission:  commission.InexactFloat64(),
		CreatedAt:   time.Now().UTC(),
	}
	p.orders[o.ID] = o
	p.history = append(p.history, *o)
	return o, nil
}

func (p *PaperAdapter) CancelOrder(ctx context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	o, ok := p.orders[id]
	if !ok {
		return fmt.Errorf("order %s not found", id)
	}
	if o.IsTerminal() {
		return fmt.Errorf("order %s already terminal (%s)", id, o.Status)
	}
	o.Status = models.OrderStatusCancelled
	return nil
}

// CheckPendingStops triggers any open stop/stop-limit order on symbol
// whose trigger has been reached by currentPrice, converting it to a
// market (stop) or limit (stop-limit) fill.
func (p *PaperAdapter) CheckPendingStops(ctx context.Context, symbol string, currentPrice float64) ([]models.Order, error) {
	p.mu.Lock()
	var triggered []*models.Order
	for _, o := range p.orders {
		if o.Symbol != symbol || o.Status != models.OrderStatusOpen {
			continue
		}
		if o.Type != models.OrderTypeStopLoss && o.Type != models.OrderTypeStopLimit {
			continue
		}
		if stopTriggered(o, currentPrice) {
			triggered = append(triggered, o)
		}
	}
	p.mu.Unlock()

	var out []models.Order
	for _, o := range triggered {
		req := OrderRequest{Symbol: o.Symbol, Side: o.Side, Quantity: o.Quantity}
		basePrice := currentPrice
		if o.Type == models.OrderTypeStopLimit {
			basePrice = o.Price
		}
		filled, err := p.fillMarket(req, basePrice)
		if err != nil {
			continue
		}
		p.mu.Lock()
		delete(p.orders, o.ID)
		p.mu.Unlock()
		out = append(out, *filled)
	}
	return out, nil
}

func stopTriggered(o *models.Order, currentPrice float64) bool {
	if o.Side == models.OrderSideSell {
		return currentPrice <= o.StopPrice
	}
	return currentPrice >= o.StopPrice
}

// StreamPrices polls the price source every interval and invokes callback,
// stopping after maxUpdates calls (0 = until ctx is cancelled).
func (p *PaperAdapter) StreamPrices(ctx context.Context, symbol string, interval time.Duration, maxUpdates int, callback func(Ticker)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	count := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			t, err := p.prices.GetTicker(ctx, symbol)
			if err != nil {
				continue
			}
			callback(t)
			count++
			if maxUpdates > 0 && count >= maxUpdates {
				return nil
			}
		}
	}
}
