// Package venue defines the unified spot/perp exchange-adapter contract
// (spec §4.4) and its paper and live implementations. The same interface
// is used whether the underlying venue is a live exchange or the
// in-process paper simulator, so strategies and the scheduler never know
// which they are talking to.
package venue

import (
	"context"
	"time"

	"github.com/stratyard/tradecore/internal/models"
)

// Ticker is a venue's best bid/ask/last snapshot for one symbol.
type Ticker struct {
	Bid  float64
	Ask  float64
	Last float64
}

// Adapter is the venue-agnostic contract every spot/perp exchange
// implementation (paper or live) satisfies.
type Adapter interface {
	GetTicker(ctx context.Context, symbol string) (Ticker, error)
	GetPrice(ctx context.Context, symbol string) (float64, error)

	GetBalance(ctx context.Context) (map[string]float64, error)
	GetPositions(ctx context.Context) (map[string]models.SpotPosition, error)

	PlaceOrder(ctx context.Context, req OrderRequest) (*models.Order, error)
	CancelOrder(ctx context.Context, id string) error
	GetOpenOrders(ctx context.Context) ([]models.Order, error)
	GetTradeHistory(ctx context.Context) ([]models.Order, error)

	GetPortfolioValue(ctx context.Context, quote string) (float64, error)

	// CheckPendingStops evaluates all open stop/stop-limit orders for
	// symbol against currentPrice, converting any whose trigger has been
	// reached into a market/limit fill.
	CheckPendingStops(ctx context.Context, symbol string, currentPrice float64) ([]models.Order, error)

	// StreamPrices is a thin polling (or, for venues that support it,
	// push-based) loop: it calls callback with the latest ticker every
	// interval, up to maxUpdates times (0 = unbounded until ctx is done).
	StreamPrices(ctx context.Context, symbol string, interval time.Duration, maxUpdates int, callback func(Ticker)) error
}

// OrderRequest is the input to PlaceOrder.
type OrderRequest struct {
	Symbol    string
	Side      models.OrderSide
	Type      models.OrderType
	Quantity  float64
	Price     float64 // limit price, required for limit/stop-limit
	StopPrice float64 // stop trigger, required for stop/stop-limit
}
