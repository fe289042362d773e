package venue

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/gorilla/websocket"

	"github.com/stratyard/tradecore/internal/models"
)

// Credentials carries the venue-specific API key/secret pair. Live mode
// may never be entered without both fields populated and an explicit live
// flag from the caller (spec §4.4, §6 Environment).
type Credentials struct {
	APIKey    string
	APISecret string
}

// Empty reports whether no credentials were supplied.
func (c Credentials) Empty() bool { return c.APIKey == "" || c.APISecret == "" }

// LiveEndpoints holds the REST base URL and (optional) websocket URL for
// one venue. Bit-exact request/response shapes are venue-specific and out
// of scope for this core; LiveAdapter issues generic signed REST calls
// through a pluggable RequestSigner.
type LiveEndpoints struct {
	RESTBaseURL string
	WSURL       string // empty disables streaming, StreamPrices falls back to polling
}

// RequestSigner authenticates an outgoing REST request for a specific
// venue (HMAC query signing, header auth, etc). Each venue the bot
// supports provides its own signer; this keeps LiveAdapter venue-agnostic.
type RequestSigner interface {
	Sign(req *resty.Request, creds Credentials)
}

// LiveAdapter places real orders against a venue's REST (and optionally
// websocket) API. It satisfies the same Adapter contract as PaperAdapter
// so the scheduler never special-cases live vs paper.
type LiveAdapter struct {
	http   *resty.Client
	ws     *websocket.Dialer
	creds  Credentials
	ep     LiveEndpoints
	signer RequestSigner
	timeout time.Duration
}

// NewLiveAdapter constructs a live adapter. It refuses to construct with
// empty credentials, enforcing spec §4.4's "never without explicit
// credentials" rule at the earliest possible point.
func NewLiveAdapter(ep LiveEndpoints, creds Credentials, signer RequestSigner) (*LiveAdapter, error) {
	if creds.Empty() {
		return nil, fmt.Errorf("live adapter requires non-empty API key and secret")
	}
	client := resty.New().
		SetBaseURL(ep.RESTBaseURL).
		SetTimeout(10 * time.Second).
		SetRetryCount(0)

	return &LiveAdapter{
		http:    client,
		ws:      websocket.DefaultDialer,
		creds:   creds,
		ep:      ep,
		signer:  signer,
		timeout: 10 * time.Second,
	}, nil
}

var _ Adapter = (*LiveAdapter)(nil)

func (l *LiveAdapter) signedRequest(ctx context.Context) *resty.Request {
	req := l.http.R().SetContext(ctx)
	if l.signer != nil {
		l.signer.Sign(req, l.creds)
	}
	return req
}

func (l *LiveAdapter) GetTicker(ctx context.Context, symbol string) (Ticker, error) {
	var out Ticker
	_, err := l.signedRequest(ctx).SetResult(&out).Get("/ticker/" + symbol)
	if err != nil {
		return Ticker{}, fmt.Errorf("live GetTicker(%s): %w", symbol, err)
	}
	return out, nil
}

func (l *LiveAdapter) GetPrice(ctx context.Context, symbol string) (float64, error) {
	t, err := l.GetTicker(ctx, symbol)
	if err != nil {
		return 0, err
	}
	return t.Last, nil
}

func (l *LiveAdapter) GetBalance(ctx context.Context) (map[string]float64, error) {
	var out map[string]float64
	_, err := l.signedRequest(ctx).SetResult(&out).Get("/account/balance")
	if err != nil {
		return nil, fmt.Errorf("live GetBalance: %w", err)
	}
	return out, nil
}

func (l *LiveAdapter) GetPositions(ctx context.Context) (map[string]models.SpotPosition, error) {
	var out map[string]models.SpotPosition
	_, err := l.signedRequest(ctx).SetResult(&out).Get("/account/positions")
	if err != nil {
		return nil, fmt.Errorf("live GetPositions: %w", err)
	}
	return out, nil
}

func (l *LiveAdapter) PlaceOrder(ctx context.Context, req OrderRequest) (*models.Order, error) {
	var out models.Order
	resp, err := l.signedRequest(ctx).SetBody(req).SetResult(&out).Post("/orders")
	if err != nil || resp.IsError() {
		return &models.Order{Symbol: req.Symbol, Side: req.Side, Type: req.Type,
			Quantity: req.Quantity, Status: models.OrderStatusFailed, CreatedAt: time.Now().UTC()}, nil
	}
	return &out, nil
}

func (l *LiveAdapter) CancelOrder(ctx context.Context, id string) error {
	_, err := l.signedRequest(ctx).Delete("/orders/" + id)
	if err != nil {
		return fmt.Errorf("live CancelOrder(%s): %w", id, err)
	}
	return nil
}

func (l *LiveAdapter) GetOpenOrders(ctx context.Context) ([]models.Order, error) {
	var out []models.Order
	_, err := l.signedRequest(ctx).SetResult(&out).Get("/orders/open")
	if err != nil {
		return nil, fmt.Errorf("live GetOpenOrders: %w", err)
	}
	return out, nil
}

func (l *LiveAdapter) GetTradeHistory(ctx context.Context) ([]models.Order, error) {
	var out []models.Order
	_, err := l.signedRequest(ctx).SetResult(&out).Get("/orders/history")
	if err != nil {
		return nil, fmt.Errorf("live GetTradeHistory: %w", err)
	}
	return out, nil
}

func (l *LiveAdapter) GetPortfolioValue(ctx context.Context, quote string) (float64, error) {
	balances, err := l.GetBalance(ctx)
	if err != nil {
		return 0, err
	}
	total := balances[quote]
	for asset, qty := range balances {
		if asset == quote || qty == 0 {
			continue
		}
		t, err := l.GetTicker(ctx, asset)
		if err != nil {
			return 0, err
		}
		total += qty * t.Last
	}
	return total, nil
}

func (l *LiveAdapter) CheckPendingStops(ctx context.Context, symbol string, currentPrice float64) ([]models.Order, error) {
	var out []models.Order
	_, err := l.signedRequest(ctx).
		SetQueryParam("symbol", symbol).
		SetQueryParam("price", fmt.Sprintf("%.8f", currentPrice)).
		SetResult(&out).Post("/orders/trigger-stops")
	if err != nil {
		return nil, fmt.Errorf("live CheckPendingStops(%s): %w", symbol, err)
	}
	return out, nil
}

// StreamPrices uses the venue's websocket feed when configured, otherwise
// falls back to the same polling loop PaperAdapter uses.
func (l *LiveAdapter) StreamPrices(ctx context.Context, symbol string, interval time.Duration, maxUpdates int, callback func(Ticker)) error {
	if l.ep.WSURL == "" {
		return l.pollPrices(ctx, symbol, interval, maxUpdates, callback)
	}

	conn, _, err := l.ws.DialContext(ctx, l.ep.WSURL+"/ticker/"+symbol, nil)
	if err != nil {
		return l.pollPrices(ctx, symbol, interval, maxUpdates, callback)
	}
	defer conn.Close()

	count := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		var t Ticker
		if err := conn.ReadJSON(&t); err != nil {
			return fmt.Errorf("live StreamPrices(%s): %w", symbol, err)
		}
		callback(t)
		count++
		if maxUpdates > 0 && count >= maxUpdates {
			return nil
		}
	}
}

func (l *LiveAdapter) pollPrices(ctx context.Context, symbol string, interval time.Duration, maxUpdates int, callback func(Ticker)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	count := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			t, err := l.GetTicker(ctx, symbol)
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
