package fetcher

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/stratyard/tradecore/internal/models"
)

// RESTHistoricalSource is a HistoricalSource backed by a venue's public
// candles endpoint. Per the spec's stated non-goal of reproducing a
// specific exchange's bit-exact wire format, it defines its own uniform
// query/response shape; a deployment wires one of these per venue by
// pointing BaseURL at that venue's REST gateway behind a translating
// proxy, or replaces it outright with a venue-specific HistoricalSource.
type RESTHistoricalSource struct {
	http *resty.Client
}

// candleResponse is the uniform wire shape this source expects back:
// ascending-by-timestamp OHLCV rows.
type candleResponse struct {
	Candles []models.OHLCVBar `json:"candles"`
}

// NewRESTHistoricalSource builds a source issuing GET requests against
// baseURL with a 10s timeout (spec §5's recommended HTTP timeout).
func NewRESTHistoricalSource(baseURL string) *RESTHistoricalSource {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10 * time.Second).
		SetRetryCount(0) // retries are the fetcher's paginator's job, not the transport's

	return &RESTHistoricalSource{http: client}
}

var _ HistoricalSource = (*RESTHistoricalSource)(nil)

// GetCandles fetches at most limit bars for (symbol, timeframe) at or
// after sinceMs, ascending by timestamp.
func (s *RESTHistoricalSource) GetCandles(ctx context.Context, symbol, timeframe string, sinceMs int64, limit int) ([]models.OHLCVBar, error) {
	var out candleResponse
	resp, err := s.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"symbol":    symbol,
			"timeframe": timeframe,
			"since_ms":  fmt.Sprintf("%d", sinceMs),
			"limit":     fmt.Sprintf("%d", limit),
		}).
		SetResult(&out).
		Get("/candles")
	if err != nil {
		return nil, fmt.Errorf("get candles %s/%s: %w", symbol, timeframe, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("get candles %s/%s: venue returned %s", symbol, timeframe, resp.Status())
	}
	return out.Candles, nil
}
