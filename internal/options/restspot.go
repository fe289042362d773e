package options

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// RESTSpotSource fetches a venue's last traded price over its public
// ticker endpoint. It never signs requests and never places orders, so
// unlike venue.LiveAdapter it needs no credentials; both the check runner
// and the scheduler use it as the default SpotPriceSource backing a
// SyntheticChainSource in paper mode.
type RESTSpotSource struct {
	http *resty.Client
}

type tickerResponse struct {
	Last float64 `json:"last"`
}

// NewRESTSpotSource builds a source issuing GET requests against baseURL
// with a 10s timeout (spec §5's recommended HTTP timeout).
func NewRESTSpotSource(baseURL string) *RESTSpotSource {
	return &RESTSpotSource{http: resty.New().SetBaseURL(baseURL).SetTimeout(10 * time.Second)}
}

var _ SpotPriceSource = (*RESTSpotSource)(nil)

func (r *RESTSpotSource) GetPrice(ctx context.Context, symbol string) (float64, error) {
	var out tickerResponse
	resp, err := r.http.R().SetContext(ctx).SetResult(&out).Get("/ticker/" + symbol)
	if err != nil {
		return 0, fmt.Errorf("get ticker %s: %w", symbol, err)
	}
	if resp.IsError() {
		return 0, fmt.Errorf("get ticker %s: venue returned %s", symbol, resp.Status())
	}
	return out.Last, nil
}
