// Package fetcher implements the spec §2/§4 "data fetcher" component:
// uniform OHLCV retrieval from a venue's historical-candles endpoint,
// paginated forward in fixed-size windows and backed by internal/cache
// so repeated calls for the same range never re-hit the network.
package fetcher

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/stratyard/tradecore/internal/cache"
	"github.com/stratyard/tradecore/internal/models"
	"github.com/stratyard/tradecore/internal/retry"
)

// HistoricalSource is the venue-side candle endpoint a Fetcher pages
// over. A single call returns at most limit bars at or after sinceMs,
// ascending by timestamp; an empty result means no more data.
type HistoricalSource interface {
	GetCandles(ctx context.Context, symbol, timeframe string, sinceMs int64, limit int) ([]models.OHLCVBar, error)
}

// Config tunes pagination. PageSize is the max bars requested per call;
// MaxPages bounds one Fetch invocation's total network round trips.
type Config struct {
	Exchange string
	PageSize int
	MaxPages int
}

// DefaultConfig returns sensible pagination bounds: 500 bars per page,
// 200 pages max (100k bars) per Fetch call.
func DefaultConfig(exchange string) Config {
	return Config{Exchange: exchange, PageSize: 500, MaxPages: 200}
}

// Fetcher retrieves OHLCV history from a venue, caching every page it
// reads and serving cache hits without a network call.
type Fetcher struct {
	source HistoricalSource
	store  *cache.Store
	cfg    Config
	retry  *retry.Client
}

// New constructs a Fetcher. logger may be nil (defaults to log.Default).
func New(source HistoricalSource, store *cache.Store, cfg Config, logger *log.Logger) *Fetcher {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 500
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 200
	}
	return &Fetcher{
		source: source,
		store:  store,
		cfg:    cfg,
		retry:  retry.NewClient(logger, retry.HistoricalPaginatorConfig),
	}
}

// spec §5's fixed retry sleep ladder: 10s, then 5s on each later retry,
// for up to five total attempts per page before surfacing failure.
var paginatorSleeps = []time.Duration{10 * time.Second, 5 * time.Second, 5 * time.Second, 5 * time.Second}

// Fetch returns every bar for (symbol, timeframe) in [startMs, endMs],
// serving from cache first and paginating the venue only for bars the
// cache doesn't already have. endMs of 0 means "through now".
func (f *Fetcher) Fetch(ctx context.Context, symbol, timeframe string, startMs, endMs int64) ([]models.OHLCVBar, error) {
	if endMs == 0 {
		endMs = time.Now().UTC().UnixMilli()
	}

	cached, err := f.store.GetBars(ctx, f.cfg.Exchange, symbol, timeframe, startMs, endMs)
	if err != nil {
		return nil, fmt.Errorf("fetch %s/%s: read cache: %w", symbol, timeframe, err)
	}

	cursor := startMs
	if len(cached) > 0 {
		cursor = cached[len(cached)-1].TimestampMs + 1
	}
	if cursor > endMs {
		return cached, nil
	}

	fresh, err := f.paginate(ctx, symbol, timeframe, cursor, endMs)
	if err != nil {
		if len(cached) > 0 {
			return cached, fmt.Errorf("fetch %s/%s: serving %d cached bars after paginate error: %w", symbol, timeframe, len(cached), err)
		}
		return nil, fmt.Errorf("fetch %s/%s: %w", symbol, timeframe, err)
	}

	if len(fresh) > 0 {
		if err := f.store.UpsertBars(ctx, f.cfg.Exchange, symbol, timeframe, fresh); err != nil {
			return nil, fmt.Errorf("fetch %s/%s: write cache: %w", symbol, timeframe, err)
		}
	}

	return append(cached, fresh...), nil
}

// paginate walks the venue's candle endpoint forward from sinceMs to
// endMs, retrying each page per spec §5's rate-limit policy.
func (f *Fetcher) paginate(ctx context.Context, symbol, timeframe string, sinceMs, endMs int64) ([]models.OHLCVBar, error) {
	var out []models.OHLCVBar
	cursor := sinceMs

	for page := 0; page < f.cfg.MaxPages && cursor <= endMs; page++ {
		var batch []models.OHLCVBar
		err := f.retry.DoFixedBackoff(ctx, fmt.Sprintf("get candles %s/%s", symbol, timeframe), paginatorSleeps, func(ctx context.Context) error {
			b, err := f.source.GetCandles(ctx, symbol, timeframe, cursor, f.cfg.PageSize)
			if err != nil {
				return err
			}
			batch = b
			return nil
		})
		if err != nil {
			return out, err
		}

		if len(batch) == 0 {
			break
		}
		if err := models.ValidateSeries(batch); err != nil {
			return out, fmt.Errorf("invalid candle page at %d: %w", cursor, err)
		}

		for _, b := range batch {
			if b.TimestampMs > endMs {
				return out, nil
			}
			out = append(out, b)
		}

		cursor = batch[len(batch)-1].TimestampMs + 1
		if len(batch) < f.cfg.PageSize {
			break // short page signals end of available history
		}
	}

	return out, nil
}
