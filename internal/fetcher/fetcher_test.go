package fetcher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratyard/tradecore/internal/cache"
	"github.com/stratyard/tradecore/internal/models"
)

type fakeSource struct {
	bars       []models.OHLCVBar
	calls      int
	failFirstN int
}

func (f *fakeSource) GetCandles(ctx context.Context, symbol, timeframe string, sinceMs int64, limit int) ([]models.OHLCVBar, error) {
	f.calls++
	if f.calls <= f.failFirstN {
		return nil, errors.New("rate limit")
	}

	var page []models.OHLCVBar
	for _, b := range f.bars {
		if b.TimestampMs >= sinceMs {
			page = append(page, b)
		}
		if len(page) >= limit {
			break
		}
	}
	return page, nil
}

func genBars(n int, startMs, stepMs int64) []models.OHLCVBar {
	out := make([]models.OHLCVBar, n)
	for i := 0; i < n; i++ {
		ts := startMs + int64(i)*stepMs
		out[i] = models.OHLCVBar{TimestampMs: ts, Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 10}
	}
	return out
}

func newTestFetcher(t *testing.T, src HistoricalSource, pageSize int) (*Fetcher, *cache.Store) {
	t.Helper()
	store, err := cache.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	cfg := Config{Exchange: "binance", PageSize: pageSize, MaxPages: 50}
	return New(src, store, cfg, nil), store
}

// useFastPaginatorSleeps shrinks the production 10s/5s retry ladder to
// milliseconds for the duration of one test, restoring it on cleanup.
func useFastPaginatorSleeps(t *testing.T) {
	t.Helper()
	orig := paginatorSleeps
	paginatorSleeps = []time.Duration{time.Millisecond, time.Millisecond}
	t.Cleanup(func() { paginatorSleeps = orig })
}

func TestFetchPaginatesAcrossMultiplePages(t *testing.T) {
	src := &fakeSource{bars: genBars(25, 1000, 1000)}
	f, _ := newTestFetcher(t, src, 10)

	bars, err := f.Fetch(context.Background(), "BTCUSDT", "1h", 1000, 25000)
	require.NoError(t, err)
	require.Len(t, bars, 25)
	assert.Equal(t, int64(1000), bars[0].TimestampMs)
	assert.Equal(t, int64(25000), bars[len(bars)-1].TimestampMs)
	assert.GreaterOrEqual(t, src.calls, 3, "25 bars at page size 10 needs at least 3 pages")
}

func TestFetchServesSecondCallEntirelyFromCache(t *testing.T) {
	src := &fakeSource{bars: genBars(10, 1000, 1000)}
	f, _ := newTestFetcher(t, src, 100)

	_, err := f.Fetch(context.Background(), "BTCUSDT", "1h", 1000, 10000)
	require.NoError(t, err)
	callsAfterFirst := src.calls

	bars, err := f.Fetch(context.Background(), "BTCUSDT", "1h", 1000, 10000)
	require.NoError(t, err)
	require.Len(t, bars, 10)
	assert.Equal(t, callsAfterFirst, src.calls, "fully cached range must not call the venue again")
}

func TestFetchRetriesTransientErrorsBeforeSucceeding(t *testing.T) {
	useFastPaginatorSleeps(t)
	src := &fakeSource{bars: genBars(5, 1000, 1000), failFirstN: 2}
	f, _ := newTestFetcher(t, src, 100)

	bars, err := f.Fetch(context.Background(), "BTCUSDT", "1h", 1000, 5000)
	require.NoError(t, err)
	require.Len(t, bars, 5)
	assert.Equal(t, 3, src.calls)
}

func TestFetchReturnsCachedBarsOnPersistentFailure(t *testing.T) {
	useFastPaginatorSleeps(t)
	src := &fakeSource{bars: genBars(10, 1000, 1000)}
	f, store := newTestFetcher(t, src, 100)

	_, err := f.Fetch(context.Background(), "BTCUSDT", "1h", 1000, 5000)
	require.NoError(t, err)

	failing := &fakeSource{failFirstN: 1000}
	f2 := New(failing, store, Config{Exchange: "binance", PageSize: 100, MaxPages: 50}, nil)

	bars, err := f2.Fetch(context.Background(), "BTCUSDT", "1h", 1000, 20000)
	require.Error(t, err)
	assert.NotEmpty(t, bars, "a paginate failure must still surface whatever was already cached")
}
