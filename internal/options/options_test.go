package options

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratyard/tradecore/internal/models"
)

// fakeSource is a deterministic ChainSource backing the adapter tests. It
// synthesizes a plausible bid/ask around intrinsic + a flat time-value
// component so the implied-vol solver always has a tradable quote.
type fakeSource struct {
	spot  float64
	chain []models.OptionContract
}

func (f *fakeSource) GetSpotPrice(ctx context.Context, underlying string) (float64, error) {
	return f.spot, nil
}

func (f *fakeSource) LoadMarkets(ctx context.Context, underlying string) ([]models.OptionContract, error) {
	return f.chain, nil
}

func (f *fakeSource) GetContractTicker(ctx context.Context, c models.OptionContract) (bid, ask, last float64, oi int64, err error) {
	intrinsic := c.Intrinsic(f.spot)
	mid := intrinsic + 2.0
	return mid - 0.1, mid + 0.1, mid, 100, nil
}

func newTestChain(underlying string, spot float64, now time.Time) []models.OptionContract {
	var out []models.OptionContract
	strikes := []float64{spot * 0.80, spot * 0.90, spot * 0.95, spot, spot * 1.05, spot * 1.10, spot * 1.20}
	dtes := []int{20, 30, 45, 60}
	for _, dte := range dtes {
		expiry := now.Add(time.Duration(dte) * 24 * time.Hour)
		for _, strike := range strikes {
			out = append(out,
				models.OptionContract{Underlying: underlying, Strike: strike, Expiry: expiry, Type: models.Call},
				models.OptionContract{Underlying: underlying, Strike: strike, Expiry: expiry, Type: models.Put},
			)
		}
	}
	return out
}

func newTestAdapter(spot, cash float64) (*Adapter, *fakeSource) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	src := &fakeSource{spot: spot, chain: newTestChain("BTC", spot, now)}
	a := NewAdapter(src, DefaultConfig(), cash)
	a.now = func() time.Time { return now }
	return a, src
}

func TestBuyOption_DeductsCashWithCommission(t *testing.T) {
	a, _ := newTestAdapter(50000, 100000)
	ctx := context.Background()

	chain, err := a.GetOptionChain(ctx, "BTC", 25, 35, 0)
	require.NoError(t, err)
	require.NotEmpty(t, chain)

	var atmCall models.OptionContract
	for _, c := range chain {
		if c.Type == models.Call && c.Strike == 50000 {
			atmCall = c
		}
	}
	require.NotZero(t, atmCall.Strike)

	cashBefore := a.Cash()
	pos, err := a.BuyOption(ctx, atmCall, 1, "")
	require.NoError(t, err)
	require.NotNil(t, pos)

	assert.Less(t, a.Cash(), cashBefore)
	assert.Equal(t, 1, pos.Quantity)
	assert.Equal(t, models.SideBuy, pos.Side)
	assert.Greater(t, pos.EntryPrice, 0.0)
}

func TestBuyOption_InsufficientCashReturnsNil(t *testing.T) {
	a, _ := newTestAdapter(50000, 10) // far too little cash
	ctx := context.Background()

	chain, err := a.GetOptionChain(ctx, "BTC", 25, 35, 0)
	require.NoError(t, err)

	pos, err := a.BuyOption(ctx, chain[0], 10, "")
	require.NoError(t, err)
	assert.Nil(t, pos)
	assert.InDelta(t, 10.0, a.Cash(), 1e-9)
}

func TestOpenStrangle_LegsShareGroupTag(t *testing.T) {
	a, _ := newTestAdapter(50000, 1000000)
	ctx := context.Background()

	legs, err := a.OpenStrangle(ctx, "BTC", 30, 0.10, models.SideSell, 1)
	require.NoError(t, err)
	require.Len(t, legs, 2)

	assert.NotEmpty(t, legs[0].LegGroup)
	assert.Equal(t, legs[0].LegGroup, legs[1].LegGroup)
	assert.Equal(t, legs[0].EntryTime, legs[1].EntryTime)

	types := map[models.OptionType]bool{legs[0].Contract.Type: true, legs[1].Contract.Type: true}
	assert.True(t, types[models.Call])
	assert.True(t, types[models.Put])
}

func TestClosePosition_RecordsPnLAndRemovesPosition(t *testing.T) {
	a, _ := newTestAdapter(50000, 1000000)
	ctx := context.Background()

	chain, err := a.GetOptionChain(ctx, "BTC", 25, 35, 0)
	require.NoError(t, err)
	var atmCall models.OptionContract
	for _, c := range chain {
		if c.Type == models.Call && c.Strike == 50000 {
			atmCall = c
		}
	}

	pos, err := a.BuyOption(ctx, atmCall, 1, "")
	require.NoError(t, err)
	require.NotNil(t, pos)

	rec, err := a.ClosePosition(ctx, pos.PositionID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, TradeClose, rec.Type)

	positions := a.Positions()
	assert.NotContains(t, positions, pos.PositionID)
}

func TestHandleExpiries_CashSettlesExpiredPosition(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	src := &fakeSource{spot: 55000} // spot above strike => ITM call
	a := NewAdapter(src, DefaultConfig(), 1000000)
	a.now = func() time.Time { return now }

	expiredCall := models.OptionContract{
		Underlying: "BTC", Strike: 50000, Expiry: now.Add(-time.Hour), Type: models.Call,
	}
	src.chain = []models.OptionContract{expiredCall}

	ctx := context.Background()
	pos, err := a.BuyOption(ctx, expiredCall, 1, "")
	require.NoError(t, err)
	require.NotNil(t, pos)

	cashBefore := a.Cash()
	records, err := a.HandleExpiries(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, TradeExercise, records[0].Type) // ITM at expiry

	assert.Greater(t, a.Cash(), cashBefore) // long ITM call settles in the holder's favor
	assert.Empty(t, a.Positions())
}

func TestGetIVRank_NeutralFiftyBelowFiveSamples(t *testing.T) {
	a, _ := newTestAdapter(50000, 1000000)
	rank, err := a.GetIVRank(context.Background(), "BTC", 60)
	require.NoError(t, err)
	assert.Equal(t, 50.0, rank)
}

func TestGetPortfolioGreeks_SumsSignedByQuantity(t *testing.T) {
	a, _ := newTestAdapter(50000, 1000000)
	ctx := context.Background()

	chain, err := a.GetOptionChain(ctx, "BTC", 25, 35, 0)
	require.NoError(t, err)
	var atmCall models.OptionContract
	for _, c := range chain {
		if c.Type == models.Call && c.Strike == 50000 {
			atmCall = c
		}
	}

	_, err = a.BuyOption(ctx, atmCall, 1, "")
	require.NoError(t, err)
	_, err = a.SellOption(ctx, atmCall, 1, "")
	require.NoError(t, err)

	// The fake source is a deterministic function of (strike, spot), so
	// a long and a short leg of the identical contract/qty produce
	// identical Greeks and should cancel exactly when summed signed.
	greeks := a.GetPortfolioGreeks()
	assert.InDelta(t, 0.0, greeks.Delta, 1e-9)
	assert.InDelta(t, 0.0, greeks.Gamma, 1e-9)
}

func TestFindOptions_ATMSortsByDistanceFromSpot(t *testing.T) {
	a, _ := newTestAdapter(50000, 1000000)
	ctx := context.Background()

	results, err := a.FindOptions(ctx, "BTC", models.Call, 25, 35, models.ATM, 3)
	require.NoError(t, err)
	require.NotEmpty(t, results)

	for i := 1; i < len(results); i++ {
		prevDist := abs(results[i-1].Strike - 50000)
		curDist := abs(results[i].Strike - 50000)
		assert.LessOrEqual(t, prevDist, curDist)
	}
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
