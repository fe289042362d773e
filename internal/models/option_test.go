package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOptionContract_MidFallsBackToLast(t *testing.T) {
	c := OptionContract{Last: 1.23}
	assert.Equal(t, 1.23, c.Mid())

	c.Bid, c.Ask = 1.0, 1.5
	assert.Equal(t, 1.25, c.Mid())
}

func TestOptionContract_Moneyness(t *testing.T) {
	tests := []struct {
		name   string
		strike float64
		typ    OptionType
		spot   float64
		want   Moneyness
	}{
		{"atm call exact", 100, Call, 100, ATM},
		{"atm band call", 101, Call, 100, ATM},
		{"otm call", 110, Call, 100, OTM},
		{"itm call", 90, Call, 100, ITM},
		{"otm put", 90, Put, 100, OTM},
		{"itm put", 110, Put, 100, ITM},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := OptionContract{Strike: tt.strike, Type: tt.typ, SpotPrice: tt.spot}
			assert.Equal(t, tt.want, c.Moneyness())
		})
	}
}

func TestOptionContract_DTEClampsAtZero(t *testing.T) {
	now := time.Now().UTC()
	c := OptionContract{Expiry: now.Add(-48 * time.Hour)}
	assert.Equal(t, 0.0, c.DTE(now))

	c.Expiry = now.Add(48 * time.Hour)
	assert.InDelta(t, 2.0, c.DTE(now), 0.01)
}

func TestOptionPosition_PnLUSD(t *testing.T) {
	long := OptionPosition{Side: SideBuy, Quantity: 2, EntryPrice: 1.0, CurrentPrice: 1.5}
	assert.InDelta(t, 100.0, long.PnLUSD(), 1e-9) // (1.5-1.0)*2*100

	short := OptionPosition{Side: SideSell, Quantity: 2, EntryPrice: 1.0, CurrentPrice: 1.5}
	assert.InDelta(t, -100.0, short.PnLUSD(), 1e-9)
}

func TestOptionPosition_IsExpired(t *testing.T) {
	now := time.Now().UTC()
	p := OptionPosition{Contract: OptionContract{Expiry: now.Add(-time.Minute)}}
	assert.True(t, p.IsExpired(now))

	p.Contract.Expiry = now.Add(time.Minute)
	assert.False(t, p.IsExpired(now))
}
