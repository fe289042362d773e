package pricing

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBSPrice_AtExpiryIsIntrinsic(t *testing.T) {
	assert.InDelta(t, 10.0, BSPrice(110, 100, 0, 0.05, 0.2, Call), 1e-9)
	assert.InDelta(t, 0.0, BSPrice(110, 100, 0, 0.05, 0.2, Put), 1e-9)
	assert.InDelta(t, 0.0, BSPrice(90, 100, 0, 0.05, 0.2, Call), 1e-9)
	assert.InDelta(t, 10.0, BSPrice(90, 100, 0, 0.05, 0.2, Put), 1e-9)
}

func TestBSPrice_PutCallParity(t *testing.T) {
	s, k, tYears, r, sigma := 100.0, 95.0, 0.5, 0.03, 0.25
	c := BSPrice(s, k, tYears, r, sigma, Call)
	p := BSPrice(s, k, tYears, r, sigma, Put)
	forward := PutCallParityForward(s, k, tYears, r)
	assert.InDelta(t, forward, c-p, 1e-6)
}

func TestBSGreeks_Signs(t *testing.T) {
	callG := BSGreeks(100, 100, 0.5, 0.03, 0.25, Call)
	putG := BSGreeks(100, 100, 0.5, 0.03, 0.25, Put)

	assert.True(t, callG.Delta >= 0 && callG.Delta <= 1)
	assert.True(t, putG.Delta >= -1 && putG.Delta <= 0)
	assert.True(t, callG.Gamma >= 0)
	assert.True(t, putG.Gamma >= 0)
	assert.True(t, callG.VegaPer1PctVol >= 0)
	assert.True(t, putG.VegaPer1PctVol >= 0)
	// Long theta (holding the option) decays in time.
	assert.True(t, callG.ThetaPerDay <= 0)
	assert.True(t, putG.ThetaPerDay <= 0)
}

func TestBSGreeks_ZeroAtExpiry(t *testing.T) {
	g := BSGreeks(100, 100, 0, 0.03, 0.25, Call)
	assert.Equal(t, Greeks{}, g)

	g = BSGreeks(100, 100, 0.5, 0.03, 0, Call)
	assert.Equal(t, Greeks{}, g)
}

func TestImpliedVol_RoundTrip(t *testing.T) {
	for _, sigma := range []float64{0.05, 0.2, 0.5, 1.0, 3.0} {
		for _, typ := range []OptionType{Call, Put} {
			px := BSPrice(100, 100, 0.5, 0.03, sigma, typ)
			iv := ImpliedVol(px, 100, 100, 0.5, 0.03, typ)
			require.NotZero(t, iv, "sigma=%v type=%v", sigma, typ)
			assert.InDelta(t, sigma, iv, 1e-4, "sigma=%v type=%v", sigma, typ)
		}
	}
}

func TestImpliedVol_BelowIntrinsicReturnsZero(t *testing.T) {
	// A call worth less than its discounted intrinsic has no valid vol.
	iv := ImpliedVol(0.01, 150, 100, 1.0, 0.03, Call)
	assert.Zero(t, iv)
}

func TestNormCDF_Bounds(t *testing.T) {
	assert.InDelta(t, 0.5, NormCDF(0), 1e-9)
	assert.True(t, NormCDF(-10) < 1e-9)
	assert.True(t, NormCDF(10) > 1-1e-9)
	assert.True(t, math.Abs(NormCDF(1)-0.8413) < 1e-3)
}
