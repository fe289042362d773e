package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratyard/tradecore/internal/models"
	"github.com/stratyard/tradecore/internal/options"
	"github.com/stratyard/tradecore/internal/registry"
	"github.com/stratyard/tradecore/internal/risk"
)

// fakeChainSource is a minimal deterministic options.ChainSource for
// exercising buildSubjects without a real venue.
type fakeChainSource struct {
	spot float64
}

func (f fakeChainSource) GetSpotPrice(ctx context.Context, underlying string) (float64, error) {
	return f.spot, nil
}

func (f fakeChainSource) LoadMarkets(ctx context.Context, underlying string) ([]models.OptionContract, error) {
	return nil, nil
}

func (f fakeChainSource) GetContractTicker(ctx context.Context, c models.OptionContract) (bid, ask, last float64, oi int64, err error) {
	return 0, 0, 0, 0, nil
}

func defaultTestRiskConfig() models.OptionsRiskConfig {
	return models.OptionsRiskConfig{
		RiskConfig: models.RiskConfig{
			MaxPositionSizePct:   50,
			MaxPositionSizeUSD:   1_000_000,
			MaxNumPositions:      20,
			MaxTotalExposurePct:  100,
			MaxConsecutiveLosses: 5,
			DailyLossLimitPct:    5,
			MaxDrawdownPct:       20,
			CooldownMinutes:      60,
		},
		MaxPositions:              20,
		MaxPositionsPerUnderlying: 4,
		MaxPremiumAtRiskPct:       50,
		MinDelta:                  -50,
		MaxDelta:                  50,
		MaxAbsGamma:               1_000_000,
		MaxAbsVega:                1_000_000,
	}
}

func TestSplitAndTrimParsesCommaSeparatedList(t *testing.T) {
	assert.Equal(t, []string{"BTC-USD", "ETH-USD"}, splitAndTrim(" BTC-USD, ETH-USD "))
}

func TestSplitAndTrimReturnsNilForEmptyInput(t *testing.T) {
	assert.Nil(t, splitAndTrim("  "))
}

func TestBuildSubjectsBindsEveryStrategyToEverySymbol(t *testing.T) {
	reg := registry.NewRegistry()
	source := fakeChainSource{spot: 50000}
	adapter := options.NewAdapter(source, options.DefaultConfig(), 100_000)
	riskMgr := risk.NewOptionsManager(defaultTestRiskConfig())

	subjects, err := buildSubjects(reg, adapter, riskMgr, []string{"momentum_options", "wheel"}, []string{"BTC-USD", "ETH-USD"})
	require.NoError(t, err)
	assert.Len(t, subjects, 4)
}

func TestBuildSubjectsRejectsUnknownStrategy(t *testing.T) {
	reg := registry.NewRegistry()
	source := fakeChainSource{spot: 50000}
	adapter := options.NewAdapter(source, options.DefaultConfig(), 100_000)
	riskMgr := risk.NewOptionsManager(defaultTestRiskConfig())

	_, err := buildSubjects(reg, adapter, riskMgr, []string{"not_a_real_strategy"}, []string{"BTC-USD"})
	assert.Error(t, err)
}

func TestSpotPriceSourceRejectsLiveModeWithoutCredentials(t *testing.T) {
	_, err := spotPriceSource("http://localhost:8080", true, "", "")
	assert.Error(t, err)
}

func TestSpotPriceSourceAllowsPaperModeWithoutCredentials(t *testing.T) {
	source, err := spotPriceSource("http://localhost:8080", false, "", "")
	require.NoError(t, err)
	assert.NotNil(t, source)
}

func TestSpotPriceSourceAcceptsLiveModeWithCredentials(t *testing.T) {
	source, err := spotPriceSource("http://localhost:8080", true, "key", "secret")
	require.NoError(t, err)
	assert.NotNil(t, source)
}
