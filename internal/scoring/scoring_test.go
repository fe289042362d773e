package scoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/stratyard/tradecore/internal/models"
)

func call(strike float64, expiry string, entryPrice float64, side models.PositionSide) models.OptionPosition {
	exp, _ := time.Parse("2006-01-02", expiry)
	return models.OptionPosition{
		Contract:   models.OptionContract{Type: models.Call, Strike: strike, Expiry: exp},
		Side:       side,
		EntryPrice: entryPrice,
	}
}

func TestScoreNoPositionsStartsAtOne(t *testing.T) {
	score := Score(Input{Action: models.Action{Type: models.ActionBuyCall}})
	assert.Equal(t, 1.0, score)
}

func TestScoreStartsAtHalfWithExistingPositions(t *testing.T) {
	existing := []models.OptionPosition{call(100, "2026-09-19", 2, models.SideBuy)}
	score := Score(Input{
		Action:            models.Action{Type: models.ActionBuyCall, Strike: 100, Expiry: "2026-09-19"},
		ExistingPositions: existing,
	})
	// same strike (<5% distance => -0.3), overlapping expiry (-0.1): 0.5-0.3-0.1 = 0.1
	assert.InDelta(t, 0.1, score, 1e-9)
}

func TestScoreStrikeDistanceFar(t *testing.T) {
	existing := []models.OptionPosition{call(100, "2026-09-19", 2, models.SideBuy)}
	score := Score(Input{
		Action:            models.Action{Type: models.ActionBuyCall, Strike: 115, Expiry: "2026-10-17"},
		ExistingPositions: existing,
	})
	// 15% away (+0.4), new expiry (+0.3): 0.5+0.4+0.3 = 1.2
	assert.InDelta(t, 1.2, score, 1e-9)
}

func TestScoreStrikeDistanceMid(t *testing.T) {
	existing := []models.OptionPosition{call(100, "2026-09-19", 2, models.SideBuy)}
	score := Score(Input{
		Action:            models.Action{Type: models.ActionBuyCall, Strike: 107, Expiry: "2026-10-17"},
		ExistingPositions: existing,
	})
	// 7% away (+0.2), new expiry (+0.3): 0.5+0.2+0.3 = 1.0
	assert.InDelta(t, 1.0, score, 1e-9)
}

func TestScoreDeltaImpactPenalizesLargerDirectionalDelta(t *testing.T) {
	existing := []models.OptionPosition{call(100, "2026-09-19", 2, models.SideBuy)}
	score := Score(Input{
		Action:            models.Action{Type: models.ActionBuyCall},
		ExistingPositions: existing,
		DeltaBefore:       0.3,
		DeltaAfter:        0.6,
	})
	assert.InDelta(t, 0.2, score, 1e-9) // 0.5 - 0.3
}

func TestScoreDeltaImpactRewardsReduction(t *testing.T) {
	existing := []models.OptionPosition{call(100, "2026-09-19", 2, models.SideBuy)}
	score := Score(Input{
		Action:            models.Action{Type: models.ActionBuyCall},
		ExistingPositions: existing,
		DeltaBefore:       0.6,
		DeltaAfter:        0.3,
	})
	assert.InDelta(t, 0.7, score, 1e-9) // 0.5 + 0.2
}

func TestScorePremiumEfficiencyBonusOnRichSell(t *testing.T) {
	existing := []models.OptionPosition{call(100, "2026-09-19", 2, models.SideBuy)}
	score := Score(Input{
		Action:             models.Action{Type: models.ActionSellCall},
		ExistingPositions:  existing,
		ProposedPremium:    3,
		PriorShortPremiums: []float64{2, 2.2},
	})
	assert.InDelta(t, 0.6, score, 1e-9) // 0.5 + 0.1 (3 > 1.1*2.1)
}

func TestScorePremiumEfficiencyNoBonusWhenNotRicher(t *testing.T) {
	existing := []models.OptionPosition{call(100, "2026-09-19", 2, models.SideBuy)}
	score := Score(Input{
		Action:             models.Action{Type: models.ActionSellCall},
		ExistingPositions:  existing,
		ProposedPremium:    2,
		PriorShortPremiums: []float64{2, 2.2},
	})
	assert.InDelta(t, 0.5, score, 1e-9)
}

func TestAcceptRejectsBelowThreshold(t *testing.T) {
	assert.True(t, Accept(0.3))
	assert.True(t, Accept(0.4))
	assert.False(t, Accept(0.29))
}
