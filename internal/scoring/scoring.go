// Package scoring implements the spec §4.6 trade-scoring algorithm: a
// single function shared by the long-running scheduler's optional entry
// gate and the stateless check runner, so both apply the exact same
// rule set to a proposed action.
package scoring

import (
	"math"

	"github.com/stratyard/tradecore/internal/models"
)

// RejectThreshold is the minimum score a proposed action must reach to
// survive (score < RejectThreshold is rejected).
const RejectThreshold = 0.3

// Input bundles everything Score needs to judge one proposed action
// against the book it would land in.
type Input struct {
	Action models.Action

	// ExistingPositions are the current open option positions for the
	// same underlying as Action, before this action executes.
	ExistingPositions []models.OptionPosition

	// DeltaBefore/DeltaAfter are portfolio delta for the same underlying
	// before and after the proposed action, used for the delta-impact
	// adjustment.
	DeltaBefore float64
	DeltaAfter  float64

	// ProposedPremium is the proposed action's per-share premium (only
	// meaningful for sell actions); zero means "unknown, skip the
	// premium-efficiency adjustment".
	ProposedPremium float64

	// PriorShortPremiums are the entry prices of existing short legs of
	// the same option type, used as the premium-efficiency baseline.
	PriorShortPremiums []float64
}

// Score computes the spec §4.6 trade score: 0.5 baseline (1.0 with no
// existing positions), adjusted for strike distance, expiry overlap,
// delta impact, and premium efficiency on sells.
func Score(in Input) float64 {
	score := 0.5
	if len(in.ExistingPositions) == 0 {
		score = 1.0
	}

	if typ, ok := legType(in.Action.Type); ok && in.Action.Strike > 0 {
		if nearest, found := nearestSameType(in.ExistingPositions, typ, in.Action.Strike); found {
			distPct := math.Abs(in.Action.Strike-nearest.Contract.Strike) / nearest.Contract.Strike * 100
			switch {
			case distPct > 10:
				score += 0.4
			case distPct >= 5:
				score += 0.2
			default:
				score -= 0.3
			}
		}

		if in.Action.Expiry != "" {
			if overlapsExpiry(in.ExistingPositions, typ, in.Action.Expiry) {
				score -= 0.1
			} else {
				score += 0.3
			}
		}
	}

	if math.Abs(in.DeltaAfter) > math.Abs(in.DeltaBefore) && math.Abs(in.DeltaAfter) > 0.5 {
		score -= 0.3
	} else if math.Abs(in.DeltaAfter) < math.Abs(in.DeltaBefore) {
		score += 0.2
	}

	if isSell(in.Action.Type) && in.ProposedPremium > 0 && len(in.PriorShortPremiums) > 0 {
		if in.ProposedPremium > average(in.PriorShortPremiums)*1.1 {
			score += 0.1
		}
	}

	return score
}

// Accept reports whether score clears the reject threshold.
func Accept(score float64) bool { return score >= RejectThreshold }

func legType(t models.ActionType) (models.OptionType, bool) {
	switch t {
	case models.ActionBuyCall, models.ActionSellCall:
		return models.Call, true
	case models.ActionBuyPut, models.ActionSellPut:
		return models.Put, true
	default:
		return "", false
	}
}

func isSell(t models.ActionType) bool {
	return t == models.ActionSellCall || t == models.ActionSellPut || t == models.ActionSellStrangle
}

func nearestSameType(positions []models.OptionPosition, typ models.OptionType, targetStrike float64) (models.OptionPosition, bool) {
	var best models.OptionPosition
	bestDist := math.Inf(1)
	found := false
	for _, p := range positions {
		if p.Contract.Type != typ {
			continue
		}
		d := math.Abs(p.Contract.Strike - targetStrike)
		if d < bestDist {
			bestDist = d
			best = p
			found = true
		}
	}
	return best, found
}

func overlapsExpiry(positions []models.OptionPosition, typ models.OptionType, expiry string) bool {
	for _, p := range positions {
		if p.Contract.Type == typ && p.Contract.Expiry.Format("2006-01-02") == expiry {
			return true
		}
	}
	return false
}

func average(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
