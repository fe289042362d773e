package risk

import (
	"fmt"

	"github.com/stratyard/tradecore/internal/models"
)

// SpotManager is the spec §4.7 spot risk manager: the common rule spine
// (circuit breaker, consecutive losses, daily loss, drawdown, notional
// cap) plus position-count and total-exposure gating.
type SpotManager struct {
	*Manager
}

// NewSpotManager constructs a spot risk manager from its static bounds.
func NewSpotManager(cfg models.RiskConfig) *SpotManager {
	return &SpotManager{Manager: newManager(cfg)}
}

// CheckCanTrade evaluates spec §4.7's ordered rule chain for a proposed
// spot trade. openPositions is the count of currently-held spot
// positions; currentExposure + proposedNotional is compared against
// MaxTotalExposurePct of portfolioValue.
func (m *SpotManager) CheckCanTrade(portfolioValue, proposedNotional, currentExposure float64, openPositions int) models.RiskCheckResult {
	if r := m.checkCommonRules(portfolioValue); !r.Allowed {
		return r
	}
	if r := m.checkNotionalCap(portfolioValue, proposedNotional); !r.Allowed {
		return r
	}
	if m.cfg.MaxNumPositions > 0 && openPositions >= m.cfg.MaxNumPositions {
		return models.Deny(fmt.Sprintf("open positions %d >= max %d", openPositions, m.cfg.MaxNumPositions))
	}
	if m.cfg.MaxTotalExposurePct > 0 && portfolioValue > 0 {
		exposurePct := (currentExposure + proposedNotional) / portfolioValue * 100
		if exposurePct > m.cfg.MaxTotalExposurePct {
			return models.Deny(fmt.Sprintf("total exposure %.2f%% would exceed max %.2f%%", exposurePct, m.cfg.MaxTotalExposurePct))
		}
	}
	return models.Allow("")
}
