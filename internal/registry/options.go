package registry

import (
	"context"

	"github.com/stratyard/tradecore/internal/models"
	"github.com/stratyard/tradecore/internal/options"
	"github.com/stratyard/tradecore/internal/risk"
)

// OptionsStrategy is the spec §4.3 stateful options-strategy shape: an
// object bound at construction time to its adapter, risk manager, and
// parameters, exposing Evaluate (propose new entries) and
// ManagePositions (propose exits/rolls for positions it already holds).
type OptionsStrategy interface {
	Evaluate(ctx context.Context, underlying string) ([]models.Action, error)
	ManagePositions(ctx context.Context, underlying string) ([]models.Action, error)
}

// OptionsStrategyNewFunc constructs a bound strategy instance. Strategies
// hold references to adapter/risk; they never own them (spec §9 "stateful
// objects with bound collaborators").
type OptionsStrategyNewFunc func(adapter *options.Adapter, riskMgr *risk.OptionsManager, params map[string]float64) OptionsStrategy

// OptionsStrategyEntry is one registry row for an options strategy.
type OptionsStrategyEntry struct {
	Name          string
	Description   string
	DefaultParams map[string]float64
	New           OptionsStrategyNewFunc
}
