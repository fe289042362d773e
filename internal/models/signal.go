package models

// SignalValue is the discrete trading intent produced by a spot strategy
// at a single bar.
type SignalValue int

const (
	// SignalSell means a sell/short-entry intent.
	SignalSell SignalValue = -1
	// SignalHold means no actionable intent at this bar.
	SignalHold SignalValue = 0
	// SignalBuy means a buy/long-entry intent.
	SignalBuy SignalValue = 1
)

// SignalBar is one bar of a spot strategy's output series: the edge
// triggered signal plus whichever named indicator values the strategy
// computed for that bar (e.g. "sma_fast", "rsi", "macd_hist").
type SignalBar struct {
	TimestampMs int64              `json:"timestamp_ms"`
	Signal      SignalValue        `json:"signal"`
	Indicators  map[string]float64 `json:"indicators,omitempty"`
}

// Decision is the structured result of evaluating a strategy once: either a
// spot signal series or a list of option actions, plus an optional reason
// or error string. Evaluators never panic or return Go errors for expected
// market-data conditions; they report through Reason/Err instead so the
// scheduler's subject loop can log and continue (spec §7 propagation
// policy).
type Decision struct {
	Signal  SignalValue `json:"signal"`
	Actions []Action    `json:"actions,omitempty"`
	Reason  string      `json:"reason,omitempty"`
	Err     string      `json:"error,omitempty"`
}

// ActionType enumerates the options-strategy intents a Decision can carry.
type ActionType string

const (
	ActionBuyCall      ActionType = "buy_call"
	ActionBuyPut       ActionType = "buy_put"
	ActionSellCall     ActionType = "sell_call"
	ActionSellPut      ActionType = "sell_put"
	ActionBuyStraddle  ActionType = "buy_straddle"
	ActionSellStrangle ActionType = "sell_strangle"
	ActionClose        ActionType = "close"
	ActionCloseGroup   ActionType = "close_group"
	ActionRoll         ActionType = "roll"
	ActionNone         ActionType = "none"
)

// Action is one proposed options-strategy intent. Target fields are
// populated according to ActionType: entries carry strike/expiry/type
// hints, Close/CloseGroup carry a PositionID or LegGroup, Roll carries
// both the closing PositionID and the new target.
type Action struct {
	Type ActionType `json:"type"`

	Underlying string  `json:"underlying,omitempty"`
	Strike     float64 `json:"strike,omitempty"`
	Expiry     string  `json:"expiry,omitempty"` // YYYY-MM-DD
	OptionType string  `json:"option_type,omitempty"`

	SecondStrike float64 `json:"second_strike,omitempty"` // for straddle/strangle far leg

	Quantity int    `json:"quantity,omitempty"`
	Reason   string `json:"reason,omitempty"`

	PositionID string `json:"position_id,omitempty"`
	LegGroup   string `json:"leg_group,omitempty"`

	IsHedge     bool   `json:"is_hedge,omitempty"`
	WheelPhase  int    `json:"wheel_phase,omitempty"`
	Score       float64 `json:"score,omitempty"`
	SkipReason  string `json:"skip_reason,omitempty"`
}
