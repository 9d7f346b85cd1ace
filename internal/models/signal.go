package models

const (
	SignalActionBuy  = "buy"
	SignalActionSell = "sell"
)

// Signal is an immutable trading decision emitted by a strategy for the
// most recent bar it has seen. It never references future bars.
type Signal struct {
	Symbol       string  `json:"symbol"`
	Action       string  `json:"action"` // "buy" or "sell"
	Strength     float64 `json:"strength"`
	Reason       string  `json:"reason"`
	StrategyName string  `json:"strategy_name"`
}
