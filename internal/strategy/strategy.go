package strategy

import (
	"strategy-pipeline-go/internal/models"
)

// Source describes a strategy's declared data-access pattern. The auditor
// inspects it statically: any positive offset or open-ended forward slice
// means the strategy claims to read bars that do not exist yet at decision
// time.
type Source struct {
	Name         string `json:"name"`
	Version      string `json:"version"`
	Description  string `json:"description"`
	LookbackBars int    `json:"lookback_bars"` // warm-up bars required before the first valid signal
	// AccessOffsets are the relative bar offsets the signal logic reads;
	// 0 is the current bar, negative values are history.
	AccessOffsets []int `json:"access_offsets"`
	// ForwardSlice is true when the logic declares an open-ended slice
	// extending past the current bar.
	ForwardSlice bool `json:"forward_slice"`
}

// Strategy is the capability interface the backtester consumes. Any type
// exposing these operations is acceptable; there is no registration-time
// type hierarchy. GenerateSignals is called with the bars visible so far,
// oldest first, and emits signals for the most recent bar only.
type Strategy interface {
	Name() string
	Version() string
	Describe() string
	Source() Source
	GenerateSignals(bars []models.MarketBar) []models.Signal
}
