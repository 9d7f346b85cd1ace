package models

import "time"

// EquityPoint is one sample of the simulated account equity, taken at the
// close of each evaluated bar.
type EquityPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Equity    float64   `json:"equity"`
}

// BacktestResult is the immutable output of one backtester run. It has no
// identity of its own: it is consumed synchronously by the auditor or
// discarded.
type BacktestResult struct {
	Trades      []Trade            `json:"trades"`
	EquityCurve []EquityPoint      `json:"equity_curve"`
	Metrics     PerformanceSummary `json:"metrics"`
	WindowsUsed int                `json:"windows_used"`
}
