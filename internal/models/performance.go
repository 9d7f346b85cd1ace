package models

// PerformanceSummary is a read-only aggregate over a set of trades and the
// equity curve they produced. It is recomputed from scratch on every
// backtest run and never mutated.
//
// Units: SharpeRatio is annualized off daily returns; MaxDrawdown, WinRate
// and ReturnPct values are fractions, not percentages.
type PerformanceSummary struct {
	SharpeRatio float64 `json:"sharpe_ratio"`
	MaxDrawdown float64 `json:"max_drawdown"` // fraction <= 0
	WinRate     float64 `json:"win_rate"`
	TotalPnL    float64 `json:"total_pnl"`
	AvgPnL      float64 `json:"avg_pnl"`
	BestTrade   float64 `json:"best_trade"`
	WorstTrade  float64 `json:"worst_trade"`
	TotalTrades int     `json:"total_trades"`
}
