package models

import "time"

// Trade is a completed round trip produced by the backtester: a position
// opened by a buy signal and closed by a sell signal or by the end of a
// walk-forward window. Value object, never persisted.
type Trade struct {
	Symbol     string    `json:"symbol"`
	EntryDate  time.Time `json:"entry_date"`
	ExitDate   time.Time `json:"exit_date"`
	Side       string    `json:"side"` // "long" in the base design
	EntryPrice float64   `json:"entry_price"`
	ExitPrice  float64   `json:"exit_price"`
	PnL        float64   `json:"pnl"`
	ReturnPct  float64   `json:"return_pct"` // fraction, not percent
}
