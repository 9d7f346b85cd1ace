package models

import (
	"fmt"
	"time"
)

// MarketBar is a single OHLCV observation for one instrument.
// Bars are produced by a data source and never mutated afterwards.
type MarketBar struct {
	Symbol    string    `json:"symbol"`
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// Validate checks the OHLC ordering invariant and that volume is non-negative.
func (b MarketBar) Validate() error {
	hi := b.Open
	if b.Close > hi {
		hi = b.Close
	}
	lo := b.Open
	if b.Close < lo {
		lo = b.Close
	}
	if b.High < hi {
		return fmt.Errorf("bar %s@%s: high %.8f below max(open, close) %.8f",
			b.Symbol, b.Timestamp.Format(time.RFC3339), b.High, hi)
	}
	if b.Low > lo {
		return fmt.Errorf("bar %s@%s: low %.8f above min(open, close) %.8f",
			b.Symbol, b.Timestamp.Format(time.RFC3339), b.Low, lo)
	}
	if b.Volume < 0 {
		return fmt.Errorf("bar %s@%s: negative volume %.8f",
			b.Symbol, b.Timestamp.Format(time.RFC3339), b.Volume)
	}
	return nil
}
