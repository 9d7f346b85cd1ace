package backtest

import "fmt"

// Config holds the walk-forward parameters for one backtest run.
// TrainWindow bars are context the strategy may consult for lookback
// indicators but never trades on; TestWindow bars are evaluated bar by
// bar; Step advances the window start between folds. Step smaller than
// TestWindow produces overlapping evaluation slices, which is permitted.
type Config struct {
	TrainWindow  int
	TestWindow   int
	Step         int
	RiskFreeRate float64 // annual, e.g. 0.05
}

// Validate rejects configurations before any simulation begins.
func (c Config) Validate() error {
	if c.TrainWindow < 1 {
		return fmt.Errorf("train window must be >= 1, got %d", c.TrainWindow)
	}
	if c.TestWindow < 1 {
		return fmt.Errorf("test window must be >= 1, got %d", c.TestWindow)
	}
	if c.Step < 1 {
		return fmt.Errorf("step must be >= 1, got %d", c.Step)
	}
	return nil
}
