package strategy

import (
	"fmt"

	"strategy-pipeline-go/internal/models"
)

// SMACrossover signals a buy when the fast simple moving average crosses
// above the slow one on the latest bar, and a sell on the opposite cross.
type SMACrossover struct {
	Fast int
	Slow int
}

// NewSMACrossover creates a crossover strategy with the given window
// lengths. Fast must be shorter than slow.
func NewSMACrossover(fast, slow int) (*SMACrossover, error) {
	if fast < 1 || slow <= fast {
		return nil, fmt.Errorf("invalid SMA windows: fast=%d slow=%d", fast, slow)
	}
	return &SMACrossover{Fast: fast, Slow: slow}, nil
}

func (s *SMACrossover) Name() string {
	return fmt.Sprintf("sma_crossover_%d_%d", s.Fast, s.Slow)
}

func (s *SMACrossover) Version() string { return "1.0" }

func (s *SMACrossover) Describe() string {
	return fmt.Sprintf("Buys when the %d-bar SMA crosses above the %d-bar SMA, sells on the cross back down.",
		s.Fast, s.Slow)
}

func (s *SMACrossover) Source() Source {
	offsets := make([]int, s.Slow+1)
	for i := range offsets {
		offsets[i] = -(s.Slow - i) // -slow .. 0
	}
	return Source{
		Name:          s.Name(),
		Version:       s.Version(),
		Description:   s.Describe(),
		LookbackBars:  s.Slow + 1,
		AccessOffsets: offsets,
	}
}

func (s *SMACrossover) GenerateSignals(bars []models.MarketBar) []models.Signal {
	// Need one bar beyond the slow window to detect a cross.
	if len(bars) < s.Slow+1 {
		return nil
	}

	last := bars[len(bars)-1]
	fastNow := sma(bars, len(bars), s.Fast)
	slowNow := sma(bars, len(bars), s.Slow)
	fastPrev := sma(bars, len(bars)-1, s.Fast)
	slowPrev := sma(bars, len(bars)-1, s.Slow)

	switch {
	case fastPrev <= slowPrev && fastNow > slowNow:
		return []models.Signal{{
			Symbol:       last.Symbol,
			Action:       models.SignalActionBuy,
			Strength:     crossStrength(fastNow, slowNow),
			Reason:       fmt.Sprintf("SMA%d crossed above SMA%d", s.Fast, s.Slow),
			StrategyName: s.Name(),
		}}
	case fastPrev >= slowPrev && fastNow < slowNow:
		return []models.Signal{{
			Symbol:       last.Symbol,
			Action:       models.SignalActionSell,
			Strength:     crossStrength(slowNow, fastNow),
			Reason:       fmt.Sprintf("SMA%d crossed below SMA%d", s.Fast, s.Slow),
			StrategyName: s.Name(),
		}}
	}
	return nil
}

// sma averages the n closes ending at bars[end-1].
func sma(bars []models.MarketBar, end, n int) float64 {
	sum := 0.0
	for i := end - n; i < end; i++ {
		sum += bars[i].Close
	}
	return sum / float64(n)
}

// crossStrength maps the relative gap between the averages into [0,1].
func crossStrength(a, b float64) float64 {
	if b == 0 {
		return 1
	}
	gap := (a - b) / b
	if gap < 0 {
		gap = -gap
	}
	// A 2% gap or wider saturates at full strength.
	strength := gap / 0.02
	if strength > 1 {
		strength = 1
	}
	return strength
}
