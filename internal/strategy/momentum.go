package strategy

import (
	"fmt"

	"strategy-pipeline-go/internal/models"
)

// Momentum buys when the close-to-close return over the lookback exceeds
// the threshold and sells when it drops below the negated threshold.
type Momentum struct {
	Lookback  int
	Threshold float64 // fraction, e.g. 0.03 for 3%
}

// NewMomentum creates a momentum strategy.
func NewMomentum(lookback int, threshold float64) (*Momentum, error) {
	if lookback < 1 {
		return nil, fmt.Errorf("momentum lookback must be >= 1, got %d", lookback)
	}
	if threshold <= 0 {
		return nil, fmt.Errorf("momentum threshold must be > 0, got %f", threshold)
	}
	return &Momentum{Lookback: lookback, Threshold: threshold}, nil
}

func (m *Momentum) Name() string {
	return fmt.Sprintf("momentum_%d", m.Lookback)
}

func (m *Momentum) Version() string { return "1.0" }

func (m *Momentum) Describe() string {
	return fmt.Sprintf("Buys when the %d-bar return exceeds %.1f%%, sells below %.1f%%.",
		m.Lookback, m.Threshold*100, -m.Threshold*100)
}

func (m *Momentum) Source() Source {
	return Source{
		Name:          m.Name(),
		Version:       m.Version(),
		Description:   m.Describe(),
		LookbackBars:  m.Lookback + 1,
		AccessOffsets: []int{-m.Lookback, 0},
	}
}

func (m *Momentum) GenerateSignals(bars []models.MarketBar) []models.Signal {
	if len(bars) < m.Lookback+1 {
		return nil
	}

	last := bars[len(bars)-1]
	ref := bars[len(bars)-1-m.Lookback]
	if ref.Close == 0 {
		return nil
	}
	ret := last.Close/ref.Close - 1

	strength := ret / (2 * m.Threshold)
	if strength < 0 {
		strength = -strength
	}
	if strength > 1 {
		strength = 1
	}

	switch {
	case ret > m.Threshold:
		return []models.Signal{{
			Symbol:       last.Symbol,
			Action:       models.SignalActionBuy,
			Strength:     strength,
			Reason:       fmt.Sprintf("%d-bar return %.2f%% above threshold", m.Lookback, ret*100),
			StrategyName: m.Name(),
		}}
	case ret < -m.Threshold:
		return []models.Signal{{
			Symbol:       last.Symbol,
			Action:       models.SignalActionSell,
			Strength:     strength,
			Reason:       fmt.Sprintf("%d-bar return %.2f%% below threshold", m.Lookback, ret*100),
			StrategyName: m.Name(),
		}}
	}
	return nil
}
