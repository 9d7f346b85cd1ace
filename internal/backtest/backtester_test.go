package backtest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"strategy-pipeline-go/internal/models"
	"strategy-pipeline-go/internal/strategy"
)

// risingBars builds a monotonically rising synthetic daily series.
func risingBars(n int) []models.MarketBar {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]models.MarketBar, n)
	for i := 0; i < n; i++ {
		price := 100.0 + float64(i)
		bars[i] = models.MarketBar{
			Symbol:    "TEST",
			Timestamp: start.AddDate(0, 0, i),
			Open:      price,
			High:      price + 1,
			Low:       price - 1,
			Close:     price + 0.5,
			Volume:    1000,
		}
	}
	return bars
}

// scriptedStrategy emits a fixed action whenever the visible history
// reaches a scripted length. Length L means the decision bar is index L-1.
type scriptedStrategy struct {
	buyAt  map[int]bool
	sellAt map[int]bool
	seen   []int // visible lengths observed, in call order
}

func (s *scriptedStrategy) Name() string     { return "scripted" }
func (s *scriptedStrategy) Version() string  { return "test" }
func (s *scriptedStrategy) Describe() string { return "scripted test strategy" }
func (s *scriptedStrategy) Source() strategy.Source {
	return strategy.Source{Name: "scripted", AccessOffsets: []int{0}}
}

func (s *scriptedStrategy) GenerateSignals(bars []models.MarketBar) []models.Signal {
	s.seen = append(s.seen, len(bars))
	last := bars[len(bars)-1]
	if s.sellAt[len(bars)] {
		return []models.Signal{{Symbol: last.Symbol, Action: models.SignalActionSell, Strength: 1, StrategyName: "scripted"}}
	}
	if s.buyAt[len(bars)] {
		return []models.Signal{{Symbol: last.Symbol, Action: models.SignalActionBuy, Strength: 1, StrategyName: "scripted"}}
	}
	return nil
}

func TestRun_CleanTrendScenario(t *testing.T) {
	// Buy on the first bar of the test slice, sell on its last bar, over
	// 100 rising bars with train=20 test=80 step=80: exactly one window
	// and one winning trade.
	bars := risingBars(100)
	strat := &scriptedStrategy{
		buyAt:  map[int]bool{21: true},  // decision bar index 20
		sellAt: map[int]bool{100: true}, // decision bar index 99
	}

	runner := NewRunner(zap.NewNop())
	result, err := runner.Run(strat, bars, Config{TrainWindow: 20, TestWindow: 80, Step: 80, RiskFreeRate: 0.05})
	require.NoError(t, err)

	assert.Equal(t, 1, result.WindowsUsed)
	require.Len(t, result.Trades, 1)
	trade := result.Trades[0]
	assert.Greater(t, trade.PnL, 0.0)
	assert.Equal(t, 1.0, result.Metrics.WinRate)
	// No bar follows the sell decision, so the exit is the final close.
	assert.Equal(t, bars[99].Close, trade.ExitPrice)
}

func TestRun_ExecutionLag(t *testing.T) {
	// A buy decided on bar t fills at bar t+1's open, never bar t's close.
	bars := risingBars(100)
	strat := &scriptedStrategy{
		buyAt:  map[int]bool{30: true}, // decision bar index 29
		sellAt: map[int]bool{50: true}, // decision bar index 49
	}

	runner := NewRunner(zap.NewNop())
	result, err := runner.Run(strat, bars, Config{TrainWindow: 20, TestWindow: 80, Step: 80, RiskFreeRate: 0.05})
	require.NoError(t, err)

	require.Len(t, result.Trades, 1)
	trade := result.Trades[0]
	assert.Equal(t, bars[30].Open, trade.EntryPrice)
	assert.NotEqual(t, bars[29].Close, trade.EntryPrice)
	assert.Equal(t, bars[30].Timestamp, trade.EntryDate)
	// Likewise the sell decided on bar 49 fills at bar 50's open.
	assert.Equal(t, bars[50].Open, trade.ExitPrice)
}

func TestRun_NoLookAhead(t *testing.T) {
	// The strategy must only ever see history up to the decision bar:
	// visible lengths grow one bar at a time through the test slice.
	bars := risingBars(100)
	strat := &scriptedStrategy{}

	runner := NewRunner(zap.NewNop())
	_, err := runner.Run(strat, bars, Config{TrainWindow: 20, TestWindow: 80, Step: 80, RiskFreeRate: 0.05})
	require.NoError(t, err)

	require.Len(t, strat.seen, 80)
	for i, l := range strat.seen {
		assert.Equal(t, 21+i, l, "call %d saw a history of unexpected length", i)
	}
}

func TestRun_BuyWhileLongIsNoOp(t *testing.T) {
	bars := risingBars(100)
	strat := &scriptedStrategy{
		buyAt:  map[int]bool{25: true, 30: true, 35: true},
		sellAt: map[int]bool{60: true},
	}

	runner := NewRunner(zap.NewNop())
	result, err := runner.Run(strat, bars, Config{TrainWindow: 20, TestWindow: 80, Step: 80, RiskFreeRate: 0.05})
	require.NoError(t, err)

	// The repeated buys neither queue nor net: one trade, entered on the
	// first fill.
	require.Len(t, result.Trades, 1)
	assert.Equal(t, bars[25].Open, result.Trades[0].EntryPrice)
}

func TestRun_ReentryAfterClose(t *testing.T) {
	bars := risingBars(150)
	strat := &scriptedStrategy{
		buyAt:  map[int]bool{25: true, 60: true},
		sellAt: map[int]bool{40: true, 80: true},
	}

	runner := NewRunner(zap.NewNop())
	result, err := runner.Run(strat, bars, Config{TrainWindow: 20, TestWindow: 120, Step: 120, RiskFreeRate: 0.05})
	require.NoError(t, err)

	require.Len(t, result.Trades, 2)
	assert.Equal(t, bars[25].Open, result.Trades[0].EntryPrice)
	assert.Equal(t, bars[40].Open, result.Trades[0].ExitPrice)
	assert.Equal(t, bars[60].Open, result.Trades[1].EntryPrice)
}

func TestRun_InsufficientBars(t *testing.T) {
	// Too few bars is not an error: zero windows, zero trades.
	bars := risingBars(50)
	strat := &scriptedStrategy{buyAt: map[int]bool{21: true}}

	runner := NewRunner(zap.NewNop())
	result, err := runner.Run(strat, bars, Config{TrainWindow: 20, TestWindow: 80, Step: 80, RiskFreeRate: 0.05})
	require.NoError(t, err)

	assert.Equal(t, 0, result.WindowsUsed)
	assert.Empty(t, result.Trades)
	assert.Equal(t, 0, result.Metrics.TotalTrades)
}

func TestRun_InvalidConfig(t *testing.T) {
	runner := NewRunner(zap.NewNop())
	tests := []struct {
		name string
		cfg  Config
	}{
		{"zero train window", Config{TrainWindow: 0, TestWindow: 10, Step: 10}},
		{"zero test window", Config{TrainWindow: 10, TestWindow: 0, Step: 10}},
		{"zero step", Config{TrainWindow: 10, TestWindow: 10, Step: 0}},
		{"negative step", Config{TrainWindow: 10, TestWindow: 10, Step: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runner.Run(&scriptedStrategy{}, risingBars(100), tt.cfg)
			assert.Error(t, err)
		})
	}
}

func TestRun_OverlappingWindows(t *testing.T) {
	// Step smaller than the test window is permitted and yields more
	// windows over the same series.
	bars := risingBars(100)
	strat := &scriptedStrategy{}

	runner := NewRunner(zap.NewNop())
	result, err := runner.Run(strat, bars, Config{TrainWindow: 20, TestWindow: 40, Step: 10, RiskFreeRate: 0.05})
	require.NoError(t, err)

	// span=60, starts 0..40 by 10.
	assert.Equal(t, 5, result.WindowsUsed)
}

func TestRun_EquityCarriedAcrossWindows(t *testing.T) {
	bars := risingBars(120)
	strat := &scriptedStrategy{
		// One winning trade inside each 30-bar test slice.
		buyAt:  map[int]bool{35: true, 75: true},
		sellAt: map[int]bool{55: true, 95: true},
	}

	runner := NewRunner(zap.NewNop())
	result, err := runner.Run(strat, bars, Config{TrainWindow: 30, TestWindow: 30, Step: 40, RiskFreeRate: 0.05})
	require.NoError(t, err)

	require.Len(t, result.Trades, 2)
	// The second trade's PnL is sized off the equity the first one left
	// behind, not a reset starting stake.
	first, second := result.Trades[0], result.Trades[1]
	assert.Greater(t, first.PnL, 0.0)
	expected := (1 + first.ReturnPct) * second.ReturnPct
	assert.InDelta(t, expected, second.PnL, 1e-9)
}
