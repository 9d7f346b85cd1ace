package backtest

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"strategy-pipeline-go/internal/models"
	"strategy-pipeline-go/internal/strategy"
)

// Runner replays historical bars through a strategy using a sliding
// walk-forward window. It is a pure computation over the provided slice:
// no persistence, no shared state, safe to run in parallel across
// strategies.
type Runner struct {
	logger *zap.Logger
}

// NewRunner creates a backtest runner.
func NewRunner(logger *zap.Logger) *Runner {
	return &Runner{logger: logger}
}

// position tracks the single open long within a walk-forward window.
type position struct {
	open        bool
	entryPrice  float64
	entryIdx    int
	entryEquity float64
}

// Run simulates the strategy over the bar series and returns the combined
// result across all walk-forward windows. Too few bars for even one
// window is not an error: the result reports zero windows and no trades,
// and the auditor's minimum-trade-count check catches it downstream.
func (r *Runner) Run(strat strategy.Strategy, bars []models.MarketBar, cfg Config) (models.BacktestResult, error) {
	if err := cfg.Validate(); err != nil {
		return models.BacktestResult{}, fmt.Errorf("invalid backtest config: %w", err)
	}

	var (
		trades  []models.Trade
		curve   []models.EquityPoint
		windows int
		equity  = 1.0 // carried across windows, never reset
	)

	span := cfg.TrainWindow + cfg.TestWindow
	for start := 0; start+span <= len(bars); start += cfg.Step {
		testStart := start + cfg.TrainWindow
		testEnd := start + span

		wTrades, wCurve, endEquity := r.runWindow(strat, bars, testStart, testEnd, equity)
		trades = append(trades, wTrades...)
		curve = append(curve, wCurve...)
		equity = endEquity
		windows++
	}

	if windows == 0 {
		r.logger.Debug("insufficient bars for a single walk-forward window",
			zap.String("strategy", strat.Name()),
			zap.Int("bars", len(bars)),
			zap.Int("required", span))
	}

	metrics := Summarize(trades, curve, cfg.RiskFreeRate)
	return models.BacktestResult{
		Trades:      trades,
		EquityCurve: curve,
		Metrics:     metrics,
		WindowsUsed: windows,
	}, nil
}

// runWindow evaluates one test slice bar by bar. Decisions made on bar
// t's close fill at bar t+1's open: the one-bar execution lag is the
// execution model, not an approximation, and must hold for every fill.
func (r *Runner) runWindow(strat strategy.Strategy, bars []models.MarketBar, testStart, testEnd int, startEquity float64) ([]models.Trade, []models.EquityPoint, float64) {
	var (
		trades      []models.Trade
		curve       []models.EquityPoint
		pos         position
		equity      = startEquity
		pendingBuy  bool
		pendingSell bool
	)

	for i := testStart; i < testEnd; i++ {
		bar := bars[i]

		// Fill orders scheduled on the previous bar at this bar's open.
		// A close always lands before any new open.
		if pendingSell && pos.open {
			trade := closePosition(&pos, bars, bar.Open, bar.Timestamp)
			trades = append(trades, trade)
			equity = pos.entryEquity * (1 + trade.ReturnPct)
		}
		pendingSell = false
		if pendingBuy && !pos.open {
			pos = position{open: true, entryPrice: bar.Open, entryIdx: i, entryEquity: equity}
		}
		pendingBuy = false

		// The strategy sees history up to and including the current bar,
		// never beyond it.
		visible := bars[:i+1]
		for _, sig := range strat.GenerateSignals(visible) {
			switch sig.Action {
			case models.SignalActionSell:
				// Sell takes priority over a same-bar buy: a buy while
				// long is already a no-op, so scheduling the close is all
				// that remains.
				if pos.open {
					pendingSell = true
					pendingBuy = false
				}
			case models.SignalActionBuy:
				// Buying while already long is a no-op; signals are not
				// queued or netted.
				if !pos.open {
					pendingBuy = true
				}
			}
		}

		curve = append(curve, models.EquityPoint{
			Timestamp: bar.Timestamp,
			Equity:    markToMarket(pos, equity, bar.Close),
		})
	}

	// A position still open when the slice ends closes at the next
	// available open, or the slice's final close if no further bar exists.
	if pos.open {
		exitPrice := bars[testEnd-1].Close
		exitTime := bars[testEnd-1].Timestamp
		if testEnd < len(bars) {
			exitPrice = bars[testEnd].Open
			exitTime = bars[testEnd].Timestamp
		}
		trade := closePosition(&pos, bars, exitPrice, exitTime)
		trades = append(trades, trade)
		equity = pos.entryEquity * (1 + trade.ReturnPct)
		if len(curve) > 0 {
			curve[len(curve)-1].Equity = equity
		}
	}

	return trades, curve, equity
}

// closePosition finalizes the open position into a trade record.
func closePosition(pos *position, bars []models.MarketBar, exitPrice float64, exitTime time.Time) models.Trade {
	entry := bars[pos.entryIdx]
	ret := 0.0
	if pos.entryPrice != 0 {
		ret = exitPrice/pos.entryPrice - 1
	}
	pos.open = false
	return models.Trade{
		Symbol:     entry.Symbol,
		EntryDate:  entry.Timestamp,
		ExitDate:   exitTime,
		Side:       "long",
		EntryPrice: pos.entryPrice,
		ExitPrice:  exitPrice,
		PnL:        pos.entryEquity * ret,
		ReturnPct:  ret,
	}
}

func markToMarket(pos position, equity, price float64) float64 {
	if !pos.open || pos.entryPrice == 0 {
		return equity
	}
	return pos.entryEquity * (price / pos.entryPrice)
}
