package backtest

import (
	"math"

	"strategy-pipeline-go/internal/models"
)

// tradingDaysPerYear is the annualization basis for daily-return Sharpe.
const tradingDaysPerYear = 252

// Summarize computes the performance aggregate over a combined trade list
// and equity curve. It is a pure function: called fresh on every run,
// never cached or mutated.
func Summarize(trades []models.Trade, curve []models.EquityPoint, riskFreeRate float64) models.PerformanceSummary {
	s := models.PerformanceSummary{
		SharpeRatio: SharpeRatio(curve, riskFreeRate),
		MaxDrawdown: MaxDrawdown(curve),
		TotalTrades: len(trades),
	}
	if len(trades) == 0 {
		return s
	}

	wins := 0
	s.BestTrade = trades[0].PnL
	s.WorstTrade = trades[0].PnL
	for _, t := range trades {
		s.TotalPnL += t.PnL
		if t.PnL > 0 {
			wins++
		}
		if t.PnL > s.BestTrade {
			s.BestTrade = t.PnL
		}
		if t.PnL < s.WorstTrade {
			s.WorstTrade = t.PnL
		}
	}
	s.AvgPnL = s.TotalPnL / float64(len(trades))
	s.WinRate = float64(wins) / float64(len(trades))
	return s
}

// SharpeRatio computes the annualized Sharpe ratio off the daily returns
// of the equity curve, with the annual risk-free rate subtracted on a
// per-day basis. A flat or too-short curve yields 0, never a division
// error.
func SharpeRatio(curve []models.EquityPoint, riskFreeRate float64) float64 {
	if len(curve) < 2 {
		return 0
	}

	returns := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1].Equity
		if prev == 0 {
			continue
		}
		returns = append(returns, curve[i].Equity/prev-1)
	}
	if len(returns) < 2 {
		return 0
	}

	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		d := r - mean
		variance += d * d
	}
	variance /= float64(len(returns))
	if variance == 0 {
		return 0
	}

	dailyRiskFree := riskFreeRate / tradingDaysPerYear
	return (mean - dailyRiskFree) / math.Sqrt(variance) * math.Sqrt(tradingDaysPerYear)
}

// MaxDrawdown returns the deepest peak-to-trough decline of the equity
// curve as a fraction <= 0.
func MaxDrawdown(curve []models.EquityPoint) float64 {
	maxDD := 0.0
	peak := 0.0
	for _, p := range curve {
		if p.Equity > peak {
			peak = p.Equity
		}
		if peak > 0 {
			dd := (p.Equity - peak) / peak
			if dd < maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}

// CompositeScore collapses a performance summary into the single scalar
// used to rank candidates for promotion. Sharpe dominates, win rate adds
// a stability term, drawdown subtracts.
func CompositeScore(m models.PerformanceSummary) float64 {
	if m.TotalTrades == 0 {
		return 0
	}
	return m.SharpeRatio*0.5 + m.WinRate*0.3 + m.MaxDrawdown*0.2
}
