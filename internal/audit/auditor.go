package audit

import (
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"strategy-pipeline-go/internal/models"
	"strategy-pipeline-go/internal/strategy"
)

// Config holds the thresholds for the deterministic audit checks.
type Config struct {
	// OverfitSharpeGap is the in-sample minus out-of-sample Sharpe gap
	// tolerated before the overfitting check fires.
	OverfitSharpeGap float64
	// PerfectWinRate and SuspiciousWinRate are the perfect-entry cutoffs.
	PerfectWinRate    float64
	SuspiciousWinRate float64
	// MinTrades is the minimum trade count below which a result is
	// considered statistically meaningless.
	MinTrades int
	// MaxGapFactor flags timestamp gaps wider than this multiple of the
	// series' median cadence.
	MaxGapFactor float64
	// MaxPriceJump flags close-to-close moves wider than this fraction.
	MaxPriceJump float64
}

// DefaultConfig returns the documented default thresholds.
func DefaultConfig() Config {
	return Config{
		OverfitSharpeGap:  1.0,
		PerfectWinRate:    1.0,
		SuspiciousWinRate: 0.95,
		MinTrades:         5,
		MaxGapFactor:      3.0,
		MaxPriceJump:      0.5,
	}
}

// Options carries the optional audit inputs. A nil or empty field skips
// the checks that need it; a skipped check is a first-class outcome, not
// an error.
type Options struct {
	// Tickers is the universe the backtest traded over.
	Tickers []string
	// ListedToday is the set of instruments currently listed, used as
	// survivorship evidence. Nil skips the survivorship check.
	ListedToday map[string]bool
	// InSample and OutOfSample enable the overfitting check when both are
	// present.
	InSample    *models.PerformanceSummary
	OutOfSample *models.PerformanceSummary
	// Bars is the series the result was computed from, used by the
	// warm-up and data-quality checks.
	Bars []models.MarketBar
}

// Auditor runs the deterministic bias and quality checks over a backtest
// result. It only ever annotates: findings are added, results are never
// altered. Pure and stateless, safe to run in parallel.
type Auditor struct {
	cfg    Config
	logger *zap.Logger
}

// New creates an auditor.
func New(cfg Config, logger *zap.Logger) *Auditor {
	return &Auditor{cfg: cfg, logger: logger}
}

// Audit runs every applicable check family and assembles the report.
// Passed is computed from the finding list alone: a report passes iff no
// finding is critical. Warnings and info findings surface to the caller
// but never block promotion.
func (a *Auditor) Audit(result models.BacktestResult, source strategy.Source, opts Options) models.AuditReport {
	var findings []models.Finding
	findings = append(findings, a.checkLookAhead(result, source, opts.Bars)...)
	findings = append(findings, a.checkOverfitting(opts.InSample, opts.OutOfSample)...)
	findings = append(findings, a.checkSurvivorship(opts.Tickers, opts.ListedToday)...)
	findings = append(findings, a.checkDataQuality(result, opts.Bars)...)

	report := models.NewAuditReport(findings)
	a.logger.Debug("audit complete",
		zap.String("strategy", source.Name),
		zap.Bool("passed", report.Passed),
		zap.Int("findings", len(findings)))
	return report
}

// checkLookAhead covers the three look-ahead detectors: static inspection
// of the declared access pattern, warm-up trade-date validation, and
// perfect-entry statistics.
func (a *Auditor) checkLookAhead(result models.BacktestResult, source strategy.Source, bars []models.MarketBar) []models.Finding {
	var findings []models.Finding

	for _, off := range source.AccessOffsets {
		if off > 0 {
			findings = append(findings, models.Finding{
				CheckName:   "look_ahead_static",
				Severity:    models.SeverityCritical,
				Description: fmt.Sprintf("declared access at forward offset +%d: strategy reads bars after the decision bar", off),
			})
			break
		}
	}
	if source.ForwardSlice {
		findings = append(findings, models.Finding{
			CheckName:   "look_ahead_static",
			Severity:    models.SeverityCritical,
			Description: "declared open-ended forward slice past the decision bar",
		})
	}

	// A trade dated before enough warm-up bars existed means the strategy
	// produced a signal it could not have computed yet.
	if len(bars) > source.LookbackBars && source.LookbackBars > 0 {
		earliest := bars[source.LookbackBars].Timestamp
		for _, t := range result.Trades {
			if t.EntryDate.Before(earliest) {
				findings = append(findings, models.Finding{
					CheckName:   "look_ahead_warmup",
					Severity:    models.SeverityCritical,
					Description: fmt.Sprintf("trade entered %s, before the %d-bar warm-up completed at %s",
						t.EntryDate.Format(time.RFC3339), source.LookbackBars, earliest.Format(time.RFC3339)),
				})
				break
			}
		}
	}

	n := result.Metrics.TotalTrades
	wr := result.Metrics.WinRate
	switch {
	case wr >= a.cfg.PerfectWinRate && n >= 10:
		findings = append(findings, models.Finding{
			CheckName:   "look_ahead_perfect_entry",
			Severity:    models.SeverityCritical,
			Description: fmt.Sprintf("win rate %.0f%% over %d trades is not plausible without future information", wr*100, n),
		})
	case wr > a.cfg.SuspiciousWinRate && n >= 20:
		findings = append(findings, models.Finding{
			CheckName:   "look_ahead_perfect_entry",
			Severity:    models.SeverityWarning,
			Description: fmt.Sprintf("win rate %.1f%% over %d trades is suspiciously high", wr*100, n),
		})
	case wr >= a.cfg.PerfectWinRate && n > 0:
		findings = append(findings, models.Finding{
			CheckName:   "look_ahead_perfect_entry",
			Severity:    models.SeverityInfo,
			Description: fmt.Sprintf("win rate %.0f%% but only %d trades; too few to judge", wr*100, n),
		})
	}

	return findings
}

// checkOverfitting compares in-sample against out-of-sample Sharpe. It
// only runs when both metric sets were supplied.
func (a *Auditor) checkOverfitting(inSample, outOfSample *models.PerformanceSummary) []models.Finding {
	if inSample == nil || outOfSample == nil {
		return nil
	}
	gap := inSample.SharpeRatio - outOfSample.SharpeRatio
	switch {
	case gap > 2*a.cfg.OverfitSharpeGap:
		return []models.Finding{{
			CheckName:   "overfitting",
			Severity:    models.SeverityCritical,
			Description: fmt.Sprintf("in-sample Sharpe %.2f exceeds out-of-sample %.2f by %.2f, over twice the %.2f tolerance", inSample.SharpeRatio, outOfSample.SharpeRatio, gap, a.cfg.OverfitSharpeGap),
		}}
	case gap > a.cfg.OverfitSharpeGap:
		return []models.Finding{{
			CheckName:   "overfitting",
			Severity:    models.SeverityWarning,
			Description: fmt.Sprintf("in-sample Sharpe %.2f exceeds out-of-sample %.2f by %.2f (tolerance %.2f)", inSample.SharpeRatio, outOfSample.SharpeRatio, gap, a.cfg.OverfitSharpeGap),
		}}
	}
	return nil
}

// checkSurvivorship flags a universe made up entirely of instruments
// still listed today. It only runs when both the universe and the listing
// evidence were supplied.
func (a *Auditor) checkSurvivorship(tickers []string, listedToday map[string]bool) []models.Finding {
	if len(tickers) == 0 || listedToday == nil {
		return nil
	}
	for _, t := range tickers {
		if !listedToday[t] {
			return nil // at least one delisted constituent, no structural bias
		}
	}
	return []models.Finding{{
		CheckName:   "survivorship",
		Severity:    models.SeverityWarning,
		Description: fmt.Sprintf("all %d universe instruments are still listed today; returns are structurally overstated without failed constituents", len(tickers)),
	}}
}

// checkDataQuality inspects the bars and equity curve for missing values,
// cadence gaps and price discontinuities, plus the minimum-trade-count
// floor. Severity scales with materiality.
func (a *Auditor) checkDataQuality(result models.BacktestResult, bars []models.MarketBar) []models.Finding {
	var findings []models.Finding

	for i, b := range bars {
		if math.IsNaN(b.Open) || math.IsNaN(b.High) || math.IsNaN(b.Low) || math.IsNaN(b.Close) || b.Close <= 0 {
			findings = append(findings, models.Finding{
				CheckName:   "data_quality_missing",
				Severity:    models.SeverityCritical,
				Description: fmt.Sprintf("bar %d (%s) has missing or non-positive prices", i, b.Timestamp.Format(time.RFC3339)),
			})
			break
		}
	}
	for _, p := range result.EquityCurve {
		if math.IsNaN(p.Equity) || math.IsInf(p.Equity, 0) {
			findings = append(findings, models.Finding{
				CheckName:   "data_quality_missing",
				Severity:    models.SeverityCritical,
				Description: fmt.Sprintf("equity curve contains a non-finite value at %s", p.Timestamp.Format(time.RFC3339)),
			})
			break
		}
	}

	if gap, at, median := widestCadenceGap(bars); median > 0 && gap > time.Duration(a.cfg.MaxGapFactor*float64(median)) {
		severity := models.SeverityInfo
		if gap > time.Duration(2*a.cfg.MaxGapFactor*float64(median)) {
			severity = models.SeverityWarning
		}
		findings = append(findings, models.Finding{
			CheckName:   "data_quality_gaps",
			Severity:    severity,
			Description: fmt.Sprintf("gap of %s at %s exceeds %.1fx the median cadence of %s",
				gap, at.Format(time.RFC3339), a.cfg.MaxGapFactor, median),
		})
	}

	for i := 1; i < len(bars); i++ {
		prev := bars[i-1].Close
		if prev <= 0 {
			continue
		}
		move := math.Abs(bars[i].Close/prev - 1)
		if move > a.cfg.MaxPriceJump {
			severity := models.SeverityWarning
			if move > 3*a.cfg.MaxPriceJump {
				severity = models.SeverityCritical
			}
			findings = append(findings, models.Finding{
				CheckName:   "data_quality_discontinuity",
				Severity:    severity,
				Description: fmt.Sprintf("close-to-close move of %.1f%% at %s exceeds the %.0f%% threshold",
					move*100, bars[i].Timestamp.Format(time.RFC3339), a.cfg.MaxPriceJump*100),
			})
			break
		}
	}

	if result.Metrics.TotalTrades < a.cfg.MinTrades {
		findings = append(findings, models.Finding{
			CheckName:   "data_quality_min_trades",
			Severity:    models.SeverityWarning,
			Description: fmt.Sprintf("only %d trades across %d windows; below the %d-trade floor for a meaningful result",
				result.Metrics.TotalTrades, result.WindowsUsed, a.cfg.MinTrades),
		})
	}

	return findings
}

// widestCadenceGap returns the largest timestamp gap in the series, the
// bar it ends at, and the median gap as the expected cadence.
func widestCadenceGap(bars []models.MarketBar) (time.Duration, time.Time, time.Duration) {
	if len(bars) < 3 {
		return 0, time.Time{}, 0
	}
	gaps := make([]time.Duration, 0, len(bars)-1)
	widest := time.Duration(0)
	var at time.Time
	for i := 1; i < len(bars); i++ {
		g := bars[i].Timestamp.Sub(bars[i-1].Timestamp)
		gaps = append(gaps, g)
		if g > widest {
			widest = g
			at = bars[i].Timestamp
		}
	}
	sort.Slice(gaps, func(i, j int) bool { return gaps[i] < gaps[j] })
	return widest, at, gaps[len(gaps)/2]
}
