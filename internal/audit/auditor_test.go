package audit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"strategy-pipeline-go/internal/models"
	"strategy-pipeline-go/internal/strategy"
)

func testAuditor() *Auditor {
	return New(DefaultConfig(), zap.NewNop())
}

func cleanBars(n int) []models.MarketBar {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]models.MarketBar, n)
	for i := 0; i < n; i++ {
		price := 100.0 + float64(i)*0.5
		bars[i] = models.MarketBar{
			Symbol:    "TEST",
			Timestamp: start.AddDate(0, 0, i),
			Open:      price,
			High:      price + 1,
			Low:       price - 1,
			Close:     price + 0.2,
			Volume:    500,
		}
	}
	return bars
}

func resultWith(winRate float64, trades int) models.BacktestResult {
	list := make([]models.Trade, trades)
	return models.BacktestResult{
		Trades:      list,
		Metrics:     models.PerformanceSummary{WinRate: winRate, TotalTrades: trades},
		WindowsUsed: 1,
	}
}

func TestAudit_PassedDerivedFromFindings(t *testing.T) {
	// Passed must hold iff no finding is critical, for every combination
	// of severities.
	severities := []string{models.SeverityCritical, models.SeverityWarning, models.SeverityInfo}
	for mask := 0; mask < 1<<len(severities); mask++ {
		var findings []models.Finding
		hasCritical := false
		for bit, sev := range severities {
			if mask&(1<<bit) != 0 {
				findings = append(findings, models.Finding{CheckName: "x", Severity: sev})
				if sev == models.SeverityCritical {
					hasCritical = true
				}
			}
		}
		report := models.NewAuditReport(findings)
		assert.Equal(t, !hasCritical, report.Passed, "mask %b", mask)
	}
}

func TestAudit_StaticForwardOffset(t *testing.T) {
	source := strategy.Source{Name: "peeker", AccessOffsets: []int{-2, 0, 1}}
	report := testAuditor().Audit(resultWith(0.5, 20), source, Options{Bars: cleanBars(50)})

	assert.False(t, report.Passed)
	requireFinding(t, report, "look_ahead_static", models.SeverityCritical)
}

func TestAudit_StaticForwardSlice(t *testing.T) {
	source := strategy.Source{Name: "slicer", AccessOffsets: []int{0}, ForwardSlice: true}
	report := testAuditor().Audit(resultWith(0.5, 20), source, Options{Bars: cleanBars(50)})

	assert.False(t, report.Passed)
	requireFinding(t, report, "look_ahead_static", models.SeverityCritical)
}

func TestAudit_WarmupTradeDates(t *testing.T) {
	bars := cleanBars(50)
	source := strategy.Source{Name: "s", LookbackBars: 20, AccessOffsets: []int{-20, 0}}

	early := resultWith(0.5, 6)
	early.Trades = []models.Trade{{EntryDate: bars[5].Timestamp}}
	report := testAuditor().Audit(early, source, Options{Bars: bars})
	assert.False(t, report.Passed)
	requireFinding(t, report, "look_ahead_warmup", models.SeverityCritical)

	late := resultWith(0.5, 6)
	late.Trades = []models.Trade{{EntryDate: bars[25].Timestamp}}
	report = testAuditor().Audit(late, source, Options{Bars: bars})
	assert.True(t, report.Passed)
}

func TestAudit_PerfectEntry(t *testing.T) {
	tests := []struct {
		name     string
		winRate  float64
		trades   int
		severity string // empty means no perfect-entry finding
	}{
		{"perfect with many trades", 1.0, 10, models.SeverityCritical},
		{"suspicious with many trades", 0.96, 20, models.SeverityWarning},
		{"perfect with one trade", 1.0, 1, models.SeverityInfo},
		{"perfect with nine trades", 1.0, 9, models.SeverityInfo},
		{"suspicious but few trades", 0.96, 10, ""},
		{"ordinary win rate", 0.6, 50, ""},
		{"no trades", 0.0, 0, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := testAuditor().Audit(resultWith(tt.winRate, tt.trades), strategy.Source{Name: "s"}, Options{Bars: cleanBars(50)})
			finding, found := findFinding(report, "look_ahead_perfect_entry")
			if tt.severity == "" {
				assert.False(t, found)
			} else {
				require.True(t, found)
				assert.Equal(t, tt.severity, finding.Severity)
			}
		})
	}
}

func TestAudit_Overfitting(t *testing.T) {
	metrics := func(sharpe float64) *models.PerformanceSummary {
		return &models.PerformanceSummary{SharpeRatio: sharpe}
	}
	tests := []struct {
		name     string
		in, out  *models.PerformanceSummary
		severity string
	}{
		{"both missing skips", nil, nil, ""},
		{"out-of-sample missing skips", metrics(3), nil, ""},
		{"gap within tolerance", metrics(1.5), metrics(1.0), ""},
		{"gap above tolerance", metrics(2.5), metrics(1.0), models.SeverityWarning},
		{"gap above twice tolerance", metrics(4.0), metrics(1.0), models.SeverityCritical},
		{"out-of-sample better", metrics(1.0), metrics(2.0), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := testAuditor().Audit(resultWith(0.5, 20), strategy.Source{Name: "s"},
				Options{Bars: cleanBars(50), InSample: tt.in, OutOfSample: tt.out})
			finding, found := findFinding(report, "overfitting")
			if tt.severity == "" {
				assert.False(t, found)
			} else {
				require.True(t, found)
				assert.Equal(t, tt.severity, finding.Severity)
			}
		})
	}
}

func TestAudit_Survivorship(t *testing.T) {
	listed := map[string]bool{"AAA": true, "BBB": true}

	report := testAuditor().Audit(resultWith(0.5, 20), strategy.Source{Name: "s"},
		Options{Bars: cleanBars(50), Tickers: []string{"AAA", "BBB"}, ListedToday: listed})
	finding, found := findFinding(report, "survivorship")
	require.True(t, found)
	assert.Equal(t, models.SeverityWarning, finding.Severity)
	// Warnings surface but never block.
	assert.True(t, report.Passed)

	// One delisted constituent clears the structural bias.
	report = testAuditor().Audit(resultWith(0.5, 20), strategy.Source{Name: "s"},
		Options{Bars: cleanBars(50), Tickers: []string{"AAA", "GONE"}, ListedToday: listed})
	_, found = findFinding(report, "survivorship")
	assert.False(t, found)

	// No listing evidence skips the check entirely.
	report = testAuditor().Audit(resultWith(0.5, 20), strategy.Source{Name: "s"},
		Options{Bars: cleanBars(50), Tickers: []string{"AAA"}})
	_, found = findFinding(report, "survivorship")
	assert.False(t, found)
}

func TestAudit_DataQualityGap(t *testing.T) {
	bars := cleanBars(50)
	// Tear a two-month hole in a daily series.
	for i := 30; i < len(bars); i++ {
		bars[i].Timestamp = bars[i].Timestamp.AddDate(0, 2, 0)
	}

	report := testAuditor().Audit(resultWith(0.5, 20), strategy.Source{Name: "s"}, Options{Bars: bars})
	finding, found := findFinding(report, "data_quality_gaps")
	require.True(t, found)
	assert.Equal(t, models.SeverityWarning, finding.Severity)
}

func TestAudit_DataQualityDiscontinuity(t *testing.T) {
	bars := cleanBars(50)
	bars[25].Close = bars[24].Close * 1.8 // 80% jump, above the 50% threshold

	report := testAuditor().Audit(resultWith(0.5, 20), strategy.Source{Name: "s"}, Options{Bars: bars})
	finding, found := findFinding(report, "data_quality_discontinuity")
	require.True(t, found)
	assert.Equal(t, models.SeverityWarning, finding.Severity)
}

func TestAudit_MinTradeCount(t *testing.T) {
	report := testAuditor().Audit(resultWith(0.5, 2), strategy.Source{Name: "s"}, Options{Bars: cleanBars(50)})
	finding, found := findFinding(report, "data_quality_min_trades")
	require.True(t, found)
	assert.Equal(t, models.SeverityWarning, finding.Severity)
	assert.True(t, report.Passed)
}

func TestAudit_CleanResultPasses(t *testing.T) {
	report := testAuditor().Audit(resultWith(0.55, 40), strategy.Source{Name: "s", AccessOffsets: []int{-5, 0}},
		Options{Bars: cleanBars(120)})
	assert.True(t, report.Passed)
	assert.Empty(t, report.Findings)
	assert.Equal(t, "0 findings (0 critical, 0 warning, 0 info)", report.Summary)
}

func requireFinding(t *testing.T, report models.AuditReport, check, severity string) {
	t.Helper()
	finding, found := findFinding(report, check)
	require.True(t, found, "expected a %s finding", check)
	require.Equal(t, severity, finding.Severity)
}

func findFinding(report models.AuditReport, check string) (models.Finding, bool) {
	for _, f := range report.Findings {
		if f.CheckName == check {
			return f, true
		}
	}
	return models.Finding{}, false
}
