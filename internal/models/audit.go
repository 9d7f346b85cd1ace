package models

import "fmt"

const (
	SeverityCritical = "critical"
	SeverityWarning  = "warning"
	SeverityInfo     = "info"
)

// Finding is one observation produced by a single audit check.
type Finding struct {
	CheckName   string `json:"check_name"`
	Severity    string `json:"severity"`
	Description string `json:"description"`
}

// AuditReport is the immutable outcome of auditing one backtest result.
// Passed is derived from the finding list and nothing else: a report
// passes iff no finding is critical.
type AuditReport struct {
	Passed   bool      `json:"passed"`
	Findings []Finding `json:"findings"`
	Summary  string    `json:"summary"`
}

// NewAuditReport builds a report from a finding list, computing Passed and
// the severity tally. This is the only constructor; Passed is never set
// independently of the findings.
func NewAuditReport(findings []Finding) AuditReport {
	var critical, warning, info int
	for _, f := range findings {
		switch f.Severity {
		case SeverityCritical:
			critical++
		case SeverityWarning:
			warning++
		default:
			info++
		}
	}
	return AuditReport{
		Passed:   critical == 0,
		Findings: findings,
		Summary: fmt.Sprintf("%d findings (%d critical, %d warning, %d info)",
			len(findings), critical, warning, info),
	}
}
