package models

import "time"

// Promotion lifecycle states. Transitions are monotonic:
// candidate -> paper_testing -> promoted, with retire allowed from any
// non-terminal state. Retired is terminal.
const (
	StatusCandidate    = "candidate"
	StatusPaperTesting = "paper_testing"
	StatusPromoted     = "promoted"
	StatusRetired      = "retired"
)

// PromotionRecord is the durable ledger entry for one strategy candidate.
// It is the only persistent entity in the pipeline: records are created by
// SubmitCandidate, mutated only through the lifecycle transitions, and
// never deleted — retirement marks them terminal instead, preserving an
// append-only audit trail.
type PromotionRecord struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	StrategyName     string     `gorm:"index;not null" json:"strategy_name"`
	SpecPayload      string     `json:"spec_payload"`
	Status           string     `gorm:"index;not null" json:"status"`
	CompositeScore   float64    `json:"composite_score"`
	CreatedAt        time.Time  `json:"created_at"`
	TestingStartedAt *time.Time `json:"testing_started_at,omitempty"`
	PromotedAt       *time.Time `json:"promoted_at,omitempty"`
	RetiredAt        *time.Time `json:"retired_at,omitempty"`
	SignalsGenerated int        `json:"signals_generated"`
	Notes            string     `json:"notes"`
}

// Active reports whether the record still participates in the lifecycle.
func (r PromotionRecord) Active() bool {
	return r.Status != StatusRetired
}
