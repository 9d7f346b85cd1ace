package lifecycle

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"strategy-pipeline-go/internal/models"
)

// Store is the persistent, transactionally consistent ledger of strategy
// candidates and their promotion state. Records are created once, move
// through the state machine monotonically, and are never deleted:
// retirement is terminal and keeps the audit trail intact.
//
// Every write runs inside a transaction with the source-state predicate in
// the query itself, so concurrent writers targeting the same name cannot
// interleave a transition and a rejected call leaves the row untouched.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
	now    func() time.Time
}

// NewStore creates a lifecycle store over the given database.
func NewStore(db *gorm.DB, logger *zap.Logger) *Store {
	return &Store{db: db, logger: logger, now: time.Now}
}

// WithClock overrides the store's clock. Test hook.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// SubmitCandidate inserts a new record in state candidate. An active
// (non-retired) record with the same name makes this a duplicate.
func (s *Store) SubmitCandidate(name, specPayload string, score float64) (models.PromotionRecord, error) {
	var rec models.PromotionRecord
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.PromotionRecord{}).
			Where("strategy_name = ? AND status <> ?", name, models.StatusRetired).
			Count(&count).Error; err != nil {
			return fmt.Errorf("failed to check for existing candidate: %w", err)
		}
		if count > 0 {
			return fmt.Errorf("%w: active record for %q already exists", ErrDuplicateCandidate, name)
		}

		rec = models.PromotionRecord{
			StrategyName:   name,
			SpecPayload:    specPayload,
			Status:         models.StatusCandidate,
			CompositeScore: score,
			CreatedAt:      s.now(),
		}
		if err := tx.Create(&rec).Error; err != nil {
			return fmt.Errorf("failed to create candidate %q: %w", name, err)
		}
		return nil
	})
	if err != nil {
		return models.PromotionRecord{}, err
	}
	s.logger.Info("candidate submitted",
		zap.String("strategy", name),
		zap.Float64("score", score))
	return rec, nil
}

// StartTesting moves a candidate into paper_testing and stamps the start
// time. Valid only from candidate.
func (s *Store) StartTesting(name string) error {
	now := s.now()
	err := s.transition(name, models.StatusCandidate, map[string]interface{}{
		"status":             models.StatusPaperTesting,
		"testing_started_at": &now,
	})
	if err == nil {
		s.logger.Info("paper testing started", zap.String("strategy", name))
	}
	return err
}

// Promote moves a record from paper_testing to promoted and stamps the
// promotion time.
func (s *Store) Promote(name string) error {
	now := s.now()
	err := s.transition(name, models.StatusPaperTesting, map[string]interface{}{
		"status":      models.StatusPromoted,
		"promoted_at": &now,
	})
	if err == nil {
		s.logger.Info("strategy promoted", zap.String("strategy", name))
	}
	return err
}

// Retire marks a record terminal from any non-terminal state, recording
// the reason. No further transitions are permitted afterwards.
func (s *Store) Retire(name, reason string) error {
	now := s.now()
	err := s.db.Transaction(func(tx *gorm.DB) error {
		rec, err := activeRecord(tx, name)
		if err != nil {
			return err
		}
		return tx.Model(&models.PromotionRecord{}).
			Where("id = ? AND status = ?", rec.ID, rec.Status).
			Updates(map[string]interface{}{
				"status":     models.StatusRetired,
				"retired_at": &now,
				"notes":      reason,
			}).Error
	})
	if err == nil {
		s.logger.Info("strategy retired",
			zap.String("strategy", name),
			zap.String("reason", reason))
	}
	return err
}

// RecordSignals adds to a paper-testing record's signal counter. The
// promotion gate reads this count.
func (s *Store) RecordSignals(name string, n int) error {
	if n < 0 {
		return fmt.Errorf("signal count must be >= 0, got %d", n)
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		rec, err := activeRecord(tx, name)
		if err != nil {
			return err
		}
		if rec.Status != models.StatusPaperTesting {
			return fmt.Errorf("%w: cannot record signals for %q in state %s",
				ErrInvalidTransition, name, rec.Status)
		}
		return tx.Model(&models.PromotionRecord{}).
			Where("id = ?", rec.ID).
			Update("signals_generated", gorm.Expr("signals_generated + ?", n)).Error
	})
}

// CheckReadyForPromotion returns every paper_testing record that has aged
// at least testingDays since testing started and generated at least
// minSignals. Both gates are required: age without signals means the
// strategy was never meaningfully exercised. Pure query, mutates nothing,
// and returns the same set on repeated calls with unchanged inputs.
func (s *Store) CheckReadyForPromotion(testingDays, minSignals int) ([]models.PromotionRecord, error) {
	if testingDays < 1 || minSignals < 1 {
		return nil, fmt.Errorf("promotion gates must be >= 1, got testing_days=%d min_signals=%d",
			testingDays, minSignals)
	}
	cutoff := s.now().AddDate(0, 0, -testingDays)
	var recs []models.PromotionRecord
	err := s.db.
		Where("status = ? AND testing_started_at IS NOT NULL AND testing_started_at <= ? AND signals_generated >= ?",
			models.StatusPaperTesting, cutoff, minSignals).
		Order("composite_score desc").
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query promotion readiness: %w", err)
	}
	return recs, nil
}

// GetPromoted returns the spec payload of every promoted record. A store
// that has never seen a candidate yields an empty slice, not an error.
func (s *Store) GetPromoted() ([]string, error) {
	var recs []models.PromotionRecord
	if err := s.db.Where("status = ?", models.StatusPromoted).Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to query promoted strategies: %w", err)
	}
	specs := make([]string, 0, len(recs))
	for _, r := range recs {
		specs = append(specs, r.SpecPayload)
	}
	return specs, nil
}

// GetPaperTesting returns the names currently under paper evaluation.
func (s *Store) GetPaperTesting() ([]string, error) {
	var recs []models.PromotionRecord
	if err := s.db.Where("status = ?", models.StatusPaperTesting).Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to query paper-testing strategies: %w", err)
	}
	names := make([]string, 0, len(recs))
	for _, r := range recs {
		names = append(names, r.StrategyName)
	}
	return names, nil
}

// GetCandidates returns the active records in state candidate.
func (s *Store) GetCandidates() ([]models.PromotionRecord, error) {
	var recs []models.PromotionRecord
	if err := s.db.Where("status = ?", models.StatusCandidate).Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to query candidates: %w", err)
	}
	return recs, nil
}

// Empty reports whether the ledger has never seen a candidate. The
// orchestrator uses this to decide whether the legacy survivor fallback
// still applies.
func (s *Store) Empty() (bool, error) {
	var count int64
	if err := s.db.Model(&models.PromotionRecord{}).Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to count ledger records: %w", err)
	}
	return count == 0, nil
}

// Get returns the active record for a strategy name.
func (s *Store) Get(name string) (models.PromotionRecord, error) {
	var rec models.PromotionRecord
	err := s.db.Transaction(func(tx *gorm.DB) error {
		r, err := activeRecord(tx, name)
		if err != nil {
			return err
		}
		rec = r
		return nil
	})
	return rec, err
}

// transition performs one guarded state change. The source-state
// predicate lives in the UPDATE itself, so a concurrent transition that
// got there first leaves this one affecting zero rows, which is then
// reported as the appropriate named error.
func (s *Store) transition(name, fromStatus string, updates map[string]interface{}) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.PromotionRecord{}).
			Where("strategy_name = ? AND status = ?", name, fromStatus).
			Updates(updates)
		if res.Error != nil {
			return fmt.Errorf("transition for %q failed: %w", name, res.Error)
		}
		if res.RowsAffected == 0 {
			rec, err := activeRecord(tx, name)
			if err != nil {
				return err
			}
			return fmt.Errorf("%w: %q is %s, expected %s", ErrInvalidTransition, name, rec.Status, fromStatus)
		}
		return nil
	})
}

// activeRecord loads the single non-retired record for a name.
func activeRecord(tx *gorm.DB, name string) (models.PromotionRecord, error) {
	var rec models.PromotionRecord
	err := tx.Where("strategy_name = ? AND status <> ?", name, models.StatusRetired).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return rec, fmt.Errorf("%w: no active record for %q", ErrCandidateNotFound, name)
	}
	if err != nil {
		return rec, fmt.Errorf("failed to load record for %q: %w", name, err)
	}
	return rec, nil
}
