package evolution

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"strategy-pipeline-go/internal/audit"
	"strategy-pipeline-go/internal/backtest"
	"strategy-pipeline-go/internal/config"
	"strategy-pipeline-go/internal/lifecycle"
	"strategy-pipeline-go/internal/marketdata"
	"strategy-pipeline-go/internal/models"
	"strategy-pipeline-go/internal/strategy"
)

// Engine drives the evolution cycle: backtest every registered strategy,
// audit the results, submit survivors to the lifecycle ledger, start
// paper testing, and promote whatever clears the gates. Each step is
// idempotent, so re-running a cycle over already-processed candidates
// neither duplicates records nor regresses state.
type Engine struct {
	logger     *zap.Logger
	cfg        *config.Config
	registry   *strategy.Registry
	runner     *backtest.Runner
	auditor    *audit.Auditor
	store      *lifecycle.Store
	dataClient marketdata.ClientInterface
}

// NewEngine creates an evolution engine.
func NewEngine(logger *zap.Logger, cfg *config.Config, registry *strategy.Registry, runner *backtest.Runner, auditor *audit.Auditor, store *lifecycle.Store, dataClient marketdata.ClientInterface) *Engine {
	return &Engine{
		logger:     logger,
		cfg:        cfg,
		registry:   registry,
		runner:     runner,
		auditor:    auditor,
		store:      store,
		dataClient: dataClient,
	}
}

// Run starts the cycle loop and blocks until the context is cancelled.
func (e *Engine) Run(ctx context.Context) {
	interval := time.Duration(e.cfg.Cycle.TickInterval) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.logger.Info("Starting evolution loop", zap.Duration("interval", interval))

	// First cycle runs immediately rather than waiting a full tick.
	if err := e.Cycle(ctx); err != nil {
		e.logger.Error("Evolution cycle failed", zap.Error(err))
	}

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("Stopping evolution engine...")
			return
		case <-ticker.C:
			if err := e.Cycle(ctx); err != nil {
				e.logger.Error("Evolution cycle failed", zap.Error(err))
			}
		}
	}
}

// evalOutcome is one strategy's trip through the backtester and auditor.
type evalOutcome struct {
	strat  strategy.Strategy
	result models.BacktestResult
	report models.AuditReport
	score  float64
	err    error
}

// Cycle performs one full pass: evaluate, submit, start testing, promote.
func (e *Engine) Cycle(ctx context.Context) error {
	e.logger.Info("Evolution cycle starting")

	symbols := e.cfg.MarketData.Symbols
	if len(symbols) == 0 {
		return fmt.Errorf("no market data symbols configured")
	}

	bars, err := e.dataClient.GetKlines(symbols[0], e.cfg.MarketData.Interval, e.cfg.MarketData.BarLimit)
	if err != nil {
		return fmt.Errorf("could not fetch evaluation bars: %w", err)
	}

	listed, err := e.dataClient.GetListedSymbols()
	if err != nil {
		// Survivorship evidence is optional; the check is skipped without it.
		e.logger.Warn("Could not fetch listing info, survivorship check will be skipped", zap.Error(err))
		listed = nil
	}

	outcomes := e.evaluateAll(ctx, bars, listed)

	for _, o := range outcomes {
		if o.err != nil {
			e.logger.Error("Strategy evaluation failed",
				zap.String("strategy", o.strat.Name()), zap.Error(o.err))
			continue
		}
		if !o.report.Passed {
			e.logger.Warn("Strategy failed audit",
				zap.String("strategy", o.strat.Name()),
				zap.String("summary", o.report.Summary))
			continue
		}
		if err := e.submit(o); err != nil {
			return err
		}
	}

	if err := e.startTestingCandidates(); err != nil {
		return err
	}
	if err := e.exercisePaperTesting(bars); err != nil {
		return err
	}
	if err := e.promoteReady(); err != nil {
		return err
	}

	e.logger.Info("Evolution cycle complete")
	return nil
}

// evaluateAll backtests and audits every registered strategy in a bounded
// worker pool. The backtester and auditor are pure and stateless, so the
// only coordination needed is collecting results.
func (e *Engine) evaluateAll(ctx context.Context, bars []models.MarketBar, listed map[string]bool) []evalOutcome {
	strategies := e.registry.All()
	jobs := make(chan strategy.Strategy, len(strategies))
	results := make(chan evalOutcome, len(strategies))

	workers := e.cfg.Cycle.Workers
	if workers > len(strategies) {
		workers = len(strategies)
	}

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for strat := range jobs {
				select {
				case <-ctx.Done():
					return
				default:
				}
				results <- e.evaluate(strat, bars, listed)
			}
		}()
	}

	for _, s := range strategies {
		jobs <- s
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	outcomes := make([]evalOutcome, 0, len(strategies))
	for o := range results {
		outcomes = append(outcomes, o)
	}
	return outcomes
}

// evaluate runs one strategy through the backtester and auditor,
// including an in/out-of-sample split for the overfitting check.
func (e *Engine) evaluate(strat strategy.Strategy, bars []models.MarketBar, listed map[string]bool) evalOutcome {
	btCfg := backtest.Config{
		TrainWindow:  e.cfg.Backtest.TrainWindow,
		TestWindow:   e.cfg.Backtest.TestWindow,
		Step:         e.cfg.Backtest.Step,
		RiskFreeRate: e.cfg.Backtest.RiskFreeRate,
	}

	result, err := e.runner.Run(strat, bars, btCfg)
	if err != nil {
		return evalOutcome{strat: strat, err: err}
	}

	opts := audit.Options{
		Tickers:     e.cfg.MarketData.Symbols,
		ListedToday: listed,
		Bars:        bars,
	}

	// First 70% in-sample, rest out-of-sample. Both halves must be deep
	// enough for at least one window each to say anything about overfit.
	split := len(bars) * 7 / 10
	span := btCfg.TrainWindow + btCfg.TestWindow
	if split >= span && len(bars)-split >= span {
		inRes, inErr := e.runner.Run(strat, bars[:split], btCfg)
		outRes, outErr := e.runner.Run(strat, bars[split:], btCfg)
		if inErr == nil && outErr == nil {
			opts.InSample = &inRes.Metrics
			opts.OutOfSample = &outRes.Metrics
		}
	}

	report := e.auditor.Audit(result, strat.Source(), opts)
	return evalOutcome{
		strat:  strat,
		result: result,
		report: report,
		score:  backtest.CompositeScore(result.Metrics),
	}
}

// specPayload is the durable description of a candidate stored in the
// ledger and handed to any agent that later trades it.
type specPayload struct {
	Source strategy.Source           `json:"source"`
	Score  float64                   `json:"composite_score"`
	Metric models.PerformanceSummary `json:"metrics"`
}

// submit records a passing strategy as a candidate. An already-active
// record is the expected idempotent outcome, not a failure.
func (e *Engine) submit(o evalOutcome) error {
	payload, err := json.Marshal(specPayload{
		Source: o.strat.Source(),
		Score:  o.score,
		Metric: o.result.Metrics,
	})
	if err != nil {
		return fmt.Errorf("could not marshal spec for %s: %w", o.strat.Name(), err)
	}

	_, err = e.store.SubmitCandidate(o.strat.Name(), string(payload), o.score)
	if errors.Is(err, lifecycle.ErrDuplicateCandidate) {
		e.logger.Debug("Candidate already in the pipeline", zap.String("strategy", o.strat.Name()))
		return nil
	}
	if err != nil {
		return fmt.Errorf("could not submit candidate %s: %w", o.strat.Name(), err)
	}
	return nil
}

// startTestingCandidates moves every untested candidate into paper
// testing.
func (e *Engine) startTestingCandidates() error {
	candidates, err := e.store.GetCandidates()
	if err != nil {
		return err
	}
	for _, c := range candidates {
		if err := e.store.StartTesting(c.StrategyName); err != nil {
			// A concurrent cycle may have beaten us to it.
			if errors.Is(err, lifecycle.ErrInvalidTransition) {
				continue
			}
			return fmt.Errorf("could not start testing %s: %w", c.StrategyName, err)
		}
	}
	return nil
}

// exercisePaperTesting runs each paper-testing strategy over the latest
// bars and records how many signals it produced. The promotion gate reads
// this counter: a strategy that ages without ever signalling is not
// promotable.
func (e *Engine) exercisePaperTesting(bars []models.MarketBar) error {
	names, err := e.store.GetPaperTesting()
	if err != nil {
		return err
	}
	for _, name := range names {
		strat, ok := e.registry.Get(name)
		if !ok {
			e.logger.Warn("Paper-testing strategy missing from registry, retiring",
				zap.String("strategy", name))
			if err := e.store.Retire(name, "strategy no longer registered"); err != nil {
				return err
			}
			continue
		}

		count := 0
		// Replay the most recent window bar by bar, as a live agent would
		// have seen it.
		start := len(bars) - e.cfg.Backtest.TestWindow
		if start < strat.Source().LookbackBars {
			start = strat.Source().LookbackBars
		}
		for i := start; i <= len(bars); i++ {
			count += len(strat.GenerateSignals(bars[:i]))
		}
		if count > 0 {
			if err := e.store.RecordSignals(name, count); err != nil {
				return fmt.Errorf("could not record signals for %s: %w", name, err)
			}
		}
	}
	return nil
}

// promoteReady promotes everything that clears both promotion gates.
func (e *Engine) promoteReady() error {
	ready, err := e.store.CheckReadyForPromotion(e.cfg.Promotion.TestingDays, e.cfg.Promotion.MinSignals)
	if err != nil {
		return err
	}
	for _, rec := range ready {
		if err := e.store.Promote(rec.StrategyName); err != nil {
			if errors.Is(err, lifecycle.ErrInvalidTransition) {
				continue
			}
			return fmt.Errorf("could not promote %s: %w", rec.StrategyName, err)
		}
	}
	return nil
}

// PromotedSpecs is the read path a running agent uses to learn what to
// trade. An empty ledger falls back to the configured legacy survivor
// list, a one-time migration path from before the lifecycle store
// existed.
func (e *Engine) PromotedSpecs() ([]string, error) {
	specs, err := e.store.GetPromoted()
	if err != nil {
		return nil, err
	}
	if len(specs) > 0 || len(e.cfg.Promotion.LegacySurvivors) == 0 {
		return specs, nil
	}
	// The fallback is a one-time migration path: it applies only while
	// the ledger has never seen a candidate, not whenever nothing is
	// promoted yet.
	empty, err := e.store.Empty()
	if err != nil {
		return nil, err
	}
	if empty {
		e.logger.Warn("Lifecycle ledger uninitialized, falling back to legacy survivor list",
			zap.Int("survivors", len(e.cfg.Promotion.LegacySurvivors)))
		return e.cfg.Promotion.LegacySurvivors, nil
	}
	return specs, nil
}
