package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"strategy-pipeline-go/internal/audit"
	"strategy-pipeline-go/internal/backtest"
	"strategy-pipeline-go/internal/config"
	"strategy-pipeline-go/internal/database"
	"strategy-pipeline-go/internal/evolution"
	"strategy-pipeline-go/internal/lifecycle"
	"strategy-pipeline-go/internal/logger"
	"strategy-pipeline-go/internal/marketdata"
	"strategy-pipeline-go/internal/strategy"
)

func main() {
	// Load application configuration
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		// We can't use the logger here because it's not initialized yet.
		panic(fmt.Sprintf("could not load config: %v", err))
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Logger.Level, cfg.Logger.Format)
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	log.Info("Configuration loaded")

	// Initialize database
	db, err := database.NewDatabase(cfg.Database.DSN)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	log.Info("Lifecycle ledger ready.")

	// Initialize market data client and check connectivity
	dataClient := marketdata.NewRestClient(&cfg.MarketData, log)
	if _, err := dataClient.GetServerTime(); err != nil {
		log.Fatal("Failed to reach market data source", zap.Error(err))
	}
	log.Info("Market data source reachable.")

	// Build the strategy registry. The registry is owned here and passed
	// down; nothing else holds global strategy state.
	registry := strategy.NewRegistry()
	if err := registerStrategies(registry); err != nil {
		log.Fatal("Failed to build strategy registry", zap.Error(err))
	}
	log.Info("Strategies registered", zap.Int("count", len(registry.All())))

	// Setup context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sigchan := make(chan os.Signal, 1)
		signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)
		<-sigchan
		log.Info("Shutdown signal received, gracefully shutting down...")
		cancel()
	}()

	// Wire the pipeline and run the evolution loop
	runner := backtest.NewRunner(log)
	auditor := audit.New(audit.Config{
		OverfitSharpeGap:  cfg.Audit.OverfitSharpeGap,
		PerfectWinRate:    cfg.Audit.PerfectWinRate,
		SuspiciousWinRate: cfg.Audit.SuspiciousWinRate,
		MinTrades:         cfg.Audit.MinTrades,
		MaxGapFactor:      cfg.Audit.MaxGapFactor,
		MaxPriceJump:      cfg.Audit.MaxPriceJump,
	}, log)
	store := lifecycle.NewStore(db, log)

	engine := evolution.NewEngine(log, &cfg, registry, runner, auditor, store, dataClient)
	engine.Run(ctx)

	log.Info("Pipeline has been shut down.")
}

// registerStrategies installs the built-in reference strategies.
func registerStrategies(registry *strategy.Registry) error {
	crossover, err := strategy.NewSMACrossover(10, 30)
	if err != nil {
		return err
	}
	if err := registry.Register(crossover); err != nil {
		return err
	}

	momentum, err := strategy.NewMomentum(5, 0.03)
	if err != nil {
		return err
	}
	return registry.Register(momentum)
}
