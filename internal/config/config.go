package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the pipeline.
type Config struct {
	MarketData MarketData `mapstructure:"market_data"`
	Backtest   Backtest   `mapstructure:"backtest"`
	Audit      Audit      `mapstructure:"audit"`
	Promotion  Promotion  `mapstructure:"promotion"`
	Cycle      Cycle      `mapstructure:"cycle"`
	Logger     Logger     `mapstructure:"logger"`
	Server     Server     `mapstructure:"server"`
	Database   Database   `mapstructure:"database"`
}

// MarketData holds the configuration for the historical data client.
type MarketData struct {
	BaseURL        string   `mapstructure:"base_url"`
	Symbols        []string `mapstructure:"symbols"`
	Interval       string   `mapstructure:"interval"`
	BarLimit       int      `mapstructure:"bar_limit"`
	RateLimit      float64  `mapstructure:"rate_limit"`
	RateLimitBurst int      `mapstructure:"rate_limit_burst"`
}

// Backtest holds the walk-forward simulation parameters.
type Backtest struct {
	TrainWindow  int     `mapstructure:"train_window"`
	TestWindow   int     `mapstructure:"test_window"`
	Step         int     `mapstructure:"step"`
	RiskFreeRate float64 `mapstructure:"risk_free_rate"`
}

// Audit holds the thresholds for the deterministic audit checks.
type Audit struct {
	OverfitSharpeGap  float64 `mapstructure:"overfit_sharpe_gap"`
	PerfectWinRate    float64 `mapstructure:"perfect_win_rate"`
	SuspiciousWinRate float64 `mapstructure:"suspicious_win_rate"`
	MinTrades         int     `mapstructure:"min_trades"`
	MaxGapFactor      float64 `mapstructure:"max_gap_factor"`
	MaxPriceJump      float64 `mapstructure:"max_price_jump"`
}

// Promotion holds the gates a paper-testing candidate must clear.
type Promotion struct {
	TestingDays     int      `mapstructure:"testing_days"`
	MinSignals      int      `mapstructure:"min_signals"`
	LegacySurvivors []string `mapstructure:"legacy_survivors"`
}

// Cycle holds the configuration for the evolution loop.
type Cycle struct {
	TickInterval int `mapstructure:"tick_interval"` // seconds
	Workers      int `mapstructure:"workers"`
}

// Server holds the configuration for the dashboard server.
type Server struct {
	Port int `mapstructure:"port"`
}

// Database holds the configuration for the lifecycle ledger.
type Database struct {
	DSN string `mapstructure:"dsn"`
}

// Logger holds the configuration for the logger.
type Logger struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yml")

	// Allow environment variables to override config file
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Documented defaults
	viper.SetDefault("market_data.base_url", "https://api.binance.com/api/v3")
	viper.SetDefault("market_data.interval", "1d")
	viper.SetDefault("market_data.bar_limit", 500)
	viper.SetDefault("market_data.rate_limit", 20)
	viper.SetDefault("market_data.rate_limit_burst", 5)
	viper.SetDefault("backtest.train_window", 60)
	viper.SetDefault("backtest.test_window", 20)
	viper.SetDefault("backtest.step", 20)
	viper.SetDefault("backtest.risk_free_rate", 0.05)
	viper.SetDefault("audit.overfit_sharpe_gap", 1.0)
	viper.SetDefault("audit.perfect_win_rate", 1.0)
	viper.SetDefault("audit.suspicious_win_rate", 0.95)
	viper.SetDefault("audit.min_trades", 5)
	viper.SetDefault("audit.max_gap_factor", 3.0)
	viper.SetDefault("audit.max_price_jump", 0.5)
	viper.SetDefault("promotion.testing_days", 14)
	viper.SetDefault("promotion.min_signals", 10)
	viper.SetDefault("cycle.tick_interval", 3600)
	viper.SetDefault("cycle.workers", 4)

	err = viper.ReadInConfig()
	if err != nil {
		return
	}

	if err = viper.Unmarshal(&config); err != nil {
		return
	}

	err = config.Validate()
	return
}

// Validate rejects configurations that would produce silently wrong
// results. It runs once at load time, before any simulation begins.
func (c Config) Validate() error {
	if c.Backtest.TrainWindow < 1 {
		return fmt.Errorf("backtest.train_window must be >= 1, got %d", c.Backtest.TrainWindow)
	}
	if c.Backtest.TestWindow < 1 {
		return fmt.Errorf("backtest.test_window must be >= 1, got %d", c.Backtest.TestWindow)
	}
	if c.Backtest.Step < 1 {
		return fmt.Errorf("backtest.step must be >= 1, got %d", c.Backtest.Step)
	}
	if c.Audit.OverfitSharpeGap <= 0 {
		return fmt.Errorf("audit.overfit_sharpe_gap must be > 0, got %f", c.Audit.OverfitSharpeGap)
	}
	if c.Audit.SuspiciousWinRate <= 0 || c.Audit.SuspiciousWinRate > c.Audit.PerfectWinRate {
		return fmt.Errorf("audit win-rate cutoffs invalid: suspicious=%f perfect=%f",
			c.Audit.SuspiciousWinRate, c.Audit.PerfectWinRate)
	}
	if c.Promotion.TestingDays < 1 {
		return fmt.Errorf("promotion.testing_days must be >= 1, got %d", c.Promotion.TestingDays)
	}
	if c.Promotion.MinSignals < 1 {
		return fmt.Errorf("promotion.min_signals must be >= 1, got %d", c.Promotion.MinSignals)
	}
	if c.Cycle.Workers < 1 {
		return fmt.Errorf("cycle.workers must be >= 1, got %d", c.Cycle.Workers)
	}
	return nil
}
