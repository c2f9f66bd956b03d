// Package config loads the trade engine's static configuration and hosts the
// runtime-mutable per-symbol trading configuration tree described by the
// engine's /api/v1/config/trading control surface.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration, loaded once at startup
// from a YAML file (cmd/tradeengine takes the path from the
// TRADEENGINE_CONFIG environment variable; an empty path or a missing file
// yields Default()), following the teacher's own server-config shape.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Mongo      MongoConfig      `yaml:"mongo"`
	Analytics  AnalyticsConfig  `yaml:"analytics"`
	NATS       NATSConfig       `yaml:"nats"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	Aggregator AggregatorConfig `yaml:"aggregator"`
	Dispatch   DispatchConfig   `yaml:"dispatch"`
	OCO        OCOConfig        `yaml:"oco"`
	Risk       RiskConfig       `yaml:"risk"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownGrace   time.Duration `yaml:"shutdown_grace"`
	EnableCORS      bool          `yaml:"enable_cors"`
	CORSOrigins     []string      `yaml:"cors_origins"`
	RateLimitRPS    int           `yaml:"rate_limit_rps"`
}

// MongoConfig configures the document-store primary persistence layer.
type MongoConfig struct {
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
}

// AnalyticsConfig configures the best-effort relational mirror store.
type AnalyticsConfig struct {
	DSN             string        `yaml:"dsn"`
	SyncInterval    time.Duration `yaml:"sync_interval"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
}

// NATSConfig configures the signal-ingestion message bus.
type NATSConfig struct {
	URLs       []string `yaml:"urls"`
	Subject    string   `yaml:"subject"`
	QueueGroup string   `yaml:"queue_group"`
}

// ExchangeConfig configures the venue adapter.
type ExchangeConfig struct {
	HedgeModeEnabled bool          `yaml:"hedge_mode_enabled"`
	CallTimeout      time.Duration `yaml:"call_timeout"`
	MaxRetries       int           `yaml:"max_retries"`
	BackoffBase      time.Duration `yaml:"backoff_base"`
}

// AggregatorConfig configures the signal aggregator's default behavior.
type AggregatorConfig struct {
	WindowDuration                time.Duration `yaml:"window_duration"`
	DefaultPolicy                 string        `yaml:"default_policy"`
	QuorumThreshold                float64       `yaml:"quorum_threshold"`
	SameDirectionConflictResolution string       `yaml:"same_direction_conflict_resolution"`
}

// DispatchConfig configures the dispatcher pipeline.
type DispatchConfig struct {
	MinConfidence        float64       `yaml:"min_confidence"`
	LockTimeout          time.Duration `yaml:"lock_timeout"`
	DailyLossLimit       float64       `yaml:"daily_loss_limit"`
	MaxPositionNotional  float64       `yaml:"max_position_notional"`
	MaxPortfolioExposure float64       `yaml:"max_portfolio_exposure"`
	AutoCloseUnprotected bool          `yaml:"auto_close_unprotected"`
	ShutdownGrace        time.Duration `yaml:"shutdown_grace"`
	DefaultOrderType     string        `yaml:"default_order_type"`
	DefaultStopLossPct   float64       `yaml:"default_stop_loss_pct"`
	DefaultTakeProfitPct float64       `yaml:"default_take_profit_pct"`
}

// OCOConfig configures the OCO monitor.
type OCOConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
}

// RiskConfig configures the synchronous risk checks the dispatcher runs.
type RiskConfig struct {
	MaxSymbolPositionNotional float64 `yaml:"max_symbol_position_notional"`
	MaxPortfolioExposure      float64 `yaml:"max_portfolio_exposure"`
	DailyLossLimit            float64 `yaml:"daily_loss_limit"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level string `yaml:"level"`
	Env   string `yaml:"env"`
}

// Default returns a configuration with sane defaults matching the values
// named throughout the specification (200ms window, 60s lock timeout, 2s
// OCO poll interval, 3 venue retries, and so on).
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0", Port: 8080,
			ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second,
			IdleTimeout: 60 * time.Second, ShutdownGrace: 30 * time.Second,
			RateLimitRPS: 100,
		},
		Mongo:     MongoConfig{URI: "mongodb://localhost:27017", Database: "tradeengine"},
		Analytics: AnalyticsConfig{SyncInterval: 30 * time.Second, WriteTimeout: 5 * time.Second},
		NATS: NATSConfig{
			URLs: []string{"nats://localhost:4222"},
			Subject: "signals.trading", QueueGroup: "petrosa-tradeengine",
		},
		Exchange: ExchangeConfig{
			HedgeModeEnabled: true, CallTimeout: 10 * time.Second,
			MaxRetries: 3, BackoffBase: 1 * time.Second,
		},
		Aggregator: AggregatorConfig{
			WindowDuration: 200 * time.Millisecond, DefaultPolicy: "timeframe_weighted",
			QuorumThreshold: 0.15, SameDirectionConflictResolution: "accumulate",
		},
		Dispatch: DispatchConfig{
			MinConfidence: 0.5, LockTimeout: 60 * time.Second,
			DailyLossLimit: 5000, MaxPositionNotional: 50000, MaxPortfolioExposure: 250000,
			AutoCloseUnprotected: false, ShutdownGrace: 30 * time.Second,
			DefaultOrderType: "market", DefaultStopLossPct: 0.02, DefaultTakeProfitPct: 0.04,
		},
		OCO: OCOConfig{PollInterval: 2 * time.Second},
		Risk: RiskConfig{
			MaxSymbolPositionNotional: 50000, MaxPortfolioExposure: 250000, DailyLossLimit: 5000,
		},
		Logging: LoggingConfig{Level: "info", Env: "production"},
	}
}

// Load reads and parses a YAML configuration file, overlaying it on the
// default configuration so partial files are valid.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}
