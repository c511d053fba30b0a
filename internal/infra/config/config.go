package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// LoggerConfig controls structured logging output.
type LoggerConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
	Output string `yaml:"output"` // stdout, stderr, or a file path
}

// TracerConfig controls OpenTelemetry tracing.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"` // "stdout" or "noop"
}

// PaymentConfig holds the protocol-wide settlement constraints. Amounts
// are decimal strings at this boundary and parsed into fixed-point
// micro-units on load.
type PaymentConfig struct {
	MinAmount string `yaml:"min_amount"`
	MaxAmount string `yaml:"max_amount"`
	Currency  string `yaml:"currency"`
}

// AllocatorConfig tunes resource scoring.
type AllocatorConfig struct {
	TypeBonus    float64 `yaml:"type_bonus"`
	PriceEpsilon float64 `yaml:"price_epsilon"`
}

// BreedingConfig holds evolution engine parameters.
type BreedingConfig struct {
	MutationRate     float64 `yaml:"mutation_rate"`
	Cost             string  `yaml:"cost"`
	MinPredictions   int     `yaml:"min_predictions"`
	OffspringBalance string  `yaml:"offspring_balance"`
}

// WalletConfig configures the local signing keystore.
type WalletConfig struct {
	Dir        string `yaml:"dir"`
	Passphrase string `yaml:"passphrase"` // overridden by FORESIGHT_WALLET_PASSPHRASE
}

// StoreConfig configures the SQLite write-behind store.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// ResourceEntry is one catalog resource in config form.
type ResourceEntry struct {
	ID        string `yaml:"id"`
	Price     string `yaml:"price"`
	Currency  string `yaml:"currency"`
	Category  string `yaml:"category"`
	Quality   string `yaml:"quality"`
	Freshness string `yaml:"freshness"`
}

// CatalogConfig configures the static catalog provider and its rate limit.
type CatalogConfig struct {
	RateLimit float64                    `yaml:"rate_limit"` // requests per second, 0 = unlimited
	Burst     int                        `yaml:"burst"`
	Topics    map[string][]ResourceEntry `yaml:"topics"`
}

// SchedulerConfig configures periodic analysis cycles.
type SchedulerConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Spec         string        `yaml:"spec"`
	Topic        string        `yaml:"topic"`
	CycleTimeout time.Duration `yaml:"cycle_timeout"`
}

// StrategyConfig is a strategy profile in config form. Budgets are decimal
// strings; everything else decodes directly. Unknown trait names anywhere
// in the file are rejected by strict decoding.
type StrategyConfig struct {
	RiskTolerance        float64            `yaml:"risk_tolerance"`
	ConfidenceThreshold  float64            `yaml:"confidence_threshold"`
	MaxBudget            string             `yaml:"max_budget"`
	MinBudget            string             `yaml:"min_budget"`
	MaxResourceCount     int                `yaml:"max_resource_count"`
	PreferredTypes       []string           `yaml:"preferred_types"`
	MinQuality           float64            `yaml:"min_quality"`
	MinFreshness         float64            `yaml:"min_freshness"`
	SpeedPreference      string             `yaml:"speed_preference"`
	DiversificationBonus float64            `yaml:"diversification_bonus"`
	CostEfficiencyWeight float64            `yaml:"cost_efficiency_weight"`
	SourceWeights        map[string]float64 `yaml:"source_weights"`
}

// AgentSeed declares an agent to create at startup.
type AgentSeed struct {
	Balance  string         `yaml:"balance"`
	Strategy StrategyConfig `yaml:"strategy"`
}

// Config is the top-level application configuration.
type Config struct {
	Logger    LoggerConfig    `yaml:"logger"`
	Tracer    TracerConfig    `yaml:"tracer"`
	Payment   PaymentConfig   `yaml:"payment"`
	Allocator AllocatorConfig `yaml:"allocator"`
	Breeding  BreedingConfig  `yaml:"breeding"`
	Wallet    WalletConfig    `yaml:"wallet"`
	Store     StoreConfig     `yaml:"store"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Agents    []AgentSeed     `yaml:"agents"`
}

// Default returns a configuration with sensible defaults applied.
func Default() *Config {
	return &Config{
		Logger: LoggerConfig{Level: "info", Format: "text", Output: "stderr"},
		Tracer: TracerConfig{Enabled: false, Exporter: "noop"},
		Payment: PaymentConfig{
			MinAmount: "0.000001",
			MaxAmount: "100",
			Currency:  "USDC",
		},
		Breeding: BreedingConfig{
			MutationRate:     0.1,
			Cost:             "0.1",
			MinPredictions:   5,
			OffspringBalance: "1",
		},
		Wallet:    WalletConfig{Dir: "./data/keys"},
		Store:     StoreConfig{Path: "./data/foresight.db"},
		Scheduler: SchedulerConfig{Spec: "@every 1m", Topic: "general"},
	}
}

// Load reads, strictly decodes, and validates a YAML config file. Unknown
// fields, including unknown strategy trait names, are decode errors, not
// silently dropped. The wallet passphrase may come from the environment.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if pass := os.Getenv("FORESIGHT_WALLET_PASSPHRASE"); pass != "" {
		cfg.Wallet.Passphrase = pass
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
