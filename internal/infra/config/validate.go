package config

import (
	"fmt"
	"strings"

	"foresight/internal/domain"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...interface{}) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a
// *ValidationError when one or more problems are found, allowing callers
// to see every issue at once.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateLogger(cfg, ve)
	validatePayment(cfg, ve)
	validateBreeding(cfg, ve)
	validateCatalog(cfg, ve)
	validateScheduler(cfg, ve)
	validateAgents(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

func validateLogger(cfg *Config, ve *ValidationError) {
	switch cfg.Logger.Level {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		ve.Add("logger.level %q is not a known level", cfg.Logger.Level)
	}
	switch cfg.Logger.Format {
	case "", "text", "json":
	default:
		ve.Add("logger.format %q must be text or json", cfg.Logger.Format)
	}
}

func validatePayment(cfg *Config, ve *ValidationError) {
	min, err := domain.ParseAmount(cfg.Payment.MinAmount)
	if err != nil {
		ve.Add("payment.min_amount: %v", err)
	}
	max, err := domain.ParseAmount(cfg.Payment.MaxAmount)
	if err != nil {
		ve.Add("payment.max_amount: %v", err)
	}
	if err == nil && max < min {
		ve.Add("payment.max_amount %s below min_amount %s", cfg.Payment.MaxAmount, cfg.Payment.MinAmount)
	}
	if cfg.Payment.Currency == "" {
		ve.Add("payment.currency must not be empty")
	}
}

func validateBreeding(cfg *Config, ve *ValidationError) {
	if cfg.Breeding.MutationRate < 0 || cfg.Breeding.MutationRate > 1 {
		ve.Add("breeding.mutation_rate must be in [0,1]")
	}
	if cfg.Breeding.MinPredictions < 0 {
		ve.Add("breeding.min_predictions must be >= 0")
	}
	if _, err := domain.ParseAmount(cfg.Breeding.Cost); err != nil {
		ve.Add("breeding.cost: %v", err)
	}
	if _, err := domain.ParseAmount(cfg.Breeding.OffspringBalance); err != nil {
		ve.Add("breeding.offspring_balance: %v", err)
	}
}

func validateCatalog(cfg *Config, ve *ValidationError) {
	if cfg.Catalog.RateLimit < 0 {
		ve.Add("catalog.rate_limit must be >= 0")
	}
	for topic, entries := range cfg.Catalog.Topics {
		for i, e := range entries {
			if e.ID == "" {
				ve.Add("catalog.topics.%s[%d]: id must not be empty", topic, i)
			}
			if _, err := domain.ParseAmount(e.Price); err != nil {
				ve.Add("catalog.topics.%s[%d].price: %v", topic, i, err)
			}
			if _, err := ParseCategory(e.Category); err != nil {
				ve.Add("catalog.topics.%s[%d]: %v", topic, i, err)
			}
			switch domain.Quality(e.Quality) {
			case domain.QualityHigh, domain.QualityMedium, domain.QualityLow:
			default:
				ve.Add("catalog.topics.%s[%d]: unknown quality %q", topic, i, e.Quality)
			}
			switch domain.Freshness(e.Freshness) {
			case domain.FreshnessFresh, domain.FreshnessRecent, domain.FreshnessStale:
			default:
				ve.Add("catalog.topics.%s[%d]: unknown freshness %q", topic, i, e.Freshness)
			}
		}
	}
}

func validateScheduler(cfg *Config, ve *ValidationError) {
	if cfg.Scheduler.Enabled && cfg.Scheduler.Spec == "" {
		ve.Add("scheduler.spec must not be empty when scheduler is enabled")
	}
	if cfg.Scheduler.Enabled && cfg.Scheduler.Topic == "" {
		ve.Add("scheduler.topic must not be empty when scheduler is enabled")
	}
}

func validateAgents(cfg *Config, ve *ValidationError) {
	for i, seed := range cfg.Agents {
		if _, err := domain.ParseAmount(seed.Balance); err != nil {
			ve.Add("agents[%d].balance: %v", i, err)
		}
		profile, err := seed.Strategy.ToProfile()
		if err != nil {
			ve.Add("agents[%d].strategy: %v", i, err)
			continue
		}
		if err := profile.Validate(); err != nil {
			ve.Add("agents[%d].strategy: %v", i, err)
		}
	}
}

// ParseCategory converts a config category string, rejecting unknown names.
func ParseCategory(s string) (domain.Category, error) {
	c := domain.Category(s)
	for _, k := range domain.KnownCategories {
		if c == k {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown category %q", s)
}

// ToProfile converts the config form into a domain StrategyProfile,
// parsing decimal budgets into fixed-point amounts.
func (s StrategyConfig) ToProfile() (domain.StrategyProfile, error) {
	maxBudget, err := domain.ParseAmount(s.MaxBudget)
	if err != nil {
		return domain.StrategyProfile{}, fmt.Errorf("max_budget: %w", err)
	}
	minBudget, err := domain.ParseAmount(s.MinBudget)
	if err != nil {
		return domain.StrategyProfile{}, fmt.Errorf("min_budget: %w", err)
	}

	var types []domain.Category
	for _, t := range s.PreferredTypes {
		c, err := ParseCategory(t)
		if err != nil {
			return domain.StrategyProfile{}, err
		}
		types = append(types, c)
	}

	var weights map[domain.Category]float64
	if len(s.SourceWeights) > 0 {
		weights = make(map[domain.Category]float64, len(s.SourceWeights))
		for name, w := range s.SourceWeights {
			c, err := ParseCategory(name)
			if err != nil {
				return domain.StrategyProfile{}, err
			}
			weights[c] = w
		}
	}

	speed := domain.SpeedPreference(s.SpeedPreference)
	if speed == "" {
		speed = domain.SpeedBalanced
	}

	return domain.StrategyProfile{
		RiskTolerance:        s.RiskTolerance,
		ConfidenceThreshold:  s.ConfidenceThreshold,
		MaxBudget:            maxBudget,
		MinBudget:            minBudget,
		MaxResourceCount:     s.MaxResourceCount,
		PreferredTypes:       types,
		MinQuality:           s.MinQuality,
		MinFreshness:         s.MinFreshness,
		SpeedPreference:      speed,
		DiversificationBonus: s.DiversificationBonus,
		CostEfficiencyWeight: s.CostEfficiencyWeight,
		SourceWeights:        weights,
	}, nil
}
