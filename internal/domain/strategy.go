package domain

import "fmt"

// SpeedPreference expresses how much latency an agent tolerates when
// gathering research.
type SpeedPreference string

const (
	SpeedFast     SpeedPreference = "fast"
	SpeedBalanced SpeedPreference = "balanced"
	SpeedThorough SpeedPreference = "thorough"
)

// StrategyProfile is the numeric/categorical parameter set governing an
// agent's purchasing and risk behavior. It is immutable once assigned to
// an agent; new profiles are only produced by breeding.
type StrategyProfile struct {
	RiskTolerance        float64              `json:"risk_tolerance" yaml:"risk_tolerance"`
	ConfidenceThreshold  float64              `json:"confidence_threshold" yaml:"confidence_threshold"`
	MaxBudget            Amount               `json:"max_budget" yaml:"-"`
	MinBudget            Amount               `json:"min_budget" yaml:"-"`
	MaxResourceCount     int                  `json:"max_resource_count" yaml:"max_resource_count"`
	PreferredTypes       []Category           `json:"preferred_types" yaml:"preferred_types"`
	MinQuality           float64              `json:"min_quality" yaml:"min_quality"`
	MinFreshness         float64              `json:"min_freshness" yaml:"min_freshness"`
	SpeedPreference      SpeedPreference      `json:"speed_preference" yaml:"speed_preference"`
	DiversificationBonus float64              `json:"diversification_bonus" yaml:"diversification_bonus"`
	CostEfficiencyWeight float64              `json:"cost_efficiency_weight" yaml:"cost_efficiency_weight"`
	SourceWeights        map[Category]float64 `json:"source_weights,omitempty" yaml:"source_weights,omitempty"`
}

// Prefers reports whether the category is one of the profile's preferred
// types. An empty preference set prefers nothing (and filters nothing).
func (p StrategyProfile) Prefers(c Category) bool {
	for _, t := range p.PreferredTypes {
		if t == c {
			return true
		}
	}
	return false
}

// Validate rejects out-of-domain profiles at the boundary. Unknown trait
// names are rejected earlier by strict YAML decoding; this checks ranges.
func (p StrategyProfile) Validate() error {
	if p.RiskTolerance < 0 || p.RiskTolerance > 1 {
		return fmt.Errorf("%w: risk_tolerance %v outside [0,1]", ErrValidation, p.RiskTolerance)
	}
	if p.ConfidenceThreshold < 0 || p.ConfidenceThreshold > 1 {
		return fmt.Errorf("%w: confidence_threshold %v outside [0,1]", ErrValidation, p.ConfidenceThreshold)
	}
	if p.MaxBudget <= 0 || p.MinBudget <= 0 {
		return fmt.Errorf("%w: budgets must be positive", ErrValidation)
	}
	if p.MaxBudget < p.MinBudget {
		return fmt.Errorf("%w: max_budget %s below min_budget %s", ErrValidation, p.MaxBudget, p.MinBudget)
	}
	if p.MaxResourceCount < 1 {
		return fmt.Errorf("%w: max_resource_count must be >= 1", ErrValidation)
	}
	if p.MinQuality < 0 || p.MinQuality > 1 {
		return fmt.Errorf("%w: min_quality %v outside [0,1]", ErrValidation, p.MinQuality)
	}
	if p.MinFreshness < 0 || p.MinFreshness > 1 {
		return fmt.Errorf("%w: min_freshness %v outside [0,1]", ErrValidation, p.MinFreshness)
	}
	if p.DiversificationBonus < 0 || p.DiversificationBonus > 1 {
		return fmt.Errorf("%w: diversification_bonus %v outside [0,1]", ErrValidation, p.DiversificationBonus)
	}
	if p.CostEfficiencyWeight < 0 || p.CostEfficiencyWeight > 1 {
		return fmt.Errorf("%w: cost_efficiency_weight %v outside [0,1]", ErrValidation, p.CostEfficiencyWeight)
	}
	switch p.SpeedPreference {
	case SpeedFast, SpeedBalanced, SpeedThorough:
	default:
		return fmt.Errorf("%w: unknown speed_preference %q", ErrValidation, p.SpeedPreference)
	}
	for _, c := range p.PreferredTypes {
		if !knownCategory(c) {
			return fmt.Errorf("%w: unknown preferred type %q", ErrValidation, c)
		}
	}
	for c, w := range p.SourceWeights {
		if !knownCategory(c) {
			return fmt.Errorf("%w: unknown source weight category %q", ErrValidation, c)
		}
		if w < 0 || w > 1 {
			return fmt.Errorf("%w: source weight for %q outside [0,1]", ErrValidation, c)
		}
	}
	return nil
}

// Clone returns a deep copy safe to hand to other goroutines.
func (p StrategyProfile) Clone() StrategyProfile {
	cp := p
	cp.PreferredTypes = append([]Category(nil), p.PreferredTypes...)
	if p.SourceWeights != nil {
		cp.SourceWeights = make(map[Category]float64, len(p.SourceWeights))
		for k, v := range p.SourceWeights {
			cp.SourceWeights[k] = v
		}
	}
	return cp
}

func knownCategory(c Category) bool {
	for _, k := range KnownCategories {
		if k == c {
			return true
		}
	}
	return false
}
