package usecase

import (
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"time"

	"foresight/internal/domain"
)

// Trait names recorded when a mutation fires.
const (
	traitRiskTolerance        = "risk_tolerance"
	traitConfidenceThreshold  = "confidence_threshold"
	traitMaxBudget            = "max_budget"
	traitMinBudget            = "min_budget"
	traitMaxResourceCount     = "max_resource_count"
	traitMinQuality           = "min_quality"
	traitMinFreshness         = "min_freshness"
	traitSpeedPreference      = "speed_preference"
	traitDiversificationBonus = "diversification_bonus"
	traitCostEfficiencyWeight = "cost_efficiency_weight"
	traitSourceWeights        = "source_weights"
)

// Mutation perturbs a trait by up to this fraction of its value.
const mutationSpread = 0.2

// maxResourceCountCeiling bounds the resource-count trait domain [1,10].
const maxResourceCountCeiling = 10

// BreedingConfig holds the evolution engine's fixed parameters.
type BreedingConfig struct {
	// MutationRate is the per-trait mutation probability in [0,1].
	MutationRate float64 `yaml:"mutation_rate"`
	// Cost is deducted from each parent's balance when breeding succeeds.
	Cost domain.Amount `yaml:"-"`
	// MinPredictions is the resolved-prediction floor for eligibility.
	MinPredictions int `yaml:"min_predictions"`
	// OffspringBalance seeds the child agent's starting balance.
	OffspringBalance domain.Amount `yaml:"-"`
}

// GeneticEngine combines two parent strategy profiles into an offspring
// profile via crossover and mutation, and estimates its fitness. The engine
// is stateless apart from its random source; eligibility of the parents is
// the caller's responsibility.
type GeneticEngine struct {
	cfg    BreedingConfig
	logger *slog.Logger

	mu  sync.Mutex // guards rng; rand.Rand is not goroutine-safe
	rng *rand.Rand
}

// NewGeneticEngine creates an engine seeded from seed. Use a fixed seed in
// tests for reproducible offspring.
func NewGeneticEngine(cfg BreedingConfig, seed int64, logger *slog.Logger) *GeneticEngine {
	if cfg.MutationRate < 0 {
		cfg.MutationRate = 0
	}
	if cfg.MutationRate > 1 {
		cfg.MutationRate = 1
	}
	return &GeneticEngine{
		cfg:    cfg,
		logger: logger,
		rng:    rand.New(rand.NewSource(seed)),
	}
}

// Breed produces an offspring strategy from two parent snapshots.
// Crossover picks each scalar trait uniformly from one parent and averages
// the per-category source weights; mutation then perturbs each trait
// independently with probability mutationRate and clamps to the trait's
// domain. The fitness estimate is heuristic and advisory only.
func (e *GeneticEngine) Breed(parentA, parentB domain.Agent, mutationRate float64) domain.BreedingResult {
	if mutationRate <= 0 {
		mutationRate = e.cfg.MutationRate
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	child := e.crossover(parentA.Strategy, parentB.Strategy)
	mutated := e.mutate(&child, mutationRate)

	// Budget ordering can be violated when min and max come from different
	// parents or mutation pushes them past each other.
	if child.MaxBudget < child.MinBudget {
		child.MaxBudget, child.MinBudget = child.MinBudget, child.MaxBudget
	}

	generation := parentA.Generation
	if parentB.Generation > generation {
		generation = parentB.Generation
	}
	generation++

	result := domain.BreedingResult{
		OffspringStrategy: child,
		ExpectedFitness:   estimateFitness(child),
		MutationCount:     len(mutated),
		MutatedTraits:     mutated,
		Generation:        generation,
		ParentIDs:         [2]string{parentA.ID, parentB.ID},
		CreatedAt:         time.Now().UTC(),
	}

	if e.logger != nil {
		e.logger.Info("offspring strategy bred",
			"parent_a", parentA.ID,
			"parent_b", parentB.ID,
			"generation", generation,
			"mutations", len(mutated),
			"expected_fitness", result.ExpectedFitness,
		)
	}
	return result
}

func (e *GeneticEngine) crossover(a, b domain.StrategyProfile) domain.StrategyProfile {
	pick := func(x, y float64) float64 {
		if e.rng.Intn(2) == 0 {
			return x
		}
		return y
	}
	pickAmount := func(x, y domain.Amount) domain.Amount {
		if e.rng.Intn(2) == 0 {
			return x
		}
		return y
	}

	child := domain.StrategyProfile{
		RiskTolerance:        pick(a.RiskTolerance, b.RiskTolerance),
		ConfidenceThreshold:  pick(a.ConfidenceThreshold, b.ConfidenceThreshold),
		MaxBudget:            pickAmount(a.MaxBudget, b.MaxBudget),
		MinBudget:            pickAmount(a.MinBudget, b.MinBudget),
		MinQuality:           pick(a.MinQuality, b.MinQuality),
		MinFreshness:         pick(a.MinFreshness, b.MinFreshness),
		DiversificationBonus: pick(a.DiversificationBonus, b.DiversificationBonus),
		CostEfficiencyWeight: pick(a.CostEfficiencyWeight, b.CostEfficiencyWeight),
	}
	if e.rng.Intn(2) == 0 {
		child.MaxResourceCount = a.MaxResourceCount
	} else {
		child.MaxResourceCount = b.MaxResourceCount
	}
	if e.rng.Intn(2) == 0 {
		child.SpeedPreference = a.SpeedPreference
	} else {
		child.SpeedPreference = b.SpeedPreference
	}

	// Source-preference weights take the arithmetic mean of both parents.
	child.SourceWeights = meanWeights(a.SourceWeights, b.SourceWeights)

	// Preferred types follow from the averaged weights: any category either
	// parent weighted stays preferred.
	for _, c := range domain.KnownCategories {
		if child.SourceWeights[c] > 0 {
			child.PreferredTypes = append(child.PreferredTypes, c)
		}
	}
	if len(child.PreferredTypes) == 0 {
		// Neither parent carried weights; inherit one parent's preference set.
		src := a
		if e.rng.Intn(2) == 0 {
			src = b
		}
		child.PreferredTypes = append([]domain.Category(nil), src.PreferredTypes...)
	}
	return child
}

func meanWeights(a, b map[domain.Category]float64) map[domain.Category]float64 {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	out := make(map[domain.Category]float64)
	for _, c := range domain.KnownCategories {
		wa, oka := a[c]
		wb, okb := b[c]
		if !oka && !okb {
			continue
		}
		out[c] = (wa + wb) / 2
	}
	return out
}

// mutate perturbs each trait independently with probability rate and
// returns the names of the traits that changed.
func (e *GeneticEngine) mutate(p *domain.StrategyProfile, rate float64) []string {
	var mutated []string

	perturb := func(v float64) float64 {
		delta := mutationSpread * e.rng.Float64() * v
		if e.rng.Intn(2) == 0 {
			delta = -delta
		}
		return v + delta
	}
	ratio := func(name string, v *float64) {
		if e.rng.Float64() < rate {
			*v = clamp01(perturb(*v))
			mutated = append(mutated, name)
		}
	}

	ratio(traitRiskTolerance, &p.RiskTolerance)
	ratio(traitConfidenceThreshold, &p.ConfidenceThreshold)
	ratio(traitMinQuality, &p.MinQuality)
	ratio(traitMinFreshness, &p.MinFreshness)
	ratio(traitDiversificationBonus, &p.DiversificationBonus)
	ratio(traitCostEfficiencyWeight, &p.CostEfficiencyWeight)

	if e.rng.Float64() < rate {
		p.MaxBudget = perturbAmount(e.rng, p.MaxBudget)
		mutated = append(mutated, traitMaxBudget)
	}
	if e.rng.Float64() < rate {
		p.MinBudget = perturbAmount(e.rng, p.MinBudget)
		mutated = append(mutated, traitMinBudget)
	}
	if e.rng.Float64() < rate {
		count := perturb(float64(p.MaxResourceCount))
		p.MaxResourceCount = int(math.Round(count))
		if p.MaxResourceCount < 1 {
			p.MaxResourceCount = 1
		}
		if p.MaxResourceCount > maxResourceCountCeiling {
			p.MaxResourceCount = maxResourceCountCeiling
		}
		mutated = append(mutated, traitMaxResourceCount)
	}
	if e.rng.Float64() < rate {
		prefs := []domain.SpeedPreference{domain.SpeedFast, domain.SpeedBalanced, domain.SpeedThorough}
		p.SpeedPreference = prefs[e.rng.Intn(len(prefs))]
		mutated = append(mutated, traitSpeedPreference)
	}
	if len(p.SourceWeights) > 0 && e.rng.Float64() < rate {
		for c, w := range p.SourceWeights {
			p.SourceWeights[c] = clamp01(perturb(w))
		}
		mutated = append(mutated, traitSourceWeights)
	}

	return mutated
}

func perturbAmount(rng *rand.Rand, a domain.Amount) domain.Amount {
	delta := domain.Amount(mutationSpread * rng.Float64() * float64(a))
	if rng.Intn(2) == 0 {
		delta = -delta
	}
	out := a + delta
	if out < 1 {
		out = 1
	}
	return out
}

// estimateFitness scores an offspring strategy without running it:
// 0.3 x source diversity + 0.3 x balance + 0.4 x cost efficiency, where
// balance rewards moderate risk and a confidence threshold near 0.7.
func estimateFitness(p domain.StrategyProfile) float64 {
	var diversity float64
	for _, w := range p.SourceWeights {
		diversity += w
	}
	diversity = clamp01(diversity)

	balance := clamp01(1 - math.Abs(p.RiskTolerance-0.5) - math.Abs(p.ConfidenceThreshold-0.7))

	return clamp01(0.3*diversity + 0.3*balance + 0.4*p.CostEfficiencyWeight)
}
