package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"foresight/internal/domain"
)

func testParents() (domain.Agent, domain.Agent) {
	a := domain.Agent{
		ID:         "parent-a",
		Generation: 2,
		Strategy: domain.StrategyProfile{
			RiskTolerance:        0.3,
			ConfidenceThreshold:  0.6,
			MaxBudget:            domain.MustParseAmount("0.10"),
			MinBudget:            domain.MustParseAmount("0.01"),
			MaxResourceCount:     3,
			PreferredTypes:       []domain.Category{domain.CategoryAcademic},
			MinQuality:           0.5,
			MinFreshness:         0.3,
			SpeedPreference:      domain.SpeedThorough,
			DiversificationBonus: 0.2,
			CostEfficiencyWeight: 0.5,
			SourceWeights:        map[domain.Category]float64{domain.CategoryAcademic: 0.8},
		},
	}
	b := domain.Agent{
		ID:         "parent-b",
		Generation: 5,
		Strategy: domain.StrategyProfile{
			RiskTolerance:        0.7,
			ConfidenceThreshold:  0.8,
			MaxBudget:            domain.MustParseAmount("0.20"),
			MinBudget:            domain.MustParseAmount("0.02"),
			MaxResourceCount:     5,
			PreferredTypes:       []domain.Category{domain.CategoryNews},
			MinQuality:           0.0,
			MinFreshness:         0.7,
			SpeedPreference:      domain.SpeedFast,
			DiversificationBonus: 0.6,
			CostEfficiencyWeight: 0.9,
			SourceWeights:        map[domain.Category]float64{domain.CategoryNews: 0.6},
		},
	}
	return a, b
}

func TestGeneticEngine_GenerationIsMaxPlusOne(t *testing.T) {
	engine := NewGeneticEngine(BreedingConfig{MutationRate: 0.1}, 1, nil)
	a, b := testParents()

	result := engine.Breed(a, b, 0)
	assert.Equal(t, 6, result.Generation)
	assert.Equal(t, [2]string{"parent-a", "parent-b"}, result.ParentIDs)
}

func TestGeneticEngine_CrossoverTakesTraitsFromParents(t *testing.T) {
	engine := NewGeneticEngine(BreedingConfig{}, 42, nil)
	a, b := testParents()

	// Zero mutation rate: every scalar trait must come verbatim from one
	// parent, and source weights must be the mean.
	result := engine.Breed(a, b, 0)
	child := result.OffspringStrategy

	assert.Contains(t, []float64{0.3, 0.7}, child.RiskTolerance)
	assert.Contains(t, []float64{0.6, 0.8}, child.ConfidenceThreshold)
	assert.Contains(t, []int{3, 5}, child.MaxResourceCount)
	assert.Contains(t, []domain.SpeedPreference{domain.SpeedThorough, domain.SpeedFast}, child.SpeedPreference)

	assert.InDelta(t, 0.4, child.SourceWeights[domain.CategoryAcademic], 1e-12)
	assert.InDelta(t, 0.3, child.SourceWeights[domain.CategoryNews], 1e-12)

	// Weighted categories become the preferred set.
	assert.ElementsMatch(t,
		[]domain.Category{domain.CategoryAcademic, domain.CategoryNews},
		child.PreferredTypes)

	assert.Equal(t, 0, result.MutationCount)
	assert.Empty(t, result.MutatedTraits)
}

func TestGeneticEngine_OffspringAlwaysValid(t *testing.T) {
	engine := NewGeneticEngine(BreedingConfig{MutationRate: 1.0}, 7, nil)
	a, b := testParents()

	// Full mutation rate for many trials: every offspring must stay inside
	// the trait domains and keep budget ordering.
	for i := 0; i < 10_000; i++ {
		result := engine.Breed(a, b, 1.0)
		child := result.OffspringStrategy

		require.NoError(t, child.Validate(), "trial %d", i)
		require.GreaterOrEqual(t, child.MaxResourceCount, 1, "trial %d", i)
		require.LessOrEqual(t, child.MaxResourceCount, 10, "trial %d", i)
		require.GreaterOrEqual(t, child.MaxBudget, child.MinBudget, "trial %d", i)
		require.NotEmpty(t, result.MutatedTraits, "trial %d", i)
	}
}

func TestGeneticEngine_FixedSeedReproducible(t *testing.T) {
	a, b := testParents()

	first := NewGeneticEngine(BreedingConfig{MutationRate: 0.5}, 99, nil).Breed(a, b, 0)
	second := NewGeneticEngine(BreedingConfig{MutationRate: 0.5}, 99, nil).Breed(a, b, 0)

	assert.Equal(t, first.OffspringStrategy, second.OffspringStrategy)
	assert.Equal(t, first.MutatedTraits, second.MutatedTraits)
}

func TestGeneticEngine_ParentsNotMutated(t *testing.T) {
	engine := NewGeneticEngine(BreedingConfig{MutationRate: 1.0}, 3, nil)
	a, b := testParents()
	beforeA := a.Strategy.Clone()
	beforeB := b.Strategy.Clone()

	engine.Breed(a, b, 1.0)

	assert.Equal(t, beforeA, a.Strategy)
	assert.Equal(t, beforeB, b.Strategy)
}

func TestEstimateFitness_Range(t *testing.T) {
	a, b := testParents()
	engine := NewGeneticEngine(BreedingConfig{MutationRate: 0.5}, 11, nil)

	for i := 0; i < 100; i++ {
		result := engine.Breed(a, b, 0)
		assert.GreaterOrEqual(t, result.ExpectedFitness, 0.0)
		assert.LessOrEqual(t, result.ExpectedFitness, 1.0)
	}
}

func TestEstimateFitness_RewardsBalancedProfiles(t *testing.T) {
	balanced := domain.StrategyProfile{
		RiskTolerance:        0.5,
		ConfidenceThreshold:  0.7,
		CostEfficiencyWeight: 0.9,
		SourceWeights:        map[domain.Category]float64{domain.CategoryAcademic: 0.5, domain.CategoryNews: 0.5},
	}
	extreme := domain.StrategyProfile{
		RiskTolerance:        1.0,
		ConfidenceThreshold:  0.1,
		CostEfficiencyWeight: 0.1,
	}
	assert.Greater(t, estimateFitness(balanced), estimateFitness(extreme))
}
