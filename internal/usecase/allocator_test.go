package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"foresight/internal/domain"
)

func testStrategy() domain.StrategyProfile {
	return domain.StrategyProfile{
		RiskTolerance:        0.5,
		ConfidenceThreshold:  0.7,
		MaxBudget:            domain.MustParseAmount("0.12"),
		MinBudget:            domain.MustParseAmount("0.01"),
		MaxResourceCount:     3,
		PreferredTypes:       []domain.Category{domain.CategoryAcademic, domain.CategoryNews},
		MinQuality:           0.5,
		MinFreshness:         0.5,
		SpeedPreference:      domain.SpeedBalanced,
		CostEfficiencyWeight: 0.6,
	}
}

func resource(id string, price string, cat domain.Category, q domain.Quality, f domain.Freshness) domain.ResearchResource {
	return domain.ResearchResource{
		ID: id, Price: domain.MustParseAmount(price), Currency: "USDC",
		Category: cat, Quality: q, Freshness: f,
	}
}

func TestAllocator_SelectsPreferredUnderBudget(t *testing.T) {
	al := NewAllocator(AllocatorConfig{}, nil)
	catalog := []domain.ResearchResource{
		resource("acad-1", "0.05", domain.CategoryAcademic, domain.QualityHigh, domain.FreshnessFresh),
		resource("news-1", "0.02", domain.CategoryNews, domain.QualityHigh, domain.FreshnessFresh),
		resource("data-1", "0.08", domain.CategoryData, domain.QualityMedium, domain.FreshnessRecent),
		resource("social-1", "0.01", domain.CategorySocial, domain.QualityLow, domain.FreshnessStale),
	}

	decisions := al.SelectResources(testStrategy(), catalog)
	require.Len(t, decisions, 2)

	var total domain.Amount
	ids := map[string]bool{}
	for _, d := range decisions {
		total += d.Resource.Price
		ids[d.Resource.ID] = true
		assert.NotEmpty(t, d.Reasoning)
		assert.Greater(t, d.ExpectedValue, 0.0)
	}
	assert.True(t, ids["acad-1"])
	assert.True(t, ids["news-1"])
	assert.Equal(t, domain.MustParseAmount("0.07"), total)
}

func TestAllocator_BudgetAndCountInvariants(t *testing.T) {
	al := NewAllocator(AllocatorConfig{}, nil)
	strategy := testStrategy()
	strategy.PreferredTypes = nil
	strategy.MinQuality = 0
	strategy.MinFreshness = 0
	strategy.MaxResourceCount = 2

	catalog := []domain.ResearchResource{
		resource("a", "0.04", domain.CategoryAcademic, domain.QualityHigh, domain.FreshnessFresh),
		resource("b", "0.04", domain.CategoryNews, domain.QualityHigh, domain.FreshnessFresh),
		resource("c", "0.04", domain.CategoryData, domain.QualityHigh, domain.FreshnessFresh),
	}

	decisions := al.SelectResources(strategy, catalog)
	assert.Len(t, decisions, 2, "count cap binds before budget")

	var total domain.Amount
	seen := map[string]bool{}
	for _, d := range decisions {
		total += d.Resource.Price
		assert.False(t, seen[d.Resource.ID], "no duplicate selections")
		seen[d.Resource.ID] = true
	}
	assert.LessOrEqual(t, total, strategy.MaxBudget)
}

func TestAllocator_OverBudgetResourceSkippedNotStop(t *testing.T) {
	al := NewAllocator(AllocatorConfig{}, nil)
	strategy := testStrategy()
	strategy.PreferredTypes = nil
	strategy.MinQuality = 0
	strategy.MinFreshness = 0
	strategy.MaxBudget = domain.MustParseAmount("0.10")

	// Scores rank cheap-high first, then mid, then the low-quality one.
	catalog := []domain.ResearchResource{
		resource("top", "0.01", domain.CategoryAcademic, domain.QualityHigh, domain.FreshnessFresh),
		resource("mid", "0.095", domain.CategoryNews, domain.QualityHigh, domain.FreshnessFresh),
		resource("cheap", "0.02", domain.CategoryData, domain.QualityLow, domain.FreshnessStale),
	}

	decisions := al.SelectResources(strategy, catalog)
	require.Len(t, decisions, 2)
	// "mid" would blow the remaining budget after "top"; the allocator skips
	// it and still takes the cheaper lower-ranked resource.
	assert.Equal(t, "top", decisions[0].Resource.ID)
	assert.Equal(t, "cheap", decisions[1].Resource.ID)
}

func TestAllocator_FiltersQualityAndFreshness(t *testing.T) {
	al := NewAllocator(AllocatorConfig{}, nil)
	strategy := testStrategy()
	strategy.PreferredTypes = nil
	strategy.MinQuality = 1.0
	strategy.MinFreshness = 1.0

	catalog := []domain.ResearchResource{
		resource("ok", "0.01", domain.CategoryAcademic, domain.QualityHigh, domain.FreshnessFresh),
		resource("lowq", "0.01", domain.CategoryNews, domain.QualityMedium, domain.FreshnessFresh),
		resource("stale", "0.01", domain.CategoryData, domain.QualityHigh, domain.FreshnessRecent),
	}

	decisions := al.SelectResources(strategy, catalog)
	require.Len(t, decisions, 1)
	assert.Equal(t, "ok", decisions[0].Resource.ID)
}

func TestAllocator_EmptyCatalog(t *testing.T) {
	al := NewAllocator(AllocatorConfig{}, nil)
	assert.Empty(t, al.SelectResources(testStrategy(), nil))
}

func TestAllocator_DeterministicForEqualScores(t *testing.T) {
	al := NewAllocator(AllocatorConfig{}, nil)
	strategy := testStrategy()
	strategy.PreferredTypes = nil
	strategy.MaxResourceCount = 1

	catalog := []domain.ResearchResource{
		resource("first", "0.02", domain.CategoryAcademic, domain.QualityHigh, domain.FreshnessFresh),
		resource("second", "0.02", domain.CategoryNews, domain.QualityHigh, domain.FreshnessFresh),
	}

	for i := 0; i < 10; i++ {
		decisions := al.SelectResources(strategy, catalog)
		require.Len(t, decisions, 1)
		assert.Equal(t, "first", decisions[0].Resource.ID, "stable sort keeps catalog order")
	}
}
