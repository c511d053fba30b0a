package usecase

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"foresight/internal/domain"
)

// Default allocator tuning. Overridable through AllocatorConfig; the
// defaults match the published scoring formula.
const (
	defaultTypeBonus    = 1.3
	defaultPriceEpsilon = 0.001
)

// AllocatorConfig tunes resource scoring. An explicit config object is
// passed in at construction time; there is no package-level strategy state.
type AllocatorConfig struct {
	// TypeBonus multiplies the score of resources in a preferred category.
	TypeBonus float64 `yaml:"type_bonus"`
	// PriceEpsilon guards the cost-efficiency division against zero prices.
	PriceEpsilon float64 `yaml:"price_epsilon"`
}

// Allocator ranks catalog resources for a strategy and produces a purchase
// plan under the strategy's budget. It is a pure component: it never
// touches the ledger and has no per-call state.
type Allocator struct {
	cfg    AllocatorConfig
	logger *slog.Logger
}

// NewAllocator creates an allocator. Zero-valued config fields fall back to
// the published defaults.
func NewAllocator(cfg AllocatorConfig, logger *slog.Logger) *Allocator {
	if cfg.TypeBonus <= 0 {
		cfg.TypeBonus = defaultTypeBonus
	}
	if cfg.PriceEpsilon <= 0 {
		cfg.PriceEpsilon = defaultPriceEpsilon
	}
	return &Allocator{cfg: cfg, logger: logger}
}

// SelectResources filters, scores, and greedily selects resources for the
// strategy. Guarantees: total price of selections <= strategy.MaxBudget,
// len(selections) <= strategy.MaxResourceCount, no resource selected twice.
// A resource that would exceed the remaining budget is skipped, not a stop:
// cheaper lower-ranked resources can still be taken.
func (al *Allocator) SelectResources(strategy domain.StrategyProfile, catalog []domain.ResearchResource) []domain.PurchaseDecision {
	type scored struct {
		res   domain.ResearchResource
		value float64
	}

	candidates := make([]scored, 0, len(catalog))
	for _, res := range catalog {
		if len(strategy.PreferredTypes) > 0 && !strategy.Prefers(res.Category) {
			continue
		}
		if res.Quality.Score() < strategy.MinQuality {
			continue
		}
		if res.Freshness.Score() < strategy.MinFreshness {
			continue
		}
		candidates = append(candidates, scored{res: res, value: al.score(strategy, res)})
	}

	// Stable sort keeps catalog order for equal scores, so runs are
	// reproducible for a given catalog.
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].value > candidates[j].value
	})

	var (
		decisions []domain.PurchaseDecision
		spent     domain.Amount
	)
	for _, c := range candidates {
		if len(decisions) >= strategy.MaxResourceCount {
			break
		}
		if spent+c.res.Price > strategy.MaxBudget {
			// Over budget for this one; keep scanning for cheaper picks.
			continue
		}
		spent += c.res.Price
		decisions = append(decisions, domain.PurchaseDecision{
			Resource:      c.res,
			Reasoning:     al.reasoning(strategy, c.res),
			ExpectedValue: c.value,
		})
	}

	if al.logger != nil {
		al.logger.Debug("resource selection complete",
			"candidates", len(candidates),
			"selected", len(decisions),
			"spent", spent.String(),
			"budget", strategy.MaxBudget.String(),
		)
	}
	return decisions
}

// score implements value = quality x freshness x typeBonus x costEfficiency.
func (al *Allocator) score(strategy domain.StrategyProfile, res domain.ResearchResource) float64 {
	typeBonus := 1.0
	if strategy.Prefers(res.Category) {
		typeBonus = al.cfg.TypeBonus
	}
	costEfficiency := 1.0 / (res.Price.Float64() + al.cfg.PriceEpsilon)
	return res.Quality.Score() * res.Freshness.Score() * typeBonus * costEfficiency
}

// reasoning assembles a short human-readable rationale from the criteria
// the resource satisfied.
func (al *Allocator) reasoning(strategy domain.StrategyProfile, res domain.ResearchResource) string {
	var parts []string
	if res.Quality == domain.QualityHigh {
		parts = append(parts, "high quality")
	} else if res.Quality.Score() >= strategy.MinQuality {
		parts = append(parts, "acceptable quality")
	}
	if res.Freshness == domain.FreshnessFresh {
		parts = append(parts, "fresh data")
	}
	if strategy.Prefers(res.Category) {
		parts = append(parts, fmt.Sprintf("preferred source type (%s)", res.Category))
	}
	if res.Price <= strategy.MaxBudget/4 {
		parts = append(parts, "low cost")
	}
	if len(parts) == 0 {
		parts = append(parts, "best available under budget")
	}
	return fmt.Sprintf("selected %s: %s", res.ID, strings.Join(parts, ", "))
}
