package usecase

import "foresight/internal/domain"

// Confidence multiplier bounds.
const (
	diversityStep = 0.1
	diversityCap  = 1.3
	freshnessStep = 0.05
	freshnessCap  = 1.2
)

// ComposeConfidence combines a raw forecast probability with the quality,
// diversity, and freshness of the resources actually purchased, plus a
// strategy-level adjustment. Pure and deterministic: identical inputs give
// a bit-identical result. With zero purchased resources every multiplier
// is 1.0 and the raw probability passes through unmodified (then clamped).
func ComposeConfidence(raw float64, purchased []domain.ResearchResource, strategy domain.StrategyProfile) float64 {
	quality, diversity, freshness := 1.0, 1.0, 1.0
	if len(purchased) > 0 {
		quality = qualityMultiplier(purchased)
		diversity = diversityMultiplier(purchased)
		freshness = freshnessMultiplier(purchased)
	}

	adjustment := 1.0
	switch {
	case strategy.ConfidenceThreshold > 0.8:
		adjustment = 1.1
	case strategy.ConfidenceThreshold < 0.6:
		adjustment = 0.9
	}

	return clamp01(raw * quality * diversity * freshness * adjustment)
}

// qualityMultiplier averages per-resource factors: 1.2 high, 1.0 medium,
// 0.8 low.
func qualityMultiplier(purchased []domain.ResearchResource) float64 {
	var sum float64
	for _, res := range purchased {
		switch res.Quality {
		case domain.QualityHigh:
			sum += 1.2
		case domain.QualityMedium:
			sum += 1.0
		default:
			sum += 0.8
		}
	}
	return sum / float64(len(purchased))
}

// diversityMultiplier rewards distinct categories: 1 + 0.1 per category
// beyond the first, capped at 1.3.
func diversityMultiplier(purchased []domain.ResearchResource) float64 {
	seen := make(map[domain.Category]struct{}, len(purchased))
	for _, res := range purchased {
		seen[res.Category] = struct{}{}
	}
	m := 1.0 + diversityStep*float64(len(seen)-1)
	if m > diversityCap {
		m = diversityCap
	}
	return m
}

// freshnessMultiplier rewards fresh resources: 1 + 0.05 per fresh item,
// capped at 1.2.
func freshnessMultiplier(purchased []domain.ResearchResource) float64 {
	fresh := 0
	for _, res := range purchased {
		if res.Freshness == domain.FreshnessFresh {
			fresh++
		}
	}
	m := 1.0 + freshnessStep*float64(fresh)
	if m > freshnessCap {
		m = freshnessCap
	}
	return m
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
