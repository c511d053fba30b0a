// Package catalog provides resource catalog providers: a static,
// config-driven catalog and a rate-limited wrapper for remote-backed
// implementations.
package catalog

import (
	"context"
	"fmt"

	"foresight/internal/domain"
	"foresight/internal/infra/config"
)

// StaticProvider serves catalog entries declared in configuration, keyed
// by topic. Unknown topics return an empty catalog, not an error.
type StaticProvider struct {
	topics map[string][]domain.ResearchResource
}

// NewStaticProvider converts config entries into domain resources. Config
// validation has already checked enums and prices; conversion errors here
// mean the provider was constructed from an unvalidated config.
func NewStaticProvider(cfg config.CatalogConfig) (*StaticProvider, error) {
	topics := make(map[string][]domain.ResearchResource, len(cfg.Topics))
	for topic, entries := range cfg.Topics {
		resources := make([]domain.ResearchResource, 0, len(entries))
		for _, e := range entries {
			price, err := domain.ParseAmount(e.Price)
			if err != nil {
				return nil, fmt.Errorf("catalog topic %s resource %s: %w", topic, e.ID, err)
			}
			category, err := config.ParseCategory(e.Category)
			if err != nil {
				return nil, fmt.Errorf("catalog topic %s resource %s: %w", topic, e.ID, err)
			}
			resources = append(resources, domain.ResearchResource{
				ID:        e.ID,
				Price:     price,
				Currency:  e.Currency,
				Category:  category,
				Quality:   domain.Quality(e.Quality),
				Freshness: domain.Freshness(e.Freshness),
			})
		}
		topics[topic] = resources
	}
	return &StaticProvider{topics: topics}, nil
}

// ListResources implements domain.CatalogProvider.
func (p *StaticProvider) ListResources(_ context.Context, topic string) ([]domain.ResearchResource, error) {
	resources := p.topics[topic]
	out := make([]domain.ResearchResource, len(resources))
	copy(out, resources)
	return out, nil
}
