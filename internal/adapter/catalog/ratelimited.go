package catalog

import (
	"context"

	"golang.org/x/time/rate"

	"foresight/internal/domain"
)

// RateLimitedProvider throttles catalog listings so that parallel agent
// cycles cannot hammer a remote catalog backend. Waiting respects the
// caller's context.
type RateLimitedProvider struct {
	inner   domain.CatalogProvider
	limiter *rate.Limiter
}

// NewRateLimitedProvider wraps inner with a token-bucket limiter of rps
// requests per second and the given burst. rps <= 0 disables limiting.
func NewRateLimitedProvider(inner domain.CatalogProvider, rps float64, burst int) *RateLimitedProvider {
	var limiter *rate.Limiter
	if rps > 0 {
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
	return &RateLimitedProvider{inner: inner, limiter: limiter}
}

// ListResources implements domain.CatalogProvider.
func (p *RateLimitedProvider) ListResources(ctx context.Context, topic string) ([]domain.ResearchResource, error) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	return p.inner.ListResources(ctx, topic)
}
