// Package forecast provides forecast providers: a deterministic local stub
// and a circuit-breaker wrapper for remote pipelines.
package forecast

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"foresight/internal/domain"
)

// StubProvider derives a deterministic pseudo-probability from the
// question text and the purchased resource set. It stands in for the real
// forecasting pipeline in local runs and tests: same inputs, same output.
type StubProvider struct{}

// NewStubProvider creates a stub forecast provider.
func NewStubProvider() *StubProvider { return &StubProvider{} }

// RawProbability implements domain.ForecastProvider.
func (p *StubProvider) RawProbability(_ context.Context, question string, purchased []domain.ResearchResource) (float64, string, error) {
	h := sha256.New()
	h.Write([]byte(question))
	for _, res := range purchased {
		h.Write([]byte(res.ID))
	}
	sum := h.Sum(nil)

	// Map the first 8 hash bytes onto (0,1), biased slightly toward the
	// middle so downstream multipliers have room in both directions.
	v := binary.BigEndian.Uint64(sum[:8])
	raw := 0.2 + 0.6*(float64(v)/float64(^uint64(0)))

	reasoning := fmt.Sprintf("heuristic estimate from %d purchased sources", len(purchased))
	return raw, reasoning, nil
}
