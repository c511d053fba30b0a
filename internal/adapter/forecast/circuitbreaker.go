package forecast

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"

	"foresight/internal/domain"
)

// Default circuit breaker settings.
const (
	defaultCBMaxFailures uint32        = 5
	defaultCBTimeout     time.Duration = 30 * time.Second
	defaultCBInterval    time.Duration = 60 * time.Second
)

// CircuitBreakerConfig configures the circuit breaker behavior.
type CircuitBreakerConfig struct {
	// MaxFailures is the number of consecutive failures before the circuit opens.
	MaxFailures uint32 `yaml:"max_failures"`
	// Timeout is how long the circuit stays open before transitioning to half-open.
	Timeout time.Duration `yaml:"timeout"`
	// Interval is the cyclic period of the closed state for clearing failure counts.
	// If 0, failures never reset until the circuit opens.
	Interval time.Duration `yaml:"interval"`
}

type forecastResult struct {
	probability float64
	reasoning   string
}

// CircuitBreakerProvider wraps a ForecastProvider with circuit breaker
// protection. When the wrapped pipeline fails repeatedly, the circuit
// opens and subsequent calls fail fast without reaching the provider, so
// agent cycles degrade quickly instead of stalling on a dead pipeline.
type CircuitBreakerProvider struct {
	inner   domain.ForecastProvider
	breaker *gobreaker.CircuitBreaker[forecastResult]
	logger  *slog.Logger
}

// NewCircuitBreakerProvider wraps inner with a circuit breaker.
// If cfg is zero-valued, sensible defaults are used.
func NewCircuitBreakerProvider(inner domain.ForecastProvider, cfg CircuitBreakerConfig, logger *slog.Logger) *CircuitBreakerProvider {
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = defaultCBMaxFailures
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultCBTimeout
	}
	interval := cfg.Interval
	if interval == 0 {
		interval = defaultCBInterval
	}

	cb := gobreaker.NewCircuitBreaker[forecastResult](gobreaker.Settings{
		Name:        "forecast",
		MaxRequests: 1, // allow 1 probe in half-open state
		Interval:    interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
		IsSuccessful: func(err error) bool {
			return err == nil
		},
	})

	return &CircuitBreakerProvider{
		inner:   inner,
		breaker: cb,
		logger:  logger,
	}
}

// RawProbability implements domain.ForecastProvider. Calls are routed
// through the circuit breaker.
func (p *CircuitBreakerProvider) RawProbability(ctx context.Context, question string, purchased []domain.ResearchResource) (float64, string, error) {
	res, err := p.breaker.Execute(func() (forecastResult, error) {
		prob, reasoning, err := p.inner.RawProbability(ctx, question, purchased)
		return forecastResult{probability: prob, reasoning: reasoning}, err
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return 0, "", fmt.Errorf("forecast circuit open: %w", err)
		}
		return 0, "", err
	}
	return res.probability, res.reasoning, nil
}
