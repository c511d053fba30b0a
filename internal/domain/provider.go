package domain

import "context"

// ForecastProvider produces a raw prediction probability for a question,
// given the research the agent purchased. The underlying pipeline is opaque
// to the core; implementations may call out to external services.
type ForecastProvider interface {
	// RawProbability returns a probability in [0,1] and free-text reasoning.
	RawProbability(ctx context.Context, question string, purchased []ResearchResource) (float64, string, error)
}

// CatalogProvider lists the resources purchasable for a topic.
type CatalogProvider interface {
	ListResources(ctx context.Context, topic string) ([]ResearchResource, error)
}

// WalletProvider owns agent key material. Signing and verification are the
// only cryptographic operations the core relies on; both may block on I/O
// and must be invoked outside any agent lock.
type WalletProvider interface {
	// Sign produces a hex-encoded signature over message with the agent's key.
	Sign(ctx context.Context, agentID string, message []byte) (string, error)
	// Verify checks that signature over message was produced by the claimed
	// agent's key.
	Verify(ctx context.Context, agentID string, message []byte, signature string) (bool, error)
	// Balance reports the externally visible balance for an agent.
	Balance(ctx context.Context, agentID, currency string) (Amount, error)
}

// Store is the durable write-behind sink for agents, payment records, and
// breeding results. It is called after each state transition; the core does
// not itself guarantee durability.
type Store interface {
	SaveAgent(ctx context.Context, agent Agent) error
	SavePayment(ctx context.Context, agentID string, rec PaymentRecord) error
	SaveBreeding(ctx context.Context, res BreedingResult) error
	LoadAgents(ctx context.Context) ([]Agent, error)
	Close() error
}
