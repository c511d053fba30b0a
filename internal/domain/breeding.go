package domain

import "time"

// BreedingResult is the ephemeral output of combining two parent strategy
// profiles. It is consumed exactly once to instantiate a new agent.
type BreedingResult struct {
	OffspringStrategy StrategyProfile `json:"offspring_strategy"`
	ExpectedFitness   float64         `json:"expected_fitness"` // heuristic, advisory only
	MutationCount     int             `json:"mutation_count"`
	MutatedTraits     []string        `json:"mutated_traits,omitempty"`
	Generation        int             `json:"generation"` // max(parent generations) + 1
	ParentIDs         [2]string       `json:"parent_ids"`
	CreatedAt         time.Time       `json:"created_at"`
}
