package domain

import "time"

// Agent is the per-agent economic state: balance, performance counters,
// lineage, and payment history. Agents are never deleted; the lifecycle is
// active -> bankrupt/inactive, and both terminal states are soft.
//
// Mutable fields are owned exclusively by the agent manager, which
// serializes every mutation for a given agent ID. All other components
// receive value-copied snapshots.
type Agent struct {
	ID                 string                     `json:"id"`
	Strategy           StrategyProfile            `json:"strategy"`
	Balance            Amount                     `json:"balance"`
	TotalSpent         Amount                     `json:"total_spent"`
	TotalEarned        Amount                     `json:"total_earned"`
	TotalPredictions   int                        `json:"total_predictions"`
	CorrectPredictions int                        `json:"correct_predictions"`
	ResearchPurchases  int                        `json:"research_purchases"`
	IsActive           bool                       `json:"is_active"`
	IsBankrupt         bool                       `json:"is_bankrupt"`
	Generation         int                        `json:"generation"`
	ParentIDs          []string                   `json:"parent_ids,omitempty"` // empty or exactly two
	Mutations          []string                   `json:"mutations,omitempty"`  // trait names mutated at breeding
	PaymentHistory     map[string][]PaymentRecord `json:"payment_history,omitempty"`
	CreatedAt          time.Time                  `json:"created_at"`
}

// Accuracy returns the resolved-prediction hit rate, or 0 when nothing has
// resolved yet.
func (a *Agent) Accuracy() float64 {
	if a.TotalPredictions == 0 {
		return 0
	}
	return float64(a.CorrectPredictions) / float64(a.TotalPredictions)
}

// Snapshot returns a deep value copy safe to read without the owner's lock.
func (a *Agent) Snapshot() Agent {
	cp := *a
	cp.Strategy = a.Strategy.Clone()
	cp.ParentIDs = append([]string(nil), a.ParentIDs...)
	cp.Mutations = append([]string(nil), a.Mutations...)
	if a.PaymentHistory != nil {
		cp.PaymentHistory = make(map[string][]PaymentRecord, len(a.PaymentHistory))
		for k, v := range a.PaymentHistory {
			cp.PaymentHistory[k] = append([]PaymentRecord(nil), v...)
		}
	}
	return cp
}

// AppendPayment records a settlement outcome in the append-only history.
// Repeat purchases of the same resource keep every record.
func (a *Agent) AppendPayment(rec PaymentRecord) {
	if a.PaymentHistory == nil {
		a.PaymentHistory = make(map[string][]PaymentRecord)
	}
	key := rec.Request.ResourceID
	a.PaymentHistory[key] = append(a.PaymentHistory[key], rec)
}
