package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/trace"

	"foresight/internal/domain"
	"foresight/internal/infra/tracer"
)

// agentEntry pairs an agent with its mutation lock. Every balance debit,
// bankruptcy check, and history append for one agent runs under this lock;
// work across different agents runs in parallel.
type agentEntry struct {
	mu    sync.Mutex
	agent *domain.Agent
}

// ManagerDeps holds injected dependencies for the agent manager.
type ManagerDeps struct {
	Catalog   domain.CatalogProvider
	Forecast  domain.ForecastProvider
	Ledger    *Ledger
	Allocator *Allocator
	Engine    *GeneticEngine
	Breeding  BreedingConfig
	Store     domain.Store    // optional, nil = no persistence
	Bus       domain.EventBus // optional, nil = no events
	Logger    *slog.Logger
}

// AgentManager is the sole owner of mutable agent state. All other
// components operate on read-only snapshots and request mutations through
// this serialized API. Agents are never deleted, only deactivated.
type AgentManager struct {
	mu     sync.RWMutex
	agents map[string]*agentEntry
	deps   ManagerDeps
}

// NewAgentManager creates an empty manager.
func NewAgentManager(deps ManagerDeps) *AgentManager {
	return &AgentManager{
		agents: make(map[string]*agentEntry),
		deps:   deps,
	}
}

// CreateAgent registers a new active agent with the given strategy and
// starting balance. The strategy is validated at this boundary.
func (m *AgentManager) CreateAgent(ctx context.Context, strategy domain.StrategyProfile, balance domain.Amount) (domain.Agent, error) {
	const op = "Manager.CreateAgent"

	if err := strategy.Validate(); err != nil {
		return domain.Agent{}, domain.WrapOp(op, err)
	}
	if balance < 0 {
		return domain.Agent{}, domain.WrapOp(op, fmt.Errorf("%w: negative starting balance", domain.ErrValidation))
	}

	ag := &domain.Agent{
		ID:        newAgentID(),
		Strategy:  strategy.Clone(),
		Balance:   balance,
		IsActive:  true,
		CreatedAt: time.Now().UTC(),
	}

	m.mu.Lock()
	m.agents[ag.ID] = &agentEntry{agent: ag}
	m.mu.Unlock()

	snap := ag.Snapshot()
	m.persistAgent(ctx, snap)
	m.publish(ctx, domain.EventAgentCreated, ag.ID, snap)
	if m.deps.Logger != nil {
		m.deps.Logger.Info("agent created", "agent", ag.ID, "balance", balance.String())
	}
	return snap, nil
}

// Adopt registers an existing agent, e.g. one loaded from the store at
// startup. Duplicate IDs are rejected.
func (m *AgentManager) Adopt(agent domain.Agent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.agents[agent.ID]; exists {
		return domain.WrapOp("Manager.Adopt", fmt.Errorf("%w: %s", domain.ErrDuplicateAgent, agent.ID))
	}
	cp := agent.Snapshot()
	m.agents[agent.ID] = &agentEntry{agent: &cp}
	return nil
}

// Snapshot returns a read-only copy of the agent's state.
func (m *AgentManager) Snapshot(agentID string) (domain.Agent, error) {
	entry, err := m.entry(agentID)
	if err != nil {
		return domain.Agent{}, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.agent.Snapshot(), nil
}

// ActiveAgentIDs returns the IDs of all active, solvent agents in stable
// (sorted) order.
func (m *AgentManager) ActiveAgentIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var ids []string
	for id, entry := range m.agents {
		entry.mu.Lock()
		if entry.agent.IsActive {
			ids = append(ids, id)
		}
		entry.mu.Unlock()
	}
	sort.Strings(ids)
	return ids
}

// Settle runs the payment settlement pipeline for one purchase decision:
// Validate -> Sign -> Execute -> Verify. Validation failures leave no state
// behind; a cancelled context before the execute stage leaves the balance
// untouched; once the debit commits the operation is not cancellable.
// Signing and verification run outside the agent lock.
func (m *AgentManager) Settle(ctx context.Context, agentID string, decision domain.PurchaseDecision) (domain.PaymentRecord, error) {
	const op = "Manager.Settle"

	ctx, span := tracer.StartSpan(ctx, "manager.settle",
		trace.WithAttributes(
			tracer.StringAttr("agent.id", agentID),
			tracer.StringAttr("resource.id", decision.Resource.ID),
		),
	)
	defer span.End()

	entry, err := m.entry(agentID)
	if err != nil {
		tracer.RecordError(span, err)
		return domain.PaymentRecord{}, err
	}

	req := m.deps.Ledger.NewRequest(agentID, decision)
	if err := m.deps.Ledger.Validate(req); err != nil {
		tracer.RecordError(span, err)
		return domain.PaymentRecord{}, err
	}

	sig, err := m.deps.Ledger.Sign(ctx, req)
	if err != nil {
		tracer.RecordError(span, err)
		return domain.PaymentRecord{}, err
	}

	if err := ctx.Err(); err != nil {
		// Cancelled before commit: balance untouched.
		return domain.PaymentRecord{}, domain.WrapOp(op, err)
	}

	entry.mu.Lock()
	if !entry.agent.IsActive {
		entry.mu.Unlock()
		err := domain.WrapOp(op, fmt.Errorf("%w: %s", domain.ErrAgentInactive, agentID))
		tracer.RecordError(span, err)
		return domain.PaymentRecord{}, err
	}
	rec, execErr := m.deps.Ledger.Execute(entry.agent, req, sig)
	snap := entry.agent.Snapshot()
	entry.mu.Unlock()

	m.persistAgent(ctx, snap)
	m.persistPayment(ctx, agentID, rec)

	if execErr != nil {
		m.publish(ctx, domain.EventPaymentFailed, agentID, rec)
		m.publish(ctx, domain.EventAgentBankrupt, agentID, snap)
		tracer.RecordError(span, execErr)
		return rec, execErr
	}

	if verr := m.deps.Ledger.VerifyExecuted(ctx, &rec); verr != nil {
		m.flagReconciliation(entry, rec)
		m.persistPayment(ctx, agentID, rec)
		m.publish(ctx, domain.EventPaymentReconciliation, agentID, rec)
		tracer.RecordError(span, verr)
		return rec, verr
	}

	m.publish(ctx, domain.EventPaymentSettled, agentID, rec)
	tracer.SetOK(span)
	return rec, nil
}

// flagReconciliation marks the already-appended history record to match
// the reconciliation-flagged copy returned to the caller.
func (m *AgentManager) flagReconciliation(entry *agentEntry, rec domain.PaymentRecord) {
	entry.mu.Lock()
	defer entry.mu.Unlock()
	records := entry.agent.PaymentHistory[rec.Request.ResourceID]
	for i := len(records) - 1; i >= 0; i-- {
		if records[i].Request.Nonce == rec.Request.Nonce {
			records[i].NeedsReconciliation = true
			records[i].Error = rec.Error
			return
		}
	}
}

// AnalyzeAndPurchase runs one analysis cycle for an agent: list the
// catalog, select resources under budget, settle each selection, obtain a
// raw forecast over what was actually purchased, and compose the final
// confidence. A settlement failure drops that resource from the purchased
// set; bankruptcy ends the cycle early with whatever was already bought.
func (m *AgentManager) AnalyzeAndPurchase(ctx context.Context, agentID, topic string) ([]domain.ResearchResource, float64, error) {
	const op = "Manager.AnalyzeAndPurchase"

	ctx, span := tracer.StartSpan(ctx, "manager.analyze_and_purchase",
		trace.WithAttributes(
			tracer.StringAttr("agent.id", agentID),
			tracer.StringAttr("topic", topic),
		),
	)
	defer span.End()

	snap, err := m.Snapshot(agentID)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, 0, err
	}
	if !snap.IsActive {
		err := domain.WrapOp(op, fmt.Errorf("%w: %s", domain.ErrAgentInactive, agentID))
		tracer.RecordError(span, err)
		return nil, 0, err
	}

	catalog, err := m.deps.Catalog.ListResources(ctx, topic)
	if err != nil {
		err = domain.WrapOp(op, fmt.Errorf("%w: %v", domain.ErrCatalogUnavailable, err))
		tracer.RecordError(span, err)
		return nil, 0, err
	}

	decisions := m.deps.Allocator.SelectResources(snap.Strategy, catalog)

	var purchased []domain.ResearchResource
	for _, decision := range decisions {
		rec, settleErr := m.Settle(ctx, agentID, decision)
		if settleErr != nil {
			if rec.Status == domain.PaymentFailed {
				// Bankrupt: no further purchases this cycle.
				break
			}
			// Skip this resource; the cycle continues with the rest.
			continue
		}
		purchased = append(purchased, decision.Resource)
	}

	raw, reasoning, err := m.deps.Forecast.RawProbability(ctx, topic, purchased)
	if err != nil {
		err = domain.WrapOp(op, fmt.Errorf("%w: %v", domain.ErrForecastUnavailable, err))
		tracer.RecordError(span, err)
		return purchased, 0, err
	}

	confidence := ComposeConfidence(raw, purchased, snap.Strategy)

	if m.deps.Logger != nil {
		m.deps.Logger.Info("analysis cycle complete",
			"agent", agentID,
			"topic", topic,
			"purchased", len(purchased),
			"raw_probability", raw,
			"confidence", confidence,
			"forecast_reasoning", reasoning,
		)
	}
	m.publish(ctx, domain.EventCycleCompleted, agentID, map[string]any{
		"topic":      topic,
		"purchased":  len(purchased),
		"confidence": confidence,
	})
	tracer.SetOK(span)
	return purchased, confidence, nil
}

// Credit adds winnings to an agent's balance. Crediting never changes the
// bankruptcy flag; bankruptcy is terminal.
func (m *AgentManager) Credit(ctx context.Context, agentID string, amount domain.Amount, reason string) error {
	const op = "Manager.Credit"

	if amount <= 0 {
		return domain.WrapOp(op, fmt.Errorf("%w: credit amount must be positive", domain.ErrValidation))
	}
	entry, err := m.entry(agentID)
	if err != nil {
		return err
	}

	entry.mu.Lock()
	entry.agent.Balance += amount
	entry.agent.TotalEarned += amount
	snap := entry.agent.Snapshot()
	entry.mu.Unlock()

	m.persistAgent(ctx, snap)
	m.publish(ctx, domain.EventAgentCredited, agentID, map[string]any{
		"amount": amount.String(),
		"reason": reason,
	})
	return nil
}

// RecordOutcome resolves a prediction for the agent, feeding the
// performance counters that gate breeding eligibility.
func (m *AgentManager) RecordOutcome(ctx context.Context, agentID string, correct bool) error {
	entry, err := m.entry(agentID)
	if err != nil {
		return err
	}

	entry.mu.Lock()
	entry.agent.TotalPredictions++
	if correct {
		entry.agent.CorrectPredictions++
	}
	snap := entry.agent.Snapshot()
	entry.mu.Unlock()

	m.persistAgent(ctx, snap)
	m.publish(ctx, domain.EventOutcomeRecorded, agentID, map[string]any{"correct": correct})
	return nil
}

// Breed combines two eligible parents into a new agent. Both parent states
// are read and the breeding cost deducted under their locks, taken in
// ascending ID order to avoid lock-ordering deadlocks. Ineligibility is
// reported with a structured reason and performs no mutation.
func (m *AgentManager) Breed(ctx context.Context, parentAID, parentBID string) (domain.BreedingResult, domain.Agent, error) {
	const op = "Manager.Breed"

	ctx, span := tracer.StartSpan(ctx, "manager.breed",
		trace.WithAttributes(
			tracer.StringAttr("parent.a", parentAID),
			tracer.StringAttr("parent.b", parentBID),
		),
	)
	defer span.End()

	if parentAID == parentBID {
		err := domain.NewDomainError(op, domain.ErrIneligibleBreeding, "parents must be distinct agents")
		tracer.RecordError(span, err)
		return domain.BreedingResult{}, domain.Agent{}, err
	}

	entryA, err := m.entry(parentAID)
	if err != nil {
		tracer.RecordError(span, err)
		return domain.BreedingResult{}, domain.Agent{}, err
	}
	entryB, err := m.entry(parentBID)
	if err != nil {
		tracer.RecordError(span, err)
		return domain.BreedingResult{}, domain.Agent{}, err
	}

	first, second := entryA, entryB
	if parentBID < parentAID {
		first, second = entryB, entryA
	}
	first.mu.Lock()
	second.mu.Lock()

	var snapA, snapB domain.Agent
	reason := m.ineligibilityReason(entryA.agent, entryB.agent)
	if reason == "" {
		entryA.agent.Balance -= m.deps.Breeding.Cost
		entryA.agent.TotalSpent += m.deps.Breeding.Cost
		entryB.agent.Balance -= m.deps.Breeding.Cost
		entryB.agent.TotalSpent += m.deps.Breeding.Cost
		snapA = entryA.agent.Snapshot()
		snapB = entryB.agent.Snapshot()
	}

	second.mu.Unlock()
	first.mu.Unlock()

	if reason != "" {
		err := domain.NewDomainError(op, domain.ErrIneligibleBreeding, reason)
		m.publish(ctx, domain.EventBreedingRejected, parentAID, map[string]any{"reason": reason})
		tracer.RecordError(span, err)
		return domain.BreedingResult{}, domain.Agent{}, err
	}

	result := m.deps.Engine.Breed(snapA, snapB, 0)

	offspring := &domain.Agent{
		ID:         newAgentID(),
		Strategy:   result.OffspringStrategy.Clone(),
		Balance:    m.deps.Breeding.OffspringBalance,
		IsActive:   true,
		Generation: result.Generation,
		ParentIDs:  []string{snapA.ID, snapB.ID},
		Mutations:  append([]string(nil), result.MutatedTraits...),
		CreatedAt:  time.Now().UTC(),
	}

	m.mu.Lock()
	m.agents[offspring.ID] = &agentEntry{agent: offspring}
	m.mu.Unlock()

	child := offspring.Snapshot()
	m.persistAgent(ctx, snapA)
	m.persistAgent(ctx, snapB)
	m.persistAgent(ctx, child)
	if m.deps.Store != nil {
		if serr := m.deps.Store.SaveBreeding(ctx, result); serr != nil && m.deps.Logger != nil {
			m.deps.Logger.Error("breeding result persist failed", "error", serr)
		}
	}
	m.publish(ctx, domain.EventBreedingCompleted, child.ID, result)
	m.publish(ctx, domain.EventAgentCreated, child.ID, child)
	tracer.SetOK(span)
	return result, child, nil
}

// ineligibilityReason returns "" when both parents may breed, else the
// first failed criterion. Callers must hold both agent locks.
func (m *AgentManager) ineligibilityReason(a, b *domain.Agent) string {
	check := func(ag *domain.Agent) string {
		switch {
		case ag.IsBankrupt:
			return fmt.Sprintf("agent %s is bankrupt", ag.ID)
		case !ag.IsActive:
			return fmt.Sprintf("agent %s is inactive", ag.ID)
		case ag.TotalPredictions < m.deps.Breeding.MinPredictions:
			return fmt.Sprintf("agent %s has %d resolved predictions, need %d",
				ag.ID, ag.TotalPredictions, m.deps.Breeding.MinPredictions)
		case ag.Balance < m.deps.Breeding.Cost:
			return fmt.Sprintf("agent %s balance %s below breeding cost %s",
				ag.ID, ag.Balance, m.deps.Breeding.Cost)
		}
		return ""
	}
	if reason := check(a); reason != "" {
		return reason
	}
	return check(b)
}

// PaymentHistory returns a copy of the agent's append-only ledger history.
func (m *AgentManager) PaymentHistory(agentID string) (map[string][]domain.PaymentRecord, error) {
	snap, err := m.Snapshot(agentID)
	if err != nil {
		return nil, err
	}
	return snap.PaymentHistory, nil
}

// Unreconciled returns executed records whose post-settlement verification
// failed and which await operator reconciliation.
func (m *AgentManager) Unreconciled(agentID string) ([]domain.PaymentRecord, error) {
	snap, err := m.Snapshot(agentID)
	if err != nil {
		return nil, err
	}
	var out []domain.PaymentRecord
	for _, records := range snap.PaymentHistory {
		for _, rec := range records {
			if rec.NeedsReconciliation {
				out = append(out, rec)
			}
		}
	}
	return out, nil
}

// Performance is a read-only scorecard for one agent.
type Performance struct {
	AgentID            string        `json:"agent_id"`
	Balance            domain.Amount `json:"balance"`
	TotalSpent         domain.Amount `json:"total_spent"`
	TotalEarned        domain.Amount `json:"total_earned"`
	TotalPredictions   int           `json:"total_predictions"`
	CorrectPredictions int           `json:"correct_predictions"`
	Accuracy           float64       `json:"accuracy"`
	ResearchPurchases  int           `json:"research_purchases"`
	Generation         int           `json:"generation"`
	IsActive           bool          `json:"is_active"`
	IsBankrupt         bool          `json:"is_bankrupt"`
}

// Performance returns the agent's current scorecard.
func (m *AgentManager) Performance(agentID string) (Performance, error) {
	snap, err := m.Snapshot(agentID)
	if err != nil {
		return Performance{}, err
	}
	return Performance{
		AgentID:            snap.ID,
		Balance:            snap.Balance,
		TotalSpent:         snap.TotalSpent,
		TotalEarned:        snap.TotalEarned,
		TotalPredictions:   snap.TotalPredictions,
		CorrectPredictions: snap.CorrectPredictions,
		Accuracy:           snap.Accuracy(),
		ResearchPurchases:  snap.ResearchPurchases,
		Generation:         snap.Generation,
		IsActive:           snap.IsActive,
		IsBankrupt:         snap.IsBankrupt,
	}, nil
}

func (m *AgentManager) entry(agentID string) (*agentEntry, error) {
	m.mu.RLock()
	entry, ok := m.agents[agentID]
	m.mu.RUnlock()
	if !ok {
		return nil, domain.WrapOp("Manager", fmt.Errorf("%w: %s", domain.ErrAgentNotFound, agentID))
	}
	return entry, nil
}

// persistAgent writes the snapshot to the store. The store is a
// write-behind sink; failures are logged, not propagated.
func (m *AgentManager) persistAgent(ctx context.Context, snap domain.Agent) {
	if m.deps.Store == nil {
		return
	}
	if err := m.deps.Store.SaveAgent(ctx, snap); err != nil && m.deps.Logger != nil {
		m.deps.Logger.Error("agent persist failed", "agent", snap.ID, "error", err)
	}
}

func (m *AgentManager) persistPayment(ctx context.Context, agentID string, rec domain.PaymentRecord) {
	if m.deps.Store == nil {
		return
	}
	if err := m.deps.Store.SavePayment(ctx, agentID, rec); err != nil && m.deps.Logger != nil {
		m.deps.Logger.Error("payment persist failed", "agent", agentID, "error", err)
	}
}

func (m *AgentManager) publish(ctx context.Context, t domain.EventType, agentID string, payload any) {
	if m.deps.Bus == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		data = nil
	}
	m.deps.Bus.Publish(ctx, domain.Event{
		Type:      t,
		Timestamp: time.Now().UTC(),
		AgentID:   agentID,
		Payload:   data,
	})
}

var (
	agentIDMu      sync.Mutex
	agentIDEntropy = ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
)

func newAgentID() string {
	agentIDMu.Lock()
	defer agentIDMu.Unlock()
	return ulid.MustNew(ulid.Now(), agentIDEntropy).String()
}
