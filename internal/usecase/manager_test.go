package usecase

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"foresight/internal/domain"
)

type fakeCatalog struct {
	resources []domain.ResearchResource
	err       error
}

func (c *fakeCatalog) ListResources(context.Context, string) ([]domain.ResearchResource, error) {
	return c.resources, c.err
}

type fakeForecast struct {
	raw float64
	err error
}

func (f *fakeForecast) RawProbability(context.Context, string, []domain.ResearchResource) (float64, string, error) {
	return f.raw, "test reasoning", f.err
}

func newTestManager(wallet domain.WalletProvider, catalog []domain.ResearchResource) *AgentManager {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	breeding := BreedingConfig{
		MutationRate:     0.1,
		Cost:             domain.MustParseAmount("0.1"),
		MinPredictions:   2,
		OffspringBalance: domain.MustParseAmount("1"),
	}
	return NewAgentManager(ManagerDeps{
		Catalog:   &fakeCatalog{resources: catalog},
		Forecast:  &fakeForecast{raw: 0.5},
		Ledger:    NewLedger(testLimits(), wallet, log),
		Allocator: NewAllocator(AllocatorConfig{}, log),
		Engine:    NewGeneticEngine(breeding, 42, log),
		Breeding:  breeding,
		Logger:    log,
	})
}

func TestManager_CreateAgentValidatesStrategy(t *testing.T) {
	m := newTestManager(&fakeWallet{}, nil)

	bad := testStrategy()
	bad.RiskTolerance = 2
	_, err := m.CreateAgent(context.Background(), bad, domain.MustParseAmount("1"))
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = m.CreateAgent(context.Background(), testStrategy(), -1)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestManager_CreateAgentStartsActive(t *testing.T) {
	m := newTestManager(&fakeWallet{}, nil)

	ag, err := m.CreateAgent(context.Background(), testStrategy(), domain.MustParseAmount("1"))
	require.NoError(t, err)
	assert.NotEmpty(t, ag.ID)
	assert.True(t, ag.IsActive)
	assert.False(t, ag.IsBankrupt)
	assert.Equal(t, 0, ag.Generation)
	assert.Equal(t, []string{ag.ID}, m.ActiveAgentIDs())
}

func TestManager_SettleDebitsAndRecords(t *testing.T) {
	m := newTestManager(&fakeWallet{}, nil)
	ag, err := m.CreateAgent(context.Background(), testStrategy(), domain.MustParseAmount("1"))
	require.NoError(t, err)

	rec, err := m.Settle(context.Background(), ag.ID, testDecision("0.05"))
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentExecuted, rec.Status)
	assert.True(t, rec.Success)

	snap, err := m.Snapshot(ag.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MustParseAmount("0.95"), snap.Balance)
	assert.Equal(t, 1, snap.ResearchPurchases)

	history, err := m.PaymentHistory(ag.ID)
	require.NoError(t, err)
	require.Len(t, history["res-1"], 1)
}

func TestManager_SettleUnknownAgent(t *testing.T) {
	m := newTestManager(&fakeWallet{}, nil)
	_, err := m.Settle(context.Background(), "missing", testDecision("0.05"))
	assert.ErrorIs(t, err, domain.ErrAgentNotFound)
}

func TestManager_ConcurrentSettlementsNeverOverdraw(t *testing.T) {
	m := newTestManager(&fakeWallet{}, nil)
	ag, err := m.CreateAgent(context.Background(), testStrategy(), domain.MustParseAmount("0.10"))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Settle(context.Background(), ag.ID, testDecision("0.03"))
		}()
	}
	wg.Wait()

	snap, err := m.Snapshot(ag.ID)
	require.NoError(t, err)

	// Exactly three settlements fit in 0.10; the fourth attempt bankrupts.
	assert.Equal(t, domain.MustParseAmount("0.01"), snap.Balance)
	assert.Equal(t, domain.MustParseAmount("0.09"), snap.TotalSpent)
	assert.Equal(t, 3, snap.ResearchPurchases)
	assert.True(t, snap.IsBankrupt)
	assert.False(t, snap.IsActive)
	assert.GreaterOrEqual(t, snap.Balance, domain.Amount(0))
}

func TestManager_SettleAfterBankruptcyRejected(t *testing.T) {
	m := newTestManager(&fakeWallet{}, nil)
	ag, err := m.CreateAgent(context.Background(), testStrategy(), domain.MustParseAmount("0.01"))
	require.NoError(t, err)

	_, err = m.Settle(context.Background(), ag.ID, testDecision("0.05"))
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	_, err = m.Settle(context.Background(), ag.ID, testDecision("0.05"))
	assert.ErrorIs(t, err, domain.ErrAgentInactive)
	assert.Empty(t, m.ActiveAgentIDs())
}

func TestManager_VerifyFailureSurfacesReconciliation(t *testing.T) {
	m := newTestManager(&fakeWallet{rejectAll: true}, nil)
	ag, err := m.CreateAgent(context.Background(), testStrategy(), domain.MustParseAmount("1"))
	require.NoError(t, err)

	rec, err := m.Settle(context.Background(), ag.ID, testDecision("0.05"))
	assert.ErrorIs(t, err, domain.ErrSignature)
	assert.True(t, rec.NeedsReconciliation)

	// The debit stands until an operator reconciles.
	snap, err := m.Snapshot(ag.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MustParseAmount("0.95"), snap.Balance)

	flagged, err := m.Unreconciled(ag.ID)
	require.NoError(t, err)
	require.Len(t, flagged, 1)
	assert.Equal(t, rec.Request.Nonce, flagged[0].Request.Nonce)
}

func TestManager_AnalyzeAndPurchase(t *testing.T) {
	catalog := []domain.ResearchResource{
		resource("acad-1", "0.05", domain.CategoryAcademic, domain.QualityHigh, domain.FreshnessFresh),
		resource("news-1", "0.02", domain.CategoryNews, domain.QualityHigh, domain.FreshnessFresh),
		resource("data-1", "0.08", domain.CategoryData, domain.QualityMedium, domain.FreshnessRecent),
	}
	m := newTestManager(&fakeWallet{}, catalog)
	ag, err := m.CreateAgent(context.Background(), testStrategy(), domain.MustParseAmount("1"))
	require.NoError(t, err)

	purchased, confidence, err := m.AnalyzeAndPurchase(context.Background(), ag.ID, "btc-100k")
	require.NoError(t, err)
	assert.Len(t, purchased, 2)
	assert.Greater(t, confidence, 0.0)
	assert.LessOrEqual(t, confidence, 1.0)

	snap, err := m.Snapshot(ag.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MustParseAmount("0.93"), snap.Balance)
}

func TestManager_AnalyzeAndPurchaseStopsAtBankruptcy(t *testing.T) {
	catalog := []domain.ResearchResource{
		resource("a", "0.03", domain.CategoryAcademic, domain.QualityHigh, domain.FreshnessFresh),
		resource("b", "0.03", domain.CategoryNews, domain.QualityHigh, domain.FreshnessFresh),
		resource("c", "0.03", domain.CategoryAcademic, domain.QualityHigh, domain.FreshnessFresh),
	}
	m := newTestManager(&fakeWallet{}, catalog)
	ag, err := m.CreateAgent(context.Background(), testStrategy(), domain.MustParseAmount("0.05"))
	require.NoError(t, err)

	// First purchase succeeds (0.02 left), second bankrupts, cycle ends with
	// what was already bought.
	purchased, _, err := m.AnalyzeAndPurchase(context.Background(), ag.ID, "btc-100k")
	require.NoError(t, err)
	assert.Len(t, purchased, 1)

	snap, err := m.Snapshot(ag.ID)
	require.NoError(t, err)
	assert.True(t, snap.IsBankrupt)
	assert.Equal(t, domain.MustParseAmount("0.02"), snap.Balance)
}

func TestManager_CreditIncreasesBalanceOnly(t *testing.T) {
	m := newTestManager(&fakeWallet{}, nil)
	ag, err := m.CreateAgent(context.Background(), testStrategy(), domain.MustParseAmount("0.01"))
	require.NoError(t, err)

	// Bankrupt the agent first.
	_, err = m.Settle(context.Background(), ag.ID, testDecision("0.05"))
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)

	require.NoError(t, m.Credit(context.Background(), ag.ID, domain.MustParseAmount("1"), "market win"))

	snap, err := m.Snapshot(ag.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MustParseAmount("1.01"), snap.Balance)
	assert.Equal(t, domain.MustParseAmount("1"), snap.TotalEarned)
	// Bankruptcy is terminal; a credit does not resurrect the agent.
	assert.True(t, snap.IsBankrupt)
	assert.False(t, snap.IsActive)

	assert.ErrorIs(t, m.Credit(context.Background(), ag.ID, 0, ""), domain.ErrValidation)
}

func TestManager_RecordOutcome(t *testing.T) {
	m := newTestManager(&fakeWallet{}, nil)
	ag, err := m.CreateAgent(context.Background(), testStrategy(), domain.MustParseAmount("1"))
	require.NoError(t, err)

	require.NoError(t, m.RecordOutcome(context.Background(), ag.ID, true))
	require.NoError(t, m.RecordOutcome(context.Background(), ag.ID, false))

	perf, err := m.Performance(ag.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, perf.TotalPredictions)
	assert.Equal(t, 1, perf.CorrectPredictions)
	assert.Equal(t, 0.5, perf.Accuracy)
}

func TestManager_BreedRequiresEligibleParents(t *testing.T) {
	m := newTestManager(&fakeWallet{}, nil)
	a, err := m.CreateAgent(context.Background(), testStrategy(), domain.MustParseAmount("1"))
	require.NoError(t, err)
	b, err := m.CreateAgent(context.Background(), testStrategy(), domain.MustParseAmount("1"))
	require.NoError(t, err)

	// Below the resolved-prediction floor.
	_, _, err = m.Breed(context.Background(), a.ID, b.ID)
	assert.ErrorIs(t, err, domain.ErrIneligibleBreeding)

	// No balance was deducted on rejection.
	snap, _ := m.Snapshot(a.ID)
	assert.Equal(t, domain.MustParseAmount("1"), snap.Balance)
}

func TestManager_BreedProducesOffspring(t *testing.T) {
	m := newTestManager(&fakeWallet{}, nil)
	a, err := m.CreateAgent(context.Background(), testStrategy(), domain.MustParseAmount("1"))
	require.NoError(t, err)
	b, err := m.CreateAgent(context.Background(), testStrategy(), domain.MustParseAmount("1"))
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		require.NoError(t, m.RecordOutcome(context.Background(), a.ID, true))
		require.NoError(t, m.RecordOutcome(context.Background(), b.ID, true))
	}

	result, child, err := m.Breed(context.Background(), a.ID, b.ID)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Generation)
	assert.Equal(t, 1, child.Generation)
	assert.ElementsMatch(t, []string{a.ID, b.ID}, child.ParentIDs)
	assert.Equal(t, domain.MustParseAmount("1"), child.Balance)
	assert.True(t, child.IsActive)
	assert.NoError(t, child.Strategy.Validate())

	// Both parents paid the breeding cost.
	snapA, _ := m.Snapshot(a.ID)
	snapB, _ := m.Snapshot(b.ID)
	assert.Equal(t, domain.MustParseAmount("0.9"), snapA.Balance)
	assert.Equal(t, domain.MustParseAmount("0.9"), snapB.Balance)

	// The offspring is a first-class agent.
	_, err = m.Snapshot(child.ID)
	assert.NoError(t, err)
}

func TestManager_BreedRejectsSelfPairing(t *testing.T) {
	m := newTestManager(&fakeWallet{}, nil)
	a, err := m.CreateAgent(context.Background(), testStrategy(), domain.MustParseAmount("1"))
	require.NoError(t, err)

	_, _, err = m.Breed(context.Background(), a.ID, a.ID)
	assert.ErrorIs(t, err, domain.ErrIneligibleBreeding)
}

func TestManager_AdoptRejectsDuplicates(t *testing.T) {
	m := newTestManager(&fakeWallet{}, nil)
	ag := domain.Agent{ID: "agent-1", Strategy: testStrategy(), Balance: 1, IsActive: true}

	require.NoError(t, m.Adopt(ag))
	assert.ErrorIs(t, m.Adopt(ag), domain.ErrDuplicateAgent)
}

func TestScheduler_RunOnceCoversActiveAgents(t *testing.T) {
	catalog := []domain.ResearchResource{
		resource("news-1", "0.02", domain.CategoryNews, domain.QualityHigh, domain.FreshnessFresh),
	}
	m := newTestManager(&fakeWallet{}, catalog)
	a, err := m.CreateAgent(context.Background(), testStrategy(), domain.MustParseAmount("1"))
	require.NoError(t, err)
	b, err := m.CreateAgent(context.Background(), testStrategy(), domain.MustParseAmount("1"))
	require.NoError(t, err)

	s := NewScheduler(m, SchedulerConfig{Spec: "@every 1h", Topic: "btc-100k"}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.RunOnce(context.Background())

	for _, id := range []string{a.ID, b.ID} {
		perf, err := m.Performance(id)
		require.NoError(t, err)
		assert.Equal(t, 1, perf.ResearchPurchases, id)
	}
}
