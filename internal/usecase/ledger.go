package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"foresight/internal/domain"
)

// PaymentLimits are the protocol-wide settlement constraints.
type PaymentLimits struct {
	MinAmount domain.Amount `yaml:"-"`
	MaxAmount domain.Amount `yaml:"-"`
	Currency  string        `yaml:"currency"`
}

// Ledger implements the payment settlement protocol. Each settlement walks
// the state machine Pending -> Validated -> Signed -> Executed, with
// validation failures terminating before any state change and the execute
// step debiting the agent atomically under the manager's per-agent lock.
//
// The ledger also enforces nonce uniqueness: a replayed nonce is rejected
// as a validation error. Repeat purchases of the same resource are allowed;
// each settlement carries a fresh nonce.
type Ledger struct {
	limits PaymentLimits
	wallet domain.WalletProvider
	logger *slog.Logger

	mu      sync.Mutex
	nonces  map[string]struct{}
	entropy *ulid.MonotonicEntropy
}

// NewLedger creates a ledger bound to a wallet provider.
func NewLedger(limits PaymentLimits, wallet domain.WalletProvider, logger *slog.Logger) *Ledger {
	return &Ledger{
		limits:  limits,
		wallet:  wallet,
		logger:  logger,
		nonces:  make(map[string]struct{}),
		entropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}
}

// NewRequest builds a payment request for a purchase decision with a fresh
// ULID nonce and the ledger's settlement currency.
func (l *Ledger) NewRequest(agentID string, decision domain.PurchaseDecision) domain.PaymentRequest {
	l.mu.Lock()
	nonce := ulid.MustNew(ulid.Now(), l.entropy).String()
	l.mu.Unlock()

	return domain.PaymentRequest{
		ResourceID: decision.Resource.ID,
		Amount:     decision.Resource.Price,
		Currency:   l.limits.Currency,
		AgentID:    agentID,
		Reasoning:  decision.Reasoning,
		Nonce:      nonce,
		Timestamp:  time.Now().UTC(),
	}
}

// Validate is the first protocol stage. It rejects malformed requests,
// amounts outside the protocol bounds, currency mismatches, and replayed
// nonces. A valid request has its nonce reserved; validation failure leaves
// no state behind.
func (l *Ledger) Validate(req domain.PaymentRequest) error {
	const op = "Ledger.Validate"

	if err := req.Validate(); err != nil {
		return domain.WrapOp(op, err)
	}
	if req.Amount < l.limits.MinAmount || req.Amount > l.limits.MaxAmount {
		return domain.WrapOp(op, fmt.Errorf("%w: amount %s outside [%s, %s]",
			domain.ErrValidation, req.Amount, l.limits.MinAmount, l.limits.MaxAmount))
	}
	if req.Currency != l.limits.Currency {
		return domain.WrapOp(op, fmt.Errorf("%w: currency %q, settlement currency is %q",
			domain.ErrValidation, req.Currency, l.limits.Currency))
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, used := l.nonces[req.Nonce]; used {
		return domain.WrapOp(op, fmt.Errorf("%w: %s", domain.ErrNonceReplayed, req.Nonce))
	}
	l.nonces[req.Nonce] = struct{}{}
	return nil
}

// Sign is the second protocol stage: it produces a signature over the
// request's canonical message with the agent's key. Signing may block on
// the wallet provider and must be called outside any agent lock.
func (l *Ledger) Sign(ctx context.Context, req domain.PaymentRequest) (string, error) {
	sig, err := l.wallet.Sign(ctx, req.AgentID, req.CanonicalMessage())
	if err != nil {
		return "", domain.WrapOp("Ledger.Sign", fmt.Errorf("%w: %v", domain.ErrSignature, err))
	}
	return sig, nil
}

// Execute is the commit stage. The caller must hold the agent's lock: the
// affordability check, the debit, and the history append are atomic with
// respect to any other mutation of the same agent.
//
// When the balance cannot cover the amount, the agent goes bankrupt (the
// sole bankruptcy trigger), the balance is left untouched, and a failure
// record is appended. The returned error is ErrInsufficientFunds.
func (l *Ledger) Execute(ag *domain.Agent, req domain.PaymentRequest, signature string) (domain.PaymentRecord, error) {
	rec := domain.PaymentRecord{
		Request: req,
		Status:  domain.PaymentSigned,
		Proof:   signature,
	}

	if ag.Balance < req.Amount {
		ag.IsBankrupt = true
		ag.IsActive = false

		rec.Status = domain.PaymentFailed
		rec.Error = "insufficient balance"
		ag.AppendPayment(rec)

		if l.logger != nil {
			l.logger.Warn("settlement failed, agent bankrupt",
				"agent", ag.ID,
				"resource", req.ResourceID,
				"amount", req.Amount.String(),
				"balance", ag.Balance.String(),
			)
		}
		return rec, domain.WrapOp("Ledger.Execute", fmt.Errorf("%w: balance %s, amount %s",
			domain.ErrInsufficientFunds, ag.Balance, req.Amount))
	}

	ag.Balance -= req.Amount
	ag.TotalSpent += req.Amount
	ag.ResearchPurchases++

	rec.Status = domain.PaymentExecuted
	rec.Success = true
	rec.ExecutedAt = time.Now().UTC()
	ag.AppendPayment(rec)

	if l.logger != nil {
		l.logger.Info("settlement executed",
			"agent", ag.ID,
			"resource", req.ResourceID,
			"amount", req.Amount.String(),
			"balance", ag.Balance.String(),
		)
	}
	return rec, nil
}

// VerifyExecuted is the audit stage: it re-derives the canonical message
// and confirms the signature against the agent's claimed identity. A
// mismatch after the debit has committed cannot be reverted here; the
// record is flagged for reconciliation and an ErrSignature is returned so
// the caller surfaces it rather than dropping it.
func (l *Ledger) VerifyExecuted(ctx context.Context, rec *domain.PaymentRecord) error {
	ok, err := l.wallet.Verify(ctx, rec.Request.AgentID, rec.Request.CanonicalMessage(), rec.Proof)
	if err != nil {
		rec.NeedsReconciliation = true
		rec.Error = "signature verification error: " + err.Error()
		return domain.WrapOp("Ledger.VerifyExecuted", fmt.Errorf("%w: %v", domain.ErrSignature, err))
	}
	if !ok {
		rec.NeedsReconciliation = true
		rec.Error = "signer identity mismatch"
		return domain.WrapOp("Ledger.VerifyExecuted", fmt.Errorf("%w: signer does not match agent %s",
			domain.ErrSignature, rec.Request.AgentID))
	}
	return nil
}
