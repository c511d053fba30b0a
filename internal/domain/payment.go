package domain

import (
	"fmt"
	"time"
)

// PaymentStatus tracks a settlement through its state machine:
// Pending -> Validated -> Signed -> Executed{Success|Failed}.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentValidated PaymentStatus = "validated"
	PaymentSigned    PaymentStatus = "signed"
	PaymentExecuted  PaymentStatus = "executed"
	PaymentFailed    PaymentStatus = "failed"
)

// PaymentRequest is a micropayment request for a single resource purchase.
// The nonce is a ULID, unique per request; the ledger rejects a replayed
// nonce.
type PaymentRequest struct {
	ResourceID string    `json:"resource_id"`
	Amount     Amount    `json:"amount"`
	Currency   string    `json:"currency"`
	AgentID    string    `json:"agent_id"`
	Reasoning  string    `json:"reasoning"`
	Nonce      string    `json:"nonce"`
	Timestamp  time.Time `json:"timestamp"`
}

// CanonicalMessage returns the deterministic byte serialization that is
// signed and later re-derived for verification. Field order is fixed; the
// amount is rendered in micro-units and the timestamp in Unix nanoseconds
// so the encoding is bit-stable across runs.
func (r PaymentRequest) CanonicalMessage() []byte {
	msg := fmt.Sprintf("resource_id=%s|amount=%d|currency=%s|agent_id=%s|reasoning=%s|timestamp=%d",
		r.ResourceID, r.Amount.Micros(), r.Currency, r.AgentID, r.Reasoning, r.Timestamp.UnixNano())
	return []byte(msg)
}

// Validate checks required fields. Amount bounds and currency are enforced
// by the ledger against its configured limits.
func (r PaymentRequest) Validate() error {
	if r.ResourceID == "" {
		return fmt.Errorf("%w: missing resource id", ErrValidation)
	}
	if r.AgentID == "" {
		return fmt.Errorf("%w: missing agent id", ErrValidation)
	}
	if r.Currency == "" {
		return fmt.Errorf("%w: missing currency", ErrValidation)
	}
	if r.Nonce == "" {
		return fmt.Errorf("%w: missing nonce", ErrValidation)
	}
	if r.Timestamp.IsZero() {
		return fmt.Errorf("%w: missing timestamp", ErrValidation)
	}
	return nil
}

// PaymentRecord is the auditable outcome of a settlement attempt. Records
// are append-only, keyed by resource ID in the agent's payment history.
type PaymentRecord struct {
	Request PaymentRequest `json:"request"`
	Status  PaymentStatus  `json:"status"`
	Success bool           `json:"success"`
	Proof   string         `json:"proof,omitempty"` // hex signature over the canonical message
	Error   string         `json:"error,omitempty"`
	// NeedsReconciliation is set when post-execute verification failed after
	// the debit had already committed. The record is invalid but the balance
	// change stands until an operator reconciles it.
	NeedsReconciliation bool      `json:"needs_reconciliation,omitempty"`
	ExecutedAt          time.Time `json:"executed_at,omitempty"`
}
