package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the domain layer. Every public operation returns one
// of these (possibly wrapped); no component retries a payment on its own.
var (
	ErrValidation          = fmt.Errorf("validation failed")
	ErrInsufficientFunds   = fmt.Errorf("insufficient balance")
	ErrSignature           = fmt.Errorf("signature failure")
	ErrIneligibleBreeding  = fmt.Errorf("breeding eligibility not met")
	ErrAgentNotFound       = fmt.Errorf("agent not found")
	ErrAgentInactive       = fmt.Errorf("agent is not active")
	ErrDuplicateAgent      = fmt.Errorf("agent already registered")
	ErrNonceReplayed       = fmt.Errorf("payment nonce already used")
	ErrCatalogUnavailable  = fmt.Errorf("catalog provider unavailable")
	ErrForecastUnavailable = fmt.Errorf("forecast provider unavailable")
	ErrLedgerStore         = fmt.Errorf("ledger store failed")
	ErrKeystore            = fmt.Errorf("keystore operation failed")
	ErrConfigLoad          = fmt.Errorf("failed to load configuration")
)

// DomainError wraps a sentinel error with operation context.
type DomainError struct {
	Op     string // operation name (e.g. "Ledger.Settle")
	Err    error  // underlying sentinel or wrapped error
	Detail string // human-readable detail
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// IsTerminal reports whether err ends the affected operation for good.
// Terminal errors are surfaced to the agent manager, never retried.
func IsTerminal(err error) bool {
	return errors.Is(err, ErrInsufficientFunds) || errors.Is(err, ErrSignature)
}

// ErrorCode is a machine-parseable error category for monitoring.
type ErrorCode string

const (
	CodeUnknown             ErrorCode = "UNKNOWN"
	CodeValidation          ErrorCode = "VALIDATION"
	CodeInsufficientFunds   ErrorCode = "INSUFFICIENT_FUNDS"
	CodeSignature           ErrorCode = "SIGNATURE"
	CodeIneligibleBreeding  ErrorCode = "INELIGIBLE_BREEDING"
	CodeAgentNotFound       ErrorCode = "AGENT_NOT_FOUND"
	CodeAgentInactive       ErrorCode = "AGENT_INACTIVE"
	CodeNonceReplayed       ErrorCode = "NONCE_REPLAYED"
	CodeCatalogUnavailable  ErrorCode = "CATALOG_UNAVAILABLE"
	CodeForecastUnavailable ErrorCode = "FORECAST_UNAVAILABLE"
	CodeLedgerStore         ErrorCode = "LEDGER_STORE"
	CodeKeystore            ErrorCode = "KEYSTORE"
)

var errorCodeMap = []struct {
	sentinel error
	code     ErrorCode
}{
	{ErrValidation, CodeValidation},
	{ErrInsufficientFunds, CodeInsufficientFunds},
	{ErrSignature, CodeSignature},
	{ErrIneligibleBreeding, CodeIneligibleBreeding},
	{ErrAgentNotFound, CodeAgentNotFound},
	{ErrAgentInactive, CodeAgentInactive},
	{ErrNonceReplayed, CodeNonceReplayed},
	{ErrCatalogUnavailable, CodeCatalogUnavailable},
	{ErrForecastUnavailable, CodeForecastUnavailable},
	{ErrLedgerStore, CodeLedgerStore},
	{ErrKeystore, CodeKeystore},
}

// ErrorCodeOf maps err to its monitoring code.
func ErrorCodeOf(err error) ErrorCode {
	for _, m := range errorCodeMap {
		if errors.Is(err, m.sentinel) {
			return m.code
		}
	}
	return CodeUnknown
}
