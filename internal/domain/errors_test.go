package domain

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapOp(t *testing.T) {
	assert.Nil(t, WrapOp("Op", nil))

	err := WrapOp("Ledger.Validate", fmt.Errorf("%w: bad amount", ErrValidation))
	assert.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), "Ledger.Validate")
}

func TestDomainError_UnwrapsToSentinel(t *testing.T) {
	err := NewDomainError("Manager.Breed", ErrIneligibleBreeding, "agent x is bankrupt")
	assert.ErrorIs(t, err, ErrIneligibleBreeding)
	assert.Contains(t, err.Error(), "agent x is bankrupt")
}

func TestErrorCodeOf(t *testing.T) {
	cases := map[error]ErrorCode{
		ErrValidation:        CodeValidation,
		ErrInsufficientFunds: CodeInsufficientFunds,
		ErrSignature:         CodeSignature,
		WrapOp("op", ErrNonceReplayed): CodeNonceReplayed,
		fmt.Errorf("something else"):   CodeUnknown,
	}
	for err, want := range cases {
		assert.Equal(t, want, ErrorCodeOf(err))
	}
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, IsTerminal(WrapOp("op", ErrInsufficientFunds)))
	assert.True(t, IsTerminal(ErrSignature))
	assert.False(t, IsTerminal(ErrValidation))
	assert.False(t, IsTerminal(nil))
}
