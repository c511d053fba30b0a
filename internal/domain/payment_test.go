package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func testRequest() PaymentRequest {
	return PaymentRequest{
		ResourceID: "res-1",
		Amount:     MustParseAmount("0.05"),
		Currency:   "USDC",
		AgentID:    "agent-1",
		Reasoning:  "selected res-1: high quality",
		Nonce:      "01HTESTNONCE",
		Timestamp:  time.Unix(1700000000, 123456789).UTC(),
	}
}

func TestPaymentRequest_CanonicalMessageDeterministic(t *testing.T) {
	a := testRequest()
	b := testRequest()
	assert.Equal(t, a.CanonicalMessage(), b.CanonicalMessage())
}

func TestPaymentRequest_CanonicalMessageBindsFields(t *testing.T) {
	base := string(testRequest().CanonicalMessage())

	mutations := []func(*PaymentRequest){
		func(r *PaymentRequest) { r.ResourceID = "res-2" },
		func(r *PaymentRequest) { r.Amount++ },
		func(r *PaymentRequest) { r.Currency = "USDT" },
		func(r *PaymentRequest) { r.AgentID = "agent-2" },
		func(r *PaymentRequest) { r.Reasoning = "other" },
		func(r *PaymentRequest) { r.Timestamp = r.Timestamp.Add(time.Nanosecond) },
	}
	for i, mutate := range mutations {
		req := testRequest()
		mutate(&req)
		assert.NotEqual(t, base, string(req.CanonicalMessage()), "mutation %d", i)
	}
}

func TestPaymentRequest_Validate(t *testing.T) {
	assert.NoError(t, testRequest().Validate())

	mutations := []func(*PaymentRequest){
		func(r *PaymentRequest) { r.ResourceID = "" },
		func(r *PaymentRequest) { r.AgentID = "" },
		func(r *PaymentRequest) { r.Currency = "" },
		func(r *PaymentRequest) { r.Nonce = "" },
		func(r *PaymentRequest) { r.Timestamp = time.Time{} },
	}
	for i, mutate := range mutations {
		req := testRequest()
		mutate(&req)
		assert.ErrorIs(t, req.Validate(), ErrValidation, "mutation %d", i)
	}
}
