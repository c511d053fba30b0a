package domain

import (
	"context"
	"encoding/json"
	"time"
)

// EventType identifies the kind of event being published.
type EventType string

const (
	EventAgentCreated  EventType = "agent.created"
	EventAgentBankrupt EventType = "agent.bankrupt"
	EventAgentCredited EventType = "agent.credited"

	EventPaymentSettled        EventType = "payment.settled"
	EventPaymentFailed         EventType = "payment.failed"
	EventPaymentReconciliation EventType = "payment.reconciliation_required"

	EventCycleCompleted  EventType = "cycle.completed"
	EventOutcomeRecorded EventType = "outcome.recorded"

	EventBreedingCompleted EventType = "breeding.completed"
	EventBreedingRejected  EventType = "breeding.rejected"
)

// Event is the envelope published on the event bus.
type Event struct {
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	AgentID   string          `json:"agent_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// EventHandler is a callback invoked when an event is received.
type EventHandler func(ctx context.Context, event Event)

// EventBus provides a publish/subscribe mechanism for domain events.
type EventBus interface {
	// Publish sends an event to all matching subscribers.
	Publish(ctx context.Context, event Event)
	// Subscribe registers a handler for a specific event type.
	// Returns an unsubscribe function.
	Subscribe(eventType EventType, handler EventHandler) func()
	// SubscribeAll registers a handler that receives every event.
	// Returns an unsubscribe function.
	SubscribeAll(handler EventHandler) func()
	// Close drains in-flight handlers and prevents new publishes.
	Close()
}
