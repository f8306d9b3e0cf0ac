package domain

import (
	"time"

	"github.com/google/uuid"
)

// EventType names a marketplace notification event.
type EventType string

const (
	EventPaymentInitiated EventType = "payment.initiated"
	EventPaymentCompleted EventType = "payment.completed"
	EventPaymentFailed    EventType = "payment.failed"
	EventEscrowFunded     EventType = "escrow.funded"
	EventEscrowReleased   EventType = "escrow.released"
	EventEscrowRefunded   EventType = "escrow.refunded"
	EventDisputeOpened    EventType = "dispute.opened"
	EventDisputeResolved  EventType = "dispute.resolved"
)

// Event is a best-effort notification published to the message bus.
// Delivery failures never fail the primary operation.
type Event struct {
	Type      EventType      `json:"type"`
	UserID    uuid.UUID      `json:"user_id"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}
