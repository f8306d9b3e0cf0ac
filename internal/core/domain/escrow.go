package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EscrowStatus is the lifecycle state of held funds.
type EscrowStatus string

const (
	EscrowStatusPending             EscrowStatus = "PENDING"
	EscrowStatusFunded              EscrowStatus = "FUNDED"
	EscrowStatusReleased            EscrowStatus = "RELEASED"
	EscrowStatusDisputed            EscrowStatus = "DISPUTED"
	EscrowStatusRefunded            EscrowStatus = "REFUNDED"
	EscrowStatusCancelled           EscrowStatus = "CANCELLED"
	EscrowStatusFailed              EscrowStatus = "FAILED"
	EscrowStatusAutoReleaseEligible EscrowStatus = "AUTO_RELEASE_ELIGIBLE"
)

// DefaultAutoReleaseHours applies when order terms carry no override.
const DefaultAutoReleaseHours = 72

// Milestone is an optional partial-delivery checkpoint in escrow terms.
type Milestone struct {
	Title   string          `json:"title"`
	Amount  decimal.Decimal `json:"amount"`
	DueDate *time.Time      `json:"due_date,omitempty"`
	Done    bool            `json:"done"`
}

// EscrowTerms are fixed at escrow creation from the order.
type EscrowTerms struct {
	DeliveryDeadline *time.Time  `json:"delivery_deadline,omitempty"`
	RevisionRounds   int         `json:"revision_rounds"`
	AutoReleaseHours int         `json:"auto_release_hours"`
	Milestones       []Milestone `json:"milestones,omitempty"`
}

// DisputeStatus tracks a dispute through review.
type DisputeStatus string

const (
	DisputeStatusOpen        DisputeStatus = "OPEN"
	DisputeStatusUnderReview DisputeStatus = "UNDER_REVIEW"
	DisputeStatusResolved    DisputeStatus = "RESOLVED"
	DisputeStatusEscalated   DisputeStatus = "ESCALATED"
)

// Dispute is embedded in an escrow; at most one may be open at a time.
type Dispute struct {
	Status      DisputeStatus `json:"status"`
	CreatedBy   uuid.UUID     `json:"created_by"`
	Reason      string        `json:"reason"`
	Description string        `json:"description"`
	Evidence    []string      `json:"evidence,omitempty"`
	Resolution  *string       `json:"resolution,omitempty"`
	ResolvedBy  *uuid.UUID    `json:"resolved_by,omitempty"`
	ResolvedAt  *time.Time    `json:"resolved_at,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
}

// Escrow holds buyer funds between payment and release, one-to-one with
// a payment.
type Escrow struct {
	ID                 uuid.UUID        `json:"id"`
	PaymentID          uuid.UUID        `json:"payment_id"`
	OrderID            uuid.UUID        `json:"order_id"`
	BuyerID            uuid.UUID        `json:"buyer_id"`
	SellerID           uuid.UUID        `json:"seller_id"`
	Amount             decimal.Decimal  `json:"amount"`
	Currency           string           `json:"currency"`
	Status             EscrowStatus     `json:"status"`
	Terms              EscrowTerms      `json:"terms"`
	Dispute            *Dispute         `json:"dispute,omitempty"`
	FundedAt           *time.Time       `json:"funded_at,omitempty"`
	AutoReleaseDate    *time.Time       `json:"auto_release_date,omitempty"`
	ReleasedAt         *time.Time       `json:"released_at,omitempty"`
	ReleasedBy         *uuid.UUID       `json:"released_by,omitempty"`
	PlatformCommission *decimal.Decimal `json:"platform_commission,omitempty"`
	CreatedAt          time.Time        `json:"created_at"`
	UpdatedAt          time.Time        `json:"updated_at"`
}

// MarkFunded transitions into FUNDED. AutoReleaseDate is set exactly once,
// on the first transition; re-entering FUNDED never recomputes it.
func (e *Escrow) MarkFunded(now time.Time) {
	e.Status = EscrowStatusFunded
	if e.FundedAt == nil {
		e.FundedAt = &now
	}
	if e.AutoReleaseDate == nil {
		hours := e.Terms.AutoReleaseHours
		if hours <= 0 {
			hours = DefaultAutoReleaseHours
		}
		d := now.Add(time.Duration(hours) * time.Hour)
		e.AutoReleaseDate = &d
	}
}

// IsReleasable reports whether funds can move to the seller.
func (e *Escrow) IsReleasable() bool {
	return e.Status == EscrowStatusFunded || e.Status == EscrowStatusAutoReleaseEligible
}

// IsParty returns true if the user is the buyer or the seller.
func (e *Escrow) IsParty(userID uuid.UUID) bool {
	return e.BuyerID == userID || e.SellerID == userID
}

// HasOpenDispute returns true while a dispute is unresolved.
func (e *Escrow) HasOpenDispute() bool {
	return e.Dispute != nil && e.Dispute.Status != DisputeStatusResolved
}

// AutoReleaseDue reports whether the funded escrow has passed its
// auto-release deadline.
func (e *Escrow) AutoReleaseDue(now time.Time) bool {
	return e.Status == EscrowStatusFunded &&
		e.AutoReleaseDate != nil &&
		!now.Before(*e.AutoReleaseDate)
}

// EscrowHistoryEntry is an append-only audit record of an escrow action.
type EscrowHistoryEntry struct {
	ID          uuid.UUID       `json:"id"`
	EscrowID    uuid.UUID       `json:"escrow_id"`
	Action      string          `json:"action"`
	PerformedBy uuid.UUID       `json:"performed_by"`
	Details     json.RawMessage `json:"details,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Escrow history actions.
const (
	EscrowActionCreated             = "CREATED"
	EscrowActionFunded              = "FUNDED"
	EscrowActionReleased            = "RELEASED"
	EscrowActionDisputeOpened       = "DISPUTE_OPENED"
	EscrowActionDisputeResolved     = "DISPUTE_RESOLVED"
	EscrowActionRefunded            = "REFUNDED"
	EscrowActionFailed              = "FAILED"
	EscrowActionAutoReleaseEligible = "AUTO_RELEASE_ELIGIBLE"
)
