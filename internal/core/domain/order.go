package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderStatus is the lifecycle state of a placement order. Only the
// transitions the payment orchestrator drives are modeled here; the
// marketplace CRUD around orders lives elsewhere.
type OrderStatus string

const (
	OrderStatusDraft         OrderStatus = "DRAFT"
	OrderStatusApproved      OrderStatus = "APPROVED"
	OrderStatusPaid          OrderStatus = "PAID"
	OrderStatusPaymentFailed OrderStatus = "PAYMENT_FAILED"
	OrderStatusCompleted     OrderStatus = "COMPLETED"
	OrderStatusCancelled     OrderStatus = "CANCELLED"
)

// Order is a sponsored-content placement agreement between a buyer
// (advertiser) and a seller (publisher).
type Order struct {
	ID             uuid.UUID       `json:"id"`
	BuyerID        uuid.UUID       `json:"buyer_id"`
	SellerID       uuid.UUID       `json:"seller_id"`
	Title          string          `json:"title"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	Currency       string          `json:"currency"`
	Deadline       *time.Time      `json:"deadline,omitempty"`
	RevisionRounds int             `json:"revision_rounds"`
	WebhookURL     *string         `json:"webhook_url,omitempty"` // Buyer-supplied status callback
	Status         OrderStatus     `json:"status"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// IsPayable returns true if the order can accept a funding attempt.
func (o *Order) IsPayable() bool {
	return o.Status == OrderStatusApproved || o.Status == OrderStatusPaymentFailed
}
