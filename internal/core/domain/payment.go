package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentMethod selects the provider adapter for a funding attempt.
type PaymentMethod string

const (
	PaymentMethodStripe PaymentMethod = "STRIPE"
	PaymentMethodPayPal PaymentMethod = "PAYPAL"
	PaymentMethodCrypto PaymentMethod = "CRYPTO"
	PaymentMethodWallet PaymentMethod = "WALLET"
)

// PaymentStatus is the lifecycle state of a funding attempt.
type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "PENDING"
	PaymentStatusProcessing PaymentStatus = "PROCESSING"
	PaymentStatusCompleted  PaymentStatus = "COMPLETED"
	PaymentStatusFailed     PaymentStatus = "FAILED"
	PaymentStatusCancelled  PaymentStatus = "CANCELLED"
	PaymentStatusRefunded   PaymentStatus = "REFUNDED"
)

// MaxPaymentRetries bounds re-dispatches of a failed payment.
const MaxPaymentRetries = 3

// Payment represents one funding attempt tied to exactly one order.
// Amount is in the settlement currency; OriginalAmount/OriginalCurrency
// preserve the order's base pricing with the ExchangeRate snapshot used.
type Payment struct {
	ID                    uuid.UUID       `json:"id"`
	OrderID               uuid.UUID       `json:"order_id"`
	PayerID               uuid.UUID       `json:"payer_id"`
	PayeeID               uuid.UUID       `json:"payee_id"`
	Amount                decimal.Decimal `json:"amount"`
	Currency              string          `json:"currency"`
	OriginalAmount        decimal.Decimal `json:"original_amount"`
	OriginalCurrency      string          `json:"original_currency"`
	ExchangeRate          decimal.Decimal `json:"exchange_rate"`
	Method                PaymentMethod   `json:"method"`
	Status                PaymentStatus   `json:"status"`
	ProviderTransactionID *string         `json:"provider_transaction_id,omitempty"`
	PaymentURL            *string         `json:"payment_url,omitempty"`
	ProviderData          json.RawMessage `json:"provider_data,omitempty"` // Opaque provider metadata
	PlatformFee           decimal.Decimal `json:"platform_fee"`
	ProcessingFee         decimal.Decimal `json:"processing_fee"`
	RetryCount            int             `json:"retry_count"`
	FailureReason         *string         `json:"failure_reason,omitempty"`
	PaidAt                *time.Time      `json:"paid_at,omitempty"`
	RefundedAt            *time.Time      `json:"refunded_at,omitempty"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
}

// BuildConfirmationKey constructs the dedup key guarding webhook replays.
func BuildConfirmationKey(paymentID uuid.UUID, providerTxID string, status PaymentStatus) string {
	return paymentID.String() + ":" + providerTxID + ":" + string(status)
}

// NetAmount is the amount the seller side settles for after fees.
func (p *Payment) NetAmount() decimal.Decimal {
	return p.Amount.Sub(p.PlatformFee).Sub(p.ProcessingFee)
}

// IsTerminal returns true once no further status transition is allowed.
// Refunded payments are never mutated again.
func (p *Payment) IsTerminal() bool {
	return p.Status == PaymentStatusCompleted ||
		p.Status == PaymentStatusCancelled ||
		p.Status == PaymentStatusRefunded
}

// CanRetry reports whether a failed payment may be re-dispatched.
func (p *Payment) CanRetry() bool {
	return p.Status == PaymentStatusFailed && p.RetryCount < MaxPaymentRetries
}

// MergeProviderData shallow-merges metadata into ProviderData.
func (p *Payment) MergeProviderData(metadata map[string]any) error {
	if len(metadata) == 0 {
		return nil
	}
	merged := make(map[string]any)
	if len(p.ProviderData) > 0 {
		if err := json.Unmarshal(p.ProviderData, &merged); err != nil {
			return err
		}
	}
	for k, v := range metadata {
		merged[k] = v
	}
	raw, err := json.Marshal(merged)
	if err != nil {
		return err
	}
	p.ProviderData = raw
	return nil
}
