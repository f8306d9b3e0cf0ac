package dto

import (
	"github.com/shopspring/decimal"
)

// RegisterRequest is the request body for user registration.
type RegisterRequest struct {
	Username    string `json:"username" binding:"required,min=3,max=50,safe_id"`
	Password    string `json:"password" binding:"required,min=8,max=128"`
	DisplayName string `json:"display_name" binding:"max=100"`
}

// LoginRequest is the request body for user login.
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// RegisterResponse is the response body for successful registration.
type RegisterResponse struct {
	UserID      string `json:"user_id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
}

// LoginResponse is the response body for successful login.
type LoginResponse struct {
	Token  string `json:"token"`
	Expiry int64  `json:"expiry"` // Unix timestamp
}

// InitiatePaymentRequest is the request body for funding an order.
type InitiatePaymentRequest struct {
	OrderID   string `json:"order_id" binding:"required,uuid"`
	Method    string `json:"method" binding:"required,oneof=STRIPE PAYPAL CRYPTO WALLET"`
	Currency  string `json:"currency" binding:"required,min=3,max=5,uppercase"`
	ReturnURL string `json:"return_url" binding:"omitempty,safe_url"`
}

// ConfirmPaymentRequest is the provider webhook callback body.
type ConfirmPaymentRequest struct {
	PaymentID             string         `json:"payment_id" binding:"required,uuid"`
	ProviderTransactionID string         `json:"provider_transaction_id" binding:"required,max=255"`
	Status                string         `json:"status" binding:"required"`
	Metadata              map[string]any `json:"metadata,omitempty"`
}

// PaymentResponse is the response body for payment results.
type PaymentResponse struct {
	ID                    string          `json:"id"`
	OrderID               string          `json:"order_id"`
	Amount                decimal.Decimal `json:"amount"`
	Currency              string          `json:"currency"`
	OriginalAmount        decimal.Decimal `json:"original_amount"`
	OriginalCurrency      string          `json:"original_currency"`
	Method                string          `json:"method"`
	Status                string          `json:"status"`
	PaymentURL            *string         `json:"payment_url,omitempty"`
	ProviderTransactionID *string         `json:"provider_transaction_id,omitempty"`
	PlatformFee           decimal.Decimal `json:"platform_fee"`
	ProcessingFee         decimal.Decimal `json:"processing_fee"`
	RetryCount            int             `json:"retry_count"`
	FailureReason         *string         `json:"failure_reason,omitempty"`
	CreatedAt             string          `json:"created_at"`
	PaidAt                *string         `json:"paid_at,omitempty"`
}

// OpenDisputeRequest is the request body for opening a dispute.
type OpenDisputeRequest struct {
	Reason      string   `json:"reason" binding:"required,min=3,max=200"`
	Description string   `json:"description" binding:"max=2000"`
	Evidence    []string `json:"evidence" binding:"omitempty,max=10,dive,safe_url"`
}

// ResolveDisputeRequest is the request body for the admin dispute verdict.
type ResolveDisputeRequest struct {
	Resolution string `json:"resolution" binding:"required,min=3,max=2000"`
	Outcome    string `json:"outcome" binding:"required,oneof=RELEASE REFUND"`
}

// DisputeResponse is the embedded dispute view.
type DisputeResponse struct {
	Status      string   `json:"status"`
	CreatedBy   string   `json:"created_by"`
	Reason      string   `json:"reason"`
	Description string   `json:"description,omitempty"`
	Evidence    []string `json:"evidence,omitempty"`
	Resolution  *string  `json:"resolution,omitempty"`
	ResolvedAt  *string  `json:"resolved_at,omitempty"`
	CreatedAt   string   `json:"created_at"`
}

// EscrowResponse is the response body for escrow state.
type EscrowResponse struct {
	ID                 string           `json:"id"`
	PaymentID          string           `json:"payment_id"`
	OrderID            string           `json:"order_id"`
	BuyerID            string           `json:"buyer_id"`
	SellerID           string           `json:"seller_id"`
	Amount             decimal.Decimal  `json:"amount"`
	Currency           string           `json:"currency"`
	Status             string           `json:"status"`
	Dispute            *DisputeResponse `json:"dispute,omitempty"`
	FundedAt           *string          `json:"funded_at,omitempty"`
	AutoReleaseDate    *string          `json:"auto_release_date,omitempty"`
	ReleasedAt         *string          `json:"released_at,omitempty"`
	PlatformCommission *decimal.Decimal `json:"platform_commission,omitempty"`
	CreatedAt          string           `json:"created_at"`
}

// EscrowHistoryResponse is one entry of the escrow action log.
type EscrowHistoryResponse struct {
	Action      string `json:"action"`
	PerformedBy string `json:"performed_by"`
	Details     any    `json:"details,omitempty"`
	CreatedAt   string `json:"created_at"`
}

// AutoReleaseScanResponse reports an admin-triggered scan.
type AutoReleaseScanResponse struct {
	Flipped int `json:"flipped"`
}

// TopupRequest is the request body for wallet topup.
type TopupRequest struct {
	Amount decimal.Decimal `json:"amount" binding:"required"`
}

// WalletBalanceResponse is the response for balance queries.
type WalletBalanceResponse struct {
	WalletID string          `json:"wallet_id"`
	Balance  decimal.Decimal `json:"balance"`
	Currency string          `json:"currency"`
}

// WalletEntryResponse is one ledger entry.
type WalletEntryResponse struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	Description   string          `json:"description,omitempty"`
	ReferenceType string          `json:"reference_type"`
	ReferenceID   string          `json:"reference_id"`
	BalanceAfter  decimal.Decimal `json:"balance_after"`
	CreatedAt     string          `json:"created_at"`
}

// ConvertRequest is the request body for currency conversion.
type ConvertRequest struct {
	Amount decimal.Decimal `json:"amount" binding:"required"`
	From   string          `json:"from" binding:"required,min=3,max=5,uppercase"`
	To     string          `json:"to" binding:"required,min=3,max=5,uppercase"`
}

// ConvertResponse is the conversion result.
type ConvertResponse struct {
	Amount    decimal.Decimal `json:"amount"`
	From      string          `json:"from"`
	To        string          `json:"to"`
	Converted decimal.Decimal `json:"converted"`
}

// CurrencyResponse is one supported currency.
type CurrencyResponse struct {
	Code             string          `json:"code"`
	Name             string          `json:"name"`
	ExchangeRate     decimal.Decimal `json:"exchange_rate"`
	IsCryptocurrency bool            `json:"is_cryptocurrency"`
	Decimals         int32           `json:"decimals"`
	MinAmount        decimal.Decimal `json:"min_amount"`
	MaxAmount        decimal.Decimal `json:"max_amount"`
}
