package ports

import (
	"context"
	"time"

	"marketplace-escrow/internal/core/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ---- Infrastructure Ports ----

// HashService handles password hashing (Argon2id).
type HashService interface {
	Hash(password string) (string, error)
	Verify(password string, hash string) (bool, error)
}

// TokenService handles JWT token operations.
type TokenService interface {
	Generate(userID uuid.UUID, role domain.UserRole) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed JWT claims.
type TokenClaims struct {
	UserID uuid.UUID
	Role   domain.UserRole
}

// SignatureService handles HMAC-SHA256 signing and verification of
// provider webhook payloads.
type SignatureService interface {
	Sign(secretKey string, payload string) string
	Verify(secretKey string, payload string, signature string) bool
}

// ConfirmationDedup guards the provider-webhook entry point against
// replays. CheckAndSet atomically records the key; it returns true if the
// key is new (first delivery), false if already seen. Delete releases a
// key so a failed delivery can be retried by the provider.
type ConfirmationDedup interface {
	CheckAndSet(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, key string) error
}

// NotificationPublisher publishes marketplace events to the message bus.
// Publishing is best-effort; callers log and swallow errors.
type NotificationPublisher interface {
	Publish(ctx context.Context, event domain.Event) error
	Close() error
}

// RateSource fetches exchange rates from the external rate provider.
type RateSource interface {
	// FetchFiatRates returns currency code -> units per 1 base currency.
	FetchFiatRates(ctx context.Context, base string) (map[string]decimal.Decimal, error)
	// FetchCryptoRates returns crypto code -> units per 1 base currency.
	FetchCryptoRates(ctx context.Context) (map[string]decimal.Decimal, error)
}

// ---- Provider Adapters ----

// ChargeRequest is the normalized input to a provider adapter.
type ChargeRequest struct {
	PaymentID uuid.UUID
	Amount    decimal.Decimal
	Currency  string
	ReturnURL string
	// Description appears on the payer's provider statement.
	Description string
}

// ChargeResult is the normalized provider response.
type ChargeResult struct {
	TransactionID string
	PaymentURL    string
	Metadata      map[string]any
}

// ProviderAdapter is the integration boundary to one external payment
// processor.
type ProviderAdapter interface {
	Method() domain.PaymentMethod
	CreateCharge(ctx context.Context, req ChargeRequest) (*ChargeResult, error)
}

// ---- Service Ports (Business Logic) ----

// InitiatePaymentRequest holds validated input for payment initiation.
type InitiatePaymentRequest struct {
	OrderID   uuid.UUID
	PayerID   uuid.UUID
	Method    domain.PaymentMethod
	Currency  string
	ReturnURL string
}

// ConfirmPaymentRequest is the provider-webhook input.
type ConfirmPaymentRequest struct {
	PaymentID             uuid.UUID
	ProviderTransactionID string
	Status                domain.PaymentStatus
	Metadata              map[string]any
}

// PaymentService is the payment orchestrator.
type PaymentService interface {
	InitiatePayment(ctx context.Context, req InitiatePaymentRequest) (*domain.Payment, error)
	ConfirmPayment(ctx context.Context, req ConfirmPaymentRequest) (*domain.Payment, error)
	RetryPayment(ctx context.Context, paymentID, requesterID uuid.UUID) (*domain.Payment, error)
	GetPayment(ctx context.Context, id uuid.UUID) (*domain.Payment, error)
}

// DisputeOutcome decides where disputed funds go.
type DisputeOutcome string

const (
	DisputeOutcomeRelease DisputeOutcome = "RELEASE"
	DisputeOutcomeRefund  DisputeOutcome = "REFUND"
)

// OpenDisputeRequest holds validated input for dispute creation.
type OpenDisputeRequest struct {
	EscrowID    uuid.UUID
	RequesterID uuid.UUID
	Reason      string
	Description string
	Evidence    []string
}

// EscrowService drives release, dispute and refund transitions.
type EscrowService interface {
	Release(ctx context.Context, escrowID, requesterID uuid.UUID) (*domain.Escrow, error)
	CheckAutoRelease(ctx context.Context, escrowID uuid.UUID) (*domain.Escrow, error)
	RunAutoReleaseScan(ctx context.Context) (int, error)
	OpenDispute(ctx context.Context, req OpenDisputeRequest) (*domain.Escrow, error)
	ResolveDispute(ctx context.Context, escrowID, resolverID uuid.UUID, resolution string, outcome DisputeOutcome) (*domain.Escrow, error)
	GetEscrow(ctx context.Context, id uuid.UUID) (*domain.Escrow, error)
	ListHistory(ctx context.Context, escrowID uuid.UUID) ([]domain.EscrowHistoryEntry, error)
}

// CurrencyService converts amounts and maintains the rate table.
type CurrencyService interface {
	Convert(ctx context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, error)
	GetCurrency(ctx context.Context, code string) (*domain.Currency, error)
	ListCurrencies(ctx context.Context) ([]domain.Currency, error)
	RefreshRates(ctx context.Context) error
}

// WalletService exposes balance, ledger and topup operations.
type WalletService interface {
	GetBalance(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error)
	ListEntries(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.WalletEntry, error)
	Topup(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (*domain.Wallet, error)
}

// RegisterRequest holds input for user registration.
type RegisterRequest struct {
	Username    string
	Password    string
	DisplayName string
}

// AuthService defines authentication business logic.
type AuthService interface {
	Register(ctx context.Context, req RegisterRequest) (*domain.User, error)
	Login(ctx context.Context, username, password string) (string, time.Time, error) // token, expiry, error
}
