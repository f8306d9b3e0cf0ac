package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Wallet holds a user's settlement-currency balance. The balance always
// equals the signed sum of the wallet's ledger entries.
type Wallet struct {
	ID        uuid.UUID       `json:"id"`
	UserID    uuid.UUID       `json:"user_id"`
	Currency  string          `json:"currency"`
	Balance   decimal.Decimal `json:"balance"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// EntryType is the sign of a ledger entry.
type EntryType string

const (
	EntryTypeCredit EntryType = "CREDIT"
	EntryTypeDebit  EntryType = "DEBIT"
)

// ReferenceType names the record a ledger entry settles against.
type ReferenceType string

const (
	ReferencePayment ReferenceType = "PAYMENT"
	ReferenceEscrow  ReferenceType = "ESCROW"
	ReferenceTopup   ReferenceType = "TOPUP"
)

// WalletEntry is an immutable record of a single balance-changing event.
// BalanceAfter snapshots the wallet balance after the entry was applied.
type WalletEntry struct {
	ID            uuid.UUID       `json:"id"`
	WalletID      uuid.UUID       `json:"wallet_id"`
	Type          EntryType       `json:"type"`
	Amount        decimal.Decimal `json:"amount"` // Always positive; Type carries the sign
	Currency      string          `json:"currency"`
	Description   string          `json:"description"`
	ReferenceType ReferenceType   `json:"reference_type"`
	ReferenceID   uuid.UUID       `json:"reference_id"`
	BalanceAfter  decimal.Decimal `json:"balance_after"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Signed returns the entry amount with its sign applied.
func (e *WalletEntry) Signed() decimal.Decimal {
	if e.Type == EntryTypeDebit {
		return e.Amount.Neg()
	}
	return e.Amount
}

// CanDebit reports whether the wallet can cover amount without going negative.
func (w *Wallet) CanDebit(amount decimal.Decimal) bool {
	return w.Balance.GreaterThanOrEqual(amount)
}
