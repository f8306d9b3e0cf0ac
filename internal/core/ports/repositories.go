package ports

import (
	"context"
	"time"

	"marketplace-escrow/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
}

// CurrencyRepository defines persistence for exchange-rate reference data.
type CurrencyRepository interface {
	Upsert(ctx context.Context, currency *domain.Currency) error
	GetByCode(ctx context.Context, code string) (*domain.Currency, error)
	List(ctx context.Context) ([]domain.Currency, error)
}

// WalletRepository defines persistence operations for wallets and their
// append-only ledger. Methods accepting pgx.Tx are used inside transaction
// blocks for pessimistic locking.
type WalletRepository interface {
	Create(ctx context.Context, wallet *domain.Wallet) error
	GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error)
	GetByUserIDForUpdate(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*domain.Wallet, error)
	UpdateBalance(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, balance decimal.Decimal) error
	AppendEntry(ctx context.Context, tx pgx.Tx, entry *domain.WalletEntry) error
	ListEntries(ctx context.Context, walletID uuid.UUID, limit, offset int) ([]domain.WalletEntry, error)
}

// OrderRepository defines the order surface the orchestrator needs.
type OrderRepository interface {
	Create(ctx context.Context, order *domain.Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.OrderStatus) error
}

// PaymentRepository defines persistence operations for payments.
type PaymentRepository interface {
	Create(ctx context.Context, tx pgx.Tx, payment *domain.Payment) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Payment, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Payment, error)
	GetByOrderID(ctx context.Context, orderID uuid.UUID) (*domain.Payment, error)
	Update(ctx context.Context, tx pgx.Tx, payment *domain.Payment) error
}

// EscrowRepository defines persistence operations for escrows and their
// append-only history log.
type EscrowRepository interface {
	Create(ctx context.Context, tx pgx.Tx, escrow *domain.Escrow) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Escrow, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Escrow, error)
	GetByPaymentID(ctx context.Context, paymentID uuid.UUID) (*domain.Escrow, error)
	Update(ctx context.Context, tx pgx.Tx, escrow *domain.Escrow) error
	AppendHistory(ctx context.Context, tx pgx.Tx, entry *domain.EscrowHistoryEntry) error
	ListHistory(ctx context.Context, escrowID uuid.UUID) ([]domain.EscrowHistoryEntry, error)
	// ListAutoReleaseDue returns funded escrows whose auto-release date has
	// passed, for the scanner.
	ListAutoReleaseDue(ctx context.Context, now time.Time, limit int) ([]domain.Escrow, error)
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}
