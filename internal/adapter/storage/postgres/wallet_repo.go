package postgres

import (
	"context"
	"errors"
	"fmt"

	"marketplace-escrow/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// WalletRepo implements ports.WalletRepository.
type WalletRepo struct {
	pool Pool
}

// NewWalletRepo creates a new WalletRepo.
func NewWalletRepo(pool Pool) *WalletRepo {
	return &WalletRepo{pool: pool}
}

const walletColumns = `id, user_id, currency, balance, created_at, updated_at`

// Create inserts a new wallet.
func (r *WalletRepo) Create(ctx context.Context, w *domain.Wallet) error {
	query := `INSERT INTO wallets (` + walletColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.pool.Exec(ctx, query,
		w.ID, w.UserID, w.Currency, w.Balance, w.CreatedAt, w.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert wallet: %w", err)
	}
	return nil
}

// GetByUserID fetches a wallet by owner (non-locking read).
func (r *WalletRepo) GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE user_id = $1`
	return scanWallet(r.pool.QueryRow(ctx, query, userID), "get wallet by user id")
}

// GetByUserIDForUpdate fetches a wallet by owner with pessimistic locking.
// This MUST be called within a transaction.
func (r *WalletRepo) GetByUserIDForUpdate(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*domain.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE user_id = $1 FOR UPDATE`
	return scanWallet(tx.QueryRow(ctx, query, userID), "get wallet for update")
}

func scanWallet(row pgx.Row, op string) (*domain.Wallet, error) {
	w := &domain.Wallet{}
	err := row.Scan(&w.ID, &w.UserID, &w.Currency, &w.Balance, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return w, nil
}

// UpdateBalance sets a wallet's balance within a transaction.
func (r *WalletRepo) UpdateBalance(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, balance decimal.Decimal) error {
	query := `UPDATE wallets SET balance = $1, updated_at = NOW() WHERE id = $2`

	tag, err := tx.Exec(ctx, query, balance, walletID)
	if err != nil {
		return fmt.Errorf("update wallet balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("wallet not found: %s", walletID)
	}
	return nil
}

// AppendEntry inserts an immutable ledger entry within a transaction.
func (r *WalletRepo) AppendEntry(ctx context.Context, tx pgx.Tx, e *domain.WalletEntry) error {
	query := `INSERT INTO wallet_entries
		(id, wallet_id, type, amount, currency, description, reference_type, reference_id, balance_after, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := tx.Exec(ctx, query,
		e.ID, e.WalletID, e.Type, e.Amount, e.Currency,
		e.Description, e.ReferenceType, e.ReferenceID, e.BalanceAfter, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert wallet entry: %w", err)
	}
	return nil
}

// ListEntries returns a page of ledger entries, newest first.
func (r *WalletRepo) ListEntries(ctx context.Context, walletID uuid.UUID, limit, offset int) ([]domain.WalletEntry, error) {
	query := `SELECT id, wallet_id, type, amount, currency, description, reference_type, reference_id, balance_after, created_at
		FROM wallet_entries WHERE wallet_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`

	rows, err := r.pool.Query(ctx, query, walletID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list wallet entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.WalletEntry
	for rows.Next() {
		var e domain.WalletEntry
		if err := rows.Scan(
			&e.ID, &e.WalletID, &e.Type, &e.Amount, &e.Currency,
			&e.Description, &e.ReferenceType, &e.ReferenceID, &e.BalanceAfter, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan wallet entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
