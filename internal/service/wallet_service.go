package service

import (
	"context"
	"fmt"
	"time"

	"marketplace-escrow/internal/core/domain"
	"marketplace-escrow/internal/core/ports"
	"marketplace-escrow/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	defaultEntryPageSize = 20
	maxEntryPageSize     = 100
)

// WalletServiceImpl implements ports.WalletService.
type WalletServiceImpl struct {
	walletRepo ports.WalletRepository
	transactor ports.DBTransactor
	log        zerolog.Logger
}

// NewWalletService creates a new WalletServiceImpl.
func NewWalletService(walletRepo ports.WalletRepository, transactor ports.DBTransactor, log zerolog.Logger) *WalletServiceImpl {
	return &WalletServiceImpl{
		walletRepo: walletRepo,
		transactor: transactor,
		log:        log,
	}
}

// GetBalance returns the user's wallet.
func (s *WalletServiceImpl) GetBalance(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error) {
	wallet, err := s.walletRepo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get wallet: %w", err))
	}
	if wallet == nil {
		return nil, apperror.ErrNotFound("wallet")
	}
	return wallet, nil
}

// ListEntries returns a page of the wallet's ledger, newest first.
func (s *WalletServiceImpl) ListEntries(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.WalletEntry, error) {
	if limit <= 0 {
		limit = defaultEntryPageSize
	}
	if limit > maxEntryPageSize {
		limit = maxEntryPageSize
	}
	if offset < 0 {
		offset = 0
	}

	wallet, err := s.walletRepo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get wallet: %w", err))
	}
	if wallet == nil {
		return nil, apperror.ErrNotFound("wallet")
	}

	entries, err := s.walletRepo.ListEntries(ctx, wallet.ID, limit, offset)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list entries: %w", err))
	}
	return entries, nil
}

// Topup credits the wallet and appends a ledger entry in one transaction.
func (s *WalletServiceImpl) Topup(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (*domain.Wallet, error) {
	if !amount.IsPositive() {
		return nil, apperror.ErrInvalidAmount()
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	wallet, err := s.walletRepo.GetByUserIDForUpdate(ctx, dbTx, userID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock wallet: %w", err))
	}
	if wallet == nil {
		return nil, apperror.ErrNotFound("wallet")
	}

	now := time.Now().UTC()
	newBalance := wallet.Balance.Add(amount)
	if err := s.walletRepo.UpdateBalance(ctx, dbTx, wallet.ID, newBalance); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("update balance: %w", err))
	}
	if err := s.walletRepo.AppendEntry(ctx, dbTx, &domain.WalletEntry{
		ID:            uuid.New(),
		WalletID:      wallet.ID,
		Type:          domain.EntryTypeCredit,
		Amount:        amount,
		Currency:      wallet.Currency,
		Description:   "Wallet topup",
		ReferenceType: domain.ReferenceTopup,
		ReferenceID:   wallet.ID,
		BalanceAfter:  newBalance,
		CreatedAt:     now,
	}); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("append ledger entry: %w", err))
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	wallet.Balance = newBalance
	wallet.UpdatedAt = now

	s.log.Info().
		Str("wallet_id", wallet.ID.String()).
		Str("amount", amount.String()).
		Msg("wallet topped up")

	return wallet, nil
}
