package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"marketplace-escrow/internal/core/domain"
	"marketplace-escrow/internal/core/ports"
	"marketplace-escrow/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// autoReleaseScanBatch caps one scanner pass.
const autoReleaseScanBatch = 100

// EscrowServiceImpl implements ports.EscrowService. Fund movements run
// inside one database transaction with the escrow row locked, so a
// double release or a release racing a dispute cannot both commit.
type EscrowServiceImpl struct {
	escrowRepo        ports.EscrowRepository
	paymentRepo       ports.PaymentRepository
	orderRepo         ports.OrderRepository
	walletRepo        ports.WalletRepository
	publisher         ports.NotificationPublisher
	transactor        ports.DBTransactor
	commissionPercent decimal.Decimal
	log               zerolog.Logger
}

// NewEscrowService creates a new EscrowServiceImpl. commissionPercent is
// the platform cut on release, e.g. 10 for ten percent.
func NewEscrowService(
	escrowRepo ports.EscrowRepository,
	paymentRepo ports.PaymentRepository,
	orderRepo ports.OrderRepository,
	walletRepo ports.WalletRepository,
	publisher ports.NotificationPublisher,
	transactor ports.DBTransactor,
	commissionPercent decimal.Decimal,
	log zerolog.Logger,
) *EscrowServiceImpl {
	return &EscrowServiceImpl{
		escrowRepo:        escrowRepo,
		paymentRepo:       paymentRepo,
		orderRepo:         orderRepo,
		walletRepo:        walletRepo,
		publisher:         publisher,
		transactor:        transactor,
		commissionPercent: commissionPercent,
		log:               log,
	}
}

// Release moves escrowed funds to the seller, minus the platform
// commission. Only the buyer may release a funded escrow; once the escrow
// is auto-release eligible, either party may trigger the payout.
func (s *EscrowServiceImpl) Release(ctx context.Context, escrowID, requesterID uuid.UUID) (*domain.Escrow, error) {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	escrow, err := s.escrowRepo.GetByIDForUpdate(ctx, dbTx, escrowID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock escrow: %w", err))
	}
	if escrow == nil {
		return nil, apperror.ErrNotFound("escrow")
	}
	if !escrow.IsReleasable() {
		return nil, apperror.ErrInvalidEscrowState(string(escrow.Status))
	}
	if !escrow.IsParty(requesterID) {
		return nil, apperror.ErrNotAuthorized()
	}
	if escrow.Status == domain.EscrowStatusFunded && requesterID != escrow.BuyerID {
		return nil, apperror.ErrNotAuthorized()
	}

	if err := s.payoutSeller(ctx, dbTx, escrow, requesterID); err != nil {
		return nil, err
	}
	if err := s.orderRepo.UpdateStatus(ctx, dbTx, escrow.OrderID, domain.OrderStatusCompleted); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("update order status: %w", err))
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.notify(ctx, domain.EventEscrowReleased, escrow.SellerID, map[string]any{
		"escrow_id": escrow.ID.String(),
		"amount":    escrow.Amount.String(),
	})
	s.notify(ctx, domain.EventEscrowReleased, escrow.BuyerID, map[string]any{
		"escrow_id": escrow.ID.String(),
	})

	s.log.Info().
		Str("escrow_id", escrow.ID.String()).
		Str("released_by", requesterID.String()).
		Msg("escrow released")

	return escrow, nil
}

// payoutSeller credits the seller wallet and flips the escrow to RELEASED.
// Runs inside the caller's transaction with the escrow row already locked.
func (s *EscrowServiceImpl) payoutSeller(ctx context.Context, dbTx pgx.Tx, escrow *domain.Escrow, releasedBy uuid.UUID) error {
	commission := escrow.Amount.Mul(s.commissionPercent).Div(decimal.NewFromInt(100)).Round(2)
	net := escrow.Amount.Sub(commission)

	wallet, err := s.walletRepo.GetByUserIDForUpdate(ctx, dbTx, escrow.SellerID)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("lock seller wallet: %w", err))
	}
	if wallet == nil {
		return apperror.ErrNotFound("seller wallet")
	}

	now := time.Now().UTC()
	newBalance := wallet.Balance.Add(net)
	if err := s.walletRepo.UpdateBalance(ctx, dbTx, wallet.ID, newBalance); err != nil {
		return apperror.InternalError(fmt.Errorf("credit seller: %w", err))
	}
	if err := s.walletRepo.AppendEntry(ctx, dbTx, &domain.WalletEntry{
		ID:            uuid.New(),
		WalletID:      wallet.ID,
		Type:          domain.EntryTypeCredit,
		Amount:        net,
		Currency:      escrow.Currency,
		Description:   "Escrow release for order " + escrow.OrderID.String(),
		ReferenceType: domain.ReferenceEscrow,
		ReferenceID:   escrow.ID,
		BalanceAfter:  newBalance,
		CreatedAt:     now,
	}); err != nil {
		return apperror.InternalError(fmt.Errorf("append ledger entry: %w", err))
	}

	escrow.Status = domain.EscrowStatusReleased
	escrow.ReleasedAt = &now
	escrow.ReleasedBy = &releasedBy
	escrow.PlatformCommission = &commission
	escrow.UpdatedAt = now
	if err := s.escrowRepo.Update(ctx, dbTx, escrow); err != nil {
		return apperror.InternalError(fmt.Errorf("release escrow: %w", err))
	}

	details, _ := json.Marshal(map[string]string{
		"net_amount": net.String(),
		"commission": commission.String(),
	})
	if err := s.escrowRepo.AppendHistory(ctx, dbTx, &domain.EscrowHistoryEntry{
		ID:          uuid.New(),
		EscrowID:    escrow.ID,
		Action:      domain.EscrowActionReleased,
		PerformedBy: releasedBy,
		Details:     details,
		CreatedAt:   now,
	}); err != nil {
		return apperror.InternalError(fmt.Errorf("append escrow history: %w", err))
	}
	return nil
}

// CheckAutoRelease flips a funded escrow past its auto-release date to
// AUTO_RELEASE_ELIGIBLE. No funds move here.
func (s *EscrowServiceImpl) CheckAutoRelease(ctx context.Context, escrowID uuid.UUID) (*domain.Escrow, error) {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	escrow, err := s.escrowRepo.GetByIDForUpdate(ctx, dbTx, escrowID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock escrow: %w", err))
	}
	if escrow == nil {
		return nil, apperror.ErrNotFound("escrow")
	}

	now := time.Now().UTC()
	if !escrow.AutoReleaseDue(now) {
		return escrow, nil
	}

	escrow.Status = domain.EscrowStatusAutoReleaseEligible
	escrow.UpdatedAt = now
	if err := s.escrowRepo.Update(ctx, dbTx, escrow); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("mark auto-release eligible: %w", err))
	}
	if err := s.escrowRepo.AppendHistory(ctx, dbTx, &domain.EscrowHistoryEntry{
		ID:          uuid.New(),
		EscrowID:    escrow.ID,
		Action:      domain.EscrowActionAutoReleaseEligible,
		PerformedBy: uuid.Nil,
		CreatedAt:   now,
	}); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("append escrow history: %w", err))
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.log.Info().Str("escrow_id", escrow.ID.String()).Msg("escrow auto-release eligible")
	return escrow, nil
}

// RunAutoReleaseScan marks every funded escrow past its deadline as
// eligible. Returns the number of escrows flipped; per-escrow failures
// are logged and skipped.
func (s *EscrowServiceImpl) RunAutoReleaseScan(ctx context.Context) (int, error) {
	now := time.Now().UTC()
	due, err := s.escrowRepo.ListAutoReleaseDue(ctx, now, autoReleaseScanBatch)
	if err != nil {
		return 0, apperror.InternalError(fmt.Errorf("list auto-release due: %w", err))
	}

	flipped := 0
	for i := range due {
		if _, err := s.CheckAutoRelease(ctx, due[i].ID); err != nil {
			s.log.Error().Err(err).Str("escrow_id", due[i].ID.String()).Msg("auto-release check failed")
			continue
		}
		flipped++
	}

	s.log.Info().Int("due", len(due)).Int("flipped", flipped).Msg("auto-release scan finished")
	return flipped, nil
}

// OpenDispute freezes a releasable escrow. Either party may open one; a
// second open dispute is rejected.
func (s *EscrowServiceImpl) OpenDispute(ctx context.Context, req ports.OpenDisputeRequest) (*domain.Escrow, error) {
	if req.Reason == "" {
		return nil, apperror.Validation("dispute reason is required")
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	escrow, err := s.escrowRepo.GetByIDForUpdate(ctx, dbTx, req.EscrowID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock escrow: %w", err))
	}
	if escrow == nil {
		return nil, apperror.ErrNotFound("escrow")
	}
	if !escrow.IsParty(req.RequesterID) {
		return nil, apperror.ErrNotAuthorized()
	}
	if escrow.HasOpenDispute() {
		return nil, apperror.ErrDisputeAlreadyOpen()
	}
	if !escrow.IsReleasable() {
		return nil, apperror.ErrInvalidEscrowState(string(escrow.Status))
	}

	now := time.Now().UTC()
	escrow.Dispute = &domain.Dispute{
		Status:      domain.DisputeStatusOpen,
		CreatedBy:   req.RequesterID,
		Reason:      req.Reason,
		Description: req.Description,
		Evidence:    req.Evidence,
		CreatedAt:   now,
	}
	escrow.Status = domain.EscrowStatusDisputed
	escrow.UpdatedAt = now
	if err := s.escrowRepo.Update(ctx, dbTx, escrow); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("open dispute: %w", err))
	}
	if err := s.escrowRepo.AppendHistory(ctx, dbTx, &domain.EscrowHistoryEntry{
		ID:          uuid.New(),
		EscrowID:    escrow.ID,
		Action:      domain.EscrowActionDisputeOpened,
		PerformedBy: req.RequesterID,
		CreatedAt:   now,
	}); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("append escrow history: %w", err))
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.notify(ctx, domain.EventDisputeOpened, escrow.BuyerID, map[string]any{"escrow_id": escrow.ID.String()})
	s.notify(ctx, domain.EventDisputeOpened, escrow.SellerID, map[string]any{"escrow_id": escrow.ID.String()})

	s.log.Info().
		Str("escrow_id", escrow.ID.String()).
		Str("opened_by", req.RequesterID.String()).
		Msg("dispute opened")

	return escrow, nil
}

// ResolveDispute closes an open dispute. Outcome RELEASE pays the seller
// through the regular payout path; outcome REFUND returns the full amount
// to the buyer, marks the payment refunded and cancels the order. Admin
// authorization is enforced at the transport layer.
func (s *EscrowServiceImpl) ResolveDispute(ctx context.Context, escrowID, resolverID uuid.UUID, resolution string, outcome ports.DisputeOutcome) (*domain.Escrow, error) {
	if outcome != ports.DisputeOutcomeRelease && outcome != ports.DisputeOutcomeRefund {
		return nil, apperror.Validation("unknown dispute outcome")
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	escrow, err := s.escrowRepo.GetByIDForUpdate(ctx, dbTx, escrowID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock escrow: %w", err))
	}
	if escrow == nil {
		return nil, apperror.ErrNotFound("escrow")
	}
	if escrow.Status != domain.EscrowStatusDisputed || !escrow.HasOpenDispute() {
		return nil, apperror.ErrInvalidEscrowState(string(escrow.Status))
	}

	now := time.Now().UTC()
	escrow.Dispute.Status = domain.DisputeStatusResolved
	escrow.Dispute.Resolution = &resolution
	escrow.Dispute.ResolvedBy = &resolverID
	escrow.Dispute.ResolvedAt = &now

	switch outcome {
	case ports.DisputeOutcomeRelease:
		if err := s.payoutSeller(ctx, dbTx, escrow, resolverID); err != nil {
			return nil, err
		}
		if err := s.orderRepo.UpdateStatus(ctx, dbTx, escrow.OrderID, domain.OrderStatusCompleted); err != nil {
			return nil, apperror.InternalError(fmt.Errorf("update order status: %w", err))
		}
	case ports.DisputeOutcomeRefund:
		if err := s.refundBuyer(ctx, dbTx, escrow, resolverID, now); err != nil {
			return nil, err
		}
	}

	if err := s.escrowRepo.AppendHistory(ctx, dbTx, &domain.EscrowHistoryEntry{
		ID:          uuid.New(),
		EscrowID:    escrow.ID,
		Action:      domain.EscrowActionDisputeResolved,
		PerformedBy: resolverID,
		CreatedAt:   now,
	}); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("append escrow history: %w", err))
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.notify(ctx, domain.EventDisputeResolved, escrow.BuyerID, map[string]any{
		"escrow_id": escrow.ID.String(),
		"outcome":   string(outcome),
	})
	s.notify(ctx, domain.EventDisputeResolved, escrow.SellerID, map[string]any{
		"escrow_id": escrow.ID.String(),
		"outcome":   string(outcome),
	})

	s.log.Info().
		Str("escrow_id", escrow.ID.String()).
		Str("outcome", string(outcome)).
		Str("resolved_by", resolverID.String()).
		Msg("dispute resolved")

	return escrow, nil
}

// refundBuyer returns the full escrow amount to the buyer wallet, marks
// the payment refunded and cancels the order.
func (s *EscrowServiceImpl) refundBuyer(ctx context.Context, dbTx pgx.Tx, escrow *domain.Escrow, resolverID uuid.UUID, now time.Time) error {
	wallet, err := s.walletRepo.GetByUserIDForUpdate(ctx, dbTx, escrow.BuyerID)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("lock buyer wallet: %w", err))
	}
	if wallet == nil {
		return apperror.ErrNotFound("buyer wallet")
	}

	newBalance := wallet.Balance.Add(escrow.Amount)
	if err := s.walletRepo.UpdateBalance(ctx, dbTx, wallet.ID, newBalance); err != nil {
		return apperror.InternalError(fmt.Errorf("credit buyer: %w", err))
	}
	if err := s.walletRepo.AppendEntry(ctx, dbTx, &domain.WalletEntry{
		ID:            uuid.New(),
		WalletID:      wallet.ID,
		Type:          domain.EntryTypeCredit,
		Amount:        escrow.Amount,
		Currency:      escrow.Currency,
		Description:   "Escrow refund for order " + escrow.OrderID.String(),
		ReferenceType: domain.ReferenceEscrow,
		ReferenceID:   escrow.ID,
		BalanceAfter:  newBalance,
		CreatedAt:     now,
	}); err != nil {
		return apperror.InternalError(fmt.Errorf("append ledger entry: %w", err))
	}

	escrow.Status = domain.EscrowStatusRefunded
	escrow.UpdatedAt = now
	if err := s.escrowRepo.Update(ctx, dbTx, escrow); err != nil {
		return apperror.InternalError(fmt.Errorf("refund escrow: %w", err))
	}
	if err := s.escrowRepo.AppendHistory(ctx, dbTx, &domain.EscrowHistoryEntry{
		ID:          uuid.New(),
		EscrowID:    escrow.ID,
		Action:      domain.EscrowActionRefunded,
		PerformedBy: resolverID,
		CreatedAt:   now,
	}); err != nil {
		return apperror.InternalError(fmt.Errorf("append escrow history: %w", err))
	}

	payment, err := s.paymentRepo.GetByIDForUpdate(ctx, dbTx, escrow.PaymentID)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("lock payment: %w", err))
	}
	if payment == nil {
		return apperror.ErrNotFound("payment")
	}
	payment.Status = domain.PaymentStatusRefunded
	payment.RefundedAt = &now
	payment.UpdatedAt = now
	if err := s.paymentRepo.Update(ctx, dbTx, payment); err != nil {
		return apperror.InternalError(fmt.Errorf("mark payment refunded: %w", err))
	}

	if err := s.orderRepo.UpdateStatus(ctx, dbTx, escrow.OrderID, domain.OrderStatusCancelled); err != nil {
		return apperror.InternalError(fmt.Errorf("update order status: %w", err))
	}
	return nil
}

// GetEscrow fetches an escrow by id.
func (s *EscrowServiceImpl) GetEscrow(ctx context.Context, id uuid.UUID) (*domain.Escrow, error) {
	escrow, err := s.escrowRepo.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get escrow: %w", err))
	}
	if escrow == nil {
		return nil, apperror.ErrNotFound("escrow")
	}
	return escrow, nil
}

// ListHistory returns the append-only action log for an escrow.
func (s *EscrowServiceImpl) ListHistory(ctx context.Context, escrowID uuid.UUID) ([]domain.EscrowHistoryEntry, error) {
	escrow, err := s.escrowRepo.GetByID(ctx, escrowID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get escrow: %w", err))
	}
	if escrow == nil {
		return nil, apperror.ErrNotFound("escrow")
	}
	entries, err := s.escrowRepo.ListHistory(ctx, escrowID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list escrow history: %w", err))
	}
	return entries, nil
}

func (s *EscrowServiceImpl) notify(ctx context.Context, eventType domain.EventType, userID uuid.UUID, payload map[string]any) {
	if s.publisher == nil {
		return
	}
	evt := domain.Event{
		Type:      eventType,
		UserID:    userID,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
	if err := s.publisher.Publish(ctx, evt); err != nil {
		s.log.Warn().Err(err).Str("event", string(eventType)).Msg("notification publish failed")
	}
}
