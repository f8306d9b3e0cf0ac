package service

import (
	"context"
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

const confirmationDedupTTL = 24 * time.Hour

// Fee schedule. Platform fee applies to every method; processing fees
// mirror what each provider charges.
var (
	platformFeeRate     = decimal.NewFromFloat(0.05)
	stripeFeeRate       = decimal.NewFromFloat(0.029)
	stripeFeeFixed      = decimal.NewFromFloat(0.30)
	paypalFeeRate       = decimal.NewFromFloat(0.01)
	feeRoundingDecimals = int32(2)
)

// PaymentServiceImpl implements ports.PaymentService. It owns the
// Payment+Escrow pair and drives them through provider confirmation.
type PaymentServiceImpl struct {
	paymentRepo ports.PaymentRepository
	escrowRepo  ports.EscrowRepository
	orderRepo   ports.OrderRepository
	walletRepo  ports.WalletRepository
	currencySvc ports.CurrencyService
	providers   map[domain.PaymentMethod]ports.ProviderAdapter
	dedup       ports.ConfirmationDedup
	publisher   ports.NotificationPublisher
	transactor  ports.DBTransactor
	log         zerolog.Logger
}

// NewPaymentService creates a new PaymentServiceImpl.
func NewPaymentService(
	paymentRepo ports.PaymentRepository,
	escrowRepo ports.EscrowRepository,
	orderRepo ports.OrderRepository,
	walletRepo ports.WalletRepository,
	currencySvc ports.CurrencyService,
	providers map[domain.PaymentMethod]ports.ProviderAdapter,
	dedup ports.ConfirmationDedup,
	publisher ports.NotificationPublisher,
	transactor ports.DBTransactor,
	log zerolog.Logger,
) *PaymentServiceImpl {
	return &PaymentServiceImpl{
		paymentRepo: paymentRepo,
		escrowRepo:  escrowRepo,
		orderRepo:   orderRepo,
		walletRepo:  walletRepo,
		currencySvc: currencySvc,
		providers:   providers,
		dedup:       dedup,
		publisher:   publisher,
		transactor:  transactor,
		log:         log,
	}
}

// InitiatePayment creates the Payment+Escrow pair for an approved order
// and dispatches to the selected provider. The wallet method settles
// synchronously; external methods stay pending until the provider
// confirmation arrives.
func (s *PaymentServiceImpl) InitiatePayment(ctx context.Context, req ports.InitiatePaymentRequest) (*domain.Payment, error) {
	order, err := s.orderRepo.GetByID(ctx, req.OrderID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get order: %w", err))
	}
	if order == nil {
		return nil, apperror.ErrNotFound("order")
	}
	if order.BuyerID != req.PayerID {
		return nil, apperror.ErrNotAuthorized()
	}
	if !order.IsPayable() {
		return nil, apperror.ErrInvalidPaymentState(string(order.Status))
	}

	if _, ok := s.providers[req.Method]; !ok && req.Method != domain.PaymentMethodWallet {
		return nil, apperror.ErrUnsupportedPaymentMethod(string(req.Method))
	}

	amount, err := s.currencySvc.Convert(ctx, order.TotalAmount, order.Currency, req.Currency)
	if err != nil {
		return nil, err
	}

	exchangeRate := decimal.NewFromInt(1)
	if !order.TotalAmount.IsZero() {
		exchangeRate = amount.Div(order.TotalAmount)
	}

	now := time.Now().UTC()
	payment := &domain.Payment{
		ID:               uuid.New(),
		OrderID:          order.ID,
		PayerID:          order.BuyerID,
		PayeeID:          order.SellerID,
		Amount:           amount,
		Currency:         req.Currency,
		OriginalAmount:   order.TotalAmount,
		OriginalCurrency: order.Currency,
		ExchangeRate:     exchangeRate,
		Method:           req.Method,
		Status:           domain.PaymentStatusPending,
		PlatformFee:      platformFeeRate.Mul(amount).Round(feeRoundingDecimals),
		ProcessingFee:    processingFee(req.Method, amount),
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	escrow := &domain.Escrow{
		ID:        uuid.New(),
		PaymentID: payment.ID,
		OrderID:   order.ID,
		BuyerID:   order.BuyerID,
		SellerID:  order.SellerID,
		Amount:    amount,
		Currency:  req.Currency,
		Status:    domain.EscrowStatusPending,
		Terms: domain.EscrowTerms{
			DeliveryDeadline: order.Deadline,
			RevisionRounds:   order.RevisionRounds,
			AutoReleaseHours: domain.DefaultAutoReleaseHours,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if req.Method == domain.PaymentMethodWallet {
		if err := s.settleFromWallet(ctx, payment, escrow); err != nil {
			return nil, err
		}
	} else {
		if err := s.dispatchToProvider(ctx, payment, escrow, req.ReturnURL); err != nil {
			return nil, err
		}
	}

	s.notify(ctx, domain.EventPaymentInitiated, payment.PayerID, map[string]any{
		"payment_id": payment.ID.String(),
		"order_id":   order.ID.String(),
		"amount":     payment.Amount.String(),
		"currency":   payment.Currency,
		"method":     string(payment.Method),
	})
	s.notify(ctx, domain.EventPaymentInitiated, payment.PayeeID, map[string]any{
		"payment_id": payment.ID.String(),
		"order_id":   order.ID.String(),
	})

	s.log.Info().
		Str("payment_id", payment.ID.String()).
		Str("order_id", order.ID.String()).
		Str("method", string(payment.Method)).
		Str("status", string(payment.Status)).
		Msg("payment initiated")

	return payment, nil
}

// settleFromWallet debits the payer's wallet and completes the payment in
// one database transaction. The escrow stays PENDING; funding goes through
// ConfirmPayment like every other method.
func (s *PaymentServiceImpl) settleFromWallet(ctx context.Context, payment *domain.Payment, escrow *domain.Escrow) error {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	wallet, err := s.walletRepo.GetByUserIDForUpdate(ctx, dbTx, payment.PayerID)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("lock wallet: %w", err))
	}
	if wallet == nil {
		return apperror.ErrNotFound("wallet")
	}
	if !wallet.CanDebit(payment.Amount) {
		return apperror.ErrInsufficientBalance()
	}

	now := time.Now().UTC()
	txID := "wallet_" + payment.ID.String()
	payment.Status = domain.PaymentStatusCompleted
	payment.ProviderTransactionID = &txID
	payment.PaidAt = &now
	payment.UpdatedAt = now

	if err := s.paymentRepo.Create(ctx, dbTx, payment); err != nil {
		return apperror.InternalError(fmt.Errorf("create payment: %w", err))
	}
	if err := s.escrowRepo.Create(ctx, dbTx, escrow); err != nil {
		return apperror.InternalError(fmt.Errorf("create escrow: %w", err))
	}

	newBalance := wallet.Balance.Sub(payment.Amount)
	if err := s.walletRepo.UpdateBalance(ctx, dbTx, wallet.ID, newBalance); err != nil {
		return apperror.InternalError(fmt.Errorf("update balance: %w", err))
	}

	entry := &domain.WalletEntry{
		ID:            uuid.New(),
		WalletID:      wallet.ID,
		Type:          domain.EntryTypeDebit,
		Amount:        payment.Amount,
		Currency:      payment.Currency,
		Description:   "Payment for order " + payment.OrderID.String(),
		ReferenceType: domain.ReferencePayment,
		ReferenceID:   payment.ID,
		BalanceAfter:  newBalance,
		CreatedAt:     now,
	}
	if err := s.walletRepo.AppendEntry(ctx, dbTx, entry); err != nil {
		return apperror.InternalError(fmt.Errorf("append ledger entry: %w", err))
	}

	if err := s.orderRepo.UpdateStatus(ctx, dbTx, payment.OrderID, domain.OrderStatusPaid); err != nil {
		return apperror.InternalError(fmt.Errorf("update order status: %w", err))
	}

	if err := dbTx.Commit(ctx); err != nil {
		return apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}
	return nil
}

// dispatchToProvider persists the pending pair, then asks the provider for
// an external reference. A provider failure marks the payment FAILED but
// keeps the record for retry.
func (s *PaymentServiceImpl) dispatchToProvider(ctx context.Context, payment *domain.Payment, escrow *domain.Escrow, returnURL string) error {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	if err := s.paymentRepo.Create(ctx, dbTx, payment); err != nil {
		return apperror.InternalError(fmt.Errorf("create payment: %w", err))
	}
	if err := s.escrowRepo.Create(ctx, dbTx, escrow); err != nil {
		return apperror.InternalError(fmt.Errorf("create escrow: %w", err))
	}
	if err := dbTx.Commit(ctx); err != nil {
		return apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	adapter := s.providers[payment.Method]
	result, err := adapter.CreateCharge(ctx, ports.ChargeRequest{
		PaymentID:   payment.ID,
		Amount:      payment.Amount,
		Currency:    payment.Currency,
		ReturnURL:   returnURL,
		Description: "Order " + payment.OrderID.String(),
	})
	if err != nil {
		s.markDispatchFailed(ctx, payment, err)
		return apperror.ErrProvider(err)
	}

	payment.ProviderTransactionID = &result.TransactionID
	if result.PaymentURL != "" {
		payment.PaymentURL = &result.PaymentURL
	}
	if err := payment.MergeProviderData(result.Metadata); err != nil {
		return apperror.InternalError(fmt.Errorf("merge provider data: %w", err))
	}
	payment.UpdatedAt = time.Now().UTC()

	updTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer updTx.Rollback(ctx) //nolint:errcheck

	if err := s.paymentRepo.Update(ctx, updTx, payment); err != nil {
		return apperror.InternalError(fmt.Errorf("save provider reference: %w", err))
	}
	if err := updTx.Commit(ctx); err != nil {
		return apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}
	return nil
}

// markDispatchFailed records a provider failure. Errors here are logged
// only; the caller already returns the provider error.
func (s *PaymentServiceImpl) markDispatchFailed(ctx context.Context, payment *domain.Payment, cause error) {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		s.log.Error().Err(err).Str("payment_id", payment.ID.String()).Msg("begin tx for dispatch failure")
		return
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	reason := cause.Error()
	payment.Status = domain.PaymentStatusFailed
	payment.FailureReason = &reason
	payment.UpdatedAt = time.Now().UTC()

	if err := s.paymentRepo.Update(ctx, dbTx, payment); err != nil {
		s.log.Error().Err(err).Str("payment_id", payment.ID.String()).Msg("mark payment failed")
		return
	}
	if err := dbTx.Commit(ctx); err != nil {
		s.log.Error().Err(err).Str("payment_id", payment.ID.String()).Msg("commit dispatch failure")
	}
}

// ConfirmPayment is the provider-webhook entry point. Replays are deduped
// by (payment, provider transaction, status); a payment in a terminal
// state is never re-transitioned, though a completed payment whose escrow
// is still pending will still fund it. A delivery that fails to apply
// releases its dedup key so the provider's retry is not swallowed.
func (s *PaymentServiceImpl) ConfirmPayment(ctx context.Context, req ports.ConfirmPaymentRequest) (*domain.Payment, error) {
	dedupKey := domain.BuildConfirmationKey(req.PaymentID, req.ProviderTransactionID, req.Status)
	fresh, err := s.dedup.CheckAndSet(ctx, dedupKey, confirmationDedupTTL)
	if err != nil {
		s.log.Warn().Err(err).Str("key", dedupKey).Msg("confirmation dedup check failed, falling through to status guard")
	} else if !fresh {
		s.log.Info().Str("key", dedupKey).Msg("duplicate confirmation ignored")
		payment, err := s.paymentRepo.GetByID(ctx, req.PaymentID)
		if err != nil {
			return nil, apperror.InternalError(fmt.Errorf("get payment: %w", err))
		}
		if payment == nil {
			return nil, apperror.ErrNotFound("payment")
		}
		return payment, nil
	}

	payment, err := s.applyConfirmation(ctx, req)
	if err != nil {
		// Release the key so the provider's retry is processed instead of
		// dropped; the terminal-state guard keeps genuine replays safe.
		if delErr := s.dedup.Delete(ctx, dedupKey); delErr != nil {
			s.log.Warn().Err(delErr).Str("key", dedupKey).Msg("release confirmation dedup key failed")
		}
		return nil, err
	}

	switch req.Status {
	case domain.PaymentStatusCompleted:
		s.notify(ctx, domain.EventPaymentCompleted, payment.PayerID, map[string]any{"payment_id": payment.ID.String()})
		s.notify(ctx, domain.EventEscrowFunded, payment.PayeeID, map[string]any{"payment_id": payment.ID.String()})
	case domain.PaymentStatusFailed:
		s.notify(ctx, domain.EventPaymentFailed, payment.PayerID, map[string]any{"payment_id": payment.ID.String()})
	}

	s.log.Info().
		Str("payment_id", payment.ID.String()).
		Str("status", string(req.Status)).
		Str("provider_tx", req.ProviderTransactionID).
		Msg("payment confirmation processed")

	return payment, nil
}

// applyConfirmation runs the status transition and its side effects inside
// one transaction.
func (s *PaymentServiceImpl) applyConfirmation(ctx context.Context, req ports.ConfirmPaymentRequest) (*domain.Payment, error) {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	payment, err := s.paymentRepo.GetByIDForUpdate(ctx, dbTx, req.PaymentID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock payment: %w", err))
	}
	if payment == nil {
		return nil, apperror.ErrNotFound("payment")
	}

	if payment.Status == domain.PaymentStatusRefunded || payment.Status == domain.PaymentStatusCancelled {
		return nil, apperror.ErrInvalidPaymentState(string(payment.Status))
	}

	now := time.Now().UTC()
	alreadyCompleted := payment.Status == domain.PaymentStatusCompleted

	if !alreadyCompleted {
		payment.Status = req.Status
		payment.ProviderTransactionID = &req.ProviderTransactionID
		if err := payment.MergeProviderData(req.Metadata); err != nil {
			return nil, apperror.InternalError(fmt.Errorf("merge provider data: %w", err))
		}
		if req.Status == domain.PaymentStatusCompleted {
			payment.PaidAt = &now
		}
		payment.UpdatedAt = now
		if err := s.paymentRepo.Update(ctx, dbTx, payment); err != nil {
			return nil, apperror.InternalError(fmt.Errorf("update payment: %w", err))
		}
	} else if req.Status != domain.PaymentStatusCompleted {
		// A completed payment only accepts repeated completed callbacks.
		return nil, apperror.ErrInvalidPaymentState(string(payment.Status))
	}

	switch req.Status {
	case domain.PaymentStatusCompleted:
		if err := s.fundEscrow(ctx, dbTx, payment, now); err != nil {
			return nil, err
		}
	case domain.PaymentStatusFailed:
		if err := s.handleFailedPayment(ctx, dbTx, payment); err != nil {
			return nil, err
		}
	default:
		// Unrecognized provider statuses are stored verbatim with no
		// side effects.
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}
	return payment, nil
}

// fundEscrow moves the paired escrow to FUNDED and the order to PAID.
// MarkFunded sets fundedAt and autoReleaseDate exactly once.
func (s *PaymentServiceImpl) fundEscrow(ctx context.Context, dbTx pgx.Tx, payment *domain.Payment, now time.Time) error {
	escrow, err := s.escrowRepo.GetByPaymentID(ctx, payment.ID)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("get escrow: %w", err))
	}
	if escrow == nil {
		return apperror.ErrNotFound("escrow")
	}
	if escrow.Status != domain.EscrowStatusPending && escrow.Status != domain.EscrowStatusFailed {
		// Already funded or beyond; nothing to do.
		return nil
	}

	escrow.MarkFunded(now)
	escrow.UpdatedAt = now
	if err := s.escrowRepo.Update(ctx, dbTx, escrow); err != nil {
		return apperror.InternalError(fmt.Errorf("fund escrow: %w", err))
	}
	if err := s.escrowRepo.AppendHistory(ctx, dbTx, &domain.EscrowHistoryEntry{
		ID:          uuid.New(),
		EscrowID:    escrow.ID,
		Action:      domain.EscrowActionFunded,
		PerformedBy: payment.PayerID,
		CreatedAt:   now,
	}); err != nil {
		return apperror.InternalError(fmt.Errorf("append escrow history: %w", err))
	}
	if err := s.orderRepo.UpdateStatus(ctx, dbTx, payment.OrderID, domain.OrderStatusPaid); err != nil {
		return apperror.InternalError(fmt.Errorf("update order status: %w", err))
	}
	return nil
}

// handleFailedPayment marks the order and escrow failed.
func (s *PaymentServiceImpl) handleFailedPayment(ctx context.Context, dbTx pgx.Tx, payment *domain.Payment) error {
	if err := s.orderRepo.UpdateStatus(ctx, dbTx, payment.OrderID, domain.OrderStatusPaymentFailed); err != nil {
		return apperror.InternalError(fmt.Errorf("update order status: %w", err))
	}

	escrow, err := s.escrowRepo.GetByPaymentID(ctx, payment.ID)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("get escrow: %w", err))
	}
	if escrow == nil {
		return apperror.ErrNotFound("escrow")
	}
	if escrow.Status != domain.EscrowStatusPending {
		return nil
	}

	now := time.Now().UTC()
	escrow.Status = domain.EscrowStatusFailed
	escrow.UpdatedAt = now
	if err := s.escrowRepo.Update(ctx, dbTx, escrow); err != nil {
		return apperror.InternalError(fmt.Errorf("mark escrow failed: %w", err))
	}
	if err := s.escrowRepo.AppendHistory(ctx, dbTx, &domain.EscrowHistoryEntry{
		ID:          uuid.New(),
		EscrowID:    escrow.ID,
		Action:      domain.EscrowActionFailed,
		PerformedBy: payment.PayerID,
		CreatedAt:   now,
	}); err != nil {
		return apperror.InternalError(fmt.Errorf("append escrow history: %w", err))
	}
	return nil
}

// RetryPayment re-dispatches a failed external payment through its
// provider adapter while the retry budget lasts.
func (s *PaymentServiceImpl) RetryPayment(ctx context.Context, paymentID, requesterID uuid.UUID) (*domain.Payment, error) {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	payment, err := s.paymentRepo.GetByIDForUpdate(ctx, dbTx, paymentID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock payment: %w", err))
	}
	if payment == nil {
		return nil, apperror.ErrNotFound("payment")
	}
	if payment.PayerID != requesterID {
		return nil, apperror.ErrNotAuthorized()
	}
	if payment.Method == domain.PaymentMethodWallet {
		return nil, apperror.ErrUnsupportedPaymentMethod(string(payment.Method))
	}
	if payment.Status != domain.PaymentStatusFailed {
		return nil, apperror.ErrInvalidPaymentState(string(payment.Status))
	}
	if !payment.CanRetry() {
		return nil, apperror.ErrRetryLimitExceeded()
	}

	adapter, ok := s.providers[payment.Method]
	if !ok {
		return nil, apperror.ErrUnsupportedPaymentMethod(string(payment.Method))
	}

	result, err := adapter.CreateCharge(ctx, ports.ChargeRequest{
		PaymentID:   payment.ID,
		Amount:      payment.Amount,
		Currency:    payment.Currency,
		Description: "Order " + payment.OrderID.String(),
	})
	if err != nil {
		return nil, apperror.ErrProvider(err)
	}

	now := time.Now().UTC()
	payment.Status = domain.PaymentStatusPending
	payment.RetryCount++
	payment.FailureReason = nil
	payment.ProviderTransactionID = &result.TransactionID
	if result.PaymentURL != "" {
		payment.PaymentURL = &result.PaymentURL
	}
	if err := payment.MergeProviderData(result.Metadata); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("merge provider data: %w", err))
	}
	payment.UpdatedAt = now

	if err := s.paymentRepo.Update(ctx, dbTx, payment); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("update payment: %w", err))
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.log.Info().
		Str("payment_id", payment.ID.String()).
		Int("retry_count", payment.RetryCount).
		Msg("payment re-dispatched")

	return payment, nil
}

// GetPayment fetches a payment by id.
func (s *PaymentServiceImpl) GetPayment(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	payment, err := s.paymentRepo.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get payment: %w", err))
	}
	if payment == nil {
		return nil, apperror.ErrNotFound("payment")
	}
	return payment, nil
}

// notify publishes a best-effort event; failures are logged, never
// propagated.
func (s *PaymentServiceImpl) notify(ctx context.Context, eventType domain.EventType, userID uuid.UUID, payload map[string]any) {
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

// processingFee mirrors each provider's charge structure.
func processingFee(method domain.PaymentMethod, amount decimal.Decimal) decimal.Decimal {
	switch method {
	case domain.PaymentMethodStripe:
		return stripeFeeRate.Mul(amount).Add(stripeFeeFixed).Round(feeRoundingDecimals)
	case domain.PaymentMethodPayPal:
		return paypalFeeRate.Mul(amount).Round(feeRoundingDecimals)
	default:
		return decimal.Zero
	}
}
