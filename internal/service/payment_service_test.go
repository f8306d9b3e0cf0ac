package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"marketplace-escrow/internal/core/domain"
	"marketplace-escrow/internal/core/ports"
	"marketplace-escrow/internal/core/ports/mocks"
	"marketplace-escrow/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type paymentTestDeps struct {
	svc         *PaymentServiceImpl
	paymentRepo *mocks.MockPaymentRepository
	escrowRepo  *mocks.MockEscrowRepository
	orderRepo   *mocks.MockOrderRepository
	walletRepo  *mocks.MockWalletRepository
	currencySvc *mocks.MockCurrencyService
	provider    *mocks.MockProviderAdapter
	dedup       *mocks.MockConfirmationDedup
	publisher   *mocks.MockNotificationPublisher
	transactor  *mocks.MockDBTransactor
	ctrl        *gomock.Controller
}

func setupPaymentService(t *testing.T) *paymentTestDeps {
	ctrl := gomock.NewController(t)
	d := &paymentTestDeps{
		paymentRepo: mocks.NewMockPaymentRepository(ctrl),
		escrowRepo:  mocks.NewMockEscrowRepository(ctrl),
		orderRepo:   mocks.NewMockOrderRepository(ctrl),
		walletRepo:  mocks.NewMockWalletRepository(ctrl),
		currencySvc: mocks.NewMockCurrencyService(ctrl),
		provider:    mocks.NewMockProviderAdapter(ctrl),
		dedup:       mocks.NewMockConfirmationDedup(ctrl),
		publisher:   mocks.NewMockNotificationPublisher(ctrl),
		transactor:  mocks.NewMockDBTransactor(ctrl),
		ctrl:        ctrl,
	}
	providers := map[domain.PaymentMethod]ports.ProviderAdapter{
		domain.PaymentMethodStripe: d.provider,
	}
	d.svc = NewPaymentService(
		d.paymentRepo, d.escrowRepo, d.orderRepo, d.walletRepo,
		d.currencySvc, providers, d.dedup, d.publisher,
		d.transactor, zerolog.Nop(),
	)
	return d
}

// mockTx implements pgx.Tx for testing
type mockTx struct{ pgx.Tx }

func (m *mockTx) Rollback(_ context.Context) error { return nil }
func (m *mockTx) Commit(_ context.Context) error   { return nil }

func approvedOrder(buyerID uuid.UUID) *domain.Order {
	return &domain.Order{
		ID:          uuid.New(),
		BuyerID:     buyerID,
		SellerID:    uuid.New(),
		Title:       "Sponsored post",
		TotalAmount: decimal.NewFromInt(100),
		Currency:    "USD",
		Status:      domain.OrderStatusApproved,
	}
}

// ==================== InitiatePayment Tests ====================

func TestPaymentService_InitiatePayment_WalletSuccess(t *testing.T) {
	d := setupPaymentService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	buyerID := uuid.New()
	order := approvedOrder(buyerID)
	tx := &mockTx{}

	d.orderRepo.EXPECT().GetByID(ctx, order.ID).Return(order, nil)
	d.currencySvc.EXPECT().Convert(ctx, order.TotalAmount, "USD", "USD").
		Return(order.TotalAmount, nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.walletRepo.EXPECT().GetByUserIDForUpdate(ctx, tx, buyerID).Return(&domain.Wallet{
		ID:       uuid.New(),
		UserID:   buyerID,
		Currency: "USD",
		Balance:  decimal.NewFromInt(250),
	}, nil)
	d.paymentRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(nil)
	d.escrowRepo.EXPECT().Create(ctx, tx, gomock.Any()).DoAndReturn(
		func(_ context.Context, _ pgx.Tx, e *domain.Escrow) error {
			assert.Equal(t, domain.EscrowStatusPending, e.Status)
			return nil
		})
	d.walletRepo.EXPECT().UpdateBalance(ctx, tx, gomock.Any(), decimal.NewFromInt(150)).Return(nil)
	d.walletRepo.EXPECT().AppendEntry(ctx, tx, gomock.Any()).DoAndReturn(
		func(_ context.Context, _ pgx.Tx, e *domain.WalletEntry) error {
			assert.Equal(t, domain.EntryTypeDebit, e.Type)
			assert.True(t, e.BalanceAfter.Equal(decimal.NewFromInt(150)))
			return nil
		})
	d.orderRepo.EXPECT().UpdateStatus(ctx, tx, order.ID, domain.OrderStatusPaid).Return(nil)
	d.publisher.EXPECT().Publish(ctx, gomock.Any()).Return(nil).Times(2)

	payment, err := d.svc.InitiatePayment(ctx, ports.InitiatePaymentRequest{
		OrderID:  order.ID,
		PayerID:  buyerID,
		Method:   domain.PaymentMethodWallet,
		Currency: "USD",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusCompleted, payment.Status)
	require.NotNil(t, payment.ProviderTransactionID)
	assert.Contains(t, *payment.ProviderTransactionID, "wallet_")
	require.NotNil(t, payment.PaidAt)
}

func TestPaymentService_InitiatePayment_WalletInsufficientBalance(t *testing.T) {
	d := setupPaymentService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	buyerID := uuid.New()
	order := approvedOrder(buyerID)
	tx := &mockTx{}

	d.orderRepo.EXPECT().GetByID(ctx, order.ID).Return(order, nil)
	d.currencySvc.EXPECT().Convert(ctx, order.TotalAmount, "USD", "USD").
		Return(order.TotalAmount, nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.walletRepo.EXPECT().GetByUserIDForUpdate(ctx, tx, buyerID).Return(&domain.Wallet{
		ID:      uuid.New(),
		UserID:  buyerID,
		Balance: decimal.NewFromInt(5),
	}, nil)

	_, err := d.svc.InitiatePayment(ctx, ports.InitiatePaymentRequest{
		OrderID:  order.ID,
		PayerID:  buyerID,
		Method:   domain.PaymentMethodWallet,
		Currency: "USD",
	})
	require.Error(t, err)
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "PAY_001", appErr.Code)
}

func TestPaymentService_InitiatePayment_OrderNotPayable(t *testing.T) {
	d := setupPaymentService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	buyerID := uuid.New()
	order := approvedOrder(buyerID)
	order.Status = domain.OrderStatusPaid

	d.orderRepo.EXPECT().GetByID(ctx, order.ID).Return(order, nil)

	_, err := d.svc.InitiatePayment(ctx, ports.InitiatePaymentRequest{
		OrderID:  order.ID,
		PayerID:  buyerID,
		Method:   domain.PaymentMethodStripe,
		Currency: "USD",
	})
	require.Error(t, err)
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "PAY_005", appErr.Code)
}

func TestPaymentService_InitiatePayment_NotBuyer(t *testing.T) {
	d := setupPaymentService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	order := approvedOrder(uuid.New())

	d.orderRepo.EXPECT().GetByID(ctx, order.ID).Return(order, nil)

	_, err := d.svc.InitiatePayment(ctx, ports.InitiatePaymentRequest{
		OrderID:  order.ID,
		PayerID:  uuid.New(),
		Method:   domain.PaymentMethodStripe,
		Currency: "USD",
	})
	require.Error(t, err)
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "AUTH_004", appErr.Code)
}

func TestPaymentService_InitiatePayment_UnsupportedMethod(t *testing.T) {
	d := setupPaymentService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	buyerID := uuid.New()
	order := approvedOrder(buyerID)

	d.orderRepo.EXPECT().GetByID(ctx, order.ID).Return(order, nil)

	_, err := d.svc.InitiatePayment(ctx, ports.InitiatePaymentRequest{
		OrderID:  order.ID,
		PayerID:  buyerID,
		Method:   domain.PaymentMethodPayPal, // not in the providers map
		Currency: "USD",
	})
	require.Error(t, err)
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "PAY_003", appErr.Code)
}

func TestPaymentService_InitiatePayment_StripeSuccess(t *testing.T) {
	d := setupPaymentService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	buyerID := uuid.New()
	order := approvedOrder(buyerID)
	tx := &mockTx{}

	converted := decimal.NewFromInt(92)
	d.orderRepo.EXPECT().GetByID(ctx, order.ID).Return(order, nil)
	d.currencySvc.EXPECT().Convert(ctx, order.TotalAmount, "USD", "EUR").
		Return(converted, nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil).Times(2)
	d.paymentRepo.EXPECT().Create(ctx, tx, gomock.Any()).DoAndReturn(
		func(_ context.Context, _ pgx.Tx, p *domain.Payment) error {
			assert.Equal(t, domain.PaymentStatusPending, p.Status)
			assert.True(t, p.Amount.Equal(converted))
			assert.Equal(t, "EUR", p.Currency)
			assert.True(t, p.OriginalAmount.Equal(order.TotalAmount))
			return nil
		})
	d.escrowRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(nil)
	d.provider.EXPECT().CreateCharge(ctx, gomock.Any()).Return(&ports.ChargeResult{
		TransactionID: "pi_123",
		PaymentURL:    "https://stripe.test/pay/pi_123",
		Metadata:      map[string]any{"client_secret": "cs_123"},
	}, nil)
	d.paymentRepo.EXPECT().Update(ctx, tx, gomock.Any()).Return(nil)
	d.publisher.EXPECT().Publish(ctx, gomock.Any()).Return(nil).Times(2)

	payment, err := d.svc.InitiatePayment(ctx, ports.InitiatePaymentRequest{
		OrderID:   order.ID,
		PayerID:   buyerID,
		Method:    domain.PaymentMethodStripe,
		Currency:  "EUR",
		ReturnURL: "https://app.test/return",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusPending, payment.Status)
	require.NotNil(t, payment.ProviderTransactionID)
	assert.Equal(t, "pi_123", *payment.ProviderTransactionID)
	require.NotNil(t, payment.PaymentURL)
}

func TestPaymentService_InitiatePayment_ProviderFailure(t *testing.T) {
	d := setupPaymentService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	buyerID := uuid.New()
	order := approvedOrder(buyerID)
	tx := &mockTx{}

	d.orderRepo.EXPECT().GetByID(ctx, order.ID).Return(order, nil)
	d.currencySvc.EXPECT().Convert(ctx, order.TotalAmount, "USD", "USD").
		Return(order.TotalAmount, nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil).Times(2)
	d.paymentRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(nil)
	d.escrowRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(nil)
	d.provider.EXPECT().CreateCharge(ctx, gomock.Any()).Return(nil, errors.New("gateway timeout"))
	d.paymentRepo.EXPECT().Update(ctx, tx, gomock.Any()).DoAndReturn(
		func(_ context.Context, _ pgx.Tx, p *domain.Payment) error {
			assert.Equal(t, domain.PaymentStatusFailed, p.Status)
			require.NotNil(t, p.FailureReason)
			return nil
		})

	_, err := d.svc.InitiatePayment(ctx, ports.InitiatePaymentRequest{
		OrderID:  order.ID,
		PayerID:  buyerID,
		Method:   domain.PaymentMethodStripe,
		Currency: "USD",
	})
	require.Error(t, err)
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "PAY_007", appErr.Code)
}

// ==================== ConfirmPayment Tests ====================

func TestPaymentService_ConfirmPayment_CompletedFundsEscrow(t *testing.T) {
	d := setupPaymentService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	payment := &domain.Payment{
		ID:      uuid.New(),
		OrderID: uuid.New(),
		PayerID: uuid.New(),
		PayeeID: uuid.New(),
		Amount:  decimal.NewFromInt(100),
		Method:  domain.PaymentMethodStripe,
		Status:  domain.PaymentStatusPending,
	}
	escrow := &domain.Escrow{
		ID:        uuid.New(),
		PaymentID: payment.ID,
		OrderID:   payment.OrderID,
		BuyerID:   payment.PayerID,
		SellerID:  payment.PayeeID,
		Status:    domain.EscrowStatusPending,
		Terms:     domain.EscrowTerms{AutoReleaseHours: 72},
	}

	key := domain.BuildConfirmationKey(payment.ID, "pi_123", domain.PaymentStatusCompleted)
	d.dedup.EXPECT().CheckAndSet(ctx, key, confirmationDedupTTL).Return(true, nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.paymentRepo.EXPECT().GetByIDForUpdate(ctx, tx, payment.ID).Return(payment, nil)
	d.paymentRepo.EXPECT().Update(ctx, tx, gomock.Any()).Return(nil)
	d.escrowRepo.EXPECT().GetByPaymentID(ctx, payment.ID).Return(escrow, nil)
	d.escrowRepo.EXPECT().Update(ctx, tx, gomock.Any()).DoAndReturn(
		func(_ context.Context, _ pgx.Tx, e *domain.Escrow) error {
			assert.Equal(t, domain.EscrowStatusFunded, e.Status)
			require.NotNil(t, e.FundedAt)
			require.NotNil(t, e.AutoReleaseDate)
			assert.Equal(t, e.FundedAt.Add(72*time.Hour), *e.AutoReleaseDate)
			return nil
		})
	d.escrowRepo.EXPECT().AppendHistory(ctx, tx, gomock.Any()).Return(nil)
	d.orderRepo.EXPECT().UpdateStatus(ctx, tx, payment.OrderID, domain.OrderStatusPaid).Return(nil)
	d.publisher.EXPECT().Publish(ctx, gomock.Any()).Return(nil).Times(2)

	got, err := d.svc.ConfirmPayment(ctx, ports.ConfirmPaymentRequest{
		PaymentID:             payment.ID,
		ProviderTransactionID: "pi_123",
		Status:                domain.PaymentStatusCompleted,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusCompleted, got.Status)
	require.NotNil(t, got.PaidAt)
}

func TestPaymentService_ConfirmPayment_DuplicateIgnored(t *testing.T) {
	d := setupPaymentService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	payment := &domain.Payment{
		ID:     uuid.New(),
		Status: domain.PaymentStatusCompleted,
	}

	key := domain.BuildConfirmationKey(payment.ID, "pi_123", domain.PaymentStatusCompleted)
	d.dedup.EXPECT().CheckAndSet(ctx, key, confirmationDedupTTL).Return(false, nil)
	d.paymentRepo.EXPECT().GetByID(ctx, payment.ID).Return(payment, nil)

	got, err := d.svc.ConfirmPayment(ctx, ports.ConfirmPaymentRequest{
		PaymentID:             payment.ID,
		ProviderTransactionID: "pi_123",
		Status:                domain.PaymentStatusCompleted,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusCompleted, got.Status)
}

func TestPaymentService_ConfirmPayment_RefundedIsImmutable(t *testing.T) {
	d := setupPaymentService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	payment := &domain.Payment{
		ID:     uuid.New(),
		Status: domain.PaymentStatusRefunded,
	}

	d.dedup.EXPECT().CheckAndSet(ctx, gomock.Any(), confirmationDedupTTL).Return(true, nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.paymentRepo.EXPECT().GetByIDForUpdate(ctx, tx, payment.ID).Return(payment, nil)
	d.dedup.EXPECT().Delete(ctx, gomock.Any()).Return(nil)

	_, err := d.svc.ConfirmPayment(ctx, ports.ConfirmPaymentRequest{
		PaymentID:             payment.ID,
		ProviderTransactionID: "pi_999",
		Status:                domain.PaymentStatusCompleted,
	})
	require.Error(t, err)
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "PAY_005", appErr.Code)
}

// A delivery that fails mid-apply must release its dedup key, so the
// provider's retry of the same confirmation is processed rather than
// answered with the stale payment.
func TestPaymentService_ConfirmPayment_FailedDeliveryRetrySucceeds(t *testing.T) {
	d := setupPaymentService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	payment := &domain.Payment{
		ID:      uuid.New(),
		OrderID: uuid.New(),
		PayerID: uuid.New(),
		PayeeID: uuid.New(),
		Amount:  decimal.NewFromInt(100),
		Method:  domain.PaymentMethodStripe,
		Status:  domain.PaymentStatusPending,
	}
	escrow := &domain.Escrow{
		ID:        uuid.New(),
		PaymentID: payment.ID,
		OrderID:   payment.OrderID,
		BuyerID:   payment.PayerID,
		SellerID:  payment.PayeeID,
		Status:    domain.EscrowStatusPending,
		Terms:     domain.EscrowTerms{AutoReleaseHours: 72},
	}
	req := ports.ConfirmPaymentRequest{
		PaymentID:             payment.ID,
		ProviderTransactionID: "pi_123",
		Status:                domain.PaymentStatusCompleted,
	}
	key := domain.BuildConfirmationKey(payment.ID, "pi_123", domain.PaymentStatusCompleted)

	// First delivery: the transaction cannot start, the key is released.
	d.dedup.EXPECT().CheckAndSet(ctx, key, confirmationDedupTTL).Return(true, nil)
	d.transactor.EXPECT().Begin(ctx).Return(nil, errors.New("db down"))
	d.dedup.EXPECT().Delete(ctx, key).Return(nil)

	_, err := d.svc.ConfirmPayment(ctx, req)
	require.Error(t, err)
	assert.Equal(t, domain.PaymentStatusPending, payment.Status)

	// Retry: the key is fresh again and the confirmation applies in full.
	d.dedup.EXPECT().CheckAndSet(ctx, key, confirmationDedupTTL).Return(true, nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.paymentRepo.EXPECT().GetByIDForUpdate(ctx, tx, payment.ID).Return(payment, nil)
	d.paymentRepo.EXPECT().Update(ctx, tx, gomock.Any()).Return(nil)
	d.escrowRepo.EXPECT().GetByPaymentID(ctx, payment.ID).Return(escrow, nil)
	d.escrowRepo.EXPECT().Update(ctx, tx, gomock.Any()).DoAndReturn(
		func(_ context.Context, _ pgx.Tx, e *domain.Escrow) error {
			assert.Equal(t, domain.EscrowStatusFunded, e.Status)
			return nil
		})
	d.escrowRepo.EXPECT().AppendHistory(ctx, tx, gomock.Any()).Return(nil)
	d.orderRepo.EXPECT().UpdateStatus(ctx, tx, payment.OrderID, domain.OrderStatusPaid).Return(nil)
	d.publisher.EXPECT().Publish(ctx, gomock.Any()).Return(nil).Times(2)

	got, err := d.svc.ConfirmPayment(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusCompleted, got.Status)
}

// A wallet payment completes synchronously but leaves its escrow pending.
// The confirmation call on the completed payment funds the escrow without
// touching the payment again.
func TestPaymentService_ConfirmPayment_CompletedPaymentFundsPendingEscrow(t *testing.T) {
	d := setupPaymentService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	paidAt := time.Now().UTC().Add(-time.Minute)
	payment := &domain.Payment{
		ID:      uuid.New(),
		OrderID: uuid.New(),
		PayerID: uuid.New(),
		PayeeID: uuid.New(),
		Method:  domain.PaymentMethodWallet,
		Status:  domain.PaymentStatusCompleted,
		PaidAt:  &paidAt,
	}
	escrow := &domain.Escrow{
		ID:        uuid.New(),
		PaymentID: payment.ID,
		OrderID:   payment.OrderID,
		Status:    domain.EscrowStatusPending,
	}

	d.dedup.EXPECT().CheckAndSet(ctx, gomock.Any(), confirmationDedupTTL).Return(true, nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.paymentRepo.EXPECT().GetByIDForUpdate(ctx, tx, payment.ID).Return(payment, nil)
	// No paymentRepo.Update: the payment record stays as is.
	d.escrowRepo.EXPECT().GetByPaymentID(ctx, payment.ID).Return(escrow, nil)
	d.escrowRepo.EXPECT().Update(ctx, tx, gomock.Any()).DoAndReturn(
		func(_ context.Context, _ pgx.Tx, e *domain.Escrow) error {
			assert.Equal(t, domain.EscrowStatusFunded, e.Status)
			return nil
		})
	d.escrowRepo.EXPECT().AppendHistory(ctx, tx, gomock.Any()).Return(nil)
	d.orderRepo.EXPECT().UpdateStatus(ctx, tx, payment.OrderID, domain.OrderStatusPaid).Return(nil)
	d.publisher.EXPECT().Publish(ctx, gomock.Any()).Return(nil).Times(2)

	got, err := d.svc.ConfirmPayment(ctx, ports.ConfirmPaymentRequest{
		PaymentID:             payment.ID,
		ProviderTransactionID: "wallet_" + payment.ID.String(),
		Status:                domain.PaymentStatusCompleted,
	})
	require.NoError(t, err)
	assert.Equal(t, paidAt, *got.PaidAt)
}

func TestPaymentService_ConfirmPayment_FailedMarksOrderAndEscrow(t *testing.T) {
	d := setupPaymentService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	payment := &domain.Payment{
		ID:      uuid.New(),
		OrderID: uuid.New(),
		PayerID: uuid.New(),
		Status:  domain.PaymentStatusPending,
	}
	escrow := &domain.Escrow{
		ID:        uuid.New(),
		PaymentID: payment.ID,
		Status:    domain.EscrowStatusPending,
	}

	d.dedup.EXPECT().CheckAndSet(ctx, gomock.Any(), confirmationDedupTTL).Return(true, nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.paymentRepo.EXPECT().GetByIDForUpdate(ctx, tx, payment.ID).Return(payment, nil)
	d.paymentRepo.EXPECT().Update(ctx, tx, gomock.Any()).Return(nil)
	d.orderRepo.EXPECT().UpdateStatus(ctx, tx, payment.OrderID, domain.OrderStatusPaymentFailed).Return(nil)
	d.escrowRepo.EXPECT().GetByPaymentID(ctx, payment.ID).Return(escrow, nil)
	d.escrowRepo.EXPECT().Update(ctx, tx, gomock.Any()).DoAndReturn(
		func(_ context.Context, _ pgx.Tx, e *domain.Escrow) error {
			assert.Equal(t, domain.EscrowStatusFailed, e.Status)
			return nil
		})
	d.escrowRepo.EXPECT().AppendHistory(ctx, tx, gomock.Any()).Return(nil)
	d.publisher.EXPECT().Publish(ctx, gomock.Any()).Return(nil)

	got, err := d.svc.ConfirmPayment(ctx, ports.ConfirmPaymentRequest{
		PaymentID:             payment.ID,
		ProviderTransactionID: "pi_failed",
		Status:                domain.PaymentStatusFailed,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusFailed, got.Status)
}

// ==================== RetryPayment Tests ====================

func TestPaymentService_RetryPayment_Success(t *testing.T) {
	d := setupPaymentService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	payerID := uuid.New()
	reason := "card declined"
	payment := &domain.Payment{
		ID:            uuid.New(),
		OrderID:       uuid.New(),
		PayerID:       payerID,
		Amount:        decimal.NewFromInt(100),
		Currency:      "USD",
		Method:        domain.PaymentMethodStripe,
		Status:        domain.PaymentStatusFailed,
		RetryCount:    1,
		FailureReason: &reason,
	}

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.paymentRepo.EXPECT().GetByIDForUpdate(ctx, tx, payment.ID).Return(payment, nil)
	d.provider.EXPECT().CreateCharge(ctx, gomock.Any()).Return(&ports.ChargeResult{
		TransactionID: "pi_retry",
	}, nil)
	d.paymentRepo.EXPECT().Update(ctx, tx, gomock.Any()).Return(nil)

	got, err := d.svc.RetryPayment(ctx, payment.ID, payerID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusPending, got.Status)
	assert.Equal(t, 2, got.RetryCount)
	assert.Nil(t, got.FailureReason)
	assert.Equal(t, "pi_retry", *got.ProviderTransactionID)
}

func TestPaymentService_RetryPayment_LimitExceeded(t *testing.T) {
	d := setupPaymentService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	payerID := uuid.New()
	payment := &domain.Payment{
		ID:         uuid.New(),
		PayerID:    payerID,
		Method:     domain.PaymentMethodStripe,
		Status:     domain.PaymentStatusFailed,
		RetryCount: domain.MaxPaymentRetries,
	}

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.paymentRepo.EXPECT().GetByIDForUpdate(ctx, tx, payment.ID).Return(payment, nil)

	_, err := d.svc.RetryPayment(ctx, payment.ID, payerID)
	require.Error(t, err)
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "PAY_006", appErr.Code)
}

func TestPaymentService_RetryPayment_NotPayer(t *testing.T) {
	d := setupPaymentService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	payment := &domain.Payment{
		ID:      uuid.New(),
		PayerID: uuid.New(),
		Method:  domain.PaymentMethodStripe,
		Status:  domain.PaymentStatusFailed,
	}

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.paymentRepo.EXPECT().GetByIDForUpdate(ctx, tx, payment.ID).Return(payment, nil)

	_, err := d.svc.RetryPayment(ctx, payment.ID, uuid.New())
	require.Error(t, err)
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "AUTH_004", appErr.Code)
}
