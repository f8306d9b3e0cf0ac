package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"marketplace-escrow/internal/adapter/http/dto"
	"marketplace-escrow/internal/adapter/http/middleware"
	"marketplace-escrow/internal/core/domain"
	"marketplace-escrow/internal/core/ports"
	"marketplace-escrow/internal/core/ports/mocks"
	"marketplace-escrow/pkg/apperror"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestContext(t *testing.T, method, path string, body any) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	c.Request = httptest.NewRequest(method, path, reader)
	c.Request.Header.Set("Content-Type", "application/json")
	return c, w
}

func authenticate(c *gin.Context, userID uuid.UUID) {
	c.Set(middleware.CtxUserID, userID)
	c.Set(middleware.CtxUserRole, domain.UserRoleUser)
}

func responseData(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data, ok := resp["data"].(map[string]interface{})
	require.True(t, ok, "response has no data object: %s", w.Body.String())
	return data
}

// --- Auth Handler Tests ---

func TestRegister_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockAuth := mocks.NewMockAuthService(ctrl)
	h := NewAuthHandler(mockAuth)

	userID := uuid.New()
	mockAuth.EXPECT().Register(gomock.Any(), ports.RegisterRequest{
		Username:    "advertiser1",
		Password:    "password123",
		DisplayName: "Acme Ads",
	}).Return(&domain.User{
		ID:          userID,
		Username:    "advertiser1",
		DisplayName: "Acme Ads",
		Role:        domain.UserRoleUser,
	}, nil)

	c, w := newTestContext(t, http.MethodPost, "/api/v1/auth/register", dto.RegisterRequest{
		Username:    "advertiser1",
		Password:    "password123",
		DisplayName: "Acme Ads",
	})
	h.Register(c)

	assert.Equal(t, http.StatusCreated, w.Code)
	data := responseData(t, w)
	assert.Equal(t, userID.String(), data["user_id"])
	assert.Equal(t, "advertiser1", data["username"])
	assert.Equal(t, "USER", data["role"])
}

func TestRegister_ValidationError(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	h := NewAuthHandler(mocks.NewMockAuthService(ctrl))

	c, w := newTestContext(t, http.MethodPost, "/api/v1/auth/register", map[string]string{})
	h.Register(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRegister_UsernameTaken(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockAuth := mocks.NewMockAuthService(ctrl)
	h := NewAuthHandler(mockAuth)

	mockAuth.EXPECT().Register(gomock.Any(), gomock.Any()).Return(nil, apperror.ErrUsernameExists())

	c, w := newTestContext(t, http.MethodPost, "/", dto.RegisterRequest{
		Username: "taken",
		Password: "password123",
	})
	h.Register(c)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestLogin_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockAuth := mocks.NewMockAuthService(ctrl)
	h := NewAuthHandler(mockAuth)

	expiry := time.Now().Add(24 * time.Hour)
	mockAuth.EXPECT().Login(gomock.Any(), "advertiser1", "password123").Return("jwt-token-123", expiry, nil)

	c, w := newTestContext(t, http.MethodPost, "/", dto.LoginRequest{
		Username: "advertiser1",
		Password: "password123",
	})
	h.Login(c)

	assert.Equal(t, http.StatusOK, w.Code)
	data := responseData(t, w)
	assert.Equal(t, "jwt-token-123", data["token"])
	assert.Equal(t, float64(expiry.Unix()), data["expiry"])
}

func TestLogin_InvalidCredentials(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockAuth := mocks.NewMockAuthService(ctrl)
	h := NewAuthHandler(mockAuth)

	mockAuth.EXPECT().Login(gomock.Any(), gomock.Any(), gomock.Any()).
		Return("", time.Time{}, apperror.ErrInvalidCredentials())

	c, w := newTestContext(t, http.MethodPost, "/", dto.LoginRequest{
		Username: "advertiser1",
		Password: "wrong",
	})
	h.Login(c)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

// --- Payment Handler Tests ---

func TestInitiatePayment_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockPayment := mocks.NewMockPaymentService(ctrl)
	h := NewPaymentHandler(mockPayment)

	payerID := uuid.New()
	orderID := uuid.New()
	paymentURL := "https://checkout.stripe.test/cs_123"
	mockPayment.EXPECT().InitiatePayment(gomock.Any(), ports.InitiatePaymentRequest{
		OrderID:   orderID,
		PayerID:   payerID,
		Method:    domain.PaymentMethodStripe,
		Currency:  "USD",
		ReturnURL: "https://shop.test/return",
	}).Return(&domain.Payment{
		ID:         uuid.New(),
		OrderID:    orderID,
		PayerID:    payerID,
		Amount:     decimal.NewFromInt(150),
		Currency:   "USD",
		Method:     domain.PaymentMethodStripe,
		Status:     domain.PaymentStatusPending,
		PaymentURL: &paymentURL,
	}, nil)

	c, w := newTestContext(t, http.MethodPost, "/api/v1/payments", dto.InitiatePaymentRequest{
		OrderID:   orderID.String(),
		Method:    "STRIPE",
		Currency:  "USD",
		ReturnURL: "https://shop.test/return",
	})
	authenticate(c, payerID)
	h.Initiate(c)

	assert.Equal(t, http.StatusCreated, w.Code)
	data := responseData(t, w)
	assert.Equal(t, "PENDING", data["status"])
	assert.Equal(t, paymentURL, data["payment_url"])
}

func TestInitiatePayment_UnknownMethodRejected(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	h := NewPaymentHandler(mocks.NewMockPaymentService(ctrl))

	c, w := newTestContext(t, http.MethodPost, "/api/v1/payments", map[string]string{
		"order_id": uuid.NewString(),
		"method":   "CASH",
		"currency": "USD",
	})
	authenticate(c, uuid.New())
	h.Initiate(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestInitiatePayment_NoAuthContext(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	h := NewPaymentHandler(mocks.NewMockPaymentService(ctrl))

	c, w := newTestContext(t, http.MethodPost, "/api/v1/payments", dto.InitiatePaymentRequest{
		OrderID:  uuid.NewString(),
		Method:   "STRIPE",
		Currency: "USD",
	})
	h.Initiate(c)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGetPayment_InvalidID(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	h := NewPaymentHandler(mocks.NewMockPaymentService(ctrl))

	c, w := newTestContext(t, http.MethodGet, "/api/v1/payments/not-a-uuid", nil)
	c.Params = gin.Params{{Key: "id", Value: "not-a-uuid"}}
	h.Get(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRetryPayment_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockPayment := mocks.NewMockPaymentService(ctrl)
	h := NewPaymentHandler(mockPayment)

	payerID := uuid.New()
	paymentID := uuid.New()
	mockPayment.EXPECT().RetryPayment(gomock.Any(), paymentID, payerID).Return(&domain.Payment{
		ID:         paymentID,
		Status:     domain.PaymentStatusPending,
		RetryCount: 1,
	}, nil)

	c, w := newTestContext(t, http.MethodPost, "/api/v1/payments/"+paymentID.String()+"/retry", nil)
	c.Params = gin.Params{{Key: "id", Value: paymentID.String()}}
	authenticate(c, payerID)
	h.Retry(c)

	assert.Equal(t, http.StatusOK, w.Code)
	data := responseData(t, w)
	assert.Equal(t, float64(1), data["retry_count"])
}

func TestConfirmPayment_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockPayment := mocks.NewMockPaymentService(ctrl)
	h := NewPaymentHandler(mockPayment)

	paymentID := uuid.New()
	mockPayment.EXPECT().ConfirmPayment(gomock.Any(), ports.ConfirmPaymentRequest{
		PaymentID:             paymentID,
		ProviderTransactionID: "ch_abc",
		Status:                domain.PaymentStatusCompleted,
	}).Return(&domain.Payment{
		ID:     paymentID,
		Status: domain.PaymentStatusCompleted,
	}, nil)

	c, w := newTestContext(t, http.MethodPost, "/api/v1/payments/confirm", dto.ConfirmPaymentRequest{
		PaymentID:             paymentID.String(),
		ProviderTransactionID: "ch_abc",
		Status:                "COMPLETED",
	})
	h.Confirm(c)

	assert.Equal(t, http.StatusOK, w.Code)
	data := responseData(t, w)
	assert.Equal(t, "COMPLETED", data["status"])
}

func TestConfirmPayment_DuplicateStateConflict(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockPayment := mocks.NewMockPaymentService(ctrl)
	h := NewPaymentHandler(mockPayment)

	mockPayment.EXPECT().ConfirmPayment(gomock.Any(), gomock.Any()).
		Return(nil, apperror.ErrInvalidPaymentState("REFUNDED"))

	c, w := newTestContext(t, http.MethodPost, "/api/v1/payments/confirm", dto.ConfirmPaymentRequest{
		PaymentID:             uuid.NewString(),
		ProviderTransactionID: "ch_late",
		Status:                "COMPLETED",
	})
	h.Confirm(c)

	assert.Equal(t, http.StatusConflict, w.Code)
}

// --- Escrow Handler Tests ---

func TestReleaseEscrow_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockEscrow := mocks.NewMockEscrowService(ctrl)
	h := NewEscrowHandler(mockEscrow)

	buyerID := uuid.New()
	escrowID := uuid.New()
	commission := decimal.NewFromInt(20)
	mockEscrow.EXPECT().Release(gomock.Any(), escrowID, buyerID).Return(&domain.Escrow{
		ID:                 escrowID,
		Status:             domain.EscrowStatusReleased,
		Amount:             decimal.NewFromInt(200),
		Currency:           "USD",
		PlatformCommission: &commission,
	}, nil)

	c, w := newTestContext(t, http.MethodPost, "/api/v1/escrows/"+escrowID.String()+"/release", nil)
	c.Params = gin.Params{{Key: "id", Value: escrowID.String()}}
	authenticate(c, buyerID)
	h.Release(c)

	assert.Equal(t, http.StatusOK, w.Code)
	data := responseData(t, w)
	assert.Equal(t, "RELEASED", data["status"])
}

func TestReleaseEscrow_NotReleasable(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockEscrow := mocks.NewMockEscrowService(ctrl)
	h := NewEscrowHandler(mockEscrow)

	mockEscrow.EXPECT().Release(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil, apperror.ErrInvalidEscrowState("RELEASED"))

	escrowID := uuid.New()
	c, w := newTestContext(t, http.MethodPost, "/", nil)
	c.Params = gin.Params{{Key: "id", Value: escrowID.String()}}
	authenticate(c, uuid.New())
	h.Release(c)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestOpenDispute_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockEscrow := mocks.NewMockEscrowService(ctrl)
	h := NewEscrowHandler(mockEscrow)

	buyerID := uuid.New()
	escrowID := uuid.New()
	mockEscrow.EXPECT().OpenDispute(gomock.Any(), ports.OpenDisputeRequest{
		EscrowID:    escrowID,
		RequesterID: buyerID,
		Reason:      "Content never delivered",
		Description: "Deadline passed a week ago",
	}).Return(&domain.Escrow{
		ID:     escrowID,
		Status: domain.EscrowStatusDisputed,
		Dispute: &domain.Dispute{
			Status:    domain.DisputeStatusOpen,
			CreatedBy: buyerID,
			Reason:    "Content never delivered",
		},
	}, nil)

	c, w := newTestContext(t, http.MethodPost, "/", dto.OpenDisputeRequest{
		Reason:      "Content never delivered",
		Description: "Deadline passed a week ago",
	})
	c.Params = gin.Params{{Key: "id", Value: escrowID.String()}}
	authenticate(c, buyerID)
	h.OpenDispute(c)

	assert.Equal(t, http.StatusOK, w.Code)
	data := responseData(t, w)
	assert.Equal(t, "DISPUTED", data["status"])
	dispute := data["dispute"].(map[string]interface{})
	assert.Equal(t, "OPEN", dispute["status"])
}

func TestOpenDispute_MissingReason(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	h := NewEscrowHandler(mocks.NewMockEscrowService(ctrl))

	c, w := newTestContext(t, http.MethodPost, "/", map[string]string{"description": "no reason given"})
	c.Params = gin.Params{{Key: "id", Value: uuid.NewString()}}
	authenticate(c, uuid.New())
	h.OpenDispute(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestResolveDispute_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockEscrow := mocks.NewMockEscrowService(ctrl)
	h := NewEscrowHandler(mockEscrow)

	adminID := uuid.New()
	escrowID := uuid.New()
	mockEscrow.EXPECT().
		ResolveDispute(gomock.Any(), escrowID, adminID, "Refund in full", ports.DisputeOutcomeRefund).
		Return(&domain.Escrow{
			ID:     escrowID,
			Status: domain.EscrowStatusRefunded,
		}, nil)

	c, w := newTestContext(t, http.MethodPost, "/", dto.ResolveDisputeRequest{
		Resolution: "Refund in full",
		Outcome:    "REFUND",
	})
	c.Params = gin.Params{{Key: "id", Value: escrowID.String()}}
	c.Set(middleware.CtxUserID, adminID)
	c.Set(middleware.CtxUserRole, domain.UserRoleAdmin)
	h.ResolveDispute(c)

	assert.Equal(t, http.StatusOK, w.Code)
	data := responseData(t, w)
	assert.Equal(t, "REFUNDED", data["status"])
}

func TestResolveDispute_InvalidOutcome(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	h := NewEscrowHandler(mocks.NewMockEscrowService(ctrl))

	c, w := newTestContext(t, http.MethodPost, "/", map[string]string{
		"resolution": "split it",
		"outcome":    "SPLIT",
	})
	c.Params = gin.Params{{Key: "id", Value: uuid.NewString()}}
	authenticate(c, uuid.New())
	h.ResolveDispute(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEscrowHistory_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockEscrow := mocks.NewMockEscrowService(ctrl)
	h := NewEscrowHandler(mockEscrow)

	escrowID := uuid.New()
	mockEscrow.EXPECT().ListHistory(gomock.Any(), escrowID).Return([]domain.EscrowHistoryEntry{
		{EscrowID: escrowID, Action: domain.EscrowActionCreated, PerformedBy: uuid.New()},
		{EscrowID: escrowID, Action: domain.EscrowActionFunded, PerformedBy: uuid.New()},
	}, nil)

	c, w := newTestContext(t, http.MethodGet, "/", nil)
	c.Params = gin.Params{{Key: "id", Value: escrowID.String()}}
	authenticate(c, uuid.New())
	h.History(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	entries := resp["data"].([]interface{})
	require.Len(t, entries, 2)
	assert.Equal(t, "CREATED", entries[0].(map[string]interface{})["action"])
}

func TestAutoReleaseScan_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockEscrow := mocks.NewMockEscrowService(ctrl)
	h := NewEscrowHandler(mockEscrow)

	mockEscrow.EXPECT().RunAutoReleaseScan(gomock.Any()).Return(3, nil)

	c, w := newTestContext(t, http.MethodPost, "/api/v1/admin/escrows/auto-release-scan", nil)
	h.AutoReleaseScan(c)

	assert.Equal(t, http.StatusOK, w.Code)
	data := responseData(t, w)
	assert.Equal(t, float64(3), data["flipped"])
}

// --- Wallet Handler Tests ---

func TestGetBalance_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockWallet := mocks.NewMockWalletService(ctrl)
	h := NewWalletHandler(mockWallet)

	userID := uuid.New()
	mockWallet.EXPECT().GetBalance(gomock.Any(), userID).Return(&domain.Wallet{
		ID:       uuid.New(),
		UserID:   userID,
		Currency: "USD",
		Balance:  decimal.RequireFromString("125.50"),
	}, nil)

	c, w := newTestContext(t, http.MethodGet, "/api/v1/wallets/balance", nil)
	authenticate(c, userID)
	h.GetBalance(c)

	assert.Equal(t, http.StatusOK, w.Code)
	data := responseData(t, w)
	assert.Equal(t, "125.5", data["balance"])
	assert.Equal(t, "USD", data["currency"])
}

func TestListTransactions_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockWallet := mocks.NewMockWalletService(ctrl)
	h := NewWalletHandler(mockWallet)

	userID := uuid.New()
	mockWallet.EXPECT().ListEntries(gomock.Any(), userID, 5, 10).Return([]domain.WalletEntry{
		{Type: domain.EntryTypeCredit, Amount: decimal.NewFromInt(50), ReferenceType: domain.ReferenceTopup},
	}, nil)

	c, w := newTestContext(t, http.MethodGet, "/api/v1/wallets/transactions?limit=5&offset=10", nil)
	authenticate(c, userID)
	h.ListTransactions(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	entries := resp["data"].([]interface{})
	require.Len(t, entries, 1)
	assert.Equal(t, "CREDIT", entries[0].(map[string]interface{})["type"])
}

func TestTopup_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockWallet := mocks.NewMockWalletService(ctrl)
	h := NewWalletHandler(mockWallet)

	userID := uuid.New()
	mockWallet.EXPECT().Topup(gomock.Any(), userID, gomock.Any()).Return(&domain.Wallet{
		ID:       uuid.New(),
		UserID:   userID,
		Currency: "USD",
		Balance:  decimal.NewFromInt(60),
	}, nil)

	c, w := newTestContext(t, http.MethodPost, "/api/v1/wallets/topup", dto.TopupRequest{
		Amount: decimal.NewFromInt(50),
	})
	authenticate(c, userID)
	h.Topup(c)

	assert.Equal(t, http.StatusOK, w.Code)
	data := responseData(t, w)
	assert.Equal(t, "60", data["balance"])
}

func TestTopup_InsufficientForNegative(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockWallet := mocks.NewMockWalletService(ctrl)
	h := NewWalletHandler(mockWallet)

	mockWallet.EXPECT().Topup(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil, apperror.ErrInvalidAmount())

	c, w := newTestContext(t, http.MethodPost, "/api/v1/wallets/topup", dto.TopupRequest{
		Amount: decimal.NewFromInt(-5),
	})
	authenticate(c, uuid.New())
	h.Topup(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// --- Currency Handler Tests ---

func TestConvertCurrency_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockCurrency := mocks.NewMockCurrencyService(ctrl)
	h := NewCurrencyHandler(mockCurrency)

	mockCurrency.EXPECT().Convert(gomock.Any(), gomock.Any(), "EUR", "USD").
		Return(decimal.RequireFromString("108.70"), nil)

	c, w := newTestContext(t, http.MethodPost, "/api/v1/currencies/convert", dto.ConvertRequest{
		Amount: decimal.NewFromInt(100),
		From:   "EUR",
		To:     "USD",
	})
	h.Convert(c)

	assert.Equal(t, http.StatusOK, w.Code)
	data := responseData(t, w)
	assert.Equal(t, "108.7", data["converted"])
}

func TestConvertCurrency_UnsupportedCode(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockCurrency := mocks.NewMockCurrencyService(ctrl)
	h := NewCurrencyHandler(mockCurrency)

	mockCurrency.EXPECT().Convert(gomock.Any(), gomock.Any(), "XYZ", "USD").
		Return(decimal.Zero, apperror.ErrUnsupportedCurrency("XYZ"))

	c, w := newTestContext(t, http.MethodPost, "/api/v1/currencies/convert", dto.ConvertRequest{
		Amount: decimal.NewFromInt(100),
		From:   "XYZ",
		To:     "USD",
	})
	h.Convert(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListCurrencies_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockCurrency := mocks.NewMockCurrencyService(ctrl)
	h := NewCurrencyHandler(mockCurrency)

	mockCurrency.EXPECT().ListCurrencies(gomock.Any()).Return([]domain.Currency{
		{Code: "USD", Name: "US Dollar", ExchangeRate: decimal.NewFromInt(1), Decimals: 2},
		{Code: "BTC", Name: "Bitcoin", IsCryptocurrency: true, Decimals: 8},
	}, nil)

	c, w := newTestContext(t, http.MethodGet, "/api/v1/currencies", nil)
	h.List(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	currencies := resp["data"].([]interface{})
	require.Len(t, currencies, 2)
	assert.Equal(t, "USD", currencies[0].(map[string]interface{})["code"])
}

// --- Health Check Tests ---

type stubChecker struct {
	name string
	err  error
}

func (s stubChecker) Ping(_ context.Context) error { return s.err }
func (s stubChecker) Name() string                 { return s.name }

func TestHealthCheck_AllHealthy(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/health", nil)

	HealthCheck(stubChecker{name: "postgresql"}, stubChecker{name: "redis"})(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp["status"])
}

func TestHealthCheck_Degraded(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/health", nil)

	HealthCheck(stubChecker{name: "postgresql"}, stubChecker{name: "redis", err: errors.New("connection refused")})(c)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "degraded", resp["status"])
}
