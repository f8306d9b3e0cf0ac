package service

import (
	"context"
	"testing"
	"time"

	"marketplace-escrow/internal/core/domain"
	"marketplace-escrow/internal/core/ports/mocks"
	"marketplace-escrow/pkg/apperror"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type currencyTestDeps struct {
	svc          *CurrencyServiceImpl
	currencyRepo *mocks.MockCurrencyRepository
	rateSource   *mocks.MockRateSource
	ctrl         *gomock.Controller
}

func setupCurrencyService(t *testing.T) *currencyTestDeps {
	ctrl := gomock.NewController(t)
	d := &currencyTestDeps{
		currencyRepo: mocks.NewMockCurrencyRepository(ctrl),
		rateSource:   mocks.NewMockRateSource(ctrl),
		ctrl:         ctrl,
	}
	d.svc = NewCurrencyService(d.currencyRepo, d.rateSource, "USD", time.Hour, zerolog.Nop())
	return d
}

func TestCurrencyService_Convert_IdentityShortCircuit(t *testing.T) {
	d := setupCurrencyService(t)
	defer d.ctrl.Finish()

	// No repository calls expected for same-currency conversion.
	got, err := d.svc.Convert(context.Background(), decimal.NewFromInt(42), "USD", "USD")
	require.NoError(t, err)
	assert.True(t, got.Equal(decimal.NewFromInt(42)))
}

func TestCurrencyService_Convert_CrossRate(t *testing.T) {
	d := setupCurrencyService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	// 1 USD = 0.92 EUR, 1 USD = 41.50 UAH.
	d.currencyRepo.EXPECT().GetByCode(ctx, "EUR").Return(&domain.Currency{
		Code:         "EUR",
		ExchangeRate: decimal.NewFromFloat(0.92),
		Decimals:     2,
	}, nil)
	d.currencyRepo.EXPECT().GetByCode(ctx, "UAH").Return(&domain.Currency{
		Code:         "UAH",
		ExchangeRate: decimal.NewFromFloat(41.50),
		Decimals:     2,
	}, nil)

	// 100 EUR -> UAH: 100 * 41.50 / 0.92 = 4510.87 (rounded).
	got, err := d.svc.Convert(ctx, decimal.NewFromInt(100), "EUR", "UAH")
	require.NoError(t, err)
	assert.Equal(t, "4510.87", got.StringFixed(2))
}

func TestCurrencyService_Convert_RoundsToTargetDecimals(t *testing.T) {
	d := setupCurrencyService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	d.currencyRepo.EXPECT().GetByCode(ctx, "USD").Return(&domain.Currency{
		Code:         "USD",
		ExchangeRate: decimal.NewFromInt(1),
		Decimals:     2,
	}, nil)
	d.currencyRepo.EXPECT().GetByCode(ctx, "BTC").Return(&domain.Currency{
		Code:         "BTC",
		ExchangeRate: decimal.NewFromFloat(0.000016),
		Decimals:     8,
	}, nil)

	got, err := d.svc.Convert(ctx, decimal.NewFromInt(100), "USD", "BTC")
	require.NoError(t, err)
	assert.Equal(t, "0.00160000", got.StringFixed(8))
}

func TestCurrencyService_Convert_UnknownCurrency(t *testing.T) {
	d := setupCurrencyService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	d.currencyRepo.EXPECT().GetByCode(ctx, "XXX").Return(nil, nil)

	_, err := d.svc.Convert(ctx, decimal.NewFromInt(10), "XXX", "USD")
	require.Error(t, err)
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "CUR_001", appErr.Code)
}

func TestCurrencyService_Convert_NegativeAmount(t *testing.T) {
	d := setupCurrencyService(t)
	defer d.ctrl.Finish()

	_, err := d.svc.Convert(context.Background(), decimal.NewFromInt(-5), "USD", "EUR")
	require.Error(t, err)
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "PAY_002", appErr.Code)
}

func TestCurrencyService_RefreshRates_UpsertsCatalog(t *testing.T) {
	d := setupCurrencyService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	d.rateSource.EXPECT().FetchFiatRates(ctx, "USD").Return(map[string]decimal.Decimal{
		"EUR": decimal.NewFromFloat(0.92),
		"GBP": decimal.NewFromFloat(0.79),
		"UAH": decimal.NewFromFloat(41.50),
		"PLN": decimal.NewFromFloat(3.95),
	}, nil)
	d.rateSource.EXPECT().FetchCryptoRates(ctx).Return(map[string]decimal.Decimal{
		"BTC":  decimal.NewFromFloat(0.000016),
		"ETH":  decimal.NewFromFloat(0.00031),
		"USDT": decimal.NewFromInt(1),
	}, nil)

	seen := map[string]decimal.Decimal{}
	d.currencyRepo.EXPECT().Upsert(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, c *domain.Currency) error {
			seen[c.Code] = c.ExchangeRate
			return nil
		}).Times(len(currencyCatalog))

	require.NoError(t, d.svc.RefreshRates(ctx))

	// Base currency is always pinned at 1.
	assert.True(t, seen["USD"].Equal(decimal.NewFromInt(1)))
	assert.True(t, seen["EUR"].Equal(decimal.NewFromFloat(0.92)))
	assert.True(t, seen["BTC"].Equal(decimal.NewFromFloat(0.000016)))
}

func TestCurrencyService_RefreshRates_SkipsUnquotedCodes(t *testing.T) {
	d := setupCurrencyService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	d.rateSource.EXPECT().FetchFiatRates(ctx, "USD").Return(map[string]decimal.Decimal{
		"EUR": decimal.NewFromFloat(0.92),
	}, nil)
	d.rateSource.EXPECT().FetchCryptoRates(ctx).Return(map[string]decimal.Decimal{}, nil)

	// Only USD (pinned) and EUR get upserted.
	d.currencyRepo.EXPECT().Upsert(ctx, gomock.Any()).Return(nil).Times(2)

	require.NoError(t, d.svc.RefreshRates(ctx))
}
