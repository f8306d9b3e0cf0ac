package service

import (
	"context"
	"fmt"
	"time"

	"marketplace-escrow/internal/core/domain"
	"marketplace-escrow/internal/core/ports"
	"marketplace-escrow/pkg/apperror"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// currencyMeta is the static catalog of currencies the marketplace
// accepts. Exchange rates come from the refresher; everything else is
// fixed here.
type currencyMeta struct {
	name     string
	decimals int32
	crypto   bool
	min      decimal.Decimal
	max      decimal.Decimal
}

var currencyCatalog = map[string]currencyMeta{
	"USD":  {name: "US Dollar", decimals: 2, min: decimal.NewFromInt(1), max: decimal.NewFromInt(100000)},
	"EUR":  {name: "Euro", decimals: 2, min: decimal.NewFromInt(1), max: decimal.NewFromInt(100000)},
	"GBP":  {name: "British Pound", decimals: 2, min: decimal.NewFromInt(1), max: decimal.NewFromInt(100000)},
	"UAH":  {name: "Ukrainian Hryvnia", decimals: 2, min: decimal.NewFromInt(10), max: decimal.NewFromInt(4000000)},
	"PLN":  {name: "Polish Zloty", decimals: 2, min: decimal.NewFromInt(1), max: decimal.NewFromInt(400000)},
	"BTC":  {name: "Bitcoin", decimals: 8, crypto: true, min: decimal.NewFromFloat(0.0001), max: decimal.NewFromInt(10)},
	"ETH":  {name: "Ethereum", decimals: 8, crypto: true, min: decimal.NewFromFloat(0.001), max: decimal.NewFromInt(100)},
	"USDT": {name: "Tether", decimals: 2, crypto: true, min: decimal.NewFromInt(1), max: decimal.NewFromInt(100000)},
}

// CurrencyServiceImpl implements ports.CurrencyService. Rates are stored
// as units per one base currency (USD); conversion crosses through the
// base.
type CurrencyServiceImpl struct {
	currencyRepo    ports.CurrencyRepository
	rateSource      ports.RateSource
	baseCurrency    string
	refreshInterval time.Duration
	log             zerolog.Logger
}

// NewCurrencyService creates a new CurrencyServiceImpl.
func NewCurrencyService(
	currencyRepo ports.CurrencyRepository,
	rateSource ports.RateSource,
	baseCurrency string,
	refreshInterval time.Duration,
	log zerolog.Logger,
) *CurrencyServiceImpl {
	if baseCurrency == "" {
		baseCurrency = domain.BaseCurrency
	}
	return &CurrencyServiceImpl{
		currencyRepo:    currencyRepo,
		rateSource:      rateSource,
		baseCurrency:    baseCurrency,
		refreshInterval: refreshInterval,
		log:             log,
	}
}

// Convert turns amount in the from currency into the to currency, rounded
// to the target currency's decimals. Identical codes short-circuit
// without a rate lookup.
func (s *CurrencyServiceImpl) Convert(ctx context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, error) {
	if amount.IsNegative() {
		return decimal.Zero, apperror.ErrInvalidAmount()
	}
	if from == to {
		return amount, nil
	}

	fromCur, err := s.lookup(ctx, from)
	if err != nil {
		return decimal.Zero, err
	}
	toCur, err := s.lookup(ctx, to)
	if err != nil {
		return decimal.Zero, err
	}
	if fromCur.ExchangeRate.IsZero() {
		return decimal.Zero, apperror.InternalError(fmt.Errorf("zero exchange rate for %s", from))
	}

	converted := amount.Mul(toCur.ExchangeRate).Div(fromCur.ExchangeRate)
	return toCur.Round(converted), nil
}

func (s *CurrencyServiceImpl) lookup(ctx context.Context, code string) (*domain.Currency, error) {
	cur, err := s.currencyRepo.GetByCode(ctx, code)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get currency %s: %w", code, err))
	}
	if cur == nil {
		return nil, apperror.ErrUnsupportedCurrency(code)
	}
	return cur, nil
}

// GetCurrency fetches one currency by code.
func (s *CurrencyServiceImpl) GetCurrency(ctx context.Context, code string) (*domain.Currency, error) {
	return s.lookup(ctx, code)
}

// ListCurrencies returns the full rate table.
func (s *CurrencyServiceImpl) ListCurrencies(ctx context.Context) ([]domain.Currency, error) {
	currencies, err := s.currencyRepo.List(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list currencies: %w", err))
	}
	return currencies, nil
}

// RefreshRates pulls fresh fiat and crypto rates and upserts every
// catalog currency. Codes the source does not quote are skipped, except
// the base currency which is always pinned at 1.
func (s *CurrencyServiceImpl) RefreshRates(ctx context.Context) error {
	fiat, err := s.rateSource.FetchFiatRates(ctx, s.baseCurrency)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("fetch fiat rates: %w", err))
	}
	crypto, err := s.rateSource.FetchCryptoRates(ctx)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("fetch crypto rates: %w", err))
	}

	now := time.Now().UTC()
	updated := 0
	for code, meta := range currencyCatalog {
		var rate decimal.Decimal
		switch {
		case code == s.baseCurrency:
			rate = decimal.NewFromInt(1)
		case meta.crypto:
			r, ok := crypto[code]
			if !ok {
				continue
			}
			rate = r
		default:
			r, ok := fiat[code]
			if !ok {
				continue
			}
			rate = r
		}
		if !rate.IsPositive() {
			s.log.Warn().Str("code", code).Str("rate", rate.String()).Msg("skipping non-positive rate")
			continue
		}

		cur := &domain.Currency{
			Code:             code,
			Name:             meta.name,
			ExchangeRate:     rate,
			IsCryptocurrency: meta.crypto,
			Decimals:         meta.decimals,
			MinAmount:        meta.min,
			MaxAmount:        meta.max,
			UpdatedAt:        now,
		}
		if err := s.currencyRepo.Upsert(ctx, cur); err != nil {
			return apperror.InternalError(fmt.Errorf("upsert currency %s: %w", code, err))
		}
		updated++
	}

	s.log.Info().Int("updated", updated).Msg("exchange rates refreshed")
	return nil
}

// Start runs the periodic rate refresher until ctx is cancelled. One
// refresh happens immediately; later failures are logged and retried on
// the next tick.
func (s *CurrencyServiceImpl) Start(ctx context.Context) {
	if err := s.RefreshRates(ctx); err != nil {
		s.log.Error().Err(err).Msg("initial rate refresh failed")
	}

	interval := s.refreshInterval
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("rate refresher stopped")
			return
		case <-ticker.C:
			if err := s.RefreshRates(ctx); err != nil {
				s.log.Error().Err(err).Msg("rate refresh failed")
			}
		}
	}
}
