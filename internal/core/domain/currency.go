package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Currency is static reference data mapping a currency code to its
// exchange rate against the base currency (USD).
type Currency struct {
	Code             string          `json:"code"`
	Name             string          `json:"name"`
	ExchangeRate     decimal.Decimal `json:"exchange_rate"` // Units per 1 USD, always > 0
	IsCryptocurrency bool            `json:"is_cryptocurrency"`
	Decimals         int32           `json:"decimals"`
	MinAmount        decimal.Decimal `json:"min_amount"`
	MaxAmount        decimal.Decimal `json:"max_amount"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// BaseCurrency is the settlement base all cross rates go through.
const BaseCurrency = "USD"

// Round truncates an amount to the currency's configured decimal places.
func (c *Currency) Round(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(c.Decimals)
}
