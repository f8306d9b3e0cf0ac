package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// HTTPClient is the outbound HTTP surface, injected for tests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client implements ports.RateSource against an exchangerate-style API.
// Crypto prices are a fixed table; no live feed is wired for them.
type Client struct {
	client HTTPClient
	apiURL string
	log    zerolog.Logger
}

// NewClient creates a new rates client.
func NewClient(client HTTPClient, apiURL string, log zerolog.Logger) *Client {
	return &Client{
		client: client,
		apiURL: apiURL,
		log:    log,
	}
}

type ratesResponse struct {
	Base  string                     `json:"base"`
	Rates map[string]decimal.Decimal `json:"rates"`
}

// FetchFiatRates returns currency code -> units per 1 base currency.
func (c *Client) FetchFiatRates(ctx context.Context, base string) (map[string]decimal.Decimal, error) {
	url := fmt.Sprintf("%s/latest?base=%s", c.apiURL, base)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build rates request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch rates: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("rates API returned %d: %s", resp.StatusCode, raw)
	}

	var out ratesResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode rates response: %w", err)
	}
	if len(out.Rates) == 0 {
		return nil, fmt.Errorf("rates API returned no rates")
	}

	c.log.Debug().Int("count", len(out.Rates)).Str("base", base).Msg("fiat rates fetched")
	return out.Rates, nil
}

// Fixed crypto quotes, units per 1 USD. Stand-in until a market data
// feed is integrated.
var cryptoRates = map[string]decimal.Decimal{
	"BTC":  decimal.NewFromFloat(0.000016),
	"ETH":  decimal.NewFromFloat(0.00031),
	"USDT": decimal.NewFromInt(1),
}

// FetchCryptoRates returns crypto code -> units per 1 base currency.
func (c *Client) FetchCryptoRates(_ context.Context) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal, len(cryptoRates))
	for code, rate := range cryptoRates {
		out[code] = rate
	}
	return out, nil
}
