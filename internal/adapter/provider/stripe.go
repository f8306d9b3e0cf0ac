package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"marketplace-escrow/internal/core/domain"
	"marketplace-escrow/internal/core/ports"

	"github.com/rs/zerolog"
)

// StripeAdapter implements ports.ProviderAdapter against the Stripe-style
// checkout API.
type StripeAdapter struct {
	client  HTTPClient
	baseURL string
	apiKey  string
	log     zerolog.Logger
}

// NewStripeAdapter creates a new StripeAdapter.
func NewStripeAdapter(client HTTPClient, baseURL, apiKey string, log zerolog.Logger) *StripeAdapter {
	return &StripeAdapter{
		client:  client,
		baseURL: baseURL,
		apiKey:  apiKey,
		log:     log,
	}
}

// Method returns the payment method this adapter serves.
func (a *StripeAdapter) Method() domain.PaymentMethod {
	return domain.PaymentMethodStripe
}

type stripeChargeRequest struct {
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
	ReferenceID string `json:"reference_id"`
	ReturnURL   string `json:"return_url,omitempty"`
	Description string `json:"description,omitempty"`
}

type stripeChargeResponse struct {
	ID           string `json:"id"`
	CheckoutURL  string `json:"checkout_url"`
	ClientSecret string `json:"client_secret"`
}

// CreateCharge opens a checkout session and returns the external
// reference the payer completes.
func (a *StripeAdapter) CreateCharge(ctx context.Context, req ports.ChargeRequest) (*ports.ChargeResult, error) {
	body, err := json.Marshal(stripeChargeRequest{
		Amount:      req.Amount.String(),
		Currency:    req.Currency,
		ReferenceID: req.PaymentID.String(),
		ReturnURL:   req.ReturnURL,
		Description: req.Description,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal charge request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/checkout/sessions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build charge request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+a.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("stripe request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("stripe returned %d: %s", resp.StatusCode, raw)
	}

	var out stripeChargeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode charge response: %w", err)
	}
	if out.ID == "" {
		return nil, fmt.Errorf("stripe response missing session id")
	}

	a.log.Debug().Str("session_id", out.ID).Str("payment_id", req.PaymentID.String()).Msg("stripe charge created")

	return &ports.ChargeResult{
		TransactionID: out.ID,
		PaymentURL:    out.CheckoutURL,
		Metadata: map[string]any{
			"client_secret": out.ClientSecret,
		},
	}, nil
}
