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

// PayPalAdapter implements ports.ProviderAdapter against the PayPal-style
// orders API.
type PayPalAdapter struct {
	client  HTTPClient
	baseURL string
	apiKey  string
	log     zerolog.Logger
}

// NewPayPalAdapter creates a new PayPalAdapter.
func NewPayPalAdapter(client HTTPClient, baseURL, apiKey string, log zerolog.Logger) *PayPalAdapter {
	return &PayPalAdapter{
		client:  client,
		baseURL: baseURL,
		apiKey:  apiKey,
		log:     log,
	}
}

// Method returns the payment method this adapter serves.
func (a *PayPalAdapter) Method() domain.PaymentMethod {
	return domain.PaymentMethodPayPal
}

type paypalOrderRequest struct {
	Value       string `json:"value"`
	Currency    string `json:"currency_code"`
	CustomID    string `json:"custom_id"`
	ReturnURL   string `json:"return_url,omitempty"`
	Description string `json:"description,omitempty"`
}

type paypalOrderResponse struct {
	OrderID    string `json:"order_id"`
	ApproveURL string `json:"approve_url"`
}

// CreateCharge creates an order and returns the approval link.
func (a *PayPalAdapter) CreateCharge(ctx context.Context, req ports.ChargeRequest) (*ports.ChargeResult, error) {
	body, err := json.Marshal(paypalOrderRequest{
		Value:       req.Amount.String(),
		Currency:    req.Currency,
		CustomID:    req.PaymentID.String(),
		ReturnURL:   req.ReturnURL,
		Description: req.Description,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal order request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v2/checkout/orders", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build order request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+a.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("paypal request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("paypal returned %d: %s", resp.StatusCode, raw)
	}

	var out paypalOrderResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode order response: %w", err)
	}
	if out.OrderID == "" {
		return nil, fmt.Errorf("paypal response missing order id")
	}

	a.log.Debug().Str("order_id", out.OrderID).Str("payment_id", req.PaymentID.String()).Msg("paypal order created")

	return &ports.ChargeResult{
		TransactionID: out.OrderID,
		PaymentURL:    out.ApproveURL,
	}, nil
}
