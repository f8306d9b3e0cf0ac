package provider

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"marketplace-escrow/internal/core/domain"
	"marketplace-escrow/internal/core/ports"

	"github.com/rs/zerolog"
)

// CryptoAdapter implements ports.ProviderAdapter for on-chain payments.
// It issues a deposit address locally; the chain watcher confirms the
// transfer through the regular confirmation webhook.
type CryptoAdapter struct {
	log zerolog.Logger
}

// NewCryptoAdapter creates a new CryptoAdapter.
func NewCryptoAdapter(log zerolog.Logger) *CryptoAdapter {
	return &CryptoAdapter{log: log}
}

// Method returns the payment method this adapter serves.
func (a *CryptoAdapter) Method() domain.PaymentMethod {
	return domain.PaymentMethodCrypto
}

// CreateCharge allocates a one-time deposit address for the payment.
func (a *CryptoAdapter) CreateCharge(_ context.Context, req ports.ChargeRequest) (*ports.ChargeResult, error) {
	buf := make([]byte, 20)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("generate deposit address: %w", err)
	}
	address := "0x" + hex.EncodeToString(buf)
	txID := "crypto_" + req.PaymentID.String()

	a.log.Debug().
		Str("payment_id", req.PaymentID.String()).
		Str("address", address).
		Msg("crypto deposit address issued")

	return &ports.ChargeResult{
		TransactionID: txID,
		Metadata: map[string]any{
			"deposit_address": address,
			"expected_amount": req.Amount.String(),
			"currency":        req.Currency,
		},
	}, nil
}
