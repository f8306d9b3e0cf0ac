package postgres

import (
	"context"
	"errors"
	"fmt"

	"marketplace-escrow/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// PaymentRepo implements ports.PaymentRepository.
type PaymentRepo struct {
	pool Pool
}

// NewPaymentRepo creates a new PaymentRepo.
func NewPaymentRepo(pool Pool) *PaymentRepo {
	return &PaymentRepo{pool: pool}
}

const paymentColumns = `id, order_id, payer_id, payee_id, amount, currency,
	original_amount, original_currency, exchange_rate, method, status,
	provider_transaction_id, payment_url, provider_data, platform_fee,
	processing_fee, retry_count, failure_reason, paid_at, refunded_at,
	created_at, updated_at`

// Create inserts a payment within a transaction.
func (r *PaymentRepo) Create(ctx context.Context, tx pgx.Tx, p *domain.Payment) error {
	query := `INSERT INTO payments (` + paymentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)`

	_, err := tx.Exec(ctx, query,
		p.ID, p.OrderID, p.PayerID, p.PayeeID, p.Amount, p.Currency,
		p.OriginalAmount, p.OriginalCurrency, p.ExchangeRate, p.Method, p.Status,
		p.ProviderTransactionID, p.PaymentURL, p.ProviderData, p.PlatformFee,
		p.ProcessingFee, p.RetryCount, p.FailureReason, p.PaidAt, p.RefundedAt,
		p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

// GetByID fetches a payment by UUID (non-locking read).
func (r *PaymentRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`
	return scanPayment(r.pool.QueryRow(ctx, query, id), "get payment by id")
}

// GetByIDForUpdate fetches a payment with pessimistic locking.
// This MUST be called within a transaction.
func (r *PaymentRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1 FOR UPDATE`
	return scanPayment(tx.QueryRow(ctx, query, id), "get payment for update")
}

// GetByOrderID fetches the payment attached to an order.
func (r *PaymentRepo) GetByOrderID(ctx context.Context, orderID uuid.UUID) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE order_id = $1`
	return scanPayment(r.pool.QueryRow(ctx, query, orderID), "get payment by order id")
}

func scanPayment(row pgx.Row, op string) (*domain.Payment, error) {
	p := &domain.Payment{}
	err := row.Scan(
		&p.ID, &p.OrderID, &p.PayerID, &p.PayeeID, &p.Amount, &p.Currency,
		&p.OriginalAmount, &p.OriginalCurrency, &p.ExchangeRate, &p.Method, &p.Status,
		&p.ProviderTransactionID, &p.PaymentURL, &p.ProviderData, &p.PlatformFee,
		&p.ProcessingFee, &p.RetryCount, &p.FailureReason, &p.PaidAt, &p.RefundedAt,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return p, nil
}

// Update saves a mutated payment within a transaction.
func (r *PaymentRepo) Update(ctx context.Context, tx pgx.Tx, p *domain.Payment) error {
	query := `UPDATE payments SET
		status = $1, provider_transaction_id = $2, payment_url = $3,
		provider_data = $4, retry_count = $5, failure_reason = $6,
		paid_at = $7, refunded_at = $8, updated_at = $9
		WHERE id = $10`

	tag, err := tx.Exec(ctx, query,
		p.Status, p.ProviderTransactionID, p.PaymentURL,
		p.ProviderData, p.RetryCount, p.FailureReason,
		p.PaidAt, p.RefundedAt, p.UpdatedAt, p.ID,
	)
	if err != nil {
		return fmt.Errorf("update payment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("payment not found: %s", p.ID)
	}
	return nil
}
