package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"marketplace-escrow/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// EscrowRepo implements ports.EscrowRepository. Terms and dispute are
// stored as JSONB.
type EscrowRepo struct {
	pool Pool
}

// NewEscrowRepo creates a new EscrowRepo.
func NewEscrowRepo(pool Pool) *EscrowRepo {
	return &EscrowRepo{pool: pool}
}

const escrowColumns = `id, payment_id, order_id, buyer_id, seller_id, amount, currency,
	status, terms, dispute, funded_at, auto_release_date, released_at,
	released_by, platform_commission, created_at, updated_at`

// Create inserts an escrow within a transaction.
func (r *EscrowRepo) Create(ctx context.Context, tx pgx.Tx, e *domain.Escrow) error {
	terms, dispute, err := marshalEscrowJSON(e)
	if err != nil {
		return err
	}

	query := `INSERT INTO escrows (` + escrowColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`

	_, err = tx.Exec(ctx, query,
		e.ID, e.PaymentID, e.OrderID, e.BuyerID, e.SellerID, e.Amount, e.Currency,
		e.Status, terms, dispute, e.FundedAt, e.AutoReleaseDate, e.ReleasedAt,
		e.ReleasedBy, e.PlatformCommission, e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert escrow: %w", err)
	}
	return nil
}

// GetByID fetches an escrow by UUID (non-locking read).
func (r *EscrowRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Escrow, error) {
	query := `SELECT ` + escrowColumns + ` FROM escrows WHERE id = $1`
	return scanEscrow(r.pool.QueryRow(ctx, query, id), "get escrow by id")
}

// GetByIDForUpdate fetches an escrow with pessimistic locking.
// This MUST be called within a transaction.
func (r *EscrowRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Escrow, error) {
	query := `SELECT ` + escrowColumns + ` FROM escrows WHERE id = $1 FOR UPDATE`
	return scanEscrow(tx.QueryRow(ctx, query, id), "get escrow for update")
}

// GetByPaymentID fetches the escrow paired with a payment.
func (r *EscrowRepo) GetByPaymentID(ctx context.Context, paymentID uuid.UUID) (*domain.Escrow, error) {
	query := `SELECT ` + escrowColumns + ` FROM escrows WHERE payment_id = $1`
	return scanEscrow(r.pool.QueryRow(ctx, query, paymentID), "get escrow by payment id")
}

func scanEscrow(row pgx.Row, op string) (*domain.Escrow, error) {
	e := &domain.Escrow{}
	var terms, dispute []byte
	err := row.Scan(
		&e.ID, &e.PaymentID, &e.OrderID, &e.BuyerID, &e.SellerID, &e.Amount, &e.Currency,
		&e.Status, &terms, &dispute, &e.FundedAt, &e.AutoReleaseDate, &e.ReleasedAt,
		&e.ReleasedBy, &e.PlatformCommission, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if len(terms) > 0 {
		if err := json.Unmarshal(terms, &e.Terms); err != nil {
			return nil, fmt.Errorf("%s: unmarshal terms: %w", op, err)
		}
	}
	if len(dispute) > 0 {
		e.Dispute = &domain.Dispute{}
		if err := json.Unmarshal(dispute, e.Dispute); err != nil {
			return nil, fmt.Errorf("%s: unmarshal dispute: %w", op, err)
		}
	}
	return e, nil
}

// Update saves a mutated escrow within a transaction.
func (r *EscrowRepo) Update(ctx context.Context, tx pgx.Tx, e *domain.Escrow) error {
	terms, dispute, err := marshalEscrowJSON(e)
	if err != nil {
		return err
	}

	query := `UPDATE escrows SET
		status = $1, terms = $2, dispute = $3, funded_at = $4,
		auto_release_date = $5, released_at = $6, released_by = $7,
		platform_commission = $8, updated_at = $9
		WHERE id = $10`

	tag, err := tx.Exec(ctx, query,
		e.Status, terms, dispute, e.FundedAt,
		e.AutoReleaseDate, e.ReleasedAt, e.ReleasedBy,
		e.PlatformCommission, e.UpdatedAt, e.ID,
	)
	if err != nil {
		return fmt.Errorf("update escrow: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("escrow not found: %s", e.ID)
	}
	return nil
}

func marshalEscrowJSON(e *domain.Escrow) (terms []byte, dispute []byte, err error) {
	terms, err = json.Marshal(e.Terms)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal escrow terms: %w", err)
	}
	if e.Dispute != nil {
		dispute, err = json.Marshal(e.Dispute)
		if err != nil {
			return nil, nil, fmt.Errorf("marshal escrow dispute: %w", err)
		}
	}
	return terms, dispute, nil
}

// AppendHistory inserts an audit row within a transaction.
func (r *EscrowRepo) AppendHistory(ctx context.Context, tx pgx.Tx, h *domain.EscrowHistoryEntry) error {
	query := `INSERT INTO escrow_history (id, escrow_id, action, performed_by, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := tx.Exec(ctx, query, h.ID, h.EscrowID, h.Action, h.PerformedBy, h.Details, h.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert escrow history: %w", err)
	}
	return nil
}

// ListHistory returns the audit trail oldest first.
func (r *EscrowRepo) ListHistory(ctx context.Context, escrowID uuid.UUID) ([]domain.EscrowHistoryEntry, error) {
	query := `SELECT id, escrow_id, action, performed_by, details, created_at
		FROM escrow_history WHERE escrow_id = $1 ORDER BY created_at`

	rows, err := r.pool.Query(ctx, query, escrowID)
	if err != nil {
		return nil, fmt.Errorf("list escrow history: %w", err)
	}
	defer rows.Close()

	var entries []domain.EscrowHistoryEntry
	for rows.Next() {
		var h domain.EscrowHistoryEntry
		if err := rows.Scan(&h.ID, &h.EscrowID, &h.Action, &h.PerformedBy, &h.Details, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan escrow history: %w", err)
		}
		entries = append(entries, h)
	}
	return entries, rows.Err()
}

// ListAutoReleaseDue returns funded escrows whose auto-release date has
// passed, oldest deadline first.
func (r *EscrowRepo) ListAutoReleaseDue(ctx context.Context, now time.Time, limit int) ([]domain.Escrow, error) {
	query := `SELECT ` + escrowColumns + ` FROM escrows
		WHERE status = $1 AND auto_release_date IS NOT NULL AND auto_release_date <= $2
		ORDER BY auto_release_date LIMIT $3`

	rows, err := r.pool.Query(ctx, query, domain.EscrowStatusFunded, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list auto-release due: %w", err)
	}
	defer rows.Close()

	var escrows []domain.Escrow
	for rows.Next() {
		e := domain.Escrow{}
		var terms, dispute []byte
		if err := rows.Scan(
			&e.ID, &e.PaymentID, &e.OrderID, &e.BuyerID, &e.SellerID, &e.Amount, &e.Currency,
			&e.Status, &terms, &dispute, &e.FundedAt, &e.AutoReleaseDate, &e.ReleasedAt,
			&e.ReleasedBy, &e.PlatformCommission, &e.CreatedAt, &e.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan escrow: %w", err)
		}
		if len(terms) > 0 {
			if err := json.Unmarshal(terms, &e.Terms); err != nil {
				return nil, fmt.Errorf("unmarshal terms: %w", err)
			}
		}
		if len(dispute) > 0 {
			e.Dispute = &domain.Dispute{}
			if err := json.Unmarshal(dispute, e.Dispute); err != nil {
				return nil, fmt.Errorf("unmarshal dispute: %w", err)
			}
		}
		escrows = append(escrows, e)
	}
	return escrows, rows.Err()
}
