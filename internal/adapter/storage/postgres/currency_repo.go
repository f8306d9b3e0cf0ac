package postgres

import (
	"context"
	"errors"
	"fmt"

	"marketplace-escrow/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

// CurrencyRepo implements ports.CurrencyRepository.
type CurrencyRepo struct {
	pool Pool
}

// NewCurrencyRepo creates a new CurrencyRepo.
func NewCurrencyRepo(pool Pool) *CurrencyRepo {
	return &CurrencyRepo{pool: pool}
}

const currencyColumns = `code, name, exchange_rate, is_cryptocurrency, decimals, min_amount, max_amount, updated_at`

// Upsert inserts or replaces a currency row keyed by code.
func (r *CurrencyRepo) Upsert(ctx context.Context, c *domain.Currency) error {
	query := `INSERT INTO currencies (` + currencyColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (code) DO UPDATE SET
			name = EXCLUDED.name,
			exchange_rate = EXCLUDED.exchange_rate,
			is_cryptocurrency = EXCLUDED.is_cryptocurrency,
			decimals = EXCLUDED.decimals,
			min_amount = EXCLUDED.min_amount,
			max_amount = EXCLUDED.max_amount,
			updated_at = EXCLUDED.updated_at`

	_, err := r.pool.Exec(ctx, query,
		c.Code, c.Name, c.ExchangeRate, c.IsCryptocurrency,
		c.Decimals, c.MinAmount, c.MaxAmount, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert currency: %w", err)
	}
	return nil
}

// GetByCode fetches one currency.
func (r *CurrencyRepo) GetByCode(ctx context.Context, code string) (*domain.Currency, error) {
	query := `SELECT ` + currencyColumns + ` FROM currencies WHERE code = $1`

	c := &domain.Currency{}
	err := r.pool.QueryRow(ctx, query, code).Scan(
		&c.Code, &c.Name, &c.ExchangeRate, &c.IsCryptocurrency,
		&c.Decimals, &c.MinAmount, &c.MaxAmount, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get currency by code: %w", err)
	}
	return c, nil
}

// List returns the full rate table ordered by code.
func (r *CurrencyRepo) List(ctx context.Context) ([]domain.Currency, error) {
	query := `SELECT ` + currencyColumns + ` FROM currencies ORDER BY code`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list currencies: %w", err)
	}
	defer rows.Close()

	var currencies []domain.Currency
	for rows.Next() {
		var c domain.Currency
		if err := rows.Scan(
			&c.Code, &c.Name, &c.ExchangeRate, &c.IsCryptocurrency,
			&c.Decimals, &c.MinAmount, &c.MaxAmount, &c.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan currency: %w", err)
		}
		currencies = append(currencies, c)
	}
	return currencies, rows.Err()
}
