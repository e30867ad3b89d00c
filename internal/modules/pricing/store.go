// README: Scrap rate store backed by PostgreSQL.
package pricing

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) GetRate(ctx context.Context, category string) (Rate, error) {
	var r Rate
	err := s.db.QueryRow(ctx, `
		SELECT category, min_per_kg, max_per_kg, currency
		FROM scrap_rates WHERE category = $1`, category,
	).Scan(&r.Category, &r.MinPerKg, &r.MaxPerKg, &r.Currency)
	if errors.Is(err, pgx.ErrNoRows) {
		return Rate{}, ErrUnknownCategory
	}
	return r, err
}

func (s *Store) ListRates(ctx context.Context) ([]Rate, error) {
	rows, err := s.db.Query(ctx, `
		SELECT category, min_per_kg, max_per_kg, currency
		FROM scrap_rates ORDER BY category`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Rate
	for rows.Next() {
		var r Rate
		if err := rows.Scan(&r.Category, &r.MinPerKg, &r.MaxPerKg, &r.Currency); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
