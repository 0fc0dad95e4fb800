package repository

import (
	"context"
	"time"

	"income-screener/internal/domain"
)

// PostgresIVRepository keeps one ATM IV observation per symbol per day.
type PostgresIVRepository struct {
	pool pgxConn
}

func NewPostgresIVRepository(pool pgxConn) *PostgresIVRepository {
	return &PostgresIVRepository{pool: pool}
}

func (r *PostgresIVRepository) AppendIV(ctx context.Context, symbol string, asof time.Time, iv float64) error {
	_, err := r.pool.Exec(ctx, `
		insert into iv_history(symbol, asof, atm_iv) values ($1,$2,$3)
		on conflict (symbol, asof) do update set atm_iv = excluded.atm_iv
	`, symbol, asof, iv)
	return err
}

// TrailingIV returns up to limit observations before asof, oldest first.
func (r *PostgresIVRepository) TrailingIV(ctx context.Context, symbol string, asof time.Time, limit int) ([]float64, error) {
	if limit <= 0 {
		limit = 10000
	}
	rows, err := r.pool.Query(ctx, `
		select atm_iv from (
			select asof, atm_iv from iv_history
			where symbol = $1 and asof < $2
			order by asof desc
			limit $3
		) t order by asof asc
	`, symbol, asof, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []float64
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

var _ domain.IVHistoryRepository = (*PostgresIVRepository)(nil)
