package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema is applied in order on every start; each statement is idempotent.
var schema = []string{
	`create table if not exists picks (
		id text primary key,
		asof date not null,
		symbol text not null,
		strategy text not null,
		strike numeric(12,2) not null,
		expiry date not null,
		dte int not null,
		premium numeric(12,4) not null,
		stock_price numeric(12,4) not null,
		bid numeric(12,4) not null,
		ask numeric(12,4) not null,
		spread_pct double precision not null,
		delta double precision not null,
		iv double precision not null,
		open_interest double precision not null default 0,
		volume double precision not null default 0,
		roi_period double precision not null,
		roi_30d double precision not null,
		annualized_return double precision not null,
		moneyness double precision not null default 0,
		margin_of_safety double precision not null default 0,
		iv_rank double precision not null,
		iv_percentile double precision not null,
		hv20 double precision not null default 0,
		hv60 double precision not null default 0,
		trend_strength double precision not null default 0,
		trend_stability double precision not null default 0,
		below_200sma boolean not null default false,
		in_uptrend boolean not null default false,
		support_level numeric(12,4) null,
		score double precision not null,
		signal text not null default 'none',
		put_call_ratio double precision null,
		cmf20 double precision null,
		dividend_yield double precision not null default 0,
		earnings_days_until int null,
		notes text not null default '',
		breakdown jsonb not null default '{}'::jsonb,
		created_at timestamptz not null default now()
	);`,
	`create index if not exists picks_asof_strategy_score_idx on picks(asof, strategy, score desc);`,
	`create table if not exists scan_log (
		asof date not null,
		symbol text not null,
		passed boolean not null,
		reason text not null,
		signal text not null default 'none',
		score double precision not null default 0,
		put_call_ratio double precision null,
		cmf20 double precision null,
		data_quality text not null default '',
		primary key (asof, symbol)
	);`,
	`create table if not exists rationales (
		pick_id text primary key references picks(id) on delete cascade,
		summary text not null,
		created_at timestamptz not null default now()
	);`,
	`create table if not exists alerts (
		id bigserial primary key,
		pick_id text not null,
		channel text not null,
		status text not null,
		error text not null default '',
		sent_at timestamptz not null
	);`,
	`create index if not exists alerts_pick_id_idx on alerts(pick_id);`,
	`create table if not exists iv_history (
		symbol text not null,
		asof date not null,
		atm_iv double precision not null,
		primary key (symbol, asof)
	);`,
}

// Migrate creates the tables the screener writes to. There is no external
// migration tool; the schema only ever grows with "if not exists" statements.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for i, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}
