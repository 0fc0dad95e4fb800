package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"income-screener/internal/domain"
)

// pgxConn is the subset of *pgxpool.Pool the repositories use.
type pgxConn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresPickRepository stores picks, the scan log, rationales and alert
// records. Prices go through decimal so numeric columns round-trip exactly.
type PostgresPickRepository struct {
	pool pgxConn
}

func NewPostgresPickRepository(pool pgxConn) *PostgresPickRepository {
	return &PostgresPickRepository{pool: pool}
}

var pickColumnList = []string{
	"id", "asof", "symbol", "strategy", "strike", "expiry", "dte", "premium", "stock_price",
	"bid", "ask", "spread_pct", "delta", "iv", "open_interest", "volume",
	"roi_period", "roi_30d", "annualized_return", "moneyness", "margin_of_safety",
	"iv_rank", "iv_percentile", "hv20", "hv60", "trend_strength", "trend_stability",
	"below_200sma", "in_uptrend", "support_level", "score", "signal",
	"put_call_ratio", "cmf20", "dividend_yield", "earnings_days_until", "notes", "breakdown",
}

var insertPickSQL = fmt.Sprintf("insert into picks(%s) values (%s)",
	strings.Join(pickColumnList, ", "), placeholders(len(pickColumnList)))

// SavePicks replaces the picks for asof in one transaction.
func (r *PostgresPickRepository) SavePicks(ctx context.Context, asof time.Time, picks []domain.Pick) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `delete from picks where asof = $1`, asof); err != nil {
			return err
		}
		batch := &pgx.Batch{}
		for _, p := range picks {
			args, err := pickArgs(p)
			if err != nil {
				return err
			}
			batch.Queue(insertPickSQL, args...)
		}
		return execBatch(ctx, tx, batch)
	})
}

func (r *PostgresPickRepository) SaveScanLog(ctx context.Context, asof time.Time, entries []domain.ScanLogEntry) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `delete from scan_log where asof = $1`, asof); err != nil {
			return err
		}
		batch := &pgx.Batch{}
		for _, e := range entries {
			batch.Queue(`
				insert into scan_log(asof, symbol, passed, reason, signal, score, put_call_ratio, cmf20, data_quality)
				values ($1,$2,$3,$4,$5,$6,$7,$8,$9)
				on conflict (asof, symbol) do update set
					passed = excluded.passed, reason = excluded.reason, signal = excluded.signal,
					score = excluded.score, put_call_ratio = excluded.put_call_ratio,
					cmf20 = excluded.cmf20, data_quality = excluded.data_quality
			`, asof, e.Symbol, e.Passed, e.Reason, string(e.Signal), e.Score,
				nullableFloat(e.PutCallRatio), nullableFloat(e.CMF20), string(e.DataQuality))
		}
		return execBatch(ctx, tx, batch)
	})
}

func (r *PostgresPickRepository) SaveRationale(ctx context.Context, pickID, summary string) error {
	_, err := r.pool.Exec(ctx, `
		insert into rationales(pick_id, summary) values ($1,$2)
		on conflict (pick_id) do update set summary = excluded.summary, created_at = now()
	`, pickID, summary)
	return err
}

func (r *PostgresPickRepository) RecordAlert(ctx context.Context, rec domain.AlertRecord) error {
	_, err := r.pool.Exec(ctx, `
		insert into alerts(pick_id, channel, status, error, sent_at) values ($1,$2,$3,$4,$5)
	`, rec.PickID, rec.Channel, rec.Status, rec.Error, rec.SentAt)
	return err
}

// PicksForDate returns the picks by score with their rationale. An empty
// strategy matches both.
func (r *PostgresPickRepository) PicksForDate(ctx context.Context, asof time.Time, strategy domain.Strategy) ([]domain.Pick, error) {
	rows, err := r.pool.Query(ctx, `
		select `+prefixed("p.", pickColumnList)+`, coalesce(r.summary, '')
		from picks p
		left join rationales r on r.pick_id = p.id
		where p.asof = $1 and ($2 = '' or p.strategy = $2)
		order by p.score desc, p.symbol, p.strategy
	`, asof, string(strategy))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	picks := make([]domain.Pick, 0)
	for rows.Next() {
		p, err := scanPick(rows)
		if err != nil {
			return nil, err
		}
		picks = append(picks, p)
	}
	return picks, rows.Err()
}

func (r *PostgresPickRepository) ScanLogForDate(ctx context.Context, asof time.Time) ([]domain.ScanLogEntry, error) {
	rows, err := r.pool.Query(ctx, `
		select asof, symbol, passed, reason, signal, score, put_call_ratio, cmf20, data_quality
		from scan_log where asof = $1 order by passed desc, symbol
	`, asof)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.ScanLogEntry, 0)
	for rows.Next() {
		var e domain.ScanLogEntry
		var signal, quality string
		var pcr, cmf pgtype.Float8
		if err := rows.Scan(&e.AsOf, &e.Symbol, &e.Passed, &e.Reason, &signal, &e.Score, &pcr, &cmf, &quality); err != nil {
			return nil, err
		}
		e.Signal = domain.Signal(signal)
		e.DataQuality = domain.DataQuality(quality)
		e.PutCallRatio = floatPtr(pcr)
		e.CMF20 = floatPtr(cmf)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *PostgresPickRepository) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func execBatch(ctx context.Context, tx pgx.Tx, batch *pgx.Batch) error {
	if batch.Len() == 0 {
		return nil
	}
	br := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("batch statement %d: %w", i, err)
		}
	}
	return br.Close()
}

func pickArgs(p domain.Pick) ([]any, error) {
	breakdown, err := json.Marshal(p.Breakdown)
	if err != nil {
		return nil, fmt.Errorf("encode breakdown: %w", err)
	}
	var support any = pgtype.Numeric{}
	if p.SupportLevel != nil {
		support = money(*p.SupportLevel, 4)
	}
	var earnings any = pgtype.Int4{}
	if p.EarningsDaysUntil != nil {
		earnings = pgtype.Int4{Int32: int32(*p.EarningsDaysUntil), Valid: true}
	}
	return []any{
		p.ID, p.AsOf, p.Symbol, string(p.Strategy), money(p.Strike, 2), p.Expiry, p.DTE,
		money(p.Premium, 4), money(p.StockPrice, 4), money(p.Bid, 4), money(p.Ask, 4),
		p.SpreadPct, p.Delta, p.IV, p.OpenInterest, p.Volume,
		p.ROIPeriod, p.ROI30d, p.AnnualizedReturn, p.Moneyness, p.MarginOfSafety,
		p.IVRank, p.IVPercentile, p.HV20, p.HV60, p.TrendStrength, p.TrendStability,
		p.Below200SMA, p.InUptrend, support, p.Score, string(p.Signal),
		nullableFloat(p.PutCallRatio), nullableFloat(p.CMF20), p.DividendYield, earnings, p.Notes, breakdown,
	}, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPick(s scanner) (domain.Pick, error) {
	var p domain.Pick
	var strategy, signal string
	var strike, premium, stock, bid, ask decimal.Decimal
	var support decimal.NullDecimal
	var pcr, cmf pgtype.Float8
	var earnings pgtype.Int4
	var breakdown []byte

	if err := s.Scan(
		&p.ID, &p.AsOf, &p.Symbol, &strategy, &strike, &p.Expiry, &p.DTE, &premium, &stock,
		&bid, &ask, &p.SpreadPct, &p.Delta, &p.IV, &p.OpenInterest, &p.Volume,
		&p.ROIPeriod, &p.ROI30d, &p.AnnualizedReturn, &p.Moneyness, &p.MarginOfSafety,
		&p.IVRank, &p.IVPercentile, &p.HV20, &p.HV60, &p.TrendStrength, &p.TrendStability,
		&p.Below200SMA, &p.InUptrend, &support, &p.Score, &signal,
		&pcr, &cmf, &p.DividendYield, &earnings, &p.Notes, &breakdown,
		&p.Rationale,
	); err != nil {
		return domain.Pick{}, err
	}

	p.Strategy = domain.Strategy(strategy)
	p.Signal = domain.Signal(signal)
	p.Strike = strike.InexactFloat64()
	p.Premium = premium.InexactFloat64()
	p.StockPrice = stock.InexactFloat64()
	p.Bid = bid.InexactFloat64()
	p.Ask = ask.InexactFloat64()
	if support.Valid {
		v := support.Decimal.InexactFloat64()
		p.SupportLevel = &v
	}
	p.PutCallRatio = floatPtr(pcr)
	p.CMF20 = floatPtr(cmf)
	if earnings.Valid {
		v := int(earnings.Int32)
		p.EarningsDaysUntil = &v
	}
	if len(breakdown) > 0 {
		if err := json.Unmarshal(breakdown, &p.Breakdown); err != nil {
			return domain.Pick{}, fmt.Errorf("decode breakdown for %s: %w", p.ID, err)
		}
	}
	return p, nil
}

// money rounds to the column scale before the value reaches Postgres.
func money(v float64, places int32) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(places)
}

func prefixed(prefix string, columns []string) string {
	out := make([]string, len(columns))
	for i, c := range columns {
		out[i] = prefix + c
	}
	return strings.Join(out, ", ")
}

func placeholders(n int) string {
	out := make([]string, n)
	for i := range out {
		out[i] = "$" + strconv.Itoa(i+1)
	}
	return strings.Join(out, ",")
}

func nullableFloat(v *float64) any {
	if v == nil {
		return pgtype.Float8{Valid: false}
	}
	return pgtype.Float8{Valid: true, Float64: *v}
}

func floatPtr(v pgtype.Float8) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

var _ domain.PickRepository = (*PostgresPickRepository)(nil)
