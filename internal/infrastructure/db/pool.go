package db

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"income-screener/internal/config"
)

type PoolConfig struct {
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

// PoolConfigFrom copies the pool settings and repairs out-of-range values.
func PoolConfigFrom(cfg config.DatabaseConfig) PoolConfig {
	pc := PoolConfig{
		MaxConns:          cfg.MaxConns,
		MinConns:          cfg.MinConns,
		MaxConnLifetime:   cfg.MaxConnLifetime,
		MaxConnIdleTime:   cfg.MaxConnIdleTime,
		HealthCheckPeriod: cfg.HealthCheckPeriod,
	}
	if pc.MaxConns < 1 {
		pc.MaxConns = 1
	}
	if pc.MinConns < 0 {
		pc.MinConns = 0
	}
	if pc.MinConns > pc.MaxConns {
		pc.MinConns = pc.MaxConns
	}
	return pc
}

// withSSLMode sets sslmode unless the URL already carries one.
func withSSLMode(dbURL, mode string) string {
	if mode == "" {
		return dbURL
	}
	u, err := url.Parse(dbURL)
	if err != nil {
		// pgx will surface a better error
		return dbURL
	}
	q := u.Query()
	if q.Get("sslmode") == "" {
		q.Set("sslmode", mode)
		u.RawQuery = q.Encode()
	}
	return strings.TrimSpace(u.String())
}

func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(withSSLMode(cfg.URL, cfg.SSLMode))
	if err != nil {
		return nil, err
	}

	pc := PoolConfigFrom(cfg)
	poolCfg.MaxConns = pc.MaxConns
	poolCfg.MinConns = pc.MinConns
	poolCfg.MaxConnLifetime = pc.MaxConnLifetime
	poolCfg.MaxConnIdleTime = pc.MaxConnIdleTime
	poolCfg.HealthCheckPeriod = pc.HealthCheckPeriod

	return pgxpool.NewWithConfig(ctx, poolCfg)
}
