package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"income-screener/internal/config"
	"income-screener/internal/domain"
	"income-screener/internal/infrastructure/claude"
	"income-screener/internal/infrastructure/db"
	"income-screener/internal/infrastructure/fcm"
	"income-screener/internal/infrastructure/logger"
	"income-screener/internal/infrastructure/metrics"
	"income-screener/internal/infrastructure/polygon"
	"income-screener/internal/infrastructure/telegram"
	"income-screener/internal/infrastructure/universe"
	"income-screener/internal/repository"
	"income-screener/internal/usecase"
)

// app holds the wired collaborators shared by every command.
type app struct {
	cfg *config.Config
	log *logger.Logger

	pool  *pgxpool.Pool
	redis *redis.Client

	picks     domain.PickRepository
	ivHistory domain.IVHistoryRepository
	latest    domain.LatestPicksStore
	tokens    *repository.TokenRepository
	metrics   *metrics.Recorder

	// set by pipeline
	push *fcm.Client
}

// newApp connects storage. Postgres and Redis are optional; without them the
// in-memory repository takes their place.
func newApp(ctx context.Context, cfg *config.Config, log *logger.Logger) (*app, error) {
	a := &app{
		cfg:     cfg,
		log:     log,
		tokens:  repository.NewTokenRepository(),
		metrics: metrics.NewRecorder(),
	}
	mem := repository.NewInMemoryPickRepository()
	a.picks, a.ivHistory, a.latest = mem, mem, mem

	if cfg.Database.URL != "" {
		pool, err := db.NewPool(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		a.pool = pool
		a.picks = repository.NewPostgresPickRepository(pool)
		a.ivHistory = repository.NewPostgresIVRepository(pool)
		log.Info("Using Postgres persistence")
	} else {
		log.Warn("DATABASE_URL not set, picks and IV history are kept in memory only")
	}

	if cfg.Redis.URL != "" {
		client, err := repository.NewRedisClient(ctx, cfg.Redis.URL)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		a.redis = client
		a.latest = repository.NewRedisLatestStore(client, cfg.Redis.Key, cfg.Redis.TTL)
		log.Info("Using Redis for the latest run snapshot")
	}
	return a, nil
}

func (a *app) migrate(ctx context.Context) error {
	if a.pool == nil {
		return nil
	}
	if err := db.Migrate(ctx, a.pool); err != nil {
		return err
	}
	a.log.Info("Database schema is up to date")
	return nil
}

// pipeline wires market data, alert channels and the rationale generator.
// latest overrides the snapshot store, e.g. to publish to websocket clients.
func (a *app) pipeline(ctx context.Context, latest domain.LatestPicksStore) (*usecase.Pipeline, error) {
	if latest == nil {
		latest = a.latest
	}
	deps := usecase.PipelineDeps{
		Market:    polygon.NewClient(a.cfg.Polygon, a.log.With("component", "polygon")),
		IVHistory: a.ivHistory,
		Picks:     a.picks,
		Latest:    latest,
		Observer:  a.metrics,
	}

	if path := a.cfg.Screener.UniverseFile; path != "" {
		file, err := universe.LoadFile(path)
		if err != nil {
			return nil, err
		}
		deps.Universe = file
		deps.Earnings = file
	} else {
		deps.Universe = universe.Static(a.cfg.Screener.Symbols)
	}

	tg, err := telegram.NewClient(a.cfg.Telegram, a.log)
	if err != nil {
		return nil, err
	}
	push, err := fcm.NewClient(ctx, a.cfg.Firebase, a.tokens, a.log.With("component", "fcm"))
	if err != nil {
		return nil, err
	}
	a.push = push
	rationale := claude.NewClient(a.cfg.Anthropic, a.log.With("component", "claude"))
	deps.Notifier = usecase.NewNotifier(a.cfg.Alerts, a.picks, rationale, a.log, tg, push)

	return usecase.NewPipeline(a.cfg, deps, a.log), nil
}

func (a *app) close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
}
