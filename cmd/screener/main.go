package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"income-screener/internal/config"
	httpdelivery "income-screener/internal/delivery/http"
	"income-screener/internal/delivery/websocket"
	"income-screener/internal/domain"
	"income-screener/internal/infrastructure/logger"
	"income-screener/internal/infrastructure/scheduler"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		cfg *config.Config
		log *logger.Logger
	)

	root := &cobra.Command{
		Use:          "screener",
		Short:        "Daily covered call and cash-secured put screener",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := config.Load()
			if err != nil {
				return err
			}
			if err := logger.Init(loaded.App.LogLevel, loaded.App.Env); err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			cfg, log = loaded, logger.Get()
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			logger.Sync()
		},
	}

	root.AddCommand(
		newServeCmd(&cfg, &log),
		newRunCmd(&cfg, &log),
		newMigrateCmd(&cfg, &log),
	)
	return root
}

func newServeCmd(cfg **config.Config, log **logger.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Migrate, start the daily schedule and serve the dashboard API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, *cfg, *log)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.migrate(ctx); err != nil {
		return err
	}

	hub := websocket.NewHandler(a.latest, websocket.DefaultInterval, log.With("component", "websocket"))
	pipeline, err := a.pipeline(ctx, websocket.PublishingStore{LatestPicksStore: a.latest, Hub: hub})
	if err != nil {
		return err
	}

	job := func(ctx context.Context, asof time.Time) error {
		summary, err := pipeline.Run(ctx, asof)
		if err != nil {
			return err
		}
		if !summary.Successful {
			return fmt.Errorf("run for %s was unsuccessful: %d of %d symbols failed",
				asof.Format(domain.DateLayout), summary.Failed, summary.Screened)
		}
		return nil
	}
	sched, err := scheduler.New(ctx, cfg.Screener.Schedule, cfg.Screener.MarketTZ, 2*time.Hour, job, log.With("component", "scheduler"))
	if err != nil {
		return err
	}
	sched.Start()
	defer sched.Stop()
	log.Infow("Next scheduled run", "at", sched.Next())

	srv := &http.Server{
		Addr: cfg.Server.Addr,
		Handler: httpdelivery.NewRouter(httpdelivery.RouterDeps{
			Picks:   httpdelivery.NewPicksHandler(a.latest, a.picks, log),
			Tokens:  httpdelivery.NewTokenHandler(a.tokens),
			Test:    httpdelivery.NewTestHandler(a.push, a.tokens),
			Latest:  a.latest,
			WS:      hub,
			Metrics: a.metrics.Handler(),
			Log:     log,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("Server listening on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newRunCmd(cfg **config.Config, log **logger.Logger) *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one screening pass and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, l := *cfg, *log
			asof, err := runDate(date, c.Screener.MarketTZ, time.Now())
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, c, l)
			if err != nil {
				return err
			}
			defer a.close()
			if err := a.migrate(ctx); err != nil {
				return err
			}

			pipeline, err := a.pipeline(ctx, nil)
			if err != nil {
				return err
			}
			summary, err := pipeline.Run(ctx, asof)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d/%d symbols ok, %d CC, %d CSP picks, %d alerts sent\n",
				asof.Format(domain.DateLayout), summary.Succeeded, summary.Screened,
				summary.PicksByType[domain.StrategyCoveredCall], summary.PicksByType[domain.StrategyCashSecuredPut],
				summary.AlertsSent)
			if !summary.Successful {
				return errors.New("run was unsuccessful")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "market date to screen (YYYY-MM-DD), defaults to today in MARKET_TIMEZONE")
	return cmd
}

// runDate parses --date in the market timezone, or takes today's date there.
func runDate(value, tz string, now time.Time) (time.Time, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.Time{}, err
	}
	if value == "" {
		return scheduler.MarketDate(now, loc), nil
	}
	t, err := time.ParseInLocation(domain.DateLayout, value, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --date %q: %w", value, err)
	}
	return t, nil
}

func newMigrateCmd(cfg **config.Config, log **logger.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the Postgres schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := *cfg
			if c.Database.URL == "" {
				return errors.New("DATABASE_URL is required")
			}
			a, err := newApp(cmd.Context(), c, *log)
			if err != nil {
				return err
			}
			defer a.close()
			return a.migrate(cmd.Context())
		},
	}
}
