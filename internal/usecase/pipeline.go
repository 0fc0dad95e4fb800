package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"income-screener/internal/config"
	"income-screener/internal/domain"
	"income-screener/internal/infrastructure/logger"
)

// RunObserver receives run and per-symbol outcomes, typically for metrics.
type RunObserver interface {
	ObserveSymbol(strategy domain.Strategy, outcome string)
	ObserveFetchFailure(symbol string)
	ObserveRun(summary domain.RunSummary)
}

type nopObserver struct{}

func (nopObserver) ObserveSymbol(domain.Strategy, string) {}
func (nopObserver) ObserveFetchFailure(string) {}
func (nopObserver) ObserveRun(domain.RunSummary) {}

// PipelineDeps groups the collaborators of a Pipeline. Latest, Earnings,
// Notifier and Observer may be nil.
type PipelineDeps struct {
	Universe  domain.UniverseProvider
	Market    domain.MarketDataProvider
	Earnings  domain.EarningsCalendar
	IVHistory domain.IVHistoryRepository
	Picks     domain.PickRepository
	Latest    domain.LatestPicksStore
	Notifier  *Notifier
	Observer  RunObserver
}

// Pipeline is the daily run: load universe, fetch, sentiment filter, screen,
// persist and notify.
type Pipeline struct {
	deps       PipelineDeps
	cfg        config.ScreenerConfig
	technicals *TechnicalEngine
	aggregator *SentimentAggregator
	filter     *UniverseFilter
	screener   *Screener
	log        *logger.Logger
	now        func() time.Time
	sleep      func(ctx context.Context, d time.Duration) error
}

func NewPipeline(cfg *config.Config, deps PipelineDeps, log *logger.Logger) *Pipeline {
	if log == nil {
		log = logger.Nop()
	}
	if deps.Observer == nil {
		deps.Observer = nopObserver{}
	}
	return &Pipeline{
		deps:       deps,
		cfg:        cfg.Screener,
		technicals: NewTechnicalEngine(),
		aggregator: NewSentimentAggregator(),
		filter:     NewUniverseFilter(cfg.Filter, log),
		screener:   NewScreener(cfg, log),
		log:        log,
		now:        time.Now,
		sleep:      sleepCtx,
	}
}

type symbolResult struct {
	data domain.SymbolData
	iv   domain.IVMetrics
	err  error
}

// Run executes one pass for asof. Symbol failures are counted, not returned;
// the error is reserved for a run that cannot proceed at all.
func (p *Pipeline) Run(ctx context.Context, asof time.Time) (domain.RunSummary, error) {
	start := p.now()
	asof = domain.TruncateDay(asof)
	summary := domain.RunSummary{
		AsOf:        asof,
		StartedAt:   start,
		PicksByType: make(map[domain.Strategy]int),
	}
	log := p.log.With("asof", asof.Format(domain.DateLayout))
	log.Info("Starting screening run")

	symbols, err := p.deps.Universe.Symbols(ctx)
	if err != nil {
		return summary, fmt.Errorf("load universe: %w", err)
	}
	summary.Universe = len(symbols)
	if len(symbols) == 0 {
		return summary, errors.New("load universe: no symbols")
	}

	results := p.fetchAll(ctx, symbols, asof)

	var inputs []SentimentInput
	var scanLog []domain.ScanLogEntry
	fetched := make(map[string]symbolResult, len(results))
	for _, r := range results {
		if r.err != nil {
			summary.Failed++
			p.deps.Observer.ObserveFetchFailure(r.data.Symbol)
			scanLog = append(scanLog, domain.ScanLogEntry{
				Symbol: r.data.Symbol,
				AsOf:   asof,
				Reason: "fetch failed: " + r.err.Error(),
				Signal: domain.SignalNone,
			})
			continue
		}
		fetched[r.data.Symbol] = r
		inputs = append(inputs, SentimentInputFromChain(r.data.Symbol, asof, r.data.Chain, r.data.Bars))
	}

	sentiments := p.aggregator.AggregateUniverse(inputs)
	filtered := p.filter.Apply(sentiments)
	summary.Filter = filtered.Stats
	scanLog = append(filtered.Entries, scanLog...)

	bySymbol := make(map[string]domain.SentimentMetrics, len(sentiments))
	for _, m := range sentiments {
		bySymbol[m.Symbol] = m
	}
	summary.Skipped = len(fetched) - len(filtered.Selected)

	var picks []domain.Pick
	for _, sym := range filtered.Selected {
		r, ok := fetched[sym]
		if !ok {
			continue
		}
		summary.Screened++
		in := ScreenInput{
			Data:      r.data,
			Technical: p.technicals.Analyze(sym, r.data.Bars),
			IV:        r.iv,
			Sentiment: domain.SentimentFrom(bySymbol[sym]),
		}
		if in.Technical.Fallback {
			log.Warnw("Thin price history, skipping picks", "symbol", sym, "bars", in.Technical.Bars)
		}

		insufficient := false
		for _, out := range p.screener.Screen(in) {
			label := outcomeLabel(out.Err)
			p.deps.Observer.ObserveSymbol(out.Strategy, label)
			if out.Err != nil {
				if errors.Is(out.Err, domain.ErrInsufficientData) {
					insufficient = true
				}
				log.Debugw("No pick", "symbol", sym, "strategy", out.Strategy, "reason", out.Err)
				continue
			}
			picks = append(picks, *out.Pick)
			summary.PicksByType[out.Strategy]++
		}
		if insufficient {
			summary.Failed++
		} else {
			summary.Succeeded++
		}
	}

	SortPicks(picks)

	if err := p.persist(ctx, asof, picks, scanLog); err != nil {
		return p.finish(summary, start), err
	}

	if p.deps.Notifier != nil {
		res := p.deps.Notifier.Notify(ctx, summary, picks)
		summary.AlertsSent = res.Sent
		summary.AlertsFailed = res.Failed
		for i := range picks {
			if text, ok := res.Rationales[picks[i].ID]; ok {
				picks[i].Rationale = text
			}
		}
	}

	summary = p.finish(summary, start)
	if p.deps.Latest != nil {
		snap := domain.RunSnapshot{
			AsOf:        asof,
			GeneratedAt: p.now(),
			Summary:     summary,
			Picks:       picks,
			ScanLog:     scanLog,
		}
		if err := p.deps.Latest.SaveSnapshot(ctx, snap); err != nil {
			log.Warnw("Failed to cache latest snapshot", "error", err)
		}
	}

	p.deps.Observer.ObserveRun(summary)
	log.Infow("Screening run completed",
		"duration", summary.Duration,
		"universe", summary.Universe,
		"screened", summary.Screened,
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
		"picks", len(picks),
		"successful", summary.Successful,
	)
	return summary, nil
}

// finish stamps the duration and decides success as succeeded over attempted.
// Attempted symbols are the screened ones plus fetch failures; symbols the
// sentiment filter skipped are left out. A run that attempted nothing succeeds
// only if it had a universe, since then the filter declined every symbol.
func (p *Pipeline) finish(summary domain.RunSummary, start time.Time) domain.RunSummary {
	summary.Duration = p.now().Sub(start)
	attempted := summary.Succeeded + summary.Failed
	if attempted == 0 {
		summary.Successful = summary.Universe > 0
		return summary
	}
	ok := float64(summary.Succeeded) / float64(attempted)
	summary.Successful = ok >= p.cfg.MinSuccessRatio
	return summary
}

func (p *Pipeline) persist(ctx context.Context, asof time.Time, picks []domain.Pick, scanLog []domain.ScanLogEntry) error {
	if p.deps.Picks == nil {
		return nil
	}
	if err := p.deps.Picks.SavePicks(ctx, asof, picks); err != nil {
		return fmt.Errorf("save picks: %w", err)
	}
	if err := p.deps.Picks.SaveScanLog(ctx, asof, scanLog); err != nil {
		return fmt.Errorf("save scan log: %w", err)
	}
	return nil
}

// fetchAll fans out over the universe with bounded concurrency. The result
// slice is indexed like symbols, so goroutine order never leaks into output.
func (p *Pipeline) fetchAll(ctx context.Context, symbols []string, asof time.Time) []symbolResult {
	results := make([]symbolResult, len(symbols))
	var g errgroup.Group
	g.SetLimit(max(1, p.cfg.Concurrency))
	for i, sym := range symbols {
		g.Go(func() error {
			sctx, cancel := context.WithTimeout(ctx, p.cfg.SymbolTimeout)
			defer cancel()
			results[i] = p.fetchSymbol(sctx, sym, asof)
			if results[i].err != nil {
				p.log.Warnw("Symbol fetch failed", "symbol", sym, "error", results[i].err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (p *Pipeline) fetchSymbol(ctx context.Context, symbol string, asof time.Time) symbolResult {
	res := symbolResult{data: domain.SymbolData{Symbol: symbol, AsOf: asof}}
	from := asof.AddDate(0, 0, -p.cfg.HistoryDays)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return p.retry(gctx, "bars", func(ctx context.Context) error {
			bars, err := p.deps.Market.DailyBars(ctx, symbol, from, asof)
			res.data.Bars = bars
			return err
		})
	})
	g.Go(func() error {
		return p.retry(gctx, "chain", func(ctx context.Context) error {
			chain, err := p.deps.Market.OptionChain(ctx, symbol, asof)
			res.data.Chain = chain
			return err
		})
	})
	if err := g.Wait(); err != nil {
		res.err = err
		return res
	}
	if len(res.data.Bars) == 0 {
		res.err = fmt.Errorf("%w: no price bars", domain.ErrInsufficientData)
		return res
	}

	price := res.data.StockPrice()
	err := p.retry(ctx, "dividend", func(ctx context.Context) error {
		y, err := p.deps.Market.DividendYield(ctx, symbol, price)
		res.data.DividendYield = y
		return err
	})
	if err != nil {
		p.log.Debugw("Dividend yield unavailable", "symbol", symbol, "error", err)
		res.data.DividendYield = 0
	}
	if p.deps.Earnings != nil {
		res.data.Earnings = p.deps.Earnings.NextEarnings(symbol, asof)
	}

	current := ATMImpliedVolatility(res.data.Chain, price, atmDTETarget)
	var history []float64
	if p.deps.IVHistory != nil {
		history, err = p.deps.IVHistory.TrailingIV(ctx, symbol, asof, p.cfg.IVHistoryWindow)
		if err != nil {
			p.log.Warnw("IV history unavailable", "symbol", symbol, "error", err)
			history = nil
		}
		if err := p.deps.IVHistory.AppendIV(ctx, symbol, asof, current); err != nil {
			p.log.Warnw("Failed to record IV", "symbol", symbol, "error", err)
		}
	}
	res.iv = ComputeIVMetrics(symbol, asof, current, history)
	return res
}

// retry makes up to MaxRetries attempts with a fixed delay. Errors that report
// themselves as non-temporary are returned immediately.
func (p *Pipeline) retry(ctx context.Context, what string, fn func(ctx context.Context) error) error {
	attempts := max(1, p.cfg.MaxRetries)
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		var t interface{ Temporary() bool }
		if errors.As(err, &t) && !t.Temporary() {
			break
		}
		if ctx.Err() != nil || attempt == attempts {
			break
		}
		if serr := p.sleep(ctx, p.cfg.RetryDelay); serr != nil {
			break
		}
	}
	return fmt.Errorf("%s: %w", what, err)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
