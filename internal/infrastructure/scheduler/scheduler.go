package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"income-screener/internal/domain"
	"income-screener/internal/infrastructure/logger"
)

// Job runs one screening pass for the given market date.
type Job func(ctx context.Context, asof time.Time) error

// Runner triggers a Job on a cron schedule evaluated in the market timezone.
// A run that is still in progress when the next tick fires causes that tick to be skipped.
type Runner struct {
	cron    *cron.Cron
	loc     *time.Location
	log     *logger.Logger
	baseCtx context.Context
	timeout time.Duration
}

// New builds a Runner. schedule has six fields, seconds first.
func New(baseCtx context.Context, schedule, tz string, timeout time.Duration, job Job, log *logger.Logger) (*Runner, error) {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("load market timezone: %w", err)
	}
	cl := cronLogger{log: log}
	r := &Runner{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		loc:     loc,
		log:     log,
		baseCtx: baseCtx,
		timeout: timeout,
	}
	if _, err := r.cron.AddFunc(schedule, func() { r.fire(job) }); err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", schedule, err)
	}
	return r, nil
}

func (r *Runner) fire(job Job) {
	ctx := r.baseCtx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	asof := MarketDate(time.Now(), r.loc)
	r.log.Infow("Scheduled run starting", "asof", asof.Format(domain.DateLayout))
	if err := job(ctx, asof); err != nil {
		r.log.Errorw("Scheduled run failed", "asof", asof.Format(domain.DateLayout), "error", err)
	}
}

// Next is the next scheduled fire time, or zero before Start.
func (r *Runner) Next() time.Time {
	entries := r.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

func (r *Runner) Start() {
	r.log.Info("Scheduler started")
	r.cron.Start()
}

// Stop waits for a running job to return.
func (r *Runner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	r.log.Info("Scheduler stopped")
}

// MarketDate is the calendar date of t in loc, at midnight.
func MarketDate(t time.Time, loc *time.Location) time.Time {
	return domain.TruncateDay(t.In(loc))
}

// cronLogger routes cron's internal logging to zap.
type cronLogger struct {
	log *logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugw("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Errorw("cron: "+msg, append(keysAndValues, "error", err)...)
}
