package domain

import (
	"context"
	"time"
)

// MarketDataProvider supplies end-of-day inputs for one symbol.
type MarketDataProvider interface {
	DailyBars(ctx context.Context, symbol string, from, to time.Time) ([]PriceBar, error)
	OptionChain(ctx context.Context, symbol string, asof time.Time) ([]OptionContract, error)
	DividendYield(ctx context.Context, symbol string, price float64) (float64, error)
}

// EarningsCalendar returns the next known earnings date, or nil.
type EarningsCalendar interface {
	NextEarnings(symbol string, asof time.Time) *time.Time
}

// AlertSender delivers picks to one channel.
type AlertSender interface {
	Name() string
	Enabled() bool
	SendDigest(ctx context.Context, summary RunSummary, picks []Pick) error
	SendPick(ctx context.Context, pick Pick) error
}

// RationaleGenerator produces a short plain-English explanation of a pick.
type RationaleGenerator interface {
	Rationale(ctx context.Context, pick Pick) (string, error)
}

// SymbolData is everything fetched for one symbol before screening.
type SymbolData struct {
	Symbol        string
	AsOf          time.Time
	Bars          []PriceBar
	Chain         []OptionContract
	DividendYield float64
	Earnings      *time.Time
}

// StockPrice is the last close, or 0 when there are no bars.
func (d SymbolData) StockPrice() float64 {
	if len(d.Bars) == 0 {
		return 0
	}
	return d.Bars[len(d.Bars)-1].Close
}

// EarningsDaysUntil is nil when no earnings date is known.
func (d SymbolData) EarningsDaysUntil() *int {
	if d.Earnings == nil {
		return nil
	}
	n := DaysBetween(d.AsOf, *d.Earnings)
	return &n
}

// UniverseProvider lists the symbols to screen on a given run.
type UniverseProvider interface {
	Symbols(ctx context.Context) ([]string, error)
}
