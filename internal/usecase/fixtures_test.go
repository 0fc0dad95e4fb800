package usecase

import (
	"time"

	"income-screener/internal/config"
	"income-screener/internal/domain"
)

var testAsOf = time.Date(2024, 6, 14, 0, 0, 0, 0, time.UTC)

// trendingBars returns n daily bars ending at testAsOf whose close moves by step per bar.
func trendingBars(symbol string, n int, start, step float64) []domain.PriceBar {
	bars := make([]domain.PriceBar, n)
	for i := 0; i < n; i++ {
		c := start + step*float64(i)
		bars[i] = domain.PriceBar{
			Symbol: symbol,
			Date:   testAsOf.AddDate(0, 0, i-n+1),
			Open:   c,
			High:   c + 1,
			Low:    c - 1,
			Close:  c,
			Volume: 1_000_000,
		}
	}
	return bars
}

func call(strike, delta, bid, ask float64, dte int) domain.OptionContract {
	return domain.OptionContract{
		Symbol:            "TEST",
		Side:              domain.SideCall,
		Strike:            strike,
		Delta:             delta,
		Bid:               bid,
		Ask:               ask,
		DTE:               dte,
		Expiry:            testAsOf.AddDate(0, 0, dte),
		OpenInterest:      1000,
		Volume:            100,
		ImpliedVolatility: 0.30,
		Theta:             -0.08,
		Gamma:             0.002,
		Vega:              0.15,
	}
}

func put(strike, delta, bid, ask float64, dte int) domain.OptionContract {
	c := call(strike, delta, bid, ask, dte)
	c.Side = domain.SidePut
	return c
}

func testConfig() *config.Config {
	return &config.Config{
		Screener: config.ScreenerConfig{
			Symbols:         []string{"AAA", "BBB", "CCC"},
			CCEnabled:       true,
			CSPEnabled:      true,
			Concurrency:     2,
			SymbolTimeout:   5 * time.Second,
			MaxRetries:      3,
			RetryDelay:      time.Millisecond,
			HistoryDays:     400,
			IVHistoryWindow: 252,
			MinSuccessRatio: 0.5,
		},
		Selector: config.DefaultSelector(),
		Gates:    config.DefaultGates(),
		Scoring:  config.DefaultScoring(),
		Filter:   config.DefaultFilter(),
		Alerts:   config.DefaultAlerts(),
	}
}

func ptr[T any](v T) *T {
	return &v
}
