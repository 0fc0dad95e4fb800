package indicators

import (
	"math"

	"github.com/markcheno/go-talib"
)

const TradingDaysPerYear = 252

// StdDev is the population standard deviation.
func StdDev(values []float64) float64 {
	n := len(values)
	if n < 2 {
		return 0
	}
	out := talib.StdDev(values, n, 1)
	v := out[n-1]
	if math.IsNaN(v) {
		return 0
	}
	return v
}

// CoefficientOfVariation is stdev/mean, 0 for an empty or zero-mean series.
func CoefficientOfVariation(values []float64) float64 {
	mean := Average(values)
	if mean == 0 {
		return 0
	}
	return StdDev(values) / mean
}

// SimpleReturns maps n closes to n-1 day-over-day returns. Zero prior closes are skipped.
func SimpleReturns(closes []float64) []float64 {
	if len(closes) < 2 {
		return nil
	}
	out := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] == 0 {
			continue
		}
		out = append(out, (closes[i]-closes[i-1])/closes[i-1])
	}
	return out
}

// HistoricalVolatility annualises the stdev of the last window simple returns.
// It returns 0 when fewer than window+1 closes exist.
func HistoricalVolatility(closes []float64, window int) float64 {
	if window <= 0 || len(closes) < window+1 {
		return 0
	}
	returns := SimpleReturns(closes[len(closes)-window-1:])
	return StdDev(returns) * math.Sqrt(TradingDaysPerYear)
}
