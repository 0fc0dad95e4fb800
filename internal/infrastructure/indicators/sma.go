package indicators

import "github.com/markcheno/go-talib"

// SMA returns the mean of the last period closes, or nil when fewer closes exist.
// A shorter window is never substituted.
func SMA(closes []float64, period int) *float64 {
	if period <= 0 || len(closes) < period {
		return nil
	}
	series := talib.Sma(closes, period)
	v := series[len(series)-1]
	return &v
}
