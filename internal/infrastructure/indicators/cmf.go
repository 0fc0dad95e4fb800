package indicators

// ChaikinMoneyFlow over the last period bars. A bar with high == low contributes a
// zero multiplier. ok is false with fewer than period bars or zero total volume.
func ChaikinMoneyFlow(highs, lows, closes, volumes []float64, period int) (float64, bool) {
	n := len(closes)
	if period <= 0 || n < period || len(highs) < n || len(lows) < n || len(volumes) < n {
		return 0, false
	}

	sumMFV := 0.0
	sumVol := 0.0
	for i := n - period; i < n; i++ {
		sumMFV += MoneyFlowMultiplier(highs[i], lows[i], closes[i]) * volumes[i]
		sumVol += volumes[i]
	}
	if sumVol == 0 {
		return 0, false
	}
	return sumMFV / sumVol, true
}

// MoneyFlowMultiplier is ((c-l)-(h-c))/(h-l), or 0 for a zero-range bar.
func MoneyFlowMultiplier(high, low, close float64) float64 {
	rng := high - low
	if rng == 0 {
		return 0
	}
	return ((close - low) - (high - close)) / rng
}
