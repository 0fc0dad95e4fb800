package indicators

import "math"

// TrueRanges returns one value per bar from index 1 on; bar 0 has no previous close.
func TrueRanges(highs, lows, closes []float64) []float64 {
	n := len(closes)
	if n < 2 || len(highs) < n || len(lows) < n {
		return nil
	}

	trs := make([]float64, 0, n-1)
	for i := 1; i < n; i++ {
		hl := highs[i] - lows[i]
		hc := math.Abs(highs[i] - closes[i-1])
		lc := math.Abs(lows[i] - closes[i-1])

		maxVal := hl
		if hc > maxVal {
			maxVal = hc
		}
		if lc > maxVal {
			maxVal = lc
		}
		trs = append(trs, maxVal)
	}
	return trs
}

// ATR is the simple mean of the last period true ranges. With a shorter history
// it averages whatever ranges exist, and a single bar uses its high-low range.
func ATR(highs, lows, closes []float64, period int) float64 {
	if len(closes) == 0 || len(highs) == 0 || len(lows) == 0 {
		return 0
	}
	trs := TrueRanges(highs, lows, closes)
	if len(trs) == 0 {
		return highs[len(highs)-1] - lows[len(lows)-1]
	}
	if len(trs) > period {
		trs = trs[len(trs)-period:]
	}
	return Average(trs)
}
