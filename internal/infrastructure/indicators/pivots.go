package indicators

type Pivot struct {
	Index int
	Price float64
}

// FindPivotLows returns bars whose low is strictly below the leftBars lows before
// and the rightBars lows after it.
func FindPivotLows(lows []float64, leftBars, rightBars int) []Pivot {
	var pivots []Pivot
	length := len(lows)

	for i := leftBars; i < length-rightBars; i++ {
		currentLow := lows[i]
		isPivot := true

		for j := 1; j <= leftBars; j++ {
			if lows[i-j] <= currentLow {
				isPivot = false
				break
			}
		}

		if isPivot {
			for j := 1; j <= rightBars; j++ {
				if lows[i+j] <= currentLow {
					isPivot = false
					break
				}
			}
		}

		if isPivot {
			pivots = append(pivots, Pivot{Index: i, Price: currentLow})
		}
	}

	return pivots
}

// NearestSupport walks pivots from the most recent backwards and returns the
// first one priced below close.
func NearestSupport(pivots []Pivot, close float64) *Pivot {
	for i := len(pivots) - 1; i >= 0; i-- {
		if pivots[i].Price < close {
			p := pivots[i]
			return &p
		}
	}
	return nil
}

// IsNearLevel reports whether price sits strictly within pct (fractional) of level.
func IsNearLevel(price, level, pct float64) bool {
	if level <= 0 {
		return false
	}
	diff := (price - level) / level
	if diff < 0 {
		diff = -diff
	}
	return diff < pct
}
