package indicators

// Average calculates the mean of a slice.
func Average(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range data {
		sum += v
	}
	return sum / float64(len(data))
}

// RecentMomentum compares the mean of the last n closes with the n before them,
// as a fraction of the earlier mean. ok is false below 2n closes.
func RecentMomentum(closes []float64, n int) (float64, bool) {
	if n <= 0 || len(closes) < 2*n {
		return 0, false
	}
	l := len(closes)
	recent := Average(closes[l-n:])
	prior := Average(closes[l-2*n : l-n])
	if prior == 0 {
		return 0, false
	}
	return (recent - prior) / prior, true
}

// DirectionCounts counts up and down day-over-day moves; flat days count as neither.
func DirectionCounts(closes []float64) (up, down int) {
	for i := 1; i < len(closes); i++ {
		switch {
		case closes[i] > closes[i-1]:
			up++
		case closes[i] < closes[i-1]:
			down++
		}
	}
	return up, down
}
