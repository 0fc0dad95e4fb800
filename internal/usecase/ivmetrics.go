package usecase

import (
	"math"
	"time"

	"income-screener/internal/domain"
)

const (
	neutralIVRank   = 50.0
	defaultIV       = 0.25
	atmDTETarget    = 30
	atmDTETolerance = 7
	atmStrikeBand   = 0.02
)

// IVRank places current between the min and max of history on a 0..100 scale.
// A flat or too-short history returns 50.
func IVRank(current float64, history []float64) float64 {
	if len(history) < 2 {
		return neutralIVRank
	}
	lo, hi := history[0], history[0]
	for _, v := range history[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if hi == lo {
		return neutralIVRank
	}
	return clamp((current-lo)/(hi-lo)*100, 0, 100)
}

// IVPercentile is the share of history strictly below current, 0..100.
func IVPercentile(current float64, history []float64) float64 {
	if len(history) == 0 {
		return neutralIVRank
	}
	below := 0
	for _, v := range history {
		if v < current {
			below++
		}
	}
	return clamp(float64(below)/float64(len(history))*100, 0, 100)
}

// ComputeIVMetrics scores today's IV against a trailing series (oldest first).
func ComputeIVMetrics(symbol string, asof time.Time, current float64, history []float64) domain.IVMetrics {
	return domain.IVMetrics{
		Symbol:       symbol,
		AsOf:         asof,
		CurrentIV:    current,
		IVRank:       IVRank(current, history),
		IVPercentile: IVPercentile(current, history),
		HistoryLen:   len(history),
	}
}

// ATMImpliedVolatility estimates today's at-the-money IV from a chain. Contracts
// within 7 DTE of targetDTE and 2% of spot are weighted by volume+OI per side and
// the call and put figures averaged. It falls back to the mean chain IV, then 0.25.
func ATMImpliedVolatility(chain []domain.OptionContract, spot float64, targetDTE int) float64 {
	priced := make([]domain.OptionContract, 0, len(chain))
	for _, c := range chain {
		if c.ImpliedVolatility > 0 {
			priced = append(priced, c)
		}
	}
	if len(priced) == 0 {
		return defaultIV
	}
	if spot <= 0 {
		return meanIV(priced)
	}

	near := make([]domain.OptionContract, 0, len(priced))
	for _, c := range priced {
		if abs(c.DTE-targetDTE) <= atmDTETolerance {
			near = append(near, c)
		}
	}
	if len(near) == 0 {
		near = priced
	}

	atm := make([]domain.OptionContract, 0, len(near))
	for _, c := range near {
		if math.Abs(c.Strike-spot)/spot <= atmStrikeBand {
			atm = append(atm, c)
		}
	}
	if len(atm) == 0 {
		closest := near[0]
		for _, c := range near[1:] {
			if math.Abs(c.Strike-spot) < math.Abs(closest.Strike-spot) {
				closest = c
			}
		}
		atm = []domain.OptionContract{closest}
	}

	var sides []float64
	for _, side := range []domain.OptionSide{domain.SideCall, domain.SidePut} {
		if iv, ok := weightedSideIV(atm, side); ok {
			sides = append(sides, iv)
		}
	}
	if len(sides) == 0 {
		return meanIV(priced)
	}
	sum := 0.0
	for _, v := range sides {
		sum += v
	}
	return sum / float64(len(sides))
}

func weightedSideIV(contracts []domain.OptionContract, side domain.OptionSide) (float64, bool) {
	var weighted, weights, plain float64
	n := 0
	for _, c := range contracts {
		if c.Side != side {
			continue
		}
		w := c.Volume + c.OpenInterest
		weighted += c.ImpliedVolatility * w
		weights += w
		plain += c.ImpliedVolatility
		n++
	}
	if n == 0 {
		return 0, false
	}
	if weights == 0 {
		return plain / float64(n), true
	}
	return weighted / weights, true
}

func meanIV(contracts []domain.OptionContract) float64 {
	if len(contracts) == 0 {
		return defaultIV
	}
	sum := 0.0
	for _, c := range contracts {
		sum += c.ImpliedVolatility
	}
	return sum / float64(len(contracts))
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
