package usecase

import (
	"math"

	"income-screener/internal/domain"
	"income-screener/internal/infrastructure/indicators"
)

const (
	minTrendBars      = 15
	rsiPeriod         = 14
	atrPeriod         = 14
	stabilityWindow   = 20
	momentumWindow    = 5
	pivotLookaround   = 3
	neutralRSI        = 50.0
	neutralStability  = 0.5
	maxCloseCV        = 0.10
	maxATRFraction    = 0.05
	momentumAmplifier = 10.0
)

// TechnicalEngine derives a TechnicalSnapshot from ascending daily bars.
type TechnicalEngine struct{}

func NewTechnicalEngine() *TechnicalEngine {
	return &TechnicalEngine{}
}

// Analyze never fails. With fewer than 15 bars the trend composites take their
// neutral values (strength 0, stability 0.5) and Fallback is set.
func (e *TechnicalEngine) Analyze(symbol string, bars []domain.PriceBar) domain.TechnicalSnapshot {
	snap := domain.TechnicalSnapshot{
		Symbol:         symbol,
		RSI14:          neutralRSI,
		TrendStability: neutralStability,
		Bars:           len(bars),
	}
	if len(bars) == 0 {
		snap.Fallback = true
		return snap
	}

	highs := make([]float64, len(bars))
	lows := make([]float64, len(bars))
	closes := make([]float64, len(bars))
	for i, b := range bars {
		highs[i] = b.High
		lows[i] = b.Low
		closes[i] = b.Close
	}

	last := bars[len(bars)-1]
	snap.AsOf = last.Date
	snap.Close = last.Close

	snap.SMA20 = indicators.SMA(closes, 20)
	snap.SMA50 = indicators.SMA(closes, 50)
	snap.SMA200 = indicators.SMA(closes, 200)
	if rsi, ok := indicators.RSI(closes, rsiPeriod); ok {
		snap.RSI14 = rsi
	}
	snap.ATR14 = indicators.ATR(highs, lows, closes, atrPeriod)
	snap.HV20 = indicators.HistoricalVolatility(closes, 20)
	snap.HV60 = indicators.HistoricalVolatility(closes, 60)

	if snap.SMA200 != nil {
		snap.Below200SMA = snap.Close < *snap.SMA200
	}
	if snap.SMA20 != nil && snap.SMA50 != nil && snap.SMA200 != nil {
		snap.InUptrend = *snap.SMA20 > *snap.SMA50 && *snap.SMA50 > *snap.SMA200
	}

	pivots := indicators.FindPivotLows(lows, pivotLookaround, pivotLookaround)
	if p := indicators.NearestSupport(pivots, snap.Close); p != nil {
		price := p.Price
		snap.NearestSupport = &price
	}

	if len(bars) < minTrendBars {
		snap.Fallback = true
		return snap
	}

	snap.TrendStrength = trendStrength(snap, closes)
	snap.TrendStability = trendStability(snap, closes)
	return snap
}

func trendStrength(snap domain.TechnicalSnapshot, closes []float64) float64 {
	price := snap.Close
	priceVsSMA := rescale((smaVote(&price, snap.SMA20) + smaVote(&price, snap.SMA50) + smaVote(&price, snap.SMA200)) / 3)
	alignment := rescale((smaVote(snap.SMA20, snap.SMA50) + smaVote(snap.SMA50, snap.SMA200)) / 2)

	rsiMomentum := clamp((snap.RSI14-50)/50, -1, 1)

	momentum := 0.0
	if m, ok := indicators.RecentMomentum(closes, momentumWindow); ok {
		momentum = clamp(m*momentumAmplifier, -1, 1)
	}

	return clamp(0.40*priceVsSMA+0.30*alignment+0.20*rsiMomentum+0.10*momentum, -1, 1)
}

// smaVote is 1 when a > b and 0 otherwise. An undefined side votes the
// neutral midpoint 0.5.
func smaVote(a, b *float64) float64 {
	if a == nil || b == nil {
		return 0.5
	}
	if *a > *b {
		return 1
	}
	return 0
}

// rescale maps a [0,1] vote share to [-1,1].
func rescale(share float64) float64 {
	return (share - 0.5) * 2
}

func trendStability(snap domain.TechnicalSnapshot, closes []float64) float64 {
	window := closes
	if len(window) > stabilityWindow {
		window = window[len(window)-stabilityWindow:]
	}

	volComponent := math.Max(0, 1-indicators.CoefficientOfVariation(window)/maxCloseCV)

	consistency := 0.0
	if changes := len(window) - 1; changes > 0 {
		up, down := indicators.DirectionCounts(window)
		consistency = math.Abs(float64(up-down)) / float64(changes)
	}

	atrComponent := 0.0
	if snap.Close > 0 {
		atrComponent = math.Max(0, 1-(snap.ATR14/snap.Close)/maxATRFraction)
	}

	return clamp(0.40*volComponent+0.30*consistency+0.30*atrComponent, 0, 1)
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
