package usecase

import (
	"fmt"
	"math"

	"income-screener/internal/config"
	"income-screener/internal/domain"
)

const (
	ccTargetStrikePct  = 1.035
	cspTargetStrikePct = 0.965

	// tieEpsilon treats closer distances as equal.
	tieEpsilon = 1e-9
)

// Selection is the chosen contract plus the return figures derived from it.
type Selection struct {
	Contract         domain.OptionContract
	Mid              float64
	SpreadPct        float64
	ROIPeriod        float64
	ROI30d           float64
	AnnualizedReturn float64
	// Moneyness is set for covered calls, MarginOfSafety for puts.
	Moneyness      float64
	MarginOfSafety float64
}

// SpreadPct is (ask-bid)/mid. A missing side counts as a 100% spread.
func SpreadPct(c domain.OptionContract) float64 {
	mid := c.Mid()
	if c.Bid <= 0 || c.Ask <= 0 || mid <= 0 {
		return 1.0
	}
	return (c.Ask - c.Bid) / mid
}

// IsEligible applies the hard filters. reason names the first failing filter.
func IsEligible(c domain.OptionContract, spot float64, strategy domain.Strategy, cfg config.SelectorConfig) (bool, string) {
	if spot <= 0 {
		return false, "no stock price"
	}
	if c.DTE < cfg.MinDTE || c.DTE > cfg.MaxDTE {
		return false, fmt.Sprintf("dte %d outside [%d,%d]", c.DTE, cfg.MinDTE, cfg.MaxDTE)
	}

	switch strategy {
	case domain.StrategyCoveredCall:
		if c.Side != domain.SideCall {
			return false, "not a call"
		}
		if c.Delta < cfg.CCDeltaMin || c.Delta > cfg.CCDeltaMax {
			return false, fmt.Sprintf("delta %.3f outside band", c.Delta)
		}
		if c.Strike < cfg.CCStrikeMinPct*spot || c.Strike > cfg.CCStrikeMaxPct*spot {
			return false, fmt.Sprintf("strike %.2f outside band", c.Strike)
		}
	case domain.StrategyCashSecuredPut:
		if c.Side != domain.SidePut {
			return false, "not a put"
		}
		d := math.Abs(c.Delta)
		if d < cfg.CSPDeltaMin || d > cfg.CSPDeltaMax {
			return false, fmt.Sprintf("delta %.3f outside band", c.Delta)
		}
		if c.Strike < cfg.CSPStrikeMinPct*spot || c.Strike > cfg.CSPStrikeMaxPct*spot {
			return false, fmt.Sprintf("strike %.2f outside band", c.Strike)
		}
	default:
		return false, "unknown strategy " + string(strategy)
	}

	if c.OpenInterest < cfg.MinOpenInterest {
		return false, fmt.Sprintf("open interest %.0f below %.0f", c.OpenInterest, cfg.MinOpenInterest)
	}
	if c.Volume < cfg.MinVolume {
		return false, fmt.Sprintf("volume %.0f below %.0f", c.Volume, cfg.MinVolume)
	}
	if c.Mid() <= cfg.MinMid {
		return false, fmt.Sprintf("mid %.2f too small", c.Mid())
	}
	if s := SpreadPct(c); s > cfg.MaxSpreadPct {
		return false, fmt.Sprintf("spread %.1f%% too wide", s*100)
	}
	return true, ""
}

// SelectContract returns the eligible contract with the best 30-day ROI, or
// domain.ErrNoEligibleContract.
func SelectContract(stockPrice float64, chain []domain.OptionContract, strategy domain.Strategy, cfg config.SelectorConfig) (Selection, error) {
	var best *Selection
	for _, c := range chain {
		if ok, _ := IsEligible(c, stockPrice, strategy, cfg); !ok {
			continue
		}
		sel := buildSelection(c, stockPrice, strategy)
		if best == nil || better(sel, *best, stockPrice, strategy, cfg) {
			s := sel
			best = &s
		}
	}
	if best == nil {
		return Selection{}, domain.ErrNoEligibleContract
	}
	return *best, nil
}

func buildSelection(c domain.OptionContract, spot float64, strategy domain.Strategy) Selection {
	mid := c.Mid()
	basis := spot
	if strategy == domain.StrategyCashSecuredPut {
		basis = c.Strike
	}

	sel := Selection{Contract: c, Mid: mid, SpreadPct: SpreadPct(c)}
	if basis > 0 && c.DTE > 0 {
		sel.ROIPeriod = mid / basis
		sel.ROI30d = sel.ROIPeriod * 30 / float64(c.DTE)
		sel.AnnualizedReturn = sel.ROIPeriod * 365 / float64(c.DTE)
	}
	if strategy == domain.StrategyCoveredCall {
		sel.Moneyness = (c.Strike - spot) / spot
	} else {
		sel.MarginOfSafety = (spot - c.Strike) / spot
	}
	return sel
}

// better orders by roi_30d, then distance to the target strike, then distance to
// the middle of the delta band, then the lower strike.
func better(a, b Selection, spot float64, strategy domain.Strategy, cfg config.SelectorConfig) bool {
	if a.ROI30d != b.ROI30d {
		return a.ROI30d > b.ROI30d
	}

	targetStrike := ccTargetStrikePct * spot
	targetDelta := (cfg.CCDeltaMin + cfg.CCDeltaMax) / 2
	if strategy == domain.StrategyCashSecuredPut {
		targetStrike = cspTargetStrikePct * spot
		targetDelta = (cfg.CSPDeltaMin + cfg.CSPDeltaMax) / 2
	}

	da := math.Abs(a.Contract.Strike - targetStrike)
	db := math.Abs(b.Contract.Strike - targetStrike)
	if math.Abs(da-db) > tieEpsilon {
		return da < db
	}
	dda := math.Abs(math.Abs(a.Contract.Delta) - targetDelta)
	ddb := math.Abs(math.Abs(b.Contract.Delta) - targetDelta)
	if math.Abs(dda-ddb) > tieEpsilon {
		return dda < ddb
	}
	return a.Contract.Strike < b.Contract.Strike
}
