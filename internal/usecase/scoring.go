package usecase

import (
	"math"

	"income-screener/internal/config"
	"income-screener/internal/domain"
)

// Component names, shared by breakdowns, explanations and the dashboard.
const (
	CompIVRank         = "iv_rank"
	CompROI            = "roi_30d"
	CompTrendStrength  = "trend_strength"
	CompDividend       = "dividend_yield"
	CompMarginOfSafety = "margin_of_safety"
	CompTrendStability = "trend_stability"
	CompTheta          = "theta"
	CompGamma          = "gamma"
	CompVega           = "vega"
)

// CCInputs are the covered call scoring inputs. ROI30d and DividendYield are fractions.
type CCInputs struct {
	IVRank         float64
	ROI30d         float64
	TrendStrength  float64
	TrendStability float64
	DividendYield  float64
	Theta          float64
	Gamma          float64
	Vega           float64
	Below200SMA    bool
	SpreadPct      float64
	NearEarnings   bool
	OpenInterest   float64
	Signal         domain.Signal
}

// CSPInputs are the cash-secured put scoring inputs. EarningsDaysUntil is nil when unknown.
type CSPInputs struct {
	IVRank            float64
	IVPercentile      float64
	ROI30d            float64
	MarginOfSafety    float64
	TrendStability    float64
	Theta             float64
	Gamma             float64
	Vega              float64
	InUptrend         bool
	SpreadPct         float64
	OpenInterest      float64
	NearSupport       bool
	EarningsDaysUntil *int
	Signal            domain.Signal
}

// Normalize maps x onto [0,1] assuming target +/- 3 scale covers the useful range.
func Normalize(x, target, scale float64) float64 {
	if scale == 0 {
		return 0.5
	}
	return clamp((((x-target)/scale)+3)/6, 0, 1)
}

// ThetaScore peaks for 0.05..0.15 of daily decay and tapers outside it.
func ThetaScore(theta float64) float64 {
	t := math.Abs(theta)
	switch {
	case t >= 0.05 && t <= 0.15:
		return 1.0
	case t < 0.05:
		return t / 0.05
	default:
		return math.Max(0.3, 1.0-(t-0.15)/0.15)
	}
}

// GammaScore prefers low gamma.
func GammaScore(gamma float64) float64 {
	g := math.Abs(gamma)
	switch {
	case g <= 0.001:
		return 1.0
	case g <= 0.003:
		return 0.7
	default:
		return 0.3
	}
}

// VegaScore rewards selling vega when IV rank is high and holding little of it when low.
func VegaScore(vega, ivRank float64) float64 {
	v := math.Abs(vega)
	switch {
	case ivRank > 70 && v > 0.20:
		return 1.0
	case ivRank > 70 && v > 0.08:
		return 0.8
	case ivRank < 30 && v < 0.08:
		return 0.9
	default:
		return 0.6
	}
}

// ScoreCoveredCall computes the weighted base score, applies adjustments in a
// fixed order and clamps to [0,1].
func ScoreCoveredCall(in CCInputs, cfg config.ScoringConfig) domain.ScoreBreakdown {
	w := cfg.CC
	b := domain.ScoreBreakdown{Strategy: domain.StrategyCoveredCall}
	b.Components = []domain.Component{
		component(CompIVRank, in.IVRank, Normalize(in.IVRank, 50, 15), w.IVRank),
		component(CompROI, in.ROI30d, Normalize(in.ROI30d*100, 1.5, 0.5), w.ROI),
		component(CompTrendStrength, in.TrendStrength, (clamp(in.TrendStrength, -1, 1)+1)/2, w.Trend),
		component(CompDividend, in.DividendYield, math.Min(math.Max(in.DividendYield, 0)/0.05, 1.0), w.Dividend),
		component(CompTheta, in.Theta, ThetaScore(in.Theta), w.Theta),
		component(CompGamma, in.Gamma, GammaScore(in.Gamma), w.Gamma),
		component(CompVega, in.Vega, VegaScore(in.Vega, in.IVRank), w.Vega),
	}

	var adj []domain.Adjustment
	if in.Below200SMA {
		adj = append(adj, domain.Adjustment{Name: "below_200sma", Factor: 0.85})
	}
	if in.SpreadPct > 0.07 {
		adj = append(adj, domain.Adjustment{Name: "wide_spread", Factor: 0.95})
	}
	if in.NearEarnings {
		adj = append(adj, domain.Adjustment{Name: "near_earnings", Factor: 0.97})
	}
	if in.OpenInterest > 2000 {
		adj = append(adj, domain.Adjustment{Name: "high_open_interest", Factor: 1.05})
	}
	if in.TrendStability > 0.7 {
		adj = append(adj, domain.Adjustment{Name: "stable_trend", Factor: 1.03})
	}
	switch in.Signal {
	case domain.SignalLong:
		adj = append(adj, domain.Adjustment{Name: "sentiment_long", Factor: 1.10})
	case domain.SignalShort:
		adj = append(adj, domain.Adjustment{Name: "sentiment_short", Factor: 0.95})
	}

	return finish(b, adj)
}

// ScoreCashSecuredPut mirrors ScoreCoveredCall with the put weights, the
// support and earnings adjustments and a heavier short-signal penalty.
func ScoreCashSecuredPut(in CSPInputs, cfg config.ScoringConfig) domain.ScoreBreakdown {
	w := cfg.CSP
	b := domain.ScoreBreakdown{Strategy: domain.StrategyCashSecuredPut}
	b.Components = []domain.Component{
		component(CompIVRank, in.IVRank, Normalize(in.IVRank, 55, 15), w.IVRank),
		component(CompROI, in.ROI30d, Normalize(in.ROI30d*100, 1.2, 0.4), w.ROI),
		component(CompMarginOfSafety, in.MarginOfSafety, Normalize(in.MarginOfSafety*100, 7.5, 3), w.MarginOfSafety),
		component(CompTrendStability, in.TrendStability, clamp(in.TrendStability, 0, 1), w.Stability),
		component(CompTheta, in.Theta, ThetaScore(in.Theta), w.Theta),
		component(CompGamma, in.Gamma, GammaScore(in.Gamma), w.Gamma),
		component(CompVega, in.Vega, VegaScore(in.Vega, in.IVRank), w.Vega),
	}

	var adj []domain.Adjustment
	if in.MarginOfSafety < 0.05 {
		adj = append(adj, domain.Adjustment{Name: "close_to_spot", Factor: 0.92})
	}
	if in.InUptrend {
		adj = append(adj, domain.Adjustment{Name: "uptrend", Factor: 1.08})
	}
	if in.IVPercentile > 80 {
		adj = append(adj, domain.Adjustment{Name: "high_iv_percentile", Factor: 1.03})
	}
	if in.OpenInterest > 2000 {
		adj = append(adj, domain.Adjustment{Name: "high_open_interest", Factor: 1.05})
	}
	if in.SpreadPct > 0.07 {
		adj = append(adj, domain.Adjustment{Name: "wide_spread", Factor: 0.95})
	}
	if in.NearSupport {
		adj = append(adj, domain.Adjustment{Name: "near_support", Factor: 1.04})
	}
	if f, name := earningsPenalty(in.EarningsDaysUntil); f != 1 {
		adj = append(adj, domain.Adjustment{Name: name, Factor: f})
	}
	switch in.Signal {
	case domain.SignalLong:
		adj = append(adj, domain.Adjustment{Name: "sentiment_long", Factor: 1.10})
	case domain.SignalShort:
		adj = append(adj, domain.Adjustment{Name: "sentiment_short", Factor: 0.90})
	}

	return finish(b, adj)
}

func earningsPenalty(days *int) (float64, string) {
	if days == nil || *days < 0 {
		return 1, ""
	}
	switch d := *days; {
	case d < 7:
		return 0.50, "earnings_within_7d"
	case d < 14:
		return 0.70, "earnings_within_14d"
	case d < 21:
		return 0.85, "earnings_within_21d"
	case d < 30:
		return 0.93, "earnings_within_30d"
	default:
		return 1, ""
	}
}

func component(name string, raw, score, weight float64) domain.Component {
	return domain.Component{Name: name, Raw: raw, Weight: weight, Value: score * weight}
}

func finish(b domain.ScoreBreakdown, adj []domain.Adjustment) domain.ScoreBreakdown {
	base := 0.0
	for _, c := range b.Components {
		base += c.Value
	}
	b.BaseScore = base
	b.Adjustments = adj

	score := base
	for _, a := range adj {
		score *= a.Factor
	}
	b.Unclamped = score
	b.Score = clamp(score, 0, 1)
	return b
}
