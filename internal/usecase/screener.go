package usecase

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"income-screener/internal/config"
	"income-screener/internal/domain"
	"income-screener/internal/infrastructure/indicators"
	"income-screener/internal/infrastructure/logger"
)

const nearSupportPct = 0.02

// ScreenInput is everything known about one symbol once fetching and the
// sentiment pass are done.
type ScreenInput struct {
	Data      domain.SymbolData
	Technical domain.TechnicalSnapshot
	IV        domain.IVMetrics
	Sentiment domain.Sentiment
}

// StrategyOutcome records why a strategy did or did not produce a pick.
type StrategyOutcome struct {
	Strategy domain.Strategy
	Pick     *domain.Pick
	Err      error
}

// Screener applies the per-symbol gates, selects a contract per enabled
// strategy and scores it.
type Screener struct {
	selector   config.SelectorConfig
	gates      config.GateConfig
	scoring    config.ScoringConfig
	strategies []domain.Strategy
	log        *logger.Logger
	newID      func() string
}

func NewScreener(cfg *config.Config, log *logger.Logger) *Screener {
	if log == nil {
		log = logger.Nop()
	}
	var strategies []domain.Strategy
	if cfg.Screener.CCEnabled {
		strategies = append(strategies, domain.StrategyCoveredCall)
	}
	if cfg.Screener.CSPEnabled {
		strategies = append(strategies, domain.StrategyCashSecuredPut)
	}
	return &Screener{
		selector:   cfg.Selector,
		gates:      cfg.Gates,
		scoring:    cfg.Scoring,
		strategies: strategies,
		log:        log,
		newID:      uuid.NewString,
	}
}

// Screen runs every enabled strategy for one symbol. It never panics on thin
// data; each failure is reported in the outcome.
func (s *Screener) Screen(in ScreenInput) []StrategyOutcome {
	outcomes := make([]StrategyOutcome, 0, len(s.strategies))
	symErr := s.symbolGate(in)
	for _, strategy := range s.strategies {
		if symErr != nil {
			outcomes = append(outcomes, StrategyOutcome{Strategy: strategy, Err: symErr})
			continue
		}
		pick, err := s.screenStrategy(in, strategy)
		out := StrategyOutcome{Strategy: strategy, Err: err}
		if err == nil {
			out.Pick = &pick
		}
		outcomes = append(outcomes, out)
	}
	return outcomes
}

func (s *Screener) symbolGate(in ScreenInput) error {
	tech := in.Technical
	if tech.Fallback {
		return fmt.Errorf("%w: %d bars", domain.ErrInsufficientData, tech.Bars)
	}
	if len(in.Data.Chain) == 0 {
		return fmt.Errorf("%w: empty option chain", domain.ErrInsufficientData)
	}
	price := in.Data.StockPrice()
	if price < s.gates.MinPrice {
		return fmt.Errorf("%w: price %.2f below %.2f", domain.ErrScreenedOut, price, s.gates.MinPrice)
	}
	if tech.HV60 > s.gates.MaxHV60 {
		return fmt.Errorf("%w: hv60 %.2f above %.2f", domain.ErrScreenedOut, tech.HV60, s.gates.MaxHV60)
	}
	return nil
}

func (s *Screener) screenStrategy(in ScreenInput, strategy domain.Strategy) (domain.Pick, error) {
	price := in.Data.StockPrice()
	earningsDays := in.Data.EarningsDaysUntil()
	withinEarnings := earningsDays != nil && abs(*earningsDays) <= s.gates.EarningsExclusionDays

	minIVR, target := s.gates.CCMinIVRank, s.gates.CCAnnualizedTarget
	if strategy == domain.StrategyCashSecuredPut {
		minIVR, target = s.gates.CSPMinIVRank, s.gates.CSPAnnualizedTarget
		if withinEarnings {
			return domain.Pick{}, fmt.Errorf("%w: earnings in %d days", domain.ErrScreenedOut, *earningsDays)
		}
	}
	if in.IV.IVRank < minIVR {
		return domain.Pick{}, fmt.Errorf("%w: iv rank %.0f below %.0f", domain.ErrScreenedOut, in.IV.IVRank, minIVR)
	}

	sel, err := SelectContract(price, in.Data.Chain, strategy, s.selector)
	if err != nil {
		return domain.Pick{}, err
	}
	if sel.AnnualizedReturn < target {
		return domain.Pick{}, fmt.Errorf("%w: annualized %.1f%% below %.1f%%",
			domain.ErrScreenedOut, sel.AnnualizedReturn*100, target*100)
	}

	pick := s.buildPick(in, strategy, sel)
	if strategy == domain.StrategyCoveredCall {
		nearEarnings := earningsDays != nil && abs(*earningsDays) <= s.scoring.NearEarningsDays
		pick.Breakdown = ScoreCoveredCall(CCInputs{
			IVRank:         in.IV.IVRank,
			ROI30d:         sel.ROI30d,
			TrendStrength:  in.Technical.TrendStrength,
			TrendStability: in.Technical.TrendStability,
			DividendYield:  in.Data.DividendYield,
			Theta:          sel.Contract.Theta,
			Gamma:          sel.Contract.Gamma,
			Vega:           sel.Contract.Vega,
			Below200SMA:    in.Technical.Below200SMA,
			SpreadPct:      sel.SpreadPct,
			NearEarnings:   nearEarnings,
			OpenInterest:   sel.Contract.OpenInterest,
			Signal:         in.Sentiment.Signal(),
		}, s.scoring)
		pick.Notes = JoinNotes(coveredCallNotes(pick, in.Technical, nearEarnings))
	} else {
		nearSupport := false
		if lvl := pick.SupportLevel; lvl != nil {
			nearSupport = indicators.IsNearLevel(sel.Contract.Strike, *lvl, nearSupportPct)
		}
		pick.Breakdown = ScoreCashSecuredPut(CSPInputs{
			IVRank:            in.IV.IVRank,
			IVPercentile:      in.IV.IVPercentile,
			ROI30d:            sel.ROI30d,
			MarginOfSafety:    sel.MarginOfSafety,
			TrendStability:    in.Technical.TrendStability,
			Theta:             sel.Contract.Theta,
			Gamma:             sel.Contract.Gamma,
			Vega:              sel.Contract.Vega,
			InUptrend:         in.Technical.InUptrend,
			SpreadPct:         sel.SpreadPct,
			OpenInterest:      sel.Contract.OpenInterest,
			NearSupport:       nearSupport,
			EarningsDaysUntil: earningsDays,
			Signal:            in.Sentiment.Signal(),
		}, s.scoring)
		pick.Notes = JoinNotes(cashSecuredPutNotes(pick, in.Technical))
	}
	pick.Score = pick.Breakdown.Score

	s.log.Debugw("Scored pick",
		"symbol", pick.Symbol,
		"strategy", pick.Strategy,
		"strike", pick.Strike,
		"score", pick.Score,
	)
	return pick, nil
}

func (s *Screener) buildPick(in ScreenInput, strategy domain.Strategy, sel Selection) domain.Pick {
	c := sel.Contract
	tech := in.Technical
	p := domain.Pick{
		ID:                s.newID(),
		AsOf:              in.Data.AsOf,
		Symbol:            in.Data.Symbol,
		Strategy:          strategy,
		Strike:            c.Strike,
		Expiry:            c.Expiry,
		DTE:               c.DTE,
		Premium:           sel.Mid,
		StockPrice:        in.Data.StockPrice(),
		Bid:               c.Bid,
		Ask:               c.Ask,
		SpreadPct:         sel.SpreadPct,
		Delta:             c.Delta,
		IV:                c.ImpliedVolatility,
		OpenInterest:      c.OpenInterest,
		Volume:            c.Volume,
		ROIPeriod:         sel.ROIPeriod,
		ROI30d:            sel.ROI30d,
		AnnualizedReturn:  sel.AnnualizedReturn,
		Moneyness:         sel.Moneyness,
		MarginOfSafety:    sel.MarginOfSafety,
		IVRank:            in.IV.IVRank,
		IVPercentile:      in.IV.IVPercentile,
		HV20:              tech.HV20,
		HV60:              tech.HV60,
		TrendStrength:     tech.TrendStrength,
		TrendStability:    tech.TrendStability,
		Below200SMA:       tech.Below200SMA,
		InUptrend:         tech.InUptrend,
		SupportLevel:      tech.SupportLevel(),
		Signal:            in.Sentiment.Signal(),
		DividendYield:     in.Data.DividendYield,
		EarningsDaysUntil: in.Data.EarningsDaysUntil(),
	}
	if m, ok := in.Sentiment.Known(); ok {
		p.PutCallRatio = m.PutCallRatio
		p.CMF20 = m.CMF20
	}
	return p
}

func coveredCallNotes(p domain.Pick, tech domain.TechnicalSnapshot, nearEarnings bool) []string {
	var notes []string
	if tech.SMA20 != nil && tech.SMA50 != nil && *tech.SMA20 < *tech.SMA50 {
		notes = append(notes, "Negative trend")
	}
	if p.Below200SMA {
		notes = append(notes, "Below 200 SMA")
	}
	if nearEarnings && p.EarningsDaysUntil != nil {
		notes = append(notes, fmt.Sprintf("Earnings in %d days", *p.EarningsDaysUntil))
	}
	if p.SpreadPct > 0.05 {
		notes = append(notes, fmt.Sprintf("Wide spread %.1f%%", p.SpreadPct*100))
	}
	if p.IVRank > 70 {
		notes = append(notes, "High IV rank")
	}
	if p.AnnualizedReturn > 0.20 {
		notes = append(notes, "Excellent ROI")
	}
	if p.OpenInterest > 1000 {
		notes = append(notes, "High liquidity")
	}
	notes = append(notes, signalNote(p.Signal)...)
	return notes
}

func cashSecuredPutNotes(p domain.Pick, tech domain.TechnicalSnapshot) []string {
	var notes []string
	switch {
	case p.MarginOfSafety > 0.10:
		notes = append(notes, fmt.Sprintf("%.1f%% OTM", p.MarginOfSafety*100))
	case p.MarginOfSafety > 0.05:
		notes = append(notes, fmt.Sprintf("Only %.1f%% OTM", p.MarginOfSafety*100))
	}
	if p.IVRank > 70 {
		notes = append(notes, "High IV rank")
	}
	if p.AnnualizedReturn > 0.18 {
		notes = append(notes, "Excellent ROI")
	}
	if p.OpenInterest > 1000 {
		notes = append(notes, "High liquidity")
	}
	if tech.InUptrend {
		notes = append(notes, "Uptrend")
	} else {
		notes = append(notes, "Not in uptrend")
	}
	if tech.TrendStability > 0.7 {
		notes = append(notes, "Stable trend")
	}
	if p.SpreadPct > 0.05 {
		notes = append(notes, fmt.Sprintf("Wide spread %.1f%%", p.SpreadPct*100))
	}
	if d := p.EarningsDaysUntil; d != nil && *d >= 0 && *d < 30 {
		notes = append(notes, fmt.Sprintf("Earnings in %d days", *d))
	}
	notes = append(notes, signalNote(p.Signal)...)
	return notes
}

func signalNote(sig domain.Signal) []string {
	switch sig {
	case domain.SignalLong:
		return []string{"Contrarian long signal"}
	case domain.SignalShort:
		return []string{"Contrarian short signal"}
	default:
		return nil
	}
}

// JoinNotes joins with "; ", or returns "Standard setup" when there is nothing to say.
func JoinNotes(notes []string) string {
	if len(notes) == 0 {
		return "Standard setup"
	}
	return strings.Join(notes, "; ")
}

// outcomeLabel buckets a strategy error for logs and metrics.
func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "pick"
	case errors.Is(err, domain.ErrNoEligibleContract):
		return "no_contract"
	case errors.Is(err, domain.ErrScreenedOut):
		return "screened_out"
	case errors.Is(err, domain.ErrInsufficientData):
		return "insufficient_data"
	default:
		return "error"
	}
}

