package usecase

import (
	"fmt"
	"math"
	"sort"

	"income-screener/internal/config"
	"income-screener/internal/domain"
	"income-screener/internal/infrastructure/logger"
)

// FilterResult is the outcome of one universe filter pass. Selected keeps the
// input order unless the max-symbols limit forced a ranking.
type FilterResult struct {
	Selected []string
	Entries  []domain.ScanLogEntry
	Stats    domain.FilterStats
}

// Passed reports whether symbol made it through.
func (r FilterResult) Passed(symbol string) bool {
	for _, s := range r.Selected {
		if s == symbol {
			return true
		}
	}
	return false
}

// UniverseFilter narrows the universe to sentiment extremes whose money flow
// diverges from the crowd.
type UniverseFilter struct {
	cfg config.FilterConfig
	log *logger.Logger
}

func NewUniverseFilter(cfg config.FilterConfig, log *logger.Logger) *UniverseFilter {
	if log == nil {
		log = logger.Nop()
	}
	return &UniverseFilter{cfg: cfg, log: log}
}

func (f *UniverseFilter) Apply(metrics []domain.SentimentMetrics) FilterResult {
	res := FilterResult{Stats: domain.FilterStats{Total: len(metrics)}}
	decisions := make(map[string]*domain.ScanLogEntry, len(metrics))
	for _, m := range metrics {
		entry := domain.ScanLogEntry{
			Symbol:       m.Symbol,
			AsOf:         m.AsOf,
			Signal:       m.Signal,
			Score:        m.SentimentScore,
			PutCallRatio: m.PutCallRatio,
			CMF20:        m.CMF20,
			DataQuality:  m.DataQuality,
		}
		res.Entries = append(res.Entries, entry)
	}
	for i := range res.Entries {
		decisions[res.Entries[i].Symbol] = &res.Entries[i]
	}

	if !f.cfg.Enabled {
		for i := range res.Entries {
			res.Entries[i].Passed = true
			res.Entries[i].Reason = "filter disabled"
			res.Selected = append(res.Selected, res.Entries[i].Symbol)
		}
		f.finishStats(&res, metrics)
		return res
	}

	var passThrough []string
	var step1 []domain.SentimentMetrics
	for _, m := range metrics {
		e := decisions[m.Symbol]
		if m.DataQuality == domain.QualityInsufficient {
			e.Passed = true
			e.Signal = domain.SignalNone
			e.Reason = "insufficient sentiment data, passed through"
			passThrough = append(passThrough, m.Symbol)
			continue
		}
		if reason, ok := f.extreme(m); ok {
			e.Reason = reason
			step1 = append(step1, m)
			continue
		}
		e.Reason = fmt.Sprintf("not extreme (rank %.0f, score %.2f)", m.Rank, m.SentimentScore)
	}
	res.Stats.Step1Passed = len(step1)
	res.Stats.PassThrough = len(passThrough)

	var step2 []domain.SentimentMetrics
	for _, m := range step1 {
		e := decisions[m.Symbol]
		reason, ok := f.divergent(m)
		e.Reason = reason
		if ok {
			e.Passed = true
			step2 = append(step2, m)
		}
	}
	res.Stats.Step2Passed = len(step2)

	if f.cfg.MaxSymbols > 0 && len(step2) > f.cfg.MaxSymbols {
		f.log.Infof("Limiting sentiment survivors from %d to %d", len(step2), f.cfg.MaxSymbols)
		ranked := make([]domain.SentimentMetrics, len(step2))
		copy(ranked, step2)
		sort.SliceStable(ranked, func(i, j int) bool {
			ri, rj := opportunityScore(ranked[i]), opportunityScore(ranked[j])
			if ri != rj {
				return ri > rj
			}
			return ranked[i].Symbol < ranked[j].Symbol
		})
		for _, m := range ranked[f.cfg.MaxSymbols:] {
			e := decisions[m.Symbol]
			e.Passed = false
			e.Reason = fmt.Sprintf("ranked out (limit %d): %s", f.cfg.MaxSymbols, e.Reason)
		}
		step2 = ranked[:f.cfg.MaxSymbols]
	}

	for _, m := range step2 {
		res.Selected = append(res.Selected, m.Symbol)
	}
	res.Selected = append(res.Selected, passThrough...)

	f.finishStats(&res, metrics)
	f.log.Infow("Sentiment filter complete",
		"total", res.Stats.Total,
		"step1", res.Stats.Step1Passed,
		"step2", res.Stats.Step2Passed,
		"pass_through", res.Stats.PassThrough,
		"selected", res.Stats.Selected,
	)
	return res
}

func (f *UniverseFilter) extreme(m domain.SentimentMetrics) (string, bool) {
	cutoff := f.cfg.PercentileCutoff
	if m.Rank >= cutoff || m.Rank <= 100-cutoff {
		return fmt.Sprintf("extreme rank %.0f", m.Rank), true
	}
	if m.Extreme == domain.ExtremeNegative || m.Extreme == domain.ExtremePositive {
		return "extreme " + m.Extreme + " sentiment", true
	}
	if m.PutCallRatio != nil && (*m.PutCallRatio >= f.cfg.PCRExtremeHigh || *m.PutCallRatio <= f.cfg.PCRExtremeLow) {
		return fmt.Sprintf("extreme P/C %.2f", *m.PutCallRatio), true
	}
	return "", false
}

func (f *UniverseFilter) divergent(m domain.SentimentMetrics) (string, bool) {
	if m.PutCallRatio == nil || m.CMF20 == nil {
		return "missing CMF or P/C data", false
	}
	pcr, cmf := *m.PutCallRatio, *m.CMF20
	switch {
	case pcr >= f.cfg.PCRExtremeHigh && cmf >= f.cfg.CMFDivergence:
		return fmt.Sprintf("LONG - Excessive pessimism (P/C %.2f) + Accumulation (CMF %+.3f)", pcr, cmf), true
	case pcr <= f.cfg.PCRExtremeLow && cmf <= -f.cfg.CMFDivergence:
		return fmt.Sprintf("SHORT - Excessive optimism (P/C %.2f) + Distribution (CMF %+.3f)", pcr, cmf), true
	case (pcr >= longPCRMin && cmf >= longCMFMin) || (pcr <= shortPCRMax && cmf <= shortCMFMax):
		return fmt.Sprintf("MODERATE - P/C %.2f, CMF %+.3f", pcr, cmf), true
	default:
		return fmt.Sprintf("no divergence (P/C %.2f, CMF %+.3f)", pcr, cmf), false
	}
}

// opportunityScore orders survivors when the limit applies: signals first, then
// distance from neutral, P/C excess, CMF magnitude and completeness.
func opportunityScore(m domain.SentimentMetrics) float64 {
	score := 0.0
	if m.Signal == domain.SignalLong || m.Signal == domain.SignalShort {
		score += 50
	}
	score += math.Abs(m.SentimentScore-0.5) * 30
	if m.PutCallRatio != nil {
		pcr := *m.PutCallRatio
		switch {
		case pcr >= 1.5:
			score += (pcr - 1.5) * 10
		case pcr <= 0.7:
			score += (0.7 - pcr) * 10
		}
	}
	if m.CMF20 != nil {
		score += math.Abs(*m.CMF20) * 10
	}
	if m.DataQuality == domain.QualityComplete {
		score += 5
	}
	return score
}

func (f *UniverseFilter) finishStats(res *FilterResult, metrics []domain.SentimentMetrics) {
	bySymbol := make(map[string]domain.SentimentMetrics, len(metrics))
	for _, m := range metrics {
		bySymbol[m.Symbol] = m
	}
	res.Stats.Selected = len(res.Selected)
	for _, s := range res.Selected {
		m := bySymbol[s]
		if m.DataQuality == domain.QualityInsufficient {
			continue
		}
		switch m.Signal {
		case domain.SignalLong:
			res.Stats.LongSignals++
		case domain.SignalShort:
			res.Stats.ShortSignals++
		}
		switch m.Extreme {
		case domain.ExtremeNegative:
			res.Stats.NegativeExtreme++
		case domain.ExtremePositive:
			res.Stats.PositiveExtreme++
		}
	}
	if res.Stats.Total > 0 {
		res.Stats.ReductionPct = (1 - float64(res.Stats.Selected)/float64(res.Stats.Total)) * 100
	}
}
