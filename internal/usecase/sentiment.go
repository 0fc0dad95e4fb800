package usecase

import (
	"time"

	"income-screener/internal/domain"
	"income-screener/internal/infrastructure/indicators"
)

const (
	cmfPeriod = 20

	longPCRMin  = 1.2
	longCMFMin  = 0.05
	shortPCRMax = 0.9
	shortCMFMax = -0.05

	negativeExtremeMax = 0.3
	positiveExtremeMin = 0.7
)

// SentimentInput is the per-symbol raw material: chain totals plus recent bars.
type SentimentInput struct {
	Symbol     string
	AsOf       time.Time
	CallVolume float64
	PutVolume  float64
	CallOI     float64
	PutOI      float64
	Bars       []domain.PriceBar
}

// SentimentInputFromChain sums volume and open interest per side.
func SentimentInputFromChain(symbol string, asof time.Time, chain []domain.OptionContract, bars []domain.PriceBar) SentimentInput {
	in := SentimentInput{Symbol: symbol, AsOf: asof, Bars: bars}
	for _, c := range chain {
		switch c.Side {
		case domain.SideCall:
			in.CallVolume += c.Volume
			in.CallOI += c.OpenInterest
		case domain.SidePut:
			in.PutVolume += c.Volume
			in.PutOI += c.OpenInterest
		}
	}
	return in
}

type SentimentAggregator struct{}

func NewSentimentAggregator() *SentimentAggregator {
	return &SentimentAggregator{}
}

// Aggregate computes P/C, CMF20, the contrarian signal and the sentiment score
// for one symbol. Rank is left at 50 until AggregateUniverse ranks the batch.
func (a *SentimentAggregator) Aggregate(in SentimentInput) domain.SentimentMetrics {
	m := domain.SentimentMetrics{
		Symbol:     in.Symbol,
		AsOf:       in.AsOf,
		CallVolume: in.CallVolume,
		PutVolume:  in.PutVolume,
		CallOI:     in.CallOI,
		PutOI:      in.PutOI,
		Rank:       50,
	}

	if in.CallVolume > 0 {
		pcr := in.PutVolume / in.CallVolume
		m.PutCallRatio = &pcr
	}
	if in.CallOI > 0 {
		oi := in.PutOI / in.CallOI
		m.PutCallOIRatio = &oi
	}
	m.CMF20 = cmf20(in.Bars)

	m.DataQuality = dataQuality(m)
	m.SentimentScore = sentimentScore(m.PutCallRatio, m.CMF20)
	switch {
	case m.SentimentScore <= negativeExtremeMax:
		m.Extreme = domain.ExtremeNegative
	case m.SentimentScore >= positiveExtremeMin:
		m.Extreme = domain.ExtremePositive
	}
	m.Signal = ContrarianSignal(m.PutCallRatio, m.CMF20)
	return m
}

// AggregateUniverse aggregates every input and assigns each symbol its
// percentile rank of sentiment score among symbols with usable data.
func (a *SentimentAggregator) AggregateUniverse(inputs []SentimentInput) []domain.SentimentMetrics {
	out := make([]domain.SentimentMetrics, len(inputs))
	for i, in := range inputs {
		out[i] = a.Aggregate(in)
	}
	RankSentiment(out)
	return out
}

// RankSentiment sets Rank to the share of scored symbols strictly below each score.
// Insufficient-data symbols keep 50.
func RankSentiment(metrics []domain.SentimentMetrics) {
	var scores []float64
	for _, m := range metrics {
		if m.DataQuality != domain.QualityInsufficient {
			scores = append(scores, m.SentimentScore)
		}
	}
	for i := range metrics {
		if metrics[i].DataQuality == domain.QualityInsufficient || len(scores) == 0 {
			metrics[i].Rank = 50
			continue
		}
		below := 0
		for _, s := range scores {
			if s < metrics[i].SentimentScore {
				below++
			}
		}
		metrics[i].Rank = float64(below) / float64(len(scores)) * 100
	}
}

// ContrarianSignal is long when the crowd is fearful while money flows in, short
// in the mirror case. Either input missing gives none.
func ContrarianSignal(pcr, cmf *float64) domain.Signal {
	if pcr == nil || cmf == nil {
		return domain.SignalNone
	}
	switch {
	case *pcr >= longPCRMin && *cmf >= longCMFMin:
		return domain.SignalLong
	case *pcr <= shortPCRMax && *cmf <= shortCMFMax:
		return domain.SignalShort
	default:
		return domain.SignalNone
	}
}

func cmf20(bars []domain.PriceBar) *float64 {
	if len(bars) < cmfPeriod {
		return nil
	}
	window := bars[len(bars)-cmfPeriod:]
	highs := make([]float64, len(window))
	lows := make([]float64, len(window))
	closes := make([]float64, len(window))
	vols := make([]float64, len(window))
	for i, b := range window {
		highs[i], lows[i], closes[i], vols[i] = b.High, b.Low, b.Close, b.Volume
	}
	v, ok := indicators.ChaikinMoneyFlow(highs, lows, closes, vols, cmfPeriod)
	if !ok {
		return nil
	}
	return &v
}

func dataQuality(m domain.SentimentMetrics) domain.DataQuality {
	available := 0
	if m.PutCallRatio != nil {
		available++
	}
	if m.CMF20 != nil {
		available++
	}
	switch available {
	case 2:
		return domain.QualityComplete
	case 1:
		return domain.QualityPartial
	default:
		return domain.QualityInsufficient
	}
}

// sentimentScore runs from 0 (crowd pessimistic) to 1 (crowd optimistic). Heavy
// put buying pulls it down; accumulation (positive CMF) pulls it down too, so
// pessimism that smart money is buying into lands in the low tail.
func sentimentScore(pcr, cmf *float64) float64 {
	var parts []float64
	if pcr != nil {
		parts = append(parts, putCallScore(*pcr))
	}
	if cmf != nil {
		parts = append(parts, clamp(0.5-*cmf*0.5, 0, 1))
	}
	if len(parts) == 0 {
		return 0.5
	}
	sum := 0.0
	for _, p := range parts {
		sum += p
	}
	return sum / float64(len(parts))
}

// putCallScore is linear in pcr: 1.0 maps to 0.5, 0.2 and below to 1, 1.8 and above to 0.
func putCallScore(pcr float64) float64 {
	return clamp(0.5+(1.0-pcr)/1.6, 0, 1)
}
