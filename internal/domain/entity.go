package domain

import (
	"fmt"
	"time"
)

// Strategy is the income strategy a pick belongs to.
type Strategy string

const (
	StrategyCoveredCall    Strategy = "CC"
	StrategyCashSecuredPut Strategy = "CSP"
)

// OptionSide is call or put.
type OptionSide string

const (
	SideCall OptionSide = "call"
	SidePut  OptionSide = "put"
)

// PriceBar is one daily OHLCV bar. Bars are kept in ascending date order.
type PriceBar struct {
	Symbol string    `json:"symbol"`
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// OptionContract is a single (symbol, expiry, side, strike) quote captured once per asof date.
type OptionContract struct {
	Symbol            string     `json:"symbol"`
	Ticker            string     `json:"ticker,omitempty"`
	AsOf              time.Time  `json:"asof"`
	Expiry            time.Time  `json:"expiry"`
	Side              OptionSide `json:"side"`
	Strike            float64    `json:"strike"`
	Bid               float64    `json:"bid"`
	Ask               float64    `json:"ask"`
	Delta             float64    `json:"delta"`
	Theta             float64    `json:"theta"`
	Gamma             float64    `json:"gamma"`
	Vega              float64    `json:"vega"`
	ImpliedVolatility float64    `json:"iv"`
	OpenInterest      float64    `json:"openInterest"`
	Volume            float64    `json:"volume"`
	DTE               int        `json:"dte"`
}

// Mid returns the bid/ask midpoint.
func (c OptionContract) Mid() float64 {
	return (c.Bid + c.Ask) / 2
}

// TechnicalSnapshot is recomputed from the full bar history on every run.
// SMA fields are nil when there are not enough bars for the window.
type TechnicalSnapshot struct {
	Symbol         string    `json:"symbol"`
	AsOf           time.Time `json:"asof"`
	Close          float64   `json:"close"`
	SMA20          *float64  `json:"sma20"`
	SMA50          *float64  `json:"sma50"`
	SMA200         *float64  `json:"sma200"`
	RSI14          float64   `json:"rsi14"`
	ATR14          float64   `json:"atr14"`
	HV20           float64   `json:"hv20"`
	HV60           float64   `json:"hv60"`
	TrendStrength  float64   `json:"trendStrength"`
	TrendStability float64   `json:"trendStability"`
	Below200SMA    bool      `json:"below200sma"`
	InUptrend      bool      `json:"inUptrend"`
	NearestSupport *float64  `json:"nearestSupport"`
	Bars           int       `json:"bars"`
	// Fallback is set when history was too short for the trend composites.
	Fallback bool `json:"fallback"`
}

// SupportLevel prefers sma200, then sma50, then the most recent pivot low.
func (t TechnicalSnapshot) SupportLevel() *float64 {
	switch {
	case t.SMA200 != nil:
		return t.SMA200
	case t.SMA50 != nil:
		return t.SMA50
	default:
		return t.NearestSupport
	}
}

type IVMetrics struct {
	Symbol       string    `json:"symbol"`
	AsOf         time.Time `json:"asof"`
	CurrentIV    float64   `json:"currentIv"`
	IVRank       float64   `json:"ivRank"`
	IVPercentile float64   `json:"ivPercentile"`
	HistoryLen   int       `json:"historyLen"`
}

// Signal is the contrarian direction derived from crowd positioning vs money flow.
type Signal string

const (
	SignalLong  Signal = "long"
	SignalShort Signal = "short"
	SignalNone  Signal = "none"
)

type DataQuality string

const (
	QualityComplete     DataQuality = "complete"
	QualityPartial      DataQuality = "partial"
	QualityInsufficient DataQuality = "insufficient"
)

// Extreme labels for the sentiment score tails.
const (
	ExtremeNone     = ""
	ExtremeNegative = "negative"
	ExtremePositive = "positive"
)

type SentimentMetrics struct {
	Symbol         string      `json:"symbol"`
	AsOf           time.Time   `json:"asof"`
	CallVolume     float64     `json:"callVolume"`
	PutVolume      float64     `json:"putVolume"`
	CallOI         float64     `json:"callOi"`
	PutOI          float64     `json:"putOi"`
	PutCallRatio   *float64    `json:"putCallRatio"`
	PutCallOIRatio *float64    `json:"putCallOiRatio"`
	CMF20          *float64    `json:"cmf20"`
	Signal         Signal      `json:"signal"`
	SentimentScore float64     `json:"sentimentScore"`
	Extreme        string      `json:"extreme,omitempty"`
	Rank           float64     `json:"rank"`
	DataQuality    DataQuality `json:"dataQuality"`
}

// Sentiment is either a known reading or explicitly unknown. The zero value is unknown.
type Sentiment struct {
	metrics *SentimentMetrics
}

func KnownSentiment(m SentimentMetrics) Sentiment {
	return Sentiment{metrics: &m}
}

func UnknownSentiment() Sentiment {
	return Sentiment{}
}

// SentimentFrom maps insufficient data to Unknown.
func SentimentFrom(m SentimentMetrics) Sentiment {
	if m.DataQuality == QualityInsufficient || m.DataQuality == "" {
		return UnknownSentiment()
	}
	return KnownSentiment(m)
}

func (s Sentiment) Known() (SentimentMetrics, bool) {
	if s.metrics == nil {
		return SentimentMetrics{}, false
	}
	return *s.metrics, true
}

// Signal is none for unknown sentiment.
func (s Sentiment) Signal() Signal {
	if s.metrics == nil || s.metrics.Signal == "" {
		return SignalNone
	}
	return s.metrics.Signal
}

// Component is one weighted term of a composite score.
type Component struct {
	Name   string  `json:"name"`
	Raw    float64 `json:"raw"`
	Weight float64 `json:"weight"`
	Value  float64 `json:"value"`
}

// Adjustment is a multiplier applied after the weighted sum.
type Adjustment struct {
	Name   string  `json:"name"`
	Factor float64 `json:"factor"`
}

// ScoreBreakdown keeps every intermediate term so rationales can cite drivers.
type ScoreBreakdown struct {
	Strategy    Strategy     `json:"strategy"`
	Components  []Component  `json:"components"`
	BaseScore   float64      `json:"baseScore"`
	Adjustments []Adjustment `json:"adjustments"`
	Unclamped   float64      `json:"unclamped"`
	Score       float64      `json:"score"`
}

// Component returns the weighted value of the named component, or 0.
func (b ScoreBreakdown) Component(name string) float64 {
	for _, c := range b.Components {
		if c.Name == name {
			return c.Value
		}
	}
	return 0
}

// Explain renders the breakdown as one line per component and adjustment.
func (b ScoreBreakdown) Explain() []string {
	lines := []string{fmt.Sprintf("Score: %.3f (base %.3f)", b.Score, b.BaseScore)}
	for _, c := range b.Components {
		lines = append(lines, fmt.Sprintf("%s: raw %.4f -> %.3f (weight %.2f)", c.Name, c.Raw, c.Value, c.Weight))
	}
	for _, a := range b.Adjustments {
		lines = append(lines, fmt.Sprintf("%s x%.2f", a.Name, a.Factor))
	}
	if b.Unclamped != b.Score {
		lines = append(lines, fmt.Sprintf("clamped from %.3f", b.Unclamped))
	}
	return lines
}

// Pick is a scored candidate. Picks are immutable once created.
type Pick struct {
	ID                string     `json:"id"`
	AsOf              time.Time  `json:"asof"`
	Symbol            string     `json:"symbol"`
	Strategy          Strategy   `json:"strategy"`
	Strike            float64    `json:"strike"`
	Expiry            time.Time  `json:"expiry"`
	DTE               int        `json:"dte"`
	Premium           float64    `json:"premium"`
	StockPrice        float64    `json:"stockPrice"`
	Bid               float64    `json:"bid"`
	Ask               float64    `json:"ask"`
	SpreadPct         float64    `json:"spreadPct"`
	Delta             float64    `json:"delta"`
	IV                float64    `json:"iv"`
	OpenInterest      float64    `json:"openInterest"`
	Volume            float64    `json:"volume"`
	ROIPeriod         float64    `json:"roiPeriod"`
	ROI30d            float64    `json:"roi30d"`
	AnnualizedReturn  float64    `json:"annualizedReturn"`
	Moneyness         float64    `json:"moneyness,omitempty"`
	MarginOfSafety    float64    `json:"marginOfSafety,omitempty"`
	IVRank            float64    `json:"ivRank"`
	IVPercentile      float64    `json:"ivPercentile"`
	HV20              float64    `json:"hv20"`
	HV60              float64    `json:"hv60"`
	TrendStrength     float64    `json:"trendStrength"`
	TrendStability    float64    `json:"trendStability"`
	Below200SMA       bool       `json:"below200sma"`
	InUptrend         bool       `json:"inUptrend"`
	SupportLevel      *float64   `json:"supportLevel"`
	Score             float64    `json:"score"`
	Signal            Signal     `json:"signal"`
	PutCallRatio      *float64   `json:"putCallRatio"`
	CMF20             *float64   `json:"cmf20"`
	DividendYield     float64    `json:"dividendYield"`
	EarningsDaysUntil *int       `json:"earningsDaysUntil"`
	Notes             string     `json:"notes"`

	Breakdown ScoreBreakdown `json:"breakdown"`
	Rationale string         `json:"rationale,omitempty"`
}

// SelectedOption renders the contract as e.g. "CALL 105.00 2024-07-19".
func (p Pick) SelectedOption() string {
	side := "CALL"
	if p.Strategy == StrategyCashSecuredPut {
		side = "PUT"
	}
	return side + " " + formatStrike(p.Strike) + " " + p.Expiry.Format(DateLayout)
}

// ScanLogEntry records the sentiment filter decision for one symbol.
type ScanLogEntry struct {
	Symbol       string      `json:"symbol"`
	AsOf         time.Time   `json:"asof"`
	Passed       bool        `json:"passed"`
	Reason       string      `json:"reason"`
	Signal       Signal      `json:"signal"`
	Score        float64     `json:"score"`
	PutCallRatio *float64    `json:"putCallRatio"`
	CMF20        *float64    `json:"cmf20"`
	DataQuality  DataQuality `json:"dataQuality"`
}

// FilterStats summarises one universe filter pass.
type FilterStats struct {
	Total           int     `json:"total"`
	Step1Passed     int     `json:"step1Passed"`
	Step2Passed     int     `json:"step2Passed"`
	PassThrough     int     `json:"passThrough"`
	Selected        int     `json:"selected"`
	LongSignals     int     `json:"longSignals"`
	ShortSignals    int     `json:"shortSignals"`
	NegativeExtreme int     `json:"negativeExtreme"`
	PositiveExtreme int     `json:"positiveExtreme"`
	ReductionPct    float64 `json:"reductionPct"`
}

// RunSummary is the outcome of one daily pipeline pass.
type RunSummary struct {
	AsOf         time.Time        `json:"asof"`
	StartedAt    time.Time        `json:"startedAt"`
	Duration     time.Duration    `json:"duration"`
	Universe     int              `json:"universe"`
	Screened     int              `json:"screened"`
	Succeeded    int              `json:"succeeded"`
	Failed       int              `json:"failed"`
	Skipped      int              `json:"skipped"`
	PicksByType  map[Strategy]int `json:"picksByType"`
	AlertsSent   int              `json:"alertsSent"`
	AlertsFailed int              `json:"alertsFailed"`
	Filter       FilterStats      `json:"filter"`
	Successful   bool             `json:"successful"`
}

// RunSnapshot is what the dashboard reads: the last run's ranked picks and scan log.
type RunSnapshot struct {
	AsOf        time.Time      `json:"asof"`
	GeneratedAt time.Time      `json:"generatedAt"`
	Summary     RunSummary     `json:"summary"`
	Picks       []Pick         `json:"picks"`
	ScanLog     []ScanLogEntry `json:"scanLog"`
}

// AlertRecord is one delivery attempt of a pick to a channel.
type AlertRecord struct {
	PickID  string    `json:"pickId"`
	Channel string    `json:"channel"`
	Status  string    `json:"status"`
	SentAt  time.Time `json:"sentAt"`
	Error   string    `json:"error,omitempty"`
}

const (
	AlertStatusSent   = "sent"
	AlertStatusFailed = "failed"
)
