package config

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App       AppConfig
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Polygon   PolygonConfig
	Telegram  TelegramConfig
	Anthropic AnthropicConfig
	Firebase  FirebaseConfig
	Screener  ScreenerConfig
	Selector  SelectorConfig
	Gates     GateConfig
	Scoring   ScoringConfig
	Filter    FilterConfig
	Alerts    AlertConfig
}

type AppConfig struct {
	Env      string `envconfig:"APP_ENV" default:"development"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

type ServerConfig struct {
	Addr string `envconfig:"HTTP_ADDR" default:":8080"`
}

type DatabaseConfig struct {
	// URL is optional; without it picks live in memory only.
	URL               string        `envconfig:"DATABASE_URL"`
	SSLMode           string        `envconfig:"DB_SSLMODE" default:"require"`
	MaxConns          int32         `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int32         `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	MaxConnIdleTime   time.Duration `envconfig:"DB_MAX_CONN_IDLE_TIME" default:"5m"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTHCHECK_PERIOD" default:"30s"`
}

type RedisConfig struct {
	URL string        `envconfig:"REDIS_URL"`
	Key string        `envconfig:"REDIS_LATEST_KEY" default:"screener:latest"`
	TTL time.Duration `envconfig:"REDIS_LATEST_TTL" default:"72h"`
}

type PolygonConfig struct {
	APIKey         string        `envconfig:"POLYGON_API_KEY"`
	BaseURL        string        `envconfig:"POLYGON_BASE_URL" default:"https://api.polygon.io"`
	RequestsPerMin int           `envconfig:"POLYGON_REQUESTS_PER_MIN" default:"300"`
	Timeout        time.Duration `envconfig:"POLYGON_HTTP_TIMEOUT" default:"20s"`
}

type TelegramConfig struct {
	Enabled  bool    `envconfig:"TELEGRAM_ENABLED" default:"false"`
	BotToken string  `envconfig:"TELEGRAM_BOT_TOKEN"`
	ChatIDs  []int64 `envconfig:"TELEGRAM_CHAT_ID"`
	// RateLimit is messages per second across all chats.
	RateLimit float64 `envconfig:"TELEGRAM_RATE_LIMIT" default:"1"`
	Burst     int     `envconfig:"TELEGRAM_RATE_BURST" default:"3"`
}

type AnthropicConfig struct {
	Enabled   bool   `envconfig:"CLAUDE_ENABLED" default:"true"`
	APIKey    string `envconfig:"ANTHROPIC_API_KEY"`
	Model     string `envconfig:"CLAUDE_MODEL" default:"claude-3-haiku-20240307"`
	MaxTokens int64  `envconfig:"CLAUDE_MAX_TOKENS" default:"500"`
}

type FirebaseConfig struct {
	CredentialsPath string `envconfig:"FIREBASE_CREDENTIALS_PATH"`
	CredentialsJSON string `envconfig:"FIREBASE_CREDENTIALS_JSON"`
}

type ScreenerConfig struct {
	Symbols      []string `envconfig:"DEFAULT_SYMBOLS" default:"AAPL,MSFT,GOOGL,AMZN,TSLA,SPY,QQQ,IWM,DIA,META"`
	UniverseFile string   `envconfig:"UNIVERSE_FILE"`
	CCEnabled    bool     `envconfig:"CC_ENABLED" default:"true"`
	CSPEnabled   bool     `envconfig:"CSP_ENABLED" default:"true"`
	// Schedule is a 6-field cron expression (seconds first) in MarketTZ.
	Schedule        string        `envconfig:"SCREENER_SCHEDULE" default:"0 0 18 * * 1-5"`
	MarketTZ        string        `envconfig:"MARKET_TIMEZONE" default:"America/New_York"`
	Concurrency     int           `envconfig:"SCREENER_CONCURRENCY" default:"8"`
	SymbolTimeout   time.Duration `envconfig:"SCREENER_SYMBOL_TIMEOUT" default:"45s"`
	MaxRetries      int           `envconfig:"MAX_RETRIES" default:"3"`
	RetryDelay      time.Duration `envconfig:"RETRY_DELAY" default:"1s"`
	HistoryDays     int           `envconfig:"PRICE_HISTORY_DAYS" default:"400"`
	IVHistoryWindow int           `envconfig:"IV_HISTORY_WINDOW" default:"252"`
	MinSuccessRatio float64       `envconfig:"MIN_SUCCESS_RATIO" default:"0.5"`
}

// SelectorConfig holds the hard contract filters.
type SelectorConfig struct {
	MinDTE          int     `envconfig:"SELECTOR_MIN_DTE"`
	MaxDTE          int     `envconfig:"SELECTOR_MAX_DTE"`
	CCDeltaMin      float64 `envconfig:"CC_DELTA_MIN"`
	CCDeltaMax      float64 `envconfig:"CC_DELTA_MAX"`
	CSPDeltaMin     float64 `envconfig:"CSP_DELTA_MIN"`
	CSPDeltaMax     float64 `envconfig:"CSP_DELTA_MAX"`
	CCStrikeMinPct  float64 `envconfig:"CC_STRIKE_MIN_PCT"`
	CCStrikeMaxPct  float64 `envconfig:"CC_STRIKE_MAX_PCT"`
	CSPStrikeMinPct float64 `envconfig:"CSP_STRIKE_MIN_PCT"`
	CSPStrikeMaxPct float64 `envconfig:"CSP_STRIKE_MAX_PCT"`
	MinOpenInterest float64 `envconfig:"MIN_OPTION_OI"`
	MinVolume       float64 `envconfig:"MIN_OPTION_VOLUME"`
	MaxSpreadPct    float64 `envconfig:"MAX_SPREAD_PCT"`
	MinMid          float64 `envconfig:"MIN_OPTION_MID"`
}

// GateConfig holds the per-symbol pre-screen thresholds.
type GateConfig struct {
	MinPrice              float64 `envconfig:"MIN_PRICE"`
	CCMinIVRank           float64 `envconfig:"CC_MIN_IVR"`
	CSPMinIVRank          float64 `envconfig:"CSP_MIN_IVR"`
	MaxHV60               float64 `envconfig:"MAX_HV_60"`
	CCAnnualizedTarget    float64 `envconfig:"CC_ANNUALIZED_TARGET"`
	CSPAnnualizedTarget   float64 `envconfig:"CSP_ANNUALIZED_TARGET"`
	EarningsExclusionDays int     `envconfig:"EARNINGS_EXCLUSION_DAYS"`
}

type CCWeights struct {
	IVRank   float64 `envconfig:"CC_WEIGHT_IV_RANK"`
	ROI      float64 `envconfig:"CC_WEIGHT_ROI"`
	Trend    float64 `envconfig:"CC_WEIGHT_TREND"`
	Dividend float64 `envconfig:"CC_WEIGHT_DIVIDEND"`
	Theta    float64 `envconfig:"CC_WEIGHT_THETA"`
	Gamma    float64 `envconfig:"CC_WEIGHT_GAMMA"`
	Vega     float64 `envconfig:"CC_WEIGHT_VEGA"`
}

func (w CCWeights) values() map[string]float64 {
	return map[string]float64{
		"iv_rank": w.IVRank, "roi_30d": w.ROI, "trend_strength": w.Trend, "dividend_yield": w.Dividend,
		"theta": w.Theta, "gamma": w.Gamma, "vega": w.Vega,
	}
}

func (w CCWeights) Sum() float64 {
	return w.IVRank + w.ROI + w.Trend + w.Dividend + w.Theta + w.Gamma + w.Vega
}

type CSPWeights struct {
	IVRank         float64 `envconfig:"CSP_WEIGHT_IV_RANK"`
	ROI            float64 `envconfig:"CSP_WEIGHT_ROI"`
	MarginOfSafety float64 `envconfig:"CSP_WEIGHT_MARGIN"`
	Stability      float64 `envconfig:"CSP_WEIGHT_STABILITY"`
	Theta          float64 `envconfig:"CSP_WEIGHT_THETA"`
	Gamma          float64 `envconfig:"CSP_WEIGHT_GAMMA"`
	Vega           float64 `envconfig:"CSP_WEIGHT_VEGA"`
}

func (w CSPWeights) values() map[string]float64 {
	return map[string]float64{
		"iv_rank": w.IVRank, "roi_30d": w.ROI, "margin_of_safety": w.MarginOfSafety, "trend_stability": w.Stability,
		"theta": w.Theta, "gamma": w.Gamma, "vega": w.Vega,
	}
}

func (w CSPWeights) Sum() float64 {
	return w.IVRank + w.ROI + w.MarginOfSafety + w.Stability + w.Theta + w.Gamma + w.Vega
}

type ScoringConfig struct {
	CC  CCWeights
	CSP CSPWeights
	// NearEarningsDays is the +/- window that flags a CC as near earnings.
	NearEarningsDays int `envconfig:"NEAR_EARNINGS_DAYS"`
}

// FilterConfig drives the two-step universe sentiment filter.
type FilterConfig struct {
	Enabled          bool    `envconfig:"SENTIMENT_FILTER_ENABLED"`
	PercentileCutoff float64 `envconfig:"SENTIMENT_PERCENTILE_CUTOFF"`
	CMFDivergence    float64 `envconfig:"SENTIMENT_CMF_DIVERGENCE"`
	PCRExtremeHigh   float64 `envconfig:"SENTIMENT_PCR_HIGH"`
	PCRExtremeLow    float64 `envconfig:"SENTIMENT_PCR_LOW"`
	MaxSymbols       int     `envconfig:"SENTIMENT_MAX_SYMBOLS"`
}

type AlertConfig struct {
	TopNPerStrategy int     `envconfig:"TOP_N"`
	ScoreThreshold  float64 `envconfig:"SCORE_THRESHOLD"`
	MaxPicks        int     `envconfig:"MAX_PICKS_TO_ALERT"`
}

func DefaultSelector() SelectorConfig {
	return SelectorConfig{
		MinDTE:          30,
		MaxDTE:          45,
		CCDeltaMin:      0.25,
		CCDeltaMax:      0.35,
		CSPDeltaMin:     0.25,
		CSPDeltaMax:     0.30,
		CCStrikeMinPct:  1.02,
		CCStrikeMaxPct:  1.05,
		CSPStrikeMinPct: 0.95,
		CSPStrikeMaxPct: 0.98,
		MinOpenInterest: 500,
		MinVolume:       50,
		MaxSpreadPct:    0.10,
		MinMid:          0.01,
	}
}

func DefaultGates() GateConfig {
	return GateConfig{
		MinPrice:              10,
		CCMinIVRank:           40,
		CSPMinIVRank:          50,
		MaxHV60:               0.50,
		CCAnnualizedTarget:    0.15,
		CSPAnnualizedTarget:   0.12,
		EarningsExclusionDays: 10,
	}
}

func DefaultScoring() ScoringConfig {
	return ScoringConfig{
		CC: CCWeights{
			IVRank: 0.25, ROI: 0.30, Trend: 0.15, Dividend: 0.05,
			Theta: 0.10, Gamma: 0.05, Vega: 0.10,
		},
		CSP: CSPWeights{
			IVRank: 0.25, ROI: 0.30, MarginOfSafety: 0.15, Stability: 0.05,
			Theta: 0.10, Gamma: 0.05, Vega: 0.10,
		},
		NearEarningsDays: 10,
	}
}

func DefaultFilter() FilterConfig {
	return FilterConfig{
		Enabled:          true,
		PercentileCutoff: 85,
		CMFDivergence:    0.1,
		PCRExtremeHigh:   1.5,
		PCRExtremeLow:    0.7,
		MaxSymbols:       20,
	}
}

func DefaultAlerts() AlertConfig {
	return AlertConfig{
		TopNPerStrategy: 5,
		ScoreThreshold:  0.50,
		MaxPicks:        10,
	}
}

// Load reads .env (if present) and the process environment. Tuning sections start
// from their Default* values and are overridden only by variables that are set.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Selector: DefaultSelector(),
		Gates:    DefaultGates(),
		Scoring:  DefaultScoring(),
		Filter:   DefaultFilter(),
		Alerts:   DefaultAlerts(),
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env config: %w", err)
	}
	cfg.Screener.Symbols = normalizeSymbols(cfg.Screener.Symbols)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func normalizeSymbols(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// ConfigurationError lists every invalid setting found at startup.
type ConfigurationError struct {
	Problems []string
}

func (e *ConfigurationError) Error() string {
	return "invalid configuration: " + strings.Join(e.Problems, "; ")
}

const weightTolerance = 1e-9

// Validate fails loudly on malformed weights or thresholds.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	problems = append(problems, c.Scoring.problems()...)
	problems = append(problems, c.Selector.problems()...)

	g := c.Gates
	if g.MinPrice < 0 {
		add("MIN_PRICE must be >= 0")
	}
	if !inRange(g.CCMinIVRank, 0, 100) || !inRange(g.CSPMinIVRank, 0, 100) {
		add("minimum IV rank gates must be within [0,100]")
	}
	if g.MaxHV60 <= 0 {
		add("MAX_HV_60 must be > 0")
	}
	if g.EarningsExclusionDays < 0 {
		add("EARNINGS_EXCLUSION_DAYS must be >= 0")
	}

	f := c.Filter
	if !inRange(f.PercentileCutoff, 50, 100) {
		add("SENTIMENT_PERCENTILE_CUTOFF %.2f must be within [50,100]", f.PercentileCutoff)
	}
	if f.PCRExtremeLow >= f.PCRExtremeHigh {
		add("SENTIMENT_PCR_LOW must be below SENTIMENT_PCR_HIGH")
	}
	if f.CMFDivergence < 0 || f.CMFDivergence > 1 {
		add("SENTIMENT_CMF_DIVERGENCE must be within [0,1]")
	}
	if f.MaxSymbols < 1 {
		add("SENTIMENT_MAX_SYMBOLS must be >= 1")
	}

	a := c.Alerts
	if a.TopNPerStrategy < 0 || a.MaxPicks < 0 {
		add("alert limits must be >= 0")
	}
	if !inRange(a.ScoreThreshold, 0, 1) {
		add("SCORE_THRESHOLD must be within [0,1]")
	}

	s := c.Screener
	if s.Concurrency < 1 {
		add("SCREENER_CONCURRENCY must be >= 1")
	}
	if s.MaxRetries < 1 {
		add("MAX_RETRIES must be >= 1")
	}
	if s.SymbolTimeout <= 0 {
		add("SCREENER_SYMBOL_TIMEOUT must be > 0")
	}
	if !inRange(s.MinSuccessRatio, 0, 1) {
		add("MIN_SUCCESS_RATIO must be within [0,1]")
	}
	if len(s.Symbols) == 0 && s.UniverseFile == "" {
		add("either DEFAULT_SYMBOLS or UNIVERSE_FILE is required")
	}
	if !s.CCEnabled && !s.CSPEnabled {
		add("at least one of CC_ENABLED / CSP_ENABLED must be true")
	}
	if _, err := time.LoadLocation(s.MarketTZ); err != nil {
		add("MARKET_TIMEZONE %q: %v", s.MarketTZ, err)
	}

	if c.Telegram.Enabled && (c.Telegram.BotToken == "" || len(c.Telegram.ChatIDs) == 0) {
		add("TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID are required when TELEGRAM_ENABLED")
	}

	if len(problems) > 0 {
		return &ConfigurationError{Problems: problems}
	}
	return nil
}

func (s ScoringConfig) problems() []string {
	var out []string
	check := func(prefix string, sum float64, vals map[string]float64) {
		for k, v := range vals {
			if !inRange(v, 0, 1) {
				out = append(out, fmt.Sprintf("%s weight %s=%.4f must be within [0,1]", prefix, k, v))
			}
		}
		if math.Abs(sum-1.0) > weightTolerance {
			out = append(out, fmt.Sprintf("%s weights sum to %.6f, want 1.0", prefix, sum))
		}
	}
	check("CC", s.CC.Sum(), s.CC.values())
	check("CSP", s.CSP.Sum(), s.CSP.values())
	if s.NearEarningsDays < 0 {
		out = append(out, "NEAR_EARNINGS_DAYS must be >= 0")
	}
	return out
}

// Validate checks only the scoring section.
func (s ScoringConfig) Validate() error {
	if p := s.problems(); len(p) > 0 {
		return &ConfigurationError{Problems: p}
	}
	return nil
}

func (s SelectorConfig) problems() []string {
	var out []string
	if s.MinDTE < 0 || s.MinDTE > s.MaxDTE {
		out = append(out, "selector DTE range is invalid")
	}
	if !ordered(s.CCDeltaMin, s.CCDeltaMax) || !inRange(s.CCDeltaMax, 0, 1) {
		out = append(out, "CC delta range is invalid")
	}
	if !ordered(s.CSPDeltaMin, s.CSPDeltaMax) || !inRange(s.CSPDeltaMax, 0, 1) {
		out = append(out, "CSP delta range is invalid")
	}
	if !ordered(s.CCStrikeMinPct, s.CCStrikeMaxPct) || s.CCStrikeMinPct < 1 {
		out = append(out, "CC strike range must be ordered and out of the money")
	}
	if !ordered(s.CSPStrikeMinPct, s.CSPStrikeMaxPct) || s.CSPStrikeMaxPct > 1 {
		out = append(out, "CSP strike range must be ordered and out of the money")
	}
	if s.MinOpenInterest < 0 || s.MinVolume < 0 || s.MaxSpreadPct <= 0 || s.MinMid < 0 {
		out = append(out, "liquidity thresholds are invalid")
	}
	return out
}

func inRange(v, lo, hi float64) bool {
	return !math.IsNaN(v) && v >= lo && v <= hi
}

func ordered(lo, hi float64) bool {
	return lo >= 0 && lo <= hi
}
