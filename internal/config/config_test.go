package config

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultSelector(), cfg.Selector)
	assert.Equal(t, DefaultGates(), cfg.Gates)
	assert.Equal(t, DefaultScoring(), cfg.Scoring)
	assert.Equal(t, DefaultFilter(), cfg.Filter)
	assert.Equal(t, DefaultAlerts(), cfg.Alerts)

	assert.Equal(t, []string{"AAPL", "MSFT", "GOOGL", "AMZN", "TSLA", "SPY", "QQQ", "IWM", "DIA", "META"}, cfg.Screener.Symbols)
	assert.Equal(t, "0 0 18 * * 1-5", cfg.Screener.Schedule)
	assert.Equal(t, 45*time.Second, cfg.Screener.SymbolTimeout)
	assert.Equal(t, 3, cfg.Screener.MaxRetries)
	assert.Equal(t, "claude-3-haiku-20240307", cfg.Anthropic.Model)
	assert.Equal(t, int64(500), cfg.Anthropic.MaxTokens)
	assert.Equal(t, "require", cfg.Database.SSLMode)
	assert.Equal(t, 72*time.Hour, cfg.Redis.TTL)
}

func TestDefaultsMatchDocumentedConstants(t *testing.T) {
	s := DefaultSelector()
	assert.Equal(t, 30, s.MinDTE)
	assert.Equal(t, 45, s.MaxDTE)
	assert.Equal(t, 500.0, s.MinOpenInterest)
	assert.Equal(t, 0.10, s.MaxSpreadPct)

	sc := DefaultScoring()
	assert.InDelta(t, 1.0, sc.CC.Sum(), 1e-12)
	assert.InDelta(t, 1.0, sc.CSP.Sum(), 1e-12)
	assert.NoError(t, sc.Validate())

	a := DefaultAlerts()
	assert.Equal(t, 5, a.TopNPerStrategy)
	assert.Equal(t, 0.50, a.ScoreThreshold)
	assert.Equal(t, 10, a.MaxPicks)
}

func TestLoadOverridesFromEnv(t *testing.T) {
	t.Setenv("DEFAULT_SYMBOLS", " spy, qqq ,SPY,,iwm")
	t.Setenv("MIN_PRICE", "20")
	t.Setenv("TOP_N", "3")
	t.Setenv("TELEGRAM_CHAT_ID", "111,-222")
	t.Setenv("TELEGRAM_ENABLED", "true")
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("CC_WEIGHT_IV_RANK", "0.20")
	t.Setenv("CC_WEIGHT_ROI", "0.35")
	t.Setenv("SCREENER_SYMBOL_TIMEOUT", "1m")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"SPY", "QQQ", "IWM"}, cfg.Screener.Symbols)
	assert.Equal(t, 20.0, cfg.Gates.MinPrice)
	assert.Equal(t, DefaultGates().CCMinIVRank, cfg.Gates.CCMinIVRank)
	assert.Equal(t, 3, cfg.Alerts.TopNPerStrategy)
	assert.Equal(t, 10, cfg.Alerts.MaxPicks)
	assert.Equal(t, []int64{111, -222}, cfg.Telegram.ChatIDs)
	assert.Equal(t, 0.20, cfg.Scoring.CC.IVRank)
	assert.Equal(t, 0.35, cfg.Scoring.CC.ROI)
	assert.Equal(t, time.Minute, cfg.Screener.SymbolTimeout)
}

func TestLoadRejectsBadWeights(t *testing.T) {
	t.Setenv("CSP_WEIGHT_ROI", "0.5")

	_, err := Load()
	require.Error(t, err)

	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	require.Len(t, cfgErr.Problems, 1)
	assert.Contains(t, cfgErr.Problems[0], "CSP weights sum to 1.200000")
}

func TestLoadRejectsUnparsableValue(t *testing.T) {
	t.Setenv("MAX_RETRIES", "three")

	_, err := Load()
	assert.ErrorContains(t, err, "failed to process env config")
}

func validConfig() Config {
	return Config{
		Screener: ScreenerConfig{
			Symbols:         []string{"AAPL"},
			CCEnabled:       true,
			CSPEnabled:      true,
			MarketTZ:        "America/New_York",
			Concurrency:     4,
			SymbolTimeout:   time.Second,
			MaxRetries:      3,
			MinSuccessRatio: 0.5,
		},
		Selector: DefaultSelector(),
		Gates:    DefaultGates(),
		Scoring:  DefaultScoring(),
		Filter:   DefaultFilter(),
		Alerts:   DefaultAlerts(),
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"negative weight", func(c *Config) { c.Scoring.CC.Gamma = -0.05; c.Scoring.CC.Vega = 0.20 }, "CC weight gamma=-0.0500 must be within [0,1]"},
		{"percentile below 50", func(c *Config) { c.Filter.PercentileCutoff = 40 }, "SENTIMENT_PERCENTILE_CUTOFF 40.00 must be within [50,100]"},
		{"percentile above 100", func(c *Config) { c.Filter.PercentileCutoff = 101 }, "must be within [50,100]"},
		{"pcr bounds inverted", func(c *Config) { c.Filter.PCRExtremeLow = 2 }, "SENTIMENT_PCR_LOW must be below SENTIMENT_PCR_HIGH"},
		{"zero concurrency", func(c *Config) { c.Screener.Concurrency = 0 }, "SCREENER_CONCURRENCY must be >= 1"},
		{"no strategies", func(c *Config) { c.Screener.CCEnabled = false; c.Screener.CSPEnabled = false }, "at least one of CC_ENABLED"},
		{"no universe", func(c *Config) { c.Screener.Symbols = nil }, "either DEFAULT_SYMBOLS or UNIVERSE_FILE"},
		{"bad timezone", func(c *Config) { c.Screener.MarketTZ = "Mars/Olympus" }, `MARKET_TIMEZONE "Mars/Olympus"`},
		{"dte inverted", func(c *Config) { c.Selector.MinDTE = 50 }, "selector DTE range is invalid"},
		{"itm call strikes", func(c *Config) { c.Selector.CCStrikeMinPct = 0.98 }, "CC strike range"},
		{"itm put strikes", func(c *Config) { c.Selector.CSPStrikeMaxPct = 1.01 }, "CSP strike range"},
		{"score threshold", func(c *Config) { c.Alerts.ScoreThreshold = 1.5 }, "SCORE_THRESHOLD must be within [0,1]"},
		{"telegram without chat", func(c *Config) { c.Telegram = TelegramConfig{Enabled: true, BotToken: "t"} }, "TELEGRAM_CHAT_ID are required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			require.NoError(t, c.Validate())

			tt.mutate(&c)
			err := c.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	c := validConfig()
	c.Screener.Concurrency = 0
	c.Screener.MaxRetries = 0
	c.Filter.MaxSymbols = 0

	err := c.Validate()
	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Len(t, cfgErr.Problems, 3)
	assert.True(t, strings.HasPrefix(err.Error(), "invalid configuration: "))
}
