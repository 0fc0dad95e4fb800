package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"income-screener/internal/config"
	"income-screener/internal/domain"
)

func filterUniverse() []domain.SentimentMetrics {
	return []domain.SentimentMetrics{
		{Symbol: "LONG", PutCallRatio: ptr(2.0), CMF20: ptr(0.15), Signal: domain.SignalLong,
			SentimentScore: 0.1, Extreme: domain.ExtremeNegative, Rank: 0, DataQuality: domain.QualityComplete},
		{Symbol: "FLAT", PutCallRatio: ptr(1.0), CMF20: ptr(0.0), Signal: domain.SignalNone,
			SentimentScore: 0.5, Rank: 50, DataQuality: domain.QualityComplete},
		{Symbol: "SHORT", PutCallRatio: ptr(0.5), CMF20: ptr(-0.2), Signal: domain.SignalShort,
			SentimentScore: 0.9, Extreme: domain.ExtremePositive, Rank: 100, DataQuality: domain.QualityComplete},
		{Symbol: "NODIV", PutCallRatio: ptr(1.6), CMF20: ptr(-0.1), Signal: domain.SignalNone,
			SentimentScore: 0.3, Rank: 90, DataQuality: domain.QualityComplete},
		{Symbol: "PARTIAL", PutCallRatio: ptr(1.6), Signal: domain.SignalNone,
			SentimentScore: 0.12, Rank: 88, DataQuality: domain.QualityPartial},
		{Symbol: "NODATA", Signal: domain.SignalNone, SentimentScore: 0.5, Rank: 50,
			DataQuality: domain.QualityInsufficient},
	}
}

func entryFor(t *testing.T, res FilterResult, symbol string) domain.ScanLogEntry {
	t.Helper()
	for _, e := range res.Entries {
		if e.Symbol == symbol {
			return e
		}
	}
	require.Failf(t, "missing scan log entry", "symbol %s", symbol)
	return domain.ScanLogEntry{}
}

func TestUniverseFilter_TwoStep(t *testing.T) {
	res := NewUniverseFilter(config.DefaultFilter(), nil).Apply(filterUniverse())

	assert.Equal(t, []string{"LONG", "SHORT", "NODATA"}, res.Selected)
	require.Len(t, res.Entries, 6, "every symbol is logged")

	long := entryFor(t, res, "LONG")
	assert.True(t, long.Passed)
	assert.Equal(t, "LONG - Excessive pessimism (P/C 2.00) + Accumulation (CMF +0.150)", long.Reason)

	short := entryFor(t, res, "SHORT")
	assert.True(t, short.Passed)
	assert.Contains(t, short.Reason, "SHORT - Excessive optimism (P/C 0.50)")

	flat := entryFor(t, res, "FLAT")
	assert.False(t, flat.Passed)
	assert.Contains(t, flat.Reason, "not extreme")

	noDiv := entryFor(t, res, "NODIV")
	assert.False(t, noDiv.Passed)
	assert.Contains(t, noDiv.Reason, "no divergence")

	partial := entryFor(t, res, "PARTIAL")
	assert.False(t, partial.Passed)
	assert.Equal(t, "missing CMF or P/C data", partial.Reason)

	noData := entryFor(t, res, "NODATA")
	assert.True(t, noData.Passed)
	assert.Equal(t, domain.SignalNone, noData.Signal)

	assert.Equal(t, domain.FilterStats{
		Total:           6,
		Step1Passed:     4,
		Step2Passed:     2,
		PassThrough:     1,
		Selected:        3,
		LongSignals:     1,
		ShortSignals:    1,
		NegativeExtreme: 1,
		PositiveExtreme: 1,
		ReductionPct:    50,
	}, res.Stats)
	assert.True(t, res.Passed("LONG"))
	assert.False(t, res.Passed("FLAT"))
}

func TestUniverseFilter_ModerateDivergence(t *testing.T) {
	metrics := []domain.SentimentMetrics{
		{Symbol: "MOD", PutCallRatio: ptr(1.3), CMF20: ptr(0.06), Signal: domain.SignalLong,
			SentimentScore: 0.35, Rank: 95, DataQuality: domain.QualityComplete},
	}
	res := NewUniverseFilter(config.DefaultFilter(), nil).Apply(metrics)

	require.Equal(t, []string{"MOD"}, res.Selected)
	assert.Equal(t, "MODERATE - P/C 1.30, CMF +0.060", res.Entries[0].Reason)
}

func TestUniverseFilter_Disabled(t *testing.T) {
	cfg := config.DefaultFilter()
	cfg.Enabled = false

	res := NewUniverseFilter(cfg, nil).Apply(filterUniverse())

	assert.Len(t, res.Selected, 6)
	for _, e := range res.Entries {
		assert.True(t, e.Passed)
		assert.Equal(t, "filter disabled", e.Reason)
	}
	assert.Equal(t, 0.0, res.Stats.ReductionPct)
}

func TestUniverseFilter_RankAndLimit(t *testing.T) {
	cfg := config.DefaultFilter()
	cfg.MaxSymbols = 1

	metrics := []domain.SentimentMetrics{
		{Symbol: "WEAK", PutCallRatio: ptr(1.3), CMF20: ptr(0.06), Signal: domain.SignalLong,
			SentimentScore: 0.35, Rank: 95, DataQuality: domain.QualityComplete},
		{Symbol: "STRONG", PutCallRatio: ptr(2.5), CMF20: ptr(0.3), Signal: domain.SignalLong,
			SentimentScore: 0.05, Rank: 0, DataQuality: domain.QualityComplete},
		{Symbol: "NODATA", DataQuality: domain.QualityInsufficient, SentimentScore: 0.5, Rank: 50},
	}
	res := NewUniverseFilter(cfg, nil).Apply(metrics)

	assert.Equal(t, []string{"STRONG", "NODATA"}, res.Selected, "pass-through does not count against the limit")
	weak := entryFor(t, res, "WEAK")
	assert.False(t, weak.Passed)
	assert.Contains(t, weak.Reason, "ranked out (limit 1)")
	assert.Equal(t, 2, res.Stats.Step2Passed)
	assert.Equal(t, 2, res.Stats.Selected)
}

func TestUniverseFilter_Deterministic(t *testing.T) {
	f := NewUniverseFilter(config.DefaultFilter(), nil)
	a := f.Apply(filterUniverse())
	b := f.Apply(filterUniverse())
	assert.Equal(t, a, b)
}
