package usecase

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"income-screener/internal/config"
	"income-screener/internal/domain"
)

func TestSelectContract_CoveredCallDeltaBand(t *testing.T) {
	cfg := config.DefaultSelector()
	chain := []domain.OptionContract{
		call(104.5, 0.20, 2.95, 3.05, 35),
		call(103.5, 0.28, 1.95, 2.05, 35),
		call(102.5, 0.40, 3.95, 4.05, 35),
	}

	sel, err := SelectContract(100, chain, domain.StrategyCoveredCall, cfg)
	require.NoError(t, err)
	assert.Equal(t, 0.28, sel.Contract.Delta)
	assert.InDelta(t, 2.0, sel.Mid, 1e-9)
	assert.InDelta(t, 0.05, sel.SpreadPct, 1e-9)
	assert.InDelta(t, 0.02, sel.ROIPeriod, 1e-9)
	assert.InDelta(t, 0.02*30/35, sel.ROI30d, 1e-9)
	assert.InDelta(t, 0.02*365/35, sel.AnnualizedReturn, 1e-9)
	assert.InDelta(t, 0.035, sel.Moneyness, 1e-9)
	assert.Zero(t, sel.MarginOfSafety)

	chain[1].OpenInterest = 499
	_, err = SelectContract(100, chain, domain.StrategyCoveredCall, cfg)
	assert.True(t, errors.Is(err, domain.ErrNoEligibleContract))
}

func TestSelectContract_CashSecuredPut(t *testing.T) {
	cfg := config.DefaultSelector()
	chain := []domain.OptionContract{
		put(96, -0.27, 1.40, 1.50, 30),
		put(97, -0.32, 1.90, 2.00, 30),
		call(96, 0.27, 1.40, 1.50, 30),
	}

	sel, err := SelectContract(100, chain, domain.StrategyCashSecuredPut, cfg)
	require.NoError(t, err)
	assert.Equal(t, 96.0, sel.Contract.Strike)
	assert.Equal(t, domain.SidePut, sel.Contract.Side)
	assert.InDelta(t, 1.45/96, sel.ROIPeriod, 1e-9, "put basis is the strike")
	assert.InDelta(t, 0.04, sel.MarginOfSafety, 1e-9)
	assert.Zero(t, sel.Moneyness)
}

func TestSelectContract_MaxROIWins(t *testing.T) {
	cfg := config.DefaultSelector()
	chain := []domain.OptionContract{
		call(103.5, 0.30, 1.95, 2.05, 42),
		call(103.5, 0.30, 1.95, 2.05, 31),
	}

	sel, err := SelectContract(100, chain, domain.StrategyCoveredCall, cfg)
	require.NoError(t, err)
	assert.Equal(t, 31, sel.Contract.DTE)
}

func TestSelectContract_TieBreaks(t *testing.T) {
	cfg := config.DefaultSelector()

	t.Run("nearest target strike", func(t *testing.T) {
		chain := []domain.OptionContract{
			call(104.5, 0.30, 1.95, 2.05, 35),
			call(103.25, 0.26, 1.95, 2.05, 35),
		}
		sel, err := SelectContract(100, chain, domain.StrategyCoveredCall, cfg)
		require.NoError(t, err)
		assert.Equal(t, 103.25, sel.Contract.Strike)
	})

	t.Run("then nearest mid-band delta", func(t *testing.T) {
		chain := []domain.OptionContract{
			call(103.0, 0.26, 1.95, 2.05, 35),
			call(104.0, 0.31, 1.95, 2.05, 35),
		}
		sel, err := SelectContract(100, chain, domain.StrategyCoveredCall, cfg)
		require.NoError(t, err)
		assert.Equal(t, 104.0, sel.Contract.Strike)
	})

	t.Run("then lower strike", func(t *testing.T) {
		chain := []domain.OptionContract{
			call(104.0, 0.30, 1.95, 2.05, 35),
			call(103.0, 0.30, 1.95, 2.05, 35),
		}
		sel, err := SelectContract(100, chain, domain.StrategyCoveredCall, cfg)
		require.NoError(t, err)
		assert.Equal(t, 103.0, sel.Contract.Strike)
	})
}

func TestIsEligible_Reasons(t *testing.T) {
	cfg := config.DefaultSelector()
	good := call(103.5, 0.30, 1.95, 2.05, 35)

	ok, reason := IsEligible(good, 100, domain.StrategyCoveredCall, cfg)
	require.True(t, ok, reason)

	tests := []struct {
		name   string
		mutate func(c *domain.OptionContract)
		want   string
	}{
		{"dte too short", func(c *domain.OptionContract) { c.DTE = 20 }, "dte"},
		{"dte too long", func(c *domain.OptionContract) { c.DTE = 60 }, "dte"},
		{"delta too high", func(c *domain.OptionContract) { c.Delta = 0.40 }, "delta"},
		{"strike too close", func(c *domain.OptionContract) { c.Strike = 101 }, "strike"},
		{"strike too far", func(c *domain.OptionContract) { c.Strike = 106 }, "strike"},
		{"thin open interest", func(c *domain.OptionContract) { c.OpenInterest = 100 }, "open interest"},
		{"thin volume", func(c *domain.OptionContract) { c.Volume = 10 }, "volume"},
		{"wide spread", func(c *domain.OptionContract) { c.Bid, c.Ask = 1.5, 2.5 }, "spread"},
		{"no bid", func(c *domain.OptionContract) { c.Bid = 0 }, "spread"},
		{"worthless", func(c *domain.OptionContract) { c.Bid, c.Ask = 0.004, 0.005 }, "mid"},
		{"wrong side", func(c *domain.OptionContract) { c.Side = domain.SidePut }, "not a call"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := good
			tt.mutate(&c)
			ok, reason := IsEligible(c, 100, domain.StrategyCoveredCall, cfg)
			assert.False(t, ok)
			assert.Contains(t, reason, tt.want)
		})
	}
}

func TestSpreadPct(t *testing.T) {
	assert.InDelta(t, 0.1, SpreadPct(domain.OptionContract{Bid: 0.95, Ask: 1.05}), 1e-9)
	assert.Equal(t, 1.0, SpreadPct(domain.OptionContract{Bid: 0, Ask: 1.05}))
	assert.Equal(t, 1.0, SpreadPct(domain.OptionContract{Bid: 1, Ask: 0}))
}

// Whatever the chain, a selection passes every hard filter and no eligible
// contract beats it on 30-day ROI.
func TestSelectContract_SelectionIsEligibleAndBest(t *testing.T) {
	cfg := config.DefaultSelector()
	rng := rand.New(rand.NewSource(7))
	spot := 100.0

	for round := 0; round < 200; round++ {
		var chain []domain.OptionContract
		for i := 0; i < 40; i++ {
			strike := 90 + rng.Float64()*20
			mid := 0.5 + rng.Float64()*3
			half := mid * rng.Float64() * 0.08
			c := call(strike, rng.Float64()*0.5, mid-half, mid+half, 20+rng.Intn(35))
			if rng.Intn(2) == 0 {
				c.Side = domain.SidePut
				c.Delta = -c.Delta
			}
			c.OpenInterest = float64(rng.Intn(1500))
			c.Volume = float64(rng.Intn(200))
			chain = append(chain, c)
		}

		for _, strategy := range []domain.Strategy{domain.StrategyCoveredCall, domain.StrategyCashSecuredPut} {
			sel, err := SelectContract(spot, chain, strategy, cfg)
			if err != nil {
				require.ErrorIs(t, err, domain.ErrNoEligibleContract)
				for _, c := range chain {
					ok, _ := IsEligible(c, spot, strategy, cfg)
					require.False(t, ok)
				}
				continue
			}
			ok, reason := IsEligible(sel.Contract, spot, strategy, cfg)
			require.True(t, ok, reason)
			for _, c := range chain {
				if ok, _ := IsEligible(c, spot, strategy, cfg); ok {
					other := buildSelection(c, spot, strategy)
					require.LessOrEqual(t, other.ROI30d, sel.ROI30d)
				}
			}
		}
	}
}

func TestSelectContract_IsRepeatable(t *testing.T) {
	cfg := config.DefaultSelector()
	chain := goodChain()
	before := append([]domain.OptionContract(nil), chain...)

	for _, strategy := range []domain.Strategy{domain.StrategyCoveredCall, domain.StrategyCashSecuredPut} {
		first, err := SelectContract(100, chain, strategy, cfg)
		require.NoError(t, err)
		again, err := SelectContract(100, chain, strategy, cfg)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
	assert.Equal(t, before, chain)
}
