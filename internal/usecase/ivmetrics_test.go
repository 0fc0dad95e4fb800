package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"income-screener/internal/domain"
)

func TestIVRank(t *testing.T) {
	tests := []struct {
		name    string
		current float64
		history []float64
		want    float64
	}{
		{"midpoint", 0.30, []float64{0.20, 0.40, 0.25}, 50},
		{"at max", 0.40, []float64{0.20, 0.40}, 100},
		{"above max clamps", 0.60, []float64{0.20, 0.40}, 100},
		{"below min clamps", 0.10, []float64{0.20, 0.40}, 0},
		{"flat history", 0.30, []float64{0.25, 0.25, 0.25}, 50},
		{"single observation", 0.30, []float64{0.25}, 50},
		{"no history", 0.30, nil, 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, IVRank(tt.current, tt.history), 1e-9)
		})
	}
}

func TestIVPercentile(t *testing.T) {
	history := []float64{0.1, 0.2, 0.3, 0.4}

	assert.InDelta(t, 50.0, IVPercentile(0.3, history), 1e-9, "strictly below")
	assert.InDelta(t, 100.0, IVPercentile(0.5, history), 1e-9)
	assert.InDelta(t, 0.0, IVPercentile(0.1, history), 1e-9)
	assert.Equal(t, 50.0, IVPercentile(0.3, nil))
}

func TestComputeIVMetrics(t *testing.T) {
	m := ComputeIVMetrics("AAA", testAsOf, 0.35, []float64{0.2, 0.3, 0.4})

	assert.Equal(t, "AAA", m.Symbol)
	assert.Equal(t, 0.35, m.CurrentIV)
	assert.InDelta(t, 75.0, m.IVRank, 1e-9)
	assert.InDelta(t, 200.0/3, m.IVPercentile, 1e-9)
	assert.Equal(t, 3, m.HistoryLen)
}

func TestATMImpliedVolatility(t *testing.T) {
	withIV := func(c domain.OptionContract, iv, oi, vol float64) domain.OptionContract {
		c.ImpliedVolatility = iv
		c.OpenInterest = oi
		c.Volume = vol
		return c
	}

	t.Run("weighted by volume and open interest per side", func(t *testing.T) {
		chain := []domain.OptionContract{
			withIV(call(100, 0.5, 1, 1.1, 30), 0.30, 100, 0),
			withIV(call(101, 0.45, 1, 1.1, 32), 0.50, 250, 50),
			withIV(put(99, -0.45, 1, 1.1, 28), 0.35, 10, 10),
			withIV(call(100, 0.5, 1, 1.1, 90), 0.90, 5000, 5000),
			withIV(put(80, -0.05, 1, 1.1, 30), 0.90, 5000, 5000),
		}
		// calls: (0.30*100 + 0.50*300) / 400 = 0.45; puts: 0.35
		assert.InDelta(t, 0.40, ATMImpliedVolatility(chain, 100, 30), 1e-9)
	})

	t.Run("nearest strike when nothing is at the money", func(t *testing.T) {
		chain := []domain.OptionContract{
			withIV(call(110, 0.2, 1, 1.1, 30), 0.28, 10, 10),
			withIV(put(85, -0.1, 1, 1.1, 30), 0.40, 10, 10),
		}
		assert.InDelta(t, 0.28, ATMImpliedVolatility(chain, 100, 30), 1e-9)
	})

	t.Run("falls back to all expiries", func(t *testing.T) {
		chain := []domain.OptionContract{withIV(put(100, -0.5, 1, 1.1, 120), 0.33, 10, 10)}
		assert.InDelta(t, 0.33, ATMImpliedVolatility(chain, 100, 30), 1e-9)
	})

	t.Run("zero weights use the plain mean", func(t *testing.T) {
		chain := []domain.OptionContract{
			withIV(call(100, 0.5, 1, 1.1, 30), 0.20, 0, 0),
			withIV(call(100.5, 0.5, 1, 1.1, 30), 0.40, 0, 0),
		}
		assert.InDelta(t, 0.30, ATMImpliedVolatility(chain, 100, 30), 1e-9)
	})

	t.Run("empty chain", func(t *testing.T) {
		assert.Equal(t, 0.25, ATMImpliedVolatility(nil, 100, 30))
	})

	t.Run("no spot uses mean chain iv", func(t *testing.T) {
		chain := []domain.OptionContract{
			withIV(call(100, 0.5, 1, 1.1, 30), 0.20, 1, 1),
			withIV(put(100, -0.5, 1, 1.1, 30), 0.40, 1, 1),
		}
		assert.InDelta(t, 0.30, ATMImpliedVolatility(chain, 0, 30), 1e-9)
	})
}
