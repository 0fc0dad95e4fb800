package repository

import (
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"income-screener/internal/domain"
)

// fakeRow feeds values into Scan destinations, converting the few types
// Postgres would hand back differently from what was written.
type fakeRow struct {
	values []any
}

func (r fakeRow) Scan(dest ...any) error {
	if len(dest) != len(r.values) {
		return fmt.Errorf("scan: %d destinations for %d values", len(dest), len(r.values))
	}
	for i, d := range dest {
		v := r.values[i]
		target := reflect.ValueOf(d).Elem()
		switch x := v.(type) {
		case decimal.Decimal:
			if _, ok := d.(*decimal.NullDecimal); ok {
				v = decimal.NullDecimal{Decimal: x, Valid: true}
			}
		case pgtype.Numeric:
			v = decimal.NullDecimal{}
		}
		val := reflect.ValueOf(v)
		if !val.Type().AssignableTo(target.Type()) {
			return fmt.Errorf("scan column %d: %s into %s", i, val.Type(), target.Type())
		}
		target.Set(val)
	}
	return nil
}

func samplePick() domain.Pick {
	asof := time.Date(2024, 6, 14, 0, 0, 0, 0, time.UTC)
	support := 95.123456
	pcr := 1.35
	days := 12
	return domain.Pick{
		ID:                "p-1",
		AsOf:              asof,
		Symbol:            "AAPL",
		Strategy:          domain.StrategyCashSecuredPut,
		Strike:            96,
		Expiry:            asof.AddDate(0, 0, 35),
		DTE:               35,
		Premium:           1.254999,
		StockPrice:        99.8,
		Bid:               1.2,
		Ask:               1.3,
		SpreadPct:         0.08,
		Delta:             -0.27,
		IV:                0.3,
		OpenInterest:      1000,
		Volume:            100,
		ROIPeriod:         0.013,
		ROI30d:            0.0112,
		AnnualizedReturn:  0.136,
		MarginOfSafety:    0.038,
		IVRank:            66.7,
		IVPercentile:      55,
		InUptrend:         true,
		SupportLevel:      &support,
		Score:             0.71,
		Signal:            domain.SignalLong,
		PutCallRatio:      &pcr,
		EarningsDaysUntil: &days,
		Notes:             "Uptrend",
		Breakdown: domain.ScoreBreakdown{
			Strategy:  domain.StrategyCashSecuredPut,
			BaseScore: 0.65,
			Score:     0.71,
			Adjustments: []domain.Adjustment{
				{Name: "sentiment_long", Factor: 1.1},
			},
		},
	}
}

func TestPickArgsMatchColumns(t *testing.T) {
	args, err := pickArgs(samplePick())
	require.NoError(t, err)
	assert.Len(t, args, len(pickColumnList))
	assert.Equal(t, strings.Count(insertPickSQL, "$"), len(pickColumnList))
	assert.Contains(t, insertPickSQL, "$38)")
}

func TestPickRoundTrip(t *testing.T) {
	in := samplePick()
	args, err := pickArgs(in)
	require.NoError(t, err)

	got, err := scanPick(fakeRow{values: append(args, "Good premium for the risk")})
	require.NoError(t, err)

	assert.Equal(t, in.ID, got.ID)
	assert.Equal(t, in.Strategy, got.Strategy)
	assert.Equal(t, 96.0, got.Strike)
	assert.Equal(t, 1.255, got.Premium, "premium is stored at 4 places")
	require.NotNil(t, got.SupportLevel)
	assert.Equal(t, 95.1235, *got.SupportLevel)
	require.NotNil(t, got.PutCallRatio)
	assert.Equal(t, 1.35, *got.PutCallRatio)
	assert.Nil(t, got.CMF20)
	require.NotNil(t, got.EarningsDaysUntil)
	assert.Equal(t, 12, *got.EarningsDaysUntil)
	assert.Equal(t, domain.SignalLong, got.Signal)
	assert.Equal(t, in.Breakdown, got.Breakdown)
	assert.Equal(t, "Good premium for the risk", got.Rationale)
}

func TestPickRoundTrip_Nulls(t *testing.T) {
	in := samplePick()
	in.SupportLevel = nil
	in.PutCallRatio = nil
	in.EarningsDaysUntil = nil
	args, err := pickArgs(in)
	require.NoError(t, err)

	got, err := scanPick(fakeRow{values: append(args, "")})
	require.NoError(t, err)
	assert.Nil(t, got.SupportLevel)
	assert.Nil(t, got.PutCallRatio)
	assert.Nil(t, got.EarningsDaysUntil)
}

func TestMoney(t *testing.T) {
	assert.Equal(t, "103.25", money(103.245000001, 2).String())
	assert.Equal(t, "0.1", money(0.1, 4).String())
	assert.Equal(t, "p.id, p.asof", prefixed("p.", []string{"id", "asof"}))
	assert.Equal(t, "$1,$2,$3", placeholders(3))
}
