package rates

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meenmo/cfengine/apperrors"
	"github.com/meenmo/cfengine/market"
)

func d(y int, m time.Month, day int) time.Time {
	return time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
}

func testEngine(t *testing.T) *Engine {
	t.Helper()
	e := NewEngine()
	require.NoError(t, e.AddCurve(Curve{
		Name:     "SOFR",
		Dates:    []time.Time{d(2025, 1, 1), d(2026, 1, 1), d(2027, 1, 1)},
		Rates:    []float64{4.0, 5.0, 6.0},
		DayCount: market.Act365F,
	}))
	require.NoError(t, e.AddForwardRates(ForwardRates{
		Index: "SOFR",
		Tenor: "1M",
		Dates: []time.Time{d(2025, 1, 1), d(2025, 12, 31)},
		Rates: []float64{4.0, 3.0},
	}))
	return e
}

func TestRate_InterpolatesAndHoldsFlat(t *testing.T) {
	t.Parallel()
	e := testEngine(t)

	r, err := e.Rate("SOFR", d(2024, 6, 1))
	require.NoError(t, err)
	assert.Equal(t, 4.0, r)

	r, err = e.Rate("SOFR", d(2030, 1, 1))
	require.NoError(t, err)
	assert.Equal(t, 6.0, r)

	// 2025-07-02 is 182 of 365 days into the first interval.
	r, err = e.Rate("SOFR", d(2025, 7, 2))
	require.NoError(t, err)
	assert.InDelta(t, 4.0+182.0/365.0, r, 1e-12)
}

func TestDiscountFactor(t *testing.T) {
	t.Parallel()
	e := testEngine(t)

	df, err := e.DiscountFactor("SOFR", d(2026, 1, 1))
	require.NoError(t, err)
	assert.InDelta(t, math.Exp(-0.05), df, 1e-12)

	df, err = e.DiscountFactor("SOFR", d(2025, 1, 1))
	require.NoError(t, err)
	assert.Equal(t, 1.0, df)

	up, err := e.DiscountFactorShifted("SOFR", d(2026, 1, 1), 0.0001)
	require.NoError(t, err)
	assert.InDelta(t, math.Exp(-0.0501), up, 1e-12)
}

func TestForwardRate(t *testing.T) {
	t.Parallel()
	e := testEngine(t)

	r, err := e.ForwardRate("SOFR", "1M", d(2026, 6, 1))
	require.NoError(t, err)
	assert.Equal(t, 3.0, r)

	_, err = e.ForwardRate("SOFR", "3M", d(2026, 6, 1))
	assert.True(t, errors.Is(err, apperrors.ErrCurveNotFound))
}

func TestAddCurve_Validation(t *testing.T) {
	t.Parallel()
	e := testEngine(t)

	err := e.AddCurve(Curve{Name: "SOFR", Dates: []time.Time{d(2025, 1, 1)}, Rates: []float64{1}})
	assert.True(t, errors.Is(err, apperrors.ErrInvalidConfig))

	err = e.AddCurve(Curve{Name: "BAD", Dates: []time.Time{d(2025, 1, 1), d(2026, 1, 1)}, Rates: []float64{1}})
	assert.True(t, errors.Is(err, apperrors.ErrInvalidConfig))

	err = e.AddCurve(Curve{Name: "UNSORTED", Dates: []time.Time{d(2026, 1, 1), d(2025, 1, 1)}, Rates: []float64{1, 2}})
	assert.True(t, errors.Is(err, apperrors.ErrInvalidConfig))

	_, err = e.DiscountFactor("MISSING", d(2025, 1, 1))
	assert.True(t, errors.Is(err, apperrors.ErrCurveNotFound))
}
