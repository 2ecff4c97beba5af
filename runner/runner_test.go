package runner

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/meenmo/cfengine/apperrors"
	"github.com/meenmo/cfengine/cashflow"
	"github.com/meenmo/cfengine/config"
	"github.com/meenmo/cfengine/deal"
)

const smallDeal = `
name: small
settlement_date: "2025-01-01"
loan:
  current_balance: 1000
  gross_coupon: 6
  remaining_term: 24
  day_count: 30/360
  next_payment_date: "2025-02-01"
assumptions:
  prepay_rate: 5
  default_rate: 1
  severity: 40
scenarios:
  - name: Good
    prepay: {initial_value: 10}
  - name: Broken
    prepay:
      ramps: [{start_value: 1, end_value: 2, ramp_periods: -1}]
  - name: PSA
waterfall:
  note_balance: 900
  accounts:
    - {name: p, type: Principal}
    - {name: i, type: Interest}
  payments:
    - {priority: 1, type: Sequential, recipients: [A, B], caps: {A: 30}}
pricing:
  method: Yield
  value: 6
  yield_basis: Monthly
`

func parse(t *testing.T, doc string) *deal.Deal {
	t.Helper()
	d, err := deal.Parse([]byte(doc), nil)
	require.NoError(t, err)
	return d
}

func TestRun_SampleDeal(t *testing.T) {
	t.Parallel()

	d, err := deal.Load(filepath.Join("..", "deal", "testdata", "sample.yaml"), nil)
	require.NoError(t, err)

	core, logs := observer.New(zapcore.InfoLevel)
	m, err := NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	out, err := Run(context.Background(), d, config.Default(), WithLogger(zap.New(core)), WithMetrics(m))
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "Ramped", out[0].Scenario)
	assert.Equal(t, "Stressed", out[1].Scenario)
	assert.NotEqual(t, out[0].RunID, out[1].RunID)

	for _, o := range out {
		require.NoError(t, o.Err, o.Scenario)
		assert.NotEmpty(t, o.RunID)
		assert.NotEmpty(t, o.Cashflows.Periods)
		assert.Len(t, o.Waterfall, len(o.Cashflows.Periods))
		require.NotNil(t, o.Pricing)
		assert.Greater(t, o.Pricing.Yield, 0.0)
		assert.InDelta(t, 99.5, o.Pricing.Price, 1e-3)
	}
	assert.Len(t, out[0].Vectors[VectorPrepay], 60)
	assert.Len(t, out[0].Vectors[VectorSeverity], 60)
	assert.NotContains(t, out[0].Vectors, VectorDefault)
	assert.Len(t, out[1].Vectors[VectorDefault], 60)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Runs))
	assert.Zero(t, testutil.ToFloat64(m.Failures))

	done := logs.FilterMessage("scenario run complete").All()
	require.Len(t, done, 2)
	for _, e := range done {
		assert.Contains(t, e.ContextMap(), "run_id")
	}
}

func TestRun_FailureIsIsolated(t *testing.T) {
	t.Parallel()

	m, err := NewMetrics(nil)
	require.NoError(t, err)

	out, err := Run(context.Background(), parse(t, smallDeal), config.Default(), WithMetrics(m))
	require.NoError(t, err)
	require.Len(t, out, 3)

	good, broken, psa := out[0], out[1], out[2]
	require.NoError(t, good.Err)
	assert.Equal(t, 24, len(good.Cashflows.Periods))
	assert.LessOrEqual(t, good.Waterfall[0].Payments["A"], 30.0)
	require.NotNil(t, good.Pricing)

	assert.True(t, errors.Is(broken.Err, apperrors.ErrInvalidConfig))
	assert.Empty(t, broken.Cashflows.Periods)

	require.NoError(t, psa.Err)
	assert.Empty(t, psa.Vectors)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.Runs))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Failures))
}

func TestRun_SubstitutionsAreCounted(t *testing.T) {
	t.Parallel()

	d := parse(t, `
loan: {current_balance: 100, gross_coupon: 5, remaining_term: 6, next_payment_date: "2025-02-01"}
assumptions: {prepay_unit: PSA, prepay_rate: 100}
`)
	m, err := NewMetrics(nil)
	require.NoError(t, err)

	out, err := Run(context.Background(), d, config.Default(), WithMetrics(m))
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.NoError(t, out[0].Err)
	require.Len(t, out[0].Substitutions, 1)
	assert.Equal(t, "PSA prepayment", out[0].Substitutions[0].Feature)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Substitutions.WithLabelValues("PSA prepayment")))
}

func TestRun_NonConvergenceKeepsPricing(t *testing.T) {
	t.Parallel()

	d := parse(t, `
settlement_date: "2025-01-01"
loan: {current_balance: 100, gross_coupon: 5, remaining_term: 12, day_count: 30/360, next_payment_date: "2025-02-01"}
pricing: {method: Price, value: 10000}
`)
	m, err := NewMetrics(nil)
	require.NoError(t, err)

	out, err := Run(context.Background(), d, config.Default(), WithMetrics(m))
	require.NoError(t, err)
	require.Len(t, out, 1)

	assert.True(t, errors.Is(out[0].Err, apperrors.ErrNotConverged))
	require.NotNil(t, out[0].Pricing)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NonConvergence))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Failures))
}

func TestRun_Cancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out, err := Run(ctx, parse(t, smallDeal), config.Default())
	assert.True(t, errors.Is(err, context.Canceled))
	require.Len(t, out, 3)
	for _, o := range out {
		assert.True(t, errors.Is(o.Err, context.Canceled), o.Scenario)
	}
}

func TestRun_InvalidInput(t *testing.T) {
	t.Parallel()

	_, err := Run(context.Background(), nil, config.Default())
	assert.True(t, errors.Is(err, apperrors.ErrInvalidConfig))

	settings := config.Default()
	settings.Runner.Workers = 0
	_, err = Run(context.Background(), parse(t, smallDeal), settings)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidConfig))
}

func TestRunScenario(t *testing.T) {
	t.Parallel()

	d := parse(t, smallDeal)
	o, err := RunScenario(context.Background(), d, "Good", config.Default())
	require.NoError(t, err)
	assert.Equal(t, "Good", o.Scenario)
	assert.NoError(t, o.Err)
	assert.Len(t, d.Scenarios, 3, "deal is not modified")

	_, err = RunScenario(context.Background(), d, "Nope", config.Default())
	assert.True(t, errors.Is(err, apperrors.ErrInvalidConfig))
}

func TestNewMetrics_ReusesRegisteredCollectors(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	a, err := NewMetrics(reg)
	require.NoError(t, err)
	b, err := NewMetrics(reg)
	require.NoError(t, err)

	a.Runs.Inc()
	assert.Equal(t, 1.0, testutil.ToFloat64(b.Runs))
}

func TestRun_AutoAccrued(t *testing.T) {
	t.Parallel()

	d := parse(t, `
settlement_date: "2025-01-15"
loan: {current_balance: 1000, gross_coupon: 6, remaining_term: 12, day_count: 30/360, next_payment_date: "2025-02-01"}
pricing: {method: Yield, value: 6, auto_accrued: true}
`)
	out, err := Run(context.Background(), d, config.Default())
	require.NoError(t, err)
	require.NoError(t, out[0].Err)
	require.NotNil(t, out[0].Pricing)

	// 14 of 31 days of a 5.00 coupon on 1000 face, per 100.
	assert.InDelta(t, 5.0*14/31/10, out[0].Pricing.Accrued, 1e-9)
	assert.InDelta(t, out[0].Pricing.DirtyPrice-out[0].Pricing.Accrued, out[0].Pricing.Price, 1e-9)
}

func TestRun_ScalarPastHorizonKeepsItsUnit(t *testing.T) {
	t.Parallel()

	d := parse(t, `
horizon: 2
loan: {current_balance: 1000, gross_coupon: 6, remaining_term: 6, day_count: 30/360, next_payment_date: "2025-02-01"}
assumptions: {prepay_rate: 10, prepay_unit: SMM, default_rate: 1, default_unit: MDR}
scenarios:
  - name: Annual
    prepay: {initial_value: 10}
    default: {initial_value: 12}
`)
	out, err := Run(context.Background(), d, config.Default())
	require.NoError(t, err)
	require.NoError(t, out[0].Err)
	periods := out[0].Cashflows.Periods
	require.Len(t, periods, 6)

	for _, p := range periods[:2] {
		assert.InDelta(t, cashflow.ConvertCPRToSMM(0.10), p.Prepayment/p.BeginningBalance, 1e-12, "period %d", p.Period)
		assert.InDelta(t, cashflow.ConvertCPRToSMM(0.12), p.Default/p.BeginningBalance, 1e-12, "period %d", p.Period)
	}
	for _, p := range periods[2:4] {
		assert.InDelta(t, 0.10, p.Prepayment/p.BeginningBalance, 1e-12, "period %d", p.Period)
		assert.InDelta(t, 0.01, p.Default/p.BeginningBalance, 1e-12, "period %d", p.Period)
	}
}

func TestRun_PSAScalarPastHorizon(t *testing.T) {
	t.Parallel()

	d := parse(t, `
horizon: 2
loan: {current_balance: 1000, gross_coupon: 6, remaining_term: 6, next_payment_date: "2025-02-01"}
assumptions: {prepay_rate: 100, prepay_unit: PSA}
scenarios:
  - name: Annual
    prepay: {initial_value: 10}
`)
	out, err := Run(context.Background(), d, config.Default())
	require.NoError(t, err)
	require.NoError(t, out[0].Err)
	assert.Equal(t, []apperrors.Substitution{cashflow.SubstitutionPSA}, out[0].Substitutions)
	assert.Zero(t, out[0].Cashflows.Periods[2].Prepayment)
}
