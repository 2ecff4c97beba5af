package deal

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/meenmo/cfengine/apperrors"
	"github.com/meenmo/cfengine/cashflow"
	"github.com/meenmo/cfengine/market"
	"github.com/meenmo/cfengine/pricing"
	"github.com/meenmo/cfengine/scenario"
	"github.com/meenmo/cfengine/waterfall"
)

func TestLoad_SampleDeal(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.WarnLevel)
	d, err := Load(filepath.Join("testdata", "sample.yaml"), zap.New(core))
	require.NoError(t, err)

	assert.Equal(t, "Sample Auto 2025-1", d.Name)
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), d.SettlementDate)
	assert.Equal(t, 60, d.Horizon)

	assert.Equal(t, 1000000.0, d.Loan.CurrentBalance)
	assert.Equal(t, market.Dc30360, d.Loan.DayCount)
	assert.Equal(t, market.Monthly, d.Loan.PaymentFrequency)
	assert.Equal(t, cashflow.Fixed, d.Loan.RateType)
	require.NotNil(t, d.Loan.Calendar)
	assert.False(t, d.Loan.Calendar.IsBusinessDay(time.Date(2025, 7, 4, 0, 0, 0, 0, time.UTC)))

	assert.Equal(t, cashflow.CPR, d.Assumptions.PrepayUnit)
	assert.Equal(t, 3, d.Assumptions.RecoveryLag)
	assert.True(t, d.Assumptions.InterestShortfall)

	require.Len(t, d.Scenarios, 2)
	ramped := d.Scenarios[0]
	require.NotNil(t, ramped.Prepay)
	assert.Equal(t, scenario.CPR, ramped.Prepay.Type)
	assert.Len(t, ramped.Prepay.Rules, 1, "bad rule is dropped")
	assert.Equal(t, 1, logs.FilterMessage("ignoring unparseable scenario rule").Len())
	require.NotNil(t, ramped.Severity)
	assert.Equal(t, scenario.LossSeverity, ramped.Severity.Type)
	assert.Nil(t, ramped.Default)

	stressed, ok := d.Scenario("Stressed")
	require.True(t, ok)
	require.NotNil(t, stressed.Default)
	assert.Equal(t, scenario.CDR, stressed.Default.Type)
	require.NotNil(t, stressed.Default.Shock)
	assert.Equal(t, 12, stressed.Default.Shock.Timing)

	require.NotNil(t, d.Timing)
	assert.Equal(t, []float64{0, 2, 6}, d.Timing.RecoveryTiming.Periods)
	assert.Equal(t, 3, d.Timing.RecoveryLag, "timing takes the assumptions recovery lag")

	require.NotNil(t, d.Waterfall)
	assert.Equal(t, 950000.0, d.NoteBalance)
	assert.Equal(t, []string{"class-a", "class-b"}, d.Waterfall.NoteRecipients)
	assert.Len(t, d.Waterfall.Accounts, 3)
	assert.Equal(t, waterfall.LT, d.Waterfall.Triggers[0].Operator)
	assert.Equal(t, 4000.0, d.Waterfall.Payments[0].Caps["class-a-interest"])

	require.NotNil(t, d.Pricing)
	assert.Equal(t, pricing.MethodPrice, d.Pricing.Method)
	assert.Equal(t, market.MonthlyBasis, d.Pricing.YieldBasis)
	assert.Equal(t, market.Dc30360, d.Pricing.DayCount, "inherits the loan day count")
}

func TestRateEngine_IsFreshPerCall(t *testing.T) {
	t.Parallel()

	d, err := Load(filepath.Join("testdata", "sample.yaml"), nil)
	require.NoError(t, err)

	a, err := d.RateEngine()
	require.NoError(t, err)
	b, err := d.RateEngine()
	require.NoError(t, err)
	assert.NotSame(t, a, b)

	r, err := a.Rate("USD-SOFR", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.InDelta(t, 4.2, r, 1e-12)

	fwd, err := b.ForwardRate("SOFR", "1M", time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.InDelta(t, 3.6, fwd, 1e-12)
}

func TestParse_Defaults(t *testing.T) {
	t.Parallel()

	d, err := Parse([]byte(`
loan:
  current_balance: 500
  gross_coupon: 5
  remaining_term: 24
  next_payment_date: "2025-03-01"
`), nil)
	require.NoError(t, err)

	assert.Equal(t, 24, d.Horizon)
	assert.Equal(t, time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC), d.SettlementDate)
	assert.Equal(t, 500.0, d.Loan.OriginalBalance)
	assert.Equal(t, market.Act365F, d.Loan.DayCount)
	assert.Equal(t, market.Monthly, d.Loan.PaymentFrequency)
	assert.Equal(t, cashflow.CDR, d.Assumptions.DefaultUnit)
	assert.Equal(t, cashflow.ShortfallFirst, d.Assumptions.ShortfallRecovery)
	require.Len(t, d.Scenarios, 1)
	assert.Equal(t, scenario.NameBase, d.Scenarios[0].Name)
	assert.Nil(t, d.Waterfall)
	assert.Nil(t, d.Pricing)
}

func TestParse_SettlementFromTradeDate(t *testing.T) {
	t.Parallel()

	d, err := Parse([]byte(`
trade_date: "2025-07-02"
settlement_lag: 2
loan:
  remaining_term: 12
  next_payment_date: "2025-08-01"
  calendar: {name: US, holidays: ["2025-07-04"]}
`), nil)
	require.NoError(t, err)
	// Wednesday T+2 skips the Friday holiday and the weekend.
	assert.Equal(t, time.Date(2025, 7, 7, 0, 0, 0, 0, time.UTC), d.SettlementDate)

	d, err = Parse([]byte(`
trade_date: "2025-07-04"
settlement_lag: 1
loan: {remaining_term: 12, next_payment_date: "2025-08-01"}
`), nil)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 7, 7, 0, 0, 0, 0, time.UTC), d.SettlementDate)

	_, err = Parse([]byte(`{trade_date: "2025-07-04", settlement_lag: -1, loan: {next_payment_date: "2025-08-01"}}`), nil)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidConfig))
}

func TestParse_StandardScenarios(t *testing.T) {
	t.Parallel()

	d, err := Parse([]byte(`
standard_scenarios: true
loan:
  current_balance: 500
  gross_coupon: 5
  remaining_term: 24
  next_payment_date: "2025-03-01"
`), nil)
	require.NoError(t, err)

	require.Len(t, d.Scenarios, len(scenario.StandardOrder))
	for i, name := range scenario.StandardOrder {
		assert.Equal(t, name, d.Scenarios[i].Name)
	}
	hp, _ := d.Scenario(scenario.NameHighPrepay)
	assert.NotNil(t, hp.Prepay)
	assert.Nil(t, hp.Default)
	hs, _ := d.Scenario(scenario.NameHighSeverity)
	assert.NotNil(t, hs.Severity)
	hd, _ := d.Scenario(scenario.NameHighDefault)
	assert.NotNil(t, hd.Default)

	_, err = Parse([]byte(`
standard_scenarios: true
scenarios: [{name: Base}]
loan: {current_balance: 1, remaining_term: 1, next_payment_date: "2025-03-01"}
`), nil)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidConfig))
}

func TestParse_Rejects(t *testing.T) {
	t.Parallel()

	docs := map[string]string{
		"yaml":         "loan: [",
		"no npd":       "loan: {current_balance: 1, remaining_term: 1}",
		"bad date":     `loan: {remaining_term: 1, next_payment_date: "01/03/2025"}`,
		"day count":    `loan: {day_count: "BUS/252", next_payment_date: "2025-03-01"}`,
		"frequency":    `loan: {payment_frequency: Weekly, next_payment_date: "2025-03-01"}`,
		"dup scenario": `{loan: {next_payment_date: "2025-03-01"}, scenarios: [{name: A}, {name: A}]}`,
		"curve points": `{loan: {next_payment_date: "2025-03-01"}, curves: [{name: C, points: []}]}`,
		"timing":       `{loan: {next_payment_date: "2025-03-01"}, timing: {recovery_lag: -1}}`,
		"timing lag":   `{loan: {next_payment_date: "2025-03-01"}, assumptions: {recovery_lag: 2}, timing: {recovery_lag: 4}}`,
		"waterfall":    `{loan: {next_payment_date: "2025-03-01"}, waterfall: {accounts: [{name: a, type: Cash}]}}`,
		"pricing day":  `{loan: {next_payment_date: "2025-03-01"}, pricing: {method: Yield, day_count: "X/Y"}}`,
		"dup curve":    `{loan: {next_payment_date: "2025-03-01"}, curves: [{name: C, points: [{date: "2025-01-01"}]}, {name: C, points: [{date: "2025-01-01"}]}]}`,
	}
	for name, doc := range docs {
		_, err := Parse([]byte(doc), nil)
		assert.True(t, errors.Is(err, apperrors.ErrInvalidConfig), "%s: %v", name, err)
	}

	_, err := Parse([]byte(`{loan: {next_payment_date: "2025-03-01"}, pricing: {method: OAS}}`), nil)
	assert.True(t, errors.Is(err, apperrors.ErrUnknownMethod))

	_, err = Load(filepath.Join("testdata", "missing.yaml"), nil)
	assert.Error(t, err)
}
