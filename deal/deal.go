// Package deal loads a YAML deal document (collateral, scenarios, curves,
// waterfall and pricing request) into engine inputs.
package deal

import (
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/meenmo/cfengine/apperrors"
	"github.com/meenmo/cfengine/calendar"
	"github.com/meenmo/cfengine/cashflow"
	"github.com/meenmo/cfengine/logging"
	"github.com/meenmo/cfengine/market"
	"github.com/meenmo/cfengine/pricing"
	"github.com/meenmo/cfengine/rates"
	"github.com/meenmo/cfengine/scenario"
	"github.com/meenmo/cfengine/timing"
	"github.com/meenmo/cfengine/utils"
	"github.com/meenmo/cfengine/waterfall"
)

// Scenario is one named assumption set. Nil vectors fall back to the
// deal's scalar assumptions.
type Scenario struct {
	Name     string
	Prepay   *scenario.Config
	Default  *scenario.Config
	Severity *scenario.Config
}

// Pricing is the pricing request of a deal, minus the run-scoped curve engine.
type Pricing struct {
	Method     pricing.Method
	Value      float64
	YieldBasis market.YieldBasis
	Accrued    float64
	// AutoAccrued replaces Accrued with the interest accrued at settlement.
	AutoAccrued bool
	DayCount    market.DayCount
	Curve       string
}

// Deal is a validated, engine-ready deal. It is read-only once loaded and
// may be shared by concurrent runs.
type Deal struct {
	Name           string
	SettlementDate time.Time
	Horizon        int
	Loan           cashflow.Loan
	Assumptions    cashflow.Assumptions
	Scenarios      []Scenario
	Timing         *timing.Config
	Curves         []rates.Curve
	Forwards       []rates.ForwardRates
	Waterfall      *waterfall.Config
	NoteBalance    float64
	Pricing        *Pricing
}

// Load reads and parses a deal file.
func Load(path string, logger *zap.Logger) (*Deal, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("deal.Load: %w", err)
	}
	d, err := Parse(data, logger)
	if err != nil {
		return nil, fmt.Errorf("deal.Load %s: %w", path, err)
	}
	return d, nil
}

// Parse decodes a YAML deal document and maps it into engine inputs.
// Unparseable scenario rules are dropped with a warning.
func Parse(data []byte, logger *zap.Logger) (*Deal, error) {
	logger = logging.OrNop(logger)

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("deal.Parse: %w: %v", apperrors.ErrInvalidConfig, err)
	}
	return f.build(logger)
}

func parseOptionalDate(field, s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := utils.ParseDate(s)
	if err != nil {
		return time.Time{}, apperrors.Invalid("deal.Parse", "%s: %v", field, err)
	}
	return t, nil
}

func (f *File) build(logger *zap.Logger) (*Deal, error) {
	d := &Deal{Name: f.Name, Horizon: f.Horizon, Timing: f.Timing}

	var err error
	if d.SettlementDate, err = parseOptionalDate("settlement_date", f.SettlementDate); err != nil {
		return nil, err
	}
	if d.Loan, err = f.Loan.build(); err != nil {
		return nil, err
	}
	if d.Assumptions, err = f.Assumptions.build(); err != nil {
		return nil, err
	}
	if d.Horizon <= 0 {
		d.Horizon = d.Loan.RemainingTerm
	}
	if d.SettlementDate.IsZero() {
		trade, err := parseOptionalDate("trade_date", f.TradeDate)
		if err != nil {
			return nil, err
		}
		if f.SettlementLag < 0 {
			return nil, apperrors.Invalid("deal.Parse", "settlement_lag %d is negative", f.SettlementLag)
		}
		if trade.IsZero() {
			d.SettlementDate = firstPeriodStart(d.Loan)
		} else {
			cal := d.Loan.Calendar
			if cal == nil {
				cal = calendar.WeekendsOnly()
			}
			d.SettlementDate = cal.AddBusinessDays(trade, f.SettlementLag)
		}
	}

	seen := make(map[string]bool)
	for i, s := range f.Scenarios {
		if s.Name == "" || seen[s.Name] {
			return nil, apperrors.Invalid("deal.Parse", "scenario %d name %q is empty or duplicated", i, s.Name)
		}
		seen[s.Name] = true
		d.Scenarios = append(d.Scenarios, Scenario{
			Name:     s.Name,
			Prepay:   s.Prepay.build(scenario.CPR, logger),
			Default:  s.Default.build(scenario.CDR, logger),
			Severity: s.Severity.build(scenario.LossSeverity, logger),
		})
	}
	if f.StandardScenarios {
		for _, sc := range standardScenarios() {
			if seen[sc.Name] {
				return nil, apperrors.Invalid("deal.Parse", "scenario %q clashes with the standard set", sc.Name)
			}
			d.Scenarios = append(d.Scenarios, sc)
		}
	}
	if len(d.Scenarios) == 0 {
		d.Scenarios = []Scenario{{Name: scenario.NameBase}}
	}

	for _, c := range f.Curves {
		curve, err := c.build()
		if err != nil {
			return nil, err
		}
		d.Curves = append(d.Curves, curve)
	}
	for _, fw := range f.Forwards {
		fr := rates.ForwardRates{Index: fw.Index, Tenor: fw.Tenor}
		if fr.Dates, fr.Rates, err = buildPoints("forward "+fw.Index, fw.Points); err != nil {
			return nil, err
		}
		d.Forwards = append(d.Forwards, fr)
	}

	if f.Waterfall != nil {
		cfg := f.Waterfall.Config
		d.Waterfall = &cfg
		d.NoteBalance = f.Waterfall.NoteBalance
	}

	if f.Pricing != nil {
		if d.Pricing, err = f.Pricing.build(d.Loan.DayCount); err != nil {
			return nil, err
		}
	}

	if _, err := d.RateEngine(); err != nil {
		return nil, err
	}
	if d.Timing != nil {
		tc := *d.Timing
		switch {
		case tc.RecoveryLag == 0:
			tc.RecoveryLag = d.Assumptions.RecoveryLag
		case tc.RecoveryLag != d.Assumptions.RecoveryLag:
			return nil, apperrors.Invalid("deal.Parse", "timing recovery_lag %d differs from assumptions recovery_lag %d",
				tc.RecoveryLag, d.Assumptions.RecoveryLag)
		}
		if _, err := timing.New(tc); err != nil {
			return nil, err
		}
		d.Timing = &tc
	}
	if d.Waterfall != nil {
		if _, err := waterfall.New(*d.Waterfall); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// firstPeriodStart is the start of the first projected period, the default
// settlement date.
func firstPeriodStart(l cashflow.Loan) time.Time {
	months, err := l.PaymentFrequency.Months()
	if err != nil {
		return l.NextPaymentDate
	}
	return utils.AddMonth(l.NextPaymentDate, -months)
}

func (l LoanFile) build() (cashflow.Loan, error) {
	dc, err := market.ParseDayCount(l.DayCount)
	if err != nil {
		return cashflow.Loan{}, fmt.Errorf("deal.Parse: loan: %w: %v", apperrors.ErrInvalidConfig, err)
	}
	freq := market.PaymentFrequency(l.PaymentFrequency)
	if freq == "" {
		freq = market.Monthly
	}
	if _, err := freq.PeriodsPerYear(); err != nil {
		return cashflow.Loan{}, fmt.Errorf("deal.Parse: loan: %w: %v", apperrors.ErrInvalidConfig, err)
	}
	rateType := cashflow.RateType(l.RateType)
	if rateType == "" {
		rateType = cashflow.Fixed
	}

	loan := cashflow.Loan{
		CurrentBalance:   l.CurrentBalance,
		OriginalBalance:  l.OriginalBalance,
		GrossCoupon:      l.GrossCoupon,
		RemainingTerm:    l.RemainingTerm,
		OriginalTerm:     l.OriginalTerm,
		PaymentFrequency: freq,
		DayCount:         dc,
		RateType:         rateType,
		FloatingIndex:    l.FloatingIndex,
		FloatingTenor:    l.FloatingTenor,
		Margin:           l.Margin,
	}
	if loan.OriginalBalance == 0 {
		loan.OriginalBalance = loan.CurrentBalance
	}
	if loan.NextPaymentDate, err = parseOptionalDate("loan.next_payment_date", l.NextPaymentDate); err != nil {
		return cashflow.Loan{}, err
	}
	if loan.NextPaymentDate.IsZero() {
		return cashflow.Loan{}, apperrors.Invalid("deal.Parse", "loan.next_payment_date is required")
	}
	if loan.MaturityDate, err = parseOptionalDate("loan.maturity_date", l.MaturityDate); err != nil {
		return cashflow.Loan{}, err
	}
	if l.Calendar != nil {
		holidays := make([]time.Time, 0, len(l.Calendar.Holidays))
		for _, h := range l.Calendar.Holidays {
			t, err := parseOptionalDate("loan.calendar.holidays", h)
			if err != nil {
				return cashflow.Loan{}, err
			}
			holidays = append(holidays, t)
		}
		loan.Calendar = calendar.New(l.Calendar.Name, holidays)
	}
	return loan, nil
}

func (a AssumptionsFile) build() (cashflow.Assumptions, error) {
	out := cashflow.Assumptions{
		PrepayRate:        a.PrepayRate,
		PrepayUnit:        cashflow.PrepayUnit(a.PrepayUnit),
		DefaultRate:       a.DefaultRate,
		DefaultUnit:       cashflow.DefaultUnit(a.DefaultUnit),
		Severity:          a.Severity,
		RecoveryLag:       a.RecoveryLag,
		InterestShortfall: a.InterestShortfall,
		ShortfallRecovery: cashflow.ShortfallPriority(a.ShortfallRecovery),
		DiscountYield:     a.DiscountYield,
	}
	if out.PrepayUnit == "" {
		out.PrepayUnit = cashflow.CPR
	}
	if out.DefaultUnit == "" {
		out.DefaultUnit = cashflow.CDR
	}
	if out.ShortfallRecovery == "" {
		out.ShortfallRecovery = cashflow.ShortfallFirst
	}
	return out, nil
}

func (v *VectorFile) build(defaultType scenario.Type, logger *zap.Logger) *scenario.Config {
	if v == nil {
		return nil
	}
	cfg := v.Config
	if cfg.Type == "" {
		cfg.Type = defaultType
	}
	cfg.Rules = scenario.CompileRules(v.Rules, logger)
	return &cfg
}

// standardScenarios maps each stock stress vector onto the assumption it
// drives, chosen by its type.
func standardScenarios() []Scenario {
	configs := scenario.StandardConfigs()
	out := make([]Scenario, 0, len(scenario.StandardOrder))
	for _, name := range scenario.StandardOrder {
		cfg := configs[name]
		sc := Scenario{Name: name}
		switch cfg.Type {
		case scenario.CPR:
			sc.Prepay = &cfg
		case scenario.CDR:
			sc.Default = &cfg
		case scenario.LossSeverity:
			sc.Severity = &cfg
		}
		out = append(out, sc)
	}
	return out
}

func buildPoints(what string, points []PointFile) ([]time.Time, []float64, error) {
	dates := make([]time.Time, 0, len(points))
	values := make([]float64, 0, len(points))
	for _, p := range points {
		t, err := parseOptionalDate(what+" date", p.Date)
		if err != nil {
			return nil, nil, err
		}
		if t.IsZero() {
			return nil, nil, apperrors.Invalid("deal.Parse", "%s: point date is required", what)
		}
		dates = append(dates, t)
		values = append(values, p.Rate)
	}
	return dates, values, nil
}

func (c CurveFile) build() (rates.Curve, error) {
	dc, err := market.ParseDayCount(c.DayCount)
	if err != nil {
		return rates.Curve{}, fmt.Errorf("deal.Parse: curve %s: %w: %v", c.Name, apperrors.ErrInvalidConfig, err)
	}
	curve := rates.Curve{Name: c.Name, DayCount: dc}
	if curve.Epoch, err = parseOptionalDate("curve "+c.Name+" epoch", c.Epoch); err != nil {
		return rates.Curve{}, err
	}
	if curve.Dates, curve.Rates, err = buildPoints("curve "+c.Name, c.Points); err != nil {
		return rates.Curve{}, err
	}
	return curve, nil
}

func (p PricingFile) build(loanDayCount market.DayCount) (*Pricing, error) {
	out := &Pricing{
		Method:      pricing.Method(p.Method),
		Value:       p.Value,
		YieldBasis:  market.YieldBasis(p.YieldBasis),
		Accrued:     p.Accrued,
		DayCount:    loanDayCount,
		AutoAccrued: p.AutoAccrued,
		Curve:       p.Curve,
	}
	switch out.Method {
	case pricing.MethodPrice, pricing.MethodYield, pricing.MethodSpread, pricing.MethodDiscountMargin:
	default:
		return nil, fmt.Errorf("deal.Parse: pricing: %w: %q", apperrors.ErrUnknownMethod, p.Method)
	}
	if out.YieldBasis == "" {
		out.YieldBasis = market.BondEquivalent
	}
	if p.DayCount != "" {
		dc, err := market.ParseDayCount(p.DayCount)
		if err != nil {
			return nil, fmt.Errorf("deal.Parse: pricing: %w: %v", apperrors.ErrInvalidConfig, err)
		}
		out.DayCount = dc
	}
	return out, nil
}

// RateEngine builds a fresh rate engine holding the deal's curves and
// forward sets. Each run owns the engine it gets.
func (d *Deal) RateEngine() (*rates.Engine, error) {
	eng := rates.NewEngine()
	for _, c := range d.Curves {
		if err := eng.AddCurve(c); err != nil {
			return nil, fmt.Errorf("deal.RateEngine: %w", err)
		}
	}
	for _, f := range d.Forwards {
		if err := eng.AddForwardRates(f); err != nil {
			return nil, fmt.Errorf("deal.RateEngine: %w", err)
		}
	}
	return eng, nil
}

// Scenario returns the named scenario.
func (d *Deal) Scenario(name string) (Scenario, bool) {
	for _, s := range d.Scenarios {
		if s.Name == name {
			return s, true
		}
	}
	return Scenario{}, false
}
