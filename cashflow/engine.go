// Package cashflow projects the period-by-period amortisation, prepayment,
// default, recovery and interest-shortfall schedule of a loan pool.
package cashflow

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/meenmo/cfengine/apperrors"
	"github.com/meenmo/cfengine/logging"
	"github.com/meenmo/cfengine/timing"
	"github.com/meenmo/cfengine/utils"
)

const balanceEpsilon = 1e-9

var (
	// SubstitutionPSA is reported whenever a PSA prepayment rate is read.
	SubstitutionPSA = apperrors.Substitution{
		Feature:    "PSA prepayment",
		Substitute: "zero prepayment",
	}
	substitutionFloating = apperrors.Substitution{
		Feature:    "floating coupon without a rate source",
		Substitute: "gross coupon",
	}
)

type options struct {
	timing *timing.Engine
	rates  RateSource
	logger *zap.Logger
}

// Option customises Generate.
type Option func(*options)

// WithTiming spreads prepayments, defaults and recoveries with a timing engine.
func WithTiming(t *timing.Engine) Option {
	return func(o *options) { o.timing = t }
}

// WithRates resolves floating coupons against forward rates.
func WithRates(r RateSource) Option {
	return func(o *options) { o.rates = r }
}

// WithLogger sets the logger used for substitution warnings.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// ConvertCPRToSMM converts an annual rate to a monthly one, both as decimals.
func ConvertCPRToSMM(cpr float64) float64 {
	return AnnualToPeriodic(cpr, 12)
}

// ConvertSMMToCPR converts a monthly rate to an annual one, both as decimals.
func ConvertSMMToCPR(smm float64) float64 {
	smm = utils.Clamp(smm, 0, 1)
	return 1 - math.Pow(1-smm, 12)
}

// AnnualToPeriodic is 1 - (1 - annual)^(1/periodsPerYear), decimals in and out.
func AnnualToPeriodic(annual float64, periodsPerYear int) float64 {
	annual = utils.Clamp(annual, 0, 1)
	return 1 - math.Pow(1-annual, 1/float64(periodsPerYear))
}

// monthlyToPeriodic compounds a monthly rate to a period of months months.
func monthlyToPeriodic(monthly float64, months int) float64 {
	monthly = utils.Clamp(monthly, 0, 1)
	return 1 - math.Pow(1-monthly, float64(months))
}

// LevelPayment returns the level payment that amortises balance over n
// periods at periodic rate r. A zero rate amortises straight-line.
func LevelPayment(balance, r float64, n int) float64 {
	if n <= 0 {
		return balance
	}
	if r == 0 {
		return balance / float64(n)
	}
	g := math.Pow(1+r, float64(n))
	return balance * r * g / (g - 1)
}

type generator struct {
	loan   Loan
	asm    Assumptions
	opts   options
	ppy    int
	months int
	subs   []apperrors.Substitution

	// recoverable[k-1] is what is still to be recovered from period k's defaults.
	// Cohorts stay open until fully drawn.
	recoverable []float64
}

// Generate projects the schedule for loan under assumptions. The loop stops
// when the balance reaches zero, after RemainingTerm periods, or once a
// period would start on or after the maturity date.
func Generate(loan Loan, assumptions Assumptions, opts ...Option) (Result, error) {
	g := generator{loan: loan, asm: assumptions}
	for _, opt := range opts {
		opt(&g.opts)
	}
	g.opts.logger = logging.OrNop(g.opts.logger)

	if err := g.validate(); err != nil {
		return Result{}, err
	}

	periods, err := g.run()
	if err != nil {
		return Result{}, err
	}

	res := Result{Periods: periods, Substitutions: g.subs}
	res.Metrics = g.metrics(periods)
	return res, nil
}

func (g *generator) validate() error {
	var err error
	if g.ppy, err = g.loan.PaymentFrequency.PeriodsPerYear(); err != nil {
		return fmt.Errorf("cashflow.Generate: %w: %v", apperrors.ErrInvalidConfig, err)
	}
	g.months = 12 / g.ppy
	switch {
	case g.loan.CurrentBalance < 0:
		return apperrors.Invalid("cashflow.Generate", "current balance %.2f is negative", g.loan.CurrentBalance)
	case g.loan.RemainingTerm < 0:
		return apperrors.Invalid("cashflow.Generate", "remaining term %d is negative", g.loan.RemainingTerm)
	case g.loan.NextPaymentDate.IsZero():
		return apperrors.Invalid("cashflow.Generate", "next payment date is required")
	case g.asm.PrepayRate < 0 || g.asm.DefaultRate < 0:
		return apperrors.Invalid("cashflow.Generate", "prepay/default rates must not be negative")
	case g.asm.Severity < 0 || g.asm.Severity > 100:
		return apperrors.Invalid("cashflow.Generate", "severity %.2f outside [0,100]", g.asm.Severity)
	case g.asm.RecoveryLag < 0:
		return apperrors.Invalid("cashflow.Generate", "recovery lag %d is negative", g.asm.RecoveryLag)
	case g.opts.timing != nil && g.opts.timing.RecoveryLag() != g.asm.RecoveryLag:
		return apperrors.Invalid("cashflow.Generate", "timing recovery lag %d differs from assumptions recovery lag %d",
			g.opts.timing.RecoveryLag(), g.asm.RecoveryLag)
	}
	switch g.asm.PrepayUnit {
	case CPR, SMM, PSA:
	default:
		return apperrors.Invalid("cashflow.Generate", "unknown prepay unit %q", g.asm.PrepayUnit)
	}
	switch g.asm.DefaultUnit {
	case CDR, MDR:
	default:
		return apperrors.Invalid("cashflow.Generate", "unknown default unit %q", g.asm.DefaultUnit)
	}
	switch g.loan.RateType {
	case Fixed, Floating, "":
	default:
		return apperrors.Invalid("cashflow.Generate", "unknown rate type %q", g.loan.RateType)
	}
	switch g.asm.ShortfallRecovery {
	case ShortfallFirst, ExcessInterest, "":
	default:
		return apperrors.Invalid("cashflow.Generate", "unknown shortfall recovery %q", g.asm.ShortfallRecovery)
	}
	return nil
}

func (g *generator) substitute(s apperrors.Substitution) {
	before := len(g.subs)
	g.subs = apperrors.AppendUnique(g.subs, s)
	if len(g.subs) > before {
		g.opts.logger.Warn("substituting unsupported feature",
			zap.String("feature", s.Feature), zap.String("substitute", s.Substitute))
	}
}

func (g *generator) run() ([]Period, error) {
	loan, asm := g.loan, g.asm
	periods := make([]Period, 0, loan.RemainingTerm)
	balance := loan.CurrentBalance
	accumulated := 0.0
	cumulativeLoss := 0.0
	g.recoverable = make([]float64, 0, loan.RemainingTerm)

	for k := 1; k <= loan.RemainingTerm && balance > balanceEpsilon; k++ {
		start := utils.AddMonth(loan.NextPaymentDate, (k-2)*g.months)
		end := utils.AddMonth(loan.NextPaymentDate, (k-1)*g.months)
		if !loan.MaturityDate.IsZero() && !start.Before(loan.MaturityDate) {
			break
		}

		p := Period{
			Period:           k,
			StartDate:        start,
			EndDate:          end,
			PaymentDate:      end,
			YearFraction:     utils.YearFraction(start, end, loan.DayCount),
			BeginningBalance: balance,
		}
		if loan.Calendar != nil {
			p.PaymentDate = loan.Calendar.Adjust(end)
		}

		coupon, err := g.couponRate(p)
		if err != nil {
			return nil, err
		}
		p.CouponRate = coupon
		rate := coupon / 100
		periodic := rate / float64(g.ppy)

		remaining := loan.RemainingTerm - k + 1
		payment := LevelPayment(balance, periodic, remaining)
		p.ScheduledPrincipal = math.Min(balance, math.Max(0, payment-balance*periodic))
		p.ScheduledInterest = balance * rate * p.YearFraction

		prepayRate := g.prepayRate(k)
		defaultRate := g.defaultRate(k)
		if t := g.opts.timing; t != nil {
			p.Prepayment = t.PrepaymentAmount(k, balance, prepayRate)
			p.Default = t.DefaultAmount(k, balance, defaultRate)
		} else {
			p.Prepayment = balance * prepayRate
			p.Default = balance * defaultRate
		}

		// Over-allocation: trim prepayment, then default, so the balance lands on zero.
		if excess := p.ScheduledPrincipal + p.Prepayment + p.Default - balance; excess > 0 {
			cut := math.Min(excess, p.Prepayment)
			p.Prepayment -= cut
			excess -= cut
			p.Default = math.Max(0, p.Default-excess)
		}

		severity := g.severity(k) / 100
		p.Loss = p.Default * severity
		cumulativeLoss += p.Loss
		p.CumulativeLoss = cumulativeLoss
		g.recoverable = append(g.recoverable, p.Default*(1-severity))
		p.Recoveries = g.recoveries(k)

		p.NetInterest = p.ScheduledInterest
		if asm.InterestShortfall {
			defaultedInterest := p.Default * rate * p.YearFraction * (1 - severity)
			collected := math.Max(0, math.Min(p.ScheduledInterest, p.ScheduledInterest-defaultedInterest))
			p.InterestShortfall = p.ScheduledInterest - collected
			if accumulated > 0 && collected > 0 {
				switch asm.ShortfallRecovery {
				case ExcessInterest:
					p.ShortfallRecovered = math.Min(accumulated, math.Max(0, collected-p.ScheduledInterest))
				default:
					p.ShortfallRecovered = math.Min(accumulated, collected)
				}
			}
			accumulated = accumulated - p.ShortfallRecovered + p.InterestShortfall
			p.AccumulatedShortfall = accumulated
			p.NetInterest = collected
		}

		p.EndingBalance = balance - p.ScheduledPrincipal - p.Prepayment - p.Default
		if p.EndingBalance < balanceEpsilon {
			p.EndingBalance = 0
		}
		balance = p.EndingBalance
		periods = append(periods, p)
	}
	return periods, nil
}

func (g *generator) couponRate(p Period) (float64, error) {
	if g.loan.RateType != Floating {
		return g.loan.GrossCoupon, nil
	}
	if g.opts.rates == nil {
		g.substitute(substitutionFloating)
		return g.loan.GrossCoupon, nil
	}
	fwd, err := g.opts.rates.ForwardRate(g.loan.FloatingIndex, g.loan.FloatingTenor, p.StartDate)
	if err != nil {
		return 0, fmt.Errorf("cashflow.Generate: period %d coupon: %w", p.Period, err)
	}
	return fwd + g.loan.Margin, nil
}

func vectorValue(vector []float64, k int, scalar float64) float64 {
	if k-1 < len(vector) {
		return vector[k-1]
	}
	return scalar
}

// prepayRate returns the decimal prepayment rate for one payment period.
func (g *generator) prepayRate(k int) float64 {
	v := vectorValue(g.asm.PrepayVector, k, g.asm.PrepayRate) / 100
	switch g.asm.PrepayUnit {
	case CPR:
		return AnnualToPeriodic(v, g.ppy)
	case SMM:
		return monthlyToPeriodic(v, g.months)
	default:
		g.substitute(SubstitutionPSA)
		return 0
	}
}

// defaultRate returns the decimal default rate for one payment period.
func (g *generator) defaultRate(k int) float64 {
	v := vectorValue(g.asm.DefaultVector, k, g.asm.DefaultRate) / 100
	if g.asm.DefaultUnit == MDR {
		return monthlyToPeriodic(v, g.months)
	}
	return AnnualToPeriodic(v, g.ppy)
}

func (g *generator) severity(k int) float64 {
	return utils.Clamp(vectorValue(g.asm.SeverityVector, k, g.asm.Severity), 0, 100)
}

// recoveries draws from every open default cohort in period k. A cohort
// starts recovering RecoveryLag periods after its default; without a timing
// engine it is recovered in full at that point.
func (g *generator) recoveries(k int) float64 {
	total := 0.0
	for i, remaining := range g.recoverable {
		if remaining <= 0 {
			continue
		}
		draw := math.Min(remaining, remaining*g.recoveryShare(k-(i+1)))
		g.recoverable[i] -= draw
		total += draw
	}
	return total
}

// recoveryShare is the fraction of a cohort's open balance recovered at
// age periods after its default.
func (g *generator) recoveryShare(age int) float64 {
	lag := g.asm.RecoveryLag
	if age < lag {
		return 0
	}
	t := g.opts.timing
	if t == nil {
		return 1
	}
	return utils.Clamp(t.RecoveryAmount(age, 1, t.LiquidationWeight(age-lag)), 0, 1)
}

func (g *generator) metrics(periods []Period) Metrics {
	var m Metrics
	var weighted float64
	for _, p := range periods {
		principal := p.Principal()
		weighted += principal * float64(p.Period) / float64(g.ppy)
		m.TotalPrincipal += principal
		m.TotalInterest += p.NetInterest
		m.TotalLoss += p.Loss
		m.TotalRecoveries += p.Recoveries
	}
	if m.TotalPrincipal > 0 {
		m.WAL = weighted / m.TotalPrincipal
	}

	// Cohort balances not yet drawn when the schedule ends.
	for _, r := range g.recoverable {
		m.PendingRecoveries += r
	}

	if g.asm.DiscountYield != nil {
		mac, mod := g.duration(periods, *g.asm.DiscountYield/100)
		m.Duration, m.ModifiedDuration = &mac, &mod
	}
	return m
}

// duration is the Macaulay and modified duration (years) of the collateral
// cashflows at an annual yield compounded at the payment frequency.
func (g *generator) duration(periods []Period, y float64) (float64, float64) {
	per := y / float64(g.ppy)
	var pv, tpv float64
	for _, p := range periods {
		cf := p.Principal() + p.Recoveries + p.NetInterest
		df := math.Pow(1+per, -float64(p.Period))
		t := float64(p.Period) / float64(g.ppy)
		pv += cf * df
		tpv += t * cf * df
	}
	if pv == 0 {
		return 0, 0
	}
	mac := tpv / pv
	return mac, mac / (1 + per)
}
