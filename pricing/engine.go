// Package pricing derives price, yield and finite-difference risk measures
// from a dated cashflow stream.
package pricing

import (
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/meenmo/cfengine/apperrors"
	"github.com/meenmo/cfengine/config"
	"github.com/meenmo/cfengine/logging"
	"github.com/meenmo/cfengine/market"
	"github.com/meenmo/cfengine/utils"
)

const (
	yieldFloor   = -0.5
	yieldCeiling = 5.0
)

var (
	substitutionSpread = apperrors.Substitution{
		Feature:    "Spread pricing",
		Substitute: "value as yield",
	}
	substitutionDiscountMargin = apperrors.Substitution{
		Feature:    "DiscountMargin pricing",
		Substitute: "value as yield",
	}
	substitutionEffective = apperrors.Substitution{
		Feature:    "effective measures without a discount curve",
		Substitute: "flat yield shift",
	}
)

type options struct {
	solver config.SolverConfig
	logger *zap.Logger
}

// Option customises Calculate.
type Option func(*options)

// WithSolver overrides the Newton-Raphson and bump settings.
func WithSolver(s config.SolverConfig) Option {
	return func(o *options) { o.solver = s }
}

// WithLogger sets the logger used for warnings.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// timedFlow is a flow with its year fraction from settlement.
type timedFlow struct {
	t      float64
	date   time.Time
	amount float64
}

type pricer struct {
	flows []timedFlow
	face  float64
	m     float64 // compounding periods per year
	cfg   Config
	opts  options
}

// dirty returns the price per 100 at decimal yield y plus spread s.
func (p *pricer) dirty(y, s float64) float64 {
	r := (y + s) / p.m
	pv := 0.0
	for _, f := range p.flows {
		pv += f.amount * math.Pow(1+r, -f.t*p.m)
	}
	return pv / p.face * 100
}

// dirtyOnCurve prices off the discount curve moved in parallel by shift.
func (p *pricer) dirtyOnCurve(shift float64) (float64, error) {
	pv := 0.0
	for _, f := range p.flows {
		df, err := p.cfg.Curve.Rates.DiscountFactorShifted(p.cfg.Curve.Name, f.date, shift)
		if err != nil {
			return 0, err
		}
		pv += f.amount * df
	}
	return pv / p.face * 100, nil
}

// Calculate prices flows under cfg. Flows dated before settlement are
// ignored. When the yield solve does not converge the returned Result
// holds the last iterate and the error is a *apperrors.ConvergenceError.
func Calculate(flows []Flow, cfg Config, dayCount market.DayCount, opts ...Option) (Result, error) {
	o := options{solver: config.Default().Solver}
	for _, opt := range opts {
		opt(&o)
	}
	o.logger = logging.OrNop(o.logger)

	p, err := newPricer(flows, cfg, dayCount, o)
	if err != nil {
		return Result{}, err
	}

	res := Result{Accrued: cfg.Accrued}
	var y float64
	var solveErr error
	switch cfg.Method {
	case MethodPrice:
		y, res.Iterations, solveErr = p.solveYield(cfg.Value + cfg.Accrued)
		if solveErr != nil {
			o.logger.Warn("yield solve did not converge", zap.Error(solveErr))
		}
	case MethodYield:
		y = cfg.Value / 100
	case MethodSpread:
		res.Substitutions = append(res.Substitutions, substitutionSpread)
		y = cfg.Value / 100
	case MethodDiscountMargin:
		res.Substitutions = append(res.Substitutions, substitutionDiscountMargin)
		y = cfg.Value / 100
	default:
		return Result{}, fmt.Errorf("Calculate: %w: %q", apperrors.ErrUnknownMethod, cfg.Method)
	}
	for _, s := range res.Substitutions {
		o.logger.Warn("substituting unsupported feature",
			zap.String("feature", s.Feature), zap.String("substitute", s.Substitute))
	}

	res.Yield = y * 100
	res.DirtyPrice = p.dirty(y, 0)
	res.Price = res.DirtyPrice - cfg.Accrued

	h := o.solver.Bump
	base := res.DirtyPrice
	up, down := p.dirty(y+h, 0), p.dirty(y-h, 0)
	if base != 0 {
		res.ModifiedDuration = -(up - down) / (2 * h * base)
		res.ModifiedConvexity = (up + down - 2*base) / (h * h * base)
		// The spread term is zero: Spread/DiscountMargin values are read as yields.
		sUp, sDown := p.dirty(y, h), p.dirty(y, -h)
		res.SpreadDuration = -(sUp - sDown) / (2 * h * base)
	}

	if cfg.Curve != nil && cfg.Curve.Rates != nil {
		effBase, err := p.dirtyOnCurve(0)
		if err != nil {
			return Result{}, fmt.Errorf("Calculate: effective measures: %w", err)
		}
		effUp, err := p.dirtyOnCurve(h)
		if err != nil {
			return Result{}, fmt.Errorf("Calculate: effective measures: %w", err)
		}
		effDown, err := p.dirtyOnCurve(-h)
		if err != nil {
			return Result{}, fmt.Errorf("Calculate: effective measures: %w", err)
		}
		if effBase != 0 {
			res.EffectiveDuration = -(effUp - effDown) / (2 * h * effBase)
			res.EffectiveConvexity = (effUp + effDown - 2*effBase) / (h * h * effBase)
		}
	} else {
		res.Substitutions = append(res.Substitutions, substitutionEffective)
		res.EffectiveDuration = res.ModifiedDuration
		res.EffectiveConvexity = res.ModifiedConvexity
	}

	return res, solveErr
}

func newPricer(flows []Flow, cfg Config, dayCount market.DayCount, o options) (*pricer, error) {
	if cfg.SettlementDate.IsZero() {
		return nil, apperrors.Invalid("Calculate", "SettlementDate is required")
	}
	if o.solver.Bump <= 0 || o.solver.MaxIterations <= 0 || o.solver.Tolerance <= 0 {
		return nil, apperrors.Invalid("Calculate", "solver bump, tolerance and max iterations must be positive")
	}

	p := &pricer{
		face: cfg.Face,
		m:    float64(cfg.YieldBasis.CompoundingPeriods()),
		cfg:  cfg,
		opts: o,
	}
	principal := 0.0
	for _, f := range flows {
		if f.Date.Before(cfg.SettlementDate) {
			continue
		}
		p.flows = append(p.flows, timedFlow{
			t:      utils.YearFraction(cfg.SettlementDate, f.Date, dayCount),
			date:   f.Date,
			amount: f.Amount(),
		})
		principal += f.Principal
	}
	if len(p.flows) == 0 {
		return nil, apperrors.Invalid("Calculate", "no cashflows on or after settlement")
	}
	if p.face <= 0 {
		p.face = principal
	}
	if p.face <= 0 {
		return nil, apperrors.Invalid("Calculate", "face must be positive")
	}
	return p, nil
}

// solveYield finds the decimal yield whose dirty price equals target, using
// Newton-Raphson with a centred finite-difference derivative.
func (p *pricer) solveYield(target float64) (float64, int, error) {
	s := p.opts.solver
	y := utils.Clamp(s.InitialYield/100, yieldFloor, yieldCeiling)
	h := s.Bump

	residual := 0.0
	for iter := 0; iter < s.MaxIterations; iter++ {
		residual = p.dirty(y, 0) - target
		if math.Abs(residual) < s.Tolerance {
			return y, iter + 1, nil
		}
		deriv := (p.dirty(y+h, 0) - p.dirty(y-h, 0)) / (2 * h)
		if math.Abs(deriv) < s.DerivativeThreshold {
			return y, iter + 1, &apperrors.ConvergenceError{
				Op: "Calculate", Iterations: iter + 1, Last: y * 100, Residual: residual,
				Reason: "derivative too small",
			}
		}
		y = utils.Clamp(y-residual/deriv, yieldFloor, yieldCeiling)
	}

	residual = p.dirty(y, 0) - target
	return y, s.MaxIterations, &apperrors.ConvergenceError{
		Op: "Calculate", Iterations: s.MaxIterations, Last: y * 100, Residual: residual,
		Reason: "did not converge",
	}
}
