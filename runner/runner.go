// Package runner executes every scenario of a deal in parallel. Each run
// owns its rate, timing and waterfall engines; only the finished outcomes
// are merged.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/meenmo/cfengine/apperrors"
	"github.com/meenmo/cfengine/cashflow"
	"github.com/meenmo/cfengine/config"
	"github.com/meenmo/cfengine/deal"
	"github.com/meenmo/cfengine/logging"
	"github.com/meenmo/cfengine/pricing"
	"github.com/meenmo/cfengine/report"
	"github.com/meenmo/cfengine/scenario"
	"github.com/meenmo/cfengine/timing"
	"github.com/meenmo/cfengine/waterfall"
)

// Vector names used in Outcome.Vectors.
const (
	VectorPrepay   = "prepay"
	VectorDefault  = "default"
	VectorSeverity = "severity"
)

// Outcome is the result of one scenario run. Err is set when the run
// failed; a yield non-convergence also sets Err but keeps Pricing.
type Outcome struct {
	RunID         string
	Scenario      string
	Vectors       report.VectorSet
	Cashflows     cashflow.Result
	Waterfall     []waterfall.PeriodResult
	Pricing       *pricing.Result
	Substitutions []apperrors.Substitution
	Err           error
}

type options struct {
	logger  *zap.Logger
	metrics *Metrics
}

// Option customises Run.
type Option func(*options)

// WithLogger sets the parent logger; each run logs through a child tagged
// with its run ID and scenario name.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics records run counters.
func WithMetrics(m *Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// Run executes every scenario of d with at most settings.Runner.Workers in
// flight. Outcomes follow the scenario order of d. A failing scenario only
// sets its own Outcome.Err; the returned error covers invalid input and
// cancellation.
func Run(ctx context.Context, d *deal.Deal, settings config.Settings, opts ...Option) ([]Outcome, error) {
	if d == nil {
		return nil, apperrors.Invalid("runner.Run", "deal is nil")
	}
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("runner.Run: %w: %v", apperrors.ErrInvalidConfig, err)
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	o.logger = logging.OrNop(o.logger)

	outcomes := make([]Outcome, len(d.Scenarios))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(settings.Runner.Workers)
	for i, sc := range d.Scenarios {
		i, sc := i, sc
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				outcomes[i] = Outcome{Scenario: sc.Name, Err: err}
				return nil
			}
			outcomes[i] = runScenario(d, sc, settings, o)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return outcomes, fmt.Errorf("runner.Run: %w", err)
	}
	return outcomes, nil
}

// RunScenario executes a single named scenario of d.
func RunScenario(ctx context.Context, d *deal.Deal, name string, settings config.Settings, opts ...Option) (Outcome, error) {
	if d == nil {
		return Outcome{}, apperrors.Invalid("runner.RunScenario", "deal is nil")
	}
	sc, ok := d.Scenario(name)
	if !ok {
		return Outcome{}, apperrors.Invalid("runner.RunScenario", "unknown scenario %q", name)
	}
	single := *d
	single.Scenarios = []deal.Scenario{sc}
	out, err := Run(ctx, &single, settings, opts...)
	if err != nil {
		return Outcome{}, err
	}
	return out[0], nil
}

func runScenario(d *deal.Deal, sc deal.Scenario, settings config.Settings, o options) (out Outcome) {
	started := time.Now()
	out = Outcome{RunID: uuid.NewString(), Scenario: sc.Name, Vectors: report.VectorSet{}}
	log := o.logger.With(zap.String("run_id", out.RunID), zap.String("scenario", sc.Name))
	m := o.metrics
	if m != nil {
		m.Runs.Inc()
	}
	defer func() {
		if m != nil {
			for _, s := range out.Substitutions {
				m.Substitutions.WithLabelValues(s.Feature).Inc()
			}
			if out.Err != nil {
				m.Failures.Inc()
			}
		}
		if out.Err != nil {
			log.Error("scenario run failed", zap.Error(out.Err))
			return
		}
		log.Info("scenario run complete",
			zap.Int("periods", len(out.Cashflows.Periods)),
			zap.Int("substitutions", len(out.Substitutions)),
			zap.Duration("elapsed", time.Since(started)))
	}()

	asm, err := applyVectors(&out, d, sc)
	if err != nil {
		out.Err = err
		return out
	}

	rateEngine, err := d.RateEngine()
	if err != nil {
		out.Err = err
		return out
	}
	cfOpts := []cashflow.Option{cashflow.WithLogger(log)}
	if len(d.Forwards) > 0 {
		cfOpts = append(cfOpts, cashflow.WithRates(rateEngine))
	}
	if d.Timing != nil {
		te, err := timing.New(*d.Timing)
		if err != nil {
			out.Err = err
			return out
		}
		cfOpts = append(cfOpts, cashflow.WithTiming(te))
	}

	out.Cashflows, err = cashflow.Generate(d.Loan, asm, cfOpts...)
	if err != nil {
		out.Err = err
		return out
	}
	out.Substitutions = merge(out.Substitutions, out.Cashflows.Substitutions)

	if d.Waterfall != nil {
		we, err := waterfall.New(*d.Waterfall, waterfall.WithLogger(log))
		if err != nil {
			out.Err = err
			return out
		}
		out.Waterfall = we.Run(waterfall.CollectionsFromCashflows(out.Cashflows, d.NoteBalance))
		for _, p := range out.Waterfall {
			out.Substitutions = merge(out.Substitutions, p.Substitutions)
		}
	}

	if d.Pricing != nil && len(out.Cashflows.Periods) > 0 {
		flows, face := pricing.FlowsFromPeriods(out.Cashflows.Periods)
		cfg := pricing.Config{
			Method:         d.Pricing.Method,
			Value:          d.Pricing.Value,
			YieldBasis:     d.Pricing.YieldBasis,
			Accrued:        d.Pricing.Accrued,
			SettlementDate: d.SettlementDate,
			Face:           face,
		}
		if d.Pricing.AutoAccrued {
			cfg.Accrued = pricing.AccruedFromPeriods(out.Cashflows.Periods, d.SettlementDate, face)
		}
		if d.Pricing.Curve != "" {
			cfg.Curve = &pricing.CurveRef{Rates: rateEngine, Name: d.Pricing.Curve}
		}
		res, err := pricing.Calculate(flows, cfg, d.Pricing.DayCount,
			pricing.WithSolver(settings.Solver), pricing.WithLogger(log))
		switch {
		case errors.Is(err, apperrors.ErrNotConverged):
			if m != nil {
				m.NonConvergence.Inc()
			}
			out.Pricing = &res
			out.Err = err
		case err != nil:
			out.Err = err
			return out
		default:
			out.Pricing = &res
		}
		out.Substitutions = merge(out.Substitutions, res.Substitutions)
	}
	return out
}

// applyVectors generates the scenario's vectors over the deal horizon and
// lays them over the deal's scalar assumptions.
func applyVectors(out *Outcome, d *deal.Deal, sc deal.Scenario) (cashflow.Assumptions, error) {
	asm := d.Assumptions
	if sc.Prepay != nil {
		v, err := scenario.Generate(*sc.Prepay, d.Horizon)
		if err != nil {
			return asm, fmt.Errorf("prepay vector: %w", err)
		}
		if sc.Prepay.Type == scenario.CPR {
			// The scalar still covers periods past the vector.
			if asm.PrepayUnit == cashflow.PSA && len(v) < d.Loan.RemainingTerm {
				out.Substitutions = apperrors.AppendUnique(out.Substitutions, cashflow.SubstitutionPSA)
			}
			asm = asm.AsCPR()
		}
		asm.PrepayVector = v
		out.Vectors[VectorPrepay] = v
	}
	if sc.Default != nil {
		v, err := scenario.Generate(*sc.Default, d.Horizon)
		if err != nil {
			return asm, fmt.Errorf("default vector: %w", err)
		}
		if sc.Default.Type == scenario.CDR {
			asm = asm.AsCDR()
		}
		asm.DefaultVector = v
		out.Vectors[VectorDefault] = v
	}
	if sc.Severity != nil {
		v, err := scenario.Generate(*sc.Severity, d.Horizon)
		if err != nil {
			return asm, fmt.Errorf("severity vector: %w", err)
		}
		asm.SeverityVector = v
		out.Vectors[VectorSeverity] = v
	}
	return asm, nil
}

func merge(dst, src []apperrors.Substitution) []apperrors.Substitution {
	for _, s := range src {
		dst = apperrors.AppendUnique(dst, s)
	}
	return dst
}
