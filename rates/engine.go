// Package rates stores named discount curves and forward-rate sets for one
// simulation run and answers interpolated rate and discount-factor queries.
package rates

import (
	"fmt"
	"math"
	"time"

	"github.com/meenmo/cfengine/apperrors"
	"github.com/meenmo/cfengine/market"
	"github.com/meenmo/cfengine/utils"
)

// Curve is a zero-rate curve. Rates are annualised percent (e.g. 4.25).
type Curve struct {
	Name     string
	Dates    []time.Time
	Rates    []float64
	DayCount market.DayCount
	// Epoch anchors discount-factor time. Zero means the first curve date.
	Epoch time.Time
}

// ForwardRates is a forward-rate term structure for one index/tenor pair.
// Rates are annualised percent.
type ForwardRates struct {
	Index string
	Tenor string
	Dates []time.Time
	Rates []float64
}

func (f ForwardRates) key() string {
	return forwardKey(f.Index, f.Tenor)
}

func forwardKey(index, tenor string) string {
	return index + "_" + tenor
}

type knots struct {
	keys   []float64
	values []float64
}

type storedCurve struct {
	curve Curve
	knots
}

// Engine holds run-scoped curves. It is not safe for concurrent mutation;
// each simulation run owns its own Engine.
type Engine struct {
	curves   map[string]storedCurve
	forwards map[string]knots
}

// NewEngine returns an empty rate engine.
func NewEngine() *Engine {
	return &Engine{
		curves:   make(map[string]storedCurve),
		forwards: make(map[string]knots),
	}
}

// AddCurve registers a discount curve. Names are unique; curves are never replaced.
func (e *Engine) AddCurve(c Curve) error {
	if c.Name == "" {
		return apperrors.Invalid("AddCurve", "curve name is required")
	}
	if _, ok := e.curves[c.Name]; ok {
		return apperrors.Invalid("AddCurve", "curve %q already registered", c.Name)
	}
	k, err := buildKnots(c.Dates, c.Rates)
	if err != nil {
		return fmt.Errorf("AddCurve %q: %w", c.Name, err)
	}
	if c.DayCount == "" {
		c.DayCount = market.Act365F
	}
	if c.Epoch.IsZero() {
		c.Epoch = c.Dates[0]
	}
	c.Dates = append([]time.Time(nil), c.Dates...)
	c.Rates = append([]float64(nil), c.Rates...)
	e.curves[c.Name] = storedCurve{curve: c, knots: k}
	return nil
}

// AddForwardRates registers a forward-rate set keyed by index and tenor.
func (e *Engine) AddForwardRates(f ForwardRates) error {
	if f.Index == "" || f.Tenor == "" {
		return apperrors.Invalid("AddForwardRates", "index and tenor are required")
	}
	if _, ok := e.forwards[f.key()]; ok {
		return apperrors.Invalid("AddForwardRates", "forward rates %s already registered", f.key())
	}
	k, err := buildKnots(f.Dates, f.Rates)
	if err != nil {
		return fmt.Errorf("AddForwardRates %s: %w", f.key(), err)
	}
	e.forwards[f.key()] = k
	return nil
}

// Curve returns a registered curve by name.
func (e *Engine) Curve(name string) (Curve, bool) {
	sc, ok := e.curves[name]
	return sc.curve, ok
}

// Rate returns the interpolated zero rate (percent) of curve name at date.
func (e *Engine) Rate(name string, date time.Time) (float64, error) {
	sc, ok := e.curves[name]
	if !ok {
		return 0, fmt.Errorf("Rate: %w: %s", apperrors.ErrCurveNotFound, name)
	}
	return utils.LinearInterp(sc.keys, sc.values, timeKey(date)), nil
}

// DiscountFactor converts the interpolated rate into a continuously
// compounded discount factor exp(-r * t), t in years from the curve epoch.
func (e *Engine) DiscountFactor(name string, date time.Time) (float64, error) {
	return e.DiscountFactorShifted(name, date, 0)
}

// DiscountFactorShifted is DiscountFactor with the zero rate moved in
// parallel by shift, expressed in decimal (1e-4 = 1bp).
func (e *Engine) DiscountFactorShifted(name string, date time.Time, shift float64) (float64, error) {
	sc, ok := e.curves[name]
	if !ok {
		return 0, fmt.Errorf("DiscountFactor: %w: %s", apperrors.ErrCurveNotFound, name)
	}
	r := utils.LinearInterp(sc.keys, sc.values, timeKey(date))/100 + shift
	t := utils.YearFraction(sc.curve.Epoch, date, sc.curve.DayCount)
	return math.Exp(-r * t), nil
}

// ForwardRate returns the interpolated forward rate (percent) for index/tenor at date.
func (e *Engine) ForwardRate(index, tenor string, date time.Time) (float64, error) {
	k, ok := e.forwards[forwardKey(index, tenor)]
	if !ok {
		return 0, fmt.Errorf("ForwardRate: %w: no forward rates for %s", apperrors.ErrCurveNotFound, forwardKey(index, tenor))
	}
	return utils.LinearInterp(k.keys, k.values, timeKey(date)), nil
}

func buildKnots(dates []time.Time, rates []float64) (knots, error) {
	keys := make([]float64, len(dates))
	for i, d := range dates {
		keys[i] = timeKey(d)
	}
	if err := utils.ValidateKnots(keys, rates); err != nil {
		return knots{}, fmt.Errorf("%w: %v", apperrors.ErrInvalidConfig, err)
	}
	return knots{keys: keys, values: append([]float64(nil), rates...)}, nil
}

// timeKey maps a date onto the interpolation axis (seconds since Unix epoch).
func timeKey(t time.Time) float64 {
	return float64(t.Unix())
}
