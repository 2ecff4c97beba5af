// Package timing spreads annualised rates across periods and lags
// recoveries using piecewise-linear period-indexed weight curves.
package timing

import (
	"fmt"

	"github.com/meenmo/cfengine/apperrors"
	"github.com/meenmo/cfengine/utils"
)

// Vector is a piecewise-linear allocation curve over period indices.
type Vector struct {
	Periods []float64 `yaml:"periods" json:"periods"`
	Values  []float64 `yaml:"values" json:"values"`
}

// Config holds the timing curves for one run.
type Config struct {
	PrepaymentTiming  Vector `yaml:"prepayment" json:"prepayment"`
	DefaultTiming     Vector `yaml:"default" json:"default"`
	RecoveryTiming    Vector `yaml:"recovery" json:"recovery"`
	LiquidationTiming Vector `yaml:"liquidation" json:"liquidation"`
	RecoveryLag       int    `yaml:"recovery_lag" json:"recovery_lag"`
}

// Engine answers timing-weight queries. It never mutates its vectors.
type Engine struct {
	cfg Config
}

// New validates cfg. An empty vector is allowed and weighs every period at 1.
func New(cfg Config) (*Engine, error) {
	named := map[string]Vector{
		"prepayment":  cfg.PrepaymentTiming,
		"default":     cfg.DefaultTiming,
		"recovery":    cfg.RecoveryTiming,
		"liquidation": cfg.LiquidationTiming,
	}
	for name, v := range named {
		if len(v.Periods) == 0 && len(v.Values) == 0 {
			continue
		}
		if err := utils.ValidateKnots(v.Periods, v.Values); err != nil {
			return nil, fmt.Errorf("timing.New: %s vector: %w: %v", name, apperrors.ErrInvalidConfig, err)
		}
	}
	if cfg.RecoveryLag < 0 {
		return nil, apperrors.Invalid("timing.New", "recovery lag %d is negative", cfg.RecoveryLag)
	}
	return &Engine{cfg: cfg}, nil
}

// RecoveryLag returns the configured recovery lag in periods.
func (e *Engine) RecoveryLag() int { return e.cfg.RecoveryLag }

// PrepaymentWeight returns the prepayment allocation weight at period.
func (e *Engine) PrepaymentWeight(period int) float64 {
	return weight(e.cfg.PrepaymentTiming, float64(period))
}

// DefaultWeight returns the default allocation weight at period.
func (e *Engine) DefaultWeight(period int) float64 {
	return weight(e.cfg.DefaultTiming, float64(period))
}

// LiquidationWeight returns the liquidation allocation weight at period,
// counted from the end of the recovery lag. It scales RecoveryAmount.
func (e *Engine) LiquidationWeight(period int) float64 {
	return weight(e.cfg.LiquidationTiming, float64(period))
}

// RecoveryWeight shifts period (periods since default) back by the
// recovery lag before interpolating; periods before the lag has elapsed
// weigh 0.
func (e *Engine) RecoveryWeight(period int) float64 {
	if period < e.cfg.RecoveryLag {
		return 0
	}
	return weight(e.cfg.RecoveryTiming, float64(period-e.cfg.RecoveryLag))
}

// PrepaymentAmount is balance * rate * prepayment weight.
func (e *Engine) PrepaymentAmount(period int, balance, rate float64) float64 {
	return balance * rate * e.PrepaymentWeight(period)
}

// DefaultAmount is balance * rate * default weight.
func (e *Engine) DefaultAmount(period int, balance, rate float64) float64 {
	return balance * rate * e.DefaultWeight(period)
}

// RecoveryAmount is defaulted * recoveryRate * lagged recovery weight.
func (e *Engine) RecoveryAmount(period int, defaulted, recoveryRate float64) float64 {
	return defaulted * recoveryRate * e.RecoveryWeight(period)
}

func weight(v Vector, period float64) float64 {
	if len(v.Periods) == 0 {
		return 1
	}
	return utils.LinearInterp(v.Periods, v.Values, period)
}
