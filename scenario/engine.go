// Package scenario builds period-indexed assumption vectors (CPR, CDR,
// severity, ...) from a base value, ramps, overrides, seasonality, shocks and
// typed conditional rules.
package scenario

import (
	"math"

	"go.uber.org/zap"

	"github.com/meenmo/cfengine/apperrors"
	"github.com/meenmo/cfengine/logging"
	"github.com/meenmo/cfengine/utils"
)

// Generate returns a vector of horizon values. Stages run in a fixed order,
// each on the output of the previous one: initial value, ramps, point
// overrides, seasonality, shock, rules, then the clamp for cfg.Type.
func Generate(cfg Config, horizon int) ([]float64, error) {
	if err := validate(cfg, horizon); err != nil {
		return nil, err
	}

	vector := make([]float64, horizon)
	for i := range vector {
		vector[i] = cfg.InitialValue
	}

	applyRamps(vector, cfg.Ramps)
	applyPoints(vector, cfg.Points)
	applySeasonality(vector, cfg.SeasonalAdjustments)
	if cfg.Shock != nil {
		applyShock(vector, *cfg.Shock)
	}
	for _, r := range cfg.Rules {
		for i := range vector {
			if r.Matches(i, vector[i]) {
				vector[i] = r.Action.Apply(vector[i])
			}
		}
	}

	for i, v := range vector {
		vector[i] = clampFor(cfg.Type, v)
	}
	return vector, nil
}

func validate(cfg Config, horizon int) error {
	if horizon < 0 {
		return apperrors.Invalid("scenario.Generate", "horizon %d is negative", horizon)
	}
	for i, r := range cfg.Ramps {
		if r.RampPeriods < 0 || r.HoldPeriods < 0 {
			return apperrors.Invalid("scenario.Generate", "ramp %d has negative period count", i)
		}
	}
	for i, p := range cfg.Points {
		if p.Period < 0 {
			return apperrors.Invalid("scenario.Generate", "point %d has negative period %d", i, p.Period)
		}
	}
	if cfg.Shock != nil && (cfg.Shock.Timing < 0 || cfg.Shock.Duration < 0) {
		return apperrors.Invalid("scenario.Generate", "shock timing/duration must not be negative")
	}
	return nil
}

// applyRamps lays ramps end-to-end from period 0; the write cursor never
// passes the horizon.
func applyRamps(vector []float64, ramps []Ramp) {
	cursor := 0
	for _, r := range ramps {
		if r.RampPeriods > 0 {
			increment := (r.EndValue - r.StartValue) / float64(r.RampPeriods)
			for i := 0; i < r.RampPeriods && cursor < len(vector); i++ {
				vector[cursor] = r.StartValue + increment*float64(i)
				cursor++
			}
		}
		for i := 0; i < r.HoldPeriods && cursor < len(vector); i++ {
			vector[cursor] = r.EndValue
			cursor++
		}
	}
}

func applyPoints(vector []float64, points []Point) {
	for _, p := range points {
		if p.Period < len(vector) {
			vector[p.Period] = p.Value
		}
	}
}

func applySeasonality(vector []float64, seasonal map[int]float64) {
	if len(seasonal) == 0 {
		return
	}
	for i := range vector {
		if m, ok := seasonal[(i%12)+1]; ok {
			vector[i] *= m
		}
	}
}

func applyShock(vector []float64, s Shock) {
	end := len(vector)
	if s.Duration > 0 && s.Timing+s.Duration < end {
		end = s.Timing + s.Duration
	}
	for i := s.Timing; i < end; i++ {
		vector[i] += s.Magnitude
	}
}

func clampFor(t Type, v float64) float64 {
	switch t {
	case CPR, CDR, DrawRate, LossSeverity:
		return utils.Clamp(v, 0, 100)
	case Delinquency:
		return math.Max(0, v)
	case InterestRate:
		return utils.Clamp(v, -10, 50)
	default:
		return v
	}
}

// CompileRules parses textual rules. A rule that does not parse is dropped
// and logged; it never aborts vector generation.
func CompileRules(texts []string, logger *zap.Logger) []Rule {
	logger = logging.OrNop(logger)
	rules := make([]Rule, 0, len(texts))
	for _, text := range texts {
		r, err := ParseRule(text)
		if err != nil {
			logger.Warn("ignoring unparseable scenario rule", zap.String("rule", text), zap.Error(err))
			continue
		}
		rules = append(rules, r)
	}
	return rules
}

// WeightedAverageFactor is the value-weighted average period of vector, in
// years of monthly periods: sum(v_i*(i+1)) / sum(v_i) / 12.
func WeightedAverageFactor(vector []float64) float64 {
	var sum, weighted float64
	for i, v := range vector {
		sum += v
		weighted += v * float64(i+1)
	}
	if sum <= 0 {
		return 0
	}
	return weighted / sum / 12
}
