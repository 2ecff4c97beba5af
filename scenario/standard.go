package scenario

// Named scenarios produced by StandardScenarios.
const (
	NameBase           = "Base"
	NameHighPrepay     = "High Prepay"
	NameHighDefault    = "High Default"
	NameHighSeverity   = "High Severity"
	NameCombinedStress = "Combined Stress"
	NameFastRecovery   = "Fast Recovery"
	NameSlowRecovery   = "Slow Recovery"
)

// StandardOrder lists the standard scenario names in presentation order.
var StandardOrder = []string{
	NameBase, NameHighPrepay, NameHighDefault, NameHighSeverity,
	NameCombinedStress, NameFastRecovery, NameSlowRecovery,
}

// StandardConfigs returns the stock stress set.
func StandardConfigs() map[string]Config {
	return map[string]Config{
		NameBase: {
			Type:         CPR,
			InitialValue: 8,
			SeasonalAdjustments: map[int]float64{
				3: 1.2, 4: 1.3, 5: 1.3, 6: 1.4, 7: 1.3, 8: 1.2, 9: 1.1,
			},
		},
		NameHighPrepay: {
			Type:  CPR,
			Ramps: []Ramp{{StartValue: 10, EndValue: 25, RampPeriods: 12, HoldPeriods: 24}},
			SeasonalAdjustments: map[int]float64{
				3: 1.3, 4: 1.4, 5: 1.4, 6: 1.5, 7: 1.4, 8: 1.3, 9: 1.2,
			},
		},
		NameHighDefault: {
			Type:  CDR,
			Ramps: []Ramp{{StartValue: 1, EndValue: 5, RampPeriods: 12, HoldPeriods: 24}},
			Shock: &Shock{Timing: 36, Magnitude: 2, Duration: 6},
		},
		NameHighSeverity: {
			Type:         LossSeverity,
			InitialValue: 35,
			Ramps:        []Ramp{{StartValue: 35, EndValue: 60, RampPeriods: 18}},
		},
		NameCombinedStress: {
			Type:  CDR,
			Ramps: []Ramp{{StartValue: 2, EndValue: 8, RampPeriods: 12, HoldPeriods: 18}},
			Shock: &Shock{Timing: 24, Magnitude: 3, Duration: 6},
			Rules: []Rule{{
				Conditions: []Condition{
					{Field: FieldPeriod, Op: OpGT, Threshold: 36},
					{Field: FieldValue, Op: OpGT, Threshold: 5},
				},
				Action: Action{Kind: ActionMultiply, Operand: 0.9},
			}},
		},
		NameFastRecovery: {
			Type: CDR,
			Ramps: []Ramp{
				{StartValue: 5, EndValue: 8, RampPeriods: 6, HoldPeriods: 6},
				{StartValue: 8, EndValue: 1, RampPeriods: 12, HoldPeriods: 24},
			},
		},
		NameSlowRecovery: {
			Type: CDR,
			Ramps: []Ramp{
				{StartValue: 5, EndValue: 8, RampPeriods: 6, HoldPeriods: 12},
				{StartValue: 8, EndValue: 2, RampPeriods: 24, HoldPeriods: 12},
			},
			Rules: []Rule{{
				Conditions: []Condition{{Field: FieldPeriod, Op: OpGT, Threshold: 48}},
				Action:     Action{Kind: ActionFloor, Operand: 1},
			}},
		},
	}
}

// StandardScenarios generates every standard scenario over horizon periods,
// keyed by name.
func StandardScenarios(horizon int) (map[string][]float64, error) {
	out := make(map[string][]float64, len(StandardOrder))
	for name, cfg := range StandardConfigs() {
		v, err := Generate(cfg, horizon)
		if err != nil {
			return nil, err
		}
		out[name] = v
	}
	return out, nil
}
