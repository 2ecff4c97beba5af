package scenario

// Type tags what a scenario vector represents; it selects the clamp range.
type Type string

const (
	CPR          Type = "CPR"
	CDR          Type = "CDR"
	LossSeverity Type = "LossSeverity"
	Delinquency  Type = "Delinquency"
	InterestRate Type = "InterestRate"
	DrawRate     Type = "DrawRate"
)

// Ramp moves linearly from StartValue towards EndValue over RampPeriods
// entries, then holds EndValue for HoldPeriods entries.
type Ramp struct {
	StartValue  float64 `yaml:"start_value" json:"start_value"`
	EndValue    float64 `yaml:"end_value" json:"end_value"`
	RampPeriods int     `yaml:"ramp_periods" json:"ramp_periods"`
	HoldPeriods int     `yaml:"hold_periods" json:"hold_periods"`
}

// Point is an explicit override of one (0-based) period.
type Point struct {
	Period int     `yaml:"period" json:"period"`
	Value  float64 `yaml:"value" json:"value"`
}

// Shock adds Magnitude over [Timing, Timing+Duration). Duration 0 runs to the
// end of the horizon.
type Shock struct {
	Timing    int     `yaml:"timing" json:"timing"`
	Magnitude float64 `yaml:"magnitude" json:"magnitude"`
	Duration  int     `yaml:"duration" json:"duration"`
}

// Config describes how to build one scenario vector.
type Config struct {
	Type         Type    `yaml:"type" json:"type"`
	InitialValue float64 `yaml:"initial_value" json:"initial_value"`
	Ramps        []Ramp  `yaml:"ramps" json:"ramps,omitempty"`
	Points       []Point `yaml:"points" json:"points,omitempty"`
	// SeasonalAdjustments maps month-of-year (1..12) to a multiplier.
	SeasonalAdjustments map[int]float64 `yaml:"seasonal" json:"seasonal,omitempty"`
	Shock               *Shock          `yaml:"shock" json:"shock,omitempty"`
	Rules               []Rule          `yaml:"-" json:"rules,omitempty"`
}
