package deal

import (
	"github.com/meenmo/cfengine/scenario"
	"github.com/meenmo/cfengine/timing"
	"github.com/meenmo/cfengine/waterfall"
)

// File is the YAML deal document. Dates are YYYY-MM-DD strings and rates
// are percent.
type File struct {
	Name           string `yaml:"name"`
	SettlementDate string `yaml:"settlement_date"`
	// TradeDate plus SettlementLag business days on the loan calendar
	// gives the settlement date when SettlementDate is empty.
	TradeDate     string          `yaml:"trade_date"`
	SettlementLag int             `yaml:"settlement_lag"`
	Horizon       int             `yaml:"horizon"`
	Loan          LoanFile        `yaml:"loan"`
	Assumptions   AssumptionsFile `yaml:"assumptions"`

	// StandardScenarios adds the stock stress set after Scenarios.
	StandardScenarios bool           `yaml:"standard_scenarios"`
	Scenarios         []ScenarioFile `yaml:"scenarios"`

	Timing    *timing.Config `yaml:"timing"`
	Curves    []CurveFile    `yaml:"curves"`
	Forwards  []ForwardFile  `yaml:"forwards"`
	Waterfall *WaterfallFile `yaml:"waterfall"`
	Pricing   *PricingFile   `yaml:"pricing"`
}

type LoanFile struct {
	CurrentBalance   float64       `yaml:"current_balance"`
	OriginalBalance  float64       `yaml:"original_balance"`
	GrossCoupon      float64       `yaml:"gross_coupon"`
	RemainingTerm    int           `yaml:"remaining_term"`
	OriginalTerm     int           `yaml:"original_term"`
	PaymentFrequency string        `yaml:"payment_frequency"`
	DayCount         string        `yaml:"day_count"`
	NextPaymentDate  string        `yaml:"next_payment_date"`
	MaturityDate     string        `yaml:"maturity_date"`
	RateType         string        `yaml:"rate_type"`
	FloatingIndex    string        `yaml:"floating_index"`
	FloatingTenor    string        `yaml:"floating_tenor"`
	Margin           float64       `yaml:"margin"`
	Calendar         *CalendarFile `yaml:"calendar"`
}

type CalendarFile struct {
	Name     string   `yaml:"name"`
	Holidays []string `yaml:"holidays"`
}

type AssumptionsFile struct {
	PrepayRate        float64  `yaml:"prepay_rate"`
	PrepayUnit        string   `yaml:"prepay_unit"`
	DefaultRate       float64  `yaml:"default_rate"`
	DefaultUnit       string   `yaml:"default_unit"`
	Severity          float64  `yaml:"severity"`
	RecoveryLag       int      `yaml:"recovery_lag"`
	InterestShortfall bool     `yaml:"interest_shortfall"`
	ShortfallRecovery string   `yaml:"shortfall_recovery"`
	DiscountYield     *float64 `yaml:"discount_yield"`
}

// VectorFile is a scenario vector definition plus textual rules.
type VectorFile struct {
	scenario.Config `yaml:",inline"`
	Rules           []string `yaml:"rules"`
}

// ScenarioFile drives the base assumptions with optional per-period vectors.
type ScenarioFile struct {
	Name     string      `yaml:"name"`
	Prepay   *VectorFile `yaml:"prepay"`
	Default  *VectorFile `yaml:"default"`
	Severity *VectorFile `yaml:"severity"`
}

type PointFile struct {
	Date string  `yaml:"date"`
	Rate float64 `yaml:"rate"`
}

type CurveFile struct {
	Name     string      `yaml:"name"`
	DayCount string      `yaml:"day_count"`
	Epoch    string      `yaml:"epoch"`
	Points   []PointFile `yaml:"points"`
}

type ForwardFile struct {
	Index  string      `yaml:"index"`
	Tenor  string      `yaml:"tenor"`
	Points []PointFile `yaml:"points"`
}

type WaterfallFile struct {
	waterfall.Config `yaml:",inline"`
	// NoteBalance seeds the OC ratio denominator.
	NoteBalance float64 `yaml:"note_balance"`
}

type PricingFile struct {
	Method     string  `yaml:"method"`
	Value      float64 `yaml:"value"`
	YieldBasis string  `yaml:"yield_basis"`
	Accrued    float64 `yaml:"accrued"`
	// AutoAccrued derives Accrued from the projected period straddling
	// settlement.
	AutoAccrued bool   `yaml:"auto_accrued"`
	DayCount    string `yaml:"day_count"`
	Curve       string `yaml:"curve"`
}
