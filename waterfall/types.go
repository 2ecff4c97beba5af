package waterfall

import "github.com/meenmo/cfengine/apperrors"

// AccountType decides which collections an account is credited with.
type AccountType string

const (
	PrincipalAccount AccountType = "Principal"
	InterestAccount  AccountType = "Interest"
	ReserveAccount   AccountType = "Reserve"
	FeesAccount      AccountType = "Fees"
)

// TriggerType selects the ratio a trigger is evaluated against.
type TriggerType string

const (
	OC             TriggerType = "OC"
	IC             TriggerType = "IC"
	Delinquency    TriggerType = "Delinquency"
	CumulativeLoss TriggerType = "CumulativeLoss"
)

// PaymentType is the allocation rule of a payment step.
type PaymentType string

const (
	Sequential      PaymentType = "Sequential"
	ProRata         PaymentType = "ProRata"
	ModifiedProRata PaymentType = "ModifiedProRata"
)

// Operator compares a trigger's ratio against its threshold.
type Operator string

const (
	GT Operator = ">"
	LT Operator = "<"
	GE Operator = ">="
	LE Operator = "<="
)

func (op Operator) valid() bool {
	switch op {
	case GT, LT, GE, LE:
		return true
	}
	return false
}

func (op Operator) compare(v, threshold float64) bool {
	switch op {
	case GT:
		return v > threshold
	case LT:
		return v < threshold
	case GE:
		return v >= threshold
	case LE:
		return v <= threshold
	}
	return false
}

// Account holds funds between payment steps. Balances persist across periods.
type Account struct {
	Name           string      `yaml:"name" json:"name"`
	Type           AccountType `yaml:"type" json:"type"`
	Balance        float64     `yaml:"balance" json:"balance"`
	MinimumBalance *float64    `yaml:"minimum_balance,omitempty" json:"minimum_balance,omitempty"`
	MaximumBalance *float64    `yaml:"maximum_balance,omitempty" json:"maximum_balance,omitempty"`
}

// Trigger is re-evaluated every period. Value and Active hold the latest result.
type Trigger struct {
	Name      string      `yaml:"name" json:"name"`
	Type      TriggerType `yaml:"type" json:"type"`
	Operator  Operator    `yaml:"operator" json:"operator"`
	Threshold float64     `yaml:"threshold" json:"threshold"`
	Value     float64     `yaml:"-" json:"value"`
	Active    bool        `yaml:"-" json:"active"`
}

// Payment is one priority step. Lower Priority runs first; a gated payment
// runs only while every trigger in Gates is active.
type Payment struct {
	Priority   int                `yaml:"priority" json:"priority"`
	Type       PaymentType        `yaml:"type" json:"type"`
	Recipients []string           `yaml:"recipients" json:"recipients"`
	Gates      []string           `yaml:"gates,omitempty" json:"gates,omitempty"`
	Caps       map[string]float64 `yaml:"caps,omitempty" json:"caps,omitempty"`
	Floors     map[string]float64 `yaml:"floors,omitempty" json:"floors,omitempty"`
}

// Config is the full waterfall definition.
type Config struct {
	Accounts []Account `yaml:"accounts" json:"accounts"`
	Triggers []Trigger `yaml:"triggers" json:"triggers"`
	Payments []Payment `yaml:"payments" json:"payments"`
	// NoteRecipients are paid down by their payments; the OC denominator
	// shrinks accordingly. Empty keeps the note balance as given.
	NoteRecipients []string `yaml:"note_recipients,omitempty" json:"note_recipients,omitempty"`
}

// CollateralState feeds the default trigger ratios. Zero denominators mean
// the input is unavailable.
type CollateralState struct {
	CollateralBalance float64 `json:"collateral_balance"`
	NoteBalance       float64 `json:"note_balance"`
	InterestDue       float64 `json:"interest_due"`
	DelinquentBalance float64 `json:"delinquent_balance"`
	CumulativeLoss    float64 `json:"cumulative_loss"`
	OriginalBalance   float64 `json:"original_balance"`
}

// Collections is one period's aggregate collateral cash.
type Collections struct {
	Period     int             `json:"period"`
	Principal  float64         `json:"principal"`
	Interest   float64         `json:"interest"`
	Prepayment float64         `json:"prepayment"`
	Recovery   float64         `json:"recovery"`
	State      CollateralState `json:"state"`
}

// PeriodResult is the distribution of one period.
type PeriodResult struct {
	Period         int                `json:"period"`
	Payments       map[string]float64 `json:"payments"`
	TriggerValues  map[string]float64 `json:"trigger_values"`
	ActiveTriggers []string           `json:"active_triggers"`
	// NoteBalance is the outstanding note balance after this period's
	// payments. Zero when no note balance is tracked.
	NoteBalance float64 `json:"note_balance,omitempty"`
	// Unfunded is paid gross but not covered by the Principal/Interest accounts.
	Unfunded float64 `json:"unfunded"`
	// Overflow is collections above an account's MaximumBalance.
	Overflow      float64                  `json:"overflow"`
	Substitutions []apperrors.Substitution `json:"substitutions,omitempty"`
}
