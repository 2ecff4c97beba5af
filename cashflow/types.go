package cashflow

import (
	"time"

	"github.com/meenmo/cfengine/apperrors"
	"github.com/meenmo/cfengine/calendar"
	"github.com/meenmo/cfengine/market"
)

// RateType distinguishes fixed from floating coupons.
type RateType string

const (
	Fixed    RateType = "Fixed"
	Floating RateType = "Floating"
)

// PrepayUnit is the unit a prepayment rate is quoted in.
type PrepayUnit string

const (
	CPR PrepayUnit = "CPR"
	SMM PrepayUnit = "SMM"
	PSA PrepayUnit = "PSA"
)

// DefaultUnit is the unit a default rate is quoted in.
type DefaultUnit string

const (
	CDR DefaultUnit = "CDR"
	MDR DefaultUnit = "MDR"
)

// ShortfallPriority selects how an accumulated interest shortfall is recovered.
type ShortfallPriority string

const (
	// ShortfallFirst recovers the shortfall out of collected interest before
	// anything else.
	ShortfallFirst ShortfallPriority = "ShortfallFirst"
	// ExcessInterest recovers only from interest collected above scheduled.
	ExcessInterest ShortfallPriority = "ExcessInterest"
)

// Loan is an immutable snapshot of the collateral for one run.
// Coupon and margin are annual percent.
type Loan struct {
	CurrentBalance   float64
	OriginalBalance  float64
	GrossCoupon      float64
	RemainingTerm    int // payments remaining
	OriginalTerm     int
	PaymentFrequency market.PaymentFrequency
	DayCount         market.DayCount
	NextPaymentDate  time.Time
	MaturityDate     time.Time
	RateType         RateType

	FloatingIndex string
	FloatingTenor string
	Margin        float64

	// Calendar rolls payment dates (Modified Following). Nil leaves them unadjusted.
	Calendar *calendar.Calendar
}

// Assumptions is the behavioural input of one scenario. Rates are percent.
type Assumptions struct {
	PrepayRate  float64
	PrepayUnit  PrepayUnit
	DefaultRate float64
	DefaultUnit DefaultUnit
	Severity    float64
	RecoveryLag int

	InterestShortfall bool
	ShortfallRecovery ShortfallPriority

	// Optional per-period overrides, index 0 = period 1. Periods beyond the
	// vector use the scalar value.
	PrepayVector   []float64
	DefaultVector  []float64
	SeverityVector []float64

	// DiscountYield (annual percent) enables Macaulay/modified duration.
	DiscountYield *float64
}

// AsCPR restates the scalar prepayment rate in CPR. A PSA rate has no
// CPR equivalent and becomes 0.
func (a Assumptions) AsCPR() Assumptions {
	switch a.PrepayUnit {
	case SMM:
		a.PrepayRate = 100 * ConvertSMMToCPR(a.PrepayRate/100)
	case PSA:
		a.PrepayRate = 0
	}
	a.PrepayUnit = CPR
	return a
}

// AsCDR restates the scalar default rate in CDR.
func (a Assumptions) AsCDR() Assumptions {
	if a.DefaultUnit == MDR {
		a.DefaultRate = 100 * ConvertSMMToCPR(a.DefaultRate/100)
	}
	a.DefaultUnit = CDR
	return a
}

// Period is one row of the projected schedule.
type Period struct {
	Period       int       `json:"period"`
	StartDate    time.Time `json:"start_date"`
	EndDate      time.Time `json:"end_date"`
	PaymentDate  time.Time `json:"payment_date"`
	YearFraction float64   `json:"year_fraction"`
	CouponRate   float64   `json:"coupon_rate"`

	BeginningBalance   float64 `json:"beginning_balance"`
	ScheduledPrincipal float64 `json:"scheduled_principal"`
	ScheduledInterest  float64 `json:"scheduled_interest"`
	Prepayment         float64 `json:"prepayment"`
	Default            float64 `json:"default"`
	Recoveries         float64 `json:"recoveries"`
	Loss               float64 `json:"loss"`
	CumulativeLoss     float64 `json:"cumulative_loss"`

	NetInterest          float64 `json:"net_interest"`
	InterestShortfall    float64 `json:"interest_shortfall"`
	ShortfallRecovered   float64 `json:"shortfall_recovered"`
	AccumulatedShortfall float64 `json:"accumulated_shortfall"`

	EndingBalance float64 `json:"ending_balance"`
}

// Principal returns scheduled principal plus prepayment.
func (p Period) Principal() float64 {
	return p.ScheduledPrincipal + p.Prepayment
}

// Metrics summarises a schedule. Duration fields are nil when not computed.
type Metrics struct {
	WAL               float64  `json:"wal"`
	Duration          *float64 `json:"duration,omitempty"`
	ModifiedDuration  *float64 `json:"modified_duration,omitempty"`
	TotalPrincipal    float64  `json:"total_principal"`
	TotalInterest     float64  `json:"total_interest"`
	TotalLoss         float64  `json:"total_loss"`
	TotalRecoveries   float64  `json:"total_recoveries"`
	PendingRecoveries float64  `json:"pending_recoveries"`
}

// Result is the ordered schedule plus metrics.
type Result struct {
	Periods       []Period                 `json:"periods"`
	Metrics       Metrics                  `json:"metrics"`
	Substitutions []apperrors.Substitution `json:"substitutions,omitempty"`
}

// RateSource resolves floating coupons. *rates.Engine satisfies it.
type RateSource interface {
	ForwardRate(index, tenor string, date time.Time) (float64, error)
}
