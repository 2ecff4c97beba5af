package market

import (
	"fmt"
	"strings"
)

// DayCount enum.
type DayCount string

const (
	Act360  DayCount = "ACT/360"
	Act365  DayCount = "ACT/365"
	Act365F DayCount = "ACT/365F"
	ActAct  DayCount = "ACT/ACT"
	Dc30360 DayCount = "30/360"
	Dc30E   DayCount = "30E/360"
)

// PaymentFrequency enumerates scheduled payment frequencies.
type PaymentFrequency string

const (
	Monthly    PaymentFrequency = "Monthly"
	Quarterly  PaymentFrequency = "Quarterly"
	SemiAnnual PaymentFrequency = "SemiAnnual"
	Annual     PaymentFrequency = "Annual"
)

// PeriodsPerYear returns the number of payments per year.
func (f PaymentFrequency) PeriodsPerYear() (int, error) {
	switch f {
	case Monthly:
		return 12, nil
	case Quarterly:
		return 4, nil
	case SemiAnnual:
		return 2, nil
	case Annual:
		return 1, nil
	default:
		return 0, fmt.Errorf("PeriodsPerYear: unsupported payment frequency %q", string(f))
	}
}

// Months returns the number of calendar months in one payment period.
func (f PaymentFrequency) Months() (int, error) {
	n, err := f.PeriodsPerYear()
	if err != nil {
		return 0, err
	}
	return 12 / n, nil
}

// YieldBasis is the compounding convention a yield is quoted on.
type YieldBasis string

const (
	BondEquivalent  YieldBasis = "BondEquivalent"
	AnnualBasis     YieldBasis = "Annual"
	SemiAnnualBasis YieldBasis = "SemiAnnual"
	MonthlyBasis    YieldBasis = "Monthly"
)

// CompoundingPeriods returns compounding periods per year for the basis.
// Unknown bases compound semi-annually, matching bond-equivalent quoting.
func (b YieldBasis) CompoundingPeriods() int {
	switch b {
	case AnnualBasis:
		return 1
	case SemiAnnualBasis, BondEquivalent:
		return 2
	case MonthlyBasis:
		return 12
	default:
		return 2
	}
}

// ParseDayCount normalises user input such as "act/365f" or "30/360".
func ParseDayCount(s string) (DayCount, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ACT/360":
		return Act360, nil
	case "ACT/365":
		return Act365, nil
	case "ACT/365F", "":
		return Act365F, nil
	case "ACT/ACT":
		return ActAct, nil
	case "30/360":
		return Dc30360, nil
	case "30E/360":
		return Dc30E, nil
	default:
		return "", fmt.Errorf("ParseDayCount: unsupported day count %q", s)
	}
}
