package pricing

import (
	"time"

	"github.com/meenmo/cfengine/apperrors"
	"github.com/meenmo/cfengine/cashflow"
	"github.com/meenmo/cfengine/market"
	"github.com/meenmo/cfengine/rates"
	"github.com/meenmo/cfengine/utils"
)

// Method selects what Config.Value means.
type Method string

const (
	// MethodPrice solves the yield for a clean price per 100.
	MethodPrice Method = "Price"
	// MethodYield prices off an annual yield in percent.
	MethodYield          Method = "Yield"
	MethodSpread         Method = "Spread"
	MethodDiscountMargin Method = "DiscountMargin"
)

// Flow is a single dated cash payment of the collateral.
//
// Amounts are in currency units, not price-per-100.
type Flow struct {
	Date      time.Time `json:"date"`
	Interest  float64   `json:"interest"`
	Principal float64   `json:"principal"`
}

func (f Flow) Amount() float64 {
	return f.Interest + f.Principal
}

// CurveRef points at a discount curve used for effective measures.
type CurveRef struct {
	Rates *rates.Engine
	Name  string
}

// Config is one pricing request.
type Config struct {
	Method     Method
	Value      float64
	YieldBasis market.YieldBasis
	// Accrued is accrued interest per 100.
	Accrued        float64
	SettlementDate time.Time
	// Face is the notional behind price-per-100. Zero means the sum of
	// principal flows.
	Face  float64
	Curve *CurveRef
}

// Result holds price, yield and risk measures. Yields are percent, prices
// per 100, durations in years. Spread and DiscountMargin are nil when not
// computed.
type Result struct {
	Price              float64                  `json:"price"`
	DirtyPrice         float64                  `json:"dirty_price"`
	Yield              float64                  `json:"yield"`
	Spread             *float64                 `json:"spread,omitempty"`
	DiscountMargin     *float64                 `json:"discount_margin,omitempty"`
	Accrued            float64                  `json:"accrued"`
	ModifiedDuration   float64                  `json:"modified_duration"`
	ModifiedConvexity  float64                  `json:"modified_convexity"`
	EffectiveDuration  float64                  `json:"effective_duration"`
	EffectiveConvexity float64                  `json:"effective_convexity"`
	SpreadDuration     float64                  `json:"spread_duration"`
	Iterations         int                      `json:"iterations"`
	Substitutions      []apperrors.Substitution `json:"substitutions,omitempty"`
}

// FlowsFromPeriods converts a projected schedule into dated flows (net
// interest, principal, prepayment and recoveries on each payment date) and
// returns the face, the first period's beginning balance.
func FlowsFromPeriods(periods []cashflow.Period) ([]Flow, float64) {
	if len(periods) == 0 {
		return nil, 0
	}
	flows := make([]Flow, 0, len(periods))
	for _, p := range periods {
		flows = append(flows, Flow{
			Date:      p.PaymentDate,
			Interest:  p.NetInterest,
			Principal: p.Principal() + p.Recoveries,
		})
	}
	return flows, periods[0].BeginningBalance
}

// AccruedFromPeriods returns the interest accrued at settlement on the
// period straddling it, per 100 of face: net interest times elapsed days
// over period days. Zero when settlement falls on a period boundary.
func AccruedFromPeriods(periods []cashflow.Period, settlement time.Time, face float64) float64 {
	if face <= 0 {
		return 0
	}
	for _, p := range periods {
		if !settlement.After(p.StartDate) || !settlement.Before(p.EndDate) {
			continue
		}
		elapsed := utils.Days(p.StartDate, settlement)
		total := utils.Days(p.StartDate, p.EndDate)
		return p.NetInterest * elapsed / total / face * 100
	}
	return 0
}
