// Package report flattens engine results into display rows, CSV and the
// opaque per-scenario JSON blob handed to persistence layers.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/meenmo/cfengine/cashflow"
	"github.com/meenmo/cfengine/waterfall"
)

const dateLayout = "2006-01-02"

// Header is the column order of Row.Record.
var Header = []string{
	"period", "payment_date", "beginning_balance", "scheduled_principal",
	"scheduled_interest", "prepayment", "default", "recoveries", "loss",
	"net_interest", "interest_shortfall", "accumulated_shortfall", "ending_balance",
}

// Row is one cashflow period with amounts rounded for display.
type Row struct {
	Period               int             `json:"period"`
	PaymentDate          string          `json:"payment_date"`
	BeginningBalance     decimal.Decimal `json:"beginning_balance"`
	ScheduledPrincipal   decimal.Decimal `json:"scheduled_principal"`
	ScheduledInterest    decimal.Decimal `json:"scheduled_interest"`
	Prepayment           decimal.Decimal `json:"prepayment"`
	Default              decimal.Decimal `json:"default"`
	Recoveries           decimal.Decimal `json:"recoveries"`
	Loss                 decimal.Decimal `json:"loss"`
	NetInterest          decimal.Decimal `json:"net_interest"`
	InterestShortfall    decimal.Decimal `json:"interest_shortfall"`
	AccumulatedShortfall decimal.Decimal `json:"accumulated_shortfall"`
	EndingBalance        decimal.Decimal `json:"ending_balance"`
}

func round(v float64, places int32) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(places)
}

// Table flattens a schedule, rounding amounts to places decimals.
func Table(res cashflow.Result, places int32) []Row {
	rows := make([]Row, 0, len(res.Periods))
	for _, p := range res.Periods {
		rows = append(rows, Row{
			Period:               p.Period,
			PaymentDate:          p.PaymentDate.Format(dateLayout),
			BeginningBalance:     round(p.BeginningBalance, places),
			ScheduledPrincipal:   round(p.ScheduledPrincipal, places),
			ScheduledInterest:    round(p.ScheduledInterest, places),
			Prepayment:           round(p.Prepayment, places),
			Default:              round(p.Default, places),
			Recoveries:           round(p.Recoveries, places),
			Loss:                 round(p.Loss, places),
			NetInterest:          round(p.NetInterest, places),
			InterestShortfall:    round(p.InterestShortfall, places),
			AccumulatedShortfall: round(p.AccumulatedShortfall, places),
			EndingBalance:        round(p.EndingBalance, places),
		})
	}
	return rows
}

// Record renders r in Header order.
func (r Row) Record() []string {
	return []string{
		strconv.Itoa(r.Period),
		r.PaymentDate,
		r.BeginningBalance.String(),
		r.ScheduledPrincipal.String(),
		r.ScheduledInterest.String(),
		r.Prepayment.String(),
		r.Default.String(),
		r.Recoveries.String(),
		r.Loss.String(),
		r.NetInterest.String(),
		r.InterestShortfall.String(),
		r.AccumulatedShortfall.String(),
		r.EndingBalance.String(),
	}
}

// WriteCSV writes Header and rows to w.
func WriteCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("WriteCSV: %w", err)
	}
	for _, r := range rows {
		if err := cw.Write(r.Record()); err != nil {
			return fmt.Errorf("WriteCSV: period %d: %w", r.Period, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("WriteCSV: %w", err)
	}
	return nil
}

// WriteScenariosCSV writes one table holding several scenarios, with a
// leading scenario column. names and tables are parallel.
func WriteScenariosCSV(w io.Writer, names []string, tables [][]Row) error {
	if len(names) != len(tables) {
		return fmt.Errorf("WriteScenariosCSV: %d names but %d tables", len(names), len(tables))
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(append([]string{"scenario"}, Header...)); err != nil {
		return fmt.Errorf("WriteScenariosCSV: %w", err)
	}
	for i, rows := range tables {
		for _, r := range rows {
			if err := cw.Write(append([]string{names[i]}, r.Record()...)); err != nil {
				return fmt.Errorf("WriteScenariosCSV: %s period %d: %w", names[i], r.Period, err)
			}
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("WriteScenariosCSV: %w", err)
	}
	return nil
}

// MarshalBlob serialises results keyed by scenario name.
func MarshalBlob(results map[string]cashflow.Result) ([]byte, error) {
	b, err := json.Marshal(results)
	if err != nil {
		return nil, fmt.Errorf("MarshalBlob: %w", err)
	}
	return b, nil
}

// UnmarshalBlob is the inverse of MarshalBlob.
func UnmarshalBlob(data []byte) (map[string]cashflow.Result, error) {
	var out map[string]cashflow.Result
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("UnmarshalBlob: %w", err)
	}
	return out, nil
}

// VectorSet maps scenario names to generated vectors for charting.
type VectorSet map[string][]float64

// Names returns the scenario names in order, or sorted when order is nil.
// Names in order that are missing from v are skipped.
func (v VectorSet) Names(order []string) []string {
	if order == nil {
		names := make([]string, 0, len(v))
		for n := range v {
			names = append(names, n)
		}
		sort.Strings(names)
		return names
	}
	names := make([]string, 0, len(order))
	for _, n := range order {
		if _, ok := v[n]; ok {
			names = append(names, n)
		}
	}
	return names
}

// Distribution is one recipient's payment in one period.
type Distribution struct {
	Period    int             `json:"period"`
	Recipient string          `json:"recipient"`
	Amount    decimal.Decimal `json:"amount"`
}

// Distributions flattens waterfall results, recipients sorted by name
// within each period.
func Distributions(results []waterfall.PeriodResult, places int32) []Distribution {
	var out []Distribution
	for _, r := range results {
		recipients := make([]string, 0, len(r.Payments))
		for name := range r.Payments {
			recipients = append(recipients, name)
		}
		sort.Strings(recipients)
		for _, name := range recipients {
			out = append(out, Distribution{
				Period:    r.Period,
				Recipient: name,
				Amount:    round(r.Payments[name], places),
			})
		}
	}
	return out
}

// Totals sums distributions per recipient.
func Totals(dist []Distribution) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal)
	for _, d := range dist {
		out[d.Recipient] = out[d.Recipient].Add(d.Amount)
	}
	return out
}
