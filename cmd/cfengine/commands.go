package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/meenmo/cfengine/apperrors"
	"github.com/meenmo/cfengine/cashflow"
	"github.com/meenmo/cfengine/deal"
	"github.com/meenmo/cfengine/pricing"
	"github.com/meenmo/cfengine/report"
	"github.com/meenmo/cfengine/runner"
	"github.com/meenmo/cfengine/scenario"
)

type namedVector struct {
	Name   string    `json:"name"`
	Values []float64 `json:"values"`
}

type outcomeJSON struct {
	RunID         string                     `json:"run_id,omitempty"`
	Scenario      string                     `json:"scenario"`
	Vectors       report.VectorSet           `json:"vectors,omitempty"`
	Cashflows     []report.Row               `json:"cashflows"`
	Metrics       cashflow.Metrics           `json:"metrics"`
	Distributions []report.Distribution      `json:"distributions,omitempty"`
	Totals        map[string]decimal.Decimal `json:"totals,omitempty"`
	Pricing       *pricing.Result            `json:"pricing,omitempty"`
	Substitutions []string                   `json:"substitutions,omitempty"`
	Error         string                     `json:"error,omitempty"`
}

func (a *app) toJSON(o runner.Outcome) outcomeJSON {
	places := a.settings.Report.Decimals
	out := outcomeJSON{
		RunID:     o.RunID,
		Scenario:  o.Scenario,
		Vectors:   o.Vectors,
		Cashflows: report.Table(o.Cashflows, places),
		Metrics:   o.Cashflows.Metrics,
		Pricing:   o.Pricing,
	}
	if len(o.Waterfall) > 0 {
		out.Distributions = report.Distributions(o.Waterfall, places)
		out.Totals = report.Totals(out.Distributions)
	}
	for _, s := range o.Substitutions {
		out.Substitutions = append(out.Substitutions, s.String())
	}
	if o.Err != nil {
		out.Error = o.Err.Error()
	}
	return out
}

func (a *app) loadDeal(path string) (*deal.Deal, error) {
	if path == "" {
		return nil, errors.New("--deal is required")
	}
	return deal.Load(path, a.logger)
}

func newScenariosCmd(a *app) *cobra.Command {
	var horizon int
	cmd := &cobra.Command{
		Use:   "scenarios",
		Short: "Print the standard stress scenario vectors as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			vectors, err := scenario.StandardScenarios(horizon)
			if err != nil {
				return err
			}
			set := report.VectorSet(vectors)
			out := make([]namedVector, 0, len(set))
			for _, name := range set.Names(scenario.StandardOrder) {
				out = append(out, namedVector{Name: name, Values: set[name]})
			}
			return a.writeJSON(out)
		},
	}
	cmd.Flags().IntVar(&horizon, "horizon", 360, "number of monthly periods")
	return cmd
}

func newRunCmd(a *app) *cobra.Command {
	var dealPath, format, metricsFile string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run every scenario of a deal",
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "json" && format != "csv" {
				return fmt.Errorf("%w: unknown format %q", apperrors.ErrInvalidConfig, format)
			}
			d, err := a.loadDeal(dealPath)
			if err != nil {
				return err
			}

			reg := prometheus.NewRegistry()
			metrics, err := runner.NewMetrics(reg)
			if err != nil {
				return err
			}
			outcomes, err := runner.Run(contextOf(cmd), d, a.settings,
				runner.WithLogger(a.logger.With(zap.String("deal", d.Name))),
				runner.WithMetrics(metrics))
			if err != nil {
				return err
			}
			if metricsFile != "" {
				if err := prometheus.WriteToTextfile(metricsFile, reg); err != nil {
					return fmt.Errorf("failed to write metrics: %w", err)
				}
			}

			if format == "csv" {
				names := make([]string, 0, len(outcomes))
				tables := make([][]report.Row, 0, len(outcomes))
				for _, o := range outcomes {
					names = append(names, o.Scenario)
					tables = append(tables, report.Table(o.Cashflows, a.settings.Report.Decimals))
				}
				if err := report.WriteScenariosCSV(a.stdout, names, tables); err != nil {
					return err
				}
			} else {
				out := make([]outcomeJSON, 0, len(outcomes))
				for _, o := range outcomes {
					out = append(out, a.toJSON(o))
				}
				if err := a.writeJSON(out); err != nil {
					return err
				}
			}

			failed := 0
			for _, o := range outcomes {
				if o.Err != nil {
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d scenarios failed", failed, len(outcomes))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dealPath, "deal", "", "deal file (YAML)")
	cmd.Flags().StringVar(&format, "format", "json", "output format: json or csv")
	cmd.Flags().StringVar(&metricsFile, "metrics-file", "", "write run counters in Prometheus text format")
	return cmd
}

func newPriceCmd(a *app) *cobra.Command {
	var dealPath, name string
	cmd := &cobra.Command{
		Use:   "price",
		Short: "Price one scenario of a deal",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := a.loadDeal(dealPath)
			if err != nil {
				return err
			}
			if d.Pricing == nil {
				return fmt.Errorf("%w: deal %q has no pricing section", apperrors.ErrInvalidConfig, d.Name)
			}
			if name == "" {
				name = d.Scenarios[0].Name
			}
			o, err := runner.RunScenario(contextOf(cmd), d, name, a.settings, runner.WithLogger(a.logger))
			if err != nil {
				return err
			}
			if o.Pricing == nil {
				if o.Err != nil {
					return o.Err
				}
				return fmt.Errorf("scenario %q produced no cashflows to price", o.Scenario)
			}
			if err := a.writeJSON(struct {
				Scenario string          `json:"scenario"`
				Pricing  *pricing.Result `json:"pricing"`
				Error    string          `json:"error,omitempty"`
			}{o.Scenario, o.Pricing, errString(o.Err)}); err != nil {
				return err
			}
			return o.Err
		},
	}
	cmd.Flags().StringVar(&dealPath, "deal", "", "deal file (YAML)")
	cmd.Flags().StringVar(&name, "scenario", "", "scenario name (default: the first)")
	return cmd
}

func contextOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
