package runner

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts scenario runs and their outcomes.
type Metrics struct {
	Runs           prometheus.Counter
	Failures       prometheus.Counter
	NonConvergence prometheus.Counter
	Substitutions  *prometheus.CounterVec
}

// NewMetrics builds the run counters and registers them on reg. A nil reg
// leaves them unregistered. Collectors already registered by an earlier
// call are reused.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Runs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cfengine",
			Subsystem: "runner",
			Name:      "scenario_runs_total",
			Help:      "Scenario runs started",
		}),
		Failures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cfengine",
			Subsystem: "runner",
			Name:      "scenario_failures_total",
			Help:      "Scenario runs that ended with an error",
		}),
		NonConvergence: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cfengine",
			Subsystem: "runner",
			Name:      "yield_nonconvergence_total",
			Help:      "Yield solves that hit the iteration cap or a flat derivative",
		}),
		Substitutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cfengine",
			Subsystem: "runner",
			Name:      "substitutions_total",
			Help:      "Unsupported features replaced by a simpler behaviour",
		}, []string{"feature"}),
	}
	if reg == nil {
		return m, nil
	}

	var err error
	if m.Runs, err = register(reg, m.Runs); err != nil {
		return nil, err
	}
	if m.Failures, err = register(reg, m.Failures); err != nil {
		return nil, err
	}
	if m.NonConvergence, err = register(reg, m.NonConvergence); err != nil {
		return nil, err
	}
	if m.Substitutions, err = register(reg, m.Substitutions); err != nil {
		return nil, err
	}
	return m, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}
