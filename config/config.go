package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Settings holds engine-wide knobs. A Settings value is copied into each
// simulation run; nothing here is process-global.
type Settings struct {
	LogLevel string       `mapstructure:"log_level" yaml:"log_level"`
	Solver   SolverConfig `mapstructure:"solver" yaml:"solver"`
	Runner   RunnerConfig `mapstructure:"runner" yaml:"runner"`
	Report   ReportConfig `mapstructure:"report" yaml:"report"`
}

// SolverConfig holds root-finding and finite-difference parameters.
type SolverConfig struct {
	// MaxIterations caps Newton-Raphson steps when solving yield from price.
	MaxIterations int `mapstructure:"max_iterations" yaml:"max_iterations"`

	// Tolerance is the price tolerance (per 100) for convergence.
	Tolerance float64 `mapstructure:"tolerance" yaml:"tolerance"`

	// InitialYield is the starting guess in percent.
	InitialYield float64 `mapstructure:"initial_yield" yaml:"initial_yield"`

	// Bump is the finite-difference step in decimal yield units (1e-4 = 1bp).
	Bump float64 `mapstructure:"bump" yaml:"bump"`

	// DerivativeThreshold is the minimum derivative magnitude.
	// Below this, Newton iteration stops to avoid division by near-zero.
	DerivativeThreshold float64 `mapstructure:"derivative_threshold" yaml:"derivative_threshold"`
}

// RunnerConfig controls parallel scenario execution.
type RunnerConfig struct {
	Workers int `mapstructure:"workers" yaml:"workers"`
}

// ReportConfig controls flat-table output.
type ReportConfig struct {
	Decimals int32 `mapstructure:"decimals" yaml:"decimals"`
}

// Default provides production-ready default values.
func Default() Settings {
	return Settings{
		LogLevel: "INFO",
		Solver: SolverConfig{
			MaxIterations:       100,
			Tolerance:           1e-4,
			InitialYield:        5.0,
			Bump:                1e-4,
			DerivativeThreshold: 1e-15,
		},
		Runner: RunnerConfig{Workers: 4},
		Report: ReportConfig{Decimals: 2},
	}
}

// Validate rejects settings the engines cannot run with.
func (s Settings) Validate() error {
	if s.Solver.MaxIterations <= 0 {
		return fmt.Errorf("config: solver.max_iterations must be positive")
	}
	if s.Solver.Tolerance <= 0 {
		return fmt.Errorf("config: solver.tolerance must be positive")
	}
	if s.Solver.Bump <= 0 {
		return fmt.Errorf("config: solver.bump must be positive")
	}
	if s.Runner.Workers <= 0 {
		return fmt.Errorf("config: runner.workers must be positive")
	}
	if s.Report.Decimals < 0 {
		return fmt.Errorf("config: report.decimals must not be negative")
	}
	return nil
}

// Load reads settings from path (optional) and CFENGINE_* environment
// variables, e.g. CFENGINE_SOLVER_MAX_ITERATIONS. An empty path means
// defaults plus environment only.
func Load(path string) (Settings, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("CFENGINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Settings{}, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("solver.max_iterations", d.Solver.MaxIterations)
	v.SetDefault("solver.tolerance", d.Solver.Tolerance)
	v.SetDefault("solver.initial_yield", d.Solver.InitialYield)
	v.SetDefault("solver.bump", d.Solver.Bump)
	v.SetDefault("solver.derivative_threshold", d.Solver.DerivativeThreshold)
	v.SetDefault("runner.workers", d.Runner.Workers)
	v.SetDefault("report.decimals", d.Report.Decimals)
}
