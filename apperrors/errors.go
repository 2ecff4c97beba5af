// Package apperrors holds the error taxonomy shared by the engines.
package apperrors

import (
	"errors"
	"fmt"
)

// Standardized engine errors
var (
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrCurveNotFound = errors.New("curve not found")
	ErrUnknownMethod = errors.New("unknown pricing method")
	ErrNotConverged  = errors.New("solver did not converge")
	ErrUnsupported   = errors.New("not yet supported")
)

// Invalid wraps ErrInvalidConfig with a function-prefixed message.
func Invalid(op, format string, args ...any) error {
	return fmt.Errorf("%s: %w: %s", op, ErrInvalidConfig, fmt.Sprintf(format, args...))
}

// ConvergenceError reports a root-finder that hit its iteration cap or a
// flat derivative. Last is the final iterate, which callers may still use.
type ConvergenceError struct {
	Op         string
	Iterations int
	Last       float64
	Residual   float64
	Reason     string
}

func (e *ConvergenceError) Error() string {
	return fmt.Sprintf("%s: %s after %d iterations (last=%.10g residual=%.3g)",
		e.Op, e.Reason, e.Iterations, e.Last, e.Residual)
}

func (e *ConvergenceError) Unwrap() error { return ErrNotConverged }

// Substitution records that a requested feature is not supported and which
// simpler behaviour produced the numbers instead.
type Substitution struct {
	Feature    string `json:"feature" yaml:"feature"`
	Substitute string `json:"substitute" yaml:"substitute"`
}

func (s Substitution) String() string {
	return fmt.Sprintf("%s not yet supported, using %s", s.Feature, s.Substitute)
}

// Err returns the substitution as an error wrapping ErrUnsupported.
func (s Substitution) Err() error {
	return fmt.Errorf("%w: %s", ErrUnsupported, s.String())
}

// AppendUnique adds s unless an identical record is already present.
func AppendUnique(list []Substitution, s Substitution) []Substitution {
	for _, x := range list {
		if x == s {
			return list
		}
	}
	return append(list, s)
}
