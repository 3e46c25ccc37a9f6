// Package errs holds the error kinds shared by the lattice, transform and GW packages.
package errs

import (
	"fmt"

	"github.com/pkg/errors"
)

// ConfigurationError reports inconsistent input: non-diagonal periodization, mismatched orbital counts,
// meshes that cannot be combined or truncation parameters outside their range.
type ConfigurationError struct {
	Field string
	Msg   string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration %s: %s", e.Field, e.Msg)
}

func Config(field, format string, args ...any) error {
	return errors.WithStack(&ConfigurationError{Field: field, Msg: fmt.Sprintf(format, args...)})
}

// SingularMatrixError reports a failed inversion at a specific mesh point.
type SingularMatrixError struct {
	Stage string
	Point string
}

func (e *SingularMatrixError) Error() string {
	return fmt.Sprintf("singular matrix in %s at %s", e.Stage, e.Point)
}

func Singular(stage, format string, args ...any) error {
	return errors.WithStack(&SingularMatrixError{Stage: stage, Point: fmt.Sprintf(format, args...)})
}

// NumericalError reports a NaN or infinite value produced at a mesh point during an iteration.
type NumericalError struct {
	Stage     string
	Iteration int
	Point     string
}

func (e *NumericalError) Error() string {
	return fmt.Sprintf("non finite %s in iteration %d at %s", e.Stage, e.Iteration, e.Point)
}

func NonFinite(stage string, iteration int, format string, args ...any) error {
	return errors.WithStack(&NumericalError{Stage: stage, Iteration: iteration, Point: fmt.Sprintf(format, args...)})
}

// TruncationWarning is returned as a value, not raised, when the data at the frequency cutoff is larger than the
// tolerance after removing the high frequency tail.
type TruncationWarning struct {
	Quantity  string
	Remainder float64
	Tol       float64
}

func (w TruncationWarning) Error() string {
	return fmt.Sprintf("truncation %s: remainder %g above %g", w.Quantity, w.Remainder, w.Tol)
}

// NonConvergence records that the iteration stopped at the maximum count with a residual above tolerance.
type NonConvergence struct {
	Iterations int
	Residual   float64
	Tol        float64
}

func (n NonConvergence) Error() string {
	return fmt.Sprintf("not converged after %d iterations: residual %g, tolerance %g", n.Iterations, n.Residual, n.Tol)
}

func IsConfiguration(err error) bool {
	var target *ConfigurationError
	return errors.As(err, &target)
}

func IsSingular(err error) bool {
	var target *SingularMatrixError
	return errors.As(err, &target)
}

func IsNumerical(err error) bool {
	var target *NumericalError
	return errors.As(err, &target)
}
