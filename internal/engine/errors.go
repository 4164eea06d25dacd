package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/calcengine/calcengine/internal/registry"
	"github.com/calcengine/calcengine/pkg/types"
)

// ErrCanceled is returned for requests that were superseded by a newer request
// on the same stream or canceled by the caller. It is not a failure.
var ErrCanceled = errors.New("engine: calculation canceled")

// ValidationError reports field-level input errors. The calculator is never
// invoked for a request that fails validation.
type ValidationError struct {
	CalculatorID string
	Errors       []types.FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		parts = append(parts, fe.Field+": "+fe.Message)
	}
	return fmt.Sprintf("engine: invalid input for %s: %s", e.CalculatorID, strings.Join(parts, "; "))
}

// Field returns the first offending field, if any.
func (e *ValidationError) Field() string {
	if len(e.Errors) == 0 {
		return ""
	}
	return e.Errors[0].Field
}

// CalculationError wraps a failure returned by a calculator, including an
// expired calculation_timeout.
type CalculationError struct {
	CalculatorID string
	Err          error
}

func (e *CalculationError) Error() string {
	return fmt.Sprintf("engine: %s: calculation failed: %v", e.CalculatorID, e.Err)
}

func (e *CalculationError) Unwrap() error { return e.Err }

// Describe maps err to the error object handed to result consumers.
func Describe(err error) types.ErrorPayload {
	var (
		verr *ValidationError
		nerr *registry.NotFoundError
		cerr *CalculationError
	)
	switch {
	case errors.As(err, &verr):
		return types.ErrorPayload{
			Type:    types.ErrTypeValidation,
			Message: "input validation failed",
			Field:   verr.Field(),
			Errors:  verr.Errors,
		}
	case errors.As(err, &nerr):
		return types.ErrorPayload{
			Type:    types.ErrTypeNotFound,
			Message: fmt.Sprintf("calculator %q not found", nerr.ID),
		}
	case errors.As(err, &cerr):
		return types.ErrorPayload{
			Type:    types.ErrTypeCalculation,
			Message: cerr.Err.Error(),
		}
	default:
		return types.ErrorPayload{Type: types.ErrTypeInternal, Message: err.Error()}
	}
}
