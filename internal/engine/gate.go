package engine

import (
	"github.com/calcengine/calcengine/internal/registry"
	"github.com/calcengine/calcengine/pkg/types"
)

// Validate runs the calculator's input checks. Advisory warnings are added
// for valid inputs of calculators that implement registry.Advisor. The only
// error returned is a *registry.NotFoundError.
func (e *Engine) Validate(calculatorID string, inputs types.Inputs) (types.ValidationResult, error) {
	calc, err := e.reg.Get(calculatorID)
	if err != nil {
		return types.ValidationResult{}, err
	}
	return validate(calc, inputs), nil
}

func validate(calc registry.Calculator, inputs types.Inputs) types.ValidationResult {
	res := calc.Validate(inputs)
	if res.Valid {
		if adv, ok := calc.(registry.Advisor); ok {
			res.Warnings = append(res.Warnings, adv.Advise(inputs)...)
		}
	}
	return res
}
