package calculators

import "github.com/calcengine/calcengine/internal/registry"

// All returns a fresh instance of every built-in calculator.
func All() []registry.Calculator {
	return []registry.Calculator{
		NewCompoundInterest(),
		NewSavingsPlan(),
		NewLoan(),
		NewMortgage(),
		NewRetirement(),
		NewPortfolio(),
		NewETFPlan(),
		NewTaxOptimization(),
	}
}

// RegisterAll adds every built-in calculator to r.
func RegisterAll(r *registry.Registry) error {
	for _, c := range All() {
		if err := r.Register(c); err != nil {
			return err
		}
	}
	return nil
}
