package calculators

import (
	"context"

	"github.com/calcengine/calcengine/pkg/types"
)

var taxFields = []field{
	{name: "annualCapitalIncome", rule: "gte=0,lte=10000000", message: "annualCapitalIncome must be between 0 and 10,000,000"},
	{name: "filingStatus", rule: "oneof=single married", message: "filingStatus must be single or married", optional: true, text: true},
	{name: "churchTaxRate", rule: "gte=0,lte=10", message: "churchTaxRate must be between 0 and 10", optional: true},
	{name: "taxYear", rule: "gte=2009,lte=2100", message: "taxYear must be 2009 or later", optional: true, integer: true},
}

// German capital income taxation.
const (
	flatTaxRate         = 0.25
	solidarityRate      = 0.055
	allowanceSingle     = 1000.0
	allowanceMarried    = 2000.0
	allowanceSingleOld  = 801.0
	allowanceMarriedOld = 1602.0
	// allowanceRaisedIn is the first tax year with the raised allowance.
	allowanceRaisedIn = 2023
	defaultTaxYear    = 2023
)

// TaxOptimization computes the German flat tax (Abgeltungssteuer) on capital
// income: 25% on income above the saver's allowance, plus 5.5% solidarity
// surcharge and optional church tax, both levied on the flat tax.
type TaxOptimization struct{ base }

// NewTaxOptimization returns the tax-optimization calculator.
func NewTaxOptimization() *TaxOptimization {
	return &TaxOptimization{base{id: "tax-optimization", category: types.CategoryTax, fields: taxFields}}
}

func (t *TaxOptimization) Validate(in types.Inputs) types.ValidationResult {
	return check(in, taxFields)
}

// allowance returns the saver's allowance for the filing status and year.
func allowance(married bool, year int) float64 {
	switch {
	case year < allowanceRaisedIn && married:
		return allowanceMarriedOld
	case year < allowanceRaisedIn:
		return allowanceSingleOld
	case married:
		return allowanceMarried
	default:
		return allowanceSingle
	}
}

func (t *TaxOptimization) Calculate(ctx context.Context, in types.Inputs) (*types.CalculationResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	income := num(in, "annualCapitalIncome", 0)
	married := text(in, "filingStatus", "single") == "married"
	free := allowance(married, int(num(in, "taxYear", defaultTaxYear)))

	taxable := income - free
	if taxable < 0 {
		taxable = 0
	}
	flat := taxable * flatTaxRate
	soli := flat * solidarityRate
	church := flat * num(in, "churchTaxRate", 0) / 100
	total := flat + soli + church

	effective := 0.0
	if income > 0 {
		effective = total / income * 100
	}

	return &types.CalculationResult{
		FinalAmount:   round2(income - total),
		TotalInterest: round2(income),
		EffectiveRate: round2(effective),
		Details: map[string]float64{
			"tax_free_amount":      free,
			"taxable_income":       round2(taxable),
			"flat_tax":             round2(flat),
			"solidarity_surcharge": round2(soli),
			"church_tax":           round2(church),
			"total_tax":            round2(total),
			"unused_allowance":     round2(max(free-income, 0)),
		},
	}, nil
}
