package calculators

import (
	"context"

	"github.com/calcengine/calcengine/pkg/types"
)

var mortgageFields = []field{
	{name: "propertyPrice", rule: "gt=0,lte=50000000", message: "propertyPrice must be greater than 0 and at most 50,000,000"},
	{name: "downPayment", rule: "gte=0", message: "downPayment must not be negative"},
	{name: "annualRate", rule: "gte=0,lte=20", message: "annualRate must be between 0 and 20"},
	{name: "years", rule: "gte=5,lte=40", message: "years must be between 5 and 40", integer: true},
	{name: "extraPayment", rule: "gte=0,lte=50000", message: "extraPayment must be between 0 and 50,000", optional: true},
}

// Mortgage finances propertyPrice minus downPayment as an annuity loan.
// extraPayment is an optional additional monthly repayment that shortens the
// term.
type Mortgage struct{ base }

// NewMortgage returns the mortgage calculator.
func NewMortgage() *Mortgage {
	return &Mortgage{base{id: "mortgage", category: types.CategoryCredit, fields: mortgageFields}}
}

func (m *Mortgage) Validate(in types.Inputs) types.ValidationResult {
	res := check(in, mortgageFields)
	if !res.Valid {
		return res
	}
	if num(in, "downPayment", 0) >= num(in, "propertyPrice", 0) {
		res.Fail("downPayment", "downPayment must be lower than propertyPrice")
	}
	return res
}

func (m *Mortgage) Advise(in types.Inputs) []types.Warning {
	hints := advise(in, adviceFields{rate: "annualRate", years: "years"})
	price := num(in, "propertyPrice", 0)
	if price > 0 && num(in, "downPayment", 0)/price < 0.2 {
		hints = append(hints, types.Warning{
			Key:   "low_down_payment",
			Field: "downPayment",
			Level: "info",
			Detail: "The down payment is below 20% of the property price. Lenders usually charge " +
				"higher rates above an 80% loan-to-value ratio.",
		})
	}
	return hints
}

func (m *Mortgage) Calculate(ctx context.Context, in types.Inputs) (*types.CalculationResult, error) {
	price := num(in, "propertyPrice", 0)
	loan := price - num(in, "downPayment", 0)
	rate := num(in, "annualRate", 0)

	s, err := amortize(ctx, loan, rate, int(num(in, "years", 0)), num(in, "extraPayment", 0))
	if err != nil {
		return nil, err
	}
	res := s.result(loan, rate)
	res.Details["loan_amount"] = round2(loan)
	res.Details["loan_to_value"] = round2(loan / price * 100)
	return res, nil
}
