package calculators

import (
	"context"

	"github.com/calcengine/calcengine/pkg/types"
)

var savingsFields = []field{
	{name: "monthlySavings", rule: "gt=0,lte=50000", message: "monthlySavings must be greater than 0 and at most 50,000"},
	{name: "initialDeposit", rule: "gte=0,lte=10000000", message: "initialDeposit must be between 0 and 10,000,000", optional: true},
	{name: "annualRate", rule: "gte=0,lte=20", message: "annualRate must be between 0 and 20"},
	{name: "years", rule: "gte=1,lte=50", message: "years must be between 1 and 50", integer: true},
}

// SavingsPlan models a fixed monthly savings amount paid in at the start of
// each month and compounded monthly.
type SavingsPlan struct{ base }

// NewSavingsPlan returns the savings-plan calculator.
func NewSavingsPlan() *SavingsPlan {
	return &SavingsPlan{base{id: "savings-plan", category: types.CategoryBasic, fields: savingsFields}}
}

func (s *SavingsPlan) Validate(in types.Inputs) types.ValidationResult {
	return check(in, savingsFields)
}

func (s *SavingsPlan) Advise(in types.Inputs) []types.Warning {
	return advise(in, adviceFields{rate: "annualRate", years: "years", principal: "initialDeposit", monthly: "monthlySavings"})
}

func (s *SavingsPlan) Calculate(ctx context.Context, in types.Inputs) (*types.CalculationResult, error) {
	initial := num(in, "initialDeposit", 0)
	monthly := num(in, "monthlySavings", 0)
	years := int(num(in, "years", 0))

	amount, contributions, breakdown, err := accumulate(ctx, initial, monthly, num(in, "annualRate", 0), years)
	if err != nil {
		return nil, err
	}

	return &types.CalculationResult{
		FinalAmount:        round2(amount),
		TotalContributions: round2(contributions),
		TotalInterest:      round2(amount - contributions),
		EffectiveRate:      round2(cagr(contributions, amount, float64(years))),
		Breakdown:          breakdown,
		Details: map[string]float64{
			"monthly_savings": round2(monthly),
		},
	}, nil
}

// accumulate runs a monthly savings phase: monthly is paid in at the start of
// every month and annualPct/12 interest is credited at month end. It returns
// the final balance, the sum of all deposits (initial included) and one
// breakdown row per year.
func accumulate(ctx context.Context, initial, monthly, annualPct float64, years int) (float64, float64, []types.PeriodRow, error) {
	r := annualPct / 100 / 12
	amount := initial
	contributions := initial
	breakdown := make([]types.PeriodRow, 0, years)

	for year := 1; year <= years; year++ {
		if err := ctx.Err(); err != nil {
			return 0, 0, nil, err
		}
		start := amount
		var yearContrib, yearInterest float64
		for m := 0; m < 12; m++ {
			amount += monthly
			yearContrib += monthly
			interest := amount * r
			amount += interest
			yearInterest += interest
		}
		contributions += yearContrib
		breakdown = append(breakdown, row(year, start, yearContrib, yearInterest, amount))
	}
	return amount, contributions, breakdown, nil
}
