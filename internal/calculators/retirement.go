package calculators

import (
	"context"

	"github.com/calcengine/calcengine/pkg/types"
)

var retirementFields = []field{
	{name: "currentAge", rule: "gte=18,lte=80", message: "currentAge must be between 18 and 80", integer: true},
	{name: "retirementAge", rule: "gte=40,lte=85", message: "retirementAge must be between 40 and 85", integer: true},
	{name: "currentSavings", rule: "gte=0,lte=10000000", message: "currentSavings must be between 0 and 10,000,000"},
	{name: "monthlyContribution", rule: "gte=0,lte=50000", message: "monthlyContribution must be between 0 and 50,000"},
	{name: "annualRate", rule: "gte=0,lte=15", message: "annualRate must be between 0 and 15"},
	{name: "withdrawalRate", rule: "gt=0,lte=10", message: "withdrawalRate must be greater than 0 and at most 10", optional: true},
}

const defaultWithdrawalRate = 4.0

// Retirement projects savings until retirementAge and derives a sustainable
// monthly income from the withdrawal rate.
type Retirement struct{ base }

// NewRetirement returns the retirement calculator.
func NewRetirement() *Retirement {
	return &Retirement{base{id: "retirement", category: types.CategoryPlanning, fields: retirementFields}}
}

func (r *Retirement) Validate(in types.Inputs) types.ValidationResult {
	res := check(in, retirementFields)
	if !res.Valid {
		return res
	}
	if num(in, "retirementAge", 0) <= num(in, "currentAge", 0) {
		res.Fail("retirementAge", "retirementAge must be greater than currentAge")
	}
	return res
}

func (r *Retirement) Advise(in types.Inputs) []types.Warning {
	hints := advise(in, adviceFields{rate: "annualRate", principal: "currentSavings", monthly: "monthlyContribution"})
	if years := num(in, "retirementAge", 0) - num(in, "currentAge", 0); years > longHorizonYears {
		hints = append(hints, types.Warning{
			Key:    "long_horizon",
			Field:  "retirementAge",
			Level:  "info",
			Detail: "The savings phase spans more than 40 years. The projection is very sensitive to the assumed rate.",
		})
	}
	return hints
}

func (r *Retirement) Calculate(ctx context.Context, in types.Inputs) (*types.CalculationResult, error) {
	years := int(num(in, "retirementAge", 0) - num(in, "currentAge", 0))
	withdrawal := num(in, "withdrawalRate", defaultWithdrawalRate)

	amount, contributions, breakdown, err := accumulate(ctx,
		num(in, "currentSavings", 0), num(in, "monthlyContribution", 0), num(in, "annualRate", 0), years)
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
			"years_to_retirement": float64(years),
			"monthly_income":      round2(amount * withdrawal / 100 / 12),
			"withdrawal_rate":     withdrawal,
		},
	}, nil
}
