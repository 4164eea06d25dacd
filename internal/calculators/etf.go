package calculators

import (
	"context"

	"github.com/calcengine/calcengine/pkg/types"
)

var etfFields = []field{
	{name: "monthlyInvestment", rule: "gt=0,lte=50000", message: "monthlyInvestment must be greater than 0 and at most 50,000"},
	{name: "initialInvestment", rule: "gte=0,lte=10000000", message: "initialInvestment must be between 0 and 10,000,000", optional: true},
	{name: "annualReturn", rule: "gte=0,lte=20", message: "annualReturn must be between 0 and 20"},
	{name: "ter", rule: "gte=0,lte=3", message: "ter must be between 0 and 3", optional: true},
	{name: "years", rule: "gte=1,lte=50", message: "years must be between 1 and 50", integer: true},
}

const defaultTER = 0.2

// ETFPlan is a monthly ETF savings plan. The fund's total expense ratio (TER)
// is deducted from the gross return before compounding.
type ETFPlan struct{ base }

// NewETFPlan returns the etf-plan calculator.
func NewETFPlan() *ETFPlan {
	return &ETFPlan{base{id: "etf-plan", category: types.CategoryInvestment, fields: etfFields}}
}

func (e *ETFPlan) Validate(in types.Inputs) types.ValidationResult {
	return check(in, etfFields)
}

func (e *ETFPlan) Advise(in types.Inputs) []types.Warning {
	hints := advise(in, adviceFields{rate: "annualReturn", years: "years", principal: "initialInvestment", monthly: "monthlyInvestment"})
	if ter := num(in, "ter", defaultTER); ter > 1 {
		hints = append(hints, types.Warning{
			Key:    "high_ter",
			Field:  "ter",
			Level:  "warning",
			Detail: "A TER above 1% is unusual for index ETFs and noticeably reduces long-term returns.",
		})
	}
	return hints
}

func (e *ETFPlan) Calculate(ctx context.Context, in types.Inputs) (*types.CalculationResult, error) {
	initial := num(in, "initialInvestment", 0)
	monthly := num(in, "monthlyInvestment", 0)
	gross := num(in, "annualReturn", 0)
	ter := num(in, "ter", defaultTER)
	years := int(num(in, "years", 0))

	net := gross - ter
	if net < 0 {
		net = 0
	}

	amount, contributions, breakdown, err := accumulate(ctx, initial, monthly, net, years)
	if err != nil {
		return nil, err
	}
	grossAmount, _, _, err := accumulate(ctx, initial, monthly, gross, years)
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
			"net_return": round2(net),
			"ter_cost":   round2(grossAmount - amount),
		},
	}, nil
}
