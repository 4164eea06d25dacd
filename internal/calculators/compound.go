package calculators

import (
	"context"

	"github.com/calcengine/calcengine/pkg/types"
)

// Compounding frequencies accepted by compound-interest.
const (
	FrequencyMonthly   = "monthly"
	FrequencyQuarterly = "quarterly"
	FrequencyYearly    = "yearly"
)

var compoundFields = []field{
	{name: "principal", rule: "gt=0,lte=10000000", message: "principal must be greater than 0 and at most 10,000,000"},
	{name: "monthlyPayment", rule: "gte=0,lte=50000", message: "monthlyPayment must be between 0 and 50,000", optional: true},
	{name: "annualRate", rule: "gte=0,lte=20", message: "annualRate must be between 0 and 20"},
	{name: "years", rule: "gte=1,lte=50", message: "years must be between 1 and 50", integer: true},
	{name: "compoundFrequency", rule: "oneof=monthly quarterly yearly", message: "compoundFrequency must be monthly, quarterly or yearly", optional: true, text: true},
}

// CompoundInterest grows a principal with periodic compounding. With monthly
// compounding the monthly payment is added at the start of every month; with
// quarterly or yearly compounding twelve payments are added at year end.
type CompoundInterest struct{ base }

// NewCompoundInterest returns the compound-interest calculator.
func NewCompoundInterest() *CompoundInterest {
	return &CompoundInterest{base{id: "compound-interest", category: types.CategoryBasic, fields: compoundFields}}
}

func (c *CompoundInterest) Validate(in types.Inputs) types.ValidationResult {
	return check(in, compoundFields)
}

func (c *CompoundInterest) Advise(in types.Inputs) []types.Warning {
	return advise(in, adviceFields{rate: "annualRate", years: "years", principal: "principal", monthly: "monthlyPayment"})
}

func (c *CompoundInterest) Calculate(ctx context.Context, in types.Inputs) (*types.CalculationResult, error) {
	principal := num(in, "principal", 0)
	monthly := num(in, "monthlyPayment", 0)
	rate := num(in, "annualRate", 0) / 100
	years := int(num(in, "years", 0))
	freq := text(in, "compoundFrequency", FrequencyYearly)

	periods := 1
	switch freq {
	case FrequencyMonthly:
		periods = 12
	case FrequencyQuarterly:
		periods = 4
	}
	ratePerPeriod := rate / float64(periods)

	amount := principal
	contributions := principal
	breakdown := make([]types.PeriodRow, 0, years)

	for year := 1; year <= years; year++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		start := amount
		var yearContrib, yearInterest float64

		for p := 0; p < periods; p++ {
			if freq == FrequencyMonthly && monthly > 0 {
				amount += monthly
				yearContrib += monthly
			}
			interest := amount * ratePerPeriod
			amount += interest
			yearInterest += interest
		}
		if freq != FrequencyMonthly && monthly > 0 {
			amount += monthly * 12
			yearContrib += monthly * 12
		}
		contributions += yearContrib
		breakdown = append(breakdown, row(year, start, yearContrib, yearInterest, amount))
	}

	return &types.CalculationResult{
		FinalAmount:        round2(amount),
		TotalContributions: round2(contributions),
		TotalInterest:      round2(amount - contributions),
		EffectiveRate:      round2(cagr(contributions, amount, float64(years))),
		Breakdown:          breakdown,
	}, nil
}
