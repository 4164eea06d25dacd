package calculators

import (
	"context"
	"math"

	"github.com/calcengine/calcengine/pkg/types"
)

var portfolioFields = []field{
	{name: "initialInvestment", rule: "gt=0,lte=10000000", message: "initialInvestment must be greater than 0 and at most 10,000,000"},
	{name: "monthlyContribution", rule: "gte=0,lte=50000", message: "monthlyContribution must be between 0 and 50,000", optional: true},
	{name: "years", rule: "gte=1,lte=50", message: "years must be between 1 and 50", integer: true},
	{name: "stocksAllocation", rule: "gte=0,lte=100", message: "stocksAllocation must be between 0 and 100"},
	{name: "bondsAllocation", rule: "gte=0,lte=100", message: "bondsAllocation must be between 0 and 100"},
	{name: "cashAllocation", rule: "gte=0,lte=100", message: "cashAllocation must be between 0 and 100"},
	{name: "stocksReturn", rule: "gte=-10,lte=20", message: "stocksReturn must be between -10 and 20", optional: true},
	{name: "bondsReturn", rule: "gte=-10,lte=20", message: "bondsReturn must be between -10 and 20", optional: true},
	{name: "cashReturn", rule: "gte=-10,lte=20", message: "cashReturn must be between -10 and 20", optional: true},
}

// Default long-run returns per asset class in percent.
const (
	defaultStocksReturn = 7.0
	defaultBondsReturn  = 3.0
	defaultCashReturn   = 1.0
)

// Portfolio compounds a mixed portfolio yearly at the allocation-weighted
// return. Yearly contributions (12 × monthlyContribution) are added at year
// end.
type Portfolio struct{ base }

// NewPortfolio returns the portfolio calculator.
func NewPortfolio() *Portfolio {
	return &Portfolio{base{id: "portfolio", category: types.CategoryInvestment, fields: portfolioFields}}
}

func (p *Portfolio) Validate(in types.Inputs) types.ValidationResult {
	res := check(in, portfolioFields)
	if !res.Valid {
		return res
	}
	sum := num(in, "stocksAllocation", 0) + num(in, "bondsAllocation", 0) + num(in, "cashAllocation", 0)
	if math.Abs(sum-100) > 0.01 {
		res.Fail("stocksAllocation", "allocations must add up to 100")
	}
	return res
}

func (p *Portfolio) Advise(in types.Inputs) []types.Warning {
	return advise(in, adviceFields{rate: "stocksReturn", years: "years", principal: "initialInvestment", monthly: "monthlyContribution"})
}

func (p *Portfolio) Calculate(ctx context.Context, in types.Inputs) (*types.CalculationResult, error) {
	stocks := num(in, "stocksAllocation", 0)
	bonds := num(in, "bondsAllocation", 0)
	cash := num(in, "cashAllocation", 0)
	expected := (stocks*num(in, "stocksReturn", defaultStocksReturn) +
		bonds*num(in, "bondsReturn", defaultBondsReturn) +
		cash*num(in, "cashReturn", defaultCashReturn)) / 100

	initial := num(in, "initialInvestment", 0)
	yearly := num(in, "monthlyContribution", 0) * 12
	years := int(num(in, "years", 0))

	amount := initial
	contributions := initial
	breakdown := make([]types.PeriodRow, 0, years)
	for year := 1; year <= years; year++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		start := amount
		interest := amount * expected / 100
		amount += interest + yearly
		contributions += yearly
		breakdown = append(breakdown, row(year, start, yearly, interest, amount))
	}

	return &types.CalculationResult{
		FinalAmount:        round2(amount),
		TotalContributions: round2(contributions),
		TotalInterest:      round2(amount - contributions),
		EffectiveRate:      round2(cagr(contributions, amount, float64(years))),
		Breakdown:          breakdown,
		Details: map[string]float64{
			"expected_return": round2(expected),
			"stocks_value":    round2(amount * stocks / 100),
			"bonds_value":     round2(amount * bonds / 100),
			"cash_value":      round2(amount * cash / 100),
		},
	}, nil
}
