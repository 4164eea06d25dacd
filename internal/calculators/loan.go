package calculators

import (
	"context"
	"math"

	"github.com/calcengine/calcengine/pkg/types"
)

var loanFields = []field{
	{name: "loanAmount", rule: "gt=0,lte=10000000", message: "loanAmount must be greater than 0 and at most 10,000,000"},
	{name: "annualRate", rule: "gte=0,lte=30", message: "annualRate must be between 0 and 30"},
	{name: "years", rule: "gte=1,lte=40", message: "years must be between 1 and 40", integer: true},
}

// Loan computes an annuity loan: a constant monthly payment covering interest
// and principal over the full term.
type Loan struct{ base }

// NewLoan returns the loan calculator.
func NewLoan() *Loan {
	return &Loan{base{id: "loan", category: types.CategoryCredit, fields: loanFields}}
}

func (l *Loan) Validate(in types.Inputs) types.ValidationResult {
	return check(in, loanFields)
}

func (l *Loan) Advise(in types.Inputs) []types.Warning {
	return advise(in, adviceFields{rate: "annualRate", years: "years"})
}

func (l *Loan) Calculate(ctx context.Context, in types.Inputs) (*types.CalculationResult, error) {
	amount := num(in, "loanAmount", 0)
	rate := num(in, "annualRate", 0)
	years := int(num(in, "years", 0))

	s, err := amortize(ctx, amount, rate, years, 0)
	if err != nil {
		return nil, err
	}
	return s.result(amount, rate), nil
}

// schedule is the outcome of an amortization run.
type schedule struct {
	payment   float64
	totalPaid float64
	interest  float64
	months    int
	breakdown []types.PeriodRow
}

// annuity returns the constant monthly payment that repays principal over
// months at the monthly rate r.
func annuity(principal, r float64, months int) float64 {
	if r == 0 {
		return principal / float64(months)
	}
	return principal * r / (1 - math.Pow(1+r, -float64(months)))
}

// amortize repays principal with the annuity for annualPct over years plus an
// optional extra monthly repayment. The schedule ends early once the balance
// reaches zero. Breakdown rows report the repaid principal as Contributions and
// the remaining balance as EndAmount.
func amortize(ctx context.Context, principal, annualPct float64, years int, extra float64) (schedule, error) {
	r := annualPct / 100 / 12
	months := years * 12
	s := schedule{payment: annuity(principal, r, months)}

	balance := principal
	for year := 1; year <= years && balance > 0; year++ {
		if err := ctx.Err(); err != nil {
			return schedule{}, err
		}
		start := balance
		var repaid, interest float64
		for m := 0; m < 12 && balance > 0; m++ {
			i := balance * r
			p := s.payment + extra - i
			if p > balance {
				p = balance
			}
			balance -= p
			interest += i
			repaid += p
			s.totalPaid += p + i
			s.months++
		}
		if balance < 0.005 {
			balance = 0
		}
		s.interest += interest
		s.breakdown = append(s.breakdown, row(year, start, repaid, interest, balance))
	}
	return s, nil
}

func (s schedule) result(principal, annualPct float64) *types.CalculationResult {
	effective := (math.Pow(1+annualPct/100/12, 12) - 1) * 100
	return &types.CalculationResult{
		FinalAmount:        round2(s.totalPaid),
		TotalContributions: round2(principal),
		TotalInterest:      round2(s.interest),
		EffectiveRate:      round2(effective),
		Breakdown:          s.breakdown,
		Details: map[string]float64{
			"monthly_payment": round2(s.payment),
			"payoff_months":   float64(s.months),
		},
	}
}
