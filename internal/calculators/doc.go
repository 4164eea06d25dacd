// Package calculators contains the built-in calculator plugins.
//
// Every calculator validates its inputs with go-playground/validator single
// value rules (see rules.go) and computes a types.CalculationResult using
// plain float64 arithmetic rounded to cents at the output boundary.
//
//	compound-interest  basic       periodic compounding with optional savings
//	savings-plan       basic       monthly savings with monthly compounding
//	loan               credit      annuity loan amortization
//	mortgage           credit      annuity mortgage with down and extra payments
//	retirement         planning    accumulation phase plus withdrawal income
//	portfolio          investment  weighted-return asset allocation
//	etf-plan           investment  monthly ETF savings net of TER
//	tax-optimization   tax         German flat tax on capital income
//
// Calculate expects inputs that passed Validate; callers go through the
// engine, which enforces that order.
package calculators
