package calculators

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/calcengine/calcengine/pkg/types"
)

var validate = validator.New()

// field describes how one input is checked.
type field struct {
	name string
	// rule is a validator tag applied to the parsed value, e.g. "gt=0,lte=100".
	rule string
	// message is reported when rule fails.
	message  string
	optional bool
	integer  bool
	// text fields are validated as strings instead of numbers.
	text bool
}

// check applies fields to in and collects every failure.
func check(in types.Inputs, fields []field) types.ValidationResult {
	res := types.ValidationResult{Valid: true}
	for _, f := range fields {
		raw, present := in[f.name]
		if !present || raw == nil {
			if !f.optional {
				res.Fail(f.name, fmt.Sprintf("%s is required", f.name))
			}
			continue
		}

		if f.text {
			s, ok := raw.(string)
			if !ok {
				res.Fail(f.name, fmt.Sprintf("%s must be text", f.name))
				continue
			}
			if err := validate.Var(s, f.rule); err != nil {
				res.Fail(f.name, f.message)
			}
			continue
		}

		v, ok := types.ToFloat(raw)
		if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
			res.Fail(f.name, fmt.Sprintf("%s must be a number", f.name))
			continue
		}
		if f.integer && v != math.Trunc(v) {
			res.Fail(f.name, fmt.Sprintf("%s must be a whole number", f.name))
			continue
		}
		if f.rule == "" {
			continue
		}
		if err := validate.Var(v, f.rule); err != nil {
			res.Fail(f.name, f.message)
		}
	}
	return res
}

// num returns the numeric value of name, or def when it is absent.
func num(in types.Inputs, name string, def float64) float64 {
	if v, ok := in.Float(name); ok {
		return v
	}
	return def
}

// text returns the string value of name, or def when it is absent or empty.
func text(in types.Inputs, name, def string) string {
	if s, ok := in.String(name); ok && s != "" {
		return s
	}
	return def
}

// round2 rounds v to cents. Negative zero is folded to zero.
func round2(v float64) float64 {
	r := math.Round(v*100) / 100
	if r == 0 {
		return 0
	}
	return r
}

// cagr is the compound annual growth rate in percent that turns from into to
// over years.
func cagr(from, to, years float64) float64 {
	if from <= 0 || to <= 0 || years <= 0 {
		return 0
	}
	return (math.Pow(to/from, 1/years) - 1) * 100
}

// row builds a rounded breakdown row.
func row(period int, start, contributions, interest, end float64) types.PeriodRow {
	growth := 0.0
	if start > 0 {
		growth = (end - start) / start * 100
	}
	return types.PeriodRow{
		Period:        period,
		StartAmount:   round2(start),
		Contributions: round2(contributions),
		Interest:      round2(interest),
		EndAmount:     round2(end),
		GrowthRate:    round2(growth),
	}
}

// base carries the identity and input fields shared by every calculator.
type base struct {
	id       string
	category string
	fields   []field
}

func (b base) ID() string       { return b.id }
func (b base) Category() string { return b.category }

// Limits describes the accepted range of every input field.
func (b base) Limits() []types.FieldLimit {
	out := make([]types.FieldLimit, 0, len(b.fields))
	for _, f := range b.fields {
		out = append(out, f.limit())
	}
	return out
}

// limit reads the bounds back out of the field's validator rule.
func (f field) limit() types.FieldLimit {
	l := types.FieldLimit{Field: f.name, Required: !f.optional, Integer: f.integer}
	for _, part := range strings.Split(f.rule, ",") {
		tag, param, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		if tag == "oneof" {
			l.Options = strings.Fields(param)
			continue
		}
		v, err := strconv.ParseFloat(param, 64)
		if err != nil {
			continue
		}
		switch tag {
		case "gt":
			l.Min, l.MinExclusive = &v, true
		case "gte":
			l.Min = &v
		case "lt":
			l.Max, l.MaxExclusive = &v, true
		case "lte":
			l.Max = &v
		}
	}
	return l
}
