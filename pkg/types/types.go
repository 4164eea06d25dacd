package types

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Inputs maps a calculator field name to its value. Values are numbers (any Go
// numeric kind or json.Number) or strings.
type Inputs map[string]any

// Float returns the numeric value of field. Numeric strings are accepted so
// that raw form values can be passed through unchanged.
func (in Inputs) Float(field string) (float64, bool) {
	v, ok := in[field]
	if !ok || v == nil {
		return 0, false
	}
	return ToFloat(v)
}

// String returns the string value of field.
func (in Inputs) String(field string) (string, bool) {
	v, ok := in[field]
	if !ok || v == nil {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Clone returns a shallow copy of in.
func (in Inputs) Clone() Inputs {
	out := make(Inputs, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// ToFloat converts a numeric value of any supported kind to float64.
func ToFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// IsNumeric reports whether v is a Go numeric kind or a json.Number.
// Strings are never numeric here, even when they parse as numbers.
func IsNumeric(v any) bool {
	if _, ok := v.(string); ok {
		return false
	}
	_, ok := ToFloat(v)
	return ok
}

// FieldLimit describes the values one input field accepts. Min and Max are
// nil when the field is unbounded on that side.
type FieldLimit struct {
	Field        string   `json:"field"`
	Required     bool     `json:"required"`
	Integer      bool     `json:"integer,omitempty"`
	Min          *float64 `json:"min,omitempty"`
	MinExclusive bool     `json:"min_exclusive,omitempty"`
	Max          *float64 `json:"max,omitempty"`
	MaxExclusive bool     `json:"max_exclusive,omitempty"`
	Options      []string `json:"options,omitempty"`
}

// PeriodRow is one row of a result breakdown (usually one year).
type PeriodRow struct {
	Period        int     `json:"period"`
	StartAmount   float64 `json:"start_amount"`
	Contributions float64 `json:"contributions"`
	Interest      float64 `json:"interest"`
	EndAmount     float64 `json:"end_amount"`
	GrowthRate    float64 `json:"growth_rate"`
}

// CalculationResult is what every calculator returns and what the engine
// caches and emits.
type CalculationResult struct {
	FinalAmount        float64     `json:"final_amount"`
	TotalInterest      float64     `json:"total_interest"`
	TotalContributions float64     `json:"total_contributions"`
	EffectiveRate      float64     `json:"effective_rate"`
	Breakdown          []PeriodRow `json:"breakdown,omitempty"`

	// Details holds calculator-specific figures (e.g. monthly_payment, tax_total).
	Details map[string]float64 `json:"details,omitempty"`

	// Warnings are advisory hints about the inputs. They are attached per
	// request and never stored in the cache.
	Warnings []Warning `json:"warnings,omitempty"`

	CalculatedAt time.Time `json:"calculated_at"`

	// Cached is true on results served from the result cache.
	Cached bool `json:"cached"`
}

// Copy returns a deep copy of r so cached values are never shared with callers.
func (r *CalculationResult) Copy() *CalculationResult {
	if r == nil {
		return nil
	}
	out := *r
	if r.Breakdown != nil {
		out.Breakdown = make([]PeriodRow, len(r.Breakdown))
		copy(out.Breakdown, r.Breakdown)
	}
	if r.Warnings != nil {
		out.Warnings = make([]Warning, len(r.Warnings))
		copy(out.Warnings, r.Warnings)
	}
	if r.Details != nil {
		out.Details = make(map[string]float64, len(r.Details))
		for k, v := range r.Details {
			out.Details[k] = v
		}
	}
	return &out
}

// FieldError is one field-level validation failure.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Warning is an advisory, non-blocking hint about otherwise valid inputs
// (e.g. an unrealistic interest rate).
type Warning struct {
	// Key is a stable machine-readable identifier.
	Key string `json:"key"`
	// Field is the input the hint refers to, if any.
	Field string `json:"field,omitempty"`
	// Level is "info" | "warning".
	Level string `json:"level"`
	// Detail is the human-readable explanation.
	Detail string `json:"detail"`
}

// ValidationResult is the outcome of a calculator's Validate call.
type ValidationResult struct {
	Valid    bool         `json:"is_valid"`
	Errors   []FieldError `json:"errors,omitempty"`
	Warnings []Warning    `json:"warnings,omitempty"`
}

// Fail appends a field error and marks the result invalid.
func (v *ValidationResult) Fail(field, message string) {
	v.Valid = false
	v.Errors = append(v.Errors, FieldError{Field: field, Message: message})
}

// Error type identifiers used in ErrorPayload.Type.
const (
	ErrTypeValidation  = "validation_error"
	ErrTypeNotFound    = "calculator_not_found"
	ErrTypeCalculation = "calculation_error"
	ErrTypeInternal    = "internal_error"
)

// ErrorPayload is the error object handed to result consumers.
type ErrorPayload struct {
	Type    string       `json:"type"`
	Message string       `json:"message"`
	Field   string       `json:"field,omitempty"`
	Errors  []FieldError `json:"errors,omitempty"`
}

// Calculator categories. The category drives default scheduling priority and
// the debounce delay applied to edits.
const (
	CategoryBasic      = "basic"
	CategoryCredit     = "credit"
	CategoryInvestment = "investment"
	CategoryPlanning   = "planning"
	CategoryTax        = "tax"
)
