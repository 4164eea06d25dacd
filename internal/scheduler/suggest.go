package scheduler

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/calcengine/calcengine/internal/config"
)

// Suggestion is an advisory optimization hint. It is never acted on
// automatically.
type Suggestion struct {
	Rule     string             `json:"rule"`
	Severity string             `json:"severity"`
	Message  string             `json:"message"`
	Values   map[string]float64 `json:"values"`
}

// Suggestions returns the rules that apply to m, in rule order. A rule
// applies when all of its conditions hold; rules with an unparsable
// condition never apply.
func Suggestions(m Metrics, rules []config.SuggestionRule) []Suggestion {
	var out []Suggestion
	for _, r := range rules {
		values := make(map[string]float64, len(r.When))
		ok := len(r.When) > 0
		for _, cond := range r.When {
			fires, field, v := evalCondition(cond, m)
			if !fires {
				ok = false
				break
			}
			values[field] = v
		}
		if !ok {
			continue
		}
		sev := r.Severity
		if sev == "" {
			sev = "info"
		}
		out = append(out, Suggestion{Rule: r.Name, Severity: sev, Message: r.Message, Values: values})
	}
	return out
}

// ValidateCondition reports whether cond is a well-formed condition over a
// known metric.
func ValidateCondition(cond string) error {
	field, op, _, err := parseCondition(cond)
	if err != nil {
		return err
	}
	if _, ok := (Metrics{}).value(field); !ok {
		return fmt.Errorf("scheduler: unknown metric %q", field)
	}
	if _, ok := compareOps[op]; !ok {
		return fmt.Errorf("scheduler: unknown operator %q", op)
	}
	return nil
}

// evalCondition evaluates "field op value" against m.
//
// Supported expressions:
//
//	cache_hit_rate < 50
//	cache_lookups >= 20
//	memory_pressure > 80
//	avg_computation_ms > 250
//	queue_depth > 16
//	failure_rate > 5
//
// It returns whether the condition holds, the field name and the observed
// value. Unknown fields or operators never hold.
func evalCondition(cond string, m Metrics) (bool, string, float64) {
	field, op, threshold, err := parseCondition(cond)
	if err != nil {
		return false, "", 0
	}
	v, ok := m.value(field)
	if !ok {
		return false, field, 0
	}
	return compareFloat(v, op, threshold), field, v
}

func parseCondition(cond string) (field, op string, threshold float64, err error) {
	parts := strings.Fields(cond)
	if len(parts) != 3 {
		return "", "", 0, fmt.Errorf("scheduler: condition %q: want \"field op value\"", cond)
	}
	threshold, err = strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return "", "", 0, fmt.Errorf("scheduler: condition %q: %w", cond, err)
	}
	return parts[0], parts[1], threshold, nil
}

var compareOps = map[string]struct{}{">": {}, ">=": {}, "<": {}, "<=": {}, "==": {}, "!=": {}}

// compareFloat applies a comparison operator to two float64 values.
func compareFloat(v float64, op string, threshold float64) bool {
	switch op {
	case ">":
		return v > threshold
	case ">=":
		return v >= threshold
	case "<":
		return v < threshold
	case "<=":
		return v <= threshold
	case "==":
		return v == threshold
	case "!=":
		return v != threshold
	default:
		return false
	}
}
