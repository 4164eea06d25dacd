package cache

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/calcengine/calcengine/pkg/types"
)

func mustKey(t *testing.T, id string, in types.Inputs) string {
	t.Helper()
	k, err := Key(id, in, DefaultPrecision)
	if err != nil {
		t.Fatalf("Key: %v", err)
	}
	return k
}

func TestKey_Format(t *testing.T) {
	got := mustKey(t, "compound-interest", types.Inputs{"years": 10, "principal": 10000, "compoundFrequency": "yearly"})
	want := `compound-interest:{"compoundFrequency":"yearly","principal":10000,"years":10}`
	if got != want {
		t.Errorf("Key:\n got %s\nwant %s", got, want)
	}
}

func TestKey_RoundingBucket(t *testing.T) {
	a := mustKey(t, "ci", types.Inputs{"principal": 10000.001})
	b := mustKey(t, "ci", types.Inputs{"principal": 10000.004})
	if a != b {
		t.Errorf("same rounding bucket produced different keys:\n%s\n%s", a, b)
	}
}

func TestKey_Sensitivity(t *testing.T) {
	tests := []struct {
		name string
		a, b types.Inputs
	}{
		{"beyond precision", types.Inputs{"principal": 10000.00}, types.Inputs{"principal": 10000.01}},
		{"different field", types.Inputs{"principal": 1}, types.Inputs{"amount": 1}},
		{"extra field", types.Inputs{"principal": 1}, types.Inputs{"principal": 1, "years": 1}},
		{"string value", types.Inputs{"f": "monthly"}, types.Inputs{"f": "yearly"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if mustKey(t, "ci", tc.a) == mustKey(t, "ci", tc.b) {
				t.Error("expected different keys")
			}
		})
	}

	if mustKey(t, "a", types.Inputs{"x": 1}) == mustKey(t, "b", types.Inputs{"x": 1}) {
		t.Error("calculator id must be part of the key")
	}
}

func TestKey_NumericKindsAgree(t *testing.T) {
	want := mustKey(t, "ci", types.Inputs{"years": 10.0})
	for _, v := range []any{10, int64(10), float32(10), uint8(10), json.Number("10"), 10.0001} {
		if got := mustKey(t, "ci", types.Inputs{"years": v}); got != want {
			t.Errorf("years=%T(%v): got %s, want %s", v, v, got, want)
		}
	}
}

func TestKey_NegativeZero(t *testing.T) {
	a := mustKey(t, "ci", types.Inputs{"x": math.Copysign(0, -1)})
	b := mustKey(t, "ci", types.Inputs{"x": -0.001})
	c := mustKey(t, "ci", types.Inputs{"x": 0})
	if a != c || b != c {
		t.Errorf("negative zero not folded: %s %s %s", a, b, c)
	}
}

func TestKey_Precision(t *testing.T) {
	a, _ := Key("ci", types.Inputs{"x": 1.04}, 1)
	b, _ := Key("ci", types.Inputs{"x": 1.01}, 1)
	if a != b {
		t.Errorf("precision 1: expected same key, got %s and %s", a, b)
	}
}

func TestKey_UnencodableValue(t *testing.T) {
	if _, err := Key("ci", types.Inputs{"x": math.NaN()}, DefaultPrecision); err == nil {
		t.Error("expected error for NaN input")
	}
}
