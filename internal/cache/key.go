package cache

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/calcengine/calcengine/pkg/types"
)

// DefaultPrecision is the number of decimals numeric inputs are rounded to
// before key generation.
const DefaultPrecision = 2

// Key returns the cache fingerprint for a request: calculatorID, a colon and
// the canonical JSON of the inputs. Field names are sorted; numeric values of
// any kind are rounded to precision decimals and encoded as float64, so 10 and
// 10.0001 share a key at precision 2. String values are kept verbatim.
func Key(calculatorID string, inputs types.Inputs, precision int) (string, error) {
	norm := make(map[string]any, len(inputs))
	for k, v := range inputs {
		if types.IsNumeric(v) {
			f, _ := types.ToFloat(v)
			norm[k] = roundTo(f, precision)
			continue
		}
		norm[k] = v
	}
	// encoding/json writes map keys in sorted order.
	b, err := json.Marshal(norm)
	if err != nil {
		return "", fmt.Errorf("cache: key for %s: %w", calculatorID, err)
	}
	return calculatorID + ":" + string(b), nil
}

func roundTo(v float64, precision int) float64 {
	if precision < 0 {
		precision = 0
	}
	p := math.Pow(10, float64(precision))
	r := math.Round(v*p) / p
	if r == 0 {
		return 0
	}
	return r
}
