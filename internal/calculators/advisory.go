package calculators

import (
	"fmt"

	"github.com/calcengine/calcengine/pkg/types"
)

// Thresholds for advisory warnings. Inputs beyond them are valid but unusual.
const (
	highRatePct       = 15.0
	lowRatePct        = 0.1
	longHorizonYears  = 40.0
	contributionRatio = 2.0
)

// adviceFields names the inputs a calculator exposes to the shared advisory
// checks. Empty names skip the corresponding check.
type adviceFields struct {
	rate      string
	years     string
	principal string
	monthly   string
}

// advise derives non-blocking hints from already valid inputs.
func advise(in types.Inputs, f adviceFields) []types.Warning {
	var hints []types.Warning

	// ── Interest rate ────────────────────────────────────────────────────────
	if f.rate != "" {
		if rate, ok := in.Float(f.rate); ok {
			switch {
			case rate > highRatePct:
				hints = append(hints, types.Warning{
					Key:   "high_rate",
					Field: f.rate,
					Level: "warning",
					Detail: fmt.Sprintf(
						"An annual rate of %.1f%% is well above what savings products or broad "+
							"market indices have delivered over long periods. Treat the result as "+
							"an optimistic scenario.", rate),
				})
			case rate < lowRatePct:
				hints = append(hints, types.Warning{
					Key:   "low_rate",
					Field: f.rate,
					Level: "info",
					Detail: "The rate is close to zero, so almost all growth comes from your own " +
						"contributions. Inflation may erode the real value.",
				})
			}
		}
	}

	// ── Horizon ──────────────────────────────────────────────────────────────
	if f.years != "" {
		if years, ok := in.Float(f.years); ok && years > longHorizonYears {
			hints = append(hints, types.Warning{
				Key:   "long_horizon",
				Field: f.years,
				Level: "info",
				Detail: fmt.Sprintf(
					"Projections over %.0f years are very sensitive to the assumed rate. "+
						"Small changes in the rate lead to large differences in the final amount.", years),
			})
		}
	}

	// ── Contributions vs. principal ──────────────────────────────────────────
	if f.principal != "" && f.monthly != "" {
		principal, okP := in.Float(f.principal)
		monthly, okM := in.Float(f.monthly)
		if okP && okM && principal > 0 && monthly*12/principal > contributionRatio {
			hints = append(hints, types.Warning{
				Key:   "contribution_ratio",
				Field: f.monthly,
				Level: "info",
				Detail: fmt.Sprintf(
					"Your yearly contributions are %.1fx the starting capital, so the result is "+
						"driven mostly by the savings rate rather than by the initial amount.",
					monthly*12/principal),
			})
		}
	}

	return hints
}
