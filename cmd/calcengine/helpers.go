package main

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"

	"github.com/calcengine/calcengine/pkg/types"
)

// parseInputs turns field=value arguments into calculator inputs. Values that
// parse as numbers become float64; everything else stays a string.
func parseInputs(args []string) (types.Inputs, error) {
	in := make(types.Inputs, len(args))
	for _, a := range args {
		field, value, ok := strings.Cut(a, "=")
		field = strings.TrimSpace(field)
		if !ok || field == "" {
			return nil, fmt.Errorf("invalid input %q: want field=value", a)
		}
		if _, dup := in[field]; dup {
			return nil, fmt.Errorf("input %q given twice", field)
		}
		value = strings.TrimSpace(value)
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			in[field] = f
		} else {
			in[field] = value
		}
	}
	return in, nil
}

func money(f float64) string {
	return humanize.CommafWithDigits(f, 2)
}

// printResult writes a human-readable summary of res.
func printResult(w io.Writer, calculatorID string, res *types.CalculationResult, breakdown bool) {
	source := "computed"
	if res.Cached {
		source = "cached"
	}
	fmt.Fprintf(w, "%s (%s)\n\n", calculatorID, source)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintf(tw, "Final amount\t%s\t\n", money(res.FinalAmount))
	fmt.Fprintf(tw, "Total contributions\t%s\t\n", money(res.TotalContributions))
	fmt.Fprintf(tw, "Total interest\t%s\t\n", money(res.TotalInterest))
	fmt.Fprintf(tw, "Effective rate\t%.2f %%\t\n", res.EffectiveRate)
	tw.Flush() //nolint:errcheck

	if len(res.Details) > 0 {
		keys := make([]string, 0, len(res.Details))
		for k := range res.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fmt.Fprintln(w, "\nDetails:")
		tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
		for _, k := range keys {
			fmt.Fprintf(tw, "  %s\t%s\t\n", k, money(res.Details[k]))
		}
		tw.Flush() //nolint:errcheck
	}

	if len(res.Warnings) > 0 {
		fmt.Fprintln(w, "\nWarnings:")
		for _, wn := range res.Warnings {
			fmt.Fprintf(w, "  [%s] %s: %s\n", wn.Level, wn.Field, wn.Detail)
		}
	}

	if breakdown && len(res.Breakdown) > 0 {
		fmt.Fprintln(w)
		tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
		fmt.Fprintln(tw, "Period\tStart\tContributions\tInterest\tEnd\t")
		for _, r := range res.Breakdown {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t\n",
				r.Period, money(r.StartAmount), money(r.Contributions), money(r.Interest), money(r.EndAmount))
		}
		tw.Flush() //nolint:errcheck
	}
}
