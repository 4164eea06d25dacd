package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/calcengine/calcengine/internal/calculators"
)

func newCalculatorsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "calculators",
		Short: "List the built-in calculators",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tCATEGORY")
			for _, c := range calculators.All() {
				fmt.Fprintf(tw, "%s\t%s\n", c.ID(), c.Category())
			}
			return tw.Flush()
		},
	}
}
