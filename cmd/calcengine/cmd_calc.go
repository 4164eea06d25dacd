package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/calcengine/calcengine/internal/engine"
	"github.com/calcengine/calcengine/internal/rpc"
	"github.com/calcengine/calcengine/pkg/types"
)

type calcFlags struct {
	remote    bool
	asJSON    bool
	breakdown bool
}

func newCalcCmd(root *rootFlags) *cobra.Command {
	flags := &calcFlags{}
	cmd := &cobra.Command{
		Use:   "calc <calculator-id> [field=value ...]",
		Short: "Run one calculation locally or against a server",
		Example: "  calcengine calc compound-interest principal=10000 annualRate=4 years=10\n" +
			"  calcengine calc loan loanAmount=100000 annualRate=6 years=30 --remote",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			inputs, err := parseInputs(args[1:])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			var res *types.CalculationResult
			if flags.remote {
				client, err := rpc.Dial(cfg.Client)
				if err != nil {
					return err
				}
				defer client.Close()
				res, err = client.Calculate(ctx, &rpc.CalculateRequest{CalculatorID: args[0], Inputs: inputs})
				if err != nil {
					return describeErr(err)
				}
			} else {
				eng, err := newEngine(cfg.Engine)
				if err != nil {
					return err
				}
				defer eng.Close()
				res, err = eng.Calculate(ctx, engine.Request{CalculatorID: args[0], Inputs: inputs})
				if err != nil {
					return describeErr(err)
				}
			}

			out := cmd.OutOrStdout()
			if flags.asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
			printResult(out, args[0], res, flags.breakdown)
			return nil
		},
	}
	f := cmd.Flags()
	f.BoolVar(&flags.remote, "remote", false, "send the calculation to the server at client.endpoint")
	f.BoolVar(&flags.asJSON, "json", false, "print the raw result as JSON")
	f.BoolVar(&flags.breakdown, "breakdown", false, "include the per-period breakdown")
	return cmd
}

// describeErr turns engine and remote errors into a readable message.
func describeErr(err error) error {
	var p types.ErrorPayload
	var re *rpc.RemoteError
	if errors.As(err, &re) {
		p = re.Payload
	} else {
		p = engine.Describe(err)
	}
	if len(p.Errors) == 0 {
		return fmt.Errorf("%s: %s", p.Type, p.Message)
	}
	msg := p.Message
	for _, fe := range p.Errors {
		msg += fmt.Sprintf("\n  %s: %s", fe.Field, fe.Message)
	}
	return fmt.Errorf("%s: %s", p.Type, msg)
}
