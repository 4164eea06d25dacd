// calcengine serves the real-time calculation engine and talks to it.
//
// Usage:
//
//	calcengine serve       [--config=<path>]
//	calcengine calc        <calculator-id> field=value ... [--remote] [--json]
//	calcengine calculators
//	calcengine status      [--url=<metrics-url>]
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/calcengine/calcengine/internal/config"
)

// version is set at build time via -ldflags.
var version = "dev"

type rootFlags struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:   "calcengine",
		Short: "Real-time calculation engine for parametric financial calculators",
		Long: "calcengine validates, deduplicates, caches and schedules calculator runs\n" +
			"as inputs change, and serves them over HTTP, WebSocket and gRPC.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
	}
	pf := root.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", os.Getenv("CALCENGINE_CONFIG"), "path to config file (defaults and environment only when empty)")
	pf.StringVar(&flags.logLevel, "log-level", "", "override log.level from the config")

	root.AddCommand(
		newServeCmd(flags),
		newCalcCmd(flags),
		newCalculatorsCmd(),
		newStatusCmd(flags),
	)
	return root
}

// load reads the configuration and installs the JSON logger.
func (f *rootFlags) load() (*config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, err
	}
	if f.logLevel != "" {
		cfg.Log.Level = f.logLevel
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Log.SlogLevel()}))
	slog.SetDefault(logger)
	return cfg, nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
