package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/calcengine/calcengine/internal/rpc"
	"github.com/calcengine/calcengine/internal/scraper"
)

type statusFlags struct {
	url     string
	useGRPC bool
}

func newStatusCmd(root *rootFlags) *cobra.Command {
	flags := &statusFlags{}
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the state of a running server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if flags.useGRPC {
				client, err := rpc.Dial(cfg.Client)
				if err != nil {
					return err
				}
				defer client.Close()
				resp, err := client.Stats(cmd.Context())
				if err != nil {
					return err
				}
				printRemoteStats(out, cfg.Client.Endpoint, resp)
				return nil
			}

			cc := cfg.Client
			switch {
			case flags.url != "":
				cc.MetricsURL = flags.url
			case cc.MetricsURL == "":
				cc.MetricsURL = fmt.Sprintf("http://localhost:%d/metrics", cfg.Server.HTTPPort)
			}
			s, err := scraper.New(cc)
			if err != nil {
				return err
			}
			st, err := s.Scrape(cmd.Context())
			if err != nil {
				return err
			}
			printStatus(out, st)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&flags.url, "url", "", "metrics URL (default client.metrics_url or the local server)")
	f.BoolVar(&flags.useGRPC, "grpc", false, "query client.endpoint over gRPC instead of scraping metrics")
	return cmd
}

func printStatus(w io.Writer, st *scraper.Status) {
	outcomes := make([]string, 0, len(st.Requests))
	for k := range st.Requests {
		outcomes = append(outcomes, k)
	}
	sort.Strings(outcomes)
	parts := make([]string, 0, len(outcomes))
	for _, k := range outcomes {
		parts = append(parts, fmt.Sprintf("%s %s", k, humanize.Comma(int64(st.Requests[k]))))
	}

	fmt.Fprintf(w, "Endpoint:     %s\n", st.URL)
	fmt.Fprintf(w, "Calculators:  %d\n", int(st.Calculators))
	fmt.Fprintf(w, "Requests:     %s (%s)\n", humanize.Comma(int64(st.TotalRequests())), strings.Join(parts, ", "))
	fmt.Fprintf(w, "Deduplicated: %s\n", humanize.Comma(int64(st.Deduped)))
	fmt.Fprintf(w, "Active:       %d\n", int(st.Active))
	fmt.Fprintf(w, "Cache:        %s / %s entries, hit ratio %.1f%%, %s evictions\n",
		humanize.Comma(int64(st.CacheEntries)), humanize.Comma(int64(st.CacheCapacity)),
		st.HitRatio*100, humanize.Comma(int64(st.CacheEvictions)))
	fmt.Fprintf(w, "Workers:      %d running / %d, %d queued, avg %s\n",
		int(st.Running), int(st.Workers), int(st.QueueDepth), st.AvgComputation.Round(time.Microsecond))
	fmt.Fprintf(w, "Debounces:    %d pending\n", int(st.PendingDebounces))
	fmt.Fprintf(w, "Last result:  %s\n", lastSeen(st.LastCalculated))
}

func printRemoteStats(w io.Writer, endpoint string, resp *rpc.StatsResponse) {
	ps := resp.Stats
	fmt.Fprintf(w, "Endpoint:     %s\n", endpoint)
	fmt.Fprintf(w, "Calculators:  %d\n", ps.Calculators)
	fmt.Fprintf(w, "Calculated:   %s (errors %s, invalid %s, canceled %s)\n",
		humanize.Comma(int64(ps.Engine.CalculationCount)), humanize.Comma(int64(ps.Engine.ErrorCount)),
		humanize.Comma(int64(ps.Engine.ValidationErrorCount)), humanize.Comma(int64(ps.Engine.CanceledCount)))
	fmt.Fprintf(w, "Cache:        %d / %d entries, hit rate %.1f%%\n", ps.Cache.Size, ps.Cache.MaxSize, ps.HitRate)
	fmt.Fprintf(w, "Workers:      %d running / %d, %d queued, avg %s\n",
		ps.Scheduler.Running, ps.Scheduler.Workers, ps.Scheduler.QueueDepth,
		ps.Scheduler.AverageComputation.Round(time.Microsecond))
	fmt.Fprintf(w, "Last result:  %s\n", lastSeen(ps.Engine.LastCalculatedAt))
}

func lastSeen(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return humanize.Time(t)
}
