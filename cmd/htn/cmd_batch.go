package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"htnplan/internal/batch"
	"htnplan/internal/loader"
	"htnplan/internal/plan"
	"htnplan/internal/trace"
)

func (a *app) batchCmd() *cobra.Command {
	var (
		workers  int
		failFast bool
		record   bool
	)
	cmd := &cobra.Command{
		Use:   "batch DOMAIN PROBLEM...",
		Short: "Solve many problems of one domain concurrently",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := loader.LoadDomain(args[0])
			if err != nil {
				return err
			}
			ctx, cancel := a.signalContext(cmd)
			defer cancel()

			opts := batch.Options{
				Workers:        a.cfg.Batch.Workers,
				MaxPlans:       a.cfg.Planner.MaxPlans,
				RecursionLimit: a.cfg.Planner.RecursionLimit,
				Timeout:        a.cfg.GetPlannerTimeout(),
				FailFast:       a.cfg.Batch.FailFast || failFast,
			}
			if cmd.Flags().Changed("workers") {
				opts.Workers = workers
			}
			if record || a.cfg.Trace.Enabled {
				store, err := trace.OpenStore(a.cfg.Trace.DatabasePath, a.cfg.Trace.Driver)
				if err != nil {
					return err
				}
				defer store.Close()
				opts.Store = store
			}

			jobs := make([]batch.Job, 0, len(args)-1)
			for _, path := range args[1:] {
				jobs = append(jobs, batch.Job{Path: path})
			}
			start := time.Now()
			results, runErr := batch.NewRunner(d, opts).Run(ctx, jobs)

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, titleStyle.Render(fmt.Sprintf("%-24s %-10s %6s %10s %10s", "PROBLEM", "STATUS", "PLANS", "BEST", "TIME")))
			for _, r := range results {
				best := "-"
				if p := plan.Cheapest(r.Plans); p != nil {
					best = p.Cost.String()
				}
				line := fmt.Sprintf("%-24s %-10s %6d %10s %10s", r.Job, r.Status, len(r.Plans), best, r.Elapsed.Round(time.Microsecond))
				switch r.Status {
				case trace.StatusFailed:
					line = errorStyle.Render(line)
				case trace.StatusLimit:
					line = warnStyle.Render(line)
				}
				fmt.Fprintln(out, line)
				if r.Err != nil {
					fmt.Fprintln(out, mutedStyle.Render("  "+r.Err.Error()))
				}
			}
			fmt.Fprintln(out, mutedStyle.Render(fmt.Sprintf("%d problems in %s: %s",
				len(results), time.Since(start).Round(time.Millisecond), summaryLine(batch.Summary(results)))))
			return runErr
		},
	}
	cmd.Flags().IntVarP(&workers, "workers", "j", 4, "Concurrent planners")
	cmd.Flags().BoolVar(&failFast, "fail-fast", false, "Stop after the first failed problem")
	cmd.Flags().BoolVar(&record, "record", false, "Record every run in the trace database")
	return cmd
}

func summaryLine(counts map[string]int) string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%d", k, counts[k])
	}
	return strings.Join(parts, " ")
}
