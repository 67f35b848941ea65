package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"htnplan/internal/domain"
	"htnplan/internal/loader"
	"htnplan/internal/logging"
	"htnplan/internal/plan"
	"htnplan/internal/planner"
	"htnplan/internal/trace"
)

type planFlags struct {
	trace  bool
	kinds  []string
	record bool
	stats  bool
}

func (a *app) planCmd() *cobra.Command {
	f := &planFlags{}
	cmd := &cobra.Command{
		Use:   "plan DOMAIN PROBLEM",
		Short: "Find plans for a problem",
		Long: `Searches for plans that accomplish the problem's task network.

Plans are printed in the order the search finds them, each with its cost.
The search stops after --max-plans plans, when the step budget runs out,
or when the recursion limit aborts it.

Examples:
  htn plan examples/travel/domain.yaml examples/travel/commute.yaml
  htn plan -n 0 --trace --kind reduced,plan_found domain.yaml problem.yaml`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runPlan(cmd, args[0], args[1], f)
		},
	}
	cmd.Flags().BoolVarP(&f.trace, "trace", "t", false, "Print every search event")
	cmd.Flags().StringSliceVar(&f.kinds, "kind", nil, "Only trace these event kinds")
	cmd.Flags().BoolVar(&f.record, "record", false, "Record the event stream in the trace database")
	cmd.Flags().BoolVar(&f.stats, "stats", false, "Print search statistics")
	return cmd
}

func (a *app) runPlan(cmd *cobra.Command, domainPath, problemPath string, f *planFlags) error {
	d, p, err := a.load(domainPath, problemPath)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	logging.Search("planning %s/%s with limit %d", d.Name, p.Name, a.cfg.Planner.RecursionLimit)

	var sinks trace.Fanout
	if f.trace {
		kinds, err := parseKinds(f.kinds)
		if err != nil {
			return err
		}
		sinks = append(sinks, trace.NewFilter(trace.NewPrinter(out), kinds...))
	}

	ctx, cancel := a.signalContext(cmd)
	defer cancel()

	var run *trace.Run
	if f.record || a.cfg.Trace.Enabled {
		store, err := trace.OpenStore(a.cfg.Trace.DatabasePath, a.cfg.Trace.Driver)
		if err != nil {
			return err
		}
		defer store.Close()
		run, err = store.Begin(ctx, "", d.Name, p.Name)
		if err != nil {
			return err
		}
		sinks = append(sinks, run)
	}

	opts := []planner.Option{planner.WithRecursionLimit(a.cfg.Planner.RecursionLimit)}
	if len(sinks) > 0 {
		opts = append(opts, planner.WithSink(sinks))
	}
	pl := planner.New(d, p.State, p.Tasks, opts...)

	sctx, scancel := a.searchContext(ctx)
	defer scancel()
	plans, searchErr := a.solve(sctx, pl)

	if run != nil {
		status := trace.StatusOf(searchErr, searchErr == nil && !pl.IsActive())
		if err := run.Finish(context.Background(), status, pl.ID(), len(plans), pl.Stats().Steps, searchErr); err != nil {
			logging.TraceError("failed to record run: %v", err)
		}
		fmt.Fprintln(out, mutedStyle.Render("trace run "+run.ID()))
	}

	printPlans(out, d, plans)
	if f.stats {
		fmt.Fprint(out, pl.Stats().Summary())
	}

	var limitErr *planner.LimitError
	if errors.As(searchErr, &limitErr) {
		fmt.Fprintln(out, warnStyle.Render(fmt.Sprintf("search aborted: more than %d live frames", limitErr.Limit)))
	}
	return searchErr
}

// solve collects plans, honouring the configured step budget.
func (a *app) solve(ctx context.Context, pl *planner.Planner) ([]*plan.Plan, error) {
	limits := a.cfg.Planner
	if limits.StepBudget <= 0 {
		return pl.Solve(ctx, limits.MaxPlans)
	}

	budget := uint64(limits.StepBudget)
	enough := func() bool { return limits.MaxPlans > 0 && len(pl.Plans()) >= limits.MaxPlans }
	for pl.IsActive() && pl.Stats().Steps < budget && !enough() {
		if err := ctx.Err(); err != nil {
			return capPlans(pl.Plans(), limits.MaxPlans), err
		}
		slice := min(budget-pl.Stats().Steps, 256)
		logging.SearchDebug("running %d steps (%d of %d used, %d plans)", slice, pl.Stats().Steps, budget, len(pl.Plans()))
		if _, err := pl.RunSteps(int(slice)); err != nil {
			return capPlans(pl.Plans(), limits.MaxPlans), err
		}
	}
	if pl.IsActive() && !enough() {
		logging.SearchWarn("step budget of %d exhausted", budget)
	}
	return capPlans(pl.Plans(), limits.MaxPlans), nil
}

func capPlans(plans []*plan.Plan, n int) []*plan.Plan {
	if n > 0 && len(plans) > n {
		return plans[:n]
	}
	return plans
}

func printPlans(w io.Writer, d *domain.Domain, plans []*plan.Plan) {
	if len(plans) == 0 {
		fmt.Fprintln(w, warnStyle.Render("no plan found"))
		return
	}
	for i, p := range plans {
		fmt.Fprintln(w, renderPlan(i+1, p, d))
	}
	if len(plans) > 1 {
		best := plan.Cheapest(plans)
		for i, p := range plans {
			if p == best {
				fmt.Fprintln(w, mutedStyle.Render(fmt.Sprintf("cheapest: plan %d (cost %s)", i+1, best.Cost.String())))
				break
			}
		}
	}
}

func parseKinds(names []string) ([]planner.EventKind, error) {
	kinds := make([]planner.EventKind, 0, len(names))
	for _, n := range names {
		k, err := planner.ParseEventKind(n)
		if err != nil {
			return nil, err
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}

// problemLabel names a problem for output.
func problemLabel(p *loader.Problem, path string) string {
	if p != nil && p.Name != "" && p.Name != "problem" {
		return p.Name
	}
	return path
}
