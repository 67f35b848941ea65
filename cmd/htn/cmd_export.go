package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"htnplan/internal/loader"
	"htnplan/internal/planner"
)

func (a *app) exportCmd() *cobra.Command {
	var (
		planN  int
		output string
	)
	cmd := &cobra.Command{
		Use:   "export DOMAIN PROBLEM",
		Short: "Print a world state as Mangle facts",
		Long: `Prints the problem's initial state as Mangle facts. With --plan N the
state printed is the one reached by the Nth plan found, so it can be used
as the initial state of a follow-up problem.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, p, err := a.load(args[0], args[1])
			if err != nil {
				return err
			}

			facts := loader.ExportFacts(p.State, d)
			if planN > 0 {
				var pl *planner.Planner
				found := 0
				captured := ""
				capture := planner.SinkFunc(func(e planner.Event) {
					if e.Kind != planner.EventPlanFound {
						return
					}
					found++
					if found == planN {
						captured = loader.ExportFacts(pl.State(), d)
					}
				})
				pl = planner.New(d, p.State, p.Tasks,
					planner.WithRecursionLimit(a.cfg.Planner.RecursionLimit),
					planner.WithSink(capture))

				ctx, cancel := a.signalContext(cmd)
				defer cancel()
				sctx, scancel := a.searchContext(ctx)
				defer scancel()
				if _, err := pl.Solve(sctx, planN); err != nil {
					return err
				}
				if found < planN {
					return fmt.Errorf("only %d plans found, cannot export plan %d", found, planN)
				}
				facts = captured
			}

			if output == "" {
				fmt.Fprint(cmd.OutOrStdout(), facts)
				return nil
			}
			if err := os.WriteFile(output, []byte(facts), 0644); err != nil {
				return fmt.Errorf("failed to write %s: %w", output, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), mutedStyle.Render("wrote "+output))
			return nil
		},
	}
	cmd.Flags().IntVarP(&planN, "plan", "p", 0, "Export the state reached by the Nth plan")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to a file instead of stdout")
	return cmd
}
