package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"htnplan/internal/trace"
)

func (a *app) traceCmd() *cobra.Command {
	var dbPath string
	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Inspect recorded search runs",
		Long: `Lists and replays search runs recorded with plan --record or batch --record.

Examples:
  htn trace list
  htn trace show 6f1c... --kind plan_found
  htn trace show 6f1c... --json`,
	}
	cmd.PersistentFlags().StringVar(&dbPath, "db", "", "Trace database (default from config)")

	open := func() (*trace.Store, error) {
		path := a.cfg.Trace.DatabasePath
		if dbPath != "" {
			path = dbPath
		}
		return trace.OpenStore(path, a.cfg.Trace.Driver)
	}

	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List recent runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := open()
			if err != nil {
				return err
			}
			defer store.Close()
			runs, err := store.Runs(cmd.Context(), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, mutedStyle.Render("no runs recorded"))
				return nil
			}
			fmt.Fprintln(out, titleStyle.Render(fmt.Sprintf("%-36s %-10s %-20s %5s %8s %7s  %s", "RUN", "STATUS", "PROBLEM", "PLANS", "STEPS", "EVENTS", "STARTED")))
			for _, r := range runs {
				fmt.Fprintf(out, "%-36s %-10s %-20s %5d %8d %7d  %s\n",
					r.ID, r.Status, r.Domain+"/"+r.Problem, r.Plans, r.Steps, r.Events,
					r.StartedAt.Local().Format(time.DateTime))
			}
			return nil
		},
	}
	list.Flags().IntVar(&limit, "limit", 20, "Maximum runs to list")

	var (
		kinds  []string
		asJSON bool
	)
	show := &cobra.Command{
		Use:   "show RUN",
		Short: "Print the events of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ks, err := parseKinds(kinds)
			if err != nil {
				return err
			}
			store, err := open()
			if err != nil {
				return err
			}
			defer store.Close()

			info, err := store.Run(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			events, err := store.Events(cmd.Context(), args[0], ks...)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				for _, e := range events {
					if err := enc.Encode(e); err != nil {
						return err
					}
				}
				return nil
			}
			fmt.Fprintln(out, renderKV("run "+info.ID, [][2]string{
				{"problem", info.Domain + "/" + info.Problem},
				{"status", info.Status},
				{"plans", fmt.Sprint(info.Plans)},
				{"steps", fmt.Sprint(info.Steps)},
				{"events", fmt.Sprint(info.Events)},
			}))
			if info.Error != "" {
				fmt.Fprintln(out, warnStyle.Render(info.Error))
			}
			printer := trace.NewPrinter(out)
			for _, e := range events {
				printer.Emit(e)
			}
			return nil
		},
	}
	show.Flags().StringSliceVar(&kinds, "kind", nil, "Only show these event kinds")
	show.Flags().BoolVar(&asJSON, "json", false, "Print events as JSON lines")

	rm := &cobra.Command{
		Use:   "rm RUN...",
		Short: "Delete runs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := open()
			if err != nil {
				return err
			}
			defer store.Close()
			for _, id := range args {
				if err := store.Delete(cmd.Context(), id); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), mutedStyle.Render("deleted "+id))
			}
			return nil
		},
	}

	cmd.AddCommand(list, show, rm)
	return cmd
}
