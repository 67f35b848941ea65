package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"htnplan/internal/logging"
	"htnplan/internal/planner"
	"htnplan/internal/trace"
	"htnplan/internal/watch"
)

func (a *app) watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch DOMAIN PROBLEM",
		Short: "Re-plan whenever the domain or problem file changes",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.signalContext(cmd)
			defer cancel()
			return a.runWatch(ctx, cmd.OutOrStdout(), args[0], args[1])
		},
	}
}

// runWatch plans once, then again after every settled change, until ctx
// ends. Plan and limit events are streamed through a bus so they show up
// while a long search is still running.
func (a *app) runWatch(ctx context.Context, out io.Writer, domainPath, problemPath string) error {
	bus := trace.NewBus()
	bus.SetBatching(a.cfg.GetTraceBatchWindow(), 16)
	bus.SetKinds(planner.EventPlanFound, planner.EventLimit)
	events := bus.Subscribe(a.cfg.Trace.BusBuffer)

	var outMu sync.Mutex
	printf := func(format string, args ...interface{}) {
		outMu.Lock()
		defer outMu.Unlock()
		fmt.Fprintf(out, format, args...)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for env := range events {
			printf("%s\n", mutedStyle.Render(trace.Format(env.Event)))
		}
	}()
	defer func() {
		bus.Close()
		wg.Wait()
	}()

	replan := func(ctx context.Context) {
		d, p, err := a.load(domainPath, problemPath)
		if err != nil {
			printf("%s %v\n", errorStyle.Render("error:"), err)
			return
		}
		pl := planner.New(d, p.State, p.Tasks,
			planner.WithRecursionLimit(a.cfg.Planner.RecursionLimit),
			planner.WithSink(bus))
		sctx, cancel := a.searchContext(ctx)
		defer cancel()
		plans, err := a.solve(sctx, pl)
		bus.Flush()

		var sb strings.Builder
		printPlans(&sb, d, plans)
		printf("%s", sb.String())
		if err != nil {
			printf("%s %v\n", warnStyle.Render("search:"), err)
		}
	}

	replan(ctx)

	w, err := watch.New([]string{domainPath, problemPath}, a.cfg.GetWatchDebounce(), func(ctx context.Context, paths []string) {
		logging.Watch("replanning after change to %v", paths)
		printf("%s\n", titleStyle.Render(fmt.Sprintf("changed: %v", paths)))
		replan(ctx)
	})
	if err != nil {
		return err
	}
	if err := w.Start(ctx); err != nil {
		return err
	}
	defer w.Stop()

	printf("%s\n", mutedStyle.Render("watching for changes, Ctrl-C to stop"))
	<-ctx.Done()
	return nil
}
