// Package batch solves many problems of one domain concurrently.
//
// Every job gets its own planner, state and task network; the domain is
// shared read-only. Worker count is bounded with an errgroup limit.
package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"htnplan/internal/domain"
	"htnplan/internal/loader"
	"htnplan/internal/logging"
	"htnplan/internal/plan"
	"htnplan/internal/planner"
	"htnplan/internal/trace"
)

// Job is one problem to solve. Problem is used when set; otherwise the
// problem is loaded from Path by the worker.
type Job struct {
	Name    string
	Path    string
	Problem *loader.Problem
}

// Result is the outcome of one job.
type Result struct {
	Job       string
	Problem   string
	PlannerID string
	RunID     string // trace run, when a store is configured
	Plans     []*plan.Plan
	Stats     *planner.Stats
	Status    string
	Err       error
	Elapsed   time.Duration
}

// Options configures a Runner.
type Options struct {
	Workers        int
	MaxPlans       int           // per job, < 1 means all
	RecursionLimit int           // < 1 keeps the planner default
	Timeout        time.Duration // per job, 0 means none
	FailFast       bool          // cancel remaining jobs after the first failure

	// Store, when set, records each job's event stream as a trace run.
	Store *trace.Store
	// Sink, when set, also receives every job's events. It must be safe for
	// concurrent use.
	Sink planner.EventSink
}

// Runner solves jobs against one domain.
type Runner struct {
	dom  *domain.Domain
	opts Options
}

// NewRunner returns a runner for d.
func NewRunner(d *domain.Domain, opts Options) *Runner {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Runner{dom: d, opts: opts}
}

// Run solves every job and returns one result per job, in job order. The
// returned error is the first job failure when FailFast is set, or the
// context error if ctx ended before all jobs ran.
func (r *Runner) Run(ctx context.Context, jobs []Job) ([]Result, error) {
	timer := logging.StartTimer(logging.CategoryBatch, "batch")
	defer timer.Stop()

	results := make([]Result, len(jobs))
	var eg *errgroup.Group
	egCtx := ctx
	if r.opts.FailFast {
		eg, egCtx = errgroup.WithContext(ctx)
	} else {
		eg = &errgroup.Group{}
	}
	eg.SetLimit(r.opts.Workers)

	var mu sync.Mutex
	failed := 0
	for i := range jobs {
		if egCtx.Err() != nil {
			results[i] = Result{Job: jobs[i].label(i), Status: trace.StatusStopped, Err: egCtx.Err()}
			continue
		}
		eg.Go(func() error {
			res := r.solve(egCtx, jobs[i], i)
			results[i] = res
			if res.Err != nil {
				mu.Lock()
				failed++
				mu.Unlock()
				logging.Get(logging.CategoryBatch).Warn("job %s failed: %v", res.Job, res.Err)
				if r.opts.FailFast {
					return fmt.Errorf("job %s: %w", res.Job, res.Err)
				}
			}
			return nil
		})
	}
	err := eg.Wait()
	if err == nil {
		err = ctx.Err()
	}
	logging.Batch("batch finished: %d jobs, %d failed, %d workers", len(jobs), failed, r.opts.Workers)
	return results, err
}

func (j Job) label(i int) string {
	switch {
	case j.Name != "":
		return j.Name
	case j.Path != "":
		return j.Path
	}
	return fmt.Sprintf("job-%d", i)
}

func (r *Runner) solve(ctx context.Context, job Job, i int) (res Result) {
	start := time.Now()
	res = Result{Job: job.label(i)}
	defer func() { res.Elapsed = time.Since(start) }()

	if err := ctx.Err(); err != nil {
		res.Status, res.Err = trace.StatusStopped, err
		return res
	}

	prob := job.Problem
	if prob == nil {
		if job.Path == "" {
			res.Status, res.Err = trace.StatusFailed, errors.New("job has neither a problem nor a path")
			return res
		}
		p, err := loader.LoadProblem(job.Path, r.dom)
		if err != nil {
			res.Status, res.Err = trace.StatusFailed, err
			return res
		}
		prob = p
	}
	res.Problem = prob.Name

	if r.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.Timeout)
		defer cancel()
	}

	var sinks trace.Fanout
	if r.opts.Sink != nil {
		sinks = append(sinks, r.opts.Sink)
	}
	var run *trace.Run
	if r.opts.Store != nil {
		var err error
		run, err = r.opts.Store.Begin(ctx, "", r.dom.Name, prob.Name)
		if err != nil {
			res.Status, res.Err = trace.StatusFailed, err
			return res
		}
		res.RunID = run.ID()
		sinks = append(sinks, run)
	}

	opts := []planner.Option{planner.WithRecursionLimit(r.opts.RecursionLimit)}
	if len(sinks) > 0 {
		opts = append(opts, planner.WithSink(sinks))
	}
	p := planner.New(r.dom, prob.State, prob.Tasks, opts...)
	res.PlannerID = p.ID()

	plans, err := p.Solve(ctx, r.opts.MaxPlans)
	res.Plans, res.Stats, res.Err = plans, p.Stats(), err
	res.Status = trace.StatusOf(err, err == nil && !p.IsActive())

	if run != nil {
		// The run is closed even when ctx was cancelled.
		if ferr := run.Finish(context.Background(), res.Status, p.ID(), len(plans), p.Stats().Steps, err); ferr != nil && res.Err == nil {
			res.Err = ferr
		}
	}
	logging.BatchDebug("job %s: status=%s plans=%d steps=%d", res.Job, res.Status, len(plans), p.Stats().Steps)
	return res
}

// Summary counts results by status.
func Summary(results []Result) map[string]int {
	out := make(map[string]int)
	for _, r := range results {
		out[r.Status]++
	}
	return out
}
