// Package planner implements the HTN search engine.
//
// The search is an explicit stack machine rather than native recursion: each
// logical recursive call is a frame with its own resume point and loop
// variables, and Step advances the top frame by one micro-transition. A
// driver can therefore run the search in bounded slices, inspect it between
// steps, and rely on a hard cap on live frames.
//
// A Planner is single-threaded. Independent planners may run concurrently as
// long as they only share a read-only Domain.
package planner

import (
	"context"

	"github.com/google/uuid"

	"htnplan/internal/domain"
	"htnplan/internal/logging"
	"htnplan/internal/plan"
	"htnplan/internal/state"
	"htnplan/internal/tasks"
	"htnplan/internal/term"
)

// DefaultRecursionLimit caps live frames when no limit is configured.
const DefaultRecursionLimit = 10000

// ctxCheckInterval is how many steps FindNext runs between context checks.
const ctxCheckInterval = 256

// Planner searches for plans that accomplish a task network.
type Planner struct {
	id    string
	dom   *domain.Domain
	st    *state.State
	root  *tasks.List
	limit int

	current *plan.Plan
	plans   []*plan.Plan
	stack   []*frame
	undo    state.UndoStack

	sink  EventSink
	seq   uint64
	log   *logging.Logger
	stats *Stats

	done bool
	err  error
}

// Option configures a Planner.
type Option func(*Planner)

// WithRecursionLimit caps the number of live frames. Values below 1 keep the
// default.
func WithRecursionLimit(n int) Option {
	return func(p *Planner) {
		if n > 0 {
			p.limit = n
		}
	}
}

// WithCost sets the accumulator for plan costs. The default is a zero
// plan.NumericCost.
func WithCost(c plan.Cost) Option {
	return func(p *Planner) { p.current = plan.New(c) }
}

// WithSink sends search events to s.
func WithSink(s EventSink) Option {
	return func(p *Planner) { p.sink = s }
}

// WithID overrides the generated planner id.
func WithID(id string) Option {
	return func(p *Planner) { p.id = id }
}

// New prepares a search of root over st. The planner takes ownership of st
// and root: both are mutated during the search and restored when it ends.
func New(d *domain.Domain, st *state.State, root *tasks.List, opts ...Option) *Planner {
	p := &Planner{
		id:      uuid.NewString(),
		dom:     d,
		st:      st,
		root:    root,
		limit:   DefaultRecursionLimit,
		current: plan.New(nil),
		stats:   newStats(),
	}
	for _, o := range opts {
		o(p)
	}
	p.log = logging.Get(logging.CategorySearch).With("planner", p.id)

	st.ClearLog()
	p.emit(Event{Kind: EventSetGoal, Task: root.Format(d)})
	p.call(root)
	p.log.Debug("search started: %s", root.Format(d))
	return p
}

// ID returns the planner id used in logs and events.
func (p *Planner) ID() string { return p.id }

// Domain returns the domain being searched.
func (p *Planner) Domain() *domain.Domain { return p.dom }

// State returns the world state. Between steps it reflects the current
// search path; after the search ends it is back to the initial state.
func (p *Planner) State() *state.State { return p.st }

// Tasks returns the root task network.
func (p *Planner) Tasks() *tasks.List { return p.root }

// Plans returns every plan found so far, in the order found.
func (p *Planner) Plans() []*plan.Plan { return p.plans }

// IsActive reports whether the search has work left.
func (p *Planner) IsActive() bool { return !p.done && len(p.stack) > 0 }

// Depth returns the number of live frames.
func (p *Planner) Depth() int { return len(p.stack) }

// Err returns the error that ended the search, if any.
func (p *Planner) Err() error { return p.err }

// Stats returns the search counters.
func (p *Planner) Stats() *Stats { return p.stats }

// Run advances the search by one step and reports whether work remains. A
// recursion limit abort makes Run return false; Err tells it apart from an
// exhausted search.
func (p *Planner) Run() bool {
	active, _ := p.Step()
	return active
}

// RunSteps advances the search by at most n steps.
func (p *Planner) RunSteps(n int) (bool, error) {
	for i := 0; i < n; i++ {
		active, err := p.Step()
		if err != nil || !active {
			return active, err
		}
	}
	return p.IsActive(), nil
}

// FindNext runs the search until one more plan is found and returns it. It
// returns nil, nil when the search is exhausted. ctx is checked between
// steps.
func (p *Planner) FindNext(ctx context.Context) (*plan.Plan, error) {
	n := len(p.plans)
	for i := 0; ; i++ {
		if len(p.plans) > n {
			return p.plans[n], nil
		}
		if i%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		active, err := p.Step()
		if err != nil {
			return nil, err
		}
		if !active {
			if len(p.plans) > n {
				return p.plans[n], nil
			}
			return nil, nil
		}
	}
}

// Solve collects up to maxPlans plans (all of them when maxPlans < 1).
func (p *Planner) Solve(ctx context.Context, maxPlans int) ([]*plan.Plan, error) {
	timer := logging.StartTimer(logging.CategorySearch, "solve")
	defer timer.Stop()

	var out []*plan.Plan
	for maxPlans < 1 || len(out) < maxPlans {
		pl, err := p.FindNext(ctx)
		if err != nil {
			return out, err
		}
		if pl == nil {
			break
		}
		out = append(out, pl)
	}
	p.log.Info("solve finished: %d plans, %d steps", len(out), p.stats.Steps)
	return out, nil
}

func (p *Planner) emit(e Event) {
	if p.sink == nil {
		return
	}
	p.seq++
	e.Seq = p.seq
	e.Planner = p.id
	e.Depth = len(p.stack)
	p.sink.Emit(e)
}

func (p *Planner) formatAtoms(ps []term.Predicate) []string {
	if len(ps) == 0 {
		return nil
	}
	out := make([]string, len(ps))
	for i, a := range ps {
		out[i] = a.Format(p.dom)
	}
	return out
}
