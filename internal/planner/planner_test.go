package planner

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"htnplan/internal/domain"
	"htnplan/internal/logging"
	"htnplan/internal/plan"
	"htnplan/internal/precond"
	"htnplan/internal/state"
	"htnplan/internal/tasks"
	"htnplan/internal/term"
)

type world struct {
	d    *domain.Domain
	syms *term.SymbolTable
}

func newWorld() *world {
	syms := term.NewSymbolTable()
	return &world{d: domain.New("test", syms), syms: syms}
}

func (w *world) sym(name string) int { return w.syms.Intern(name).Index() }

func (w *world) atom(head string, args ...string) term.Predicate {
	ts := make([]term.Term, len(args))
	for i, a := range args {
		ts[i] = w.syms.Intern(a)
	}
	return term.NewPredicate(w.sym(head), 0, ts...)
}

func (w *world) state(atoms ...term.Predicate) *state.State {
	st := w.d.NewState()
	for _, a := range atoms {
		st.Add(a)
	}
	return st
}

func (w *world) atoms(st *state.State) []string {
	var out []string
	for _, p := range st.Atoms() {
		out = append(out, p.Format(w.d))
	}
	return out
}

func (w *world) task(primitive bool, head string, args ...string) *tasks.List {
	return tasks.Leaf(tasks.Atom{Head: w.atom(head, args...), Primitive: primitive})
}

// addMove declares (!move ?a ?b): pre at(?a), del at(?a), add at(?b), cost 1.
func (w *world) addMove() {
	at := w.sym("at")
	w.d.AddOperator(&domain.Operator{
		Head:     term.NewPredicate(w.sym("!move"), 2, term.Var(0), term.Var(1)),
		Pre:      precond.Atomic(term.NewPredicate(at, 2, term.Var(0))),
		Del:      domain.Literal(domain.AtomEffect(term.NewPredicate(at, 2, term.Var(0)))),
		Add:      domain.Literal(domain.AtomEffect(term.NewPredicate(at, 2, term.Var(1)))),
		Cost:     term.Number(1),
		VarCount: 2,
	})
}

// addTravel declares travel(?a ?b) with a direct branch guarded by near(?a ?b)
// and a detour branch through ?c that always holds.
func (w *world) addTravel() {
	move := w.sym("!move")
	step := func(a, b term.Term) *tasks.List {
		return tasks.Leaf(tasks.Atom{Head: term.NewPredicate(move, 3, a, b), Primitive: true})
	}
	w.d.AddMethod(&domain.Method{
		Head: term.NewPredicate(w.sym("travel"), 3, term.Var(0), term.Var(1)),
		Branches: []domain.Branch{
			{
				Label: "direct",
				Pre:   precond.Atomic(term.NewPredicate(w.sym("near"), 3, term.Var(0), term.Var(1))),
				Sub:   tasks.Ordered(step(term.Var(0), term.Var(1))),
			},
			{
				Label: "detour",
				Pre:   precond.True(),
				Sub:   tasks.Ordered(step(term.Var(0), term.Var(2)), step(term.Var(2), term.Var(1))),
			},
		},
		VarCount: 3,
	})
}

type recorder struct{ events []Event }

func (r *recorder) Emit(e Event) { r.events = append(r.events, e) }

func (r *recorder) kinds() []EventKind {
	out := make([]EventKind, len(r.events))
	for i, e := range r.events {
		out[i] = e.Kind
	}
	return out
}

func (r *recorder) of(k EventKind) []Event {
	var out []Event
	for _, e := range r.events {
		if e.Kind == k {
			out = append(out, e)
		}
	}
	return out
}

func drain(t *testing.T, p *Planner) {
	t.Helper()
	for i := 0; i < 100000; i++ {
		active, err := p.Step()
		require.NoError(t, err)
		if !active {
			return
		}
	}
	t.Fatal("search did not terminate")
}

func steps(w *world, pl *plan.Plan) []string { return pl.StepStrings(w.d) }

func TestSingleStepPlan(t *testing.T) {
	w := newWorld()
	w.addMove()
	st := w.state(w.atom("at", "home"))
	root := tasks.Ordered(w.task(true, "!move", "home", "work"))
	rec := &recorder{}

	p := New(w.d, st, root, WithSink(rec))
	drain(t, p)

	require.Len(t, p.Plans(), 1)
	pl := p.Plans()[0]
	assert.Equal(t, []string{"(!move home work)"}, steps(w, pl))
	assert.Equal(t, "1", pl.Cost.String())

	found := rec.of(EventPlanFound)
	require.Len(t, found, 1)
	assert.Equal(t, []string{"(at work)"}, found[0].State)

	changed := rec.of(EventStateChanged)
	require.Len(t, changed, 1)
	assert.Equal(t, []string{"(at home)"}, changed[0].Deleted)
	assert.Equal(t, []string{"(at work)"}, changed[0].Added)

	assert.Equal(t, []string{"(at home)"}, w.atoms(st))
	assert.Equal(t, "((!move home work))", root.Format(w.d))
	assert.False(t, p.IsActive())
	assert.Zero(t, p.Depth())
	assert.NoError(t, p.Err())
}

func TestMethodBranchOrdering(t *testing.T) {
	w := newWorld()
	w.addMove()
	w.addTravel()
	st := w.state(w.atom("at", "home"), w.atom("near", "home", "work"))
	root := tasks.Ordered(w.task(false, "travel", "home", "work"))
	rec := &recorder{}

	p := New(w.d, st, root, WithSink(rec))
	drain(t, p)

	require.Len(t, p.Plans(), 1)
	assert.Equal(t, []string{"(!move home work)"}, steps(w, p.Plans()[0]))

	reduced := rec.of(EventReduced)
	require.Len(t, reduced, 1)
	assert.Equal(t, "direct", reduced[0].Branch)
	assert.Equal(t, "(travel home work)", reduced[0].Method)
	assert.Equal(t, []string{"(!move home work)"}, reduced[0].Children)
	assert.True(t, reduced[0].Ordered)

	assert.NotContains(t, p.Stats().Rules, "travel/detour")
	assert.Equal(t, 1, p.Stats().Rules["travel/direct"].Satisfied)
}

func TestNoPlan(t *testing.T) {
	w := newWorld()
	w.addMove()
	st := w.state()
	root := tasks.Ordered(w.task(true, "!move", "home", "work"))
	rec := &recorder{}

	p := New(w.d, st, root, WithSink(rec))
	drain(t, p)

	assert.Empty(t, p.Plans())
	assert.False(t, p.IsActive())
	assert.Zero(t, p.Depth())
	assert.Empty(t, p.Inspect())
	assert.NoError(t, p.Err())
	assert.Empty(t, w.atoms(st))
	assert.Equal(t, "((!move home work))", root.Format(w.d))

	want := []EventKind{EventSetGoal, EventTrying, EventBacktracking}
	if diff := cmp.Diff(want, rec.kinds()); diff != "" {
		t.Errorf("events (-want +got):\n%s", diff)
	}
	assert.Equal(t, 1, p.Stats().Rules["!move"].Unsatisfied)
}

func TestAllBindingsOfWinningBranch(t *testing.T) {
	w := newWorld()
	visited := w.sym("visited")
	w.d.AddOperator(&domain.Operator{
		Head:     term.NewPredicate(w.sym("!go"), 1, term.Var(0)),
		Pre:      precond.True(),
		Del:      domain.Literal(),
		Add:      domain.Literal(domain.AtomEffect(term.NewPredicate(visited, 1, term.Var(0)))),
		Cost:     term.Number(2),
		VarCount: 1,
	})
	goTask := tasks.Leaf(tasks.Atom{Head: term.NewPredicate(w.sym("!go"), 1, term.Var(0)), Primitive: true})
	w.d.AddMethod(&domain.Method{
		Head: term.NewPredicate(w.sym("visit"), 1),
		Branches: []domain.Branch{
			{
				Label: "by-road",
				Pre:   precond.Atomic(term.NewPredicate(w.sym("road"), 1, w.syms.Intern("home"), term.Var(0))),
				Sub:   tasks.Ordered(goTask),
			},
			{
				Label: "stay",
				Pre:   precond.True(),
				Sub:   tasks.Ordered(),
			},
		},
		VarCount: 1,
	})
	st := w.state(w.atom("road", "home", "a"), w.atom("road", "home", "b"))
	p := New(w.d, st, tasks.Ordered(w.task(false, "visit")))
	drain(t, p)

	var got [][]string
	for _, pl := range p.Plans() {
		got = append(got, steps(w, pl))
	}
	want := [][]string{{"(!go a)"}, {"(!go b)"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("plans (-want +got):\n%s", diff)
	}
	assert.Equal(t, "2", p.Plans()[1].Cost.String())
	assert.Equal(t, 2, p.Stats().Reductions)
}

func TestUnorderedInterleavings(t *testing.T) {
	w := newWorld()
	w.addMove()
	st := w.state(w.atom("at", "a"))
	root := tasks.Unordered(
		w.task(true, "!move", "a", "b"),
		w.task(true, "!move", "b", "c"),
	)
	p := New(w.d, st, root)
	drain(t, p)

	require.Len(t, p.Plans(), 1)
	assert.Equal(t, []string{"(!move a b)", "(!move b c)"}, steps(w, p.Plans()[0]))
	assert.Equal(t, "2", p.Plans()[0].Cost.String())
	// both candidates of the first frame plus the tail candidate run out
	assert.Equal(t, 3, p.Stats().Backtracks)
}

func TestProtectionRefusesOperator(t *testing.T) {
	w := newWorld()
	w.addMove()
	w.d.AddOperator(&domain.Operator{
		Head: term.NewPredicate(w.sym("!guard"), 0),
		Pre:  precond.True(),
		Del:  domain.Literal(),
		Add:  domain.Literal(domain.Protect(w.atom("at", "home"))),
		Cost: term.Number(0),
	})
	st := w.state(w.atom("at", "home"))
	root := tasks.Ordered(w.task(true, "!guard"), w.task(true, "!move", "home", "work"))

	p := New(w.d, st, root)
	drain(t, p)

	assert.Empty(t, p.Plans())
	assert.Equal(t, 1, p.Stats().Refused)
	assert.Zero(t, st.ProtectionCount(w.atom("at", "home")))
	assert.Equal(t, []string{"(at home)"}, w.atoms(st))
}

// addFlipFlop declares loop, which alternates two operators forever.
func (w *world) addFlipFlop() {
	at := w.sym("at")
	home, work := w.syms.Intern("home"), w.syms.Intern("work")
	for _, op := range []struct {
		name     string
		from, to term.Term
	}{{"!flip", home, work}, {"!flop", work, home}} {
		w.d.AddOperator(&domain.Operator{
			Head: term.NewPredicate(w.sym(op.name), 0),
			Pre:  precond.Atomic(term.NewPredicate(at, 0, op.from)),
			Del:  domain.Literal(domain.AtomEffect(term.NewPredicate(at, 0, op.from))),
			Add:  domain.Literal(domain.AtomEffect(term.NewPredicate(at, 0, op.to))),
			Cost: term.Number(1),
		})
	}
	loop := tasks.Atom{Head: term.NewPredicate(w.sym("loop"), 0)}
	w.d.AddMethod(&domain.Method{
		Head: term.NewPredicate(w.sym("loop"), 0),
		Branches: []domain.Branch{
			{
				Label: "flip",
				Pre:   precond.Atomic(term.NewPredicate(at, 0, home)),
				Sub:   tasks.Ordered(w.task(true, "!flip"), tasks.Leaf(loop)),
			},
			{
				Label: "flop",
				Pre:   precond.Atomic(term.NewPredicate(at, 0, work)),
				Sub:   tasks.Ordered(w.task(true, "!flop"), tasks.Leaf(loop)),
			},
		},
	})
}

func TestRecursionLimitAbortsCleanly(t *testing.T) {
	w := newWorld()
	w.addFlipFlop()
	st := w.state(w.atom("at", "home"), w.atom("visited", "home"))
	st.AddProtection(w.atom("visited", "home"))
	root := tasks.Ordered(w.task(false, "loop"))
	before := root.Format(w.d)
	rec := &recorder{}

	p := New(w.d, st, root, WithRecursionLimit(25), WithSink(rec))

	var err error
	for i := 0; i < 10000; i++ {
		var active bool
		active, err = p.Step()
		if !active {
			break
		}
	}
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRecursionLimit))
	var le *LimitError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, 25, le.Limit)
	assert.Zero(t, le.Plans)

	assert.Equal(t, []string{"(at home)", "(visited home)"}, w.atoms(st))
	assert.Equal(t, 1, st.ProtectionCount(w.atom("visited", "home")))
	assert.Equal(t, before, root.Format(w.d))
	assert.Empty(t, p.Plans())
	assert.False(t, p.IsActive())
	assert.Zero(t, p.Depth())
	assert.Equal(t, err, p.Err())
	assert.Equal(t, 26, p.Stats().MaxDepth)

	// The guard does not fire again.
	active, again := p.Step()
	assert.False(t, active)
	assert.NoError(t, again)
	assert.False(t, p.Run())
	assert.Len(t, rec.of(EventLimit), 1)
}

func TestRecursionLimitThroughSolve(t *testing.T) {
	w := newWorld()
	w.addFlipFlop()
	st := w.state(w.atom("at", "home"))
	p := New(w.d, st, tasks.Ordered(w.task(false, "loop")), WithRecursionLimit(8))

	plans, err := p.Solve(context.Background(), 0)
	assert.Empty(t, plans)
	assert.ErrorIs(t, err, ErrRecursionLimit)
	assert.Equal(t, []string{"(at home)"}, w.atoms(st))
}

func TestDeterministicEventStream(t *testing.T) {
	run := func() []Event {
		w := newWorld()
		w.addMove()
		w.addTravel()
		st := w.state(w.atom("at", "home"), w.atom("near", "home", "work"), w.atom("near", "work", "pub"))
		root := tasks.Unordered(w.task(false, "travel", "home", "work"), w.task(false, "travel", "work", "pub"))
		rec := &recorder{}
		drain(t, New(w.d, st, root, WithSink(rec), WithID("fixed")))
		return rec.events
	}
	first, second := run(), run()
	require.NotEmpty(t, first)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("event streams differ (-first +second):\n%s", diff)
	}
	for i, e := range first {
		assert.Equal(t, uint64(i+1), e.Seq)
		assert.Equal(t, "fixed", e.Planner)
	}
}

func TestFindNextAndSolve(t *testing.T) {
	w := newWorld()
	w.addMove()
	st := w.state(w.atom("at", "a"), w.atom("at", "b"))
	root := tasks.Ordered(tasks.Leaf(tasks.Atom{
		Head:      term.NewPredicate(w.sym("!move"), 1, term.Var(0), w.syms.Intern("c")),
		Primitive: true,
	}))
	p := New(w.d, st, root)

	first, err := p.FindNext(context.Background())
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, []string{"(!move a c)"}, steps(w, first))
	assert.True(t, p.IsActive())

	rest, err := p.Solve(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, []string{"(!move b c)"}, steps(w, rest[0]))

	none, err := p.FindNext(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, none)
}

func TestFindNextHonoursContext(t *testing.T) {
	w := newWorld()
	w.addFlipFlop()
	p := New(w.d, w.state(w.atom("at", "home")), tasks.Ordered(w.task(false, "loop")))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pl, err := p.FindNext(ctx)
	assert.Nil(t, pl)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, p.IsActive())
}

func TestRunStepsAndInspect(t *testing.T) {
	w := newWorld()
	w.addMove()
	w.addTravel()
	st := w.state(w.atom("at", "home"), w.atom("near", "home", "work"))
	p := New(w.d, st, tasks.Ordered(w.task(false, "travel", "home", "work")))

	frames := p.Inspect()
	require.Len(t, frames, 1)
	assert.Equal(t, "select", frames[0].PC)
	assert.Equal(t, "((travel home work))", frames[0].Chosen)

	active, err := p.RunSteps(5)
	require.NoError(t, err)
	assert.True(t, active)
	frames = p.Inspect()
	require.Len(t, frames, 2)
	assert.Equal(t, "(travel home work)", frames[0].Task)
	assert.Equal(t, "reduced", frames[0].PC)

	active, err = p.RunSteps(1000)
	require.NoError(t, err)
	assert.False(t, active)
	assert.Len(t, p.Plans(), 1)
	assert.Contains(t, p.Stats().Summary(), "travel/direct: satisfied=1 unsatisfied=0")
}

func TestCustomCost(t *testing.T) {
	w := newWorld()
	w.addMove()
	start := plan.NewNumericCost()
	start.Add(term.Number(10))
	p := New(w.d, w.state(w.atom("at", "home")), tasks.Ordered(w.task(true, "!move", "home", "work")), WithCost(start))
	drain(t, p)
	require.Len(t, p.Plans(), 1)
	assert.Equal(t, "11", p.Plans()[0].Cost.String())
}

func TestLimitIsLogged(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logging.InitializeWith(zap.New(core), logging.Options{})
	t.Cleanup(func() { logging.InitializeWith(nil, logging.Options{}) })

	w := newWorld()
	w.addFlipFlop()
	p := New(w.d, w.state(w.atom("at", "home")), tasks.Ordered(w.task(false, "loop")), WithRecursionLimit(4), WithID("p1"))
	_, err := p.RunSteps(1000)
	require.ErrorIs(t, err, ErrRecursionLimit)

	warns := logs.FilterLevelExact(zapcore.WarnLevel).All()
	require.Len(t, warns, 1)
	assert.Equal(t, "search", warns[0].LoggerName)
	assert.Contains(t, warns[0].Message, "recursion limit 4 reached")
	assert.Equal(t, "p1", warns[0].ContextMap()["planner"])

	rollback := logs.FilterLoggerName("state").All()
	require.Len(t, rollback, 1)
	assert.Equal(t, "state rolled back after abort", rollback[0].Message)
	assert.EqualValues(t, 1, rollback[0].ContextMap()["atoms"])
}
