package domain

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"htnplan/internal/precond"
	"htnplan/internal/state"
	"htnplan/internal/tasks"
	"htnplan/internal/term"
)

type fixture struct {
	d    *Domain
	syms *term.SymbolTable
}

func newFixture() *fixture {
	syms := term.NewSymbolTable()
	return &fixture{d: New("test", syms), syms: syms}
}

func (f *fixture) sym(name string) int { return f.syms.Intern(name).Index() }

func (f *fixture) c(name string) term.Term { return f.syms.Intern(name) }

func (f *fixture) atom(head string, args ...string) term.Predicate {
	ts := make([]term.Term, len(args))
	for i, a := range args {
		ts[i] = f.c(a)
	}
	return term.NewPredicate(f.sym(head), 0, ts...)
}

func (f *fixture) atoms(st *state.State) []string {
	var out []string
	for _, p := range st.Atoms() {
		out = append(out, p.Format(f.d))
	}
	return out
}

// moveOperator is (!move ?a ?b): pre at(?a), del at(?a), add at(?b), cost 1.
func (f *fixture) moveOperator() *Operator {
	at := f.sym("at")
	return &Operator{
		Head:     term.NewPredicate(f.sym("!move"), 2, term.Var(0), term.Var(1)),
		Pre:      precond.Atomic(term.NewPredicate(at, 2, term.Var(0))),
		Del:      Literal(AtomEffect(term.NewPredicate(at, 2, term.Var(0)))),
		Add:      Literal(AtomEffect(term.NewPredicate(at, 2, term.Var(1)))),
		Cost:     term.Number(1),
		VarCount: 2,
	}
}

func TestOperatorApplyAndUndo(t *testing.T) {
	f := newFixture()
	op := f.moveOperator()
	f.d.AddOperator(op)
	st := f.d.NewState()
	st.Add(f.atom("at", "home"))

	b := op.Unify(f.atom("!move", "home", "work"))
	require.NotNil(t, b)
	sat := op.Satisfiers(st, b)
	nb := sat.NextBinding(st)
	require.NotNil(t, nb)
	term.Merge(nb, b)

	var d state.Delta
	require.True(t, op.Apply(nb, st, &d))
	assert.Equal(t, []string{"(at work)"}, f.atoms(st))
	assert.Len(t, d.Deleted, 1)
	assert.Len(t, d.Added, 1)

	head, cost := op.Instance(nb)
	assert.Equal(t, "(!move home work)", head.Format(f.d))
	assert.Equal(t, 1.0, cost.Value())

	st.Undo(&d)
	assert.Equal(t, []string{"(at home)"}, f.atoms(st))
}

func TestOperatorUnifyRejectsMismatch(t *testing.T) {
	f := newFixture()
	op := f.moveOperator()
	assert.Nil(t, op.Unify(f.atom("!move", "home")))
	assert.Nil(t, op.Unify(f.atom("at", "home", "work")))
}

func TestProtectedDeleteRefusesApplication(t *testing.T) {
	f := newFixture()
	at := f.sym("at")
	op := &Operator{
		Head: term.NewPredicate(f.sym("!swap"), 0),
		Pre:  precond.True(),
		Del: Literal(
			AtomEffect(f.atom("at", "work")),
			AtomEffect(term.NewPredicate(at, 0, f.c("home"))),
		),
		Add:  Literal(AtomEffect(f.atom("at", "office"))),
		Cost: term.Number(0),
	}
	st := f.d.NewState()
	st.Add(f.atom("at", "work"))
	st.Add(f.atom("at", "home"))
	st.AddProtection(f.atom("at", "home"))

	var d state.Delta
	assert.False(t, op.Apply(term.NewBinding(0), st, &d))
	assert.True(t, d.Empty())
	assert.Equal(t, []string{"(at work)", "(at home)"}, f.atoms(st))
}

func TestProtectionEffects(t *testing.T) {
	f := newFixture()
	op := &Operator{
		Head: term.NewPredicate(f.sym("!guard"), 0),
		Pre:  precond.True(),
		Del:  Literal(Protect(f.atom("at", "home"))),
		Add:  Literal(Protect(f.atom("at", "work"))),
		Cost: term.Number(0),
	}
	st := f.d.NewState()
	st.AddProtection(f.atom("at", "home"))

	var d state.Delta
	require.True(t, op.Apply(term.NewBinding(0), st, &d))
	assert.False(t, st.IsProtected(f.atom("at", "home")))
	assert.True(t, st.IsProtected(f.atom("at", "work")))

	st.Undo(&d)
	assert.True(t, st.IsProtected(f.atom("at", "home")))
	assert.False(t, st.IsProtected(f.atom("at", "work")))
}

func TestForAllEffect(t *testing.T) {
	f := newFixture()
	dirty := f.sym("dirty")
	clean := f.sym("clean")
	// (!wash): forall dirty(?x) delete dirty(?x), add clean(?x)
	premise := precond.Atomic(term.NewPredicate(dirty, 1, term.Var(0)))
	op := &Operator{
		Head:     term.NewPredicate(f.sym("!wash"), 1),
		Pre:      precond.True(),
		Del:      Literal(ForAllEffect(premise, AtomEffect(term.NewPredicate(dirty, 1, term.Var(0))))),
		Add:      Literal(ForAllEffect(premise, AtomEffect(term.NewPredicate(clean, 1, term.Var(0))))),
		Cost:     term.Number(0),
		VarCount: 1,
	}
	st := f.d.NewState()
	st.Add(f.atom("dirty", "cup"))
	st.Add(f.atom("dirty", "plate"))

	var d state.Delta
	require.True(t, op.Apply(term.NewBinding(1), st, &d))
	// The add list runs after the deletes, so no dirty atoms remain to drive it.
	assert.Empty(t, f.atoms(st))

	st.Undo(&d)
	assert.Equal(t, []string{"(dirty cup)", "(dirty plate)"}, f.atoms(st))
}

func TestForAllEffectAddsFromUntouchedPremise(t *testing.T) {
	f := newFixture()
	item := f.sym("item")
	packed := f.sym("packed")
	op := &Operator{
		Head:     term.NewPredicate(f.sym("!pack"), 1),
		Pre:      precond.True(),
		Del:      Literal(),
		Add:      Literal(ForAllEffect(precond.Atomic(term.NewPredicate(item, 1, term.Var(0))), AtomEffect(term.NewPredicate(packed, 1, term.Var(0))))),
		Cost:     term.Number(0),
		VarCount: 1,
	}
	st := f.d.NewState()
	st.Add(f.atom("item", "cup"))
	st.Add(f.atom("item", "plate"))

	var d state.Delta
	require.True(t, op.Apply(term.NewBinding(1), st, &d))
	assert.Len(t, d.Added, 2)
	assert.True(t, st.Contains(f.atom("packed", "plate")))
}

func TestVariableEffectList(t *testing.T) {
	f := newFixture()
	op := &Operator{
		Head:     term.NewPredicate(f.sym("!assert"), 1, term.Var(0)),
		Pre:      precond.True(),
		Del:      Literal(),
		Add:      FromVar(0),
		Cost:     term.Number(0),
		VarCount: 1,
	}
	facts := term.List(
		term.List(f.c("at"), f.c("home")),
		term.List(f.c("road"), f.c("home"), f.c("work")),
	)
	st := f.d.NewState()
	var d state.Delta
	require.True(t, op.Apply(term.Binding{facts}, st, &d))
	assert.Equal(t, []string{"(at home)", "(road home work)"}, f.atoms(st))
}

// reachableDomain declares reachable(?x) with a base axiom at(?x) and a
// recursive axiom reachable(?y) & road(?y, ?x).
func reachableDomain(f *fixture, recursiveFirst bool) {
	reach, at, road := f.sym("reachable"), f.sym("at"), f.sym("road")
	base := &Axiom{
		Predicate: term.NewPredicate(reach, 1, term.Var(0)),
		Body: []AxiomBranch{{
			Label: "base",
			Pre:   precond.Atomic(term.NewPredicate(at, 1, term.Var(0))),
		}},
		VarCount: 1,
	}
	conj := []*precond.Expr{
		precond.Atomic(term.NewPredicate(reach, 2, term.Var(1))),
		precond.Atomic(term.NewPredicate(road, 2, term.Var(1), term.Var(0))),
	}
	if recursiveFirst {
		conj[0], conj[1] = conj[1], conj[0]
	}
	step := &Axiom{
		Predicate: term.NewPredicate(reach, 2, term.Var(0)),
		Body:      []AxiomBranch{{Label: "step", Pre: precond.And(conj...)}},
		VarCount:  2,
	}
	f.d.AddAxiom(base)
	f.d.AddAxiom(step)
}

func TestAxiomDerivation(t *testing.T) {
	f := newFixture()
	reachableDomain(f, false)
	st := f.d.NewState()
	st.Add(f.atom("at", "a"))
	st.Add(f.atom("road", "a", "b"))

	q := term.NewPredicate(f.sym("reachable"), 1, term.Var(0))
	it := st.Iterator(q)

	first := it.Next(q)
	require.NotNil(t, first)
	assert.Equal(t, "a", term.FormatTerm(first[0], f.d))

	second := it.Next(q)
	require.NotNil(t, second)
	assert.Equal(t, "b", term.FormatTerm(second[0], f.d))
}

func TestAxiomDerivationTerminatesWhenRoadFirst(t *testing.T) {
	f := newFixture()
	reachableDomain(f, true)
	st := f.d.NewState()
	st.Add(f.atom("at", "a"))
	st.Add(f.atom("road", "a", "b"))
	st.Add(f.atom("road", "b", "c"))
	st.Add(f.atom("road", "x", "y"))

	q := term.NewPredicate(f.sym("reachable"), 1, term.Var(0))
	var got []string
	it := st.Iterator(q)
	for b := it.Next(q); b != nil; b = it.Next(q) {
		got = append(got, term.FormatTerm(b[0], f.d))
	}
	if diff := cmp.Diff([]string{"a", "b", "c"}, got); diff != "" {
		t.Errorf("reachable (-want +got):\n%s", diff)
	}

	assert.True(t, precond.Holds(precond.Atomic(f.atom("reachable", "c")), st, nil, 0))
	assert.False(t, precond.Holds(precond.Atomic(f.atom("reachable", "y")), st, nil, 0))
}

func TestAxiomFallsThroughRejectedBranch(t *testing.T) {
	f := newFixture()
	same, at, road := f.sym("same"), f.sym("at"), f.sym("road")
	f.d.AddAxiom(&Axiom{
		Predicate: term.NewPredicate(same, 2, term.Var(0), term.Var(1)),
		Body: []AxiomBranch{
			{Label: "road", Pre: precond.Atomic(term.NewPredicate(road, 2, term.Var(0), term.Var(1)))},
			{Label: "both", Pre: precond.And(
				precond.Atomic(term.NewPredicate(at, 2, term.Var(0))),
				precond.Atomic(term.NewPredicate(at, 2, term.Var(1))),
			)},
		},
		VarCount: 2,
	})
	st := f.d.NewState()
	st.Add(f.atom("road", "a", "b"))
	st.Add(f.atom("at", "c"))

	q := term.NewPredicate(same, 1, term.Var(0), term.Var(0))
	var got []string
	it := st.Iterator(q)
	for b := it.Next(q); b != nil; b = it.Next(q) {
		got = append(got, term.FormatTerm(b[0], f.d))
	}
	assert.Equal(t, []string{"c"}, got)
	assert.True(t, precond.Holds(precond.Atomic(f.atom("same", "c", "c")), st, nil, 0))
	assert.False(t, precond.Holds(precond.Atomic(f.atom("same", "a", "a")), st, nil, 0))
}

func TestMethodUnifyAndBranches(t *testing.T) {
	f := newFixture()
	near := f.sym("near")
	m := &Method{
		Head: term.NewPredicate(f.sym("travel"), 2, term.Var(0), term.Var(1)),
		Branches: []Branch{{
			Label: "direct",
			Pre:   precond.Atomic(term.NewPredicate(near, 2, term.Var(0), term.Var(1))),
			Sub:   tasks.Ordered(),
		}},
		VarCount: 2,
	}
	st := f.d.NewState()
	st.Add(f.atom("near", "home", "work"))

	b := m.Unify(f.atom("travel", "home", "work"))
	require.NotNil(t, b)
	assert.NotNil(t, m.Satisfiers(st, b, 0).NextBinding(st))

	b = m.Unify(f.atom("travel", "work", "home"))
	require.NotNil(t, b)
	assert.Nil(t, m.Satisfiers(st, b, 0).NextBinding(st))
}

func TestValidate(t *testing.T) {
	f := newFixture()
	f.d.AddOperator(f.moveOperator())
	m := &Method{
		Head: term.NewPredicate(f.sym("travel"), 2, term.Var(0), term.Var(1)),
		Branches: []Branch{{
			Label: "direct",
			Pre:   precond.True(),
			Sub: tasks.Ordered(
				tasks.Leaf(tasks.Atom{Head: term.NewPredicate(f.sym("!move"), 2, term.Var(0), term.Var(1)), Primitive: true}),
				tasks.Leaf(tasks.Atom{Head: term.NewPredicate(f.sym("celebrate"), 2)}),
			),
		}},
		VarCount: 2,
	}
	f.d.AddMethod(m)

	err := f.d.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUndefinedTask))
	assert.Contains(t, err.Error(), "celebrate")

	stats := f.d.Stats()
	assert.Equal(t, 1, stats.Operators)
	assert.Equal(t, 1, stats.Methods)
	assert.Equal(t, 1, stats.Branches)
}

func TestUnknownSymbolPanics(t *testing.T) {
	f := newFixture()
	assert.Panics(t, func() { f.d.Operators(42) })
}
