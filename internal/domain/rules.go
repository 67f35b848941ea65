package domain

import (
	"htnplan/internal/precond"
	"htnplan/internal/state"
	"htnplan/internal/tasks"
	"htnplan/internal/term"
)

// Branch is one alternative of a method: a label, a precondition and the task
// network the method decomposes into when the precondition holds.
type Branch struct {
	Label string
	Pre   *precond.Expr
	Sub   *tasks.List
}

// Method decomposes a compound task. Branches are tried in order and the
// first branch whose precondition yields a binding wins.
type Method struct {
	Head     term.Predicate
	Branches []Branch
	VarCount int
}

// Unify matches the method head against a task head.
func (m *Method) Unify(task term.Predicate) term.Binding {
	if task.Head != m.Head.Head {
		return nil
	}
	b, ok := m.Head.FindUnifier(task.Args)
	if !ok {
		return nil
	}
	return b
}

// Satisfiers starts enumerating the bindings of branch k.
func (m *Method) Satisfiers(st *state.State, unifier term.Binding, k int) *precond.Iterator {
	return precond.Start(m.Branches[k].Pre, st, unifier, m.VarCount)
}

// AxiomBranch is one alternative of an axiom.
type AxiomBranch struct {
	Label string
	Pre   *precond.Expr
}

// Axiom derives atoms of its head predicate from the world state.
type Axiom struct {
	Predicate term.Predicate
	Body      []AxiomBranch
	VarCount  int
}

var _ state.Axiom = (*Axiom)(nil)

// Head implements state.Axiom.
func (a *Axiom) Head() term.Predicate { return a.Predicate }

// Branches implements state.Axiom.
func (a *Axiom) Branches() int { return len(a.Body) }

// Satisfier implements state.Axiom.
func (a *Axiom) Satisfier(st *state.State, unifier term.Binding, branch int) state.Satisfier {
	return precond.Start(a.Body[branch].Pre, st, unifier, a.VarCount)
}
