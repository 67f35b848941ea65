// Package precond evaluates rule preconditions lazily against a world state.
//
// A precondition is described once by a static Expr, shared read-only by every
// planner using the domain. Compile turns it into a runtime Iterator bound to
// one rule invocation; the iterator yields satisfying bindings one at a time
// and can be reset to re-enumerate them.
package precond

import (
	"cmp"
	"fmt"
	"strings"

	"htnplan/internal/term"
)

// Kind is the variant of an Expr.
type Kind uint8

const (
	KindNil Kind = iota
	KindAtomic
	KindAnd
	KindOr
	KindNot
	KindForAll
)

func (k Kind) String() string {
	switch k {
	case KindNil:
		return "nil"
	case KindAtomic:
		return "atomic"
	case KindAnd:
		return "and"
	case KindOr:
		return "or"
	case KindNot:
		return "not"
	case KindForAll:
		return "forall"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Comparator orders two satisfying bindings for sort-by preconditions.
type Comparator func(a, b term.Binding) int

// Expr is a static precondition.
//
// Atomic uses Atom. And and Or use Args. Not uses Args[0]. ForAll uses
// Args[0] as the premise and Args[1] as the consequence. Any node may be
// marked First (yield at most one binding) or carry a SortBy comparator.
type Expr struct {
	Kind   Kind
	Atom   term.Predicate
	Args   []*Expr
	First  bool
	SortBy Comparator
}

// True is the always-satisfied precondition.
func True() *Expr { return &Expr{Kind: KindNil} }

// Atomic tests a single atom.
func Atomic(p term.Predicate) *Expr { return &Expr{Kind: KindAtomic, Atom: p} }

// And is a conjunction. An empty conjunction is True.
func And(args ...*Expr) *Expr {
	if len(args) == 0 {
		return True()
	}
	if len(args) == 1 {
		return args[0]
	}
	return &Expr{Kind: KindAnd, Args: args}
}

// Or is a disjunction.
func Or(args ...*Expr) *Expr { return &Expr{Kind: KindOr, Args: args} }

// Not is negation as failure.
func Not(e *Expr) *Expr { return &Expr{Kind: KindNot, Args: []*Expr{e}} }

// ForAll holds when every binding of premise makes consequence true.
func ForAll(premise, consequence *Expr) *Expr {
	return &Expr{Kind: KindForAll, Args: []*Expr{premise, consequence}}
}

// WithFirst returns a copy of e that yields at most one binding.
func (e *Expr) WithFirst() *Expr {
	c := *e
	c.First = true
	return &c
}

// WithSort returns a copy of e whose bindings are sorted before replay.
func (e *Expr) WithSort(by Comparator) *Expr {
	c := *e
	c.SortBy = by
	return &c
}

// ByNumber orders bindings by the numeric value of variable idx. Bindings
// where the variable is not a number sort last.
func ByNumber(idx int, descending bool) Comparator {
	return func(a, b term.Binding) int {
		x, y := a.Get(idx), b.Get(idx)
		switch {
		case !x.IsNumber() && !y.IsNumber():
			return 0
		case !x.IsNumber():
			return 1
		case !y.IsNumber():
			return -1
		}
		if descending {
			return cmp.Compare(y.Value(), x.Value())
		}
		return cmp.Compare(x.Value(), y.Value())
	}
}

// Format renders e with names for symbol lookup.
func (e *Expr) Format(names term.Namer) string {
	var s string
	switch e.Kind {
	case KindNil:
		s = "()"
	case KindAtomic:
		s = e.Atom.Format(names)
	case KindNot:
		s = "(not " + e.Args[0].Format(names) + ")"
	case KindForAll:
		s = "(forall " + e.Args[0].Format(names) + " " + e.Args[1].Format(names) + ")"
	default:
		parts := make([]string, len(e.Args))
		for i, a := range e.Args {
			parts[i] = a.Format(names)
		}
		s = "(" + e.Kind.String() + " " + strings.Join(parts, " ") + ")"
	}
	if e.First {
		s = "(:first " + s + ")"
	}
	if e.SortBy != nil {
		s = "(:sort-by " + s + ")"
	}
	return s
}
