package precond

import (
	"slices"

	"htnplan/internal/state"
	"htnplan/internal/term"
)

// Iterator is the runtime form of an Expr for one rule invocation.
//
// The life cycle is Compile, Reset, any number of Bind calls, then
// NextBinding until it returns nil. Reset puts the iterator back in exactly
// the state it had after the first Reset, so a branch can be re-entered after
// a backtrack.
type Iterator struct {
	kind Kind
	size int

	// atomic
	pattern term.Predicate
	bound   term.Predicate
	scan    *state.Iterator

	subs  []*Iterator
	outer term.Binding

	// and
	acc     []term.Binding
	level   int
	started bool

	// or
	which int

	// nil, not, forall
	done bool

	first     bool
	firstCall bool

	sortBy    Comparator
	sorted    []term.Binding
	sortPos   int
	sortReady bool
}

// Compile builds the runtime iterator for e, substituting unifier (the head
// binding of the rule) into every atom. size is the rule's variable count.
// The result must be Reset before use.
func Compile(e *Expr, unifier term.Binding, size int) *Iterator {
	it := &Iterator{
		kind:   e.Kind,
		size:   size,
		first:  e.First,
		sortBy: e.SortBy,
	}
	switch e.Kind {
	case KindAtomic:
		p := e.Atom
		if unifier != nil {
			p = p.Apply(unifier)
		}
		p.VarCount = size
		it.pattern = p
	case KindAnd, KindOr, KindNot, KindForAll:
		it.subs = make([]*Iterator, len(e.Args))
		for i, a := range e.Args {
			it.subs[i] = Compile(a, unifier, size)
		}
	}
	return it
}

// Start compiles e and resets it against st.
func Start(e *Expr, st *state.State, unifier term.Binding, size int) *Iterator {
	it := Compile(e, unifier, size)
	it.Reset(st)
	return it
}

// Reset reinitializes every index and buffer.
func (it *Iterator) Reset(st *state.State) {
	it.firstCall = true
	it.sorted = nil
	it.sortPos = 0
	it.sortReady = false
	it.done = false
	it.outer = nil

	switch it.kind {
	case KindAtomic:
		it.bound = it.pattern
		it.scan = nil
	case KindAnd:
		it.acc = nil
		it.level = 0
		it.started = false
	case KindOr:
		it.which = 0
		for _, s := range it.subs {
			s.Reset(st)
		}
	case KindNot, KindForAll:
		it.subs[0].Reset(st)
	}
}

// Bind substitutes b into the iterator. It is called after Reset and before
// the first NextBinding.
func (it *Iterator) Bind(b term.Binding) {
	switch it.kind {
	case KindAtomic:
		it.bound = it.bound.Apply(b)
	case KindAnd, KindForAll:
		if it.outer == nil {
			it.outer = term.NewBinding(it.size)
		}
		term.Merge(it.outer, b)
		if it.kind == KindForAll {
			it.subs[0].Bind(b)
		}
	case KindOr:
		for _, s := range it.subs {
			s.Bind(b)
		}
	case KindNot:
		it.subs[0].Bind(b)
	}
}

// NextBinding returns the next satisfying binding, or nil when exhausted.
func (it *Iterator) NextBinding(st *state.State) term.Binding {
	if it.first {
		if !it.firstCall {
			return nil
		}
		it.firstCall = false
	}
	if it.sortBy == nil {
		return it.next(st)
	}
	if !it.sortReady {
		for b := it.next(st); b != nil; b = it.next(st) {
			it.sorted = append(it.sorted, b)
		}
		slices.SortStableFunc(it.sorted, it.sortBy)
		it.sortReady = true
	}
	if it.sortPos >= len(it.sorted) {
		return nil
	}
	b := it.sorted[it.sortPos]
	it.sortPos++
	return b.Clone()
}

func (it *Iterator) next(st *state.State) term.Binding {
	switch it.kind {
	case KindNil:
		if it.done {
			return nil
		}
		it.done = true
		return term.NewBinding(it.size)
	case KindAtomic:
		if it.scan == nil {
			it.scan = st.Iterator(it.bound)
		}
		return it.scan.Next(it.bound)
	case KindAnd:
		return it.nextConjunction(st)
	case KindOr:
		for it.which < len(it.subs) {
			if b := it.subs[it.which].NextBinding(st); b != nil {
				return b
			}
			it.which++
		}
		return nil
	case KindNot:
		if it.done {
			return nil
		}
		it.done = true
		satisfied := false
		for it.subs[0].NextBinding(st) != nil {
			satisfied = true
		}
		if satisfied {
			return nil
		}
		return term.NewBinding(it.size)
	case KindForAll:
		return it.nextForAll(st)
	}
	return nil
}

func (it *Iterator) base() term.Binding {
	if it.outer != nil {
		return it.outer
	}
	return term.NewBinding(it.size)
}

// nextConjunction walks the conjuncts depth first. acc[i] is the binding
// accumulated once conjuncts 0..i are satisfied; when conjunct i runs dry the
// walk backs up to i-1 for its next binding.
func (it *Iterator) nextConjunction(st *state.State) term.Binding {
	n := len(it.subs)
	if !it.started {
		it.started = true
		it.acc = make([]term.Binding, n)
		it.subs[0].Reset(st)
		it.subs[0].Bind(it.base())
	}
	for it.level >= 0 {
		b := it.subs[it.level].NextBinding(st)
		if b == nil {
			it.level--
			continue
		}
		prev := it.base()
		if it.level > 0 {
			prev = it.acc[it.level-1]
		}
		merged := make(term.Binding, it.size)
		copy(merged, b)
		term.Merge(merged, prev)
		it.acc[it.level] = merged
		if it.level == n-1 {
			return merged.Clone()
		}
		it.level++
		it.subs[it.level].Reset(st)
		it.subs[it.level].Bind(merged)
	}
	return nil
}

func (it *Iterator) nextForAll(st *state.State) term.Binding {
	if it.done {
		return nil
	}
	it.done = true
	premise, consequence := it.subs[0], it.subs[1]
	for b := premise.NextBinding(st); b != nil; b = premise.NextBinding(st) {
		full := make(term.Binding, it.size)
		copy(full, b)
		if it.outer != nil {
			term.Merge(full, it.outer)
		}
		consequence.Reset(st)
		consequence.Bind(full)
		if consequence.NextBinding(st) == nil {
			return nil
		}
	}
	return term.NewBinding(it.size)
}

// Collect drains it and returns every remaining binding.
func Collect(it *Iterator, st *state.State) []term.Binding {
	var out []term.Binding
	for b := it.NextBinding(st); b != nil; b = it.NextBinding(st) {
		out = append(out, b)
	}
	return out
}

// Holds reports whether e has at least one satisfier under b.
func Holds(e *Expr, st *state.State, b term.Binding, size int) bool {
	it := Start(e, st, b, size)
	return it.NextBinding(st) != nil
}
