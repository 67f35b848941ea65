package state

import "htnplan/internal/term"

// Iterator enumerates the unifiers of a query predicate in two phases:
// stored atoms in insertion order, then axioms in declaration order.
//
// The atom phase walks the live atom list by position. Work done between two
// calls to Next must have been undone by then, which the search engine
// guarantees.
type Iterator struct {
	st       *State
	pos      int
	inAxioms bool

	axioms  []Axiom
	ax      int
	unifier term.Binding
	branch  int
	found   bool
	sat     Satisfier

	all []term.Predicate
}

// Next returns the next unifier for p, or nil when there are no more. p may
// be more instantiated than the predicate the iterator was created for.
func (it *Iterator) Next(p term.Predicate) term.Binding {
	if !it.inAxioms {
		if b := it.nextAtom(p); b != nil {
			return b
		}
		it.inAxioms = true
		if it.st.axioms != nil && !p.IsVar() {
			it.axioms = it.st.axioms.Axioms(p.Head)
		}
	}
	return it.nextDerived(p)
}

func (it *Iterator) nextAtom(p term.Predicate) term.Binding {
	if p.IsVar() {
		return it.nextAnyAtom(p)
	}
	l, ok := it.st.atoms[p.Head]
	if !ok {
		return nil
	}
	for it.pos < len(l.items) {
		atom := l.items[it.pos]
		it.pos++
		if b, ok := p.FindUnifier(atom.Args); ok {
			return b
		}
	}
	return nil
}

// nextAnyAtom serves a variable-headed query: every stored atom matches, in
// ascending head order. The atoms are snapshotted on the first call.
func (it *Iterator) nextAnyAtom(p term.Predicate) term.Binding {
	if it.all == nil {
		it.all = it.st.Atoms()
	}
	if it.pos < len(it.all) {
		atom := it.all[it.pos]
		it.pos++
		b, _ := p.FindUnifier(atom.ToList())
		return b
	}
	return nil
}

func (it *Iterator) nextDerived(p term.Predicate) term.Binding {
	for it.ax < len(it.axioms) {
		ax := it.axioms[it.ax]
		if it.sat == nil {
			if it.branch == 0 && !it.found {
				u, ok := ax.Head().FindUnifier(p.Args)
				if !ok {
					it.nextAxiom()
					continue
				}
				it.unifier = u
			}
			it.sat = ax.Satisfier(it.st, it.unifier, it.branch)
		}

		for nb := it.sat.NextBinding(it.st); nb != nil; nb = it.sat.NextBinding(it.st) {
			term.Merge(nb, it.unifier)
			ground := ax.Head().Apply(nb)
			if b, ok := p.FindUnifier(ground.Args); ok {
				it.found = true
				return b
			}
		}

		it.sat = nil
		it.branch++
		if it.found || it.branch >= ax.Branches() {
			it.nextAxiom()
		}
	}
	return nil
}

func (it *Iterator) nextAxiom() {
	it.ax++
	it.branch = 0
	it.found = false
	it.sat = nil
	it.unifier = nil
}
