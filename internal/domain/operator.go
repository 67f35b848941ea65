package domain

import (
	"htnplan/internal/precond"
	"htnplan/internal/state"
	"htnplan/internal/term"
)

// EffectKind is the variant of an Effect.
type EffectKind uint8

const (
	// EffectAtom adds or deletes one atom.
	EffectAtom EffectKind = iota
	// EffectProtection adds or releases a protection.
	EffectProtection
	// EffectForAll applies Body once per binding of Premise.
	EffectForAll
)

// Effect is one element of an operator's delete or add list.
type Effect struct {
	Kind    EffectKind
	Atom    term.Predicate
	Premise *precond.Expr
	Body    []Effect
}

// Effects is a delete or add list. When Var is non-negative the list is the
// value of that variable at apply time: a list of atoms written as lists
// (head arg...).
type Effects struct {
	Var   int
	Items []Effect
}

// Literal returns an effect list of fixed items.
func Literal(items ...Effect) Effects { return Effects{Var: -1, Items: items} }

// FromVar returns an effect list read from variable idx.
func FromVar(idx int) Effects { return Effects{Var: idx} }

// AtomEffect returns an atom effect.
func AtomEffect(p term.Predicate) Effect { return Effect{Kind: EffectAtom, Atom: p} }

// Protect returns a protection effect.
func Protect(p term.Predicate) Effect { return Effect{Kind: EffectProtection, Atom: p} }

// ForAllEffect returns an effect applying body for every binding of premise.
func ForAllEffect(premise *precond.Expr, body ...Effect) Effect {
	return Effect{Kind: EffectForAll, Premise: premise, Body: body}
}

// Operator achieves one primitive task.
type Operator struct {
	Head     term.Predicate
	Pre      *precond.Expr
	Del      Effects
	Add      Effects
	Cost     term.Term
	VarCount int
}

// Unify matches the operator head against a task head. It returns nil when
// they do not unify.
func (o *Operator) Unify(task term.Predicate) term.Binding {
	if task.Head != o.Head.Head {
		return nil
	}
	b, ok := o.Head.FindUnifier(task.Args)
	if !ok {
		return nil
	}
	return b
}

// Satisfiers starts enumerating the precondition bindings under the head
// unifier.
func (o *Operator) Satisfiers(st *state.State, unifier term.Binding) *precond.Iterator {
	return precond.Start(o.Pre, st, unifier, o.VarCount)
}

// Instance returns the ground head and cost for a full binding.
func (o *Operator) Instance(b term.Binding) (term.Predicate, term.Term) {
	return o.Head.Apply(b), term.Bind(o.Cost, b)
}

// Apply executes the delete list and then the add list against st, recording
// every change in d. Deleting a protected atom refuses the whole application:
// the partial changes are undone and Apply returns false.
func (o *Operator) Apply(b term.Binding, st *state.State, d *state.Delta) bool {
	d.Reset()
	for _, e := range o.Del.resolve(b, o.VarCount) {
		if !o.del(e, b, st, d) {
			st.Undo(d)
			d.Reset()
			return false
		}
	}
	for _, e := range o.Add.resolve(b, o.VarCount) {
		o.add(e, b, st, d)
	}
	return true
}

func (es Effects) resolve(b term.Binding, size int) []Effect {
	if es.Var < 0 {
		return es.Items
	}
	v := b.Get(es.Var)
	if !v.IsBound() {
		panic("domain: effect list variable is unbound")
	}
	elems := v.Elems()
	out := make([]Effect, len(elems))
	for i, el := range elems {
		out[i] = AtomEffect(term.ListToPredicate(el, size))
	}
	return out
}

func (o *Operator) del(e Effect, b term.Binding, st *state.State, d *state.Delta) bool {
	switch e.Kind {
	case EffectAtom:
		p := e.Atom.Apply(b)
		if st.IsProtected(p) {
			return false
		}
		if pos := st.Del(p); pos >= 0 {
			d.Deleted = append(d.Deleted, state.Removal{Atom: p, Pos: pos})
		}
	case EffectProtection:
		p := e.Atom.Apply(b)
		if st.DelProtection(p) {
			d.ProtectionsDeleted = append(d.ProtectionsDeleted, p)
		}
	case EffectForAll:
		for _, fb := range o.forAllBindings(e, b, st) {
			for _, inner := range e.Body {
				if !o.del(inner, fb, st, d) {
					return false
				}
			}
		}
	}
	return true
}

func (o *Operator) add(e Effect, b term.Binding, st *state.State, d *state.Delta) {
	switch e.Kind {
	case EffectAtom:
		p := e.Atom.Apply(b)
		if st.Add(p) {
			d.Added = append(d.Added, p)
		}
	case EffectProtection:
		p := e.Atom.Apply(b)
		st.AddProtection(p)
		d.ProtectionsAdded = append(d.ProtectionsAdded, p)
	case EffectForAll:
		for _, fb := range o.forAllBindings(e, b, st) {
			for _, inner := range e.Body {
				o.add(inner, fb, st, d)
			}
		}
	}
}

// forAllBindings collects every premise binding before any change is made, so
// the effect does not observe its own mutations.
func (o *Operator) forAllBindings(e Effect, b term.Binding, st *state.State) []term.Binding {
	it := precond.Start(e.Premise, st, b, o.VarCount)
	var out []term.Binding
	for fb := it.NextBinding(st); fb != nil; fb = it.NextBinding(st) {
		term.Merge(fb, b)
		out = append(out, fb)
	}
	return out
}
