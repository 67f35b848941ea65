// Package tasks implements the task network: task atoms and the ordered or
// unordered trees of tasks the planner still has to accomplish.
package tasks

import (
	"strings"

	"htnplan/internal/term"
)

// Atom is one task, primitive or compound, possibly carrying variables.
type Atom struct {
	Head      term.Predicate
	Primitive bool
	Immediate bool
}

// Bind returns the atom with b substituted into its head.
func (a Atom) Bind(b term.Binding) Atom {
	return Atom{Head: a.Head.Apply(b), Primitive: a.Primitive, Immediate: a.Immediate}
}

// Format renders the atom, marking primitive and immediate tasks.
func (a Atom) Format(names term.Namer) string {
	s := a.Head.Format(names)
	if a.Immediate {
		s = "(:immediate " + s + ")"
	}
	return s
}

// content is what Replace swaps in and out of a node.
type content struct {
	atom    *Atom
	subs    []*List
	ordered bool
	saved   *content
}

// List is a node of a task network. A node is either atomic (one task),
// composite (ordered or unordered children) or empty.
type List struct {
	content
}

// Empty returns a new empty list.
func Empty() *List { return &List{} }

// Leaf returns an atomic list holding a.
func Leaf(a Atom) *List { return &List{content{atom: &a}} }

// Ordered returns a composite whose children must be done in order.
func Ordered(subs ...*List) *List { return &List{content{subs: subs, ordered: true}} }

// Unordered returns a composite whose children may be done in any order.
func Unordered(subs ...*List) *List { return &List{content{subs: subs}} }

// IsAtomic reports whether the node holds a single task.
func (l *List) IsAtomic() bool { return l.atom != nil }

// Atom returns the task of an atomic node.
func (l *List) Atom() Atom {
	if l.atom == nil {
		panic("tasks: Atom of non-atomic list")
	}
	return *l.atom
}

// IsOrdered reports whether a composite node is ordered.
func (l *List) IsOrdered() bool { return l.ordered }

// Children returns the children of a composite node.
func (l *List) Children() []*List { return l.subs }

// IsEmpty reports whether no task remains under l.
func (l *List) IsEmpty() bool {
	if l.atom != nil {
		return false
	}
	for _, s := range l.subs {
		if !s.IsEmpty() {
			return false
		}
	}
	return true
}

// Len counts the task atoms remaining under l.
func (l *List) Len() int {
	if l.atom != nil {
		return 1
	}
	n := 0
	for _, s := range l.subs {
		n += s.Len()
	}
	return n
}

// Runnable returns the atomic nodes that may be worked on next. In an ordered
// node only the first non-empty child contributes. In an unordered node every
// child contributes, unless a primitive immediate task is found, which then
// is the only candidate.
func (l *List) Runnable() []*List {
	var out []*List
	if imm := l.collect(&out); imm != nil {
		return []*List{imm}
	}
	return out
}

func (l *List) collect(out *[]*List) *List {
	if l.atom != nil {
		if l.atom.Primitive && l.atom.Immediate {
			return l
		}
		*out = append(*out, l)
		return nil
	}
	if l.ordered {
		for _, s := range l.subs {
			if !s.IsEmpty() {
				return s.collect(out)
			}
		}
		return nil
	}
	for _, s := range l.subs {
		if imm := s.collect(out); imm != nil {
			return imm
		}
	}
	return nil
}

// Replace swaps the content of l for the content of with, keeping the old
// content for Undo. with itself is not modified.
func (l *List) Replace(with *List) {
	old := l.content
	l.content = content{atom: with.atom, subs: with.subs, ordered: with.ordered}
	l.saved = &old
}

// Undo restores the content saved by the matching Replace. Calling it without
// an outstanding Replace is a broken invariant and panics.
func (l *List) Undo() {
	if l.saved == nil {
		panic("tasks: Undo without Replace")
	}
	l.content = *l.saved
}

// Replaced reports whether l has an outstanding Replace.
func (l *List) Replaced() bool { return l.saved != nil }

// Bind copies the tree with b substituted into every atom.
func (l *List) Bind(b term.Binding) *List {
	if l.atom != nil {
		return Leaf(l.atom.Bind(b))
	}
	subs := make([]*List, len(l.subs))
	for i, s := range l.subs {
		subs[i] = s.Bind(b)
	}
	return &List{content{subs: subs, ordered: l.ordered}}
}

// Atoms returns the task atoms under l, depth first.
func (l *List) Atoms() []Atom {
	if l.atom != nil {
		return []Atom{*l.atom}
	}
	var out []Atom
	for _, s := range l.subs {
		out = append(out, s.Atoms()...)
	}
	return out
}

// Format renders the tree.
func (l *List) Format(names term.Namer) string {
	if l.atom != nil {
		return l.atom.Format(names)
	}
	if len(l.subs) == 0 {
		return "()"
	}
	parts := make([]string, len(l.subs))
	for i, s := range l.subs {
		parts[i] = s.Format(names)
	}
	if l.ordered {
		return "(" + strings.Join(parts, " ") + ")"
	}
	return "(:unordered " + strings.Join(parts, " ") + ")"
}
