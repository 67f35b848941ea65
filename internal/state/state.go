// Package state holds the planner's world state: the set of ground atoms,
// reference-counted protections, and the axioms that derive further atoms on
// demand.
//
// Every mutation is invertible. Operators capture their changes in a Delta and
// the search engine hands it back to Undo on backtrack. Independently, a
// journal can be switched on so that Reset rolls back everything done since
// the search started.
package state

import (
	"fmt"
	"sort"

	"htnplan/internal/term"
)

// Satisfier lazily enumerates the bindings that make some condition true.
// NextBinding returns nil once exhausted.
type Satisfier interface {
	NextBinding(st *State) term.Binding
}

// Axiom derives atoms whose head is Head().Head from the state. Branches are
// tried in order and the first branch that yields a binding wins.
type Axiom interface {
	Head() term.Predicate
	Branches() int
	Satisfier(st *State, unifier term.Binding, branch int) Satisfier
}

// AxiomTable looks up the axioms for a predicate symbol, in declaration order.
type AxiomTable interface {
	Axioms(head int) []Axiom
}

// atomList keeps the atoms of one head symbol in insertion order.
type atomList struct {
	items   []term.Predicate
	members map[string]struct{}
}

func (l *atomList) indexOf(key string) int {
	for i, p := range l.items {
		if p.Key() == key {
			return i
		}
	}
	return -1
}

type protection struct {
	atom  term.Predicate
	count int
}

// State is the world state of one planner. It is not safe for concurrent use.
type State struct {
	atoms       map[int]*atomList
	protections map[int][]*protection
	axioms      AxiomTable
	size        int

	logging    bool
	journal    []Change
	pendingDel map[string]int
	pendingAdd map[string]int
}

// New returns an empty state that consults axioms for derived predicates.
// axioms may be nil.
func New(axioms AxiomTable) *State {
	return &State{
		atoms:       make(map[int]*atomList),
		protections: make(map[int][]*protection),
		axioms:      axioms,
		pendingDel:  make(map[string]int),
		pendingAdd:  make(map[string]int),
	}
}

func (s *State) list(head int) *atomList {
	l, ok := s.atoms[head]
	if !ok {
		l = &atomList{members: make(map[string]struct{})}
		s.atoms[head] = l
	}
	return l
}

func mustGround(op string, p term.Predicate) {
	if !p.IsGround() {
		panic(fmt.Sprintf("state: %s of non-ground atom %s", op, p))
	}
}

// Add inserts a ground atom. It returns false if the atom was already present.
func (s *State) Add(p term.Predicate) bool {
	mustGround("add", p)
	key := p.Key()
	l := s.list(p.Head)
	if _, ok := l.members[key]; ok {
		return false
	}
	l.items = append(l.items, p)
	l.members[key] = struct{}{}
	s.size++
	s.recordAdd(p, key)
	return true
}

// Del removes a ground atom and returns the position it occupied among the
// atoms of its head symbol, or -1 if it was absent.
func (s *State) Del(p term.Predicate) int {
	mustGround("del", p)
	key := p.Key()
	l, ok := s.atoms[p.Head]
	if !ok {
		return -1
	}
	if _, ok := l.members[key]; !ok {
		return -1
	}
	pos := l.indexOf(key)
	l.items = append(l.items[:pos], l.items[pos+1:]...)
	delete(l.members, key)
	s.size--
	s.recordDel(p, key, pos)
	return pos
}

// insertAt re-inserts a removed atom at its old position.
func (s *State) insertAt(p term.Predicate, pos int) {
	key := p.Key()
	l := s.list(p.Head)
	if _, ok := l.members[key]; ok {
		return
	}
	if pos < 0 || pos > len(l.items) {
		pos = len(l.items)
	}
	l.items = append(l.items, term.Predicate{})
	copy(l.items[pos+1:], l.items[pos:])
	l.items[pos] = p
	l.members[key] = struct{}{}
	s.size++
	s.recordAdd(p, key)
}

// Contains reports whether the ground atom p is stored directly. Axioms are
// not consulted.
func (s *State) Contains(p term.Predicate) bool {
	l, ok := s.atoms[p.Head]
	if !ok {
		return false
	}
	_, ok = l.members[p.Key()]
	return ok
}

// Len returns the number of stored atoms.
func (s *State) Len() int { return s.size }

// Heads returns the head symbols that currently have atoms, sorted.
func (s *State) Heads() []int {
	heads := make([]int, 0, len(s.atoms))
	for h, l := range s.atoms {
		if len(l.items) > 0 {
			heads = append(heads, h)
		}
	}
	sort.Ints(heads)
	return heads
}

// AtomsOf returns the atoms of one head symbol in insertion order.
func (s *State) AtomsOf(head int) []term.Predicate {
	l, ok := s.atoms[head]
	if !ok {
		return nil
	}
	out := make([]term.Predicate, len(l.items))
	copy(out, l.items)
	return out
}

// Atoms returns every stored atom, grouped by head symbol in ascending order
// and in insertion order within a head.
func (s *State) Atoms() []term.Predicate {
	out := make([]term.Predicate, 0, s.size)
	for _, h := range s.Heads() {
		out = append(out, s.atoms[h].items...)
	}
	return out
}

// Clone returns an independent copy sharing the axiom table. The journal is
// not copied.
func (s *State) Clone() *State {
	c := New(s.axioms)
	for h, l := range s.atoms {
		nl := &atomList{
			items:   make([]term.Predicate, len(l.items)),
			members: make(map[string]struct{}, len(l.members)),
		}
		copy(nl.items, l.items)
		for k := range l.members {
			nl.members[k] = struct{}{}
		}
		c.atoms[h] = nl
	}
	for h, ps := range s.protections {
		cp := make([]*protection, len(ps))
		for i, p := range ps {
			cp[i] = &protection{atom: p.atom, count: p.count}
		}
		c.protections[h] = cp
	}
	c.size = s.size
	return c
}

// Iterator starts a lazy enumeration of the unifiers of p: first the stored
// atoms, then every axiom for p's head symbol.
func (s *State) Iterator(p term.Predicate) *Iterator {
	return &Iterator{st: s}
}
