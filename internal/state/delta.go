package state

import "htnplan/internal/term"

// Removal is a deleted atom together with the position it occupied.
type Removal struct {
	Atom term.Predicate
	Pos  int
}

// Delta records what one operator application changed, in application order,
// so that Undo can invert it exactly.
type Delta struct {
	Deleted            []Removal
	Added              []term.Predicate
	ProtectionsDeleted []term.Predicate
	ProtectionsAdded   []term.Predicate
}

// Empty reports whether the delta records no change.
func (d *Delta) Empty() bool {
	return len(d.Deleted) == 0 && len(d.Added) == 0 &&
		len(d.ProtectionsDeleted) == 0 && len(d.ProtectionsAdded) == 0
}

// Reset clears the delta for reuse.
func (d *Delta) Reset() {
	d.Deleted = d.Deleted[:0]
	d.Added = d.Added[:0]
	d.ProtectionsDeleted = d.ProtectionsDeleted[:0]
	d.ProtectionsAdded = d.ProtectionsAdded[:0]
}

// Undo inverts d: added atoms are removed, deleted atoms go back to their old
// positions (last removed first), added protections are released and deleted
// ones restored. Every list is walked newest first.
func (s *State) Undo(d *Delta) {
	for i := len(d.Added) - 1; i >= 0; i-- {
		s.Del(d.Added[i])
	}
	for i := len(d.Deleted) - 1; i >= 0; i-- {
		s.insertAt(d.Deleted[i].Atom, d.Deleted[i].Pos)
	}
	for i := len(d.ProtectionsAdded) - 1; i >= 0; i-- {
		s.DelProtection(d.ProtectionsAdded[i])
	}
	for i := len(d.ProtectionsDeleted) - 1; i >= 0; i-- {
		s.AddProtection(d.ProtectionsDeleted[i])
	}
}

// UndoStack holds deltas that must be undone in reverse order of
// application.
type UndoStack struct {
	deltas []*Delta
}

// Push records an applied delta.
func (u *UndoStack) Push(d *Delta) { u.deltas = append(u.deltas, d) }

// Len returns the number of outstanding deltas.
func (u *UndoStack) Len() int { return len(u.deltas) }

// Pop undoes the most recent delta against s and returns it.
func (u *UndoStack) Pop(s *State) *Delta {
	n := len(u.deltas)
	if n == 0 {
		panic("state: undo stack is empty")
	}
	d := u.deltas[n-1]
	u.deltas[n-1] = nil
	u.deltas = u.deltas[:n-1]
	s.Undo(d)
	return d
}

// Top returns the most recent delta without undoing it.
func (u *UndoStack) Top() *Delta {
	if len(u.deltas) == 0 {
		return nil
	}
	return u.deltas[len(u.deltas)-1]
}
