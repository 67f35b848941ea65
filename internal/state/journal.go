package state

import (
	"htnplan/internal/term"
)

// ChangeKind tells what a journal entry did.
type ChangeKind uint8

const (
	ChangeAdd ChangeKind = iota
	ChangeDel
	ChangeProtect
	ChangeUnprotect
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeAdd:
		return "add"
	case ChangeDel:
		return "del"
	case ChangeProtect:
		return "protect"
	case ChangeUnprotect:
		return "unprotect"
	}
	return "unknown"
}

// Change is one journal entry.
type Change struct {
	Kind ChangeKind
	Atom term.Predicate
	Pos  int // position an atom was deleted from
	key  string
}

// SetLogging switches the journal on or off. Turning it on keeps the entries
// already recorded.
func (s *State) SetLogging(on bool) { s.logging = on }

// Logging reports whether the journal is on.
func (s *State) Logging() bool { return s.logging }

// ClearLog drops every journal entry.
func (s *State) ClearLog() {
	s.journal = s.journal[:0]
	clear(s.pendingDel)
	clear(s.pendingAdd)
}

// Modifications returns the live journal entries, oldest first.
func (s *State) Modifications() []Change {
	out := make([]Change, len(s.journal))
	copy(out, s.journal)
	return out
}

// Reset rolls back every journaled change, newest first, restoring atom
// positions and protection counts. The journal is switched off and cleared.
func (s *State) Reset() {
	s.logging = false
	for i := len(s.journal) - 1; i >= 0; i-- {
		c := s.journal[i]
		switch c.Kind {
		case ChangeAdd:
			s.Del(c.Atom)
		case ChangeDel:
			s.insertAt(c.Atom, c.Pos)
		case ChangeProtect:
			s.DelProtection(c.Atom)
		case ChangeUnprotect:
			s.AddProtection(c.Atom)
		}
	}
	s.ClearLog()
}

// recordAdd journals an insertion. An insertion that re-adds an atom with a
// pending deletion cancels that deletion instead.
func (s *State) recordAdd(p term.Predicate, key string) {
	if !s.logging {
		return
	}
	if s.pendingDel[key] > 0 && s.cancel(ChangeDel, key) {
		return
	}
	s.journal = append(s.journal, Change{Kind: ChangeAdd, Atom: p, key: key, Pos: -1})
	s.pendingAdd[key]++
}

// recordDel journals a deletion, cancelling a pending insertion of the same
// atom if there is one.
func (s *State) recordDel(p term.Predicate, key string, pos int) {
	if !s.logging {
		return
	}
	if s.pendingAdd[key] > 0 && s.cancel(ChangeAdd, key) {
		return
	}
	s.journal = append(s.journal, Change{Kind: ChangeDel, Atom: p, key: key, Pos: pos})
	s.pendingDel[key]++
}

func (s *State) recordProtection(kind ChangeKind, p term.Predicate) {
	if !s.logging {
		return
	}
	inverse := ChangeUnprotect
	if kind == ChangeUnprotect {
		inverse = ChangeProtect
	}
	key := p.Key()
	if n := len(s.journal); n > 0 && s.journal[n-1].Kind == inverse && s.journal[n-1].key == key {
		s.journal = s.journal[:n-1]
		return
	}
	s.journal = append(s.journal, Change{Kind: kind, Atom: p, key: key, Pos: -1})
}

// cancel removes the newest journal entry of the given kind and key.
func (s *State) cancel(kind ChangeKind, key string) bool {
	for i := len(s.journal) - 1; i >= 0; i-- {
		c := s.journal[i]
		if c.Kind != kind || c.key != key {
			continue
		}
		s.journal = append(s.journal[:i], s.journal[i+1:]...)
		if kind == ChangeDel {
			s.pendingDel[key]--
		} else {
			s.pendingAdd[key]--
		}
		return true
	}
	return false
}
