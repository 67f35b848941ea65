package term

import (
	"fmt"
	"sync"
)

// SymbolTable interns constant names. Indices are dense and stable, so a
// constant is represented everywhere by its index alone.
//
// The table is safe for concurrent use; problem loading may add constants
// while other planners read names for display.
type SymbolTable struct {
	mu    sync.RWMutex
	names []string
	index map[string]int
}

// NewSymbolTable returns a table preloaded with names, in order.
func NewSymbolTable(names ...string) *SymbolTable {
	st := &SymbolTable{index: make(map[string]int, len(names))}
	for _, n := range names {
		st.Intern(n)
	}
	return st
}

// Intern returns the constant for name, adding it if it is new.
func (s *SymbolTable) Intern(name string) Term {
	s.mu.RLock()
	idx, ok := s.index[name]
	s.mu.RUnlock()
	if ok {
		return Const(idx, name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if idx, ok := s.index[name]; ok {
		return Const(idx, name)
	}
	idx = len(s.names)
	s.names = append(s.names, name)
	s.index[name] = idx
	return Const(idx, name)
}

// Lookup returns the index of name.
func (s *SymbolTable) Lookup(name string) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.index[name]
	return idx, ok
}

// Name returns the name at idx. An unknown index is a malformed domain and
// panics.
func (s *SymbolTable) Name(idx int) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if idx < 0 || idx >= len(s.names) {
		panic(fmt.Sprintf("term: unknown symbol index %d (table has %d)", idx, len(s.names)))
	}
	return s.names[idx]
}

// SymbolName implements Namer.
func (s *SymbolTable) SymbolName(idx int) string { return s.Name(idx) }

// Constant returns the constant term at idx.
func (s *SymbolTable) Constant(idx int) Term {
	return Const(idx, s.Name(idx))
}

// Len returns the number of interned symbols.
func (s *SymbolTable) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.names)
}

// Names returns a copy of all names in index order.
func (s *SymbolTable) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}
