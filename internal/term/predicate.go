package term

import (
	"fmt"
	"strings"
)

// Predicate is an atomic formula: a head symbol applied to an argument list.
// A predicate may also be variable-headed (VarIdx >= 0), in which case the
// whole atom is the value of that variable and becomes a regular predicate
// once the variable is bound to a list.
type Predicate struct {
	Head     int  // symbol index of the head, -1 for variable-headed predicates
	Args     Term // argument list
	VarCount int  // size of the variable scope the predicate lives in
	VarIdx   int  // variable holding the whole atom, -1 when Head is set
}

// NewPredicate builds a predicate over a proper argument list.
func NewPredicate(head, varCount int, args ...Term) Predicate {
	return Predicate{Head: head, Args: List(args...), VarCount: varCount, VarIdx: -1}
}

// VarPredicate builds a variable-headed predicate.
func VarPredicate(varIdx, varCount int) Predicate {
	return Predicate{Head: -1, Args: Nil(), VarCount: varCount, VarIdx: varIdx}
}

// IsVar reports whether the predicate is variable-headed.
func (p Predicate) IsVar() bool { return p.VarIdx >= 0 }

// IsGround reports whether the predicate contains no variables.
func (p Predicate) IsGround() bool {
	return !p.IsVar() && p.Args.IsGround()
}

// Arity returns the number of arguments.
func (p Predicate) Arity() int { return p.Args.Len() }

// Equal compares head and arguments. Variable-headed predicates are never
// equal to anything.
func (p Predicate) Equal(o Predicate) bool {
	if p.IsVar() || o.IsVar() {
		return false
	}
	return p.Head == o.Head && p.Args.Equal(o.Args)
}

// Key returns a canonical string for the predicate.
func (p Predicate) Key() string {
	if p.IsVar() {
		return fmt.Sprintf("?%d", p.VarIdx)
	}
	return fmt.Sprintf("%d%s", p.Head, p.Args.Key())
}

// Apply substitutes b into the predicate. A variable-headed predicate whose
// variable is bound to a list is converted to a regular predicate.
func (p Predicate) Apply(b Binding) Predicate {
	if p.IsVar() {
		v := b.Get(p.VarIdx)
		if !v.IsBound() {
			return p
		}
		return ListToPredicate(v, p.VarCount)
	}
	if p.Args.IsGround() {
		return p
	}
	return Predicate{Head: p.Head, Args: Bind(p.Args, b), VarCount: p.VarCount, VarIdx: -1}
}

// FindUnifier matches the predicate's arguments against args, which come from
// another scope (usually a ground atom of the world state). It returns a new
// binding for the predicate's scope.
func (p Predicate) FindUnifier(args Term) (Binding, bool) {
	b := NewBinding(p.VarCount)
	if p.IsVar() {
		b[p.VarIdx] = args
		return b, true
	}
	if !Match(p.Args, args, b) {
		return nil, false
	}
	return b, true
}

// MatchPredicate is FindUnifier for two predicates; heads must agree.
func (p Predicate) MatchPredicate(o Predicate) (Binding, bool) {
	if p.IsVar() {
		b := NewBinding(p.VarCount)
		b[p.VarIdx] = o.ToList()
		return b, true
	}
	if o.IsVar() {
		return NewBinding(p.VarCount), true
	}
	if p.Head != o.Head {
		return nil, false
	}
	return p.FindUnifier(o.Args)
}

// ToList converts the predicate to the list (head . args). The head constant
// carries no display name.
func (p Predicate) ToList() Term {
	if p.IsVar() {
		return Var(p.VarIdx)
	}
	return Cons(Const(p.Head, ""), p.Args)
}

// ListToPredicate converts a list (head . args) into a predicate. The head
// must be a constant; anything else is a malformed atom and panics.
func ListToPredicate(list Term, varCount int) Predicate {
	if list.Kind() != KindList || list.IsNil() {
		panic(&InvariantError{Op: "list to predicate", Detail: "not a non-empty list: " + list.String()})
	}
	head := list.Head()
	if !head.IsConstant() {
		panic(&InvariantError{Op: "list to predicate", Detail: "head is not a constant: " + list.String()})
	}
	return Predicate{Head: head.Index(), Args: list.Tail(), VarCount: varCount, VarIdx: -1}
}

// Format renders the predicate using names for symbol lookup.
func (p Predicate) Format(names Namer) string {
	if p.IsVar() {
		return fmt.Sprintf("?var%d", p.VarIdx)
	}
	var sb strings.Builder
	sb.WriteByte('(')
	sb.WriteString(names.SymbolName(p.Head))
	for _, a := range p.Args.Elems() {
		sb.WriteByte(' ')
		sb.WriteString(FormatTerm(a, names))
	}
	sb.WriteByte(')')
	return sb.String()
}

func (p Predicate) String() string {
	if p.IsVar() {
		return fmt.Sprintf("?var%d", p.VarIdx)
	}
	return fmt.Sprintf("(#%d %s)", p.Head, strings.TrimSuffix(strings.TrimPrefix(p.Args.String(), "("), ")"))
}

// Namer resolves symbol indices to names.
type Namer interface {
	SymbolName(idx int) string
}

// FormatTerm renders t, filling in constant names from names.
func FormatTerm(t Term, names Namer) string {
	switch t.Kind() {
	case KindConstant:
		if t.Name() != "" {
			return t.Name()
		}
		return names.SymbolName(t.Index())
	case KindList:
		if t.IsNil() {
			return "nil"
		}
		parts := make([]string, 0, t.Len())
		cur := t
		for cur.Kind() == KindList && !cur.IsNil() {
			parts = append(parts, FormatTerm(cur.Head(), names))
			cur = cur.Tail()
		}
		out := "(" + strings.Join(parts, " ")
		if cur.Kind() != KindList {
			out += " . " + FormatTerm(cur, names)
		}
		return out + ")"
	}
	return t.String()
}
