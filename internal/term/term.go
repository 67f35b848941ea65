// Package term provides the logical term substrate used by every other part of
// the planner: constants, variables, numbers and lists, together with bindings,
// substitution and unification.
//
// Terms are small immutable values. Lists share structure, so binding a list
// only copies the cells that actually contain variables.
package term

import (
	"strconv"
	"strings"
)

// Kind identifies the variant a Term holds.
type Kind uint8

const (
	// KindUnbound is the zero Term. It marks an unset Binding slot.
	KindUnbound Kind = iota
	KindConstant
	KindVariable
	KindNumber
	KindList
)

func (k Kind) String() string {
	switch k {
	case KindUnbound:
		return "unbound"
	case KindConstant:
		return "constant"
	case KindVariable:
		return "variable"
	case KindNumber:
		return "number"
	case KindList:
		return "list"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Term is one of: an interned constant, a rule-local variable, a number or a
// list. A list is either Nil or a cons cell.
type Term struct {
	kind Kind
	idx  int     // constant symbol index or variable index
	name string  // constant or variable display name
	num  float64 // number value
	cell *cell   // nil for the empty list
}

type cell struct {
	head Term
	tail Term
}

// Const returns the constant with the given symbol index. The name is only
// used for display; equality compares indices.
func Const(idx int, name string) Term {
	return Term{kind: KindConstant, idx: idx, name: name}
}

// Var returns the variable with the given scope-local index.
func Var(idx int) Term {
	return Term{kind: KindVariable, idx: idx}
}

// NamedVar is Var with a display name.
func NamedVar(idx int, name string) Term {
	return Term{kind: KindVariable, idx: idx, name: name}
}

// Number returns a numeric term.
func Number(v float64) Term {
	return Term{kind: KindNumber, num: v}
}

// Nil returns the empty list.
func Nil() Term {
	return Term{kind: KindList}
}

// Cons prepends head to tail. The tail is normally a list but any term is
// accepted, which yields a dotted pair.
func Cons(head, tail Term) Term {
	return Term{kind: KindList, cell: &cell{head: head, tail: tail}}
}

// List builds a proper list from its elements.
func List(elems ...Term) Term {
	out := Nil()
	for i := len(elems) - 1; i >= 0; i-- {
		out = Cons(elems[i], out)
	}
	return out
}

func (t Term) Kind() Kind { return t.kind }

func (t Term) IsBound() bool    { return t.kind != KindUnbound }
func (t Term) IsConstant() bool { return t.kind == KindConstant }
func (t Term) IsVariable() bool { return t.kind == KindVariable }
func (t Term) IsNumber() bool   { return t.kind == KindNumber }
func (t Term) IsList() bool     { return t.kind == KindList }

// IsNil reports whether t is the empty list.
func (t Term) IsNil() bool { return t.kind == KindList && t.cell == nil }

// Index returns the symbol index of a constant or the slot of a variable.
func (t Term) Index() int { return t.idx }

// Name returns the display name of a constant or variable.
func (t Term) Name() string { return t.name }

// Value returns the value of a number term.
func (t Term) Value() float64 { return t.num }

// Head returns the first element of a non-empty list.
func (t Term) Head() Term {
	if t.cell == nil {
		panic("term: Head of " + t.String())
	}
	return t.cell.head
}

// Tail returns the rest of a non-empty list.
func (t Term) Tail() Term {
	if t.cell == nil {
		panic("term: Tail of " + t.String())
	}
	return t.cell.tail
}

// Elems returns the elements of a proper list. A dotted tail is dropped.
func (t Term) Elems() []Term {
	var out []Term
	for cur := t; cur.kind == KindList && cur.cell != nil; cur = cur.cell.tail {
		out = append(out, cur.cell.head)
	}
	return out
}

// Len returns the number of elements of a list.
func (t Term) Len() int {
	n := 0
	for cur := t; cur.kind == KindList && cur.cell != nil; cur = cur.cell.tail {
		n++
	}
	return n
}

// IsGround reports whether t contains no variables.
func (t Term) IsGround() bool {
	switch t.kind {
	case KindVariable, KindUnbound:
		return false
	case KindList:
		for cur := t; cur.cell != nil; {
			if !cur.cell.head.IsGround() {
				return false
			}
			if cur.cell.tail.kind != KindList {
				return cur.cell.tail.IsGround()
			}
			cur = cur.cell.tail
		}
	}
	return true
}

// Equal compares two terms structurally.
func (t Term) Equal(o Term) bool {
	if t.kind != o.kind {
		return false
	}
	switch t.kind {
	case KindConstant, KindVariable:
		return t.idx == o.idx
	case KindNumber:
		return t.num == o.num
	case KindList:
		if t.cell == nil || o.cell == nil {
			return t.cell == o.cell
		}
		if t.cell == o.cell {
			return true
		}
		return t.cell.head.Equal(o.cell.head) && t.cell.tail.Equal(o.cell.tail)
	}
	return true
}

// Key returns a canonical string for a term, usable as a map key. Two terms
// have the same key iff they are Equal.
func (t Term) Key() string {
	var sb strings.Builder
	t.writeKey(&sb)
	return sb.String()
}

func (t Term) writeKey(sb *strings.Builder) {
	switch t.kind {
	case KindUnbound:
		sb.WriteByte('_')
	case KindConstant:
		sb.WriteByte('c')
		sb.WriteString(strconv.Itoa(t.idx))
	case KindVariable:
		sb.WriteByte('v')
		sb.WriteString(strconv.Itoa(t.idx))
	case KindNumber:
		sb.WriteByte('n')
		sb.WriteString(strconv.FormatFloat(t.num, 'g', -1, 64))
	case KindList:
		sb.WriteByte('(')
		cur := t
		for cur.kind == KindList && cur.cell != nil {
			cur.cell.head.writeKey(sb)
			sb.WriteByte(' ')
			cur = cur.cell.tail
		}
		if cur.kind != KindList {
			sb.WriteString(". ")
			cur.writeKey(sb)
		}
		sb.WriteByte(')')
	}
}

// String renders the term in the prefix notation used by HTN domain files.
func (t Term) String() string {
	switch t.kind {
	case KindUnbound:
		return "<unbound>"
	case KindConstant:
		if t.name != "" {
			return t.name
		}
		return "#" + strconv.Itoa(t.idx)
	case KindVariable:
		if t.name != "" {
			return t.name
		}
		return "?var" + strconv.Itoa(t.idx)
	case KindNumber:
		return strconv.FormatFloat(t.num, 'g', -1, 64)
	}
	if t.cell == nil {
		return "nil"
	}
	var sb strings.Builder
	sb.WriteByte('(')
	cur := t
	first := true
	for cur.kind == KindList && cur.cell != nil {
		if !first {
			sb.WriteByte(' ')
		}
		first = false
		sb.WriteString(cur.cell.head.String())
		cur = cur.cell.tail
	}
	if cur.kind != KindList {
		sb.WriteString(" . ")
		sb.WriteString(cur.String())
	}
	sb.WriteByte(')')
	return sb.String()
}
