package term

import (
	"fmt"
	"strings"
)

// Binding maps the variables of one rule scope to terms. Slot i holds the
// value of variable i, or the zero Term when the variable is unbound.
type Binding []Term

// NewBinding returns an all-unbound binding for a scope of size n.
func NewBinding(n int) Binding {
	return make(Binding, n)
}

// Clone returns an independent copy.
func (b Binding) Clone() Binding {
	if b == nil {
		return nil
	}
	out := make(Binding, len(b))
	copy(out, b)
	return out
}

// Get returns the value of variable i, or the zero Term when i is outside the
// scope or unset.
func (b Binding) Get(i int) Term {
	if i < 0 || i >= len(b) {
		return Term{}
	}
	return b[i]
}

// Bound counts the set slots.
func (b Binding) Bound() int {
	n := 0
	for _, t := range b {
		if t.IsBound() {
			n++
		}
	}
	return n
}

// Equal compares two bindings slot by slot.
func (b Binding) Equal(o Binding) bool {
	if len(b) != len(o) {
		return false
	}
	for i := range b {
		if !b[i].Equal(o[i]) {
			return false
		}
	}
	return true
}

func (b Binding) String() string {
	parts := make([]string, 0, len(b))
	for i, t := range b {
		if !t.IsBound() {
			continue
		}
		parts = append(parts, fmt.Sprintf("%d=%s", i, t))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// InvariantError reports an internal consistency violation, such as merging
// two bindings that disagree. It is raised with panic.
type InvariantError struct {
	Op     string
	Detail string
}

func (e *InvariantError) Error() string {
	return "term: " + e.Op + ": " + e.Detail
}

// Merge fills the unset slots of dst from src. Slots set in both must agree;
// a disagreement is a broken invariant and panics.
func Merge(dst, src Binding) {
	n := len(src)
	if len(dst) < n {
		n = len(dst)
	}
	for i := 0; i < n; i++ {
		if !src[i].IsBound() {
			continue
		}
		if !dst[i].IsBound() {
			dst[i] = src[i]
			continue
		}
		if !dst[i].Equal(src[i]) {
			panic(&InvariantError{
				Op:     "merge",
				Detail: fmt.Sprintf("slot %d bound to %s and %s", i, dst[i], src[i]),
			})
		}
	}
}

// Bind substitutes the bound variables of t. Unbound variables stay in place.
// Ground terms are returned unchanged.
func Bind(t Term, b Binding) Term {
	switch t.kind {
	case KindVariable:
		if v := b.Get(t.idx); v.IsBound() {
			return v
		}
		return t
	case KindList:
		if t.cell == nil || t.IsGround() {
			return t
		}
		return Cons(Bind(t.cell.head, b), Bind(t.cell.tail, b))
	}
	return t
}

// Unify unifies a and b within one variable scope of the given size. Variables
// on either side may receive bindings. It returns the resulting binding and
// whether unification succeeded.
func Unify(a, b Term, size int) (Binding, bool) {
	out := NewBinding(size)
	if !unify(a, b, out) {
		return nil, false
	}
	return out, true
}

func resolve(t Term, b Binding) Term {
	for t.kind == KindVariable {
		v := b.Get(t.idx)
		if !v.IsBound() || (v.kind == KindVariable && v.idx == t.idx) {
			return t
		}
		t = v
	}
	return t
}

func unify(a, b Term, out Binding) bool {
	a = resolve(a, out)
	b = resolve(b, out)
	if a.kind == KindVariable {
		if b.kind == KindVariable && b.idx == a.idx {
			return true
		}
		if a.idx < 0 || a.idx >= len(out) {
			return false
		}
		out[a.idx] = b
		return true
	}
	if b.kind == KindVariable {
		if b.idx < 0 || b.idx >= len(out) {
			return false
		}
		out[b.idx] = a
		return true
	}
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindConstant:
		return a.idx == b.idx
	case KindNumber:
		return a.num == b.num
	case KindList:
		if a.cell == nil || b.cell == nil {
			return a.cell == nil && b.cell == nil
		}
		return unify(a.cell.head, b.cell.head, out) && unify(a.cell.tail, b.cell.tail, out)
	}
	return false
}

// Match unifies pattern against target where the two terms live in different
// variable scopes. Only variables of pattern are recorded in b; variables of
// target are wildcards. A pattern variable that is already set in b must match
// its value.
func Match(pattern, target Term, b Binding) bool {
	switch pattern.kind {
	case KindVariable:
		if target.kind == KindVariable {
			return true
		}
		if pattern.idx < 0 || pattern.idx >= len(b) {
			return false
		}
		if cur := b[pattern.idx]; cur.IsBound() {
			return compatible(cur, target)
		}
		b[pattern.idx] = target
		return true
	case KindConstant:
		return target.kind == KindVariable || (target.kind == KindConstant && target.idx == pattern.idx)
	case KindNumber:
		return target.kind == KindVariable || (target.kind == KindNumber && target.num == pattern.num)
	case KindList:
		if target.kind == KindVariable {
			return true
		}
		if target.kind != KindList {
			return false
		}
		if pattern.cell == nil || target.cell == nil {
			return pattern.cell == nil && target.cell == nil
		}
		return Match(pattern.cell.head, target.cell.head, b) && Match(pattern.cell.tail, target.cell.tail, b)
	}
	return false
}

// compatible reports whether two terms can denote the same value when every
// variable on either side is treated as a wildcard.
func compatible(a, b Term) bool {
	if a.kind == KindVariable || b.kind == KindVariable {
		return true
	}
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindConstant:
		return a.idx == b.idx
	case KindNumber:
		return a.num == b.num
	case KindList:
		if a.cell == nil || b.cell == nil {
			return a.cell == nil && b.cell == nil
		}
		return compatible(a.cell.head, b.cell.head) && compatible(a.cell.tail, b.cell.tail)
	}
	return true
}
