// Package plan holds the result of a search: an ordered list of ground
// operator instances and the cost accumulated while applying them.
package plan

import (
	"cmp"
	"fmt"
	"strconv"

	"htnplan/internal/term"
)

// Cost accumulates operator costs along the current search path. Remove must
// exactly invert the matching Add so that backtracking leaves no trace.
type Cost interface {
	Add(t term.Term)
	Remove(t term.Term)
	// Compare orders costs: negative when the receiver is cheaper.
	Compare(other Cost) int
	Clone() Cost
	String() string
}

// NumericCost is the default Cost: a sum of number terms.
//
// Floating point addition is not exactly invertible, so every Add remembers
// the previous total and Remove restores it.
type NumericCost struct {
	total   float64
	history []float64
}

// NewNumericCost returns a zero cost.
func NewNumericCost() *NumericCost { return &NumericCost{} }

// Value returns the current total.
func (c *NumericCost) Value() float64 { return c.total }

func number(op string, t term.Term) float64 {
	if !t.IsNumber() {
		panic(fmt.Sprintf("plan: %s of non-numeric cost %s", op, t))
	}
	return t.Value()
}

// Add implements Cost. A non-numeric term panics.
func (c *NumericCost) Add(t term.Term) {
	v := number("add", t)
	c.history = append(c.history, c.total)
	c.total += v
}

// Remove implements Cost.
func (c *NumericCost) Remove(t term.Term) {
	v := number("remove", t)
	if n := len(c.history); n > 0 {
		c.total = c.history[n-1]
		c.history = c.history[:n-1]
		return
	}
	c.total -= v
}

// Compare implements Cost. Costs of different kinds have no order; comparing
// them panics with a *term.InvariantError.
func (c *NumericCost) Compare(other Cost) int {
	o, ok := other.(*NumericCost)
	if !ok {
		panic(&term.InvariantError{Op: "compare cost", Detail: fmt.Sprintf("numeric cost %s against %T", c, other)})
	}
	return cmp.Compare(c.total, o.total)
}

// Clone implements Cost.
func (c *NumericCost) Clone() Cost {
	h := make([]float64, len(c.history))
	copy(h, c.history)
	return &NumericCost{total: c.total, history: h}
}

func (c *NumericCost) String() string {
	return strconv.FormatFloat(c.total, 'g', -1, 64)
}
