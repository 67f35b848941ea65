// Package domain holds the static rule tables of a planning domain: operators
// for primitive tasks, methods for compound tasks, axioms for derived
// predicates, and the symbol table they share.
//
// A Domain is built once and then only read, so any number of planners may
// share it across goroutines.
package domain

import (
	"errors"
	"fmt"
	"sort"

	"htnplan/internal/state"
	"htnplan/internal/term"
)

// Domain is a set of rule tables indexed by head symbol.
type Domain struct {
	Name    string
	Symbols *term.SymbolTable

	operators map[int][]*Operator
	methods   map[int][]*Method
	axioms    map[int][]*Axiom
	axiomsIf  map[int][]state.Axiom
}

// New returns an empty domain over syms.
func New(name string, syms *term.SymbolTable) *Domain {
	if syms == nil {
		syms = term.NewSymbolTable()
	}
	return &Domain{
		Name:      name,
		Symbols:   syms,
		operators: make(map[int][]*Operator),
		methods:   make(map[int][]*Method),
		axioms:    make(map[int][]*Axiom),
		axiomsIf:  make(map[int][]state.Axiom),
	}
}

// AddOperator appends an operator for its head symbol.
func (d *Domain) AddOperator(o *Operator) {
	d.operators[o.Head.Head] = append(d.operators[o.Head.Head], o)
}

// AddMethod appends a method for its head symbol.
func (d *Domain) AddMethod(m *Method) {
	d.methods[m.Head.Head] = append(d.methods[m.Head.Head], m)
}

// AddAxiom appends an axiom for its head symbol.
func (d *Domain) AddAxiom(a *Axiom) {
	h := a.Predicate.Head
	d.axioms[h] = append(d.axioms[h], a)
	d.axiomsIf[h] = append(d.axiomsIf[h], a)
}

// Operators returns the operators for a primitive task symbol in declaration
// order. An index outside the symbol table panics.
func (d *Domain) Operators(head int) []*Operator {
	d.checkSymbol(head)
	return d.operators[head]
}

// Methods returns the methods for a compound task symbol in declaration order.
func (d *Domain) Methods(head int) []*Method {
	d.checkSymbol(head)
	return d.methods[head]
}

// Axioms implements state.AxiomTable.
func (d *Domain) Axioms(head int) []state.Axiom {
	return d.axiomsIf[head]
}

// AxiomRules returns the concrete axioms for a predicate symbol.
func (d *Domain) AxiomRules(head int) []*Axiom {
	return d.axioms[head]
}

// SymbolName implements term.Namer.
func (d *Domain) SymbolName(idx int) string { return d.Symbols.Name(idx) }

// IsPrimitive reports whether some operator is declared for head.
func (d *Domain) IsPrimitive(head int) bool {
	_, ok := d.operators[head]
	return ok
}

// NewState returns an empty world state wired to the domain's axioms.
func (d *Domain) NewState() *state.State {
	return state.New(d)
}

func (d *Domain) checkSymbol(head int) {
	if head < 0 || head >= d.Symbols.Len() {
		panic(fmt.Sprintf("domain %s: unknown task symbol %d", d.Name, head))
	}
}

// Stats summarizes the size of the rule tables.
type Stats struct {
	Symbols   int
	Operators int
	Methods   int
	Branches  int
	Axioms    int
}

// Stats counts the rules of the domain.
func (d *Domain) Stats() Stats {
	s := Stats{Symbols: d.Symbols.Len()}
	for _, ops := range d.operators {
		s.Operators += len(ops)
	}
	for _, ms := range d.methods {
		s.Methods += len(ms)
		for _, m := range ms {
			s.Branches += len(m.Branches)
		}
	}
	for _, as := range d.axioms {
		s.Axioms += len(as)
	}
	return s
}

// ErrUndefinedTask is returned by Validate for a task symbol with no rules.
var ErrUndefinedTask = errors.New("undefined task")

// Validate checks that every task mentioned in a method decomposition has at
// least one operator or method, and that primitive flags agree with the
// operator table.
func (d *Domain) Validate() error {
	var errs []error
	heads := make([]int, 0, len(d.methods))
	for h := range d.methods {
		heads = append(heads, h)
	}
	sort.Ints(heads)
	for _, h := range heads {
		for _, m := range d.methods[h] {
			for _, br := range m.Branches {
				for _, t := range br.Sub.Atoms() {
					if t.Head.IsVar() {
						continue
					}
					_, isOp := d.operators[t.Head.Head]
					_, isMethod := d.methods[t.Head.Head]
					switch {
					case !isOp && !isMethod:
						errs = append(errs, fmt.Errorf("%w %s in %s branch %q",
							ErrUndefinedTask, d.SymbolName(t.Head.Head), d.SymbolName(h), br.Label))
					case t.Primitive != isOp:
						errs = append(errs, fmt.Errorf("task %s in %s branch %q: primitive=%v but operator declared=%v",
							d.SymbolName(t.Head.Head), d.SymbolName(h), br.Label, t.Primitive, isOp))
					}
				}
			}
		}
	}
	return errors.Join(errs...)
}
