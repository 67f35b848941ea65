package loader

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/google/mangle/ast"
	"github.com/google/mangle/parse"

	"htnplan/internal/term"
)

// scope assigns variable indices for one rule. Named variables keep the
// index of their first occurrence; every "_" is a fresh variable.
//
// Rules are compiled twice: the first pass discovers every variable so that
// the second pass can build predicates with the final variable count.
type scope struct {
	names []string
	index map[string]int
	wild  []int
	nwild int
	final bool
}

func newScope() *scope {
	return &scope{index: make(map[string]int)}
}

// seal ends the discovery pass.
func (s *scope) seal() {
	s.final = true
	s.nwild = 0
}

func (s *scope) size() int { return len(s.names) }

func (s *scope) variable(name string) int {
	if name == "_" {
		if s.final {
			idx := s.wild[s.nwild]
			s.nwild++
			return idx
		}
		idx := len(s.names)
		s.names = append(s.names, fmt.Sprintf("_%d", len(s.wild)))
		s.wild = append(s.wild, idx)
		return idx
	}
	if idx, ok := s.index[name]; ok {
		return idx
	}
	if s.final {
		panic(fmt.Sprintf("loader: variable %s appeared after discovery", name))
	}
	idx := len(s.names)
	s.names = append(s.names, name)
	s.index[name] = idx
	return idx
}

// lookup resolves a variable that must already be in scope.
func (s *scope) lookup(name string) (int, bool) {
	idx, ok := s.index[name]
	return idx, ok
}

// parseAtom parses one atom in Mangle syntax, with or without a trailing
// period.
func parseAtom(src string) (ast.Atom, error) {
	clean := strings.TrimSpace(src)
	clean = strings.TrimSuffix(clean, ".")
	if clean == "" {
		return ast.Atom{}, fmt.Errorf("empty atom")
	}
	a, err := parse.Atom(clean)
	if err != nil {
		return ast.Atom{}, fmt.Errorf("failed to parse atom %q: %w", src, err)
	}
	return a, nil
}

// converter turns Mangle terms into planner terms, interning constants.
type converter struct {
	syms *term.SymbolTable
}

// predicate converts a parsed atom. sc may be nil for ground facts.
func (c converter) predicate(a ast.Atom, sc *scope) (term.Predicate, error) {
	args := make([]term.Term, len(a.Args))
	for i, arg := range a.Args {
		t, err := c.term(arg, sc)
		if err != nil {
			return term.Predicate{}, fmt.Errorf("%s arg %d: %w", a.Predicate.Symbol, i, err)
		}
		args[i] = t
	}
	size := 0
	if sc != nil {
		size = sc.size()
	}
	head := c.syms.Intern(a.Predicate.Symbol).Index()
	return term.NewPredicate(head, size, args...), nil
}

func (c converter) term(bt ast.BaseTerm, sc *scope) (term.Term, error) {
	switch v := bt.(type) {
	case ast.Variable:
		if sc == nil {
			return term.Term{}, fmt.Errorf("variable %s in a ground atom", v.Symbol)
		}
		idx := sc.variable(v.Symbol)
		return term.NamedVar(idx, v.Symbol), nil
	case ast.Constant:
		return c.constant(v)
	case ast.ApplyFn:
		if v.Function.Symbol != "fn:list" {
			return term.Term{}, fmt.Errorf("unsupported function %s", v.Function.Symbol)
		}
		elems := make([]term.Term, len(v.Args))
		for i, a := range v.Args {
			t, err := c.term(a, sc)
			if err != nil {
				return term.Term{}, err
			}
			elems[i] = t
		}
		return term.List(elems...), nil
	}
	return term.Term{}, fmt.Errorf("unsupported term %v", bt)
}

func (c converter) constant(k ast.Constant) (term.Term, error) {
	switch k.Type {
	case ast.NameType:
		return c.syms.Intern(strings.TrimPrefix(k.Symbol, "/")), nil
	case ast.StringType:
		return c.syms.Intern(k.Symbol), nil
	case ast.NumberType:
		return term.Number(float64(k.NumValue)), nil
	case ast.Float64Type:
		return term.Number(math.Float64frombits(uint64(k.NumValue))), nil
	}
	return term.Term{}, fmt.Errorf("unsupported constant %s", k.String())
}

// renderTerm writes a ground term back in Mangle syntax. Symbols that form a
// valid Mangle name become /name constants, anything else a string.
func renderTerm(t term.Term, names term.Namer) string {
	switch t.Kind() {
	case term.KindConstant:
		name := names.SymbolName(t.Index())
		if isName(name) {
			if n, err := ast.Name("/" + name); err == nil {
				return n.String()
			}
		}
		return ast.String(name).String()
	case term.KindNumber:
		v := t.Value()
		if v == math.Trunc(v) && math.Abs(v) < 1<<53 {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case term.KindList:
		elems := t.Elems()
		parts := make([]string, len(elems))
		for i, e := range elems {
			parts[i] = renderTerm(e, names)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case term.KindVariable:
		if t.Name() != "" {
			return t.Name()
		}
		return fmt.Sprintf("V%d", t.Index())
	}
	return "_"
}

// isName reports whether s can follow the slash of a Mangle name constant:
// non-empty segments of [A-Za-z0-9._~%-] separated by single slashes.
func isName(s string) bool {
	if s == "" {
		return false
	}
	for _, seg := range strings.Split(s, "/") {
		if seg == "" {
			return false
		}
		for _, r := range seg {
			switch {
			case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			case strings.ContainsRune("._~%-", r):
			default:
				return false
			}
		}
	}
	return true
}

// renderAtom writes a predicate in Mangle syntax without the final period.
func renderAtom(p term.Predicate, names term.Namer) string {
	elems := p.Args.Elems()
	parts := make([]string, len(elems))
	for i, e := range elems {
		parts[i] = renderTerm(e, names)
	}
	return names.SymbolName(p.Head) + "(" + strings.Join(parts, ", ") + ")"
}
