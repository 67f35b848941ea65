package loader

import (
	"errors"
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"

	"htnplan/internal/domain"
	"htnplan/internal/precond"
	"htnplan/internal/tasks"
	"htnplan/internal/term"
)

// compiler builds one domain. Errors inside a rule are collected per rule so
// that a file with several bad rules reports all of them.
type compiler struct {
	conv       converter
	primitives map[string]bool
}

// CompileDomain turns a parsed domain file into a domain. A task is
// primitive exactly when some operator is declared for its name.
func CompileDomain(f *DomainFile) (*domain.Domain, error) {
	if f.Domain == "" {
		return nil, errors.New("domain name is required")
	}
	syms := term.NewSymbolTable()
	d := domain.New(f.Domain, syms)
	c := &compiler{conv: converter{syms: syms}, primitives: make(map[string]bool)}

	var errs []error
	for i, op := range f.Operators {
		a, err := parseAtom(op.Head)
		if err != nil {
			errs = append(errs, fmt.Errorf("operator %d: %w", i, err))
			continue
		}
		c.primitives[a.Predicate.Symbol] = true
	}

	for i := range f.Operators {
		spec := &f.Operators[i]
		op, err := twoPass(func(sc *scope) (*domain.Operator, error) { return c.operator(spec, sc) })
		if err != nil {
			errs = append(errs, fmt.Errorf("operator %s: %w", spec.Head, err))
			continue
		}
		d.AddOperator(op)
	}
	for i := range f.Methods {
		spec := &f.Methods[i]
		m, err := twoPass(func(sc *scope) (*domain.Method, error) { return c.method(spec, sc) })
		if err != nil {
			errs = append(errs, fmt.Errorf("method %s: %w", spec.Head, err))
			continue
		}
		d.AddMethod(m)
	}
	for i := range f.Axioms {
		spec := &f.Axioms[i]
		a, err := twoPass(func(sc *scope) (*domain.Axiom, error) { return c.axiom(spec, sc) })
		if err != nil {
			errs = append(errs, fmt.Errorf("axiom %s: %w", spec.Head, err))
			continue
		}
		d.AddAxiom(a)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// twoPass runs build once to discover the rule's variables and again with
// the final variable count.
func twoPass[T any](build func(*scope) (T, error)) (T, error) {
	sc := newScope()
	if _, err := build(sc); err != nil {
		var zero T
		return zero, err
	}
	sc.seal()
	return build(sc)
}

func (c *compiler) atom(src string, sc *scope) (term.Predicate, error) {
	a, err := parseAtom(src)
	if err != nil {
		return term.Predicate{}, err
	}
	return c.conv.predicate(a, sc)
}

func (c *compiler) operator(spec *OperatorSpec, sc *scope) (*domain.Operator, error) {
	head, err := c.atom(spec.Head, sc)
	if err != nil {
		return nil, err
	}
	pre, err := c.cond(spec.Pre, sc)
	if err != nil {
		return nil, fmt.Errorf("pre: %w", err)
	}
	del, err := c.effects(spec.Del, sc)
	if err != nil {
		return nil, fmt.Errorf("del: %w", err)
	}
	add, err := c.effects(spec.Add, sc)
	if err != nil {
		return nil, fmt.Errorf("add: %w", err)
	}
	cost, err := c.cost(spec.Cost, sc)
	if err != nil {
		return nil, fmt.Errorf("cost: %w", err)
	}
	return &domain.Operator{
		Head:     head,
		Pre:      pre,
		Del:      del,
		Add:      add,
		Cost:     cost,
		VarCount: sc.size(),
	}, nil
}

func (c *compiler) cost(n *yaml.Node, sc *scope) (term.Term, error) {
	if n == nil || n.Value == "" {
		return term.Number(1), nil
	}
	if n.Kind != yaml.ScalarNode {
		return term.Term{}, nodeErr(n, "cost must be a number or a variable")
	}
	if v, err := strconv.ParseFloat(n.Value, 64); err == nil {
		return term.Number(v), nil
	}
	if idx, ok := sc.lookup(n.Value); ok {
		return term.NamedVar(idx, n.Value), nil
	}
	return term.Term{}, nodeErr(n, fmt.Sprintf("cost %q is neither a number nor a bound variable", n.Value))
}

func (c *compiler) method(spec *MethodSpec, sc *scope) (*domain.Method, error) {
	head, err := c.atom(spec.Head, sc)
	if err != nil {
		return nil, err
	}
	if len(spec.Branches) == 0 {
		return nil, errors.New("no branches")
	}
	m := &domain.Method{Head: head}
	for i, br := range spec.Branches {
		label := br.Label
		if label == "" {
			label = "branch" + strconv.Itoa(i)
		}
		pre, err := c.cond(br.Pre, sc)
		if err != nil {
			return nil, fmt.Errorf("branch %s: %w", label, err)
		}
		sub, err := c.network(br.Tasks, sc)
		if err != nil {
			return nil, fmt.Errorf("branch %s: %w", label, err)
		}
		if sub.IsAtomic() {
			sub = tasks.Ordered(sub)
		}
		m.Branches = append(m.Branches, domain.Branch{Label: label, Pre: pre, Sub: sub})
	}
	m.VarCount = sc.size()
	return m, nil
}

func (c *compiler) axiom(spec *AxiomSpec, sc *scope) (*domain.Axiom, error) {
	head, err := c.atom(spec.Head, sc)
	if err != nil {
		return nil, err
	}
	if len(spec.Branches) == 0 {
		return nil, errors.New("no branches")
	}
	a := &domain.Axiom{Predicate: head}
	for i, br := range spec.Branches {
		label := br.Label
		if label == "" {
			label = "branch" + strconv.Itoa(i)
		}
		pre, err := c.cond(br.Pre, sc)
		if err != nil {
			return nil, fmt.Errorf("branch %s: %w", label, err)
		}
		a.Body = append(a.Body, domain.AxiomBranch{Label: label, Pre: pre})
	}
	a.VarCount = sc.size()
	return a, nil
}

func (c *compiler) cond(spec *CondSpec, sc *scope) (*precond.Expr, error) {
	if spec == nil {
		return precond.True(), nil
	}
	subs := func() ([]*precond.Expr, error) {
		out := make([]*precond.Expr, len(spec.Args))
		for i, a := range spec.Args {
			e, err := c.cond(a, sc)
			if err != nil {
				return nil, err
			}
			out[i] = e
		}
		return out, nil
	}
	switch spec.Kind {
	case "true":
		return precond.True(), nil
	case "atom":
		p, err := c.atom(spec.Atom, sc)
		if err != nil {
			return nil, err
		}
		return precond.Atomic(p), nil
	}
	args, err := subs()
	if err != nil {
		return nil, err
	}
	switch spec.Kind {
	case "and":
		return precond.And(args...), nil
	case "or":
		return precond.Or(args...), nil
	case "not":
		return precond.Not(args[0]), nil
	case "forall":
		return precond.ForAll(args[0], args[1]), nil
	case "first":
		return args[0].WithFirst(), nil
	case "sort":
		idx, ok := sc.lookup(spec.Var)
		if !ok {
			return nil, fmt.Errorf("sort_by variable %s does not occur in the rule", spec.Var)
		}
		return args[0].WithSort(precond.ByNumber(idx, spec.Desc)), nil
	}
	return nil, fmt.Errorf("unknown precondition kind %q", spec.Kind)
}

func (c *compiler) effects(spec EffectsSpec, sc *scope) (domain.Effects, error) {
	if spec.Var != "" {
		idx, ok := sc.lookup(spec.Var)
		if !ok {
			return domain.Effects{}, fmt.Errorf("effect list variable %s does not occur in the head or precondition", spec.Var)
		}
		return domain.FromVar(idx), nil
	}
	items, err := c.effectItems(spec.Items, sc)
	if err != nil {
		return domain.Effects{}, err
	}
	return domain.Literal(items...), nil
}

func (c *compiler) effectItems(specs []EffectSpec, sc *scope) ([]domain.Effect, error) {
	out := make([]domain.Effect, 0, len(specs))
	for _, e := range specs {
		switch {
		case e.If != nil:
			premise, err := c.cond(e.If, sc)
			if err != nil {
				return nil, err
			}
			body, err := c.effectItems(e.Do, sc)
			if err != nil {
				return nil, err
			}
			out = append(out, domain.ForAllEffect(premise, body...))
		default:
			p, err := c.atom(e.Atom, sc)
			if err != nil {
				return nil, err
			}
			if e.Protect {
				out = append(out, domain.Protect(p))
			} else {
				out = append(out, domain.AtomEffect(p))
			}
		}
	}
	return out, nil
}

// network builds a task network. sc is nil for problem goals, which must be
// ground.
func (c *compiler) network(spec *TaskSpec, sc *scope) (*tasks.List, error) {
	if spec == nil {
		return tasks.Ordered(), nil
	}
	if spec.Atom != "" {
		a, err := parseAtom(spec.Atom)
		if err != nil {
			return nil, err
		}
		p, err := c.conv.predicate(a, sc)
		if err != nil {
			return nil, err
		}
		prim := c.primitives[a.Predicate.Symbol]
		if spec.Immediate && !prim {
			return nil, fmt.Errorf("immediate task %s has no operator", a.Predicate.Symbol)
		}
		return tasks.Leaf(tasks.Atom{Head: p, Primitive: prim, Immediate: spec.Immediate}), nil
	}
	subs := make([]*tasks.List, len(spec.Subs))
	for i, s := range spec.Subs {
		l, err := c.network(s, sc)
		if err != nil {
			return nil, err
		}
		subs[i] = l
	}
	if spec.Ordered {
		return tasks.Ordered(subs...), nil
	}
	return tasks.Unordered(subs...), nil
}
