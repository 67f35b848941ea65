package loader

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// DomainFile is the YAML form of a planning domain.
type DomainFile struct {
	Domain    string         `yaml:"domain"`
	Operators []OperatorSpec `yaml:"operators"`
	Methods   []MethodSpec   `yaml:"methods"`
	Axioms    []AxiomSpec    `yaml:"axioms"`
}

// OperatorSpec declares an operator. Cost is a number or a variable name and
// defaults to 1.
type OperatorSpec struct {
	Head string      `yaml:"head"`
	Pre  *CondSpec   `yaml:"pre"`
	Del  EffectsSpec `yaml:"del"`
	Add  EffectsSpec `yaml:"add"`
	Cost *yaml.Node  `yaml:"cost"`
}

// MethodSpec declares a method with ordered branches.
type MethodSpec struct {
	Head     string       `yaml:"head"`
	Branches []BranchSpec `yaml:"branches"`
}

// BranchSpec is one method branch.
type BranchSpec struct {
	Label string    `yaml:"label"`
	Pre   *CondSpec `yaml:"pre"`
	Tasks *TaskSpec `yaml:"tasks"`
}

// AxiomSpec declares an axiom.
type AxiomSpec struct {
	Head     string            `yaml:"head"`
	Branches []AxiomBranchSpec `yaml:"branches"`
}

// AxiomBranchSpec is one axiom branch.
type AxiomBranchSpec struct {
	Label string    `yaml:"label"`
	Pre   *CondSpec `yaml:"pre"`
}

// ProblemFile is the YAML form of a planning problem. State holds Mangle
// facts; StateFile names a Mangle file with more facts, relative to the
// problem file. Protections lists atoms protected from the start.
type ProblemFile struct {
	Problem     string    `yaml:"problem"`
	Domain      string    `yaml:"domain"`
	State       string    `yaml:"state"`
	StateFile   string    `yaml:"state_file"`
	Protections []string  `yaml:"protections"`
	Tasks       *TaskSpec `yaml:"tasks"`
}

// CondSpec is a precondition:
//
//	at(X)                              atomic
//	[a, b]                             conjunction
//	{and: [...]}, {or: [...]}          conjunction, disjunction
//	{not: c}                           negation
//	{forall: {if: c, then: c}}         universal quantification
//	{first: c}                         first binding only
//	{sort_by: {var: V, order: desc, pre: c}}
//	true, or an empty node             always satisfied
type CondSpec struct {
	Kind  string // atom, and, or, not, forall, first, sort, true
	Atom  string
	Args  []*CondSpec
	Var   string
	Desc  bool
	Label string
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (c *CondSpec) UnmarshalYAML(n *yaml.Node) error {
	switch n.Kind {
	case yaml.ScalarNode:
		if n.Value == "" || n.Value == "true" || n.Tag == "!!null" {
			c.Kind = "true"
			return nil
		}
		c.Kind, c.Atom = "atom", n.Value
		return nil
	case yaml.SequenceNode:
		c.Kind = "and"
		return decodeConds(n, &c.Args)
	case yaml.MappingNode:
		if len(n.Content) != 2 {
			return nodeErr(n, "a precondition map needs exactly one key")
		}
		key, val := n.Content[0].Value, n.Content[1]
		switch key {
		case "and", "or":
			c.Kind = key
			return decodeConds(val, &c.Args)
		case "not", "first":
			c.Kind = key
			sub := &CondSpec{}
			if err := val.Decode(sub); err != nil {
				return err
			}
			c.Args = []*CondSpec{sub}
			return nil
		case "forall":
			var body struct {
				If   *CondSpec `yaml:"if"`
				Then *CondSpec `yaml:"then"`
			}
			if err := val.Decode(&body); err != nil {
				return err
			}
			if body.If == nil || body.Then == nil {
				return nodeErr(val, "forall needs if and then")
			}
			c.Kind = "forall"
			c.Args = []*CondSpec{body.If, body.Then}
			return nil
		case "sort_by":
			var body struct {
				Var   string    `yaml:"var"`
				Order string    `yaml:"order"`
				Pre   *CondSpec `yaml:"pre"`
			}
			if err := val.Decode(&body); err != nil {
				return err
			}
			if body.Var == "" || body.Pre == nil {
				return nodeErr(val, "sort_by needs var and pre")
			}
			switch body.Order {
			case "", "asc":
			case "desc":
				c.Desc = true
			default:
				return nodeErr(val, fmt.Sprintf("unknown sort order %q", body.Order))
			}
			c.Kind, c.Var = "sort", body.Var
			c.Args = []*CondSpec{body.Pre}
			return nil
		}
		return nodeErr(n, fmt.Sprintf("unknown precondition %q", key))
	}
	return nodeErr(n, "unsupported precondition")
}

func decodeConds(n *yaml.Node, out *[]*CondSpec) error {
	if n.Kind != yaml.SequenceNode {
		return nodeErr(n, "expected a list of preconditions")
	}
	for _, item := range n.Content {
		c := &CondSpec{}
		if err := item.Decode(c); err != nil {
			return err
		}
		*out = append(*out, c)
	}
	return nil
}

// EffectsSpec is a delete or add list: a sequence of effects, a single atom,
// or a variable name whose value is a list of atoms.
type EffectsSpec struct {
	Var   string
	Items []EffectSpec
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (e *EffectsSpec) UnmarshalYAML(n *yaml.Node) error {
	switch n.Kind {
	case yaml.ScalarNode:
		if n.Value == "" || n.Tag == "!!null" {
			return nil
		}
		if strings.Contains(n.Value, "(") {
			e.Items = []EffectSpec{{Atom: n.Value}}
			return nil
		}
		e.Var = n.Value
		return nil
	case yaml.SequenceNode:
		return n.Decode(&e.Items)
	}
	return nodeErr(n, "effects must be a list or a variable")
}

// EffectSpec is one effect: an atom, {protect: atom} or
// {forall: {if: cond, do: [effects]}}.
type EffectSpec struct {
	Atom    string
	Protect bool
	If      *CondSpec
	Do      []EffectSpec
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (e *EffectSpec) UnmarshalYAML(n *yaml.Node) error {
	switch n.Kind {
	case yaml.ScalarNode:
		e.Atom = n.Value
		return nil
	case yaml.MappingNode:
		if len(n.Content) != 2 {
			return nodeErr(n, "an effect map needs exactly one key")
		}
		key, val := n.Content[0].Value, n.Content[1]
		switch key {
		case "protect":
			e.Protect = true
			return val.Decode(&e.Atom)
		case "forall":
			var body struct {
				If *CondSpec    `yaml:"if"`
				Do []EffectSpec `yaml:"do"`
			}
			if err := val.Decode(&body); err != nil {
				return err
			}
			if body.If == nil {
				return nodeErr(val, "forall effect needs if")
			}
			e.If, e.Do = body.If, body.Do
			return nil
		}
		return nodeErr(n, fmt.Sprintf("unknown effect %q", key))
	}
	return nodeErr(n, "unsupported effect")
}

// TaskSpec is a task network: an atom, a sequence (ordered), or one of
// {ordered: [...]}, {unordered: [...]}, {immediate: atom}.
type TaskSpec struct {
	Atom      string
	Immediate bool
	Ordered   bool
	Subs      []*TaskSpec
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (t *TaskSpec) UnmarshalYAML(n *yaml.Node) error {
	switch n.Kind {
	case yaml.ScalarNode:
		if n.Value == "" || n.Tag == "!!null" {
			t.Ordered = true
			return nil
		}
		t.Atom = n.Value
		return nil
	case yaml.SequenceNode:
		t.Ordered = true
		return n.Decode(&t.Subs)
	case yaml.MappingNode:
		if len(n.Content) != 2 {
			return nodeErr(n, "a task map needs exactly one key")
		}
		key, val := n.Content[0].Value, n.Content[1]
		switch key {
		case "ordered", "unordered":
			t.Ordered = key == "ordered"
			if val.Kind != yaml.SequenceNode {
				return nodeErr(val, key+" needs a list")
			}
			return val.Decode(&t.Subs)
		case "immediate":
			t.Immediate = true
			return val.Decode(&t.Atom)
		}
		return nodeErr(n, fmt.Sprintf("unknown task form %q", key))
	}
	return nodeErr(n, "unsupported task network")
}

func nodeErr(n *yaml.Node, msg string) error {
	return fmt.Errorf("line %d: %s", n.Line, msg)
}
