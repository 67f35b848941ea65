// Package loader reads planning domains and problems from YAML files.
//
// Atoms are written in Mangle syntax: variables start with an uppercase
// letter, symbolic constants are /names, lists are [a, b]. Initial states are
// plain Mangle fact sources, so a state exported with ExportFacts can be fed
// back in as a problem state.
package loader

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/mangle/parse"
	"gopkg.in/yaml.v3"

	"htnplan/internal/domain"
	"htnplan/internal/logging"
	"htnplan/internal/state"
	"htnplan/internal/tasks"
	"htnplan/internal/term"
)

// ParseDomain decodes and compiles a YAML domain.
func ParseDomain(data []byte) (*domain.Domain, error) {
	var f DomainFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse domain: %w", err)
	}
	return CompileDomain(&f)
}

// LoadDomain reads a YAML domain file.
func LoadDomain(path string) (*domain.Domain, error) {
	timer := logging.StartTimer(logging.CategoryLoader, "load domain")
	defer timer.Stop()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read domain file: %w", err)
	}
	d, err := ParseDomain(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	st := d.Stats()
	logging.Loader("loaded domain %s from %s: %d operators, %d methods (%d branches), %d axioms",
		d.Name, path, st.Operators, st.Methods, st.Branches, st.Axioms)
	return d, nil
}

// Problem is a loaded planning problem, ready for a planner.
type Problem struct {
	Name  string
	State *state.State
	Tasks *tasks.List
}

// ParseProblem decodes a YAML problem against d. Constants new to the domain
// are interned into its symbol table. A relative state_file is resolved
// against the working directory.
func ParseProblem(data []byte, d *domain.Domain) (*Problem, error) {
	return parseProblem(data, d, "")
}

func parseProblem(data []byte, d *domain.Domain, dir string) (*Problem, error) {
	var f ProblemFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse problem: %w", err)
	}
	if f.Domain != "" && f.Domain != d.Name {
		return nil, fmt.Errorf("problem %s is for domain %s, not %s", f.Problem, f.Domain, d.Name)
	}

	st := d.NewState()
	if err := LoadFacts(st, d.Symbols, f.State); err != nil {
		return nil, fmt.Errorf("state: %w", err)
	}
	if f.StateFile != "" {
		path := f.StateFile
		if !filepath.IsAbs(path) {
			path = filepath.Join(dir, path)
		}
		src, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read state file: %w", err)
		}
		if err := LoadFacts(st, d.Symbols, string(src)); err != nil {
			return nil, fmt.Errorf("%s: %w", f.StateFile, err)
		}
	}
	conv := converter{syms: d.Symbols}
	for _, src := range f.Protections {
		a, err := parseAtom(src)
		if err != nil {
			return nil, fmt.Errorf("protections: %w", err)
		}
		p, err := conv.predicate(a, nil)
		if err != nil {
			return nil, fmt.Errorf("protections: %w", err)
		}
		st.AddProtection(p)
	}

	c := &compiler{conv: conv, primitives: primitives(d)}
	root, err := c.network(f.Tasks, nil)
	if err != nil {
		return nil, fmt.Errorf("tasks: %w", err)
	}
	if root.IsAtomic() {
		root = tasks.Ordered(root)
	}
	for _, t := range root.Atoms() {
		if !t.Primitive && len(d.Methods(t.Head.Head)) == 0 {
			return nil, fmt.Errorf("tasks: %w %s", domain.ErrUndefinedTask, d.SymbolName(t.Head.Head))
		}
	}

	name := f.Problem
	if name == "" {
		name = "problem"
	}
	return &Problem{Name: name, State: st, Tasks: root}, nil
}

// LoadProblem reads a YAML problem file.
func LoadProblem(path string, d *domain.Domain) (*Problem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read problem file: %w", err)
	}
	p, err := parseProblem(data, d, filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	logging.LoaderDebug("loaded problem %s from %s: %d atoms, %d tasks",
		p.Name, path, p.State.Len(), len(p.Tasks.Atoms()))
	return p, nil
}

func primitives(d *domain.Domain) map[string]bool {
	out := make(map[string]bool)
	for i, name := range d.Symbols.Names() {
		if d.IsPrimitive(i) {
			out[name] = true
		}
	}
	return out
}

// LoadFacts parses Mangle facts and adds them to st. Rules and declarations
// are rejected; facts must be ground.
func LoadFacts(st *state.State, syms *term.SymbolTable, src string) error {
	if strings.TrimSpace(src) == "" {
		return nil
	}
	unit, err := parse.Unit(bytes.NewReader([]byte(src)))
	if err != nil {
		return fmt.Errorf("failed to parse facts: %w", err)
	}
	conv := converter{syms: syms}
	for _, cl := range unit.Clauses {
		if len(cl.Premises) > 0 {
			return fmt.Errorf("%s: rules are not allowed in a state, use an axiom", cl.Head.Predicate.Symbol)
		}
		p, err := conv.predicate(cl.Head, nil)
		if err != nil {
			return err
		}
		st.Add(p)
	}
	return nil
}

// ExportFacts renders every atom of st as a Mangle fact, one per line,
// grouped by predicate name.
func ExportFacts(st *state.State, names term.Namer) string {
	type fact struct{ pred, text string }
	atoms := st.Atoms()
	facts := make([]fact, len(atoms))
	for i, p := range atoms {
		facts[i] = fact{pred: names.SymbolName(p.Head), text: renderAtom(p, names) + "."}
	}
	sort.SliceStable(facts, func(i, j int) bool { return facts[i].pred < facts[j].pred })
	var sb strings.Builder
	for _, f := range facts {
		sb.WriteString(f.text)
		sb.WriteByte('\n')
	}
	return sb.String()
}

// FormatAtom renders a predicate in the same Mangle syntax the loader reads.
func FormatAtom(p term.Predicate, names term.Namer) string {
	return renderAtom(p, names)
}
