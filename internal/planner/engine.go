package planner

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"htnplan/internal/domain"
	"htnplan/internal/logging"
	"htnplan/internal/precond"
	"htnplan/internal/state"
	"htnplan/internal/tasks"
	"htnplan/internal/term"
)

// pc is the resume point of a frame.
type pc uint8

const (
	pcSelect          pc = iota // compute the runnable candidates
	pcContinued                 // returned from searching the root after discharging a subtree
	pcCandidate                 // take the next candidate or fail upward
	pcOperator                  // try the next operator of a primitive task
	pcOperatorBinding           // try the next precondition binding of an operator
	pcApplied                   // returned from searching after an operator application
	pcMethod                    // try the next method of a compound task
	pcBranch                    // try the next branch of a method
	pcBranchBinding             // try the next precondition binding of a branch
	pcReduced                   // returned from searching a method decomposition
	pcBacktrack                 // candidate exhausted
)

var pcNames = [...]string{
	pcSelect:          "select",
	pcContinued:       "continued",
	pcCandidate:       "candidate",
	pcOperator:        "operator",
	pcOperatorBinding: "operator_binding",
	pcApplied:         "applied",
	pcMethod:          "method",
	pcBranch:          "branch",
	pcBranchBinding:   "branch_binding",
	pcReduced:         "reduced",
	pcBacktrack:       "backtrack",
}

func (p pc) String() string { return pcNames[p] }

// frame is one logical recursive call of the search.
type frame struct {
	chosen *tasks.List
	pc     pc
	result bool // result of the last child call

	candidates []*tasks.List
	ci         int
	tl         *tasks.List
	atom       tasks.Atom

	ops     []*domain.Operator
	methods []*domain.Method
	j, k    int

	unifier term.Binding
	sat     *precond.Iterator
	yields  int
	found   bool

	delta *state.Delta
	cost  term.Term

	// outstanding mutations owned by this frame
	extracted bool // tl replaced by the empty list
	reduced   bool // tl replaced by a decomposition
	applied   bool // operator applied and added to the plan
}

func (p *Planner) call(chosen *tasks.List) {
	p.stack = append(p.stack, &frame{chosen: chosen, pc: pcSelect, delta: &state.Delta{}})
	if d := len(p.stack); d > p.stats.MaxDepth {
		p.stats.MaxDepth = d
	}
}

func (p *Planner) ret(result bool) {
	n := len(p.stack)
	p.stack[n-1] = nil
	p.stack = p.stack[:n-1]
	if n > 1 {
		p.stack[n-2].result = result
		return
	}
	p.done = true
	p.log.Debug("search exhausted: %d plans, %d steps", len(p.plans), p.stats.Steps)
}

// Step executes one micro-transition of the top frame. It returns whether
// work remains, and a *LimitError when the live frames outnumber the
// recursion limit. After an abort every further call returns false, nil.
func (p *Planner) Step() (bool, error) {
	if !p.IsActive() {
		return false, nil
	}
	if len(p.stack) > p.limit {
		p.abort()
		return false, p.err
	}

	p.st.SetLogging(true)
	defer p.st.SetLogging(false)
	p.stats.Steps++

	f := p.stack[len(p.stack)-1]
	switch f.pc {
	case pcSelect:
		f.candidates = f.chosen.Runnable()
		if len(f.candidates) > 0 {
			f.ci = 0
			f.pc = pcCandidate
			break
		}
		if f.chosen != p.root {
			f.pc = pcContinued
			p.call(p.root)
			break
		}
		p.recordPlan()
		p.ret(true)

	case pcContinued:
		p.ret(f.result)

	case pcCandidate:
		if f.ci >= len(f.candidates) {
			p.ret(false)
			break
		}
		p.startCandidate(f)

	case pcOperator:
		p.nextOperator(f)

	case pcOperatorBinding:
		p.nextOperatorBinding(f)

	case pcApplied:
		p.current.RemoveOperator(f.cost)
		p.undo.Pop(p.st)
		f.applied = false
		f.pc = pcOperatorBinding

	case pcMethod:
		p.nextMethod(f)

	case pcBranch:
		p.nextBranch(f)

	case pcBranchBinding:
		p.nextBranchBinding(f)

	case pcReduced:
		f.tl.Undo()
		f.reduced = false
		f.pc = pcBranchBinding

	case pcBacktrack:
		p.stats.Backtracks++
		p.emit(Event{Kind: EventBacktracking, Task: f.atom.Format(p.dom)})
		f.ci++
		f.pc = pcCandidate
	}
	return p.IsActive(), nil
}

func (p *Planner) startCandidate(f *frame) {
	f.tl = f.candidates[f.ci]
	f.atom = f.tl.Atom()
	if f.atom.Head.IsVar() {
		panic(fmt.Sprintf("planner: task head is an unbound variable in %s", f.chosen.Format(p.dom)))
	}
	if p.sink != nil {
		e := Event{Kind: EventTrying, Task: f.atom.Format(p.dom)}
		for _, c := range p.st.Modifications() {
			e.State = append(e.State, c.Kind.String()+" "+c.Atom.Format(p.dom))
		}
		p.emit(e)
	}

	f.j = 0
	if f.atom.Primitive {
		f.tl.Replace(tasks.Empty())
		f.extracted = true
		f.ops = p.dom.Operators(f.atom.Head.Head)
		f.pc = pcOperator
		return
	}
	f.methods = p.dom.Methods(f.atom.Head.Head)
	f.pc = pcMethod
}

func (p *Planner) nextOperator(f *frame) {
	if f.j >= len(f.ops) {
		f.tl.Undo()
		f.extracted = false
		f.pc = pcBacktrack
		return
	}
	op := f.ops[f.j]
	u := op.Unify(f.atom.Head)
	if u == nil {
		f.j++
		return
	}
	f.unifier = u
	f.sat = op.Satisfiers(p.st, u)
	f.yields = 0
	f.pc = pcOperatorBinding
}

func (p *Planner) nextOperatorBinding(f *frame) {
	op := f.ops[f.j]
	b := f.sat.NextBinding(p.st)
	if b == nil {
		p.stats.rule(p.dom.SymbolName(op.Head.Head), f.yields > 0)
		f.j++
		f.pc = pcOperator
		return
	}
	f.yields++
	term.Merge(b, f.unifier)
	if !op.Apply(b, p.st, f.delta) {
		p.stats.Refused++
		return
	}
	p.undo.Push(f.delta)
	f.applied = true
	head, cost := op.Instance(b)
	f.cost = p.current.AddOperator(head, cost)
	p.stats.Applied++

	if p.sink != nil {
		p.emit(Event{
			Kind:               EventStateChanged,
			Task:               f.atom.Format(p.dom),
			Operator:           head.Format(p.dom),
			Deleted:            p.formatRemovals(f.delta.Deleted),
			Added:              p.formatAtoms(f.delta.Added),
			ProtectionsDeleted: p.formatAtoms(f.delta.ProtectionsDeleted),
			ProtectionsAdded:   p.formatAtoms(f.delta.ProtectionsAdded),
		})
	}
	f.pc = pcApplied
	p.call(p.root)
}

func (p *Planner) nextMethod(f *frame) {
	if f.j >= len(f.methods) {
		f.pc = pcBacktrack
		return
	}
	u := f.methods[f.j].Unify(f.atom.Head)
	if u == nil {
		f.j++
		return
	}
	f.unifier = u
	f.k = 0
	f.found = false
	f.pc = pcBranch
}

func (p *Planner) nextBranch(f *frame) {
	m := f.methods[f.j]
	if f.found || f.k >= len(m.Branches) {
		f.j++
		f.pc = pcMethod
		return
	}
	f.sat = m.Satisfiers(p.st, f.unifier, f.k)
	f.yields = 0
	f.pc = pcBranchBinding
}

func (p *Planner) nextBranchBinding(f *frame) {
	m := f.methods[f.j]
	br := m.Branches[f.k]
	b := f.sat.NextBinding(p.st)
	if b == nil {
		p.stats.rule(p.dom.SymbolName(m.Head.Head)+"/"+br.Label, f.yields > 0)
		f.k++
		f.pc = pcBranch
		return
	}
	f.yields++
	f.found = true
	term.Merge(b, f.unifier)
	sub := br.Sub.Bind(b)
	f.tl.Replace(sub)
	f.reduced = true
	p.stats.Reductions++

	if p.sink != nil {
		children := make([]string, 0, len(sub.Children()))
		for _, c := range sub.Children() {
			children = append(children, c.Format(p.dom))
		}
		p.emit(Event{
			Kind:     EventReduced,
			Task:     f.atom.Format(p.dom),
			Method:   m.Head.Apply(b).Format(p.dom),
			Branch:   br.Label,
			Children: children,
			Ordered:  sub.IsOrdered(),
		})
	}
	f.pc = pcReduced
	p.call(f.tl)
}

func (p *Planner) recordPlan() {
	found := p.current.Clone()
	p.plans = append(p.plans, found)
	p.stats.Plans++
	p.log.Debug("plan %d found: %d steps, cost %s", len(p.plans), found.Len(), found.Cost)
	if p.sink != nil {
		p.emit(Event{
			Kind:  EventPlanFound,
			Plan:  found.StepStrings(p.dom),
			Cost:  found.Cost.String(),
			State: p.formatAtoms(p.st.Atoms()),
		})
	}
}

// abort unwinds every frame after a recursion limit violation: task list
// rewrites and plan entries are undone frame by frame from the top, and the
// world state is rolled back through its journal.
func (p *Planner) abort() {
	top := p.stack[len(p.stack)-1]
	task := top.chosen.Format(p.dom)
	p.log.Warn("recursion limit %d reached, aborting search (task %s, %d plans found)", p.limit, task, len(p.plans))

	for i := len(p.stack) - 1; i >= 0; i-- {
		f := p.stack[i]
		if f.applied {
			p.current.RemoveOperator(f.cost)
			f.applied = false
		}
		if f.reduced {
			f.tl.Undo()
			f.reduced = false
		}
		if f.extracted {
			f.tl.Undo()
			f.extracted = false
		}
	}
	p.undo = state.UndoStack{}
	p.st.Reset()
	logging.Get(logging.CategoryState).StructuredLog(zapcore.DebugLevel, "state rolled back after abort",
		zap.String("planner", p.id), zap.Int("atoms", p.st.Len()))

	p.err = &LimitError{Limit: p.limit, Task: task, Plans: len(p.plans)}
	p.emit(Event{Kind: EventLimit, Task: task})
	p.stack = nil
	p.done = true
}

func (p *Planner) formatRemovals(rs []state.Removal) []string {
	if len(rs) == 0 {
		return nil
	}
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.Atom.Format(p.dom)
	}
	return out
}

// FrameInfo describes one live frame for inspection.
type FrameInfo struct {
	Depth     int
	PC        string
	Chosen    string
	Task      string
	Candidate int
	Rule      int
	Branch    int
}

// Inspect returns the live frames, outermost first.
func (p *Planner) Inspect() []FrameInfo {
	out := make([]FrameInfo, len(p.stack))
	for i, f := range p.stack {
		fi := FrameInfo{
			Depth:     i,
			PC:        f.pc.String(),
			Chosen:    f.chosen.Format(p.dom),
			Candidate: f.ci,
			Rule:      f.j,
			Branch:    f.k,
		}
		if f.tl != nil {
			fi.Task = f.atom.Format(p.dom)
		}
		out[i] = fi
	}
	return out
}
